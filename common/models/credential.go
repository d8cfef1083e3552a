package models

import "time"

// Credential types with engine-specific handling. Any other type is an
// opaque encrypted blob.
const (
	CredentialGmailOAuth       = "gmail-oauth"
	CredentialGmailOAuthConfig = "gmail-oauth-config"
)

// Credential is an encrypted secret record. Data holds ciphertext only;
// plaintext never reaches the store.
type Credential struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Data      string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// OAuthTokens is the token set inside a gmail-oauth credential blob.
// ExpiresAt is a Unix timestamp in milliseconds.
type OAuthTokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    int64  `json:"expiresAt"`
}

// GmailOAuthBlob is the decrypted payload of a gmail-oauth credential
type GmailOAuthBlob struct {
	Email        string      `json:"email"`
	Tokens       OAuthTokens `json:"tokens"`
	ClientID     string      `json:"clientId"`
	ClientSecret string      `json:"clientSecret"`
}

// GmailOAuthConfigBlob is the decrypted payload of a gmail-oauth-config
// credential
type GmailOAuthConfigBlob struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	RedirectURI  string `json:"redirectUri,omitempty"`
}

// Expired reports whether the access token has passed its expiry at the
// given instant (Unix milliseconds)
func (t OAuthTokens) Expired(nowMillis int64) bool {
	return t.ExpiresAt != 0 && t.ExpiresAt < nowMillis
}
