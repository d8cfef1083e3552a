package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/flowgrid/flowgrid/common/logger"
	"github.com/flowgrid/flowgrid/common/models"
)

// Google OAuth 2.0 endpoints. Overridable for tests.
const (
	defaultAuthEndpoint  = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultTokenEndpoint = "https://oauth2.googleapis.com/token"

	gmailSendScope = "https://www.googleapis.com/auth/gmail.send"
)

var (
	// ErrExchangeFailed indicates the provider rejected the authorization code
	ErrExchangeFailed = errors.New("oauth: code exchange failed")

	// ErrRefreshFailed indicates the provider rejected the refresh token
	ErrRefreshFailed = errors.New("oauth: token refresh failed")
)

// Config identifies the OAuth application
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// tokenResponse is the provider's token endpoint payload
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope,omitempty"`
}

// Client is a stateless HTTPS client for the Gmail authorization-code flow
type Client struct {
	AuthEndpoint  string
	TokenEndpoint string

	httpClient *http.Client
	log        *logger.Logger
}

// NewClient creates an OAuth client against Google's endpoints
func NewClient(log *logger.Logger) *Client {
	return &Client{
		AuthEndpoint:  defaultAuthEndpoint,
		TokenEndpoint: defaultTokenEndpoint,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		log:           log,
	}
}

// AuthURL formats the provider authorization URL for the gmail.send scope
func (c *Client) AuthURL(cfg Config, state string) string {
	params := url.Values{}
	params.Set("client_id", cfg.ClientID)
	params.Set("redirect_uri", cfg.RedirectURI)
	params.Set("response_type", "code")
	params.Set("scope", gmailSendScope)
	params.Set("access_type", "offline")
	params.Set("prompt", "consent")
	params.Set("state", state)

	return fmt.Sprintf("%s?%s", c.AuthEndpoint, params.Encode())
}

// ExchangeCode trades an authorization code for a token set
func (c *Client) ExchangeCode(ctx context.Context, code string, cfg Config) (models.OAuthTokens, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("client_id", cfg.ClientID)
	data.Set("client_secret", cfg.ClientSecret)
	data.Set("redirect_uri", cfg.RedirectURI)

	resp, err := c.postForm(ctx, data)
	if err != nil {
		return models.OAuthTokens{}, fmt.Errorf("%w: %s", ErrExchangeFailed, err)
	}

	return models.OAuthTokens{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    expiryMillis(resp.ExpiresIn),
	}, nil
}

// RefreshToken obtains a fresh access token. When the provider omits a
// new refresh token the old one is carried forward.
func (c *Client) RefreshToken(ctx context.Context, refreshToken, clientID, clientSecret string) (models.OAuthTokens, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	data.Set("client_id", clientID)
	data.Set("client_secret", clientSecret)

	resp, err := c.postForm(ctx, data)
	if err != nil {
		return models.OAuthTokens{}, fmt.Errorf("%w: %s", ErrRefreshFailed, err)
	}

	tokens := models.OAuthTokens{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    expiryMillis(resp.ExpiresIn),
	}
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}

	return tokens, nil
}

// postForm submits a form-encoded request to the token endpoint
func (c *Client) postForm(ctx context.Context, data url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.log.Error("token endpoint rejected request",
			"status", resp.StatusCode,
			"body", string(body))
		return nil, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse token response: %w", err)
	}

	return &parsed, nil
}

func expiryMillis(expiresIn int) int64 {
	return time.Now().Add(time.Duration(expiresIn) * time.Second).UnixMilli()
}
