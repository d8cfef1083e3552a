package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/flowgrid/flowgrid/common/cache"
	"github.com/flowgrid/flowgrid/common/config"
	"github.com/flowgrid/flowgrid/common/crypto"
	"github.com/flowgrid/flowgrid/common/logger"
	"github.com/flowgrid/flowgrid/common/models"
	"github.com/flowgrid/flowgrid/common/oauth"
	"github.com/flowgrid/flowgrid/common/store"
)

// stateTTL bounds how long an issued OAuth state remains redeemable
const stateTTL = 10 * time.Minute

// OAuthHandler drives the Gmail authorization-code flow. The resulting
// token set is encrypted and stored as a gmail-oauth credential ready
// for email nodes to use.
type OAuthHandler struct {
	store  store.Store
	crypto *crypto.Service
	oauth  *oauth.Client
	cache  cache.Cache
	cfg    config.OAuthConfig
	log    *logger.Logger
}

// NewOAuthHandler creates a new OAuth handler. States live in the
// shared cache; when the cache component is disabled a private one is
// created so the flow keeps working.
func NewOAuthHandler(st store.Store, cs *crypto.Service, oc *oauth.Client, ch cache.Cache, cfg config.OAuthConfig, log *logger.Logger) *OAuthHandler {
	if ch == nil {
		ch = cache.NewMemoryCache(log)
	}
	return &OAuthHandler{
		store:  st,
		crypto: cs,
		oauth:  oc,
		cache:  ch,
		cfg:    cfg,
		log:    log,
	}
}

// AuthURL issues an authorization URL and a single-use state token
// POST /api/oauth/gmail/auth-url
func (h *OAuthHandler) AuthURL(c echo.Context) error {
	ctx := c.Request().Context()

	appCfg, err := h.appConfig(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	state, err := crypto.GenerateToken()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "state generation failed")
	}
	if err := h.cache.Set(ctx, stateKey(state), []byte("1"), stateTTL); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]string{
		"authUrl": h.oauth.AuthURL(appCfg, state),
		"state":   state,
	})
}

// Callback redeems the authorization code and stores the encrypted
// token set as a gmail-oauth credential
// GET /api/oauth/gmail/callback?code=...&state=...
func (h *OAuthHandler) Callback(c echo.Context) error {
	ctx := c.Request().Context()

	code := c.QueryParam("code")
	state := c.QueryParam("state")
	if code == "" || state == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "code and state are required")
	}

	_, found, err := h.cache.Get(ctx, stateKey(state))
	if err != nil || !found {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown or expired state")
	}
	// Single use
	_ = h.cache.Delete(ctx, stateKey(state))

	appCfg, err := h.appConfig(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	tokens, err := h.oauth.ExchangeCode(ctx, code, appCfg)
	if err != nil {
		h.log.Error("oauth code exchange failed", "error", err)
		return echo.NewHTTPError(http.StatusBadGateway, "code exchange failed")
	}

	email := c.QueryParam("email")
	blob := models.GmailOAuthBlob{
		Email:        email,
		Tokens:       tokens,
		ClientID:     appCfg.ClientID,
		ClientSecret: appCfg.ClientSecret,
	}
	encrypted, err := h.crypto.Encrypt(blob)
	if err != nil {
		h.log.Error("token encryption failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "encryption failed")
	}

	name := "Gmail account"
	if email != "" {
		name = fmt.Sprintf("Gmail (%s)", email)
	}
	cred := &models.Credential{
		ID:   uuid.New().String(),
		Name: name,
		Type: models.CredentialGmailOAuth,
		Data: encrypted,
	}
	if err := h.store.CreateCredential(ctx, cred); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.log.Info("gmail credential connected", "credential_id", cred.ID)
	return c.Redirect(http.StatusFound, "/credentials?connected="+cred.ID)
}

// appConfig resolves the OAuth application: a gmail-oauth-config
// credential wins over environment configuration
func (h *OAuthHandler) appConfig(ctx context.Context) (oauth.Config, error) {
	cfg := oauth.Config{
		ClientID:     h.cfg.ClientID,
		ClientSecret: h.cfg.ClientSecret,
		RedirectURI:  h.cfg.RedirectURI,
	}

	creds, err := h.store.ListCredentials(ctx, models.CredentialGmailOAuthConfig)
	if err == nil && len(creds) > 0 {
		var blob models.GmailOAuthConfigBlob
		if err := h.crypto.DecryptInto(creds[0].Data, &blob); err == nil {
			cfg.ClientID = blob.ClientID
			cfg.ClientSecret = blob.ClientSecret
			if blob.RedirectURI != "" {
				cfg.RedirectURI = blob.RedirectURI
			}
		} else {
			h.log.Warn("undecryptable gmail-oauth-config credential", "credential_id", creds[0].ID)
		}
	}

	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return oauth.Config{}, fmt.Errorf("gmail oauth is not configured")
	}
	return cfg, nil
}

func stateKey(state string) string {
	return "oauth:state:" + state
}
