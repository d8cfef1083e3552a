package nodes

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/flowgrid/flowgrid/cmd/engine/resolver"
	"github.com/flowgrid/flowgrid/common/clients"
	"github.com/flowgrid/flowgrid/common/config"
	"github.com/flowgrid/flowgrid/common/crypto"
	"github.com/flowgrid/flowgrid/common/logger"
	"github.com/flowgrid/flowgrid/common/models"
	"github.com/flowgrid/flowgrid/common/oauth"
	rediswrap "github.com/flowgrid/flowgrid/common/redis"
	"github.com/flowgrid/flowgrid/common/store"
)

// refreshLockTTL bounds how long one process holds the per-credential
// refresh lock. Races are tolerable (last writer wins); the lock just
// avoids redundant refresh calls when Redis is available.
const refreshLockTTL = 30 * time.Second

// EmailHandler executes email nodes. A node referencing a gmail-oauth
// credential sends through the Gmail API with automatic token refresh;
// everything else falls back to the SMTP relay.
type EmailHandler struct {
	resolver *resolver.Resolver
	store    store.Store
	crypto   *crypto.Service
	oauth    *oauth.Client
	gmail    *clients.GmailClient
	smtpCfg  config.SMTPConfig
	redis    *rediswrap.Client // optional
	log      *logger.Logger
}

// NewEmailHandler creates an email handler. redis may be nil.
func NewEmailHandler(
	r *resolver.Resolver,
	st store.Store,
	cr *crypto.Service,
	oa *oauth.Client,
	gmail *clients.GmailClient,
	smtpCfg config.SMTPConfig,
	redis *rediswrap.Client,
	log *logger.Logger,
) *EmailHandler {
	return &EmailHandler{
		resolver: r,
		store:    st,
		crypto:   cr,
		oauth:    oa,
		gmail:    gmail,
		smtpCfg:  smtpCfg,
		redis:    redis,
		log:      log,
	}
}

// Handle implements Handler
func (h *EmailHandler) Handle(ctx context.Context, node models.Node, execContext map[string]any) (any, error) {
	data := h.resolver.ResolveMap(node.Data, execContext)

	to, _ := data["to"].(string)
	subject, _ := data["subject"].(string)
	body, _ := data["body"].(string)
	if to == "" || subject == "" || body == "" {
		return nil, NewHandlerError(ConfigMissing,
			fmt.Sprintf("node %s: to, subject and body are required", node.ID))
	}

	if credentialID, ok := data["credentialId"].(string); ok && credentialID != "" {
		return h.sendGmail(ctx, node, credentialID, to, subject, body, data)
	}

	return h.sendSMTP(node, to, subject, body, data)
}

func (h *EmailHandler) sendGmail(ctx context.Context, node models.Node, credentialID, to, subject, body string, data map[string]any) (any, error) {
	cred, err := h.store.GetCredential(ctx, credentialID)
	if err != nil {
		return nil, NewHandlerError(ConfigMissing,
			fmt.Sprintf("node %s: credential %s not found", node.ID, credentialID))
	}
	if cred.Type != models.CredentialGmailOAuth {
		return nil, NewHandlerError(ConfigMissing,
			fmt.Sprintf("node %s: credential %s has type %s, want %s",
				node.ID, credentialID, cred.Type, models.CredentialGmailOAuth))
	}

	var blob models.GmailOAuthBlob
	if err := h.crypto.DecryptInto(cred.Data, &blob); err != nil {
		return nil, NewHandlerError(ConfigMissing,
			fmt.Sprintf("node %s: decrypt credential %s: %s", node.ID, credentialID, err))
	}

	if blob.Tokens.Expired(time.Now().UnixMilli()) {
		refreshed, err := h.refreshTokens(ctx, cred, &blob)
		if err != nil {
			return nil, err
		}
		blob = *refreshed
	}

	html, _ := data["html"].(string)
	messageID, err := h.gmail.Send(ctx, blob.Tokens.AccessToken, clients.Mail{
		From:    blob.Email,
		To:      to,
		Subject: subject,
		Text:    body,
		HTML:    html,
	})
	if err != nil {
		var upstream *clients.UpstreamError
		if errors.As(err, &upstream) {
			return nil, NewHandlerError(UpstreamError,
				fmt.Sprintf("node %s: gmail returned %d: %s", node.ID, upstream.Status, upstream.Body))
		}
		return nil, NewHandlerError(NodeIOError, fmt.Sprintf("node %s: %s", node.ID, err))
	}

	return map[string]any{
		"messageId": messageID,
		"sent":      true,
		"provider":  "gmail-oauth",
	}, nil
}

// refreshTokens refreshes an expired access token and persists the new
// token set. When Redis is available a short SetNX lock keeps several
// executions from refreshing the same credential at once; if another
// process holds the lock, the credential is re-read instead.
func (h *EmailHandler) refreshTokens(ctx context.Context, cred *models.Credential, blob *models.GmailOAuthBlob) (*models.GmailOAuthBlob, error) {
	if h.redis != nil {
		lockKey := fmt.Sprintf("credential:refresh:%s", cred.ID)
		acquired, err := h.redis.SetNX(ctx, lockKey, "1", refreshLockTTL)
		if err == nil && !acquired {
			return h.rereadCredential(ctx, cred.ID, blob)
		}
		if err == nil {
			defer h.redis.Delete(ctx, lockKey)
		}
	}

	h.log.Info("refreshing expired gmail token", "credential_id", cred.ID)

	tokens, err := h.oauth.RefreshToken(ctx, blob.Tokens.RefreshToken, blob.ClientID, blob.ClientSecret)
	if err != nil {
		return nil, NewHandlerError(OAuthRefreshFailed,
			fmt.Sprintf("token refresh failed for credential %s: %s", cred.ID, err))
	}

	updated := *blob
	updated.Tokens = tokens

	encrypted, err := h.crypto.Encrypt(updated)
	if err != nil {
		return nil, NewHandlerError(ConfigMissing,
			fmt.Sprintf("re-encrypt credential %s: %s", cred.ID, err))
	}
	if err := h.store.UpdateCredentialData(ctx, cred.ID, encrypted); err != nil {
		// The refreshed token still works for this send
		h.log.Error("failed to persist refreshed tokens", "credential_id", cred.ID, "error", err)
	}

	return &updated, nil
}

func (h *EmailHandler) rereadCredential(ctx context.Context, credentialID string, fallback *models.GmailOAuthBlob) (*models.GmailOAuthBlob, error) {
	cred, err := h.store.GetCredential(ctx, credentialID)
	if err != nil {
		return fallback, nil
	}
	var blob models.GmailOAuthBlob
	if err := h.crypto.DecryptInto(cred.Data, &blob); err != nil {
		return fallback, nil
	}
	return &blob, nil
}

func (h *EmailHandler) sendSMTP(node models.Node, to, subject, body string, data map[string]any) (any, error) {
	// Node-level settings take precedence over env defaults
	cfg := h.smtpCfg
	if host, ok := data["host"].(string); ok && host != "" {
		cfg.Host = host
	}
	if user, ok := data["user"].(string); ok && user != "" {
		cfg.User = user
	}
	if pass, ok := data["pass"].(string); ok && pass != "" {
		cfg.Pass = pass
	}
	if from, ok := data["from"].(string); ok && from != "" {
		cfg.From = from
	}
	switch p := data["port"].(type) {
	case float64:
		cfg.Port = int(p)
	case string:
		if parsed, err := strconv.Atoi(p); err == nil {
			cfg.Port = parsed
		}
	}

	if cfg.Host == "" || cfg.User == "" || cfg.Pass == "" {
		return nil, NewHandlerError(ConfigMissing,
			fmt.Sprintf("node %s: smtp host, user and pass are required", node.ID))
	}

	html, _ := data["html"].(string)

	smtp := clients.NewSMTPClient(cfg, h.log)
	if err := smtp.Send(clients.Mail{
		From:    cfg.From,
		To:      to,
		Subject: subject,
		Text:    body,
		HTML:    html,
	}); err != nil {
		return nil, NewHandlerError(NodeIOError, fmt.Sprintf("node %s: %s", node.ID, err))
	}

	return map[string]any{
		"messageId": uuid.New().String(),
		"accepted":  []any{to},
		"rejected":  []any{},
		"sent":      true,
		"provider":  "smtp",
	}, nil
}
