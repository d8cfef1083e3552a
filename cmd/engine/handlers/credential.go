package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/flowgrid/flowgrid/common/crypto"
	"github.com/flowgrid/flowgrid/common/logger"
	"github.com/flowgrid/flowgrid/common/models"
	"github.com/flowgrid/flowgrid/common/store"
)

// CredentialHandler handles credential storage. Secret payloads are
// encrypted before they reach the store and are never returned.
type CredentialHandler struct {
	store  store.Store
	crypto *crypto.Service
	log    *logger.Logger
}

// NewCredentialHandler creates a new credential handler
func NewCredentialHandler(st store.Store, cs *crypto.Service, log *logger.Logger) *CredentialHandler {
	return &CredentialHandler{
		store:  st,
		crypto: cs,
		log:    log,
	}
}

type createCredentialRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Data any    `json:"data"`
}

// CreateCredential encrypts and stores a secret
// POST /api/credentials
func (h *CredentialHandler) CreateCredential(c echo.Context) error {
	var req createCredentialRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid credential payload")
	}
	if req.Name == "" || req.Type == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name and type are required")
	}
	if req.Data == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "data is required")
	}

	encrypted, err := h.crypto.Encrypt(req.Data)
	if err != nil {
		h.log.Error("credential encryption failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "encryption failed")
	}

	cred := &models.Credential{
		ID:   uuid.New().String(),
		Name: req.Name,
		Type: req.Type,
		Data: encrypted,
	}
	if err := h.store.CreateCredential(c.Request().Context(), cred); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.log.Info("credential created", "credential_id", cred.ID, "type", cred.Type)
	return c.JSON(http.StatusCreated, cred)
}

// ListCredentials lists credential metadata, optionally filtered by type
// GET /api/credentials?type=...
func (h *CredentialHandler) ListCredentials(c echo.Context) error {
	credentials, err := h.store.ListCredentials(c.Request().Context(), c.QueryParam("type"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, credentials)
}

// GetCredential retrieves credential metadata. The encrypted payload is
// never serialized.
// GET /api/credentials/:id
func (h *CredentialHandler) GetCredential(c echo.Context) error {
	cred, err := h.store.GetCredential(c.Request().Context(), c.Param("id"))
	if err != nil {
		return notFoundOr500(err, "credential not found")
	}
	return c.JSON(http.StatusOK, cred)
}

// DeleteCredential removes a credential
// DELETE /api/credentials/:id
func (h *CredentialHandler) DeleteCredential(c echo.Context) error {
	if err := h.store.DeleteCredential(c.Request().Context(), c.Param("id")); err != nil {
		return notFoundOr500(err, "credential not found")
	}
	return c.NoContent(http.StatusNoContent)
}
