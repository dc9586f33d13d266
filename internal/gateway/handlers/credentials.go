package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/santridigital/kreator-gateway/internal/gateway/classify"
	"github.com/santridigital/kreator-gateway/internal/gateway/credentials"
)

// CredentialHandler exposes credential management: list, create, update,
// delete, activate, plus the read-only server-credential views.
type CredentialHandler struct {
	store *credentials.Store
}

// NewCredentialHandler creates the credential handler.
func NewCredentialHandler(store *credentials.Store) *CredentialHandler {
	return &CredentialHandler{store: store}
}

type credentialListResponse struct {
	Credentials []credentials.Credential `json:"credentials"`
}

// HandleList handles GET /v1/credentials
func (h *CredentialHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	creds, err := h.store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, classify.KindGeneric, "failed to load credentials")
		return
	}
	writeJSON(w, http.StatusOK, credentialListResponse{Credentials: creds})
}

// HandleCreate handles POST /v1/credentials
func (h *CredentialHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, "")
}

// HandleUpdate handles PUT /v1/credentials/{id}
func (h *CredentialHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, chi.URLParam(r, "id"))
}

func (h *CredentialHandler) save(w http.ResponseWriter, r *http.Request, idToUpdate string) {
	var in credentials.SaveInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, classify.KindGeneric, "invalid request body")
		return
	}
	if strings.TrimSpace(in.Name) == "" {
		writeError(w, http.StatusBadRequest, classify.KindGeneric, "name is required")
		return
	}

	creds, err := h.store.Save(r.Context(), in, idToUpdate)
	if err != nil {
		if errors.Is(err, credentials.ErrNotFound) {
			writeError(w, http.StatusNotFound, classify.KindGeneric, "credential not found")
			return
		}
		writeError(w, http.StatusInternalServerError, classify.KindGeneric, "failed to save credential")
		return
	}
	writeJSON(w, http.StatusOK, credentialListResponse{Credentials: creds})
}

// HandleDelete handles DELETE /v1/credentials/{id}
func (h *CredentialHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	creds, err := h.store.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, classify.KindGeneric, "failed to delete credential")
		return
	}
	writeJSON(w, http.StatusOK, credentialListResponse{Credentials: creds})
}

// HandleActivate handles POST /v1/credentials/{id}/activate
func (h *CredentialHandler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	creds, err := h.store.SetActive(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, classify.KindGeneric, "failed to activate credential")
		return
	}
	writeJSON(w, http.StatusOK, credentialListResponse{Credentials: creds})
}

// HandleActive handles GET /v1/credentials/active
func (h *CredentialHandler) HandleActive(w http.ResponseWriter, r *http.Request) {
	active, err := h.store.Active(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, classify.KindGeneric, "failed to load credentials")
		return
	}
	if active == nil {
		writeError(w, http.StatusNotFound, classify.KindCredentialOrBilling, "no active credential with a usable key")
		return
	}
	writeJSON(w, http.StatusOK, active)
}

// HandleServerList handles GET /v1/credentials/server
func (h *CredentialHandler) HandleServerList(w http.ResponseWriter, r *http.Request) {
	creds, err := h.store.ServerCredentials(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, classify.KindGeneric, "failed to load server credentials")
		return
	}
	writeJSON(w, http.StatusOK, credentialListResponse{Credentials: creds})
}
