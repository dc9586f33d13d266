package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/santridigital/kreator-gateway/internal/gateway/classify"
)

type errorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, kind classify.Kind, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Type: string(kind), Message: message}})
}

// writeClassifiedError maps the three error kinds to HTTP statuses. Anything
// unclassified is reported generically without leaking internals.
func writeClassifiedError(w http.ResponseWriter, err error) {
	kind := classify.KindOf(err)
	status := http.StatusBadGateway
	switch kind {
	case classify.KindSensitiveContent:
		status = http.StatusUnprocessableEntity
	case classify.KindCredentialOrBilling:
		status = http.StatusPaymentRequired
	}

	message := "an unexpected error occurred. Please try again."
	var cerr *classify.Error
	if errors.As(err, &cerr) {
		message = cerr.Message
	}
	writeError(w, status, kind, message)
}
