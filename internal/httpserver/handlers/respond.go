package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/MrSnakeDoc/ans/internal/domain"
	"github.com/MrSnakeDoc/ans/internal/logger"
)

// maxBodyBytes caps request bodies; every payload here is a handful of short fields.
const maxBodyBytes = 16 << 10

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// errorMapping translates registry errors into an HTTP status and a stable code.
var errorMapping = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
	{domain.ErrNameAlreadyExists, http.StatusConflict, "name_already_exists"},
	{domain.ErrNotForSale, http.StatusConflict, "not_for_sale"},
	{domain.ErrDomainExpired, http.StatusConflict, "domain_expired"},
	{domain.ErrWrongSeller, http.StatusConflict, "wrong_seller"},
	{domain.ErrPriceMismatch, http.StatusConflict, "price_mismatch"},
	{domain.ErrInsufficientFunds, http.StatusPaymentRequired, "insufficient_funds"},
	{domain.ErrInvalidNameLength, http.StatusBadRequest, "invalid_name_length"},
	{domain.ErrEndpointTooLong, http.StatusBadRequest, "endpoint_too_long"},
	{domain.ErrCategoryTooLong, http.StatusBadRequest, "category_too_long"},
	{domain.ErrInvalidPrice, http.StatusBadRequest, "invalid_price"},
	{domain.ErrInvalidPrincipal, http.StatusBadRequest, "invalid_principal"},
	{domain.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
}

// statusFor returns the HTTP status and code for err, 500 for anything that
// is not a registry error.
func statusFor(err error) (int, string) {
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// writeRegistryError maps err and writes it. Internal failures are logged and
// their message is not echoed to the client.
func writeRegistryError(w http.ResponseWriter, r *http.Request, log logger.Logger, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error("request failed",
			logger.String("path", r.URL.Path),
			logger.Error(err))
		msg = http.StatusText(status)
	}
	writeError(w, status, code, msg)
}

// decodeJSON reads a single JSON object into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if dec.More() {
		return errors.New("invalid request body: trailing data")
	}
	return nil
}
