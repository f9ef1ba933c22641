package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/Thaynan-souza/raphietro-atelier/internal/platform/auth"
	"github.com/Thaynan-souza/raphietro-atelier/internal/platform/httpx"
	"github.com/Thaynan-souza/raphietro-atelier/internal/platform/requestctx"
	"github.com/Thaynan-souza/raphietro-atelier/internal/services"
)

const maxBodySize = 64 * 1024

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body too large")
)

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxBodySize
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeJSONBody reads a bounded JSON body into dst and answers the request
// itself when that fails.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, maxBodySize)
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		return false
	case err != nil:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return false
	}
	return true
}

// requireIdentity returns the signed-in identity or answers 401.
func requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity.Actor() == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", services.Notice(services.ErrUnauthenticated), http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

var serviceErrors = []struct {
	err    error
	code   string
	status int
}{
	{services.ErrUnauthenticated, "unauthenticated", http.StatusUnauthorized},
	{services.ErrForbidden, "forbidden", http.StatusForbidden},
	{services.ErrClientNotFound, "client_not_found", http.StatusNotFound},
	{services.ErrServiceNotFound, "service_not_found", http.StatusNotFound},
	{services.ErrStaffNotFound, "staff_not_found", http.StatusNotFound},
	{services.ErrOrderNotFound, "order_not_found", http.StatusNotFound},
	{services.ErrTaxIDIncomplete, "tax_id_incomplete", http.StatusUnprocessableEntity},
	{services.ErrInvalidServicePrice, "invalid_service_price", http.StatusUnprocessableEntity},
	{services.ErrStaffNotEligible, "staff_not_eligible", http.StatusUnprocessableEntity},
	{services.ErrMissingClient, "missing_client", http.StatusUnprocessableEntity},
	{services.ErrMissingStaff, "missing_staff", http.StatusUnprocessableEntity},
	{services.ErrEmptyCart, "empty_cart", http.StatusUnprocessableEntity},
	{services.ErrInvalidStatus, "invalid_status", http.StatusUnprocessableEntity},
	{services.ErrInvalidInput, "invalid_request", http.StatusBadRequest},
	{services.ErrClientDuplicate, "client_exists", http.StatusConflict},
	{services.ErrStaffEmailTaken, "email_taken", http.StatusConflict},
	{services.ErrPersistence, "persistence_failure", http.StatusServiceUnavailable},
}

// writeServiceError maps service sentinels to the error envelope. The
// message is the notice shown to staff.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	for _, mapping := range serviceErrors {
		if errors.Is(err, mapping.err) {
			if mapping.status >= http.StatusInternalServerError {
				requestctx.Logger(ctx).Error("request failed", zap.Error(err))
			}
			httpx.WriteError(ctx, w, httpx.NewError(mapping.code, services.Notice(err), mapping.status))
			return
		}
	}
	requestctx.Logger(ctx).Error("unexpected service error", zap.Error(err))
	httpx.WriteError(ctx, w, httpx.NewError("internal", "failed to process request", http.StatusInternalServerError))
}
