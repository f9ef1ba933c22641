package httpx

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/Thaynan-souza/raphietro-atelier/internal/platform/requestctx"
)

// WriteJSON encodes payload with the given status. Encoding failures are
// logged; the status line has already been sent by then.
func WriteJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		requestctx.Logger(ctx).Warn("httpx: encode response failed", zap.Error(err))
	}
}
