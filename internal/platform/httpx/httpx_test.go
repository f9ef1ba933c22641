package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Thaynan-souza/raphietro-atelier/internal/platform/requestctx"
)

func TestWriteErrorEnvelope(t *testing.T) {
	ctx := requestctx.WithTrace(context.Background(), requestctx.TraceInfo{TraceID: "trace-1"})
	rr := httptest.NewRecorder()

	err := NewError("order_not_found", "pedido\nnão encontrado", http.StatusNotFound).
		WithDetails(map[string]any{"order_id": "abc"})
	WriteError(ctx, rr, err)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "order_not_found" || body["trace_id"] != "trace-1" || body["order_id"] != "abc" {
		t.Fatalf("unexpected body %v", body)
	}
	if strings.Contains(body["message"].(string), "\n") {
		t.Fatalf("expected newlines to be stripped, got %q", body["message"])
	}
}

func TestNewErrorDefaultsStatus(t *testing.T) {
	if got := NewError("x", "y", 0).Status; got != http.StatusInternalServerError {
		t.Fatalf("expected 500 default, got %d", got)
	}
}

func TestWriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteJSON(context.Background(), rr, http.StatusCreated, map[string]string{"id": "o-1"})

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	if !strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		t.Fatalf("unexpected content type %s", rr.Header().Get("Content-Type"))
	}
	if strings.TrimSpace(rr.Body.String()) != `{"id":"o-1"}` {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
}
