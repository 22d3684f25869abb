package httpadapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAPIValidationMiddlewareGuardsDescribedRoutes(t *testing.T) {
	doc, err := loadOpenAPI(context.Background())
	if err != nil {
		t.Fatalf("loadOpenAPI() error = %v", err)
	}
	reached := 0
	handler, err := openAPIValidationMiddleware(doc, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reached++
		w.WriteHeader(http.StatusNoContent)
	}))
	if err != nil {
		t.Fatalf("openAPIValidationMiddleware() error = %v", err)
	}

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected undescribed path to pass through, got %d", res.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/route", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing question, got %d", res.Code)
	}
	if reached != 1 {
		t.Fatalf("expected only the pass-through request to reach the handler, got %d", reached)
	}
}
