package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rentwheel/api/internal/platform/requestctx"
	"github.com/rentwheel/api/internal/services"
)

func TestWriteErrorIncludesRequestAndTraceIDs(t *testing.T) {
	ctx := requestctx.WithRequestID(context.Background(), "req-7")
	ctx = requestctx.WithTrace(ctx, requestctx.TraceInfo{TraceID: "trace-1"})
	rr := httptest.NewRecorder()

	WriteError(ctx, rr, NewError("conflict", "dates\nunavailable", http.StatusConflict).WithDetails(map[string]any{
		"booking_id": "bkg_1",
		"status":     999,
	}))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "conflict" || body["message"] != "dates unavailable" {
		t.Fatalf("unexpected envelope %v", body)
	}
	if body["request_id"] != "req-7" || body["trace_id"] != "trace-1" {
		t.Fatalf("missing ids: %v", body)
	}
	if body["booking_id"] != "bkg_1" {
		t.Fatalf("expected details merged, got %v", body)
	}
	if body["status"] != float64(http.StatusConflict) {
		t.Fatalf("details must not override status, got %v", body["status"])
	}
}

func TestServiceErrorMapping(t *testing.T) {
	cases := []struct {
		err      error
		status   int
		code     string
		known    bool
		redacted bool
	}{
		{fmt.Errorf("%w: bad date", services.ErrInvalidInput), http.StatusBadRequest, "invalid_input", true, false},
		{fmt.Errorf("%w: booking", services.ErrNotFound), http.StatusNotFound, "not_found", true, false},
		{fmt.Errorf("%w: not owner", services.ErrForbidden), http.StatusForbidden, "forbidden", true, false},
		{fmt.Errorf("%w: overlap", services.ErrConflict), http.StatusConflict, "conflict", true, false},
		{fmt.Errorf("%w: firestore down", services.ErrDependency), http.StatusServiceUnavailable, "dependency_unavailable", true, true},
		{errors.New("boom: secret detail"), http.StatusInternalServerError, "internal_error", false, true},
	}
	for _, tc := range cases {
		got, known := ServiceError(tc.err)
		if got.Status != tc.status || got.Code != tc.code || known != tc.known {
			t.Fatalf("%v: got %+v known=%v", tc.err, got, known)
		}
		if tc.redacted && strings.Contains(got.Message, "detail") {
			t.Fatalf("%v: internal detail leaked in %q", tc.err, got.Message)
		}
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	var p payload
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}`))
	if err := DecodeJSON(req, 0, &p); err != nil || p.Name != "x" {
		t.Fatalf("unexpected result %v %+v", err, p)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("  "))
	if err := DecodeJSON(req, 0, &p); !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("expected empty body error, got %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"abcdefgh"}`))
	if err := DecodeJSON(req, 8, &p); !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("expected too large, got %v", err)
	}
	if DecodeError(ErrBodyTooLarge).Status != http.StatusRequestEntityTooLarge {
		t.Fatal("expected 413")
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","extra":1}`))
	err := DecodeJSON(req, 0, &p)
	if err == nil || DecodeError(err).Status != http.StatusBadRequest {
		t.Fatalf("expected unknown field rejection, got %v", err)
	}
}
