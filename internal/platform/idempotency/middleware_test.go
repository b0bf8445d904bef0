package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rentwheel/api/internal/platform/auth"
)

var fixedTime = time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)

func paymentRequest(key, body, uid string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/process", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	if uid != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid}))
	}
	return req
}

type countingHandler struct {
	calls  int
	status int
}

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.calls++
	w.Header().Set("Content-Type", "application/json")
	status := h.status
	if status == 0 {
		status = http.StatusCreated
	}
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"call":%d}`, h.calls)
}

func TestMiddlewarePassesThroughWithoutKey(t *testing.T) {
	next := &countingHandler{}
	handler := Middleware(NewMemoryStore())(next)

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, paymentRequest("", `{"booking_id":"bkg_1"}`, "user-1"))
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rr.Code)
		}
	}
	if next.calls != 2 {
		t.Fatalf("expected both requests to reach the handler, got %d", next.calls)
	}
}

func TestMiddlewareReplaysStoredResponse(t *testing.T) {
	store := NewMemoryStore()
	next := &countingHandler{}
	handler := Middleware(store, WithClock(func() time.Time { return fixedTime }))(next)

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, paymentRequest("pay-1", `{"booking_id":"bkg_1"}`, "user-1"))
	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, paymentRequest("pay-1", `{"booking_id":"bkg_1"}`, "user-1"))

	if next.calls != 1 {
		t.Fatalf("expected a single handler call, got %d", next.calls)
	}
	if rr2.Code != http.StatusCreated || rr2.Body.String() != rr1.Body.String() {
		t.Fatalf("expected identical replay, got %d %q vs %q", rr2.Code, rr2.Body.String(), rr1.Body.String())
	}
	if rr2.Header().Get(ReplayHeader) != "true" {
		t.Fatal("expected replay header")
	}
	if rr1.Header().Get(ReplayHeader) != "" {
		t.Fatal("first response must not be marked as replay")
	}
	if rr2.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected stored content type, got %q", rr2.Header().Get("Content-Type"))
	}
}

func TestMiddlewareScopesKeysPerCaller(t *testing.T) {
	next := &countingHandler{}
	handler := Middleware(NewMemoryStore())(next)

	handler.ServeHTTP(httptest.NewRecorder(), paymentRequest("shared", `{"booking_id":"bkg_1"}`, "user-1"))
	handler.ServeHTTP(httptest.NewRecorder(), paymentRequest("shared", `{"booking_id":"bkg_1"}`, "user-2"))

	if next.calls != 2 {
		t.Fatalf("expected keys to be scoped per caller, got %d calls", next.calls)
	}
}

func TestMiddlewareRejectsReusedKey(t *testing.T) {
	handler := Middleware(NewMemoryStore())(&countingHandler{})

	handler.ServeHTTP(httptest.NewRecorder(), paymentRequest("pay-1", `{"booking_id":"bkg_1"}`, "user-1"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, paymentRequest("pay-1", `{"booking_id":"bkg_2"}`, "user-1"))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	assertErrorCode(t, rr.Body.Bytes(), "idempotency_key_reused")
}

func TestMiddlewareInFlightKey(t *testing.T) {
	store := NewMemoryStore()
	req := paymentRequest("pay-1", `{"booking_id":"bkg_1"}`, "user-1")
	if _, _, err := store.Reserve(context.Background(), "user-1|pay-1", fingerprintOf(req, []byte(`{"booking_id":"bkg_1"}`)), time.Now().UTC(), time.Hour); err != nil {
		t.Fatalf("seed: %v", err)
	}

	next := &countingHandler{}
	rr := httptest.NewRecorder()
	Middleware(store)(next).ServeHTTP(rr, req)

	if next.calls != 0 {
		t.Fatal("handler must not run while the key is in flight")
	}
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	assertErrorCode(t, rr.Body.Bytes(), "idempotency_in_progress")
}

func TestMiddlewareReleasesKeyOnServerError(t *testing.T) {
	store := NewMemoryStore()
	next := &countingHandler{status: http.StatusServiceUnavailable}
	handler := Middleware(store)(next)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, paymentRequest("pay-1", `{"booking_id":"bkg_1"}`, "user-1"))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected handler status, got %d", rr.Code)
	}
	if store.Len() != 0 {
		t.Fatalf("expected key to be released, %d entries left", store.Len())
	}

	next.status = http.StatusCreated
	handler.ServeHTTP(httptest.NewRecorder(), paymentRequest("pay-1", `{"booking_id":"bkg_1"}`, "user-1"))
	if next.calls != 2 {
		t.Fatalf("expected retry to reach handler, got %d calls", next.calls)
	}
}

func TestMiddlewareStoresClientErrors(t *testing.T) {
	next := &countingHandler{status: http.StatusConflict}
	handler := Middleware(NewMemoryStore())(next)

	handler.ServeHTTP(httptest.NewRecorder(), paymentRequest("pay-1", `{"booking_id":"bkg_1"}`, "user-1"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, paymentRequest("pay-1", `{"booking_id":"bkg_1"}`, "user-1"))

	if next.calls != 1 || rr.Code != http.StatusConflict {
		t.Fatalf("expected replayed 409, got %d after %d calls", rr.Code, next.calls)
	}
}

func TestMiddlewareRejectsInvalidKey(t *testing.T) {
	handler := Middleware(NewMemoryStore())(&countingHandler{})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, paymentRequest(strings.Repeat("k", 256), `{}`, "user-1"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	assertErrorCode(t, rr.Body.Bytes(), "invalid_idempotency_key")
}

type recordingLogger struct{ lines []string }

func (l *recordingLogger) Printf(format string, args ...any) {
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

type failingStore struct {
	*MemoryStore
	reserveErr  error
	completeErr error
}

func (s failingStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (State, Entry, error) {
	if s.reserveErr != nil {
		return 0, Entry{}, s.reserveErr
	}
	return s.MemoryStore.Reserve(ctx, key, fingerprint, now, ttl)
}

func (s failingStore) Complete(context.Context, string, string, Response, time.Time, time.Duration) error {
	return s.completeErr
}

func TestMiddlewareStoreFailures(t *testing.T) {
	t.Run("reserve failure is unavailable", func(t *testing.T) {
		logger := &recordingLogger{}
		next := &countingHandler{}
		store := failingStore{MemoryStore: NewMemoryStore(), reserveErr: errors.New("firestore down")}

		rr := httptest.NewRecorder()
		Middleware(store, WithLogger(logger))(next).ServeHTTP(rr, paymentRequest("pay-1", `{}`, "user-1"))

		if rr.Code != http.StatusServiceUnavailable || next.calls != 0 {
			t.Fatalf("expected 503 without handler call, got %d/%d", rr.Code, next.calls)
		}
		if len(logger.lines) != 1 {
			t.Fatalf("expected one log line, got %v", logger.lines)
		}
	})

	t.Run("complete failure still returns handler response", func(t *testing.T) {
		logger := &recordingLogger{}
		store := failingStore{MemoryStore: NewMemoryStore(), completeErr: errors.New("write failed")}

		rr := httptest.NewRecorder()
		Middleware(store, WithLogger(logger))(&countingHandler{}).ServeHTTP(rr, paymentRequest("pay-1", `{}`, "user-1"))

		if rr.Code != http.StatusCreated {
			t.Fatalf("expected handler status, got %d", rr.Code)
		}
		if len(logger.lines) != 1 || !strings.Contains(logger.lines[0], "write failed") {
			t.Fatalf("expected logged failure, got %v", logger.lines)
		}
	})
}

func TestMemoryStorePurgeExpired(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if _, _, err := store.Reserve(ctx, "a", "fp", fixedTime, time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := store.Complete(ctx, "b", "fp", Response{Status: http.StatusCreated}, fixedTime, time.Hour); err != nil {
		t.Fatal(err)
	}

	removed, err := store.PurgeExpired(ctx, fixedTime.Add(2*time.Minute), 0)
	if err != nil || removed != 1 {
		t.Fatalf("expected one purge, got %d %v", removed, err)
	}
	state, entry, err := store.Reserve(ctx, "b", "fp", fixedTime.Add(2*time.Minute), time.Hour)
	if err != nil || state != StateReplay || entry.Status != http.StatusCreated {
		t.Fatalf("expected completed entry to survive, got %v %+v %v", state, entry, err)
	}

	state, _, err = store.Reserve(ctx, "b", "fp", fixedTime.Add(2*time.Hour), time.Hour)
	if err != nil || state != StateNew {
		t.Fatalf("expired entry should be reclaimed, got %v %v", state, err)
	}
}

func assertErrorCode(t *testing.T, payload []byte, expected string) {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if body.Error != expected {
		t.Fatalf("expected error code %s, got %s", expected, body.Error)
	}
}
