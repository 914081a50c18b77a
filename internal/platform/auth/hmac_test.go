package auth

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

const testSecret = "studio-secret"

func newTestValidator(t *testing.T, now time.Time, store NonceStore) *HMACValidator {
	t.Helper()
	validator, err := NewHMACValidator(testSecret, "admin", store, WithHMACClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewHMACValidator: %v", err)
	}
	return validator
}

func signedRequest(v *HMACValidator, body []byte, nonce string) *http.Request {
	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/capacity", bytes.NewReader(body))
	v.Sign(req, body, nonce)
	return req
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequire_AcceptsSignedRequest(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	validator := newTestValidator(t, now, NewInMemoryNonceStore())

	body := []byte(`{"capacity":12}`)
	var seen []byte
	handler := validator.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(r.Body)
		seen = buf.Bytes()
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, signedRequest(validator, body, "n-1"))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
	if !bytes.Equal(seen, body) {
		t.Fatalf("expected body to be restored for the handler, got %q", seen)
	}
}

func TestRequire_RejectsReplay(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	validator := newTestValidator(t, now, NewInMemoryNonceStore())
	handler := validator.Require(okHandler())
	body := []byte(`{"capacity":12}`)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, signedRequest(validator, body, "n-replay"))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected first request to pass, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, signedRequest(validator, body, "n-replay"))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected replay to be rejected, got %d", rr.Code)
	}
}

func TestRequire_RejectsTamperedBody(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	validator := newTestValidator(t, now, NewInMemoryNonceStore())

	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/capacity", bytes.NewReader([]byte(`{"capacity":99}`)))
	validator.Sign(req, []byte(`{"capacity":12}`), "n-tamper")

	rr := httptest.NewRecorder()
	validator.Require(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not run on signature mismatch")
	})).ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRequire_RejectsSkewedTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	signer := newTestValidator(t, now.Add(-10*time.Minute), NewInMemoryNonceStore())
	validator := newTestValidator(t, now, NewInMemoryNonceStore())

	rr := httptest.NewRecorder()
	validator.Require(okHandler()).ServeHTTP(rr, signedRequest(signer, nil, "n-old"))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for skewed timestamp, got %d", rr.Code)
	}
}

func TestRequire_MissingHeaders(t *testing.T) {
	validator := newTestValidator(t, time.Now(), NewInMemoryNonceStore())

	rr := httptest.NewRecorder()
	validator.Require(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/api/v1/admin/capacity", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without signature, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/capacity", nil)
	validator.Sign(req, nil, "n-x")
	req.Header.Del(defaultNonceHeader)
	rr = httptest.NewRecorder()
	validator.Require(okHandler()).ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without nonce, got %d", rr.Code)
	}
}

type failingNonceStore struct{}

func (failingNonceStore) UseNonce(context.Context, string, string, time.Time) (bool, error) {
	return false, errors.New("redis down")
}

func TestRequire_NonceStoreFailure(t *testing.T) {
	now := time.Now()
	validator := newTestValidator(t, now, failingNonceStore{})

	rr := httptest.NewRecorder()
	validator.Require(okHandler()).ServeHTTP(rr, signedRequest(validator, nil, "n-fail"))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when the nonce store fails, got %d", rr.Code)
	}
}

func TestNewHMACValidatorRequiresSecret(t *testing.T) {
	if _, err := NewHMACValidator("  ", "admin", NewInMemoryNonceStore()); err == nil {
		t.Fatalf("expected error for empty secret")
	}
	if _, err := NewHMACValidator("s", "admin", nil); err == nil {
		t.Fatalf("expected error for missing nonce store")
	}
}

func TestInMemoryNonceStoreExpiry(t *testing.T) {
	store := NewInMemoryNonceStore()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	ok, err := store.UseNonce(context.Background(), "admin", "n", now.Add(time.Minute))
	if err != nil || !ok {
		t.Fatalf("expected first use to be stored, got %v %v", ok, err)
	}
	ok, _ = store.UseNonce(context.Background(), "other", "n", now.Add(time.Minute))
	if !ok {
		t.Fatalf("expected scopes to be independent")
	}

	now = now.Add(2 * time.Minute)
	ok, err = store.UseNonce(context.Background(), "admin", "n", now.Add(time.Minute))
	if err != nil || !ok {
		t.Fatalf("expected nonce to be reusable after expiry, got %v %v", ok, err)
	}
}

func TestParseSignatureTimestamp(t *testing.T) {
	want := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	got, err := parseSignatureTimestamp(strconv.FormatInt(want.Unix(), 10))
	if err != nil || !got.Equal(want) {
		t.Fatalf("unix seconds: got %v %v", got, err)
	}
	got, err = parseSignatureTimestamp(want.Format(time.RFC3339))
	if err != nil || !got.Equal(want) {
		t.Fatalf("rfc3339: got %v %v", got, err)
	}
	if _, err := parseSignatureTimestamp("yesterday"); err == nil {
		t.Fatalf("expected parse error")
	}
}
