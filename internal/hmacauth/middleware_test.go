package hmacauth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestMiddleware_AllowsValidSignature(t *testing.T) {
	body := `{"apy":5,"tvl":5000}`
	now := time.Unix(1_700_000_000, 0)
	ts := strconv.FormatInt(now.Unix(), 10)
	sig := Sign("secret", ts, []byte(body))

	v := &Verifier{
		Secret:  "secret",
		MaxSkew: time.Minute,
		Now: func() time.Time {
			return now
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/thresholds", strings.NewReader(body))
	req.Header.Set(DefaultSignatureHeader, sig)
	req.Header.Set(DefaultTimestampHeader, ts)
	rec := httptest.NewRecorder()

	var seen string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen = string(b)
		w.WriteHeader(http.StatusOK)
	})

	v.Middleware(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if seen != body {
		t.Fatalf("handler saw body %q, want %q", seen, body)
	}
}

func TestMiddleware_RejectsInvalidSignature(t *testing.T) {
	body := `{"apy":5}`
	now := time.Unix(1_700_000_000, 0)
	ts := strconv.FormatInt(now.Unix(), 10)

	v := &Verifier{
		Secret:  "secret",
		MaxSkew: time.Minute,
		Now: func() time.Time {
			return now
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/claim", strings.NewReader(body))
	req.Header.Set(DefaultSignatureHeader, "deadbeef")
	req.Header.Set(DefaultTimestampHeader, ts)
	rec := httptest.NewRecorder()

	v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestVerify_StaleAndMissing(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := &Verifier{Secret: "secret", MaxSkew: time.Minute, Now: func() time.Time { return now }}

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	if err := v.Verify(req); err != ErrMissingSignature {
		t.Fatalf("expected ErrMissingSignature, got %v", err)
	}

	req.Header.Set(DefaultSignatureHeader, "00")
	if err := v.Verify(req); err != ErrMissingTimestamp {
		t.Fatalf("expected ErrMissingTimestamp, got %v", err)
	}

	old := strconv.FormatInt(now.Add(-2*time.Minute).Unix(), 10)
	req.Header.Set(DefaultTimestampHeader, old)
	if err := v.Verify(req); err != ErrStaleTimestamp {
		t.Fatalf("expected ErrStaleTimestamp, got %v", err)
	}
}

func TestVerify_CustomHeadersAndDisabled(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ts := strconv.FormatInt(now.Unix(), 10)
	v := &Verifier{
		Secret:          "ops",
		MaxSkew:         time.Minute,
		SignatureHeader: "X-Portal-Signature",
		TimestampHeader: "X-Portal-Timestamp",
		Now:             func() time.Time { return now },
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}"))
	req.Header.Set("X-Portal-Signature", strings.ToUpper(Sign("ops", ts, []byte("{}"))))
	req.Header.Set("X-Portal-Timestamp", ts)
	if err := v.Verify(req); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}

	open := &Verifier{}
	if err := open.Verify(httptest.NewRequest(http.MethodPost, "/", nil)); err != nil {
		t.Fatalf("verifier without secret must pass, got %v", err)
	}
}
