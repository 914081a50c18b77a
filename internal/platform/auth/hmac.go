package auth

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/shorebytelabs/nailsbyabri-sub001/internal/platform/httpx"
)

const (
	defaultSignatureHeader = "X-Signature"
	defaultTimestampHeader = "X-Signature-Timestamp"
	defaultNonceHeader     = "X-Signature-Nonce"

	defaultClockSkew = 5 * time.Minute
	defaultNonceTTL  = 10 * time.Minute

	maxSignedBodySize = 1 << 20
)

// HMACValidator verifies requests signed by studio tooling with a shared secret.
//
// The signature covers METHOD, escaped path, timestamp, nonce and the hex sha256 of the body,
// joined by newlines. Each nonce is accepted once within its TTL.
type HMACValidator struct {
	secret []byte
	scope  string
	nonces NonceStore

	logger *zap.Logger
	now    func() time.Time

	signatureHeader string
	timestampHeader string
	nonceHeader     string

	clockSkew time.Duration
	nonceTTL  time.Duration

	verifications metric.Int64Counter
}

type HMACOption func(*HMACValidator)

// NewHMACValidator builds a validator for one shared secret. scope namespaces nonces so several
// validators can share a NonceStore.
func NewHMACValidator(secret string, scope string, nonces NonceStore, opts ...HMACOption) (*HMACValidator, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: hmac secret is required")
	}
	if nonces == nil {
		return nil, errors.New("auth: nonce store is required")
	}
	scope = strings.TrimSpace(scope)
	if scope == "" {
		scope = "default"
	}

	validator := &HMACValidator{
		secret:          []byte(secret),
		scope:           scope,
		nonces:          nonces,
		logger:          zap.NewNop(),
		now:             time.Now,
		signatureHeader: defaultSignatureHeader,
		timestampHeader: defaultTimestampHeader,
		nonceHeader:     defaultNonceHeader,
		clockSkew:       defaultClockSkew,
		nonceTTL:        defaultNonceTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(validator)
		}
	}
	if validator.verifications == nil {
		validator.verifications, _ = otel.Meter("github.com/shorebytelabs/nailsbyabri-sub001/internal/platform/auth").
			Int64Counter("auth.hmac.verifications", metric.WithDescription("Signed request verifications by outcome"))
	}
	return validator, nil
}

func WithHMACLogger(logger *zap.Logger) HMACOption {
	return func(v *HMACValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithHMACClock injects a custom clock, primarily for tests.
func WithHMACClock(now func() time.Time) HMACOption {
	return func(v *HMACValidator) {
		if now != nil {
			v.now = now
		}
	}
}

func WithHMACHeaders(signature, timestamp, nonce string) HMACOption {
	return func(v *HMACValidator) {
		if signature != "" {
			v.signatureHeader = signature
		}
		if timestamp != "" {
			v.timestampHeader = timestamp
		}
		if nonce != "" {
			v.nonceHeader = nonce
		}
	}
}

func WithHMACClockSkew(d time.Duration) HMACOption {
	return func(v *HMACValidator) {
		if d > 0 {
			v.clockSkew = d
		}
	}
}

func WithHMACNonceTTL(d time.Duration) HMACOption {
	return func(v *HMACValidator) {
		if d > 0 {
			v.nonceTTL = d
		}
	}
}

func WithHMACMeter(meter metric.Meter) HMACOption {
	return func(v *HMACValidator) {
		if meter == nil {
			return
		}
		if counter, err := meter.Int64Counter("auth.hmac.verifications"); err == nil {
			v.verifications = counter
		}
	}
}

// Require rejects requests without a valid, fresh, unreplayed signature.
func (v *HMACValidator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		signatureValue := strings.TrimSpace(r.Header.Get(v.signatureHeader))
		if signatureValue == "" {
			v.reject(ctx, w, http.StatusUnauthorized, "signature_missing", "signature header missing")
			return
		}
		timestampValue := strings.TrimSpace(r.Header.Get(v.timestampHeader))
		timestamp, err := parseSignatureTimestamp(timestampValue)
		if err != nil {
			v.reject(ctx, w, http.StatusUnauthorized, "timestamp_invalid", "signature timestamp missing or invalid")
			return
		}
		now := v.now()
		if skew := now.Sub(timestamp); skew > v.clockSkew || skew < -v.clockSkew {
			v.reject(ctx, w, http.StatusUnauthorized, "timestamp_skew", "signature timestamp outside allowed window")
			return
		}
		nonce := strings.TrimSpace(r.Header.Get(v.nonceHeader))
		if nonce == "" {
			v.reject(ctx, w, http.StatusUnauthorized, "nonce_missing", "signature nonce missing")
			return
		}

		body, err := readAndRestoreBody(r)
		if err != nil {
			v.reject(ctx, w, http.StatusBadRequest, "invalid_body", "unable to read body for signature verification")
			return
		}
		signature, err := decodeSignature(signatureValue)
		if err != nil {
			v.reject(ctx, w, http.StatusUnauthorized, "signature_invalid", "signature encoding invalid")
			return
		}
		expected := computeHMAC(v.secret, buildCanonicalString(r, body, timestampValue, nonce))
		if !hmac.Equal(signature, expected) {
			v.reject(ctx, w, http.StatusUnauthorized, "signature_mismatch", "signature verification failed")
			return
		}

		stored, err := v.nonces.UseNonce(ctx, v.scope, nonce, now.Add(v.nonceTTL))
		if err != nil {
			v.logger.Warn("nonce store error", zap.Error(err))
			v.reject(ctx, w, http.StatusServiceUnavailable, "verification_unavailable", "nonce storage error")
			return
		}
		if !stored {
			v.reject(ctx, w, http.StatusUnauthorized, "nonce_replay", "duplicate signature nonce")
			return
		}

		v.record(ctx, "ok")
		next.ServeHTTP(w, r)
	})
}

// Sign stamps req with signature headers for body. Studio tooling and tests use it to build
// requests the middleware accepts.
func (v *HMACValidator) Sign(req *http.Request, body []byte, nonce string) {
	timestamp := strconv.FormatInt(v.now().Unix(), 10)
	signature := computeHMAC(v.secret, buildCanonicalString(req, body, timestamp, nonce))
	req.Header.Set(v.signatureHeader, base64.StdEncoding.EncodeToString(signature))
	req.Header.Set(v.timestampHeader, timestamp)
	req.Header.Set(v.nonceHeader, nonce)
}

func (v *HMACValidator) reject(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	v.record(ctx, code)
	httpx.WriteError(ctx, w, httpx.NewError(code, message, status))
}

func (v *HMACValidator) record(ctx context.Context, outcome string) {
	if v.verifications == nil {
		return
	}
	v.verifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", v.scope),
		attribute.String("outcome", outcome),
	))
}

func readAndRestoreBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()

	buf, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBodySize+1))
	if err != nil {
		return nil, err
	}
	if len(buf) > maxSignedBodySize {
		return nil, errors.New("auth: signed body too large")
	}
	r.Body = io.NopCloser(bytes.NewReader(buf))
	return buf, nil
}

func decodeSignature(value string) ([]byte, error) {
	if decoded, err := hex.DecodeString(value); err == nil && len(decoded) == sha256.Size {
		return decoded, nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil {
		return decoded, nil
	}
	return nil, errors.New("auth: signature must be base64 or hex encoded")
}

func parseSignatureTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("auth: timestamp empty")
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(seconds, 0).UTC(), nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("auth: unable to parse timestamp %q", value)
}

func buildCanonicalString(r *http.Request, body []byte, timestamp, nonce string) []byte {
	path := r.URL.EscapedPath()
	if path == "" {
		path = "/"
	}
	hash := sha256.Sum256(body)
	return []byte(strings.Join([]string{
		strings.ToUpper(r.Method),
		path,
		timestamp,
		nonce,
		hex.EncodeToString(hash[:]),
	}, "\n"))
}

func computeHMAC(secret []byte, message []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(message)
	return mac.Sum(nil)
}
