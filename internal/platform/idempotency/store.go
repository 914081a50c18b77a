// Package idempotency replays the first response for a repeated Idempotency-Key so that payment
// initiation runs at most once per key.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long a key and its stored response are retained.
const DefaultTTL = 24 * time.Hour

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// ReservationState tells the middleware what to do with a request after Reserve.
type ReservationState int

const (
	ReservationStateNew       ReservationState = iota // run the handler
	ReservationStateCompleted                         // replay Record
	ReservationStatePending                           // in flight elsewhere
)

type Reservation struct {
	State  ReservationState
	Record Record
}

// Record is what a store keeps per key. The key itself is stored hashed.
type Record struct {
	Key             string
	Fingerprint     string
	Status          Status
	ResponseStatus  int
	ResponseHeaders map[string][]string
	ResponseBody    []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ExpiresAt       time.Time
}

func newPendingRecord(key, fingerprint string, now time.Time, ttl time.Duration) Record {
	return Record{
		Key:         key,
		Fingerprint: fingerprint,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(effectiveTTL(ttl)),
	}
}

func (r Record) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

func (r *Record) complete(resp Response, now time.Time, ttl time.Duration) {
	r.Status = StatusCompleted
	r.ResponseStatus = resp.Status
	r.ResponseHeaders = resp.replayable()
	r.ResponseBody = append([]byte(nil), resp.Body...)
	r.UpdatedAt = now
	r.ExpiresAt = now.Add(effectiveTTL(ttl))
}

// clone detaches the header and body slices from the stored record.
func (r Record) clone() Record {
	out := r
	out.ResponseHeaders = r.header()
	if r.ResponseBody != nil {
		out.ResponseBody = append([]byte(nil), r.ResponseBody...)
	}
	if len(out.ResponseHeaders) == 0 {
		out.ResponseHeaders = nil
	}
	return out
}

// header returns a copy of the stored headers ready to write to a response.
func (r Record) header() http.Header {
	h := make(http.Header, len(r.ResponseHeaders))
	for name, values := range r.ResponseHeaders {
		h[name] = append([]string(nil), values...)
	}
	return h
}

// Response is the handler output captured for replay.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// replayable drops headers the server recomputes or that only apply to one connection.
func (r Response) replayable() map[string][]string {
	var out map[string][]string
	for name, values := range r.Headers {
		name = http.CanonicalHeaderKey(name)
		switch name {
		case "Content-Length", "Date", "Connection", "Keep-Alive", "Proxy-Authenticate",
			"Proxy-Authorization", "Te", "Trailers", "Transfer-Encoding", "Upgrade":
			continue
		}
		if out == nil {
			out = make(map[string][]string, len(r.Headers))
		}
		out[name] = append([]string(nil), values...)
	}
	return out
}

// Store persists reservations and responses. Reserve must be atomic per key.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key, fingerprint string) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// ErrFingerprintMismatch reports a key reused with a different request body or target.
var ErrFingerprintMismatch = errors.New("idempotency: key reserved for different request fingerprint")

func effectiveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}

// compositeKey hashes the client key so arbitrary input is safe as a map or redis key.
func compositeKey(key string) string {
	return sha256Hex([]byte(strings.TrimSpace(key)))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
