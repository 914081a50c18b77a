package firestore

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/shorebytelabs/nailsbyabri-sub001/internal/platform/config"
)

func TestWrapErrorClassifiesStatusCodes(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		notFound    bool
		conflict    bool
		unavailable bool
	}{
		{name: "not found", err: status.Error(codes.NotFound, "missing"), notFound: true},
		{name: "aborted", err: status.Error(codes.Aborted, "contention"), conflict: true},
		{name: "unavailable", err: status.Error(codes.Unavailable, "down"), unavailable: true},
		{name: "plain error", err: errors.New("boom"), unavailable: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var repoErr *Error
			if !errors.As(WrapError("op", tc.err), &repoErr) {
				t.Fatalf("expected *Error, got %T", WrapError("op", tc.err))
			}
			if repoErr.IsNotFound() != tc.notFound || repoErr.IsConflict() != tc.conflict || repoErr.IsUnavailable() != tc.unavailable {
				t.Fatalf("unexpected classification for %s: %+v", tc.name, repoErr)
			}
		})
	}
}

func TestWrapErrorPassesContextErrors(t *testing.T) {
	if err := WrapError("op", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := WrapError("op", status.Error(codes.Canceled, "gone")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled status mapped to context.Canceled, got %v", err)
	}
	if WrapError("op", nil) != nil {
		t.Fatal("expected nil for nil error")
	}
}

func TestNotFoundHelper(t *testing.T) {
	err := NotFound("catalog.get_shape", "shape %q is inactive", "almond")
	var repoErr *Error
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found error, got %v", err)
	}
	if err.Error() != `catalog.get_shape: shape "almond" is inactive` {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestProviderRequiresProjectID(t *testing.T) {
	t.Setenv("GOOGLE_CLOUD_PROJECT", "")
	provider := NewProvider(config.FirestoreConfig{})
	if _, err := provider.Client(context.Background()); err == nil {
		t.Fatal("expected error without project id")
	}
	if err := provider.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := provider.Collection(context.Background(), "catalogShapes"); !errors.Is(err, ErrProviderClosed) {
		t.Fatalf("expected ErrProviderClosed, got %v", err)
	}
}

func TestNewProviderResolvesProjectAndEmulator(t *testing.T) {
	t.Setenv("GOOGLE_CLOUD_PROJECT", "studio-prod")
	t.Setenv("FIRESTORE_EMULATOR_HOST", "localhost:8080")

	provider := NewProvider(config.FirestoreConfig{})
	if provider.ProjectID() != "studio-prod" || provider.emulator != "localhost:8080" {
		t.Fatalf("expected environment fallback, got %q %q", provider.ProjectID(), provider.emulator)
	}

	provider = NewProvider(config.FirestoreConfig{ProjectID: " studio-dev ", EmulatorHost: "emulator:9000"})
	if provider.ProjectID() != "studio-dev" || provider.emulator != "emulator:9000" {
		t.Fatalf("expected explicit config to win, got %q %q", provider.ProjectID(), provider.emulator)
	}
}
