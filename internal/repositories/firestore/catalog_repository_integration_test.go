//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	domain "github.com/shorebytelabs/nailsbyabri-sub001/internal/domain"
	pconfig "github.com/shorebytelabs/nailsbyabri-sub001/internal/platform/config"
	pfirestore "github.com/shorebytelabs/nailsbyabri-sub001/internal/platform/firestore"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/repositories"
	repofirestore "github.com/shorebytelabs/nailsbyabri-sub001/internal/repositories/firestore"
)

func TestCatalogRepositoryAgainstEmulator(t *testing.T) {
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: "catalog-test", EmulatorHost: host})
	t.Cleanup(func() { _ = provider.Close() })

	repo, err := repofirestore.NewCatalogRepository(provider)
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := repo.SeedShape(ctx, domain.Shape{ID: "coffin", Name: "Coffin", BasePrice: 4000}); err != nil {
		t.Fatalf("seed shape: %v", err)
	}
	if err := repo.SeedDeliveryMethod(ctx, domain.DeliveryMethod{
		Method:      domain.FulfillmentMethod("delivery"),
		Label:       "Delivery",
		DefaultTier: "standard",
		Tiers: map[string]domain.DeliveryTier{
			"standard": {Name: "standard", Fee: 800, Days: 10},
		},
	}); err != nil {
		t.Fatalf("seed delivery method: %v", err)
	}

	shape, err := repo.GetShape(ctx, "coffin")
	if err != nil || shape.BasePrice != 4000 {
		t.Fatalf("get shape: %+v err=%v", shape, err)
	}

	_, err = repo.GetShape(ctx, "missing")
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found, got %v", err)
	}

	methods, err := repo.DeliveryMethods(ctx)
	if err != nil {
		t.Fatalf("delivery methods: %v", err)
	}
	if methods["delivery"].Tiers["standard"].Fee != 800 {
		t.Fatalf("unexpected methods %+v", methods)
	}
}
