package catalogfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/shorebytelabs/nailsbyabri-sub001/internal/domain"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/repositories"
)

const sampleCatalog = `{
  "shapes": [
    {"id": "almond", "name": "Almond", "basePrice": 3500},
    {"id": "coffin", "basePrice": 4000}
  ],
  "deliveryMethods": [
    {"method": "Delivery", "label": "Delivery", "defaultTier": "standard", "tiers": [
      {"name": "standard", "fee": 800, "days": 10},
      {"name": "rush", "fee": 2000, "days": 4}
    ]},
    {"method": "pickup", "label": "Pickup", "tiers": [{"name": "standard", "fee": 0, "days": 7}]}
  ]
}`

func writeCatalog(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadServesShapesAndMethods(t *testing.T) {
	repo, err := Load(writeCatalog(t, sampleCatalog))
	require.NoError(t, err)
	ctx := context.Background()

	shape, err := repo.GetShape(ctx, "coffin")
	require.NoError(t, err)
	assert.Equal(t, domain.Shape{ID: "coffin", Name: "coffin", BasePrice: 4000}, shape)

	shapes, err := repo.ListShapes(ctx)
	require.NoError(t, err)
	require.Len(t, shapes, 2)
	assert.Equal(t, "almond", shapes[0].ID)

	methods, err := repo.DeliveryMethods(ctx)
	require.NoError(t, err)
	delivery := methods[domain.FulfillmentDelivery]
	assert.Equal(t, "standard", delivery.DefaultTier)
	assert.Equal(t, int64(2000), delivery.Tiers["rush"].Fee)
	assert.Contains(t, methods, domain.FulfillmentPickup)
}

func TestGetShapeMissingIsNotFound(t *testing.T) {
	repo, err := New(File{})
	require.NoError(t, err)

	_, err = repo.GetShape(context.Background(), "stiletto")
	var repoErr repositories.RepositoryError
	require.True(t, errors.As(err, &repoErr))
	assert.True(t, repoErr.IsNotFound())
}

func TestDeliveryMethodsReturnsCopy(t *testing.T) {
	repo, err := Load(writeCatalog(t, sampleCatalog))
	require.NoError(t, err)

	methods, _ := repo.DeliveryMethods(context.Background())
	methods[domain.FulfillmentDelivery].Tiers["rush"] = domain.DeliveryTier{Name: "rush", Fee: 1}

	again, _ := repo.DeliveryMethods(context.Background())
	assert.Equal(t, int64(2000), again[domain.FulfillmentDelivery].Tiers["rush"].Fee)
}

func TestNewRejectsInvalidEntries(t *testing.T) {
	_, err := New(File{
		Shapes: []ShapeEntry{{ID: "a", BasePrice: -1}, {ID: ""}, {ID: "b"}, {ID: "b"}},
		DeliveryMethods: []DeliveryMethodEntry{
			{Method: "shipping", DefaultTier: "express", Tiers: []DeliveryTierEntry{{Name: "standard", Fee: 500}}},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base price must be non-negative")
	assert.Contains(t, err.Error(), "duplicate id")
	assert.Contains(t, err.Error(), `default tier "express" is not defined`)
}

func TestLoadReportsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}
