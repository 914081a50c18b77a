// Package catalogfile serves the shape and delivery catalog from a JSON file for local runs and
// tests.
package catalogfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	domain "github.com/shorebytelabs/nailsbyabri-sub001/internal/domain"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/repositories"
)

// File is the on-disk layout.
type File struct {
	Shapes          []ShapeEntry          `json:"shapes"`
	DeliveryMethods []DeliveryMethodEntry `json:"deliveryMethods"`
}

type ShapeEntry struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	BasePrice int64  `json:"basePrice"`
}

type DeliveryTierEntry struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Fee   int64  `json:"fee"`
	Days  int    `json:"days"`
}

type DeliveryMethodEntry struct {
	Method      string              `json:"method"`
	Label       string              `json:"label"`
	DefaultTier string              `json:"defaultTier"`
	Tiers       []DeliveryTierEntry `json:"tiers"`
}

// Repository is an immutable in-memory catalog.
type Repository struct {
	shapes  map[string]domain.Shape
	methods map[domain.FulfillmentMethod]domain.DeliveryMethod
}

// Load reads and validates the catalog file at path.
func Load(path string) (*Repository, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalogfile: read %s: %w", path, err)
	}
	var file File
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("catalogfile: decode %s: %w", path, err)
	}
	return New(file)
}

// New validates file and builds the repository.
func New(file File) (*Repository, error) {
	repo := &Repository{
		shapes:  make(map[string]domain.Shape, len(file.Shapes)),
		methods: make(map[domain.FulfillmentMethod]domain.DeliveryMethod, len(file.DeliveryMethods)),
	}

	var errs []error
	for _, entry := range file.Shapes {
		id := strings.TrimSpace(entry.ID)
		switch {
		case id == "":
			errs = append(errs, errors.New("shape id is required"))
			continue
		case entry.BasePrice < 0:
			errs = append(errs, fmt.Errorf("shape %q: base price must be non-negative", id))
			continue
		}
		if _, dup := repo.shapes[id]; dup {
			errs = append(errs, fmt.Errorf("shape %q: duplicate id", id))
			continue
		}
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			name = id
		}
		repo.shapes[id] = domain.Shape{ID: id, Name: name, BasePrice: entry.BasePrice}
	}

	for _, entry := range file.DeliveryMethods {
		method := domain.FulfillmentMethod(strings.ToLower(strings.TrimSpace(entry.Method)))
		if method == "" {
			errs = append(errs, errors.New("delivery method is required"))
			continue
		}
		dm := domain.DeliveryMethod{
			Method:      method,
			Label:       entry.Label,
			DefaultTier: strings.TrimSpace(entry.DefaultTier),
			Tiers:       make(map[string]domain.DeliveryTier, len(entry.Tiers)),
		}
		for _, tier := range entry.Tiers {
			name := strings.TrimSpace(tier.Name)
			if name == "" || tier.Fee < 0 || tier.Days < 0 {
				errs = append(errs, fmt.Errorf("delivery method %q: invalid tier %q", method, tier.Name))
				continue
			}
			dm.Tiers[name] = domain.DeliveryTier{Name: name, Label: tier.Label, Fee: tier.Fee, Days: tier.Days}
		}
		if dm.DefaultTier != "" {
			if _, ok := dm.Tiers[dm.DefaultTier]; !ok {
				errs = append(errs, fmt.Errorf("delivery method %q: default tier %q is not defined", method, dm.DefaultTier))
			}
		}
		repo.methods[method] = dm
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("catalogfile: %w", err)
	}
	return repo, nil
}

func (r *Repository) GetShape(_ context.Context, shapeID string) (domain.Shape, error) {
	shape, ok := r.shapes[strings.TrimSpace(shapeID)]
	if !ok {
		return domain.Shape{}, &repositories.CatalogNotFoundError{Kind: "shape", ID: shapeID}
	}
	return shape, nil
}

func (r *Repository) ListShapes(context.Context) ([]domain.Shape, error) {
	shapes := make([]domain.Shape, 0, len(r.shapes))
	for _, shape := range r.shapes {
		shapes = append(shapes, shape)
	}
	sort.Slice(shapes, func(i, j int) bool { return shapes[i].ID < shapes[j].ID })
	return shapes, nil
}

// DeliveryMethods returns a copy so callers cannot mutate the catalog.
func (r *Repository) DeliveryMethods(context.Context) (map[domain.FulfillmentMethod]domain.DeliveryMethod, error) {
	out := make(map[domain.FulfillmentMethod]domain.DeliveryMethod, len(r.methods))
	for key, method := range r.methods {
		tiers := make(map[string]domain.DeliveryTier, len(method.Tiers))
		for name, tier := range method.Tiers {
			tiers[name] = tier
		}
		method.Tiers = tiers
		out[key] = method
	}
	return out, nil
}
