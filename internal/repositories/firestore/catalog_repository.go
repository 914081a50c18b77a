package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/shorebytelabs/nailsbyabri-sub001/internal/domain"
	pfirestore "github.com/shorebytelabs/nailsbyabri-sub001/internal/platform/firestore"
)

const (
	shapesCollection          = "catalogShapes"
	deliveryMethodsCollection = "catalogDeliveryMethods"
)

type shapeDocument struct {
	Name      string `firestore:"name"`
	BasePrice int64  `firestore:"basePrice"`
	Active    *bool  `firestore:"active,omitempty"`
}

type deliveryTierDocument struct {
	Name  string `firestore:"name"`
	Label string `firestore:"label"`
	Fee   int64  `firestore:"fee"`
	Days  int    `firestore:"days"`
}

type deliveryMethodDocument struct {
	Label       string                 `firestore:"label"`
	DefaultTier string                 `firestore:"defaultTier"`
	Tiers       []deliveryTierDocument `firestore:"tiers"`
	Active      *bool                  `firestore:"active,omitempty"`
}

// CatalogRepository reads shapes and delivery methods maintained by the studio admin tooling.
// Documents are keyed by shape id and fulfillment method respectively; a missing active flag
// counts as active.
type CatalogRepository struct {
	provider *pfirestore.Provider
}

func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	return &CatalogRepository{provider: provider}, nil
}

func (r *CatalogRepository) GetShape(ctx context.Context, shapeID string) (domain.Shape, error) {
	id := strings.TrimSpace(shapeID)
	if id == "" {
		return domain.Shape{}, pfirestore.NotFound("catalog.get_shape", "shape id is required")
	}
	coll, err := r.provider.Collection(ctx, shapesCollection)
	if err != nil {
		return domain.Shape{}, pfirestore.WrapError("catalog.get_shape", err)
	}
	snap, err := coll.Doc(id).Get(ctx)
	if err != nil {
		return domain.Shape{}, pfirestore.WrapError("catalog.get_shape", err)
	}
	var doc shapeDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Shape{}, fmt.Errorf("catalog.get_shape: decode %s: %w", id, err)
	}
	if !isActive(doc.Active) {
		return domain.Shape{}, pfirestore.NotFound("catalog.get_shape", "shape %q is inactive", id)
	}
	return shapeFromDocument(id, doc), nil
}

// ListShapes returns the active shapes sorted by id.
func (r *CatalogRepository) ListShapes(ctx context.Context) ([]domain.Shape, error) {
	coll, err := r.provider.Collection(ctx, shapesCollection)
	if err != nil {
		return nil, pfirestore.WrapError("catalog.list_shapes", err)
	}
	iter := coll.Documents(ctx)
	defer iter.Stop()

	var shapes []domain.Shape
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("catalog.list_shapes", err)
		}
		var doc shapeDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("catalog.list_shapes: decode %s: %w", snap.Ref.ID, err)
		}
		if isActive(doc.Active) {
			shapes = append(shapes, shapeFromDocument(snap.Ref.ID, doc))
		}
	}
	sort.Slice(shapes, func(i, j int) bool { return shapes[i].ID < shapes[j].ID })
	return shapes, nil
}

func (r *CatalogRepository) DeliveryMethods(ctx context.Context) (map[domain.FulfillmentMethod]domain.DeliveryMethod, error) {
	coll, err := r.provider.Collection(ctx, deliveryMethodsCollection)
	if err != nil {
		return nil, pfirestore.WrapError("catalog.delivery_methods", err)
	}
	snaps, err := coll.Documents(ctx).GetAll()
	if err != nil {
		return nil, pfirestore.WrapError("catalog.delivery_methods", err)
	}

	methods := make(map[domain.FulfillmentMethod]domain.DeliveryMethod, len(snaps))
	for _, snap := range snaps {
		var doc deliveryMethodDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("catalog.delivery_methods: decode %s: %w", snap.Ref.ID, err)
		}
		if !isActive(doc.Active) {
			continue
		}
		method := deliveryMethodFromDocument(snap.Ref.ID, doc)
		methods[method.Method] = method
	}
	return methods, nil
}

// SeedShape writes a shape document; local tooling and integration tests use it.
func (r *CatalogRepository) SeedShape(ctx context.Context, shape domain.Shape) error {
	coll, err := r.provider.Collection(ctx, shapesCollection)
	if err != nil {
		return pfirestore.WrapError("catalog.seed_shape", err)
	}
	_, err = coll.Doc(shape.ID).Set(ctx, shapeDocument{
		Name:      shape.Name,
		BasePrice: shape.BasePrice,
	})
	return pfirestore.WrapError("catalog.seed_shape", err)
}

// SeedDeliveryMethod writes a delivery method document keyed by its method.
func (r *CatalogRepository) SeedDeliveryMethod(ctx context.Context, method domain.DeliveryMethod) error {
	coll, err := r.provider.Collection(ctx, deliveryMethodsCollection)
	if err != nil {
		return pfirestore.WrapError("catalog.seed_delivery_method", err)
	}
	_, err = coll.Doc(string(method.Method)).Set(ctx, deliveryMethodToDocument(method), firestore.MergeAll)
	return pfirestore.WrapError("catalog.seed_delivery_method", err)
}

func isActive(flag *bool) bool {
	return flag == nil || *flag
}

func shapeFromDocument(id string, doc shapeDocument) domain.Shape {
	name := strings.TrimSpace(doc.Name)
	if name == "" {
		name = id
	}
	return domain.Shape{ID: id, Name: name, BasePrice: doc.BasePrice}
}

func deliveryMethodFromDocument(id string, doc deliveryMethodDocument) domain.DeliveryMethod {
	method := domain.DeliveryMethod{
		Method:      domain.FulfillmentMethod(strings.ToLower(strings.TrimSpace(id))),
		Label:       doc.Label,
		DefaultTier: strings.TrimSpace(doc.DefaultTier),
		Tiers:       make(map[string]domain.DeliveryTier, len(doc.Tiers)),
	}
	for _, tier := range doc.Tiers {
		name := strings.TrimSpace(tier.Name)
		if name == "" {
			continue
		}
		method.Tiers[name] = domain.DeliveryTier{Name: name, Label: tier.Label, Fee: tier.Fee, Days: tier.Days}
	}
	return method
}

func deliveryMethodToDocument(method domain.DeliveryMethod) map[string]any {
	names := make([]string, 0, len(method.Tiers))
	for name := range method.Tiers {
		names = append(names, name)
	}
	sort.Strings(names)
	tiers := make([]deliveryTierDocument, 0, len(names))
	for _, name := range names {
		tier := method.Tiers[name]
		tiers = append(tiers, deliveryTierDocument{Name: name, Label: tier.Label, Fee: tier.Fee, Days: tier.Days})
	}
	return map[string]any{
		"label":       method.Label,
		"defaultTier": method.DefaultTier,
		"tiers":       tiers,
	}
}
