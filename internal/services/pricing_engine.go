package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/shorebytelabs/nailsbyabri-sub001/internal/domain"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/repositories"
)

const instrumentationName = "github.com/shorebytelabs/nailsbyabri-sub001/internal/services"

var (
	// ErrPricingInvalidInput signals malformed pricing input such as non-positive quantities.
	ErrPricingInvalidInput = newKindError(ErrValidation, "pricing: invalid input")
	// ErrPricingEmptyOrder is returned when no nail sets are supplied.
	ErrPricingEmptyOrder = newKindError(ErrValidation, "pricing: order has no nail sets")
	// ErrPricingUnknownShape is returned when a set references a shape missing from the catalog.
	ErrPricingUnknownShape = newKindError(ErrNotFound, "pricing: unknown shape")
	// ErrPricingUnknownMethod is returned when the fulfillment method has no catalog entry.
	ErrPricingUnknownMethod = newKindError(ErrValidation, "pricing: unknown fulfillment method")
	// ErrPricingCatalogUnavailable wraps catalog read failures.
	ErrPricingCatalogUnavailable = newKindError(ErrUpstream, "pricing: catalog unavailable")
)

// SetupFeeMode selects how the design setup fee scales with quantity.
type SetupFeeMode string

const (
	// SetupFeePerUnit charges the setup fee once per produced set unit.
	SetupFeePerUnit SetupFeeMode = "per_unit"
	// SetupFeeFlat charges the setup fee once per nail set line.
	SetupFeeFlat SetupFeeMode = "flat"
)

// ParseSetupFeeMode converts a configuration value into a SetupFeeMode.
func ParseSetupFeeMode(value string) (SetupFeeMode, error) {
	switch SetupFeeMode(strings.ToLower(strings.TrimSpace(value))) {
	case "", SetupFeePerUnit:
		return SetupFeePerUnit, nil
	case SetupFeeFlat:
		return SetupFeeFlat, nil
	default:
		return "", fmt.Errorf("unknown setup fee mode %q", value)
	}
}

// PricingRules are the store-wide constants applied by ComputeBreakdown.
type PricingRules struct {
	Currency     string
	SetupFee     int64
	SetupFeeMode SetupFeeMode
	Location     *time.Location
}

func (r PricingRules) normalized() PricingRules {
	if strings.TrimSpace(r.Currency) == "" {
		r.Currency = "USD"
	}
	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))
	if r.SetupFeeMode == "" {
		r.SetupFeeMode = SetupFeePerUnit
	}
	if r.Location == nil {
		r.Location = time.UTC
	}
	return r
}

// ComputeBreakdown prices the input against a catalog snapshot. It performs no I/O.
func ComputeBreakdown(catalog Catalog, rules PricingRules, input PricingInput) (PriceBreakdown, error) {
	rules = rules.normalized()
	if len(input.NailSets) == 0 {
		return PriceBreakdown{}, ErrPricingEmptyOrder
	}
	if rules.SetupFee < 0 {
		return PriceBreakdown{}, fmt.Errorf("%w: setup fee must be non-negative", ErrPricingInvalidInput)
	}

	breakdown := PriceBreakdown{
		Currency: rules.Currency,
		Items:    make([]LineItem, 0, len(input.NailSets)+2),
	}

	var subtotal int64
	for i, set := range input.NailSets {
		if set.Quantity < 1 {
			return PriceBreakdown{}, fmt.Errorf("%w: set %d quantity must be at least 1", ErrPricingInvalidInput, i+1)
		}
		shapeID := strings.TrimSpace(set.ShapeID)
		shape, ok := catalog.Shapes[shapeID]
		if !ok || shapeID == "" {
			return PriceBreakdown{}, fmt.Errorf("%w: %q", ErrPricingUnknownShape, set.ShapeID)
		}
		if shape.BasePrice < 0 {
			return PriceBreakdown{}, fmt.Errorf("%w: shape %q has a negative price", ErrPricingInvalidInput, shapeID)
		}

		qty := int64(set.Quantity)
		amount, ok := mulAmount(shape.BasePrice, qty)
		if !ok {
			return PriceBreakdown{}, fmt.Errorf("%w: set %d amount overflows", ErrPricingInvalidInput, i+1)
		}
		if rules.SetupFee > 0 && chargesSetupFee(set) {
			fee := rules.SetupFee
			if rules.SetupFeeMode == SetupFeePerUnit {
				if fee, ok = mulAmount(rules.SetupFee, qty); !ok {
					return PriceBreakdown{}, fmt.Errorf("%w: set %d setup fee overflows", ErrPricingInvalidInput, i+1)
				}
			}
			if amount, ok = addAmount(amount, fee); !ok {
				return PriceBreakdown{}, fmt.Errorf("%w: set %d amount overflows", ErrPricingInvalidInput, i+1)
			}
		}

		breakdown.Items = append(breakdown.Items, LineItem{
			ID:     lineItemID(set, i),
			Label:  setLabel(set, shape),
			Kind:   domain.LineItemKindSet,
			Amount: amount,
		})
		if subtotal, ok = addAmount(subtotal, amount); !ok {
			return PriceBreakdown{}, fmt.Errorf("%w: subtotal overflows", ErrPricingInvalidInput)
		}
	}

	method, ok := catalog.DeliveryMethods[input.Fulfillment.Method]
	if !ok {
		return PriceBreakdown{}, fmt.Errorf("%w: %q", ErrPricingUnknownMethod, input.Fulfillment.Method)
	}
	tier, fallback, err := resolveTier(method, input.Fulfillment.Speed)
	if err != nil {
		return PriceBreakdown{}, err
	}
	if tier.Fee < 0 {
		return PriceBreakdown{}, fmt.Errorf("%w: tier %q has a negative fee", ErrPricingInvalidInput, tier.Name)
	}
	if tier.Fee > 0 {
		breakdown.Items = append(breakdown.Items, LineItem{
			ID:     "delivery",
			Label:  deliveryLabel(method, tier),
			Kind:   domain.LineItemKindDelivery,
			Amount: tier.Fee,
		})
		if subtotal, ok = addAmount(subtotal, tier.Fee); !ok {
			return PriceBreakdown{}, fmt.Errorf("%w: subtotal overflows", ErrPricingInvalidInput)
		}
	}
	breakdown.Subtotal = subtotal
	breakdown.Tier = tier.Name
	breakdown.TierFallback = fallback

	if input.Discount != nil && input.Discount.Amount != 0 {
		if input.Discount.Amount < 0 {
			return PriceBreakdown{}, fmt.Errorf("%w: discount must be non-negative", ErrPricingInvalidInput)
		}
		discount := input.Discount.Amount
		if discount > subtotal {
			discount = subtotal
		}
		breakdown.Discount = discount
		breakdown.Items = append(breakdown.Items, LineItem{
			ID:     "promo",
			Label:  promoLabel(*input.Discount),
			Kind:   domain.LineItemKindPromo,
			Amount: -discount,
		})
	}
	breakdown.Total = subtotal - breakdown.Discount
	if breakdown.Total < 0 {
		breakdown.Total = 0
	}

	breakdown.EstimatedCompletionDays = tier.Days
	if !input.ReferenceDate.IsZero() {
		breakdown.EstimatedCompletionDate = estimatedCompletion(input.ReferenceDate, tier.Days, rules.Location)
	}
	return breakdown, nil
}

func chargesSetupFee(set NailSet) bool {
	return len(set.DesignUploads) > 0 || strings.TrimSpace(set.Description) != ""
}

func lineItemID(set NailSet, index int) string {
	if id := strings.TrimSpace(set.ID); id != "" {
		return id
	}
	return fmt.Sprintf("set-%d", index+1)
}

func setLabel(set NailSet, shape domain.Shape) string {
	name := strings.TrimSpace(set.Name)
	if name == "" {
		name = strings.TrimSpace(shape.Name)
	}
	if name == "" {
		name = shape.ID
	}
	unit := "sets"
	if set.Quantity == 1 {
		unit = "set"
	}
	return fmt.Sprintf("%s Set (%d %s)", name, set.Quantity, unit)
}

func resolveTier(method domain.DeliveryMethod, requested string) (domain.DeliveryTier, bool, error) {
	name := strings.ToLower(strings.TrimSpace(requested))
	if tier, ok := method.Tiers[name]; ok && name != "" {
		if tier.Name == "" {
			tier.Name = name
		}
		return tier, false, nil
	}
	fallback := strings.ToLower(strings.TrimSpace(method.DefaultTier))
	tier, ok := method.Tiers[fallback]
	if !ok {
		return domain.DeliveryTier{}, false, fmt.Errorf("%w: method %q has no default tier", ErrPricingUnknownMethod, method.Method)
	}
	if tier.Name == "" {
		tier.Name = fallback
	}
	return tier, true, nil
}

func deliveryLabel(method domain.DeliveryMethod, tier domain.DeliveryTier) string {
	methodLabel := strings.TrimSpace(method.Label)
	if methodLabel == "" {
		methodLabel = capitalize(string(method.Method))
	}
	tierLabel := strings.TrimSpace(tier.Label)
	if tierLabel == "" {
		tierLabel = tier.Name
	}
	return fmt.Sprintf("%s (%s)", methodLabel, tierLabel)
}

func promoLabel(discount DiscountInput) string {
	if desc := strings.TrimSpace(discount.Description); desc != "" {
		return desc
	}
	if code := strings.TrimSpace(discount.Code); code != "" {
		return "Promo " + strings.ToUpper(code)
	}
	return "Promo"
}

func estimatedCompletion(reference time.Time, days int, loc *time.Location) time.Time {
	local := reference.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return midnight.AddDate(0, 0, days).UTC()
}

func capitalize(value string) string {
	if value == "" {
		return value
	}
	return strings.ToUpper(value[:1]) + value[1:]
}

func mulAmount(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > math.MaxInt64/b {
		return 0, false
	}
	return a * b, true
}

func addAmount(a, b int64) (int64, bool) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, false
	}
	return a + b, true
}

type pricingService struct {
	catalog  repositories.CatalogRepository
	rules    PricingRules
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)
	cache    *catalogCache
	fallback metric.Int64Counter
}

// PricingServiceDeps wires the catalog reader and store rules into the pricing service.
type PricingServiceDeps struct {
	Catalog  repositories.CatalogRepository
	Rules    PricingRules
	CacheTTL time.Duration
	Clock    func() time.Time
	Logger   func(context.Context, string, map[string]any)
	Meter    metric.Meter
}

// NewPricingService constructs a PricingService that reads the catalog through a TTL cache.
func NewPricingService(deps PricingServiceDeps) (PricingService, error) {
	if deps.Catalog == nil {
		return nil, errors.New("pricing service: catalog repository is required")
	}
	rules := deps.Rules.normalized()
	if rules.SetupFee < 0 {
		return nil, errors.New("pricing service: setup fee must be non-negative")
	}
	if rules.SetupFeeMode != SetupFeePerUnit && rules.SetupFeeMode != SetupFeeFlat {
		return nil, fmt.Errorf("pricing service: unknown setup fee mode %q", rules.SetupFeeMode)
	}
	ttl := deps.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(instrumentationName)
	}
	counter, err := meter.Int64Counter("pricing.tier_fallbacks",
		metric.WithDescription("Quotes that resolved to a method's default tier"))
	if err != nil {
		return nil, fmt.Errorf("pricing service: create counter: %w", err)
	}

	utcNow := func() time.Time { return now().UTC() }
	return &pricingService{
		catalog:  deps.Catalog,
		rules:    rules,
		now:      utcNow,
		logger:   logger,
		cache:    newCatalogCache(ttl, utcNow),
		fallback: counter,
	}, nil
}

func (s *pricingService) Quote(ctx context.Context, input PricingInput) (PriceBreakdown, error) {
	if len(input.NailSets) == 0 {
		return PriceBreakdown{}, ErrPricingEmptyOrder
	}
	catalog, err := s.loadCatalog(ctx, input.NailSets)
	if err != nil {
		return PriceBreakdown{}, err
	}
	if input.ReferenceDate.IsZero() {
		input.ReferenceDate = s.now()
	}

	breakdown, err := ComputeBreakdown(catalog, s.rules, input)
	if err != nil {
		return PriceBreakdown{}, err
	}
	if breakdown.TierFallback {
		s.logger(ctx, "pricing.tier_fallback", map[string]any{
			"method":        string(input.Fulfillment.Method),
			"requestedTier": input.Fulfillment.Speed,
			"resolvedTier":  breakdown.Tier,
		})
		s.fallback.Add(ctx, 1, metric.WithAttributes(
			attribute.String("method", string(input.Fulfillment.Method)),
		))
	}
	return breakdown, nil
}

func (s *pricingService) loadCatalog(ctx context.Context, sets []NailSet) (Catalog, error) {
	catalog := Catalog{Shapes: make(map[string]domain.Shape, len(sets))}
	for _, set := range sets {
		id := strings.TrimSpace(set.ShapeID)
		if id == "" {
			return Catalog{}, fmt.Errorf("%w: shape reference is required", ErrPricingUnknownShape)
		}
		if _, ok := catalog.Shapes[id]; ok {
			continue
		}
		if shape, ok := s.cache.Shape(id); ok {
			catalog.Shapes[id] = shape
			continue
		}
		shape, err := s.catalog.GetShape(ctx, id)
		if err != nil {
			if repositories.IsNotFound(err) {
				return Catalog{}, fmt.Errorf("%w: %q", ErrPricingUnknownShape, id)
			}
			return Catalog{}, fmt.Errorf("%w: %v", ErrPricingCatalogUnavailable, err)
		}
		s.cache.PutShape(id, shape)
		catalog.Shapes[id] = shape
	}

	methods, ok := s.cache.DeliveryMethods()
	if !ok {
		loaded, err := s.catalog.DeliveryMethods(ctx)
		if err != nil {
			return Catalog{}, fmt.Errorf("%w: %v", ErrPricingCatalogUnavailable, err)
		}
		s.cache.PutDeliveryMethods(loaded)
		methods = loaded
	}
	catalog.DeliveryMethods = methods
	return catalog, nil
}

type catalogCache struct {
	ttl     time.Duration
	now     func() time.Time
	mu      sync.RWMutex
	shapes  map[string]shapeCacheEntry
	methods *methodsCacheEntry
}

type shapeCacheEntry struct {
	shape   domain.Shape
	expires time.Time
}

type methodsCacheEntry struct {
	methods map[domain.FulfillmentMethod]domain.DeliveryMethod
	expires time.Time
}

func newCatalogCache(ttl time.Duration, now func() time.Time) *catalogCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &catalogCache{
		ttl:    ttl,
		now:    now,
		shapes: make(map[string]shapeCacheEntry),
	}
}

func (c *catalogCache) Shape(id string) (domain.Shape, bool) {
	c.mu.RLock()
	entry, ok := c.shapes[id]
	c.mu.RUnlock()
	if !ok {
		return domain.Shape{}, false
	}
	if c.now().After(entry.expires) {
		c.mu.Lock()
		delete(c.shapes, id)
		c.mu.Unlock()
		return domain.Shape{}, false
	}
	return entry.shape, true
}

func (c *catalogCache) PutShape(id string, shape domain.Shape) {
	c.mu.Lock()
	c.shapes[id] = shapeCacheEntry{shape: shape, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *catalogCache) DeliveryMethods() (map[domain.FulfillmentMethod]domain.DeliveryMethod, bool) {
	c.mu.RLock()
	entry := c.methods
	c.mu.RUnlock()
	if entry == nil || c.now().After(entry.expires) {
		return nil, false
	}
	return entry.methods, true
}

func (c *catalogCache) PutDeliveryMethods(methods map[domain.FulfillmentMethod]domain.DeliveryMethod) {
	c.mu.Lock()
	c.methods = &methodsCacheEntry{methods: methods, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}
