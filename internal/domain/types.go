package domain

import "time"

// OrderStatus enumerates the lifecycle states of a nail-set order.
type OrderStatus string

const (
	OrderStatusDraft          OrderStatus = "draft"
	OrderStatusSubmitted      OrderStatus = "submitted"
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusCompleted      OrderStatus = "completed"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// SizeMode selects how finger sizes are specified for a set.
type SizeMode string

const (
	SizeModeStandard SizeMode = "standard"
	SizeModePerSet   SizeMode = "perSet"
)

// SizeSpec holds the sizing mode and per-finger values (e.g. "leftThumb": "3").
type SizeSpec struct {
	Mode   SizeMode
	Values map[string]string
}

// NailSet is one produced item group within an order.
type NailSet struct {
	ID               string
	Name             string
	ShapeID          string
	Quantity         int
	Description      string
	DesignUploads    []string
	Sizes            SizeSpec
	RequiresFollowUp bool
}

// HasDesignInput reports whether the set carries any design input the studio can work from.
func (s NailSet) HasDesignInput() bool {
	return len(s.DesignUploads) > 0 || s.Description != "" || s.RequiresFollowUp
}

// FulfillmentMethod enumerates how a finished order reaches the customer.
type FulfillmentMethod string

const (
	FulfillmentPickup   FulfillmentMethod = "pickup"
	FulfillmentDelivery FulfillmentMethod = "delivery"
	FulfillmentShipping FulfillmentMethod = "shipping"
)

// ShippingAddress is the destination for delivery and shipping orders.
type ShippingAddress struct {
	Recipient  string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      string
}

// FulfillmentSelection captures the method, requested speed tier and optional address.
type FulfillmentSelection struct {
	Method  FulfillmentMethod
	Speed   string
	Address *ShippingAddress
}

// LineItemKind distinguishes the rows of a price breakdown.
type LineItemKind string

const (
	LineItemKindSet      LineItemKind = "set"
	LineItemKindDelivery LineItemKind = "delivery"
	LineItemKindPromo    LineItemKind = "promo"
)

// LineItem is a single priced row. Amount is in minor currency units; promo rows are negative.
type LineItem struct {
	ID     string
	Label  string
	Kind   LineItemKind
	Amount int64
}

// PriceBreakdown is the itemised result of pricing an order.
type PriceBreakdown struct {
	Currency                string
	Items                   []LineItem
	Subtotal                int64
	Discount                int64
	Total                   int64
	EstimatedCompletionDays int
	EstimatedCompletionDate time.Time
	Tier                    string
	TierFallback            bool
}

// DeliveryFee returns the amount of the delivery line item, or zero when the tier is free.
func (b PriceBreakdown) DeliveryFee() int64 {
	for _, item := range b.Items {
		if item.Kind == LineItemKindDelivery {
			return item.Amount
		}
	}
	return 0
}

// Shape is a catalog entry supplying the base unit price of a nail shape.
type Shape struct {
	ID        string
	Name      string
	BasePrice int64
}

// DeliveryTier is a fulfillment speed option with its fee and lead time.
type DeliveryTier struct {
	Name  string
	Label string
	Fee   int64
	Days  int
}

// DeliveryMethod lists the tiers offered for a fulfillment method.
type DeliveryMethod struct {
	Method      FulfillmentMethod
	Label       string
	Tiers       map[string]DeliveryTier
	DefaultTier string
}

// Catalog is a read-only snapshot of the catalog tables used for pricing.
type Catalog struct {
	Shapes          map[string]Shape
	DeliveryMethods map[FulfillmentMethod]DeliveryMethod
}

// PromoType enumerates the supported discount calculations.
type PromoType string

const (
	PromoTypePercentage     PromoType = "percentage"
	PromoTypeFixedAmount    PromoType = "fixed_amount"
	PromoTypeFreeShipping   PromoType = "free_shipping"
	PromoTypeFreeOrder      PromoType = "free_order"
	PromoTypeFixedPriceItem PromoType = "fixed_price_item"
)

// PromoCode is an admin-managed discount code. Value is expressed in basis points for
// percentage codes and in minor currency units for amount-based codes.
type PromoCode struct {
	ID             string
	Code           string
	Description    string
	Type           PromoType
	Value          int64
	StartsAt       *time.Time
	EndsAt         *time.Time
	Active         bool
	MinOrderAmount *int64
	MaxUses        *int
	UsesCount      int
	PerUserLimit   *int
	Combinable     bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PromoUsage records that a user consumed a promo code on an order.
type PromoUsage struct {
	ID          string
	PromoCodeID string
	UserID      string
	OrderID     string
	CreatedAt   time.Time
}

// PromoValidation is the outcome of validating a promo code against a cart.
type PromoValidation struct {
	Valid       bool
	Code        string
	PromoCodeID string
	Type        PromoType
	Discount    int64
	Description string
	Subtotal    int64
	NewTotal    int64
	Reason      string
	ReasonCode  string
}

// WeeklyCapacity is the per-week admission counter keyed by the Monday of the week.
type WeeklyCapacity struct {
	WeekStart   time.Time
	Capacity    int
	OrdersCount int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Remaining reports how many more orders the week can admit.
func (w WeeklyCapacity) Remaining() int {
	if w.OrdersCount >= w.Capacity {
		return 0
	}
	return w.Capacity - w.OrdersCount
}

// CapacityStatus describes admission availability for a week.
type CapacityStatus struct {
	Available     bool
	Remaining     int
	Capacity      int
	OrdersCount   int
	WeekStart     time.Time
	NextWeekStart time.Time
	AlmostFull    bool
	Degraded      bool
}

// ProductionJobStatus enumerates studio production states.
type ProductionJobStatus string

const (
	ProductionJobQueued ProductionJobStatus = "queued"
)

// ProductionJob is the studio work item derived from one nail set of a paid order.
type ProductionJob struct {
	ID        string
	OrderID   string
	NailSetID string
	ShapeID   string
	Quantity  int
	Status    ProductionJobStatus
	DueDate   *time.Time
	CreatedAt time.Time
}

// Order aggregates nail sets, fulfillment, pricing, payment linkage and production jobs.
type Order struct {
	ID                       string
	UserID                   string
	Status                   OrderStatus
	NailSets                 []NailSet
	Fulfillment              FulfillmentSelection
	Pricing                  PriceBreakdown
	PromoCode                string
	PromoCodeID              string
	PromoUsageID             string
	PaymentIntentID          *string
	PaymentAmount            int64
	CapacityWeek             *time.Time
	Notes                    string
	EstimatedFulfillmentDate *time.Time
	ProductionJobs           []ProductionJob
	CreatedAt                time.Time
	UpdatedAt                time.Time
	SubmittedAt              *time.Time
	PaymentRequestedAt       *time.Time
	PaidAt                   *time.Time
	CompletedAt              *time.Time
	CancelledAt              *time.Time
	CancelReason             string
}

// SystemHealthStatus enumerates dependency health states.
type SystemHealthStatus string

const (
	HealthStatusOK       SystemHealthStatus = "ok"
	HealthStatusDegraded SystemHealthStatus = "degraded"
	HealthStatusError    SystemHealthStatus = "error"
)

// SystemHealthCheck is the result of probing one dependency.
type SystemHealthCheck struct {
	Status    SystemHealthStatus
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency checks for readiness probes.
type SystemHealthReport struct {
	Status      SystemHealthStatus
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	Checks      map[string]SystemHealthCheck
	GeneratedAt time.Time
}
