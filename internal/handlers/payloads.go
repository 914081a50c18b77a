package handlers

import (
	"time"

	domain "github.com/shorebytelabs/nailsbyabri-sub001/internal/domain"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/services"
)

type sizesRequest struct {
	Mode   string            `json:"mode"`
	Values map[string]string `json:"values"`
}

type nailSetRequest struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	ShapeID          string       `json:"shapeId"`
	Quantity         int          `json:"quantity"`
	Description      string       `json:"description"`
	DesignUploads    []string     `json:"designUploads"`
	Sizes            sizesRequest `json:"sizes"`
	RequiresFollowUp bool         `json:"requiresFollowUp"`
}

type addressPayload struct {
	Recipient  string `json:"recipient"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

type fulfillmentPayload struct {
	Method  string          `json:"method"`
	Speed   string          `json:"speed,omitempty"`
	Address *addressPayload `json:"address,omitempty"`
}

type cartRequest struct {
	NailSets    []nailSetRequest   `json:"nailSets"`
	Fulfillment fulfillmentPayload `json:"fulfillment"`
}

func (c cartRequest) nailSets() []domain.NailSet {
	sets := make([]domain.NailSet, 0, len(c.NailSets))
	for _, set := range c.NailSets {
		sets = append(sets, domain.NailSet{
			ID:               trimmed(set.ID),
			Name:             set.Name,
			ShapeID:          trimmed(set.ShapeID),
			Quantity:         set.Quantity,
			Description:      set.Description,
			DesignUploads:    append([]string(nil), set.DesignUploads...),
			Sizes:            domain.SizeSpec{Mode: domain.SizeMode(trimmed(set.Sizes.Mode)), Values: set.Sizes.Values},
			RequiresFollowUp: set.RequiresFollowUp,
		})
	}
	return sets
}

func (c cartRequest) fulfillment() domain.FulfillmentSelection {
	selection := domain.FulfillmentSelection{
		Method: domain.FulfillmentMethod(trimmed(c.Fulfillment.Method)),
		Speed:  trimmed(c.Fulfillment.Speed),
	}
	if addr := c.Fulfillment.Address; addr != nil {
		selection.Address = &domain.ShippingAddress{
			Recipient:  addr.Recipient,
			Line1:      addr.Line1,
			Line2:      addr.Line2,
			City:       addr.City,
			State:      addr.State,
			PostalCode: addr.PostalCode,
			Country:    addr.Country,
			Phone:      addr.Phone,
		}
	}
	return selection
}

type lineItemPayload struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Kind      string `json:"kind"`
	Amount    int64  `json:"amount"`
	Formatted string `json:"formatted"`
}

type pricingPayload struct {
	Currency                string            `json:"currency"`
	Items                   []lineItemPayload `json:"items"`
	Subtotal                int64             `json:"subtotal"`
	Discount                int64             `json:"discount"`
	Total                   int64             `json:"total"`
	TotalFormatted          string            `json:"totalFormatted"`
	Tier                    string            `json:"tier,omitempty"`
	TierFallback            bool              `json:"tierFallback,omitempty"`
	EstimatedCompletionDays int               `json:"estimatedCompletionDays"`
	EstimatedCompletionDate string            `json:"estimatedCompletionDate,omitempty"`
}

func buildPricingPayload(b domain.PriceBreakdown) pricingPayload {
	items := make([]lineItemPayload, 0, len(b.Items))
	for _, item := range b.Items {
		items = append(items, lineItemPayload{
			ID:        item.ID,
			Label:     item.Label,
			Kind:      string(item.Kind),
			Amount:    item.Amount,
			Formatted: domain.FormatAmount(item.Amount, b.Currency),
		})
	}
	payload := pricingPayload{
		Currency:                b.Currency,
		Items:                   items,
		Subtotal:                b.Subtotal,
		Discount:                b.Discount,
		Total:                   b.Total,
		TotalFormatted:          domain.FormatAmount(b.Total, b.Currency),
		Tier:                    b.Tier,
		TierFallback:            b.TierFallback,
		EstimatedCompletionDays: b.EstimatedCompletionDays,
	}
	if !b.EstimatedCompletionDate.IsZero() {
		payload.EstimatedCompletionDate = b.EstimatedCompletionDate.Format(time.DateOnly)
	}
	return payload
}

type nailSetPayload struct {
	ID               string            `json:"id"`
	Name             string            `json:"name,omitempty"`
	ShapeID          string            `json:"shapeId"`
	Quantity         int               `json:"quantity"`
	Description      string            `json:"description,omitempty"`
	DesignUploads    []string          `json:"designUploads,omitempty"`
	SizeMode         string            `json:"sizeMode,omitempty"`
	Sizes            map[string]string `json:"sizes,omitempty"`
	RequiresFollowUp bool              `json:"requiresFollowUp,omitempty"`
}

type productionJobPayload struct {
	ID        string  `json:"id"`
	NailSetID string  `json:"nailSetId"`
	ShapeID   string  `json:"shapeId"`
	Quantity  int     `json:"quantity"`
	Status    string  `json:"status"`
	DueDate   *string `json:"dueDate,omitempty"`
}

type orderPayload struct {
	ID                       string                 `json:"id"`
	UserID                   string                 `json:"userId"`
	Status                   string                 `json:"status"`
	NailSets                 []nailSetPayload       `json:"nailSets"`
	Fulfillment              fulfillmentPayload     `json:"fulfillment"`
	Pricing                  pricingPayload         `json:"pricing"`
	PromoCode                string                 `json:"promoCode,omitempty"`
	PaymentIntentID          *string                `json:"paymentIntentId,omitempty"`
	Notes                    string                 `json:"notes,omitempty"`
	CapacityWeek             *string                `json:"capacityWeek,omitempty"`
	EstimatedFulfillmentDate *string                `json:"estimatedFulfillmentDate,omitempty"`
	ProductionJobs           []productionJobPayload `json:"productionJobs,omitempty"`
	CancelReason             string                 `json:"cancelReason,omitempty"`
	CreatedAt                string                 `json:"createdAt"`
	UpdatedAt                string                 `json:"updatedAt"`
	SubmittedAt              *string                `json:"submittedAt,omitempty"`
	PaidAt                   *string                `json:"paidAt,omitempty"`
	CompletedAt              *string                `json:"completedAt,omitempty"`
	CancelledAt              *string                `json:"cancelledAt,omitempty"`
}

func buildOrderPayload(order services.Order) orderPayload {
	sets := make([]nailSetPayload, 0, len(order.NailSets))
	for _, set := range order.NailSets {
		sets = append(sets, nailSetPayload{
			ID:               set.ID,
			Name:             set.Name,
			ShapeID:          set.ShapeID,
			Quantity:         set.Quantity,
			Description:      set.Description,
			DesignUploads:    set.DesignUploads,
			SizeMode:         string(set.Sizes.Mode),
			Sizes:            set.Sizes.Values,
			RequiresFollowUp: set.RequiresFollowUp,
		})
	}

	fulfillment := fulfillmentPayload{
		Method: string(order.Fulfillment.Method),
		Speed:  order.Fulfillment.Speed,
	}
	if addr := order.Fulfillment.Address; addr != nil {
		fulfillment.Address = &addressPayload{
			Recipient:  addr.Recipient,
			Line1:      addr.Line1,
			Line2:      addr.Line2,
			City:       addr.City,
			State:      addr.State,
			PostalCode: addr.PostalCode,
			Country:    addr.Country,
			Phone:      addr.Phone,
		}
	}

	var jobs []productionJobPayload
	for _, job := range order.ProductionJobs {
		jobs = append(jobs, productionJobPayload{
			ID:        job.ID,
			NailSetID: job.NailSetID,
			ShapeID:   job.ShapeID,
			Quantity:  job.Quantity,
			Status:    string(job.Status),
			DueDate:   formatDate(job.DueDate),
		})
	}

	return orderPayload{
		ID:                       order.ID,
		UserID:                   order.UserID,
		Status:                   string(order.Status),
		NailSets:                 sets,
		Fulfillment:              fulfillment,
		Pricing:                  buildPricingPayload(order.Pricing),
		PromoCode:                order.PromoCode,
		PaymentIntentID:          order.PaymentIntentID,
		Notes:                    order.Notes,
		CapacityWeek:             formatDate(order.CapacityWeek),
		EstimatedFulfillmentDate: formatDate(order.EstimatedFulfillmentDate),
		ProductionJobs:           jobs,
		CancelReason:             order.CancelReason,
		CreatedAt:                formatTime(order.CreatedAt),
		UpdatedAt:                formatTime(order.UpdatedAt),
		SubmittedAt:              formatTimePtr(order.SubmittedAt),
		PaidAt:                   formatTimePtr(order.PaidAt),
		CompletedAt:              formatTimePtr(order.CompletedAt),
		CancelledAt:              formatTimePtr(order.CancelledAt),
	}
}

type capacityPayload struct {
	Available     bool   `json:"available"`
	Remaining     int    `json:"remaining"`
	Capacity      int    `json:"capacity"`
	OrdersCount   int    `json:"ordersCount"`
	WeekStart     string `json:"weekStart"`
	NextWeekStart string `json:"nextWeekStart"`
	AlmostFull    bool   `json:"almostFull"`
	Degraded      bool   `json:"degraded,omitempty"`
}

func buildCapacityPayload(status domain.CapacityStatus) capacityPayload {
	return capacityPayload{
		Available:     status.Available,
		Remaining:     status.Remaining,
		Capacity:      status.Capacity,
		OrdersCount:   status.OrdersCount,
		WeekStart:     status.WeekStart.Format(time.DateOnly),
		NextWeekStart: status.NextWeekStart.Format(time.DateOnly),
		AlmostFull:    status.AlmostFull,
		Degraded:      status.Degraded,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	value := formatTime(*t)
	return &value
}

func formatDate(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	value := t.UTC().Format(time.DateOnly)
	return &value
}
