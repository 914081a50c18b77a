package firestore

import (
	"testing"

	domain "github.com/shorebytelabs/nailsbyabri-sub001/internal/domain"
)

func TestShapeFromDocumentDefaultsName(t *testing.T) {
	shape := shapeFromDocument("almond", shapeDocument{BasePrice: 3500})
	if shape.Name != "almond" || shape.BasePrice != 3500 {
		t.Fatalf("unexpected shape %+v", shape)
	}
}

func TestDeliveryMethodFromDocument(t *testing.T) {
	doc := deliveryMethodDocument{
		Label:       "Shipping",
		DefaultTier: "standard",
		Tiers: []deliveryTierDocument{
			{Name: "standard", Label: "Standard", Fee: 500, Days: 10},
			{Name: "priority", Label: "Priority", Fee: 1500, Days: 5},
			{Name: " ", Fee: 1},
		},
	}
	method := deliveryMethodFromDocument("Delivery", doc)
	if method.Method != domain.FulfillmentMethod("delivery") {
		t.Fatalf("expected lower-cased method, got %q", method.Method)
	}
	if len(method.Tiers) != 2 {
		t.Fatalf("expected blank tier to be skipped, got %d tiers", len(method.Tiers))
	}
	if tier := method.Tiers["priority"]; tier.Fee != 1500 || tier.Days != 5 {
		t.Fatalf("unexpected priority tier %+v", tier)
	}
	if method.DefaultTier != "standard" {
		t.Fatalf("unexpected default tier %q", method.DefaultTier)
	}
}

func TestIsActive(t *testing.T) {
	yes, no := true, false
	if !isActive(nil) || !isActive(&yes) || isActive(&no) {
		t.Fatal("active flag semantics changed")
	}
}

func TestDeliveryMethodRoundTripsThroughDocument(t *testing.T) {
	method := domain.DeliveryMethod{
		Method:      domain.FulfillmentMethod("pickup"),
		Label:       "Studio pickup",
		DefaultTier: "standard",
		Tiers: map[string]domain.DeliveryTier{
			"standard": {Name: "standard", Label: "Standard", Fee: 0, Days: 7},
		},
	}
	raw := deliveryMethodToDocument(method)
	tiers, ok := raw["tiers"].([]deliveryTierDocument)
	if !ok || len(tiers) != 1 || tiers[0].Days != 7 {
		t.Fatalf("unexpected encoded tiers %#v", raw["tiers"])
	}
}
