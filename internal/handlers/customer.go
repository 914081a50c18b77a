package handlers

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/shorebytelabs/nailsbyabri-sub001/internal/platform/observability"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/platform/requestctx"
)

// CustomerHeader carries the customer identity forwarded by the storefront backend. It is trusted
// as-is; authentication happens upstream.
const CustomerHeader = "X-Customer-ID"

const maxCustomerIDLength = 128

// CustomerMiddleware copies the forwarded customer identity into the request context and tags
// the request logger with it.
func CustomerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(CustomerHeader))
		if id != "" && len(id) <= maxCustomerIDLength {
			ctx := requestctx.WithCustomerID(r.Context(), id)
			logger := observability.FromContext(ctx).With(zap.String("customer_id", observability.SanitizeCustomerID(id)))
			r = r.WithContext(observability.WithLogger(ctx, logger))
		}
		next.ServeHTTP(w, r)
	})
}

func customerFromContext(ctx context.Context) string {
	id, _ := requestctx.CustomerID(ctx)
	return id
}

// visibleTo hides orders that belong to another customer. Requests without a customer identity
// are internal callers and see everything.
func visibleTo(ctx context.Context, ownerID string) bool {
	customer := customerFromContext(ctx)
	return customer == "" || customer == ownerID
}
