package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/shorebytelabs/nailsbyabri-sub001/internal/payments"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/platform/config"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/platform/observability"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/repositories"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Pricing    services.PricingService
	Promotions services.PromotionService
	Capacity   services.CapacityService
	Orders     services.OrderService
	System     services.SystemService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services

	closers []func(context.Context) error
}

// Option customises container construction.
type Option func(*options)

type options struct {
	payments services.PaymentProcessor
	events   services.OrderEventPublisher
	logger   *zap.Logger
	meter    metric.Meter
	clock    func() time.Time
	build    services.BuildInfo
	closers  []func(context.Context) error
}

// WithPaymentProcessor supplies the PSP used by the order lifecycle. Without it payment
// initiation reports the PSP as unavailable.
func WithPaymentProcessor(processor services.PaymentProcessor) Option {
	return func(o *options) {
		if processor != nil {
			o.payments = processor
		}
	}
}

// WithOrderEvents publishes order lifecycle transitions.
func WithOrderEvents(publisher services.OrderEventPublisher) Option {
	return func(o *options) {
		o.events = publisher
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithMeter(meter metric.Meter) Option {
	return func(o *options) {
		if meter != nil {
			o.meter = meter
		}
	}
}

// WithClock overrides the wall clock for every service; tests pin it.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

func WithBuildInfo(build services.BuildInfo) Option {
	return func(o *options) {
		o.build = build
	}
}

// WithCloser registers a hook run by Close after the repositories shut down, in reverse order.
func WithCloser(fn func(context.Context) error) Option {
	return func(o *options) {
		if fn != nil {
			o.closers = append(o.closers, fn)
		}
	}
}

// NewContainer constructs the runtime dependencies over the given repository registry.
func NewContainer(cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	o := options{
		payments: unconfiguredPayments{},
		logger:   zap.NewNop(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	svc, err := buildServices(cfg, reg, o)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
		closers:      o.closers,
	}, nil
}

// Close releases the repositories and then every registered closer. All hooks run; the first
// error is returned.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Repositories != nil {
		if err := c.Repositories.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close repositories: %w", err))
		}
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs[0]
}

func buildServices(cfg config.Config, reg repositories.Registry, o options) (Services, error) {
	var svc Services

	location, err := cfg.Studio.Location()
	if err != nil {
		return Services{}, fmt.Errorf("studio timezone: %w", err)
	}
	setupMode, err := services.ParseSetupFeeMode(cfg.Pricing.SetupFeeMode)
	if err != nil {
		return Services{}, fmt.Errorf("pricing setup fee mode: %w", err)
	}

	pricingSvc, err := services.NewPricingService(services.PricingServiceDeps{
		Catalog: reg.Catalog(),
		Rules: services.PricingRules{
			Currency:     cfg.Pricing.Currency,
			SetupFee:     cfg.Pricing.SetupFee,
			SetupFeeMode: setupMode,
			Location:     location,
		},
		CacheTTL: cfg.Catalog.CacheTTL,
		Clock:    o.clock,
		Logger:   observability.EventLogger(o.logger.Named("pricing")),
		Meter:    o.meter,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing service: %w", err)
	}
	svc.Pricing = pricingSvc

	promotionSvc, err := services.NewPromotionService(services.PromotionServiceDeps{
		Promotions: reg.Promotions(),
		Usage:      reg.PromotionUsage(),
		Pricing:    pricingSvc,
		UnitOfWork: reg,
		Clock:      o.clock,
		Logger:     observability.EventLogger(o.logger.Named("promotions")),
		Meter:      o.meter,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build promotion service: %w", err)
	}
	svc.Promotions = promotionSvc

	capacitySvc, err := services.NewCapacityService(services.CapacityServiceDeps{
		Repository:          reg.Capacity(),
		DefaultCapacity:     cfg.Capacity.DefaultWeekly,
		AlmostFullThreshold: cfg.Capacity.AlmostFullThreshold,
		MaxRetries:          cfg.Capacity.MaxRetries,
		Location:            location,
		Clock:               o.clock,
		Logger:              observability.EventLogger(o.logger.Named("capacity")),
		Meter:               o.meter,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build capacity service: %w", err)
	}
	svc.Capacity = capacitySvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Jobs:       reg.ProductionJobs(),
		Pricing:    pricingSvc,
		Promotions: promotionSvc,
		Capacity:   capacitySvc,
		Payments:   o.payments,
		UnitOfWork: reg,
		Clock:      o.clock,
		Events:     o.events,
		Logger:     observability.EventLogger(o.logger.Named("orders")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: reg.Health(),
		Capacity:         capacitySvc,
		Clock:            o.clock,
		Build:            o.build,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}
	svc.System = systemSvc

	return svc, nil
}

var errPaymentsNotConfigured = errors.New("payments: no provider configured")

// unconfiguredPayments stands in when no PSP credentials are present so the rest of the order
// lifecycle keeps working; payment calls surface as upstream failures.
type unconfiguredPayments struct{}

func (unconfiguredPayments) CreateIntent(context.Context, payments.PaymentContext, payments.IntentRequest) (payments.Intent, error) {
	return payments.Intent{}, errPaymentsNotConfigured
}

func (unconfiguredPayments) GetIntent(context.Context, payments.PaymentContext, string) (payments.Intent, error) {
	return payments.Intent{}, errPaymentsNotConfigured
}

func (unconfiguredPayments) CancelIntent(context.Context, payments.PaymentContext, string) (payments.Intent, error) {
	return payments.Intent{}, errPaymentsNotConfigured
}
