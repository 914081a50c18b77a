package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const defaultProviderKey = "stripe"

// Manager routes calls to a registered provider: an explicit preference first, then the
// currency route, then the default.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	currencyRoutes  map[string]string
}

type ManagerOption func(*Manager)

func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = normaliseKey(provider)
	}
}

// WithCurrencyRoutes pins currencies (ISO codes, any case) to provider keys.
func WithCurrencyRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		for currency, provider := range routes {
			m.currencyRoutes[strings.ToUpper(strings.TrimSpace(currency))] = normaliseKey(provider)
		}
	}
}

func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	m := &Manager{
		providers:      make(map[string]Provider, len(providers)),
		currencyRoutes: map[string]string{},
	}
	for name, provider := range providers {
		key := normaliseKey(name)
		if key == "" || provider == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", name)
		}
		m.providers[key] = provider
	}
	if _, ok := m.providers[defaultProviderKey]; ok {
		m.defaultProvider = defaultProviderKey
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// PaymentContext carries the routing hints for one call.
type PaymentContext struct {
	PreferredProvider string
	Currency          string
}

func (m *Manager) CreateIntent(ctx context.Context, pc PaymentContext, req IntentRequest) (Intent, error) {
	if pc.Currency == "" {
		pc.Currency = req.Currency
	}
	return m.intentCall(pc, func(p Provider) (Intent, error) { return p.CreateIntent(ctx, req) })
}

func (m *Manager) GetIntent(ctx context.Context, pc PaymentContext, intentID string) (Intent, error) {
	return m.intentCall(pc, func(p Provider) (Intent, error) { return p.GetIntent(ctx, intentID) })
}

func (m *Manager) CancelIntent(ctx context.Context, pc PaymentContext, intentID string) (Intent, error) {
	return m.intentCall(pc, func(p Provider) (Intent, error) { return p.CancelIntent(ctx, intentID) })
}

// ParseWebhook verifies payload with the named provider's signing secret.
func (m *Manager) ParseWebhook(providerKey string, payload []byte, signature string) (WebhookEvent, error) {
	key, provider, err := m.route(PaymentContext{PreferredProvider: providerKey})
	if err != nil {
		return WebhookEvent{}, err
	}
	event, err := provider.ParseWebhook(payload, signature)
	if err != nil {
		return WebhookEvent{}, err
	}
	event.Provider = key
	return event, nil
}

func (m *Manager) intentCall(pc PaymentContext, call func(Provider) (Intent, error)) (Intent, error) {
	key, provider, err := m.route(pc)
	if err != nil {
		return Intent{}, err
	}
	intent, err := call(provider)
	if err != nil {
		return Intent{}, err
	}
	intent.Provider = key
	return intent, nil
}

func (m *Manager) route(pc PaymentContext) (string, Provider, error) {
	if m == nil || len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	if preferred := normaliseKey(pc.PreferredProvider); preferred != "" {
		if p, ok := m.providers[preferred]; ok {
			return preferred, p, nil
		}
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, preferred)
	}

	candidates := []string{
		m.currencyRoutes[strings.ToUpper(strings.TrimSpace(pc.Currency))],
		m.defaultProvider,
	}
	for _, key := range candidates {
		if p, ok := m.providers[key]; ok && key != "" {
			return key, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

func normaliseKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
