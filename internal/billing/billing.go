// Package billing applies subscription lifecycle events to the auth
// store. Events follow the processor's webhook shape; the fake checkout
// short-circuits the processor for local and demo setups.
package billing

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"wallet-radar/internal/auth"
	"wallet-radar/internal/metrics"
)

// Event is a billing webhook payload
type Event struct {
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

// EventData is the subscription object carried by the event
type EventData struct {
	ID       string     `json:"id"`
	Customer string     `json:"customer"`
	Status   string     `json:"status"`
	Items    []LineItem `json:"items"`
	Metadata Metadata   `json:"metadata"`
}

// LineItem carries the priced plan of a subscription
type LineItem struct {
	Price Price `json:"price"`
}

// Price identifies a plan by processor price id
type Price struct {
	ID string `json:"id"`
}

// Metadata holds free-form subscription metadata
type Metadata struct {
	Tier string `json:"tier"`
}

// priceTiers maps processor price ids to tiers. A recognized price id
// wins over the metadata tier.
var priceTiers = map[string]string{
	"price_free":  auth.TierFree,
	"price_pro":   auth.TierPro,
	"price_elite": auth.TierElite,
}

// tier resolves the target tier from price id then metadata
func (d EventData) tier() string {
	if len(d.Items) > 0 {
		if t, ok := priceTiers[d.Items[0].Price.ID]; ok {
			return t
		}
	}
	return normalizeTier(d.Metadata.Tier)
}

// Result reports what an event produced. APIKey is set only when a new
// key was minted and is never recoverable afterwards.
type Result struct {
	Handled        bool   `json:"handled"`
	SubscriptionID string `json:"subscription_id,omitempty"`
	Tier           string `json:"tier,omitempty"`
	Status         string `json:"status,omitempty"`
	APIKey         string `json:"api_key,omitempty"`
}

// Service handles billing events
type Service struct {
	store   *auth.Store
	metrics *metrics.Metrics
}

// NewService creates the billing service. metrics may be nil.
func NewService(store *auth.Store, m *metrics.Metrics) *Service {
	return &Service{store: store, metrics: m}
}

// HandleEvent applies one webhook event. Unknown event types are
// acknowledged without effect so the processor does not retry them.
func (s *Service) HandleEvent(ev Event) (*Result, error) {
	if s.metrics != nil {
		s.metrics.BillingWebhooks.WithLabelValues(ev.Type).Inc()
	}

	switch ev.Type {
	case "customer.subscription.created":
		return s.created(ev.Data)
	case "customer.subscription.updated":
		return s.updated(ev.Data)
	case "customer.subscription.deleted":
		return s.deleted(ev.Data)
	default:
		log.Debug().Str("type", ev.Type).Msg("ignoring billing event")
		return &Result{Handled: false}, nil
	}
}

func (s *Service) created(data EventData) (*Result, error) {
	tier := data.tier()

	key, keyID, err := s.store.CreateKey(tier, 0)
	if err != nil {
		return nil, fmt.Errorf("mint key: %w", err)
	}
	if err := s.store.UpsertSubscription(data.ID, data.Customer, tier, "active", keyID); err != nil {
		return nil, fmt.Errorf("record subscription: %w", err)
	}

	s.refreshGauges()
	log.Info().Str("subscription", data.ID).Str("tier", tier).Msg("subscription created")
	return &Result{Handled: true, SubscriptionID: data.ID, Tier: tier, Status: "active", APIKey: key}, nil
}

func (s *Service) updated(data EventData) (*Result, error) {
	sub, err := s.store.GetSubscription(data.ID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return &Result{Handled: false}, nil
	}

	tier := data.tier()
	status := data.Status
	if status == "" {
		status = "active"
	}
	if err := s.store.UpsertSubscription(data.ID, sub.CustomerID, tier, status, sub.APIKeyID.Int64); err != nil {
		return nil, err
	}
	if sub.APIKeyID.Valid {
		if err := s.store.SetKeyTier(sub.APIKeyID.Int64, tier); err != nil {
			return nil, err
		}
	}

	s.refreshGauges()
	log.Info().Str("subscription", data.ID).Str("tier", tier).Msg("subscription updated")
	return &Result{Handled: true, SubscriptionID: data.ID, Tier: tier, Status: status}, nil
}

func (s *Service) deleted(data EventData) (*Result, error) {
	sub, err := s.store.GetSubscription(data.ID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return &Result{Handled: false}, nil
	}

	if err := s.store.UpsertSubscription(data.ID, sub.CustomerID, sub.Tier, "cancelled", sub.APIKeyID.Int64); err != nil {
		return nil, err
	}
	if sub.APIKeyID.Valid {
		if err := s.store.DeactivateKey(sub.APIKeyID.Int64); err != nil {
			return nil, err
		}
	}

	s.refreshGauges()
	log.Info().Str("subscription", data.ID).Msg("subscription cancelled")
	return &Result{Handled: true, SubscriptionID: data.ID, Tier: sub.Tier, Status: "cancelled"}, nil
}

// FakeCheckout simulates a completed checkout without the processor.
// Guarded by config; returns the minted key.
func (s *Service) FakeCheckout(email, tier string) (*Result, error) {
	subID := fmt.Sprintf("fake_sub_%d", time.Now().UnixNano())
	return s.created(EventData{
		ID:       subID,
		Customer: email,
		Metadata: Metadata{Tier: tier},
	})
}

func (s *Service) refreshGauges() {
	if s.metrics == nil {
		return
	}
	counts, err := s.store.ActiveSubscriptionCounts()
	if err != nil {
		log.Warn().Err(err).Msg("failed to refresh subscription gauges")
		return
	}
	for _, tier := range []string{auth.TierFree, auth.TierPro, auth.TierElite} {
		s.metrics.ActiveSubscriptions.WithLabelValues(tier).Set(float64(counts[tier]))
	}
}

func normalizeTier(tier string) string {
	switch tier {
	case auth.TierPro, auth.TierElite:
		return tier
	default:
		return auth.TierFree
	}
}
