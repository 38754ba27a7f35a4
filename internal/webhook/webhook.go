// Package webhook implements the Webhook Registry and Dispatcher
// (spec.md §4.6), ported from original_source's webhooks.py: HMAC-signed
// delivery with bounded retries and a per-webhook ring buffer of recent
// delivery outcomes. The HTTP send itself follows the teacher's
// push_notification_sender.go shape (a plain *http.Client wrapper).
package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/synapse-a2a/synapse/types"
)

// maxDeliveries bounds the per-webhook delivery ring buffer
// (original_source webhooks.py caps this at 100).
const maxDeliveries = 100

// retryDelays is the fixed backoff schedule ported verbatim from
// original_source's deliver_webhook.
var retryDelays = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// Registry tracks webhook subscriptions and their recent delivery history.
type Registry struct {
	mu         sync.Mutex
	webhooks   map[string]types.WebhookSubscription
	deliveries map[string][]types.WebhookDelivery
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		webhooks:   make(map[string]types.WebhookSubscription),
		deliveries: make(map[string][]types.WebhookDelivery),
	}
}

// Register adds a webhook subscription and returns it with its generated id.
func (r *Registry) Register(url, secret string, events []string) (types.WebhookSubscription, error) {
	if url == "" {
		return types.WebhookSubscription{}, fmt.Errorf("webhook url must not be empty")
	}
	if len(events) == 0 {
		events = []string{types.EventTaskCompleted, types.EventTaskFailed}
	}

	sub := types.WebhookSubscription{
		ID:        uuid.New().String(),
		URL:       url,
		Events:    events,
		Secret:    secret,
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.webhooks[sub.ID] = sub
	return sub, nil
}

// Unregister removes a webhook subscription.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.webhooks, id)
	delete(r.deliveries, id)
}

// Get returns one webhook subscription.
func (r *Registry) Get(id string) (types.WebhookSubscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.webhooks[id]
	return sub, ok
}

// List returns all webhook subscriptions.
func (r *Registry) List() []types.WebhookSubscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.WebhookSubscription, 0, len(r.webhooks))
	for _, sub := range r.webhooks {
		out = append(out, sub)
	}
	return out
}

// forEvent returns the enabled webhooks subscribed to eventType.
func (r *Registry) forEvent(eventType string) []types.WebhookSubscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matches []types.WebhookSubscription
	for _, sub := range r.webhooks {
		if !sub.Enabled {
			continue
		}
		for _, e := range sub.Events {
			if e == eventType {
				matches = append(matches, sub)
				break
			}
		}
	}
	return matches
}

// addDelivery records a delivery outcome, capping the ring buffer.
func (r *Registry) addDelivery(webhookID string, d types.WebhookDelivery) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := append(r.deliveries[webhookID], d)
	if len(list) > maxDeliveries {
		list = list[len(list)-maxDeliveries:]
	}
	r.deliveries[webhookID] = list
}

// RecentDeliveries returns the last limit delivery outcomes for a webhook.
func (r *Registry) RecentDeliveries(webhookID string, limit int) []types.WebhookDelivery {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.deliveries[webhookID]
	if limit > 0 && limit < len(list) {
		list = list[len(list)-limit:]
	}
	out := make([]types.WebhookDelivery, len(list))
	copy(out, list)
	return out
}

// computeSignature computes the hex-encoded HMAC-SHA256 signature of
// payload, matching original_source's compute_signature.
func computeSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Dispatcher delivers events to subscribed webhooks.
type Dispatcher struct {
	registry   *Registry
	httpClient *http.Client
	timeout    time.Duration
	maxRetries int
	logger     *zap.Logger
}

// NewDispatcher builds a Dispatcher.
func NewDispatcher(registry *Registry, timeout time.Duration, maxRetries int, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		registry:   registry,
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// Dispatch fans the event out concurrently to every matching webhook,
// isolating one delivery's failure from the others (original_source's
// dispatch_event gather-with-isolation).
func (d *Dispatcher) Dispatch(eventType string, data map[string]any) {
	matches := d.registry.forEvent(eventType)
	if len(matches) == 0 {
		return
	}

	envelope := types.WebhookEnvelope{
		Event:     eventType,
		EventID:   uuid.New().String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}

	var wg sync.WaitGroup
	for _, sub := range matches {
		wg.Add(1)
		go func(sub types.WebhookSubscription) {
			defer wg.Done()
			delivery := d.deliverWithRetry(sub, envelope)
			d.registry.addDelivery(sub.ID, delivery)
		}(sub)
	}
	wg.Wait()
}

func (d *Dispatcher) deliverWithRetry(sub types.WebhookSubscription, envelope types.WebhookEnvelope) types.WebhookDelivery {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return types.WebhookDelivery{WebhookID: sub.ID, EventType: envelope.Event, Error: err.Error(), DeliveredAt: time.Now().UTC()}
	}

	maxRetries := d.maxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var lastErr error
	var lastStatus int
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(retryDelays[min(attempt-1, len(retryDelays)-1)])
		}

		status, err := d.attempt(sub, envelope.EventID, payload)
		lastStatus, lastErr = status, err
		if err == nil && status >= 200 && status < 300 {
			return types.WebhookDelivery{
				WebhookID:   sub.ID,
				EventType:   envelope.Event,
				StatusCode:  status,
				Attempts:    attempt + 1,
				Success:     true,
				DeliveredAt: time.Now().UTC(),
			}
		}
	}

	delivery := types.WebhookDelivery{
		WebhookID:   sub.ID,
		EventType:   envelope.Event,
		StatusCode:  lastStatus,
		Attempts:    maxRetries,
		Success:     false,
		DeliveredAt: time.Now().UTC(),
	}
	if lastErr != nil {
		delivery.Error = lastErr.Error()
	}
	d.logger.Warn("webhook delivery failed",
		zap.String("webhook_id", sub.ID), zap.String("event", envelope.Event), zap.Error(lastErr))
	return delivery
}

func (d *Dispatcher) attempt(sub types.WebhookSubscription, eventID string, payload []byte) (int, error) {
	req, err := http.NewRequest(http.MethodPost, sub.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Synapse-Event-Id", eventID)
	if sub.Secret != "" {
		req.Header.Set("X-Synapse-Signature", "sha256="+computeSignature(payload, sub.Secret))
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode, nil
}
