// Package handlers contains the HTTP handler implementations for the
// Listwright API.
//
// The Stripe webhook handler is NOT behind the identity middleware; it is
// called directly by Stripe. Security is provided by verifying the
// Stripe-Signature header before any field of the payload is trusted.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"listwright/internal/billing"
	"listwright/internal/cache"
	"listwright/internal/core"
	"listwright/internal/entitlement"
	"listwright/internal/external"
	"listwright/internal/types"
)

// maxWebhookBodySize caps the Stripe webhook payload at 64 KB. Real payloads
// are far smaller; the limit protects against abuse.
const maxWebhookBodySize = 64 * 1024

// Webhook event types this handler acts on. Everything else is acknowledged
// and ignored.
const (
	eventCheckoutCompleted   = "checkout.session.completed"
	eventSubscriptionDeleted = "customer.subscription.deleted"
)

// StripeWebhookHandler handles asynchronous events from Stripe: completed
// checkouts grant entitlements, subscription deletions revert them.
type StripeWebhookHandler struct {
	verifier external.WebhookVerifier
	store    entitlement.Store
	deduper  *cache.EventDeduper
	prices   billing.PriceTable
	secret   string
	logger   *slog.Logger
	now      func() time.Time
}

// NewStripeWebhookHandler creates a StripeWebhookHandler. deduper may be nil;
// deduplication is then disabled.
func NewStripeWebhookHandler(
	verifier external.WebhookVerifier,
	store entitlement.Store,
	deduper *cache.EventDeduper,
	prices billing.PriceTable,
	secret string,
	logger *slog.Logger,
) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeWebhookHandler{
		verifier: verifier,
		store:    store,
		deduper:  deduper,
		prices:   prices,
		secret:   secret,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RegisterRoutes mounts the webhook endpoint. Separate from the /v1 group
// because webhook routes are public and carry no caller identity.
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.Handle)
}

// Handle processes an incoming Stripe webhook delivery:
//
//  1. Read the raw body (64 KB cap) and the Stripe-Signature header.
//  2. Verify the signature before trusting any payload field.
//  3. Parse the minimal typed event and dedupe by event id.
//  4. Route by event type; unknown types are acknowledged and ignored.
//
// Status codes are the retry contract with the provider: 4xx for deliveries
// that will never succeed (bad signature, missing user id, unknown plan),
// 5xx for transient store failures so Stripe redelivers, 200 for everything
// handled or deliberately ignored.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read webhook body", "error", err)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeWebhookPayloadInvalid,
			"failed to read request body",
			err,
		))
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		h.logger.WarnContext(r.Context(), "missing Stripe-Signature header")
		core.Error(w, r, types.NewAppError(
			types.ErrCodeWebhookSignatureInvalid,
			"missing Stripe-Signature header",
			nil,
		))
		return
	}

	if err := h.verifier.Verify(payload, sigHeader, h.secret); err != nil {
		h.logger.WarnContext(r.Context(), "webhook signature verification failed", "error", err)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeWebhookSignatureInvalid,
			"webhook signature verification failed",
			err,
		))
		return
	}

	var event stripeWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.WarnContext(r.Context(), "failed to parse webhook event JSON", "error", err)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeWebhookPayloadInvalid,
			"invalid webhook event JSON",
			err,
		))
		return
	}

	h.logger.InfoContext(r.Context(), "processing stripe webhook event",
		"event_id", event.ID,
		"event_type", event.Type,
	)

	// At-least-once delivery: claim the event id before processing. If
	// processing fails the claim is released so the retry is not swallowed.
	if !h.deduper.MarkProcessed(r.Context(), event.ID) {
		h.logger.InfoContext(r.Context(), "duplicate webhook delivery acknowledged",
			"event_id", event.ID,
		)
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.routeEvent(r.Context(), &event); err != nil {
		h.deduper.Forget(r.Context(), event.ID)
		h.logger.ErrorContext(r.Context(), "webhook event processing failed",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// routeEvent dispatches by event type. Unknown types are a successful no-op.
func (h *StripeWebhookHandler) routeEvent(ctx context.Context, event *stripeWebhookEvent) error {
	switch event.Type {
	case eventCheckoutCompleted:
		return h.handleCheckoutCompleted(ctx, event)

	case eventSubscriptionDeleted:
		return h.handleSubscriptionDeleted(ctx, event)

	default:
		h.logger.InfoContext(ctx, "ignoring unhandled webhook event type",
			"event_type", event.Type,
		)
		return nil
	}
}

// handleCheckoutCompleted grants the purchased entitlement. The user id
// comes from session metadata stamped at checkout creation; a session
// without it cannot be attributed and is rejected so the misconfiguration
// surfaces in the provider dashboard.
func (h *StripeWebhookHandler) handleCheckoutCompleted(ctx context.Context, event *stripeWebhookEvent) error {
	session, err := event.checkoutSession()
	if err != nil {
		return types.NewAppError(
			types.ErrCodeWebhookMissingUserID,
			"malformed checkout session object",
			err,
		)
	}

	userID := session.Metadata["user_id"]
	if userID == "" {
		return types.NewAppError(
			types.ErrCodeWebhookMissingUserID,
			"checkout session metadata missing user_id",
			nil,
		)
	}

	upgrade, err := h.prices.ResolveUpgrade(session.AmountTotal, session.Metadata["price_id"])
	if err != nil {
		// Unknown plan: no state change, 400 so the dashboard shows it.
		return err
	}

	if upgrade.Kind == billing.UpgradeSingleCredit {
		return h.applySingleCredit(ctx, userID, session)
	}

	patch := billing.UpgradePatch(upgrade, session.Customer, session.Subscription, h.now())
	if err := h.store.Update(ctx, userID, patch); err != nil {
		return err
	}

	h.logger.InfoContext(ctx, "plan upgrade applied",
		"event_id", event.ID,
		"user_id", userID,
		"plan", string(upgrade.Plan),
	)
	return nil
}

// applySingleCredit adds one credit to the current balance. The plan and the
// per-cycle limit stay untouched; this is a top-up, not a tier change. The
// increment goes through the store's atomic AddCredits so a concurrent writer
// cannot make the top-up vanish.
func (h *StripeWebhookHandler) applySingleCredit(ctx context.Context, userID string, session *stripeCheckoutSessionObj) error {
	balance, err := h.store.AddCredits(ctx, userID, 1)
	if err != nil {
		return err
	}

	if session.Customer != "" {
		customer := session.Customer
		patch := types.EntitlementPatch{StripeCustomerID: &customer}
		if err := h.store.Update(ctx, userID, patch); err != nil {
			return err
		}
	}

	h.logger.InfoContext(ctx, "single credit applied",
		"user_id", userID,
		"credits", balance,
	)
	return nil
}

// handleSubscriptionDeleted reverts the matching user to the free tier. The
// event is keyed by Stripe customer id; a customer with no local record is
// acknowledged as a no-op (the subscription was never correlated here).
func (h *StripeWebhookHandler) handleSubscriptionDeleted(ctx context.Context, event *stripeWebhookEvent) error {
	sub, err := event.subscription()
	if err != nil || sub.Customer == "" {
		h.logger.WarnContext(ctx, "subscription deleted event missing customer id",
			"event_id", event.ID,
		)
		return nil
	}

	ent, err := h.store.FindByCustomerID(ctx, sub.Customer)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundEntitlement {
			h.logger.InfoContext(ctx, "cancellation for unknown customer acknowledged",
				"customer_id", sub.Customer,
			)
			return nil
		}
		return err
	}

	if err := h.store.Update(ctx, ent.UserID, billing.CancellationPatch(h.now())); err != nil {
		return err
	}

	h.logger.InfoContext(ctx, "subscription cancellation applied",
		"event_id", event.ID,
		"user_id", ent.UserID,
		"customer_id", sub.Customer,
	)
	return nil
}

// ---------------------------------------------------------------------------
// Stripe event parsing
// ---------------------------------------------------------------------------

// stripeWebhookEvent is a minimal representation of a Stripe webhook event,
// tailored to the fields needed for routing. The full stripe.Event type is
// deliberately not imported; the handler stays decoupled from the SDK's
// object model and tests can build payloads by hand.
type stripeWebhookEvent struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

// stripeCheckoutSessionObj carries the minimal fields of a
// checkout.session.completed data object.
type stripeCheckoutSessionObj struct {
	ID           string            `json:"id"`
	AmountTotal  int64             `json:"amount_total"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

// stripeSubscriptionObj carries the minimal fields of a
// customer.subscription.deleted data object.
type stripeSubscriptionObj struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
	Status   string `json:"status"`
}

func (e *stripeWebhookEvent) checkoutSession() (*stripeCheckoutSessionObj, error) {
	var data stripeEventData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, err
	}
	var session stripeCheckoutSessionObj
	if err := json.Unmarshal(data.Object, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (e *stripeWebhookEvent) subscription() (*stripeSubscriptionObj, error) {
	var data stripeEventData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, err
	}
	var sub stripeSubscriptionObj
	if err := json.Unmarshal(data.Object, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}
