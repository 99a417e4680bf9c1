package external

import (
	"context"

	"listwright/internal/types"
)

// GenerationService is the opaque text-generation collaborator: a structured
// property record in, a prose listing description out. Implementations must
// honor context cancellation and deadlines; a timeout surfaces as
// upstream_generation_failed so the gate never charges a credit for it.
type GenerationService interface {
	GenerateListing(ctx context.Context, req types.ListingRequest) (*types.Listing, error)
}

// BillingService creates hosted checkout sessions with the payment provider.
type BillingService interface {
	// CreateCheckoutSession returns the hosted checkout redirect URL and the
	// session identifier. mode is "subscription" or "payment"; the user id is
	// stamped into session metadata for webhook correlation.
	CreateCheckoutSession(ctx context.Context, userID, priceID string, mode types.CheckoutMode, urls types.RedirectURLs) (checkoutURL string, sessionID string, err error)
}

// WebhookVerifier validates the authenticity of an inbound webhook payload
// against a signature header and shared secret. Verification must happen
// before any field of the payload is trusted.
type WebhookVerifier interface {
	Verify(payload []byte, header string, secret string) error
}
