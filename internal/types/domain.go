// Package types defines the shared domain model for the Listwright platform:
// entitlements, plan tiers, listing generation requests, and the error
// taxonomy used across handlers and services.
package types

import "time"

// PlanTier identifies a billing plan.
type PlanTier string

const (
	PlanFree         PlanTier = "free"
	PlanProfessional PlanTier = "professional"
	PlanAgency       PlanTier = "agency"
)

// UnlimitedCredits is the sentinel credit balance used for the agency tier.
// Enforcement code never decrements it; a balance at or above this value is
// treated as "effectively unlimited".
const UnlimitedCredits = 999999

// Entitlement is the per-user record of remaining generation allowance and
// plan tier. It is the single unit of state shared between the generation
// gate, the billing cycle resetter, and the Stripe webhook handler.
type Entitlement struct {
	UserID               string     `json:"user_id"`
	Plan                 PlanTier   `json:"plan"`
	Credits              int        `json:"credits"`
	CreditsLimit         int        `json:"credits_limit"`
	IsPaid               bool       `json:"is_paid"`
	BillingCycleStart    *time.Time `json:"billing_cycle_start,omitempty"`
	StripeCustomerID     string     `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string     `json:"stripe_subscription_id,omitempty"`
}

// Unlimited reports whether this entitlement grants generations without
// consuming credits. The agency tier and not-yet-normalized legacy paid
// records qualify; a paid professional user does not, their 25-credit
// allotment is metered per cycle.
func (e *Entitlement) Unlimited() bool {
	return e.Plan == PlanAgency ||
		(e.Plan == "" && e.IsPaid) ||
		e.Credits >= UnlimitedCredits
}

// Normalize reconciles the two historical entitlement shapes into the
// canonical tiered scheme. Legacy records carried only the is_paid boolean
// (paid == unlimited); the tiered scheme is authoritative and is_paid is a
// derived convenience (plan != free). The additive single-credit purchase is
// the one case where a free-tier user holds more credits than the free
// allotment, which Normalize leaves untouched.
func (e *Entitlement) Normalize() {
	if e.Plan == "" {
		if e.IsPaid {
			// Legacy unlimited subscriber: fold into the agency tier.
			e.Plan = PlanAgency
			e.Credits = UnlimitedCredits
			e.CreditsLimit = UnlimitedCredits
		} else {
			e.Plan = PlanFree
			if e.CreditsLimit == 0 {
				e.CreditsLimit = 3
			}
		}
	}
	e.IsPaid = e.Plan != PlanFree
}

// DefaultEntitlement returns the lazily-initialized free-tier record created
// on a user's first interaction.
func DefaultEntitlement(userID string) *Entitlement {
	return &Entitlement{
		UserID:       userID,
		Plan:         PlanFree,
		Credits:      3,
		CreditsLimit: 3,
		IsPaid:       false,
	}
}

// EntitlementPatch is the merge-patch update contract for entitlement writes:
// only non-nil fields are written, omitted fields are left untouched. This is
// the only mutation surface the rest of the system uses.
type EntitlementPatch struct {
	Plan                 *PlanTier
	Credits              *int
	CreditsLimit         *int
	IsPaid               *bool
	BillingCycleStart    *time.Time
	StripeCustomerID     *string
	StripeSubscriptionID *string
}

// IsZero reports whether the patch carries no fields.
func (p *EntitlementPatch) IsZero() bool {
	return p.Plan == nil && p.Credits == nil && p.CreditsLimit == nil &&
		p.IsPaid == nil && p.BillingCycleStart == nil &&
		p.StripeCustomerID == nil && p.StripeSubscriptionID == nil
}

// ListingRequest is the structured property record submitted for generation.
// Required fields are validated before any entitlement check is made.
type ListingRequest struct {
	PropertyType string `json:"property_type" validate:"required"`
	Address      string `json:"address" validate:"required"`
	Price        int64  `json:"price" validate:"required,gt=0"`
	Bedrooms     int    `json:"bedrooms" validate:"required,gte=0"`
	Bathrooms    int    `json:"bathrooms" validate:"required,gte=0"`
	Sqft         int    `json:"sqft" validate:"required,gt=0"`

	YearBuilt      int    `json:"year_built,omitempty"`
	LotSize        string `json:"lot_size,omitempty"`
	Features       string `json:"features,omitempty"`
	Neighborhood   string `json:"neighborhood,omitempty"`
	SchoolDistrict string `json:"school_district,omitempty"`
}

// Listing is the generated description returned to the caller.
type Listing struct {
	Text        string    `json:"text"`
	WordCount   int       `json:"word_count"`
	Model       string    `json:"model,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}
