package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"listwright/internal/core"
	"listwright/internal/entitlement"
	"listwright/internal/external"
	"listwright/internal/types"
)

// BillingHandler exposes checkout creation and entitlement reads.
type BillingHandler struct {
	payments  external.BillingService
	store     entitlement.Store
	validator *core.Validator
	appURL    string
	logger    *slog.Logger
}

// NewBillingHandler creates a BillingHandler. appURL is the dashboard origin
// used for redirect URLs when the request carries no Origin header.
func NewBillingHandler(
	payments external.BillingService,
	store entitlement.Store,
	validator *core.Validator,
	appURL string,
	logger *slog.Logger,
) *BillingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingHandler{
		payments:  payments,
		store:     store,
		validator: validator,
		appURL:    appURL,
		logger:    logger,
	}
}

// RegisterRoutes mounts the billing endpoints under the /v1 group.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Post("/billing/checkout", h.HandleCreateCheckout)
	r.Get("/entitlements/{userID}", h.HandleGetEntitlement)
}

// checkoutRequest is the request body for POST /v1/billing/checkout.
type checkoutRequest struct {
	PriceID string `json:"price_id" validate:"required"`
	Mode    string `json:"mode" validate:"required,oneof=subscription payment"`
}

// checkoutResponse is the response body for a created checkout session.
type checkoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
	SessionID   string `json:"session_id"`
}

// HandleCreateCheckout handles POST /v1/billing/checkout. The caller picks a
// price and a mode; the session's redirect URLs are derived from the request
// origin so local and deployed frontends both land back where they started.
func (h *BillingHandler) HandleCreateCheckout(w http.ResponseWriter, r *http.Request) {
	userID := types.GetUserID(r.Context())
	if userID == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"missing caller identity",
			nil,
		))
		return
	}

	var req checkoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = h.appURL
	}
	urls := types.RedirectURLs{
		Success: origin + "/billing/success?session_id={CHECKOUT_SESSION_ID}",
		Cancel:  origin + "/billing/cancel",
	}

	checkoutURL, sessionID, err := h.payments.CreateCheckoutSession(
		r.Context(), userID, req.PriceID, types.CheckoutMode(req.Mode), urls,
	)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "checkout session created",
		"user_id", userID,
		"session_id", sessionID,
		"mode", req.Mode,
	)

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: checkoutResponse{
		CheckoutURL: checkoutURL,
		SessionID:   sessionID,
	}})
}

// entitlementResponse is the client-facing view of an entitlement record.
type entitlementResponse struct {
	UserID       string         `json:"user_id"`
	Plan         types.PlanTier `json:"plan"`
	Credits      int            `json:"credits"`
	CreditsLimit int            `json:"credits_limit"`
	IsPaid       bool           `json:"is_paid"`
	Unlimited    bool           `json:"unlimited"`
	CycleStart   *string        `json:"billing_cycle_start,omitempty"`
}

// HandleGetEntitlement handles GET /v1/entitlements/{userID}. A store read
// failure degrades to the free-tier defaults instead of failing the page;
// the dashboard should render even when the database is having a bad moment.
func (h *BillingHandler) HandleGetEntitlement(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"missing userID path parameter",
			nil,
		))
		return
	}

	ent, err := h.store.Get(r.Context(), userID)
	if err != nil {
		h.logger.WarnContext(r.Context(), "entitlement read failed, serving defaults",
			"user_id", userID,
			"error", err,
		)
		ent = types.DefaultEntitlement(userID)
	}

	resp := entitlementResponse{
		UserID:       ent.UserID,
		Plan:         ent.Plan,
		Credits:      ent.Credits,
		CreditsLimit: ent.CreditsLimit,
		IsPaid:       ent.IsPaid,
		Unlimited:    ent.Unlimited(),
	}
	if ent.BillingCycleStart != nil {
		formatted := ent.BillingCycleStart.UTC().Format(time.RFC3339)
		resp.CycleStart = &formatted
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: resp})
}
