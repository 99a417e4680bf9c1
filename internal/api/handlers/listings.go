package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"listwright/internal/core"
	"listwright/internal/listings"
	"listwright/internal/types"
)

// ListingsHandler exposes the listing generation endpoint.
type ListingsHandler struct {
	gate      *listings.Service
	validator *core.Validator
	logger    *slog.Logger
}

// NewListingsHandler creates a ListingsHandler.
func NewListingsHandler(gate *listings.Service, validator *core.Validator, logger *slog.Logger) *ListingsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ListingsHandler{
		gate:      gate,
		validator: validator,
		logger:    logger,
	}
}

// RegisterRoutes mounts the listings endpoints under the /v1 group.
func (h *ListingsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/listings", h.HandleGenerate)
}

// listingResponse is the response body for a successful generation.
type listingResponse struct {
	Listing          *types.Listing `json:"listing"`
	CreditsRemaining *int           `json:"credits_remaining,omitempty"`
	Unlimited        bool           `json:"unlimited"`
}

// HandleGenerate handles POST /v1/listings.
//
// Request validation runs before any entitlement lookup: a malformed request
// costs nothing and reveals nothing about the caller's balance. Denials map
// to 402, generation failures to 502, both without consuming a credit.
func (h *ListingsHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	userID := types.GetUserID(r.Context())
	if userID == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"missing caller identity",
			nil,
		))
		return
	}

	var req types.ListingRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := h.gate.Generate(r.Context(), userID, req)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	resp := listingResponse{Listing: result.Listing}
	if ent := result.Entitlement; ent != nil {
		if ent.Unlimited() {
			resp.Unlimited = true
		} else {
			credits := ent.Credits
			resp.CreditsRemaining = &credits
		}
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: resp})
}
