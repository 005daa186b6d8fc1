package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/bokzor/revenue-boost-sub014/internal/logger"
	"github.com/bokzor/revenue-boost-sub014/internal/targeting"
)

// handleSelect processes the POST /api/v1/stores/{storeID}/selections request.
//
// Responsibilities:
// 1. Decodes the JSON payload into the SelectRequest DTO.
// 2. Sanitizes and Validates the input using the DTO's business logic.
// 3. Converts the DTO to the domain model (targeting.VisitorContext).
// 4. Runs the selection through the engine.
// 5. Maps the selection back to the response DTO.
func (a *API) handleSelect(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	storeID := chi.URLParam(r, "storeID")
	if storeID == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "store id is required",
		})
		return
	}

	// 1. Decode Request
	var req SelectRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("invalid json payload", slog.String("error", err.Error()))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INVALID_JSON",
			Message: "Invalid JSON payload: " + err.Error(),
		})
		return
	}

	// 2. Sanitize & Validate
	// We delegate this logic to the DTO to keep the handler clean and testable.
	req.Sanitize()
	if errResp := req.Validate(); errResp != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errResp)
		return
	}

	// 3. Run the selection
	selection, err := a.engine.SelectCampaigns(r.Context(), storeID, req.ToVisitorContext())
	if err != nil {
		log.Error("selection failed",
			slog.String("store_id", storeID),
			slog.String("error", err.Error()),
		)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INTERNAL",
			Message: "Failed to select campaigns",
		})
		return
	}

	// 4. Map Domain Model to Response DTO
	render.Status(r, http.StatusOK)
	render.JSON(w, r, mapSelectionToResponse(selection))
}

// handleRedactVisitor processes the
// DELETE /api/v1/stores/{storeID}/visitors/{visitorID}/counters request.
// It removes every frequency counter and cooldown timestamp for the visitor.
func (a *API) handleRedactVisitor(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	storeID := chi.URLParam(r, "storeID")
	visitorID := chi.URLParam(r, "visitorID")
	if storeID == "" || visitorID == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "store id and visitor id are required",
		})
		return
	}

	deleted, err := a.redactor.RedactVisitor(r.Context(), storeID, visitorID)
	if err != nil {
		// Redaction must be reliable: surface the failure so the calling
		// workflow retries instead of assuming the data is gone.
		log.Error("visitor redaction failed",
			slog.String("store_id", storeID),
			slog.String("visitor_id", visitorID),
			slog.String("error", err.Error()),
		)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INTERNAL",
			Message: "Failed to delete visitor counters",
		})
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, RedactResponse{Deleted: deleted})
}

// mapSelectionToResponse converts the engine result to the API Response DTO.
func mapSelectionToResponse(sel *targeting.Selection) SelectResponse {
	resp := SelectResponse{
		// Non-nil slices so the JSON encodes "[]" instead of "null".
		Campaigns:  make([]SelectedCampaign, 0, len(sel.Winners)),
		Exclusions: make([]ExcludedCampaign, 0, len(sel.Diagnostics)),
	}
	for _, w := range sel.Winners {
		resp.Campaigns = append(resp.Campaigns, SelectedCampaign{
			CampaignID: w.CampaignID,
			Surface:    string(w.Surface),
			VariantKey: w.VariantKey,
		})
	}
	for _, d := range sel.Diagnostics {
		resp.Exclusions = append(resp.Exclusions, ExcludedCampaign{
			CampaignID: d.CampaignID,
			Reason:     string(d.Reason),
		})
	}
	return resp
}
