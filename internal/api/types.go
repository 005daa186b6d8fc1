package api

import (
	"strings"
	"time"

	"github.com/bokzor/revenue-boost-sub014/internal/targeting"
)

// SelectRequest defines the payload for a campaign selection.
// Used for JSON decoding in the POST /stores/{storeID}/selections endpoint.
type SelectRequest struct {
	// VisitorID is required. It is the stable identity used for sticky
	// experiment assignment and frequency counters.
	VisitorID string `json:"visitor_id"`

	// SessionID is required. Session-window counters key on it indirectly
	// through the session TTL.
	SessionID string `json:"session_id"`

	// DeviceType is optional (desktop, mobile, tablet).
	DeviceType string `json:"device_type,omitempty"`

	// PageURL is the URL the visitor is currently on.
	PageURL string `json:"page_url,omitempty"`

	// CountryCode is the ISO 3166-1 alpha-2 code, uppercase.
	CountryCode string `json:"country_code,omitempty"`

	// Referrer is the document referrer, if any.
	Referrer string `json:"referrer,omitempty"`

	// PageCount is how many pages this session has viewed so far.
	PageCount int `json:"page_count,omitempty"`

	// Returning marks a visitor seen in a previous session.
	Returning bool `json:"returning,omitempty"`
}

// Sanitize cleans up input data by trimming whitespace and normalizing case.
// This prevents "dirty" data from entering the system logic.
func (r *SelectRequest) Sanitize() {
	r.VisitorID = strings.TrimSpace(r.VisitorID)
	r.SessionID = strings.TrimSpace(r.SessionID)
	r.DeviceType = strings.ToLower(strings.TrimSpace(r.DeviceType))
	r.PageURL = strings.TrimSpace(r.PageURL)
	r.CountryCode = strings.ToUpper(strings.TrimSpace(r.CountryCode))
	r.Referrer = strings.TrimSpace(r.Referrer)
}

// Validate checks if the request data adheres to business rules.
// It returns a structured *ErrorResponse if validation fails, or nil if valid.
func (r *SelectRequest) Validate() *ErrorResponse {
	if r.VisitorID == "" {
		return &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "visitor_id is required",
		}
	}
	if r.SessionID == "" {
		return &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "session_id is required",
		}
	}
	if len(r.VisitorID) > 255 || len(r.SessionID) > 255 {
		return &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "visitor_id and session_id must be at most 255 characters",
		}
	}
	if r.CountryCode != "" && len(r.CountryCode) != 2 {
		return &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "country_code must be a two-letter ISO code",
		}
	}
	if r.PageCount < 0 {
		return &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "page_count cannot be negative",
		}
	}
	return nil
}

// ToVisitorContext converts the DTO to the engine's domain model.
func (r *SelectRequest) ToVisitorContext() targeting.VisitorContext {
	return targeting.VisitorContext{
		VisitorID:   r.VisitorID,
		SessionID:   r.SessionID,
		DeviceType:  r.DeviceType,
		PageURL:     r.PageURL,
		CountryCode: r.CountryCode,
		Referrer:    r.Referrer,
		PageCount:   r.PageCount,
		Returning:   r.Returning,
		Timestamp:   time.Now().UTC(),
	}
}

// SelectedCampaign is one winning campaign in the response.
type SelectedCampaign struct {
	CampaignID string `json:"campaign_id"`
	Surface    string `json:"surface"`

	// VariantKey is set when the campaign is bound to an experiment.
	VariantKey string `json:"variant_key,omitempty"`
}

// ExcludedCampaign explains why a candidate did not win.
type ExcludedCampaign struct {
	CampaignID string `json:"campaign_id"`
	Reason     string `json:"reason"`
}

// SelectResponse is the result of one selection.
type SelectResponse struct {
	// Campaigns holds at most one winner per surface.
	Campaigns []SelectedCampaign `json:"campaigns"`

	// Exclusions lists every candidate that was filtered out, with reasons.
	// Intended for debugging and admin previews, not storefront rendering.
	Exclusions []ExcludedCampaign `json:"exclusions"`
}

// RedactResponse reports the outcome of a visitor counter redaction.
type RedactResponse struct {
	Deleted int `json:"deleted"`
}

// ErrorResponse represents a standard structured API error.
type ErrorResponse struct {
	// Code is a machine-readable error code (e.g., "ERR_INVALID_INPUT").
	Code string `json:"code"`

	// Message is a human-readable description of the error.
	Message string `json:"message"`
}
