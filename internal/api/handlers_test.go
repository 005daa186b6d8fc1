package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bokzor/revenue-boost-sub014/internal/targeting"
)

type fakeSelector struct {
	selection *targeting.Selection
	err       error

	gotStoreID string
	gotVisitor targeting.VisitorContext
}

func (f *fakeSelector) SelectCampaigns(_ context.Context, storeID string, visitor targeting.VisitorContext) (*targeting.Selection, error) {
	f.gotStoreID = storeID
	f.gotVisitor = visitor
	return f.selection, f.err
}

type fakeRedactor struct {
	deleted int
	err     error
}

func (f *fakeRedactor) RedactVisitor(context.Context, string, string) (int, error) {
	return f.deleted, f.err
}

func newTestAPI(selector *fakeSelector, redactor *fakeRedactor) *API {
	if selector == nil {
		selector = &fakeSelector{selection: &targeting.Selection{}}
	}
	if redactor == nil {
		redactor = &fakeRedactor{}
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAPI(selector, redactor, log)
}

func doRequest(api *API, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	api.Router.ServeHTTP(rec, req)
	return rec
}

func TestHandleSelect(t *testing.T) {
	t.Run("Should return winners and exclusions for a valid request", func(t *testing.T) {
		selector := &fakeSelector{selection: &targeting.Selection{
			Winners: []targeting.Winner{
				{CampaignID: "c1", Surface: targeting.SurfaceModal, VariantKey: "control"},
			},
			Diagnostics: []targeting.Diagnostic{
				{CampaignID: "c2", Reason: targeting.ReasonLostPriority},
			},
		}}
		api := newTestAPI(selector, nil)

		body := `{
			"visitor_id": "  v1  ",
			"session_id": "s1",
			"device_type": "Mobile",
			"country_code": "us",
			"page_url": "/products",
			"page_count": 3
		}`
		rec := doRequest(api, http.MethodPost, "/api/v1/stores/store_1/selections", body)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp SelectResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Campaigns, 1)
		assert.Equal(t, "c1", resp.Campaigns[0].CampaignID)
		assert.Equal(t, "MODAL", resp.Campaigns[0].Surface)
		assert.Equal(t, "control", resp.Campaigns[0].VariantKey)
		require.Len(t, resp.Exclusions, 1)
		assert.Equal(t, "lost_priority", resp.Exclusions[0].Reason)

		// Input is sanitized before it reaches the engine.
		assert.Equal(t, "store_1", selector.gotStoreID)
		assert.Equal(t, "v1", selector.gotVisitor.VisitorID)
		assert.Equal(t, "mobile", selector.gotVisitor.DeviceType)
		assert.Equal(t, "US", selector.gotVisitor.CountryCode)
		assert.False(t, selector.gotVisitor.Timestamp.IsZero())
	})

	t.Run("Should encode empty results as arrays, not null", func(t *testing.T) {
		api := newTestAPI(nil, nil)

		rec := doRequest(api, http.MethodPost, "/api/v1/stores/store_1/selections",
			`{"visitor_id": "v1", "session_id": "s1"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		payload := rec.Body.String()
		assert.Contains(t, payload, `"campaigns":[]`)
		assert.Contains(t, payload, `"exclusions":[]`)
	})

	t.Run("Should reject malformed JSON", func(t *testing.T) {
		api := newTestAPI(nil, nil)

		rec := doRequest(api, http.MethodPost, "/api/v1/stores/store_1/selections", `{"visitor_id": `)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "ERR_INVALID_JSON", resp.Code)
	})

	t.Run("Should reject a missing visitor id", func(t *testing.T) {
		api := newTestAPI(nil, nil)

		rec := doRequest(api, http.MethodPost, "/api/v1/stores/store_1/selections",
			`{"session_id": "s1"}`)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "ERR_INVALID_INPUT", resp.Code)
		assert.Contains(t, resp.Message, "visitor_id")
	})

	t.Run("Should reject a malformed country code", func(t *testing.T) {
		api := newTestAPI(nil, nil)

		rec := doRequest(api, http.MethodPost, "/api/v1/stores/store_1/selections",
			`{"visitor_id": "v1", "session_id": "s1", "country_code": "USA"}`)

		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Should return 500 when the engine fails", func(t *testing.T) {
		selector := &fakeSelector{err: errors.New("snapshot load failed")}
		api := newTestAPI(selector, nil)

		rec := doRequest(api, http.MethodPost, "/api/v1/stores/store_1/selections",
			`{"visitor_id": "v1", "session_id": "s1"}`)

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "ERR_INTERNAL", resp.Code)
	})
}

func TestHandleRedactVisitor(t *testing.T) {
	t.Run("Should report the number of deleted counters", func(t *testing.T) {
		api := newTestAPI(nil, &fakeRedactor{deleted: 5})

		rec := doRequest(api, http.MethodDelete, "/api/v1/stores/store_1/visitors/v1/counters", "")

		require.Equal(t, http.StatusOK, rec.Code)
		var resp RedactResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 5, resp.Deleted)
	})

	t.Run("Should surface redaction failures so callers retry", func(t *testing.T) {
		api := newTestAPI(nil, &fakeRedactor{err: errors.New("scan failed")})

		rec := doRequest(api, http.MethodDelete, "/api/v1/stores/store_1/visitors/v1/counters", "")

		require.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHealthCheck(t *testing.T) {
	api := newTestAPI(nil, nil)

	rec := doRequest(api, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestNewAPI_PanicsOnNilDependencies(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	assert.Panics(t, func() { NewAPI(nil, &fakeRedactor{}, log) })
	assert.Panics(t, func() { NewAPI(&fakeSelector{}, nil, log) })
}

func TestSelectRequest_Sanitize(t *testing.T) {
	req := SelectRequest{
		VisitorID:   " v1 ",
		SessionID:   " s1 ",
		DeviceType:  " Mobile ",
		PageURL:     " /products ",
		CountryCode: " us ",
		Referrer:    " https://example.com ",
	}
	req.Sanitize()

	assert.Equal(t, "v1", req.VisitorID)
	assert.Equal(t, "s1", req.SessionID)
	assert.Equal(t, "mobile", req.DeviceType)
	assert.Equal(t, "/products", req.PageURL)
	assert.Equal(t, "US", req.CountryCode)
	assert.Equal(t, "https://example.com", req.Referrer)
}

func TestSelectRequest_Validate(t *testing.T) {
	long := strings.Repeat("x", 256)

	tests := []struct {
		name    string
		req     SelectRequest
		wantMsg string
	}{
		{
			name: "Should accept a minimal valid request",
			req:  SelectRequest{VisitorID: "v1", SessionID: "s1"},
		},
		{
			name:    "Should require visitor_id",
			req:     SelectRequest{SessionID: "s1"},
			wantMsg: "visitor_id is required",
		},
		{
			name:    "Should require session_id",
			req:     SelectRequest{VisitorID: "v1"},
			wantMsg: "session_id is required",
		},
		{
			name:    "Should bound identifier length",
			req:     SelectRequest{VisitorID: long, SessionID: "s1"},
			wantMsg: "at most 255",
		},
		{
			name:    "Should reject a negative page count",
			req:     SelectRequest{VisitorID: "v1", SessionID: "s1", PageCount: -1},
			wantMsg: "page_count",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.req.Validate()
			if tt.wantMsg == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Contains(t, got.Message, tt.wantMsg)
		})
	}
}
