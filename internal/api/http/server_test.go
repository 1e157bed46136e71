package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/execution-hub/dealflow/internal/domain/deal"
	"github.com/execution-hub/dealflow/internal/domain/event"
	"github.com/execution-hub/dealflow/internal/domain/fault"
	"github.com/execution-hub/dealflow/internal/metrics"
)

type mockOrchestrator struct {
	mock.Mock
}

func (m *mockOrchestrator) Handle(ctx context.Context, ev event.Event) event.Reply {
	args := m.Called(ctx, ev)
	return args.Get(0).(event.Reply)
}

func (m *mockOrchestrator) Deal(ctx context.Context, id string) (*deal.Deal, error) {
	args := m.Called(ctx, id)
	d, _ := args.Get(0).(*deal.Deal)
	return d, args.Error(1)
}

func (m *mockOrchestrator) Ingest(ctx context.Context, d *deal.Deal) error {
	return m.Called(ctx, d).Error(0)
}

func (m *mockOrchestrator) Advertise(ctx context.Context, dealID, channelID string) (*deal.Deal, error) {
	args := m.Called(ctx, dealID, channelID)
	d, _ := args.Get(0).(*deal.Deal)
	return d, args.Error(1)
}

func (m *mockOrchestrator) Reprice(ctx context.Context, dealID string, payout, payoutVAT0 decimal.NullDecimal) (*deal.Deal, error) {
	args := m.Called(ctx, dealID, payout, payoutVAT0)
	d, _ := args.Get(0).(*deal.Deal)
	return d, args.Error(1)
}

type sweeperFunc func(ctx context.Context) (int, error)

func (f sweeperFunc) RunOnce(ctx context.Context) (int, error) { return f(ctx) }

const token = "secret"

func newTestServer(t *testing.T, orch *mockOrchestrator, sweep sweeperFunc) *httptest.Server {
	t.Helper()
	if sweep == nil {
		sweep = func(context.Context) (int, error) { return 0, nil }
	}
	srv := httptest.NewServer(NewServer(orch, sweep, metrics.New(), token, zerolog.Nop()).Router())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string, auth bool) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if auth {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]interface{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, &mockOrchestrator{}, nil)

	resp, body := do(t, srv, http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, _ = do(t, srv, http.MethodGet, "/metrics", "", false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequireToken(t *testing.T) {
	srv := newTestServer(t, &mockOrchestrator{}, nil)

	resp, body := do(t, srv, http.MethodPost, "/v1/sweeps", "", false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", body["error"].(map[string]interface{})["code"])
}

func TestHandleEvent(t *testing.T) {
	orch := &mockOrchestrator{}
	orch.On("Handle", mock.Anything, mock.MatchedBy(func(ev event.Event) bool {
		return ev.Kind == event.KindButton && ev.ActorID == "user-1" && ev.ID != "" && !ev.ReceivedAt.IsZero()
	})).Return(event.Notice("Deal claimed.")).Once()
	srv := newTestServer(t, orch, nil)

	resp, body := do(t, srv, http.MethodPost, "/v1/events", `{"kind":"button","customId":"claim:rec1","actorId":"user-1"}`, true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Deal claimed.", body["content"])
	assert.Equal(t, true, body["ephemeral"])
	orch.AssertExpectations(t)

	resp, _ = do(t, srv, http.MethodPost, "/v1/events", `{"kind":"reaction","actorId":"user-1"}`, true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodPost, "/v1/events", `{"kind":"button"}`, true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetDeal(t *testing.T) {
	orch := &mockOrchestrator{}
	orch.On("Deal", mock.Anything, "rec1").Return(&deal.Deal{ID: "rec1", SKU: "DD1391-100", Status: deal.StatusPending}, nil)
	orch.On("Deal", mock.Anything, "missing").Return(nil, fault.NotFound("That deal no longer exists."))
	orch.On("Deal", mock.Anything, "broken").Return(nil, fault.ExternalIO("load deal", assert.AnError))
	srv := newTestServer(t, orch, nil)

	resp, body := do(t, srv, http.MethodGet, "/v1/deals/rec1", "", true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "DD1391-100", body["sku"])

	resp, body = do(t, srv, http.MethodGet, "/v1/deals/missing", "", true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	errBody := body["error"].(map[string]interface{})
	assert.Equal(t, "NOT_FOUND", errBody["code"])
	assert.Equal(t, "That deal no longer exists.", errBody["message"])

	resp, body = do(t, srv, http.MethodGet, "/v1/deals/broken", "", true)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.NotContains(t, body["error"].(map[string]interface{})["message"], assert.AnError.Error())
}

func TestCreateListing(t *testing.T) {
	orch := &mockOrchestrator{}
	orch.On("Ingest", mock.Anything, mock.MatchedBy(func(d *deal.Deal) bool {
		return d.SKU == "DD1391-100" && d.BuyerCountry == "DE" &&
			d.CurrentPayout.Valid && d.CurrentPayout.Decimal.Equal(decimal.RequireFromString("180.5"))
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*deal.Deal).ID = "rec1"
	}).Return(nil).Once()
	orch.On("Advertise", mock.Anything, "rec1", "listings").
		Return(&deal.Deal{ID: "rec1", ListingMessageID: "msg-1"}, nil).Once()
	srv := newTestServer(t, orch, nil)

	resp, body := do(t, srv, http.MethodPost, "/v1/listings",
		`{"sku":"DD1391-100","size":"42","currentPayout":"180.50","buyerCountry":" de ","advertise":true,"channelId":"listings"}`, true)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "msg-1", body["listingMessageId"])
	orch.AssertExpectations(t)

	resp, _ = do(t, srv, http.MethodPost, "/v1/listings", `{"sku":"X","unknown":1}`, true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdvertiseListing(t *testing.T) {
	orch := &mockOrchestrator{}
	orch.On("Advertise", mock.Anything, "rec1", "").Return(&deal.Deal{ID: "rec1"}, nil).Once()
	orch.On("Advertise", mock.Anything, "rec2", "").Return(nil, fault.InvalidState("Only open listings can be advertised.")).Once()
	srv := newTestServer(t, orch, nil)

	resp, _ := do(t, srv, http.MethodPost, "/v1/listings/rec1/advertise", "", true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := do(t, srv, http.MethodPost, "/v1/listings/rec2/advertise", "", true)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INVALID_STATE", body["error"].(map[string]interface{})["code"])
	orch.AssertExpectations(t)
}

func TestRepriceListing(t *testing.T) {
	amount := func(want string) interface{} {
		return mock.MatchedBy(func(v decimal.NullDecimal) bool {
			if want == "" {
				return !v.Valid
			}
			return v.Valid && v.Decimal.Equal(decimal.RequireFromString(want))
		})
	}
	orch := &mockOrchestrator{}
	orch.On("Reprice", mock.Anything, "rec1", amount("195.5"), amount("")).
		Return(&deal.Deal{ID: "rec1", CurrentPayout: decimal.NewNullDecimal(decimal.RequireFromString("195.5"))}, nil).Once()
	orch.On("Reprice", mock.Anything, "rec2", amount(""), amount("")).
		Return(nil, fault.InvalidState("Send at least one payout to update.")).Once()
	orch.On("Reprice", mock.Anything, "recMissing", amount("1"), amount("0.83")).
		Return(nil, fault.NotFound("This deal no longer exists.")).Once()
	srv := newTestServer(t, orch, nil)

	resp, body := do(t, srv, http.MethodPatch, "/v1/listings/rec1", `{"currentPayout":"195.50"}`, true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "rec1", body["id"])

	resp, _ = do(t, srv, http.MethodPatch, "/v1/listings/rec2", `{}`, true)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodPatch, "/v1/listings/recMissing", `{"currentPayout":1,"currentPayoutVat0":"0.83"}`, true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodPatch, "/v1/listings/rec1", `{"maxPayout":"1"}`, true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodPatch, "/v1/listings/rec1", `{"currentPayout":"1"}`, false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	orch.AssertExpectations(t)
}

func TestRunSweep(t *testing.T) {
	srv := newTestServer(t, &mockOrchestrator{}, func(context.Context) (int, error) { return 3, nil })
	resp, body := do(t, srv, http.MethodPost, "/v1/sweeps", "", true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(3), body["expired"])

	failing := newTestServer(t, &mockOrchestrator{}, func(context.Context) (int, error) { return 0, assert.AnError })
	resp, _ = do(t, failing, http.MethodPost, "/v1/sweeps", "", true)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}
