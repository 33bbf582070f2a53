package shiprocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/shipstream-platform/batch-shipping-service/pkg/errors"
	"github.com/shipstream-platform/batch-shipping-service/pkg/logging"
	"github.com/shipstream-platform/batch-shipping-service/pkg/resilience"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := logging.New(&logging.Config{ServiceName: "test", Level: logging.LevelError})
	breaker := resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("test"), slog.Default())

	c := NewClient(Config{BaseURL: srv.URL, Email: "e", Password: "p"}, resilience.NopPacer{}, breaker, logger, nil)
	return c, srv
}

func TestAuthenticate_StoresToken(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/login", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var creds map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		assert.Equal(t, "e", creds["email"])

		json.NewEncoder(w).Encode(map[string]string{"token": "tok-123"})
	}))

	require.NoError(t, c.Authenticate(context.Background()))
	assert.Equal(t, "tok-123", c.token)
}

func TestAuthenticate_EmptyTokenIsFatal(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"token": ""})
	}))

	err := c.Authenticate(context.Background())
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeUnauthorized, appErr.Code)
}

func TestAuthenticate_APIKeySkipsLogin(t *testing.T) {
	called := false
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	c.cfg.APIKey = "pre-issued"

	require.NoError(t, c.Authenticate(context.Background()))
	assert.Equal(t, "pre-issued", c.token)
	assert.False(t, called)
}

func TestFetchNewOrders_PaginatesAndFilters(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/orders", r.URL.Path)
		assert.Equal(t, "new", r.URL.Query().Get("filter"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		page := r.URL.Query().Get("page")
		switch page {
		case "1":
			io.WriteString(w, `{
				"data": [
					{"id": 1, "status": "NEW"},
					{"id": 2, "status": "CANCELED"}
				],
				"meta": {"pagination": {"current_page": 1, "total_pages": 2}}
			}`)
		case "2":
			io.WriteString(w, `{
				"data": [{"id": 3, "status": "NEW"}],
				"meta": {"pagination": {"current_page": 2, "total_pages": 2}}
			}`)
		default:
			t.Fatalf("unexpected page %s", page)
		}
	}))
	c.token = "tok"

	orders, err := c.FetchNewOrders(context.Background(), time.Now().AddDate(0, 0, -7), time.Now())
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, int64(1), orders[0].ID)
	assert.Equal(t, int64(3), orders[1].ID)
}

func TestFetchNewOrders_ExcludesOrdersWithAWB(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{
			"data": [
				{"id": 1, "status": "NEW", "shipments": [{"id": 10, "awb_code": "AWB-OLD"}]},
				{"id": 2, "status": "NEW", "shipments": [{"id": 20, "awb_code": ""}]}
			],
			"meta": {"pagination": {"current_page": 1, "total_pages": 1}}
		}`)
	}))
	c.token = "tok"

	orders, err := c.FetchNewOrders(context.Background(), time.Now().AddDate(0, 0, -7), time.Now())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, int64(2), orders[0].ID)
}

func TestAssignAWB_SuccessOnStatusOne(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/courier/assign/awb", r.URL.Path)
		io.WriteString(w, `{
			"awb_assign_status": 1,
			"response": {"data": {"awb_code": "AWB-9", "courier_name": "Delhivery"}}
		}`)
	}))
	c.token = "tok"

	res, err := c.AssignAWB(context.Background(), 55)
	require.NoError(t, err)
	assert.True(t, res.Assigned)
	assert.Equal(t, "AWB-9", res.AWBCode)
	assert.Equal(t, "Delhivery", res.Courier)
}

func TestAssignAWB_FailurePayloadInsideHTTP200(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{
			"awb_assign_status": 0,
			"response": {"data": {"message": "pincode not serviceable"}}
		}`)
	}))
	c.token = "tok"

	res, err := c.AssignAWB(context.Background(), 55)
	require.NoError(t, err)
	assert.False(t, res.Assigned)
	assert.Equal(t, "pincode not serviceable", res.Reason)
}

func TestAssignAWB_FailureReasonFallsBackToTopLevelMessage(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"awb_assign_status": 0, "message": "wallet balance low"}`)
	}))
	c.token = "tok"

	res, err := c.AssignAWB(context.Background(), 55)
	require.NoError(t, err)
	assert.False(t, res.Assigned)
	assert.Equal(t, "wallet balance low", res.Reason)
}

func TestCancelOrder_SendsIDList(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/orders/cancel", r.URL.Path)
		var payload map[string][]int64
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, []int64{77}, payload["ids"])
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{}`)
	}))
	c.token = "tok"

	require.NoError(t, c.CancelOrder(context.Background(), 77))
}

func TestGenerateLabel_EmptyURLIsNotAnError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"label_url": ""}`)
	}))
	c.token = "tok"

	url, err := c.GenerateLabel(context.Background(), []int64{1, 2})
	require.NoError(t, err)
	assert.Empty(t, url)
}

func TestGenerateManifest_ReturnsURL(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/manifests/generate", r.URL.Path)
		io.WriteString(w, `{"manifest_url": "https://cdn.example/manifest.pdf"}`)
	}))
	c.token = "tok"

	url, err := c.GenerateManifest(context.Background(), []int64{1})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/manifest.pdf", url)
}

func TestDo_Non2xxSurfacesUpstreamError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "gateway down")
	}))
	c.token = "tok"

	_, err := c.GenerateLabel(context.Background(), []int64{1})
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeUpstreamError, appErr.Code)
}
