package shiprocket

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	apperrors "github.com/shipstream-platform/batch-shipping-service/pkg/errors"
	"github.com/shipstream-platform/batch-shipping-service/pkg/logging"
	"github.com/shipstream-platform/batch-shipping-service/pkg/metrics"
	"github.com/shipstream-platform/batch-shipping-service/pkg/resilience"

	"github.com/shipstream-platform/batch-shipping-service/internal/domain"
)

const (
	defaultBaseURL = "https://apiv2.shiprocket.in/v1/external"
	ordersPerPage  = 100
	maxOrderPages  = 50
)

// Config holds the courier API connection settings
type Config struct {
	BaseURL  string
	Email    string
	Password string
	// APIKey, when set, is used as the bearer token directly and the
	// login call is skipped.
	APIKey  string
	Timeout time.Duration
}

// DefaultConfig returns client settings suitable for production use
func DefaultConfig() Config {
	return Config{
		BaseURL: defaultBaseURL,
		Timeout: 60 * time.Second,
	}
}

// Client talks to the Shiprocket external API. All outbound calls pass
// through the shared pacer and circuit breaker, and carry the bearer token
// obtained by Authenticate.
type Client struct {
	cfg     Config
	http    *http.Client
	pacer   resilience.Pacer
	breaker *resilience.CircuitBreaker
	logger  *logging.Logger
	metrics *metrics.Metrics

	token string
}

// NewClient builds a courier API client
func NewClient(cfg Config, pacer resilience.Pacer, breaker *resilience.CircuitBreaker, logger *logging.Logger, m *metrics.Metrics) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		pacer:   pacer,
		breaker: breaker,
		logger:  logger,
		metrics: m,
	}
}

type loginResponse struct {
	Token string `json:"token"`
}

// Authenticate obtains a bearer token. A pre-issued API key is used as the
// token verbatim; otherwise the email/password login endpoint is called.
// An empty token either way is fatal for the run.
func (c *Client) Authenticate(ctx context.Context) error {
	if c.cfg.APIKey != "" {
		c.token = c.cfg.APIKey
		c.logger.WithComponent("shiprocket").Info("using pre-issued API token")
		return nil
	}

	body, err := c.post(ctx, "/auth/login", map[string]any{
		"email":    c.cfg.Email,
		"password": c.cfg.Password,
	})
	if err != nil {
		return err
	}

	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return apperrors.ErrUpstream("/auth/login", http.StatusOK, "malformed login response")
	}
	if resp.Token == "" {
		return apperrors.ErrUnauthorized("authentication succeeded but no token was returned")
	}
	c.token = resp.Token
	return nil
}

type ordersPage struct {
	Data []*domain.Order `json:"data"`
	Meta struct {
		Pagination struct {
			CurrentPage int `json:"current_page"`
			TotalPages  int `json:"total_pages"`
		} `json:"pagination"`
	} `json:"meta"`
}

// FetchNewOrders retrieves all NEW-status orders in the [from, to] window,
// following pagination until exhausted. The filter is applied again
// client-side since the upstream filter is advisory: orders must still be
// NEW and must not carry an AWB code, which the upstream keeps reporting as
// new for a while after a label is generated.
func (c *Client) FetchNewOrders(ctx context.Context, from, to time.Time) ([]*domain.Order, error) {
	var all []*domain.Order
	for page := 1; page <= maxOrderPages; page++ {
		q := url.Values{}
		q.Set("filter", "new")
		q.Set("per_page", strconv.Itoa(ordersPerPage))
		q.Set("from", from.Format("2006-01-02"))
		q.Set("to", to.Format("2006-01-02"))
		q.Set("page", strconv.Itoa(page))

		body, err := c.get(ctx, "/orders?"+q.Encode())
		if err != nil {
			return nil, err
		}

		var resp ordersPage
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, apperrors.ErrUpstream("/orders", http.StatusOK, "malformed orders response")
		}
		for _, o := range resp.Data {
			if o.Status == domain.StatusNew && !o.HasAWB() {
				all = append(all, o)
			}
		}
		if resp.Meta.Pagination.TotalPages == 0 || page >= resp.Meta.Pagination.TotalPages {
			break
		}
	}
	c.logger.WithComponent("shiprocket").Info("fetched new orders", slog.Int("count", len(all)))
	return all, nil
}

type awbResponse struct {
	AWBAssignStatus int `json:"awb_assign_status"`
	Response        struct {
		Data struct {
			Message string `json:"message"`
			AWBCode string `json:"awb_code"`
			Courier string `json:"courier_name"`
		} `json:"data"`
	} `json:"response"`
	Message string `json:"message"`
}

// AssignAWB requests courier assignment for a shipment. The upstream signals
// failure inside an HTTP 200 payload, so success is determined solely by
// awb_assign_status == 1.
func (c *Client) AssignAWB(ctx context.Context, shipmentID int64) (domain.AWBAssignment, error) {
	body, err := c.post(ctx, "/courier/assign/awb", map[string]any{
		"shipment_id": shipmentID,
	})
	if err != nil {
		return domain.AWBAssignment{}, err
	}

	var resp awbResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.AWBAssignment{}, apperrors.ErrUpstream("/courier/assign/awb", http.StatusOK, "malformed AWB response")
	}
	if resp.AWBAssignStatus != 1 {
		reason := resp.Response.Data.Message
		if reason == "" {
			reason = resp.Message
		}
		if reason == "" {
			reason = "courier assignment rejected"
		}
		return domain.AWBAssignment{Assigned: false, Reason: reason}, nil
	}
	return domain.AWBAssignment{
		Assigned: true,
		AWBCode:  resp.Response.Data.AWBCode,
		Courier:  resp.Response.Data.Courier,
	}, nil
}

// CancelOrder cancels a single order
func (c *Client) CancelOrder(ctx context.Context, orderID int64) error {
	_, err := c.post(ctx, "/orders/cancel", map[string]any{
		"ids": []int64{orderID},
	})
	return err
}

type labelResponse struct {
	LabelURL string `json:"label_url"`
}

// GenerateLabel requests a combined label document for the given shipments
// and returns its download URL. An empty URL means no labels are available,
// which callers treat as a non-event.
func (c *Client) GenerateLabel(ctx context.Context, shipmentIDs []int64) (string, error) {
	body, err := c.post(ctx, "/courier/generate/label", map[string]any{
		"shipment_id": shipmentIDs,
	})
	if err != nil {
		return "", err
	}
	var resp labelResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", apperrors.ErrUpstream("/courier/generate/label", http.StatusOK, "malformed label response")
	}
	return resp.LabelURL, nil
}

// SchedulePickup requests a pickup for one shipment
func (c *Client) SchedulePickup(ctx context.Context, shipmentID int64) error {
	_, err := c.post(ctx, "/courier/generate/pickup", map[string]any{
		"shipment_id": []int64{shipmentID},
	})
	return err
}

type manifestResponse struct {
	ManifestURL string `json:"manifest_url"`
}

// GenerateManifest requests a manifest for the given shipments and returns
// its download URL. An empty URL means no manifest was produced.
func (c *Client) GenerateManifest(ctx context.Context, shipmentIDs []int64) (string, error) {
	body, err := c.post(ctx, "/manifests/generate", map[string]any{
		"shipment_id": shipmentIDs,
	})
	if err != nil {
		return "", err
	}
	var resp manifestResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", apperrors.ErrUpstream("/manifests/generate", http.StatusOK, "malformed manifest response")
	}
	return resp.ManifestURL, nil
}

// Download fetches an artifact (label or manifest PDF) from a URL issued by
// the API. The download goes through the pacer but bypasses the base URL.
func (c *Client) Download(ctx context.Context, fileURL string) ([]byte, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, apperrors.ErrValidation("invalid download URL").Wrap(err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	c.observe("download", resp, start, err)
	if err != nil {
		return nil, apperrors.ErrServiceUnavailable("artifact download").Wrap(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.ErrUpstream("download", resp.StatusCode, "artifact download rejected")
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, payload)
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		var reqBody io.Reader
		if payload != nil {
			data, err := json.Marshal(payload)
			if err != nil {
				return nil, apperrors.ErrInternal("failed to encode request").Wrap(err)
			}
			reqBody = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reqBody)
		if err != nil {
			return nil, apperrors.ErrInternal("failed to build request").Wrap(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		start := time.Now()
		resp, err := c.http.Do(req)
		c.observe(path, resp, start, err)
		if err != nil {
			return nil, apperrors.ErrServiceUnavailable("courier API").WithDetail("endpoint", path).Wrap(err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, apperrors.ErrUpstream(path, resp.StatusCode, "failed to read response body")
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, apperrors.ErrUpstream(path, resp.StatusCode, string(body))
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func (c *Client) observe(endpoint string, resp *http.Response, start time.Time, err error) {
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	c.logger.UpstreamCall(endpoint, status, time.Since(start), err)
	if c.metrics != nil {
		c.metrics.ObserveUpstreamCall(endpoint, status, time.Since(start))
	}
}
