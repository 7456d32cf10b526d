// Package provider is the HTTP client for the upstream vehicle-data API.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"example/regcheck-api/app/apperr"
	"example/regcheck-api/app/config"
	"example/regcheck-api/app/metrics"
	"example/regcheck-api/app/models"
)

// Provider fetches report parts for a normalized registration. A registration the
// upstream does not know is apperr.ErrVehicleNotFound.
type Provider interface {
	MOTHistory(ctx context.Context, registration string) (*models.MOTReport, error)
	VehicleData(ctx context.Context, registration string) (*models.VDIData, error)
	Images(ctx context.Context, registration string) ([]models.VehicleImage, error)
	Valuation(ctx context.Context, registration string, mileage int) (*models.ValuationReport, error)
}

const maxAttempts = 3

type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	backoff time.Duration
}

var _ Provider = (*Client)(nil)

func NewClient(cfg config.ProviderConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpc:   &http.Client{Timeout: cfg.Timeout},
		backoff: 250 * time.Millisecond,
	}
}

func (c *Client) MOTHistory(ctx context.Context, registration string) (*models.MOTReport, error) {
	var r models.MOTReport
	if err := c.getJSON(ctx, "mot", registration, nil, &r); err != nil {
		return nil, err
	}
	if r.Registration == "" {
		r.Registration = registration
	}
	return &r, nil
}

func (c *Client) VehicleData(ctx context.Context, registration string) (*models.VDIData, error) {
	var d models.VDIData
	if err := c.getJSON(ctx, "vdi", registration, nil, &d); err != nil {
		return nil, err
	}
	if d.Registration == "" {
		d.Registration = registration
	}
	return &d, nil
}

func (c *Client) Images(ctx context.Context, registration string) ([]models.VehicleImage, error) {
	var body struct {
		Images []models.VehicleImage `json:"images"`
	}
	if err := c.getJSON(ctx, "images", registration, nil, &body); err != nil {
		return nil, err
	}
	return body.Images, nil
}

func (c *Client) Valuation(ctx context.Context, registration string, mileage int) (*models.ValuationReport, error) {
	q := url.Values{}
	q.Set("mileage", strconv.Itoa(mileage))
	var v models.ValuationReport
	if err := c.getJSON(ctx, "valuation", registration, q, &v); err != nil {
		return nil, err
	}
	if v.Registration == "" {
		v.Registration = registration
	}
	v.Mileage = mileage
	if v.ValuedAt.IsZero() {
		v.ValuedAt = time.Now().UTC()
	}
	return &v, nil
}

type HTTPError struct {
	Status int
	Body   string
}

func (e HTTPError) Error() string { return fmt.Sprintf("http %d: %s", e.Status, e.Body) }

func (c *Client) getJSON(ctx context.Context, endpoint, registration string, query url.Values, v any) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveProviderCall(endpoint, start, err) }()

	u := c.baseURL + "/" + endpoint + "/" + url.PathEscape(registration)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	// basic retry for 429/5xx
	var last error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
		}

		retry, err := c.do(ctx, u, v)
		if err == nil {
			return nil
		}
		last = err
		if !retry {
			break
		}
	}
	return last
}

// do performs one request. It reports whether a failure is worth retrying.
func (c *Client) do(ctx context.Context, u string, v any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	res, err := c.httpc.Do(req)
	if err != nil {
		return ctx.Err() == nil, err
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusOK:
		if err := json.NewDecoder(res.Body).Decode(v); err != nil {
			return false, fmt.Errorf("decode %s: %w", u, err)
		}
		return false, nil
	case res.StatusCode == http.StatusNotFound:
		return false, apperr.ErrVehicleNotFound
	}

	var msg struct {
		Message string `json:"message"`
	}
	_ = json.NewDecoder(res.Body).Decode(&msg)
	retry := res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500
	return retry, HTTPError{Status: res.StatusCode, Body: msg.Message}
}
