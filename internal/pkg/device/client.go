// Package device talks to the controller's HTTP endpoints.
package device

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/anicoll/ato-dashboard/internal/pkg/model"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodySize    = 1 << 20
)

var ErrUnexpectedStatus = errors.New("unexpected status")

// StatusError carries the body of a non-2xx reply. The firmware explains
// most rejections in plain text, so the body is kept for the user.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: %d", ErrUnexpectedStatus, e.Code)
	}
	return fmt.Sprintf("%s: %d: %s", ErrUnexpectedStatus, e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrUnexpectedStatus
}

type Client struct {
	base       string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// InsecureSkipVerify accepts the self signed certificate of a device served over https.
func InsecureSkipVerify() Option {
	return func(c *Client) {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		c.httpClient.Transport = transport
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base:       strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FrontendVersion reads the installed web UI version. An empty version in
// the document is reported as unknown.
func (c *Client) FrontendVersion(ctx context.Context) (string, error) {
	var fv model.FrontendVersion
	if err := c.getJSON(ctx, "/frontend_version.json", nil, &fv); err != nil {
		return "", err
	}
	if fv.Version == "" {
		return model.UnknownVersion, nil
	}
	return fv.Version, nil
}

func (c *Client) TemperatureHistory(ctx context.Context) ([]model.TemperatureReading, error) {
	var readings []model.TemperatureReading
	if err := c.getJSON(ctx, "/temperature_history", nil, &readings); err != nil {
		return nil, err
	}
	return readings, nil
}

// Status fetches /api/status bypassing any intermediate cache.
func (c *Client) Status(ctx context.Context) (*model.Status, error) {
	var status model.Status
	header := http.Header{"Cache-Control": []string{"no-store"}}
	if err := c.getJSON(ctx, "/api/status", header, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) StartUpdate(ctx context.Context) (string, error) {
	return c.postForm(ctx, "/api/auto_update", nil)
}

func (c *Client) CheckUpdates(ctx context.Context) (string, error) {
	return c.postForm(ctx, "/api/check_updates", nil)
}

func (c *Client) ResetWiFi(ctx context.Context) (string, error) {
	return c.postForm(ctx, "/reset_wifi", nil)
}

func (c *Client) SetDeviceName(ctx context.Context, name string) (string, error) {
	return c.postForm(ctx, "/set_device_name", url.Values{"device_name": {name}})
}

func (c *Client) SetTemperatureRange(ctx context.Context, th model.Thresholds) (string, error) {
	return c.postForm(ctx, "/set_temp_range", url.Values{
		"min": {strconv.FormatFloat(th.Min, 'f', -1, 64)},
		"max": {strconv.FormatFloat(th.Max, 'f', -1, 64)},
	})
}

func (c *Client) getJSON(ctx context.Context, path string, header http.Header, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// postForm returns the reply text. On a non-2xx reply the text is returned
// alongside a *StatusError.
func (c *Client) postForm(ctx context.Context, path string, form url.Values) (string, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, body)
	if err != nil {
		return "", err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	text, err := c.do(req)
	return strings.TrimSpace(string(text)), err
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize))
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return body, &StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}
