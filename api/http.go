package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is the public control API endpoint.
const DefaultBaseURL = "https://cloud.skytap.com"

// ensure interface is implemented
var _ Client = (*HTTPClient)(nil)

// HTTPClient talks to the control API over HTTPS with JSON bodies and basic
// authentication.
type HTTPClient struct {
	baseURL    string
	username   string
	apiToken   string
	userAgent  string
	httpClient *http.Client
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) {
		h.httpClient = c
	}
}

// WithVerifyCerts toggles TLS certificate verification. Internal test
// environments commonly run with self-signed certificates.
func WithVerifyCerts(verify bool) Option {
	return func(h *HTTPClient) {
		if verify {
			return
		}
		h.httpClient.Transport = &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // opt-in via config
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(h *HTTPClient) {
		h.userAgent = ua
	}
}

// NewHTTPClient creates a client for baseURL authenticating as username.
func NewHTTPClient(baseURL, username, apiToken string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		username:  username,
		apiToken:  apiToken,
		userAgent: "vmshift",
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateJob creates an export or import job.
func (c *HTTPClient) CreateJob(ctx context.Context, kind Kind, params Params) (*JobRecord, error) {
	var rec JobRecord
	if err := c.do(ctx, http.MethodPost, kind.collection(), params, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetJob fetches the current state of a job.
func (c *HTTPClient) GetJob(ctx context.Context, kind Kind, id ID) (*JobRecord, error) {
	var rec JobRecord
	if err := c.do(ctx, http.MethodGet, kind.collection()+"/"+id.String(), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateJob changes job attributes, e.g. marking an upload as done.
func (c *HTTPClient) UpdateJob(ctx context.Context, kind Kind, id ID, params Params) (*JobRecord, error) {
	var rec JobRecord
	if err := c.do(ctx, http.MethodPut, kind.collection()+"/"+id.String(), params, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// DestroyJob removes a job record from the server.
func (c *HTTPClient) DestroyJob(ctx context.Context, kind Kind, id ID) error {
	return c.do(ctx, http.MethodDelete, kind.collection()+"/"+id.String(), nil, nil)
}

// ShowVM fetches a VM.
func (c *HTTPClient) ShowVM(ctx context.Context, id ID) (*VM, error) {
	var vm VM
	if err := c.do(ctx, http.MethodGet, "/vms/"+id.String(), nil, &vm); err != nil {
		return nil, err
	}
	return &vm, nil
}

// ShowTemplate fetches a template.
func (c *HTTPClient) ShowTemplate(ctx context.Context, id ID) (*Template, error) {
	var t Template
	if err := c.do(ctx, http.MethodGet, "/templates/"+id.String(), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateCredential attaches a credential to a VM.
func (c *HTTPClient) CreateCredential(ctx context.Context, vmID ID, text string) error {
	body := Params{"vm_id": vmID.String(), "text": text}
	return c.do(ctx, http.MethodPost, "/vms/"+vmID.String()+"/credentials", body, nil)
}

// do performs an HTTP request and decodes the response.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.SetBasicAuth(c.username, c.apiToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// decodeError builds an *Error from the service's {"error": ...} or
// {"errors": [...]} bodies, falling back to the raw body.
func decodeError(status int, body []byte) error {
	var doc struct {
		Error  string   `json:"error"`
		Errors []string `json:"errors"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &doc) == nil {
		switch {
		case doc.Error != "":
			msg = doc.Error
		case len(doc.Errors) > 0:
			msg = strings.Join(doc.Errors, " ")
		}
	}
	return &Error{StatusCode: status, Message: msg}
}
