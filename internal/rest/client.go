package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/mesh-intelligence/icecat/pkg/types"
)

var _ types.Transport = (*Client)(nil)

// Defaults. NewClient applies DefaultTimeout; DefaultRetries is the
// configured default for transport.retries.
const (
	DefaultTimeout = 30 * time.Second
	DefaultRetries = 3
)

// Config configures a Client.
type Config struct {
	URI     string        // service base URL, e.g. http://localhost:8181
	Timeout time.Duration // per attempt; zero means DefaultTimeout
	Retries int           // extra attempts for idempotent calls; zero or negative disables
	Logger  *slog.Logger  // retry logging; nil is silent

	// HTTPClient replaces the pooled default, e.g. an httptest client.
	HTTPClient *http.Client
}

// Client talks to a catalog service over HTTP. Reads are retried on
// connection errors and 5xx responses; table commits and creates are sent
// once, since a lost response followed by a resend would be reported as a
// conflict with the writer's own commit.
type Client struct {
	base   string
	client *retryablehttp.Client
}

// NewClient validates cfg and builds a client.
func NewClient(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.URI)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: catalog uri %q", types.ErrInvalidConfig, cfg.URI)
	}

	rc := retryablehttp.NewClient()
	if cfg.HTTPClient != nil {
		hc := *cfg.HTTPClient
		rc.HTTPClient = &hc
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	rc.HTTPClient.Timeout = timeout
	rc.RetryMax = max(cfg.Retries, 0)
	rc.RetryWaitMin = 50 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.CheckRetry = checkRetry
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = nil
	if cfg.Logger != nil {
		rc.Logger = cfg.Logger
	}

	return &Client{
		base:   strings.TrimRight(u.String(), "/") + PathPrefix,
		client: rc,
	}, nil
}

type noRetryKey struct{}

// withoutRetry marks a request as unsafe to resend.
func withoutRetry(ctx context.Context) context.Context {
	return context.WithValue(ctx, noRetryKey{}, true)
}

func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if v, _ := ctx.Value(noRetryKey{}).(bool); v {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// call sends one request. conflict is the sentinel a 409 maps to.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, body, out any, conflict error) error {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var raw any
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		raw = data
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, target, raw)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent || method == http.MethodHead {
			io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode %s %s response: %w", types.ErrCatalogProtocol, method, path, err)
		}
		return nil
	}
	return responseError(resp, method, path, conflict)
}

// responseError maps a non-2xx response to a collaborator sentinel.
func responseError(resp *http.Response, method, path string, conflict error) error {
	msg := http.StatusText(resp.StatusCode)
	if method != http.MethodHead {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var envelope ErrorResponse
		if json.Unmarshal(data, &envelope) == nil && envelope.Error.Message != "" {
			msg = envelope.Error.Message
		} else if len(bytes.TrimSpace(data)) > 0 {
			msg = string(bytes.TrimSpace(data))
		}
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", types.ErrNotFound, msg)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", conflict, msg)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", types.ErrInvalidRequest, msg)
	default:
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, msg)
	}
}

func namespacePath(ns types.Namespace) string {
	return "/namespaces/" + EncodeNamespace(ns)
}

func tablePath(ns types.Namespace, name string) string {
	return namespacePath(ns) + "/tables/" + url.PathEscape(name)
}

// ListNamespaces lists the children of parent.
func (c *Client) ListNamespaces(ctx context.Context, parent types.Namespace) (*types.ListNamespacesResponse, error) {
	var query url.Values
	if len(parent) > 0 {
		query = url.Values{ParamParent: {strings.Join(parent, namespaceSeparator)}}
	}
	var out types.ListNamespacesResponse
	if err := c.call(ctx, http.MethodGet, "/namespaces", query, nil, &out, types.ErrAlreadyExists); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateNamespace creates ns with props.
func (c *Client) CreateNamespace(ctx context.Context, ns types.Namespace, props map[string]string) error {
	body := CreateNamespaceRequest{Namespace: ns, Properties: props}
	return c.call(ctx, http.MethodPost, "/namespaces", nil, body, nil, types.ErrAlreadyExists)
}

// DropNamespace drops an empty namespace.
func (c *Client) DropNamespace(ctx context.Context, ns types.Namespace) error {
	return c.call(ctx, http.MethodDelete, namespacePath(ns), nil, nil, nil, types.ErrInvalidRequest)
}

// ListTables lists the tables in ns.
func (c *Client) ListTables(ctx context.Context, ns types.Namespace) (*types.ListTablesResponse, error) {
	var out types.ListTablesResponse
	if err := c.call(ctx, http.MethodGet, namespacePath(ns)+"/tables", nil, nil, &out, types.ErrAlreadyExists); err != nil {
		return nil, err
	}
	return &out, nil
}

// TableExists sends HEAD for the table.
func (c *Client) TableExists(ctx context.Context, ns types.Namespace, name string) error {
	return c.call(ctx, http.MethodHead, tablePath(ns, name), nil, nil, nil, types.ErrAlreadyExists)
}

// DropTable deletes the table entry.
func (c *Client) DropTable(ctx context.Context, ns types.Namespace, name string, purge bool) error {
	var query url.Values
	if purge {
		query = url.Values{ParamPurge: {"true"}}
	}
	return c.call(ctx, http.MethodDelete, tablePath(ns, name), query, nil, nil, types.ErrAlreadyExists)
}

// LoadTable fetches the table's pointer.
func (c *Client) LoadTable(ctx context.Context, ns types.Namespace, name string) (*types.LoadTableResponse, error) {
	var out types.LoadTableResponse
	if err := c.call(ctx, http.MethodGet, tablePath(ns, name), nil, nil, &out, types.ErrAlreadyExists); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateTable registers a new table. Not retried.
func (c *Client) CreateTable(ctx context.Context, ns types.Namespace, req types.CreateTableRequest) (*types.LoadTableResponse, error) {
	var out types.LoadTableResponse
	if err := c.call(withoutRetry(ctx), http.MethodPost, namespacePath(ns)+"/tables", nil, req, &out, types.ErrAlreadyExists); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateTable commits a pointer swap. Not retried.
func (c *Client) UpdateTable(ctx context.Context, ns types.Namespace, name string, req types.CommitTableRequest) (*types.CommitTableResponse, error) {
	var out types.CommitTableResponse
	if err := c.call(withoutRetry(ctx), http.MethodPost, tablePath(ns, name), nil, req, &out, types.ErrCommitConflict); err != nil {
		return nil, err
	}
	return &out, nil
}

// RenameTable moves a table. Not retried.
func (c *Client) RenameTable(ctx context.Context, from, to types.TableIdentifier) error {
	body := types.RenameTableRequest{
		Source:      types.TableEntry{Namespace: from.Namespace, Name: from.Name},
		Destination: types.TableEntry{Namespace: to.Namespace, Name: to.Name},
	}
	return c.call(withoutRetry(ctx), http.MethodPost, "/tables/rename", nil, body, nil, types.ErrAlreadyExists)
}
