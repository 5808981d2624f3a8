package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/icecat/pkg/types"
)

func newTestClient(t *testing.T, h http.HandlerFunc, retries int) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{URI: srv.URL, Retries: retries, HTTPClient: srv.Client()})
	require.NoError(t, err)
	c.client.RetryWaitMin = 0
	c.client.RetryWaitMax = 0
	return c
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: ErrorModel{Message: msg, Code: status}})
}

func TestNewClient_RejectsBadURI(t *testing.T) {
	for _, uri := range []string{"", "localhost:8181", "://x"} {
		_, err := NewClient(Config{URI: uri})
		assert.ErrorIs(t, err, types.ErrInvalidConfig, uri)
	}
}

func TestClient_StatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		call    func(c *Client) error
		wantErr error
	}{
		{"load 404", http.StatusNotFound, func(c *Client) error {
			_, err := c.LoadTable(context.Background(), types.Namespace{"db"}, "t")
			return err
		}, types.ErrNotFound},
		{"create 409", http.StatusConflict, func(c *Client) error {
			_, err := c.CreateTable(context.Background(), types.Namespace{"db"}, types.CreateTableRequest{Name: "t"})
			return err
		}, types.ErrAlreadyExists},
		{"update 409", http.StatusConflict, func(c *Client) error {
			_, err := c.UpdateTable(context.Background(), types.Namespace{"db"}, "t", types.CommitTableRequest{})
			return err
		}, types.ErrCommitConflict},
		{"rename 409", http.StatusConflict, func(c *Client) error {
			return c.RenameTable(context.Background(),
				types.TableIdentifier{Namespace: types.Namespace{"db"}, Name: "a"},
				types.TableIdentifier{Namespace: types.Namespace{"db"}, Name: "b"})
		}, types.ErrAlreadyExists},
		{"namespace 409", http.StatusConflict, func(c *Client) error {
			return c.CreateNamespace(context.Background(), types.Namespace{"db"}, nil)
		}, types.ErrAlreadyExists},
		{"head 404", http.StatusNotFound, func(c *Client) error {
			return c.TableExists(context.Background(), types.Namespace{"db"}, "t")
		}, types.ErrNotFound},
		{"drop 400", http.StatusBadRequest, func(c *Client) error {
			return c.DropNamespace(context.Background(), types.Namespace{"db"})
		}, types.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeError(w, tt.status, "boom")
			}, -1)
			err := tt.call(c)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestClient_ErrorMessageFromEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "table db.t does not exist")
	}, -1)
	_, err := c.LoadTable(context.Background(), types.Namespace{"db"}, "t")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table db.t does not exist")
}

func TestClient_RetriesReads(t *testing.T) {
	var calls atomic.Int64
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeError(w, http.StatusServiceUnavailable, "busy")
			return
		}
		json.NewEncoder(w).Encode(types.LoadTableResponse{MetadataLocation: "s3://b/m.json"})
	}, 3)

	resp, err := c.LoadTable(context.Background(), types.Namespace{"db"}, "t")
	require.NoError(t, err)
	assert.Equal(t, "s3://b/m.json", resp.MetadataLocation)
	assert.Equal(t, int64(3), calls.Load())
}

func TestClient_ServerErrorAfterRetries(t *testing.T) {
	var calls atomic.Int64
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeError(w, http.StatusInternalServerError, "disk full")
	}, 2)

	_, err := c.LoadTable(context.Background(), types.Namespace{"db"}, "t")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, int64(3), calls.Load())
}

func TestClient_ZeroRetriesSendsOnce(t *testing.T) {
	var calls atomic.Int64
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeError(w, http.StatusServiceUnavailable, "busy")
	}, 0)

	_, err := c.LoadTable(context.Background(), types.Namespace{"db"}, "t")
	require.Error(t, err)
	assert.Equal(t, int64(1), calls.Load())
}

func TestNewClient_LeavesCallerHTTPClientAlone(t *testing.T) {
	hc := &http.Client{}
	c, err := NewClient(Config{URI: "http://localhost:8181", HTTPClient: hc})
	require.NoError(t, err)
	assert.Zero(t, hc.Timeout)
	assert.NotSame(t, hc, c.client.HTTPClient)
	assert.Equal(t, DefaultTimeout, c.client.HTTPClient.Timeout)
}

func TestClient_CommitsAreNotRetried(t *testing.T) {
	var calls atomic.Int64
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeError(w, http.StatusServiceUnavailable, "busy")
	}, 3)

	_, err := c.UpdateTable(context.Background(), types.Namespace{"db"}, "t", types.CommitTableRequest{
		Requirements: []types.Requirement{types.AssertMetadataLocation("s3://b/v0.json")},
		Updates:      []types.Update{types.SetMetadataLocation("s3://b/v1.json")},
	})
	require.Error(t, err)
	assert.Equal(t, int64(1), calls.Load())
}

func TestClient_RequestShape(t *testing.T) {
	var gotPath, gotRawQuery, gotMethod string
	var gotBody types.CommitTableRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.EscapedPath()
		gotRawQuery = r.URL.RawQuery
		if r.Method == http.MethodPost {
			json.NewDecoder(r.Body).Decode(&gotBody)
		}
		json.NewEncoder(w).Encode(types.CommitTableResponse{MetadataLocation: "s3://b/v1.json"})
	}, -1)
	ctx := context.Background()
	ns := types.Namespace{"a", "b"}

	_, err := c.UpdateTable(ctx, ns, "t", types.CommitTableRequest{
		Requirements: []types.Requirement{types.AssertMetadataLocation("s3://b/v0.json")},
		Updates:      []types.Update{types.SetMetadataLocation("s3://b/v1.json")},
	})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/v1/namespaces/a%1Fb/tables/t", gotPath)
	require.Len(t, gotBody.Requirements, 1)
	assert.Equal(t, types.RequireMetadataLocation, gotBody.Requirements[0].Type)
	assert.Equal(t, "s3://b/v0.json", gotBody.Requirements[0].Location)

	require.NoError(t, c.DropTable(ctx, ns, "t", true))
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "purgeRequested=true", gotRawQuery)

	_, err = c.ListNamespaces(ctx, ns)
	require.NoError(t, err)
	assert.Equal(t, "parent=a%1Fb", gotRawQuery)
}

func TestNamespaceEncoding(t *testing.T) {
	tests := []struct {
		ns   types.Namespace
		want string
	}{
		{types.Namespace{"db"}, "db"},
		{types.Namespace{"a", "b"}, "a%1Fb"},
		{types.Namespace{"a.b", "c d"}, "a.b%1Fc%20d"},
	}
	for _, tt := range tests {
		got := EncodeNamespace(tt.ns)
		assert.Equal(t, tt.want, got)
	}

	ns, err := DecodeNamespace("a\x1fb")
	require.NoError(t, err)
	assert.Equal(t, types.Namespace{"a", "b"}, ns)

	_, err = DecodeNamespace("")
	assert.ErrorIs(t, err, types.ErrMalformedIdentifier)
	_, err = DecodeNamespace("a\x1f")
	assert.ErrorIs(t, err, types.ErrMalformedIdentifier)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{types.ErrNotFound, http.StatusNotFound},
		{types.ErrAlreadyExists, http.StatusConflict},
		{types.ErrCommitConflict, http.StatusConflict},
		{types.ErrInvalidRequest, http.StatusBadRequest},
		{types.ErrMalformedIdentifier, http.StatusBadRequest},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, _ := StatusFor(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
	}
}
