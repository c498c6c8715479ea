// Package canvasclient keeps a local mirror of one owner's canvas, applies
// mutations to it optimistically and reconciles them with the canvas service.
package canvasclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MartinFunctu/lifeos/pkg/api"
	pkgerrors "github.com/MartinFunctu/lifeos/pkg/errors"
)

// DefaultTimeout bounds a single request of HTTPTransport
const DefaultTimeout = 15 * time.Second

// Transport is the remote side of the client. Every method is one request.
type Transport interface {
	ListNodes(ctx context.Context) ([]api.Node, error)
	ListEdges(ctx context.Context) ([]api.Edge, error)
	CreateNode(ctx context.Context, req api.CreateNodeRequest) (api.Node, error)
	UpdateNode(ctx context.Context, id string, req api.UpdateNodeRequest) (api.Node, error)
	DeleteNode(ctx context.Context, id string) error
	CreateEdge(ctx context.Context, req api.CreateEdgeRequest) (api.Edge, error)
	DeleteEdge(ctx context.Context, id string) error
}

// HTTPTransport talks to the canvas REST API. It is safe for concurrent use.
type HTTPTransport struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport creates a transport for the API mounted at baseURL, e.g.
// "https://api.example.com/api/canvas". A nil client gets DefaultTimeout.
func NewHTTPTransport(baseURL, token string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &HTTPTransport{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: client,
	}
}

func (t *HTTPTransport) ListNodes(ctx context.Context) ([]api.Node, error) {
	var nodes []api.Node
	err := t.do(ctx, http.MethodGet, "/nodes", nil, &nodes)
	return nodes, err
}

func (t *HTTPTransport) ListEdges(ctx context.Context) ([]api.Edge, error) {
	var edges []api.Edge
	err := t.do(ctx, http.MethodGet, "/edges", nil, &edges)
	return edges, err
}

func (t *HTTPTransport) CreateNode(ctx context.Context, req api.CreateNodeRequest) (api.Node, error) {
	var node api.Node
	err := t.do(ctx, http.MethodPost, "/nodes", req, &node)
	return node, err
}

func (t *HTTPTransport) UpdateNode(ctx context.Context, id string, req api.UpdateNodeRequest) (api.Node, error) {
	var node api.Node
	err := t.do(ctx, http.MethodPatch, "/nodes/"+url.PathEscape(id), req, &node)
	return node, err
}

func (t *HTTPTransport) DeleteNode(ctx context.Context, id string) error {
	return t.do(ctx, http.MethodDelete, "/nodes/"+url.PathEscape(id), nil, nil)
}

func (t *HTTPTransport) CreateEdge(ctx context.Context, req api.CreateEdgeRequest) (api.Edge, error) {
	var edge api.Edge
	err := t.do(ctx, http.MethodPost, "/edges", req, &edge)
	return edge, err
}

func (t *HTTPTransport) DeleteEdge(ctx context.Context, id string) error {
	return t.do(ctx, http.MethodDelete, "/edges/"+url.PathEscape(id), nil, nil)
}

// do sends one request. Error bodies are decoded back into AppErrors so
// callers can use the pkg/errors predicates on remote failures.
func (t *HTTPTransport) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return pkgerrors.NewStorageError(method+" "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody pkgerrors.ErrorResponse
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		_ = json.Unmarshal(data, &errBody)
		return pkgerrors.FromResponse(resp.StatusCode, errBody)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
