// Package httpbackend is a remote.Backend talking to a document store over
// its REST API (see internal/docserver).
package httpbackend

import (
	"bytes"
	"context"
	"encoding/json/jsontext"
	"encoding/json/v2"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/toollender/toollender/internal/docserver"
	"github.com/toollender/toollender/internal/remote"
)

// Backend calls the document store REST API.
type Backend struct {
	baseURL *url.URL
	apiKey  string
	client  *http.Client
}

var _ remote.Backend = (*Backend)(nil)

// Options configures a Backend.
type Options struct {
	BaseURL string // e.g. "http://docstore:8090"
	APIKey  string
	Timeout time.Duration // per request; zero means 10s
	Client  *http.Client  // overrides Timeout when set
}

// New creates a Backend.
func New(opts Options) (*Backend, error) {
	u, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid document store URL %q", opts.BaseURL)
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Backend{baseURL: u, apiKey: opts.APIKey, client: client}, nil
}

type envelope[T any] struct {
	Data    T      `json:"data"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Success bool   `json:"success"`
}

// Query implements remote.Backend.
func (b *Backend) Query(ctx context.Context, collection string, q remote.Query) ([]remote.Document, error) {
	values, err := docserver.EncodeQuery(q)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	var docs []remote.Document
	err = b.do(ctx, http.MethodGet, b.path(collection), values, nil, &docs)
	return docs, err
}

// Get implements remote.Backend.
func (b *Backend) Get(ctx context.Context, collection, id string) (remote.Document, error) {
	var doc remote.Document
	err := b.do(ctx, http.MethodGet, b.path(collection, id), nil, nil, &doc)
	return doc, err
}

// Set implements remote.Backend.
func (b *Backend) Set(ctx context.Context, collection, id string, fields remote.Fields, mode remote.WriteMode) error {
	var values url.Values
	if mode == remote.Merge {
		values = url.Values{"merge": {"true"}}
	}
	return b.do(ctx, http.MethodPut, b.path(collection, id), values, docserver.SetRequest{Fields: fields}, nil)
}

// Add implements remote.Backend.
func (b *Backend) Add(ctx context.Context, collection string, fields remote.Fields, uniqueKey string) (string, error) {
	var res docserver.AddResponse
	err := b.do(ctx, http.MethodPost, b.path(collection), nil,
		docserver.AddRequest{Fields: fields, UniqueKey: uniqueKey}, &res)
	return res.ID, err
}

// Delete implements remote.Backend.
func (b *Backend) Delete(ctx context.Context, collection, id string) error {
	return b.do(ctx, http.MethodDelete, b.path(collection, id), nil, nil, nil)
}

func (b *Backend) path(parts ...string) string {
	return "/v1/docs/" + strings.Join(parts, "/")
}

func (b *Backend) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := b.baseURL.JoinPath(path)
	u.RawQuery = query.Encode()

	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.apiKey != "" {
		req.Header.Set(docserver.APIKeyHeader, b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s %s: %w", method, path, ctx.Err())
		}
		return fmt.Errorf("%s %s: %w: %w", method, path, remote.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w: %w", method, path, remote.ErrUnavailable, err)
	}

	if resp.StatusCode >= 400 {
		var env envelope[any]
		_ = json.Unmarshal(raw, &env)
		return statusError(resp.StatusCode, env.Error)
	}
	if out == nil {
		return nil
	}
	env := envelope[jsontext.Value]{}
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s %s: decode data: %w", method, path, err)
	}
	return nil
}

func statusError(status int, msg string) error {
	if msg == "" {
		msg = http.StatusText(status)
	}
	switch {
	case status == http.StatusNotFound:
		return remote.ErrNotFound
	case status == http.StatusConflict:
		return remote.ErrConflict
	case status >= 500 || status == http.StatusTooManyRequests:
		return fmt.Errorf("document store returned %d %s: %w", status, msg, remote.ErrUnavailable)
	default:
		return errors.New("document store rejected request: " + msg)
	}
}
