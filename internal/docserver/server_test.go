package docserver_test

import (
	"encoding/json/v2"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toollender/toollender/internal/docserver"
	"github.com/toollender/toollender/internal/docstore"
	"github.com/toollender/toollender/internal/http/response"
	"github.com/toollender/toollender/internal/remote"
	"github.com/toollender/toollender/internal/remote/remotetest"
)

func newServer(t *testing.T) *docserver.Server {
	t.Helper()
	store, err := docstore.Open(filepath.Join(t.TempDir(), "docs.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return docserver.NewServer(store, "secret", nil)
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, response.Envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(docserver.APIKeyHeader, "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env response.Envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestServer_RequiresAPIKey(t *testing.T) {
	srv := newServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/docs/tools", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
}

func TestServer_NoKeyConfigured(t *testing.T) {
	srv := docserver.NewServer(remotetest.New(), "", nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/docs/tools", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_DocumentLifecycle(t *testing.T) {
	srv := newServer(t)

	rec, env := do(t, srv, http.MethodPost, "/v1/docs/tools", `{"fields":{"name":"Drill","ownerId":"u1"}}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, env.Success)
	id := env.Data.(map[string]any)["id"].(string)
	require.NotEmpty(t, id)

	rec, env = do(t, srv, http.MethodGet, "/v1/docs/tools/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	fields := env.Data.(map[string]any)["fields"].(map[string]any)
	assert.Equal(t, "Drill", fields["name"])

	rec, _ = do(t, srv, http.MethodPut, "/v1/docs/tools/"+id+"?merge=true", `{"fields":{"isOnHold":true}}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec, env = do(t, srv, http.MethodGet, "/v1/docs/tools?where=isOnHold:true&where=ownerId:u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	docs := env.Data.([]any)
	require.Len(t, docs, 1)
	fields = docs[0].(map[string]any)["fields"].(map[string]any)
	assert.Equal(t, "Drill", fields["name"], "merge keeps existing fields")

	rec, _ = do(t, srv, http.MethodDelete, "/v1/docs/tools/"+id, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec, env = do(t, srv, http.MethodGet, "/v1/docs/tools/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", env.Code)
}

func TestServer_EmptyQuery(t *testing.T) {
	srv := newServer(t)

	rec, env := do(t, srv, http.MethodGet, "/v1/docs/associations", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.Empty(t, env.Data)
}

func TestServer_UniqueKeyConflict(t *testing.T) {
	srv := newServer(t)
	body := `{"fields":{"name":"Amager"},"unique_key":"amager"}`

	rec, _ := do(t, srv, http.MethodPost, "/v1/docs/associations", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env := do(t, srv, http.MethodPost, "/v1/docs/associations", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_EXISTS", env.Code)
}

func TestServer_BadRequests(t *testing.T) {
	srv := newServer(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
	}{
		{"invalid collection", http.MethodGet, "/v1/docs/bad-name", ""},
		{"malformed body", http.MethodPost, "/v1/docs/tools", `{"fields":`},
		{"missing fields", http.MethodPut, "/v1/docs/tools/x", `{}`},
		{"bad where", http.MethodGet, "/v1/docs/tools?where=novalue", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := do(t, srv, tt.method, tt.target, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.False(t, env.Success)
		})
	}
}

func TestServer_Health(t *testing.T) {
	srv := newServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestParseQuery(t *testing.T) {
	q, err := docserver.ParseQuery(url.Values{
		"where":    {`ownerId:"u1"`, "isOnHold:false", "pricePerDay:25", "name:plain text", "note:a:b"},
		"order_by": {"name"},
		"desc":     {"true"},
	})
	require.NoError(t, err)

	assert.Equal(t, []remote.Filter{
		{Field: "ownerId", Value: "u1"},
		{Field: "isOnHold", Value: false},
		{Field: "pricePerDay", Value: 25.0},
		{Field: "name", Value: "plain text"},
		{Field: "note", Value: "a:b"},
	}, q.Where)
	assert.Equal(t, "name", q.OrderBy)
	assert.True(t, q.Desc)

	_, err = docserver.ParseQuery(url.Values{"where": {":x"}})
	assert.Error(t, err)
}

func TestEncodeQuery_RoundTrip(t *testing.T) {
	in := remote.Where("ownerId", "u1").Ordered("pricePerDay", true)
	in.Where = append(in.Where, remote.Filter{Field: "isOnHold", Value: true}, remote.Filter{Field: "deleted", Value: nil})

	v, err := docserver.EncodeQuery(in)
	require.NoError(t, err)
	out, err := docserver.ParseQuery(v)
	require.NoError(t, err)

	assert.Equal(t, in, out)
}
