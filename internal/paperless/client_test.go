package paperless

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/paperless-pdf-meta/internal/paperless/paperlesstest"
)

func newTestClient(srv *paperlesstest.Server) *Client {
	return NewClient(srv.APIURL(),
		WithToken(paperlesstest.Token),
		WithConflictLookup(3, time.Millisecond),
	)
}

func TestNewClient(t *testing.T) {
	c := NewClient("http://paperless:8000/api/", WithToken("abc"), WithTimeout(5*time.Second))
	assert.Equal(t, "http://paperless:8000/api", c.baseURL)
	assert.Equal(t, "abc", c.token)
	assert.Equal(t, 5*time.Second, c.httpClient.Timeout)
	assert.Equal(t, uint(3), c.lookupAttempts)
}

func TestClient_GetDocument(t *testing.T) {
	srv := paperlesstest.NewServer(t)
	invoice := srv.AddTag("invoice")
	paid := srv.AddTag("paid")
	correspondent := srv.AddCorrespondent("ACME")
	srv.AddDocument(paperlesstest.Document{
		ID:            7,
		Title:         "Scan 7",
		Correspondent: &correspondent,
		Created:       "2023-01-15T09:30:00+01:00",
		Tags:          []int{paid, invoice},
	})
	srv.AddDocument(paperlesstest.Document{ID: 8})

	c := newTestClient(srv)

	doc, err := c.GetDocument(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, 7, doc.ID)
	assert.Equal(t, "Scan 7", doc.Title)
	require.True(t, doc.HasCorrespondent())
	assert.Equal(t, correspondent, *doc.Correspondent)
	assert.Equal(t, "2023-01-15T09:30:00+01:00", doc.Created)
	assert.Equal(t, []EntityRef{{ID: paid, Name: "paid"}, {ID: invoice, Name: "invoice"}}, doc.Tags)
	assert.Equal(t, []int{paid, invoice}, doc.TagIDs())

	empty, err := c.GetDocument(context.Background(), "8")
	require.NoError(t, err)
	assert.False(t, empty.HasCorrespondent())
	assert.Equal(t, "", empty.Title)
	assert.Equal(t, "", empty.Created)
	assert.Empty(t, empty.Tags)
}

func TestClient_GetDocumentErrors(t *testing.T) {
	srv := paperlesstest.NewServer(t)

	t.Run("not found", func(t *testing.T) {
		_, err := newTestClient(srv).GetDocument(context.Background(), "404")
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
		assert.Contains(t, err.Error(), "No Document matches")
	})

	t.Run("bad token", func(t *testing.T) {
		c := NewClient(srv.APIURL(), WithToken("wrong"))
		_, err := c.GetDocument(context.Background(), "1")
		require.Error(t, err)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	})

	t.Run("empty id", func(t *testing.T) {
		_, err := newTestClient(srv).GetDocument(context.Background(), "")
		require.Error(t, err)
	})

	t.Run("unreachable", func(t *testing.T) {
		c := NewClient("http://127.0.0.1:1/api", WithToken("x"), WithTimeout(time.Second))
		_, err := c.GetDocument(context.Background(), "1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "request failed")
	})
}

func TestClient_GetOrCreateTag(t *testing.T) {
	srv := paperlesstest.NewServer(t)
	existing := srv.AddTag("Invoice")
	c := newTestClient(srv)
	ctx := context.Background()

	t.Run("existing tag", func(t *testing.T) {
		id, err := c.GetOrCreateTag(ctx, "Invoice")
		require.NoError(t, err)
		assert.Equal(t, existing, id)
	})

	t.Run("case insensitive match", func(t *testing.T) {
		id, err := c.GetOrCreateTag(ctx, "invoice")
		require.NoError(t, err)
		assert.Equal(t, existing, id)
	})

	t.Run("idempotent create", func(t *testing.T) {
		first, err := c.GetOrCreateTag(ctx, "travel")
		require.NoError(t, err)
		second, err := c.GetOrCreateTag(ctx, "travel")
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, 1, srv.CreateCount("tag", "travel"))
		assert.Equal(t, 1, srv.CountTags("travel"))
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := c.GetOrCreateTag(ctx, "  ")
		require.Error(t, err)
	})
}

func TestClient_GetOrCreateCorrespondent(t *testing.T) {
	srv := paperlesstest.NewServer(t)
	c := newTestClient(srv)
	ctx := context.Background()

	first, err := c.GetOrCreateCorrespondent(ctx, "Jane Doe")
	require.NoError(t, err)
	second, err := c.GetOrCreateCorrespondent(ctx, "Jane Doe")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, srv.CreateCount("correspondent", "Jane Doe"))
	id, ok := srv.CorrespondentID("Jane Doe")
	require.True(t, ok)
	assert.Equal(t, id, first)
}

func TestClient_GetOrCreateConcurrentCreate(t *testing.T) {
	srv := paperlesstest.NewServer(t)
	srv.SetRaceOnCreate(true)
	c := newTestClient(srv)

	id, err := c.GetOrCreateTag(context.Background(), "raced")
	require.NoError(t, err)

	stored, ok := srv.TagID("raced")
	require.True(t, ok)
	assert.Equal(t, stored, id)
	assert.Equal(t, 1, srv.CountTags("raced"))
}

func TestClient_GetOrCreateRejectedWithoutEntity(t *testing.T) {
	var lookups atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			http.Error(w, `{"name":["Ensure this field has no more than 128 characters."]}`, http.StatusBadRequest)
			return
		}
		lookups.Add(1)
		_, _ = w.Write([]byte(`{"count":0,"next":null,"results":[]}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, WithToken("x"), WithConflictLookup(2, time.Millisecond))
	_, err := c.GetOrCreateTag(context.Background(), "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, errNotVisible)
	assert.Contains(t, err.Error(), "no more than 128 characters")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	// initial lookup plus the two conflict lookups
	assert.Equal(t, int32(3), lookups.Load())
}

func TestClient_ConflictLookupAttempts(t *testing.T) {
	c := NewClient("http://paperless:8000/api", WithConflictLookup(0, time.Millisecond))
	assert.Equal(t, uint(1), c.lookupAttempts)

	var lookups atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			http.Error(w, `{"name":["invalid"]}`, http.StatusBadRequest)
			return
		}
		lookups.Add(1)
		_, _ = w.Write([]byte(`{"count":0,"next":null,"results":[]}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c = NewClient(server.URL, WithToken("x"), WithConflictLookup(0, time.Millisecond))
	_, err := c.GetOrCreateTag(ctx, "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, errNotVisible)
	assert.NoError(t, ctx.Err())
	assert.Equal(t, int32(2), lookups.Load())
}

func TestClient_UpdateDocument(t *testing.T) {
	srv := paperlesstest.NewServer(t)
	srv.AddDocument(paperlesstest.Document{ID: 3})
	c := newTestClient(srv)
	ctx := context.Background()

	err := c.UpdateDocument(ctx, "3", UpdateSet{
		FieldTitle:   "Policy",
		FieldCreated: "2023-01-15T09:30:00",
		FieldTags:    []int{1, 2},
	})
	require.NoError(t, err)

	patches := srv.Patches()
	require.Len(t, patches, 1)
	assert.Equal(t, "Policy", patches[0]["title"])
	assert.Equal(t, "2023-01-15T09:30:00", patches[0]["created"])
	assert.Equal(t, []any{float64(1), float64(2)}, patches[0]["tags"])

	doc := srv.Document(3)
	assert.Equal(t, "Policy", doc.Title)
	assert.Equal(t, []int{1, 2}, doc.Tags)

	t.Run("empty set is not sent", func(t *testing.T) {
		before := srv.RequestCount()
		require.NoError(t, c.UpdateDocument(ctx, "3", UpdateSet{}))
		assert.Equal(t, before, srv.RequestCount())
	})

	t.Run("missing document", func(t *testing.T) {
		err := c.UpdateDocument(ctx, "99", UpdateSet{FieldTitle: "x"})
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
	})
}

func TestClient_BasicAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 1, "title": "t", "tags": []int{}})
	}))
	defer server.Close()

	c := NewClient(server.URL, WithBasicAuth("admin", "secret"))
	doc, err := c.GetDocument(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "t", doc.Title)
}

func TestUpdateSet_Fields(t *testing.T) {
	u := UpdateSet{FieldTags: []int{1}, FieldTitle: "x"}
	assert.Equal(t, []string{FieldTitle, FieldTags}, u.Fields())
	assert.Nil(t, UpdateSet{}.Fields())
}
