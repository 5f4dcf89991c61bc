// Package paperlesstest provides an in-memory Paperless-ngx API for tests.
package paperlesstest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Token is the API token the fake server accepts
const Token = "test-token"

// Document is a stored document record
type Document struct {
	ID            int
	Title         string
	Correspondent *int
	Created       string
	Tags          []int
}

// Server is a fake Paperless API served over httptest
type Server struct {
	*httptest.Server

	mu             sync.Mutex
	documents      map[int]*Document
	correspondents map[int]string
	tags           map[int]string
	nextID         int

	// raceOnCreate makes every create fail with 400 after storing the
	// entity, as if a concurrent run created it first
	raceOnCreate bool

	requests []string
	creates  map[string]int
	patches  []map[string]any
}

// NewServer starts a fake Paperless API; the API root is URL()+"/api"
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		documents:      make(map[int]*Document),
		correspondents: make(map[int]string),
		tags:           make(map[int]string),
		nextID:         100,
		creates:        make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/documents/{id}/", s.handleGetDocument)
	mux.HandleFunc("PATCH /api/documents/{id}/", s.handlePatchDocument)
	mux.HandleFunc("GET /api/correspondents/", s.listHandler(func() map[int]string { return s.correspondents }))
	mux.HandleFunc("POST /api/correspondents/", s.createHandler("correspondent", func() map[int]string { return s.correspondents }))
	mux.HandleFunc("GET /api/tags/", s.listHandler(func() map[int]string { return s.tags }))
	mux.HandleFunc("POST /api/tags/", s.createHandler("tag", func() map[int]string { return s.tags }))

	s.Server = httptest.NewServer(s.authenticate(mux))
	t.Cleanup(s.Close)
	return s
}

// APIURL returns the API root
func (s *Server) APIURL() string {
	return s.URL + "/api"
}

// AddDocument stores a document
func (s *Server) AddDocument(doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[doc.ID] = &doc
}

// AddTag stores a tag and returns its id
func (s *Server) AddTag(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(s.tags, name)
}

// AddCorrespondent stores a correspondent and returns its id
func (s *Server) AddCorrespondent(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(s.correspondents, name)
}

// Document returns a copy of a stored document
func (s *Server) Document(id int) Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.documents[id]
}

// TagID returns the id of a tag by exact name
func (s *Server) TagID(name string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lookup(s.tags, name)
}

// CorrespondentID returns the id of a correspondent by exact name
func (s *Server) CorrespondentID(name string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lookup(s.correspondents, name)
}

// CountTags returns how many tags carry the given name
func (s *Server) CountTags(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.tags {
		if v == name {
			n++
		}
	}
	return n
}

// SetRaceOnCreate simulates a concurrent creator for every create request
func (s *Server) SetRaceOnCreate(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raceOnCreate = enabled
}

// RequestCount returns the number of requests served
func (s *Server) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Requests returns "METHOD /path?query" for every request served
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// CreateCount returns how many times kind ("tag" or "correspondent") name was created
func (s *Server) CreateCount(kind, name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates[kind+":"+name]
}

// Patches returns the decoded bodies of every document update
func (s *Server) Patches() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.patches...)
}

func (s *Server) insert(store map[int]string, name string) int {
	s.nextID++
	store[s.nextID] = name
	return s.nextID
}

func lookup(store map[int]string, name string) (int, bool) {
	for id, v := range store {
		if v == name {
			return id, true
		}
	}
	return 0, false
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.Method+" "+r.URL.RequestURI())
		s.mu.Unlock()

		if r.Header.Get("Authorization") != "Token "+Token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid token."})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.document(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "No Document matches the given query."})
		return
	}

	var created any
	if doc.Created != "" {
		created = doc.Created
	}
	tags := doc.Tags
	if tags == nil {
		tags = []int{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":            doc.ID,
		"title":         doc.Title,
		"correspondent": doc.Correspondent,
		"created":       created,
		"tags":          tags,
	})
}

func (s *Server) handlePatchDocument(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.document(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "No Document matches the given query."})
		return
	}

	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	s.patches = append(s.patches, fields)

	for key, value := range fields {
		switch key {
		case "title":
			doc.Title, _ = value.(string)
		case "created":
			doc.Created, _ = value.(string)
		case "correspondent":
			if f, ok := value.(float64); ok {
				id := int(f)
				doc.Correspondent = &id
			}
		case "tags":
			doc.Tags = nil
			items, _ := value.([]any)
			for _, item := range items {
				if f, ok := item.(float64); ok {
					doc.Tags = append(doc.Tags, int(f))
				}
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": doc.ID})
}

func (s *Server) document(r *http.Request) (*Document, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		return nil, false
	}
	doc, ok := s.documents[id]
	return doc, ok
}

func (s *Server) listHandler(store func() map[int]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		query := r.URL.Query()
		var ids []int
		for id, name := range store() {
			if iexact := query.Get("name__iexact"); iexact != "" && !strings.EqualFold(name, iexact) {
				continue
			}
			if in := query.Get("id__in"); in != "" && !containsID(in, id) {
				continue
			}
			ids = append(ids, id)
		}
		sort.Ints(ids)

		results := make([]map[string]any, 0, len(ids))
		for _, id := range ids {
			results = append(results, map[string]any{"id": id, "name": store()[id]})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"count":    len(results),
			"next":     nil,
			"previous": nil,
			"results":  results,
		})
	}
}

func (s *Server) createHandler(kind string, store func() map[int]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		var body struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"name": []string{"This field is required."}})
			return
		}

		if _, exists := lookup(store(), body.Name); exists {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"name": []string{fmt.Sprintf("%s with this name already exists.", kind)},
			})
			return
		}

		id := s.insert(store(), body.Name)
		s.creates[kind+":"+body.Name]++

		if s.raceOnCreate {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"name": []string{fmt.Sprintf("%s with this name already exists.", kind)},
			})
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{"id": id, "name": body.Name})
	}
}

func containsID(list string, id int) bool {
	for _, part := range strings.Split(list, ",") {
		if n, err := strconv.Atoi(part); err == nil && n == id {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
