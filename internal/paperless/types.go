package paperless

import (
	"errors"
	"fmt"
	"net/http"
)

// Document fields that can be written by a partial update
const (
	FieldCorrespondent = "correspondent"
	FieldTitle         = "title"
	FieldCreated       = "created"
	FieldTags          = "tags"
)

// EntityRef references a correspondent or tag by id and name
type EntityRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Document is the subset of a Paperless document record this hook reads
type Document struct {
	ID            int
	Title         string
	Correspondent *int
	Created       string
	Tags          []EntityRef
}

// HasCorrespondent reports whether a correspondent is assigned
func (d *Document) HasCorrespondent() bool {
	return d.Correspondent != nil
}

// TagIDs returns the ids of the assigned tags in document order
func (d *Document) TagIDs() []int {
	ids := make([]int, 0, len(d.Tags))
	for _, tag := range d.Tags {
		ids = append(ids, tag.ID)
	}
	return ids
}

// UpdateSet maps document field names to their new values for a partial update
type UpdateSet map[string]any

// Fields returns the field names present in the set, in a stable order
func (u UpdateSet) Fields() []string {
	var fields []string
	for _, name := range []string{FieldCorrespondent, FieldTitle, FieldCreated, FieldTags} {
		if _, ok := u[name]; ok {
			fields = append(fields, name)
		}
	}
	return fields
}

// documentResponse is the wire format of GET /documents/{id}/
type documentResponse struct {
	ID            int     `json:"id"`
	Title         string  `json:"title"`
	Correspondent *int    `json:"correspondent"`
	Created       *string `json:"created"`
	Tags          []int   `json:"tags"`
}

// listResponse is the paginated wrapper of Paperless list endpoints
type listResponse struct {
	Count   int         `json:"count"`
	Next    *string     `json:"next"`
	Results []EntityRef `json:"results"`
}

// APIError is returned for any non-2xx response from Paperless
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paperless API error (%d) on %s %s: %s", e.StatusCode, e.Method, e.Path, e.Body)
}

// IsNotFound reports whether err is a 404 from the API
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// isConflict reports whether a create was rejected because the name already exists
func isConflict(err error) bool {
	return hasStatus(err, http.StatusBadRequest) || hasStatus(err, http.StatusConflict)
}

func hasStatus(err error, status int) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == status
	}
	return false
}
