package pdf

import (
	"strings"
	"time"
)

// Info dictionary keys, spelled the way they appear in the PDF name tree
const (
	KeyAuthor       = "/Author"
	KeyTitle        = "/Title"
	KeyKeywords     = "/Keywords"
	KeyCreationDate = "/CreationDate"
)

const (
	// pdfDateLayout covers the YYYYMMDDHHmmSS prefix of a PDF date string
	pdfDateLayout = "20060102150405"
	pdfDatePrefix = "D:"

	// CreatedLayout is the ISO-8601 rendering used for the created field (no zone)
	CreatedLayout = "2006-01-02T15:04:05"
)

// RawMetadata is the Info dictionary of a PDF, keyed by name-tree identifier
type RawMetadata map[string]string

// NormalizedMetadata holds the fields that can be backfilled into a document.
// Zero values mean the PDF carried no usable information for that field.
type NormalizedMetadata struct {
	Correspondent string    `json:"correspondent,omitempty"`
	Title         string    `json:"title,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	Created       time.Time `json:"-"`
}

// IsEmpty reports whether no field could be derived
func (m *NormalizedMetadata) IsEmpty() bool {
	return m == nil || (m.Correspondent == "" && m.Title == "" && m.Tags == nil && m.Created.IsZero())
}

// HasCreated reports whether a creation timestamp was parsed
func (m *NormalizedMetadata) HasCreated() bool {
	return !m.Created.IsZero()
}

// CreatedString returns the creation timestamp as an ISO-8601 string, or "" when absent
func (m *NormalizedMetadata) CreatedString() string {
	if !m.HasCreated() {
		return ""
	}
	return m.Created.Format(CreatedLayout)
}

// Normalize maps a raw Info dictionary onto the backfillable fields
func Normalize(raw RawMetadata) *NormalizedMetadata {
	result := &NormalizedMetadata{}

	if author := raw[KeyAuthor]; author != "" {
		result.Correspondent = author
	}

	if title := raw[KeyTitle]; title != "" {
		result.Title = title
	}

	if keywords := raw[KeyKeywords]; keywords != "" {
		result.Tags = SplitKeywords(keywords)
	}

	if created, ok := ParseCreationDate(raw[KeyCreationDate]); ok {
		result.Created = created
	}

	return result
}

// SplitKeywords splits a comma separated keyword string into trimmed tag names.
// Empty pieces are dropped, order and duplicates are kept. Returns nil when
// nothing survives.
func SplitKeywords(keywords string) []string {
	var tags []string
	for _, piece := range strings.Split(keywords, ",") {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		tags = append(tags, piece)
	}
	return tags
}

// ParseCreationDate parses the leading YYYYMMDDHHmmSS of a PDF date string.
// The timezone suffix is ignored. ok is false for anything that does not parse.
func ParseCreationDate(value string) (time.Time, bool) {
	value = strings.TrimPrefix(value, pdfDatePrefix)
	if len(value) > len(pdfDateLayout) {
		value = value[:len(pdfDateLayout)]
	}

	parsed, err := time.Parse(pdfDateLayout, value)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}
