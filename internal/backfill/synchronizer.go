package backfill

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/a3tai/paperless-pdf-meta/internal/paperless"
	"github.com/a3tai/paperless-pdf-meta/internal/pdf"
)

// MetadataExtractor reads normalized metadata from a PDF file
type MetadataExtractor interface {
	Extract(path string) (*pdf.NormalizedMetadata, error)
}

// DocumentAPI is the part of the Paperless API the synchronizer needs
type DocumentAPI interface {
	GetDocument(ctx context.Context, id string) (*paperless.Document, error)
	GetOrCreateCorrespondent(ctx context.Context, name string) (int, error)
	GetOrCreateTag(ctx context.Context, name string) (int, error)
	UpdateDocument(ctx context.Context, id string, updates paperless.UpdateSet) error
}

// SkipReason explains why a run ended without writing
type SkipReason string

const (
	SkipNone            SkipReason = ""
	SkipNotPDF          SkipReason = "not_pdf"
	SkipNoMetadata      SkipReason = "no_metadata"
	SkipNothingToUpdate SkipReason = "nothing_to_update"
	SkipDryRun          SkipReason = "dry_run"
)

// Result describes the outcome of one run
type Result struct {
	DocumentID string                  `json:"document_id"`
	SourcePath string                  `json:"source_path"`
	Metadata   *pdf.NormalizedMetadata `json:"metadata,omitempty"`
	Updates    paperless.UpdateSet     `json:"updates,omitempty"`
	Applied    bool                    `json:"applied"`
	Skipped    SkipReason              `json:"skipped,omitempty"`
}

// Options tunes a Synchronizer
type Options struct {
	// DryRun computes and logs the update set without writing it
	DryRun bool
	Debug  bool
}

// Synchronizer backfills empty document fields from embedded PDF metadata
type Synchronizer struct {
	extractor MetadataExtractor
	api       DocumentAPI
	opts      Options
}

// NewSynchronizer creates a new synchronizer
func NewSynchronizer(extractor MetadataExtractor, api DocumentAPI, opts Options) (*Synchronizer, error) {
	if extractor == nil {
		return nil, fmt.Errorf("extractor cannot be nil")
	}
	if api == nil {
		return nil, fmt.Errorf("document API cannot be nil")
	}
	return &Synchronizer{
		extractor: extractor,
		api:       api,
		opts:      opts,
	}, nil
}

// IsPDF reports whether path has a .pdf extension, ignoring case
func IsPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// Run backfills one document from the PDF at sourcePath. Non-PDF sources and
// PDFs without metadata are a successful no-op that makes no API calls.
func (s *Synchronizer) Run(ctx context.Context, documentID, sourcePath string) (*Result, error) {
	result := &Result{
		DocumentID: documentID,
		SourcePath: sourcePath,
	}

	if !IsPDF(sourcePath) {
		s.debugf("document %s: %s is not a PDF, skipping", documentID, sourcePath)
		result.Skipped = SkipNotPDF
		return result, nil
	}

	metadata, err := s.extractor.Extract(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to extract metadata from %s: %w", sourcePath, err)
	}
	result.Metadata = metadata

	if metadata.IsEmpty() {
		s.debugf("document %s: no embedded metadata in %s", documentID, sourcePath)
		result.Skipped = SkipNoMetadata
		return result, nil
	}

	doc, err := s.api.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	updates, err := s.BuildUpdates(ctx, doc, metadata)
	if err != nil {
		return nil, err
	}
	result.Updates = updates

	if len(updates) == 0 {
		s.debugf("document %s: nothing to update", documentID)
		result.Skipped = SkipNothingToUpdate
		return result, nil
	}

	if s.opts.DryRun {
		log.Printf("document %s: dry run, would update %s", documentID, strings.Join(updates.Fields(), ", "))
		result.Skipped = SkipDryRun
		return result, nil
	}

	if err := s.api.UpdateDocument(ctx, documentID, updates); err != nil {
		return nil, err
	}
	result.Applied = true
	log.Printf("document %s: updated %s", documentID, strings.Join(updates.Fields(), ", "))

	return result, nil
}

// BuildUpdates computes the partial update for doc. Correspondent, title and
// created are only filled when empty on the document; tags are only ever added.
func (s *Synchronizer) BuildUpdates(ctx context.Context, doc *paperless.Document, metadata *pdf.NormalizedMetadata) (paperless.UpdateSet, error) {
	updates := paperless.UpdateSet{}

	// a blank author cannot name a correspondent
	if strings.TrimSpace(metadata.Correspondent) != "" && !doc.HasCorrespondent() {
		id, err := s.api.GetOrCreateCorrespondent(ctx, metadata.Correspondent)
		if err != nil {
			return nil, err
		}
		updates[paperless.FieldCorrespondent] = id
	}

	if metadata.Title != "" && doc.Title == "" {
		updates[paperless.FieldTitle] = metadata.Title
	}

	if metadata.HasCreated() && doc.Created == "" {
		updates[paperless.FieldCreated] = metadata.CreatedString()
	}

	if len(metadata.Tags) > 0 {
		tags, err := s.mergeTags(ctx, doc, metadata.Tags)
		if err != nil {
			return nil, err
		}
		if tags != nil {
			updates[paperless.FieldTags] = tags
		}
	}

	return updates, nil
}

// mergeTags resolves each tag name once and returns the existing tag ids
// followed by the new ones, or nil when nothing new was found
func (s *Synchronizer) mergeTags(ctx context.Context, doc *paperless.Document, names []string) ([]int, error) {
	existing := doc.TagIDs()
	present := make(map[int]bool, len(existing))
	for _, id := range existing {
		present[id] = true
	}

	resolved := make(map[string]int, len(names))
	var added []int
	for _, name := range names {
		id, ok := resolved[name]
		if !ok {
			var err error
			id, err = s.api.GetOrCreateTag(ctx, name)
			if err != nil {
				return nil, err
			}
			resolved[name] = id
		}

		if present[id] {
			continue
		}
		present[id] = true
		added = append(added, id)
	}

	if len(added) == 0 {
		return nil, nil
	}
	return append(existing, added...), nil
}

func (s *Synchronizer) debugf(format string, args ...any) {
	if s.opts.Debug {
		log.Printf(format, args...)
	}
}
