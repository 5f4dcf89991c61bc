package mcp

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/a3tai/paperless-pdf-meta/internal/backfill"
	"github.com/a3tai/paperless-pdf-meta/internal/config"
	"github.com/a3tai/paperless-pdf-meta/internal/pdf"
)

// Server represents the MCP server instance
type Server struct {
	config    *config.Config
	extractor *pdf.Extractor
	api       backfill.DocumentAPI
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, extractor *pdf.Extractor, api backfill.DocumentAPI) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if extractor == nil {
		return nil, fmt.Errorf("extractor cannot be nil")
	}
	if api == nil {
		return nil, fmt.Errorf("document API cannot be nil")
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		config:    cfg,
		extractor: extractor,
		api:       api,
		mcpServer: mcpServer,
	}

	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	extractTool := mcp.NewTool(
		"pdf_metadata_extract",
		mcp.WithDescription("Read the embedded Info dictionary of a PDF and show the fields it maps to in Paperless"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Full path to the PDF file"),
		),
	)
	s.mcpServer.AddTool(extractTool, s.handleMetadataExtract)

	syncTool := mcp.NewTool(
		"paperless_metadata_sync",
		mcp.WithDescription("Fill empty Paperless document fields from the metadata embedded in its PDF"),
		mcp.WithString("document_id",
			mcp.Required(),
			mcp.Description("Paperless document id"),
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Full path to the PDF the document was consumed from"),
		),
		mcp.WithBoolean("dry_run",
			mcp.Description("Report the update without writing it"),
		),
	)
	s.mcpServer.AddTool(syncTool, s.handleMetadataSync)
}

func (s *Server) handleMetadataExtract(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	raw, err := s.extractor.ReadRawMetadata(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatMetadata(path, raw, pdf.Normalize(raw))), nil
}

func (s *Server) handleMetadataSync(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	documentID, err := request.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	synchronizer, err := backfill.NewSynchronizer(s.extractor, s.api, backfill.Options{
		DryRun: s.config.DryRun || request.GetBool("dry_run", false),
		Debug:  s.config.IsDebug(),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := synchronizer.Run(ctx, documentID, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSyncResult(result)), nil
}

func formatMetadata(path string, raw pdf.RawMetadata, normalized *pdf.NormalizedMetadata) string {
	var b strings.Builder

	fmt.Fprintf(&b, "PDF metadata: %s\n\n", path)

	if len(raw) == 0 {
		b.WriteString("No Info dictionary entries found\n")
	} else {
		b.WriteString("Info dictionary:\n")
		keys := make([]string, 0, len(raw))
		for k := range raw {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %s\n", k, raw[k])
		}
	}

	b.WriteString("\nPaperless fields:\n")
	if normalized.IsEmpty() {
		b.WriteString("  (none)\n")
		return b.String()
	}
	if normalized.Correspondent != "" {
		fmt.Fprintf(&b, "  correspondent: %s\n", normalized.Correspondent)
	}
	if normalized.Title != "" {
		fmt.Fprintf(&b, "  title: %s\n", normalized.Title)
	}
	if normalized.HasCreated() {
		fmt.Fprintf(&b, "  created: %s\n", normalized.CreatedString())
	}
	if len(normalized.Tags) > 0 {
		fmt.Fprintf(&b, "  tags: %s\n", strings.Join(normalized.Tags, ", "))
	}

	return b.String()
}

func formatSyncResult(result *backfill.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Document %s (%s)\n", result.DocumentID, result.SourcePath)

	switch result.Skipped {
	case backfill.SkipNotPDF:
		b.WriteString("Skipped: source is not a PDF\n")
		return b.String()
	case backfill.SkipNoMetadata:
		b.WriteString("Skipped: no embedded metadata\n")
		return b.String()
	case backfill.SkipNothingToUpdate:
		b.WriteString("Nothing to update, all fields are already set\n")
		return b.String()
	case backfill.SkipDryRun:
		b.WriteString("Dry run, would update:\n")
	default:
		b.WriteString("Updated:\n")
	}

	for _, field := range result.Updates.Fields() {
		fmt.Fprintf(&b, "  %s: %v\n", field, result.Updates[field])
	}

	return b.String()
}

// Run serves the MCP tools over stdio until the client disconnects
func (s *Server) Run(_ context.Context) error {
	if s.config.IsDebug() {
		log.Printf("Starting MCP server %s %s in stdio mode", s.config.ServerName, s.config.Version)
		log.Printf("Paperless API: %s", s.config.APIURL)
	}

	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}
