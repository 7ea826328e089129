// Package kgraph turns unstructured text into a knowledge graph using a
// language model: text is normalized and segmented, each segment is mined
// for subject-predicate-object triples, entity names are consolidated into
// canonical forms and the result is assembled into a directed graph.
package kgraph

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bbiangul/kgraph/graph"
	"github.com/bbiangul/kgraph/llm"
	"github.com/bbiangul/kgraph/parser"
	"github.com/bbiangul/kgraph/render"
	"github.com/bbiangul/kgraph/store"
)

// Engine is the main entry point: it runs the pipeline over text or files
// and keeps the results in a local store.
type Engine interface {
	// Extract builds a graph from text. Skips extraction when the same
	// content already has a stored run, unless WithForce is given.
	Extract(ctx context.Context, text string, opts ...ExtractOption) (*Extraction, error)

	// ExtractFile parses a document by extension and extracts from its text.
	ExtractFile(ctx context.Context, path string, opts ...ExtractOption) (*Extraction, error)

	// Graph loads a stored graph with its node community IDs.
	Graph(ctx context.Context, documentID int64) (*graph.Graph, map[string]int, error)

	// Render writes a stored graph as HTML.
	Render(ctx context.Context, documentID int64, w io.Writer, opts render.Options) error

	// ListDocuments returns all stored documents, newest first.
	ListDocuments(ctx context.Context) ([]store.Document, error)

	// Delete removes a document and its run.
	Delete(ctx context.Context, documentID int64) error

	// Stats reports row counts of the store.
	Stats(ctx context.Context) (*store.Stats, error)

	// Close releases the store.
	Close() error
}

// Extraction is the outcome of Engine.Extract.
type Extraction struct {
	DocumentID  int64   `json:"document_id,omitempty"` // zero when the store is disabled
	Source      string  `json:"source"`
	ContentHash string  `json:"content_hash"`
	Reused      bool    `json:"reused"` // loaded from an earlier run
	Result      *Result `json:"result"`
}

// ExtractOption configures a single extraction.
type ExtractOption func(*extractOptions)

type extractOptions struct {
	force  bool
	source string
}

// WithForce re-runs extraction even if the content hash is already stored.
func WithForce() ExtractOption {
	return func(o *extractOptions) { o.force = true }
}

// WithSource labels the document, e.g. with a file name or "stdin".
func WithSource(source string) ExtractOption {
	return func(o *extractOptions) { o.source = source }
}

// Option configures an Engine at construction.
type Option func(*engineOptions)

type engineOptions struct {
	service graph.Service
}

// WithService replaces the LLM-backed service, e.g. with a test double.
// No provider is created when a service is given.
func WithService(svc graph.Service) Option {
	return func(o *engineOptions) { o.service = svc }
}

// engine is the concrete implementation of Engine.
type engine struct {
	cfg      Config
	store    *store.Store // nil when cfg.NoStore
	pipeline *Pipeline
	parsers  *parser.Registry
}

// New creates an Engine from cfg.
func New(cfg Config, opts ...Option) (Engine, error) {
	options := &engineOptions{}
	for _, o := range opts {
		o(options)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	var s *store.Store
	if !cfg.NoStore {
		dbPath := cfg.resolveDBPath()
		var err error
		s, err = store.New(dbPath)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		slog.Debug("engine: store opened", "path", dbPath)
	}

	svc := options.service
	if svc == nil {
		chat, err := llm.NewProvider(cfg.Chat)
		if err != nil {
			if s != nil {
				s.Close()
			}
			return nil, fmt.Errorf("creating chat provider: %w", err)
		}
		if s != nil && cfg.CacheResponses {
			chat = llm.WithCache(chat, s)
		}
		svc = graph.NewLLMService(chat, cfg.Service)
	}

	return &engine{
		cfg:   cfg,
		store: s,
		pipeline: NewPipeline(svc,
			WithConcurrency(cfg.Concurrency),
			WithRequestTimeout(cfg.RequestTimeout),
			WithMaxChars(cfg.MaxChars),
		),
		parsers: parser.NewRegistry(),
	}, nil
}

// Extract runs the pipeline over text.
func (e *engine) Extract(ctx context.Context, text string, opts ...ExtractOption) (*Extraction, error) {
	options := &extractOptions{source: "text"}
	for _, o := range opts {
		o(options)
	}
	return e.extract(ctx, text, contentHash([]byte(text)), options)
}

// ExtractFile parses path and runs the pipeline over its text.
func (e *engine) ExtractFile(ctx context.Context, path string, opts ...ExtractOption) (*Extraction, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	options := &extractOptions{source: absPath}
	for _, o := range opts {
		o(options)
	}

	hash, err := fileHash(absPath)
	if err != nil {
		return nil, fmt.Errorf("hashing file: %w", err)
	}

	// A stored run makes parsing unnecessary.
	if ex, ok := e.reuse(ctx, hash, options); ok {
		return ex, nil
	}

	format := parser.FormatOf(absPath)
	p, err := e.parsers.Get(format)
	if err != nil {
		return nil, fmt.Errorf("%w: %q (supported: %s)",
			ErrUnsupportedFormat, format, strings.Join(e.parsers.Formats(), ", "))
	}
	parsed, err := p.Parse(ctx, absPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	slog.Info("extract: parsed document",
		"file", filepath.Base(absPath), "format", format,
		"method", parsed.Method, "sections", len(parsed.Sections))

	options.force = true // already checked above
	return e.extract(ctx, parsed.Text(), hash, options)
}

func (e *engine) extract(ctx context.Context, text, hash string, options *extractOptions) (*Extraction, error) {
	if ex, ok := e.reuse(ctx, hash, options); ok {
		return ex, nil
	}

	// A forced re-run marks the stored document until the new run replaces it.
	prior := e.markProcessing(ctx, hash)

	res, err := e.pipeline.Run(ctx, text)
	if err != nil {
		if prior != 0 {
			if serr := e.store.UpdateDocumentStatus(context.WithoutCancel(ctx), prior, store.StatusError); serr != nil {
				slog.Warn("extract: marking run failed", "doc_id", prior, "error", serr)
			}
		}
		return nil, err
	}
	ex := &Extraction{Source: options.source, ContentHash: hash, Result: res}
	if e.store == nil {
		return ex, nil
	}

	status := store.StatusReady
	if res.Graph == nil {
		status = store.StatusEmpty
	}
	segs := res.segmentOf()
	triples := make([]store.SegmentTriple, len(res.Triples))
	for i, t := range res.Triples {
		triples[i] = store.SegmentTriple{Segment: segs[i], Triple: t}
	}

	id, err := e.store.SaveRun(ctx, store.Run{
		Source:      options.source,
		ContentHash: hash,
		Status:      status,
		Segments:    len(res.Segments),
		Triples:     triples,
		Aliases:     res.Aliases,
		Graph:       res.Graph,
		Communities: res.Communities,
	})
	if err != nil {
		return ex, fmt.Errorf("saving run: %w", err)
	}
	ex.DocumentID = id
	slog.Info("extract: run saved", "doc_id", id, "source", options.source, "status", status)
	return ex, nil
}

// markProcessing flags an existing document for hash as processing and
// returns its ID, or 0 when there is none.
func (e *engine) markProcessing(ctx context.Context, hash string) int64 {
	if e.store == nil {
		return 0
	}
	doc, err := e.store.GetDocumentByHash(ctx, hash)
	if err != nil {
		return 0
	}
	if err := e.store.UpdateDocumentStatus(ctx, doc.ID, store.StatusProcessing); err != nil {
		slog.Warn("extract: marking run processing", "doc_id", doc.ID, "error", err)
	}
	return doc.ID
}

// reuse loads a stored run for hash unless forced or the store is off.
func (e *engine) reuse(ctx context.Context, hash string, options *extractOptions) (*Extraction, bool) {
	if e.store == nil || options.force {
		return nil, false
	}
	doc, err := e.store.GetDocumentByHash(ctx, hash)
	if err != nil {
		return nil, false
	}
	if doc.Status != store.StatusReady && doc.Status != store.StatusEmpty {
		return nil, false
	}
	res, err := e.loadResult(ctx, doc)
	if err != nil {
		slog.Warn("extract: stored run unreadable, re-extracting", "doc_id", doc.ID, "error", err)
		return nil, false
	}
	slog.Info("extract: content unchanged, reusing stored run", "doc_id", doc.ID, "source", doc.Source)
	return &Extraction{
		DocumentID:  doc.ID,
		Source:      doc.Source,
		ContentHash: hash,
		Reused:      true,
		Result:      res,
	}, true
}

// loadResult rebuilds a Result from the store. Segments and diagnostics
// are not persisted.
func (e *engine) loadResult(ctx context.Context, doc *store.Document) (*Result, error) {
	stored, err := e.store.LoadTriples(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	aliases, err := e.store.LoadAliases(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	g, communities, err := e.store.LoadGraph(ctx, doc.ID)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Graph:       g,
		Aliases:     aliases,
		Communities: communities,
		Stats: Stats{
			Segments:          doc.SegmentCount,
			TriplesPerSegment: make([]int, doc.SegmentCount),
			AliasGroups:       len(aliases),
		},
	}
	for _, t := range stored {
		res.Triples = append(res.Triples, t.Triple)
		if t.Segment >= 0 && t.Segment < len(res.Stats.TriplesPerSegment) {
			res.Stats.TriplesPerSegment[t.Segment]++
		}
	}
	res.Entities = entitySet(res.Triples)
	res.Stats.Triples = len(res.Triples)
	res.Stats.Entities = len(res.Entities)
	if g != nil {
		res.Stats.Nodes = g.NodeCount()
		res.Stats.Edges = g.EdgeCount()
	}
	return res, nil
}

// Graph loads a stored graph.
func (e *engine) Graph(ctx context.Context, documentID int64) (*graph.Graph, map[string]int, error) {
	if e.store == nil {
		return nil, nil, ErrStoreDisabled
	}
	if _, err := e.store.GetDocument(ctx, documentID); err != nil {
		return nil, nil, mapStoreErr(err)
	}
	g, communities, err := e.store.LoadGraph(ctx, documentID)
	if err != nil {
		return nil, nil, err
	}
	if g == nil {
		return nil, nil, ErrNoTriples
	}
	return g, communities, nil
}

// Render writes a stored graph as HTML.
func (e *engine) Render(ctx context.Context, documentID int64, w io.Writer, opts render.Options) error {
	g, communities, err := e.Graph(ctx, documentID)
	if err != nil {
		return err
	}
	if opts.ColorByCommunity && opts.Communities == nil {
		opts.Communities = communities
	}
	return render.HTML(w, g, opts)
}

// ListDocuments returns all stored documents.
func (e *engine) ListDocuments(ctx context.Context) ([]store.Document, error) {
	if e.store == nil {
		return nil, ErrStoreDisabled
	}
	return e.store.ListDocuments(ctx)
}

// Delete removes a document and its run.
func (e *engine) Delete(ctx context.Context, documentID int64) error {
	if e.store == nil {
		return ErrStoreDisabled
	}
	return mapStoreErr(e.store.DeleteDocument(ctx, documentID))
}

// Stats reports store row counts.
func (e *engine) Stats(ctx context.Context) (*store.Stats, error) {
	if e.store == nil {
		return nil, ErrStoreDisabled
	}
	return e.store.Stats(ctx)
}

// Close shuts down the engine.
func (e *engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

func mapStoreErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrDocumentNotFound
	}
	return err
}

// RenderResult writes the graph of a fresh result to path. It returns
// ErrNoTriples when the run produced no graph.
func RenderResult(res *Result, path string, opts render.Options) (string, error) {
	if res == nil || res.Graph == nil {
		return "", ErrNoTriples
	}
	if opts.ColorByCommunity && opts.Communities == nil {
		opts.Communities = res.Communities
	}
	return render.WriteFile(path, res.Graph, opts)
}

func contentHash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// fileHash computes the SHA-256 hash of a file's content.
func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
