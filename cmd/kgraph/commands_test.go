package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbiangul/kgraph"
	"github.com/bbiangul/kgraph/graph"
	"github.com/bbiangul/kgraph/render"
	"github.com/bbiangul/kgraph/store"
)

type stubEngine struct {
	empty   bool
	text    string
	file    string
	cfg     kgraph.Config
	deleted int64
}

func (s *stubEngine) result() *kgraph.Result {
	if s.empty {
		return &kgraph.Result{Stats: kgraph.Stats{Segments: 1, TriplesPerSegment: []int{0}}}
	}
	triples := []graph.Triple{{Subject: "apple", Predicate: "makes", Object: "iphone"}}
	g, _ := graph.Assemble(triples, nil)
	return &kgraph.Result{
		Graph:   g,
		Triples: triples,
		Stats:   kgraph.Stats{Segments: 1, TriplesPerSegment: []int{1}, Triples: 1, Nodes: 2, Edges: 1},
	}
}

func (s *stubEngine) Extract(_ context.Context, text string, _ ...kgraph.ExtractOption) (*kgraph.Extraction, error) {
	s.text = text
	return &kgraph.Extraction{DocumentID: 7, Source: "stdin", Result: s.result()}, nil
}

func (s *stubEngine) ExtractFile(_ context.Context, path string, _ ...kgraph.ExtractOption) (*kgraph.Extraction, error) {
	s.file = path
	return &kgraph.Extraction{DocumentID: 7, Source: path, Result: s.result()}, nil
}

func (s *stubEngine) Graph(context.Context, int64) (*graph.Graph, map[string]int, error) {
	res := s.result()
	if res.Graph == nil {
		return nil, nil, kgraph.ErrNoTriples
	}
	return res.Graph, map[string]int{"apple": 0, "iphone": 0}, nil
}

func (s *stubEngine) Render(ctx context.Context, id int64, w io.Writer, opts render.Options) error {
	g, _, err := s.Graph(ctx, id)
	if err != nil {
		return err
	}
	return render.HTML(w, g, opts)
}

func (s *stubEngine) ListDocuments(context.Context) ([]store.Document, error) {
	return []store.Document{{ID: 7, Source: "notes.txt", Status: store.StatusReady, SegmentCount: 1, TripleCount: 1}}, nil
}

func (s *stubEngine) Delete(_ context.Context, id int64) error {
	s.deleted = id
	return nil
}

func (s *stubEngine) Stats(context.Context) (*store.Stats, error) {
	return &store.Stats{Documents: 1, Triples: 1, Nodes: 2, Edges: 1}, nil
}

func (s *stubEngine) Close() error { return nil }

func withStub(t *testing.T, s *stubEngine) {
	t.Helper()
	prev := openEngine
	openEngine = func(cfg kgraph.Config) (kgraph.Engine, error) {
		s.cfg = cfg
		return s, nil
	}
	t.Cleanup(func() { openEngine = prev })
}

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestExtractFromStdin(t *testing.T) {
	s := &stubEngine{}
	withStub(t, s)
	out := filepath.Join(t.TempDir(), "graph.html")

	stdout, _, err := execute(t, "Apple makes the iPhone.", "extract", "-", "--out", out, "--no-store")
	require.NoError(t, err)

	assert.Equal(t, "Apple makes the iPhone.", s.text)
	assert.True(t, s.cfg.NoStore)
	assert.Contains(t, stdout, "triples:  1")
	assert.Contains(t, stdout, "graph written to "+out)

	page, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(page), `"iphone"`)
}

func TestOpenFailureIsNotFatal(t *testing.T) {
	withStub(t, &stubEngine{})
	prev := openBrowser
	var opened []string
	openBrowser = func(path string) error {
		opened = append(opened, path)
		return errors.New("no display")
	}
	t.Cleanup(func() { openBrowser = prev })
	dir := t.TempDir()

	_, stderr, err := execute(t, "", "extract", "notes.txt", "--open", "--out", filepath.Join(dir, "a.html"))
	require.NoError(t, err)
	assert.Contains(t, stderr, "could not open browser")

	_, stderr, err = execute(t, "", "render", "7", "--open", "--out", filepath.Join(dir, "b.html"))
	require.NoError(t, err)
	assert.Contains(t, stderr, "could not open browser")
	assert.Len(t, opened, 2)
}

func TestExtractFileJSON(t *testing.T) {
	s := &stubEngine{}
	withStub(t, s)
	out := filepath.Join(t.TempDir(), "graph.html")

	stdout, _, err := execute(t, "", "extract", "notes.txt", "--json", "--out", out)
	require.NoError(t, err)

	assert.Equal(t, "notes.txt", s.file)
	assert.Contains(t, stdout, `"document_id": 7`)
	assert.NotContains(t, stdout, "graph written")
	assert.FileExists(t, out)
}

func TestExtractEmptyWritesNoGraph(t *testing.T) {
	withStub(t, &stubEngine{empty: true})
	out := filepath.Join(t.TempDir(), "graph.html")

	_, stderr, err := execute(t, "", "extract", "notes.txt", "--out", out)
	require.NoError(t, err)
	assert.Contains(t, stderr, "no triples extracted")
	assert.NoFileExists(t, out)
}

func TestRenderStored(t *testing.T) {
	withStub(t, &stubEngine{})
	out := filepath.Join(t.TempDir(), "stored.html")

	stdout, _, err := execute(t, "", "render", "7", "--out", out, "--color-communities")
	require.NoError(t, err)
	assert.Contains(t, stdout, out)
	assert.FileExists(t, out)
}

func TestListDeleteStats(t *testing.T) {
	s := &stubEngine{}
	withStub(t, s)

	stdout, _, err := execute(t, "", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "notes.txt")
	assert.Contains(t, stdout, "ready")

	stdout, _, err = execute(t, "", "delete", "7")
	require.NoError(t, err)
	assert.Equal(t, int64(7), s.deleted)
	assert.Contains(t, stdout, "deleted document 7")

	stdout, _, err = execute(t, "", "stats")
	require.NoError(t, err)
	assert.Contains(t, stdout, "documents:     1")
}

func TestInvalidDocumentID(t *testing.T) {
	withStub(t, &stubEngine{})
	for _, arg := range []string{"abc", "0", "-3"} {
		_, _, err := execute(t, "", "delete", "--", arg)
		assert.ErrorIs(t, err, errInvalidID, arg)
	}
}

func TestConfigFlag(t *testing.T) {
	s := &stubEngine{}
	withStub(t, s)
	path := filepath.Join(t.TempDir(), "kgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_chars: 800\nconcurrency: 2\n"), 0o644))

	_, _, err := execute(t, "", "--config", path, "stats")
	require.NoError(t, err)
	assert.Equal(t, 800, s.cfg.MaxChars)
	assert.Equal(t, 2, s.cfg.Concurrency)
}

func TestSetupLoggingWritesJSON(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	setupLogging(&buf, true)
	slog.Debug("cli: segmented", "segments", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "DEBUG", rec["level"])
	assert.EqualValues(t, 3, rec["segments"])
}
