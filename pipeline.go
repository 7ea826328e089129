package kgraph

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bbiangul/kgraph/chunker"
	"github.com/bbiangul/kgraph/graph"
)

// Result is everything a pipeline run produced.
type Result struct {
	// Graph is nil when no triples survived extraction.
	Graph       *graph.Graph       `json:"graph"`
	Segments    []string           `json:"segments"`
	Triples     []graph.Triple     `json:"triples"`
	Entities    []string           `json:"entities"`
	Aliases     graph.AliasMap     `json:"aliases"`
	Communities map[string]int     `json:"communities,omitempty"`
	Diagnostics []graph.Diagnostic `json:"diagnostics,omitempty"`
	Stats       Stats              `json:"stats"`
}

// Stats summarises a run.
type Stats struct {
	Segments          int           `json:"segments"`
	TriplesPerSegment []int         `json:"triples_per_segment"`
	Triples           int           `json:"triples"`
	Entities          int           `json:"entities"`
	AliasGroups       int           `json:"alias_groups"`
	FailedSegments    int           `json:"failed_segments"`
	Nodes             int           `json:"nodes"`
	Edges             int           `json:"edges"`
	Elapsed           time.Duration `json:"elapsed"`
}

// DiagnosticCounts tallies diagnostics by kind.
func (r *Result) DiagnosticCounts() map[graph.DiagnosticKind]int {
	out := make(map[graph.DiagnosticKind]int)
	for _, d := range r.Diagnostics {
		out[d.Kind]++
	}
	return out
}

// segmentOf returns the segment index of every triple, relying on triples
// being pooled in segment order.
func (r *Result) segmentOf() []int {
	out := make([]int, 0, len(r.Triples))
	for seg, n := range r.Stats.TriplesPerSegment {
		for range n {
			out = append(out, seg)
		}
	}
	return out
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithConcurrency caps in-flight extraction calls. Values below 1 are
// treated as 1.
func WithConcurrency(n int) PipelineOption {
	return func(p *Pipeline) {
		if n < 1 {
			n = 1
		}
		p.concurrency = n
	}
}

// WithRequestTimeout bounds each service call. Zero disables the bound.
func WithRequestTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) { p.timeout = d }
}

// WithMaxChars sets the segment length.
func WithMaxChars(n int) PipelineOption {
	return func(p *Pipeline) { p.chunkr = chunker.New(chunker.Config{MaxChars: n}) }
}

// Pipeline runs normalize, segment, extract, consolidate and assemble over
// one document.
type Pipeline struct {
	svc          graph.Service
	extractor    *graph.Extractor
	consolidator *graph.Consolidator
	chunkr       *chunker.Chunker
	concurrency  int
	timeout      time.Duration
}

// NewPipeline creates a Pipeline around svc.
func NewPipeline(svc graph.Service, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		svc:          svc,
		extractor:    graph.NewExtractor(svc),
		consolidator: graph.NewConsolidator(svc),
		chunkr:       chunker.New(chunker.Config{}),
		concurrency:  DefaultConcurrency,
		timeout:      DefaultRequestTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run processes document end to end. Service and parse failures become
// diagnostics on the Result; the error is non-nil only when ctx is done or
// the pipeline has no service.
func (p *Pipeline) Run(ctx context.Context, document string) (*Result, error) {
	if p == nil || p.svc == nil {
		return nil, ErrNilService
	}
	start := time.Now()

	segments := p.chunkr.Chunk(document)
	slog.Info("pipeline: segmented",
		"chars", len(document), "est_tokens", chunker.EstimateTokens(document),
		"segments", len(segments), "max_chars", p.chunkr.MaxChars())

	res := &Result{
		Segments: segments,
		Stats: Stats{
			Segments:          len(segments),
			TriplesPerSegment: make([]int, len(segments)),
		},
	}

	extracted, err := p.extractAll(ctx, segments)
	if err != nil {
		return nil, err
	}

	// Pool in segment order.
	for i, r := range extracted {
		res.Triples = append(res.Triples, r.Triples...)
		res.Diagnostics = append(res.Diagnostics, r.Diagnostics...)
		res.Stats.TriplesPerSegment[i] = len(r.Triples)
		if r.Failed() {
			res.Stats.FailedSegments++
		}
	}
	res.Stats.Triples = len(res.Triples)
	res.Entities = entitySet(res.Triples)
	res.Stats.Entities = len(res.Entities)
	slog.Info("pipeline: extraction complete",
		"segments", len(segments), "triples", res.Stats.Triples,
		"entities", res.Stats.Entities, "failed_segments", res.Stats.FailedSegments)

	if len(res.Triples) == 0 {
		res.Aliases = graph.AliasMap{}
		res.Diagnostics = append(res.Diagnostics, graph.Diagnostic{
			Kind:    graph.KindEmptyInput,
			Stage:   graph.StagePipeline,
			Segment: graph.NoSegment,
			Message: fmt.Sprintf("no triples extracted from %d segments", len(segments)),
		})
		return p.finish(res, start), nil
	}

	callCtx, cancel := p.callContext(ctx)
	cons := p.consolidator.Consolidate(callCtx, res.Entities)
	cancel()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res.Aliases = cons.Aliases
	res.Diagnostics = append(res.Diagnostics, cons.Diagnostics...)
	res.Stats.AliasGroups = len(cons.Aliases)
	slog.Info("pipeline: consolidation complete", "alias_groups", res.Stats.AliasGroups)

	g, diags := graph.Assemble(res.Triples, res.Aliases)
	res.Graph = g
	res.Diagnostics = append(res.Diagnostics, diags...)
	if g != nil {
		res.Communities = graph.Membership(graph.DetectCommunities(g))
		res.Stats.Nodes = g.NodeCount()
		res.Stats.Edges = g.EdgeCount()
	}
	slog.Info("pipeline: graph assembled", "nodes", res.Stats.Nodes, "edges", res.Stats.Edges)

	return p.finish(res, start), nil
}

// extractAll runs one extraction per segment with at most p.concurrency in
// flight. Results are indexed by segment, so completion order is irrelevant.
// Every call has returned when extractAll does.
func (p *Pipeline) extractAll(ctx context.Context, segments []string) ([]graph.ExtractResult, error) {
	results := make([]graph.ExtractResult, len(segments))
	var done atomic.Int64

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, seg := range segments {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			callCtx, cancel := p.callContext(ctx)
			defer cancel()

			results[i] = p.extractor.ExtractAt(callCtx, i, seg)
			slog.Debug("pipeline: segment extracted",
				"segment", i, "done", done.Add(1), "of", len(segments),
				"triples", len(results[i].Triples), "failed", results[i].Failed())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *Pipeline) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

func (p *Pipeline) finish(res *Result, start time.Time) *Result {
	res.Stats.Elapsed = time.Since(start)
	for _, d := range res.Diagnostics {
		switch d.Kind {
		case graph.KindTransport, graph.KindMalformedResponse:
			slog.Warn("pipeline: diagnostic", "detail", d.String(), "error", d.Err)
		default:
			slog.Info("pipeline: diagnostic", "detail", d.String())
		}
	}
	slog.Info("pipeline: done",
		"segments", res.Stats.Segments, "triples", res.Stats.Triples,
		"nodes", res.Stats.Nodes, "edges", res.Stats.Edges,
		"diagnostics", len(res.Diagnostics),
		"elapsed", res.Stats.Elapsed.Round(time.Millisecond))
	return res
}

// entitySet returns the distinct subjects and objects of triples, sorted.
func entitySet(triples []graph.Triple) []string {
	seen := make(map[string]struct{}, len(triples)*2)
	for _, t := range triples {
		seen[t.Subject] = struct{}{}
		seen[t.Object] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for e := range seen {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}
