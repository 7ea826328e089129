// Package render writes a knowledge graph as an interactive vis-network
// HTML page.
package render

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/bbiangul/kgraph/graph"
)

// DefaultFile is the artifact name used when no path is given.
const DefaultFile = "knowledge_graph.html"

// ErrEmptyGraph is returned when asked to render a nil or empty graph.
var ErrEmptyGraph = errors.New("render: empty graph")

// Node styling.
const (
	SubjectColor = "#6a9df6"
	ObjectColor  = "#f66a6a"
	SubjectSize  = 25
	ObjectSize   = 20

	background = "#222222"
	fontColor  = "white"
)

// communityPalette colors nodes when Options.ColorByCommunity is set.
var communityPalette = []string{
	"#6a9df6", "#f66a6a", "#6af69d", "#f6d76a", "#b26af6", "#6af6f0",
	"#f6a86a", "#f66ad7", "#a8f66a", "#6a6cf6", "#c4c4c4", "#f6f06a",
}

// Options tunes the page.
type Options struct {
	Title  string
	Height string // CSS height, default 1200px

	// ColorByCommunity colors nodes by Communities (node name to ID)
	// instead of by subject/object role.
	ColorByCommunity bool
	Communities      map[string]int
}

type visNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Title string `json:"title"`
	Color string `json:"color"`
	Size  int    `json:"size"`
	Group *int   `json:"group,omitempty"`
}

type visEdge struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Label  string `json:"label"`
	Title  string `json:"title"`
	Arrows string `json:"arrows"`
}

// visOptions is the vis-network configuration, including the
// forceAtlas2Based physics layout.
var visOptions = map[string]any{
	"nodes": map[string]any{
		"shape": "dot",
		"font":  map[string]any{"color": fontColor},
	},
	"edges": map[string]any{
		"font":   map[string]any{"color": fontColor, "strokeWidth": 0, "align": "middle"},
		"color":  map[string]any{"inherit": true},
		"smooth": map[string]any{"type": "continuous"},
	},
	"physics": map[string]any{
		"solver": "forceAtlas2Based",
		"forceAtlas2Based": map[string]any{
			"gravitationalConstant": -100,
			"centralGravity":        0.01,
			"springLength":          200,
			"springConstant":        0.08,
		},
		"minVelocity": 0.75,
	},
}

var page = template.Must(template.New("graph").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<script src="https://unpkg.com/vis-network@9.1.9/standalone/umd/vis-network.min.js"></script>
<style>
body { margin: 0; background-color: {{.Background}}; }
#graph { width: 100%; height: {{.Height}}; background-color: {{.Background}}; }
</style>
</head>
<body>
<div id="graph"></div>
<script>
var nodes = new vis.DataSet({{.Nodes}});
var edges = new vis.DataSet({{.Edges}});
var options = {{.Options}};
new vis.Network(document.getElementById("graph"), { nodes: nodes, edges: edges }, options);
</script>
</body>
</html>
`))

// HTML writes g as a standalone page to w.
func HTML(w io.Writer, g *graph.Graph, opts Options) error {
	if g == nil || g.NodeCount() == 0 {
		return ErrEmptyGraph
	}
	if opts.Title == "" {
		opts.Title = "Knowledge Graph"
	}
	if opts.Height == "" {
		opts.Height = "1200px"
	}

	nodes := make([]visNode, 0, g.NodeCount())
	for _, n := range g.Nodes() {
		nodes = append(nodes, styleNode(n, opts))
	}
	edges := make([]visEdge, 0, g.EdgeCount())
	for _, e := range g.Edges() {
		edges = append(edges, visEdge{
			From:   e.Source,
			To:     e.Target,
			Label:  e.Label,
			Title:  e.Source + " " + e.Label + " " + e.Target,
			Arrows: "to",
		})
	}

	return page.Execute(w, struct {
		Title      string
		Height     string
		Background string
		Nodes      []visNode
		Edges      []visEdge
		Options    map[string]any
	}{opts.Title, opts.Height, background, nodes, edges, visOptions})
}

func styleNode(n graph.Node, opts Options) visNode {
	v := visNode{ID: n.Name, Label: n.Name, Title: n.Name, Color: ObjectColor, Size: ObjectSize}
	if n.Role == graph.RoleSubject {
		v.Color, v.Size = SubjectColor, SubjectSize
	}
	if opts.ColorByCommunity {
		if c, ok := opts.Communities[n.Name]; ok && c >= 0 {
			v.Color = communityPalette[c%len(communityPalette)]
			v.Group = &c
			v.Title = fmt.Sprintf("%s (community %d)", n.Name, c)
		}
	}
	return v
}

// WriteFile renders g to path (DefaultFile when empty) and returns the
// absolute path written.
func WriteFile(path string, g *graph.Graph, opts Options) (string, error) {
	if path == "" {
		path = DefaultFile
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	f, err := os.Create(abs)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", abs, err)
	}
	if err := HTML(f, g, opts); err != nil {
		f.Close()
		os.Remove(abs)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	slog.Info("render: graph written", "path", abs, "nodes", g.NodeCount(), "edges", g.EdgeCount())
	return abs, nil
}

// startCommand launches a process without waiting for it.
var startCommand = func(name string, args ...string) error {
	return exec.Command(name, args...).Start()
}

// Open asks the platform to open path in a browser. Failures are logged
// and returned; callers usually ignore them.
func Open(path string) error {
	var name string
	var args []string
	switch runtime.GOOS {
	case "darwin":
		name, args = "open", []string{path}
	case "windows":
		name, args = "rundll32", []string{"url.dll,FileProtocolHandler", path}
	default:
		name, args = "xdg-open", []string{path}
	}
	if err := startCommand(name, args...); err != nil {
		slog.Warn("render: could not open browser", "path", path, "error", err)
		return err
	}
	return nil
}
