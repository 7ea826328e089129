package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bbiangul/kgraph"
	"github.com/bbiangul/kgraph/render"
)

func newExtractCommand(g *globalFlags) *cobra.Command {
	var (
		out              string
		open             bool
		force            bool
		asJSON           bool
		colorCommunities bool
	)
	cmd := &cobra.Command{
		Use:   "extract [file|-]",
		Short: "Extract a knowledge graph from a document or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cfg, err := g.engine()
			if err != nil {
				return err
			}
			defer e.Close()

			var opts []kgraph.ExtractOption
			if force {
				opts = append(opts, kgraph.WithForce())
			}

			var ex *kgraph.Extraction
			if len(args) == 0 || args[0] == "-" {
				text, rerr := io.ReadAll(cmd.InOrStdin())
				if rerr != nil {
					return fmt.Errorf("reading stdin: %w", rerr)
				}
				opts = append(opts, kgraph.WithSource("stdin"))
				ex, err = e.Extract(cmd.Context(), string(text), opts...)
			} else {
				ex, err = e.ExtractFile(cmd.Context(), args[0], opts...)
			}
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				if err := enc.Encode(ex); err != nil {
					return err
				}
			} else {
				printSummary(w, ex)
			}

			if ex.Result.Graph == nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "no triples extracted; no graph written")
				return nil
			}
			if out == "" {
				out = cfg.Output
			}
			path, err := kgraph.RenderResult(ex.Result, out, render.Options{
				Title:            ex.Source,
				ColorByCommunity: colorCommunities,
			})
			if err != nil {
				return fmt.Errorf("rendering graph: %w", err)
			}
			if !asJSON {
				fmt.Fprintf(w, "graph written to %s\n", path)
			}
			if open {
				openGraph(cmd.ErrOrStderr(), path)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "HTML output path (default from config)")
	cmd.Flags().BoolVar(&open, "open", false, "Open the rendered graph in a browser")
	cmd.Flags().BoolVar(&force, "force", false, "Re-extract even if the document was processed before")
	cmd.Flags().BoolVar(&g.noStore, "no-store", false, "Do not persist the run or cache responses")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")
	cmd.Flags().BoolVar(&colorCommunities, "color-communities", false, "Color nodes by detected community")
	return cmd
}

// openBrowser is replaced in tests.
var openBrowser = render.Open

// openGraph launches the browser on path. A failed launch is reported and
// the command still succeeds, since the file is already written.
func openGraph(w io.Writer, path string) {
	if err := openBrowser(path); err != nil {
		fmt.Fprintf(w, "could not open browser automatically; open %s manually\n", path)
	}
}

func printSummary(w io.Writer, ex *kgraph.Extraction) {
	res := ex.Result
	if ex.Reused {
		fmt.Fprintf(w, "reused stored run for %s (document %d)\n", ex.Source, ex.DocumentID)
	}
	fmt.Fprintf(w, "segments: %d (failed %d)\n", res.Stats.Segments, res.Stats.FailedSegments)
	fmt.Fprintf(w, "triples:  %d\n", res.Stats.Triples)
	fmt.Fprintf(w, "entities: %d in %d alias groups\n", res.Stats.Entities, res.Stats.AliasGroups)
	fmt.Fprintf(w, "graph:    %d nodes, %d edges\n", res.Stats.Nodes, res.Stats.Edges)
	if n := len(res.Diagnostics); n > 0 {
		fmt.Fprintf(w, "diagnostics: %d\n", n)
		for _, d := range res.Diagnostics {
			fmt.Fprintf(w, "  %s\n", d)
		}
	}
	if !ex.Reused {
		fmt.Fprintf(w, "elapsed:  %s\n", res.Stats.Elapsed.Round(time.Millisecond))
	}
}

func newRenderCommand(g *globalFlags) *cobra.Command {
	var (
		out              string
		open             bool
		colorCommunities bool
	)
	cmd := &cobra.Command{
		Use:   "render <document-id>",
		Short: "Render a stored graph as HTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			e, cfg, err := g.engine()
			if err != nil {
				return err
			}
			defer e.Close()

			gr, communities, err := e.Graph(cmd.Context(), id)
			if err != nil {
				return err
			}
			if out == "" {
				out = cfg.Output
			}
			path, err := render.WriteFile(out, gr, render.Options{
				Title:            fmt.Sprintf("Document %d", id),
				ColorByCommunity: colorCommunities,
				Communities:      communities,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "graph written to %s\n", path)
			if open {
				openGraph(cmd.ErrOrStderr(), path)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "HTML output path (default from config)")
	cmd.Flags().BoolVar(&open, "open", false, "Open the rendered graph in a browser")
	cmd.Flags().BoolVar(&colorCommunities, "color-communities", false, "Color nodes by detected community")
	return cmd
}

func newListCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, _, err := g.engine()
			if err != nil {
				return err
			}
			defer e.Close()

			docs, err := e.ListDocuments(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tSEGMENTS\tTRIPLES\tUPDATED\tSOURCE")
			for _, d := range docs {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\t%s\n",
					d.ID, d.Status, d.SegmentCount, d.TripleCount,
					d.UpdatedAt, d.Source)
			}
			return tw.Flush()
		},
	}
}

func newDeleteCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Delete a stored document and its graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			e, _, err := g.engine()
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted document %d\n", id)
			return nil
		},
	}
}

func newStatsCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store row counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, _, err := g.engine()
			if err != nil {
				return err
			}
			defer e.Close()

			st, err := e.Stats(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "documents:     %d\n", st.Documents)
			fmt.Fprintf(w, "triples:       %d\n", st.Triples)
			fmt.Fprintf(w, "alias groups:  %d\n", st.Aliases)
			fmt.Fprintf(w, "nodes:         %d\n", st.Nodes)
			fmt.Fprintf(w, "edges:         %d\n", st.Edges)
			fmt.Fprintf(w, "cache entries: %d\n", st.CacheEntries)
			return nil
		},
	}
}

var errInvalidID = errors.New("document id must be a positive integer")

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", errInvalidID, s)
	}
	return id, nil
}
