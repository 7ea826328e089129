package graph

import (
	"fmt"
	"strings"
)

// Triple is one subject-predicate-object statement extracted from a segment.
// Fields are lowercase and trimmed once they leave the extractor.
type Triple struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

// Complete reports whether all three fields are non-empty.
func (t Triple) Complete() bool {
	return t.Subject != "" && t.Predicate != "" && t.Object != ""
}

func (t Triple) String() string {
	return fmt.Sprintf("(%s)-[%s]->(%s)", t.Subject, t.Predicate, t.Object)
}

func normalizeTerm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// AliasGroup is one canonical entity name and the names that refer to it.
type AliasGroup struct {
	Canonical string   `json:"canonical"`
	Variants  []string `json:"variants"`
}

// AliasMap is the consolidation result: groups in the order the service
// returned them. It is read-only after construction.
type AliasMap []AliasGroup

// Canonicals returns the canonical names in group order.
func (m AliasMap) Canonicals() []string {
	out := make([]string, len(m))
	for i, g := range m {
		out[i] = g.Canonical
	}
	return out
}

// Lookup builds the reverse mapping from every known name to its canonical.
// A name that is itself a canonical resolves to itself. Otherwise the first
// group listing a variant wins.
func (m AliasMap) Lookup() map[string]string {
	lookup, _ := m.resolve()
	return lookup
}

// Resolve returns the canonical for name, or name itself when no group
// claims it.
func (m AliasMap) Resolve(name string) string {
	if c, ok := m.Lookup()[name]; ok {
		return c
	}
	return name
}

// resolve builds the reverse lookup and reports every claim that lost the
// tie-break.
func (m AliasMap) resolve() (map[string]string, []Diagnostic) {
	lookup := make(map[string]string)
	for _, g := range m {
		lookup[g.Canonical] = g.Canonical
	}

	var diags []Diagnostic
	for _, g := range m {
		for _, v := range g.Variants {
			current, ok := lookup[v]
			if !ok {
				lookup[v] = g.Canonical
				continue
			}
			if current == g.Canonical {
				continue
			}
			diags = append(diags, Diagnostic{
				Kind:    KindAliasConflict,
				Stage:   StageAssemble,
				Segment: NoSegment,
				Message: fmt.Sprintf("%q claimed by %q, keeping %q", v, g.Canonical, current),
			})
		}
	}
	return lookup, diags
}

// DiagnosticKind classifies a recoverable problem.
type DiagnosticKind string

// Diagnostic kinds.
const (
	KindTransport         DiagnosticKind = "transport"
	KindMalformedResponse DiagnosticKind = "malformed_response"
	KindPartialRecord     DiagnosticKind = "partial_record"
	KindEmptyInput        DiagnosticKind = "empty_input"
	KindAliasConflict     DiagnosticKind = "alias_conflict"
)

// Pipeline stages a diagnostic can originate from.
const (
	StageExtract     = "extract"
	StageConsolidate = "consolidate"
	StageAssemble    = "assemble"
	StagePipeline    = "pipeline"
)

// NoSegment marks a diagnostic that is not tied to one segment.
const NoSegment = -1

// Diagnostic describes a recoverable failure. Stages never abort on these;
// they return their best value plus the diagnostics.
type Diagnostic struct {
	Kind    DiagnosticKind `json:"kind"`
	Stage   string         `json:"stage"`
	Segment int            `json:"segment"`
	Message string         `json:"message"`
	Raw     string         `json:"raw,omitempty"`
	Err     error          `json:"-"`
}

func (d Diagnostic) String() string {
	var sb strings.Builder
	sb.WriteString(d.Stage)
	sb.WriteString(": ")
	sb.WriteString(string(d.Kind))
	if d.Segment != NoSegment {
		fmt.Fprintf(&sb, " (segment %d)", d.Segment)
	}
	if d.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(d.Message)
	}
	if d.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(d.Err.Error())
	}
	return sb.String()
}
