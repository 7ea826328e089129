package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// ConsolidateResult is the outcome of the consolidation call. On failure
// Aliases is empty and Diagnostics explains why.
type ConsolidateResult struct {
	Aliases     AliasMap     `json:"aliases"`
	Raw         string       `json:"-"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// Consolidator reconciles entity names across a whole document.
type Consolidator struct {
	svc Service
}

// NewConsolidator creates a Consolidator.
func NewConsolidator(svc Service) *Consolidator {
	return &Consolidator{svc: svc}
}

// Consolidate sends the full entity list to the service in one call and
// parses the alias groups. It never aborts: any failure yields an empty
// AliasMap plus a diagnostic.
func (c *Consolidator) Consolidate(ctx context.Context, entities []string) ConsolidateResult {
	cleaned := make([]string, 0, len(entities))
	for _, e := range entities {
		if e = strings.TrimSpace(e); e != "" {
			cleaned = append(cleaned, e)
		}
	}
	if len(cleaned) == 0 {
		return ConsolidateResult{Aliases: AliasMap{}, Diagnostics: []Diagnostic{{
			Kind:    KindEmptyInput,
			Stage:   StageConsolidate,
			Segment: NoSegment,
			Message: "no entities to consolidate",
		}}}
	}

	raw, err := c.svc.ConsolidateEntities(ctx, cleaned)
	if err != nil {
		return ConsolidateResult{Aliases: AliasMap{}, Diagnostics: []Diagnostic{{
			Kind:    KindTransport,
			Stage:   StageConsolidate,
			Segment: NoSegment,
			Message: "consolidation call failed",
			Err:     err,
		}}}
	}

	var groups orderedGroups
	if err := ParseJSON(raw, JSONObject, &groups); err != nil {
		return ConsolidateResult{Aliases: AliasMap{}, Raw: raw, Diagnostics: []Diagnostic{{
			Kind:    KindMalformedResponse,
			Stage:   StageConsolidate,
			Segment: NoSegment,
			Message: "could not parse consolidation response",
			Raw:     raw,
			Err:     err,
		}}}
	}

	aliases, diags := buildAliasMap(groups)
	slog.Debug("graph: consolidation parsed",
		"entities", len(cleaned), "groups", len(aliases), "skipped", len(diags))
	return ConsolidateResult{Aliases: aliases, Raw: raw, Diagnostics: diags}
}

// buildAliasMap normalises groups. Groups whose value is not an array and
// variants that are not strings are skipped with a diagnostic. Duplicate
// canonicals are merged into the first occurrence.
func buildAliasMap(groups orderedGroups) (AliasMap, []Diagnostic) {
	var (
		out   = AliasMap{}
		diags []Diagnostic
		index = make(map[string]int)
	)

	partial := func(msg string, raw json.RawMessage) {
		diags = append(diags, Diagnostic{
			Kind:    KindPartialRecord,
			Stage:   StageConsolidate,
			Segment: NoSegment,
			Message: msg,
			Raw:     string(raw),
		})
	}

	for _, g := range groups {
		canonical := normalizeTerm(g.key)
		if canonical == "" {
			partial("group with blank canonical skipped", g.value)
			continue
		}

		var items []json.RawMessage
		if err := json.Unmarshal(g.value, &items); err != nil || items == nil {
			partial(fmt.Sprintf("group %q is not an array", canonical), g.value)
			continue
		}

		pos, seen := index[canonical]
		if !seen {
			pos = len(out)
			index[canonical] = pos
			out = append(out, AliasGroup{Canonical: canonical, Variants: []string{}})
		}

		for _, item := range items {
			var s string
			if err := json.Unmarshal(item, &s); err != nil {
				partial(fmt.Sprintf("non-string variant in group %q", canonical), item)
				continue
			}
			v := normalizeTerm(s)
			if v == "" || containsString(out[pos].Variants, v) {
				continue
			}
			out[pos].Variants = append(out[pos].Variants, v)
		}
	}
	return out, diags
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type orderedGroup struct {
	key   string
	value json.RawMessage
}

// orderedGroups decodes a JSON object while keeping key order, which the
// tie-break between alias groups depends on.
type orderedGroups []orderedGroup

func (g *orderedGroups) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}

	var out orderedGroups
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return err
		}
		out = append(out, orderedGroup{key: key, value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*g = out
	return nil
}
