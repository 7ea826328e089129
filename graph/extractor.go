package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// ExtractResult is the outcome of one extraction call. A failed call yields
// no triples and exactly one diagnostic; it is never an error value.
type ExtractResult struct {
	Triples     []Triple     `json:"triples"`
	Raw         string       `json:"-"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// Failed reports whether the call itself failed, as opposed to dropping
// individual records.
func (r ExtractResult) Failed() bool {
	for _, d := range r.Diagnostics {
		if d.Kind == KindTransport || d.Kind == KindMalformedResponse {
			return true
		}
	}
	return false
}

// Extractor turns segments into triples through a Service.
type Extractor struct {
	svc Service
}

// NewExtractor creates an Extractor.
func NewExtractor(svc Service) *Extractor {
	return &Extractor{svc: svc}
}

// Extract runs extraction for a segment that has no position in a document.
func (e *Extractor) Extract(ctx context.Context, segment string) ExtractResult {
	return e.ExtractAt(ctx, NoSegment, segment)
}

// ExtractAt runs extraction for segment index of a document; index is
// recorded on diagnostics.
func (e *Extractor) ExtractAt(ctx context.Context, index int, segment string) ExtractResult {
	raw, err := e.svc.ExtractTriples(ctx, segment)
	if err != nil {
		return ExtractResult{Diagnostics: []Diagnostic{{
			Kind:    KindTransport,
			Stage:   StageExtract,
			Segment: index,
			Message: "extraction call failed",
			Err:     err,
		}}}
	}

	var records []json.RawMessage
	if err := ParseJSON(raw, JSONArray, &records); err != nil {
		return ExtractResult{Raw: raw, Diagnostics: []Diagnostic{{
			Kind:    KindMalformedResponse,
			Stage:   StageExtract,
			Segment: index,
			Message: "response is not a JSON array of triples",
			Raw:     raw,
			Err:     err,
		}}}
	}

	res := ExtractResult{Raw: raw, Triples: make([]Triple, 0, len(records))}
	for i, rec := range records {
		t, err := decodeTriple(rec)
		if err != nil {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				Kind:    KindPartialRecord,
				Stage:   StageExtract,
				Segment: index,
				Message: fmt.Sprintf("record %d dropped", i),
				Raw:     string(rec),
				Err:     err,
			})
			continue
		}
		res.Triples = append(res.Triples, t)
	}

	if len(res.Diagnostics) > 0 {
		slog.Debug("graph: dropped partial records",
			"segment", index, "dropped", len(res.Diagnostics), "kept", len(res.Triples))
	}
	return res
}

var errMissingField = errors.New("missing field")

// decodeTriple validates one array element. Every field must be present,
// a string and non-blank after normalisation.
func decodeTriple(rec json.RawMessage) (Triple, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(rec, &fields); err != nil || fields == nil {
		return Triple{}, fmt.Errorf("element is not an object")
	}

	var t Triple
	for _, f := range []struct {
		key string
		dst *string
	}{
		{"subject", &t.Subject},
		{"predicate", &t.Predicate},
		{"object", &t.Object},
	} {
		v, ok := fields[f.key]
		if !ok {
			return Triple{}, fmt.Errorf("%w %q", errMissingField, f.key)
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return Triple{}, fmt.Errorf("field %q is not a string", f.key)
		}
		*f.dst = normalizeTerm(s)
		if *f.dst == "" {
			return Triple{}, fmt.Errorf("field %q is blank", f.key)
		}
	}
	return t, nil
}
