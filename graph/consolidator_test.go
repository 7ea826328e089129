package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsolidateEmptyInput(t *testing.T) {
	svc := &fakeService{}
	c := NewConsolidator(svc)

	for _, in := range [][]string{nil, {}, {"", "  "}} {
		res := c.Consolidate(context.Background(), in)
		assert.Empty(t, res.Aliases)
		require.Len(t, res.Diagnostics, 1)
		assert.Equal(t, KindEmptyInput, res.Diagnostics[0].Kind)
	}
	assert.Equal(t, 0, svc.consolidateCalls, "empty input must not call the service")
}

func TestConsolidateKeepsResponseOrder(t *testing.T) {
	svc := &fakeService{consolidate: `{
		"zeta corp": ["zeta", "the company"],
		"apple inc": ["apple", "Tech Giant ", "apple"],
		"tim cook": ["ceo"]
	}`}

	res := NewConsolidator(svc).Consolidate(context.Background(), []string{"zeta", " apple ", "tim cook"})
	require.Empty(t, res.Diagnostics)
	assert.Equal(t, AliasMap{
		{Canonical: "zeta corp", Variants: []string{"zeta", "the company"}},
		{Canonical: "apple inc", Variants: []string{"apple", "tech giant"}},
		{Canonical: "tim cook", Variants: []string{"ceo"}},
	}, res.Aliases)
	assert.Equal(t, []string{"zeta", "apple", "tim cook"}, svc.lastEntities)
}

func TestConsolidateSkipsNonArrayGroups(t *testing.T) {
	svc := &fakeService{consolidate: `{
		"apple inc": ["apple"],
		"bogus": "not a list",
		"numbers": [1, "one"],
		"nothing": null
	}`}

	res := NewConsolidator(svc).Consolidate(context.Background(), []string{"apple"})
	assert.Equal(t, AliasMap{
		{Canonical: "apple inc", Variants: []string{"apple"}},
		{Canonical: "numbers", Variants: []string{"one"}},
	}, res.Aliases)

	require.Len(t, res.Diagnostics, 3)
	for _, d := range res.Diagnostics {
		assert.Equal(t, KindPartialRecord, d.Kind)
		assert.Equal(t, StageConsolidate, d.Stage)
	}
}

func TestConsolidateMergesDuplicateCanonicals(t *testing.T) {
	svc := &fakeService{consolidate: `{"Apple Inc": ["apple"], "apple inc": ["tech giant"]}`}

	res := NewConsolidator(svc).Consolidate(context.Background(), []string{"apple"})
	assert.Equal(t, AliasMap{{Canonical: "apple inc", Variants: []string{"apple", "tech giant"}}}, res.Aliases)
}

func TestConsolidateProseWrapped(t *testing.T) {
	svc := &fakeService{consolidate: "Here you go:\n{\"apple inc\": [\"apple\"]}\nThanks!"}

	res := NewConsolidator(svc).Consolidate(context.Background(), []string{"apple"})
	assert.Empty(t, res.Diagnostics)
	assert.Equal(t, "apple inc", res.Aliases.Resolve("apple"))
}

func TestConsolidateMalformed(t *testing.T) {
	raw := "All of these entities are already distinct."
	svc := &fakeService{consolidate: raw}

	res := NewConsolidator(svc).Consolidate(context.Background(), []string{"apple"})
	assert.Empty(t, res.Aliases)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, KindMalformedResponse, res.Diagnostics[0].Kind)
	assert.Equal(t, raw, res.Diagnostics[0].Raw)
}

func TestConsolidateTransportError(t *testing.T) {
	svc := &fakeService{consolidateErr: errors.New("timeout")}

	res := NewConsolidator(svc).Consolidate(context.Background(), []string{"apple"})
	assert.NotNil(t, res.Aliases)
	assert.Empty(t, res.Aliases)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, KindTransport, res.Diagnostics[0].Kind)
}
