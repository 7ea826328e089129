package graph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSONArray(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantLen int
		wantErr bool
	}{
		{"clean array", `[{"a":1},{"b":2}]`, 2, false},
		{"empty array", `[]`, 0, false},
		{"surrounding whitespace", "\n  [1, 2, 3]  \n", 3, false},
		{"fenced array", "```json\n[{\"a\":1}]\n```", 1, false},
		{"fenced without language", "```\n[1]\n```", 1, false},
		{"prose wrapped", `Here are the triples: [{"a":1}] Hope this helps.`, 1, false},
		{"wrapped in object", `{"triples": [1, 2]}`, 2, false},
		{"trailing comma", `[{"a":1},]`, 1, false},
		{"pure prose", "I could not find any relationships in this text.", 0, true},
		{"empty", "   ", 0, true},
		{"null", "null", 0, true},
		{"object only", `{"subject": "a"}`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []json.RawMessage
			err := ParseJSON(tt.input, JSONArray, &got)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrMalformedResponse)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.wantLen)
		})
	}
}

func TestParseJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    map[string][]string
		wantErr bool
	}{
		{
			name:  "clean object",
			input: `{"apple inc": ["apple", "tech giant"]}`,
			want:  map[string][]string{"apple inc": {"apple", "tech giant"}},
		},
		{
			name:  "prose wrapped object",
			input: "Sure! Here is the mapping:\n{\"tim cook\": [\"ceo\"]}\nLet me know if you need more.",
			want:  map[string][]string{"tim cook": {"ceo"}},
		},
		{
			name:  "fenced object",
			input: "```json\n{\"a\": [\"b\"]}\n```",
			want:  map[string][]string{"a": {"b"}},
		},
		{
			name:  "trailing comma repaired",
			input: `{"apple inc": ["apple", "tech giant",],}`,
			want:  map[string][]string{"apple inc": {"apple", "tech giant"}},
		},
		{
			name:    "pure prose",
			input:   "These entities are all distinct.",
			wantErr: true,
		},
		{
			name:    "array instead of object",
			input:   `["a", "b"]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string][]string
			err := ParseJSON(tt.input, JSONObject, &got)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMalformedResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractJSONSpan(t *testing.T) {
	got, ok := extractJSON("noise {\"a\": {\"b\": 1}} tail }", JSONObject)
	require.True(t, ok)
	assert.Equal(t, "{\"a\": {\"b\": 1}} tail }", got)

	_, ok = extractJSON("] backwards [", JSONArray)
	assert.False(t, ok)
}
