package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlug(t *testing.T) {
	assert.Equal(t, "omega-3", Slug(Document{"slug": "omega-3"}))
	assert.Equal(t, "omega-3", Slug(Document{"slug": map[string]any{"current": "omega-3"}}))
	assert.Equal(t, "", Slug(Document{"slug": map[string]any{"current": 7}}))
	assert.Equal(t, "", Slug(Document{"name": "Omega 3"}))
}

func TestNormalizeSlug(t *testing.T) {
	d := Document{"slug": "omega-3"}
	NormalizeSlug(d)
	assert.Equal(t, map[string]any{"_type": "slug", "current": "omega-3"}, d["slug"])

	structured := map[string]any{"current": "omega-3"}
	d = Document{"slug": structured}
	NormalizeSlug(d)
	assert.Equal(t, structured, d["slug"], "structured slugs pass through unchanged")
}

func TestPayloadStripsSystemFields(t *testing.T) {
	d := Document{
		"_id":        "abc",
		"_rev":       "r1",
		"_createdAt": "2024-01-01",
		"_type":      "ingredient",
		"name":       "Vitamin C",
	}
	p := Payload(d)
	assert.Equal(t, Document{"_type": "ingredient", "name": "Vitamin C"}, p)
	assert.Equal(t, []string{"_type", "name"}, FieldNames(d))
}

func TestEqual(t *testing.T) {
	cases := []struct {
		name string
		a, b any
		want bool
	}{
		{"strings", "a", "a", true},
		{"int vs float", 3, 3.0, true},
		{"float mismatch", 3.0, 3.5, false},
		{"nil both", nil, nil, true},
		{"nil one side", nil, "x", false},
		{"bools", true, true, true},
		{"type mismatch", "1", 1.0, false},
		{
			"nested maps order-insensitive",
			map[string]any{"a": 1.0, "b": map[string]any{"x": "y", "z": []any{1.0, 2.0}}},
			map[string]any{"b": map[string]any{"z": []any{1, 2}, "x": "y"}, "a": 1},
			true,
		},
		{
			"missing key",
			map[string]any{"a": 1.0, "b": 2.0},
			map[string]any{"a": 1.0},
			false,
		},
		{
			"list order matters",
			[]any{"a", "b"},
			[]any{"b", "a"},
			false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Equal(tc.a, tc.b))
			assert.Equal(t, tc.want, Equal(tc.b, tc.a), "equality must be symmetric")
		})
	}
}
