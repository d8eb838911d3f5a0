package ot

import "testing"

func TestCompareTypeRanks(t *testing.T) {
	// Missing < null < bool < number < string < array < object.
	ranked := []any{
		Missing,
		nil,
		false,
		0,
		"",
		[]any{},
		map[string]any{},
	}
	for i := 0; i < len(ranked)-1; i++ {
		if Compare(ranked[i], ranked[i+1]) >= 0 {
			t.Errorf("rank %d (%v) should order below rank %d (%v)", i, ranked[i], i+1, ranked[i+1])
		}
	}
}

func TestCompareWithinTypes(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want int
	}{
		{"bools", false, true, -1},
		{"numbers", 1, 2, -1},
		{"int equals float", 2, 2.0, 0},
		{"floats", 1.5, 1.25, 1},
		{"strings", "y", "z", -1},
		{"string equal", "abc", "abc", 0},
		{"arrays elementwise", []any{1, 2}, []any{1, 3}, -1},
		{"array prefix is lower", []any{1}, []any{1, 0}, -1},
		{"objects by canonical bytes", map[string]any{"a": 1}, map[string]any{"b": 1}, -1},
		{"object equal", map[string]any{"a": 1, "b": 2}, map[string]any{"b": 2, "a": 1}, 0},
		{"nulls equal", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compare(tt.a, tt.b); got != tt.want {
				t.Errorf("Compare(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
			if got := Compare(tt.b, tt.a); got != -tt.want {
				t.Errorf("Compare(%v, %v) = %d, want %d", tt.b, tt.a, got, -tt.want)
			}
		})
	}
}

func TestEqual(t *testing.T) {
	if !Equal([]any{1, "x"}, []any{1.0, "x"}) {
		t.Error("numeric representations should compare equal")
	}
	if Equal("1", 1) {
		t.Error("string and number must differ")
	}
}
