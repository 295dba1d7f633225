package mapping

import "testing"

func TestSingularize(t *testing.T) {
	cases := []struct {
		plural string
		want   string
	}{
		{"users", "user"},
		{"items", "item"},
		{"groups", "group"},
		{"employees", "employee"},
		// The two below look wrong but are the pinned behavior of the rule
		// table; accessor lookup falls back to direct mutation when no
		// method matches the derived name.
		{"companies", "compan"},
		{"matches", "matche"},
		{"statuses", "statuse"},
		// Short "ies" words keep their stem instead of losing it.
		{"pies", "pie"},
		{"ties", "tie"},
	}
	for _, tc := range cases {
		if got := Singularize(tc.plural); got != tc.want {
			t.Fatalf("Singularize(%q) = %q, want %q", tc.plural, got, tc.want)
		}
	}
}
