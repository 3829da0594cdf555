package dedup

import (
	"testing"
)

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "simple lowercase", input: "John Smith", expected: "john smith"},
		{name: "extra whitespace", input: "  John   Smith  ", expected: "john smith"},
		{name: "last comma first format", input: "SMITH, John", expected: "john smith"},
		{name: "apostrophe removed", input: "O'Brien", expected: "obrien"},
		{name: "periods split initials", input: "J.K. Rowling", expected: "j k rowling"},
		{name: "hyphens removed", input: "Mary-Jane Watson", expected: "maryjane watson"},
		{name: "accents folded", input: "José García", expected: "jose garcia"},
		{name: "umlaut folded", input: "Müller, Jürgen", expected: "jurgen muller"},
		{name: "empty string", input: "", expected: ""},
		{name: "only whitespace", input: "   ", expected: ""},
		{name: "last comma first with extra spaces", input: "  Smith ,  John  ", expected: "john smith"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := NormalizeName(tt.input)
			if got != tt.expected {
				t.Errorf("NormalizeName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSplitName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		first string
		last  string
	}{
		{input: "John Smith", first: "John", last: "Smith"},
		{input: "Smith, John", first: "John", last: "Smith"},
		{input: "John Ronald Reuel Tolkien", first: "John Ronald Reuel", last: "Tolkien"},
		{input: "Ludwig van Beethoven", first: "Ludwig", last: "van Beethoven"},
		{input: "Charles de la Vallée", first: "Charles", last: "de la Vallée"},
		{input: "Plato", first: "", last: "Plato"},
		{input: "  ", first: "", last: ""},
		{input: "van Beethoven, Ludwig", first: "Ludwig", last: "van Beethoven"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			first, last := SplitName(tt.input)
			if first != tt.first || last != tt.last {
				t.Errorf("SplitName(%q) = (%q, %q), want (%q, %q)", tt.input, first, last, tt.first, tt.last)
			}
		})
	}
}

func TestNameSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		a        string
		b        string
		expected float64
	}{
		{name: "exact match", a: "John Smith", b: "John Smith", expected: 1.0},
		{name: "case and accents", a: "Jose GARCIA", b: "José García", expected: 1.0},
		{name: "reordered", a: "Smith, John", b: "John Smith", expected: 1.0},
		{name: "initial", a: "J. Smith", b: "John Smith", expected: 0.9},
		{name: "initial reversed", a: "John Smith", b: "J. Smith", expected: 0.9},
		{name: "last name only", a: "Smith", b: "John Smith", expected: 0.7},
		{name: "different first", a: "John Smith", b: "Jane Smith", expected: 0.3},
		{name: "typo in long last name", a: "Marie Lovelace", b: "Marie Lovelance", expected: 0.85},
		{name: "typo in short last name", a: "John Smith", b: "John Smyth", expected: 0.0},
		{name: "completely different", a: "John Smith", b: "Alice Johnson", expected: 0.0},
		{name: "one empty", a: "John Smith", b: "", expected: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NameSimilarity(tt.a, tt.b); got != tt.expected {
				t.Errorf("NameSimilarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.expected)
			}
			if got := NameSimilarity(tt.b, tt.a); got != tt.expected {
				t.Errorf("NameSimilarity(%q, %q) = %v, want %v (symmetry)", tt.b, tt.a, got, tt.expected)
			}
		})
	}
}

func TestComparator_IsSimilar(t *testing.T) {
	t.Parallel()

	c := DefaultComparator()

	names := []string{"", "John Smith", "J. Smith", "Smith, John", "Jane Smith", "Étienne Dupré", "Alice Johnson"}
	for _, a := range names {
		if !c.IsSimilar(a, a) {
			t.Errorf("IsSimilar(%q, %q) = false, want reflexive", a, a)
		}
		for _, b := range names {
			if c.IsSimilar(a, b) != c.IsSimilar(b, a) {
				t.Errorf("IsSimilar not symmetric for %q and %q", a, b)
			}
		}
	}

	if !c.IsSimilar("Etienne Dupre", "Étienne Dupré") {
		t.Error("accents should be ignored")
	}
	if c.IsSimilar("John Smith", "Jane Smith") {
		t.Error("different first names should not be similar")
	}
}

func TestComparator_NotTransitive(t *testing.T) {
	t.Parallel()

	c := DefaultComparator()
	a, b, cc := "John Smith", "J. Smith", "Jane Smith"

	if !c.IsSimilar(a, b) || !c.IsSimilar(b, cc) {
		t.Fatalf("expected %q~%q and %q~%q", a, b, b, cc)
	}
	if c.IsSimilar(a, cc) {
		t.Fatalf("expected %q and %q to differ", a, cc)
	}
}

func TestComparator_Thresholds(t *testing.T) {
	t.Parallel()

	strict := NewComparator(0.95, 0)
	if strict.IsSimilar("J. Smith", "John Smith") {
		t.Error("initials should not pass a 0.95 threshold")
	}
	if strict.TitleThreshold != DefaultTitleThreshold {
		t.Errorf("TitleThreshold = %v, want default", strict.TitleThreshold)
	}
}
