package similarity

import "testing"

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"  María  PÉREZ  ": "maria perez",
		"J. Flores":        "j flores",
		"ñandú":            "nandu",
		"---":              "",
		"":                 "",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestScore(t *testing.T) {
	cases := []struct {
		name string
		a, b string
		want int
	}{
		{"exact after normalization", "María Pérez", "maria perez", 100},
		{"substring covers initials", "Maria Perez", "Maria Perez Quispe", 95},
		{"token overlap two of three", "Maria Perez Quispe", "Maria Lopez Quispe", 66},
		{"no overlap", "Juan Diaz", "Rosa Paz", 0},
		{"empty side", "", "Maria", 0},
		{"both empty", "", "", 0},
		{"punctuation ignored", "Flores, Maria", "Maria Flores", 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Score(tc.a, tc.b); got != tc.want {
				t.Fatalf("Score(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestScoreSymmetry(t *testing.T) {
	pairs := [][2]string{
		{"Maria Perez", "Perez Maria"},
		{"Maria Perez Quispe", "Maria Lopez"},
		{"J. Flores", "Juana Flores Soto"},
	}
	for _, p := range pairs {
		if Score(p[0], p[1]) != Score(p[1], p[0]) {
			t.Errorf("Score(%q, %q) not symmetric", p[0], p[1])
		}
	}
}

func TestLevenshteinScore(t *testing.T) {
	if got := LevenshteinScore("Maria Perez", "Maria Perez"); got != 100 {
		t.Errorf("identical strings = %d, want 100", got)
	}
	// One OCR-mangled character out of eleven.
	if got := LevenshteinScore("Maria Perez", "Marla Perez"); got < 90 {
		t.Errorf("single character slip = %d, want >= 90", got)
	}
	if got := LevenshteinScore("", ""); got != 100 {
		t.Errorf("both empty = %d, want 100", got)
	}
	if got := LevenshteinScore("Maria", ""); got != 0 {
		t.Errorf("one empty = %d, want 0", got)
	}
}

func TestSimilar(t *testing.T) {
	if !Similar("María Pérez", "maria perez", 0) {
		t.Error("accent variants must be similar at the default threshold")
	}
	if Similar("Maria Perez Quispe", "Maria Lopez Quispe", 95) {
		t.Error("two of three tokens must not clear a 95 threshold")
	}
	if !Similar("Maria Perez", "Maria Perez Quispe", 95) {
		t.Error("substring match scores 95 and must clear a 95 threshold")
	}
}
