package matching

import (
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Anthony Upegui", "anthony-upegui"},
		{"José  Martínez", "jose-martinez"},
		{"MARÍA_JOSÉ.webp", "maria-jose-webp"},
		{"5-6-niños-Sofía Peña", "5-6-ninos-sofia-pena"},
		{"  --Ñandú--  ", "nandu"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := Normalize(tc.in); got != tc.want {
			t.Fatalf("Normalize(%q): want %q, got %q", tc.in, tc.want, got)
		}
	}
}

func TestPatternFromRef(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{"5-6-anthony-upegui", "anthony-upegui"},
		{"9-10-maria-jose-lopez", "maria-jose-lopez"},
		{"10-9-Valentína", "valentina"},
		{"anthony-upegui", "anthony-upegui"},
		{"5-6-", ""},
	}
	for _, tc := range tests {
		if got := PatternFromRef(tc.ref); got != tc.want {
			t.Fatalf("PatternFromRef(%q): want %q, got %q", tc.ref, tc.want, got)
		}
	}
}

func TestMatchesKnownPairs(t *testing.T) {
	tests := []struct {
		localID string
		ref     string
		want    bool
	}{
		{"5-6-ninos-Anthony Upegui", "5-6-anthony-upegui", true},
		{"5-6-ninas-Sofía Peña", "5-6-sofia-pena", true},
		{"7-8-ninos-Juan Pablo Gómez", "7-8-juan-pablo-gomez", true},
		{"7-8-ninos-Juan Pablo Gómez", "7-8-juan-gomez", false},
		{"9-10-ninas-Ana", "9-10-anabel", false},
		{"9-10-ninas-Ana", "5-6-", false},
	}
	for _, tc := range tests {
		if got := Matches(tc.localID, PatternFromRef(tc.ref)); got != tc.want {
			t.Fatalf("Matches(%q, %q): want %v, got %v", tc.localID, tc.ref, tc.want, got)
		}
	}
}

func TestMatchAllIsManyToOne(t *testing.T) {
	ids := []string{
		"5-6-ninos-Anthony Upegui",
		"5-6-ninos-anthony_upegui",
		"5-6-ninos-Andrés Upegui",
		"7-8-anthony-upegui",
	}
	got := MatchAll(ids, "5-6-anthony-upegui")
	want := []string{"5-6-ninos-Anthony Upegui", "5-6-ninos-anthony_upegui", "7-8-anthony-upegui"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("want %v, got %v", want, got)
	}
}
