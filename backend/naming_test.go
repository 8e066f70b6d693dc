package backend

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeComponent(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Normal Name", "Normal Name"},
		{"With: Colon", "With_ Colon"},
		{"With/Slash", "With_Slash"},
		{`With\Backslash`, "With_Backslash"},
		{"With<Brackets>", "With_Brackets_"},
		{"With|Pipe", "With_Pipe"},
		{"With?Question", "With_Question"},
		{"With*Star", "With_Star"},
		{`With"Quotes"`, "With_Quotes_"},
		{`<>:"/\|?*`, "_________"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := SanitizeComponent(tt.input, maxTitleRunes)
			if result != tt.expected {
				t.Errorf("SanitizeComponent(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestSanitizeComponent_Idempotent(t *testing.T) {
	inputs := []string{
		"My/Video:Clip",
		"A<B>",
		strings.Repeat("日本語?", 60),
		`"quoted" | piped * starred`,
	}
	for _, in := range inputs {
		once := SanitizeComponent(in, maxTitleRunes)
		twice := SanitizeComponent(once, maxTitleRunes)
		if once != twice {
			t.Errorf("SanitizeComponent not idempotent for %q: %q then %q", in, once, twice)
		}
		if strings.ContainsAny(once, `<>:"/\|?*`) {
			t.Errorf("SanitizeComponent(%q) = %q still has reserved characters", in, once)
		}
	}
}

func TestSanitizeComponent_MultiByteCaps(t *testing.T) {
	title := strings.Repeat("音", 150)
	artist := strings.Repeat("é", 80)

	gotTitle := SanitizeComponent(title, maxTitleRunes)
	if n := utf8.RuneCountInString(gotTitle); n != 100 {
		t.Errorf("title rune count = %d, want 100", n)
	}
	if !utf8.ValidString(gotTitle) {
		t.Errorf("truncated title is not valid UTF-8")
	}

	gotArtist := SanitizeComponent(artist, maxArtistRunes)
	if n := utf8.RuneCountInString(gotArtist); n != 50 {
		t.Errorf("artist rune count = %d, want 50", n)
	}
}

func TestDeriveFileName(t *testing.T) {
	tests := []struct {
		title, artist string
		kind          MediaKind
		variant       Variant
		expected      string
	}{
		{"Song", "Artist", KindAudio, VariantNormal, "Artist - Song.m4a"},
		{"My/Video:Clip", "A<B>", KindVideo, VariantNormal, "A_B_ - My_Video_Clip.mp4"},
		{"Clip", "Band", KindVideo, VariantDevice, "Band - Clip.m4v"},
		{"What?", `AC/DC`, KindAudio, VariantNormal, "AC_DC - What_.m4a"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			got := DeriveFileName(tt.title, tt.artist, tt.kind, tt.variant)
			if got != tt.expected {
				t.Errorf("DeriveFileName(%q, %q) = %q, want %q", tt.title, tt.artist, got, tt.expected)
			}
		})
	}
}

func TestSanitizeArtistFolder(t *testing.T) {
	if got := SanitizeArtistFolder(""); got != "Unknown Artist" {
		t.Errorf("SanitizeArtistFolder(\"\") = %q, want Unknown Artist", got)
	}
	if got := SanitizeArtistFolder("AC/DC"); got != "AC_DC" {
		t.Errorf("SanitizeArtistFolder(AC/DC) = %q, want AC_DC", got)
	}
}
