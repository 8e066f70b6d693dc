package backend

import (
	"fmt"
	"strings"
)

// File naming for finished media

const (
	maxTitleRunes  = 100
	maxArtistRunes = 50
)

// reservedNameChars are replaced with "_" in every derived file name.
var reservedNameReplacer = strings.NewReplacer(
	"<", "_",
	">", "_",
	":", "_",
	`"`, "_",
	"/", "_",
	`\`, "_",
	"|", "_",
	"?", "_",
	"*", "_",
)

// SanitizeComponent replaces every reserved character with "_" and caps
// the result at maxRunes characters. It is idempotent.
func SanitizeComponent(name string, maxRunes int) string {
	return truncateRunes(reservedNameReplacer.Replace(name), maxRunes)
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

// FileExtension returns the container extension for kind and variant.
func FileExtension(kind MediaKind, variant Variant) string {
	switch {
	case kind == KindAudio:
		return "m4a"
	case variant == VariantDevice:
		return "m4v"
	default:
		return "mp4"
	}
}

// DeriveFileName builds "{artist} - {title}.{ext}".
func DeriveFileName(title, artist string, kind MediaKind, variant Variant) string {
	return fmt.Sprintf("%s - %s.%s",
		SanitizeComponent(artist, maxArtistRunes),
		SanitizeComponent(title, maxTitleRunes),
		FileExtension(kind, variant),
	)
}

// SanitizeArtistFolder is the folder name used for an artist on a device.
func SanitizeArtistFolder(artist string) string {
	if strings.TrimSpace(artist) == "" {
		artist = unknownArtist
	}
	return SanitizeComponent(artist, maxArtistRunes)
}
