package backend

import (
	"fmt"
	"net/url"
	"strings"
)

// validCookieBrowsers is the whitelist for --cookies-from-browser values.
var validCookieBrowsers = map[string]bool{
	"brave":     true,
	"chrome":    true,
	"chromium":  true,
	"edge":      true,
	"firefox":   true,
	"librewolf": true,
	"opera":     true,
	"safari":    true,
	"vivaldi":   true,
}

// systemPaths are directories that must never be used as output.
var systemPaths = []string{"/etc", "/root", "/proc", "/sys", "/bin", "/sbin", "/usr/bin", "/dev", "/boot"}

// ValidateMediaURL checks that a URL can be handed to the extractor.
// It must use http(s), name a host, and be ≤2048 chars.
func ValidateMediaURL(rawURL string) error {
	if len(rawURL) > 2048 {
		return fmt.Errorf("URL exceeds maximum length of 2048 characters")
	}

	u, err := url.ParseRequestURI(strings.TrimSpace(rawURL))
	if err != nil {
		return fmt.Errorf("invalid URL format")
	}

	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("URL must use http or https")
	}
	if u.Hostname() == "" {
		return fmt.Errorf("URL has no host")
	}

	return nil
}

// ValidateOutputDirectory rejects paths that overlap with system directories.
func ValidateOutputDirectory(path string) error {
	if path == "" {
		return nil // empty means "use default", which is always safe
	}
	if strings.Contains(path, "\x00") {
		return fmt.Errorf("output directory contains null bytes")
	}

	for _, sys := range systemPaths {
		if path == sys || strings.HasPrefix(path, sys+"/") {
			return fmt.Errorf("output directory cannot be a system path (%s)", sys)
		}
	}

	return nil
}

// ValidateCookiesBrowser accepts "" (no cookies) or a known browser name,
// optionally followed by ":profile" as yt-dlp allows.
func ValidateCookiesBrowser(browser string) error {
	if browser == "" {
		return nil
	}
	name, _, _ := strings.Cut(browser, ":")
	if !validCookieBrowsers[strings.ToLower(name)] {
		return fmt.Errorf("unsupported cookies browser %q", browser)
	}
	return nil
}

// validateJobRequest is the admission check every orchestrator entry point runs.
func validateJobRequest(req JobRequest) error {
	if err := ValidateMediaURL(req.URL); err != nil {
		return newJobError(KindInvalidRequest, "validate", err.Error(), nil)
	}
	if strings.TrimSpace(req.DestinationDir) == "" {
		return newJobError(KindInvalidRequest, "validate", "destination directory is required", nil)
	}
	if err := ValidateOutputDirectory(req.DestinationDir); err != nil {
		return newJobError(KindInvalidRequest, "validate", err.Error(), nil)
	}
	if req.Kind != KindAudio && req.Kind != KindVideo {
		return newJobError(KindInvalidRequest, "validate", fmt.Sprintf("unknown media kind %q", req.Kind), nil)
	}
	if req.Variant != VariantNormal && req.Variant != VariantDevice {
		return newJobError(KindInvalidRequest, "validate", fmt.Sprintf("unknown variant %q", req.Variant), nil)
	}
	if req.Kind == KindAudio && req.Variant == VariantDevice {
		return newJobError(KindInvalidRequest, "validate", "device variant applies to video only", nil)
	}
	return nil
}
