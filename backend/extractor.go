package backend

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// Extractor (yt-dlp) argument sets

// MetadataMode selects how much the extractor resolves.
type MetadataMode int

const (
	// ModeFlat lists playlist entries without resolving each one.
	ModeFlat MetadataMode = iota
	// ModeFull resolves one item completely before a download.
	ModeFull
)

func (m MetadataMode) String() string {
	if m == ModeFlat {
		return "flat"
	}
	return "full"
}

// AuthOptions carries the extractor's authentication and retry settings.
type AuthOptions struct {
	CookiesBrowser string
	Retries        int
}

// cookieArgs resolves the browser and returns the --cookies-from-browser pair.
// A browser that cannot be resolved is logged and skipped.
func cookieArgs(browser string) []string {
	if browser == "" {
		return nil
	}
	resolved, err := resolveCookiesBrowser(browser)
	if err != nil {
		Logger.Warn("skipping browser cookies", "browser", browser, "error", err)
		return nil
	}
	return []string{"--cookies-from-browser", resolved}
}

func metadataArgs(mode MetadataMode, url string, auth AuthOptions) []string {
	args := []string{"--dump-json"}
	if mode == ModeFlat {
		args = append(args, "--flat-playlist")
	} else {
		args = append(args, "--no-playlist")
	}
	args = append(args, "--no-warnings")
	args = append(args, cookieArgs(auth.CookiesBrowser)...)
	return append(args, url)
}

// fetchArgs builds the download invocation writing <workspace>/<kind>.<ext>.
// encoderDir, when set, points the extractor at the same ffmpeg we use.
func fetchArgs(kind MediaKind, workspace, url, encoderDir string, auth AuthOptions) []string {
	var args []string
	if kind == KindAudio {
		args = []string{"-f", "bestaudio/best", "-x", "--audio-format", "m4a", "--audio-quality", "0"}
	} else {
		args = []string{"-f", "bestvideo+bestaudio/best", "--merge-output-format", "mp4"}
	}
	if encoderDir != "" {
		args = append(args, "--ffmpeg-location", encoderDir)
	}

	retries := auth.Retries
	if retries <= 0 {
		retries = defaultConfig.ExtractorRetries
	}

	args = append(args,
		"-o", filepath.Join(workspace, string(kind)+".%(ext)s"),
		"--no-playlist",
		"--progress",
	)
	args = append(args, cookieArgs(auth.CookiesBrowser)...)
	args = append(args,
		"--no-check-certificates",
		"--extractor-retries", strconv.Itoa(retries),
		url,
	)
	return args
}

// librewolfDir is where Librewolf keeps profiles.ini; tests point it elsewhere.
var librewolfDir = func() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".librewolf")
}

// getLibrewolfProfilePath finds the default Librewolf profile path
func getLibrewolfProfilePath() (string, error) {
	dir := librewolfDir()
	profilesIni := filepath.Join(dir, "profiles.ini")

	cfg, err := ini.Load(profilesIni)
	if err == nil {
		// Install* sections name the profile the installation last used.
		for _, section := range cfg.Sections() {
			if !strings.HasPrefix(section.Name(), "Install") {
				continue
			}
			if path := section.Key("Default").String(); path != "" {
				if full := filepath.Join(dir, path); dirExists(full) {
					return full, nil
				}
			}
		}
		for _, section := range cfg.Sections() {
			if !strings.HasPrefix(section.Name(), "Profile") || section.Key("Default").String() != "1" {
				continue
			}
			if path := section.Key("Path").String(); path != "" {
				full := path
				if section.Key("IsRelative").MustInt(1) == 1 {
					full = filepath.Join(dir, path)
				}
				if dirExists(full) {
					return full, nil
				}
			}
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("librewolf directory not found: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() && strings.HasSuffix(entry.Name(), ".default-default") {
			return filepath.Join(dir, entry.Name()), nil
		}
	}
	for _, entry := range entries {
		if entry.IsDir() && strings.Contains(entry.Name(), ".default") {
			return filepath.Join(dir, entry.Name()), nil
		}
	}

	return "", fmt.Errorf("no librewolf profile found")
}

// resolveCookiesBrowser converts browser name to yt-dlp format
// Handles special case for librewolf which needs firefox:PATH format
func resolveCookiesBrowser(browser string) (string, error) {
	if strings.EqualFold(browser, "librewolf") {
		profilePath, err := getLibrewolfProfilePath()
		if err != nil {
			return "", fmt.Errorf("failed to find librewolf profile: %w", err)
		}
		return "firefox:" + profilePath, nil
	}
	return browser, nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
