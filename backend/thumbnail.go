package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// ThumbnailFetcher downloads artwork to disk, following a bounded number
// of redirects itself.
type ThumbnailFetcher struct {
	Client       *http.Client
	MaxRedirects int
}

// NewThumbnailFetcher builds a fetcher from config.
func NewThumbnailFetcher(cfg *Config) (*ThumbnailFetcher, error) {
	client, err := NewNoRedirectClient(time.Duration(cfg.ThumbnailTimeout)*time.Second, cfg.ProxyURL)
	if err != nil {
		return nil, err
	}
	return &ThumbnailFetcher{Client: client, MaxRedirects: cfg.ThumbnailRedirects}, nil
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// Fetch streams imageURL to destPath. Any failure is a network error and
// leaves no file behind.
func (f *ThumbnailFetcher) Fetch(ctx context.Context, imageURL, destPath string) error {
	err := f.fetch(ctx, imageURL, destPath)
	if err != nil {
		if rmErr := os.Remove(destPath); rmErr != nil && !os.IsNotExist(rmErr) {
			Logger.Warn("failed to remove partial thumbnail", "path", destPath, "error", rmErr)
		}
	}
	return err
}

func (f *ThumbnailFetcher) fetch(ctx context.Context, imageURL, destPath string) error {
	client := f.Client
	if client == nil {
		client = &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		}
	}

	current := imageURL
	for redirects := 0; ; redirects++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
		if err != nil {
			return newJobError(KindNetwork, "fetch thumbnail", "invalid thumbnail URL", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return newJobError(KindNetwork, "fetch thumbnail", "", err)
		}

		if isRedirect(resp.StatusCode) {
			location := resp.Header.Get("Location")
			resp.Body.Close()
			if location == "" {
				return newJobError(KindNetwork, "fetch thumbnail", fmt.Sprintf("redirect %d without Location", resp.StatusCode), nil)
			}
			if redirects >= f.MaxRedirects {
				return newJobError(KindNetwork, "fetch thumbnail", fmt.Sprintf("stopped after %d redirects", redirects), nil)
			}
			next, err := resp.Request.URL.Parse(location)
			if err != nil {
				return newJobError(KindNetwork, "fetch thumbnail", "invalid redirect location", err)
			}
			current = next.String()
			continue
		}

		return f.save(resp, destPath)
	}
}

func (f *ThumbnailFetcher) save(resp *http.Response, destPath string) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newJobError(KindNetwork, "fetch thumbnail", fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return newJobError(KindNetwork, "fetch thumbnail", "create file", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return newJobError(KindNetwork, "fetch thumbnail", "read body", err)
	}
	if err := out.Close(); err != nil {
		return newJobError(KindNetwork, "fetch thumbnail", "close file", err)
	}
	return nil
}
