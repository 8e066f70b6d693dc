package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/wader/goutubedl"
)

const (
	unknownTitle  = "Unknown Title"
	unknownArtist = "Unknown Artist"

	ResultSingle   = "single"
	ResultPlaylist = "playlist"
)

// Thumbnail is one entry of the extractor's thumbnails list.
type Thumbnail struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Record is one JSON object printed by the extractor. Known fields are
// decoded through goutubedl.Info; the original bytes are kept so the
// record crosses the boundary unchanged.
type Record struct {
	Info          goutubedl.Info
	PlaylistTitle string
	Thumbnails    []Thumbnail

	raw json.RawMessage
}

// UnmarshalJSON requires a JSON object. Field type mismatches against
// goutubedl.Info are tolerated since the raw record is kept anyway.
func (r *Record) UnmarshalJSON(data []byte) error {
	var object map[string]json.RawMessage
	if err := json.Unmarshal(data, &object); err != nil {
		return err
	}
	if object == nil {
		return errors.New("record is null")
	}

	var typeErr *json.UnmarshalTypeError
	if err := json.Unmarshal(data, &r.Info); err != nil && !errors.As(err, &typeErr) {
		return err
	}

	var extra struct {
		PlaylistTitle string      `json:"playlist_title"`
		Thumbnails    []Thumbnail `json:"thumbnails"`
	}
	if err := json.Unmarshal(data, &extra); err != nil && !errors.As(err, &typeErr) {
		return err
	}
	r.PlaylistTitle = extra.PlaylistTitle
	r.Thumbnails = extra.Thumbnails
	r.raw = append(json.RawMessage(nil), data...)
	return nil
}

func (r Record) MarshalJSON() ([]byte, error) {
	if len(r.raw) == 0 {
		return []byte("{}"), nil
	}
	return r.raw, nil
}

// MetadataResult is the parsed extractor output: one record, or an
// ordered playlist of records.
type MetadataResult struct {
	Type string
	Data []Record
}

// MarshalJSON renders {type, data} with data as an object for single
// results and an array for playlists.
func (m MetadataResult) MarshalJSON() ([]byte, error) {
	if m.Type == ResultSingle && len(m.Data) == 1 {
		return json.Marshal(struct {
			Type string `json:"type"`
			Data Record `json:"data"`
		}{m.Type, m.Data[0]})
	}
	return json.Marshal(struct {
		Type string   `json:"type"`
		Data []Record `json:"data"`
	}{m.Type, m.Data})
}

// First returns the first record, or nil for an empty result.
func (m *MetadataResult) First() *Record {
	if m == nil || len(m.Data) == 0 {
		return nil
	}
	return &m.Data[0]
}

// ParseExtractorOutput splits stdout into lines and decodes each
// non-empty line as one JSON object.
func ParseExtractorOutput(stdout []byte) (*MetadataResult, error) {
	var records []Record
	for i, line := range bytes.Split(stdout, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, newJobError(KindParse, "parse metadata", fmt.Sprintf("line %d is not a JSON object", i+1), err)
		}
		records = append(records, rec)
	}

	switch len(records) {
	case 0:
		return nil, newJobError(KindParse, "parse metadata", "extractor printed no metadata", nil)
	case 1:
		return &MetadataResult{Type: ResultSingle, Data: records}, nil
	default:
		return &MetadataResult{Type: ResultPlaylist, Data: records}, nil
	}
}

// TrackMetadata is the normalized tag set for one item.
type TrackMetadata struct {
	Title        string `json:"title"`
	Artist       string `json:"artist"`
	Album        string `json:"album"`
	ThumbnailURL string `json:"thumbnail,omitempty"`
}

// NormalizeTrack applies the fallback chains to a record.
func NormalizeTrack(rec *Record) TrackMetadata {
	if rec == nil {
		return TrackMetadata{Title: unknownTitle, Artist: unknownArtist, Album: unknownTitle}
	}
	info := rec.Info

	title := firstNonEmpty(info.Title, unknownTitle)
	artist := firstNonEmpty(info.Artist, info.Uploader, info.Channel, unknownArtist)
	album := firstNonEmpty(info.Album, rec.PlaylistTitle, title)

	thumb := strings.TrimSpace(info.Thumbnail)
	if thumb == "" {
		for i := len(rec.Thumbnails) - 1; i >= 0; i-- {
			if u := strings.TrimSpace(rec.Thumbnails[i].URL); u != "" {
				thumb = u
				break
			}
		}
	}

	return TrackMetadata{Title: title, Artist: artist, Album: album, ThumbnailURL: thumb}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// Resolver runs the extractor in metadata mode.
type Resolver struct {
	ExtractorPath string
	Auth          AuthOptions
}

// NewResolver builds a resolver from config.
func NewResolver(cfg *Config) *Resolver {
	return &Resolver{
		ExtractorPath: cfg.ExtractorPath,
		Auth:          AuthOptions{CookiesBrowser: cfg.CookiesBrowser, Retries: cfg.ExtractorRetries},
	}
}

// Resolve invokes the extractor and parses what it prints. Nothing is
// returned alongside an error.
func (r *Resolver) Resolve(ctx context.Context, url string, mode MetadataMode) (*MetadataResult, error) {
	proc, err := StartProcess(ctx, ProcessSpec{
		Name:          "yt-dlp",
		Path:          r.ExtractorPath,
		Args:          metadataArgs(mode, url, r.Auth),
		CaptureStdout: true,
	})
	if err != nil {
		return nil, newJobError(KindExtraction, "resolve metadata", "could not start extractor", err)
	}

	if err := proc.Wait(); err != nil {
		je := newJobError(KindExtraction, "resolve metadata", fmt.Sprintf("extractor exited with code %d", proc.ExitCode()), nil)
		je.Stderr = proc.StderrTail()
		if ctxErr := ctx.Err(); ctxErr != nil {
			je.Err = ctxErr
		}
		return nil, je
	}

	result, err := ParseExtractorOutput(proc.Stdout())
	if err != nil {
		return nil, err
	}
	Logger.Debug("metadata resolved", "url", url, "mode", mode.String(), "type", result.Type, "records", len(result.Data))
	return result, nil
}
