package models

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

type SourceKind string

const (
	SourceYouTube SourceKind = "youtube"
	SourceS3      SourceKind = "s3"
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// Source is a parsed source_reference.
type Source struct {
	Kind    SourceKind
	VideoID string
	URL     string
	Bucket  string
	Key     string
}

// StableID is a filesystem safe identifier derived only from the reference.
func (s *Source) StableID() string {
	if s.Kind == SourceYouTube {
		return s.VideoID
	}
	r := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	return "s3_" + r.Replace(s.Bucket+"_"+s.Key)
}

// ParseSource accepts a YouTube watch, short or youtu.be URL, a bare
// 11 character video id, or an s3://bucket/key reference.
func ParseSource(ref string) (*Source, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("source reference is empty")
	}
	if videoIDPattern.MatchString(ref) {
		return youtubeSource(ref), nil
	}

	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid source reference: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "s3":
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return nil, fmt.Errorf("invalid s3 reference %q", ref)
		}
		return &Source{Kind: SourceS3, Bucket: u.Host, Key: key, URL: ref}, nil
	case "http", "https":
	default:
		return nil, fmt.Errorf("unsupported source reference %q", ref)
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	var id string
	switch host {
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	case "youtube.com", "music.youtube.com":
		switch {
		case u.Path == "/watch":
			id = u.Query().Get("v")
		case strings.HasPrefix(u.Path, "/shorts/"), strings.HasPrefix(u.Path, "/embed/"), strings.HasPrefix(u.Path, "/live/"):
			parts := strings.Split(strings.Trim(u.Path, "/"), "/")
			if len(parts) >= 2 {
				id = parts[1]
			}
		}
	default:
		return nil, fmt.Errorf("unsupported host %q", u.Hostname())
	}
	if !videoIDPattern.MatchString(id) {
		return nil, fmt.Errorf("no video id in %q", ref)
	}
	return youtubeSource(id), nil
}

func youtubeSource(id string) *Source {
	return &Source{
		Kind:    SourceYouTube,
		VideoID: id,
		URL:     "https://www.youtube.com/watch?v=" + id,
	}
}
