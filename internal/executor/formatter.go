package executor

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/amankumarsingh77/yt-transcriber/internal/models"
)

const (
	unknownTitle = "Unknown Video"
	// fallbackCueSeconds is the length of the single cue emitted when a
	// backend returned text without segment timings.
	fallbackCueSeconds = 10
)

type Formatter interface {
	Render(raw *models.RawTranscript, format models.Format) ([]byte, error)
}

type transcriptFormatter struct{}

// NewFormatter renders transcripts. Rendering is a pure function of its input.
func NewFormatter() Formatter {
	return transcriptFormatter{}
}

func (transcriptFormatter) Render(raw *models.RawTranscript, format models.Format) ([]byte, error) {
	if raw == nil {
		return nil, newStageError(StageFormat, KindInternal, fmt.Errorf("no transcript to render"))
	}
	switch format {
	case models.FormatTXT:
		return renderText(raw), nil
	case models.FormatSRT:
		return renderCues(raw, false), nil
	case models.FormatVTT:
		return renderCues(raw, true), nil
	case models.FormatJSON:
		return renderJSON(raw)
	default:
		return nil, newStageError(StageFormat, KindUnsupportedFormat, fmt.Errorf("format %q is not supported", format))
	}
}

func titleOf(raw *models.RawTranscript) string {
	if t := strings.TrimSpace(raw.Title); t != "" {
		return t
	}
	return unknownTitle
}

func renderText(raw *models.RawTranscript) []byte {
	return []byte("Title: " + titleOf(raw) + "\n\n" + raw.Text)
}

func cues(raw *models.RawTranscript) []models.Segment {
	if len(raw.Segments) > 0 {
		return raw.Segments
	}
	if strings.TrimSpace(raw.Text) == "" {
		return nil
	}
	return []models.Segment{{Start: 0, End: fallbackCueSeconds, Text: strings.TrimSpace(raw.Text)}}
}

func renderCues(raw *models.RawTranscript, vtt bool) []byte {
	var b strings.Builder
	if vtt {
		b.WriteString("WEBVTT\n\n")
	}
	for i, c := range cues(raw) {
		if !vtt {
			fmt.Fprintf(&b, "%d\n", i+1)
		}
		fmt.Fprintf(&b, "%s --> %s\n%s\n\n", timestamp(c.Start, vtt), timestamp(c.End, vtt), strings.TrimSpace(c.Text))
	}
	return []byte(b.String())
}

// timestamp formats seconds as HH:MM:SS,mmm (SubRip) or HH:MM:SS.mmm (WebVTT).
func timestamp(sec float64, vtt bool) string {
	if sec < 0 {
		sec = 0
	}
	ms := int64(math.Round(sec * 1000))
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms / 1000 % 60
	sep := ","
	if vtt {
		sep = "."
	}
	return fmt.Sprintf("%02d:%02d:%02d%s%03d", h, m, s, sep, ms%1000)
}

type jsonTranscript struct {
	Title    string           `json:"title"`
	Language string           `json:"language"`
	Text     string           `json:"text"`
	Segments []models.Segment `json:"segments"`
}

func renderJSON(raw *models.RawTranscript) ([]byte, error) {
	segments := raw.Segments
	if segments == nil {
		segments = []models.Segment{}
	}
	out, err := json.MarshalIndent(jsonTranscript{
		Title:    titleOf(raw),
		Language: raw.Language,
		Text:     raw.Text,
		Segments: segments,
	}, "", "  ")
	if err != nil {
		return nil, newStageError(StageFormat, KindInternal, err)
	}
	return out, nil
}
