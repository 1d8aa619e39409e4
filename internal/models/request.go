package models

import (
	"io"
	"regexp"
	"strings"
)

const (
	DefaultLanguage = "en"
	DefaultFormat   = FormatTXT

	// CancelledDetail is the error detail of a job stopped on request.
	CancelledDetail = "cancelled by user"
)

type SubmitInput struct {
	SourceReference string `json:"source_reference" validate:"required,max=2048"`
	Language        string `json:"language" validate:"omitempty,max=4"`
	Format          string `json:"format" validate:"omitempty,oneof=txt srt vtt json"`
}

// Download is an open artifact ready to be streamed to a client.
type Download struct {
	Job      *Job
	Body     io.ReadCloser
	Artifact *Artifact
	Filename string
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._ -]+`)

// DownloadFilename is the attachment name offered to clients:
// up to 20 characters of the title, the language and the format extension.
func DownloadFilename(j *Job) string {
	base := strings.TrimSpace(unsafeFilename.ReplaceAllString(j.Title, ""))
	if r := []rune(base); len(r) > 20 {
		base = strings.TrimSpace(string(r[:20]))
	}
	if base == "" {
		base = "transcript"
	}
	return base + "_" + j.Language + "." + string(j.Format)
}
