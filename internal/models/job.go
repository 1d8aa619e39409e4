package models

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

type Stage string

const (
	StageQueued       Stage = "queued"
	StageDownloading  Stage = "downloading"
	StageTranscribing Stage = "transcribing"
	StageFormatting   Stage = "formatting"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

// pipeline lists the forward order of non-failed stages.
var pipeline = []Stage{StageQueued, StageDownloading, StageTranscribing, StageFormatting, StageDone}

// Progress checkpoints reached when the named stage completes.
const (
	ProgressDownloaded  = 33
	ProgressTranscribed = 66
	ProgressFormatted   = 100
)

func (s Stage) IsTerminal() bool {
	return s == StageDone || s == StageFailed
}

func (s Stage) IsValid() bool {
	return s == StageFailed || s.index() >= 0
}

// Next returns the successor of s in the pipeline, or "" for terminal stages.
func (s Stage) Next() Stage {
	i := s.index()
	if i < 0 || i+1 >= len(pipeline) {
		return ""
	}
	return pipeline[i+1]
}

func (s Stage) index() int {
	for i, st := range pipeline {
		if st == s {
			return i
		}
	}
	return -1
}

// StatusMessage is the human readable line shown while a job sits in s.
func (s Stage) StatusMessage() string {
	switch s {
	case StageQueued:
		return "Queued"
	case StageDownloading:
		return "Downloading audio"
	case StageTranscribing:
		return "Transcribing audio"
	case StageFormatting:
		return "Generating transcript file"
	case StageDone:
		return "Completed"
	case StageFailed:
		return "Failed"
	default:
		return ""
	}
}

// CompletionProgress is the progress checkpoint recorded once work in s is finished.
func (s Stage) CompletionProgress() int {
	switch s {
	case StageDownloading:
		return ProgressDownloaded
	case StageTranscribing:
		return ProgressTranscribed
	case StageFormatting, StageDone:
		return ProgressFormatted
	default:
		return 0
	}
}

type Format string

const (
	FormatTXT  Format = "txt"
	FormatSRT  Format = "srt"
	FormatVTT  Format = "vtt"
	FormatJSON Format = "json"
)

func (f Format) IsValid() bool {
	switch f {
	case FormatTXT, FormatSRT, FormatVTT, FormatJSON:
		return true
	}
	return false
}

func (f Format) ContentType() string {
	switch f {
	case FormatSRT:
		return "application/x-subrip; charset=utf-8"
	case FormatVTT:
		return "text/vtt; charset=utf-8"
	case FormatJSON:
		return "application/json; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

const LanguageAuto = "auto"

// IsLanguageCode accepts "auto" or a lowercase two letter ISO-639-1 code.
// Whether a backend can transcribe the language is decided by the transcriber.
func IsLanguageCode(lang string) bool {
	if lang == LanguageAuto {
		return true
	}
	if len(lang) != 2 {
		return false
	}
	for _, r := range lang {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

// Job is one transcription request and its lifecycle state.
type Job struct {
	JobID              string    `json:"job_id" db:"job_id"`
	SourceReference    string    `json:"source_reference" db:"source_reference"`
	Language           string    `json:"language" db:"requested_language"`
	Format             Format    `json:"format" db:"requested_format"`
	Stage              Stage     `json:"stage" db:"stage"`
	ProgressPercent    int       `json:"progress_percent" db:"progress_percent"`
	Message            string    `json:"message,omitempty" db:"message"`
	ErrorDetail        string    `json:"error_detail,omitempty" db:"error_detail"`
	ArtifactLocation   string    `json:"artifact_location,omitempty" db:"artifact_location"`
	Title              string    `json:"title,omitempty" db:"title"`
	Attempts           int       `json:"attempts" db:"attempts"`
	CancelRequested    bool      `json:"cancel_requested" db:"cancel_requested"`
	MediaLocation      string    `json:"-" db:"media_location"`
	TranscriptLocation string    `json:"-" db:"transcript_location"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

func NewJob(sourceRef, language string, format Format) *Job {
	now := time.Now().UTC()
	return &Job{
		JobID:           NewJobID(),
		SourceReference: sourceRef,
		Language:        language,
		Format:          format,
		Stage:           StageQueued,
		Message:         StageQueued.StatusMessage(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func NewJobID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	return &c
}

// Fail moves j to failed with detail. Stage-owned outputs are cleared.
func (j *Job) Fail(detail string) {
	j.Stage = StageFailed
	j.Message = StageFailed.StatusMessage()
	j.ErrorDetail = detail
	j.ArtifactLocation = ""
}

type JobList struct {
	TotalCount int    `json:"total_count"`
	TotalPages int    `json:"total_pages"`
	Page       int    `json:"page"`
	Size       int    `json:"size"`
	HasMore    bool   `json:"has_more"`
	Jobs       []*Job `json:"jobs"`
}
