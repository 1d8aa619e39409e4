package models

// MediaHandle points at normalised local audio produced by the downloader.
type MediaHandle struct {
	Path     string `json:"path"`
	Title    string `json:"title"`
	SourceID string `json:"source_id"`
}

type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// RawTranscript is the backend independent speech-to-text result.
type RawTranscript struct {
	Title    string    `json:"title"`
	Language string    `json:"language"`
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
}

// Artifact is a stored, downloadable rendering of a transcript.
type Artifact struct {
	Key         string
	ContentType string
	Size        int64
}

// ArtifactKey is the storage key of a job's rendered transcript.
func ArtifactKey(jobID string, format Format) string {
	return "transcripts/" + jobID + "/transcript." + string(format)
}

// RawTranscriptKey is where the untouched transcriber output of a job is
// checkpointed so a resumed job can format without transcribing again.
func RawTranscriptKey(jobID string) string {
	return "transcripts/" + jobID + "/raw.json"
}
