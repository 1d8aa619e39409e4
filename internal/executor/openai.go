package executor

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/amankumarsingh77/yt-transcriber/internal/config"
	"github.com/amankumarsingh77/yt-transcriber/internal/models"
	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAI speech-to-text via audio/transcriptions with verbose_json output.
type openAIBackend struct {
	client *openai.Client
	model  string
}

const defaultOpenAITimeout = 30 * time.Minute

func NewOpenAIBackend(cfg config.ExecutorConfig) Transcriber {
	timeout := cfg.CommandTimeout
	if timeout <= 0 {
		timeout = defaultOpenAITimeout
	}
	clientCfg := openai.DefaultConfig(cfg.OpenAIKey)
	if cfg.OpenAIBaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.OpenAIBaseURL, "/")
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	model := cfg.OpenAIModel
	if model == "" {
		model = openai.Whisper1
	}
	return &openAIBackend{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}
}

func (o *openAIBackend) Transcribe(ctx context.Context, media *models.MediaHandle, language string) (*models.RawTranscript, error) {
	if err := checkLanguage(language, false); err != nil {
		return nil, err
	}
	cachePath := transcriptCachePath(media, language, "openai")
	if raw, ok := loadCachedTranscript(cachePath); ok {
		return raw, nil
	}

	req := openai.AudioRequest{
		Model:    o.model,
		FilePath: media.Path,
		Format:   openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularitySegment,
		},
	}
	if language != models.LanguageAuto {
		req.Language = language
	}
	resp, err := o.client.CreateTranscription(ctx, req)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	raw := &models.RawTranscript{
		Title:    media.Title,
		Language: language,
		Segments: make([]models.Segment, 0, len(resp.Segments)),
	}
	if language == models.LanguageAuto && resp.Language != "" {
		raw.Language = resp.Language
	}
	for _, s := range resp.Segments {
		if t := strings.TrimSpace(s.Text); t != "" {
			raw.Segments = append(raw.Segments, models.Segment{Start: s.Start, End: s.End, Text: t})
		}
	}
	raw.Text = strings.TrimSpace(resp.Text)
	if raw.Text == "" {
		raw.Text = joinSegments(raw.Segments)
	}
	if err = storeCachedTranscript(cachePath, raw); err != nil {
		return nil, newStageError(StageTranscribe, KindInternal, err)
	}
	return raw, nil
}

// classifyOpenAIError maps API failures by status code. Errors without a
// status (connection resets, timeouts) are transient.
func classifyOpenAIError(err error) error {
	var (
		apiErr *openai.APIError
		reqErr *openai.RequestError
	)
	switch {
	case errors.As(err, &apiErr):
		return newStageError(StageTranscribe, classifyHTTPStatus(apiErr.HTTPStatusCode, apiErr.Message),
			fmt.Errorf("openai http %d: %s", apiErr.HTTPStatusCode, apiErr.Message))
	case errors.As(err, &reqErr):
		detail := http.StatusText(reqErr.HTTPStatusCode)
		if reqErr.Err != nil {
			detail = reqErr.Err.Error()
		}
		return newStageError(StageTranscribe, classifyHTTPStatus(reqErr.HTTPStatusCode, detail),
			fmt.Errorf("openai http %d: %s", reqErr.HTTPStatusCode, detail))
	}
	return newStageError(StageTranscribe, KindTransientService, err)
}

func classifyHTTPStatus(status int, message string) Kind {
	switch {
	case status == http.StatusTooManyRequests, status >= 500, status == http.StatusRequestTimeout:
		return KindTransientService
	case status == http.StatusBadRequest && strings.Contains(strings.ToLower(message), "language"):
		return KindUnsupportedLanguage
	default:
		return KindInternal
	}
}
