package executor

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/amankumarsingh77/yt-transcriber/internal/config"
	"github.com/amankumarsingh77/yt-transcriber/internal/models"
	"github.com/pkg/errors"
)

type whisperCLI struct {
	binPath   string
	modelPath string
	threads   int
	timeout   time.Duration
	runner    CommandRunner
}

// NewWhisperCLI runs the whisper.cpp command line tool with JSON output.
func NewWhisperCLI(cfg config.ExecutorConfig, runner CommandRunner) Transcriber {
	return &whisperCLI{
		binPath:   cfg.WhisperPath,
		modelPath: cfg.WhisperModel,
		threads:   cfg.WhisperThreads,
		timeout:   cfg.CommandTimeout,
		runner:    runner,
	}
}

// englishOnly reports models such as ggml-base.en.bin.
func (w *whisperCLI) englishOnly() bool {
	base := strings.TrimSuffix(filepath.Base(w.modelPath), filepath.Ext(w.modelPath))
	return strings.HasSuffix(base, ".en")
}

type whisperOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func (w *whisperCLI) Transcribe(ctx context.Context, media *models.MediaHandle, language string) (*models.RawTranscript, error) {
	if err := checkLanguage(language, w.englishOnly()); err != nil {
		return nil, err
	}
	cachePath := transcriptCachePath(media, language, "whisper")
	if raw, ok := loadCachedTranscript(cachePath); ok {
		return raw, nil
	}

	outBase := strings.TrimSuffix(cachePath, ".transcript.json")
	args := []string{
		"-m", w.modelPath,
		"-f", media.Path,
		"-l", language,
		"-oj",
		"-of", outBase,
		"-np",
	}
	if w.threads > 0 {
		args = append(args, "-t", strconv.Itoa(w.threads))
	}
	res, err := runWithTimeout(ctx, w.runner, w.timeout, w.binPath, args...)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, newStageError(StageTranscribe, KindInternal, err)
		}
		if errors.Is(err, errCommandTimeout) || ctx.Err() != nil {
			return nil, newStageError(StageTranscribe, KindTransientService, err)
		}
		detail := lastLines(res.Stderr, 3)
		if detail == "" {
			detail = err.Error()
		}
		return nil, newStageError(StageTranscribe, KindTransientService, errors.New(detail))
	}

	jsonPath := outBase + ".json"
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, newStageError(StageTranscribe, KindTransientService, errors.Wrap(err, "whisper output missing"))
	}
	raw, err := parseWhisperOutput(data)
	if err != nil {
		return nil, newStageError(StageTranscribe, KindInternal, err)
	}
	raw.Title = media.Title
	if raw.Language == "" {
		raw.Language = language
	}
	if err = storeCachedTranscript(cachePath, raw); err != nil {
		return nil, newStageError(StageTranscribe, KindInternal, err)
	}
	_ = os.Remove(jsonPath)
	return raw, nil
}

func parseWhisperOutput(data []byte) (*models.RawTranscript, error) {
	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrap(err, "decode whisper output")
	}
	raw := &models.RawTranscript{
		Language: out.Result.Language,
		Segments: make([]models.Segment, 0, len(out.Transcription)),
	}
	for _, t := range out.Transcription {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		raw.Segments = append(raw.Segments, models.Segment{
			Start: float64(t.Offsets.From) / 1000,
			End:   float64(t.Offsets.To) / 1000,
			Text:  text,
		})
	}
	raw.Text = joinSegments(raw.Segments)
	return raw, nil
}
