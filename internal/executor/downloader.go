package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/amankumarsingh77/yt-transcriber/internal/config"
	"github.com/amankumarsingh77/yt-transcriber/internal/jobs"
	"github.com/amankumarsingh77/yt-transcriber/internal/models"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"
)

const (
	audioFileName = "audio.wav"
	titleFileName = "title.txt"
)

type Downloader interface {
	// Fetch resolves a source reference to normalised local audio. Repeated
	// calls for the same reference return the same handle without refetching.
	Fetch(ctx context.Context, sourceRef string) (*models.MediaHandle, error)
}

// unavailablePatterns match yt-dlp error phrases (lower cased) meaning the
// video will never be retrievable, no matter how often we retry.
var unavailablePatterns = []*regexp.Regexp{
	regexp.MustCompile(`video (is )?(unavailable|not available|no longer available)`),
	regexp.MustCompile(`(private|members[- ]only|premium) video`),
	regexp.MustCompile(`this video is private`),
	regexp.MustCompile(`(has been|was) (removed|terminated|taken down)`),
	regexp.MustCompile(`removed by the uploader`),
	regexp.MustCompile(`account associated with this video`),
	regexp.MustCompile(`available in your (country|region|location)`),
	regexp.MustCompile(`blocked (it )?in your (country|region)`),
	regexp.MustCompile(`geo[- ]?restrict`),
	regexp.MustCompile(`join this channel`),
	regexp.MustCompile(`confirm your age|age[- ]restricted|inappropriate for some users`),
	regexp.MustCompile(`copyright (claim|grounds)`),
	regexp.MustCompile(`unsupported url|incomplete youtube id|is not a valid url`),
	regexp.MustCompile(`http error 404|http error 410`),
	regexp.MustCompile(`live event will begin|premieres in`),
}

type mediaDownloader struct {
	ytDlpPath  string
	ffmpegPath string
	workDir    string
	timeout    time.Duration
	runner     CommandRunner
	awsRepo    jobs.AWSRepository
	keys       sync.Map
}

// NewMediaDownloader fetches YouTube sources with yt-dlp and s3:// sources
// through awsRepo, which may be nil when no bucket is configured.
func NewMediaDownloader(cfg config.ExecutorConfig, runner CommandRunner, awsRepo jobs.AWSRepository) Downloader {
	return &mediaDownloader{
		ytDlpPath:  cfg.YtDlpPath,
		ffmpegPath: cfg.FfmpegPath,
		workDir:    cfg.WorkDir,
		timeout:    cfg.CommandTimeout,
		runner:     runner,
		awsRepo:    awsRepo,
	}
}

func (d *mediaDownloader) lock(id string) func() {
	v, _ := d.keys.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (d *mediaDownloader) Fetch(ctx context.Context, sourceRef string) (*models.MediaHandle, error) {
	src, err := models.ParseSource(sourceRef)
	if err != nil {
		return nil, newStageError(StageDownload, KindSourceUnavailable, err)
	}
	id := src.StableID()
	defer d.lock(id)()

	dir := filepath.Join(d.workDir, id)
	audioPath := filepath.Join(dir, audioFileName)
	titlePath := filepath.Join(dir, titleFileName)
	if handle, ok := cachedMedia(audioPath, titlePath, id); ok {
		now := time.Now()
		_ = os.Chtimes(dir, now, now)
		return handle, nil
	}
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return nil, newStageError(StageDownload, KindInternal, err)
	}

	var sourcePath, title string
	switch src.Kind {
	case models.SourceS3:
		sourcePath, title, err = d.fetchS3(ctx, src, dir)
	default:
		sourcePath, title, err = d.fetchYouTube(ctx, src, dir)
	}
	if err != nil {
		return nil, err
	}

	if err = d.extractAudio(ctx, sourcePath, audioPath); err != nil {
		return nil, err
	}
	if err = os.WriteFile(titlePath, []byte(title), 0o644); err != nil {
		return nil, newStageError(StageDownload, KindInternal, err)
	}
	if sourcePath != audioPath {
		_ = os.Remove(sourcePath)
	}
	return &models.MediaHandle{Path: audioPath, Title: title, SourceID: id}, nil
}

func cachedMedia(audioPath, titlePath, id string) (*models.MediaHandle, bool) {
	info, err := os.Stat(audioPath)
	if err != nil || info.Size() == 0 {
		return nil, false
	}
	title, err := os.ReadFile(titlePath)
	if err != nil {
		return nil, false
	}
	return &models.MediaHandle{Path: audioPath, Title: string(title), SourceID: id}, true
}

func (d *mediaDownloader) fetchYouTube(ctx context.Context, src *models.Source, dir string) (string, string, error) {
	res, err := runWithTimeout(ctx, d.runner, d.timeout, d.ytDlpPath,
		"-f", "bestaudio/best",
		"--no-playlist",
		"--no-progress",
		"--no-warnings",
		"--no-simulate",
		"--print", "title",
		"--print", "after_move:filepath",
		"-o", filepath.Join(dir, "source.%(ext)s"),
		src.URL,
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", "", newStageError(StageDownload, KindTransientNetwork, ctx.Err())
		}
		if errors.Is(err, errCommandTimeout) {
			return "", "", newStageError(StageDownload, KindTransientNetwork, err)
		}
		if errors.Is(err, os.ErrNotExist) || strings.Contains(err.Error(), "executable file not found") {
			return "", "", newStageError(StageDownload, KindInternal, err)
		}
		detail := lastLines(res.Stderr, 3)
		if detail == "" {
			detail = err.Error()
		}
		return "", "", newStageError(StageDownload, classifyDownloadFailure(res.Stderr), errors.New(detail))
	}

	var lines []string
	for _, l := range strings.Split(res.Stdout, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) < 2 {
		return "", "", newStageError(StageDownload, KindInternal, fmt.Errorf("unexpected yt-dlp output %q", res.Stdout))
	}
	return lines[len(lines)-1], lines[0], nil
}

func classifyDownloadFailure(stderr string) Kind {
	s := strings.ToLower(stderr)
	for _, p := range unavailablePatterns {
		if p.MatchString(s) {
			return KindSourceUnavailable
		}
	}
	return KindTransientNetwork
}

// fetchS3 is the s3:// path for media uploaded ahead of time.
func (d *mediaDownloader) fetchS3(ctx context.Context, src *models.Source, dir string) (string, string, error) {
	if d.awsRepo == nil {
		return "", "", newStageError(StageDownload, KindSourceUnavailable, errors.New("s3 sources are not enabled"))
	}
	obj, err := d.awsRepo.GetObject(ctx, src.Bucket, src.Key)
	if err != nil {
		var noKey *types.NoSuchKey
		var noBucket *types.NoSuchBucket
		if errors.As(err, &noKey) || errors.As(err, &noBucket) {
			return "", "", newStageError(StageDownload, KindSourceUnavailable, err)
		}
		return "", "", newStageError(StageDownload, KindTransientNetwork, err)
	}
	defer obj.Body.Close()

	localPath := filepath.Join(dir, "source"+path.Ext(src.Key))
	out, err := os.Create(localPath)
	if err != nil {
		return "", "", newStageError(StageDownload, KindInternal, err)
	}
	defer out.Close()
	if _, err = io.Copy(out, obj.Body); err != nil {
		return "", "", newStageError(StageDownload, KindTransientNetwork, err)
	}
	title := strings.TrimSuffix(path.Base(src.Key), path.Ext(src.Key))
	return localPath, title, nil
}

// extractAudio converts the source to mono 16 kHz PCM, the input both
// transcription backends expect. The result is renamed into place so a
// crash never leaves a half written audio file behind.
func (d *mediaDownloader) extractAudio(ctx context.Context, sourcePath, audioPath string) error {
	tmp := audioPath + ".part.wav"
	res, err := runWithTimeout(ctx, d.runner, d.timeout, d.ffmpegPath,
		"-nostdin", "-hide_banner", "-loglevel", "error",
		"-y", "-i", sourcePath,
		"-vn", "-ac", "1", "-ar", "16000", "-c:a", "pcm_s16le",
		tmp,
	)
	if err != nil {
		_ = os.Remove(tmp)
		if ctx.Err() != nil {
			return newStageError(StageDownload, KindTransientNetwork, ctx.Err())
		}
		if errors.Is(err, errCommandTimeout) {
			return newStageError(StageDownload, KindTransientNetwork, err)
		}
		return newStageError(StageDownload, KindInternal, fmt.Errorf("ffmpeg: %s", lastLines(res.Stderr+"\n"+err.Error(), 3)))
	}
	if err = os.Rename(tmp, audioPath); err != nil {
		return newStageError(StageDownload, KindInternal, err)
	}
	return nil
}
