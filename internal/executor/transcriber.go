package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/amankumarsingh77/yt-transcriber/internal/models"
)

type Transcriber interface {
	// Transcribe runs speech-to-text on media. The same media and language
	// always yield the same transcript.
	Transcribe(ctx context.Context, media *models.MediaHandle, language string) (*models.RawTranscript, error)
}

// whisperLanguages are the ISO-639-1 codes the whisper model family accepts.
var whisperLanguages = map[string]bool{
	"af": true, "am": true, "ar": true, "as": true, "az": true, "ba": true, "be": true, "bg": true,
	"bn": true, "bo": true, "br": true, "bs": true, "ca": true, "cs": true, "cy": true, "da": true,
	"de": true, "el": true, "en": true, "es": true, "et": true, "eu": true, "fa": true, "fi": true,
	"fo": true, "fr": true, "gl": true, "gu": true, "ha": true, "he": true, "hi": true, "hr": true,
	"ht": true, "hu": true, "hy": true, "id": true, "is": true, "it": true, "ja": true, "jw": true,
	"ka": true, "kk": true, "km": true, "kn": true, "ko": true, "la": true, "lb": true, "ln": true,
	"lo": true, "lt": true, "lv": true, "mg": true, "mi": true, "mk": true, "ml": true, "mn": true,
	"mr": true, "ms": true, "mt": true, "my": true, "ne": true, "nl": true, "nn": true, "no": true,
	"oc": true, "pa": true, "pl": true, "ps": true, "pt": true, "ro": true, "ru": true, "sa": true,
	"sd": true, "si": true, "sk": true, "sl": true, "sn": true, "so": true, "sq": true, "sr": true,
	"su": true, "sv": true, "sw": true, "ta": true, "te": true, "tg": true, "th": true, "tk": true,
	"tl": true, "tr": true, "tt": true, "uk": true, "ur": true, "uz": true, "vi": true, "yi": true,
	"yo": true, "zh": true,
}

func checkLanguage(language string, englishOnly bool) error {
	switch {
	case language == models.LanguageAuto:
		return nil
	case englishOnly && language != "en":
		return newStageError(StageTranscribe, KindUnsupportedLanguage, fmt.Errorf("model only transcribes english, got %q", language))
	case !whisperLanguages[language]:
		return newStageError(StageTranscribe, KindUnsupportedLanguage, fmt.Errorf("language %q is not supported", language))
	}
	return nil
}

// transcriptCachePath is where a backend keeps its finished result next to
// the media, keyed by language and backend.
func transcriptCachePath(media *models.MediaHandle, language, backend string) string {
	base := strings.TrimSuffix(media.Path, filepath.Ext(media.Path))
	return base + "." + language + "." + backend + ".transcript.json"
}

func loadCachedTranscript(p string) (*models.RawTranscript, bool) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, false
	}
	raw := &models.RawTranscript{}
	if err = json.Unmarshal(data, raw); err != nil {
		return nil, false
	}
	return raw, true
}

func storeCachedTranscript(p string, raw *models.RawTranscript) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	tmp := p + ".part"
	if err = os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

func joinSegments(segments []models.Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
