package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"teacherdev_backend/internal/config"
	"teacherdev_backend/internal/model"
	"teacherdev_backend/internal/util"
)

// ErrEmptyTranscript means the recording contained no recognisable speech.
var ErrEmptyTranscript = errors.New("transcript is empty")

// Transcriber turns a recorded answer into text.
type Transcriber interface {
	Transcribe(ctx context.Context, ref string, kind model.QuestionType) (string, error)
}

// WhisperTranscriber downloads the recording, strips the video track when
// needed and sends the audio to an OpenAI-compatible transcription endpoint.
type WhisperTranscriber struct {
	client  *openai.Client
	model   string
	store   MediaStore
	workDir string
	log     *zap.Logger

	probe   func(path string) (*util.MediaInfo, error)
	extract func(videoPath, audioPath string) error
}

func NewWhisperTranscriber(cfg config.TranscriptionConfig, store MediaStore, log *zap.Logger) *WhisperTranscriber {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	workDir := cfg.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &WhisperTranscriber{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   model,
		store:   store,
		workDir: workDir,
		log:     log,
		probe:   util.ProbeMedia,
		extract: util.ExtractAudio,
	}
}

func (t *WhisperTranscriber) Transcribe(ctx context.Context, ref string, kind model.QuestionType) (string, error) {
	if !kind.IsMedia() {
		return "", fmt.Errorf("cannot transcribe %s answer", kind)
	}

	dir, err := os.MkdirTemp(t.workDir, "transcribe-*")
	if err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	ext := path.Ext(strings.SplitN(ref, "?", 2)[0])
	if ext == "" {
		ext = ".bin"
	}
	src := filepath.Join(dir, "source"+ext)
	if err := t.store.Fetch(ctx, ref, src); err != nil {
		return "", fmt.Errorf("fetch recording: %w", err)
	}

	audio := src
	if kind == model.QuestionVideo {
		info, err := t.probe(src)
		if err != nil {
			return "", err
		}
		if !info.HasAudio {
			return "", fmt.Errorf("recording has no audio track")
		}
		audio = filepath.Join(dir, "audio.wav")
		if err := t.extract(src, audio); err != nil {
			return "", fmt.Errorf("extract audio: %w", err)
		}
	}

	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: audio,
	})
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	t.log.Debug("Recording transcribed", zap.String("kind", string(kind)), zap.Int("chars", len(text)))
	return text, nil
}
