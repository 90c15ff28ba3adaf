package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	shellwords "github.com/mattn/go-shellwords"

	"github.com/voxdlabs/voxd/internal/config"
	"github.com/voxdlabs/voxd/internal/fault"
)

// execTranscriber shells out to a local speech-to-text CLI. The command is
// expected to print a JSON object with a "text" field on stdout.
type execTranscriber struct {
	cmd     []string
	cfg     config.TranscriptionConfig
	timeout time.Duration
	logger  *slog.Logger
	mu      sync.Mutex
}

func NewExecTranscriber(cfg config.TranscriptionConfig, logger *slog.Logger) (Transcriber, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse transcription command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("transcription command is empty")
	}
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &execTranscriber{
		cmd:     args,
		cfg:     cfg,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "transcription")),
	}, nil
}

func (t *execTranscriber) Transcribe(ctx context.Context, artifactPath string) (Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := os.Stat(artifactPath); err != nil {
		return Result{}, fault.Newf(fault.ArtifactNotFound, "error.artifact_not_found",
			"capture artifact missing: %s", artifactPath).
			WithParam("path", artifactPath)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	args := append([]string{}, t.cmd[1:]...)
	args = append(args, "--audio", artifactPath)
	if t.cfg.Model != "" {
		args = append(args, "--model", t.cfg.Model)
	}
	if t.cfg.Language != "" {
		args = append(args, "--language", t.cfg.Language)
	}

	command := exec.CommandContext(ctx, t.cmd[0], args...)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, fault.Newf(fault.TimeoutError, "error.timeout",
				"transcription command gave no result within %s", t.timeout).
				WithParam("timeout_s", fmt.Sprintf("%.0f", t.timeout.Seconds()))
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return Result{}, context.Canceled
		}
		return Result{}, fault.Newf(fault.ProviderError, "error.provider",
			"transcription command failed: %v: %s", err, strings.TrimSpace(stderr.String()))
	}

	var payload struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &payload); err != nil {
		return Result{}, fault.Wrap(fault.ProviderError, "error.provider", "decode transcription command output", err)
	}
	if payload.Text == nil {
		return Result{}, fault.New(fault.ProviderError, "error.provider", "transcription command output missing text")
	}
	return Result{Text: *payload.Text}, nil
}
