package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/voxdlabs/voxd/internal/config"
	"github.com/voxdlabs/voxd/internal/fault"
)

const maxErrorBody = 32 << 10

// Client posts WAV artifacts to an OpenAI-compatible transcription endpoint.
type Client struct {
	cfg     config.TranscriptionConfig
	timeout time.Duration
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(cfg config.TranscriptionConfig, logger *slog.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:     cfg,
		timeout: timeout,
		http:    &http.Client{},
		logger:  logger.With(slog.String("component", "transcription")),
	}
}

func (c *Client) Transcribe(ctx context.Context, artifactPath string) (Result, error) {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{}, fault.Newf(fault.ArtifactNotFound, "error.artifact_not_found",
				"capture artifact missing: %s", artifactPath).
				WithParam("path", artifactPath)
		}
		return Result{}, fault.Wrap(fault.ArtifactNotFound, "error.artifact_not_found", "read capture artifact", err).
			WithParam("path", artifactPath)
	}

	body, contentType, err := c.encodeForm(filepath.Base(artifactPath), data)
	if err != nil {
		return Result{}, fault.Wrap(fault.ProviderError, "error.provider", "encode upload form", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, body)
	if err != nil {
		return Result{}, fault.Wrap(fault.ProviderError, "error.provider", "build upload request", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return Result{}, context.Canceled
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{}, fault.Newf(fault.TimeoutError, "error.timeout",
				"no response from speech service within %s", c.timeout).
				WithParam("timeout_s", fmt.Sprintf("%.0f", c.timeout.Seconds()))
		}
		return Result{}, fault.Wrap(fault.NetworkError, "error.network", "reach speech service", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Result{}, fault.Newf(fault.AuthenticationError, "error.authentication",
			"speech service rejected credentials (HTTP %d), check the configured api_key / VOXD_TRANSCRIPTION_API_KEY", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		// Failure bodies are only quoted in the error, so cap them.
		raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if readErr != nil {
			return Result{}, fault.Wrap(fault.NetworkError, "error.network", "read speech service response", readErr)
		}
		return Result{}, fault.Newf(fault.ProviderError, "error.provider",
			"speech service returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	// Success bodies carry the transcript and must be read in full.
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fault.Wrap(fault.NetworkError, "error.network", "read speech service response", err)
	}

	var payload struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Result{}, fault.Wrap(fault.ProviderError, "error.provider", "decode speech service response", err)
	}
	if payload.Text == nil {
		return Result{}, fault.New(fault.ProviderError, "error.provider", "speech service response missing text")
	}

	c.logger.Debug("transcription complete",
		slog.Duration("elapsed", time.Since(started)),
		slog.Int("chars", len(*payload.Text)))
	return Result{Text: *payload.Text}, nil
}

func (c *Client) encodeForm(filename string, wav []byte) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)

	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(wav); err != nil {
		return nil, "", err
	}
	if err := form.WriteField("model", c.cfg.Model); err != nil {
		return nil, "", err
	}
	if c.cfg.ResponseFormat != "" {
		if err := form.WriteField("response_format", c.cfg.ResponseFormat); err != nil {
			return nil, "", err
		}
	}
	if c.cfg.Language != "" {
		if err := form.WriteField("language", c.cfg.Language); err != nil {
			return nil, "", err
		}
	}
	if err := form.Close(); err != nil {
		return nil, "", err
	}
	return body, form.FormDataContentType(), nil
}
