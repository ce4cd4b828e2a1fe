package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/kiranshivaraju/medialens/internal/ai/llm"
	"github.com/kiranshivaraju/medialens/pkg/models"
)

const maxErrorBody = 4096

type transcriptionResponse struct {
	Text string `json:"text"`
}

// transcribe posts the audio as multipart form data to /audio/transcriptions.
// The prompt is passed as the transcription hint.
func (p *Provider) transcribe(ctx context.Context, data []byte, contentType, prompt string) (models.AnalysisOutput, error) {
	if len(data) == 0 {
		return models.AnalysisOutput{}, fmt.Errorf("%w: empty audio payload", llm.ErrInvalidInput)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("model", p.cfg.TranscribeModel); err != nil {
		return models.AnalysisOutput{}, fmt.Errorf("write model field: %w", err)
	}
	if prompt != "" {
		if err := w.WriteField("prompt", prompt); err != nil {
			return models.AnalysisOutput{}, fmt.Errorf("write prompt field: %w", err)
		}
	}
	part, err := w.CreateFormFile("file", "audio"+extensionFor(contentType))
	if err != nil {
		return models.AnalysisOutput{}, fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return models.AnalysisOutput{}, fmt.Errorf("write file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return models.AnalysisOutput{}, fmt.Errorf("close multipart writer: %w", err)
	}

	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return models.AnalysisOutput{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return models.AnalysisOutput{}, llm.ClassifyError("openai", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return models.AnalysisOutput{}, llm.StatusError("openai", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.AnalysisOutput{}, fmt.Errorf("%w: decode transcription: %v", llm.ErrInvalidResponse, err)
	}
	text := strings.TrimSpace(out.Text)
	if text == "" {
		return models.AnalysisOutput{}, fmt.Errorf("%w: empty transcription", llm.ErrInvalidResponse)
	}

	return models.AnalysisOutput{
		Content:  text,
		Duration: time.Since(start),
		Model:    p.cfg.TranscribeModel,
	}, nil
}

// extensionFor picks a file name suffix the transcription API recognises.
func extensionFor(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	switch ct {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return ".m4a"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/webm":
		return ".webm"
	case "audio/flac":
		return ".flac"
	}
	return ".ogg"
}
