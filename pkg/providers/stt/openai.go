// Package stt adapts third-party speech-to-text vendors to core.STTProvider.
package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/voxrelay/callbridge/pkg/core"
	"github.com/voxrelay/callbridge/pkg/errs"
)

// OpenAI wraps the Whisper transcriptions endpoint.
type OpenAI struct {
	apiKey string
	url    string
	model  string
	client *http.Client
}

func NewOpenAI(apiKey string, model string) *OpenAI {
	if model == "" {
		model = "whisper-1"
	}
	return &OpenAI{
		apiKey: apiKey,
		url:    "https://api.openai.com/v1/audio/transcriptions",
		model:  model,
		client: http.DefaultClient,
	}
}

func (s *OpenAI) Name() string { return "openai_stt" }

func (s *OpenAI) Transcribe(ctx context.Context, wavAudio []byte, lang core.Language, prompt string) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("model", s.model); err != nil {
		return "", err
	}
	if lang != "" {
		if err := writer.WriteField("language", string(lang)); err != nil {
			return "", err
		}
	}
	if prompt != "" {
		if err := writer.WriteField("prompt", prompt); err != nil {
			return "", err
		}
	}

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(wavAudio); err != nil {
		return "", err
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, "POST", s.url, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrCollaboratorTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", errs.ErrCollaboratorRateLimit
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: openai stt status %d", errs.ErrCollaboratorTransport, resp.StatusCode)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrCollaboratorTransport, err)
	}
	return result.Text, nil
}
