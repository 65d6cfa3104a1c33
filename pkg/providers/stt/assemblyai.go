package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/voxrelay/callbridge/pkg/core"
	"github.com/voxrelay/callbridge/pkg/errs"
)

// AssemblyAI polls the async transcription API: upload, submit, poll.
type AssemblyAI struct {
	apiKey string
	client *http.Client
	poll   time.Duration
}

func NewAssemblyAI(apiKey string) *AssemblyAI {
	return &AssemblyAI{apiKey: apiKey, client: http.DefaultClient, poll: 500 * time.Millisecond}
}

func (s *AssemblyAI) Name() string { return "assemblyai_stt" }

func (s *AssemblyAI) Transcribe(ctx context.Context, wavAudio []byte, lang core.Language, prompt string) (string, error) {
	uploadURL, err := s.upload(ctx, wavAudio)
	if err != nil {
		return "", err
	}
	transcriptID, err := s.submit(ctx, uploadURL, lang, prompt)
	if err != nil {
		return "", err
	}

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.poll):
			text, status, err := s.getTranscript(ctx, transcriptID)
			if err != nil {
				return "", err
			}
			switch status {
			case "completed":
				return text, nil
			case "error":
				return "", fmt.Errorf("%w: assemblyai transcription failed", errs.ErrCollaboratorTransport)
			}
		}
	}
}

func (s *AssemblyAI) upload(ctx context.Context, wavAudio []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.assemblyai.com/v2/upload", bytes.NewReader(wavAudio))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrCollaboratorTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return "", errs.ErrCollaboratorRateLimit
	}

	var result struct {
		UploadURL string `json:"upload_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrCollaboratorTransport, err)
	}
	return result.UploadURL, nil
}

func (s *AssemblyAI) submit(ctx context.Context, uploadURL string, lang core.Language, prompt string) (string, error) {
	payload := map[string]interface{}{"audio_url": uploadURL}
	if lang != "" {
		payload["language_code"] = string(lang)
	}
	if prompt != "" {
		payload["word_boost"] = []string{prompt}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.assemblyai.com/v2/transcript", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrCollaboratorTransport, err)
	}
	defer resp.Body.Close()

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrCollaboratorTransport, err)
	}
	return result.ID, nil
}

func (s *AssemblyAI) getTranscript(ctx context.Context, id string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", "https://api.assemblyai.com/v2/transcript/"+id, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Authorization", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", errs.ErrCollaboratorTransport, err)
	}
	defer resp.Body.Close()

	var result struct {
		Status string `json:"status"`
		Text   string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", "", fmt.Errorf("%w: %v", errs.ErrCollaboratorTransport, err)
	}
	return result.Text, result.Status, nil
}
