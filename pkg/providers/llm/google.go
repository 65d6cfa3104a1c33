package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/voxrelay/callbridge/pkg/core"
	"github.com/voxrelay/callbridge/pkg/errs"
)

// Google targets the Gemini generateContent API, folding the system prompt
// into a systemInstruction block and requesting a JSON MIME type so the
// {action, text} contract survives the round trip.
type Google struct {
	apiKey string
	url    string
	model  string
	client *http.Client
}

func NewGoogle(apiKey string, model string) *Google {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &Google{
		apiKey: apiKey,
		url:    "https://generativelanguage.googleapis.com/v1beta/models/" + model + ":generateContent",
		model:  model,
		client: http.DefaultClient,
	}
}

func (l *Google) Name() string { return "google_llm" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

func (l *Google) Complete(ctx context.Context, systemPrompt string, history []core.Turn, temperature float64, maxTokens int) (core.LLMReply, error) {
	contents := make([]geminiContent, 0, len(history))
	for _, t := range history {
		role := "user"
		if t.Role == core.RoleAssistant {
			role = "model"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: t.Content}}})
	}

	payload := map[string]interface{}{
		"contents": contents,
		"generationConfig": map[string]interface{}{
			"temperature":      temperature,
			"maxOutputTokens":  maxTokens,
			"responseMimeType": "application/json",
		},
	}
	if systemPrompt != "" {
		payload["systemInstruction"] = geminiContent{Parts: []geminiPart{{Text: systemPrompt}}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return core.LLMReply{}, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", l.url+"?key="+l.apiKey, bytes.NewReader(body))
	if err != nil {
		return core.LLMReply{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return core.LLMReply{}, fmt.Errorf("%w: %v", errs.ErrCollaboratorTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return core.LLMReply{}, errs.ErrCollaboratorRateLimit
	}
	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return core.LLMReply{}, fmt.Errorf("%w: google llm status %d: %v", errs.ErrCollaboratorTransport, resp.StatusCode, errResp)
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []geminiPart `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return core.LLMReply{}, fmt.Errorf("%w: %v", errs.ErrCollaboratorTransport, err)
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return core.LLMReply{}, fmt.Errorf("%w: google returned no candidates", errs.ErrCollaboratorTransport)
	}

	var reply core.LLMReply
	if err := json.Unmarshal([]byte(result.Candidates[0].Content.Parts[0].Text), &reply); err != nil {
		return core.LLMReply{}, fmt.Errorf("%w: %v", errs.ErrLLMParse, err)
	}
	return reply, nil
}
