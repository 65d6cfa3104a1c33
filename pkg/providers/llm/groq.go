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

// Groq speaks the OpenAI-compatible chat completions shape against Groq's
// hosted inference endpoint.
type Groq struct {
	apiKey string
	url    string
	model  string
	client *http.Client
}

func NewGroq(apiKey string, model string) *Groq {
	if model == "" {
		model = "llama3-70b-8192"
	}
	return &Groq{
		apiKey: apiKey,
		url:    "https://api.groq.com/openai/v1/chat/completions",
		model:  model,
		client: http.DefaultClient,
	}
}

func (l *Groq) Name() string { return "groq_llm" }

func (l *Groq) Complete(ctx context.Context, systemPrompt string, history []core.Turn, temperature float64, maxTokens int) (core.LLMReply, error) {
	messages := make([]map[string]string, 0, len(history)+1)
	if systemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": systemPrompt})
	}
	for _, t := range history {
		messages = append(messages, map[string]string{"role": string(t.Role), "content": t.Content})
	}

	payload := map[string]interface{}{
		"model":           l.model,
		"messages":        messages,
		"temperature":     temperature,
		"max_tokens":      maxTokens,
		"response_format": map[string]string{"type": "json_object"},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return core.LLMReply{}, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", l.url, bytes.NewReader(body))
	if err != nil {
		return core.LLMReply{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+l.apiKey)

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
		return core.LLMReply{}, fmt.Errorf("%w: groq llm status %d: %v", errs.ErrCollaboratorTransport, resp.StatusCode, errResp)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return core.LLMReply{}, fmt.Errorf("%w: %v", errs.ErrCollaboratorTransport, err)
	}
	if len(result.Choices) == 0 {
		return core.LLMReply{}, fmt.Errorf("%w: groq returned no choices", errs.ErrCollaboratorTransport)
	}

	var reply core.LLMReply
	if err := json.Unmarshal([]byte(result.Choices[0].Message.Content), &reply); err != nil {
		return core.LLMReply{}, fmt.Errorf("%w: %v", errs.ErrLLMParse, err)
	}
	return reply, nil
}
