package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/voxrelay/callbridge/pkg/core"
	"github.com/voxrelay/callbridge/pkg/errs"
)

// Anthropic has no native JSON-mode flag, so the {action, text} contract is
// enforced by appending an instruction to the system prompt instead.
type Anthropic struct {
	apiKey string
	url    string
	model  string
	client *http.Client
}

func NewAnthropic(apiKey string, model string) *Anthropic {
	if model == "" {
		model = "claude-3-5-sonnet-20240620"
	}
	return &Anthropic{
		apiKey: apiKey,
		url:    "https://api.anthropic.com/v1/messages",
		model:  model,
		client: http.DefaultClient,
	}
}

func (l *Anthropic) Name() string { return "anthropic_llm" }

const jsonModeInstruction = `Respond with nothing but a single JSON object of the form {"action":"respond"|"hangup","text":"..."}.`

func (l *Anthropic) Complete(ctx context.Context, systemPrompt string, history []core.Turn, temperature float64, maxTokens int) (core.LLMReply, error) {
	messages := make([]map[string]string, 0, len(history))
	for _, t := range history {
		role := string(t.Role)
		if t.Role == core.RoleSystem {
			continue
		}
		messages = append(messages, map[string]string{"role": role, "content": t.Content})
	}

	system := strings.TrimSpace(systemPrompt + "\n\n" + jsonModeInstruction)

	payload := map[string]interface{}{
		"model":       l.model,
		"messages":    messages,
		"system":      system,
		"max_tokens":  maxTokens,
		"temperature": temperature,
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
	req.Header.Set("x-api-key", l.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

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
		return core.LLMReply{}, fmt.Errorf("%w: anthropic llm status %d: %v", errs.ErrCollaboratorTransport, resp.StatusCode, errResp)
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return core.LLMReply{}, fmt.Errorf("%w: %v", errs.ErrCollaboratorTransport, err)
	}
	if len(result.Content) == 0 {
		return core.LLMReply{}, fmt.Errorf("%w: anthropic returned no content", errs.ErrCollaboratorTransport)
	}

	var reply core.LLMReply
	if err := json.Unmarshal([]byte(result.Content[0].Text), &reply); err != nil {
		return core.LLMReply{}, fmt.Errorf("%w: %v", errs.ErrLLMParse, err)
	}
	return reply, nil
}
