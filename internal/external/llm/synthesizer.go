package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/wonny/aegis-signal/internal/contracts"
	"github.com/wonny/aegis-signal/pkg/config"
	"github.com/wonny/aegis-signal/pkg/httputil"
	"github.com/wonny/aegis-signal/pkg/logger"
)

// ErrMalformedResponse is returned when the model output is not the expected JSON
var ErrMalformedResponse = errors.New("malformed synthesis response")

const systemPrompt = `You are an equity analyst. You receive structured task outputs for one
instrument and answer with a single JSON object and nothing else:
{"recommendation":"BUY|HOLD|SELL","confidence":0..1,
 "scenarios":{"bull":{"probability":0..1,"expected_return_pct":number,"thesis":string},
              "base":{...},"bear":{...}},
 "decision_card":{"entry_zone":[low,high],"stop_loss":number,"targets":[number],
                  "invalidation_conditions":[string],"time_horizon":"7d"},
 "rationale_summary":string}
Returns are percentages over 7 days. Probabilities should sum to 1.`

// chatRequest is the OpenAI-compatible chat completion body
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Synthesizer calls a chat completion endpoint to turn task results into
// scenarios and a decision card
// ⭐ SSOT: 합성(LLM) 호출은 여기서만
type Synthesizer struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	endpoint   string
	model      string
}

// NewSynthesizer creates a synthesizer. httpClient should already carry the
// Authorization header and rate limiter.
func NewSynthesizer(cfg config.LLMConfig, httpClient *httputil.Client, log *logger.Logger) *Synthesizer {
	return &Synthesizer{
		httpClient: httpClient,
		logger:     log.WithComponent("llm"),
		endpoint:   strings.TrimSuffix(cfg.BaseURL, "/") + "/chat/completions",
		model:      cfg.Model,
	}
}

// Synthesize implements contracts.Synthesizer
func (s *Synthesizer) Synthesize(ctx context.Context, symbol string, results map[string]*contracts.TaskResult) (*contracts.SynthesisOutput, error) {
	prompt, err := buildPrompt(symbol, results)
	if err != nil {
		return nil, err
	}

	body, err := s.httpClient.PostJSONBody(ctx, s.endpoint, chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature:    0.2,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}

	out, err := ParseOutput(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"symbol":         symbol,
		"recommendation": out.Recommendation,
	}).Debug("Synthesis completed")
	return out, nil
}

// ParseOutput decodes model content, tolerating a fenced code block
func ParseOutput(content string) (*contracts.SynthesisOutput, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object", ErrMalformedResponse)
	}

	var out contracts.SynthesisOutput
	if err := json.Unmarshal([]byte(content[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if strings.TrimSpace(out.Recommendation) == "" {
		return nil, fmt.Errorf("%w: missing recommendation", ErrMalformedResponse)
	}
	return &out, nil
}

// taskSummary is what the model sees per task
type taskSummary struct {
	Task    string             `json:"task"`
	Success bool               `json:"success"`
	Data    contracts.TaskData `json:"data,omitempty"`
	Error   string             `json:"error,omitempty"`
}

func buildPrompt(symbol string, results map[string]*contracts.TaskResult) (string, error) {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	summaries := make([]taskSummary, 0, len(names))
	for _, name := range names {
		res := results[name]
		summaries = append(summaries, taskSummary{
			Task:    name,
			Success: res.Success,
			Data:    res.Data,
			Error:   res.Error,
		})
	}

	payload, err := json.Marshal(summaries)
	if err != nil {
		return "", fmt.Errorf("encode task results: %w", err)
	}
	return fmt.Sprintf("Instrument: %s\nTask results:\n%s", symbol, payload), nil
}
