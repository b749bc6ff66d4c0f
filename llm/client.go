package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// Message is one chat turn in OpenAI wire form.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type ChatResponse struct {
	ID      string `json:"id,omitempty"`
	Content string `json:"content,omitempty"`
}

var (
	ErrPermanent = errors.New("permanent error")
	ErrTransient = errors.New("transient error")
)

func NewClientFromEnv() *Client {
	base := os.Getenv("OPENAI_BASE_URL")
	key := os.Getenv("OPENAI_API_KEY")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	return &Client{
		BaseURL: strings.TrimRight(base, "/"),
		APIKey:  key,
		HTTP:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) CreateChatCompletion(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	// resolve model
	defaultModel := os.Getenv("OPENAI_MODEL")
	fallback := os.Getenv("OPENAI_FALLBACK_MODEL")
	model := req.Model
	if model == "" {
		model = defaultModel
	}
	if model == "" {
		model = "gpt-4-turbo-preview"
	}

	// enforce limits
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	cfgMax := 4000
	if mt := os.Getenv("LLM_MAX_TOKENS"); mt != "" {
		var parsed int
		fmt.Sscanf(mt, "%d", &parsed)
		if parsed > 0 {
			cfgMax = parsed
		}
	}
	if maxTokens > cfgMax {
		maxTokens = cfgMax
	}

	resp, err := c.call(ctx, model, req.Messages, maxTokens, req.Temperature)
	if err == nil {
		return resp, nil
	}
	// transient failures get one shot at the fallback model
	if errors.Is(err, ErrTransient) && fallback != "" && fallback != model {
		time.Sleep(250 * time.Millisecond)
		fbResp, fbErr := c.call(ctx, fallback, req.Messages, maxTokens, req.Temperature)
		if fbErr == nil {
			fbResp.ID = "resp-fallback"
			return fbResp, nil
		}
		return ChatResponse{}, fmt.Errorf("fallback model: %w", fbErr)
	}
	return ChatResponse{}, err
}

func (c *Client) call(ctx context.Context, model string, messages []Message, maxTokens int, temperature float64) (ChatResponse, error) {
	payload := map[string]interface{}{
		"model":       model,
		"messages":    messages,
		"max_tokens":  maxTokens,
		"temperature": temperature,
	}
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("%w: marshal request: %v", ErrPermanent, err)
	}

	url := fmt.Sprintf("%s/chat/completions", c.BaseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(bodyBytes)))
	if err != nil {
		return ChatResponse{}, fmt.Errorf("%w: build request: %v", ErrPermanent, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var out struct {
			ID      string `json:"id"`
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return ChatResponse{}, fmt.Errorf("%w: decode error: %v", ErrTransient, err)
		}
		content := ""
		if len(out.Choices) > 0 {
			content = out.Choices[0].Message.Content
		}
		id := out.ID
		if id == "" {
			id = "resp"
		}
		return ChatResponse{ID: id, Content: content}, nil
	}

	// 429 and 5xx are worth retrying elsewhere; the rest are not
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return ChatResponse{}, fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	}
	return ChatResponse{}, fmt.Errorf("%w: status %d", ErrPermanent, resp.StatusCode)
}
