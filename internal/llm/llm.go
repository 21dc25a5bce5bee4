// Package llm abstracts the AI completion capability. The pipeline treats it
// as optional: a nil Provider means no credential is configured and dependent
// stages are skipped.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"marketscout/internal/config"
)

// Completion is one model response with its token usage, which the budget
// tracker needs to estimate cost.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Provider is the interface for AI completion providers.
type Provider interface {
	Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (*Completion, error)
	Model() string
	IsConfigured() bool
}

// AnthropicProvider calls the Anthropic messages API.
type AnthropicProvider struct {
	model  string
	apiKey string
	client *http.Client
}

// NewAnthropicProvider reads the API key from the given environment variable.
func NewAnthropicProvider(model, apiKeyEnv string) *AnthropicProvider {
	return &AnthropicProvider{
		model:  model,
		apiKey: os.Getenv(apiKeyEnv),
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

func (a *AnthropicProvider) Model() string { return a.model }

// IsConfigured checks if the API key is set.
func (a *AnthropicProvider) IsConfigured() bool { return a.apiKey != "" }

// Complete sends a prompt to the messages API and returns text plus usage.
func (a *AnthropicProvider) Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (*Completion, error) {
	if a.apiKey == "" {
		return nil, fmt.Errorf("anthropic API key not configured")
	}

	body := map[string]any{
		"model":      a.model,
		"max_tokens": maxTokens,
		"temperature": temperature,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.anthropic.com/v1/messages", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("anthropic API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(result.Content) == 0 {
		return nil, fmt.Errorf("empty content in anthropic response")
	}

	return &Completion{
		Text:         result.Content[0].Text,
		InputTokens:  result.Usage.InputTokens,
		OutputTokens: result.Usage.OutputTokens,
	}, nil
}

// OpenAIProvider calls the OpenAI chat completions API.
type OpenAIProvider struct {
	model  string
	apiKey string
	client *http.Client
}

// NewOpenAIProvider reads the API key from the given environment variable.
func NewOpenAIProvider(model, apiKeyEnv string) *OpenAIProvider {
	return &OpenAIProvider{
		model:  model,
		apiKey: os.Getenv(apiKeyEnv),
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

func (o *OpenAIProvider) Model() string { return o.model }

// IsConfigured checks if the API key is set.
func (o *OpenAIProvider) IsConfigured() bool { return o.apiKey != "" }

// Complete sends a prompt to OpenAI and returns text plus usage.
func (o *OpenAIProvider) Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (*Completion, error) {
	if o.apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key not configured")
	}

	body := map[string]any{
		"model": o.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"max_tokens":  maxTokens,
		"temperature": temperature,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.openai.com/v1/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("OpenAI API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("no choices in OpenAI response")
	}

	return &Completion{
		Text:         result.Choices[0].Message.Content,
		InputTokens:  result.Usage.PromptTokens,
		OutputTokens: result.Usage.CompletionTokens,
	}, nil
}

// CreateProvider builds a provider from configuration. It returns nil when no
// credential is available; callers must treat that as "skip AI stages".
func CreateProvider(cfg config.AI) Provider {
	if !cfg.Enabled {
		log.Println("AI disabled in config")
		return nil
	}

	if strings.ToLower(cfg.Provider) == "anthropic" {
		p := NewAnthropicProvider(cfg.Model, cfg.APIKeyEnv)
		if p.IsConfigured() {
			log.Printf("Using Anthropic with model: %s", cfg.Model)
			return p
		}
		log.Printf("%s not set, trying OpenAI fallback...", cfg.APIKeyEnv)
	}

	p := NewOpenAIProvider(cfg.OpenAIModel, cfg.OpenAIKeyEnv)
	if p.IsConfigured() {
		log.Printf("Using OpenAI with model: %s", cfg.OpenAIModel)
		return p
	}

	log.Printf("No AI provider available. Set %s or %s to enable attribute extraction and ideation.",
		cfg.APIKeyEnv, cfg.OpenAIKeyEnv)
	return nil
}
