package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

// OllamaBackend runs prompts against a local Ollama instance.
type OllamaBackend struct {
	client *api.Client
	model  string

	// numGPU is the layer-offload option chosen by Load: -1 offloads
	// everything to the GPU, 0 keeps the model on the CPU.
	numGPU int
}

// NewOllamaBackend creates a backend for the given base URL and model name.
func NewOllamaBackend(baseURL, model string) (*OllamaBackend, error) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		// If env-based client fails, create one with the base URL
		parsedURL, parseErr := url.Parse(baseURL)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid base URL: %w", parseErr)
		}
		client = api.NewClient(parsedURL, http.DefaultClient)
	}

	return &OllamaBackend{
		client: client,
		model:  model,
		numGPU: -1,
	}, nil
}

// Load preloads the model into memory on the requested backend. An
// empty-prompt generate request makes Ollama load the model without
// producing output; a failure here surfaces broken GPU drivers before the
// worker starts feeding articles.
func (b *OllamaBackend) Load(ctx context.Context, gpu bool) error {
	numGPU := -1
	if !gpu {
		numGPU = 0
	}

	req := &api.GenerateRequest{
		Model:  b.model,
		Stream: new(bool), // false
		Options: map[string]interface{}{
			"num_gpu": numGPU,
		},
	}
	err := b.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		return nil
	})
	if err != nil {
		return fmt.Errorf("ollama model load failed: %w", err)
	}

	b.numGPU = numGPU
	return nil
}

// Generate runs a single prompt to completion and returns the full
// response text.
func (b *OllamaBackend) Generate(ctx context.Context, prompt string) (string, error) {
	req := &api.GenerateRequest{
		Model:  b.model,
		Prompt: prompt,
		Stream: new(bool), // false
		Options: map[string]interface{}{
			"temperature": 0.3,
			"num_gpu":     b.numGPU,
		},
	}

	var fullResponse strings.Builder
	err := b.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		fullResponse.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama generate failed: %w", err)
	}
	return fullResponse.String(), nil
}

// Close asks Ollama to unload the model by sending a zero keep-alive
// request. Errors are returned but harmless to ignore; the server evicts
// idle models on its own eventually.
func (b *OllamaBackend) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	keepAlive := &api.Duration{Duration: 0}
	req := &api.GenerateRequest{
		Model:     b.model,
		Stream:    new(bool), // false
		KeepAlive: keepAlive,
	}
	return b.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		return nil
	})
}
