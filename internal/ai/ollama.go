package ai

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

// OllamaExtractor runs theme extraction against a local Ollama server.
type OllamaExtractor struct {
	client      *api.Client
	model       string
	temperature float64
}

// NewOllamaExtractor creates an extractor backed by Ollama.
func NewOllamaExtractor(baseURL, model string, temperature float64) (*OllamaExtractor, error) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		// If env-based client fails, create one with the base URL
		parsedURL, parseErr := url.Parse(baseURL)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid base URL: %w", parseErr)
		}
		client = api.NewClient(parsedURL, nil)
	}

	if temperature <= 0 {
		temperature = 0.3
	}

	return &OllamaExtractor{
		client:      client,
		model:       model,
		temperature: temperature,
	}, nil
}

func (e *OllamaExtractor) Name() string { return "ollama" }

// ExtractThemes sends the corpus to the model and parses the candidate
// themes out of the response.
func (e *OllamaExtractor) ExtractThemes(ctx context.Context, corpus string) ([]Candidate, error) {
	req := &api.GenerateRequest{
		Model:  e.model,
		Prompt: BuildThemePrompt(corpus),
		Stream: new(bool), // false
		Options: map[string]interface{}{
			"temperature": e.temperature,
		},
	}

	var fullResponse strings.Builder
	err := e.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		fullResponse.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama theme extraction failed: %w", err)
	}

	// Local models wrap JSON in prose more often than not
	responseText := extractJSON(fullResponse.String())

	candidates, dropped, err := ParseCandidates(responseText)
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		log.Printf("ollama extraction: dropped %d unusable theme records", dropped)
	}
	return candidates, nil
}
