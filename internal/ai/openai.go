package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

type themeResponse struct {
	Themes []Candidate `json:"themes"`
}

var themeSchema = generateSchema[themeResponse]()

// OpenAIExtractor runs theme extraction against the OpenAI Responses API
// with a strict JSON schema, so the envelope shape is enforced server side.
type OpenAIExtractor struct {
	client *openai.Client
	model  string
}

// NewOpenAIExtractor creates an extractor backed by OpenAI.
func NewOpenAIExtractor(apiKey, model string) (*OpenAIExtractor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIExtractor{
		client: &client,
		model:  model,
	}, nil
}

func (e *OpenAIExtractor) Name() string { return "openai" }

// ExtractThemes sends the corpus to the model and parses the candidate
// themes out of the response.
func (e *OpenAIExtractor) ExtractThemes(ctx context.Context, corpus string) ([]Candidate, error) {
	input := fmt.Sprintf("Journal entries (oldest first):\n\n%s", corpus)

	params := responses.ResponseNewParams{
		Model:        e.model,
		Instructions: openai.String(ThemeInstructions()),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(input, responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:        "ThemeExtraction",
					Schema:      themeSchema,
					Strict:      openai.Bool(true),
					Description: openai.String("Recurring journal themes JSON"),
					Type:        "json_schema",
				},
			},
		},
	}

	resp, err := callWithRetry(ctx, e.client, params)
	if err != nil {
		return nil, fmt.Errorf("openai theme extraction failed: %w", err)
	}

	candidates, dropped, err := ParseCandidates(resp.OutputText())
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		log.Printf("openai extraction: dropped %d unusable theme records", dropped)
	}
	return candidates, nil
}

func callWithRetry(ctx context.Context, client *openai.Client, params responses.ResponseNewParams) (*responses.Response, error) {
	const maxRetries = 3
	rateLimitWaitTimes := []time.Duration{65 * time.Second, 100 * time.Second, 135 * time.Second}
	serverErrorWaitTimes := []time.Duration{5 * time.Second, 30 * time.Second, 60 * time.Second}

	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, err := client.Responses.New(ctx, params)
		if err != nil {
			if isRateLimitError(err) {
				if attempt < maxRetries-1 {
					time.Sleep(rateLimitWaitTimes[attempt])
					continue
				}
			} else if isServerError(err) {
				if attempt < maxRetries-1 {
					time.Sleep(serverErrorWaitTimes[attempt])
					continue
				}
			}
			return nil, err
		}
		return resp, nil
	}
	return nil, fmt.Errorf("failed after %d attempts due to OpenAI API issues", maxRetries)
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests")
}

func isServerError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "server_error")
}

func generateSchema[T any]() map[string]interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)
	b, err := schema.MarshalJSON()
	if err != nil {
		panic(err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		panic(err)
	}
	ensureOpenAICompliance(m)
	return m
}

// ensureOpenAICompliance tightens a reflected schema to what strict
// structured outputs require: no additional properties, every property
// listed as required.
func ensureOpenAICompliance(schema map[string]interface{}) {
	if schemaType, ok := schema["type"].(string); ok && schemaType == "object" {
		schema["additionalProperties"] = false

		if properties, ok := schema["properties"].(map[string]interface{}); ok {
			var requiredFields []string
			for propName := range properties {
				requiredFields = append(requiredFields, propName)
			}
			if len(requiredFields) > 0 {
				schema["required"] = requiredFields
			}
		}
	}

	if properties, ok := schema["properties"].(map[string]interface{}); ok {
		for _, prop := range properties {
			if propMap, ok := prop.(map[string]interface{}); ok {
				ensureOpenAICompliance(propMap)
			}
		}
	}

	if items, ok := schema["items"].(map[string]interface{}); ok {
		ensureOpenAICompliance(items)
	}
}
