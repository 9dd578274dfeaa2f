// Package llm talks to the OpenAI-compatible extraction gateway: a raw
// streaming call for page analysis, and plain chat completions for text-only
// extraction.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/skarlatos/foliograph/internal/packet"
)

type Config struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

type Client struct {
	endpoint string
	apiKey   string
	model    string
	// stream waits bounded time for response headers but never cuts off a
	// long-running body; cancellation comes from the caller's context.
	stream *http.Client
	chat   *openai.Client
}

func NewClient(cfg Config) *Client {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = endpoint + "/v1"
	oc.HTTPClient = &http.Client{Timeout: timeout}

	return &Client{
		endpoint: endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		stream: &http.Client{
			Transport: &http.Transport{ResponseHeaderTimeout: timeout},
		},
		chat: openai.NewClientWithConfig(oc),
	}
}

// AnalysisRequest is the page-analysis payload sent to the gateway. The
// exclusion terms tell the model which concepts previous batches already
// surfaced.
type AnalysisRequest struct {
	PageImage      string   `json:"image_base64"`
	PageNumber     int      `json:"page_number"`
	ExcludeTerms   []string `json:"exclude_terms,omitempty"`
	DomainHints    []string `json:"domain_hints,omitempty"`
	PromptOverride string   `json:"prompt_override,omitempty"`
	ModelOverride  string   `json:"model_override,omitempty"`
}

// StreamPage opens one streaming analysis call. The response body carries a
// JSON array of packets, chunked without regard for object boundaries; the
// caller owns closing it.
func (c *Client) StreamPage(ctx context.Context, req AnalysisRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal analysis request: %w", err)
	}

	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build analysis request: %w", err)
	}
	hr.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		hr.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.stream.Do(hr)
	if err != nil {
		return nil, fmt.Errorf("gateway request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("gateway returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	return resp.Body, nil
}

// PageTransport adapts one analysis request to the streaming session's
// transport, so every retry re-issues the same call.
type PageTransport struct {
	Client  *Client
	Request AnalysisRequest
}

func (t *PageTransport) Open(ctx context.Context) (io.ReadCloser, error) {
	return t.Client.StreamPage(ctx, t.Request)
}

// ExtractFromText runs the non-streaming text extraction path: one chat
// completion constrained to JSON, answering {"concepts": [...]}.
func (c *Client) ExtractFromText(ctx context.Context, text, promptTemplate string) ([]packet.Concept, error) {
	if promptTemplate == "" {
		promptTemplate = DefaultExtractionPrompt
	}

	resp, err := c.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0.1,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a concept extraction agent. Extract concepts from text and return JSON.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: promptTemplate + "\n\nText:\n" + text,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("gateway returned no choices")
	}

	var parsed struct {
		Concepts []extractedConcept `json:"concepts"`
	}
	content := resp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("parse extraction response: %w", err)
	}

	concepts := make([]packet.Concept, 0, len(parsed.Concepts))
	for i, ec := range parsed.Concepts {
		if ec.Term == "" {
			continue
		}
		concepts = append(concepts, ec.toConcept(i))
	}
	return concepts, nil
}

// extractedConcept is the looser shape the model answers with: its "type" is
// usually a data type (entity, date, legal, ...) rather than the node kind.
type extractedConcept struct {
	ID          string  `json:"id"`
	Term        string  `json:"term"`
	Type        string  `json:"type"`
	Category    string  `json:"category"`
	Explanation string  `json:"explanation"`
	Confidence  float64 `json:"confidence"`
}

func (ec extractedConcept) toConcept(i int) packet.Concept {
	c := packet.Concept{
		ID:          ec.ID,
		Term:        ec.Term,
		Type:        packet.ConceptKindConcept,
		Category:    ec.Category,
		Explanation: ec.Explanation,
		Confidence:  ec.Confidence,
	}
	if c.ID == "" {
		c.ID = fmt.Sprintf("c%d", i+1)
	}
	if packet.ValidDataType(ec.Type) {
		c.DataType = ec.Type
	}
	if c.Confidence <= 0 || c.Confidence > 1 {
		c.Confidence = 0.5
	}
	return c
}

// DefaultExtractionPrompt asks for the {"concepts": [...]} shape
// ExtractFromText parses.
const DefaultExtractionPrompt = `Extract concepts from the following text. Return a JSON object with a "concepts" array.

Each concept should have:
- id: unique identifier
- term: the concept text
- type: concept type (entity, date, location, organization, etc.)
- confidence: confidence score (0.0-1.0)
- explanation: brief explanation

Example:
{
  "concepts": [
    {
      "id": "c1",
      "term": "GDPR",
      "type": "legal",
      "confidence": 0.95,
      "explanation": "General Data Protection Regulation"
    }
  ]
}`
