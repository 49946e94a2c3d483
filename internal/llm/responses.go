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

	"github.com/tidwall/gjson"
)

// DefaultEndpoint is the hosted Responses API.
const DefaultEndpoint = "https://api.openai.com/v1/responses"

const snippetLimit = 400

type responsesClient struct {
	endpoint string
	client   *http.Client
}

// NewResponsesClient returns an Enhancer speaking the Responses API. A zero
// timeout leaves the request bounded only by its context.
func NewResponsesClient(endpoint string, timeout time.Duration) Enhancer {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultEndpoint
	}
	return &responsesClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type responsesRequest struct {
	Model           string             `json:"model"`
	Input           string             `json:"input"`
	Instructions    string             `json:"instructions,omitempty"`
	Store           bool               `json:"store"`
	MaxOutputTokens int                `json:"max_output_tokens,omitempty"`
	Temperature     *float64           `json:"temperature,omitempty"`
	Reasoning       *reasoningSettings `json:"reasoning,omitempty"`
	Text            *textSettings      `json:"text,omitempty"`
}

type reasoningSettings struct {
	Effort string `json:"effort"`
}

type textSettings struct {
	Verbosity string `json:"verbosity"`
}

func buildRequest(req Request) responsesRequest {
	profile := ProfileFor(req.Model)
	body := responsesRequest{
		Model:           req.Model,
		Input:           req.Input,
		Instructions:    req.Instructions,
		Store:           false,
		MaxOutputTokens: profile.MaxOutputTokens,
		Temperature:     profile.Temperature,
	}
	if profile.ReasoningEffort != "" {
		body.Reasoning = &reasoningSettings{Effort: profile.ReasoningEffort}
	}
	if profile.TextVerbosity != "" {
		body.Text = &textSettings{Verbosity: profile.TextVerbosity}
	}
	return body
}

func (c *responsesClient) Enhance(ctx context.Context, req Request) (string, error) {
	payload, err := json.Marshal(buildRequest(req))
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read llm response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := gjson.GetBytes(data, "error.message").String()
		if message == "" {
			message = strings.TrimSpace(string(data))
		}
		return "", &RequestError{StatusCode: resp.StatusCode, Message: message}
	}

	text := strings.TrimSpace(extractText(data))
	if text == "" {
		return "", &EmptyOutputError{
			Status:  gjson.GetBytes(data, "status").String(),
			Reason:  gjson.GetBytes(data, "incomplete_details.reason").String(),
			Snippet: snippet(data),
		}
	}
	return text, nil
}

// extractText prefers the aggregated output_text field and otherwise joins
// every text fragment found in the output items.
func extractText(data []byte) string {
	if direct := gjson.GetBytes(data, "output_text"); direct.Type == gjson.String && strings.TrimSpace(direct.String()) != "" {
		return direct.String()
	}

	var parts []string
	gjson.GetBytes(data, "output").ForEach(func(_, item gjson.Result) bool {
		if text := item.Get("text"); text.Type == gjson.String && text.String() != "" {
			parts = append(parts, text.String())
		}
		item.Get("content").ForEach(func(_, content gjson.Result) bool {
			if text := content.Get("text"); text.Type == gjson.String && text.String() != "" {
				parts = append(parts, text.String())
			}
			return true
		})
		return true
	})
	return strings.Join(parts, "")
}

func snippet(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) <= snippetLimit {
		return s
	}
	cut := snippetLimit
	for cut > 0 && !utf8RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }
