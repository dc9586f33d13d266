package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// finishReasonSafety is the structured safety signal on a candidate.
const finishReasonSafety = "SAFETY"

// geminiClient is a minimal REST client for the generateContent endpoint.
type geminiClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

func newGeminiClient(baseURL, model string) *geminiClient {
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	return &geminiClient{
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

func textPart(text string) geminiPart {
	return geminiPart{Text: text}
}

func imagePart(mimeType, base64Data string) geminiPart {
	return geminiPart{InlineData: &geminiInlineData{MimeType: mimeType, Data: base64Data}}
}

// generateContent performs one single-shot request and returns the joined
// candidate text plus the finish reason. Errors carry raw provider text and
// must be classified by the caller before reaching a user.
func (g *geminiClient) generateContent(ctx context.Context, apiKey, systemInstruction string, contents []geminiContent) (string, string, error) {
	reqBody := geminiRequest{Contents: contents}
	if systemInstruction != "" {
		reqBody.SystemInstruction = &geminiContent{
			Parts: []geminiPart{textPart(systemInstruction)},
		}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, apiKey)

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", "", fmt.Errorf("failed to serialize request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", "", fmt.Errorf("Gemini API error: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("Gemini API error (status %d): %s", resp.StatusCode, string(body))
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return "", "", fmt.Errorf("failed to parse response: %w", err)
	}

	if len(geminiResp.Candidates) == 0 {
		return "", "", nil
	}

	candidate := geminiResp.Candidates[0]
	var text string
	for _, part := range candidate.Content.Parts {
		text += part.Text
	}
	return text, candidate.FinishReason, nil
}
