package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/santridigital/kreator-gateway/internal/gateway/assistant"
	"github.com/santridigital/kreator-gateway/internal/gateway/classify"
)

// AssistantHandler exposes the supporting-AI operations.
type AssistantHandler struct {
	service *assistant.Service
}

// NewAssistantHandler creates the assistant handler.
func NewAssistantHandler(service *assistant.Service) *AssistantHandler {
	return &AssistantHandler{service: service}
}

type optimizeRequest struct {
	Prompt string `json:"prompt"`
}

type optimizeResponse struct {
	OptimizedPrompt string `json:"optimized_prompt"`
}

// HandleOptimizePrompt handles POST /v1/assistant/optimize
func (h *AssistantHandler) HandleOptimizePrompt(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, classify.KindGeneric, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, classify.KindGeneric, "prompt is required")
		return
	}

	optimized, err := h.service.OptimizePrompt(r.Context(), req.Prompt)
	if err != nil {
		writeClassifiedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, optimizeResponse{OptimizedPrompt: optimized})
}

type analyzeRequest struct {
	Image assistant.Image `json:"image"`
}

// HandleAnalyzeImage handles POST /v1/assistant/analyze
func (h *AssistantHandler) HandleAnalyzeImage(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, classify.KindGeneric, "invalid request body")
		return
	}
	if req.Image.Base64 == "" || req.Image.MimeType == "" {
		writeError(w, http.StatusBadRequest, classify.KindGeneric, "image with mime_type and base64 data is required")
		return
	}

	analysis, err := h.service.AnalyzeImage(r.Context(), req.Image)
	if err != nil {
		writeClassifiedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

type chatRequest struct {
	History []openai.ChatCompletionMessage `json:"history"`
	Input   string                         `json:"input"`
	Image   *assistant.Image               `json:"image,omitempty"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

// HandleChat handles POST /v1/assistant/chat
func (h *AssistantHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, classify.KindGeneric, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Input) == "" && req.Image == nil {
		writeError(w, http.StatusBadRequest, classify.KindGeneric, "input or image is required")
		return
	}

	reply, err := h.service.Chat(r.Context(), req.History, req.Input, req.Image)
	if err != nil {
		writeClassifiedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
}
