package assistant

import (
	"context"
	"regexp"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/santridigital/kreator-gateway/internal/gateway/cache"
	"github.com/santridigital/kreator-gateway/internal/gateway/classify"
	"github.com/santridigital/kreator-gateway/internal/gateway/credentials"
)

// Operation names used in classified error messages.
const (
	OpOptimizePrompt = "prompt optimization"
	OpAnalyzeImage   = "image analysis"
	OpChat           = "chat"
)

const optimizeSystemInstruction = "You are an expert prompt engineer. Your task is to expand and enrich a user's simple idea into a detailed, vivid, and descriptive prompt for an AI image generator. Add relevant keywords like styles (e.g., photorealistic, cinematic), lighting, composition, and mood. Only output the final, optimized prompt text, without any introductions, explanations, or quotation marks."

const analyzeSystemInstruction = "You are a world-class promptographer AI. Your task is to analyze the user's uploaded image and generate an exceptionally detailed and powerful prompt for an AI image generator to recreate a similar image. The prompt should capture the essence of the subject, setting, composition, lighting, colors, artistic style, and any specific important details. Combine all these elements into a single, flowing paragraph for each language requested. Provide this complete prompt in two languages, clearly separated by '---'. First, the Indonesian version under a 'Versi Indonesia:' header. Second, the English version under an 'English Version:' header. Do not add any other text, explanation, introduction, or break down the prompt into components in your final output; only the complete paragraph for each language."

const chatSystemInstruction = "You are Kreator Asisten, an assistant built for a creator program. You are an expert at helping users produce digital content: social media posts, blog articles, video scripts, AI image and video ideas, and content strategy. Always be friendly, supportive, and proactive in offering help and asking the user questions. If the user sends an image, use it as context for relevant content suggestions. Answer in plain text only, short and to the point, without markdown or formatting characters. Prefer casual Indonesian unless the user writes in another language. Do not explain how you produce answers or refer to yourself as an AI unless explicitly asked."

// Image is an inline image attached to an assistant request.
type Image struct {
	MimeType string `json:"mime_type"`
	Base64   string `json:"base64"`
}

// Analysis is the two-language prompt pair produced by image analysis.
type Analysis struct {
	IndonesianPrompt string `json:"indonesian_prompt"`
	EnglishPrompt    string `json:"english_prompt"`
}

// Service exposes the supporting-AI operations: prompt optimization, image
// analysis, and chat. All three share the generation core's error taxonomy,
// using the backend's structured safety-finish signal instead of keyword
// matching.
type Service struct {
	gemini      *geminiClient
	creds       *credentials.Store
	classifier  *classify.Classifier
	cache       *cache.Cache
	fallbackKey string
}

// Config holds supporting-AI settings.
type Config struct {
	BaseURL     string
	Model       string
	FallbackKey string
}

// NewService creates the supporting-AI service. The cache may be nil.
func NewService(cfg Config, creds *credentials.Store, classifier *classify.Classifier, responseCache *cache.Cache) *Service {
	return &Service{
		gemini:      newGeminiClient(cfg.BaseURL, cfg.Model),
		creds:       creds,
		classifier:  classifier,
		cache:       responseCache,
		fallbackKey: cfg.FallbackKey,
	}
}

// apiKey resolves the supporting-AI secret: the active server credential
// first, then the configured fallback.
func (s *Service) apiKey(ctx context.Context, op string) (string, error) {
	key, err := s.creds.ActiveServerKey(ctx)
	if err != nil {
		return "", err
	}
	if key == "" {
		key = s.fallbackKey
	}
	if key == "" {
		return "", classify.NoActiveCredential(op)
	}
	return key, nil
}

// generate runs one single-shot call and applies the classification rules:
// safety finish reason, then quota/billing hint, then generic.
func (s *Service) generate(ctx context.Context, op, systemInstruction string, contents []geminiContent) (string, error) {
	key, err := s.apiKey(ctx, op)
	if err != nil {
		return "", err
	}

	text, finishReason, err := s.gemini.generateContent(ctx, key, systemInstruction, contents)
	if err != nil {
		return "", s.classifier.BillingOrGeneric(op, err.Error())
	}
	if finishReason == finishReasonSafety {
		return "", classify.Sensitive(op)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", classify.Generic(op, "the supporting AI service returned an invalid response for "+op+". Please try again.")
	}
	return text, nil
}

// OptimizePrompt expands a short idea into a rich image-generation prompt.
func (s *Service) OptimizePrompt(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", nil
	}

	if cached, ok := s.cache.Get(ctx, OpOptimizePrompt, prompt); ok {
		return cached, nil
	}

	text, err := s.generate(ctx, OpOptimizePrompt, optimizeSystemInstruction, []geminiContent{
		{Role: "user", Parts: []geminiPart{textPart(prompt)}},
	})
	if err != nil {
		return "", err
	}

	s.cache.Set(ctx, OpOptimizePrompt, text, prompt)
	return text, nil
}

var (
	indonesianHeader = regexp.MustCompile(`(?i)^Versi Indonesia:\s*`)
	englishHeader    = regexp.MustCompile(`(?i)^English Version:\s*`)
)

// AnalyzeImage produces an Indonesian and an English recreation prompt for
// an uploaded image. The backend returns both separated by '---'.
func (s *Service) AnalyzeImage(ctx context.Context, image Image) (*Analysis, error) {
	if cached, ok := s.cache.Get(ctx, OpAnalyzeImage, image.MimeType, image.Base64); ok {
		return parseAnalysis(cached), nil
	}

	text, err := s.generate(ctx, OpAnalyzeImage, analyzeSystemInstruction, []geminiContent{
		{Role: "user", Parts: []geminiPart{
			imagePart(image.MimeType, image.Base64),
			textPart("Analyze this image and generate detailed prompts in Indonesian and English as per the system instructions."),
		}},
	})
	if err != nil {
		return nil, err
	}

	s.cache.Set(ctx, OpAnalyzeImage, text, image.MimeType, image.Base64)
	return parseAnalysis(text), nil
}

func parseAnalysis(text string) *Analysis {
	analysis := &Analysis{
		IndonesianPrompt: "The supporting AI service could not produce an Indonesian prompt.",
		EnglishPrompt:    "The supporting AI service could not produce an English prompt.",
	}

	parts := strings.SplitN(text, "---", 2)
	if cleaned := strings.TrimSpace(indonesianHeader.ReplaceAllString(strings.TrimSpace(parts[0]), "")); cleaned != "" {
		analysis.IndonesianPrompt = cleaned
	}
	if len(parts) > 1 {
		if cleaned := strings.TrimSpace(englishHeader.ReplaceAllString(strings.TrimSpace(parts[1]), "")); cleaned != "" {
			analysis.EnglishPrompt = cleaned
		}
	}
	return analysis
}

// Chat answers the current user input given the prior turns. History uses
// OpenAI-style messages; image parts arrive as data URLs in the message
// content, and an optional inline image may accompany the current input.
func (s *Service) Chat(ctx context.Context, history []openai.ChatCompletionMessage, input string, image *Image) (string, error) {
	contents := historyToContents(history)

	var current []geminiPart
	if image != nil {
		current = append(current, imagePart(image.MimeType, image.Base64))
	}
	if trimmed := strings.TrimSpace(input); trimmed != "" {
		current = append(current, textPart(trimmed))
	}
	if len(current) > 0 {
		contents = append(contents, geminiContent{Role: "user", Parts: current})
	}

	return s.generate(ctx, OpChat, chatSystemInstruction, contents)
}

func historyToContents(history []openai.ChatCompletionMessage) []geminiContent {
	var contents []geminiContent
	for _, msg := range history {
		var parts []geminiPart
		switch msg.Role {
		case openai.ChatMessageRoleUser:
			if msg.Content != "" {
				parts = append(parts, textPart(msg.Content))
			}
			for _, part := range msg.MultiContent {
				switch part.Type {
				case openai.ChatMessagePartTypeText:
					if part.Text != "" {
						parts = append(parts, textPart(part.Text))
					}
				case openai.ChatMessagePartTypeImageURL:
					if part.ImageURL != nil {
						if mime, data, ok := splitDataURL(part.ImageURL.URL); ok {
							parts = append(parts, imagePart(mime, data))
						}
					}
				}
			}
			if len(parts) > 0 {
				contents = append(contents, geminiContent{Role: "user", Parts: parts})
			}
		case openai.ChatMessageRoleAssistant:
			if msg.Content != "" {
				contents = append(contents, geminiContent{
					Role:  "model",
					Parts: []geminiPart{textPart(msg.Content)},
				})
			}
		}
	}
	return contents
}

// splitDataURL decodes a "data:<mime>;base64,<data>" URL.
func splitDataURL(url string) (mime, data string, ok bool) {
	if !strings.HasPrefix(url, "data:") {
		return "", "", false
	}
	meta, rest, found := strings.Cut(url, ",")
	if !found {
		return "", "", false
	}
	meta = strings.TrimPrefix(meta, "data:")
	mime, _, _ = strings.Cut(meta, ";")
	if mime == "" || rest == "" {
		return "", "", false
	}
	return mime, rest, true
}
