package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/santridigital/kreator-gateway/internal/gateway/classify"
	"github.com/santridigital/kreator-gateway/internal/gateway/credits"
	"github.com/santridigital/kreator-gateway/internal/gateway/generation"
	"github.com/santridigital/kreator-gateway/internal/shared/models"
)

// GenerationLogger records generation outcomes. A nil logger disables
// recording.
type GenerationLogger interface {
	LogGeneration(ctx context.Context, entry *models.GenerationLog) error
}

// GenerateHandler exposes the generation endpoints. Progress is streamed as
// server-sent events when the client asks for an event stream; otherwise the
// handler blocks and returns the final result as JSON.
type GenerateHandler struct {
	client *generation.Client
	ledger *credits.Ledger
	logs   GenerationLogger
}

// NewGenerateHandler creates the generation handler.
func NewGenerateHandler(client *generation.Client, ledger *credits.Ledger, logs GenerationLogger) *GenerateHandler {
	return &GenerateHandler{client: client, ledger: ledger, logs: logs}
}

type createImageRequest struct {
	Prompt      string `json:"prompt"`
	Style       string `json:"style"`
	AspectRatio string `json:"aspect_ratio"`
}

type editImageRequest struct {
	Image  generation.UploadedImage `json:"image"`
	Prompt string                   `json:"prompt"`
}

type mergeImagesRequest struct {
	Images []generation.UploadedImage `json:"images"`
	Prompt string                     `json:"prompt"`
}

type textToVideoRequest struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
	Duration    int    `json:"duration"`
}

type imageToVideoRequest struct {
	Image    generation.UploadedImage `json:"image"`
	Prompt   string                   `json:"prompt"`
	Duration int                      `json:"duration"`
}

// HandleCreateImage handles POST /v1/generations/image
func (h *GenerateHandler) HandleCreateImage(w http.ResponseWriter, r *http.Request) {
	var req createImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, classify.KindGeneric, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, classify.KindGeneric, "prompt is required")
		return
	}
	if req.Style == "" {
		req.Style = "default"
	}

	h.run(w, r, credits.FeatureCreateImage, generation.EndpointCreateImage,
		func(ctx context.Context, onProgress generation.ProgressFunc) (*generation.Result, error) {
			return h.client.CreateImage(ctx, req.Prompt, req.Style, req.AspectRatio, onProgress)
		})
}

// HandleEditImage handles POST /v1/generations/image-edit
func (h *GenerateHandler) HandleEditImage(w http.ResponseWriter, r *http.Request) {
	var req editImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, classify.KindGeneric, "invalid request body")
		return
	}
	if req.Image.Base64 == "" {
		writeError(w, http.StatusBadRequest, classify.KindGeneric, "image is required")
		return
	}

	h.run(w, r, credits.FeatureEditImage, generation.EndpointEditImage,
		func(ctx context.Context, onProgress generation.ProgressFunc) (*generation.Result, error) {
			return h.client.EditImage(ctx, req.Image, req.Prompt, onProgress)
		})
}

// HandleMergeImages handles POST /v1/generations/image-merge
func (h *GenerateHandler) HandleMergeImages(w http.ResponseWriter, r *http.Request) {
	var req mergeImagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, classify.KindGeneric, "invalid request body")
		return
	}
	if len(req.Images) < 2 {
		writeError(w, http.StatusBadRequest, classify.KindGeneric, "at least two images are required")
		return
	}

	h.run(w, r, credits.FeatureMergeImages, generation.EndpointMergeImages,
		func(ctx context.Context, onProgress generation.ProgressFunc) (*generation.Result, error) {
			return h.client.MergeImages(ctx, req.Images, req.Prompt, onProgress)
		})
}

// HandleCreate3DModel handles POST /v1/generations/3d
func (h *GenerateHandler) HandleCreate3DModel(w http.ResponseWriter, r *http.Request) {
	var views generation.ThreeDViews
	if err := json.NewDecoder(r.Body).Decode(&views); err != nil {
		writeError(w, http.StatusBadRequest, classify.KindGeneric, "invalid request body")
		return
	}
	if views.Front == nil && views.Back == nil && views.Left == nil {
		writeError(w, http.StatusBadRequest, classify.KindGeneric, "at least one view image (front, back, or left) is required")
		return
	}

	h.run(w, r, credits.FeatureImageTo3D, generation.EndpointCreate3D,
		func(ctx context.Context, onProgress generation.ProgressFunc) (*generation.Result, error) {
			return h.client.Create3DModel(ctx, views, onProgress)
		})
}

// HandleTextToVideo handles POST /v1/generations/text-to-video
func (h *GenerateHandler) HandleTextToVideo(w http.ResponseWriter, r *http.Request) {
	var req textToVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, classify.KindGeneric, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, classify.KindGeneric, "prompt is required")
		return
	}
	if req.Duration == 0 {
		req.Duration = 5
	}

	h.run(w, r, credits.VideoFeature(false, req.Duration), generation.EndpointTextToVideo,
		func(ctx context.Context, onProgress generation.ProgressFunc) (*generation.Result, error) {
			return h.client.TextToVideo(ctx, req.Prompt, req.AspectRatio, req.Duration, onProgress)
		})
}

// HandleImageToVideo handles POST /v1/generations/image-to-video
func (h *GenerateHandler) HandleImageToVideo(w http.ResponseWriter, r *http.Request) {
	var req imageToVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, classify.KindGeneric, "invalid request body")
		return
	}
	if req.Image.Base64 == "" {
		writeError(w, http.StatusBadRequest, classify.KindGeneric, "image is required")
		return
	}
	if req.Duration == 0 {
		req.Duration = 5
	}

	h.run(w, r, credits.VideoFeature(true, req.Duration), generation.EndpointImageToVideo,
		func(ctx context.Context, onProgress generation.ProgressFunc) (*generation.Result, error) {
			return h.client.ImageToVideo(ctx, req.Image, req.Prompt, req.Duration, onProgress)
		})
}

type progressEvent struct {
	Status string `json:"status"`
}

type resultEvent struct {
	Result string `json:"result"`
}

// run drives one generation to completion, deducts the feature cost on
// confirmed success, and records the outcome.
func (h *GenerateHandler) run(w http.ResponseWriter, r *http.Request, feature credits.Feature, endpoint string,
	fn func(ctx context.Context, onProgress generation.ProgressFunc) (*generation.Result, error)) {

	ctx := r.Context()
	startTime := time.Now()

	streaming := strings.Contains(r.Header.Get("Accept"), "text/event-stream")
	var flusher http.Flusher
	if streaming {
		f, ok := w.(http.Flusher)
		if !ok {
			streaming = false
		} else {
			flusher = f
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			w.Header().Set("X-Accel-Buffering", "no")
		}
	}

	onProgress := func(status string) {
		if !streaming {
			return
		}
		data, _ := json.Marshal(progressEvent{Status: status})
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	result, err := fn(ctx, onProgress)

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		h.record(feature, endpoint, nil, err, startTime)
		if streaming {
			var cerr *classify.Error
			body := errorBody{Type: string(classify.KindOf(err)), Message: "an unexpected error occurred. Please try again."}
			if errors.As(err, &cerr) {
				body.Message = cerr.Message
			}
			data, _ := json.Marshal(errorResponse{Error: body})
			fmt.Fprintf(w, "data: %s\n\n", data)
			fmt.Fprintf(w, "data: [DONE]\n\n")
			flusher.Flush()
			return
		}
		writeClassifiedError(w, err)
		return
	}

	// Display-credit bookkeeping happens only after a confirmed success.
	h.ledger.Deduct(ctx, result.CredentialID, feature)
	h.record(feature, endpoint, result, nil, startTime)

	if streaming {
		data, _ := json.Marshal(resultEvent{Result: result.URL})
		fmt.Fprintf(w, "data: %s\n\n", data)
		fmt.Fprintf(w, "data: [DONE]\n\n")
		flusher.Flush()
		return
	}
	writeJSON(w, http.StatusOK, resultEvent{Result: result.URL})
}

// record logs the generation outcome to the database
func (h *GenerateHandler) record(feature credits.Feature, endpoint string, result *generation.Result, genErr error, startTime time.Time) {
	if h.logs == nil {
		return
	}

	entry := &models.GenerationLog{
		Feature:   string(feature),
		Endpoint:  endpoint,
		Status:    generation.StatusCompleted,
		LatencyMs: int(time.Since(startTime).Milliseconds()),
	}

	if result != nil {
		entry.JobID = result.JobID
		entry.Attempts = result.Attempts
		entry.ResultURL = &result.URL
		entry.CredentialID = &result.CredentialID
	}

	if genErr != nil {
		entry.Status = generation.StatusFailed
		kind := string(classify.KindOf(genErr))
		msg := genErr.Error()
		entry.ErrorKind = &kind
		entry.ErrorMessage = &msg
	}

	// Log asynchronously to avoid blocking
	go func() {
		if err := h.logs.LogGeneration(context.Background(), entry); err != nil {
			log.Warn().
				Err(err).
				Str("feature", entry.Feature).
				Str("job_id", entry.JobID).
				Msg("generation log was not persisted")
		}
	}()
}
