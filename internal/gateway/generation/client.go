package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/santridigital/kreator-gateway/internal/gateway/classify"
	"github.com/santridigital/kreator-gateway/internal/gateway/credentials"
)

const (
	defaultPollInterval = 3 * time.Second
	defaultMaxAttempts  = 120
)

// ProgressFunc receives human-readable status updates while a job runs.
// This is the only form of progress signaling.
type ProgressFunc func(status string)

// Config holds generation client settings. Zero values fall back to the
// backend's defaults (3s interval, 120 attempts).
type Config struct {
	BaseURL      string
	PollInterval time.Duration
	MaxAttempts  int
}

// Client submits generation jobs to the backend and drives them to a
// terminal state. Failures at every stage pass through the classifier; raw
// backend text never escapes it.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	creds        *credentials.Store
	classifier   *classify.Classifier
	pollInterval time.Duration
	maxAttempts  int
}

// NewClient creates a generation client over the credential store.
func NewClient(cfg Config, creds *credentials.Store, classifier *classify.Classifier) *Client {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		creds:        creds,
		classifier:   classifier,
		pollInterval: interval,
		maxAttempts:  attempts,
	}
}

// Result is the terminal outcome of a completed job.
type Result struct {
	URL          string
	JobID        string
	Attempts     int
	CredentialID string
}

type submitResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Backend-reported job statuses. The poller only observes these.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

type jobStatus struct {
	Status  string   `json:"status"`
	Outputs []string `json:"outputs,omitempty"`
	Error   string   `json:"error,omitempty"`
}

type resultResponse struct {
	Data jobStatus `json:"data"`
}

// CreateImage generates an image from a prompt, style, and size.
func (c *Client) CreateImage(ctx context.Context, prompt, style, size string, onProgress ProgressFunc) (*Result, error) {
	return c.Generate(ctx, OpCreateImage, EndpointCreateImage, createImagePayload(prompt, style, size), onProgress)
}

// EditImage edits a single image according to a prompt.
func (c *Client) EditImage(ctx context.Context, image UploadedImage, prompt string, onProgress ProgressFunc) (*Result, error) {
	return c.Generate(ctx, OpEditImage, EndpointEditImage, editImagePayload(image, prompt), onProgress)
}

// MergeImages combines several images according to a prompt.
func (c *Client) MergeImages(ctx context.Context, images []UploadedImage, prompt string, onProgress ProgressFunc) (*Result, error) {
	return c.Generate(ctx, OpMergeImages, EndpointMergeImages, mergeImagesPayload(images, prompt), onProgress)
}

// Create3DModel builds a 3D model from up to three named view images.
func (c *Client) Create3DModel(ctx context.Context, views ThreeDViews, onProgress ProgressFunc) (*Result, error) {
	if views.empty() {
		return nil, fmt.Errorf("at least one view image (front, back, or left) is required")
	}
	return c.Generate(ctx, OpCreate3D, EndpointCreate3D, threeDPayload(views), onProgress)
}

// TextToVideo generates a video from a prompt.
func (c *Client) TextToVideo(ctx context.Context, prompt, aspectRatio string, durationSeconds int, onProgress ProgressFunc) (*Result, error) {
	return c.Generate(ctx, OpTextToVideo, EndpointTextToVideo, textToVideoPayload(prompt, aspectRatio, durationSeconds), onProgress)
}

// ImageToVideo animates an image according to a prompt.
func (c *Client) ImageToVideo(ctx context.Context, image UploadedImage, prompt string, durationSeconds int, onProgress ProgressFunc) (*Result, error) {
	return c.Generate(ctx, OpImageToVideo, EndpointImageToVideo, imageToVideoPayload(image, prompt, durationSeconds), onProgress)
}

// Generate submits one job and polls it to a terminal state. It fails
// before any network call when no active credential exists.
func (c *Client) Generate(ctx context.Context, op, endpoint string, payload any, onProgress ProgressFunc) (*Result, error) {
	if onProgress == nil {
		onProgress = func(string) {}
	}

	active, err := c.creds.Active(ctx)
	if err != nil {
		return nil, err
	}
	if active == nil {
		cerr := classify.NoActiveCredential(op)
		onProgress(cerr.Message)
		return nil, cerr
	}

	onProgress("submitting the job to the generation service...")

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/%s", c.baseURL, endpoint), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+active.Key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cerr := c.classifier.TransportFailure(op, err)
		onProgress(cerr.Message)
		return nil, cerr
	}
	respBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Error().
			Str("op", op).
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("body", string(respBody)).
			Msg("job submission rejected")
		cerr := c.classifier.HTTPFailure(op, resp.StatusCode, string(respBody))
		onProgress(cerr.Message)
		return nil, cerr
	}

	var submitted submitResponse
	if err := json.Unmarshal(respBody, &submitted); err != nil || submitted.Data.ID == "" {
		cerr := classify.Generic(op, fmt.Sprintf("the generation service accepted %s but returned no job id. Please try again.", op))
		onProgress(cerr.Message)
		return nil, cerr
	}

	jobID := submitted.Data.ID
	onProgress(fmt.Sprintf("job %s accepted, waiting for the result...", shortID(jobID)))

	result, err := c.poll(ctx, op, active.Key, jobID, onProgress)
	if err != nil {
		return nil, err
	}
	result.CredentialID = active.ID
	return result, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
