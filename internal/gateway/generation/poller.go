package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/santridigital/kreator-gateway/internal/gateway/classify"
)

// poll drives a submitted job to a terminal state: a fixed wait before each
// status query, a fixed attempt ceiling, no automatic retries. Status
// transitions are monotonic; the first terminal status ends the loop. The
// context is checked before every wait so callers can abandon a job cleanly.
func (c *Client) poll(ctx context.Context, op, apiKey, jobID string, onProgress ProgressFunc) (*Result, error) {
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		timer := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		status, err := c.fetchStatus(ctx, op, apiKey, jobID)
		if err != nil {
			onProgress(err.Error())
			return nil, err
		}

		onProgress(fmt.Sprintf("processing... (status: %s, attempt %d/%d)", status.Status, attempt, c.maxAttempts))

		switch status.Status {
		case StatusCompleted:
			if len(status.Outputs) == 0 {
				cerr := classify.NoOutput(op)
				onProgress(cerr.Message)
				return nil, cerr
			}
			return &Result{URL: status.Outputs[0], JobID: jobID, Attempts: attempt}, nil

		case StatusFailed:
			detail := status.Error
			if detail == "" {
				detail = "unknown error"
			}
			// The raw detail stays in the server log only.
			log.Error().
				Str("op", op).
				Str("job_id", jobID).
				Str("detail", detail).
				Msg("generation job failed")
			cerr := c.classifier.Failure(op, detail)
			onProgress(cerr.Message)
			return nil, cerr
		}
	}

	cerr := classify.Timeout(op)
	onProgress(cerr.Message)
	return nil, cerr
}

// fetchStatus performs one status query. Transport and HTTP failures are
// classified and abort the poll loop; sensitive-content detection applies
// to polling-time error bodies as well.
func (c *Client) fetchStatus(ctx context.Context, op, apiKey, jobID string) (*jobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/predictions/%s/result", c.baseURL, jobID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.classifier.TransportFailure(op, err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Error().
			Str("op", op).
			Str("job_id", jobID).
			Int("status", resp.StatusCode).
			Str("body", string(body)).
			Msg("status query rejected")
		return nil, c.classifier.HTTPFailure(op, resp.StatusCode, string(body))
	}

	var result resultResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, classify.Generic(op, fmt.Sprintf("the generation service returned an unreadable status for %s. Please try again.", op))
	}
	return &result.Data, nil
}
