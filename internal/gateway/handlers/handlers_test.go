package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santridigital/kreator-gateway/internal/gateway/classify"
	"github.com/santridigital/kreator-gateway/internal/gateway/credentials"
	"github.com/santridigital/kreator-gateway/internal/gateway/credits"
	"github.com/santridigital/kreator-gateway/internal/gateway/generation"
	"github.com/santridigital/kreator-gateway/internal/shared/models"
	"github.com/santridigital/kreator-gateway/internal/shared/storage"
)

type capturedLog struct {
	entries chan *models.GenerationLog
}

func newCapturedLog() *capturedLog {
	return &capturedLog{entries: make(chan *models.GenerationLog, 8)}
}

func (c *capturedLog) LogGeneration(ctx context.Context, entry *models.GenerationLog) error {
	c.entries <- entry
	return nil
}

func (c *capturedLog) wait(t *testing.T) *models.GenerationLog {
	t.Helper()
	select {
	case entry := <-c.entries:
		return entry
	case <-time.After(2 * time.Second):
		t.Fatal("no generation log recorded")
		return nil
	}
}

// fakeBackend serves the submit and result endpoints of the generation
// service with a fixed outcome.
func fakeBackend(t *testing.T, finalStatus, output, errText string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			fmt.Fprint(w, `{"data":{"id":"job-1"}}`)
			return
		}
		data := map[string]any{"status": finalStatus}
		if output != "" {
			data["outputs"] = []string{output}
		}
		if errText != "" {
			data["error"] = errText
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
}

func newGenerateStack(t *testing.T, backendURL string) (*GenerateHandler, *credentials.Store, *capturedLog) {
	t.Helper()
	store := credentials.NewStore(storage.NewMemoryStore(), nil)
	_, err := store.Save(context.Background(), credentials.SaveInput{
		Name: "Test", Key: "sk-test", Mode: credentials.ModeFixed1000,
	}, "")
	require.NoError(t, err)

	client := generation.NewClient(generation.Config{
		BaseURL:      backendURL,
		PollInterval: time.Millisecond,
		MaxAttempts:  5,
	}, store, classify.New())

	logs := newCapturedLog()
	handler := NewGenerateHandler(client, credits.NewLedger(store), logs)
	return handler, store, logs
}

func TestCreateImageJSON(t *testing.T) {
	backend := fakeBackend(t, generation.StatusCompleted, "https://cdn.example.com/cat.png", "")
	defer backend.Close()

	handler, store, logs := newGenerateStack(t, backend.URL)

	req := httptest.NewRequest(http.MethodPost, "/v1/generations/image",
		strings.NewReader(`{"prompt":"a cat","style":"anime"}`))
	rec := httptest.NewRecorder()
	handler.HandleCreateImage(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp resultEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "https://cdn.example.com/cat.png", resp.Result)

	// Cost of one image generation comes off the display credit.
	creds, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1000-6, creds[0].CurrentCredit)

	entry := logs.wait(t)
	assert.Equal(t, generation.StatusCompleted, entry.Status)
	assert.Equal(t, "job-1", entry.JobID)
	require.NotNil(t, entry.ResultURL)
	assert.Equal(t, "https://cdn.example.com/cat.png", *entry.ResultURL)
}

func TestCreateImageSSE(t *testing.T) {
	backend := fakeBackend(t, generation.StatusCompleted, "https://cdn.example.com/cat.png", "")
	defer backend.Close()

	handler, _, _ := newGenerateStack(t, backend.URL)

	req := httptest.NewRequest(http.MethodPost, "/v1/generations/image",
		strings.NewReader(`{"prompt":"a cat"}`))
	req.Header.Set("Accept", "text/event-stream")
	rec := httptest.NewRecorder()
	handler.HandleCreateImage(rec, req)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, `"status"`)
	assert.Contains(t, body, `{"result":"https://cdn.example.com/cat.png"}`)
	assert.Contains(t, body, "data: [DONE]")
}

func TestCreateImageSensitiveFailure(t *testing.T) {
	backend := fakeBackend(t, generation.StatusFailed, "", "output flagged: nudity")
	defer backend.Close()

	handler, store, logs := newGenerateStack(t, backend.URL)

	req := httptest.NewRequest(http.MethodPost, "/v1/generations/image",
		strings.NewReader(`{"prompt":"a cat"}`))
	rec := httptest.NewRecorder()
	handler.HandleCreateImage(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(classify.KindSensitiveContent), resp.Error.Type)
	assert.NotContains(t, resp.Error.Message, "nudity")

	// Failures never cost credit.
	creds, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1000, creds[0].CurrentCredit)

	entry := logs.wait(t)
	assert.Equal(t, generation.StatusFailed, entry.Status)
	require.NotNil(t, entry.ErrorKind)
	assert.Equal(t, string(classify.KindSensitiveContent), *entry.ErrorKind)
}

func TestCreateImageNoCredential(t *testing.T) {
	store := credentials.NewStore(storage.NewMemoryStore(), nil)
	client := generation.NewClient(generation.Config{
		BaseURL:      "http://unused.invalid",
		PollInterval: time.Millisecond,
	}, store, classify.New())
	handler := NewGenerateHandler(client, credits.NewLedger(store), nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/generations/image",
		strings.NewReader(`{"prompt":"a cat"}`))
	rec := httptest.NewRecorder()
	handler.HandleCreateImage(rec, req)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestCreateImageValidation(t *testing.T) {
	handler, _, _ := newGenerateStack(t, "http://unused.invalid")

	req := httptest.NewRequest(http.MethodPost, "/v1/generations/image",
		strings.NewReader(`{"prompt":"  "}`))
	rec := httptest.NewRecorder()
	handler.HandleCreateImage(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMergeImagesRequiresTwo(t *testing.T) {
	handler, _, _ := newGenerateStack(t, "http://unused.invalid")

	req := httptest.NewRequest(http.MethodPost, "/v1/generations/image-merge",
		strings.NewReader(`{"images":[{"mime_type":"image/png","base64":"aGk="}],"prompt":"combine"}`))
	rec := httptest.NewRecorder()
	handler.HandleMergeImages(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type failingLog struct{}

func (failingLog) LogGeneration(ctx context.Context, entry *models.GenerationLog) error {
	return errors.New("insert failed")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestLogPersistenceFailureIsWarnedNotSurfaced(t *testing.T) {
	buf := &syncBuffer{}
	prev := log.Logger
	log.Logger = zerolog.New(buf)
	defer func() { log.Logger = prev }()

	backend := fakeBackend(t, generation.StatusCompleted, "https://cdn.example.com/cat.png", "")
	defer backend.Close()

	store := credentials.NewStore(storage.NewMemoryStore(), nil)
	_, err := store.Save(context.Background(), credentials.SaveInput{
		Name: "Test", Key: "sk-test", Mode: credentials.ModeFree,
	}, "")
	require.NoError(t, err)

	client := generation.NewClient(generation.Config{
		BaseURL:      backend.URL,
		PollInterval: time.Millisecond,
		MaxAttempts:  5,
	}, store, classify.New())
	handler := NewGenerateHandler(client, credits.NewLedger(store), failingLog{})

	req := httptest.NewRequest(http.MethodPost, "/v1/generations/image",
		strings.NewReader(`{"prompt":"a cat"}`))
	rec := httptest.NewRecorder()
	handler.HandleCreateImage(rec, req)

	// The request succeeds regardless of the log write.
	require.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "generation log was not persisted")
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, buf.String(), "insert failed")
}

func TestTextToVideoBillsLongDuration(t *testing.T) {
	backend := fakeBackend(t, generation.StatusCompleted, "https://cdn.example.com/vid.mp4", "")
	defer backend.Close()

	handler, store, _ := newGenerateStack(t, backend.URL)

	req := httptest.NewRequest(http.MethodPost, "/v1/generations/text-to-video",
		strings.NewReader(`{"prompt":"a beach","duration":10}`))
	rec := httptest.NewRecorder()
	handler.HandleTextToVideo(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	creds, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1000-160, creds[0].CurrentCredit)
}

func newCredentialRouter(t *testing.T) (*chi.Mux, *credentials.Store) {
	t.Helper()
	store := credentials.NewStore(storage.NewMemoryStore(), []string{"srv-key"})
	handler := NewCredentialHandler(store)

	r := chi.NewRouter()
	r.Route("/v1/credentials", func(r chi.Router) {
		r.Get("/", handler.HandleList)
		r.Post("/", handler.HandleCreate)
		r.Get("/active", handler.HandleActive)
		r.Get("/server", handler.HandleServerList)
		r.Put("/{id}", handler.HandleUpdate)
		r.Delete("/{id}", handler.HandleDelete)
		r.Post("/{id}/activate", handler.HandleActivate)
	})
	return r, store
}

func TestCredentialLifecycle(t *testing.T) {
	router, _ := newCredentialRouter(t)

	// No active credential yet.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/credentials/active", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Create one; it becomes active automatically.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/credentials",
		strings.NewReader(`{"name":"Mine","key":"sk-a","credit_mode":"fixed_1000"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	var list credentialListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Credentials, 1)
	created := list.Credentials[0]
	assert.True(t, created.IsActive)
	assert.Equal(t, 1000, created.CurrentCredit)

	// Update it with an admin code; credits reset to the code's value.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/v1/credentials/"+created.ID,
		strings.NewReader(`{"name":"Mine","key":"sk-a","credit_mode":"custom","admin_code":"SANTRI3K"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 3000, list.Credentials[0].CurrentCredit)

	// Active now resolves.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/credentials/active", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	// Delete it; active disappears again.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/credentials/"+created.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/credentials/active", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCredentialUpdateUnknownID(t *testing.T) {
	router, _ := newCredentialRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/v1/credentials/missing",
		strings.NewReader(`{"name":"X","key":"sk-x","credit_mode":"free"}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCredentialCreateRequiresName(t *testing.T) {
	router, _ := newCredentialRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/credentials",
		strings.NewReader(`{"name":"","key":"sk-a","credit_mode":"free"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServerCredentialList(t *testing.T) {
	router, _ := newCredentialRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/credentials/server", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var list credentialListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Credentials, 5)
	assert.Equal(t, "Server 1", list.Credentials[0].Name)
	assert.Equal(t, "srv-key", list.Credentials[0].Key)
}

func TestWriteClassifiedErrorStatuses(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{classify.Sensitive("image generation"), http.StatusUnprocessableEntity},
		{classify.NoActiveCredential("image generation"), http.StatusPaymentRequired},
		{classify.Timeout("image generation"), http.StatusBadGateway},
		{fmt.Errorf("plain error"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		writeClassifiedError(rec, tt.err)
		assert.Equal(t, tt.status, rec.Code)
	}
}
