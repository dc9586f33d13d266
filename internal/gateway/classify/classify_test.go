package classify

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailureKeywordMatching(t *testing.T) {
	c := New()

	tests := []struct {
		name string
		raw  string
		want Kind
	}{
		{"nudity keyword", "Output blocked: NUDITY detected in frame 3", KindSensitiveContent},
		{"flagged keyword", "your prompt was flagged by our moderation system", KindSensitiveContent},
		{"policy violation", "Policy Violation: request rejected", KindSensitiveContent},
		{"quota hint", "insufficient quota for this account", KindCredentialOrBilling},
		{"billing hint", "Billing hard limit reached", KindCredentialOrBilling},
		{"plain failure", "internal worker crashed", KindGeneric},
		{"empty detail", "", KindGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Failure("image generation", tt.raw)
			assert.Equal(t, tt.want, err.Kind)
		})
	}
}

func TestFailureNeverSurfacesRawText(t *testing.T) {
	c := New()
	raw := "NUDITY detected, account ref 4f7a-secret"

	err := c.Failure("image generation", raw)

	require.Equal(t, KindSensitiveContent, err.Kind)
	assert.NotContains(t, err.Message, "NUDITY")
	assert.NotContains(t, err.Message, "4f7a-secret")
}

func TestCustomKeywords(t *testing.T) {
	c := New("forbidden glyph")

	assert.Equal(t, KindSensitiveContent, c.Failure("chat", "request contains a Forbidden Glyph").Kind)
	// Default keywords are replaced, not merged.
	assert.Equal(t, KindGeneric, c.Failure("chat", "nudity detected").Kind)
}

func TestHTTPFailureCarriesStatusCode(t *testing.T) {
	c := New()

	err := c.HTTPFailure("video generation", 503, "upstream overloaded")

	assert.Equal(t, KindGeneric, err.Kind)
	assert.Equal(t, 503, err.StatusCode)
	assert.Contains(t, err.Message, "503")
	assert.NotContains(t, err.Message, "upstream overloaded")
}

func TestHTTPFailureClassifiesBody(t *testing.T) {
	c := New()

	assert.Equal(t, KindSensitiveContent, c.HTTPFailure("image generation", 400, "prompt flagged as sexual").Kind)
	assert.Equal(t, KindCredentialOrBilling, c.HTTPFailure("image generation", 403, "quota exceeded").Kind)
}

func TestBillingOrGenericSkipsKeywords(t *testing.T) {
	c := New()

	// The supporting AI reports safety through a structured finish signal,
	// so its error text must not trip the sensitive classification.
	assert.Equal(t, KindGeneric, c.BillingOrGeneric("chat", "response flagged nudity").Kind)
	assert.Equal(t, KindCredentialOrBilling, c.BillingOrGeneric("chat", "you exceeded your current quota").Kind)
}

func TestTransportFailureLogsCause(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = prev }()

	cerr := New().TransportFailure("image generation", errors.New("dial tcp: connection refused"))

	assert.Equal(t, KindGeneric, cerr.Kind)
	assert.NotContains(t, cerr.Message, "connection refused")
	// The cause reaches the server log, never the user message.
	assert.Contains(t, buf.String(), "connection refused")
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindSensitiveContent, KindOf(Sensitive("chat")))
	assert.Equal(t, KindCredentialOrBilling, KindOf(NoActiveCredential("chat")))
	assert.Equal(t, KindGeneric, KindOf(Timeout("chat")))
	assert.Equal(t, KindGeneric, KindOf(errors.New("plain error")))

	wrapped := fmt.Errorf("running job: %w", CredentialOrBilling("image generation"))
	assert.Equal(t, KindCredentialOrBilling, KindOf(wrapped))
	assert.True(t, IsCredentialOrBilling(wrapped))
	assert.False(t, IsSensitiveContent(wrapped))
}
