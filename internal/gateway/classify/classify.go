package classify

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// Kind is the error category the UI distinguishes. There are exactly three.
type Kind string

const (
	// KindSensitiveContent means the backend flagged the input; retrying the
	// same input will not help.
	KindSensitiveContent Kind = "sensitive_content"
	// KindCredentialOrBilling means the credential is missing, invalid, out
	// of quota, or has a billing problem.
	KindCredentialOrBilling Kind = "credential_or_billing"
	// KindGeneric covers everything else; the user may retry manually.
	KindGeneric Kind = "generic"
)

// Error is the classified outcome of a provider failure. Message is always
// safe to show a user; raw provider text never ends up in it. The only
// provider-derived detail carried is the HTTP status code on generic errors.
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return e.Message
}

// KindOf returns the classification of err, treating unclassified errors as
// generic.
func KindOf(err error) Kind {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Kind
	}
	return KindGeneric
}

// IsSensitiveContent reports whether err was classified as sensitive content.
func IsSensitiveContent(err error) bool {
	var cerr *Error
	return errors.As(err, &cerr) && cerr.Kind == KindSensitiveContent
}

// IsCredentialOrBilling reports whether err was classified as a credential or
// billing problem.
func IsCredentialOrBilling(err error) bool {
	var cerr *Error
	return errors.As(err, &cerr) && cerr.Kind == KindCredentialOrBilling
}

// DefaultKeywords is the fixed list used to detect safety rejections in raw
// backend error text. Matching is case-insensitive substring.
var DefaultKeywords = []string{
	"sensitive",
	"flagged",
	"violence",
	"sexual",
	"hate speech",
	"policy violation",
	"safety policy",
	"adult content",
	"nudity",
	"self-harm",
}

// Classifier maps raw provider failures to classified errors. The keyword
// list is configuration, not logic, so a backend with a structured safety
// signal can bypass it entirely.
type Classifier struct {
	keywords []string
}

// New creates a classifier. With no keywords it uses DefaultKeywords.
func New(keywords ...string) *Classifier {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	return &Classifier{keywords: keywords}
}

func (c *Classifier) matchesSensitive(raw string) bool {
	if raw == "" {
		return false
	}
	lower := strings.ToLower(raw)
	for _, kw := range c.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Failure classifies the raw failure detail reported by the backend for op.
// The raw text is inspected but never surfaced.
func (c *Classifier) Failure(op, raw string) *Error {
	if c.matchesSensitive(raw) {
		return Sensitive(op)
	}
	if containsBillingHint(raw) {
		return CredentialOrBilling(op)
	}
	return &Error{
		Kind:    KindGeneric,
		Op:      op,
		Message: fmt.Sprintf("%s failed on the generation service. Please try again.", op),
	}
}

// HTTPFailure classifies a non-success HTTP response. The body is inspected
// for safety and billing hints; only the status code is carried forward.
func (c *Classifier) HTTPFailure(op string, status int, body string) *Error {
	if c.matchesSensitive(body) {
		return Sensitive(op)
	}
	if containsBillingHint(body) {
		return CredentialOrBilling(op)
	}
	return &Error{
		Kind:       KindGeneric,
		Op:         op,
		StatusCode: status,
		Message:    fmt.Sprintf("the generation service returned an error during %s (status: %d). Please try again.", op, status),
	}
}

// TransportFailure classifies a network-level error reaching the backend.
// The cause stays in the server log only.
func (c *Classifier) TransportFailure(op string, err error) *Error {
	log.Error().Err(err).Str("op", op).Msg("transport failure reaching the generation service")
	return &Error{
		Kind:    KindGeneric,
		Op:      op,
		Message: fmt.Sprintf("could not reach the generation service during %s. Check your connection and try again.", op),
	}
}

// BillingOrGeneric classifies a supporting-AI error, where safety rejections
// arrive as a structured finish signal rather than error text, so only the
// quota/billing hint applies here.
func (c *Classifier) BillingOrGeneric(op, raw string) *Error {
	if containsBillingHint(raw) {
		return &Error{
			Kind:    KindCredentialOrBilling,
			Op:      op,
			Message: fmt.Sprintf("the supporting AI service for %s is out of credit or has a billing problem. Please contact the admin.", op),
		}
	}
	return &Error{
		Kind:    KindGeneric,
		Op:      op,
		Message: fmt.Sprintf("could not reach the supporting AI service for %s. Check your connection or try again later.", op),
	}
}

func containsBillingHint(raw string) bool {
	lower := strings.ToLower(raw)
	return strings.Contains(lower, "quota") || strings.Contains(lower, "billing")
}

// Sensitive is the canned sensitive-content error for op.
func Sensitive(op string) *Error {
	return &Error{
		Kind:    KindSensitiveContent,
		Op:      op,
		Message: fmt.Sprintf("%s was blocked because the content was flagged as sensitive.", op),
	}
}

// CredentialOrBilling is the canned credential/billing error for op.
func CredentialOrBilling(op string) *Error {
	return &Error{
		Kind:    KindCredentialOrBilling,
		Op:      op,
		Message: fmt.Sprintf("the credit used for %s is exhausted or has a billing problem. Check the settings page.", op),
	}
}

// NoActiveCredential is raised before any network call when no usable
// credential is configured.
func NoActiveCredential(op string) *Error {
	return &Error{
		Kind:    KindCredentialOrBilling,
		Op:      op,
		Message: "no active credit is configured or the credit is invalid. Set one up on the settings page.",
	}
}

// Timeout is raised when the poll attempt ceiling is exhausted.
func Timeout(op string) *Error {
	return &Error{
		Kind:    KindGeneric,
		Op:      op,
		Message: fmt.Sprintf("%s took too long on the generation service. Please try again.", op),
	}
}

// NoOutput is raised when a job completes without producing a result.
func NoOutput(op string) *Error {
	return &Error{
		Kind:    KindGeneric,
		Op:      op,
		Message: fmt.Sprintf("%s completed but produced no output. Please try again.", op),
	}
}

// Generic builds a generic classified error with a prepared user-safe message.
func Generic(op, message string) *Error {
	return &Error{Kind: KindGeneric, Op: op, Message: message}
}
