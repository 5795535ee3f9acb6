package brokerapi

import (
	"errors"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Category is the error taxonomy the REST client uses to decide whether and
// how long to wait before retrying a failed call.
type Category string

const (
	CategoryTransient     Category = "transient"
	CategoryPermanent     Category = "permanent"
	CategoryAuthentication Category = "authentication"
	CategoryRateLimit     Category = "rate_limit"
	CategoryUnknown       Category = "unknown"
)

var transientStatusCodes = map[int]bool{
	408: true, 429: true, 500: true, 502: true, 503: true, 504: true,
}

var permanentStatusCodes = map[int]bool{
	400: true, 401: true, 403: true, 404: true, 405: true, 406: true, 409: true, 410: true, 422: true,
}

var transientPatterns = []string{"timeout", "connection", "network", "temporary", "unavailable", "overloaded", "retry"}
var permanentPatterns = []string{"invalid", "not found", "forbidden", "unauthorized", "bad request", "conflict"}

var retryAfterPatterns = []*regexp.Regexp{
	regexp.MustCompile(`retry[- ]?after[:\s]+(\d+)`),
	regexp.MustCompile(`wait[:\s]+(\d+)`),
	regexp.MustCompile(`(\d+)[:\s]+seconds?`),
}

// APIError is a classified brokerage API failure, carrying everything the
// REST client's retry loop needs to decide what to do next.
type APIError struct {
	Message    string
	StatusCode int
	Category   Category
	RetryAfter time.Duration // 0 if the response carried no explicit hint
	Endpoint   string
	Method     string
	Timestamp  time.Time
}

func (e *APIError) Error() string {
	return e.Message
}

// ErrClientClosed reports a request made on a closed client. Client has no
// Close method, and no code path in this package returns this error.
var ErrClientClosed = errors.New("brokerapi: client is closed")

// Classifier centralizes error classification, retry decisions, backoff
// calculation and a bounded error history for operator visibility
// (SPEC_FULL.md §12.2).
type Classifier struct {
	maxRetries       int
	initialBackoff   time.Duration
	maxBackoff       time.Duration
	backoffMultiplier float64
	jitterFactor     float64

	mu      sync.Mutex
	history []HistoryEntry
}

// HistoryEntry records one classified failure for the bounded error log.
type HistoryEntry struct {
	Timestamp  time.Time
	Category   Category
	StatusCode int
	Endpoint   string
	Method     string
	Message    string
}

const maxHistoryEntries = 100

// NewClassifier builds a Classifier with the spec's fixed retry parameters.
func NewClassifier() *Classifier {
	return &Classifier{
		maxRetries:        5,
		initialBackoff:    time.Second,
		maxBackoff:        60 * time.Second,
		backoffMultiplier: 2,
		jitterFactor:      0.1,
	}
}

// Classify determines the Category and any retry-after hint for a response,
// given its HTTP status code (0 if unknown) and body/message text.
func (c *Classifier) Classify(statusCode int, body string) (Category, time.Duration) {
	if statusCode == 401 {
		return CategoryAuthentication, 0
	}
	if statusCode == 429 {
		return CategoryRateLimit, extractRetryAfter(body)
	}
	if transientStatusCodes[statusCode] {
		return CategoryTransient, 0
	}
	if permanentStatusCodes[statusCode] {
		return CategoryPermanent, 0
	}

	lower := strings.ToLower(body)
	if lower != "" {
		for _, p := range transientPatterns {
			if strings.Contains(lower, p) {
				return CategoryTransient, 0
			}
		}
		for _, p := range permanentPatterns {
			if strings.Contains(lower, p) {
				return CategoryPermanent, 0
			}
		}
	}

	return CategoryUnknown, 0
}

// HandleError builds the APIError for a failed request and records it in
// history, returning the error and whether the caller should retry.
func (c *Classifier) HandleError(statusCode int, body, endpoint, method string) (*APIError, bool) {
	category, retryAfter := c.Classify(statusCode, body)

	message := body
	if message == "" {
		message = "HTTP " + strconv.Itoa(statusCode)
	}

	err := &APIError{
		Message:    message,
		StatusCode: statusCode,
		Category:   category,
		RetryAfter: retryAfter,
		Endpoint:   endpoint,
		Method:     method,
		Timestamp:  time.Now(),
	}

	shouldRetry := category == CategoryTransient || category == CategoryRateLimit

	c.record(err)

	return err, shouldRetry
}

// ShouldRetry applies the attempt-count ceiling on top of HandleError's
// per-category decision.
func (c *Classifier) ShouldRetry(err *APIError, attempt int) bool {
	if attempt >= c.maxRetries {
		return false
	}
	return err.Category == CategoryTransient || err.Category == CategoryRateLimit
}

// RetryDelay computes the backoff before the next attempt: the response's
// own Retry-After hint if present, otherwise exponential backoff with
// +/-10% jitter, capped at maxBackoff.
func (c *Classifier) RetryDelay(attempt int, err *APIError) time.Duration {
	if err != nil && err.Category == CategoryRateLimit && err.RetryAfter > 0 {
		return err.RetryAfter
	}

	backoff := float64(c.initialBackoff) * pow(c.backoffMultiplier, attempt)
	if backoff > float64(c.maxBackoff) {
		backoff = float64(c.maxBackoff)
	}

	jitter := backoff * c.jitterFactor * (2*rand.Float64() - 1)
	delay := backoff + jitter
	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

func extractRetryAfter(body string) time.Duration {
	lower := strings.ToLower(body)
	for _, re := range retryAfterPatterns {
		m := re.FindStringSubmatch(lower)
		if len(m) == 2 {
			if secs, err := strconv.Atoi(m[1]); err == nil {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return 0
}

func (c *Classifier) record(err *APIError) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.history = append(c.history, HistoryEntry{
		Timestamp:  err.Timestamp,
		Category:   err.Category,
		StatusCode: err.StatusCode,
		Endpoint:   err.Endpoint,
		Method:     err.Method,
		Message:    err.Message,
	})

	if len(c.history) > maxHistoryEntries {
		c.history = c.history[len(c.history)-maxHistoryEntries:]
	}
}

// ErrorStats summarizes the classifier's bounded history for the status API.
type ErrorStats struct {
	TotalErrors int            `json:"total_errors"`
	ByCategory  map[string]int `json:"by_category"`
	ByStatus    map[string]int `json:"by_status"`
	ByEndpoint  map[string]int `json:"by_endpoint"`
}

// Statistics aggregates the retained error history (SPEC_FULL.md §12.2).
func (c *Classifier) Statistics() ErrorStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := ErrorStats{
		ByCategory: map[string]int{},
		ByStatus:   map[string]int{},
		ByEndpoint: map[string]int{},
	}

	for _, e := range c.history {
		stats.TotalErrors++
		stats.ByCategory[string(e.Category)]++
		stats.ByStatus[strconv.Itoa(e.StatusCode)]++
		stats.ByEndpoint[e.Endpoint]++
	}

	return stats
}

// ClearHistory discards all retained error history entries.
func (c *Classifier) ClearHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
}
