// Package classifier issues LLM classification requests for a batch of
// messages and parses the response into per-UID actions. Resilience
// against a misbehaving or overloaded endpoint is provided by a
// process-wide circuit breaker shared across every batch in every run.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker"

	"github.com/cleanr/inboxengine/internal/ierrors"
	"github.com/cleanr/inboxengine/internal/models"
	"github.com/cleanr/inboxengine/internal/tracing"
	"github.com/cleanr/inboxengine/manifest"
)

type Config struct {
	Endpoint                string
	APIKey                  string
	Model                   string
	TimeoutSeconds          int
	BreakerFailureThreshold uint32
	BreakerCooldownSeconds  int
}

// EmailForClassification is the minimal shape sent to the LLM per message.
type EmailForClassification struct {
	UID     string `json:"uid"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Date    string `json:"date"`
}

// Classification is one parsed result item.
type Classification struct {
	UID    string            `json:"uid"`
	Action models.ActionKind `json:"action"`
	Folder string            `json:"folder"`
	Reason string            `json:"reason"`
}

// Client issues one HTTP request per batch and parses the JSON array
// response, stripping any surrounding markdown code fence first.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewClient(cfg Config) *Client {
	st := gobreaker.Settings{
		Name:        "classifier",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     time.Duration(cfg.BreakerCooldownSeconds) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailureThreshold
		},
		// Only rate-limit and overload responses count as breaker failures.
		IsSuccessful: func(err error) bool {
			return !errors.Is(err, ierrors.ErrClassifierRateLimited) && !errors.Is(err, ierrors.ErrClassifierOverloaded)
		},
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

var codeFenceRe = regexp.MustCompile("(?s)^```(?:json)?\\s*|\\s*```$")

// ClassifyBatch sends one batch and returns its parsed classifications.
// A non-nil error from the HTTP call, a non-2xx status or the response
// parse wraps one of the classifier sentinel kinds so callers can report
// the right error tag without string matching; a failure to marshal the
// batch or build the request carries no sentinel.
func (c *Client) ClassifyBatch(ctx context.Context, m *manifest.Manifest, sourceFolder string, batch []EmailForClassification) ([]Classification, error) {
	span, ctx := tracing.StartTracerSpan(ctx, "classifier.ClassifyBatch")
	defer span.Finish()
	tracing.TagComponentClassifier(span)

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doClassify(ctx, m, sourceFolder, batch)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			tracing.TraceErr(span, err)
			return nil, errors.Wrap(ierrors.ErrClassifierOverloaded, "circuit breaker open")
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return result.([]Classification), nil
}

func (c *Client) doClassify(ctx context.Context, m *manifest.Manifest, sourceFolder string, batch []EmailForClassification) ([]Classification, error) {
	systemPrompt := BuildSystemPrompt(m, sourceFolder, time.Now().UTC())

	emailsJSON, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "classifier: marshal batch")
	}

	reqBody := map[string]any{
		"model":      c.cfg.Model,
		"max_tokens": 4096,
		"system":     systemPrompt,
		"messages": []map[string]string{
			{"role": "user", "content": "Classify:\n\n" + string(emailsJSON)},
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, errors.Wrap(err, "classifier: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "classifier: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(ierrors.ErrClassifierAPIError, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(ierrors.ErrClassifierAPIError, "read response body")
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errors.Wrap(ierrors.ErrClassifierRateLimited, string(body))
	}
	if resp.StatusCode == http.StatusServiceUnavailable {
		return nil, errors.Wrap(ierrors.ErrClassifierOverloaded, string(body))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Wrap(ierrors.ErrClassifierAPIError, fmt.Sprintf("status %d: %s", resp.StatusCode, string(body)))
	}

	text, err := extractResponseText(body)
	if err != nil {
		return nil, errors.Wrap(ierrors.ErrClassifierParseError, err.Error())
	}

	cleaned := codeFenceRe.ReplaceAllString(strings.TrimSpace(text), "")
	var results []Classification
	if err := json.Unmarshal([]byte(cleaned), &results); err != nil {
		return nil, errors.Wrap(ierrors.ErrClassifierParseError, err.Error())
	}
	return results, nil
}

type messageResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func extractResponseText(body []byte) (string, error) {
	var mr messageResponse
	if err := json.Unmarshal(body, &mr); err != nil {
		return "", err
	}
	if len(mr.Content) == 0 {
		return "", errors.New("classifier: empty response content")
	}
	return mr.Content[0].Text, nil
}
