package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/clinicalconnectome/phiup/internal/collection"
)

// errRateLimited marks a 429 response inside the retry loop.
var errRateLimited = errors.New("rate limited")

// Outcome is the final result of one payload's upload attempt sequence.
// It is created once per payload (the last attempt's result, not each retry)
// and never mutated afterwards.
type Outcome struct {
	// OK is true when the final status is 200 or 201.
	OK bool
	// Status is the final HTTP status, or nil on transport failure.
	Status *int
	// Body is the parsed response body, the raw text when unparseable, or a
	// transport error description.
	Body any

	// Identifying fields copied from the payload for traceability.
	RemoteID        any
	AcquisitionType any
	FeatureType     any
}

// BulkUpload submits each payload to endpoint sequentially, in input order,
// and returns one outcome per payload in the same order. A failed payload
// never aborts the batch; uploading always continues with the next one.
func (c *Client) BulkUpload(ctx context.Context, endpoint string, payloads []collection.Payload) []Outcome {
	url := c.baseURL + "/" + endpoint
	outcomes := make([]Outcome, 0, len(payloads))
	for _, pl := range payloads {
		outcomes = append(outcomes, c.uploadOne(ctx, url, pl))
	}
	return outcomes
}

// uploadOne submits a single payload, retrying on 429 within the retry
// budget. The wait honors a server Retry-After hint when present and falls
// back to exponential backoff otherwise. Once the budget is exhausted the
// last response is accepted as final. A transport error is terminal for the
// payload and recorded in the outcome, not propagated.
func (c *Client) uploadOne(ctx context.Context, url string, pl collection.Payload) Outcome {
	out := Outcome{
		RemoteID:        pl.Get("remote_id"),
		AcquisitionType: pl.Get("acquisition_type"),
		FeatureType:     pl.Get("feature_type"),
	}

	var status int
	var body any
	backoff := &rateLimitBackoff{base: c.backoffBase}

	err := retry.Do(ctx, retry.WithMaxRetries(uint64(c.maxRetries), backoff),
		func(ctx context.Context) error {
			st, respBody, hint, err := c.post(ctx, url, pl.Raw)
			if err != nil {
				return err // terminal: transport failures are not retried
			}
			status, body = st, respBody
			if st == http.StatusTooManyRequests {
				backoff.setHint(hint)
				c.log.Warn("rate limited, backing off",
					"remote_id", out.RemoteID,
					"component", "registry",
				)
				return retry.RetryableError(errRateLimited)
			}
			return nil
		})
	if err != nil && !errors.Is(err, errRateLimited) {
		out.Body = err.Error()
		c.log.Error("upload failed",
			"remote_id", out.RemoteID,
			"error", err,
			"component", "registry",
		)
		return out
	}

	out.Status = &status
	out.Body = body
	out.OK = status == http.StatusOK || status == http.StatusCreated

	if out.OK {
		c.log.Info("uploaded",
			"remote_id", out.RemoteID,
			"status", status,
			"component", "registry",
		)
	} else {
		c.log.Error("upload rejected",
			"remote_id", out.RemoteID,
			"status", status,
			"body", fmt.Sprint(body),
			"component", "registry",
		)
	}
	return out
}

// post submits one payload and returns the status, the parsed body, and any
// Retry-After hint carried by the response.
func (c *Client) post(ctx context.Context, url, raw string) (int, any, *time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(raw))
	if err != nil {
		return 0, nil, nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("submit payload: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("read response: %w", err)
	}

	var body any
	if err := json.Unmarshal(data, &body); err != nil {
		body = string(data)
	}

	var hint *time.Duration
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			d := time.Duration(secs) * time.Second
			hint = &d
		}
	}
	return resp.StatusCode, body, hint, nil
}

// rateLimitBackoff yields base^attempt seconds, starting at attempt 0, unless
// the server supplied a Retry-After hint for the pending wait.
type rateLimitBackoff struct {
	base    float64
	attempt int
	hint    *time.Duration
}

func (b *rateLimitBackoff) setHint(hint *time.Duration) {
	b.hint = hint
}

// Next implements retry.Backoff. It never stops on its own; the retry budget
// is enforced by retry.WithMaxRetries.
func (b *rateLimitBackoff) Next() (time.Duration, bool) {
	wait := time.Duration(math.Pow(b.base, float64(b.attempt)) * float64(time.Second))
	if b.hint != nil {
		wait = *b.hint
		b.hint = nil
	}
	b.attempt++
	return wait, false
}
