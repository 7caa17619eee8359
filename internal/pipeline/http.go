package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/avi3tal/agentrunner/internal/record"
)

// TransportError marks a network-level failure the coordinating system may
// choose to retry.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string   { return e.Err.Error() }
func (e *TransportError) Unwrap() error   { return e.Err }
func (e *TransportError) Retryable() bool { return true }

// runHTTP performs the http_request primitive: GET with query params or
// POST with a JSON body, decoding the JSON response. Input is ignored.
func runHTTP(ctx context.Context, client *http.Client, step *HTTPStep) (record.Value, error) {
	var req *http.Request
	var err error

	switch step.Method {
	case "GET", "get":
		target := step.URL
		if len(step.Params) > 0 {
			q := url.Values{}
			for k, v := range step.Params {
				q.Set(k, record.Canonical(v))
			}
			sep := "?"
			if strings.Contains(step.URL, "?") {
				sep = "&"
			}
			target = step.URL + sep + q.Encode()
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, target, nil)

	case "POST", "post":
		body, mErr := json.Marshal(step.Params)
		if mErr != nil {
			return nil, errors.Wrap(mErr, "failed to encode request body")
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, step.URL, bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}

	default:
		return nil, errors.Errorf("unsupported HTTP method: %s", step.Method)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &TransportError{Err: errors.Wrapf(err, "HTTP %s %s failed", step.Method, step.URL)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.Errorf("HTTP %s %s returned %d: %s", step.Method, step.URL, resp.StatusCode, body)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: errors.Wrap(err, "failed to read response body")}
	}

	result, err := record.Decode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "response from %s is not JSON", step.URL)
	}
	return result, nil
}
