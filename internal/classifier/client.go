// Package classifier talks to the external URL-classification service and
// turns its responses into verdicts.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/phishshield/shield_agent/internal/types"
)

// Label strings the scoring service uses. Derived locally when the
// response omits its result field.
const (
	LabelPhishing   = "Phishing"
	LabelLegitimate = "Legitimate"
)

// Verdict is a completed classification for one URL.
type Verdict struct {
	URL      string
	Phishing bool
	Label    string
}

// Client posts URLs to the scoring endpoint. The prediction field is
// inverted relative to naive intuition: 0 means phishing, anything else
// means safe. That mapping mirrors the service contract exactly.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New creates a client with a per-request timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type predictRequest struct {
	URL string `json:"url"`
}

type predictResponse struct {
	Prediction *json.Number `json:"prediction"`
	Result     string       `json:"result"`
	Error      string       `json:"error"`
}

// Classify sends url to the scoring endpoint.
//
// Failure taxonomy, all returned as CodedError: a response carrying an
// error field is a soft failure (CodeNoVerdict); transport errors, non-2xx
// statuses, and bodies without a usable prediction are hard failures.
// Callers abort the surrounding check on any of them; there are no
// retries.
func (c *Client) Classify(ctx context.Context, url string) (Verdict, error) {
	body, err := json.Marshal(predictRequest{URL: url})
	if err != nil {
		return Verdict{}, types.NewError(types.CodeValidation, "encode classify request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/predict_url", bytes.NewReader(body))
	if err != nil {
		return Verdict{}, types.NewError(types.CodeValidation, "build classify request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return Verdict{}, types.NewError(types.CodeClassifierUnavailable, "classifier request failed", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Verdict{}, types.NewError(types.CodeClassifierBadStatus,
			fmt.Sprintf("classifier returned status %d", resp.StatusCode), nil)
	}

	var decoded predictResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&decoded); err != nil {
		return Verdict{}, types.NewError(types.CodeClassifierBadResponse, "decode classifier response", err)
	}

	if decoded.Error != "" {
		return Verdict{}, types.NewError(types.CodeNoVerdict, decoded.Error, nil)
	}
	if decoded.Prediction == nil {
		return Verdict{}, types.NewError(types.CodeClassifierBadResponse, "classifier response missing prediction", nil)
	}

	value, err := decoded.Prediction.Float64()
	if err != nil {
		return Verdict{}, types.NewError(types.CodeClassifierBadResponse,
			fmt.Sprintf("classifier prediction not numeric: %s", decoded.Prediction.String()), err)
	}

	phishing := value == 0
	label := decoded.Result
	if label == "" {
		if phishing {
			label = LabelPhishing
		} else {
			label = LabelLegitimate
		}
	}

	return Verdict{URL: url, Phishing: phishing, Label: label}, nil
}
