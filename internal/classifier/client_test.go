package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/phishshield/shield_agent/internal/types"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func stubClient(fn roundTripFunc) *Client {
	c := New("http://classifier.test", time.Second)
	c.HTTP = &http.Client{Transport: fn}
	return c
}

func TestClassifySendsURLInRequestBody(t *testing.T) {
	var gotMethod, gotPath, gotContentType string
	var gotBody map[string]string

	c := stubClient(func(r *http.Request) (*http.Response, error) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		return jsonResponse(http.StatusOK, `{"prediction": 1}`), nil
	})

	if _, err := c.Classify(context.Background(), "https://example.com"); err != nil {
		t.Fatalf("Classify() error = %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Fatalf("method = %q; want POST", gotMethod)
	}
	if gotPath != "/predict_url" {
		t.Fatalf("path = %q; want /predict_url", gotPath)
	}
	if gotContentType != "application/json" {
		t.Fatalf("content-type = %q; want application/json", gotContentType)
	}
	if gotBody["url"] != "https://example.com" {
		t.Fatalf("body url = %q; want %q", gotBody["url"], "https://example.com")
	}
}

func TestClassifyPredictionMapping(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantPhishing bool
		wantLabel    string
	}{
		{"zero_means_phishing", `{"prediction": 0}`, true, LabelPhishing},
		{"one_means_safe", `{"prediction": 1}`, false, LabelLegitimate},
		{"other_values_mean_safe", `{"prediction": 2}`, false, LabelLegitimate},
		{"service_label_kept", `{"prediction": 0, "result": "Phishing Site"}`, true, "Phishing Site"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := stubClient(func(*http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusOK, tt.body), nil
			})

			verdict, err := c.Classify(context.Background(), "https://example.com")
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if verdict.Phishing != tt.wantPhishing {
				t.Fatalf("Phishing = %v; want %v", verdict.Phishing, tt.wantPhishing)
			}
			if verdict.Label != tt.wantLabel {
				t.Fatalf("Label = %q; want %q", verdict.Label, tt.wantLabel)
			}
			if verdict.URL != "https://example.com" {
				t.Fatalf("URL = %q; want the queried URL", verdict.URL)
			}
		})
	}
}

func TestClassifyFailureCodes(t *testing.T) {
	tests := []struct {
		name     string
		respond  roundTripFunc
		wantCode string
	}{
		{
			"network_error",
			func(*http.Request) (*http.Response, error) {
				return nil, errors.New("connection refused")
			},
			types.CodeClassifierUnavailable,
		},
		{
			"non_2xx_status",
			func(*http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusServiceUnavailable, `{}`), nil
			},
			types.CodeClassifierBadStatus,
		},
		{
			"malformed_body",
			func(*http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusOK, `{"prediction":`), nil
			},
			types.CodeClassifierBadResponse,
		},
		{
			"missing_prediction",
			func(*http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusOK, `{}`), nil
			},
			types.CodeClassifierBadResponse,
		},
		{
			"non_numeric_prediction",
			func(*http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusOK, `{"prediction": "abc"}`), nil
			},
			types.CodeClassifierBadResponse,
		},
		{
			"error_field_is_soft_failure",
			func(*http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusOK, `{"error": "model not loaded"}`), nil
			},
			types.CodeNoVerdict,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := stubClient(tt.respond)

			_, err := c.Classify(context.Background(), "https://example.com")
			if err == nil {
				t.Fatal("Classify() = nil; want error")
			}
			var coded *types.CodedError
			if !errors.As(err, &coded) {
				t.Fatalf("error type = %T; want *types.CodedError", err)
			}
			if coded.Code != tt.wantCode {
				t.Fatalf("code = %q; want %q", coded.Code, tt.wantCode)
			}
		})
	}
}

func TestClassifySoftErrorCarriesServiceMessage(t *testing.T) {
	c := stubClient(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"error": "model not loaded"}`), nil
	})

	_, err := c.Classify(context.Background(), "https://example.com")
	if err == nil {
		t.Fatal("Classify() = nil; want soft error")
	}
	if !strings.Contains(err.Error(), "model not loaded") {
		t.Fatalf("error = %q; want to contain the service message", err)
	}
}
