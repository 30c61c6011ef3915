package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"adminpanel/internal/domain"
)

type captureTransport struct {
	responses map[string]responseStub
	requests  []*http.Request
	lastBody  []byte
	err       error
}

type responseStub struct {
	status int
	header http.Header
	body   []byte
}

func newCaptureTransport() *captureTransport {
	return &captureTransport{responses: map[string]responseStub{}}
}

func (c *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, c.err
	}
	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
		c.lastBody = body
	}
	if stub, ok := c.responses[req.Method+" "+req.URL.Path]; ok {
		return stub.toResponse(), nil
	}
	return &http.Response{
		StatusCode: http.StatusNotFound,
		Body:       io.NopCloser(strings.NewReader("")),
		Header:     make(http.Header),
	}, nil
}

func (c *captureTransport) setJSONResponse(method, path string, status int, payload any) {
	body, _ := json.Marshal(payload)
	c.responses[method+" "+path] = responseStub{
		status: status,
		header: http.Header{"Content-Type": []string{"application/json"}},
		body:   body,
	}
}

func (r responseStub) toResponse() *http.Response {
	header := r.header
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		StatusCode: r.status,
		Body:       io.NopCloser(bytes.NewReader(r.body)),
		Header:     header,
	}
}

func newTestClient(transport *captureTransport, token string) *Client {
	return NewClient(Options{
		APIToken:   token,
		BaseURL:    "https://api.example.test/v1/",
		HTTPClient: &http.Client{Transport: transport},
	})
}

func TestSubmitPayloadAndResponse(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSONResponse(http.MethodPost, "/v1/models/google/nano-banana-pro/predictions", http.StatusCreated, map[string]any{
		"id":     "pred-1",
		"status": "starting",
	})
	client := newTestClient(transport, "tok")

	job, err := client.Submit(context.Background(), "google/nano-banana-pro", Input{
		Prompt:      "a dog",
		ImageInput:  []string{"https://cdn.example.test/ref.png"},
		AspectRatio: "1:1",
		Resolution:  "2K",
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if job.ID != "pred-1" || job.Status != domain.JobStatusStarting {
		t.Fatalf("job = %+v", job)
	}
	if len(transport.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(transport.requests))
	}
	req := transport.requests[0]
	if got := req.Header.Get("Authorization"); got != "Bearer tok" {
		t.Fatalf("authorization = %q", got)
	}

	var payload struct {
		Input map[string]any `json:"input"`
	}
	if err := json.Unmarshal(transport.lastBody, &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload.Input["prompt"] != "a dog" {
		t.Fatalf("prompt = %v", payload.Input["prompt"])
	}
	refs, ok := payload.Input["image_input"].([]any)
	if !ok || len(refs) != 1 || refs[0] != "https://cdn.example.test/ref.png" {
		t.Fatalf("image_input = %v", payload.Input["image_input"])
	}
	if _, ok := payload.Input["output_format"]; ok {
		t.Fatalf("output_format should be omitted when empty")
	}
}

func TestSubmitRejectsMalformedModel(t *testing.T) {
	for _, model := range []string{"", "nano-banana", "a/b/c", "/name", "owner/"} {
		transport := newCaptureTransport()
		client := newTestClient(transport, "tok")
		_, err := client.Submit(context.Background(), model, Input{Prompt: "x"})
		if !errors.Is(err, domain.ErrInvalidConfiguration) {
			t.Fatalf("model %q: err = %v, want ErrInvalidConfiguration", model, err)
		}
		if len(transport.requests) != 0 {
			t.Fatalf("model %q: no request expected", model)
		}
	}
}

func TestSubmitRequiresCredential(t *testing.T) {
	transport := newCaptureTransport()
	client := newTestClient(transport, "  ")
	_, err := client.Submit(context.Background(), "google/nano-banana-pro", Input{Prompt: "x"})
	if !errors.Is(err, domain.ErrMissingCredential) {
		t.Fatalf("err = %v, want ErrMissingCredential", err)
	}
	if len(transport.requests) != 0 {
		t.Fatalf("no request expected without credential")
	}
}

func TestSubmitRemoteErrorCarriesDetail(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSONResponse(http.MethodPost, "/v1/models/google/nano-banana-pro/predictions", http.StatusUnprocessableEntity, map[string]any{
		"title":  "Invalid input",
		"detail": "prompt is too long",
	})
	client := newTestClient(transport, "tok")

	_, err := client.Submit(context.Background(), "google/nano-banana-pro", Input{Prompt: "x"})
	if !errors.Is(err, domain.ErrRemoteService) {
		t.Fatalf("err = %v, want ErrRemoteService", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity || apiErr.Detail != "prompt is too long" {
		t.Fatalf("api error = %+v", apiErr)
	}
}

func TestRemoteErrorFallsBackToStatusText(t *testing.T) {
	transport := newCaptureTransport()
	transport.responses["GET /v1/predictions/p1"] = responseStub{status: http.StatusBadGateway, body: []byte("<html>")}
	client := newTestClient(transport, "tok")

	_, err := client.FetchStatus(context.Background(), "p1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Detail != http.StatusText(http.StatusBadGateway) {
		t.Fatalf("detail = %q", apiErr.Detail)
	}
}

func TestTransportFailure(t *testing.T) {
	transport := newCaptureTransport()
	transport.err = errors.New("connection refused")
	client := newTestClient(transport, "tok")

	_, err := client.FetchStatus(context.Background(), "p1")
	if !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
}

func TestFetchStatusNormalizesOutput(t *testing.T) {
	cases := []struct {
		name   string
		output any
		want   string
	}{
		{name: "string", output: "https://cdn.example.test/out.png", want: "https://cdn.example.test/out.png"},
		{name: "array", output: []string{"https://cdn.example.test/a.jpg", "https://cdn.example.test/b.jpg"}, want: "https://cdn.example.test/a.jpg"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			transport := newCaptureTransport()
			transport.setJSONResponse(http.MethodGet, "/v1/predictions/p1", http.StatusOK, map[string]any{
				"id":     "p1",
				"status": "succeeded",
				"output": tc.output,
				"error":  nil,
			})
			client := newTestClient(transport, "tok")

			job, err := client.FetchStatus(context.Background(), "p1")
			if err != nil {
				t.Fatalf("FetchStatus returned error: %v", err)
			}
			if job.Status != domain.JobStatusSucceeded {
				t.Fatalf("status = %q", job.Status)
			}
			if got := job.Output.First(); got != tc.want {
				t.Fatalf("first output = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFetchStatusRequiresID(t *testing.T) {
	client := newTestClient(newCaptureTransport(), "tok")
	if _, err := client.FetchStatus(context.Background(), " "); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestFetchStatusCarriesJobError(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSONResponse(http.MethodGet, "/v1/predictions/p1", http.StatusOK, map[string]any{
		"id":     "p1",
		"status": "failed",
		"error":  "NSFW content detected",
	})
	client := newTestClient(transport, "tok")

	job, err := client.FetchStatus(context.Background(), "p1")
	if err != nil {
		t.Fatalf("FetchStatus returned error: %v", err)
	}
	if job.Status != domain.JobStatusFailed || job.Error != "NSFW content detected" {
		t.Fatalf("job = %+v", job)
	}
}

func TestDownload(t *testing.T) {
	transport := newCaptureTransport()
	transport.responses["GET /files/out.png"] = responseStub{
		status: http.StatusOK,
		header: http.Header{"Content-Type": []string{"image/png"}},
		body:   []byte{0x89, 'P', 'N', 'G'},
	}
	client := newTestClient(transport, "")

	data, contentType, err := client.Download(context.Background(), "https://cdn.example.test/files/out.png")
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if contentType != "image/png" || len(data) != 4 {
		t.Fatalf("download = %q, %d bytes", contentType, len(data))
	}

	_, _, err = client.Download(context.Background(), "https://cdn.example.test/files/missing.png")
	if !errors.Is(err, domain.ErrDownload) {
		t.Fatalf("err = %v, want ErrDownload", err)
	}
	if _, _, err := client.Download(context.Background(), "not a url"); !errors.Is(err, domain.ErrDownload) {
		t.Fatalf("err = %v, want ErrDownload for invalid url", err)
	}
}
