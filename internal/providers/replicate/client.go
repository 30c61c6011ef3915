package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"adminpanel/internal/domain"
	"adminpanel/internal/infra"
)

// Options configures the predictions API client.
type Options struct {
	APIToken       string
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client submits generation jobs and reads their status.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

// Input is the model input payload. Only Prompt is required.
type Input struct {
	Prompt       string   `json:"prompt"`
	ImageInput   []string `json:"image_input,omitempty"`
	AspectRatio  string   `json:"aspect_ratio,omitempty"`
	Resolution   string   `json:"resolution,omitempty"`
	OutputFormat string   `json:"output_format,omitempty"`
}

// APIError is a non-success response from the predictions API.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("replicate: %s (status %d)", e.Detail, e.StatusCode)
}

func (e *APIError) Unwrap() error {
	return domain.ErrRemoteService
}

type createRequest struct {
	Input Input `json:"input"`
}

type predictionResponse struct {
	ID     string           `json:"id"`
	Status string           `json:"status"`
	Output domain.JobOutput `json:"output"`
	Error  json.RawMessage  `json:"error"`
}

type errorResponse struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.replicate.com/v1"
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	return &Client{
		token:      strings.TrimSpace(opts.APIToken),
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.token != ""
}

// Submit creates a prediction for model, given as owner/model-name.
func (c *Client) Submit(ctx context.Context, model string, input Input) (*domain.GenerationJob, error) {
	owner, name, err := splitModel(model)
	if err != nil {
		return nil, err
	}
	if !c.HasCredentials() {
		return nil, fmt.Errorf("%w: REPLICATE_API_TOKEN is not set", domain.ErrMissingCredential)
	}
	body, err := json.Marshal(createRequest{Input: input})
	if err != nil {
		return nil, fmt.Errorf("replicate: encode request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/models/%s/%s/predictions", c.baseURL, url.PathEscape(owner), url.PathEscape(name))
	job, err := c.do(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}
	c.logger.Debug().
		Str("model", model).
		Str("prediction_id", job.ID).
		Str("status", string(job.Status)).
		Msg("replicate: prediction created")
	return job, nil
}

// FetchStatus returns the current snapshot of a prediction.
func (c *Client) FetchStatus(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, fmt.Errorf("%w: prediction id is required", domain.ErrInvalidInput)
	}
	if !c.HasCredentials() {
		return nil, fmt.Errorf("%w: REPLICATE_API_TOKEN is not set", domain.ErrMissingCredential)
	}
	return c.do(ctx, http.MethodGet, c.baseURL+"/predictions/"+url.PathEscape(jobID), nil)
}

// Download fetches an output URI as raw bytes and returns its content type.
func (c *Client) Download(ctx context.Context, uri string) ([]byte, string, error) {
	parsed, err := url.Parse(strings.TrimSpace(uri))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, "", fmt.Errorf("%w: invalid output url %q", domain.ErrDownload, uri)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: build request: %v", domain.ErrDownload, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrDownload, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("%w: status %d %s", domain.ErrDownload, resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read body: %v", domain.ErrDownload, err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) (*domain.GenerationJob, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("replicate: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := http.StatusText(resp.StatusCode)
		var decoded errorResponse
		if err := json.Unmarshal(raw, &decoded); err == nil {
			switch {
			case strings.TrimSpace(decoded.Detail) != "":
				detail = strings.TrimSpace(decoded.Detail)
			case strings.TrimSpace(decoded.Title) != "":
				detail = strings.TrimSpace(decoded.Title)
			}
		}
		if detail == "" {
			detail = fmt.Sprintf("http %d", resp.StatusCode)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Detail: detail}
	}

	var decoded predictionResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrRemoteService, err)
	}
	if strings.TrimSpace(decoded.ID) == "" {
		return nil, fmt.Errorf("%w: response missing prediction id", domain.ErrRemoteService)
	}
	return &domain.GenerationJob{
		ID:     decoded.ID,
		Status: domain.NormalizeJobStatus(decoded.Status),
		Output: decoded.Output,
		Error:  errorText(decoded.Error),
	}, nil
}

func splitModel(model string) (string, string, error) {
	parts := strings.Split(strings.TrimSpace(model), "/")
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return "", "", fmt.Errorf("%w: model must be owner/model-name, got %q", domain.ErrInvalidConfiguration, model)
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), nil
}

func errorText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text)
	}
	return string(raw)
}

// IsNotFound reports whether err is a 404 from the predictions API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
