// Package ingest submits documents to the external ingestion service.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/netysoft/Rag-ChatbotIA/internal/log"
)

// Defaults matching the ingestion service's upload route.
const (
	DefaultEndpoint   = "http://localhost:5000/upload"
	DefaultFieldName  = "pdf"
	DefaultClientID   = "2"
	ClientIDParameter = "client_id"
)

// Payload is one document to submit.
type Payload struct {
	Name    string
	Content io.Reader
}

// Client performs exactly one submission per call. It neither retries nor
// reports progress.
type Client interface {
	Upload(ctx context.Context, p Payload, callerID string) error
}

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upload failed: %s", e.Status)
}

// ErrEmptyCallerID is returned when Upload is called without a caller id.
var ErrEmptyCallerID = errors.New("caller id is required")

// Options configures an HTTPClient.
type Options struct {
	Endpoint  string
	FieldName string
	// Timeout bounds a whole request. Zero means no timeout.
	Timeout time.Duration
	// HTTPClient overrides the underlying client. Timeout is ignored when set.
	HTTPClient *http.Client
}

// HTTPClient posts documents as multipart/form-data.
type HTTPClient struct {
	endpoint  *url.URL
	fieldName string
	client    *http.Client
	logger    zerolog.Logger
}

// NewHTTPClient validates opts and returns a client.
func NewHTTPClient(opts Options) (*HTTPClient, error) {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing ingestion endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("ingestion endpoint %q: unsupported scheme %q", endpoint, u.Scheme)
	}

	field := opts.FieldName
	if field == "" {
		field = DefaultFieldName
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}

	return &HTTPClient{
		endpoint:  u,
		fieldName: field,
		client:    hc,
		logger:    log.WithComponent("ingest"),
	}, nil
}

// Endpoint returns the configured upload URL without the caller parameter.
func (c *HTTPClient) Endpoint() string {
	return c.endpoint.String()
}

// Upload sends p to the ingestion endpoint on behalf of callerID. Any 2xx
// response is a success and its body is ignored.
func (c *HTTPClient) Upload(ctx context.Context, p Payload, callerID string) error {
	if callerID == "" {
		return ErrEmptyCallerID
	}

	req, err := c.buildRequest(ctx, p, callerID)
	if err != nil {
		return err
	}

	logger := c.logger.With().Str(log.FieldFile, p.Name).Str(log.FieldClient, callerID).Logger()
	logger.Debug().Str("url", req.URL.String()).Msg("submitting document")

	res, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()
	_, _ = io.Copy(io.Discard, res.Body)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		logger.Warn().Int("code", res.StatusCode).Msg("ingestion service rejected document")
		return &StatusError{Code: res.StatusCode, Status: res.Status}
	}
	return nil
}

func (c *HTTPClient) buildRequest(ctx context.Context, p Payload, callerID string) (*http.Request, error) {
	u := *c.endpoint
	q := u.Query()
	q.Set(ClientIDParameter, callerID)
	u.RawQuery = q.Encode()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(c.fieldName, p.Name)
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if p.Content != nil {
		if _, err := io.Copy(part, p.Content); err != nil {
			return nil, fmt.Errorf("reading %s: %w", p.Name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req, nil
}
