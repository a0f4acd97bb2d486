package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dorcha-inc/hops/internal/core"
)

const (
	defaultHTTPTimeout   = 5 * time.Minute
	computeIOEndpoint    = "/io"
	computeSolveEndpoint = "/solve"
)

// HTTPTransport talks JSON over HTTP, either to a definition endpoint that
// describes itself on GET and solves on POST, or to a compute server that
// hosts many definitions and is addressed by pointer.
type HTTPTransport struct {
	pointer     string
	describeURL string
	solveURL    string
	// describeBody is nil for endpoints, which are described with GET
	describeBody any
	client       *http.Client
}

// NewEndpointTransport creates a transport for a self-describing endpoint
func NewEndpointTransport(endpoint string, client *http.Client) *HTTPTransport {
	return &HTTPTransport{
		pointer:     endpoint,
		describeURL: endpoint,
		solveURL:    endpoint,
		client:      client,
	}
}

// NewComputeTransport creates a transport for a definition hosted by a compute server
func NewComputeTransport(server, pointer string, client *http.Client) *HTTPTransport {
	base := strings.TrimRight(server, "/")
	return &HTTPTransport{
		pointer:      pointer,
		describeURL:  base + computeIOEndpoint,
		solveURL:     base + computeSolveEndpoint,
		describeBody: IORequest{Pointer: pointer},
		client:       client,
	}
}

var _ Transport = &HTTPTransport{}

func (t *HTTPTransport) Pointer() string {
	return t.pointer
}

func (t *HTTPTransport) Describe(ctx context.Context) (*IOResponse, error) {
	method := http.MethodGet
	if t.describeBody != nil {
		method = http.MethodPost
	}

	var response IOResponse
	if err := t.do(ctx, method, t.describeURL, t.describeBody, &response); err != nil {
		return nil, err
	}

	zap.L().Debug("Definition described",
		zap.String("pointer", t.pointer),
		zap.Int("inputs", len(response.Inputs)),
		zap.Int("outputs", len(response.Outputs)))

	return &response, nil
}

func (t *HTTPTransport) Solve(ctx context.Context, input *Schema) (*Schema, error) {
	var output Schema
	if err := t.do(ctx, http.MethodPost, t.solveURL, input, &output); err != nil {
		return nil, err
	}
	return &output, nil
}

// Close is a no-op; the HTTP client is shared
func (t *HTTPTransport) Close() error {
	return nil
}

func (t *HTTPTransport) do(ctx context.Context, method, url string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer core.LogDeferredError(resp.Body.Close)

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrDefinitionNotFound, t.pointer)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("solver error: %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("solver error: %d - %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
