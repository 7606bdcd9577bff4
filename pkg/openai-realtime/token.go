package openairealtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/itchyny/gojq"
)

// DefaultCredentialPath is the jq path of the client secret in the token
// endpoint's response.
const DefaultCredentialPath = ".client_secret.value"

// TokenFetcher returns a short-lived credential for the realtime endpoint.
type TokenFetcher interface {
	FetchToken(ctx context.Context, voice string) (string, error)
}

// TokenFetcherFunc adapts a function to TokenFetcher.
type TokenFetcherFunc func(ctx context.Context, voice string) (string, error)

func (f TokenFetcherFunc) FetchToken(ctx context.Context, voice string) (string, error) {
	return f(ctx, voice)
}

// TokenClient exchanges a voice id for a client secret at an application
// backend. It makes exactly one request per call.
type TokenClient struct {
	endpoint   string
	httpClient *http.Client
	path       string
	code       *gojq.Code
}

// TokenOption configures a TokenClient.
type TokenOption func(*TokenClient)

// WithTokenHTTPClient sets the HTTP client. Defaults to http.DefaultClient.
func WithTokenHTTPClient(c *http.Client) TokenOption {
	return func(t *TokenClient) {
		t.httpClient = c
	}
}

// NewTokenClient creates a client for endpoint. path is a jq expression
// selecting the credential string in the response; empty means
// DefaultCredentialPath.
func NewTokenClient(endpoint, path string, opts ...TokenOption) (*TokenClient, error) {
	if path == "" {
		path = DefaultCredentialPath
	}
	query, err := gojq.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("invalid credential path %q: %w", path, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("compile credential path %q: %w", path, err)
	}
	t := &TokenClient{
		endpoint:   endpoint,
		httpClient: http.DefaultClient,
		path:       path,
		code:       code,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// FetchToken posts {"voice": voice} and extracts the credential. All
// failures are *AuthError.
func (t *TokenClient) FetchToken(ctx context.Context, voice string) (string, error) {
	body, err := json.Marshal(map[string]string{"voice": voice})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &AuthError{Reason: AuthReasonNetwork, Endpoint: t.endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", &AuthError{Reason: AuthReasonNetwork, Endpoint: t.endpoint, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &AuthError{Reason: AuthReasonNetwork, Endpoint: t.endpoint, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &AuthError{
			Reason:   AuthReasonHTTPStatus,
			Endpoint: t.endpoint,
			Status:   resp.StatusCode,
			Detail:   truncate(string(data), 200),
		}
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", &AuthError{Reason: AuthReasonMalformedResponse, Endpoint: t.endpoint, Detail: "invalid json", Err: err}
	}
	v, ok := t.code.RunWithContext(ctx, doc).Next()
	if !ok {
		return "", &AuthError{Reason: AuthReasonMalformedResponse, Endpoint: t.endpoint, Detail: "no " + t.path}
	}
	if err, isErr := v.(error); isErr {
		return "", &AuthError{Reason: AuthReasonMalformedResponse, Endpoint: t.endpoint, Detail: t.path, Err: err}
	}
	token, _ := v.(string)
	if token == "" {
		return "", &AuthError{Reason: AuthReasonMalformedResponse, Endpoint: t.endpoint, Detail: "no " + t.path}
	}
	return token, nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
