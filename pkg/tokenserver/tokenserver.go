// Package tokenserver is the application backend that issues short-lived
// realtime credentials to voice sessions.
//
// The browser-side or CLI session POSTs {"voice": "..."} to /api/session and
// receives the realtime session object minted by the OpenAI API, whose
// client_secret.value is the ephemeral credential. The long-lived API key
// never leaves the server.
package tokenserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultModel is the realtime model sessions are minted for.
const DefaultModel = "gpt-4o-realtime-preview"

// Path is where Handler is usually mounted.
const Path = "/api/session"

// maxBody bounds the request body.
const maxBody = 64 << 10

// Minter creates a realtime session and returns the upstream JSON.
type Minter interface {
	Mint(ctx context.Context, voice string) (json.RawMessage, error)
}

// OpenAIMinter mints sessions with the OpenAI REST API.
type OpenAIMinter struct {
	client *openai.Client
	model  string
}

// MinterOption configures an OpenAIMinter.
type MinterOption func(*minterConfig)

type minterConfig struct {
	model      string
	baseURL    string
	httpClient *http.Client
}

// WithModel sets the realtime model.
func WithModel(model string) MinterOption {
	return func(c *minterConfig) { c.model = model }
}

// WithBaseURL points the minter at an OpenAI-compatible endpoint.
func WithBaseURL(url string) MinterOption {
	return func(c *minterConfig) { c.baseURL = url }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) MinterOption {
	return func(c *minterConfig) { c.httpClient = hc }
}

// NewOpenAIMinter creates a minter using apiKey.
func NewOpenAIMinter(apiKey string, opts ...MinterOption) *OpenAIMinter {
	cfg := minterConfig{
		model:      DefaultModel,
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(&cfg)
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(cfg.httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}
	client := openai.NewClient(clientOpts...)

	return &OpenAIMinter{client: &client, model: cfg.model}
}

type mintRequest struct {
	Model string `json:"model"`
	Voice string `json:"voice,omitzero"`
}

// Mint implements Minter.
func (m *OpenAIMinter) Mint(ctx context.Context, voice string) (json.RawMessage, error) {
	var body []byte
	err := m.client.Post(ctx, "realtime/sessions",
		mintRequest{Model: m.model, Voice: voice}, &body,
		option.WithHeader("OpenAI-Beta", "realtime=v1"),
	)
	if err != nil {
		return nil, fmt.Errorf("tokenserver: mint session: %w", err)
	}
	if !json.Valid(body) {
		return nil, errors.New("tokenserver: mint session: invalid JSON response")
	}
	return body, nil
}

// Handler serves POST requests for new realtime sessions.
type Handler struct {
	minter Minter
}

// NewHandler returns a Handler minting sessions with m.
func NewHandler(m Minter) *Handler {
	return &Handler{minter: m}
}

type sessionRequest struct {
	Voice string `json:"voice"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req sessionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.minter.Mint(r.Context(), req.Voice)
	if err != nil {
		slog.Error("mint realtime session", "voice", req.Voice, "error", err)
		writeError(w, http.StatusBadGateway, "failed to create realtime session")
		return
	}
	slog.Info("minted realtime session", "voice", req.Voice)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(session)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
