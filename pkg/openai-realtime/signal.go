package openairealtime

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// DefaultRealtimeURL is the SDP exchange endpoint.
const DefaultRealtimeURL = "https://api.openai.com/v1/realtime"

// Offer is a local session description to be answered by the remote side.
type Offer struct {
	SDP   string
	Token string
	Model string
	Voice string
}

// Signaler exchanges an SDP offer for an SDP answer.
type Signaler interface {
	Exchange(ctx context.Context, offer Offer) (answer string, err error)
}

// HTTPSignaler posts the offer to the realtime endpoint with bearer auth.
type HTTPSignaler struct {
	// URL defaults to DefaultRealtimeURL.
	URL string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Exchange posts offer.SDP and returns the answer body. Any 2xx status is
// accepted. Failures are *NegotiationError.
func (s *HTTPSignaler) Exchange(ctx context.Context, offer Offer) (string, error) {
	endpoint := s.URL
	if endpoint == "" {
		endpoint = DefaultRealtimeURL
	}
	model := offer.Model
	if model == "" {
		model = ModelGPT4oRealtimePreview
	}
	q := url.Values{}
	q.Set("model", model)
	if offer.Voice != "" {
		q.Set("voice", offer.Voice)
	}
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	target := endpoint + sep + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(offer.SDP))
	if err != nil {
		return "", &NegotiationError{Reason: AuthReasonNetwork, Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+offer.Token)
	req.Header.Set("Content-Type", "application/sdp")

	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", &NegotiationError{Reason: AuthReasonNetwork, Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &NegotiationError{Reason: AuthReasonNetwork, Endpoint: endpoint, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &NegotiationError{
			Reason:   AuthReasonHTTPStatus,
			Endpoint: endpoint,
			Status:   resp.StatusCode,
			Detail:   truncate(string(body), 200),
		}
	}
	if len(body) == 0 {
		return "", &NegotiationError{Reason: AuthReasonMalformedResponse, Endpoint: endpoint, Detail: "empty answer"}
	}
	return string(body), nil
}
