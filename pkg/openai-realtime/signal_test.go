package openairealtime

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPSignalerExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("model"); got != ModelGPT4oRealtimePreview {
			t.Errorf("model = %q", got)
		}
		if got := r.URL.Query().Get("voice"); got != "verse" {
			t.Errorf("voice = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer ek_1" {
			t.Errorf("authorization = %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/sdp" {
			t.Errorf("content-type = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "v=0 offer" {
			t.Errorf("body = %q", body)
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, "v=0 answer")
	}))
	defer srv.Close()

	s := &HTTPSignaler{URL: srv.URL + "/v1/realtime"}
	answer, err := s.Exchange(context.Background(), Offer{SDP: "v=0 offer", Token: "ek_1", Voice: "verse"})
	if err != nil {
		t.Fatal(err)
	}
	if answer != "v=0 answer" {
		t.Fatalf("answer = %q", answer)
	}
}

func TestHTTPSignalerFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		reason AuthReason
	}{
		{"unauthorized", 401, "bad token", AuthReasonHTTPStatus},
		{"redirect status", 302, "", AuthReasonHTTPStatus},
		{"empty answer", 200, "", AuthReasonMalformedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			s := &HTTPSignaler{URL: srv.URL}
			_, err := s.Exchange(context.Background(), Offer{SDP: "x", Token: "t"})
			var ne *NegotiationError
			if !errors.As(err, &ne) || ne.Reason != tt.reason {
				t.Fatalf("error = %v, want reason %s", err, tt.reason)
			}
			var ae *AuthError
			if errors.As(err, &ae) {
				t.Fatalf("SDP failure reported as token failure: %v", err)
			}
			if !strings.Contains(err.Error(), "negotiate") {
				t.Fatalf("error = %q", err)
			}
		})
	}
}

func TestHTTPSignalerNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s := &HTTPSignaler{URL: url}
	_, err := s.Exchange(context.Background(), Offer{SDP: "x", Token: "t"})
	var ne *NegotiationError
	if !errors.As(err, &ne) || ne.Reason != AuthReasonNetwork || ne.Err == nil {
		t.Fatalf("error = %v, want network NegotiationError", err)
	}
}
