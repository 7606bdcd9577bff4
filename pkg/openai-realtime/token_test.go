package openairealtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %s", ct)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["voice"] != "sage" {
			t.Errorf("voice = %q", body["voice"])
		}
		w.Write([]byte(`{"id":"sess_1","client_secret":{"value":"ek_123","expires_at":1}}`))
	}))
	defer srv.Close()

	c, err := NewTokenClient(srv.URL+"/api/session", "")
	if err != nil {
		t.Fatal(err)
	}
	token, err := c.FetchToken(context.Background(), "sage")
	if err != nil {
		t.Fatal(err)
	}
	if token != "ek_123" {
		t.Fatalf("token = %q", token)
	}
}

func TestFetchTokenCustomPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"token":"abc"}}`))
	}))
	defer srv.Close()

	c, err := NewTokenClient(srv.URL, ".data.token")
	if err != nil {
		t.Fatal(err)
	}
	token, err := c.FetchToken(context.Background(), "alloy")
	if err != nil || token != "abc" {
		t.Fatalf("FetchToken = %q, %v", token, err)
	}
}

func TestNewTokenClientBadPath(t *testing.T) {
	if _, err := NewTokenClient("http://x", ".a["); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFetchTokenFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		reason AuthReason
	}{
		{"server error", 500, `{"error":"boom"}`, AuthReasonHTTPStatus},
		{"created is not ok", 201, `{"client_secret":{"value":"x"}}`, AuthReasonHTTPStatus},
		{"not json", 200, `<html>`, AuthReasonMalformedResponse},
		{"missing field", 200, `{"client_secret":{}}`, AuthReasonMalformedResponse},
		{"wrong type", 200, `{"client_secret":{"value":42}}`, AuthReasonMalformedResponse},
		{"empty value", 200, `{"client_secret":{"value":""}}`, AuthReasonMalformedResponse},
		{"not an object", 200, `"token"`, AuthReasonMalformedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c, err := NewTokenClient(srv.URL, "")
			if err != nil {
				t.Fatal(err)
			}
			_, err = c.FetchToken(context.Background(), "alloy")
			var ae *AuthError
			if !errors.As(err, &ae) {
				t.Fatalf("error = %v, want *AuthError", err)
			}
			if ae.Reason != tt.reason {
				t.Fatalf("reason = %s, want %s", ae.Reason, tt.reason)
			}
			if calls != 1 {
				t.Fatalf("calls = %d, want exactly 1", calls)
			}
		})
	}
}

func TestFetchTokenNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := NewTokenClient(url, "")
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.FetchToken(context.Background(), "alloy")
	var ae *AuthError
	if !errors.As(err, &ae) || ae.Reason != AuthReasonNetwork {
		t.Fatalf("error = %v, want network AuthError", err)
	}
	if !strings.Contains(ae.Error(), url) {
		t.Fatalf("error %q does not name endpoint", ae.Error())
	}
}
