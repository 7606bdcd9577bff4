package openairealtime

import (
	"errors"
	"fmt"
)

// ErrChannelNotOpen is returned by Channel.Send when the channel is not open.
var ErrChannelNotOpen = errors.New("openai-realtime: channel not open")

// AuthReason classifies a failed HTTP exchange with the token endpoint or
// the realtime endpoint.
type AuthReason string

const (
	AuthReasonNetwork           AuthReason = "network"
	AuthReasonHTTPStatus        AuthReason = "http-status"
	AuthReasonMalformedResponse AuthReason = "malformed-response"
)

// AuthError is returned when the token exchange fails.
type AuthError struct {
	Reason AuthReason

	// Endpoint is the URL that was called.
	Endpoint string

	// Status is the HTTP status code for AuthReasonHTTPStatus.
	Status int

	// Detail is a short description or the response body.
	Detail string

	Err error
}

func (e *AuthError) Error() string {
	return "openai-realtime: " + describe(e.Reason, e.Endpoint, e.Status, e.Detail, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// NegotiationError is returned when the SDP offer/answer exchange fails.
type NegotiationError struct {
	Reason AuthReason

	// Endpoint is the URL that was called, without query.
	Endpoint string

	// Status is the HTTP status code for AuthReasonHTTPStatus.
	Status int

	// Detail is a short description or the response body.
	Detail string

	Err error
}

func (e *NegotiationError) Error() string {
	return "openai-realtime: negotiate: " + describe(e.Reason, e.Endpoint, e.Status, e.Detail, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }

func describe(reason AuthReason, endpoint string, status int, detail string, err error) string {
	switch reason {
	case AuthReasonHTTPStatus:
		return fmt.Sprintf("%s: status %d: %s", endpoint, status, detail)
	case AuthReasonNetwork:
		return fmt.Sprintf("%s: %v", endpoint, err)
	}
	if err != nil {
		return fmt.Sprintf("%s: %s: %v", endpoint, detail, err)
	}
	return fmt.Sprintf("%s: %s", endpoint, detail)
}

// DecodeError is returned by Decode for frames that cannot be interpreted.
type DecodeError struct {
	// Type is the discriminant, if it could be read.
	Type   string
	Frame  []byte
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := e.Reason
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Type != "" {
		return fmt.Sprintf("openai-realtime: decode %s: %s", e.Type, msg)
	}
	return "openai-realtime: decode: " + msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EventError contains error information from error events.
type EventError struct {
	Type    string `json:"type,omitzero"`
	Code    string `json:"code,omitzero"`
	Message string `json:"message,omitzero"`
	Param   string `json:"param,omitzero"`
	EventID string `json:"event_id,omitzero"`
}

func (e *EventError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("openai-realtime: %s: %s", e.Code, e.Message)
	}
	if e.Type != "" {
		return fmt.Sprintf("openai-realtime: %s: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("openai-realtime: %s", e.Message)
}
