package whatsapp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/rechargecodes-backend/pkg/errors"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestSendTextRequest(t *testing.T) {
	var captured *http.Request
	var payload map[string]any

	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		captured = req
		body, err := io.ReadAll(req.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("unmarshal body: %v", err)
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(`{"messages":[{"id":"wamid.ABC"}]}`)),
			Header:     http.Header{},
		}, nil
	})

	client, err := NewClient("tok", "12345", WithBaseURL("http://wa.test/v21.0/"), WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	id, err := client.SendText(context.Background(), "+55 (11) 98888-7777", "Olá")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id != "wamid.ABC" {
		t.Fatalf("unexpected id %q", id)
	}
	if got := captured.URL.String(); got != "http://wa.test/v21.0/12345/messages" {
		t.Fatalf("unexpected url %q", got)
	}
	if got := captured.Header.Get("Authorization"); got != "Bearer tok" {
		t.Fatalf("unexpected auth header %q", got)
	}
	if payload["to"] != "5511988887777" {
		t.Fatalf("unexpected recipient %v", payload["to"])
	}
	if payload["messaging_product"] != "whatsapp" {
		t.Fatalf("unexpected product %v", payload["messaging_product"])
	}
}

func TestSendTextProviderError(t *testing.T) {
	rt := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusBadRequest,
			Body:       io.NopCloser(strings.NewReader(`{"error":{"message":"invalid recipient"}}`)),
			Header:     http.Header{},
		}, nil
	})
	client, err := NewClient("tok", "12345", WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.SendText(context.Background(), "5511988887777", "Olá")
	if err == nil {
		t.Fatal("expected error")
	}
	if !pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if !strings.Contains(err.Error(), "invalid recipient") {
		t.Fatalf("expected provider message in error, got %v", err)
	}
}

func TestSendTextValidatesInput(t *testing.T) {
	client, err := NewClient("tok", "12345")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.SendText(context.Background(), "  ", "Olá"); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for empty phone, got %v", err)
	}
	if _, err := client.SendText(context.Background(), "5511988887777", " "); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for empty body, got %v", err)
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	if _, err := NewClient("", "123"); err == nil {
		t.Fatal("expected token error")
	}
	if _, err := NewClient("tok", ""); err == nil {
		t.Fatal("expected sender error")
	}
	var nilClient *Client
	if nilClient.Configured() {
		t.Fatal("nil client must not be configured")
	}
}
