package whatsapp

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

	pkgerrors "github.com/angelmondragon/rechargecodes-backend/pkg/errors"
)

const (
	defaultBaseURL        = "https://graph.facebook.com/v21.0"
	messagingProduct      = "whatsapp"
	responseBodyReadLimit = 1024
)

var (
	errTokenRequired    = errors.New("whatsapp access token is required")
	errSenderIDRequired = errors.New("whatsapp sender id is required")
)

// Client sends text messages through the WhatsApp Cloud API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	senderID   string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL points the client at a different API host, such as a provider proxy.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds a client for the sender phone-number id.
func NewClient(token, senderID string, opts ...Option) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errTokenRequired
	}
	senderID = strings.TrimSpace(senderID)
	if senderID == "" {
		return nil, errSenderIDRequired
	}

	client := &Client{
		token:      token,
		senderID:   senderID,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Configured reports whether the client can send at all.
func (c *Client) Configured() bool {
	return c != nil && c.token != "" && c.senderID != ""
}

// SendText delivers a plain text message and returns the provider message id.
func (c *Client) SendText(ctx context.Context, to, body string) (string, error) {
	if !c.Configured() {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "whatsapp client not configured")
	}
	to = NormalizePhone(to)
	if to == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "recipient phone is required")
	}
	if strings.TrimSpace(body) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "message body is required")
	}

	payload, err := json.Marshal(textMessage{
		MessagingProduct: messagingProduct,
		To:               to,
		Type:             "text",
		Text:             textBody{Body: body},
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal message")
	}

	endpoint := fmt.Sprintf("%s/%s/messages", strings.TrimRight(c.baseURL, "/"), url.PathEscape(c.senderID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build message request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute message request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "message request failed")
	}

	var apiResp struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode message response")
	}
	if len(apiResp.Messages) == 0 || apiResp.Messages[0].ID == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "message response missing id")
	}
	return apiResp.Messages[0].ID, nil
}

type textMessage struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type textBody struct {
	Body string `json:"body"`
}

// NormalizePhone strips everything but digits; the Cloud API expects E.164 without the plus.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
