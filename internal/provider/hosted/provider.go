// Package hosted sends through a hosted WhatsApp HTTP API that owns the
// session itself.
package hosted

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/LeventeLantos/boleto-reminder/internal/channel"
)

type Provider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func New(baseURL, apiKey string) *Provider {
	return &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type sendRequest struct {
	PhoneNumber string          `json:"phoneNumber"`
	Message     string          `json:"message"`
	Attachment  *attachmentBody `json:"attachment,omitempty"`
}

type attachmentBody struct {
	FileName string `json:"fileName"`
	Base64   string `json:"base64"`
}

type sendResponse struct {
	Message   string `json:"message"`
	MessageID string `json:"messageId"`
}

type statusResponse struct {
	Connected bool `json:"connected"`
}

func (p *Provider) Name() string          { return "hosted" }
func (p *Provider) AddressSuffix() string { return "" }

// Open probes the API status endpoint. The hosted side keeps its own session,
// so there is never a challenge to scan.
func (p *Provider) Open(ctx context.Context, sink channel.EventSink) error {
	req, err := p.newRequest(ctx, http.MethodGet, "/status", nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(body))
	}

	var sr statusResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return fmt.Errorf("failed to decode json: %w body=%q", err, string(body))
	}
	if !sr.Connected {
		return fmt.Errorf("hosted session not connected")
	}

	sink(channel.Event{Kind: channel.EventConnected})
	return nil
}

func (p *Provider) Send(ctx context.Context, msg channel.Message) (string, error) {
	payload := sendRequest{
		PhoneNumber: msg.To,
		Message:     msg.Body,
	}
	if msg.Attachment != nil {
		payload.Attachment = &attachmentBody{
			FileName: msg.Attachment.Name,
			Base64:   base64.StdEncoding.EncodeToString(msg.Attachment.Data),
		}
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := p.newRequest(ctx, http.MethodPost, "/messages", bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(body))
	}

	var sr sendResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", fmt.Errorf("failed to decode json: %w body=%q", err, string(body))
	}
	if sr.MessageID == "" {
		return "", fmt.Errorf("missing messageId in response body=%q", string(body))
	}

	return sr.MessageID, nil
}

func (p *Provider) Close() {
	p.client.CloseIdleConnections()
}

// Logout is a no-op: the hosted account is managed on the provider side.
func (p *Provider) Logout(context.Context) error { return nil }

func (p *Provider) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	return req, nil
}
