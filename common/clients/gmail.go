package clients

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultGmailBaseURL = "https://gmail.googleapis.com"

// GmailClient sends mail through the Gmail REST API on behalf of a
// connected account.
type GmailClient struct {
	BaseURL string // overridable for tests

	http   *http.Client
	logger Logger
}

// NewGmailClient creates a Gmail API client
func NewGmailClient(logger Logger) *GmailClient {
	return &GmailClient{
		BaseURL: defaultGmailBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// Mail is an outbound message. Text is required; HTML is optional and
// sent as the preferred alternative when present.
type Mail struct {
	From    string
	To      string
	Subject string
	Text    string
	HTML    string
}

// Send submits the message via the users.messages.send endpoint
func (c *GmailClient) Send(ctx context.Context, accessToken string, mail Mail) (string, error) {
	raw := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(buildMIME(mail))

	payload, err := json.Marshal(map[string]string{"raw": raw})
	if err != nil {
		return "", fmt.Errorf("marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/gmail/v1/users/me/messages/send", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("send gmail request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read gmail response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("gmail send rejected",
			"status", resp.StatusCode,
			"body", string(body))
		return "", &UpstreamError{Service: "gmail", Status: resp.StatusCode, Body: string(body)}
	}

	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode gmail response: %w", err)
	}

	return parsed.ID, nil
}

// buildMIME renders an RFC 2822 message. When HTML is present the body
// is multipart/alternative with the plain-text part first.
func buildMIME(mail Mail) []byte {
	var b strings.Builder

	writeHeader := func(key, value string) {
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\r\n")
	}

	writeHeader("From", mail.From)
	writeHeader("To", mail.To)
	writeHeader("Subject", mail.Subject)
	writeHeader("MIME-Version", "1.0")

	if mail.HTML == "" {
		writeHeader("Content-Type", `text/plain; charset="UTF-8"`)
		b.WriteString("\r\n")
		b.WriteString(mail.Text)
		return []byte(b.String())
	}

	const boundary = "flowgrid-mail-boundary"
	writeHeader("Content-Type", fmt.Sprintf(`multipart/alternative; boundary="%s"`, boundary))
	b.WriteString("\r\n")

	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(mail.Text)
	b.WriteString("\r\n")

	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(mail.HTML)
	b.WriteString("\r\n")

	b.WriteString("--" + boundary + "--\r\n")

	return []byte(b.String())
}
