package clients

import (
	"crypto/tls"
	"fmt"
	"net/smtp"

	"github.com/flowgrid/flowgrid/common/config"
)

// SMTPClient is the fallback mail transport for email nodes without a
// connected Gmail account.
type SMTPClient struct {
	cfg    config.SMTPConfig
	logger Logger
}

// NewSMTPClient creates an SMTP mail client
func NewSMTPClient(cfg config.SMTPConfig, logger Logger) *SMTPClient {
	return &SMTPClient{cfg: cfg, logger: logger}
}

// Configured reports whether an SMTP relay is set up
func (c *SMTPClient) Configured() bool {
	return c.cfg.Host != ""
}

// Send delivers the message through the configured relay
func (c *SMTPClient) Send(mail Mail) error {
	if !c.Configured() {
		return fmt.Errorf("smtp relay not configured")
	}

	from := mail.From
	if from == "" {
		from = c.cfg.From
	}
	mail.From = from

	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
	var auth smtp.Auth
	if c.cfg.User != "" && c.cfg.Pass != "" {
		auth = smtp.PlainAuth("", c.cfg.User, c.cfg.Pass, c.cfg.Host)
	}

	message := buildMIME(mail)

	// Port 465 expects an implicit TLS session rather than STARTTLS
	if c.cfg.Port == 465 {
		return c.sendTLS(addr, auth, from, mail.To, message)
	}

	if err := smtp.SendMail(addr, auth, from, []string{mail.To}, message); err != nil {
		c.logger.Error("smtp send failed", "host", c.cfg.Host, "error", err)
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

func (c *SMTPClient) sendTLS(addr string, auth smtp.Auth, from, to string, message []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: c.cfg.Host})
	if err != nil {
		return fmt.Errorf("smtp tls dial: %w", err)
	}

	client, err := smtp.NewClient(conn, c.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(message); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}

	return client.Quit()
}
