package mail

import (
	"bytes"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var smtpConnectTimeout = 5 * time.Second

// Message is one outgoing email. AttachmentPath, when set, is attached as a
// text/plain part.
type Message struct {
	To             []string
	Subject        string
	Body           string
	AttachmentPath string
}

// Transport delivers a message. Errors are transport-level and opaque to the
// dispatcher.
type Transport interface {
	Send(msg Message) error
}

type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	Sender     string
	SenderName string
	UseTLS     bool // STARTTLS after plain connect
	UseSSL     bool // implicit TLS
	SkipVerify bool
}

// Configured reports whether the transport has enough settings to deliver.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.Sender != ""
}

func (c SMTPConfig) fromHeader() string {
	if c.SenderName != "" {
		return fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", c.SenderName), c.Sender)
	}
	return c.Sender
}

type SMTPTransport struct {
	cfg SMTPConfig
}

func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	return &SMTPTransport{cfg: cfg}
}

func (t *SMTPTransport) Send(msg Message) error {
	if !t.cfg.Configured() {
		return errors.New("smtp transport is not configured")
	}
	if len(msg.To) == 0 {
		return errors.New("no recipients")
	}

	payload, err := buildMessage(t.cfg.fromHeader(), msg)
	if err != nil {
		return err
	}

	cn, err := t.connect()
	if err != nil {
		return err
	}
	defer cn.Close()

	if err := cn.Mail(t.cfg.Sender); err != nil {
		return fmt.Errorf("MAIL FROM rejected: %w", err)
	}
	for _, addr := range msg.To {
		if err := cn.Rcpt(addr); err != nil {
			return fmt.Errorf("recipient %s rejected: %w", addr, err)
		}
	}
	wr, err := cn.Data()
	if err != nil {
		return err
	}
	if _, err := wr.Write(payload); err != nil {
		return err
	}
	if err := wr.Close(); err != nil {
		return err
	}
	return cn.Quit()
}

func (t *SMTPTransport) connect() (*smtp.Client, error) {
	addr := net.JoinHostPort(t.cfg.Host, fmt.Sprintf("%d", t.cfg.Port))
	tlsCfg := &tls.Config{
		ServerName:         t.cfg.Host,
		InsecureSkipVerify: t.cfg.SkipVerify,
	}

	var cn *smtp.Client
	if t.cfg.UseSSL {
		conn, err := tls.DialWithDialer(&net.Dialer{Timeout: smtpConnectTimeout}, "tcp", addr, tlsCfg)
		if err != nil {
			return nil, fmt.Errorf("connect to SMTP server: %w", err)
		}
		cn, err = smtp.NewClient(conn, t.cfg.Host)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("create SMTP client: %w", err)
		}
	} else {
		conn, err := net.DialTimeout("tcp", addr, smtpConnectTimeout)
		if err != nil {
			return nil, fmt.Errorf("connect to SMTP server: %w", err)
		}
		cn, err = smtp.NewClient(conn, t.cfg.Host)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("create SMTP client: %w", err)
		}
		if t.cfg.UseTLS {
			if err := cn.StartTLS(tlsCfg); err != nil {
				cn.Close()
				return nil, fmt.Errorf("StartTLS with SMTP server: %w", err)
			}
		}
	}

	if t.cfg.Username != "" || t.cfg.Password != "" {
		auth := smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)
		if err := cn.Auth(auth); err != nil {
			cn.Close()
			return nil, fmt.Errorf("smtp auth: %w", err)
		}
	}
	return cn, nil
}

func buildMessage(from string, msg Message) ([]byte, error) {
	var buf bytes.Buffer

	writeHeader := func(k, v string) {
		fmt.Fprintf(&buf, "%s: %s\r\n", k, v)
	}
	writeHeader("From", from)
	writeHeader("To", strings.Join(msg.To, ", "))
	writeHeader("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	writeHeader("MIME-Version", "1.0")
	writeHeader("Date", time.Now().Format(time.RFC1123Z))

	if msg.AttachmentPath == "" {
		writeHeader("Content-Type", `text/plain; charset="utf-8"`)
		buf.WriteString("\r\n")
		buf.WriteString(msg.Body)
		return buf.Bytes(), nil
	}

	attachment, err := os.ReadFile(msg.AttachmentPath)
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}

	const boundary = "spal-transcriberd-boundary"
	writeHeader("Content-Type", fmt.Sprintf(`multipart/mixed; boundary=%q`, boundary))
	buf.WriteString("\r\n")

	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	buf.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	buf.WriteString(msg.Body)
	buf.WriteString("\r\n")

	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	buf.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	buf.WriteString("Content-Transfer-Encoding: base64\r\n")
	fmt.Fprintf(&buf, "Content-Disposition: attachment; filename=%q\r\n\r\n", filepath.Base(msg.AttachmentPath))

	encoded := base64.StdEncoding.EncodeToString(attachment)
	for len(encoded) > 0 {
		n := min(76, len(encoded))
		buf.WriteString(encoded[:n])
		buf.WriteString("\r\n")
		encoded = encoded[n:]
	}
	fmt.Fprintf(&buf, "--%s--\r\n", boundary)

	return buf.Bytes(), nil
}
