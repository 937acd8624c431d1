package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPProvider struct {
	cfg Config
}

func NewSMTP(cfg Config) *SMTPProvider {
	return &SMTPProvider{cfg: cfg}
}

func (p *SMTPProvider) Send(ctx context.Context, to []string, subject, htmlBody, textBody string, attachments ...Attachment) error {
	if len(to) == 0 {
		return fmt.Errorf("no recipients")
	}

	auth := smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)

	msg, err := p.buildMessage(to, subject, htmlBody, textBody, attachments)
	if err != nil {
		return err
	}
	return smtp.SendMail(addr, auth, p.cfg.From, to, msg)
}

func (p *SMTPProvider) buildMessage(to []string, subject, htmlBody, textBody string, attachments []Attachment) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", p.cfg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	buf.WriteString("MIME-Version: 1.0\r\n")

	if len(attachments) == 0 {
		if textBody == "" {
			buf.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
			buf.WriteString(htmlBody)
			return buf.Bytes(), nil
		}
		body, err := buildAlternative(htmlBody, textBody)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&buf, "Content-Type: %s\r\n\r\n", body.contentType)
		buf.Write(body.content)
		return buf.Bytes(), nil
	}

	writer := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", writer.Boundary())

	if err := writeBodyPart(writer, htmlBody, textBody); err != nil {
		return nil, err
	}

	for _, att := range attachments {
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		part, err := writer.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {contentType},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", att.Filename)},
		})
		if err != nil {
			return nil, err
		}
		encoded := base64.StdEncoding.EncodeToString(att.Content)
		for len(encoded) > 0 {
			n := 76
			if n > len(encoded) {
				n = len(encoded)
			}
			if _, err := part.Write([]byte(encoded[:n] + "\r\n")); err != nil {
				return nil, err
			}
			encoded = encoded[n:]
		}
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type bodyPart struct {
	contentType string
	content     []byte
}

// buildAlternative renders the plain-text and HTML bodies as a
// multipart/alternative group, plain text first so readers fall back to it
// last.
func buildAlternative(htmlBody, textBody string) (*bodyPart, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	text, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=\"UTF-8\""},
	})
	if err != nil {
		return nil, err
	}
	if _, err := text.Write([]byte(textBody)); err != nil {
		return nil, err
	}

	html, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/html; charset=\"UTF-8\""},
	})
	if err != nil {
		return nil, err
	}
	if _, err := html.Write([]byte(htmlBody)); err != nil {
		return nil, err
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}
	return &bodyPart{
		contentType: fmt.Sprintf("multipart/alternative; boundary=%q", writer.Boundary()),
		content:     buf.Bytes(),
	}, nil
}

func writeBodyPart(writer *multipart.Writer, htmlBody, textBody string) error {
	if textBody == "" {
		body, err := writer.CreatePart(textproto.MIMEHeader{
			"Content-Type": {"text/html; charset=\"UTF-8\""},
		})
		if err != nil {
			return err
		}
		_, err = body.Write([]byte(htmlBody))
		return err
	}

	alt, err := buildAlternative(htmlBody, textBody)
	if err != nil {
		return err
	}
	part, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {alt.contentType},
	})
	if err != nil {
		return err
	}
	_, err = part.Write(alt.content)
	return err
}
