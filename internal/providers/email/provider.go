package email

import "context"

// Attachment is a file carried inline with a message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Provider sends a message with an HTML body and a plain-text alternative.
// An empty textBody sends the HTML part alone.
type Provider interface {
	Send(ctx context.Context, to []string, subject, htmlBody, textBody string, attachments ...Attachment) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, to []string, subject, htmlBody, textBody string, attachments ...Attachment) error {
	return nil
}
