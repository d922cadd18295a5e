package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"path/filepath"

	"github.com/jhillyerd/enmime"
	gmailapi "google.golang.org/api/gmail/v1"
)

// SendMail sends a plain-text message with one file attachment through the
// Gmail API. The From header is overridden by Gmail with the authenticated
// account.
func (c *Client) SendMail(ctx context.Context, to, subject, bodyText, attachmentPath string) error {
	part, err := enmime.Builder().
		From("", userID).
		To("", to).
		Subject(subject).
		Text([]byte(bodyText)).
		AddFileAttachment(attachmentPath).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build outgoing message: %w", err)
	}

	var buf bytes.Buffer
	if err := part.Encode(&buf); err != nil {
		return fmt.Errorf("failed to encode outgoing message: %w", err)
	}

	msg := &gmailapi.Message{Raw: base64.URLEncoding.EncodeToString(buf.Bytes())}
	if _, err := c.svc.Users.Messages.Send(userID, msg).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}

	c.logger.Info("sent mail with attachment",
		"to", to,
		"subject", subject,
		"attachment", filepath.Base(attachmentPath),
	)
	return nil
}
