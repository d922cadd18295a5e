// Package gmail wraps the Gmail API with the operations the batch pipeline
// consumes: searching message IDs, fetching full message structures and
// attachment payloads, and sending the forward mail.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const userID = "me"

// Client is an authenticated Gmail API client.
type Client struct {
	svc    *gmailapi.Service
	logger *slog.Logger
}

// NewClient builds a client from installed-app OAuth2 credentials, reusing
// the stored token when one exists.
func NewClient(ctx context.Context, credentialsFile, tokenFile string, logger *slog.Logger) (*Client, error) {
	httpClient, err := newAuthenticatedClient(ctx, credentialsFile, tokenFile, logger)
	if err != nil {
		return nil, err
	}

	svc, err := gmailapi.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &Client{svc: svc, logger: logger}, nil
}

// ListMessageIDs returns the IDs of every message matching query, following
// pagination until the result set is exhausted.
func (c *Client) ListMessageIDs(ctx context.Context, query string, pageSize int64) ([]string, error) {
	var ids []string
	pageToken := ""
	for {
		call := c.svc.Users.Messages.List(userID).Q(query).MaxResults(pageSize).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list messages: %w", err)
		}
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			return ids, nil
		}
	}
}

// FetchMessage retrieves the full structure of one message: headers, internal
// date and the complete part tree.
func (c *Client) FetchMessage(ctx context.Context, id string) (*gmailapi.Message, error) {
	msg, err := c.svc.Users.Messages.Get(userID, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message %s: %w", id, err)
	}
	return msg, nil
}

// FetchAttachmentBytes downloads and decodes one attachment's raw bytes.
func (c *Client) FetchAttachmentBytes(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	att, err := c.svc.Users.Messages.Attachments.Get(userID, messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch attachment %s of message %s: %w", attachmentID, messageID, err)
	}

	data, err := decodeBase64URL(att.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode attachment %s of message %s: %w", attachmentID, messageID, err)
	}
	return data, nil
}

// decodeBase64URL decodes the URL-safe base64 Gmail returns, tolerating both
// padded and unpadded forms.
func decodeBase64URL(s string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	if b, err := base64.URLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.StdEncoding.DecodeString(s)
}
