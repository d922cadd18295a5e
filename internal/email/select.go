package email

import (
	"strings"

	gmailapi "google.golang.org/api/gmail/v1"
)

// Attachment is one downloadable attachment candidate on a message.
type Attachment struct {
	Filename     string
	AttachmentID string
	Data         []byte // populated only after fetch
}

// SelectAttachments filters leaf parts down to retrievable attachments: the
// trimmed filename must be non-empty and carry one of the accepted extensions
// (no leading dot, case-insensitive), and the part body must reference a
// server-side attachment. Parts that match by name but lack an attachment
// reference are inline-encoded and cannot be fetched; their filenames are
// returned separately so the caller can record the skip.
func SelectAttachments(parts []*gmailapi.MessagePart, exts []string) (selected []Attachment, inlineSkipped []string) {
	for _, p := range parts {
		if p == nil {
			continue
		}
		name := strings.TrimSpace(p.Filename)
		if name == "" || !hasExtension(name, exts) {
			continue
		}
		if p.Body == nil || p.Body.AttachmentId == "" {
			inlineSkipped = append(inlineSkipped, name)
			continue
		}
		selected = append(selected, Attachment{
			Filename:     name,
			AttachmentID: p.Body.AttachmentId,
		})
	}
	return selected, inlineSkipped
}

func hasExtension(name string, exts []string) bool {
	lower := strings.ToLower(name)
	for _, e := range exts {
		suffix := "." + strings.ToLower(strings.TrimPrefix(e, "."))
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}
