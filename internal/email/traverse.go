package email

import (
	"strings"

	gmailapi "google.golang.org/api/gmail/v1"
)

// LeafParts walks the body tree rooted at root and returns every leaf part.
// A part is a container only when its media type is multipart/* and it has
// at least one child; a childless multipart container contributes nothing.
// The walk uses an explicit stack, so arbitrarily nested messages never
// exhaust the call stack. Order is deterministic per call but not document
// order.
func LeafParts(root *gmailapi.MessagePart) []*gmailapi.MessagePart {
	if root == nil {
		return nil
	}

	var leaves []*gmailapi.MessagePart
	stack := []*gmailapi.MessagePart{root}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if p == nil {
			continue
		}
		if strings.HasPrefix(p.MimeType, "multipart/") {
			stack = append(stack, p.Parts...)
			continue
		}
		leaves = append(leaves, p)
	}
	return leaves
}

// CountWithExtension reports how many leaves under root carry a filename with
// the given extension (no leading dot, case-insensitive). Used for log lines
// only; selection goes through SelectAttachments.
func CountWithExtension(root *gmailapi.MessagePart, ext string) int {
	suffix := "." + strings.ToLower(ext)
	n := 0
	for _, p := range LeafParts(root) {
		name := strings.ToLower(strings.TrimSpace(p.Filename))
		if strings.HasSuffix(name, suffix) {
			n++
		}
	}
	return n
}
