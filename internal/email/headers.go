package email

import (
	"strings"

	gmailapi "google.golang.org/api/gmail/v1"
)

// Headers provides case-insensitive lookup over a message's header list.
// It is built once per message; later duplicates of a header name win,
// matching Gmail's own ordering.
type Headers map[string]string

// NewHeaders builds a Headers map from a raw Gmail header list.
func NewHeaders(hs []*gmailapi.MessagePartHeader) Headers {
	h := make(Headers, len(hs))
	for _, hd := range hs {
		if hd == nil || hd.Name == "" {
			continue
		}
		h[strings.ToLower(hd.Name)] = hd.Value
	}
	return h
}

// HeadersOf builds a Headers map from a message's root payload.
func HeadersOf(msg *gmailapi.Message) Headers {
	if msg == nil || msg.Payload == nil {
		return Headers{}
	}
	return NewHeaders(msg.Payload.Headers)
}

// Get returns the value of the named header, or def when absent.
func (h Headers) Get(name, def string) string {
	if v, ok := h[strings.ToLower(name)]; ok {
		return v
	}
	return def
}
