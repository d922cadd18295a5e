package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
	gmailapi "google.golang.org/api/gmail/v1"
)

func TestHeadersCaseInsensitiveLookup(t *testing.T) {
	h := NewHeaders([]*gmailapi.MessagePartHeader{
		{Name: "Subject", Value: "Factura 001"},
		{Name: "FROM", Value: "Proveedor <prov@example.com>"},
	})

	assert.Equal(t, "Factura 001", h.Get("subject", ""))
	assert.Equal(t, "Factura 001", h.Get("SUBJECT", ""))
	assert.Equal(t, "Proveedor <prov@example.com>", h.Get("From", ""))
}

func TestHeadersDefaultValue(t *testing.T) {
	h := NewHeaders(nil)
	assert.Equal(t, "(sin asunto)", h.Get("Subject", "(sin asunto)"))
}

func TestHeadersOfNilMessage(t *testing.T) {
	assert.Equal(t, "fallback", HeadersOf(nil).Get("Subject", "fallback"))
	assert.Equal(t, "fallback", HeadersOf(&gmailapi.Message{}).Get("Subject", "fallback"))
}
