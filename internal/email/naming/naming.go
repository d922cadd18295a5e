// Package naming derives deterministic, filesystem-safe names for the files
// and folders a batch produces from message metadata.
package naming

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/altafino/invoice-fetcher/internal/email"
)

const (
	fallbackUnknown = "desconocido"
	fallbackSubject = "sin_asunto"
	fallbackSender  = "remitente"

	// DefaultSubject and DefaultSender replace missing headers wherever a
	// human-readable value is needed.
	DefaultSubject = "(sin asunto)"
	DefaultSender  = "(sin remitente)"

	subjectMaxRunes = 40
	idSuffixLen     = 8
)

var accentReplacer = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u",
	"Á", "A", "É", "E", "Í", "I", "Ó", "O", "Ú", "U",
	"ñ", "n", "Ñ", "N",
)

var (
	displayNameRe = regexp.MustCompile(`^"?([^"<]+?)"?\s*<`)
	localPartRe   = regexp.MustCompile(`([^@<\s]+)@`)
)

// Sanitize makes text safe for file and folder names: accented vowels and ñ
// are transliterated, anything that is not a letter, digit, underscore,
// whitespace, period or hyphen is dropped, whitespace runs collapse to a
// single underscore, and edge underscores are trimmed. An empty result falls
// back to "desconocido".
func Sanitize(text string) string {
	out := sanitizeCore(text)
	if out == "" {
		return fallbackUnknown
	}
	return out
}

func sanitizeCore(text string) string {
	text = accentReplacer.Replace(text)

	var b strings.Builder
	pendingSep := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			pendingSep = true
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.' || r == '-':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "_")
}

// MessageFolderName builds the per-message output folder name:
// YYYYMMDD_<sanitized subject, first 40 runes>_<last 8 chars of message ID>.
func MessageFolderName(msg *gmailapi.Message) string {
	subject := email.HeadersOf(msg).Get("Subject", DefaultSubject)
	clean := truncateRunes(sanitizeCore(subject), subjectMaxRunes)
	if clean == "" {
		clean = fallbackSubject
	}

	id := msg.Id
	if len(id) > idSuffixLen {
		id = id[len(id)-idSuffixLen:]
	}

	return fmt.Sprintf("%s_%s_%s", dateStamp(msg.InternalDate), clean, id)
}

// StandardFilename builds the saved attachment name:
// YYYYMMDD_<sender token>_<original filename>, sanitized as a whole. Periods
// survive sanitization, so the original extension is preserved.
func StandardFilename(msg *gmailapi.Message, originalFilename string) string {
	from := email.HeadersOf(msg).Get("From", "")
	base := fmt.Sprintf("%s_%s_%s", dateStamp(msg.InternalDate), SenderToken(from), originalFilename)
	return Sanitize(base)
}

// SenderToken extracts a short sender name from a From header: the display
// name before "<" when present, otherwise the local part before "@",
// otherwise "remitente".
func SenderToken(from string) string {
	if from == "" {
		return fallbackSender
	}
	if m := displayNameRe.FindStringSubmatch(from); m != nil {
		return Sanitize(m[1])
	}
	if m := localPartRe.FindStringSubmatch(from); m != nil {
		return Sanitize(m[1])
	}
	return fallbackSender
}

// ResolveCollision returns a path under dir that does not collide with an
// existing file, inserting an incrementing suffix (2), (3), ... before the
// extension when needed. Only a successful stat counts as a collision; an
// unreadable path is returned as-is so the subsequent write surfaces the real
// error. The check-then-use sequence assumes a single writer per lot
// directory.
func ResolveCollision(dir, filename string) string {
	path := filepath.Join(dir, filename)
	if _, err := os.Stat(path); err != nil {
		return path
	}

	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	for i := 2; ; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s(%d)%s", stem, i, ext))
		if _, err := os.Stat(candidate); err != nil {
			return candidate
		}
	}
}

// dateStamp converts a Gmail internal date (milliseconds since epoch) to a
// UTC YYYYMMDD stamp. A missing date yields the epoch stamp 19700101.
func dateStamp(internalMillis int64) string {
	return time.UnixMilli(internalMillis).UTC().Format("20060102")
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
