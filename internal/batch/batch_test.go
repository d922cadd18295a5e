package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/altafino/invoice-fetcher/internal/errorlog"
	"github.com/altafino/invoice-fetcher/internal/ledger"
	"github.com/altafino/invoice-fetcher/internal/lot"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

var aug15 = time.Date(2025, time.August, 15, 12, 0, 0, 0, time.UTC).UnixMilli()

type fakeSource struct {
	ids      []string
	messages map[string]*gmailapi.Message
	payloads map[string][]byte // keyed messageID:attachmentID
	fetched  []string
}

func (f *fakeSource) ListMessageIDs(ctx context.Context, query string, pageSize int64) ([]string, error) {
	return f.ids, nil
}

func (f *fakeSource) FetchMessage(ctx context.Context, id string) (*gmailapi.Message, error) {
	m, ok := f.messages[id]
	if !ok {
		return nil, fmt.Errorf("unknown message %s", id)
	}
	return m, nil
}

func (f *fakeSource) FetchAttachmentBytes(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	key := messageID + ":" + attachmentID
	f.fetched = append(f.fetched, key)
	data, ok := f.payloads[key]
	if !ok {
		return nil, fmt.Errorf("unknown attachment %s", key)
	}
	return data, nil
}

type fakeMailer struct {
	calls      int
	to         string
	subject    string
	body       string
	attachment string
}

func (m *fakeMailer) SendMail(ctx context.Context, to, subject, bodyText, attachmentPath string) error {
	m.calls++
	m.to = to
	m.subject = subject
	m.body = bodyText
	m.attachment = attachmentPath
	return nil
}

func pdfPart(filename, attachmentID string) *gmailapi.MessagePart {
	return &gmailapi.MessagePart{
		MimeType: "application/pdf",
		Filename: filename,
		Body:     &gmailapi.MessagePartBody{AttachmentId: attachmentID},
	}
}

func inlinePart(filename string) *gmailapi.MessagePart {
	return &gmailapi.MessagePart{
		MimeType: "application/pdf",
		Filename: filename,
		Body:     &gmailapi.MessagePartBody{Data: "aW5saW5l"},
	}
}

func invoiceMessage(id, subject, from string, parts ...*gmailapi.MessagePart) *gmailapi.Message {
	return &gmailapi.Message{
		Id:           id,
		InternalDate: aug15,
		Payload: &gmailapi.MessagePart{
			MimeType: "multipart/mixed",
			Headers: []*gmailapi.MessagePartHeader{
				{Name: "Subject", Value: subject},
				{Name: "From", Value: from},
			},
			Parts: parts,
		},
	}
}

type harness struct {
	src      *fakeSource
	mailer   *fakeMailer
	stateDir string
	baseDir  string
}

func newHarness(t *testing.T, src *fakeSource) *harness {
	t.Helper()
	return &harness{
		src:      src,
		mailer:   &fakeMailer{},
		stateDir: t.TempDir(),
		baseDir:  t.TempDir(),
	}
}

func defaultOptions() Options {
	return Options{
		Query:      "subject:(factura)",
		PageSize:   100,
		Extensions: []string{"pdf"},
		DateFrom:   "2025-08-01",
		DateTo:     "2025-08-31",
		Download:   true,
	}
}

// run wires a fresh ledger and lot the way the app layer does and executes
// one batch, so successive calls model successive real runs over the same
// state directory.
func (h *harness) run(t *testing.T, opts Options) Summary {
	t.Helper()
	lg := testLogger()

	var lt *lot.Lot
	lotDir := ""
	if opts.Download || opts.Zip || opts.Send {
		var err error
		lt, err = lot.Open(h.baseDir, opts.DateFrom, opts.DateTo, lg)
		require.NoError(t, err)
		lotDir = lt.Dir()
	}

	led, err := ledger.Open(filepath.Join(h.stateDir, "processed.jsonl"), lotDir, lg)
	require.NoError(t, err)
	anomalies := errorlog.NewFileLogger(filepath.Join(h.stateDir, "anomalies.jsonl"), lg)

	sum, err := New(h.src, h.mailer, led, lt, anomalies, lg, opts).Run(context.Background())
	require.NoError(t, err)
	return sum
}

func (h *harness) lotDir(opts Options) string {
	return filepath.Join(h.baseDir, "downloads", opts.DateFrom+"_"+opts.DateTo)
}

func savedFiles(t *testing.T, dir string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".pdf") {
			files = append(files, path)
		}
		return nil
	})
	require.NoError(t, err)
	return files
}

func TestRunSavesAttachmentsAndReport(t *testing.T) {
	src := &fakeSource{
		ids: []string{"msg1"},
		messages: map[string]*gmailapi.Message{
			"msg1": invoiceMessage("msg1", "Factura electronica", "Proveedor <ventas@proveedor.cl>",
				pdfPart("factura_90.pdf", "att1"),
				pdfPart("factura_91.pdf", "att2"),
			),
		},
		payloads: map[string][]byte{
			"msg1:att1": []byte("primer pdf"),
			"msg1:att2": []byte("segundo pdf"),
		},
	}
	h := newHarness(t, src)
	opts := defaultOptions()

	sum := h.run(t, opts)

	assert.Equal(t, 1, sum.Messages)
	assert.Equal(t, 2, sum.Candidates)
	assert.Equal(t, 2, sum.Saved)
	assert.Equal(t, 2, sum.PDFs)
	assert.Zero(t, sum.SkippedProcessed)
	assert.Zero(t, sum.DuplicateContent)

	files := savedFiles(t, h.lotDir(opts))
	require.Len(t, files, 2)
	for _, f := range files {
		assert.True(t, strings.HasPrefix(filepath.Base(f), "20250815_"), f)
	}

	report, err := os.ReadFile(sum.ReportPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(report)), "\n")
	assert.Len(t, lines, 3) // header plus one row per saved file
	assert.Contains(t, lines[1], "Proveedor <ventas@proveedor.cl>")
}

func TestRunSecondRunSkipsWithoutFetching(t *testing.T) {
	src := &fakeSource{
		ids: []string{"msg1"},
		messages: map[string]*gmailapi.Message{
			"msg1": invoiceMessage("msg1", "Factura", "ventas@proveedor.cl",
				pdfPart("factura.pdf", "att1"),
			),
		},
		payloads: map[string][]byte{"msg1:att1": []byte("contenido")},
	}
	h := newHarness(t, src)
	opts := defaultOptions()

	first := h.run(t, opts)
	require.Equal(t, 1, first.Saved)
	require.Len(t, src.fetched, 1)

	second := h.run(t, opts)
	assert.Zero(t, second.Saved)
	assert.Equal(t, 1, second.SkippedProcessed)
	assert.Len(t, src.fetched, 1, "already-processed attachments must be skipped before any fetch")

	files := savedFiles(t, h.lotDir(opts))
	assert.Len(t, files, 1)
}

func TestRunDeduplicatesIdenticalContent(t *testing.T) {
	same := []byte("mismo contenido de factura")
	src := &fakeSource{
		ids: []string{"msg1", "msg2"},
		messages: map[string]*gmailapi.Message{
			"msg1": invoiceMessage("msg1", "Factura original", "a@proveedor.cl",
				pdfPart("factura.pdf", "att1"),
			),
			"msg2": invoiceMessage("msg2", "Factura reenviada", "b@proveedor.cl",
				pdfPart("factura_copia.pdf", "att2"),
			),
		},
		payloads: map[string][]byte{
			"msg1:att1": same,
			"msg2:att2": same,
		},
	}
	h := newHarness(t, src)
	opts := defaultOptions()

	sum := h.run(t, opts)

	assert.Equal(t, 1, sum.Saved)
	assert.Equal(t, 1, sum.DuplicateContent)
	assert.Len(t, savedFiles(t, h.lotDir(opts)), 1)

	// Both keys are recorded as processed, so the duplicate is not
	// re-fetched on the next run either.
	led, err := ledger.Open(filepath.Join(h.stateDir, "processed.jsonl"), "", testLogger())
	require.NoError(t, err)
	assert.True(t, led.AlreadyProcessed(ledger.Key("msg1", "att1")))
	assert.True(t, led.AlreadyProcessed(ledger.Key("msg2", "att2")))
}

func TestRunRecordsInlineSkips(t *testing.T) {
	src := &fakeSource{
		ids: []string{"msg1"},
		messages: map[string]*gmailapi.Message{
			"msg1": invoiceMessage("msg1", "Factura", "ventas@proveedor.cl",
				inlinePart("incrustada.pdf"),
				pdfPart("normal.pdf", "att1"),
			),
		},
		payloads: map[string][]byte{"msg1:att1": []byte("normal")},
	}
	h := newHarness(t, src)

	sum := h.run(t, defaultOptions())

	assert.Equal(t, 1, sum.Candidates)
	assert.Equal(t, 1, sum.Saved)

	anomalies, err := os.ReadFile(filepath.Join(h.stateDir, "anomalies.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(anomalies), errorlog.KindInlineSkipped)
	assert.Contains(t, string(anomalies), "incrustada.pdf")
}

func TestRunRecordsHeaderFallbacks(t *testing.T) {
	headerless := &gmailapi.Message{
		Id:           "msg1",
		InternalDate: aug15,
		Payload: &gmailapi.MessagePart{
			MimeType: "multipart/mixed",
			Parts:    []*gmailapi.MessagePart{pdfPart("factura.pdf", "att1")},
		},
	}
	src := &fakeSource{
		ids:      []string{"msg1"},
		messages: map[string]*gmailapi.Message{"msg1": headerless},
		payloads: map[string][]byte{"msg1:att1": []byte("contenido")},
	}
	h := newHarness(t, src)

	sum := h.run(t, defaultOptions())
	assert.Equal(t, 1, sum.Saved)

	anomalies, err := os.ReadFile(filepath.Join(h.stateDir, "anomalies.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(anomalies), errorlog.KindHeaderFallback)
	assert.Contains(t, string(anomalies), "missing Subject header")
	assert.Contains(t, string(anomalies), "missing From header")
}

func TestRunNoFolderWhenEverythingSkipped(t *testing.T) {
	src := &fakeSource{
		ids: []string{"msg1"},
		messages: map[string]*gmailapi.Message{
			"msg1": invoiceMessage("msg1", "Factura", "ventas@proveedor.cl",
				pdfPart("factura.pdf", "att1"),
			),
		},
		payloads: map[string][]byte{"msg1:att1": []byte("contenido")},
	}
	h := newHarness(t, src)
	opts := defaultOptions()

	// Seed the processed store so the only attachment is skipped up front.
	require.NoError(t, os.WriteFile(
		filepath.Join(h.stateDir, "processed.jsonl"),
		[]byte(`{"key":"msg1:att1"}`+"\n"),
		0644,
	))

	sum := h.run(t, opts)
	assert.Zero(t, sum.Saved)
	assert.Equal(t, 1, sum.SkippedProcessed)

	entries, err := os.ReadDir(h.lotDir(opts))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, e.IsDir(), "no message folder may be created when nothing is saved")
	}
}

func TestRunWithoutDownloadFetchesNothing(t *testing.T) {
	src := &fakeSource{
		ids: []string{"msg1"},
		messages: map[string]*gmailapi.Message{
			"msg1": invoiceMessage("msg1", "Factura", "ventas@proveedor.cl",
				pdfPart("factura.pdf", "att1"),
			),
		},
		payloads: map[string][]byte{"msg1:att1": []byte("contenido")},
	}
	h := newHarness(t, src)
	opts := defaultOptions()
	opts.Download = false

	sum := h.run(t, opts)

	assert.Equal(t, 1, sum.Messages)
	assert.Equal(t, 1, sum.Candidates)
	assert.Zero(t, sum.Saved)
	assert.Empty(t, src.fetched)
	assert.Empty(t, sum.ReportPath)
}

func TestRunSendForwardsArchive(t *testing.T) {
	src := &fakeSource{
		ids: []string{"msg1"},
		messages: map[string]*gmailapi.Message{
			"msg1": invoiceMessage("msg1", "Factura", "ventas@proveedor.cl",
				pdfPart("factura.pdf", "att1"),
			),
		},
		payloads: map[string][]byte{"msg1:att1": []byte("contenido")},
	}
	h := newHarness(t, src)
	opts := defaultOptions()
	opts.Zip = true
	opts.Send = true
	opts.ForwardTo = "contadora@estudio.cl"
	opts.SubjectPrefix = "Facturas"

	sum := h.run(t, opts)

	require.NotEmpty(t, sum.ArchivePath)
	_, err := os.Stat(sum.ArchivePath)
	require.NoError(t, err)

	assert.Equal(t, 1, h.mailer.calls)
	assert.Equal(t, "contadora@estudio.cl", h.mailer.to)
	assert.Equal(t, "Facturas del 2025-08-01 al 2025-08-31", h.mailer.subject)
	assert.Equal(t, sum.ArchivePath, h.mailer.attachment)
}

func TestRunSendWithoutAddressFails(t *testing.T) {
	src := &fakeSource{ids: nil, messages: map[string]*gmailapi.Message{}, payloads: map[string][]byte{}}
	h := newHarness(t, src)
	opts := defaultOptions()
	opts.Zip = true
	opts.Send = true

	lg := testLogger()
	lt, err := lot.Open(h.baseDir, opts.DateFrom, opts.DateTo, lg)
	require.NoError(t, err)
	led, err := ledger.Open(filepath.Join(h.stateDir, "processed.jsonl"), lt.Dir(), lg)
	require.NoError(t, err)
	anomalies := errorlog.NewFileLogger(filepath.Join(h.stateDir, "anomalies.jsonl"), lg)

	_, err = New(src, h.mailer, led, lt, anomalies, lg, opts).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forward address")
	assert.Zero(t, h.mailer.calls)
}
