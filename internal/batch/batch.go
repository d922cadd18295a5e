// Package batch orchestrates one run: list matching messages, walk each part
// tree, select candidate attachments, dedup against the ledger, fetch,
// persist, and finish the lot's report, archive and forward mail.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/altafino/invoice-fetcher/internal/email"
	"github.com/altafino/invoice-fetcher/internal/email/naming"
	"github.com/altafino/invoice-fetcher/internal/errorlog"
	"github.com/altafino/invoice-fetcher/internal/ledger"
	"github.com/altafino/invoice-fetcher/internal/lot"
	"github.com/altafino/invoice-fetcher/internal/utility/u_hash"
)

// Source lists and fetches messages and attachment payloads.
type Source interface {
	ListMessageIDs(ctx context.Context, query string, pageSize int64) ([]string, error)
	FetchMessage(ctx context.Context, id string) (*gmailapi.Message, error)
	FetchAttachmentBytes(ctx context.Context, messageID, attachmentID string) ([]byte, error)
}

// Mailer forwards the finished archive.
type Mailer interface {
	SendMail(ctx context.Context, to, subject, bodyText, attachmentPath string) error
}

// Options controls one run's query and side effects.
type Options struct {
	Query      string
	PageSize   int64
	Extensions []string
	DateFrom   string // YYYY-MM-DD, for the forward mail text
	DateTo     string

	Download bool
	Zip      bool
	Send     bool

	ForwardTo     string
	SubjectPrefix string
}

// Summary aggregates counters for one completed run.
type Summary struct {
	Messages         int
	Candidates       int
	Saved            int
	SkippedProcessed int
	DuplicateContent int
	PDFs             int
	ReportPath       string
	ArchivePath      string
}

// Assembler drives one batch run. Messages are processed strictly one at a
// time, attachments within a message one at a time, in selection order.
type Assembler struct {
	source    Source
	mailer    Mailer
	ledger    *ledger.Ledger
	lot       *lot.Lot // nil when no output flag is set
	anomalies *errorlog.FileLogger
	logger    *slog.Logger
	opts      Options
}

// New creates an assembler. lt may be nil when the run produces no output.
func New(source Source, mailer Mailer, led *ledger.Ledger, lt *lot.Lot, anomalies *errorlog.FileLogger, logger *slog.Logger, opts Options) *Assembler {
	return &Assembler{
		source:    source,
		mailer:    mailer,
		ledger:    led,
		lot:       lt,
		anomalies: anomalies,
		logger:    logger,
		opts:      opts,
	}
}

// Run executes the batch. Collaborator failures abort the run; malformed
// message metadata is recovered via fallback values and never fatal.
func (a *Assembler) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	ids, err := a.source.ListMessageIDs(ctx, a.opts.Query, a.opts.PageSize)
	if err != nil {
		return sum, fmt.Errorf("failed to search messages: %w", err)
	}
	sum.Messages = len(ids)
	a.logger.Info("messages found", "count", len(ids))

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if err := a.processMessage(ctx, id, i+1, len(ids), &sum); err != nil {
			return sum, err
		}
	}

	if err := a.ledger.Flush(); err != nil {
		return sum, err
	}

	if err := a.finishLot(ctx, &sum); err != nil {
		return sum, err
	}

	a.logger.Info("batch finished",
		"messages", sum.Messages,
		"saved", sum.Saved,
		"skipped_processed", sum.SkippedProcessed,
		"duplicate_content", sum.DuplicateContent,
		"total_pdfs", sum.PDFs,
	)
	return sum, nil
}

func (a *Assembler) processMessage(ctx context.Context, id string, index, total int, sum *Summary) error {
	msg, err := a.source.FetchMessage(ctx, id)
	if err != nil {
		return err
	}

	hdrs := email.HeadersOf(msg)
	subject := hdrs.Get("Subject", naming.DefaultSubject)
	from := hdrs.Get("From", naming.DefaultSender)
	if subject == naming.DefaultSubject {
		a.anomalies.Record(errorlog.Entry{
			MessageID: id,
			Kind:      errorlog.KindHeaderFallback,
			Detail:    "missing Subject header",
		})
	}
	if from == naming.DefaultSender {
		a.anomalies.Record(errorlog.Entry{
			MessageID: id,
			Kind:      errorlog.KindHeaderFallback,
			Detail:    "missing From header",
		})
	}

	pdfs := email.CountWithExtension(msg.Payload, "pdf")
	sum.PDFs += pdfs
	a.logger.Info("processing message",
		"index", fmt.Sprintf("%d/%d", index, total),
		"pdfs", pdfs,
		"from", from,
		"subject", subject,
	)

	candidates, inline := email.SelectAttachments(email.LeafParts(msg.Payload), a.opts.Extensions)
	sum.Candidates += len(candidates)
	for _, name := range inline {
		a.logger.Debug("skipping inline attachment without reference",
			"message_id", id,
			"filename", name,
		)
		a.anomalies.Record(errorlog.Entry{
			MessageID: id,
			Filename:  name,
			Kind:      errorlog.KindInlineSkipped,
		})
	}

	if a.lot == nil || !a.opts.Download || len(candidates) == 0 {
		return nil
	}

	// The message folder is created lazily, when the first attachment of
	// this message is actually about to be saved.
	msgDir := ""
	for _, att := range candidates {
		key := ledger.Key(id, att.AttachmentID)
		if a.ledger.AlreadyProcessed(key) {
			sum.SkippedProcessed++
			a.logger.Info("skipping attachment, already processed",
				"message_id", id,
				"filename", att.Filename,
			)
			continue
		}

		data, err := a.source.FetchAttachmentBytes(ctx, id, att.AttachmentID)
		if err != nil {
			return err
		}

		fingerprint := u_hash.SumHex(data)
		if a.ledger.SeenHash(fingerprint) {
			sum.DuplicateContent++
			a.logger.Info("skipping attachment, identical content already saved in this lot",
				"message_id", id,
				"filename", att.Filename,
			)
			a.ledger.MarkProcessed(key)
			continue
		}

		if msgDir == "" {
			msgDir, err = a.lot.MessageDir(naming.MessageFolderName(msg))
			if err != nil {
				return err
			}
		}

		stdName := naming.StandardFilename(msg, att.Filename)
		path, err := a.lot.SaveAttachment(msgDir, stdName, data)
		if err != nil {
			return err
		}

		a.ledger.RecordHash(fingerprint)
		a.lot.AppendRow(lot.Row{
			Fecha:        stdName[:8], // leading YYYYMMDD stamp
			Remitente:    from,
			Asunto:       subject,
			ArchivoLocal: path,
			MessageID:    id,
			AttachmentID: att.AttachmentID,
		})
		a.ledger.MarkProcessed(key)
		sum.Saved++
		a.logger.Info("saved attachment", "path", path)
	}

	return nil
}

func (a *Assembler) finishLot(ctx context.Context, sum *Summary) error {
	if a.lot == nil {
		return nil
	}

	if a.opts.Download {
		reportPath, err := a.lot.WriteReport()
		if err != nil {
			return err
		}
		if reportPath != "" {
			sum.ReportPath = reportPath
			a.logger.Info("report written", "path", reportPath)
		}
	}

	if a.opts.Zip || a.opts.Send {
		zipPath, err := a.lot.Archive()
		if err != nil {
			return err
		}
		sum.ArchivePath = zipPath
		a.logger.Info("archive created", "path", zipPath)
	}

	if a.opts.Send {
		if a.opts.ForwardTo == "" {
			return errors.New("forward address is not configured")
		}
		subject := fmt.Sprintf("%s del %s al %s", a.opts.SubjectPrefix, a.opts.DateFrom, a.opts.DateTo)
		body := fmt.Sprintf(
			"Adjunto ZIP con las facturas del %s al %s.\n\nCarpeta de lote: %s\n",
			a.opts.DateFrom, a.opts.DateTo, a.lot.Dir(),
		)
		if err := a.mailer.SendMail(ctx, a.opts.ForwardTo, subject, body, sum.ArchivePath); err != nil {
			return fmt.Errorf("failed to forward archive: %w", err)
		}
	}

	return nil
}
