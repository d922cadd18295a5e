// Package lot manages the on-disk output of one date-range run: the lot
// directory, per-message subfolders, saved attachments, the CSV report and
// the final archive.
package lot

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/altafino/invoice-fetcher/internal/email/naming"
)

const reportName = "reporte.csv"

var reportHeader = []string{"fecha", "remitente", "asunto", "archivo_local", "messageId", "attachmentId"}

// Row is one line of the lot's tabular report.
type Row struct {
	Fecha        string
	Remitente    string
	Asunto       string
	ArchivoLocal string
	MessageID    string
	AttachmentID string
}

// Lot is the output directory for one date-range run. It buffers report rows
// in memory; WriteReport appends them in one pass at the end of the batch.
type Lot struct {
	dir    string
	logger *slog.Logger
	rows   []Row
}

// Open creates (if needed) the lot directory for the given date range, e.g.
// data/downloads/2025-08-01_2025-08-31. Lots are never deleted.
func Open(baseDir, dateFrom, dateTo string, logger *slog.Logger) (*Lot, error) {
	dir := filepath.Join(baseDir, "downloads", fmt.Sprintf("%s_%s", dateFrom, dateTo))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lot directory: %w", err)
	}
	return &Lot{dir: dir, logger: logger}, nil
}

// Dir returns the lot directory path.
func (l *Lot) Dir() string {
	return l.dir
}

// MessageDir creates (if needed) the subfolder for one message inside the
// lot. Callers create it lazily, only when a first attachment is about to be
// saved.
func (l *Lot) MessageDir(name string) (string, error) {
	dir := filepath.Join(l.dir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create message directory: %w", err)
	}
	return dir, nil
}

// SaveAttachment writes data under dir, resolving filename collisions with an
// incrementing suffix. It returns the final path.
func (l *Lot) SaveAttachment(dir, filename string, data []byte) (string, error) {
	path := naming.ResolveCollision(dir, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write attachment file: %w", err)
	}
	return path, nil
}

// AppendRow buffers one report row for the next WriteReport.
func (l *Lot) AppendRow(r Row) {
	l.rows = append(l.rows, r)
}

// WriteReport appends the buffered rows to the lot's reporte.csv, writing the
// header only when the file is new. Returns the report path, or "" when there
// was nothing to write.
func (l *Lot) WriteReport() (string, error) {
	if len(l.rows) == 0 {
		return "", nil
	}

	path := filepath.Join(l.dir, reportName)
	_, statErr := os.Stat(path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to open report: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(reportHeader); err != nil {
			return "", fmt.Errorf("failed to write report header: %w", err)
		}
	}
	for _, r := range l.rows {
		record := []string{r.Fecha, r.Remitente, r.Asunto, r.ArchivoLocal, r.MessageID, r.AttachmentID}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("failed to write report row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush report: %w", err)
	}

	l.rows = nil
	return path, nil
}

// Archive writes <lot>/<lotname>.zip containing every .pdf and .json file in
// the lot plus reporte.csv, deflate-compressed, with paths relative to the
// lot root so the subfolder structure is preserved.
func (l *Lot) Archive() (string, error) {
	zipPath := filepath.Join(l.dir, filepath.Base(l.dir)+".zip")

	f, err := os.Create(zipPath)
	if err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	err = filepath.WalkDir(l.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !archivable(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(l.dir, path)
		if err != nil {
			return err
		}
		dst, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(dst, src)
		return err
	})
	if err != nil {
		zw.Close()
		return "", fmt.Errorf("failed to build archive: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize archive: %w", err)
	}

	return zipPath, nil
}

func archivable(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".pdf") ||
		strings.HasSuffix(lower, ".json") ||
		name == reportName
}
