package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"go.uber.org/zap"

	"paper-registry/projector"
	"paper-registry/storage"
)

// ExportPrefix ist das Schlüsselpräfix hochgeladener Exporte im Bucket.
const ExportPrefix = "exports/"

var exportHeader = []string{
	"No", "Title", "Authors", "Kind", "Venue", "Period", "Status", "Department",
	"Indexing", "Primary Link", "Certificate Link", "Owner", "Reference",
}

// ExportService schreibt die deduplizierte Admin-Ansicht als CSV.
type ExportService struct {
	hub      *Hub
	uploader storage.Uploader
	logger   *zap.Logger
	now      func() time.Time
}

// NewExportService erstellt den Export; uploader darf nil sein.
func NewExportService(hub *Hub, uploader storage.Uploader, logger *zap.Logger) *ExportService {
	return &ExportService{hub: hub, uploader: uploader, logger: logger, now: time.Now}
}

// WriteCSV schreibt alle Records der Admin-Ansicht (mit cfg-Filtern) nach out.
func (s *ExportService) WriteCSV(out io.Writer, cfg projector.Config) (int, error) {
	cfg.Scope = projector.AllScope()
	rows, _, err := s.hub.View(cfg)
	if err != nil {
		return 0, err
	}
	w := csv.NewWriter(out)
	if err := w.Write(exportHeader); err != nil {
		return 0, err
	}
	for i, r := range rows {
		err := w.Write([]string{
			strconv.Itoa(i + 1),
			r.Title,
			r.AuthorsText(),
			string(r.Kind),
			r.VenueName,
			r.PeriodKey,
			string(r.Status),
			r.Department,
			r.IndexingLabel(),
			r.PrimaryLink,
			r.CertificateLink,
			r.OwnerIdentity,
			FormatReference(r),
		})
		if err != nil {
			return 0, err
		}
	}
	w.Flush()
	return len(rows), w.Error()
}

// Upload exportiert die Standard-Admin-Ansicht und lädt sie hoch.
func (s *ExportService) Upload(ctx context.Context) (string, error) {
	if s.uploader == nil {
		return "", fmt.Errorf("export upload not configured")
	}
	var buf bytes.Buffer
	n, err := s.WriteCSV(&buf, projector.AdminView())
	if err != nil {
		return "", fmt.Errorf("writing export: %w", err)
	}
	key := fmt.Sprintf("%spapers-%s.csv", ExportPrefix, s.now().UTC().Format("20060102-150405"))
	url, err := s.uploader.Upload(ctx, key, "text/csv", buf.Bytes())
	if err != nil {
		s.logger.Error("Failed to upload export", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("uploading export: %w", err)
	}
	s.logger.Info("Export uploaded", zap.String("url", url), zap.Int("records", n))
	return url, nil
}
