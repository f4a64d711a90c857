package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"paper-registry/config"
	"paper-registry/storage"
)

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()
	logging.Info("Starting backup")

	cfg, err := config.LoadBackup()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}
	ctx := context.Background()

	dumpData, err := createDump(ctx, cfg)
	if err != nil {
		logging.Fatal("Database dump failed", zap.Error(err))
	}

	s3Client, err := storage.NewS3Client(ctx, cfg.Target())
	if err != nil {
		logging.Fatal("S3 client creation failed", zap.Error(err))
	}
	uploader := storage.NewS3Uploader(s3Client, cfg.Target())

	fileName := backupKey(time.Now())
	url, err := uploader.Upload(ctx, fileName, "application/gzip", dumpData)
	if err != nil {
		logging.Fatal("Backup upload failed", zap.Error(err))
	}
	logging.Info("Backup uploaded", zap.String("url", url), zap.Int("bytes", len(dumpData)))

	deleted, err := storage.RotateObjects(ctx, s3Client, cfg.BackupBucket, backupPrefix, cfg.KeepBackups, logging)
	if err != nil {
		logging.Fatal("Backup rotation failed", zap.Error(err))
	}
	logging.Info("Backup finished", zap.Int("rotated", deleted))
}

const backupPrefix = "backup-"

func backupKey(now time.Time) string {
	return fmt.Sprintf("%s%s.sql.gz", backupPrefix, now.UTC().Format("2006-01-02T15-04-05Z"))
}

func createDump(ctx context.Context, cfg *config.BackupConfig) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "pg_dump",
		"-h", cfg.PostgresHost,
		"-U", cfg.PostgresUser,
		"-d", cfg.PostgresDB,
		"-w", // Passwort kommt über PGPASSWORD
	)
	cmd.Env = append(os.Environ(), fmt.Sprintf("PGPASSWORD=%s", cfg.PostgresPassword))

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := compress(&buf, stdout); err != nil {
		return nil, err
	}
	if err := cmd.Wait(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func compress(dst io.Writer, src io.Reader) error {
	gzipWriter := gzip.NewWriter(dst)
	if _, err := io.Copy(gzipWriter, src); err != nil {
		return err
	}
	return gzipWriter.Close()
}
