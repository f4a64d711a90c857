package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndLists(t *testing.T) {
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_USER", "papers")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "registry")
	t.Setenv("JWT_SECRET", "s3cr3t")
	t.Setenv("REQUIRED_FIELDS", "")
	t.Setenv("ADMIN_IDENTITIES", " admin@vvce.ac.in, ,hod@vvce.ac.in ")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5432, cfg.DBPort)
	assert.Equal(t, "papers", cfg.PapersCollection)
	assert.Equal(t, 6, cfg.MinPasswordLength)
	assert.Empty(t, cfg.RequiredFieldList())
	assert.Equal(t, []string{"admin@vvce.ac.in", "hod@vvce.ac.in"}, cfg.AdminIdentityList())
	assert.False(t, cfg.ExportEnabled())
	assert.Contains(t, cfg.DSN(), "dbname=registry")
}

func TestLoad_MissingRequired(t *testing.T) {
	for _, key := range []string{"DB_HOST", "DB_USER", "DB_PASSWORD", "DB_NAME", "JWT_SECRET"} {
		t.Setenv(key, "x")
		require.NoError(t, os.Unsetenv(key))
	}
	_, err := Load()
	assert.Error(t, err)
}

func TestExportTarget(t *testing.T) {
	cfg := &Config{
		ExportS3URL:    "https://s3.example.org",
		ExportS3Bucket: "exports",
		ExportS3Region: "eu-central-1",
		ExportS3Key:    "key",
		ExportS3Secret: "secret",
	}
	assert.True(t, cfg.ExportEnabled())
	assert.Equal(t, S3Target{
		URL:       "https://s3.example.org",
		Region:    "eu-central-1",
		AccessKey: "key",
		SecretKey: "secret",
		Bucket:    "exports",
	}, cfg.ExportTarget())
}

func TestLoadBackup(t *testing.T) {
	for key, val := range map[string]string{
		"POSTGRES_HOST":        "db",
		"POSTGRES_USER":        "papers",
		"POSTGRES_PASSWORD":    "secret",
		"POSTGRES_DB":          "registry",
		"BACKUP_S3_BUCKET":     "backups",
		"BACKUP_S3_ENDPOINT":   "https://s3.example.org",
		"BACKUP_S3_ACCESS_KEY": "key",
		"BACKUP_S3_SECRET_KEY": "secret",
		"BACKUP_S3_REGION":     "eu-central-1",
	} {
		t.Setenv(key, val)
	}
	cfg, err := LoadBackup()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.KeepBackups)
	assert.Equal(t, "backups", cfg.Target().Bucket)
	assert.Equal(t, "https://s3.example.org", cfg.Target().URL)
}
