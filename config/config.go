package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort string `envconfig:"HTTP_PORT" default:"4242"`

	// Name der Dokument-Collection, in der die Paper liegen
	PapersCollection string `envconfig:"PAPERS_COLLECTION" default:"papers"`

	// Zusätzliche Pflichtfelder beim Speichern eines Drafts (kommagetrennt),
	// z.B. "primaryLink". Titel, Autoren, Zeitraum, Abteilung und Indexierung
	// sind immer Pflicht.
	RequiredFields string `envconfig:"REQUIRED_FIELDS"`

	// Identitäten (E-Mail), denen die Admin-Rolle zugeordnet wird
	AdminIdentities string `envconfig:"ADMIN_IDENTITIES"`

	JWTSecret         string        `envconfig:"JWT_SECRET" required:"true"`
	JWTTTL            time.Duration `envconfig:"JWT_TTL" default:"12h"`
	MinPasswordLength int           `envconfig:"MIN_PASSWORD_LENGTH" default:"6"`
	PasswordResetTTL  time.Duration `envconfig:"PASSWORD_RESET_TTL" default:"1h"`

	// Optional: Redis für Change-Notifications zwischen mehreren Instanzen
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	ProjectionCacheSize int           `envconfig:"PROJECTION_CACHE_SIZE" default:"256"`
	ProjectionCacheTTL  time.Duration `envconfig:"PROJECTION_CACHE_TTL" default:"5m"`

	// Export der Admin-Ansicht nach S3
	ExportCronSchedule string `envconfig:"EXPORT_CRON_SCHEDULE" default:"0 2 * * *"`
	ExportS3Key        string `envconfig:"EXPORT_S3_KEY"`
	ExportS3Secret     string `envconfig:"EXPORT_S3_SECRET"`
	ExportS3URL        string `envconfig:"EXPORT_S3_URL"`
	ExportS3Region     string `envconfig:"EXPORT_S3_REGION" default:"us-east-1"`
	ExportS3Bucket     string `envconfig:"EXPORT_S3_BUCKET"`
	// Anzahl der Exporte, die im Bucket behalten werden (0 = alle)
	ExportKeep int `envconfig:"EXPORT_KEEP" default:"14"`
}

// S3Target beschreibt einen S3-kompatiblen Bucket samt Zugangsdaten.
type S3Target struct {
	URL       string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
}

// BackupConfig ist die Konfiguration des Backup-Jobs (cmd/backup).
type BackupConfig struct {
	PostgresHost     string `envconfig:"POSTGRES_HOST" required:"true"`
	PostgresUser     string `envconfig:"POSTGRES_USER" required:"true"`
	PostgresPassword string `envconfig:"POSTGRES_PASSWORD" required:"true"`
	PostgresDB       string `envconfig:"POSTGRES_DB" required:"true"`
	BackupBucket     string `envconfig:"BACKUP_S3_BUCKET" required:"true"`
	BackupEndpoint   string `envconfig:"BACKUP_S3_ENDPOINT" required:"true"`
	BackupAccessKey  string `envconfig:"BACKUP_S3_ACCESS_KEY" required:"true"`
	BackupSecretKey  string `envconfig:"BACKUP_S3_SECRET_KEY" required:"true"`
	BackupRegion     string `envconfig:"BACKUP_S3_REGION" required:"true"`
	KeepBackups      int    `envconfig:"KEEP_BACKUPS" default:"4"`
}

// Target liefert das Backup-Ziel.
func (c *BackupConfig) Target() S3Target {
	return S3Target{
		URL:       c.BackupEndpoint,
		Region:    c.BackupRegion,
		AccessKey: c.BackupAccessKey,
		SecretKey: c.BackupSecretKey,
		Bucket:    c.BackupBucket,
	}
}

// LoadBackup lädt die Backup-Konfiguration aus den Umgebungsvariablen.
func LoadBackup() (*BackupConfig, error) {
	_ = godotenv.Load()
	var c BackupConfig
	err := envconfig.Process("", &c)
	return &c, err
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// RequiredFieldList liefert die zusätzlichen Pflichtfelder als Liste.
func (c *Config) RequiredFieldList() []string {
	return splitList(c.RequiredFields)
}

// AdminIdentityList liefert die Admin-Identitäten als Liste.
func (c *Config) AdminIdentityList() []string {
	return splitList(c.AdminIdentities)
}

// ExportEnabled meldet, ob ein S3-Ziel für den Export konfiguriert ist.
func (c *Config) ExportEnabled() bool {
	return c.ExportS3URL != "" && c.ExportS3Bucket != ""
}

// ExportTarget liefert das S3-Ziel für Exporte.
func (c *Config) ExportTarget() S3Target {
	return S3Target{
		URL:       c.ExportS3URL,
		Region:    c.ExportS3Region,
		AccessKey: c.ExportS3Key,
		SecretKey: c.ExportS3Secret,
		Bucket:    c.ExportS3Bucket,
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
