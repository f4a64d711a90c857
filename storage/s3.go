package storage

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"paper-registry/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// NewS3Client erstellt einen S3-Client für einen S3-kompatiblen Speicher.
func NewS3Client(ctx context.Context, target config.S3Target) (*s3.Client, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               target.URL,
				SigningRegion:     target.Region,
				HostnameImmutable: true,
			}, nil
		},
	)
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(target.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(target.AccessKey, target.SecretKey, "")),
		awsconfig.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg), nil
}

// Uploader lädt Exporte in einen Bucket.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// S3Uploader implementiert Uploader auf einem S3-kompatiblen Speicher.
type S3Uploader struct {
	Client  *s3.Client
	Bucket  string
	BaseURL string
}

// NewS3Uploader erstellt einen Uploader für den Bucket von target.
func NewS3Uploader(client *s3.Client, target config.S3Target) *S3Uploader {
	return &S3Uploader{Client: client, Bucket: target.Bucket, BaseURL: strings.TrimRight(target.URL, "/")}
}

// Upload lädt eine Datei ins S3 hoch und gibt den Link zurück.
func (u *S3Uploader) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	_, err := u.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%s", u.BaseURL, u.Bucket, key), nil
}

// ObjectAPI ist der Teil des S3-Clients, den RotateObjects braucht.
type ObjectAPI interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// RotateObjects behält unter prefix die keep neuesten Objekte und löscht den
// Rest. Fehler beim Löschen einzelner Objekte werden nur geloggt.
func RotateObjects(ctx context.Context, api ObjectAPI, bucket, prefix string, keep int, logger *zap.Logger) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	in := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix != "" {
		in.Prefix = aws.String(prefix)
	}
	output, err := api.ListObjectsV2(ctx, in)
	if err != nil {
		return 0, fmt.Errorf("list %s/%s: %w", bucket, prefix, err)
	}
	objects := output.Contents
	if len(objects) <= keep {
		logger.Debug("Nothing to rotate", zap.Int("objects", len(objects)), zap.Int("keep", keep))
		return 0, nil
	}

	sort.Slice(objects, func(i, j int) bool {
		return aws.ToTime(objects[i].LastModified).After(aws.ToTime(objects[j].LastModified))
	})

	deleted := 0
	for _, obj := range objects[keep:] {
		logger.Info("Deleting old object", zap.String("key", aws.ToString(obj.Key)))
		_, err := api.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    obj.Key,
		})
		if err != nil {
			logger.Warn("Failed to delete object", zap.String("key", aws.ToString(obj.Key)), zap.Error(err))
			continue
		}
		deleted++
	}
	return deleted, nil
}
