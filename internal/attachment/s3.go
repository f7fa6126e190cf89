package attachment

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/cmclass/inbound-mail/internal/config"
	"github.com/cmclass/inbound-mail/internal/parser"
)

// S3Store persists attachments in an S3-compatible object store
// (AWS S3 or MinIO). Object keys use the same date-partitioned layout
// as LocalStore, so StoragePath values are interchangeable.
type S3Store struct {
	client  *s3.Client
	bucket  string
	baseURL string
}

// NewS3Store creates an S3 store from the attachment configuration.
func NewS3Store(cfg *config.AttachmentConfig) *S3Store {
	var endpointURL string
	if strings.HasPrefix(cfg.S3Endpoint, "http://") || strings.HasPrefix(cfg.S3Endpoint, "https://") {
		endpointURL = cfg.S3Endpoint
	} else {
		protocol := "http"
		if cfg.S3UseSSL {
			protocol = "https"
		}
		endpointURL = protocol + "://" + cfg.S3Endpoint
	}

	client := s3.New(s3.Options{
		Region: cfg.S3Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKey,
			cfg.S3SecretKey,
			"",
		),
		BaseEndpoint: aws.String(endpointURL),
		UsePathStyle: true, // required for MinIO
	})

	return &S3Store{
		client:  client,
		bucket:  cfg.S3Bucket,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// Save uploads one attachment under the partition key for the given
// UTC calendar day.
func (s *S3Store) Save(ctx context.Context, att parser.Attachment, day string) (*Saved, error) {
	if len(att.Content) == 0 {
		return nil, ErrEmptyContent
	}

	name, err := StorageName(att.Filename, att.ContentType)
	if err != nil {
		return nil, err
	}

	key := path.Join(storagePrefix, day, name)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(att.Content),
		ContentType: aws.String(att.ContentType),
	})
	if err != nil {
		return nil, fmt.Errorf("uploading attachment %s: %w", key, err)
	}

	displayName := att.Filename
	if displayName == "" {
		displayName = name
	}

	return &Saved{
		Filename:    displayName,
		ContentType: att.ContentType,
		Size:        int64(len(att.Content)),
		ContentID:   att.ContentID,
		StoragePath: key,
		URL:         s.baseURL + "/" + key,
	}, nil
}

// Remove deletes a stored object. S3 DeleteObject is idempotent, so an
// already-gone object is not an error.
func (s *S3Store) Remove(ctx context.Context, storagePath string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(storagePath),
	})
	if err != nil {
		return fmt.Errorf("deleting attachment %s: %w", storagePath, err)
	}
	return nil
}
