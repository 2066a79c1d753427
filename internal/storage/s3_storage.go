package storage

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/adamwilson22/Velaa-Backend/internal/config"
)

// IS3Storage defines the object storage operations used by exports.
type IS3Storage interface {
	// PutObject uploads body under key.
	PutObject(ctx context.Context, key, contentType string, body []byte) error
	// PresignGet returns a time-limited download URL for key.
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// ExportKey builds a unique object key for a billing export of period.
func ExportKey(period, ext string) string {
	return fmt.Sprintf("exports/billing/%s/%s.%s", period, uuid.NewString(), ext)
}

// s3Storage implements IS3Storage.
type s3Storage struct {
	bucket        string
	s3Client      *s3.Client
	presignClient *s3.PresignClient
}

// NewS3Storage creates a new S3 storage service.
func NewS3Storage(ctx context.Context, cfg *config.Config) (IS3Storage, error) {
	if cfg.AwsS3Bucket == "" {
		return nil, fmt.Errorf("AWS_S3_BUCKET is not configured")
	}
	awsCfg, err := aws_config.LoadDefaultConfig(ctx,
		aws_config.WithRegion(cfg.AwsRegion),
		aws_config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AwsAccessKeyID,
			cfg.AwsSecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg)
	return &s3Storage{
		bucket:        cfg.AwsS3Bucket,
		s3Client:      s3Client,
		presignClient: s3.NewPresignClient(s3Client),
	}, nil
}

func (s *s3Storage) PutObject(ctx context.Context, key, contentType string, body []byte) error {
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	log.Debug().Str("key", key).Int("bytes", len(body)).Msg("object uploaded")
	return nil
}

func (s *s3Storage) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign GET for key %s: %w", key, err)
	}
	return req.URL, nil
}

// Object is a stored blob in MemoryStorage.
type Object struct {
	ContentType string
	Body        []byte
}

// MemoryStorage keeps objects in process, for the memory store driver and tests.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string]Object
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string]Object)}
}

func (m *MemoryStorage) PutObject(_ context.Context, key, contentType string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = Object{ContentType: contentType, Body: append([]byte(nil), body...)}
	return nil
}

func (m *MemoryStorage) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.objects[key]; !ok {
		return "", fmt.Errorf("object %s not found", key)
	}
	return fmt.Sprintf("memory://%s?expires=%d", key, int(ttl.Seconds())), nil
}

// Get returns the object stored under key.
func (m *MemoryStorage) Get(key string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	return obj, ok
}
