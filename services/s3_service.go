package services

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

const (
	avatarPrefix     = "avatars/"
	photoPrefix      = "photos/"
	presignURLExpiry = 5 * time.Minute
)

// S3Service issues presigned URLs for avatar and photo objects. Clients
// upload and read directly against S3; the server never proxies image bytes.
type S3Service struct {
	Client *s3.Client
	Bucket string
}

// NewS3Service builds the service from ambient AWS config and S3_BUCKET_NAME.
func NewS3Service(ctx context.Context) (*S3Service, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(os.Getenv("AWS_REGION")))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for S3: %w", err)
	}
	return &S3Service{
		Client: s3.NewFromConfig(cfg),
		Bucket: os.Getenv("S3_BUCKET_NAME"),
	}, nil
}

func objectPrefix(kind string) string {
	if kind == "photo" {
		return photoPrefix
	}
	return avatarPrefix
}

// GenerateUploadURL returns a presigned PUT URL and the object key the client
// must upload to. Keys are namespaced by kind and randomized so concurrent
// uploads of the same filename never collide.
func (s *S3Service) GenerateUploadURL(ctx context.Context, kind, fileName, fileType string) (string, string, error) {
	base := strings.ReplaceAll(path.Base(fileName), " ", "_")
	key := objectPrefix(kind) + uuid.NewString() + "-" + base

	presigner := s3.NewPresignClient(s.Client)
	presigned, err := presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(fileType),
	}, s3.WithPresignExpires(presignURLExpiry))
	if err != nil {
		return "", "", fmt.Errorf("failed to presign upload for %s: %w", key, err)
	}
	return presigned.URL, key, nil
}

// GenerateReadURL returns a presigned GET URL for an existing object key.
func (s *S3Service) GenerateReadURL(ctx context.Context, key string) (string, error) {
	presigner := s3.NewPresignClient(s.Client)
	presigned, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(presignURLExpiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign read for %s: %w", key, err)
	}
	return presigned.URL, nil
}
