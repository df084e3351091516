package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	appConfig "github.com/brothersgym/backoffice/internal/config"
)

// avatarCacheControl lets browsers keep a photo; a new upload always gets a new key
const avatarCacheControl = "public, max-age=31536000, immutable"

// S3AvatarStore implements domain.AvatarStore on any S3-compatible store (SeaweedFS, MinIO, AWS)
type S3AvatarStore struct {
	client  *s3.Client
	bucket  string
	baseURL string // {PublicURL}/{Bucket}/
}

// NewS3AvatarStore connects to the store and creates the bucket when missing
func NewS3AvatarStore(ctx context.Context, cfg appConfig.S3Config) (*S3AvatarStore, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true // SeaweedFS and MinIO serve buckets by path
	})

	publicURL := cfg.PublicURL
	if publicURL == "" {
		publicURL = cfg.Endpoint
	}

	store := &S3AvatarStore{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: avatarBaseURL(publicURL, cfg.Bucket),
	}
	if err := store.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func avatarBaseURL(publicURL, bucket string) string {
	return strings.TrimRight(publicURL, "/") + "/" + bucket + "/"
}

// Put uploads an avatar and returns its public URL
func (s *S3AvatarStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(avatarCacheControl),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload avatar %s: %w", key, err)
	}
	return s.baseURL + key, nil
}

// Remove deletes the object behind url when it lives in this bucket
func (s *S3AvatarStore) Remove(ctx context.Context, url string) error {
	key, ok := keyFromURL(s.baseURL, url)
	if !ok {
		return nil
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete avatar %s: %w", key, err)
	}
	return nil
}

// keyFromURL recovers the object key of a URL issued by Put
func keyFromURL(baseURL, url string) (string, bool) {
	key, ok := strings.CutPrefix(url, baseURL)
	if !ok || key == "" {
		return "", false
	}
	return key, true
}

func (s *S3AvatarStore) ensureBucket(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err == nil {
		return nil
	}

	_, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	var owned *types.BucketAlreadyOwnedByYou
	if errors.As(err, &owned) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	log.Printf("[Avatars] created bucket %s", s.bucket)
	return nil
}
