package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aruniapsara/DrapeStudio/internal/domain"
)

// S3Store implements Gateway over an S3 bucket. Uploads and downloads that
// bypass the application server use presigned URLs.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// S3Options configures an S3Store.
type S3Options struct {
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// NewS3Store builds the S3 gateway. Static credentials are used when given,
// otherwise the default credential chain applies.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, errors.New("storage: s3 bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		creds := credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(aws.NewCredentialsCache(creds)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  opts.Bucket,
	}, nil
}

func (s *S3Store) urlFor(key string) string {
	return "s3://" + s.bucket + "/" + key
}

func (s *S3Store) keyFor(fileURL string) (string, error) {
	key := strings.TrimPrefix(fileURL, "s3://"+s.bucket+"/")
	key = strings.TrimPrefix(key, "s3://")
	return sanitizeKey(key)
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(cleanKey),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("%w: s3 put %s: %v", domain.ErrStorageFailure, cleanKey, err)
	}
	return s.urlFor(cleanKey), nil
}

func (s *S3Store) Get(ctx context.Context, fileURL string) ([]byte, error) {
	key, err := s.keyFor(fileURL)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: s3 get %s: %v", domain.ErrStorageFailure, key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: s3 read %s: %v", domain.ErrStorageFailure, key, err)
	}
	return data, nil
}

func (s *S3Store) SignUpload(ctx context.Context, key, contentType string, expiry time.Duration) (SignedUpload, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return SignedUpload{}, err
	}
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(cleanKey),
		ContentType: aws.String(contentType),
	}, func(po *s3.PresignOptions) {
		po.Expires = expiry
	})
	if err != nil {
		return SignedUpload{}, fmt.Errorf("%w: presign put %s: %v", domain.ErrStorageFailure, cleanKey, err)
	}
	return SignedUpload{UploadURL: req.URL, FileURL: s.urlFor(cleanKey)}, nil
}

func (s *S3Store) SignDownload(ctx context.Context, fileURL string, expiry time.Duration) (string, error) {
	key, err := s.keyFor(fileURL)
	if err != nil {
		return "", err
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(po *s3.PresignOptions) {
		po.Expires = expiry
	})
	if err != nil {
		return "", fmt.Errorf("%w: presign get %s: %v", domain.ErrStorageFailure, key, err)
	}
	return req.URL, nil
}

func (s *S3Store) Delete(ctx context.Context, fileURL string) error {
	key, err := s.keyFor(fileURL)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("%w: s3 delete %s: %v", domain.ErrStorageFailure, key, err)
	}
	return nil
}

var _ Gateway = (*S3Store)(nil)
