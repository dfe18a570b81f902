// Package storage copies backup files to an S3 compatible bucket.
package storage

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dustin/go-humanize"

	"deploy.evalgo.org/common"
	"deploy.evalgo.org/config"
)

const md5Key = "md5"

// UploadResult describes one file sent to the bucket.
type UploadResult struct {
	FilePath  string
	ObjectKey string
	Size      int64
	MD5       string
	// Skipped is set when the bucket already holds the same content
	Skipped bool
}

// Object is an entry in the bucket.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Store copies files into one bucket.
type Store struct {
	client   S3Client
	uploader Uploader
	bucket   string
	log      *common.ContextLogger
}

func NewStore(client S3Client, uploader Uploader, bucket string) *Store {
	return &Store{
		client:   client,
		uploader: uploader,
		bucket:   bucket,
		log:      common.NewContextLogger(common.Logger, map[string]interface{}{"bucket": bucket}),
	}
}

// NewS3Store connects to the bucket in cfg. Static credentials are used
// when an access key is set, otherwise the default AWS credential chain.
// A custom endpoint (MinIO, Hetzner) switches to path style addressing.
func NewS3Store(ctx context.Context, cfg config.S3Config) (*Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithRetryer(func() aws.Retryer {
			return retry.AddWithMaxAttempts(retry.NewStandard(), 10)
		}),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 configuration: %w", err)
	}
	common.Logger.WithFields(map[string]interface{}{
		"bucket":     cfg.Bucket,
		"endpoint":   cfg.Endpoint,
		"access_key": common.MaskSecret(cfg.AccessKey),
	}).Debug("s3 store")
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewStore(client, manager.NewUploader(client), cfg.Bucket), nil
}

// EnsureBucket creates the bucket when it does not exist.
func (s *Store) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if _, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	s.log.Info("created bucket")
	return nil
}

// Upload copies localFile to key, storing its MD5 in the object metadata.
// An object with the same MD5 is left alone.
func (s *Store) Upload(ctx context.Context, localFile, key string) (UploadResult, error) {
	result := UploadResult{FilePath: localFile, ObjectKey: key}
	stat, err := os.Stat(localFile)
	if err != nil {
		return result, err
	}
	result.Size = stat.Size()
	if result.MD5, err = CalculateMD5(localFile); err != nil {
		return result, fmt.Errorf("failed to calculate md5: %w", err)
	}

	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	switch {
	case err == nil && head.Metadata[md5Key] == result.MD5:
		result.Skipped = true
		s.log.Infof("%s is already in the bucket", key)
		return result, nil
	case err != nil && !isNotFound(err):
		return result, fmt.Errorf("failed to check %s: %w", key, err)
	}

	file, err := os.Open(localFile)
	if err != nil {
		return result, err
	}
	defer file.Close()
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		Body:     file,
		Metadata: map[string]string{md5Key: result.MD5},
	})
	if err != nil {
		return result, fmt.Errorf("failed to upload %s: %w", localFile, err)
	}
	s.log.Infof("uploaded %s to %s (%s)", localFile, key, humanize.Bytes(uint64(result.Size)))
	return result, nil
}

// List returns every object under prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]Object, error) {
	var objects []Object
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, item := range page.Contents {
			objects = append(objects, Object{
				Key:          aws.ToString(item.Key),
				Size:         aws.ToInt64(item.Size),
				LastModified: aws.ToTime(item.LastModified),
			})
		}
	}
	return objects, nil
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noBucket *types.NoSuchBucket
	var noKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noBucket) || errors.As(err, &noKey) {
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}

func CalculateMD5(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}
