package storage

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// MockS3Client keeps buckets and objects in memory.
type MockS3Client struct {
	mu      sync.Mutex
	Objects map[string]*MockS3Object
	Buckets map[string]bool
	// Err is returned from every operation when set
	Err error
	// PageSize limits the keys returned per ListObjectsV2 call
	PageSize int
}

// MockS3Object represents a mock S3 object with content and metadata
type MockS3Object struct {
	Key          string
	Content      string
	Metadata     map[string]string
	LastModified time.Time
}

func NewMockS3Client(buckets ...string) *MockS3Client {
	m := &MockS3Client{
		Objects: make(map[string]*MockS3Object),
		Buckets: make(map[string]bool),
	}
	for _, b := range buckets {
		m.Buckets[b] = true
	}
	return m
}

func (m *MockS3Client) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Buckets[aws.ToString(params.Bucket)] {
		return &s3.HeadBucketOutput{}, nil
	}
	return nil, &types.NotFound{}
}

func (m *MockS3Client) CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.Buckets[aws.ToString(params.Bucket)] = true
	return &s3.CreateBucketOutput{}, nil
}

// ListObjectsV2 returns the keys under the prefix in order. The
// continuation token is the last key of the previous page.
func (m *MockS3Client) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if !m.Buckets[aws.ToString(params.Bucket)] {
		return nil, &types.NoSuchBucket{}
	}
	var keys []string
	for key := range m.Objects {
		if strings.HasPrefix(key, aws.ToString(params.Prefix)) && key > aws.ToString(params.ContinuationToken) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	if m.PageSize > 0 && len(keys) > m.PageSize {
		keys = keys[:m.PageSize]
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[len(keys)-1])
	}
	for _, key := range keys {
		obj := m.Objects[key]
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(key),
			Size:         aws.Int64(int64(len(obj.Content))),
			LastModified: aws.Time(obj.LastModified),
		})
	}
	out.KeyCount = aws.Int32(int32(len(out.Contents)))
	return out, nil
}

func (m *MockS3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	obj, ok := m.Objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.Content))),
		Metadata:      obj.Metadata,
	}, nil
}

func (m *MockS3Client) put(key, content string, metadata map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Objects[key] = &MockS3Object{Key: key, Content: content, Metadata: metadata, LastModified: time.Now()}
}

// MockUploader stores uploads in a MockS3Client and records the keys.
type MockUploader struct {
	Client *MockS3Client
	Err    error
	Keys   []string
}

func NewMockUploader(client *MockS3Client) *MockUploader {
	return &MockUploader{Client: client}
}

func (u *MockUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if u.Err != nil {
		return nil, u.Err
	}
	body, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(input.Key)
	u.Keys = append(u.Keys, key)
	if u.Client != nil {
		u.Client.put(key, string(body), input.Metadata)
	}
	return &manager.UploadOutput{Key: input.Key}, nil
}
