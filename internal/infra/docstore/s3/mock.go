package s3

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // S3 ETags for single-part uploads are MD5 digests
	"encoding/hex"
	"io"
	"maps"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// MockAPI is an in-memory stand-in for the S3 client covering the calls the
// store makes, including conditional puts and paginated listing.
type MockAPI struct {
	mu       sync.Mutex
	objects  map[string]mockObject
	PageSize int // ListObjectsV2 page size; 0 means 1000
}

type mockObject struct {
	body        []byte
	contentType string
	metadata    map[string]string
	etag        string
	modified    time.Time
}

// NewMockAPI returns an empty fake bucket.
func NewMockAPI() *MockAPI { return &MockAPI{objects: make(map[string]mockObject)} }

// NewMockForTests returns a Store backed by a fresh MockAPI.
func NewMockForTests() *Store { return NewWithClient(NewMockAPI(), "mock-bucket") }

func notFoundErr(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: "The specified key does not exist."}
}

func preconditionErr() error {
	return &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
}

func (m *MockAPI) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, notFoundErr("NotFound")
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.body))),
		ContentType:   aws.String(obj.contentType),
		ETag:          aws.String(`"` + obj.etag + `"`),
		Metadata:      maps.Clone(obj.metadata),
		LastModified:  aws.Time(obj.modified),
	}, nil
}

func (m *MockAPI) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, notFoundErr("NoSuchKey")
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(bytes.Clone(obj.body))),
		ContentLength: aws.Int64(int64(len(obj.body))),
		ContentType:   aws.String(obj.contentType),
		ETag:          aws.String(`"` + obj.etag + `"`),
		Metadata:      maps.Clone(obj.metadata),
		LastModified:  aws.Time(obj.modified),
	}, nil
}

func (m *MockAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	var body []byte
	if in.Body != nil {
		b, err := io.ReadAll(in.Body)
		if err != nil {
			return nil, err
		}
		body = b
	}
	key := aws.ToString(in.Key)
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, exists := m.objects[key]
	if in.IfNoneMatch != nil && exists {
		return nil, preconditionErr()
	}
	if in.IfMatch != nil && (!exists || strings.Trim(*in.IfMatch, `"`) != prev.etag) {
		return nil, preconditionErr()
	}
	sum := md5.Sum(body) //nolint:gosec
	obj := mockObject{
		body:        body,
		contentType: aws.ToString(in.ContentType),
		metadata:    maps.Clone(in.Metadata),
		etag:        hex.EncodeToString(sum[:]),
		modified:    time.Now().UTC().Truncate(time.Second),
	}
	m.objects[key] = obj
	return &s3.PutObjectOutput{ETag: aws.String(`"` + obj.etag + `"`)}, nil
}

func (m *MockAPI) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (m *MockAPI) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := aws.ToString(in.Prefix)
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	start := 0
	if in.ContinuationToken != nil {
		n, err := strconv.Atoi(*in.ContinuationToken)
		if err != nil {
			return nil, &smithy.GenericAPIError{Code: "InvalidArgument", Message: "bad continuation token"}
		}
		start = min(n, len(keys))
	}
	size := m.PageSize
	if size <= 0 {
		size = 1000
	}
	end := min(start+size, len(keys))
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		obj := m.objects[k]
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(obj.body))),
			ETag:         aws.String(`"` + obj.etag + `"`),
			LastModified: aws.Time(obj.modified),
		})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}
