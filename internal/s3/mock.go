package s3

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// MockClient is an in-memory API for tests. Objects are keyed by bucket and
// key.
type MockClient struct {
	mu      sync.RWMutex
	objects map[string][]byte
	puts    int
}

// NewMockClient creates an empty mock client.
func NewMockClient() *MockClient {
	return &MockClient{objects: make(map[string][]byte)}
}

func mockKey(bucket, key *string) string {
	return aws.ToString(bucket) + "/" + aws.ToString(key)
}

// PutObject implements API.PutObject for testing.
func (m *MockClient) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[mockKey(params.Bucket, params.Key)] = data
	m.puts++
	return &s3.PutObjectOutput{}, nil
}

// GetObject implements API.GetObject for testing.
func (m *MockClient) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.RLock()
	data, exists := m.objects[mockKey(params.Bucket, params.Key)]
	m.mu.RUnlock()

	if !exists {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(data)),
	}, nil
}

// HeadObject implements API.HeadObject for testing.
func (m *MockClient) HeadObject(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.RLock()
	_, exists := m.objects[mockKey(params.Bucket, params.Key)]
	m.mu.RUnlock()

	if !exists {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

// DeleteObject implements API.DeleteObject for testing.
func (m *MockClient) DeleteObject(_ context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	delete(m.objects, mockKey(params.Bucket, params.Key))
	m.mu.Unlock()
	return &s3.DeleteObjectOutput{}, nil
}

// Object returns the stored bytes of bucket/key.
func (m *MockClient) Object(bucket, key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[bucket+"/"+key]
	return data, ok
}

// Puts returns the number of PutObject calls served.
func (m *MockClient) Puts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}
