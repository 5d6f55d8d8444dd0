package s3

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		raw     string
		want    Location
		wantErr bool
	}{
		{"s3://bucket/key.fgb", Location{"bucket", "key.fgb"}, false},
		{"S3://bucket/a/b/c.fgb", Location{"bucket", "a/b/c.fgb"}, false},
		{"s3://bucket/", Location{}, true},
		{"s3://bucket", Location{}, true},
		{"s3:///key.fgb", Location{}, true},
		{"https://bucket/key.fgb", Location{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseURL(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "s3://"+tt.want.Bucket+"/"+tt.want.Key, got.String())
		})
	}
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("s3://b/k"))
	assert.True(t, IsURL("S3://b/k"))
	assert.False(t, IsURL("/tmp/k.fgb"))
	assert.False(t, IsURL("memory://k"))
}

func TestObjectRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := NewMockClient()
	loc := Location{Bucket: "data", Key: "layers/roads.fgb"}

	_, err := Get(ctx, client, loc)
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := Exists(ctx, client, loc)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, Put(ctx, client, loc, []byte("payload"), "application/octet-stream"))
	assert.Equal(t, 1, client.Puts())

	data, err := Get(ctx, client, loc)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	ok, err = Exists(ctx, client, loc)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, Delete(ctx, client, loc))
	require.NoError(t, Delete(ctx, client, loc))
	_, ok = client.Object("data", "layers/roads.fgb")
	assert.False(t, ok)
}

type apiError struct{ code string }

func (e apiError) Error() string                 { return e.code }
func (e apiError) ErrorCode() string             { return e.code }
func (e apiError) ErrorMessage() string          { return e.code }
func (e apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultUnknown }

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&types.NoSuchKey{}))
	assert.True(t, isNotFound(&types.NotFound{}))
	assert.True(t, isNotFound(&types.NoSuchBucket{}))
	assert.True(t, isNotFound(apiError{code: "404"}))
	assert.False(t, isNotFound(apiError{code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("boom")))
}

func TestDefaultClient(t *testing.T) {
	mock := NewMockClient()
	SetDefaultClient(mock)
	t.Cleanup(func() { Configure(ClientConfig{}) })

	c, err := DefaultClient(context.Background())
	require.NoError(t, err)
	assert.Same(t, mock, c)
}
