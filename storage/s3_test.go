package storage

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeObjects struct {
	objects  []types.Object
	prefix   string
	deleted  []string
	failKey  string
	listFail error
}

func (f *fakeObjects) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.listFail != nil {
		return nil, f.listFail
	}
	f.prefix = aws.ToString(in.Prefix)
	return &s3.ListObjectsV2Output{Contents: append([]types.Object(nil), f.objects...)}, nil
}

func (f *fakeObjects) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	key := aws.ToString(in.Key)
	if key == f.failKey {
		return nil, errors.New("access denied")
	}
	f.deleted = append(f.deleted, key)
	return &s3.DeleteObjectOutput{}, nil
}

func objectsAged(keys ...string) []types.Object {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]types.Object, 0, len(keys))
	for i, k := range keys {
		out = append(out, types.Object{Key: aws.String(k), LastModified: aws.Time(base.Add(time.Duration(i) * time.Hour))})
	}
	return out
}

func TestRotateObjects(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	t.Run("keeps newest", func(t *testing.T) {
		api := &fakeObjects{objects: objectsAged("e1", "e2", "e3", "e4", "e5")}
		n, err := RotateObjects(ctx, api, "bucket", "exports/", 2, logger)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.Equal(t, "exports/", api.prefix)
		sort.Strings(api.deleted)
		assert.Equal(t, []string{"e1", "e2", "e3"}, api.deleted)
	})

	t.Run("below limit", func(t *testing.T) {
		api := &fakeObjects{objects: objectsAged("a", "b")}
		n, err := RotateObjects(ctx, api, "bucket", "", 4, logger)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Empty(t, api.deleted)
	})

	t.Run("keep zero disables rotation", func(t *testing.T) {
		api := &fakeObjects{listFail: errors.New("must not be called")}
		n, err := RotateObjects(ctx, api, "bucket", "", 0, logger)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("delete failures are skipped", func(t *testing.T) {
		api := &fakeObjects{objects: objectsAged("a", "b", "c"), failKey: "a"}
		n, err := RotateObjects(ctx, api, "bucket", "", 1, logger)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, []string{"b"}, api.deleted)
	})

	t.Run("list error", func(t *testing.T) {
		api := &fakeObjects{listFail: errors.New("boom")}
		_, err := RotateObjects(ctx, api, "bucket", "", 1, logger)
		assert.Error(t, err)
	})
}
