package objstore

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/icecat/pkg/types"
)

// fakeS3 keeps objects keyed by bucket and key.
type fakeS3 struct {
	s3iface.S3API
	objects map[string][]byte
	puts    []*s3.PutObjectInput
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "no such key", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Bucket+"/"+*in.Key] = data
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, nil
}

func TestStores_RoundTrip(t *testing.T) {
	ctx := context.Background()
	stores := map[string]types.MetadataStore{
		"memory": NewMemory(),
		"local":  NewLocal(t.TempDir()),
		"s3":     NewS3WithClient(newFakeS3(), "bucket"),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			path := "/wh/db/t/metadata/00000-a.metadata.json"

			_, err := store.Get(ctx, path)
			assert.ErrorIs(t, err, types.ErrNotFound)

			require.NoError(t, store.Put(ctx, path, []byte(`{"a":1}`)))
			got, err := store.Get(ctx, path)
			require.NoError(t, err)
			assert.Equal(t, `{"a":1}`, string(got))

			require.NoError(t, store.Put(ctx, path, []byte(`{"a":2}`)))
			got, err = store.Get(ctx, path)
			require.NoError(t, err)
			assert.Equal(t, `{"a":2}`, string(got))
		})
	}
}

func TestMemory_CopiesData(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	data := []byte("abc")
	require.NoError(t, m.Put(ctx, "/x", data))
	data[0] = 'z'

	got, err := m.Get(ctx, "/x")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
	got[1] = 'z'

	again, err := m.Get(ctx, "/x")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
	assert.Equal(t, 1, m.Len())

	m.Delete("/x")
	assert.Equal(t, 0, m.Len())
}

func TestMemory_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMemory()
	assert.ErrorIs(t, m.Put(ctx, "/x", nil), context.Canceled)
	_, err := m.Get(ctx, "/x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocal_LayoutAndTempCleanup(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	l := NewLocal(root)

	require.NoError(t, l.Put(ctx, "/wh/db/t/metadata/v1.json", []byte("{}")))

	dir := filepath.Join(root, "wh", "db", "t", "metadata")
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "v1.json", entries[0].Name())
}

func TestLocal_RejectsEmptyPath(t *testing.T) {
	l := NewLocal(t.TempDir())
	for _, p := range []string{"", "/", "//"} {
		err := l.Put(context.Background(), p, []byte("x"))
		assert.ErrorIs(t, err, types.ErrInvalidLocation, "path %q", p)
	}
}

func TestLocal_StaysUnderRoot(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	l := NewLocal(root)

	require.NoError(t, l.Put(ctx, "/../../escape.json", []byte("{}")))
	_, err := os.Stat(filepath.Join(root, "escape.json"))
	assert.NoError(t, err)
}

func TestS3_KeyAndContentType(t *testing.T) {
	fake := newFakeS3()
	s := NewS3WithClient(fake, "lake")

	require.NoError(t, s.Put(context.Background(), "/wh/db/t/metadata/v1.json", []byte("{}")))
	require.Len(t, fake.puts, 1)
	assert.Equal(t, "lake", *fake.puts[0].Bucket)
	assert.Equal(t, "wh/db/t/metadata/v1.json", *fake.puts[0].Key)
	assert.Equal(t, "application/json", *fake.puts[0].ContentType)
	assert.Equal(t, int64(2), *fake.puts[0].ContentLength)
}

func TestNewS3_RequiresBucket(t *testing.T) {
	_, err := NewS3(S3Config{})
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
}
