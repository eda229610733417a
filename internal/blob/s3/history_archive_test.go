package s3blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketchart/internal/domain"
)

// memBlobs is an in-memory domain.BlobWriter and domain.BlobReader.
type memBlobs struct {
	objects   map[string][]byte
	multipart int
	failPut   error
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: map[string][]byte{}}
}

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if m.failPut != nil {
		return m.failPut
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = b
	return nil
}

func (m *memBlobs) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	m.multipart++
	return m.Put(ctx, path, data, contentTypeJSONL)
}

func (m *memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, domain.BlobInfo{Path: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

func samplePoints(id string, n int) []domain.PricePoint {
	base := time.UnixMilli(1_700_000_000_000).UTC()
	points := make([]domain.PricePoint, n)
	for i := range points {
		points[i] = domain.PricePoint{
			MarketID:  id,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Price:     0.5 + float64(i)/1000,
		}
	}
	return points
}

func TestHistoryKey(t *testing.T) {
	assert.Equal(t, "history/0xabc.jsonl", HistoryKey("0xabc"))
}

func TestHistoryArchive_RoundTripAndFilter(t *testing.T) {
	blobs := newMemBlobs()
	archive := NewHistoryArchive(blobs, blobs)
	ctx := context.Background()

	points := samplePoints("m1", 10)
	require.NoError(t, archive.Write(ctx, "m1", points))

	raw := string(blobs.objects["history/m1.jsonl"])
	assert.Equal(t, 10, strings.Count(raw, "\n"))
	assert.True(t, strings.HasPrefix(raw, `{"t":1700000000000,"p":0.5}`))

	all, err := archive.Read(ctx, "m1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, points, all)

	window, err := archive.Read(ctx, "m1", points[3].Timestamp, points[5].Timestamp)
	require.NoError(t, err)
	require.Len(t, window, 3)
	assert.Equal(t, points[3], window[0])
	assert.Equal(t, points[5], window[2])

	assert.Zero(t, blobs.multipart)
}

func TestHistoryArchive_ReadMissing(t *testing.T) {
	blobs := newMemBlobs()
	_, err := NewHistoryArchive(blobs, blobs).Read(context.Background(), "none", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHistoryArchive_WriteError(t *testing.T) {
	blobs := newMemBlobs()
	blobs.failPut = errors.New("boom")
	err := NewHistoryArchive(blobs, blobs).Write(context.Background(), "m1", samplePoints("m1", 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3blob: write history m1")
}

func TestHistoryArchive_LargeUsesMultipart(t *testing.T) {
	blobs := newMemBlobs()
	archive := NewHistoryArchive(blobs, blobs)

	// Over 30 bytes per line puts 300k points past the threshold.
	require.NoError(t, archive.Write(context.Background(), "big", samplePoints("big", 300_000)))
	assert.Equal(t, 1, blobs.multipart)
}

func TestHistoryArchive_MarketIDsAndHas(t *testing.T) {
	blobs := newMemBlobs()
	archive := NewHistoryArchive(blobs, blobs)
	ctx := context.Background()

	require.NoError(t, archive.Write(ctx, "a", samplePoints("a", 1)))
	require.NoError(t, archive.Write(ctx, "b", samplePoints("b", 1)))
	blobs.objects["history/readme.txt"] = []byte("x")

	ids, err := archive.MarketIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)

	ok, err := archive.Has(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = archive.Has(ctx, "c")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDecodeHistory_BadLine(t *testing.T) {
	_, err := decodeHistory(strings.NewReader("{\"t\":1,\"p\":0.1}\nnot json\n"), "m", time.Time{}, time.Time{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("https://s3.example.com", false))
}
