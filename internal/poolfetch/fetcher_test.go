package poolfetch

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gioe/aiq/internal/itempool"
)

func poolJSON(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, itempool.Encode(&buf, itempool.Snapshot{
		Version: "v1.4.0",
		Items: []itempool.Item{
			{ID: "L1", Category: "logic", Discrimination: 1.1, Difficulty: 0.2,
				Calibration: itempool.Calibration{SampleSize: 500}},
			{ID: "V1", Category: "verbal", Discrimination: 0.8, Difficulty: -0.4,
				Calibration: itempool.Calibration{SampleSize: 50}},
		},
	}))
	return buf.Bytes()
}

func sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func gzipped(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, err := gw.Write(data)
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	return buf.Bytes()
}

// buildTarGz creates a tar.gz archive containing a single file.
func buildTarGz(t *testing.T, name string, content []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)

	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     name,
		Size:     int64(len(content)),
		Mode:     0644,
		Typeflag: tar.TypeReg,
	}))
	_, err := tw.Write(content)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())
	return buf.Bytes()
}

func serve(t *testing.T, files map[string][]byte) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := files[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestParseChecksums(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[string]string
	}{
		{
			name:  "normal",
			input: "abc123  pool.json\nDEF456  pool.json.gz\n",
			want: map[string]string{
				"pool.json":    "abc123",
				"pool.json.gz": "def456",
			},
		},
		{
			name:  "empty",
			input: "",
			want:  map[string]string{},
		},
		{
			name:  "binary marker and malformed lines",
			input: "abc123 *pool.tgz\nbadline\n  \nfoo  bar  baz\n",
			want: map[string]string{
				"pool.tgz": "abc123",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseChecksums([]byte(tt.input)))
		})
	}
}

func TestVerifyChecksum(t *testing.T) {
	data := []byte("hello world")

	t.Run("match", func(t *testing.T) {
		assert.NoError(t, verifyChecksum(data, sum(data)))
	})

	t.Run("mismatch", func(t *testing.T) {
		err := verifyChecksum(data, "0000000000000000000000000000000000000000000000000000000000000000")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrChecksum)
	})
}

func TestFetch(t *testing.T) {
	doc := poolJSON(t)
	gz := gzipped(t, doc)
	tgz := buildTarGz(t, "release/pool.json", doc)
	checksums := fmt.Sprintf("%s  pool.json\n%s  pool.json.gz\n%s  pool.tar.gz\n", sum(doc), sum(gz), sum(tgz))
	server := serve(t, map[string][]byte{
		"/v1.4.0/pool.json":     doc,
		"/v1.4.0/pool.json.gz":  gz,
		"/v1.4.0/pool.tar.gz":   tgz,
		"/v1.4.0/checksums.txt": []byte(checksums),
		"/v1.4.0/bad.txt":       []byte("0000  pool.json\n"),
	})

	for _, name := range []string{"pool.json", "pool.json.gz", "pool.tar.gz"} {
		t.Run(name, func(t *testing.T) {
			var stages []string
			dec, err := NewFetcher().Fetch(context.Background(), &FetchInput{
				URL:          server.URL + "/v1.4.0/" + name,
				ChecksumsURL: server.URL + "/v1.4.0/checksums.txt",
			}, func(p FetchProgress) { stages = append(stages, p.Stage) })
			require.NoError(t, err)
			assert.Equal(t, "v1.4.0", dec.Snapshot.Version)
			assert.Len(t, dec.Snapshot.Items, 2)
			assert.Equal(t, []string{"download", "verify", "decode", "done"}, stages)
		})
	}

	t.Run("calibration filter", func(t *testing.T) {
		dec, err := NewFetcher(WithFilter(itempool.CalibrationFilter{MinSampleSize: 100})).
			Fetch(context.Background(), &FetchInput{URL: server.URL + "/v1.4.0/pool.json"}, nil)
		require.NoError(t, err)
		assert.Len(t, dec.Snapshot.Items, 1)
		assert.Len(t, dec.Rejected, 1)
	})

	t.Run("checksum mismatch", func(t *testing.T) {
		_, err := NewFetcher().Fetch(context.Background(), &FetchInput{
			URL:          server.URL + "/v1.4.0/pool.json",
			ChecksumsURL: server.URL + "/v1.4.0/bad.txt",
		}, nil)
		assert.ErrorIs(t, err, ErrChecksum)
	})

	t.Run("unlisted file", func(t *testing.T) {
		_, err := NewFetcher().Fetch(context.Background(), &FetchInput{
			URL:          server.URL + "/v1.4.0/pool.json.gz",
			ChecksumsURL: server.URL + "/v1.4.0/bad.txt",
		}, nil)
		assert.ErrorIs(t, err, ErrNoChecksum)
	})

	t.Run("download failure", func(t *testing.T) {
		_, err := NewFetcher().Fetch(context.Background(), &FetchInput{URL: server.URL + "/v9/pool.json"}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "download pool")
	})
}

func TestProvider(t *testing.T) {
	server := serve(t, map[string][]byte{"/pool.json": poolJSON(t)})
	p := &Provider{Fetcher: NewFetcher(), Input: FetchInput{URL: server.URL + "/pool.json"}}
	pool, err := p.LoadPool(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v1.4.0", pool.Version())
	assert.Equal(t, 2, pool.Len())
}

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("https://example.com/pool.json"))
	assert.True(t, IsRemote("http://localhost:8080/p.json"))
	assert.False(t, IsRemote("pool.json"))
	assert.False(t, IsRemote("/var/lib/aiq/pool.json"))
	assert.False(t, IsRemote("file:///tmp/pool.json"))
}
