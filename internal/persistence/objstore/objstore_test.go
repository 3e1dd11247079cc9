package objstore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClient_PutFileSigns(t *testing.T) {
	var (
		gotPath string
		gotAuth string
		gotBody string
		gotDate string
		gotHash string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotDate = r.Header.Get("x-amz-date")
		gotHash = r.Header.Get("x-amz-content-sha256")
	}))
	defer srv.Close()

	c, err := New(Credentials{Endpoint: srv.URL, Bucket: "ledger", AccessKey: "AK", SecretKey: "SK"})
	require.NoError(t, err)
	c.now = func() time.Time { return time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC) }

	p := filepath.Join(t.TempDir(), "x.snap.zst")
	require.NoError(t, os.WriteFile(p, []byte("snapshot"), 0o644))
	require.NoError(t, c.PutFile(context.Background(), "/a b/../snapshots/x.snap.zst", p))

	require.Equal(t, "/ledger/snapshots/x.snap.zst", gotPath)
	require.Equal(t, "snapshot", gotBody)
	require.Equal(t, "20261018T120000Z", gotDate)
	require.Len(t, gotHash, 64)
	require.True(t, strings.HasPrefix(gotAuth, "AWS4-HMAC-SHA256 Credential=AK/20261018/auto/s3/aws4_request, SignedHeaders=host;x-amz-content-sha256;x-amz-date, Signature="), gotAuth)
}

func TestClient_PutFileStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		http.Error(rw, "denied", http.StatusForbidden)
	}))
	defer srv.Close()
	c, err := New(Credentials{Endpoint: srv.URL, Bucket: "b", AccessKey: "a", SecretKey: "s"})
	require.NoError(t, err)
	p := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	err = c.PutFile(context.Background(), "f", p)
	require.ErrorContains(t, err, "status 403")
}

func TestNew_RequiresFields(t *testing.T) {
	_, err := New(Credentials{Endpoint: "example.com", Bucket: "b"})
	require.Error(t, err)
}

type fakeUploader struct {
	mu    sync.Mutex
	keys  []string
	fails int
}

func (f *fakeUploader) PutFile(_ context.Context, key, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("transient")
	}
	f.keys = append(f.keys, key)
	return nil
}

func TestMirror_UploadsRelativeKeys(t *testing.T) {
	dir := t.TempDir()
	up := &fakeUploader{fails: 1}
	m := NewMirror(up, dir, "/prod/", 1, 4, nil)
	m.backoff = time.Millisecond

	m.Enqueue(filepath.Join(dir, "snapshots", "000000000016.snap.zst"))
	m.Enqueue(filepath.Join(dir, "..", "elsewhere"))
	m.Close()

	require.Equal(t, []string{"prod/snapshots/000000000016.snap.zst"}, up.keys)
	st := m.Stats()
	require.Equal(t, uint64(2), st.Enqueued)
	require.Equal(t, uint64(1), st.Uploaded)
	require.Equal(t, uint64(1), st.Failed)
}
