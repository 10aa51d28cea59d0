package thumbnail

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for x := 0; x < 64; x++ {
		for y := 0; y < 48; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 5), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func server(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/AAAAA/hqdefault.jpg" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch(t *testing.T) {
	img := testJPEG(t)
	c := New(Options{BaseURL: server(t, img).URL + "/"})

	got, err := c.Fetch(context.Background(), "AAAAA")
	require.NoError(t, err)
	assert.Equal(t, img, got)

	_, err = c.Fetch(context.Background(), "BBBBB")
	assert.ErrorContains(t, err, "status 404")

	_, err = c.Fetch(context.Background(), "")
	assert.Error(t, err)
}

func TestPerceptualHash(t *testing.T) {
	h, err := PerceptualHash(testJPEG(t))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(h, "p:"), h)

	_, err = PerceptualHash([]byte("not an image"))
	assert.Error(t, err)
}

func TestArchive(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "thumbs")
	img := testJPEG(t)
	c := New(Options{BaseURL: server(t, img).URL, Dir: dir})
	require.True(t, c.Enabled())

	path, hash, err := c.Archive(context.Background(), "AAAAA")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "AAAAA.jpg"), path)
	assert.NotEmpty(t, hash)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, img, data)
}

func TestArchive_Disabled(t *testing.T) {
	c := New(Options{})
	assert.False(t, c.Enabled())
	path, hash, err := c.Archive(context.Background(), "AAAAA")
	assert.NoError(t, err)
	assert.Empty(t, path)
	assert.Empty(t, hash)
}
