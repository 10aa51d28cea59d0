// Package thumbnail fetches video thumbnails, computes their perceptual
// hash and archives them for later review of suspicious entries.
package thumbnail

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // thumbnail format
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/corona10/goimagehash"

	logpkg "github.com/haukened/watchangel/internal/watch/common/log"
)

// DefaultBaseURL serves thumbnails by video id.
const DefaultBaseURL = "https://i.ytimg.com/vi"

// maxImageBytes caps a thumbnail download.
const maxImageBytes = 4 << 20

// Options configures a Client.
type Options struct {
	BaseURL    string
	Dir        string // archive directory; empty disables Archive
	HTTPClient *http.Client
	Logger     logpkg.Logger
}

// Client talks to the thumbnail host.
type Client struct {
	baseURL string
	dir     string
	http    *http.Client
	logger  logpkg.Logger
}

// New returns a Client, filling defaults for zero options.
func New(opts Options) *Client {
	c := &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		dir:     opts.Dir,
		http:    opts.HTTPClient,
		logger:  opts.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 10 * time.Second}
	}
	if c.logger == nil {
		c.logger = logpkg.NewNoopLogger()
	}
	return c
}

// Enabled reports whether archiving is configured.
func (c *Client) Enabled() bool { return c.dir != "" }

// Fetch downloads the high quality thumbnail of video id.
func (c *Client) Fetch(ctx context.Context, id string) ([]byte, error) {
	if id == "" {
		return nil, fmt.Errorf("fetch thumbnail: empty video id")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+id+"/hqdefault.jpg", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch thumbnail %s: %w", id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch thumbnail %s: status %d", id, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("read thumbnail %s: %w", id, err)
	}
	return data, nil
}

// PerceptualHash returns the pHash of an encoded image as "p:<hex>".
func PerceptualHash(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	h, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return "", fmt.Errorf("perception hash: %w", err)
	}
	return h.ToString(), nil
}

// Archive fetches the thumbnail of id, stores it as <dir>/<id>.jpg and
// returns the file path and perceptual hash.
func (c *Client) Archive(ctx context.Context, id string) (string, string, error) {
	if !c.Enabled() {
		return "", "", nil
	}
	data, err := c.Fetch(ctx, id)
	if err != nil {
		return "", "", err
	}
	hash, err := PerceptualHash(data)
	if err != nil {
		return "", "", err
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", "", err
	}
	path := filepath.Join(c.dir, filepath.Base(id)+".jpg")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", "", fmt.Errorf("store thumbnail: %w", err)
	}
	c.logger.Info(map[string]any{"video_id": id, "path": path, "phash": hash}, "thumbnail_archived")
	return path, hash, nil
}
