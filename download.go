package unicache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxConns = 8
	defaultPartSize = 8 << 20 // 8MB ranges keep connections busy without huge buffers
)

// Downloader fetches URLs to local files. When the server advertises
// byte-range support and the body is larger than PartSize, the body is
// fetched as concurrent range requests into a preallocated file;
// otherwise a single sequential GET is used.
type Downloader struct {
	Client   *http.Client
	Fs       afero.Fs
	MaxConns int
	PartSize int64
}

// NewDownloader returns a Downloader with default client, filesystem,
// connection count and part size.
func NewDownloader() *Downloader {
	return &Downloader{
		Client:   http.DefaultClient,
		Fs:       afero.NewOsFs(),
		MaxConns: defaultMaxConns,
		PartSize: defaultPartSize,
	}
}

// Fetch downloads rawURL to dest. A partial dest is removed on failure.
func (d *Downloader) Fetch(ctx context.Context, rawURL, dest string) error {
	length, ranged, err := d.probe(ctx, rawURL)
	if err != nil {
		return err
	}

	if ranged && length > d.PartSize {
		err = d.fetchRanged(ctx, rawURL, dest, length)
	} else {
		err = d.fetchSequential(ctx, rawURL, dest)
	}
	if err != nil {
		_ = d.Fs.Remove(dest)
		return err
	}
	return nil
}

// probe asks the server for the content length and whether it accepts
// byte ranges. Servers that fail HEAD are treated as non-ranged.
func (d *Downloader) probe(ctx context.Context, rawURL string) (int64, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to build request for %s: %w", rawURL, err)
	}

	resp, err := d.Client.Do(req)
	if err != nil {
		return 0, false, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, false, nil
	}
	ranged := resp.Header.Get("Accept-Ranges") == "bytes" && resp.ContentLength > 0
	return resp.ContentLength, ranged, nil
}

func (d *Downloader) fetchSequential(ctx context.Context, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", rawURL, err)
	}

	resp, err := d.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to fetch %s: status %s", rawURL, resp.Status)
	}

	out, err := d.Fs.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return nil
}

func (d *Downloader) fetchRanged(ctx context.Context, rawURL, dest string, length int64) error {
	out, err := d.Fs.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if err := out.Truncate(length); err != nil {
		out.Close()
		return fmt.Errorf("failed to preallocate %s: %w", dest, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to preallocate %s: %w", dest, err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.MaxConns)

	for off := int64(0); off < length; off += d.PartSize {
		start, end := off, off+d.PartSize
		if end > length {
			end = length
		}
		g.Go(func() error {
			return d.fetchPart(ctx, rawURL, dest, start, end)
		})
	}
	return g.Wait()
}

// fetchPart downloads the half-open range [start, end) into dest. Each
// part opens its own handle so positional writes do not share a file
// offset.
func (d *Downloader) fetchPart(ctx context.Context, rawURL, dest string, start, end int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", rawURL, err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end-1))

	resp, err := d.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("failed to fetch range [%d, %d) of %s: status %s", start, end, rawURL, resp.Status)
	}

	buf, err := io.ReadAll(io.LimitReader(resp.Body, end-start))
	if err != nil {
		return fmt.Errorf("failed to read range [%d, %d) of %s: %w", start, end, rawURL, err)
	}
	if int64(len(buf)) != end-start {
		return fmt.Errorf("short range [%d, %d) of %s: got %d bytes", start, end, rawURL, len(buf))
	}

	out, err := d.Fs.OpenFile(dest, os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := out.WriteAt(buf, start); err != nil {
		return fmt.Errorf("failed to write %s at %d: %w", dest, start, err)
	}
	return nil
}

// DownloadFile fetches rawURL and stores its bytes in the cache. An empty
// fileID derives the id from the URL (FileIDFromURL); when that id is
// already cached the download is skipped. The temporary file used for the
// transfer lives inside the cache directory and is removed afterwards.
func (c *Cache) DownloadFile(ctx context.Context, rawURL, fileID string) (string, error) {
	if fileID == "" {
		fileID = FileIDFromURL(rawURL)
	}
	if c.Exists(fileID) {
		return fileID, nil
	}

	d := NewDownloader()
	d.Client = c.httpClient
	d.Fs = c.fs

	tmp := filepath.Join(c.dir, fmt.Sprintf("download-%016x.tmp", xxhash.Sum64String(rawURL)))
	if err := d.Fetch(ctx, rawURL, tmp); err != nil {
		return "", err
	}
	defer c.fs.Remove(tmp)

	f, err := c.fs.Open(tmp)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", tmp, err)
	}
	defer f.Close()

	name := ""
	if u, err := url.Parse(rawURL); err == nil {
		name = path.Base(u.Path)
		if name == "." || name == "/" {
			name = ""
		}
	}
	return c.StoreReader(f, name, fileID)
}
