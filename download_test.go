package unicache

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
)

// rangedServer serves payload with byte-range support and counts range
// requests.
func rangedServer(payload []byte, rangeHits *atomic.Int64) *httptest.Server {
	modTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") != "" && rangeHits != nil {
			rangeHits.Add(1)
		}
		http.ServeContent(w, r, "payload.bin", modTime, bytes.NewReader(payload))
	}))
}

func TestDownloaderFetchRanged(t *testing.T) {
	payload := patternBytes(10_000)
	var rangeHits atomic.Int64
	server := rangedServer(payload, &rangeHits)
	defer server.Close()

	memFs := afero.NewMemMapFs()
	d := NewDownloader()
	d.Fs = memFs
	d.PartSize = 1024
	d.MaxConns = 4

	if err := d.Fetch(context.Background(), server.URL, "out.bin"); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	got, err := afero.ReadFile(memFs, "out.bin")
	if err != nil {
		t.Fatalf("Failed to read downloaded file: %v", err)
	}
	assertBytesEqual(t, got, payload, "ranged download")

	if rangeHits.Load() < 2 {
		t.Errorf("range requests = %d, want several", rangeHits.Load())
	}
}

func TestDownloaderFetchSequentialFallback(t *testing.T) {
	payload := patternBytes(5000)
	// No Accept-Ranges, no content length on HEAD: forces the sequential
	// path.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Write(payload)
	}))
	defer server.Close()

	memFs := afero.NewMemMapFs()
	d := NewDownloader()
	d.Fs = memFs
	d.PartSize = 1024

	if err := d.Fetch(context.Background(), server.URL, "out.bin"); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	got, err := afero.ReadFile(memFs, "out.bin")
	if err != nil {
		t.Fatalf("Failed to read downloaded file: %v", err)
	}
	assertBytesEqual(t, got, payload, "sequential download")
}

func TestDownloaderFetchErrorRemovesPartial(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	memFs := afero.NewMemMapFs()
	d := NewDownloader()
	d.Fs = memFs

	if err := d.Fetch(context.Background(), server.URL, "out.bin"); err == nil {
		t.Fatal("Fetch of failing server succeeded")
	}
	if exists, _ := afero.Exists(memFs, "out.bin"); exists {
		t.Error("partial download left behind")
	}
}

func TestDownloadFileStoresInCache(t *testing.T) {
	payload := patternBytes(3000)
	server := rangedServer(payload, nil)
	defer server.Close()

	cache, memFs := newTestCache(t, WithBlockSize(256))

	url := server.URL + "/weights.bin"
	id, err := cache.DownloadFile(context.Background(), url, "")
	if err != nil {
		t.Fatalf("DownloadFile failed: %v", err)
	}
	if id != FileIDFromURL(url) {
		t.Errorf("id = %q, want %q", id, FileIDFromURL(url))
	}

	got := retrieveBytes(t, cache, memFs, id, "out.bin")
	assertBytesEqual(t, got, payload, "downloaded content")

	// The transfer temp file is cleaned up.
	entries, err := afero.ReadDir(memFs, "cache")
	if err != nil {
		t.Fatalf("Failed to list cache dir: %v", err)
	}
	for _, entry := range entries {
		if entry.Name() != blocksFileName && entry.Name() != indexFileName {
			t.Errorf("unexpected file in cache dir: %s", entry.Name())
		}
	}
}

func TestDownloadFileSkipsCachedID(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("payload"))
	}))
	defer server.Close()

	cache, memFs := newTestCache(t, WithBlockSize(256))
	storeBytes(t, cache, memFs, "f.bin", []byte("already here"), "cached-id")

	id, err := cache.DownloadFile(context.Background(), server.URL, "cached-id")
	if err != nil {
		t.Fatalf("DownloadFile failed: %v", err)
	}
	if id != "cached-id" {
		t.Errorf("id = %q, want %q", id, "cached-id")
	}
	if hits.Load() != 0 {
		t.Errorf("server hits = %d, want 0 for a cached id", hits.Load())
	}
}
