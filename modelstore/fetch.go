// Package modelstore owns the process-wide model singletons the
// cloaking pipeline depends on — the DNN face detector, the Haar
// cascade fallback, and the SFace-style embedding extractor — plus
// the one-time download/cache step that fills the models directory
// the first time any of them is needed.
package modelstore

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// fetchTimeout bounds a single model-file download attempt; model
// files are a few MB to ~37MB, so this is generous rather than tight.
const fetchTimeout = 2 * time.Minute

// ensureFile guarantees path exists under dir, downloading it from
// urls in order (first success wins) if missing. minBytes rejects a
// truncated or placeholder download (e.g. a Git-LFS pointer file
// masquerading as the real artifact) and tries the next URL.
func ensureFile(dir, name string, urls []string, minBytes int64) (string, error) {
	path := filepath.Join(dir, name)
	if info, err := os.Stat(path); err == nil {
		if minBytes == 0 || info.Size() >= minBytes {
			return path, nil
		}
		slog.Warn("modelstore: cached file too small, refetching", "path", path, "size", info.Size())
		os.Remove(path)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("modelstore: create models dir %q: %w", dir, err)
	}

	var lastErr error
	for _, url := range urls {
		slog.Info("modelstore: downloading model file", "name", name, "url", url)
		if err := download(url, path, minBytes); err != nil {
			slog.Warn("modelstore: download failed, trying next source", "url", url, "error", err)
			lastErr = err
			continue
		}
		return path, nil
	}
	return "", fmt.Errorf("modelstore: could not fetch %s from any source: %w", name, lastErr)
}

// download fetches url into dest, rejecting (and removing) a response
// smaller than minBytes.
func download(url, dest string, minBytes int64) error {
	client := &http.Client{Timeout: fetchTimeout}
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	n, copyErr := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if copyErr != nil {
		os.Remove(tmp)
		return copyErr
	}
	if closeErr != nil {
		os.Remove(tmp)
		return closeErr
	}
	if minBytes > 0 && n < minBytes {
		os.Remove(tmp)
		return fmt.Errorf("downloaded %d bytes, want at least %d (likely a placeholder)", n, minBytes)
	}
	return os.Rename(tmp, dest)
}
