package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// NewHTTPClient returns a pooled client with the given per-request timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	c := cleanhttp.DefaultPooledClient()
	c.Timeout = timeout
	return c
}

// GetJSON performs a GET and decodes the JSON response into out.
// Non-2xx responses are returned as HTTPError (see CheckResponse).
func GetJSON(ctx context.Context, hc *http.Client, providerName, url string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return DoJSON(hc, providerName, req, out)
}

// DoJSON sends req and decodes the JSON response into out.
func DoJSON(hc *http.Client, providerName string, req *http.Request, out any) error {
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", providerName, err)
	}
	defer resp.Body.Close()

	if err := CheckResponse(providerName, resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedResponse, providerName, err)
	}
	return nil
}

// Download streams url into w. A 404 is returned as an HTTPError that
// matches ErrNotFound.
func Download(ctx context.Context, hc *http.Client, providerName, url string, header http.Header, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s download failed: %w", providerName, err)
	}
	defer resp.Body.Close()

	if err := CheckResponse(providerName, resp); err != nil {
		return err
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("%s download of %s interrupted: %w", providerName, url, err)
	}
	return nil
}

// DownloadFile saves url to dest unless dest already exists. The file only
// appears once the download has finished. downloaded is false when dest was
// already present.
func DownloadFile(ctx context.Context, hc *http.Client, providerName, url string, header http.Header, dest string) (downloaded bool, err error) {
	if _, err := os.Stat(dest); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return false, fmt.Errorf("failed to create %s: %w", filepath.Dir(dest), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return false, fmt.Errorf("failed to create temp file for %s: %w", dest, err)
	}
	defer os.Remove(tmp.Name())

	if err := Download(ctx, hc, providerName, url, header, tmp); err != nil {
		tmp.Close()
		return false, err
	}
	if err := tmp.Close(); err != nil {
		return false, err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return false, fmt.Errorf("failed to move download into %s: %w", dest, err)
	}
	return true, nil
}
