// Package filesapi talks to the messaging platform's authenticated file APIs:
// the files.info metadata lookup and the private download URL it returns.
package filesapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrLookup indicates the metadata lookup did not succeed.
	ErrLookup = errors.New("file lookup failed")

	// ErrDownload indicates the content download did not succeed.
	ErrDownload = errors.New("file download failed")

	// ErrTooLarge indicates the content exceeded the configured limit.
	ErrTooLarge = errors.New("file exceeds size limit")
)

// FileMetadata is the subset of files.info used to drive a download.
type FileMetadata struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Title              string `json:"title,omitempty"`
	Mimetype           string `json:"mimetype,omitempty"`
	Size               int64  `json:"size,omitempty"`
	URLPrivate         string `json:"url_private,omitempty"`
	URLPrivateDownload string `json:"url_private_download"`
}

type fileInfoResponse struct {
	OK    bool          `json:"ok"`
	Error string        `json:"error,omitempty"`
	File  *FileMetadata `json:"file,omitempty"`
}

// Client calls the file APIs with a bearer token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a client. A nil httpClient gets a 30s timeout client.
func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

// FileInfo looks up the metadata of fileID.
func (c *Client) FileInfo(ctx context.Context, fileID string) (*FileMetadata, error) {
	endpoint := c.baseURL + "/files.info?" + url.Values{"file": {fileID}}.Encode()

	req, err := c.newRequest(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLookup, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLookup, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrLookup, resp.StatusCode)
	}

	var info fileInfoResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrLookup, err)
	}
	if !info.OK {
		reason := info.Error
		if reason == "" {
			reason = "ok=false"
		}
		return nil, fmt.Errorf("%w: %s", ErrLookup, reason)
	}
	if info.File == nil || info.File.URLPrivateDownload == "" {
		return nil, fmt.Errorf("%w: response has no url_private_download", ErrLookup)
	}
	if info.File.Name == "" {
		return nil, fmt.Errorf("%w: response has no file name", ErrLookup)
	}
	return info.File, nil
}

// Download streams the content at downloadURL into w and returns the number of
// bytes written. A positive limit caps the accepted size.
func (c *Client) Download(ctx context.Context, downloadURL string, w io.Writer, limit int64) (int64, error) {
	u, err := url.Parse(downloadURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") {
		return 0, fmt.Errorf("%w: unsupported download url", ErrDownload)
	}

	req, err := c.newRequest(ctx, u.String())
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDownload, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDownload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: status %d", ErrDownload, resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if limit > 0 {
		if resp.ContentLength > limit {
			return 0, fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength)
		}
		body = io.LimitReader(resp.Body, limit+1)
	}

	n, err := io.Copy(w, body)
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrDownload, err)
	}
	if limit > 0 && n > limit {
		return n, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	return n, nil
}

func (c *Client) newRequest(ctx context.Context, target string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	return req, nil
}
