// Package api talks to the SiteTrace web frontend: reachability checks and
// session export uploads.
package api

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sitetrace/extension/pkg/core"
)

const (
	healthcheckPath = "/healthcheck"
	uploadPath      = "/api/v1/sessions/add"
)

// Client is an authenticated frontend client. Safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Healthcheck reports whether the frontend answers with 200.
func (c *Client) Healthcheck() error {
	resp, err := c.httpClient.Get(c.baseURL + healthcheckPath)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}

// Upload posts a gzipped session export with its metadata as a multipart
// form. Exports are small enough to buffer in memory.
func (c *Client) Upload(filePath string, meta core.UploadMetadata) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	body, contentType, err := c.encodeForm(file, filepath.Base(filePath), meta)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+uploadPath, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upload returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) encodeForm(file io.Reader, filename string, meta core.UploadMetadata) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	fields := [][2]string{
		{"secret", c.apiKey},
		{"filename", filename},
		{"siteName", meta.SiteName},
		{"sessionKey", meta.SessionKey},
		{"durationSeconds", strconv.FormatFloat(meta.DurationSeconds, 'f', -1, 64)},
		{"tag", meta.Tag},
	}
	for _, f := range fields {
		if err := form.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %s: %w", f[0], err)
		}
	}

	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("failed to read export file: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize form: %w", err)
	}

	return &body, form.FormDataContentType(), nil
}
