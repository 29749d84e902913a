// Package api talks to the web frontend that archives session reports.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ktgames/mining/pkg/core"
)

// UploadPath is where reports are posted.
const UploadPath = "/api/v1/sessions/add"

// Client handles communication with the web frontend.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	attempts int
	backoff  time.Duration
}

// New creates a new API client. Uploads are tried three times.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		attempts:   3,
		backoff:    2 * time.Second,
	}
}

// StatusError is a non-200 reply from the frontend.
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Op, e.Code)
}

// Temporary reports whether repeating the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code >= http.StatusInternalServerError || e.Code == http.StatusTooManyRequests
}

// Healthcheck checks if the web frontend is reachable.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthcheck", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Op: "healthcheck", Code: resp.StatusCode}
	}
	return nil
}

// Upload posts a session report file. Server errors are retried with a
// doubling delay; client errors and a cancelled ctx end the upload.
func (c *Client) Upload(ctx context.Context, filePath string, meta core.UploadMetadata) error {
	delay := c.backoff
	var err error
	for attempt := 1; ; attempt++ {
		err = c.post(ctx, filePath, meta)
		var status *StatusError
		if err == nil || !errors.As(err, &status) || !status.Temporary() || attempt >= c.attempts {
			return err
		}
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func (c *Client) post(ctx context.Context, filePath string, meta core.UploadMetadata) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	written := make(chan error, 1)
	go func() {
		err := writeForm(form, file, filepath.Base(filePath), c.apiKey, meta)
		if err == nil {
			err = form.Close()
		}
		pw.CloseWithError(err)
		written <- err
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+UploadPath, pr)
	if err != nil {
		pr.Close()
		<-written
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		pr.Close()
		<-written
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := <-written; err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Op: "upload", Code: resp.StatusCode}
	}
	return nil
}

func writeForm(w *multipart.Writer, file io.Reader, name, secret string, meta core.UploadMetadata) error {
	fields := [][2]string{
		{"secret", secret},
		{"filename", name},
		{"worldName", meta.WorldName},
		{"sessionUuid", meta.SessionUUID},
		{"sessionDuration", fmt.Sprintf("%f", meta.SessionDuration)},
		{"tag", meta.Tag},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return fmt.Errorf("failed to write field %s: %w", f[0], err)
		}
	}

	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}
	return nil
}
