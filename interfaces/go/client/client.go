// Package client talks to the inference service's REST surface.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(baseURL string) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: http.DefaultClient}
}

// APIError is a non-2xx reply. Detail is the service's message, verbatim.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("inference service: HTTP %d", e.Status)
	}
	return fmt.Sprintf("inference service: HTTP %d: %s", e.Status, e.Detail)
}

type Upload struct {
	BackgroundID string `json:"background_id"`
	Filename     string `json:"filename"`
	URL          string `json:"url"`
	Message      string `json:"message"`
	Success      bool   `json:"success"`
}

type Background struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	URL  string `json:"url"`
}

type Backgrounds struct {
	Predefined []string     `json:"predefined"`
	Custom     []Background `json:"custom"`
	Current    string       `json:"current"`
}

type Health struct {
	Status             string `json:"status"`
	BackgroundReplacer string `json:"background_replacer"`
}

// UploadBackground posts an image as multipart field "file" and returns the
// identifier the service assigned to it.
func (c *Client) UploadBackground(ctx context.Context, filename string, r io.Reader) (Upload, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Upload{}, fmt.Errorf("read %s: %w", filename, err)
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filepath.Base(filename))))
	h.Set("Content-Type", http.DetectContentType(data))
	part, err := mw.CreatePart(h)
	if err != nil {
		return Upload{}, err
	}
	if _, err := part.Write(data); err != nil {
		return Upload{}, err
	}
	if err := mw.Close(); err != nil {
		return Upload{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/upload-background", &body)
	if err != nil {
		return Upload{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var out Upload
	return out, c.do(req, &out)
}

func (c *Client) ListBackgrounds(ctx context.Context) (Backgrounds, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/backgrounds/list", nil)
	if err != nil {
		return Backgrounds{}, err
	}
	var out Backgrounds
	return out, c.do(req, &out)
}

// SetBackground selects a background through REST rather than the stream.
func (c *Client) SetBackground(ctx context.Context, background string) error {
	payload, _ := json.Marshal(map[string]string{"type": background})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/background", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return Health{}, err
	}
	var out Health
	return out, c.do(req, &out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Detail  any    `json:"detail"`
		Message string `json:"message"`
	}
	apiErr := &APIError{Status: resp.StatusCode}
	if err := json.Unmarshal(b, &body); err != nil {
		apiErr.Detail = strings.TrimSpace(string(b))
		return apiErr
	}
	switch d := body.Detail.(type) {
	case string:
		apiErr.Detail = d
	case nil:
		apiErr.Detail = body.Message
	default:
		// validation errors arrive as a list
		raw, _ := json.Marshal(d)
		apiErr.Detail = string(raw)
	}
	return apiErr
}

func escapeQuotes(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
