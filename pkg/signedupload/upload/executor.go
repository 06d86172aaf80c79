// Package upload sends one file to the media storage API using a normalized credential.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/tendant/signed-upload/pkg/signedupload"
	"github.com/tendant/signed-upload/pkg/signedupload/credential"
)

// DefaultBaseURL is the hosted storage API
const DefaultBaseURL = "https://api.cloudinary.com/v1_1"

const maxErrorBody = 64 << 10

// ProgressFunc receives the request body bytes handed to the transport so far, out of total.
type ProgressFunc func(sent, total int64)

// File is the payload of one upload
type File struct {
	Name        string
	Reader      io.Reader
	ContentType string
	// Progress, when set, is called as the request body is sent
	Progress ProgressFunc
}

// Executor performs signed multipart uploads. It never retries.
type Executor struct {
	httpClient   *http.Client
	baseURL      string
	resourceType string
}

// Option configures an Executor
type Option func(*Executor)

// WithHTTPClient sets the HTTP client; its timeout bounds the whole upload
func WithHTTPClient(c *http.Client) Option {
	return func(e *Executor) {
		if c != nil {
			e.httpClient = c
		}
	}
}

// WithBaseURL points the executor at another storage API (the emulator in tests)
func WithBaseURL(u string) Option {
	return func(e *Executor) {
		if u != "" {
			e.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithResourceType overrides the "auto" resource type
func WithResourceType(rt string) Option {
	return func(e *Executor) {
		if rt != "" {
			e.resourceType = rt
		}
	}
}

// NewExecutor creates an Executor
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		httpClient:   &http.Client{Timeout: 5 * time.Minute},
		baseURL:      DefaultBaseURL,
		resourceType: "auto",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Endpoint is the upload URL for cloudName
func (e *Executor) Endpoint(cloudName string) string {
	return fmt.Sprintf("%s/%s/%s/upload", e.baseURL, cloudName, e.resourceType)
}

// ExecuteRaw normalizes raw and uploads. An invalid bundle fails before any network call.
func (e *Executor) ExecuteRaw(ctx context.Context, file File, raw credential.RawBundle) (*signedupload.UploadResult, error) {
	cred, err := credential.Normalize(raw)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, file, cred)
}

// Execute uploads file with exactly the parameters cred was signed over.
func (e *Executor) Execute(ctx context.Context, file File, cred credential.Credential) (*signedupload.UploadResult, error) {
	if err := cred.Validate(); err != nil {
		return nil, err
	}
	if file.Reader == nil {
		return nil, signedupload.Errorf(signedupload.KindEncoding, "no file to upload")
	}

	buf, contentType, err := e.encode(file, cred)
	if err != nil {
		return nil, err
	}
	total := int64(buf.Len())

	var body io.Reader = buf
	if file.Progress != nil {
		body = &progressReader{reader: buf, total: total, callback: file.Progress}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.Endpoint(cred.CloudName), body)
	if err != nil {
		return nil, signedupload.Wrap(signedupload.KindNetwork, err, "failed to build upload request")
	}
	req.ContentLength = total
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, signedupload.Wrap(signedupload.KindNetwork, err, "upload request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, rejected(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, signedupload.Wrap(signedupload.KindNetwork, err, "upload response interrupted")
	}

	var result signedupload.UploadResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, &signedupload.Error{
			Kind:    signedupload.KindUploadRejected,
			Message: "unreadable upload response",
			Status:  resp.StatusCode,
			Err:     err,
		}
	}
	return &result, nil
}

// encode builds the multipart body. Optional fields are only written when present so the
// posted set matches the signed set.
func (e *Executor) encode(file File, cred credential.Credential) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"api_key", cred.APIKey},
		{"timestamp", strconv.FormatInt(cred.Timestamp, 10)},
		{"signature", cred.Signature},
		{"folder", cred.Folder},
	}
	if cred.PublicID != "" {
		fields = append(fields, [2]string{"public_id", cred.PublicID})
	}
	if cred.UploadPreset != "" {
		fields = append(fields, [2]string{"upload_preset", cred.UploadPreset})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", signedupload.Wrap(signedupload.KindEncoding, err, "failed to encode upload form")
		}
	}

	name := file.Name
	if name == "" {
		name = "blob"
	}
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(name)))
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", signedupload.Wrap(signedupload.KindEncoding, err, "failed to encode upload form")
	}
	if _, err := io.Copy(part, file.Reader); err != nil {
		return nil, "", signedupload.Wrap(signedupload.KindEncoding, err, "failed to read file")
	}
	if err := w.Close(); err != nil {
		return nil, "", signedupload.Wrap(signedupload.KindEncoding, err, "failed to encode upload form")
	}
	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

type remoteError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// progressReader reports how much of the request body the transport has read
type progressReader struct {
	reader   io.Reader
	sent     int64
	total    int64
	callback ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.sent += int64(n)
	if n > 0 {
		pr.callback(pr.sent, pr.total)
	}
	return n, err
}

// rejected maps a non-2xx response to UploadRejected with the remote message
func rejected(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	message := http.StatusText(resp.StatusCode)
	var body remoteError
	if err := json.Unmarshal(data, &body); err == nil && body.Error.Message != "" {
		message = body.Error.Message
	} else if text := strings.TrimSpace(string(data)); text != "" && len(text) < 512 {
		message = text
	}

	return &signedupload.Error{
		Kind:    signedupload.KindUploadRejected,
		Message: message,
		Status:  resp.StatusCode,
	}
}
