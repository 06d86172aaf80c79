package client

import (
	"context"
	"log/slog"

	"github.com/tendant/signed-upload/pkg/signedupload"
	"github.com/tendant/signed-upload/pkg/signedupload/credential"
	"github.com/tendant/signed-upload/pkg/signedupload/upload"
)

// Executor performs the upload. *upload.Executor implements it.
type Executor interface {
	Execute(ctx context.Context, file upload.File, cred credential.Credential) (*signedupload.UploadResult, error)
}

// ProgressFunc receives the request body bytes sent so far, out of total
type ProgressFunc = upload.ProgressFunc

// Uploader runs complete attempts: request, normalize, upload.
type Uploader struct {
	client   *Client
	executor Executor
	observer Observer
	progress ProgressFunc
	logger   *slog.Logger
}

// UploaderOption configures an Uploader
type UploaderOption func(*Uploader)

// WithObserver receives every attempt transition
func WithObserver(o Observer) UploaderOption {
	return func(u *Uploader) {
		u.observer = o
	}
}

// WithProgress reports upload progress as the request body is sent
func WithProgress(fn ProgressFunc) UploaderOption {
	return func(u *Uploader) {
		u.progress = fn
	}
}

// WithLogger sets the logger (slog.Default() otherwise)
func WithLogger(logger *slog.Logger) UploaderOption {
	return func(u *Uploader) {
		u.logger = logger
	}
}

// NewUploader creates an Uploader
func NewUploader(c *Client, exec Executor, opts ...UploaderOption) *Uploader {
	u := &Uploader{client: c, executor: exec, logger: slog.Default()}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upload runs one attempt with a server-chosen public id
func (u *Uploader) Upload(ctx context.Context, file upload.File) (*signedupload.UploadResult, error) {
	return u.UploadAs(ctx, file, "")
}

// UploadAs runs one attempt, asking the server to sign publicID. Failures are returned with
// their taxonomy kind; the caller decides whether to start a new attempt.
func (u *Uploader) UploadAs(ctx context.Context, file upload.File, publicID string) (*signedupload.UploadResult, error) {
	attempt := NewAttempt(u.observer)
	result, err := u.run(ctx, attempt, file, publicID)
	if err != nil {
		u.logger.Info("Upload attempt failed",
			"attempt", attempt.ID(),
			"kind", signedupload.KindOf(err),
			"retryable", signedupload.IsRetryable(err),
		)
		return nil, err
	}
	u.logger.Info("Upload attempt completed", "attempt", attempt.ID(), "public_id", result.PublicID)
	return result, nil
}

func (u *Uploader) run(ctx context.Context, a *Attempt, file upload.File, publicID string) (*signedupload.UploadResult, error) {
	fail := func(err error) (*signedupload.UploadResult, error) {
		_ = a.Fail(err)
		return nil, err
	}

	if err := a.Advance(StateCredentialRequested); err != nil {
		return nil, err
	}
	raw, err := u.client.RequestCredential(ctx, Request{PublicID: publicID})
	if err != nil {
		return fail(err)
	}

	if err := a.Advance(StateCredentialReceived); err != nil {
		return fail(err)
	}
	cred, err := credential.Normalize(raw)
	if err != nil {
		return fail(err)
	}

	if err := a.Advance(StateNormalized); err != nil {
		return fail(err)
	}
	if err := a.Advance(StateUploading); err != nil {
		return fail(err)
	}

	if u.progress != nil {
		file.Progress = u.progress
	}
	result, err := u.executor.Execute(ctx, file, cred)
	if err != nil {
		return fail(err)
	}

	if err := a.Advance(StateCompleted); err != nil {
		return nil, err
	}
	return result, nil
}
