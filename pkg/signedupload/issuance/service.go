package issuance

import (
	"context"
	"strings"
	"time"

	"github.com/tendant/signed-upload/pkg/signedupload"
	"github.com/tendant/signed-upload/pkg/signedupload/auth"
	"github.com/tendant/signed-upload/pkg/signedupload/keystore"
	"github.com/tendant/signed-upload/pkg/signedupload/signing"
)

const maxPublicIDLength = 255

// ParamSigner signs an upload parameter set. *signing.Signer implements it.
type ParamSigner interface {
	Sign(params signing.Params) (string, error)
}

// IssueRequest is the optional JSON body of an issuance call
type IssueRequest struct {
	PublicID string `json:"public_id,omitempty"`
	TestMode bool   `json:"test_mode,omitempty"`
}

// Missing lists the signing values absent from the server configuration
type Missing struct {
	CloudName bool `json:"cloudName"`
	APIKey    bool `json:"apiKey"`
	APISecret bool `json:"apiSecret"`
}

// Diagnostics is the test-mode response. It only reports which values are configured.
type Diagnostics struct {
	TestMode      bool              `json:"test_mode"`
	Authenticated bool              `json:"authenticated"`
	Configured    keystore.Presence `json:"configured"`
	Ready         bool              `json:"ready"`
}

// Service issues signed upload credentials. It holds no per-request state.
type Service struct {
	keys          *keystore.KeyStore
	signer        ParamSigner
	now           func() time.Time
	allowTestMode bool
}

// Option configures a Service
type Option func(*Service)

// WithClock overrides the time source used for timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithSigner replaces the signer built from the key store
func WithSigner(signer ParamSigner) Option {
	return func(s *Service) {
		s.signer = signer
	}
}

// WithHash selects the HMAC hash of the default signer ("sha256" or "sha1")
func WithHash(name string) Option {
	return func(s *Service) {
		s.signer = signing.New(signing.WithSecret(s.keys.Secret()), signing.WithHash(name))
	}
}

// WithTestMode enables the test_mode diagnostic short-circuit
func WithTestMode(allow bool) Option {
	return func(s *Service) {
		s.allowTestMode = allow
	}
}

// NewService creates a Service around an immutable key store.
func NewService(keys *keystore.KeyStore, opts ...Option) *Service {
	s := &Service{
		keys:   keys,
		signer: signing.New(signing.WithSecret(keys.Secret())),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TestModeAllowed reports whether test_mode requests are answered
func (s *Service) TestModeAllowed() bool {
	return s.allowTestMode
}

// Missing reports which signing values are not configured
func (s *Service) Missing() Missing {
	p := s.keys.Presence()
	return Missing{
		CloudName: !p.CloudName,
		APIKey:    !p.APIKey,
		APISecret: !p.APISecret,
	}
}

// Diagnose builds the test-mode payload without signing anything
func (s *Service) Diagnose() Diagnostics {
	p := s.keys.Presence()
	return Diagnostics{
		TestMode:      true,
		Authenticated: true,
		Configured:    p,
		Ready:         p.Complete(),
	}
}

// Folder is the upload folder scoped to a subject
func (s *Service) Folder(subjectID string) string {
	return s.keys.Namespace() + "/" + subjectID
}

// Params derives the parameter set to sign for one issuance.
func (s *Service) Params(id auth.Identity, req IssueRequest, timestamp int64) signing.Params {
	params := signing.Params{
		signing.ParamTimestamp: timestamp,
		signing.ParamFolder:    s.Folder(id.SubjectID),
	}
	if preset := s.keys.UploadPreset(); preset != "" {
		params[signing.ParamUploadPreset] = preset
	}
	if req.PublicID != "" {
		params[signing.ParamPublicID] = req.PublicID
	}
	return params
}

// Issue authenticates nothing itself: id must come from a verified token. The folder is always
// derived from id, never from the request.
func (s *Service) Issue(ctx context.Context, id auth.Identity, req IssueRequest) (*signedupload.Bundle, error) {
	if id.SubjectID == "" {
		return nil, signedupload.Errorf(signedupload.KindUnauthenticated, "verified identity has no subject")
	}

	if !s.keys.Presence().Complete() {
		return nil, signedupload.Errorf(signedupload.KindConfiguration, "upload signing is not configured on the server")
	}

	req.PublicID = strings.TrimSpace(req.PublicID)
	if err := validatePublicID(req.PublicID); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, signedupload.Wrap(signedupload.KindInternal, err, "request cancelled")
	}

	timestamp := s.now().Unix()
	params := s.Params(id, req, timestamp)

	signature, err := s.signer.Sign(params)
	if err != nil {
		return nil, signedupload.Wrap(signedupload.KindInternal, err, "failed to sign upload parameters")
	}

	return signedupload.NewBundle(
		signature,
		timestamp,
		s.keys.CloudName(),
		s.keys.APIKey(),
		s.Folder(id.SubjectID),
		s.keys.UploadPreset(),
		req.PublicID,
	), nil
}

// validatePublicID keeps client-chosen names inside the caller's folder.
func validatePublicID(publicID string) error {
	if publicID == "" {
		return nil
	}
	if len(publicID) > maxPublicIDLength {
		return signedupload.Errorf(signedupload.KindMalformedRequest, "public_id is longer than %d characters", maxPublicIDLength)
	}
	if strings.HasPrefix(publicID, "/") {
		return signedupload.Errorf(signedupload.KindMalformedRequest, "public_id must be relative")
	}
	for _, seg := range strings.Split(publicID, "/") {
		if seg == ".." || seg == "." {
			return signedupload.Errorf(signedupload.KindMalformedRequest, "public_id must not contain relative path segments")
		}
	}
	return nil
}
