package upload

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/signed-upload/pkg/signedupload"
	"github.com/tendant/signed-upload/pkg/signedupload/auth"
	"github.com/tendant/signed-upload/pkg/signedupload/credential"
	"github.com/tendant/signed-upload/pkg/signedupload/issuance"
	"github.com/tendant/signed-upload/pkg/signedupload/keystore"
	"github.com/tendant/signed-upload/pkg/signedupload/mediahost"
	blobmemory "github.com/tendant/signed-upload/pkg/signedupload/mediahost/blob/memory"
	repomemory "github.com/tendant/signed-upload/pkg/signedupload/mediahost/repo/memory"
)

const (
	testCloud  = "demo"
	testKey    = "key-1"
	testSecret = "emulator-secret"
)

type harness struct {
	blobs    *blobmemory.Backend
	repo     *repomemory.Repository
	server   *httptest.Server
	executor *Executor
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		blobs: blobmemory.New(),
		repo:  repomemory.New(),
		now:   time.Now(),
	}
	emu := mediahost.New(
		mediahost.Account{CloudName: testCloud, APIKey: testKey, APISecret: testSecret},
		h.blobs, h.repo,
		mediahost.WithClock(func() time.Time { return h.now }),
	)
	h.server = httptest.NewServer(emu.Routes())
	t.Cleanup(h.server.Close)
	h.executor = NewExecutor(WithBaseURL(h.server.URL))
	return h
}

// issue runs the real issuance service and returns what a client would decode
func issue(t *testing.T, issuedAt time.Time, req issuance.IssueRequest, ksOpts ...keystore.Option) credential.Credential {
	t.Helper()
	ks := keystore.New(testCloud, testKey, testSecret, ksOpts...)
	svc := issuance.NewService(ks, issuance.WithClock(func() time.Time { return issuedAt }))

	bundle, err := svc.Issue(context.Background(), auth.Identity{SubjectID: "user-42"}, req)
	require.NoError(t, err)

	body, err := json.Marshal(bundle)
	require.NoError(t, err)
	raw, err := credential.Decode(body)
	require.NoError(t, err)
	cred, err := credential.Normalize(raw)
	require.NoError(t, err)
	return cred
}

func testFile(content string) File {
	return File{Name: "photo.png", Reader: strings.NewReader(content), ContentType: "image/png"}
}

func TestExecute_RoundTrip(t *testing.T) {
	h := newHarness(t)
	cred := issue(t, h.now, issuance.IssueRequest{})

	result, err := h.executor.Execute(context.Background(), testFile("png-bytes"), cred)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(result.PublicID, "scrubbed/user-42/"))
	assert.Equal(t, "scrubbed/user-42", result.Folder)
	assert.Equal(t, "image", result.ResourceType)
	assert.Equal(t, "png", result.Format)
	assert.Equal(t, int64(len("png-bytes")), result.Bytes)
	assert.NotEmpty(t, result.SecureURL)
	assert.Equal(t, 1, h.blobs.Len())
}

func TestExecute_WithPublicIDAndPreset(t *testing.T) {
	h := newHarness(t)
	cred := issue(t, h.now, issuance.IssueRequest{PublicID: "avatar"}, keystore.WithUploadPreset("signed-preset"))
	require.Equal(t, "signed-preset", cred.UploadPreset)

	result, err := h.executor.Execute(context.Background(), testFile("x"), cred)
	require.NoError(t, err)
	assert.Equal(t, "scrubbed/user-42/avatar", result.PublicID)
}

func TestExecute_PresetWithSurroundingWhitespace(t *testing.T) {
	h := newHarness(t)
	cred := issue(t, h.now, issuance.IssueRequest{PublicID: "avatar"}, keystore.WithUploadPreset("  signed-preset "))
	require.Equal(t, "signed-preset", cred.UploadPreset)

	result, err := h.executor.Execute(context.Background(), testFile("x"), cred)
	require.NoError(t, err)
	assert.Equal(t, "scrubbed/user-42/avatar", result.PublicID)
}

func TestExecute_SignedValuesSentVerbatim(t *testing.T) {
	h := newHarness(t)
	issuedAt := h.now
	ks := keystore.New(testCloud, testKey, testSecret)
	svc := issuance.NewService(ks, issuance.WithClock(func() time.Time { return issuedAt }))

	// a subject with surrounding spaces becomes part of the signed folder
	bundle, err := svc.Issue(context.Background(), auth.Identity{SubjectID: " user-42 "}, issuance.IssueRequest{})
	require.NoError(t, err)
	body, err := json.Marshal(bundle)
	require.NoError(t, err)
	raw, err := credential.Decode(body)
	require.NoError(t, err)

	result, err := h.executor.ExecuteRaw(context.Background(), testFile("x"), raw)
	require.NoError(t, err)
	assert.Equal(t, bundle.Folder, result.Folder)
}

func TestExecute_TamperedCredentialRejected(t *testing.T) {
	tests := []struct {
		name   string
		req    issuance.IssueRequest
		preset bool
		mutate func(*credential.Credential)
	}{
		{"altered folder", issuance.IssueRequest{}, false, func(c *credential.Credential) { c.Folder = "scrubbed/user-7" }},
		{"altered timestamp", issuance.IssueRequest{}, false, func(c *credential.Credential) { c.Timestamp-- }},
		{"added public id", issuance.IssueRequest{}, false, func(c *credential.Credential) { c.PublicID = "sneaky" }},
		{"removed public id", issuance.IssueRequest{PublicID: "avatar"}, false, func(c *credential.Credential) { c.PublicID = "" }},
		{"removed preset", issuance.IssueRequest{}, true, func(c *credential.Credential) { c.UploadPreset = "" }},
		{"altered signature", issuance.IssueRequest{}, false, func(c *credential.Credential) { c.Signature = strings.Repeat("0", 64) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			var opts []keystore.Option
			if tt.preset {
				opts = append(opts, keystore.WithUploadPreset("signed-preset"))
			}
			cred := issue(t, h.now, tt.req, opts...)
			tt.mutate(&cred)

			_, err := h.executor.Execute(context.Background(), testFile("x"), cred)
			require.Error(t, err)
			assert.True(t, errors.Is(err, signedupload.ErrUploadRejected))

			var e *signedupload.Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, http.StatusUnauthorized, e.Status)
			assert.Contains(t, e.Message, "Invalid Signature")
			assert.False(t, signedupload.IsRetryable(err))
			assert.Equal(t, 0, h.blobs.Len())
		})
	}
}

func TestExecute_WrongAPIKeyRejected(t *testing.T) {
	h := newHarness(t)
	cred := issue(t, h.now, issuance.IssueRequest{})
	cred.APIKey = "other-key"

	_, err := h.executor.Execute(context.Background(), testFile("x"), cred)
	assert.True(t, errors.Is(err, signedupload.ErrUploadRejected))
}

func TestExecute_ExpiredCredentialRejected(t *testing.T) {
	h := newHarness(t)
	cred := issue(t, h.now.Add(-(signedupload.DefaultTTL + time.Second)), issuance.IssueRequest{})

	_, err := h.executor.Execute(context.Background(), testFile("x"), cred)
	require.Error(t, err)

	var e *signedupload.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, signedupload.KindUploadRejected, e.Kind)
	assert.Equal(t, http.StatusBadRequest, e.Status)
	assert.Contains(t, e.Message, "Stale request")
}

func TestExecute_JustInsideTTLAccepted(t *testing.T) {
	h := newHarness(t)
	cred := issue(t, h.now.Add(-(signedupload.DefaultTTL - time.Minute)), issuance.IssueRequest{})

	_, err := h.executor.Execute(context.Background(), testFile("x"), cred)
	assert.NoError(t, err)
}

func TestExecute_PostsOnlySignedFields(t *testing.T) {
	var fields map[string][]string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, r.ParseMultipartForm(1<<20))
		fields = r.MultipartForm.Value
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"public_id":"p","secure_url":"https://x/p","resource_type":"image","format":"png","bytes":1}`)
	}))
	defer srv.Close()

	cred := credential.Credential{
		Signature: "sig",
		Timestamp: 1700000000,
		CloudName: "demo",
		APIKey:    "key",
		Folder:    "scrubbed/u",
	}
	_, err := NewExecutor(WithBaseURL(srv.URL)).Execute(context.Background(), testFile("x"), cred)
	require.NoError(t, err)

	assert.Equal(t, "/demo/auto/upload", path)
	assert.Equal(t, []string{"1700000000"}, fields["timestamp"])
	assert.Equal(t, []string{"scrubbed/u"}, fields["folder"])
	assert.Equal(t, []string{"key"}, fields["api_key"])
	assert.Equal(t, []string{"sig"}, fields["signature"])
	assert.NotContains(t, fields, "public_id")
	assert.NotContains(t, fields, "upload_preset")
	assert.NotContains(t, fields, "cloud_name")
}

func TestExecuteRaw_InvalidCredentialFailsBeforeNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	_, err := NewExecutor(WithBaseURL(srv.URL)).ExecuteRaw(context.Background(), testFile("x"), credential.RawBundle{
		"timestamp": 1700000000,
		"cloudName": "demo",
		"apiKey":    "key",
	})
	assert.True(t, errors.Is(err, signedupload.ErrInvalidCredential))
	assert.Equal(t, int32(0), calls.Load())
}

func TestExecute_NetworkErrors(t *testing.T) {
	cred := credential.Credential{Signature: "s", Timestamp: 1, CloudName: "demo", APIKey: "k"}

	t.Run("server unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := NewExecutor(WithBaseURL(url)).Execute(context.Background(), testFile("x"), cred)
		assert.True(t, errors.Is(err, signedupload.ErrNetwork))
		assert.True(t, signedupload.IsRetryable(err))
	})

	t.Run("context cancelled", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewExecutor(WithBaseURL(srv.URL)).Execute(ctx, testFile("x"), cred)
		assert.True(t, errors.Is(err, signedupload.ErrNetwork))
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
		}))
		defer srv.Close()
		defer close(release)

		exec := NewExecutor(WithBaseURL(srv.URL), WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
		_, err := exec.Execute(context.Background(), testFile("x"), cred)
		assert.True(t, errors.Is(err, signedupload.ErrNetwork))
	})
}

func TestExecute_NonJSONRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	cred := credential.Credential{Signature: "s", Timestamp: 1, CloudName: "demo", APIKey: "k"}
	_, err := NewExecutor(WithBaseURL(srv.URL)).Execute(context.Background(), testFile("x"), cred)

	var e *signedupload.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, signedupload.KindUploadRejected, e.Kind)
	assert.Equal(t, http.StatusBadGateway, e.Status)
	assert.Equal(t, "bad gateway", e.Message)
}

func TestExecute_NoFile(t *testing.T) {
	cred := credential.Credential{Signature: "s", Timestamp: 1, CloudName: "demo", APIKey: "k"}
	_, err := NewExecutor().Execute(context.Background(), File{Name: "x"}, cred)
	assert.True(t, errors.Is(err, signedupload.ErrEncoding))
}

func TestExecute_IncompleteCredentialFailsBeforeNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	tests := []struct {
		name string
		cred credential.Credential
	}{
		{"zero value", credential.Credential{Timestamp: 1}},
		{"no signature", credential.Credential{Timestamp: 1, CloudName: "demo", APIKey: "k"}},
		{"no cloud name", credential.Credential{Signature: "s", Timestamp: 1, APIKey: "k"}},
		{"blank api key", credential.Credential{Signature: "s", Timestamp: 1, CloudName: "demo", APIKey: "  "}},
	}

	exec := NewExecutor(WithBaseURL(srv.URL))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := exec.Execute(context.Background(), testFile("x"), tt.cred)
			assert.True(t, errors.Is(err, signedupload.ErrInvalidCredential))
		})
	}
	assert.Equal(t, int32(0), calls.Load())
}

func TestExecute_TruncatedResponseIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Length", "200")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"public_id":"scr`))
	}))
	defer srv.Close()

	cred := credential.Credential{Signature: "s", Timestamp: 1, CloudName: "demo", APIKey: "k"}
	_, err := NewExecutor(WithBaseURL(srv.URL)).Execute(context.Background(), testFile("x"), cred)
	assert.True(t, errors.Is(err, signedupload.ErrNetwork))
	assert.True(t, signedupload.IsRetryable(err))
}

func TestExecute_UnreadableSuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	cred := credential.Credential{Signature: "s", Timestamp: 1, CloudName: "demo", APIKey: "k"}
	_, err := NewExecutor(WithBaseURL(srv.URL)).Execute(context.Background(), testFile("x"), cred)

	var e *signedupload.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, signedupload.KindUploadRejected, e.Kind)
	assert.Equal(t, http.StatusOK, e.Status)
}

func TestExecute_ProgressTracksRequestBody(t *testing.T) {
	h := newHarness(t)
	cred := issue(t, h.now, issuance.IssueRequest{})

	var mu sync.Mutex
	var sent []int64
	var total int64
	file := testFile("png-bytes")
	file.Progress = func(n, size int64) {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, n)
		total = size
	}

	_, err := h.executor.Execute(context.Background(), file, cred)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, sent)
	assert.IsNonDecreasing(t, sent)
	assert.Equal(t, total, sent[len(sent)-1])
	assert.Greater(t, total, int64(len("png-bytes")))
}
