package signedupload

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := Errorf(KindUploadRejected, "Invalid Signature abc")
	err.Status = 401

	assert.True(t, errors.Is(err, ErrUploadRejected))
	assert.False(t, errors.Is(err, ErrNetwork))

	wrapped := fmt.Errorf("upload: %w", err)
	assert.True(t, errors.Is(wrapped, ErrUploadRejected))
	assert.Equal(t, KindUploadRejected, KindOf(wrapped))
}

func TestError_Unwrap(t *testing.T) {
	err := Wrap(KindNetwork, context.DeadlineExceeded, "request timed out")

	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.True(t, errors.Is(err, ErrNetwork))
}

func TestError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"kind only", &Error{Kind: KindInternal}, "InternalError: InternalError"},
		{"message", Errorf(KindInvalidCredential, "credential is missing %s", "signature"), "InvalidCredential: credential is missing signature"},
		{"status", &Error{Kind: KindUploadRejected, Message: "Stale request", Status: 400}, "UploadRejected: Stale request (status 400)"},
		{"cause", Wrap(KindNetwork, errors.New("connection refused"), "upload failed"), "NetworkError: upload failed: connection refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestKindOf_ForeignError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Wrap(KindNetwork, errors.New("reset"), "upload failed")))

	for _, kind := range []Kind{
		KindUnauthenticated,
		KindConfiguration,
		KindMalformedRequest,
		KindInternal,
		KindInvalidCredential,
		KindUploadRejected,
		KindEncoding,
	} {
		assert.False(t, IsRetryable(Errorf(kind, "x")), kind)
	}
	assert.False(t, IsRetryable(errors.New("plain")))
}
