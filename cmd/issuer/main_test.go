package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tendant/signed-upload/pkg/signedupload/auth"
	"github.com/tendant/signed-upload/pkg/signedupload/issuance"
	"github.com/tendant/signed-upload/pkg/signedupload/keystore"
)

func testRouter() http.Handler {
	svc := issuance.NewService(keystore.New("demo", "key", "secret"))
	verifier := auth.VerifierFunc(func(ctx context.Context, token string) (auth.Identity, error) {
		return auth.Identity{}, auth.ErrInvalidToken
	})
	return newRouter(issuance.NewHandler(svc, verifier), nil)
}

func TestRouterAnswersOptionsEverywhere(t *testing.T) {
	r := testRouter()

	for _, path := range []string{"/", "/healthz", "/metrics", "/anything"} {
		t.Run(path, func(t *testing.T) {
			t.Run("bare", func(t *testing.T) {
				rr := httptest.NewRecorder()
				r.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, path, nil))

				assert.Equal(t, http.StatusOK, rr.Code)
				assert.Empty(t, rr.Body.String())
				assert.NotEmpty(t, rr.Header().Get("Access-Control-Allow-Origin"))
			})

			t.Run("browser", func(t *testing.T) {
				req := httptest.NewRequest(http.MethodOptions, path, nil)
				req.Header.Set("Origin", "https://app.example.com")
				req.Header.Set("Access-Control-Request-Method", "GET")
				rr := httptest.NewRecorder()
				r.ServeHTTP(rr, req)

				assert.Equal(t, http.StatusOK, rr.Code)
				assert.NotEmpty(t, rr.Header().Get("Access-Control-Allow-Origin"))
			})
		})
	}
}

func TestRouterHealthAndMetrics(t *testing.T) {
	r := testRouter()

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouterIssuanceStillAuthenticates(t *testing.T) {
	r := testRouter()

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
