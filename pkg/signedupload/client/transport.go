package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tendant/signed-upload/pkg/signedupload"
	"github.com/tendant/signed-upload/pkg/signedupload/credential"
)

// DefaultFunctionName is the serverless function that issues credentials
const DefaultFunctionName = "generate-upload-signature"

const maxResponseBytes = 1 << 20

// Request is the optional body of an issuance call
type Request struct {
	PublicID string `json:"public_id,omitempty"`
	TestMode bool   `json:"test_mode,omitempty"`
}

// Transport carries one issuance call to the server
type Transport interface {
	Invoke(ctx context.Context, token string, req Request) ([]byte, error)
}

// DirectTransport posts straight to the issuance endpoint
type DirectTransport struct {
	URL        string
	HTTPClient *http.Client
}

func (t *DirectTransport) Invoke(ctx context.Context, token string, req Request) ([]byte, error) {
	return post(ctx, t.HTTPClient, t.URL, token, nil, req)
}

// FunctionsTransport invokes the endpoint through the functions gateway of the identity
// provider's project (POST <BaseURL>/functions/v1/<Function>).
type FunctionsTransport struct {
	BaseURL    string
	Function   string
	AnonKey    string
	HTTPClient *http.Client
}

func (t *FunctionsTransport) Invoke(ctx context.Context, token string, req Request) ([]byte, error) {
	name := t.Function
	if name == "" {
		name = DefaultFunctionName
	}
	url := strings.TrimRight(t.BaseURL, "/") + "/functions/v1/" + name

	headers := map[string]string{"x-client-info": "signed-upload-go"}
	if t.AnonKey != "" {
		headers["apikey"] = t.AnonKey
	}
	return post(ctx, t.HTTPClient, url, token, headers, req)
}

// errorResponse mirrors the issuance endpoint's error body
type errorResponse struct {
	Error   string          `json:"error"`
	Details string          `json:"details"`
	Missing map[string]bool `json:"missing"`
}

func post(ctx context.Context, hc *http.Client, url, token string, headers map[string]string, req Request) ([]byte, error) {
	if hc == nil {
		hc = http.DefaultClient
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, signedupload.Wrap(signedupload.KindEncoding, err, "failed to encode issuance request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, signedupload.Wrap(signedupload.KindNetwork, err, "failed to build issuance request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := hc.Do(httpReq)
	if err != nil {
		return nil, signedupload.Wrap(signedupload.KindNetwork, err, "issuance request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, signedupload.Wrap(signedupload.KindNetwork, err, "issuance response interrupted")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, issuanceError(resp.StatusCode, body)
	}
	return body, nil
}

// issuanceError maps an error body onto the taxonomy, falling back to the status code
func issuanceError(status int, body []byte) error {
	var er errorResponse
	_ = json.Unmarshal(body, &er)

	kind := signedupload.Kind(er.Error)
	switch kind {
	case signedupload.KindUnauthenticated, signedupload.KindConfiguration,
		signedupload.KindMalformedRequest, signedupload.KindInternal:
	default:
		switch {
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			kind = signedupload.KindUnauthenticated
		case status == http.StatusBadRequest:
			kind = signedupload.KindMalformedRequest
		default:
			kind = signedupload.KindInternal
		}
	}

	message := er.Details
	if message == "" {
		message = http.StatusText(status)
	}
	if len(er.Missing) > 0 {
		var names []string
		for _, name := range []string{"cloudName", "apiKey", "apiSecret"} {
			if er.Missing[name] {
				names = append(names, name)
			}
		}
		if len(names) > 0 {
			message = fmt.Sprintf("%s (missing %s)", message, strings.Join(names, ", "))
		}
	}

	return &signedupload.Error{Kind: kind, Message: message, Status: status}
}

// decodeBundle parses a 200 body
func decodeBundle(body []byte) (credential.RawBundle, error) {
	raw, err := credential.Decode(body)
	if err != nil {
		return nil, err
	}
	if errMsg, ok := raw["error"]; ok {
		return nil, signedupload.Errorf(signedupload.KindInternal, "issuance returned an error body: %v", errMsg)
	}
	return raw, nil
}

var errNoEndpoint = errors.New("client: endpoint is required")
