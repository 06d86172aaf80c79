package signing

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"math"
	"strconv"
	"strings"

	"github.com/tendant/signed-upload/pkg/signedupload"
	"golang.org/x/exp/slices"
)

// Params is an upload parameter set. Every key/value here is signed together and must be sent
// to the storage API unchanged.
type Params map[string]any

// Keys of the parameter set issued for an upload
const (
	ParamTimestamp    = "timestamp"
	ParamFolder       = "folder"
	ParamUploadPreset = "upload_preset"
	ParamPublicID     = "public_id"
)

// Hash names accepted by WithHash
const (
	HashSHA256 = "sha256"
	HashSHA1   = "sha1"
)

// Signer computes HMAC signatures over canonicalized parameter sets
type Signer struct {
	secret   []byte
	hashName string
	hashFunc func() hash.Hash
}

// New creates a new Signer with the given options. Default hash is SHA-256.
func New(opts ...Option) *Signer {
	s := &Signer{
		hashName: HashSHA256,
		hashFunc: sha256.New,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// IsEnabled returns true if a secret is configured
func (s *Signer) IsEnabled() bool {
	return len(s.secret) > 0
}

// HashName returns the configured hash, "sha256" or "sha1"
func (s *Signer) HashName() string {
	return s.hashName
}

// Sign canonicalizes params and returns the lowercase hex HMAC.
//
// Example:
//
//	sig, err := signer.Sign(signing.Params{"timestamp": 1700000000, "folder": "scrubbed/user-42"})
//	// signs "folder=scrubbed/user-42&timestamp=1700000000"
func (s *Signer) Sign(params Params) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrNoSecret
	}

	payload, err := Canonicalize(params)
	if err != nil {
		return "", err
	}

	return s.generateSignature(payload), nil
}

// Verify recomputes the signature of params and compares it in constant time.
func (s *Signer) Verify(params Params, signature string) error {
	if signature == "" {
		return ErrMissingSignature
	}

	expected, err := s.Sign(params)
	if err != nil {
		return err
	}

	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
		return ErrInvalidSignature
	}

	return nil
}

// Canonicalize sorts the keys and joins key=value pairs with "&".
func Canonicalize(params Params) (string, error) {
	if len(params) == 0 {
		return "", encodingError("parameter set is empty", nil)
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "" {
			return "", encodingError("parameter key is empty", nil)
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	for i, k := range keys {
		v, err := Stringify(params[k])
		if err != nil {
			return "", encodingError(fmt.Sprintf("parameter %q cannot be encoded", k), err)
		}
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
	}

	return b.String(), nil
}

// Stringify renders a parameter value the way it is sent in the multipart form.
func Stringify(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case int:
		return strconv.FormatInt(int64(val), 10), nil
	case int8:
		return strconv.FormatInt(int64(val), 10), nil
	case int16:
		return strconv.FormatInt(int64(val), 10), nil
	case int32:
		return strconv.FormatInt(int64(val), 10), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case uint:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint64:
		return strconv.FormatUint(val, 10), nil
	case float32:
		return formatFloat(float64(val), 32)
	case float64:
		return formatFloat(val, 64)
	case json.Number:
		return val.String(), nil
	case fmt.Stringer:
		return val.String(), nil
	case nil:
		return "", fmt.Errorf("nil value")
	default:
		return "", fmt.Errorf("unsupported type %T", v)
	}
}

func formatFloat(f float64, bits int) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("non-finite number %v", f)
	}
	return strconv.FormatFloat(f, 'f', -1, bits), nil
}

func encodingError(message string, cause error) error {
	return signedupload.Wrap(signedupload.KindEncoding, cause, message)
}

// generateSignature generates the HMAC signature for the given payload
func (s *Signer) generateSignature(payload string) string {
	h := hmac.New(s.hashFunc, s.secret)
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// hashByName resolves a case-insensitive hash name to its canonical name and constructor.
func hashByName(name string) (string, func() hash.Hash, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case HashSHA256, "":
		return HashSHA256, sha256.New, true
	case HashSHA1:
		return HashSHA1, sha1.New, true
	default:
		return "", nil, false
	}
}
