// Package credential turns the loosely typed bundle returned by the issuance endpoint into a
// typed Credential the upload executor accepts.
package credential

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tendant/signed-upload/pkg/signedupload"
)

// Canonical keys emitted by Raw
const (
	KeySignature    = "signature"
	KeyTimestamp    = "timestamp"
	KeyCloudName    = "cloudName"
	KeyAPIKey       = "apiKey"
	KeyFolder       = "folder"
	KeyUploadPreset = "uploadPreset"
	KeyPublicID     = "publicId"
)

// aliases lists the accepted spellings per canonical key, preferred first.
var aliases = map[string][]string{
	KeyCloudName:    {"cloudName", "cloud_name"},
	KeyAPIKey:       {"apiKey", "api_key"},
	KeyUploadPreset: {"uploadPreset", "upload_preset"},
	KeyPublicID:     {"publicId", "public_id"},
}

// RawBundle is a credential bundle as decoded from JSON, with any historical spelling.
type RawBundle map[string]any

// Credential is a normalized bundle. It is created per attempt and never persisted.
type Credential struct {
	Signature    string
	Timestamp    int64
	CloudName    string
	APIKey       string
	Folder       string
	UploadPreset string
	PublicID     string
}

// Decode parses a JSON issuance response into a RawBundle. Numbers keep their exact text.
func Decode(data []byte) (RawBundle, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw RawBundle
	if err := dec.Decode(&raw); err != nil {
		return nil, signedupload.Wrap(signedupload.KindInvalidCredential, err, "credential response is not a JSON object")
	}
	if raw == nil {
		return nil, signedupload.Errorf(signedupload.KindInvalidCredential, "credential response is empty")
	}
	return raw, nil
}

// Normalize maps every accepted spelling onto a Credential. Values are carried unchanged, since
// they were signed as sent. A bundle without a signature, cloud name or api key is rejected with
// InvalidCredential.
func Normalize(raw RawBundle) (Credential, error) {
	var c Credential
	var err error

	if c.Signature, err = stringField(raw, KeySignature); err != nil {
		return Credential{}, err
	}
	if c.CloudName, err = aliasField(raw, KeyCloudName); err != nil {
		return Credential{}, err
	}
	if c.APIKey, err = aliasField(raw, KeyAPIKey); err != nil {
		return Credential{}, err
	}
	if err := c.Validate(); err != nil {
		return Credential{}, err
	}

	if c.Timestamp, err = timestampField(raw); err != nil {
		return Credential{}, err
	}
	if c.Folder, err = stringField(raw, KeyFolder); err != nil {
		return Credential{}, err
	}
	if c.UploadPreset, err = aliasField(raw, KeyUploadPreset); err != nil {
		return Credential{}, err
	}
	if c.PublicID, err = aliasField(raw, KeyPublicID); err != nil {
		return Credential{}, err
	}
	return c, nil
}

// Validate rejects a credential that cannot authorize an upload. It checks presence only.
func (c Credential) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Signature) == "" {
		missing = append(missing, "signature")
	}
	if strings.TrimSpace(c.CloudName) == "" {
		missing = append(missing, "cloudName")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		missing = append(missing, "apiKey")
	}
	if len(missing) > 0 {
		return signedupload.Errorf(signedupload.KindInvalidCredential,
			"credential is missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Raw re-emits the credential under canonical keys only, so Normalize(c.Raw()) == c.
func (c Credential) Raw() RawBundle {
	raw := RawBundle{
		KeySignature: c.Signature,
		KeyTimestamp: c.Timestamp,
		KeyCloudName: c.CloudName,
		KeyAPIKey:    c.APIKey,
		KeyFolder:    c.Folder,
	}
	if c.UploadPreset != "" {
		raw[KeyUploadPreset] = c.UploadPreset
	}
	if c.PublicID != "" {
		raw[KeyPublicID] = c.PublicID
	}
	return raw
}

// Redacted returns a copy safe to print: the signature is shortened.
func (c Credential) Redacted() Credential {
	if len(c.Signature) > 8 {
		c.Signature = c.Signature[:8] + "..."
	}
	return c
}

func aliasField(raw RawBundle, key string) (string, error) {
	for _, name := range aliases[key] {
		v, err := stringField(raw, name)
		if err != nil {
			return "", err
		}
		if v != "" {
			return v, nil
		}
	}
	return "", nil
}

func stringField(raw RawBundle, key string) (string, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return "", nil
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	default:
		return "", signedupload.Errorf(signedupload.KindInvalidCredential, "%s must be a string, got %T", key, v)
	}
}

func timestampField(raw RawBundle) (int64, error) {
	v, ok := raw[KeyTimestamp]
	if !ok || v == nil {
		return 0, signedupload.Errorf(signedupload.KindInvalidCredential, "credential is missing timestamp")
	}

	invalid := func() error {
		return signedupload.Errorf(signedupload.KindInvalidCredential, "timestamp %v is not a unix time", v)
	}

	switch t := v.(type) {
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) || t != math.Trunc(t) {
			return 0, invalid()
		}
		return int64(t), nil
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, invalid()
		}
		return n, nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, invalid()
		}
		return n, nil
	default:
		return 0, signedupload.Errorf(signedupload.KindInvalidCredential, "timestamp has unsupported type %s", fmt.Sprintf("%T", v))
	}
}
