package signedupload

import "time"

// DefaultTTL is how long a signed timestamp is honored by the storage API.
const DefaultTTL = time.Hour

// Bundle is the credential returned by the issuance service. The public key, cloud name,
// upload preset and public id are emitted under every spelling clients have historically read.
type Bundle struct {
	Signature string `json:"signature"`
	Timestamp int64  `json:"timestamp"`
	Folder    string `json:"folder"`

	CloudName       string `json:"cloudName"`
	CloudNameLegacy string `json:"cloud_name"`

	APIKey       string `json:"apiKey"`
	APIKeyLegacy string `json:"api_key"`

	UploadPreset       string `json:"uploadPreset"`
	UploadPresetLegacy string `json:"upload_preset"`

	PublicID       string `json:"publicId,omitempty"`
	PublicIDLegacy string `json:"public_id,omitempty"`
}

// NewBundle fills every alias from the canonical values.
func NewBundle(signature string, timestamp int64, cloudName, apiKey, folder, uploadPreset, publicID string) *Bundle {
	return &Bundle{
		Signature:          signature,
		Timestamp:          timestamp,
		Folder:             folder,
		CloudName:          cloudName,
		CloudNameLegacy:    cloudName,
		APIKey:             apiKey,
		APIKeyLegacy:       apiKey,
		UploadPreset:       uploadPreset,
		UploadPresetLegacy: uploadPreset,
		PublicID:           publicID,
		PublicIDLegacy:     publicID,
	}
}

// ExpiresAt is the last moment the storage API accepts this bundle, given its TTL.
func (b *Bundle) ExpiresAt(ttl time.Duration) time.Time {
	return time.Unix(b.Timestamp, 0).Add(ttl)
}

// UploadResult describes an asset accepted by the storage API.
type UploadResult struct {
	PublicID     string    `json:"public_id"`
	SecureURL    string    `json:"secure_url"`
	ResourceType string    `json:"resource_type"`
	Format       string    `json:"format"`
	Bytes        int64     `json:"bytes"`
	AssetID      string    `json:"asset_id,omitempty"`
	Version      int64     `json:"version,omitempty"`
	Folder       string    `json:"folder,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}
