package mediahost

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/signed-upload/pkg/signedupload"
	"github.com/tendant/signed-upload/pkg/signedupload/signing"
)

const (
	defaultMaxUploadBytes = 32 << 20
	multipartMemory       = 8 << 20
)

// Fields that are sent with an upload but never signed
var unsignedFields = map[string]bool{
	"file":          true,
	"api_key":       true,
	"signature":     true,
	"cloud_name":    true,
	"resource_type": true,
}

var resourceTypes = map[string]bool{
	"auto":  true,
	"image": true,
	"video": true,
	"raw":   true,
}

// Server serves the upload, delivery and admin endpoints for one account.
type Server struct {
	account        Account
	signer         *signing.Signer
	blobs          BlobStore
	repo           AssetRepository
	logger         *slog.Logger
	now            func() time.Time
	ttl            time.Duration
	publicURL      string
	maxUploadBytes int64
}

// Option configures a Server
type Option func(*Server)

// WithClock overrides the time source used for the TTL check
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// WithTTL sets how long a signed timestamp is accepted
func WithTTL(ttl time.Duration) Option {
	return func(s *Server) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithLogger sets the logger (slog.Default() otherwise)
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithPublicURL sets the base used for secure_url in responses
func WithPublicURL(u string) Option {
	return func(s *Server) {
		s.publicURL = strings.TrimRight(u, "/")
	}
}

// WithMaxUploadBytes caps the multipart body size
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// New creates an emulator for account backed by blobs and repo.
func New(account Account, blobs BlobStore, repo AssetRepository, opts ...Option) *Server {
	s := &Server{
		account:        account,
		signer:         signing.New(signing.WithSecretString(account.APISecret), signing.WithHash(account.Hash)),
		blobs:          blobs,
		repo:           repo,
		logger:         slog.Default(),
		now:            time.Now,
		ttl:            signedupload.DefaultTTL,
		publicURL:      "http://localhost:8090",
		maxUploadBytes: defaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the public upload and delivery routes
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{cloudName}/{resourceType}/upload", s.Upload)
	r.Get("/assets/{assetID}", s.Download)
	return r
}

// AdminRoutes returns the asset listing routes. Callers protect them.
func (s *Server) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/assets", s.ListAssets)
	r.Get("/assets/{assetID}", s.GetAsset)
	r.Delete("/assets/{assetID}", s.DeleteAsset)
	return r
}

type apiError struct {
	Message string `json:"message"`
}

type errorBody struct {
	Error apiError `json:"error"`
}

// Upload accepts a signed multipart upload.
func (s *Server) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cloudName := chi.URLParam(r, "cloudName")
	resourceType := chi.URLParam(r, "resourceType")

	if cloudName != s.account.CloudName {
		s.reject(w, r, http.StatusNotFound, "Invalid cloud_name %s", cloudName)
		return
	}
	if !resourceTypes[resourceType] {
		s.reject(w, r, http.StatusBadRequest, "Invalid resource type %s", resourceType)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		s.reject(w, r, http.StatusBadRequest, "Invalid multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	form := r.MultipartForm.Value
	apiKey := first(form, "api_key")
	if apiKey == "" {
		s.reject(w, r, http.StatusBadRequest, "Must supply api_key")
		return
	}
	if apiKey != s.account.APIKey {
		s.reject(w, r, http.StatusUnauthorized, "Unknown API key %s", apiKey)
		return
	}

	signature := first(form, "signature")
	if signature == "" {
		s.reject(w, r, http.StatusBadRequest, "Missing required parameter - signature")
		return
	}

	rawTimestamp := first(form, signing.ParamTimestamp)
	if rawTimestamp == "" {
		s.reject(w, r, http.StatusBadRequest, "Missing required parameter - timestamp")
		return
	}
	timestamp, err := strconv.ParseInt(rawTimestamp, 10, 64)
	if err != nil {
		s.reject(w, r, http.StatusBadRequest, "Invalid timestamp %s", rawTimestamp)
		return
	}
	now := s.now()
	if age := now.Sub(time.Unix(timestamp, 0)); age > s.ttl {
		s.reject(w, r, http.StatusBadRequest, "Stale request - reported time is %d which is more than %s ago", timestamp, s.ttl)
		return
	}

	params := signedParams(form)
	if err := s.signer.Verify(params, signature); err != nil {
		if signing.IsVerificationError(err) {
			s.logger.Info("Upload signature mismatch", "cloud_name", cloudName, "folder", first(form, signing.ParamFolder))
			s.reject(w, r, http.StatusUnauthorized, "Invalid Signature %s", signature)
			return
		}
		s.reject(w, r, http.StatusBadRequest, "Invalid upload parameters")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.reject(w, r, http.StatusBadRequest, "Missing required parameter - file")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(path.Ext(header.Filename)); byExt != "" {
			contentType = byExt
		}
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if resourceType == "auto" {
		resourceType = detectResourceType(contentType)
	}

	folder := first(form, signing.ParamFolder)
	publicID := first(form, signing.ParamPublicID)
	if publicID == "" {
		publicID = uuid.NewString()
	}
	if folder != "" {
		publicID = folder + "/" + publicID
	}

	asset := &Asset{
		ID:           uuid.New(),
		CloudName:    cloudName,
		PublicID:     publicID,
		Folder:       folder,
		ResourceType: resourceType,
		Format:       strings.TrimPrefix(strings.ToLower(path.Ext(header.Filename)), "."),
		ContentType:  contentType,
		Bytes:        header.Size,
		Version:      now.Unix(),
		OriginalName: strings.TrimSuffix(header.Filename, path.Ext(header.Filename)),
		CreatedAt:    now.UTC(),
	}
	asset.ObjectKey = objectKey(asset)

	if err := s.blobs.Put(ctx, asset.ObjectKey, file, contentType); err != nil {
		s.logger.Error("Failed to store upload", "key", asset.ObjectKey, "err", err)
		s.reject(w, r, http.StatusInternalServerError, "Upload failed")
		return
	}
	if err := s.repo.CreateAsset(ctx, asset); err != nil {
		if delErr := s.blobs.Delete(ctx, asset.ObjectKey); delErr != nil {
			s.logger.Warn("Failed to remove orphaned blob", "key", asset.ObjectKey, "err", delErr)
		}
		if errors.Is(err, ErrAssetExists) {
			s.reject(w, r, http.StatusConflict, "Resource already exists - %s", publicID)
			return
		}
		s.logger.Error("Failed to record asset", "public_id", publicID, "err", err)
		s.reject(w, r, http.StatusInternalServerError, "Upload failed")
		return
	}

	s.logger.Info("Upload accepted",
		"asset_id", asset.ID,
		"public_id", asset.PublicID,
		"bytes", asset.Bytes,
	)
	render.JSON(w, r, s.result(asset))
}

// Download streams the stored bytes of an asset
func (s *Server) Download(w http.ResponseWriter, r *http.Request) {
	asset, ok := s.lookup(w, r)
	if !ok {
		return
	}

	rc, err := s.blobs.Open(r.Context(), asset.ObjectKey)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			s.reject(w, r, http.StatusNotFound, "Resource not found - %s", asset.PublicID)
			return
		}
		s.logger.Error("Failed to open asset", "asset_id", asset.ID, "err", err)
		s.reject(w, r, http.StatusInternalServerError, "Download failed")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", asset.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(asset.Bytes, 10))
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("Download interrupted", "asset_id", asset.ID, "err", err)
	}
}

// ListAssets lists the assets in a folder (all folders when the query is empty)
func (s *Server) ListAssets(w http.ResponseWriter, r *http.Request) {
	folder := strings.Trim(r.URL.Query().Get("folder"), "/")
	assets, err := s.repo.ListAssets(r.Context(), s.account.CloudName, folder)
	if err != nil {
		s.logger.Error("Failed to list assets", "folder", folder, "err", err)
		s.reject(w, r, http.StatusInternalServerError, "List failed")
		return
	}

	results := make([]signedupload.UploadResult, 0, len(assets))
	for _, a := range assets {
		results = append(results, s.result(a))
	}
	render.JSON(w, r, map[string]interface{}{"resources": results})
}

// GetAsset returns the record of one asset
func (s *Server) GetAsset(w http.ResponseWriter, r *http.Request) {
	asset, ok := s.lookup(w, r)
	if !ok {
		return
	}
	render.JSON(w, r, s.result(asset))
}

// DeleteAsset removes an asset and its bytes
func (s *Server) DeleteAsset(w http.ResponseWriter, r *http.Request) {
	asset, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := s.blobs.Delete(r.Context(), asset.ObjectKey); err != nil && !errors.Is(err, ErrObjectNotFound) {
		s.logger.Error("Failed to delete blob", "asset_id", asset.ID, "err", err)
		s.reject(w, r, http.StatusInternalServerError, "Delete failed")
		return
	}
	if err := s.repo.DeleteAsset(r.Context(), asset.ID); err != nil {
		s.logger.Error("Failed to delete asset", "asset_id", asset.ID, "err", err)
		s.reject(w, r, http.StatusInternalServerError, "Delete failed")
		return
	}
	render.JSON(w, r, map[string]string{"result": "ok"})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*Asset, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "assetID"))
	if err != nil {
		s.reject(w, r, http.StatusBadRequest, "Invalid asset id")
		return nil, false
	}
	asset, err := s.repo.GetAsset(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrAssetNotFound) {
			s.reject(w, r, http.StatusNotFound, "Resource not found - %s", id)
			return nil, false
		}
		s.logger.Error("Failed to load asset", "asset_id", id, "err", err)
		s.reject(w, r, http.StatusInternalServerError, "Lookup failed")
		return nil, false
	}
	return asset, true
}

func (s *Server) result(a *Asset) signedupload.UploadResult {
	return signedupload.UploadResult{
		PublicID:     a.PublicID,
		SecureURL:    fmt.Sprintf("%s/assets/%s", s.publicURL, a.ID),
		ResourceType: a.ResourceType,
		Format:       a.Format,
		Bytes:        a.Bytes,
		AssetID:      a.ID.String(),
		Version:      a.Version,
		Folder:       a.Folder,
		CreatedAt:    a.CreatedAt,
	}
}

func (s *Server) reject(w http.ResponseWriter, r *http.Request, status int, format string, args ...interface{}) {
	render.Status(r, status)
	render.JSON(w, r, errorBody{Error: apiError{Message: fmt.Sprintf(format, args...)}})
}

// signedParams collects every posted field that takes part in the signature. Empty values are
// skipped the same way the hosted API skips them.
func signedParams(form map[string][]string) signing.Params {
	params := signing.Params{}
	for key, values := range form {
		if unsignedFields[key] || len(values) == 0 || values[0] == "" {
			continue
		}
		params[key] = values[0]
	}
	return params
}

func first(form map[string][]string, key string) string {
	if values := form[key]; len(values) > 0 {
		return values[0]
	}
	return ""
}

func detectResourceType(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return "image"
	case strings.HasPrefix(contentType, "video/"), strings.HasPrefix(contentType, "audio/"):
		return "video"
	default:
		return "raw"
	}
}

// objectKey is unique per asset
func objectKey(a *Asset) string {
	key := path.Join(a.CloudName, a.ResourceType, a.ID.String())
	if a.Format != "" {
		key += "." + a.Format
	}
	return key
}
