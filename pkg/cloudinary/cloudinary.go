package cloudinary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"
)

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Service stores form files in Cloudinary under caller-chosen keys.
type Service struct {
	client *cloudinary.Cloudinary
	folder string
	logger zerolog.Logger
}

// New constructs a Cloudinary service instance.
func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &Service{
		client: cld,
		folder: strings.Trim(cfg.Folder, "/"),
		logger: logger.With().Str("component", "cloudinary").Logger(),
	}, nil
}

// ErrKeyExists is returned when an asset is already stored under the requested key.
var ErrKeyExists = errors.New("blob key already in use")

// Upload stores the file at key and returns its secure URL. Existing assets are never
// overwritten. Cloudinary answers a reused key with the earlier asset and an "existing"
// flag, which is reported as ErrKeyExists so an older version's URL is never handed back.
func (s *Service) Upload(ctx context.Context, key string, reader io.Reader) (string, error) {
	publicID := PublicID(s.folder, key)
	if publicID == "" {
		return "", fmt.Errorf("blob key must not be empty")
	}

	params := uploader.UploadParams{
		PublicID:       publicID,
		ResourceType:   "auto",
		Overwrite:      api.Bool(false),
		UniqueFilename: api.Bool(false),
	}

	result, err := s.client.Upload.Upload(ctx, reader, params)
	if err != nil {
		return "", fmt.Errorf("failed to upload asset: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("failed to upload asset: %s", result.Error.Message)
	}
	if existingAsset(result) {
		s.logger.Warn().Str("public_id", result.PublicID).Msg("cloudinary returned an existing asset")
		return "", fmt.Errorf("%w: %s", ErrKeyExists, publicID)
	}

	s.logger.Info().Str("public_id", result.PublicID).Msg("form file uploaded to cloudinary")

	return result.SecureURL, nil
}

// PublicID joins the configured folder and the blob key. The file extension is kept
// because raw assets carry it as part of their identity.
func PublicID(folder, key string) string {
	key = strings.Trim(strings.TrimSpace(key), "/")
	if key == "" {
		return ""
	}
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return key
	}
	return path.Join(folder, key)
}

// existingAsset reads the "existing" flag from the raw upload response. The typed result
// does not carry it.
func existingAsset(result *uploader.UploadResult) bool {
	if result == nil {
		return false
	}
	raw := result.Response
	if ptr, ok := raw.(*interface{}); ok && ptr != nil {
		raw = *ptr
	}
	body, ok := raw.(map[string]interface{})
	if !ok {
		return false
	}
	existing, _ := body["existing"].(bool)
	return existing
}
