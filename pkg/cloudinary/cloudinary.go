// Package cloudinary stores uploaded essay source files as raw Cloudinary assets.
package cloudinary

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxSlugLength = 48

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Enabled reports whether every credential is present.
func (c Config) Enabled() bool {
	return c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

// SourceStore uploads essay source documents.
type SourceStore struct {
	client *cloudinary.Cloudinary
	folder string
	logger zerolog.Logger
}

// New constructs a source store.
func New(cfg Config, logger zerolog.Logger) (*SourceStore, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &SourceStore{
		client: cld,
		folder: strings.Trim(cfg.Folder, "/"),
		logger: logger.With().Str("component", "cloudinary").Logger(),
	}, nil
}

// Upload stores the document as a raw asset and returns its secure URL.
func (s *SourceStore) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	params := uploader.UploadParams{
		Folder:       s.folder,
		PublicID:     publicID(name),
		ResourceType: "raw",
		Tags:         api.CldAPIArray{"aita", "report-source"},
	}

	result, err := s.client.Upload.Upload(ctx, reader, params)
	if err != nil {
		return "", fmt.Errorf("upload source file: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("upload source file: %s", result.Error.Message)
	}

	s.logger.Info().Str("public_id", result.PublicID).Int("bytes", result.Bytes).Msg("source file stored")
	return result.SecureURL, nil
}

// publicID keeps a readable slug of the file name and keeps the extension,
// which raw assets need to be served with the right type.
func publicID(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))

	var slug strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(base) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			slug.WriteRune(r)
			lastDash = false
			continue
		}
		if !lastDash {
			slug.WriteByte('-')
			lastDash = true
		}
	}

	cleaned := strings.Trim(slug.String(), "-")
	if len(cleaned) > maxSlugLength {
		cleaned = strings.Trim(cleaned[:maxSlugLength], "-")
	}
	if cleaned == "" {
		cleaned = "essay"
	}
	return fmt.Sprintf("%s-%s%s", cleaned, uuid.NewString()[:8], ext)
}
