// Package upload publishes captured images to Cloudinary and writes the
// generated description back as image context.
package upload

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/glimpsed/internal/pipeline"
)

// Credential keys read from the uploader bundle
const (
	CloudNameEnv = "CLOUDINARY_CLOUD_NAME"
	APIKeyEnv    = "CLOUDINARY_API_KEY"
	APISecretEnv = "CLOUDINARY_API_SECRET"
)

// ErrIncompleteCredentials is returned when cloud name, key or secret is empty.
var ErrIncompleteCredentials = errors.New("incomplete cloudinary credentials")

// ErrNoLocator is returned when an upload succeeded without a public URL.
var ErrNoLocator = errors.New("upload returned no secure url")

// Cloudinary implements pipeline.Externalizer.
type Cloudinary struct {
	cld    *cloudinary.Cloudinary
	folder string
}

// New creates an uploader from explicit credentials.
func New(cloudName, apiKey, apiSecret, folder string) (*Cloudinary, error) {
	if cloudName == "" || apiKey == "" || apiSecret == "" {
		return nil, ErrIncompleteCredentials
	}
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: %w", err)
	}
	cld.Config.URL.Secure = true
	return &Cloudinary{cld: cld, folder: folder}, nil
}

// FromCredentials builds an uploader from a credential map holding the
// CLOUDINARY_* keys.
func FromCredentials(creds map[string]string, folder string) (*Cloudinary, error) {
	return New(creds[CloudNameEnv], creds[APIKeyEnv], creds[APISecretEnv], folder)
}

// Upload sends the file at path and returns where it can be fetched.
func (c *Cloudinary) Upload(ctx context.Context, path string) (pipeline.Upload, error) {
	resp, err := c.cld.Upload.Upload(ctx, path, uploader.UploadParams{Folder: c.folder})
	if err != nil {
		return pipeline.Upload{}, fmt.Errorf("upload %s: %w", path, err)
	}
	if resp.Error.Message != "" {
		return pipeline.Upload{}, fmt.Errorf("upload %s: %s", path, resp.Error.Message)
	}
	if resp.SecureURL == "" {
		return pipeline.Upload{}, ErrNoLocator
	}

	log.Debug().Str("public_id", resp.PublicID).Str("url", resp.SecureURL).Msg("Image uploaded")
	return pipeline.Upload{Locator: resp.SecureURL, PublicID: resp.PublicID}, nil
}

// Annotate stores text as the alt context of an uploaded image.
func (c *Cloudinary) Annotate(ctx context.Context, publicID, text string) error {
	resp, err := c.cld.Upload.Explicit(ctx, uploader.ExplicitParams{
		PublicID: publicID,
		Type:     api.Upload,
		Context:  api.CldAPIMap{"alt": text},
	})
	if err != nil {
		return fmt.Errorf("annotate %s: %w", publicID, err)
	}
	if resp.Error.Message != "" {
		return fmt.Errorf("annotate %s: %s", publicID, resp.Error.Message)
	}
	return nil
}
