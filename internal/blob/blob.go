// Package blob stores uploaded image bytes behind opaque references.
package blob

import (
	"context"
	"errors"
	"mime"
	"strings"

	"github.com/google/uuid"

	id "kycflow/pkg/domain"
)

// ErrNotFound is returned by Get for an unknown reference.
var ErrNotFound = errors.New("blob not found")

// Object is a stored blob.
type Object struct {
	Ref         string
	ContentType string
	Data        []byte
}

// Store persists blobs. Refs returned by Put are opaque to callers.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Get(ctx context.Context, ref string) (*Object, error)
}

// DocumentKey returns the key for one side ("front" or "back") of an
// identity document image.
func DocumentKey(appID id.ApplicationID, side, contentType string) string {
	return appID.String() + "/documents/" + side + "_" + uuid.NewString() + Extension(contentType)
}

// FacialKey returns the key for a captured face image.
func FacialKey(appID id.ApplicationID, contentType string) string {
	return appID.String() + "/facial/face_" + uuid.NewString() + Extension(contentType)
}

var preferredExt = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

// Extension maps a content type to a file extension, ".bin" when unknown.
func Extension(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ".bin"
	}
	mediaType = strings.ToLower(mediaType)
	if ext, ok := preferredExt[mediaType]; ok {
		return ext
	}
	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return ".bin"
	}
	return exts[0]
}
