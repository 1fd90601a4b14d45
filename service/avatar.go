package service

import (
	"bytes"
	"fmt"
	"image"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"nodetalk/models"

	"github.com/chai2010/webp"
	"github.com/google/uuid"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	avatarMaxUploadBytes = 5 * 1024 * 1024
	avatarMaxSize        = 256
	avatarWebPQuality    = 80
)

// AvatarURLPrefix is the public path avatars are served under. The server
// mounts the configured upload directory here, so stored URLs stay valid
// regardless of where the files land on disk.
const AvatarURLPrefix = "/uploads/avatars"

// AvatarService normalizes uploaded avatars: decode, downscale to a square
// bounding box and re-encode as WebP on disk.
type AvatarService struct {
	uploadDir string
}

// NewAvatarService creates an AvatarService writing into uploadDir.
func NewAvatarService(uploadDir string) *AvatarService {
	return &AvatarService{uploadDir: uploadDir}
}

// Process validates and converts the upload, stores it, and returns the
// URL path to serve it from.
func (s *AvatarService) Process(content []byte) (string, error) {
	if len(content) == 0 {
		return "", models.NewValidationError("No file uploaded")
	}
	if len(content) > avatarMaxUploadBytes {
		return "", models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", avatarMaxUploadBytes/(1024*1024)))
	}

	detectedType := http.DetectContentType(content)
	if !isAllowedImageMIME(detectedType) {
		return "", models.NewValidationError("Invalid image type")
	}

	decoded, _, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return "", models.NewValidationError("Invalid image file")
	}

	scaled := scaleDown(decoded, avatarMaxSize)

	var buf bytes.Buffer
	if err := webp.Encode(&buf, scaled, &webp.Options{Quality: avatarWebPQuality}); err != nil {
		return "", models.NewInternalError(err)
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", models.NewInternalError(err)
	}

	name := uuid.New().String() + ".webp"
	if err := os.WriteFile(filepath.Join(s.uploadDir, name), buf.Bytes(), 0o644); err != nil {
		return "", models.NewInternalError(err)
	}

	return AvatarURLPrefix + "/" + name, nil
}

func scaleDown(src image.Image, maxSize int) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxSize && h <= maxSize {
		return src
	}

	scale := float64(maxSize) / float64(w)
	if h > w {
		scale = float64(maxSize) / float64(h)
	}
	dst := image.NewRGBA(image.Rect(0, 0, int(float64(w)*scale), int(float64(h)*scale)))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}

func isAllowedImageMIME(mimeType string) bool {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return true
	}
	return false
}
