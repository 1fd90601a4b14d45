package service

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/image/webp"
)

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestProcess_ConvertsAndScales(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	svc := NewAvatarService(dir)

	url, err := svc.Process(pngBytes(t, 1024, 512))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !strings.HasPrefix(url, "/uploads/avatars/") || !strings.HasSuffix(url, ".webp") {
		t.Fatalf("unexpected avatar URL %q", url)
	}

	stored := filepath.Join(dir, filepath.Base(url))
	raw, err := os.ReadFile(stored)
	if err != nil {
		t.Fatalf("read stored avatar: %v", err)
	}

	decoded, err := webp.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("stored avatar is not valid webp: %v", err)
	}
	bounds := decoded.Bounds()
	if bounds.Dx() != 256 || bounds.Dy() != 128 {
		t.Fatalf("expected 256x128 after scaling, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestProcess_SmallImageKeepsDimensions(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	svc := NewAvatarService(dir)

	url, err := svc.Process(pngBytes(t, 64, 64))
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, filepath.Base(url)))
	if err != nil {
		t.Fatalf("read stored avatar: %v", err)
	}
	decoded, err := webp.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("decode webp: %v", err)
	}
	if decoded.Bounds().Dx() != 64 || decoded.Bounds().Dy() != 64 {
		t.Fatalf("small image must not be upscaled, got %v", decoded.Bounds())
	}
}

func TestProcess_RejectsBadInput(t *testing.T) {
	t.Parallel()
	svc := NewAvatarService(t.TempDir())

	cases := []struct {
		name    string
		content []byte
	}{
		{"empty", nil},
		{"not an image", []byte("<html>nope</html>")},
		{"truncated png", pngBytes(t, 32, 32)[:20]},
		{"oversized", make([]byte, avatarMaxUploadBytes+1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Process(tc.content); err == nil {
				t.Fatal("expected validation error")
			} else if code := appCode(t, err); code != "VALIDATION_ERROR" {
				t.Fatalf("expected VALIDATION_ERROR, got %s", code)
			}
		})
	}
}
