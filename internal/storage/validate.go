package storage

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/blessandsoul/glow-server/internal/domain"
)

var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// ValidateImage checks an upload's size and sniffed content type before any
// persistence happens. It fails with domain.ErrInvalidFile so callers can
// map it to a 400 without inspecting the message.
func ValidateImage(data []byte, maxBytes int64) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty file", domain.ErrInvalidFile)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return fmt.Errorf("%w: file exceeds %d bytes", domain.ErrInvalidFile, maxBytes)
	}
	contentType := http.DetectContentType(data)
	if _, ok := allowedImageTypes[contentType]; !ok {
		return fmt.Errorf("%w: unsupported content type %s", domain.ErrInvalidFile, contentType)
	}
	return nil
}

// ExtensionFor returns the canonical file extension for a sniffed image
// payload, defaulting to .bin for unknown types.
func ExtensionFor(data []byte) string {
	if ext, ok := allowedImageTypes[http.DetectContentType(data)]; ok {
		return ext
	}
	return ".bin"
}

// SafeFileName strips path separators from a client-supplied file name.
func SafeFileName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}
