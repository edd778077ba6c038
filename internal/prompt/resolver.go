// Package prompt resolves the instruction text sent to the external
// transformer. Resolution order: named filter, structured settings, hard
// default for the processing type.
package prompt

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/blessandsoul/glow-server/internal/domain"
)

// Settings carries the client-supplied transformation hints.
type Settings struct {
	FilterID     string `json:"filter_id"`
	Style        string `json:"style"`
	Instructions string `json:"instructions"`
}

// filters is a small built-in catalog; the full catalog lives in an external
// service and is not part of this core.
var filters = map[string]string{
	"golden-hour":  "Relight the photo with warm golden hour sunlight, soft shadows, natural skin tones",
	"studio-clean": "Professional studio look, neutral background, balanced exposure, crisp detail",
	"film-grain":   "Analog film aesthetic, subtle grain, muted highlights, cinematic color grade",
}

var defaults = map[domain.ProcessingType]string{
	domain.ProcessingTypeEnhance:  "Enhance the photo: correct exposure and color, sharpen detail, keep it natural",
	domain.ProcessingTypeRestore:  "Restore the photo: remove scratches and noise, repair damage, rebuild faded color",
	domain.ProcessingTypePortrait: "Retouch the portrait: even skin tone, brighten eyes, keep identity unchanged",
	domain.ProcessingTypeUpscale:  "Upscale the photo to a higher resolution without inventing new content",
}

// Resolver builds the final transformer prompt.
type Resolver struct{}

// NewResolver creates a Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve returns the prompt for a processing type and settings.
func (r *Resolver) Resolve(ctx context.Context, pt domain.ProcessingType, settings Settings) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	base, ok := defaults[pt]
	if !ok {
		return "", fmt.Errorf("%w: unsupported processing type %q", domain.ErrInvalidFile, pt)
	}

	if filterPrompt, ok := filters[strings.TrimSpace(settings.FilterID)]; ok {
		base = filterPrompt
	}

	var b strings.Builder
	b.WriteString(base)
	if style := strings.TrimSpace(settings.Style); style != "" {
		titler := cases.Title(language.Und)
		fmt.Fprintf(&b, ". Style: %s", titler.String(style))
	}
	if extra := strings.TrimSpace(settings.Instructions); extra != "" {
		fmt.Fprintf(&b, ". %s", extra)
	}
	return b.String(), nil
}
