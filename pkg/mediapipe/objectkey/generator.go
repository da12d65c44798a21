// Package objectkey generates deterministic storage keys. Keys are
// namespaced by owner and artifact id so repeated job attempts overwrite
// the same objects instead of duplicating them; this, combined with the
// queue's at-most-one-active-claim guarantee, is what makes at-least-once
// delivery yield effectively-exactly-once outcomes.
package objectkey

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generator defines the interface for storage key generation strategies.
type Generator interface {
	// PrimaryKey returns the key for the artifact's primary object.
	PrimaryKey(ownerID, artifactID uuid.UUID, fileName string) string

	// ThumbnailKey returns the key for the artifact's thumbnail object.
	ThumbnailKey(ownerID, artifactID uuid.UUID) string
}

// OwnerScoped lays keys out as
// owners/{owner}/artifacts/{artifact}/primary[_{filename}] and
// owners/{owner}/artifacts/{artifact}/thumbnail.jpg.
type OwnerScoped struct{}

// NewOwnerScoped returns the default generator.
func NewOwnerScoped() *OwnerScoped { return &OwnerScoped{} }

func (g *OwnerScoped) PrimaryKey(ownerID, artifactID uuid.UUID, fileName string) string {
	base := fmt.Sprintf("owners/%s/artifacts/%s/primary", ownerID, artifactID)
	if fileName != "" {
		return fmt.Sprintf("%s_%s", base, sanitizeFilename(fileName))
	}
	return base
}

func (g *OwnerScoped) ThumbnailKey(ownerID, artifactID uuid.UUID) string {
	return fmt.Sprintf("owners/%s/artifacts/%s/thumbnail.jpg", ownerID, artifactID)
}

// CustomFuncGenerator allows callers to provide their own key functions.
type CustomFuncGenerator struct {
	PrimaryFunc   func(ownerID, artifactID uuid.UUID, fileName string) string
	ThumbnailFunc func(ownerID, artifactID uuid.UUID) string
}

func (g *CustomFuncGenerator) PrimaryKey(ownerID, artifactID uuid.UUID, fileName string) string {
	return g.PrimaryFunc(ownerID, artifactID, fileName)
}

func (g *CustomFuncGenerator) ThumbnailKey(ownerID, artifactID uuid.UUID) string {
	return g.ThumbnailFunc(ownerID, artifactID)
}

// sanitizeFilename replaces characters that are problematic in object
// keys or on filesystem-backed stores.
func sanitizeFilename(filename string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
	)
	return replacer.Replace(filename)
}
