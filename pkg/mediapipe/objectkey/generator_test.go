package objectkey

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestOwnerScopedKeys(t *testing.T) {
	g := NewOwnerScoped()
	ownerID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	artifactID := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	assert.Equal(t,
		fmt.Sprintf("owners/%s/artifacts/%s/primary_clip.mp4", ownerID, artifactID),
		g.PrimaryKey(ownerID, artifactID, "clip.mp4"))

	assert.Equal(t,
		fmt.Sprintf("owners/%s/artifacts/%s/primary", ownerID, artifactID),
		g.PrimaryKey(ownerID, artifactID, ""))

	assert.Equal(t,
		fmt.Sprintf("owners/%s/artifacts/%s/thumbnail.jpg", ownerID, artifactID),
		g.ThumbnailKey(ownerID, artifactID))
}

func TestOwnerScopedKeysAreDeterministic(t *testing.T) {
	g := NewOwnerScoped()
	ownerID := uuid.New()
	artifactID := uuid.New()

	// Repeated job attempts must land on the same object.
	k1 := g.PrimaryKey(ownerID, artifactID, "video.mp4")
	k2 := g.PrimaryKey(ownerID, artifactID, "video.mp4")
	assert.Equal(t, k1, k2)
}

func TestSanitizeFilename(t *testing.T) {
	g := NewOwnerScoped()
	ownerID := uuid.New()
	artifactID := uuid.New()

	tests := []struct {
		in   string
		want string
	}{
		{"my video.mp4", "my_video.mp4"},
		{"a/b\\c.mp4", "a_b_c.mp4"},
		{`spicy:*?"<>|.mp4`, "spicy_______.mp4"},
	}

	for _, tt := range tests {
		key := g.PrimaryKey(ownerID, artifactID, tt.in)
		assert.Equal(t, fmt.Sprintf("owners/%s/artifacts/%s/primary_%s", ownerID, artifactID, tt.want), key)
	}
}

func TestCustomFuncGenerator(t *testing.T) {
	g := &CustomFuncGenerator{
		PrimaryFunc: func(ownerID, artifactID uuid.UUID, fileName string) string {
			return "flat/" + artifactID.String()
		},
		ThumbnailFunc: func(ownerID, artifactID uuid.UUID) string {
			return "flat/" + artifactID.String() + ".thumb"
		},
	}
	artifactID := uuid.New()
	assert.Equal(t, "flat/"+artifactID.String(), g.PrimaryKey(uuid.New(), artifactID, "x"))
	assert.Equal(t, "flat/"+artifactID.String()+".thumb", g.ThumbnailKey(uuid.New(), artifactID))
}
