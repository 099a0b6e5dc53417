package sanitize

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwren/chitter/internal/chitter"
)

func TestContent_NotAMapping(t *testing.T) {
	_, err := Content("not a map")
	assert.Equal(t, chitter.TagInvalidContentStructure, chitter.TagOf(err))
}

func TestContent_EmptyText(t *testing.T) {
	_, err := Content(map[string]any{"text": ""})
	assert.Equal(t, chitter.TagInvalidTextContent, chitter.TagOf(err))
}

func TestContent_MissingText(t *testing.T) {
	_, err := Content(map[string]any{})
	assert.Equal(t, chitter.TagInvalidTextContent, chitter.TagOf(err))
}

func TestContent_ValidMinimal(t *testing.T) {
	c, err := Content(map[string]any{"text": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", c.Text)
	assert.Empty(t, c.Facets)
	assert.Nil(t, c.Embed)
}

func TestContent_FacetBoundary_StartEqualsEnd(t *testing.T) {
	_, err := Content(map[string]any{
		"text":   "hello",
		"facets": []any{map[string]any{"type": "mention", "start": float64(2), "end": float64(2)}},
	})
	assert.Equal(t, chitter.TagInvalidFacet, chitter.TagOf(err))
}

func TestContent_FacetBoundary_EndEqualsLen(t *testing.T) {
	c, err := Content(map[string]any{
		"text":   "hello",
		"facets": []any{map[string]any{"type": "link", "start": float64(0), "end": float64(5)}},
	})
	require.NoError(t, err)
	require.Len(t, c.Facets, 1)
	assert.Equal(t, 5, c.Facets[0].End)
}

func TestContent_FacetUnknownType(t *testing.T) {
	_, err := Content(map[string]any{
		"text":   "hello",
		"facets": []any{map[string]any{"type": "bogus", "start": float64(0), "end": float64(1)}},
	})
	assert.Equal(t, chitter.TagInvalidFacet, chitter.TagOf(err))
}

func TestContent_EmbedMessage(t *testing.T) {
	msgID := uuid.NewString()
	roomID := uuid.NewString()
	c, err := Content(map[string]any{
		"text":  "look at this",
		"embed": map[string]any{"messageId": msgID, "roomId": roomID},
	})
	require.NoError(t, err)
	require.NotNil(t, c.Embed)
	require.NotNil(t, c.Embed.Message)
	assert.Equal(t, msgID, c.Embed.Message.MessageID)
	assert.Equal(t, roomID, c.Embed.Message.RoomID)
}

func TestContent_EmbedMessage_NotUUID(t *testing.T) {
	_, err := Content(map[string]any{
		"text":  "look at this",
		"embed": map[string]any{"messageId": "not-a-uuid", "roomId": uuid.NewString()},
	})
	assert.Equal(t, chitter.TagInvalidEmbed, chitter.TagOf(err))
}

func TestContent_EmbedExternal(t *testing.T) {
	c, err := Content(map[string]any{
		"text": "check this out",
		"embed": map[string]any{
			"uri":         "https://example.com",
			"title":       "Example",
			"description": "a site",
			"thumb":       "https://example.com/thumb.png",
		},
	})
	require.NoError(t, err)
	require.NotNil(t, c.Embed)
	require.NotNil(t, c.Embed.External)
	assert.Equal(t, "https://example.com", c.Embed.External.URI)
}

func TestContent_EmbedExternal_ExtraKeyRejected(t *testing.T) {
	_, err := Content(map[string]any{
		"text": "check this out",
		"embed": map[string]any{
			"uri": "https://example.com", "title": "x", "description": "y", "bogus": "z",
		},
	})
	assert.Equal(t, chitter.TagInvalidEmbed, chitter.TagOf(err))
}

func TestContent_AttachmentIDsFilterNonUUID(t *testing.T) {
	valid := uuid.NewString()
	c, err := Content(map[string]any{
		"text":          "file attached",
		"attachmentIds": []any{valid, "not-a-uuid", 42},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{valid}, c.AttachmentIDs)
}

func TestContent_Idempotent(t *testing.T) {
	input := map[string]any{
		"text":   "hello world",
		"facets": []any{map[string]any{"type": "link", "start": float64(0), "end": float64(5)}},
	}
	first, err := Content(input)
	require.NoError(t, err)

	asMap := map[string]any{
		"text": first.Text,
		"facets": []any{
			map[string]any{"type": string(first.Facets[0].Type), "start": float64(first.Facets[0].Start), "end": float64(first.Facets[0].End)},
		},
	}
	second, err := Content(asMap)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
