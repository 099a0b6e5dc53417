// Package sanitize implements the content sanitizer: a pure function from
// untrusted, decoded-JSON input to a canonical chitter.Content, or a tagged
// error. It is deliberately storage- and transaction-free so every backend
// and the HTTP edge can call it identically.
package sanitize

import (
	"github.com/google/uuid"

	"github.com/mwren/chitter/internal/chitter"
)

// Content sanitizes an arbitrary decoded-JSON value (typically
// map[string]any) into a canonical chitter.Content.
func Content(input any) (chitter.Content, error) {
	m, ok := input.(map[string]any)
	if !ok {
		return chitter.Content{}, chitter.Tagged(chitter.TagInvalidContentStructure, nil)
	}

	text, _ := m["text"].(string)
	if text == "" {
		return chitter.Content{}, chitter.Tagged(chitter.TagInvalidTextContent, nil)
	}

	facets, err := sanitizeFacets(m["facets"], len(text))
	if err != nil {
		return chitter.Content{}, err
	}

	embed, err := sanitizeEmbed(m["embed"])
	if err != nil {
		return chitter.Content{}, err
	}

	return chitter.Content{
		Text:          text,
		Facets:        facets,
		Embed:         embed,
		AttachmentIDs: sanitizeAttachmentIDs(m["attachmentIds"]),
	}, nil
}

func sanitizeFacets(raw any, textLen int) ([]chitter.Facet, error) {
	list, _ := raw.([]any)
	facets := make([]chitter.Facet, 0, len(list))

	for _, elem := range list {
		fm, ok := elem.(map[string]any)
		if !ok {
			continue
		}

		coerced := map[string]any{}
		for _, key := range []string{"type", "start", "end", "value"} {
			v, present := fm[key]
			if !present {
				continue
			}
			switch v.(type) {
			case string, float64, int:
				coerced[key] = v
			}
		}

		typ, _ := coerced["type"].(string)
		switch chitter.FacetType(typ) {
		case chitter.FacetMention, chitter.FacetLink, chitter.FacetCode:
		default:
			return nil, chitter.Tagged(chitter.TagInvalidFacet, nil)
		}

		start, startOk := asInt(coerced["start"])
		end, endOk := asInt(coerced["end"])
		if !startOk || !endOk {
			return nil, chitter.Tagged(chitter.TagInvalidFacet, nil)
		}
		if start < 0 || start >= end || end > textLen {
			return nil, chitter.Tagged(chitter.TagInvalidFacet, nil)
		}

		value := ""
		if v, present := coerced["value"]; present {
			s, ok := v.(string)
			if !ok {
				return nil, chitter.Tagged(chitter.TagInvalidFacet, nil)
			}
			value = s
		}

		facets = append(facets, chitter.Facet{
			Type:  chitter.FacetType(typ),
			Start: start,
			End:   end,
			Value: value,
		})
	}

	return facets, nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

func sanitizeEmbed(raw any) (*chitter.Embed, error) {
	if raw == nil {
		return nil, nil
	}

	m, ok := raw.(map[string]any)
	if !ok {
		return nil, chitter.Tagged(chitter.TagInvalidEmbed, nil)
	}

	_, hasMessageID := m["messageId"]
	_, hasRoomID := m["roomId"]
	_, hasURI := m["uri"]
	_, hasTitle := m["title"]
	_, hasDescription := m["description"]

	switch {
	case hasMessageID && hasRoomID:
		if len(m) != 2 {
			return nil, chitter.Tagged(chitter.TagInvalidEmbed, nil)
		}
		messageID, _ := m["messageId"].(string)
		roomID, _ := m["roomId"].(string)
		if !isUUID(messageID) || !isUUID(roomID) {
			return nil, chitter.Tagged(chitter.TagInvalidEmbed, nil)
		}
		return &chitter.Embed{Message: &chitter.MessageEmbed{MessageID: messageID, RoomID: roomID}}, nil

	case hasURI && hasTitle && hasDescription:
		allowed := map[string]bool{"uri": true, "title": true, "description": true, "thumb": true}
		for k := range m {
			if !allowed[k] {
				return nil, chitter.Tagged(chitter.TagInvalidEmbed, nil)
			}
		}
		uri, uriOk := m["uri"].(string)
		title, titleOk := m["title"].(string)
		description, descOk := m["description"].(string)
		if !uriOk || !titleOk || !descOk {
			return nil, chitter.Tagged(chitter.TagInvalidEmbed, nil)
		}
		thumb := ""
		if raw, present := m["thumb"]; present {
			t, ok := raw.(string)
			if !ok {
				return nil, chitter.Tagged(chitter.TagInvalidEmbed, nil)
			}
			thumb = t
		}
		return &chitter.Embed{External: &chitter.ExternalEmbed{URI: uri, Title: title, Description: description, Thumb: thumb}}, nil

	default:
		return nil, chitter.Tagged(chitter.TagInvalidEmbed, nil)
	}
}

func sanitizeAttachmentIDs(raw any) []string {
	list, _ := raw.([]any)
	ids := make([]string, 0, len(list))
	for _, elem := range list {
		s, ok := elem.(string)
		if !ok || !isUUID(s) {
			continue
		}
		ids = append(ids, s)
	}
	return ids
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
