package chitter

import "time"

// Role is a User's authorization level within its Room.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleParticipant Role = "participant"
)

// AttachmentType classifies the media behind an Attachment.
type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
	AttachmentVideo AttachmentType = "video"
	AttachmentFile  AttachmentType = "file"
)

// FacetType classifies a Facet's range annotation.
type FacetType string

const (
	FacetMention FacetType = "mention"
	FacetLink    FacetType = "link"
	FacetCode    FacetType = "code"
)

type Room struct {
	ID              string    `json:"id"`
	CreatedAt       time.Time `json:"createdAt"`
	DisplayName     string    `json:"displayName"`
	Description     string    `json:"description,omitempty"`
	LogoAttachmentID string   `json:"logoAttachmentId,omitempty"`
	AdminInviteOnly bool      `json:"adminInviteOnly"`
}

type User struct {
	ID                string    `json:"id"`
	RoomID            string    `json:"roomId"`
	CreatedAt         time.Time `json:"createdAt"`
	Token             string    `json:"token,omitempty"`
	DisplayName       string    `json:"displayName"`
	Description       string    `json:"description,omitempty"`
	AvatarAttachmentID string   `json:"avatarAttachmentId,omitempty"`
	Role              Role      `json:"role"`
}

type Channel struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"roomId"`
	CreatedAt   time.Time `json:"createdAt"`
	DisplayName string    `json:"displayName"`
	Description string    `json:"description,omitempty"`
	IsPrivate   bool      `json:"isPrivate"`
	CreatedBy   string    `json:"createdBy"`
}

// Facet is a range annotation over Content.Text.
type Facet struct {
	Type  FacetType `json:"type"`
	Start int       `json:"start"`
	End   int       `json:"end"`
	Value string    `json:"value,omitempty"`
}

// MessageEmbed references another message in the same room.
type MessageEmbed struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
}

// ExternalEmbed is a link preview.
type ExternalEmbed struct {
	URI         string `json:"uri"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Thumb       string `json:"thumb,omitempty"`
}

// Embed is a tagged union: exactly one of Message/External is set.
type Embed struct {
	Message  *MessageEmbed  `json:"message,omitempty"`
	External *ExternalEmbed `json:"external,omitempty"`
}

// Content is the canonical, sanitized body of a Message.
type Content struct {
	Text          string       `json:"text"`
	Facets        []Facet      `json:"facets"`
	Embed         *Embed       `json:"embed,omitempty"`
	AttachmentIDs []string     `json:"attachmentIds,omitempty"`
	Attachments   []Attachment `json:"attachments,omitempty"`
}

type Message struct {
	ID                 int64     `json:"id"`
	UserID             string    `json:"userId"`
	CreatedAt          time.Time `json:"createdAt"`
	Content            Content   `json:"content"`
	ChannelID          string    `json:"channelId,omitempty"`
	DirectMessageUserID string   `json:"directMessageUserId,omitempty"`
	Edited             bool      `json:"edited"`
}

type Attachment struct {
	ID        string         `json:"id"`
	Type      AttachmentType `json:"type"`
	UserID    string         `json:"userId"`
	FileName  string         `json:"fileName"`
	Path      string         `json:"path"`
	Width     int            `json:"width,omitempty"`
	Height    int            `json:"height,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// InviteCode is one-shot and room-scoped; creds.Registry.ConsumeInvite
// removes it under a single critical section so two racing consumers see at
// most one success.
type InviteCode struct {
	Code      string
	RoomID    string
	ExpiresAt time.Time
}

// TransferCode is one-shot and bundles a set of user ids.
type TransferCode struct {
	Code      string
	UserIDs   []string
	ExpiresAt time.Time
}
