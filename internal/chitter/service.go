package chitter

import "context"

// Service is the contract both the SQL and in-memory backends implement.
// Every method returns either a success payload or a *Error carrying one of
// the tags in errors.go — never a bare driver error.
type Service interface {
	CreateRoomAndAdmin(ctx context.Context, roomName, adminName string, adminInviteOnly bool) (*CreateRoomResult, error)
	UpdateRoom(ctx context.Context, adminToken, displayName string, adminInviteOnly bool, description, logoID string) error
	GetRoom(ctx context.Context, userToken, roomID string) (*Room, error)

	CreateInviteCode(ctx context.Context, userToken string) (string, error)
	CreateUserFromInviteCode(ctx context.Context, code, displayName string) (*User, error)
	RemoveUser(ctx context.Context, userID, adminToken string) error
	UpdateUser(ctx context.Context, userToken, displayName, description, avatarAttachmentID string) error
	SetUserRole(ctx context.Context, adminToken, userID string, role Role) error
	GetUser(ctx context.Context, userToken, userID string) (*User, error)
	GetUsers(ctx context.Context, userToken, channelID string) ([]User, error)

	CreateTransferBundle(ctx context.Context, userTokens []string) (string, error)
	GetTransferBundleFromCode(ctx context.Context, transferCode string) ([]User, error)

	CreateMessage(ctx context.Context, userToken string, content any, channelID, directMessageUserID string) (int64, error)
	RemoveMessage(ctx context.Context, userToken string, messageID int64) error
	EditMessage(ctx context.Context, userToken string, messageID int64, content any) error
	GetMessages(ctx context.Context, userToken, channelID, directMessageUserID string, cursor *int64, limit int) ([]Message, error)

	CreateChannel(ctx context.Context, adminToken, displayName string, isPrivate bool) (string, error)
	RemoveChannel(ctx context.Context, adminToken, channelID string) error
	UpdateChannel(ctx context.Context, adminToken, channelID, displayName, description string) error
	GetChannels(ctx context.Context, userToken string) ([]Channel, error)
	GetChannel(ctx context.Context, userToken, channelID string) (*Channel, error)
	AddUserToChannel(ctx context.Context, adminToken, userID, channelID string) error
	RemoveUserFromChannel(ctx context.Context, adminToken, userID, channelID string) error

	UploadAttachment(ctx context.Context, token string, upload AttachmentUpload) (*Attachment, error)
	RemoveAttachment(ctx context.Context, token, attachmentID string) error

	Close() error
}

// CreateRoomResult bundles the three entities createRoomAndAdmin commits
// together.
type CreateRoomResult struct {
	Room           Room    `json:"room"`
	Admin          User    `json:"admin"`
	GeneralChannel Channel `json:"generalChannel"`
}

// AttachmentUpload carries the already-written file's metadata; the bytes
// themselves live on disk at Path before UploadAttachment is called.
type AttachmentUpload struct {
	Type     AttachmentType
	FileName string
	Path     string
	Width    int
	Height   int
}
