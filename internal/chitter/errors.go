// Package chitter defines the storage-independent contract shared by every
// backend: the entity types, the Service interface, and the tagged error
// vocabulary the HTTP edge maps onto responses.
package chitter

import "fmt"

// Tag is one of the stable string error tags enumerated in the service's
// error taxonomy. The edge layer writes the tag unchanged into its error
// response body, so tags are part of the wire contract and must never be
// renamed casually.
type Tag string

const (
	// Authentication
	TagInvalidUserToken                    Tag = "InvalidUserToken"
	TagInvalidAdminToken                    Tag = "InvalidAdminToken"
	TagInvalidAdminTokenOrNonAdminUser      Tag = "InvalidAdminTokenOrNonAdminUser"
	TagInvalidToken                         Tag = "InvalidToken"

	// Scope / visibility
	TagUserNotFoundInAdminsRoom        Tag = "UserNotFoundInAdminsRoom"
	TagChannelNotFoundInUsersRoom      Tag = "ChannelNotFoundInUsersRoom"
	TagUserIsNotMemberOfPrivateChannel Tag = "UserIsNotMemberOfPrivateChannel"
	TagRoomNotFound                    Tag = "RoomNotFound"
	TagChannelNotFound                 Tag = "ChannelNotFound"
	TagUserNotFound                    Tag = "UserNotFound"
	TagMessageNotFound                 Tag = "MessageNotFound"
	TagAttachmentNotFound              Tag = "AttachmentNotFound"
	TagChannelNotFoundOrNotPrivate     Tag = "ChannelNotFoundOrNotPrivate"

	// Policy
	TagUserIsNotAdminAndRoomIsAdminInviteOnly Tag = "UserIsNotAdminAndRoomIsAdminInviteOnly"
	TagUserNotAuthorizedToDeleteThisMessage   Tag = "UserNotAuthorizedToDeleteThisMessage"
	TagUserNotAuthorizedToEditThisMessage     Tag = "UserNotAuthorizedToEditThisMessage"
	TagMessageCannotTargetBothAChannelAndADirectUser    Tag = "MessageCannotTargetBothAChannelAndADirectUser"
	TagEitherChannelIdOrDirectMessageUserIdMustBeProvided Tag = "EitherChannelIdOrDirectMessageUserIdMustBeProvided"
	TagDisplayNameAlreadyExistsInTheRoom      Tag = "DisplayNameAlreadyExistsInTheRoom"

	// Content
	TagInvalidContentStructure       Tag = "InvalidContentStructure"
	TagInvalidTextContent            Tag = "InvalidTextContent"
	TagInvalidFacet                  Tag = "InvalidFacet"
	TagInvalidEmbed                  Tag = "InvalidEmbed"
	TagInvalidAttachmentIDs          Tag = "InvalidAttachmentIDs"
	TagInvalidOrNonImageLogoAttachment  Tag = "InvalidOrNonImageLogoAttachment"
	TagInvalidOrNonImageAvatarAttachment Tag = "InvalidOrNonImageAvatarAttachment"
	TagInvalidFileType                Tag = "InvalidFileType"

	// Credentials
	TagInvalidInviteCode          Tag = "InvalidInviteCode"
	TagInvalidOrExpiredTransferCode Tag = "InvalidOrExpiredTransferCode"
	TagNoValidTokens              Tag = "NoValidTokens"

	// Generic / failure
	TagCouldNotCreateRoomAndAdmin      Tag = "CouldNotCreateRoomAndAdmin"
	TagCouldNotCreateInviteCode        Tag = "CouldNotCreateInviteCode"
	TagCouldNotCreateUserFromInviteCode Tag = "CouldNotCreateUserFromInviteCode"
	TagCouldNotRemoveUser              Tag = "CouldNotRemoveUser"
	TagCouldNotCreateMessage           Tag = "CouldNotCreateMessage"
	TagCouldNotRemoveMessage           Tag = "CouldNotRemoveMessage"
	TagCouldNotEditMessage             Tag = "CouldNotEditMessage"
	TagCouldNotUpdateRoom              Tag = "CouldNotUpdateRoom"
	TagCouldNotUpdateUser              Tag = "CouldNotUpdateUser"
	TagCouldNotChangeUserRole          Tag = "CouldNotChangeUserRole"
	TagCouldNotGetMessages             Tag = "CouldNotGetMessages"
	TagCouldNotGetUsers                Tag = "CouldNotGetUsers"
	TagCouldNotRetrieveUserDetails     Tag = "CouldNotRetrieveUserDetails"
	TagCouldNotRetrieveChannels        Tag = "CouldNotRetrieveChannels"
	TagCouldNotCreateChannel           Tag = "CouldNotCreateChannel"
	TagCouldNotRemoveChannel           Tag = "CouldNotRemoveChannel"
	TagCouldNotUpdateChannel           Tag = "CouldNotUpdateChannel"
	TagCouldNotAddUserToChannel        Tag = "CouldNotAddUserToChannel"
	TagCouldNotRemoveUserFromChannel   Tag = "CouldNotRemoveUserFromChannel"
	TagCouldNotCreateTransferCode      Tag = "CouldNotCreateTransferCode"
	TagCouldNotFetchUserDataFromTransferCode Tag = "CouldNotFetchUserDataFromTransferCode"
	TagCouldNotUploadAttachment        Tag = "CouldNotUploadAttachment"
	TagCouldNotRemoveAttachment        Tag = "CouldNotRemoveAttachment"
	TagCouldNotCreateTables            Tag = "CouldNotCreateTables"
	TagInvalidParameters               Tag = "InvalidParameters"
	TagUnknownServerError              Tag = "UnknownServerError"
)

// Error is the single failure shape every Service method returns. It never
// leaks a storage driver's concrete error type to callers; Unwrap exposes
// the underlying cause only for logging.
type Error struct {
	Tag Tag
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Tag, e.Err)
	}
	return string(e.Tag)
}

func (e *Error) Unwrap() error { return e.Err }

// Tagged wraps err (which may be nil) under tag.
func Tagged(tag Tag, err error) *Error {
	return &Error{Tag: tag, Err: err}
}

// TagOf extracts the Tag from an error produced by this package, returning
// TagUnknownServerError for any other non-nil error and the empty Tag for
// nil.
func TagOf(err error) Tag {
	var e *Error
	if err == nil {
		return ""
	}
	if ce, ok := err.(*Error); ok {
		e = ce
	} else {
		return TagUnknownServerError
	}
	return e.Tag
}
