package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/mwren/chitter/internal/chitter"
	"github.com/mwren/chitter/internal/chitter/sanitize"
)

func newID() string { return uuid.NewString() }
func newToken() string { return uuid.NewString() }

// ---- Rooms ----------------------------------------------------------------

func (s *Store) CreateRoomAndAdmin(ctx context.Context, roomName, adminName string, adminInviteOnly bool) (*chitter.CreateRoomResult, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapCouldNot(chitter.TagCouldNotCreateRoomAndAdmin, err)
	}
	defer rollbackOnErr(tx, &err)

	now := time.Now().UTC()
	room := chitter.Room{ID: newID(), DisplayName: roomName, AdminInviteOnly: adminInviteOnly, CreatedAt: now}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO rooms (id, display_name, description, admin_invite_only, created_at) VALUES ($1, $2, $3, $4, $5)",
		room.ID, room.DisplayName, room.Description, room.AdminInviteOnly, room.CreatedAt,
	)
	if err != nil {
		return nil, wrapCouldNot(chitter.TagCouldNotCreateRoomAndAdmin, err)
	}

	admin := chitter.User{ID: newID(), RoomID: room.ID, Token: newToken(), DisplayName: adminName, Role: chitter.RoleAdmin, CreatedAt: now}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO users (id, room_id, token, display_name, description, role, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		admin.ID, admin.RoomID, admin.Token, admin.DisplayName, admin.Description, admin.Role, admin.CreatedAt,
	)
	if err != nil {
		return nil, wrapCouldNot(chitter.TagCouldNotCreateRoomAndAdmin, err)
	}

	general := chitter.Channel{ID: newID(), RoomID: room.ID, DisplayName: "General", CreatedBy: admin.ID, CreatedAt: now}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO channels (id, room_id, display_name, description, is_private, created_by, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		general.ID, general.RoomID, general.DisplayName, general.Description, general.IsPrivate, general.CreatedBy, general.CreatedAt,
	)
	if err != nil {
		return nil, wrapCouldNot(chitter.TagCouldNotCreateRoomAndAdmin, err)
	}

	if err = tx.Commit(); err != nil {
		return nil, wrapCouldNot(chitter.TagCouldNotCreateRoomAndAdmin, err)
	}

	return &chitter.CreateRoomResult{Room: room, Admin: admin, GeneralChannel: general}, nil
}

func (s *Store) UpdateRoom(ctx context.Context, adminToken, displayName string, adminInviteOnly bool, description, logoID string) error {
	_, roomID, err := s.resolveAdmin(ctx, adminToken)
	if err != nil {
		return err
	}

	if logoID != "" {
		var attType string
		err := s.conn.QueryRowContext(ctx, "SELECT type FROM attachments WHERE id = $1", logoID).Scan(&attType)
		if err != nil || attType != string(chitter.AttachmentImage) {
			return chitter.Tagged(chitter.TagInvalidOrNonImageLogoAttachment, nil)
		}
	}

	var logoArg any
	if logoID != "" {
		logoArg = logoID
	}

	_, err = s.conn.ExecContext(ctx,
		"UPDATE rooms SET display_name = $2, description = $3, admin_invite_only = $4, logo_attachment_id = $5 WHERE id = $1",
		roomID, displayName, description, adminInviteOnly, logoArg,
	)
	return wrapCouldNot(chitter.TagCouldNotUpdateRoom, err)
}

func (s *Store) GetRoom(ctx context.Context, userToken, roomID string) (*chitter.Room, error) {
	_, callerRoomID, err := s.resolveUser(ctx, userToken)
	if err != nil {
		return nil, err
	}
	if callerRoomID != roomID {
		return nil, chitter.Tagged(chitter.TagRoomNotFound, nil)
	}

	var room chitter.Room
	var logoID sql.NullString
	err = s.conn.QueryRowContext(ctx,
		"SELECT id, display_name, description, logo_attachment_id, admin_invite_only, created_at FROM rooms WHERE id = $1",
		roomID,
	).Scan(&room.ID, &room.DisplayName, &room.Description, &logoID, &room.AdminInviteOnly, &room.CreatedAt)
	if err != nil {
		return nil, tagNotFound(err, chitter.TagRoomNotFound)
	}
	room.LogoAttachmentID = logoID.String

	return &room, nil
}

// ---- token resolution helpers ---------------------------------------------

// resolveUser resolves a bearer token to (user, roomID); InvalidUserToken on
// failure.
func (s *Store) resolveUser(ctx context.Context, token string) (chitter.User, string, error) {
	var u chitter.User
	var desc, avatarID sql.NullString
	err := s.conn.QueryRowContext(ctx,
		"SELECT id, room_id, token, display_name, description, avatar_attachment_id, role, created_at FROM users WHERE token = $1",
		token,
	).Scan(&u.ID, &u.RoomID, &u.Token, &u.DisplayName, &desc, &avatarID, &u.Role, &u.CreatedAt)
	if err != nil {
		return chitter.User{}, "", chitter.Tagged(chitter.TagInvalidUserToken, nil)
	}
	u.Description = desc.String
	u.AvatarAttachmentID = avatarID.String
	return u, u.RoomID, nil
}

// resolveAdmin resolves token and requires the admin role: InvalidAdminToken
// when the token is unknown, InvalidAdminTokenOrNonAdminUser when the user
// is not an admin.
func (s *Store) resolveAdmin(ctx context.Context, token string) (chitter.User, string, error) {
	u, roomID, err := s.resolveUser(ctx, token)
	if err != nil {
		return chitter.User{}, "", chitter.Tagged(chitter.TagInvalidAdminToken, nil)
	}
	if u.Role != chitter.RoleAdmin {
		return chitter.User{}, "", chitter.Tagged(chitter.TagInvalidAdminTokenOrNonAdminUser, nil)
	}
	return u, roomID, nil
}

// ---- Invites & users --------------------------------------------------

func (s *Store) CreateInviteCode(ctx context.Context, userToken string) (string, error) {
	user, roomID, err := s.resolveUser(ctx, userToken)
	if err != nil {
		return "", chitter.Tagged(chitter.TagUserNotFound, nil)
	}

	var adminInviteOnly bool
	if err := s.conn.QueryRowContext(ctx, "SELECT admin_invite_only FROM rooms WHERE id = $1", roomID).Scan(&adminInviteOnly); err != nil {
		return "", wrapCouldNot(chitter.TagCouldNotCreateInviteCode, err)
	}
	if adminInviteOnly && user.Role != chitter.RoleAdmin {
		return "", chitter.Tagged(chitter.TagUserIsNotAdminAndRoomIsAdminInviteOnly, nil)
	}

	return s.creds.MintInvite(roomID), nil
}

func (s *Store) CreateUserFromInviteCode(ctx context.Context, code, displayName string) (*chitter.User, error) {
	roomID, ok := s.creds.PeekInvite(code)
	if !ok {
		return nil, chitter.Tagged(chitter.TagInvalidInviteCode, nil)
	}

	var exists bool
	err := s.conn.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE room_id = $1 AND display_name = $2)",
		roomID, displayName,
	).Scan(&exists)
	if err != nil {
		return nil, wrapCouldNot(chitter.TagCouldNotCreateUserFromInviteCode, err)
	}
	if exists {
		return nil, chitter.Tagged(chitter.TagDisplayNameAlreadyExistsInTheRoom, nil)
	}

	if _, ok := s.creds.ConsumeInvite(code); !ok {
		return nil, chitter.Tagged(chitter.TagInvalidInviteCode, nil)
	}

	user := chitter.User{ID: newID(), RoomID: roomID, Token: newToken(), DisplayName: displayName, Role: chitter.RoleParticipant, CreatedAt: time.Now().UTC()}
	_, err = s.conn.ExecContext(ctx,
		"INSERT INTO users (id, room_id, token, display_name, description, role, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		user.ID, user.RoomID, user.Token, user.DisplayName, user.Description, user.Role, user.CreatedAt,
	)
	if err != nil {
		return nil, wrapCouldNot(chitter.TagCouldNotCreateUserFromInviteCode, err)
	}

	return &user, nil
}

func (s *Store) RemoveUser(ctx context.Context, userID, adminToken string) error {
	_, roomID, err := s.resolveAdmin(ctx, adminToken)
	if err != nil {
		return err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return wrapCouldNot(chitter.TagCouldNotRemoveUser, err)
	}
	defer rollbackOnErr(tx, &err)

	var exists bool
	err = tx.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE id = $1 AND room_id = $2)", userID, roomID).Scan(&exists)
	if err != nil {
		return wrapCouldNot(chitter.TagCouldNotRemoveUser, err)
	}
	if !exists {
		err = chitter.Tagged(chitter.TagUserNotFoundInAdminsRoom, nil)
		return err
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM channel_members WHERE user_id = $1", userID); err != nil {
		return wrapCouldNot(chitter.TagCouldNotRemoveUser, err)
	}

	if _, err = tx.ExecContext(ctx, "UPDATE users SET token = $2 WHERE id = $1", userID, newToken()); err != nil {
		return wrapCouldNot(chitter.TagCouldNotRemoveUser, err)
	}

	if err = tx.Commit(); err != nil {
		return wrapCouldNot(chitter.TagCouldNotRemoveUser, err)
	}
	return nil
}

func (s *Store) UpdateUser(ctx context.Context, userToken, displayName, description, avatarAttachmentID string) error {
	user, roomID, err := s.resolveUser(ctx, userToken)
	if err != nil {
		return err
	}

	if avatarAttachmentID != "" {
		var attType, ownerID string
		err := s.conn.QueryRowContext(ctx, "SELECT type, user_id FROM attachments WHERE id = $1", avatarAttachmentID).Scan(&attType, &ownerID)
		if err != nil || attType != string(chitter.AttachmentImage) || ownerID != user.ID {
			return chitter.Tagged(chitter.TagInvalidOrNonImageAvatarAttachment, nil)
		}
	}

	// Display-name uniqueness is only enforced for non-admin users, matching
	// invite consumption and the room's admin-exempt uniqueness index.
	if user.Role != chitter.RoleAdmin && displayName != user.DisplayName {
		var exists bool
		err := s.conn.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM users WHERE room_id = $1 AND display_name = $2 AND id <> $3 AND role <> 'admin')",
			roomID, displayName, user.ID,
		).Scan(&exists)
		if err != nil {
			return wrapCouldNot(chitter.TagCouldNotUpdateUser, err)
		}
		if exists {
			return chitter.Tagged(chitter.TagDisplayNameAlreadyExistsInTheRoom, nil)
		}
	}

	var avatarArg any
	if avatarAttachmentID != "" {
		avatarArg = avatarAttachmentID
	}

	_, err = s.conn.ExecContext(ctx,
		"UPDATE users SET display_name = $2, description = $3, avatar_attachment_id = $4 WHERE id = $1",
		user.ID, displayName, description, avatarArg,
	)
	return wrapCouldNot(chitter.TagCouldNotUpdateUser, err)
}

func (s *Store) SetUserRole(ctx context.Context, adminToken, userID string, role chitter.Role) error {
	_, roomID, err := s.resolveAdmin(ctx, adminToken)
	if err != nil {
		return err
	}

	res, err := s.conn.ExecContext(ctx, "UPDATE users SET role = $3 WHERE id = $1 AND room_id = $2", userID, roomID, role)
	if err != nil {
		return wrapCouldNot(chitter.TagCouldNotChangeUserRole, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return chitter.Tagged(chitter.TagUserNotFoundInAdminsRoom, nil)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, userToken, userID string) (*chitter.User, error) {
	_, roomID, err := s.resolveUser(ctx, userToken)
	if err != nil {
		return nil, err
	}

	var u chitter.User
	var desc, avatarID sql.NullString
	err = s.conn.QueryRowContext(ctx,
		"SELECT id, room_id, display_name, description, avatar_attachment_id, role, created_at FROM users WHERE id = $1 AND room_id = $2",
		userID, roomID,
	).Scan(&u.ID, &u.RoomID, &u.DisplayName, &desc, &avatarID, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, tagNotFound(err, chitter.TagUserNotFound)
	}
	u.Description = desc.String
	u.AvatarAttachmentID = avatarID.String
	return &u, nil
}

func (s *Store) GetUsers(ctx context.Context, userToken, channelID string) ([]chitter.User, error) {
	_, roomID, err := s.resolveUser(ctx, userToken)
	if err != nil {
		return nil, err
	}

	query := "SELECT id, room_id, display_name, description, avatar_attachment_id, role, created_at FROM users WHERE room_id = $1"
	args := []any{roomID}

	if channelID != "" {
		var isPrivate bool
		if err := s.conn.QueryRowContext(ctx, "SELECT is_private FROM channels WHERE id = $1 AND room_id = $2", channelID, roomID).Scan(&isPrivate); err != nil {
			return nil, tagNotFound(err, chitter.TagChannelNotFound)
		}
		if isPrivate {
			query = "SELECT u.id, u.room_id, u.display_name, u.description, u.avatar_attachment_id, u.role, u.created_at " +
				"FROM users u JOIN channel_members m ON m.user_id = u.id WHERE m.channel_id = $1"
			args = []any{channelID}
		}
	}

	query += " ORDER BY created_at ASC"

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapCouldNot(chitter.TagCouldNotGetUsers, err)
	}
	defer rows.Close()

	var users []chitter.User
	for rows.Next() {
		var u chitter.User
		var desc, avatarID sql.NullString
		if err := rows.Scan(&u.ID, &u.RoomID, &u.DisplayName, &desc, &avatarID, &u.Role, &u.CreatedAt); err != nil {
			return nil, wrapCouldNot(chitter.TagCouldNotGetUsers, err)
		}
		u.Description = desc.String
		u.AvatarAttachmentID = avatarID.String
		users = append(users, u)
	}
	return users, wrapCouldNot(chitter.TagCouldNotGetUsers, rows.Err())
}

// ---- Transfer bundles ---------------------------------------------------

func (s *Store) CreateTransferBundle(ctx context.Context, userTokens []string) (string, error) {
	var ids []string
	for _, token := range userTokens {
		if user, _, err := s.resolveUser(ctx, token); err == nil {
			ids = append(ids, user.ID)
		}
	}
	if len(ids) == 0 {
		return "", chitter.Tagged(chitter.TagNoValidTokens, nil)
	}
	return s.creds.MintTransfer(ids), nil
}

func (s *Store) GetTransferBundleFromCode(ctx context.Context, transferCode string) ([]chitter.User, error) {
	ids, ok := s.creds.ConsumeTransfer(transferCode)
	if !ok {
		return nil, chitter.Tagged(chitter.TagInvalidOrExpiredTransferCode, nil)
	}

	var users []chitter.User
	for _, id := range ids {
		var u chitter.User
		var desc, avatarID sql.NullString
		err := s.conn.QueryRowContext(ctx,
			"SELECT id, room_id, token, display_name, description, avatar_attachment_id, role, created_at FROM users WHERE id = $1",
			id,
		).Scan(&u.ID, &u.RoomID, &u.Token, &u.DisplayName, &desc, &avatarID, &u.Role, &u.CreatedAt)
		if err != nil {
			continue
		}
		u.Description = desc.String
		u.AvatarAttachmentID = avatarID.String
		users = append(users, u)
	}
	return users, nil
}

// ---- Messages -------------------------------------------------------------

func (s *Store) resolveAttachments(ctx context.Context, ownerID string, content chitter.Content) (chitter.Content, error) {
	if len(content.AttachmentIDs) == 0 {
		return content, nil
	}

	resolved := make([]chitter.Attachment, 0, len(content.AttachmentIDs))
	for _, id := range content.AttachmentIDs {
		var a chitter.Attachment
		err := s.conn.QueryRowContext(ctx,
			"SELECT id, type, user_id, file_name, path, width, height, created_at FROM attachments WHERE id = $1",
			id,
		).Scan(&a.ID, &a.Type, &a.UserID, &a.FileName, &a.Path, &a.Width, &a.Height, &a.CreatedAt)
		if err != nil || a.UserID != ownerID {
			return content, chitter.Tagged(chitter.TagInvalidAttachmentIDs, nil)
		}
		resolved = append(resolved, a)
	}
	content.Attachments = resolved
	return content, nil
}

func (s *Store) CreateMessage(ctx context.Context, userToken string, content any, channelID, directMessageUserID string) (int64, error) {
	user, roomID, err := s.resolveUser(ctx, userToken)
	if err != nil {
		return 0, err
	}

	if channelID != "" && directMessageUserID != "" {
		return 0, chitter.Tagged(chitter.TagMessageCannotTargetBothAChannelAndADirectUser, nil)
	}
	if channelID == "" && directMessageUserID == "" {
		return 0, chitter.Tagged(chitter.TagInvalidParameters, nil)
	}

	if channelID != "" {
		var chRoomID string
		var isPrivate bool
		err := s.conn.QueryRowContext(ctx, "SELECT room_id, is_private FROM channels WHERE id = $1", channelID).Scan(&chRoomID, &isPrivate)
		if err != nil || chRoomID != roomID {
			return 0, chitter.Tagged(chitter.TagChannelNotFoundInUsersRoom, nil)
		}
		if isPrivate {
			var member bool
			s.conn.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM channel_members WHERE channel_id = $1 AND user_id = $2)", channelID, user.ID).Scan(&member)
			if !member {
				return 0, chitter.Tagged(chitter.TagUserIsNotMemberOfPrivateChannel, nil)
			}
		}
	} else {
		var exists bool
		s.conn.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE id = $1 AND room_id = $2)", directMessageUserID, roomID).Scan(&exists)
		if !exists {
			return 0, chitter.Tagged(chitter.TagUserNotFound, nil)
		}
	}

	sanitized, err := sanitize.Content(content)
	if err != nil {
		return 0, err
	}

	resolved, err := s.resolveAttachments(ctx, user.ID, sanitized)
	if err != nil {
		return 0, err
	}

	raw, err := json.Marshal(resolved)
	if err != nil {
		return 0, wrapCouldNot(chitter.TagCouldNotCreateMessage, err)
	}

	var channelArg, dmArg any
	if channelID != "" {
		channelArg = channelID
	}
	if directMessageUserID != "" {
		dmArg = directMessageUserID
	}

	var id int64
	err = s.conn.QueryRowContext(ctx,
		"INSERT INTO messages (room_id, user_id, channel_id, direct_message_user_id, content, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) RETURNING id",
		roomID, user.ID, channelArg, dmArg, raw, time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		return 0, wrapCouldNot(chitter.TagCouldNotCreateMessage, err)
	}

	return id, nil
}

func (s *Store) loadMessage(ctx context.Context, messageID int64) (chitter.Message, string, error) {
	var m chitter.Message
	var roomID string
	var channelID, dmUserID sql.NullString
	var raw []byte
	err := s.conn.QueryRowContext(ctx,
		"SELECT id, room_id, user_id, channel_id, direct_message_user_id, content, edited, created_at FROM messages WHERE id = $1",
		messageID,
	).Scan(&m.ID, &roomID, &m.UserID, &channelID, &dmUserID, &raw, &m.Edited, &m.CreatedAt)
	if err != nil {
		return chitter.Message{}, "", tagNotFound(err, chitter.TagMessageNotFound)
	}
	m.ChannelID = channelID.String
	m.DirectMessageUserID = dmUserID.String
	_ = json.Unmarshal(raw, &m.Content)
	return m, roomID, nil
}

func (s *Store) authorOrSameRoomAdmin(caller chitter.User, msg chitter.Message, msgRoomID string) bool {
	if caller.ID == msg.UserID {
		return true
	}
	return caller.Role == chitter.RoleAdmin && caller.RoomID == msgRoomID
}

func (s *Store) RemoveMessage(ctx context.Context, userToken string, messageID int64) error {
	caller, _, err := s.resolveUser(ctx, userToken)
	if err != nil {
		return err
	}

	msg, msgRoomID, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if caller.RoomID != msgRoomID || !s.authorOrSameRoomAdmin(caller, msg, msgRoomID) {
		return chitter.Tagged(chitter.TagUserNotAuthorizedToDeleteThisMessage, nil)
	}

	_, err = s.conn.ExecContext(ctx, "DELETE FROM messages WHERE id = $1", messageID)
	return wrapCouldNot(chitter.TagCouldNotRemoveMessage, err)
}

func (s *Store) EditMessage(ctx context.Context, userToken string, messageID int64, content any) error {
	caller, _, err := s.resolveUser(ctx, userToken)
	if err != nil {
		return err
	}

	msg, msgRoomID, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if caller.RoomID != msgRoomID || !s.authorOrSameRoomAdmin(caller, msg, msgRoomID) {
		return chitter.Tagged(chitter.TagUserNotAuthorizedToEditThisMessage, nil)
	}

	sanitized, err := sanitize.Content(content)
	if err != nil {
		return err
	}

	resolved, err := s.resolveAttachments(ctx, msg.UserID, sanitized)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(resolved)
	if err != nil {
		return wrapCouldNot(chitter.TagCouldNotEditMessage, err)
	}

	_, err = s.conn.ExecContext(ctx, "UPDATE messages SET content = $2, edited = TRUE WHERE id = $1", messageID, raw)
	return wrapCouldNot(chitter.TagCouldNotEditMessage, err)
}

func (s *Store) GetMessages(ctx context.Context, userToken, channelID, directMessageUserID string, cursor *int64, limit int) ([]chitter.Message, error) {
	user, roomID, err := s.resolveUser(ctx, userToken)
	if err != nil {
		return nil, err
	}

	if channelID != "" && directMessageUserID != "" {
		return nil, chitter.Tagged(chitter.TagMessageCannotTargetBothAChannelAndADirectUser, nil)
	}
	if channelID == "" && directMessageUserID == "" {
		return nil, chitter.Tagged(chitter.TagEitherChannelIdOrDirectMessageUserIdMustBeProvided, nil)
	}

	if limit <= 0 {
		limit = 25
	}

	var rows *sql.Rows
	if channelID != "" {
		var chRoomID string
		var isPrivate bool
		err := s.conn.QueryRowContext(ctx, "SELECT room_id, is_private FROM channels WHERE id = $1", channelID).Scan(&chRoomID, &isPrivate)
		if err != nil || chRoomID != roomID {
			return nil, chitter.Tagged(chitter.TagChannelNotFoundInUsersRoom, nil)
		}
		if isPrivate {
			var member bool
			s.conn.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM channel_members WHERE channel_id = $1 AND user_id = $2)", channelID, user.ID).Scan(&member)
			if !member {
				return nil, chitter.Tagged(chitter.TagUserIsNotMemberOfPrivateChannel, nil)
			}
		}

		cursorArg := int64(1<<63 - 1)
		if cursor != nil {
			cursorArg = *cursor
		}
		rows, err = s.conn.QueryContext(ctx,
			"SELECT id, room_id, user_id, channel_id, direct_message_user_id, content, edited, created_at FROM messages "+
				"WHERE channel_id = $1 AND id < $2 ORDER BY id DESC LIMIT $3",
			channelID, cursorArg, limit,
		)
	} else {
		var exists bool
		s.conn.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE id = $1 AND room_id = $2)", directMessageUserID, roomID).Scan(&exists)
		if !exists {
			return nil, chitter.Tagged(chitter.TagUserNotFound, nil)
		}

		cursorArg := int64(1<<63 - 1)
		if cursor != nil {
			cursorArg = *cursor
		}
		rows, err = s.conn.QueryContext(ctx,
			"SELECT id, room_id, user_id, channel_id, direct_message_user_id, content, edited, created_at FROM messages "+
				"WHERE id < $3 AND ((user_id = $1 AND direct_message_user_id = $2) OR (user_id = $2 AND direct_message_user_id = $1)) "+
				"ORDER BY id DESC LIMIT $4",
			user.ID, directMessageUserID, cursorArg, limit,
		)
	}
	if err != nil {
		return nil, wrapCouldNot(chitter.TagCouldNotGetMessages, err)
	}
	defer rows.Close()

	var messages []chitter.Message
	for rows.Next() {
		var m chitter.Message
		var rid string
		var chID, dmID sql.NullString
		var raw []byte
		if err := rows.Scan(&m.ID, &rid, &m.UserID, &chID, &dmID, &raw, &m.Edited, &m.CreatedAt); err != nil {
			return nil, wrapCouldNot(chitter.TagCouldNotGetMessages, err)
		}
		m.ChannelID = chID.String
		m.DirectMessageUserID = dmID.String
		_ = json.Unmarshal(raw, &m.Content)
		messages = append(messages, m)
	}
	return messages, wrapCouldNot(chitter.TagCouldNotGetMessages, rows.Err())
}

// ---- Channels ---------------------------------------------------------

func (s *Store) CreateChannel(ctx context.Context, adminToken, displayName string, isPrivate bool) (string, error) {
	admin, roomID, err := s.resolveAdmin(ctx, adminToken)
	if err != nil {
		return "", err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return "", wrapCouldNot(chitter.TagCouldNotCreateChannel, err)
	}
	defer rollbackOnErr(tx, &err)

	ch := chitter.Channel{ID: newID(), RoomID: roomID, DisplayName: displayName, IsPrivate: isPrivate, CreatedBy: admin.ID, CreatedAt: time.Now().UTC()}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO channels (id, room_id, display_name, description, is_private, created_by, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		ch.ID, ch.RoomID, ch.DisplayName, ch.Description, ch.IsPrivate, ch.CreatedBy, ch.CreatedAt,
	)
	if err != nil {
		return "", wrapCouldNot(chitter.TagCouldNotCreateChannel, err)
	}

	if isPrivate {
		_, err = tx.ExecContext(ctx, "INSERT INTO channel_members (channel_id, user_id) VALUES ($1, $2)", ch.ID, admin.ID)
		if err != nil {
			return "", wrapCouldNot(chitter.TagCouldNotCreateChannel, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return "", wrapCouldNot(chitter.TagCouldNotCreateChannel, err)
	}

	return ch.ID, nil
}

func (s *Store) RemoveChannel(ctx context.Context, adminToken, channelID string) error {
	_, roomID, err := s.resolveAdmin(ctx, adminToken)
	if err != nil {
		return err
	}

	var chRoomID string
	err = s.conn.QueryRowContext(ctx, "SELECT room_id FROM channels WHERE id = $1", channelID).Scan(&chRoomID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return wrapCouldNot(chitter.TagCouldNotRemoveChannel, err)
	}
	if chRoomID != roomID {
		return chitter.Tagged(chitter.TagChannelNotFoundInUsersRoom, nil)
	}

	_, err = s.conn.ExecContext(ctx, "DELETE FROM channels WHERE id = $1", channelID)
	return wrapCouldNot(chitter.TagCouldNotRemoveChannel, err)
}

func (s *Store) UpdateChannel(ctx context.Context, adminToken, channelID, displayName, description string) error {
	_, roomID, err := s.resolveAdmin(ctx, adminToken)
	if err != nil {
		return err
	}

	res, err := s.conn.ExecContext(ctx,
		"UPDATE channels SET display_name = COALESCE(NULLIF($3, ''), display_name), description = $4 WHERE id = $1 AND room_id = $2",
		channelID, roomID, displayName, description,
	)
	if err != nil {
		return wrapCouldNot(chitter.TagCouldNotUpdateChannel, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return chitter.Tagged(chitter.TagChannelNotFoundInUsersRoom, nil)
	}
	return nil
}

func (s *Store) GetChannels(ctx context.Context, userToken string) ([]chitter.Channel, error) {
	user, roomID, err := s.resolveUser(ctx, userToken)
	if err != nil {
		return nil, err
	}

	rows, err := s.conn.QueryContext(ctx,
		"SELECT c.id, c.room_id, c.display_name, c.description, c.is_private, c.created_by, c.created_at FROM channels c "+
			"WHERE c.room_id = $1 AND (c.is_private = FALSE OR EXISTS (SELECT 1 FROM channel_members m WHERE m.channel_id = c.id AND m.user_id = $2)) "+
			"ORDER BY c.created_at ASC",
		roomID, user.ID,
	)
	if err != nil {
		return nil, wrapCouldNot(chitter.TagCouldNotRetrieveChannels, err)
	}
	defer rows.Close()

	var channels []chitter.Channel
	for rows.Next() {
		var c chitter.Channel
		if err := rows.Scan(&c.ID, &c.RoomID, &c.DisplayName, &c.Description, &c.IsPrivate, &c.CreatedBy, &c.CreatedAt); err != nil {
			return nil, wrapCouldNot(chitter.TagCouldNotRetrieveChannels, err)
		}
		channels = append(channels, c)
	}
	return channels, wrapCouldNot(chitter.TagCouldNotRetrieveChannels, rows.Err())
}

func (s *Store) GetChannel(ctx context.Context, userToken, channelID string) (*chitter.Channel, error) {
	user, roomID, err := s.resolveUser(ctx, userToken)
	if err != nil {
		return nil, err
	}

	var c chitter.Channel
	err = s.conn.QueryRowContext(ctx,
		"SELECT id, room_id, display_name, description, is_private, created_by, created_at FROM channels WHERE id = $1 AND room_id = $2",
		channelID, roomID,
	).Scan(&c.ID, &c.RoomID, &c.DisplayName, &c.Description, &c.IsPrivate, &c.CreatedBy, &c.CreatedAt)
	if err != nil {
		return nil, tagNotFound(err, chitter.TagChannelNotFound)
	}

	if c.IsPrivate {
		var member bool
		s.conn.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM channel_members WHERE channel_id = $1 AND user_id = $2)", channelID, user.ID).Scan(&member)
		if !member {
			return nil, chitter.Tagged(chitter.TagChannelNotFound, nil)
		}
	}

	return &c, nil
}

func (s *Store) AddUserToChannel(ctx context.Context, adminToken, userID, channelID string) error {
	return s.changeMembership(ctx, adminToken, userID, channelID, true)
}

func (s *Store) RemoveUserFromChannel(ctx context.Context, adminToken, userID, channelID string) error {
	return s.changeMembership(ctx, adminToken, userID, channelID, false)
}

func (s *Store) changeMembership(ctx context.Context, adminToken, userID, channelID string, add bool) error {
	_, roomID, err := s.resolveAdmin(ctx, adminToken)
	if err != nil {
		return err
	}

	var chRoomID string
	var isPrivate bool
	err = s.conn.QueryRowContext(ctx, "SELECT room_id, is_private FROM channels WHERE id = $1", channelID).Scan(&chRoomID, &isPrivate)
	if err != nil || chRoomID != roomID || !isPrivate {
		return chitter.Tagged(chitter.TagChannelNotFoundOrNotPrivate, nil)
	}

	var userExists bool
	s.conn.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE id = $1 AND room_id = $2)", userID, roomID).Scan(&userExists)
	if !userExists {
		return chitter.Tagged(chitter.TagUserNotFoundInAdminsRoom, nil)
	}

	if add {
		_, err = s.conn.ExecContext(ctx, "INSERT INTO channel_members (channel_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING", channelID, userID)
		return wrapCouldNot(chitter.TagCouldNotAddUserToChannel, err)
	}

	_, err = s.conn.ExecContext(ctx, "DELETE FROM channel_members WHERE channel_id = $1 AND user_id = $2", channelID, userID)
	return wrapCouldNot(chitter.TagCouldNotRemoveUserFromChannel, err)
}

// ---- Attachments --------------------------------------------------------

func (s *Store) UploadAttachment(ctx context.Context, token string, upload chitter.AttachmentUpload) (*chitter.Attachment, error) {
	user, _, err := s.resolveUser(ctx, token)
	if err != nil {
		return nil, chitter.Tagged(chitter.TagInvalidToken, nil)
	}

	att := chitter.Attachment{
		ID: newID(), Type: upload.Type, UserID: user.ID, FileName: upload.FileName,
		Path: upload.Path, Width: upload.Width, Height: upload.Height, CreatedAt: time.Now().UTC(),
	}
	_, err = s.conn.ExecContext(ctx,
		"INSERT INTO attachments (id, user_id, type, file_name, path, width, height, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		att.ID, att.UserID, att.Type, att.FileName, att.Path, att.Width, att.Height, att.CreatedAt,
	)
	if err != nil {
		return nil, wrapCouldNot(chitter.TagCouldNotUploadAttachment, err)
	}
	return &att, nil
}

func (s *Store) RemoveAttachment(ctx context.Context, token, attachmentID string) error {
	user, _, err := s.resolveUser(ctx, token)
	if err != nil {
		return chitter.Tagged(chitter.TagInvalidToken, nil)
	}

	var path, ownerID string
	err = s.conn.QueryRowContext(ctx, "SELECT path, user_id FROM attachments WHERE id = $1", attachmentID).Scan(&path, &ownerID)
	if err != nil || ownerID != user.ID {
		return chitter.Tagged(chitter.TagAttachmentNotFound, nil)
	}

	if _, err := s.conn.ExecContext(ctx, "DELETE FROM attachments WHERE id = $1", attachmentID); err != nil {
		return wrapCouldNot(chitter.TagCouldNotRemoveAttachment, err)
	}

	if path != "" {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return chitter.Tagged(chitter.TagCouldNotRemoveAttachment, err)
		}
	}

	return nil
}
