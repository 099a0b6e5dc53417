// Package memstore implements the in-memory Chat Service backend: a single
// authoritative process-local state tree guarded by one RWMutex (grounded
// on the teacher's Room.clientLock/Hub.mu pattern), with pluggable snapshot
// persistence.
package memstore

import (
	"context"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mwren/chitter/internal/chitter"
	"github.com/mwren/chitter/internal/chitter/creds"
	"github.com/mwren/chitter/internal/chitter/sanitize"
)

// roomState is one tenant's full state tree.
type roomState struct {
	room     chitter.Room
	users    map[string]*chitter.User
	channels map[string]*chitter.Channel
	// channelMembers holds the explicit member set for private channels only.
	channelMembers map[string]map[string]struct{}
	attachments    map[string]*chitter.Attachment
	messages       map[int64]*chitter.Message
	// messageOrder is ascending by id: new ids are appended, removed
	// messages are cut out; descending pagination walks it from the tail.
	messageOrder []int64
}

func newRoomState() *roomState {
	return &roomState{
		users:          make(map[string]*chitter.User),
		channels:       make(map[string]*chitter.Channel),
		channelMembers: make(map[string]map[string]struct{}),
		attachments:    make(map[string]*chitter.Attachment),
		messages:       make(map[int64]*chitter.Message),
	}
}

// SaveFunc persists the full snapshot. LoadFunc retrieves it; a missing
// snapshot (e.g. first boot) must return (nil, nil), not an error.
type SaveFunc func(snapshot []byte) error
type LoadFunc func() ([]byte, error)

const snapshotPeriod = 60 * time.Second

// Store is the in-memory chitter.Service implementation.
type Store struct {
	mu    sync.RWMutex
	rooms map[string]*roomState
	// tokenIndex resolves a bearer token to its owning room/user across the
	// whole process, independent of which room is being queried.
	tokenIndex map[string]tokenRef
	// messageRoom resolves a message id to its owning room without scanning
	// every room; populated alongside messages map.
	messageRoom map[int64]string
	// nextMessageID is a single process-global counter so message ids stay
	// unique and monotonic across every room, matching the SQL backend's
	// shared BIGSERIAL sequence.
	nextMessageID int64

	creds *creds.Registry
	log   *log.Logger

	save SaveFunc
	load LoadFunc

	stop chan struct{}
	done chan struct{}
}

type tokenRef struct {
	roomID string
	userID string
}

// New constructs a Store, loading any existing snapshot and starting the
// periodic snapshot goroutine.
func New(logger *log.Logger, save SaveFunc, load LoadFunc) (*Store, error) {
	s := &Store{
		rooms:       make(map[string]*roomState),
		tokenIndex:  make(map[string]tokenRef),
		messageRoom: make(map[int64]string),
		creds:       creds.New(),
		log:         logger,
		save:        save,
		load:        load,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}

	if load != nil {
		raw, err := load()
		if err != nil {
			return nil, err
		}
		if raw != nil {
			if err := s.restore(raw); err != nil {
				return nil, err
			}
		}
	}

	go s.run()
	return s, nil
}

func (s *Store) run() {
	ticker := time.NewTicker(snapshotPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.snapshotNow()
		case <-s.stop:
			s.snapshotNow()
			close(s.done)
			return
		}
	}
}

func (s *Store) snapshotNow() {
	if s.save == nil {
		return
	}
	raw, err := s.dump()
	if err != nil {
		s.log.Printf("memstore: snapshot encode: %v", err)
		return
	}
	if err := s.save(raw); err != nil {
		s.log.Printf("memstore: snapshot save: %v", err)
	}
}

// Close stops the snapshot goroutine (taking one final save) and the
// credential sweeper.
func (s *Store) Close() error {
	close(s.stop)
	<-s.done
	return s.creds.Close()
}

func newToken() string { return uuid.NewString() }
func newID() string    { return uuid.NewString() }

// resolveUser looks up the user owning token. It takes no lock itself; the
// caller must hold s.mu.
func (s *Store) resolveUser(token string) (*roomState, *chitter.User, bool) {
	ref, ok := s.tokenIndex[token]
	if !ok {
		return nil, nil, false
	}
	rs, ok := s.rooms[ref.roomID]
	if !ok {
		return nil, nil, false
	}
	u, ok := rs.users[ref.userID]
	if !ok {
		return nil, nil, false
	}
	return rs, u, true
}

func sanitizedUser(u chitter.User) chitter.User {
	u.Token = ""
	return u
}

// ---- Rooms ----------------------------------------------------------------

func (s *Store) CreateRoomAndAdmin(ctx context.Context, roomName, adminName string, adminInviteOnly bool) (*chitter.CreateRoomResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	room := chitter.Room{
		ID:              newID(),
		CreatedAt:       now,
		DisplayName:     roomName,
		AdminInviteOnly: adminInviteOnly,
	}

	admin := chitter.User{
		ID:          newID(),
		RoomID:      room.ID,
		CreatedAt:   now,
		Token:       newToken(),
		DisplayName: adminName,
		Role:        chitter.RoleAdmin,
	}

	general := chitter.Channel{
		ID:          newID(),
		RoomID:      room.ID,
		CreatedAt:   now,
		DisplayName: "General",
		IsPrivate:   false,
		CreatedBy:   admin.ID,
	}

	rs := newRoomState()
	rs.room = room
	rs.users[admin.ID] = &admin
	rs.channels[general.ID] = &general

	s.rooms[room.ID] = rs
	s.tokenIndex[admin.Token] = tokenRef{roomID: room.ID, userID: admin.ID}

	return &chitter.CreateRoomResult{Room: room, Admin: admin, GeneralChannel: general}, nil
}

func (s *Store) UpdateRoom(ctx context.Context, adminToken, displayName string, adminInviteOnly bool, description, logoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, admin, ok := s.resolveUser(adminToken)
	if !ok {
		return chitter.Tagged(chitter.TagInvalidAdminToken, nil)
	}
	if admin.Role != chitter.RoleAdmin {
		return chitter.Tagged(chitter.TagInvalidAdminToken, nil)
	}

	if logoID != "" {
		att, ok := rs.attachments[logoID]
		if !ok || att.Type != chitter.AttachmentImage {
			return chitter.Tagged(chitter.TagInvalidOrNonImageLogoAttachment, nil)
		}
	}

	rs.room.DisplayName = displayName
	rs.room.AdminInviteOnly = adminInviteOnly
	rs.room.Description = description
	rs.room.LogoAttachmentID = logoID

	return nil
}

func (s *Store) GetRoom(ctx context.Context, userToken, roomID string) (*chitter.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rs, user, ok := s.resolveUser(userToken)
	if !ok {
		return nil, chitter.Tagged(chitter.TagInvalidUserToken, nil)
	}
	if user.RoomID != roomID {
		return nil, chitter.Tagged(chitter.TagRoomNotFound, nil)
	}

	room := rs.room
	return &room, nil
}

// ---- Invites & users --------------------------------------------------

func (s *Store) CreateInviteCode(ctx context.Context, userToken string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, user, ok := s.resolveUser(userToken)
	if !ok {
		return "", chitter.Tagged(chitter.TagUserNotFound, nil)
	}
	if rs.room.AdminInviteOnly && user.Role != chitter.RoleAdmin {
		return "", chitter.Tagged(chitter.TagUserIsNotAdminAndRoomIsAdminInviteOnly, nil)
	}

	return s.creds.MintInvite(rs.room.ID), nil
}

func (s *Store) CreateUserFromInviteCode(ctx context.Context, code, displayName string) (*chitter.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roomID, ok := s.creds.PeekInvite(code)
	if !ok {
		return nil, chitter.Tagged(chitter.TagInvalidInviteCode, nil)
	}

	rs, ok := s.rooms[roomID]
	if !ok {
		return nil, chitter.Tagged(chitter.TagInvalidInviteCode, nil)
	}

	for _, u := range rs.users {
		if u.DisplayName == displayName {
			return nil, chitter.Tagged(chitter.TagDisplayNameAlreadyExistsInTheRoom, nil)
		}
	}

	if _, ok := s.creds.ConsumeInvite(code); !ok {
		return nil, chitter.Tagged(chitter.TagInvalidInviteCode, nil)
	}

	user := chitter.User{
		ID:          newID(),
		RoomID:      roomID,
		CreatedAt:   time.Now().UTC(),
		Token:       newToken(),
		DisplayName: displayName,
		Role:        chitter.RoleParticipant,
	}
	rs.users[user.ID] = &user
	s.tokenIndex[user.Token] = tokenRef{roomID: roomID, userID: user.ID}

	out := user
	return &out, nil
}

func (s *Store) RemoveUser(ctx context.Context, userID, adminToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, admin, ok := s.resolveUser(adminToken)
	if !ok {
		return chitter.Tagged(chitter.TagInvalidAdminToken, nil)
	}
	if admin.Role != chitter.RoleAdmin {
		return chitter.Tagged(chitter.TagInvalidAdminTokenOrNonAdminUser, nil)
	}

	target, ok := rs.users[userID]
	if !ok {
		return chitter.Tagged(chitter.TagUserNotFoundInAdminsRoom, nil)
	}

	for _, members := range rs.channelMembers {
		delete(members, userID)
	}

	delete(s.tokenIndex, target.Token)
	target.Token = newToken()
	s.tokenIndex[target.Token] = tokenRef{roomID: rs.room.ID, userID: userID}

	return nil
}

func (s *Store) UpdateUser(ctx context.Context, userToken, displayName, description, avatarAttachmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, user, ok := s.resolveUser(userToken)
	if !ok {
		return chitter.Tagged(chitter.TagInvalidUserToken, nil)
	}

	if avatarAttachmentID != "" {
		att, ok := rs.attachments[avatarAttachmentID]
		if !ok || att.Type != chitter.AttachmentImage || att.UserID != user.ID {
			return chitter.Tagged(chitter.TagInvalidOrNonImageAvatarAttachment, nil)
		}
	}

	// Display-name uniqueness is only enforced for non-admin users, matching
	// invite consumption and the room's admin-exempt uniqueness index.
	if user.Role != chitter.RoleAdmin && displayName != user.DisplayName {
		for _, u := range rs.users {
			if u.ID != user.ID && u.Role != chitter.RoleAdmin && u.DisplayName == displayName {
				return chitter.Tagged(chitter.TagDisplayNameAlreadyExistsInTheRoom, nil)
			}
		}
	}

	user.DisplayName = displayName
	user.Description = description
	user.AvatarAttachmentID = avatarAttachmentID

	return nil
}

func (s *Store) SetUserRole(ctx context.Context, adminToken, userID string, role chitter.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, admin, ok := s.resolveUser(adminToken)
	if !ok {
		return chitter.Tagged(chitter.TagInvalidAdminToken, nil)
	}
	if admin.Role != chitter.RoleAdmin {
		return chitter.Tagged(chitter.TagInvalidAdminTokenOrNonAdminUser, nil)
	}

	target, ok := rs.users[userID]
	if !ok {
		return chitter.Tagged(chitter.TagUserNotFoundInAdminsRoom, nil)
	}

	target.Role = role
	return nil
}

func (s *Store) GetUser(ctx context.Context, userToken, userID string) (*chitter.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rs, _, ok := s.resolveUser(userToken)
	if !ok {
		return nil, chitter.Tagged(chitter.TagInvalidUserToken, nil)
	}

	target, ok := rs.users[userID]
	if !ok {
		return nil, chitter.Tagged(chitter.TagUserNotFound, nil)
	}

	out := sanitizedUser(*target)
	return &out, nil
}

func (s *Store) GetUsers(ctx context.Context, userToken, channelID string) ([]chitter.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rs, _, ok := s.resolveUser(userToken)
	if !ok {
		return nil, chitter.Tagged(chitter.TagInvalidUserToken, nil)
	}

	if channelID == "" {
		out := make([]chitter.User, 0, len(rs.users))
		for _, u := range rs.users {
			out = append(out, sanitizedUser(*u))
		}
		sortUsers(out)
		return out, nil
	}

	ch, ok := rs.channels[channelID]
	if !ok || ch.RoomID != rs.room.ID {
		return nil, chitter.Tagged(chitter.TagChannelNotFound, nil)
	}

	var ids map[string]struct{}
	if ch.IsPrivate {
		ids = rs.channelMembers[channelID]
	}

	out := make([]chitter.User, 0, len(rs.users))
	for _, u := range rs.users {
		if ch.IsPrivate {
			if _, member := ids[u.ID]; !member {
				continue
			}
		}
		out = append(out, sanitizedUser(*u))
	}
	sortUsers(out)
	return out, nil
}

func sortUsers(users []chitter.User) {
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
}

// ---- Transfer bundles ---------------------------------------------------

func (s *Store) CreateTransferBundle(ctx context.Context, userTokens []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for _, token := range userTokens {
		if _, user, ok := s.resolveUser(token); ok {
			ids = append(ids, user.ID)
		}
	}
	if len(ids) == 0 {
		return "", chitter.Tagged(chitter.TagNoValidTokens, nil)
	}

	return s.creds.MintTransfer(ids), nil
}

func (s *Store) GetTransferBundleFromCode(ctx context.Context, transferCode string) ([]chitter.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, ok := s.creds.ConsumeTransfer(transferCode)
	if !ok {
		return nil, chitter.Tagged(chitter.TagInvalidOrExpiredTransferCode, nil)
	}

	var out []chitter.User
	for _, rs := range s.rooms {
		for _, id := range ids {
			if u, ok := rs.users[id]; ok {
				out = append(out, *u)
			}
		}
	}

	return out, nil
}

// ---- Messages -------------------------------------------------------------

func (s *Store) CreateMessage(ctx context.Context, userToken string, content any, channelID, directMessageUserID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, user, ok := s.resolveUser(userToken)
	if !ok {
		return 0, chitter.Tagged(chitter.TagInvalidUserToken, nil)
	}

	if channelID != "" && directMessageUserID != "" {
		return 0, chitter.Tagged(chitter.TagMessageCannotTargetBothAChannelAndADirectUser, nil)
	}
	if channelID == "" && directMessageUserID == "" {
		return 0, chitter.Tagged(chitter.TagInvalidParameters, nil)
	}

	if channelID != "" {
		ch, ok := rs.channels[channelID]
		if !ok || ch.RoomID != rs.room.ID {
			return 0, chitter.Tagged(chitter.TagChannelNotFoundInUsersRoom, nil)
		}
		if ch.IsPrivate {
			if _, member := rs.channelMembers[channelID][user.ID]; !member {
				return 0, chitter.Tagged(chitter.TagUserIsNotMemberOfPrivateChannel, nil)
			}
		}
	} else {
		if _, ok := rs.users[directMessageUserID]; !ok {
			return 0, chitter.Tagged(chitter.TagUserNotFound, nil)
		}
	}

	sanitized, err := sanitize.Content(content)
	if err != nil {
		return 0, err
	}

	resolved, err := s.resolveAttachments(rs, user.ID, sanitized)
	if err != nil {
		return 0, err
	}

	s.nextMessageID++
	msg := chitter.Message{
		ID:                  s.nextMessageID,
		UserID:              user.ID,
		CreatedAt:           time.Now().UTC(),
		Content:             resolved,
		ChannelID:           channelID,
		DirectMessageUserID: directMessageUserID,
	}
	rs.messages[msg.ID] = &msg
	rs.messageOrder = append(rs.messageOrder, msg.ID)
	s.messageRoom[msg.ID] = rs.room.ID

	return msg.ID, nil
}

// resolveAttachments validates that every attachment id in content is owned
// by ownerID and resolves it to a full record.
func (s *Store) resolveAttachments(rs *roomState, ownerID string, content chitter.Content) (chitter.Content, error) {
	if len(content.AttachmentIDs) == 0 {
		return content, nil
	}

	resolved := make([]chitter.Attachment, 0, len(content.AttachmentIDs))
	for _, id := range content.AttachmentIDs {
		att, ok := rs.attachments[id]
		if !ok || att.UserID != ownerID {
			return content, chitter.Tagged(chitter.TagInvalidAttachmentIDs, nil)
		}
		resolved = append(resolved, *att)
	}
	content.Attachments = resolved
	return content, nil
}

func (s *Store) findMessage(messageID int64) (*roomState, *chitter.Message, bool) {
	roomID, ok := s.messageRoom[messageID]
	if !ok {
		return nil, nil, false
	}
	rs, ok := s.rooms[roomID]
	if !ok {
		return nil, nil, false
	}
	msg, ok := rs.messages[messageID]
	if !ok {
		return nil, nil, false
	}
	return rs, msg, true
}

// authorOrSameRoomAdmin implements the resolved open question: permitted if
// caller is the author, or an admin whose room matches the message
// author's room.
func authorOrSameRoomAdmin(rs *roomState, caller *chitter.User, msg *chitter.Message) bool {
	if caller.ID == msg.UserID {
		return true
	}
	return caller.Role == chitter.RoleAdmin && caller.RoomID == rs.room.ID
}

func (s *Store) RemoveMessage(ctx context.Context, userToken string, messageID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, caller, ok := s.resolveUser(userToken)
	if !ok {
		return chitter.Tagged(chitter.TagInvalidUserToken, nil)
	}

	rs, msg, ok := s.findMessage(messageID)
	if !ok {
		return chitter.Tagged(chitter.TagMessageNotFound, nil)
	}
	if caller.RoomID != rs.room.ID || !authorOrSameRoomAdmin(rs, caller, msg) {
		return chitter.Tagged(chitter.TagUserNotAuthorizedToDeleteThisMessage, nil)
	}

	delete(rs.messages, messageID)
	delete(s.messageRoom, messageID)
	rs.messageOrder = removeID(rs.messageOrder, messageID)

	return nil
}

func (s *Store) EditMessage(ctx context.Context, userToken string, messageID int64, content any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, caller, ok := s.resolveUser(userToken)
	if !ok {
		return chitter.Tagged(chitter.TagInvalidUserToken, nil)
	}

	rs, msg, ok := s.findMessage(messageID)
	if !ok {
		return chitter.Tagged(chitter.TagMessageNotFound, nil)
	}
	if caller.RoomID != rs.room.ID || !authorOrSameRoomAdmin(rs, caller, msg) {
		return chitter.Tagged(chitter.TagUserNotAuthorizedToEditThisMessage, nil)
	}

	sanitized, err := sanitize.Content(content)
	if err != nil {
		return err
	}

	resolved, err := s.resolveAttachments(rs, msg.UserID, sanitized)
	if err != nil {
		return err
	}

	msg.Content = resolved
	msg.Edited = true

	return nil
}

func (s *Store) GetMessages(ctx context.Context, userToken, channelID, directMessageUserID string, cursor *int64, limit int) ([]chitter.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rs, user, ok := s.resolveUser(userToken)
	if !ok {
		return nil, chitter.Tagged(chitter.TagInvalidUserToken, nil)
	}

	if channelID != "" && directMessageUserID != "" {
		return nil, chitter.Tagged(chitter.TagMessageCannotTargetBothAChannelAndADirectUser, nil)
	}
	if channelID == "" && directMessageUserID == "" {
		return nil, chitter.Tagged(chitter.TagEitherChannelIdOrDirectMessageUserIdMustBeProvided, nil)
	}

	if channelID != "" {
		ch, ok := rs.channels[channelID]
		if !ok || ch.RoomID != rs.room.ID {
			return nil, chitter.Tagged(chitter.TagChannelNotFoundInUsersRoom, nil)
		}
		if ch.IsPrivate {
			if _, member := rs.channelMembers[channelID][user.ID]; !member {
				return nil, chitter.Tagged(chitter.TagUserIsNotMemberOfPrivateChannel, nil)
			}
		}
	} else {
		if _, ok := rs.users[directMessageUserID]; !ok {
			return nil, chitter.Tagged(chitter.TagUserNotFound, nil)
		}
	}

	if limit <= 0 {
		limit = 25
	}

	var out []chitter.Message
	for i := len(rs.messageOrder) - 1; i >= 0 && len(out) < limit; i-- {
		id := rs.messageOrder[i]
		if cursor != nil && id >= *cursor {
			continue
		}
		msg := rs.messages[id]
		if channelID != "" {
			if msg.ChannelID != channelID {
				continue
			}
		} else {
			isMatch := (msg.UserID == user.ID && msg.DirectMessageUserID == directMessageUserID) ||
				(msg.UserID == directMessageUserID && msg.DirectMessageUserID == user.ID)
			if !isMatch {
				continue
			}
		}
		out = append(out, *msg)
	}

	return out, nil
}

func removeID(order []int64, id int64) []int64 {
	for i, v := range order {
		if v == id {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}

// ---- Channels ---------------------------------------------------------

func (s *Store) CreateChannel(ctx context.Context, adminToken, displayName string, isPrivate bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, admin, ok := s.resolveUser(adminToken)
	if !ok {
		return "", chitter.Tagged(chitter.TagInvalidAdminToken, nil)
	}
	if admin.Role != chitter.RoleAdmin {
		return "", chitter.Tagged(chitter.TagInvalidAdminTokenOrNonAdminUser, nil)
	}

	ch := chitter.Channel{
		ID:          newID(),
		RoomID:      rs.room.ID,
		CreatedAt:   time.Now().UTC(),
		DisplayName: displayName,
		IsPrivate:   isPrivate,
		CreatedBy:   admin.ID,
	}
	rs.channels[ch.ID] = &ch

	if isPrivate {
		rs.channelMembers[ch.ID] = map[string]struct{}{admin.ID: {}}
	}

	return ch.ID, nil
}

func (s *Store) RemoveChannel(ctx context.Context, adminToken, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, admin, ok := s.resolveUser(adminToken)
	if !ok {
		return chitter.Tagged(chitter.TagInvalidAdminToken, nil)
	}
	if admin.Role != chitter.RoleAdmin {
		return chitter.Tagged(chitter.TagInvalidAdminTokenOrNonAdminUser, nil)
	}

	ch, ok := rs.channels[channelID]
	if !ok {
		for _, other := range s.rooms {
			if _, found := other.channels[channelID]; found {
				return chitter.Tagged(chitter.TagChannelNotFoundInUsersRoom, nil)
			}
		}
		return nil
	}
	if ch.RoomID != rs.room.ID {
		return chitter.Tagged(chitter.TagChannelNotFoundInUsersRoom, nil)
	}

	delete(rs.channels, channelID)
	delete(rs.channelMembers, channelID)

	var kept []int64
	for _, id := range rs.messageOrder {
		msg := rs.messages[id]
		if msg.ChannelID == channelID {
			delete(rs.messages, id)
			delete(s.messageRoom, id)
			continue
		}
		kept = append(kept, id)
	}
	rs.messageOrder = kept

	return nil
}

func (s *Store) UpdateChannel(ctx context.Context, adminToken, channelID, displayName, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, admin, ok := s.resolveUser(adminToken)
	if !ok {
		return chitter.Tagged(chitter.TagInvalidAdminToken, nil)
	}
	if admin.Role != chitter.RoleAdmin {
		return chitter.Tagged(chitter.TagInvalidAdminTokenOrNonAdminUser, nil)
	}

	ch, ok := rs.channels[channelID]
	if !ok || ch.RoomID != rs.room.ID {
		return chitter.Tagged(chitter.TagChannelNotFoundInUsersRoom, nil)
	}

	if displayName != "" {
		ch.DisplayName = displayName
	}
	ch.Description = description

	return nil
}

func (s *Store) GetChannels(ctx context.Context, userToken string) ([]chitter.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rs, user, ok := s.resolveUser(userToken)
	if !ok {
		return nil, chitter.Tagged(chitter.TagInvalidUserToken, nil)
	}

	out := make([]chitter.Channel, 0, len(rs.channels))
	for _, ch := range rs.channels {
		if !ch.IsPrivate {
			out = append(out, *ch)
			continue
		}
		if _, member := rs.channelMembers[ch.ID][user.ID]; member {
			out = append(out, *ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetChannel(ctx context.Context, userToken, channelID string) (*chitter.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rs, user, ok := s.resolveUser(userToken)
	if !ok {
		return nil, chitter.Tagged(chitter.TagInvalidUserToken, nil)
	}

	ch, ok := rs.channels[channelID]
	if !ok || ch.RoomID != rs.room.ID {
		return nil, chitter.Tagged(chitter.TagChannelNotFound, nil)
	}
	if ch.IsPrivate {
		if _, member := rs.channelMembers[ch.ID][user.ID]; !member {
			return nil, chitter.Tagged(chitter.TagChannelNotFound, nil)
		}
	}

	out := *ch
	return &out, nil
}

func (s *Store) AddUserToChannel(ctx context.Context, adminToken, userID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changeMembership(adminToken, userID, channelID, true)
}

func (s *Store) RemoveUserFromChannel(ctx context.Context, adminToken, userID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changeMembership(adminToken, userID, channelID, false)
}

func (s *Store) changeMembership(adminToken, userID, channelID string, add bool) error {
	rs, admin, ok := s.resolveUser(adminToken)
	if !ok {
		return chitter.Tagged(chitter.TagInvalidAdminToken, nil)
	}
	if admin.Role != chitter.RoleAdmin {
		return chitter.Tagged(chitter.TagInvalidAdminTokenOrNonAdminUser, nil)
	}

	ch, ok := rs.channels[channelID]
	if !ok || ch.RoomID != rs.room.ID || !ch.IsPrivate {
		return chitter.Tagged(chitter.TagChannelNotFoundOrNotPrivate, nil)
	}

	if _, ok := rs.users[userID]; !ok {
		return chitter.Tagged(chitter.TagUserNotFoundInAdminsRoom, nil)
	}

	members := rs.channelMembers[channelID]
	if members == nil {
		members = make(map[string]struct{})
		rs.channelMembers[channelID] = members
	}

	if add {
		members[userID] = struct{}{}
	} else {
		delete(members, userID)
	}

	return nil
}

// ---- Attachments --------------------------------------------------------

func (s *Store) UploadAttachment(ctx context.Context, token string, upload chitter.AttachmentUpload) (*chitter.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, user, ok := s.resolveUser(token)
	if !ok {
		return nil, chitter.Tagged(chitter.TagInvalidToken, nil)
	}

	att := chitter.Attachment{
		ID:        newID(),
		Type:      upload.Type,
		UserID:    user.ID,
		FileName:  upload.FileName,
		Path:      upload.Path,
		Width:     upload.Width,
		Height:    upload.Height,
		CreatedAt: time.Now().UTC(),
	}
	rs.attachments[att.ID] = &att

	return &att, nil
}

func (s *Store) RemoveAttachment(ctx context.Context, token, attachmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, user, ok := s.resolveUser(token)
	if !ok {
		return chitter.Tagged(chitter.TagInvalidToken, nil)
	}

	att, ok := rs.attachments[attachmentID]
	if !ok || att.UserID != user.ID {
		return chitter.Tagged(chitter.TagAttachmentNotFound, nil)
	}

	delete(rs.attachments, attachmentID)

	if att.Path != "" {
		if err := os.Remove(att.Path); err != nil && !os.IsNotExist(err) {
			return chitter.Tagged(chitter.TagCouldNotRemoveAttachment, err)
		}
	}

	return nil
}
