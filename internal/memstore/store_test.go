package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwren/chitter/internal/chitter"
	"github.com/mwren/chitter/internal/testutil"
)

func newTestStore(t *testing.T) *Store {
	s, err := New(testutil.TestLogger(t), nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createTestRoom(t *testing.T, s *Store, roomName, adminName string, adminInviteOnly bool) *chitter.CreateRoomResult {
	t.Helper()
	res, err := s.CreateRoomAndAdmin(context.Background(), roomName, adminName, adminInviteOnly)
	require.NoError(t, err)
	return res
}

func TestCreateRoomAndAdmin(t *testing.T) {
	s := newTestStore(t)
	res := createTestRoom(t, s, "Acme", "Alice", false)

	assert.Equal(t, "Acme", res.Room.DisplayName)
	assert.Equal(t, chitter.RoleAdmin, res.Admin.Role)
	assert.NotEmpty(t, res.Admin.Token)
	assert.Equal(t, "General", res.GeneralChannel.DisplayName)
	assert.False(t, res.GeneralChannel.IsPrivate)
}

func TestInviteJoinAndListUsers(t *testing.T) {
	s := newTestStore(t)
	res := createTestRoom(t, s, "Acme", "Alice", false)
	ctx := context.Background()

	code, err := s.CreateInviteCode(ctx, res.Admin.Token)
	require.NoError(t, err)

	bob, err := s.CreateUserFromInviteCode(ctx, code, "Bob")
	require.NoError(t, err)
	assert.Equal(t, chitter.RoleParticipant, bob.Role)
	assert.NotEmpty(t, bob.Token)

	_, err = s.CreateUserFromInviteCode(ctx, code, "Carol")
	assert.Equal(t, chitter.TagInvalidInviteCode, chitter.TagOf(err), "one-shot code must not be reusable")

	users, err := s.GetUsers(ctx, res.Admin.Token, "")
	require.NoError(t, err)
	require.Len(t, users, 2)
	for _, u := range users {
		assert.Empty(t, u.Token, "GetUsers must not leak tokens")
	}
}

func TestCreateUserFromInviteCode_DuplicateNameDoesNotConsumeCode(t *testing.T) {
	s := newTestStore(t)
	res := createTestRoom(t, s, "Acme", "Alice", false)
	ctx := context.Background()

	code, err := s.CreateInviteCode(ctx, res.Admin.Token)
	require.NoError(t, err)

	_, err = s.CreateUserFromInviteCode(ctx, code, "Alice")
	assert.Equal(t, chitter.TagDisplayNameAlreadyExistsInTheRoom, chitter.TagOf(err))

	// code must still be usable since it was not consumed by the failed attempt
	bob, err := s.CreateUserFromInviteCode(ctx, code, "Bob")
	require.NoError(t, err)
	assert.Equal(t, "Bob", bob.DisplayName)
}

func TestAdminInviteOnlyRoom_ParticipantCannotMintInvite(t *testing.T) {
	s := newTestStore(t)
	res := createTestRoom(t, s, "Acme", "Alice", true)
	ctx := context.Background()

	code, err := s.CreateInviteCode(ctx, res.Admin.Token)
	require.NoError(t, err)
	bob, err := s.CreateUserFromInviteCode(ctx, code, "Bob")
	require.NoError(t, err)

	_, err = s.CreateInviteCode(ctx, bob.Token)
	assert.Equal(t, chitter.TagUserIsNotAdminAndRoomIsAdminInviteOnly, chitter.TagOf(err))
}

func TestPrivateChannelLifecycle(t *testing.T) {
	s := newTestStore(t)
	res := createTestRoom(t, s, "Acme", "Alice", false)
	ctx := context.Background()

	code, _ := s.CreateInviteCode(ctx, res.Admin.Token)
	bob, _ := s.CreateUserFromInviteCode(ctx, code, "Bob")
	code2, _ := s.CreateInviteCode(ctx, res.Admin.Token)
	carol, _ := s.CreateUserFromInviteCode(ctx, code2, "Carol")

	channelID, err := s.CreateChannel(ctx, res.Admin.Token, "Secret", true)
	require.NoError(t, err)

	_, err = s.CreateMessage(ctx, bob.Token, map[string]any{"text": "hi"}, channelID, "")
	assert.Equal(t, chitter.TagUserIsNotMemberOfPrivateChannel, chitter.TagOf(err))

	require.NoError(t, s.AddUserToChannel(ctx, res.Admin.Token, bob.ID, channelID))
	// idempotent re-add
	require.NoError(t, s.AddUserToChannel(ctx, res.Admin.Token, bob.ID, channelID))

	_, err = s.CreateMessage(ctx, bob.Token, map[string]any{"text": "hi"}, channelID, "")
	require.NoError(t, err)

	_, err = s.CreateMessage(ctx, carol.Token, map[string]any{"text": "hi"}, channelID, "")
	assert.Equal(t, chitter.TagUserIsNotMemberOfPrivateChannel, chitter.TagOf(err))

	require.NoError(t, s.RemoveUserFromChannel(ctx, res.Admin.Token, bob.ID, channelID))
	_, err = s.CreateMessage(ctx, bob.Token, map[string]any{"text": "hi"}, channelID, "")
	assert.Equal(t, chitter.TagUserIsNotMemberOfPrivateChannel, chitter.TagOf(err))
}

func TestMessagePagination(t *testing.T) {
	s := newTestStore(t)
	res := createTestRoom(t, s, "Acme", "Alice", false)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 5; i++ {
		id, err := s.CreateMessage(ctx, res.Admin.Token, map[string]any{"text": "msg"}, res.GeneralChannel.ID, "")
		require.NoError(t, err)
		ids = append(ids, id)
	}

	page, err := s.GetMessages(ctx, res.Admin.Token, res.GeneralChannel.ID, "", nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[4], page[0].ID)
	assert.Equal(t, ids[3], page[1].ID)

	cursor := page[1].ID
	page2, err := s.GetMessages(ctx, res.Admin.Token, res.GeneralChannel.ID, "", &cursor, 2)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Equal(t, ids[2], page2[0].ID)
	assert.Equal(t, ids[1], page2[1].ID)
}

func TestCreateMessage_IDsAreUniqueAcrossRooms(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	roomA := createTestRoom(t, s, "Acme", "Alice", false)
	roomB := createTestRoom(t, s, "Globex", "Gary", false)

	idA1, err := s.CreateMessage(ctx, roomA.Admin.Token, map[string]any{"text": "a1"}, roomA.GeneralChannel.ID, "")
	require.NoError(t, err)
	idB1, err := s.CreateMessage(ctx, roomB.Admin.Token, map[string]any{"text": "b1"}, roomB.GeneralChannel.ID, "")
	require.NoError(t, err)
	idA2, err := s.CreateMessage(ctx, roomA.Admin.Token, map[string]any{"text": "a2"}, roomA.GeneralChannel.ID, "")
	require.NoError(t, err)

	assert.NotEqual(t, idA1, idB1, "message ids must be unique backend-wide, not per room")
	assert.Less(t, idB1, idA2, "ids stay monotonic across rooms in creation order")

	// A message created in room A must still resolve, edit, and delete as
	// room A's own, even after room B has allocated ids in between.
	require.NoError(t, s.EditMessage(ctx, roomA.Admin.Token, idA1, map[string]any{"text": "edited"}))
	require.NoError(t, s.RemoveMessage(ctx, roomA.Admin.Token, idA1))
}

func TestDirectMessageSymmetry(t *testing.T) {
	s := newTestStore(t)
	res := createTestRoom(t, s, "Acme", "Alice", false)
	ctx := context.Background()

	code, _ := s.CreateInviteCode(ctx, res.Admin.Token)
	bob, _ := s.CreateUserFromInviteCode(ctx, code, "Bob")

	_, err := s.CreateMessage(ctx, res.Admin.Token, map[string]any{"text": "hi bob"}, "", bob.ID)
	require.NoError(t, err)
	_, err = s.CreateMessage(ctx, bob.Token, map[string]any{"text": "hi alice"}, "", res.Admin.ID)
	require.NoError(t, err)

	fromAlice, err := s.GetMessages(ctx, res.Admin.Token, "", bob.ID, nil, 10)
	require.NoError(t, err)
	fromBob, err := s.GetMessages(ctx, bob.Token, "", res.Admin.ID, nil, 10)
	require.NoError(t, err)

	assert.Len(t, fromAlice, 2)
	assert.Len(t, fromBob, 2)
}

func TestRemoveAndEditMessage_AuthorizationRules(t *testing.T) {
	s := newTestStore(t)
	res := createTestRoom(t, s, "Acme", "Alice", false)
	ctx := context.Background()

	code, _ := s.CreateInviteCode(ctx, res.Admin.Token)
	bob, _ := s.CreateUserFromInviteCode(ctx, code, "Bob")
	code2, _ := s.CreateInviteCode(ctx, res.Admin.Token)
	carol, _ := s.CreateUserFromInviteCode(ctx, code2, "Carol")

	msgID, err := s.CreateMessage(ctx, bob.Token, map[string]any{"text": "hi"}, res.GeneralChannel.ID, "")
	require.NoError(t, err)

	err = s.EditMessage(ctx, carol.Token, msgID, map[string]any{"text": "edited"})
	assert.Equal(t, chitter.TagUserNotAuthorizedToEditThisMessage, chitter.TagOf(err))

	require.NoError(t, s.EditMessage(ctx, bob.Token, msgID, map[string]any{"text": "edited by author"}))

	err = s.RemoveMessage(ctx, carol.Token, msgID)
	assert.Equal(t, chitter.TagUserNotAuthorizedToDeleteThisMessage, chitter.TagOf(err))

	require.NoError(t, s.RemoveMessage(ctx, res.Admin.Token, msgID), "admin may delete any message in their room")
}

func TestUpdateUser_DisplayNameUniquenessExemptsAdmin(t *testing.T) {
	s := newTestStore(t)
	res := createTestRoom(t, s, "Acme", "Alice", false)
	ctx := context.Background()

	code, _ := s.CreateInviteCode(ctx, res.Admin.Token)
	_, err := s.CreateUserFromInviteCode(ctx, code, "Bob")
	require.NoError(t, err)

	// The admin may rename to collide with a participant's name.
	require.NoError(t, s.UpdateUser(ctx, res.Admin.Token, "Bob", "", ""))

	// A participant renaming to collide with another participant is rejected.
	code2, _ := s.CreateInviteCode(ctx, res.Admin.Token)
	carol, err := s.CreateUserFromInviteCode(ctx, code2, "Carol")
	require.NoError(t, err)
	err = s.UpdateUser(ctx, carol.Token, "Bob", "", "")
	assert.Equal(t, chitter.TagDisplayNameAlreadyExistsInTheRoom, chitter.TagOf(err))
}

func TestRemoveChannel_NonExistentIsNoop(t *testing.T) {
	s := newTestStore(t)
	res := createTestRoom(t, s, "Acme", "Alice", false)
	err := s.RemoveChannel(context.Background(), res.Admin.Token, "does-not-exist")
	assert.NoError(t, err)
}

func TestRemoveUser_RotatesToken(t *testing.T) {
	s := newTestStore(t)
	res := createTestRoom(t, s, "Acme", "Alice", false)
	ctx := context.Background()

	code, _ := s.CreateInviteCode(ctx, res.Admin.Token)
	bob, _ := s.CreateUserFromInviteCode(ctx, code, "Bob")

	require.NoError(t, s.RemoveUser(ctx, bob.ID, res.Admin.Token))

	_, _, ok := s.resolveUser(bob.Token)
	assert.False(t, ok, "old token must no longer resolve")
}

func TestSnapshotRoundTrip(t *testing.T) {
	var saved []byte
	save := func(b []byte) error { saved = b; return nil }

	s1, err := New(testutil.TestLogger(t), save, nil)
	require.NoError(t, err)

	res := createTestRoom(t, s1, "Acme", "Alice", false)
	ctx := context.Background()
	_, err = s1.CreateMessage(ctx, res.Admin.Token, map[string]any{"text": "hello"}, res.GeneralChannel.ID, "")
	require.NoError(t, err)

	s1.snapshotNow()
	require.NoError(t, s1.Close())
	require.NotEmpty(t, saved)

	load := func() ([]byte, error) { return saved, nil }
	s2, err := New(testutil.TestLogger(t), nil, load)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s2.Close() })

	room, err := s2.GetRoom(ctx, res.Admin.Token, res.Room.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", room.DisplayName)

	msgs, err := s2.GetMessages(ctx, res.Admin.Token, res.GeneralChannel.ID, "", nil, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Content.Text)

	nextID, err := s2.CreateMessage(ctx, res.Admin.Token, map[string]any{"text": "after restore"}, res.GeneralChannel.ID, "")
	require.NoError(t, err)
	assert.Greater(t, nextID, msgs[0].ID, "restored store must resume the global counter, not restart it")
}
