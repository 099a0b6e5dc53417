package sqlstore

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwren/chitter/internal/chitter"
	"github.com/mwren/chitter/internal/testutil"
)

// openTestStore connects against DATABASE_URL, the way the pack's own
// integration tests do: skip rather than fail when no live Postgres is
// reachable, since CI and most dev boxes never provision one.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("skip: DATABASE_URL not set")
	}

	s, err := Open(dsn, testutil.TestLogger(t))
	if err != nil {
		t.Skipf("skip: db not available: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateRoomAndAdmin(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	res, err := s.CreateRoomAndAdmin(ctx, "Acme", "Alice", false)
	require.NoError(t, err)
	assert.Equal(t, "Acme", res.Room.DisplayName)
	assert.Equal(t, "Alice", res.Admin.DisplayName)
	assert.Equal(t, "General", res.GeneralChannel.DisplayName)

	room, err := s.GetRoom(ctx, res.Admin.Token, res.Room.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Room.ID, room.ID)
}

func TestInviteJoinAndMessage(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	res, err := s.CreateRoomAndAdmin(ctx, "Acme", "Alice", false)
	require.NoError(t, err)

	code, err := s.CreateInviteCode(ctx, res.Admin.Token)
	require.NoError(t, err)

	bob, err := s.CreateUserFromInviteCode(ctx, code, "Bob")
	require.NoError(t, err)
	assert.Equal(t, "Bob", bob.DisplayName)

	_, err = s.CreateUserFromInviteCode(ctx, code, "Carol")
	assert.Error(t, err, "a code is single-use")

	id, err := s.CreateMessage(ctx, bob.Token, map[string]any{"text": "hi"}, res.GeneralChannel.ID, "")
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	msgs, err := s.GetMessages(ctx, res.Admin.Token, res.GeneralChannel.ID, "", nil, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content.Text)
}

func TestUpdateUser_DisplayNameUniquenessExemptsAdmin(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	res, err := s.CreateRoomAndAdmin(ctx, "Acme", "Alice", false)
	require.NoError(t, err)

	code, err := s.CreateInviteCode(ctx, res.Admin.Token)
	require.NoError(t, err)
	_, err = s.CreateUserFromInviteCode(ctx, code, "Bob")
	require.NoError(t, err)

	require.NoError(t, s.UpdateUser(ctx, res.Admin.Token, "Bob", "", ""), "admin rename is exempt from uniqueness")

	code2, err := s.CreateInviteCode(ctx, res.Admin.Token)
	require.NoError(t, err)
	carol, err := s.CreateUserFromInviteCode(ctx, code2, "Carol")
	require.NoError(t, err)

	err = s.UpdateUser(ctx, carol.Token, "Bob", "", "")
	assert.Equal(t, chitter.TagDisplayNameAlreadyExistsInTheRoom, chitter.TagOf(err))
}

func TestRemoveChannel_NonExistentIsNoop(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	res, err := s.CreateRoomAndAdmin(ctx, "Acme", "Alice", false)
	require.NoError(t, err)

	err = s.RemoveChannel(ctx, res.Admin.Token, "00000000-0000-0000-0000-000000000000")
	assert.NoError(t, err)
}
