package creds

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	r := &Registry{
		now:       time.Now,
		invites:   make(map[string]inviteEntry),
		transfers: make(map[string]transferEntry),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	t.Cleanup(func() { close(r.stop) })
	return r
}

func TestMintAndConsumeInvite(t *testing.T) {
	r := newTestRegistry(t)

	code := r.MintInvite("room-1")
	require.NotEmpty(t, code)

	roomID, ok := r.ConsumeInvite(code)
	assert.True(t, ok)
	assert.Equal(t, "room-1", roomID)

	_, ok = r.ConsumeInvite(code)
	assert.False(t, ok, "expected one-shot consumption to fail on replay")
}

func TestConsumeInvite_Unknown(t *testing.T) {
	r := newTestRegistry(t)
	_, ok := r.ConsumeInvite("does-not-exist")
	assert.False(t, ok)
}

func TestConsumeInvite_ExpiredAtExactBoundary(t *testing.T) {
	r := newTestRegistry(t)
	base := time.Now()
	r.now = func() time.Time { return base }

	code := r.MintInvite("room-1")

	r.now = func() time.Time { return base.Add(InviteTTL) }
	_, ok := r.ConsumeInvite(code)
	assert.False(t, ok, "code consumed exactly at expiresAt must be invalid")
}

func TestConsumeInvite_StillValidJustBeforeExpiry(t *testing.T) {
	r := newTestRegistry(t)
	base := time.Now()
	r.now = func() time.Time { return base }

	code := r.MintInvite("room-1")

	r.now = func() time.Time { return base.Add(InviteTTL - time.Second) }
	_, ok := r.ConsumeInvite(code)
	assert.True(t, ok)
}

func TestMintAndConsumeTransfer(t *testing.T) {
	r := newTestRegistry(t)

	code := r.MintTransfer([]string{"u1", "u2"})
	ids, ok := r.ConsumeTransfer(code)
	assert.True(t, ok)
	assert.ElementsMatch(t, []string{"u1", "u2"}, ids)

	_, ok = r.ConsumeTransfer(code)
	assert.False(t, ok)
}

func TestSweepEvictsExpiredEntries(t *testing.T) {
	r := newTestRegistry(t)
	base := time.Now()
	r.now = func() time.Time { return base }

	code := r.MintInvite("room-1")

	r.now = func() time.Time { return base.Add(InviteTTL + time.Minute) }
	r.sweep()

	r.inviteMu.Lock()
	_, present := r.invites[code]
	r.inviteMu.Unlock()
	assert.False(t, present, "sweep should have reclaimed the expired entry")
}
