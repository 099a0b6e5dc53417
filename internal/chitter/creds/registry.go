// Package creds implements the credential registry: two TTL-bounded,
// one-shot code tables (invite codes, transfer codes) with a periodic
// sweeper. The sweeper's stop/done shutdown discipline is grounded on the
// teacher's ChatServer.Run()/Shutdown() select-loop pattern, repurposed here
// from client fan-out to a single ticker-driven eviction loop.
package creds

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	InviteTTL   = 24 * time.Hour
	TransferTTL = 1 * time.Hour
	sweepPeriod = time.Hour
)

type inviteEntry struct {
	roomID    string
	expiresAt time.Time
}

type transferEntry struct {
	userIDs   []string
	expiresAt time.Time
}

// Registry holds both code tables behind one mutex each, since invite and
// transfer consumption never need to be serialized against each other.
type Registry struct {
	now func() time.Time

	inviteMu sync.Mutex
	invites  map[string]inviteEntry

	transferMu sync.Mutex
	transfers  map[string]transferEntry

	stop chan struct{}
	done chan struct{}
}

// New constructs a Registry and starts its sweeper goroutine. Close stops
// it.
func New() *Registry {
	r := &Registry{
		now:     time.Now,
		invites: make(map[string]inviteEntry),
		transfers: make(map[string]transferEntry),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Registry) run() {
	ticker := time.NewTicker(sweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.stop:
			close(r.done)
			return
		}
	}
}

// Close stops the sweeper and waits for it to exit.
func (r *Registry) Close() error {
	close(r.stop)
	<-r.done
	return nil
}

func (r *Registry) sweep() {
	now := r.now()

	r.inviteMu.Lock()
	for code, e := range r.invites {
		if !now.Before(e.expiresAt) {
			delete(r.invites, code)
		}
	}
	r.inviteMu.Unlock()

	r.transferMu.Lock()
	for code, e := range r.transfers {
		if !now.Before(e.expiresAt) {
			delete(r.transfers, code)
		}
	}
	r.transferMu.Unlock()
}

// MintInvite registers a fresh 24h invite code scoped to roomID.
func (r *Registry) MintInvite(roomID string) string {
	code := uuid.NewString()
	entry := inviteEntry{roomID: roomID, expiresAt: r.now().Add(InviteTTL)}

	r.inviteMu.Lock()
	r.invites[code] = entry
	r.inviteMu.Unlock()

	return code
}

// PeekInvite reports whether code is currently valid without consuming it.
// createUserFromInviteCode needs this: the display-name-uniqueness check
// must happen before the code is consumed, so a duplicate name fails
// without burning the invite.
func (r *Registry) PeekInvite(code string) (roomID string, ok bool) {
	r.inviteMu.Lock()
	defer r.inviteMu.Unlock()

	entry, found := r.invites[code]
	if !found || !r.now().Before(entry.expiresAt) {
		return "", false
	}
	return entry.roomID, true
}

// ConsumeInvite atomically observes and removes code. ok is false if the
// code is unknown or expired; the code is removed in both cases the entry
// exists, so a retry on an expired code also fails (it was already gone).
func (r *Registry) ConsumeInvite(code string) (roomID string, ok bool) {
	r.inviteMu.Lock()
	defer r.inviteMu.Unlock()

	entry, found := r.invites[code]
	if !found {
		return "", false
	}
	delete(r.invites, code)

	if !r.now().Before(entry.expiresAt) {
		return "", false
	}

	return entry.roomID, true
}

// MintTransfer registers a fresh 1h transfer code bundling userIDs.
func (r *Registry) MintTransfer(userIDs []string) string {
	code := uuid.NewString()
	cp := make([]string, len(userIDs))
	copy(cp, userIDs)
	entry := transferEntry{userIDs: cp, expiresAt: r.now().Add(TransferTTL)}

	r.transferMu.Lock()
	r.transfers[code] = entry
	r.transferMu.Unlock()

	return code
}

// ConsumeTransfer atomically observes and removes code.
func (r *Registry) ConsumeTransfer(code string) (userIDs []string, ok bool) {
	r.transferMu.Lock()
	defer r.transferMu.Unlock()

	entry, found := r.transfers[code]
	if !found {
		return nil, false
	}
	delete(r.transfers, code)

	if !r.now().Before(entry.expiresAt) {
		return nil, false
	}

	return entry.userIDs, true
}
