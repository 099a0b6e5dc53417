package memstore

import (
	"encoding/json"

	"github.com/mwren/chitter/internal/chitter"
)

// channelRecord pairs a channel with its private member-id set, matching
// the on-disk snapshot format named in spec.md: each room's channels carry
// an explicit userIds list rather than relying on chitter.Channel itself.
type channelRecord struct {
	Channel chitter.Channel `json:"channel"`
	UserIDs []string        `json:"userIds,omitempty"`
}

type roomRecord struct {
	Room        chitter.Room         `json:"room"`
	Users       []chitter.User       `json:"users"`
	Channels    []channelRecord      `json:"channels"`
	Attachments []chitter.Attachment `json:"attachments"`
	Messages    []chitter.Message    `json:"messages"`
}

// snapshotEnvelope is the on-disk root. NextMessageID is process-global (not
// per-room) since message ids are unique backend-wide.
type snapshotEnvelope struct {
	Rooms         []roomRecord `json:"rooms"`
	NextMessageID int64        `json:"nextMessageId"`
}

// dump encodes the full store into the snapshot wire format.
func (s *Store) dump() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	env := snapshotEnvelope{
		Rooms:         make([]roomRecord, 0, len(s.rooms)),
		NextMessageID: s.nextMessageID,
	}
	for _, rs := range s.rooms {
		rec := roomRecord{
			Room: rs.room,
		}
		for _, u := range rs.users {
			rec.Users = append(rec.Users, *u)
		}
		for _, ch := range rs.channels {
			cr := channelRecord{Channel: *ch}
			if ch.IsPrivate {
				for uid := range rs.channelMembers[ch.ID] {
					cr.UserIDs = append(cr.UserIDs, uid)
				}
			}
			rec.Channels = append(rec.Channels, cr)
		}
		for _, a := range rs.attachments {
			rec.Attachments = append(rec.Attachments, *a)
		}
		for _, id := range rs.messageOrder {
			rec.Messages = append(rec.Messages, *rs.messages[id])
		}
		env.Rooms = append(env.Rooms, rec)
	}

	return json.Marshal(env)
}

// restore rebuilds the in-memory tree, including derived indexes, from a
// snapshot produced by dump. Called only from New before the snapshot
// goroutine starts, so it needs no locking of its own.
func (s *Store) restore(raw []byte) error {
	var env snapshotEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return err
	}

	s.nextMessageID = env.NextMessageID

	for _, rec := range env.Rooms {
		rs := newRoomState()
		rs.room = rec.Room

		for i := range rec.Users {
			u := rec.Users[i]
			rs.users[u.ID] = &u
			s.tokenIndex[u.Token] = tokenRef{roomID: rs.room.ID, userID: u.ID}
		}

		for i := range rec.Channels {
			cr := rec.Channels[i]
			ch := cr.Channel
			rs.channels[ch.ID] = &ch
			if ch.IsPrivate {
				members := make(map[string]struct{}, len(cr.UserIDs))
				for _, uid := range cr.UserIDs {
					members[uid] = struct{}{}
				}
				rs.channelMembers[ch.ID] = members
			}
		}

		for i := range rec.Attachments {
			a := rec.Attachments[i]
			rs.attachments[a.ID] = &a
		}

		for i := range rec.Messages {
			m := rec.Messages[i]
			rs.messages[m.ID] = &m
			rs.messageOrder = append(rs.messageOrder, m.ID)
			s.messageRoom[m.ID] = rs.room.ID
		}

		s.rooms[rs.room.ID] = rs
	}

	return nil
}
