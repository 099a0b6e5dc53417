package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/mwren/chitter/internal/chitter"
)

// bearerToken extracts the token from "Authorization: Bearer <token>",
// grounded on the pack's own Authorization-header-splitting convention
// (e.g. thereayou44-Voxus' auth middleware).
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return header
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeValidationError(w, "malformed request body: "+err.Error())
		return false
	}
	return true
}

// ---- Rooms ----------------------------------------------------------------

func (s *Server) handleCreateRoomAndAdmin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RoomName        string `json:"roomName"`
		AdminName       string `json:"adminName"`
		AdminInviteOnly bool   `json:"adminInviteOnly"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}
	if body.RoomName == "" || body.AdminName == "" {
		s.writeValidationError(w, "roomName and adminName are required")
		return
	}

	res, err := s.svc.CreateRoomAndAdmin(r.Context(), body.RoomName, body.AdminName, body.AdminInviteOnly)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeSuccess(w, res)
}

func (s *Server) handleUpdateRoom(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DisplayName     string `json:"displayName"`
		AdminInviteOnly bool   `json:"adminInviteOnly"`
		Description     string `json:"description"`
		LogoID          string `json:"logoId"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	err := s.svc.UpdateRoom(r.Context(), bearerToken(r), body.DisplayName, body.AdminInviteOnly, body.Description, body.LogoID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeSuccess(w, nil)
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("roomId")
	room, err := s.svc.GetRoom(r.Context(), bearerToken(r), roomID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeSuccess(w, room)
}

// ---- Invites & users --------------------------------------------------

func (s *Server) handleCreateInviteCode(w http.ResponseWriter, r *http.Request) {
	code, err := s.svc.CreateInviteCode(r.Context(), bearerToken(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeSuccess(w, map[string]string{"inviteCode": code})
}

func (s *Server) handleCreateUserFromInviteCode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		InviteCode  string `json:"inviteCode"`
		DisplayName string `json:"displayName"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}
	if body.InviteCode == "" || body.DisplayName == "" {
		s.writeValidationError(w, "inviteCode and displayName are required")
		return
	}

	user, err := s.svc.CreateUserFromInviteCode(r.Context(), body.InviteCode, body.DisplayName)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeSuccess(w, user)
}

func (s *Server) handleRemoveUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"userId"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	if err := s.svc.RemoveUser(r.Context(), body.UserID, bearerToken(r)); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeSuccess(w, nil)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DisplayName string `json:"displayName"`
		Description string `json:"description"`
		Avatar      string `json:"avatar"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	if err := s.svc.UpdateUser(r.Context(), bearerToken(r), body.DisplayName, body.Description, body.Avatar); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeSuccess(w, nil)
}

func (s *Server) handleSetUserRole(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"userId"`
		Role   string `json:"role"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}
	if body.Role != string(chitter.RoleAdmin) && body.Role != string(chitter.RoleParticipant) {
		s.writeValidationError(w, "role must be admin or participant")
		return
	}

	if err := s.svc.SetUserRole(r.Context(), bearerToken(r), body.UserID, chitter.Role(body.Role)); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeSuccess(w, nil)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	user, err := s.svc.GetUser(r.Context(), bearerToken(r), userID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeSuccess(w, user)
}

func (s *Server) handleGetUsers(w http.ResponseWriter, r *http.Request) {
	channelID := r.URL.Query().Get("channelId")
	users, err := s.svc.GetUsers(r.Context(), bearerToken(r), channelID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeSuccess(w, users)
}

// ---- Transfer bundles ---------------------------------------------------

func (s *Server) handleCreateTransferBundle(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserTokens []string `json:"userTokens"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	code, err := s.svc.CreateTransferBundle(r.Context(), body.UserTokens)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeSuccess(w, map[string]string{"transferCode": code})
}

func (s *Server) handleGetTransferBundleFromCode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TransferCode string `json:"transferCode"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	users, err := s.svc.GetTransferBundleFromCode(r.Context(), body.TransferCode)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeSuccess(w, users)
}

// ---- Messages -------------------------------------------------------------

func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content             any    `json:"content"`
		ChannelID           string `json:"channelId"`
		DirectMessageUserID string `json:"directMessageUserId"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	id, err := s.svc.CreateMessage(r.Context(), bearerToken(r), body.Content, body.ChannelID, body.DirectMessageUserID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeSuccess(w, map[string]int64{"messageId": id})
}

func (s *Server) handleRemoveMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		MessageID int64 `json:"messageId"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	if err := s.svc.RemoveMessage(r.Context(), bearerToken(r), body.MessageID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeSuccess(w, nil)
}

func (s *Server) handleEditMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		MessageID int64 `json:"messageId"`
		Content   any   `json:"content"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	if err := s.svc.EditMessage(r.Context(), bearerToken(r), body.MessageID, body.Content); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeSuccess(w, nil)
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var cursor *int64
	if raw := q.Get("cursor"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeValidationError(w, "cursor must be an integer")
			return
		}
		cursor = &v
	}

	limit := 25
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			s.writeValidationError(w, "limit must be a positive integer")
			return
		}
		limit = v
	}
	if limit > 100 {
		limit = 100
	}

	messages, err := s.svc.GetMessages(r.Context(), bearerToken(r), q.Get("channelId"), q.Get("directMessageUserId"), cursor, limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeSuccess(w, messages)
}

// ---- Channels ---------------------------------------------------------

func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DisplayName string `json:"displayName"`
		IsPrivate   bool   `json:"isPrivate"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}
	if body.DisplayName == "" {
		s.writeValidationError(w, "displayName is required")
		return
	}

	id, err := s.svc.CreateChannel(r.Context(), bearerToken(r), body.DisplayName, body.IsPrivate)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeSuccess(w, map[string]string{"channelId": id})
}

func (s *Server) handleRemoveChannel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ChannelID string `json:"channelId"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	if err := s.svc.RemoveChannel(r.Context(), bearerToken(r), body.ChannelID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeSuccess(w, nil)
}

func (s *Server) handleUpdateChannel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ChannelID   string `json:"channelId"`
		DisplayName string `json:"displayName"`
		Description string `json:"description"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	if err := s.svc.UpdateChannel(r.Context(), bearerToken(r), body.ChannelID, body.DisplayName, body.Description); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeSuccess(w, nil)
}

func (s *Server) handleGetChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.svc.GetChannels(r.Context(), bearerToken(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeSuccess(w, channels)
}

func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	channelID := r.URL.Query().Get("channelId")
	channel, err := s.svc.GetChannel(r.Context(), bearerToken(r), channelID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeSuccess(w, channel)
}

func (s *Server) handleAddUserToChannel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID    string `json:"userId"`
		ChannelID string `json:"channelId"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	if err := s.svc.AddUserToChannel(r.Context(), bearerToken(r), body.UserID, body.ChannelID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeSuccess(w, nil)
}

func (s *Server) handleRemoveUserFromChannel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID    string `json:"userId"`
		ChannelID string `json:"channelId"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	if err := s.svc.RemoveUserFromChannel(r.Context(), bearerToken(r), body.UserID, body.ChannelID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeSuccess(w, nil)
}

// ---- Attachments --------------------------------------------------------

func (s *Server) handleRemoveAttachment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AttachmentID string `json:"attachmentId"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	if err := s.svc.RemoveAttachment(r.Context(), bearerToken(r), body.AttachmentID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeSuccess(w, nil)
}

// ---- Process control --------------------------------------------------

// handleShutdown lets an operator trigger a graceful shutdown over HTTP,
// gated by the SHUTDOWN_TOKEN configured at startup, instead of requiring
// direct process access to send a signal.
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if s.shutdownToken == "" || bearerToken(r) != s.shutdownToken {
		s.writeServiceError(w, chitter.Tagged(chitter.TagInvalidToken, nil))
		return
	}

	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
	s.writeSuccess(w, nil)
}
