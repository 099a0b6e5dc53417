// Package api implements the HTTP edge: endpoint routing, request
// validation, and translation between Service calls and spec.md §6's JSON
// envelope. Grounded on the teacher's api.GoChatApp — same ServeMux method-
// prefixed routing, same CORS wrapper, same panic-recovery middleware,
// generalized from cookie sessions to a per-request Authorization header.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/handlers"

	"github.com/mwren/chitter/internal/chitter"
)

// Server wires a chitter.Service to the HTTP API.
type Server struct {
	log           *log.Logger
	svc           chitter.Service
	mux           *http.Server
	uploadDir     string
	shutdownToken string

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// Config bundles the options NewServer needs from internal/config, without
// importing that package directly so api stays usable from tests that
// build their own Config literal.
type Config struct {
	Addr           string
	AllowedOrigins []string
	UploadDir      string
	ShutdownToken  string
}

// NewServer builds the routed, CORS-wrapped, panic-recovering HTTP server.
func NewServer(logger *log.Logger, svc chitter.Service, cfg Config) *Server {
	s := &Server{
		log:           logger,
		svc:           svc,
		uploadDir:     cfg.UploadDir,
		shutdownToken: cfg.ShutdownToken,
		shutdownCh:    make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/createRoomAndAdmin", s.handleCreateRoomAndAdmin)
	mux.HandleFunc("POST /api/updateRoom", s.handleUpdateRoom)
	mux.HandleFunc("GET /api/getRoom", s.handleGetRoom)

	mux.HandleFunc("POST /api/createInviteCode", s.handleCreateInviteCode)
	mux.HandleFunc("POST /api/createUserFromInviteCode", s.handleCreateUserFromInviteCode)
	mux.HandleFunc("POST /api/removeUser", s.handleRemoveUser)
	mux.HandleFunc("POST /api/updateUser", s.handleUpdateUser)
	mux.HandleFunc("POST /api/setUserRole", s.handleSetUserRole)
	mux.HandleFunc("GET /api/getUser", s.handleGetUser)
	mux.HandleFunc("GET /api/getUsers", s.handleGetUsers)

	mux.HandleFunc("POST /api/createTransferBundle", s.handleCreateTransferBundle)
	mux.HandleFunc("POST /api/getTransferBundleFromCode", s.handleGetTransferBundleFromCode)

	mux.HandleFunc("POST /api/createMessage", s.handleCreateMessage)
	mux.HandleFunc("POST /api/removeMessage", s.handleRemoveMessage)
	mux.HandleFunc("POST /api/editMessage", s.handleEditMessage)
	mux.HandleFunc("GET /api/getMessages", s.handleGetMessages)

	mux.HandleFunc("POST /api/createChannel", s.handleCreateChannel)
	mux.HandleFunc("POST /api/removeChannel", s.handleRemoveChannel)
	mux.HandleFunc("POST /api/updateChannel", s.handleUpdateChannel)
	mux.HandleFunc("GET /api/getChannels", s.handleGetChannels)
	mux.HandleFunc("GET /api/getChannel", s.handleGetChannel)
	mux.HandleFunc("POST /api/addUserToChannel", s.handleAddUserToChannel)
	mux.HandleFunc("POST /api/removeUserFromChannel", s.handleRemoveUserFromChannel)

	mux.HandleFunc("POST /api/uploadAttachment", s.handleUploadAttachment)
	mux.HandleFunc("DELETE /api/removeAttachment", s.handleRemoveAttachment)

	mux.HandleFunc("POST /api/shutdown", s.handleShutdown)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Authorization"}),
	)(mux)

	h = s.errorHandler(h)

	s.mux = &http.Server{Addr: cfg.Addr, Handler: h}
	return s
}

// errorHandler recovers a panicking handler into an UnknownServerError
// response rather than crashing the process, grounded on the teacher's
// GoChatApp.errorHandler.
func (s *Server) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicErr error
				switch e := err.(type) {
				case error:
					panicErr = e
				default:
					panicErr = fmt.Errorf("%v", e)
				}
				s.log.Printf("panic: %v", panicErr)
				w.Header().Set("Connection", "close")
				s.writeServiceError(w, chitter.Tagged(chitter.TagUnknownServerError, panicErr))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

// ShutdownRequested closes once a caller presents the shutdown token to
// POST /api/shutdown, so main can select on it alongside OS signals.
func (s *Server) ShutdownRequested() <-chan struct{} {
	return s.shutdownCh
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
