package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"memorymap-backend/application/session"
	"memorymap-backend/pkg/auth"
)

// SessionOpener opens (or returns) the live session of a user.
type SessionOpener interface {
	Open(userID string) (*session.Session, error)
}

// ServerConfig holds websocket server configuration.
type ServerConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
	MaxConnsPerUser int
}

// DefaultServerConfig returns default websocket server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		MaxConnsPerUser: 10,
	}
}

// Server upgrades authenticated requests and attaches them to the hub.
type Server struct {
	hub      *Hub
	upgrader websocket.Upgrader
	auth     *auth.Authenticator
	sessions SessionOpener
	maxConns int
	logger   *zap.Logger
}

func NewServer(hub *Hub, authenticator *auth.Authenticator, sessions SessionOpener, config ServerConfig, logger *zap.Logger) *Server {
	if config.MaxConnsPerUser <= 0 {
		config.MaxConnsPerUser = DefaultServerConfig().MaxConnsPerUser
	}
	return &Server{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		auth:     authenticator,
		sessions: sessions,
		maxConns: config.MaxConnsPerUser,
		logger:   logger.With(zap.String("component", "websocket_server")),
	}
}

// HandleWebSocket handles upgrade requests. The new connection first
// receives CONNECTION_ESTABLISHED, then the current snapshot (once one
// has loaded) and the draft.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := s.auth.UserFromRequest(r)
	if err != nil {
		s.logger.Warn("WebSocket authentication failed",
			zap.Error(err),
			zap.String("remoteAddr", r.RemoteAddr),
		)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if count := s.hub.ConnectionCount(userID); count >= s.maxConns {
		s.logger.Warn("Connection limit exceeded for user",
			zap.String("userID", userID),
			zap.Int("currentConnections", count),
		)
		http.Error(w, "Connection limit exceeded", http.StatusTooManyRequests)
		return
	}

	sess, err := s.sessions.Open(userID)
	if err != nil {
		s.logger.Error("Failed to open session", zap.String("userID", userID), zap.Error(err))
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade connection",
			zap.Error(err),
			zap.String("remoteAddr", r.RemoteAddr),
		)
		return
	}

	client := newClient(userID, s.hub, conn, s.logger)
	client.start(func() [][]byte {
		return s.initialFrames(client, sess)
	})

	s.logger.Info("New WebSocket connection established",
		zap.String("userID", userID),
		zap.String("connectionID", client.id),
		zap.String("remoteAddr", r.RemoteAddr),
	)
}

func (s *Server) initialFrames(client *Client, sess *session.Session) [][]byte {
	now := s.hub.clock.Now()
	var frames [][]byte
	add := func(frameType string, payload any) {
		data, err := encodeFrame(frameType, payload, now)
		if err != nil {
			s.logger.Error("Failed to encode frame", zap.String("frameType", frameType), zap.Error(err))
			return
		}
		frames = append(frames, data)
	}

	add(FrameConnectionEstablished, connectionPayload{ConnectionID: client.id, UserID: client.userID})
	if snap := sess.Snapshots().Current(); snap.Sequence() > 0 {
		add(FrameSnapshot, newSnapshotPayload(snap))
	}
	add(FrameDraft, sess.Draft().Draft())
	return frames
}
