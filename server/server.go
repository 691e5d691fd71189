package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/wfunc/lobbyserver/auth"
	"github.com/wfunc/lobbyserver/broadcast"
	"github.com/wfunc/lobbyserver/lobby"
	"github.com/wfunc/lobbyserver/logger"
	"github.com/wfunc/lobbyserver/models"
	"github.com/wfunc/lobbyserver/network"
	"github.com/wfunc/lobbyserver/services"
)

// Lobby is the part of the orchestrator the request layer drives.
type Lobby interface {
	Start(ctx context.Context, starterID int64) (*models.Session, error)
	Join(ctx context.Context, userID int64) error
	Leave(ctx context.Context, userID int64) error
	Pick(ctx context.Context, userID int64, n int) error
	ForceEnd(ctx context.Context, winningNumber int) (*network.SessionEnded, error)
	Current() *lobby.Snapshot
}

type LobbyServer struct {
	addr     string
	engine   *gin.Engine
	http     *http.Server
	lobby    Lobby
	players  *services.PlayerService
	bus      *broadcast.Bus
	auth     *auth.Authenticator
	upgrader websocket.Upgrader

	// ctx ends every open event stream on shutdown.
	ctx    context.Context
	cancel context.CancelFunc
}

func NewLobbyServer(addr string, l Lobby, players *services.PlayerService, bus *broadcast.Bus, authenticator *auth.Authenticator) *LobbyServer {
	ctx, cancel := context.WithCancel(context.Background())
	s := &LobbyServer{
		addr:    addr,
		lobby:   l,
		players: players,
		bus:     bus,
		auth:    authenticator,
		ctx:     ctx,
		cancel:  cancel,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // observers may come from any origin
			},
		},
	}
	s.engine = s.routes()
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *LobbyServer) Handler() http.Handler {
	return s.engine
}

func (s *LobbyServer) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	r.GET("/ws", s.handleWebSocket)

	api := r.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.POST("/login", s.handleLogin)
		api.GET("/session/stream", s.handleStream)

		authed := api.Group("")
		authed.Use(bearerAuth(s.auth))
		{
			authed.GET("/session/current", s.handleCurrent)
			authed.POST("/session/start", s.handleStart)
			authed.POST("/session/join", s.handleJoin)
			authed.POST("/session/leave", s.handleLeave)
			authed.POST("/session/end", s.handleEnd)
			authed.POST("/game/pick", s.handlePick)
			authed.GET("/players/me", s.handleMe)
			authed.GET("/players/top", s.handleTopPlayers)
			authed.GET("/sessions/grouped", s.handleSessionsGrouped)
			authed.GET("/winners/grouped", s.handleWinnersGrouped)
		}
	}
	return r
}

func (s *LobbyServer) Start() error {
	logger.Log.Infof("Lobby server listening on %s", s.addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown ends open event streams, then drains in-flight requests.
func (s *LobbyServer) Shutdown(ctx context.Context) error {
	s.cancel()
	return s.http.Shutdown(ctx)
}
