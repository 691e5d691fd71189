package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wfunc/lobbyserver/logger"
	"github.com/wfunc/lobbyserver/network"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
}

type pickRequest struct {
	PickedNumber int `json:"picked_number" binding:"required"`
}

type endRequest struct {
	WinningNumber int `json:"winning_number" binding:"required"`
}

type successResponse struct {
	Success   bool  `json:"success"`
	SessionID int64 `json:"session_id,omitempty"`
}

func (s *LobbyServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *LobbyServer) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "username required"})
		return
	}
	res, err := s.players.Login(c.Request.Context(), req.Username)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *LobbyServer) handleCurrent(c *gin.Context) {
	c.JSON(http.StatusOK, s.lobby.Current())
}

func (s *LobbyServer) handleStart(c *gin.Context) {
	session, err := s.lobby.Start(c.Request.Context(), identity(c).UserID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse{Success: true, SessionID: session.ID})
}

func (s *LobbyServer) handleJoin(c *gin.Context) {
	if err := s.lobby.Join(c.Request.Context(), identity(c).UserID); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse{Success: true})
}

func (s *LobbyServer) handleLeave(c *gin.Context) {
	if err := s.lobby.Leave(c.Request.Context(), identity(c).UserID); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse{Success: true})
}

func (s *LobbyServer) handlePick(c *gin.Context) {
	var req pickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "picked_number required"})
		return
	}
	if err := s.lobby.Pick(c.Request.Context(), identity(c).UserID, req.PickedNumber); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse{Success: true})
}

func (s *LobbyServer) handleEnd(c *gin.Context) {
	var req endRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "winning_number required"})
		return
	}
	ended, err := s.lobby.ForceEnd(c.Request.Context(), req.WinningNumber)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, ended)
}

func (s *LobbyServer) handleMe(c *gin.Context) {
	stats, err := s.players.Stats(c.Request.Context(), identity(c).UserID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":         stats.UserID,
		"username":        stats.Username,
		"wins":            stats.Wins,
		"losses":          stats.Losses(),
		"sessions_played": stats.SessionsPlayed,
	})
}

func (s *LobbyServer) handleTopPlayers(c *gin.Context) {
	players, err := s.players.Leaderboard(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"players": players})
}

func (s *LobbyServer) handleSessionsGrouped(c *gin.Context) {
	days, err := s.players.SessionsGrouped(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"grouped": days})
}

func (s *LobbyServer) handleWinnersGrouped(c *gin.Context) {
	groups, err := s.players.WinnersGrouped(c.Request.Context(), c.Query("period"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"grouped": groups})
}

// handleStream serves the event stream as server-sent events.
func (s *LobbyServer) handleStream(c *gin.Context) {
	conn, err := network.NewSSEConnection(c.Writer, c.Request)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	if err := s.bus.Attach(ctx, conn); err != nil && ctx.Err() == nil {
		logger.Log.Debugw("event stream ended", "remote", conn.RemoteAddr(), "error", err)
	}
}

// handleWebSocket serves the same event stream as websocket text frames.
func (s *LobbyServer) handleWebSocket(c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	conn := network.NewWSConnection(ws)
	defer conn.Close()

	logger.Log.Infof("New observer from %s", conn.RemoteAddr())
	if err := s.bus.Attach(s.ctx, conn); err != nil && s.ctx.Err() == nil {
		logger.Log.Debugw("websocket stream ended", "remote", conn.RemoteAddr(), "error", err)
	}
}
