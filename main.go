package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wfunc/lobbyserver/auth"
	"github.com/wfunc/lobbyserver/broadcast"
	"github.com/wfunc/lobbyserver/config"
	"github.com/wfunc/lobbyserver/lobby"
	"github.com/wfunc/lobbyserver/logger"
	"github.com/wfunc/lobbyserver/monitor"
	"github.com/wfunc/lobbyserver/persistence"
	"github.com/wfunc/lobbyserver/rpc"
	"github.com/wfunc/lobbyserver/server"
	"github.com/wfunc/lobbyserver/services"
	"github.com/wfunc/lobbyserver/timer"
)

func main() {
	configDir := flag.String("config", ".", "directory containing config.yaml")
	flag.Parse()

	// Initialize logger
	logger.Init("info", false)

	// Load configuration
	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Development)
	defer logger.Sync()
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize Database
	db, err := persistence.Open(cfg.Database)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Log.Infow("Database connection successful.", "driver", cfg.Database.Driver)

	mon := monitor.NewMonitor("lobby")
	mon.StartServer(cfg.Server.MetricsAddress, func(err error) {
		logger.Log.Errorw("metrics server failed", "error", err)
	})
	defer mon.Close()

	bus := broadcast.NewBus(broadcast.DefaultBuffer, mon)
	scheduler := timer.NewScheduler(timer.NewTimerManager(50 * time.Millisecond))
	orchestrator := lobby.New(cfg.Game, db, bus, scheduler, lobby.WithMetrics(mon))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := orchestrator.Recover(ctx); err != nil {
		logger.Log.Errorw("Failed to recover the open session", "error", err)
	}

	authenticator := auth.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	players := services.NewPlayerService(db, authenticator)

	httpServer := server.NewLobbyServer(cfg.Server.HTTPAddress, orchestrator, players, bus, authenticator)
	rpcServer := rpc.NewServer(cfg.Server.RPCAddress, rpc.NewLobbyService(orchestrator, players, bus), authenticator)

	errc := make(chan error, 2)
	go func() { errc <- httpServer.Start() }()
	go func() { errc <- rpcServer.Start() }()

	select {
	case <-ctx.Done():
		logger.Log.Info("Shutdown signal received.")
	case err := <-errc:
		if err != nil {
			logger.Log.Errorw("Server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Log.Errorw("HTTP shutdown failed", "error", err)
	}
	bus.Close()
	rpcServer.Stop()
	orchestrator.Close()
}
