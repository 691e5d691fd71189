package main

import (
	"bufio"
	"context"
	"flag"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wfunc/lobbyserver/logger"
	"github.com/wfunc/lobbyserver/network"
	"github.com/wfunc/lobbyserver/rpc"
)

const usage = "commands: start | join | leave | pick <1-9> | end <1-9> | current | quit"

// watch prints every event from the websocket stream until it closes.
func watch(c *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			logger.Log.Infof("Stream closed: %v", err)
			return
		}
		ev, err := network.Decode(message)
		if err != nil {
			logger.Log.Warnf("Undecodable event: %s", message)
			continue
		}
		logger.Log.Infof("<- %s %s", ev.Type, message)
	}
}

func run(ctx context.Context, client *rpc.Client, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	number := func() (int, error) {
		if len(fields) < 2 {
			return 0, strconv.ErrSyntax
		}
		return strconv.Atoi(fields[1])
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	switch fields[0] {
	case "start":
		reply, err := client.Start(ctx)
		if err == nil {
			logger.Log.Infof("-> started session %d", reply.SessionID)
		}
		return err
	case "join":
		return client.Join(ctx)
	case "leave":
		return client.Leave(ctx)
	case "pick":
		n, err := number()
		if err != nil {
			return err
		}
		return client.Pick(ctx, n)
	case "end":
		n, err := number()
		if err != nil {
			return err
		}
		reply, err := client.ForceEnd(ctx, n)
		if err == nil {
			logger.Log.Infof("-> winners %v", reply.Winners)
		}
		return err
	case "current":
		snap, err := client.Current(ctx)
		if err == nil {
			logger.Log.Infof("-> %s, %d participants, %d left", snap.Phase, len(snap.Participants), snap.SecondsRemaining)
		}
		return err
	default:
		logger.Log.Info(usage)
		return nil
	}
}

func main() {
	httpAddr := flag.String("http", "localhost:4000", "lobby HTTP address")
	rpcAddr := flag.String("rpc", "localhost:4001", "lobby gRPC address")
	username := flag.String("user", "player", "username to log in as")
	flag.Parse()

	logger.Init("info", true)
	defer logger.Sync()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	ctx := context.Background()

	client, err := rpc.Dial(*rpcAddr)
	if err != nil {
		logger.Log.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()

	login, err := client.Login(ctx, *username)
	if err != nil {
		logger.Log.Fatalf("Login failed: %v", err)
	}
	logger.Log.Infof("Logged in as %s (wins %d, losses %d)", login.Username, login.Wins, login.Losses)

	u := url.URL{Scheme: "ws", Host: *httpAddr, Path: "/ws"}
	logger.Log.Infof("Connecting to %s", u.String())
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		logger.Log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})
	go watch(c, done)

	lines := make(chan string)
	go func() {
		reader := bufio.NewReader(os.Stdin)
		for {
			text, err := reader.ReadString('\n')
			if err != nil {
				close(lines)
				return
			}
			lines <- strings.TrimSpace(text)
		}
	}()

	logger.Log.Info(usage)
	for {
		select {
		case <-done:
			return
		case <-interrupt:
			logger.Log.Info("Interrupt received, closing connection.")
			c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		case line, ok := <-lines:
			if !ok || line == "quit" {
				return
			}
			if err := run(ctx, client, line); err != nil {
				logger.Log.Warnf("%s: %v", line, err)
			}
		}
	}
}
