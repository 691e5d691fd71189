package rpc

import (
	"github.com/wfunc/lobbyserver/lobby"
	"github.com/wfunc/lobbyserver/network"
	"github.com/wfunc/lobbyserver/services"
)

type Empty struct{}

type LoginRequest struct {
	Username string `json:"username"`
}

type LoginReply = services.LoginResult

type StartReply struct {
	SessionID int64 `json:"session_id"`
}

type PickRequest struct {
	PickedNumber int `json:"picked_number"`
}

type ForceEndRequest struct {
	WinningNumber int `json:"winning_number"`
}

type ForceEndReply = network.SessionEnded

type CurrentReply = lobby.Snapshot

type EventsRequest struct{}
