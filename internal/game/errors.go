package game

import "errors"

var (
	ErrNotHost          = errors.New("only the host can do that")
	ErrNotAI            = errors.New("player is not a bot")
	ErrWrongPhase       = errors.New("not allowed in the current phase")
	ErrBusy             = errors.New("a transition for this room is already in progress")
	ErrConflict         = errors.New("the room was changed by someone else")
	ErrNoNextVIP        = errors.New("no player left to be VIP")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidSelection = errors.New("invalid selection")
	ErrInvalidGuess     = errors.New("invalid guess")
	ErrRoomFull         = errors.New("room is full")
	ErrNotEnoughPlayers = errors.New("at least two players are needed")
)
