package game

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/playperu/knowsy/internal/knowsy"
	"github.com/playperu/knowsy/internal/session"
	"github.com/playperu/knowsy/internal/store"
)

const (
	DefaultRounds = 3
	MaxRounds     = 10

	maxNameLen   = 40
	codeLen      = 6
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	codeAttempts = 5
)

type NewRoom struct {
	HostName    string
	UserID      string
	OrgID       string
	TotalRounds int
}

// Ticket is what a player receives on entering a room. Token is shown once;
// only its hash is stored.
type Ticket struct {
	Room   knowsy.Room
	Player knowsy.Player
	Token  string
}

func (c *Controller) CreateRoom(ctx context.Context, in NewRoom) (Ticket, error) {
	name, err := cleanName(in.HostName)
	if err != nil {
		return Ticket{}, err
	}
	rounds := in.TotalRounds
	if rounds == 0 {
		rounds = DefaultRounds
	}
	if rounds < 1 || rounds > MaxRounds {
		return Ticket{}, fmt.Errorf("%w: totalRounds must be between 1 and %d", ErrInvalidInput, MaxRounds)
	}

	code, err := c.unusedCode(ctx)
	if err != nil {
		return Ticket{}, err
	}
	token, hash, err := session.New()
	if err != nil {
		return Ticket{}, err
	}

	room, host, err := c.store.CreateRoom(ctx, code, in.OrgID, rounds,
		knowsy.Player{Name: name, UserID: in.UserID}, hash)
	if err != nil {
		return Ticket{}, fmt.Errorf("creating room: %w", err)
	}
	c.logger.Info("room created", "room", room.ID, "code", room.Code, "rounds", rounds, "host", host.ID)
	return Ticket{Room: room, Player: host, Token: token}, nil
}

// Join adds a player to a waiting room. A user who already holds a seat in
// the room gets that seat back with a fresh token, in any phase.
func (c *Controller) Join(ctx context.Context, code, name, userID string) (Ticket, error) {
	room, err := c.store.RoomByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return Ticket{}, err
	}

	if userID != "" {
		p, err := c.store.PlayerByUser(ctx, room.ID, userID)
		if err == nil {
			return c.rejoin(ctx, room, p)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return Ticket{}, fmt.Errorf("looking up user: %w", err)
		}
	}

	name, err = cleanName(name)
	if err != nil {
		return Ticket{}, err
	}
	if room.Phase != knowsy.PhaseWaiting {
		return Ticket{}, ErrWrongPhase
	}
	if err := c.checkCapacity(ctx, room.ID); err != nil {
		return Ticket{}, err
	}

	token, hash, err := session.New()
	if err != nil {
		return Ticket{}, err
	}
	p, err := c.store.AddPlayer(ctx, knowsy.Player{RoomID: room.ID, UserID: userID, Name: name}, hash)
	if err != nil {
		return Ticket{}, fmt.Errorf("adding player: %w", err)
	}
	c.logger.Info("player joined", "room", room.ID, "player", p.ID)
	return Ticket{Room: room, Player: p, Token: token}, nil
}

func (c *Controller) rejoin(ctx context.Context, room knowsy.Room, p knowsy.Player) (Ticket, error) {
	token, hash, err := session.New()
	if err != nil {
		return Ticket{}, err
	}
	if err := c.store.SetSession(ctx, p.ID, hash); err != nil {
		return Ticket{}, fmt.Errorf("rotating session: %w", err)
	}
	p.LeftAt = nil
	c.logger.Info("player rejoined", "room", room.ID, "player", p.ID)
	return Ticket{Room: room, Player: p, Token: token}, nil
}

// AddBot seats a bot player. Host only, before the game starts.
func (c *Controller) AddBot(ctx context.Context, actorID, name string) (knowsy.Player, error) {
	actor, err := c.store.Player(ctx, actorID)
	if err != nil {
		return knowsy.Player{}, err
	}
	if !actor.IsHost {
		return knowsy.Player{}, ErrNotHost
	}
	room, err := c.store.Room(ctx, actor.RoomID)
	if err != nil {
		return knowsy.Player{}, err
	}
	if room.Phase != knowsy.PhaseWaiting {
		return knowsy.Player{}, ErrWrongPhase
	}

	players, err := c.store.Players(ctx, room.ID)
	if err != nil {
		return knowsy.Player{}, fmt.Errorf("loading players: %w", err)
	}
	if len(players) >= c.cfg.MaxPlayers {
		return knowsy.Player{}, ErrRoomFull
	}
	if strings.TrimSpace(name) == "" {
		bots := 0
		for _, p := range players {
			if p.IsAI {
				bots++
			}
		}
		name = fmt.Sprintf("Bot %d", bots+1)
	}
	name, err = cleanName(name)
	if err != nil {
		return knowsy.Player{}, err
	}

	bot, err := c.store.AddPlayer(ctx, knowsy.Player{RoomID: room.ID, Name: name, IsAI: true}, "")
	if err != nil {
		return knowsy.Player{}, fmt.Errorf("adding bot: %w", err)
	}
	c.logger.Info("bot added", "room", room.ID, "player", bot.ID)
	return bot, nil
}

// Leave removes the actor from their room for good.
func (c *Controller) Leave(ctx context.Context, actorID string) error {
	actor, err := c.store.Player(ctx, actorID)
	if err != nil {
		return err
	}
	return c.removePlayer(ctx, actor, "left")
}

// removePlayer deletes the player, migrates the host flag if needed and
// re-evaluates the room, since the departure may complete a phase.
func (c *Controller) removePlayer(ctx context.Context, p knowsy.Player, reason string) error {
	promoted, err := c.store.RemovePlayer(ctx, p.RoomID, p.ID)
	if err != nil {
		return fmt.Errorf("removing player: %w", err)
	}
	c.logger.Info("player removed", "room", p.RoomID, "player", p.ID, "reason", reason)
	if promoted != "" {
		c.logger.Info("host migrated", "room", p.RoomID, "from", p.ID, "to", promoted)
	}
	return c.advance(ctx, p.RoomID)
}

func (c *Controller) checkCapacity(ctx context.Context, roomID string) error {
	players, err := c.store.Players(ctx, roomID)
	if err != nil {
		return fmt.Errorf("loading players: %w", err)
	}
	if len(players) >= c.cfg.MaxPlayers {
		return ErrRoomFull
	}
	return nil
}

func (c *Controller) unusedCode(ctx context.Context) (string, error) {
	for range codeAttempts {
		code, err := newJoinCode()
		if err != nil {
			return "", err
		}
		_, err = c.store.RoomByCode(ctx, code)
		if errors.Is(err, store.ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", fmt.Errorf("checking join code: %w", err)
		}
	}
	return "", errors.New("could not find an unused join code")
}

func newJoinCode() (string, error) {
	b := make([]byte, codeLen)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating join code: %w", err)
	}
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b), nil
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return "", fmt.Errorf("%w: name is longer than %d characters", ErrInvalidInput, maxNameLen)
	}
	return name, nil
}
