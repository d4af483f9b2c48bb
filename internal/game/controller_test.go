package game_test

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playperu/knowsy/internal/agent"
	"github.com/playperu/knowsy/internal/database"
	"github.com/playperu/knowsy/internal/feed"
	"github.com/playperu/knowsy/internal/game"
	"github.com/playperu/knowsy/internal/knowsy"
	"github.com/playperu/knowsy/internal/migrations"
	"github.com/playperu/knowsy/internal/session"
	"github.com/playperu/knowsy/internal/store"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	t     *testing.T
	ctx   context.Context
	store *store.Store
	bots  *agent.Agent
	ctrl  *game.Controller
	clock *clock
}

func newHarness(t *testing.T, cfg game.Config) *harness {
	t.Helper()
	return openHarness(t, cfg, ":memory:")
}

func openHarness(t *testing.T, cfg game.Config, path string) *harness {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.Run(db))

	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := store.New(db, feed.Discard{}, slog.Default())
	s.SetClock(clk.Now)
	_, err = s.SeedCatalog(ctx)
	require.NoError(t, err)

	bots := agent.New(s, slog.Default(), agent.WithRand(rand.New(rand.NewPCG(7, 11))))
	ctrl := game.New(cfg, s, bots, slog.Default())
	ctrl.SetClock(clk.Now)
	t.Cleanup(ctrl.Wait)

	return &harness{t: t, ctx: ctx, store: s, bots: bots, ctrl: ctrl, clock: clk}
}

// seat creates a room hosted by the first name and joins the rest.
func (h *harness) seat(rounds int, names ...string) (knowsy.Room, []game.Ticket) {
	h.t.Helper()
	host, err := h.ctrl.CreateRoom(h.ctx, game.NewRoom{HostName: names[0], TotalRounds: rounds})
	require.NoError(h.t, err)
	tickets := []game.Ticket{host}
	for _, n := range names[1:] {
		tk, err := h.ctrl.Join(h.ctx, host.Room.Code, n, "")
		require.NoError(h.t, err)
		tickets = append(tickets, tk)
	}
	return host.Room, tickets
}

func (h *harness) room(id string) knowsy.Room {
	h.t.Helper()
	r, err := h.store.Room(h.ctx, id)
	require.NoError(h.t, err)
	return r
}

func (h *harness) player(id string) knowsy.Player {
	h.t.Helper()
	p, err := h.store.Player(h.ctx, id)
	require.NoError(h.t, err)
	return p
}

func (h *harness) guess(actor, vip string, order []knowsy.ItemRef) int {
	h.t.Helper()
	res, err := h.ctrl.SubmitGuess(h.ctx, actor, vip, order)
	require.NoError(h.t, err)
	require.True(h.t, res.Created)
	return res.Guess.Score
}

// selectAll submits one ranking per ticket, in order.
func (h *harness) selectAll(tickets []game.Ticket, lists ...[]knowsy.ItemRef) {
	h.t.Helper()
	for i, tk := range tickets {
		topic := topicOf(lists[i])
		_, err := h.ctrl.SubmitSelection(h.ctx, tk.Player.ID, topic, lists[i])
		require.NoError(h.t, err)
	}
}

func items(topic string, names ...string) []knowsy.ItemRef {
	out := make([]knowsy.ItemRef, len(names))
	for i, n := range names {
		out[i] = knowsy.CatalogRef(topic + "-" + n)
	}
	return out
}

func topicOf(refs []knowsy.ItemRef) string {
	for _, r := range refs {
		if r.Kind == knowsy.ItemCatalog {
			for i := range r.ID {
				if r.ID[i] == '-' {
					return r.ID[:i]
				}
			}
		}
	}
	return "food"
}

var (
	aliceList = items("food", "pizza", "tacos", "sushi", "burgers", "salad")
	bobList   = items("food", "ramen", "curry", "pizza", "tacos", "sushi")
	carolList = items("travel", "tokyo", "lima", "reykjavik", "rome", "new-york")
)

func TestFullGameThreePlayers(t *testing.T) {
	h := newHarness(t, game.Config{})
	room, tk := h.seat(1, "Alice", "Bob", "Carol")
	alice, bob, carol := tk[0].Player.ID, tk[1].Player.ID, tk[2].Player.ID

	_, err := h.ctrl.Start(h.ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, knowsy.PhaseTopicSelection, h.room(room.ID).Phase)

	h.selectAll(tk, aliceList, bobList, carolList)
	r := h.room(room.ID)
	require.Equal(t, knowsy.PhaseGuessing, r.Phase)
	assert.Equal(t, alice, r.CurrentVIPID)
	assert.Equal(t, 0, r.VIPsCompleted)

	// Alice's turn.
	assert.Equal(t, 5, h.guess(bob, alice, items("food", "pizza", "sushi", "tacos", "burgers", "salad")))
	assert.Equal(t, knowsy.PhaseGuessing, h.room(room.ID).Phase)
	assert.Equal(t, -1, h.guess(carol, alice, items("food", "tacos", "pizza", "burgers", "salad", "sushi")))
	assert.Equal(t, knowsy.PhaseScoring, h.room(room.ID).Phase)
	assert.Equal(t, 5, h.player(bob).Score)
	assert.Equal(t, 0, h.player(carol).Score)

	r, err = h.ctrl.NextVIP(h.ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, knowsy.PhaseGuessing, r.Phase)
	assert.Equal(t, bob, r.CurrentVIPID)
	assert.Equal(t, 1, r.VIPsCompleted)

	// Bob's turn.
	assert.Equal(t, 10, h.guess(alice, bob, bobList))
	assert.Equal(t, 10, h.guess(carol, bob, bobList))

	r, err = h.ctrl.NextVIP(h.ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, carol, r.CurrentVIPID)
	assert.Equal(t, 2, r.VIPsCompleted)

	// Carol's turn.
	assert.Equal(t, 10, h.guess(alice, carol, carolList))
	assert.Equal(t, 1, h.guess(bob, carol, items("travel", "new-york", "rome", "reykjavik", "lima", "tokyo")))

	vips, err := h.store.RoundVIPs(h.ctx, room.ID, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{alice, bob, carol}, vips)

	r, err = h.ctrl.NextVIP(h.ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, knowsy.PhaseFinished, r.Phase)
	assert.Equal(t, 3, r.VIPsCompleted)

	rec, err := h.store.History(h.ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, alice, rec.WinnerID)
	assert.Equal(t, "Alice", rec.WinnerName)
	assert.Equal(t, 20, rec.WinnerScore)
	require.Len(t, rec.Standings, 3)
	assert.Equal(t, []string{"Alice", "Carol", "Bob"},
		[]string{rec.Standings[0].Name, rec.Standings[1].Name, rec.Standings[2].Name})

	_, err = h.ctrl.NextVIP(h.ctx, alice)
	assert.ErrorIs(t, err, game.ErrWrongPhase)
}

func TestRoundRollsOver(t *testing.T) {
	h := newHarness(t, game.Config{})
	room, tk := h.seat(2, "Alice", "Bob")
	alice, bob := tk[0].Player.ID, tk[1].Player.ID

	_, err := h.ctrl.Start(h.ctx, alice)
	require.NoError(t, err)
	h.selectAll(tk, aliceList, bobList)

	h.guess(bob, alice, aliceList)
	_, err = h.ctrl.NextVIP(h.ctx, alice)
	require.NoError(t, err)
	h.guess(alice, bob, bobList)

	r, err := h.ctrl.NextVIP(h.ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, knowsy.PhaseTopicSelection, r.Phase)
	assert.Equal(t, 2, r.CurrentRound)
	assert.Empty(t, r.CurrentVIPID)
	assert.Equal(t, 0, r.VIPsCompleted)

	_, err = h.store.History(h.ctx, room.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHostOnlyTriggers(t *testing.T) {
	h := newHarness(t, game.Config{})
	_, tk := h.seat(1, "Alice", "Bob")

	_, err := h.ctrl.Start(h.ctx, tk[1].Player.ID)
	assert.ErrorIs(t, err, game.ErrNotHost)

	_, err = h.ctrl.NextVIP(h.ctx, tk[0].Player.ID)
	assert.ErrorIs(t, err, game.ErrWrongPhase)

	_, err = h.ctrl.Start(h.ctx, tk[0].Player.ID)
	assert.NoError(t, err)
}

func TestStartNeedsTwoPlayers(t *testing.T) {
	h := newHarness(t, game.Config{})
	_, tk := h.seat(1, "Alice")

	_, err := h.ctrl.Start(h.ctx, tk[0].Player.ID)
	assert.ErrorIs(t, err, game.ErrNotEnoughPlayers)
}

func TestRepeatedTriggerIsDropped(t *testing.T) {
	h := newHarness(t, game.Config{Cooldown: time.Hour})
	room, tk := h.seat(1, "Alice", "Bob")

	first, err := h.ctrl.Start(h.ctx, tk[0].Player.ID)
	require.NoError(t, err)

	_, err = h.ctrl.Start(h.ctx, tk[0].Player.ID)
	assert.ErrorIs(t, err, game.ErrBusy)
	assert.Equal(t, first.Revision, h.room(room.ID).Revision)
}

func TestConcurrentNextVIPWritesOnce(t *testing.T) {
	h := newHarness(t, game.Config{})
	room, tk := h.seat(1, "Alice", "Bob", "Carol")
	alice, bob, carol := tk[0].Player.ID, tk[1].Player.ID, tk[2].Player.ID

	_, err := h.ctrl.Start(h.ctx, alice)
	require.NoError(t, err)
	h.selectAll(tk, aliceList, bobList, carolList)
	h.guess(bob, alice, aliceList)
	h.guess(carol, alice, aliceList)
	before := h.room(room.ID)
	require.Equal(t, knowsy.PhaseScoring, before.Phase)

	// A second controller stands in for another server instance with its
	// own guard, so only the revision check separates the two writers.
	other := game.New(game.Config{}, h.store, h.bots, slog.Default())

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, c := range []*game.Controller{h.ctrl, other} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.NextVIP(h.ctx, alice)
		}()
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, errorIsAny(err, game.ErrConflict, game.ErrWrongPhase), "unexpected error %v", err)
	}
	assert.Equal(t, 1, ok)

	after := h.room(room.ID)
	assert.Equal(t, before.Revision+1, after.Revision)
	assert.Equal(t, bob, after.CurrentVIPID)
	assert.Equal(t, 1, after.VIPsCompleted)
}

func errorIsAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

func TestSelfGuessIsIgnored(t *testing.T) {
	h := newHarness(t, game.Config{})
	room, tk := h.seat(1, "Alice", "Bob")
	alice := tk[0].Player.ID

	_, err := h.ctrl.Start(h.ctx, alice)
	require.NoError(t, err)
	h.selectAll(tk, aliceList, bobList)

	res, err := h.ctrl.SubmitGuess(h.ctx, alice, alice, aliceList)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.False(t, res.Created)

	guesses, err := h.store.Guesses(h.ctx, room.ID, 1, alice)
	require.NoError(t, err)
	assert.Empty(t, guesses)
	assert.Equal(t, 0, h.player(alice).Score)
	assert.Equal(t, knowsy.PhaseGuessing, h.room(room.ID).Phase)
}

func TestSubmissionValidation(t *testing.T) {
	h := newHarness(t, game.Config{})
	_, tk := h.seat(1, "Alice", "Bob")
	alice, bob := tk[0].Player.ID, tk[1].Player.ID

	_, err := h.ctrl.SubmitSelection(h.ctx, alice, "food", aliceList)
	assert.ErrorIs(t, err, game.ErrWrongPhase)

	_, err = h.ctrl.Start(h.ctx, alice)
	require.NoError(t, err)

	_, err = h.ctrl.SubmitSelection(h.ctx, alice, "food", aliceList[:4])
	assert.ErrorIs(t, err, game.ErrInvalidSelection)
	_, err = h.ctrl.SubmitSelection(h.ctx, alice, "travel", aliceList)
	assert.ErrorIs(t, err, game.ErrInvalidSelection)
	_, err = h.ctrl.SubmitSelection(h.ctx, alice, "nope", aliceList)
	assert.ErrorIs(t, err, game.ErrInvalidSelection)

	custom := append(items("food", "pizza", "tacos", "sushi", "burgers"), knowsy.InlineRef("Grandma's stew", ""))
	_, err = h.ctrl.SubmitSelection(h.ctx, alice, "food", custom)
	require.NoError(t, err)
	_, err = h.ctrl.SubmitSelection(h.ctx, bob, "food", bobList)
	require.NoError(t, err)

	_, err = h.ctrl.SubmitGuess(h.ctx, bob, alice, aliceList)
	assert.ErrorIs(t, err, game.ErrInvalidGuess)
	_, err = h.ctrl.SubmitGuess(h.ctx, alice, bob, bobList)
	assert.ErrorIs(t, err, game.ErrWrongPhase)

	reordered := []knowsy.ItemRef{custom[4], custom[0], custom[1], custom[2], custom[3]}
	res, err := h.ctrl.SubmitGuess(h.ctx, bob, alice, reordered)
	require.NoError(t, err)
	assert.Equal(t, -1, res.Guess.Score)
}

func TestLeaveCompletesGuessing(t *testing.T) {
	h := newHarness(t, game.Config{})
	room, tk := h.seat(1, "Alice", "Bob", "Carol")
	alice, bob, carol := tk[0].Player.ID, tk[1].Player.ID, tk[2].Player.ID

	_, err := h.ctrl.Start(h.ctx, alice)
	require.NoError(t, err)
	h.selectAll(tk, aliceList, bobList, carolList)
	h.guess(bob, alice, aliceList)

	require.NoError(t, h.ctrl.Leave(h.ctx, carol))
	assert.Equal(t, knowsy.PhaseScoring, h.room(room.ID).Phase)
}

func TestHostLeavesMidRound(t *testing.T) {
	h := newHarness(t, game.Config{})
	room, tk := h.seat(1, "Alice", "Bob", "Carol")
	alice, bob, carol := tk[0].Player.ID, tk[1].Player.ID, tk[2].Player.ID

	_, err := h.ctrl.Start(h.ctx, alice)
	require.NoError(t, err)
	h.selectAll(tk, aliceList, bobList, carolList)
	h.guess(bob, alice, aliceList)
	h.guess(carol, alice, aliceList)

	require.NoError(t, h.ctrl.Leave(h.ctx, alice))
	assert.True(t, h.player(bob).IsHost)

	_, err = h.ctrl.NextVIP(h.ctx, carol)
	assert.ErrorIs(t, err, game.ErrNotHost)

	r, err := h.ctrl.NextVIP(h.ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, bob, r.CurrentVIPID)
	assert.Equal(t, 0, r.VIPsCompleted)

	h.guess(carol, bob, bobList)
	r, err = h.ctrl.NextVIP(h.ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, carol, r.CurrentVIPID)

	h.guess(bob, carol, items("travel", "new-york", "rome", "reykjavik", "lima", "tokyo"))
	r, err = h.ctrl.NextVIP(h.ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, knowsy.PhaseFinished, r.Phase)
	assert.Equal(t, 2, r.VIPsCompleted)

	rec, err := h.store.History(h.ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, "Carol", rec.WinnerName)
}

func TestEndGame(t *testing.T) {
	h := newHarness(t, game.Config{})
	room, tk := h.seat(3, "Alice", "Bob")
	alice, bob := tk[0].Player.ID, tk[1].Player.ID

	_, err := h.ctrl.Start(h.ctx, alice)
	require.NoError(t, err)
	h.selectAll(tk, aliceList, bobList)

	_, err = h.ctrl.EndGame(h.ctx, alice)
	assert.ErrorIs(t, err, game.ErrWrongPhase)

	h.guess(bob, alice, items("food", "tacos", "pizza", "burgers", "salad", "sushi"))

	r, err := h.ctrl.EndGame(h.ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, knowsy.PhaseFinished, r.Phase)
	assert.Equal(t, 1, r.CurrentRound)

	rec, err := h.store.History(h.ctx, room.ID)
	require.NoError(t, err)
	assert.Empty(t, rec.WinnerID)
	assert.Empty(t, rec.WinnerName)
	assert.Equal(t, 3, rec.TotalRounds)
}

func TestJoinRules(t *testing.T) {
	h := newHarness(t, game.Config{MaxPlayers: 2})

	host, err := h.ctrl.CreateRoom(h.ctx, game.NewRoom{HostName: "Alice"})
	require.NoError(t, err)
	assert.Len(t, host.Room.Code, 6)
	assert.Equal(t, game.DefaultRounds, host.Room.TotalRounds)

	_, err = h.ctrl.Join(h.ctx, "ZZZZZZ", "Bob", "")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = h.ctrl.Join(h.ctx, host.Room.Code, "   ", "")
	assert.ErrorIs(t, err, game.ErrInvalidInput)

	bob, err := h.ctrl.Join(h.ctx, " "+strings.ToLower(host.Room.Code)+" ", "Bob", "user-bob")
	require.NoError(t, err)
	assert.NotEmpty(t, bob.Token)

	_, err = h.ctrl.Join(h.ctx, host.Room.Code, "Carol", "")
	assert.ErrorIs(t, err, game.ErrRoomFull)

	_, err = h.ctrl.Start(h.ctx, host.Player.ID)
	require.NoError(t, err)
	h.ctrl.Wait()

	_, err = h.ctrl.Join(h.ctx, host.Room.Code, "Dave", "")
	assert.ErrorIs(t, err, game.ErrWrongPhase)

	again, err := h.ctrl.Join(h.ctx, host.Room.Code, "Bobby", "user-bob")
	require.NoError(t, err)
	assert.Equal(t, bob.Player.ID, again.Player.ID)
	assert.NotEqual(t, bob.Token, again.Token)

	p, err := h.store.PlayerBySession(h.ctx, session.Hash(again.Token))
	require.NoError(t, err)
	assert.Equal(t, bob.Player.ID, p.ID)
	_, err = h.store.PlayerBySession(h.ctx, session.Hash(bob.Token))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateRoomValidation(t *testing.T) {
	h := newHarness(t, game.Config{})

	_, err := h.ctrl.CreateRoom(h.ctx, game.NewRoom{HostName: ""})
	assert.ErrorIs(t, err, game.ErrInvalidInput)
	_, err = h.ctrl.CreateRoom(h.ctx, game.NewRoom{HostName: "Alice", TotalRounds: game.MaxRounds + 1})
	assert.ErrorIs(t, err, game.ErrInvalidInput)
	_, err = h.ctrl.CreateRoom(h.ctx, game.NewRoom{HostName: "Alice", TotalRounds: -1})
	assert.ErrorIs(t, err, game.ErrInvalidInput)
}

func TestBotsPlayAlong(t *testing.T) {
	h := newHarness(t, game.Config{MaxPlayers: 3})
	room, tk := h.seat(1, "Alice")
	alice := tk[0].Player.ID

	bot1, err := h.ctrl.AddBot(h.ctx, alice, "")
	require.NoError(t, err)
	assert.Equal(t, "Bot 1", bot1.Name)
	assert.True(t, bot1.IsAI)
	bot2, err := h.ctrl.AddBot(h.ctx, alice, "Robo")
	require.NoError(t, err)

	_, err = h.ctrl.AddBot(h.ctx, alice, "")
	assert.ErrorIs(t, err, game.ErrRoomFull)
	_, err = h.ctrl.AddBot(h.ctx, bot1.ID, "")
	assert.ErrorIs(t, err, game.ErrNotHost)

	_, err = h.ctrl.Start(h.ctx, alice)
	require.NoError(t, err)
	_, err = h.ctrl.SubmitSelection(h.ctx, alice, "food", aliceList)
	require.NoError(t, err)
	h.ctrl.Wait()

	r := h.room(room.ID)
	require.Equal(t, knowsy.PhaseScoring, r.Phase, "bots should have guessed Alice's list")
	assert.Equal(t, alice, r.CurrentVIPID)

	guesses, err := h.store.Guesses(h.ctx, room.ID, 1, alice)
	require.NoError(t, err)
	assert.Len(t, guesses, 2)

	r, err = h.ctrl.NextVIP(h.ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, bot1.ID, r.CurrentVIPID)

	sel, err := h.store.Selection(h.ctx, room.ID, 1, bot1.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, h.guess(alice, bot1.ID, sel.Items))
	h.ctrl.Wait()

	r = h.room(room.ID)
	assert.Equal(t, knowsy.PhaseScoring, r.Phase)
	guesses, err = h.store.Guesses(h.ctx, room.ID, 1, bot1.ID)
	require.NoError(t, err)
	assert.Len(t, guesses, 2)
	assert.Equal(t, "Robo", bot2.Name)
}

func TestBotsPlayConcurrentlyOnFileDB(t *testing.T) {
	h := openHarness(t, game.Config{MaxPlayers: 11}, filepath.Join(t.TempDir(), "knowsy.db"))
	room, tk := h.seat(1, "Alice")
	alice := tk[0].Player.ID

	const bots = 10
	for range bots {
		_, err := h.ctrl.AddBot(h.ctx, alice, "")
		require.NoError(t, err)
	}

	_, err := h.ctrl.Start(h.ctx, alice)
	require.NoError(t, err)
	h.ctrl.Wait()

	sels, err := h.store.Selections(h.ctx, room.ID, 1)
	require.NoError(t, err)
	assert.Len(t, sels, bots, "every bot should have stored a selection")

	_, err = h.ctrl.SubmitSelection(h.ctx, alice, "food", aliceList)
	require.NoError(t, err)
	h.ctrl.Wait()

	guesses, err := h.store.Guesses(h.ctx, room.ID, 1, alice)
	require.NoError(t, err)
	assert.Len(t, guesses, bots, "every bot should have guessed Alice's list")
	assert.Equal(t, knowsy.PhaseScoring, h.room(room.ID).Phase)
}

// scoringRace moves the room to scoring right after the controller has
// passed its phase check for a guess, as the sweeper would when the
// deadline expires in between.
type scoringRace struct {
	*store.Store
	once sync.Once
}

func (s *scoringRace) Selection(ctx context.Context, roomID string, round int, playerID string) (knowsy.Selection, error) {
	s.once.Do(func() {
		r, err := s.Store.Room(ctx, roomID)
		if err == nil {
			r.Phase = knowsy.PhaseScoring
			_, err = s.Store.UpdateRoom(ctx, r)
		}
		if err != nil {
			panic(err)
		}
	})
	return s.Store.Selection(ctx, roomID, round, playerID)
}

func TestGuessLosingRaceToScoring(t *testing.T) {
	h := newHarness(t, game.Config{})
	room, tk := h.seat(1, "Alice", "Bob")
	alice, bob := tk[0].Player.ID, tk[1].Player.ID

	_, err := h.ctrl.Start(h.ctx, alice)
	require.NoError(t, err)
	h.selectAll(tk, aliceList, bobList)
	require.Equal(t, knowsy.PhaseGuessing, h.room(room.ID).Phase)

	racing := game.New(game.Config{}, &scoringRace{Store: h.store}, h.bots, slog.Default())
	t.Cleanup(racing.Wait)

	_, err = racing.SubmitGuess(h.ctx, bob, alice, aliceList)
	assert.ErrorIs(t, err, game.ErrWrongPhase)

	assert.Equal(t, knowsy.PhaseScoring, h.room(room.ID).Phase)
	assert.Equal(t, 0, h.player(bob).Score)
	guesses, err := h.store.Guesses(h.ctx, room.ID, 1, alice)
	require.NoError(t, err)
	assert.Empty(t, guesses)
}

func TestAIFunctions(t *testing.T) {
	h := newHarness(t, game.Config{})
	room, tk := h.seat(1, "Alice")
	alice := tk[0].Player.ID
	bot, err := h.ctrl.AddBot(h.ctx, alice, "")
	require.NoError(t, err)

	req := agent.SelectRequest{PlayerID: bot.ID, RoomID: room.ID, Round: 1}
	_, err = h.ctrl.AISelect(h.ctx, req)
	assert.ErrorIs(t, err, game.ErrWrongPhase)
	_, err = h.ctrl.AISelect(h.ctx, agent.SelectRequest{PlayerID: alice, RoomID: room.ID, Round: 1})
	assert.ErrorIs(t, err, game.ErrNotAI)

	_, err = h.ctrl.Start(h.ctx, alice)
	require.NoError(t, err)
	h.ctrl.Wait()

	res, err := h.ctrl.AISelect(h.ctx, req)
	require.NoError(t, err)
	assert.False(t, res.Created)
	sels, err := h.store.Selections(h.ctx, room.ID, 1)
	require.NoError(t, err)
	assert.Len(t, sels, 1)

	_, err = h.ctrl.SubmitSelection(h.ctx, alice, "food", aliceList)
	require.NoError(t, err)
	h.ctrl.Wait()
	require.Equal(t, knowsy.PhaseScoring, h.room(room.ID).Phase)

	greq := agent.GuessRequest{PlayerID: bot.ID, RoomID: room.ID, Round: 1, VIPPlayerID: alice}
	first, err := h.ctrl.AIGuess(h.ctx, greq)
	require.NoError(t, err)
	assert.False(t, first.Created)
	guesses, err := h.store.Guesses(h.ctx, room.ID, 1, alice)
	require.NoError(t, err)
	require.Len(t, guesses, 1)
	assert.Equal(t, knowsy.Credited(guesses[0].Score), h.player(bot.ID).Score)

	self, err := h.ctrl.AIGuess(h.ctx, agent.GuessRequest{PlayerID: bot.ID, RoomID: room.ID, Round: 1, VIPPlayerID: bot.ID})
	require.NoError(t, err)
	assert.True(t, self.Skipped)
}

func TestSweepEnforcesDeadlines(t *testing.T) {
	h := newHarness(t, game.Config{
		SelectionTimeout: 150 * time.Second,
		GuessTimeout:     150 * time.Second,
		DisconnectGrace:  2 * time.Minute,
	})
	room, tk := h.seat(1, "Alice", "Bob")
	alice, bob := tk[0].Player.ID, tk[1].Player.ID

	_, err := h.ctrl.Start(h.ctx, alice)
	require.NoError(t, err)
	_, err = h.ctrl.SubmitSelection(h.ctx, alice, "food", aliceList)
	require.NoError(t, err)

	require.NoError(t, h.ctrl.Sweep(h.ctx))
	assert.Equal(t, knowsy.PhaseTopicSelection, h.room(room.ID).Phase)

	h.clock.Advance(151 * time.Second)
	require.NoError(t, h.ctrl.Sweep(h.ctx))
	r := h.room(room.ID)
	require.Equal(t, knowsy.PhaseGuessing, r.Phase)
	assert.Equal(t, alice, r.CurrentVIPID)
	sel, err := h.store.Selection(h.ctx, room.ID, 1, bob)
	require.NoError(t, err)
	assert.Len(t, sel.Items, knowsy.SelectionSize)

	h.clock.Advance(100 * time.Second)
	require.NoError(t, h.ctrl.Sweep(h.ctx))
	assert.Equal(t, knowsy.PhaseGuessing, h.room(room.ID).Phase)

	h.clock.Advance(60 * time.Second)
	require.NoError(t, h.ctrl.Sweep(h.ctx))
	assert.Equal(t, knowsy.PhaseScoring, h.room(room.ID).Phase)
	assert.Equal(t, 0, h.player(bob).Score)
}

func TestSweepRemovesDisconnectedPlayers(t *testing.T) {
	h := newHarness(t, game.Config{DisconnectGrace: 2 * time.Minute})
	room, tk := h.seat(1, "Alice", "Bob", "Carol")

	require.NoError(t, h.store.SetConnected(h.ctx, tk[0].Player, false))
	require.NoError(t, h.store.SetConnected(h.ctx, tk[2].Player, false))
	h.clock.Advance(time.Minute)
	require.NoError(t, h.store.SetConnected(h.ctx, tk[2].Player, true))

	h.clock.Advance(90 * time.Second)
	require.NoError(t, h.ctrl.Sweep(h.ctx))

	players, err := h.store.Players(h.ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, players, 2)
	assert.Equal(t, tk[1].Player.ID, players[0].ID)
	assert.True(t, players[0].IsHost)
	assert.Equal(t, tk[2].Player.ID, players[1].ID)
}

func TestGuard(t *testing.T) {
	g := game.NewGuard(20 * time.Millisecond)

	require.True(t, g.Acquire("r1"))
	assert.False(t, g.Acquire("r1"))
	assert.True(t, g.Acquire("r2"))

	g.Release("r1")
	assert.False(t, g.Acquire("r1"), "released room must stay held during the cooldown")
	assert.Eventually(t, func() bool { return g.Acquire("r1") }, time.Second, 5*time.Millisecond)
	assert.False(t, g.Acquire("r1"))
}
