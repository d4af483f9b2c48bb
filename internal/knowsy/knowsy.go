// Package knowsy defines the core domain types of a Knowsy game room and the
// pure rules that operate on them. It has no external dependencies.
package knowsy

import "time"

// SelectionSize is the number of items a VIP ranks each turn.
const SelectionSize = 5

type Phase string

const (
	PhaseWaiting        Phase = "waiting"
	PhaseTopicSelection Phase = "topic_selection"
	PhaseGuessing       Phase = "guessing"
	PhaseScoring        Phase = "scoring"
	PhaseFinished       Phase = "finished"
)

func (p Phase) Valid() bool {
	switch p {
	case PhaseWaiting, PhaseTopicSelection, PhaseGuessing, PhaseScoring, PhaseFinished:
		return true
	}
	return false
}

// Room is the authoritative shared record of one playthrough. Revision
// increments on every transition write and guards concurrent writers.
type Room struct {
	ID             string
	Code           string
	OrgID          string
	Phase          Phase
	CurrentRound   int
	CurrentVIPID   string
	TotalRounds    int
	VIPsCompleted  int
	Revision       int64
	PhaseStartedAt time.Time
	CreatedAt      time.Time
}

// HasVIP reports whether a VIP is currently assigned.
func (r Room) HasVIP() bool { return r.CurrentVIPID != "" }

type Player struct {
	ID         string
	RoomID     string
	UserID     string
	Name       string
	Score      int
	IsHost     bool
	IsAI       bool
	JoinedAt   time.Time
	LeftAt     *time.Time
	LastSeenAt time.Time
}

// Selection is one VIP's ranked list for a round. Immutable once stored.
type Selection struct {
	ID        string
	RoomID    string
	Round     int
	PlayerID  string
	TopicID   string
	Items     []ItemRef
	CreatedAt time.Time
}

// Guess is one player's attempt at ranking a VIP's selection.
type Guess struct {
	ID          string
	RoomID      string
	Round       int
	PlayerID    string
	VIPPlayerID string
	Order       []ItemRef
	Score       int
	CreatedAt   time.Time
}

type Topic struct {
	ID    string
	OrgID string
	Name  string
	Items []TopicItem
}

// TopicItem is a catalog entry a VIP can pick: the reference stored in a
// selection plus its display form.
type TopicItem struct {
	Ref  ItemRef
	Item Item
}

// Refs returns the references of every item in the topic.
func (t Topic) Refs() []ItemRef {
	out := make([]ItemRef, len(t.Items))
	for i, it := range t.Items {
		out[i] = it.Ref
	}
	return out
}

// Standing is a player's place on the scoreboard.
type Standing struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Rank     int    `json:"rank"`
	IsHost   bool   `json:"isHost"`
	IsAI     bool   `json:"isAi"`
}

// GameRecord summarizes a finished game.
type GameRecord struct {
	ID          string
	RoomID      string
	WinnerID    string
	WinnerName  string
	WinnerScore int
	TotalRounds int
	Standings   []Standing
	FinishedAt  time.Time
}
