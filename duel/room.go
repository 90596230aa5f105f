package duel

import (
	"sort"
	"time"

	"duelserver/models"
)

// Room は1試合分の状態です。フィールドはエンジンのロックの下でだけ触ります。
type Room struct {
	ID            string
	Code          string
	Type          models.RoomType
	Mode          models.Mode
	Status        models.Status
	Players       []*Player
	CurrentRound  int
	MaxRounds     int
	Deck          []int
	Round         *Round
	Progressed    bool // 1ラウンド以上始まった
	HadTwoPlayers bool
	Ready         map[string]bool // playerID
	RematchVotes  map[string]bool // playerID
	Result        *Result
	Closed        bool // 再戦で置き換えられた
	PrevRoomID    string
	CreatedAt     time.Time
	FinishedAt    time.Time

	pendingForfeit *pendingForfeit
	tasks          map[taskSlot]*task
	taskGen        uint64
}

// Player はルーム内のプレイヤーです。ID は再接続しても変わりません。
type Player struct {
	Conn         ConnID
	ID           string
	Name         string
	Points       int
	Disconnected bool
}

// Round は進行中のラウンドです。StartedAt はカウントダウン中は未来の時刻になります。
type Round struct {
	ID        string
	ImageURL  string
	Correct   models.CorrectAnswer
	StartedAt time.Time
	Duration  time.Duration
	Answers   map[string]Submission // playerID -> 提出内容。1人1回
}

// Submission は受理された回答です。
type Submission struct {
	Answer
	SubmittedAt time.Time
}

// Result は試合の決着です。引き分けなら WinnerID と LoserID は空です。
type Result struct {
	WinnerID   string             `json:"winnerId"`
	LoserID    string             `json:"loserId"`
	Reason     string             `json:"reason"`
	Note       string             `json:"note,omitempty"`
	FinishedAt int64              `json:"finishedAt"`
	Scoreboard []models.ScoreLine `json:"scoreboard,omitempty"`
}

type pendingForfeit struct {
	playerID string
	deadline time.Time
	reason   string
}

type taskSlot int

const (
	slotRoundTimeout taskSlot = iota
	slotAdvance
	slotForfeit
	slotCleanup
)

type task struct {
	gen   uint64
	timer Timer
}

func (r *Room) Phase() models.Phase {
	return r.Status.Phase()
}

func (r *Room) finished() bool {
	return r.Status.Terminal() || r.Closed
}

func (r *Room) playerByConn(conn ConnID) *Player {
	for _, p := range r.Players {
		if p.Conn == conn {
			return p
		}
	}
	return nil
}

func (r *Room) playerByID(id string) *Player {
	for _, p := range r.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (r *Room) others(id string) []*Player {
	out := make([]*Player, 0, len(r.Players))
	for _, p := range r.Players {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}

func (r *Room) removePlayer(id string) {
	kept := r.Players[:0]
	for _, p := range r.Players {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	r.Players = kept
	delete(r.Ready, id)
	delete(r.RematchVotes, id)
}

func (r *Room) allReady() bool {
	if len(r.Players) == 0 {
		return false
	}
	for _, p := range r.Players {
		if !r.Ready[p.ID] {
			return false
		}
	}
	return true
}

func (r *Room) allSubmitted() bool {
	if r.Round == nil {
		return false
	}
	for _, p := range r.Players {
		if _, ok := r.Round.Answers[p.ID]; !ok {
			return false
		}
	}
	return true
}

// scoreboard は得点の高い順に並べます。同点は参加順。
func (r *Room) scoreboard() []models.ScoreLine {
	sorted := make([]*Player, len(r.Players))
	copy(sorted, r.Players)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Points > sorted[j].Points })
	out := make([]models.ScoreLine, 0, len(sorted))
	for _, p := range sorted {
		out = append(out, models.ScoreLine{PlayerID: p.ID, Name: p.Name, Points: p.Points})
	}
	return out
}

func (r *Room) roster() []RosterEntry {
	out := make([]RosterEntry, 0, len(r.Players))
	for _, p := range r.Players {
		out = append(out, RosterEntry{ID: p.ID, Name: p.Name})
	}
	return out
}

// Snapshot はクライアントへ送るルーム状態です。
type Snapshot struct {
	RoomID       string           `json:"roomId"`
	Status       models.Status    `json:"status"`
	Phase        models.Phase     `json:"phase"`
	Mode         models.Mode      `json:"mode"`
	Type         models.RoomType  `json:"type"`
	TeamOptions  []string         `json:"teamOptions"`
	CurrentRound int              `json:"currentRound"`
	MaxRounds    int              `json:"maxRounds"`
	Progressed   bool             `json:"progressed"`
	Result       *Result          `json:"result"`
	Closed       bool             `json:"closed"`
	Players      []PlayerSnapshot `json:"players"`
	Round        *RoundSummary    `json:"round"`
}

type PlayerSnapshot struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Points       int    `json:"points"`
	HasSubmitted bool   `json:"hasSubmitted"`
	WantsRematch bool   `json:"wantsRematch"`
	Disconnected bool   `json:"disconnected"`
}

type RoundSummary struct {
	RoundID    string `json:"roundId"`
	ImageURL   string `json:"imageUrl"`
	StartedAt  int64  `json:"startedAt"`
	DurationMs int64  `json:"durationMs"`
}

func (r *Room) snapshot(teamOptions []string) Snapshot {
	s := Snapshot{
		RoomID:       r.ID,
		Status:       r.Status,
		Phase:        r.Phase(),
		Mode:         r.Mode,
		Type:         r.Type,
		TeamOptions:  teamOptions,
		CurrentRound: r.CurrentRound,
		MaxRounds:    r.MaxRounds,
		Progressed:   r.Progressed,
		Result:       r.Result,
		Closed:       r.Closed,
		Players:      make([]PlayerSnapshot, 0, len(r.Players)),
	}
	for _, p := range r.Players {
		ps := PlayerSnapshot{
			ID:           p.ID,
			Name:         p.Name,
			Points:       p.Points,
			WantsRematch: r.RematchVotes[p.ID],
			Disconnected: p.Disconnected,
		}
		if r.Round != nil {
			_, ps.HasSubmitted = r.Round.Answers[p.ID]
		}
		s.Players = append(s.Players, ps)
	}
	if r.Round != nil {
		rs := r.Round.summary()
		s.Round = &rs
	}
	return s
}

func (rd *Round) summary() RoundSummary {
	return RoundSummary{
		RoundID:    rd.ID,
		ImageURL:   rd.ImageURL,
		StartedAt:  rd.StartedAt.UnixMilli(),
		DurationMs: rd.Duration.Milliseconds(),
	}
}

func (r *Room) outcome() models.MatchOutcome {
	o := models.MatchOutcome{
		RoomID:     r.ID,
		RoomType:   r.Type,
		Mode:       r.Mode,
		Status:     r.Status,
		Rounds:     r.CurrentRound,
		FinishedAt: r.FinishedAt,
		Scoreboard: r.scoreboard(),
	}
	if r.Result != nil {
		o.Reason = r.Result.Reason
		o.WinnerID = r.Result.WinnerID
		o.LoserID = r.Result.LoserID
		if len(r.Result.Scoreboard) > 0 {
			o.Scoreboard = r.Result.Scoreboard
		}
	}
	return o
}
