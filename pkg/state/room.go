package state

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/party-engine/pkg/chat"
)

// Defaults are the counters a room starts with and returns to on reset.
type Defaults struct {
	HP        int      `json:"hp"`
	Floor     int      `json:"floor"`
	Inventory []string `json:"inventory"`
}

// DefaultRoomDefaults mirrors the out-of-the-box configuration.
func DefaultRoomDefaults() Defaults {
	return Defaults{HP: 20, Floor: 1, Inventory: []string{"old map", "torch"}}
}

// Room is the unit of shared game state.
type Room struct {
	ID             string             `json:"id"`
	Code           string             `json:"code"`
	CreatorID      string             `json:"creator_id"`
	Floor          int                `json:"floor"`
	HP             int                `json:"hp"`
	HPMax          int                `json:"hp_max"`
	Inventory      []string           `json:"inventory"`
	History        []chat.ChatMessage `json:"history"`
	PendingActions []string           `json:"pending_actions,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

func NewRoom(code, creatorID string, d Defaults) *Room {
	now := time.Now().UTC()
	r := &Room{
		ID:        uuid.NewString(),
		Code:      code,
		CreatorID: creatorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.Reset(d)
	return r
}

// Reset returns every counter, the inventory and the history to defaults.
// Pending actions are cleared by the store on commit.
func (r *Room) Reset(d Defaults) {
	r.ResetCounters(d)
	r.HPMax = d.HP
	r.Inventory = slices.Clone(d.Inventory)
	if r.Inventory == nil {
		r.Inventory = []string{}
	}
	r.History = []chat.ChatMessage{}
	r.PendingActions = nil
}

// ResetCounters restores hp and floor. hp_max stays at whatever the
// client last reported.
func (r *Room) ResetCounters(d Defaults) {
	r.HP = d.HP
	r.Floor = d.Floor
}

// ApplyStats overwrites the counters the client reported. Nil fields are
// left unchanged; a non-nil empty inventory empties it.
func (r *Room) ApplyStats(s Stats) {
	if s.HP != nil {
		r.HP = *s.HP
	}
	if s.HPMax != nil {
		r.HPMax = *s.HPMax
	}
	if s.Floor != nil {
		r.Floor = *s.Floor
	}
	if s.Inventory != nil {
		r.Inventory = slices.Clone(s.Inventory)
	}
}

func (r *Room) IsCreator(userID string) bool {
	return r.CreatorID == userID
}

// Clone returns a deep copy.
func (r *Room) Clone() *Room {
	c := *r
	c.Inventory = slices.Clone(r.Inventory)
	c.History = slices.Clone(r.History)
	c.PendingActions = slices.Clone(r.PendingActions)
	return &c
}

// Normalize replaces nil slices so JSON renders empty lists.
func (r *Room) Normalize() {
	if r.Inventory == nil {
		r.Inventory = []string{}
	}
	if r.History == nil {
		r.History = []chat.ChatMessage{}
	}
	if r.PendingActions == nil {
		r.PendingActions = []string{}
	}
}

func (r *Room) Summary() RoomSummary {
	return RoomSummary{ID: r.ID, Code: r.Code, Floor: r.Floor, HP: r.HP}
}

// Snapshot is the observable state returned by a poll.
func (r *Room) Snapshot(userID string) Snapshot {
	c := r.Clone()
	c.Normalize()
	return Snapshot{
		RoomID:         c.ID,
		Code:           c.Code,
		IsCreator:      c.IsCreator(userID),
		HP:             c.HP,
		HPMax:          c.HPMax,
		Floor:          c.Floor,
		Inventory:      c.Inventory,
		History:        c.History,
		PendingActions: c.PendingActions,
	}
}

// Stats are the counters a leader may report when resolving a turn.
type Stats struct {
	HP        *int     `json:"hp,omitempty"`
	HPMax     *int     `json:"hp_max,omitempty"`
	Floor     *int     `json:"floor,omitempty"`
	Inventory []string `json:"inventory"`
}

type Snapshot struct {
	RoomID         string             `json:"room_id"`
	Code           string             `json:"code"`
	IsCreator      bool               `json:"is_creator"`
	HP             int                `json:"hp"`
	HPMax          int                `json:"hp_max"`
	Floor          int                `json:"floor"`
	Inventory      []string           `json:"inventory"`
	History        []chat.ChatMessage `json:"history"`
	PendingActions []string           `json:"pending_actions"`
}

type RoomSummary struct {
	ID    string `json:"id"`
	Code  string `json:"code"`
	Floor int    `json:"floor"`
	HP    int    `json:"hp"`
}
