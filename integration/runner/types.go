package runner

import (
	"time"

	"github.com/jwebster45206/party-engine/pkg/state"
)

// Step actions. Each maps to one API call made as the step's player.
const (
	ActionCreate  = "create"
	ActionJoin    = "join"
	ActionRejoin  = "rejoin"
	ActionQueue   = "queue"
	ActionResolve = "resolve"
	ActionStart   = "start"
	ActionReset   = "reset"
	ActionPoll    = "poll"
	ActionLeave   = "leave"
	ActionDelete  = "delete"
)

// TestSuite is one scripted party session. Every player is registered
// before the first step runs.
type TestSuite struct {
	Name    string     `json:"name"`
	Players []string   `json:"players"`
	Steps   []TestStep `json:"steps"`
}

// TestStep is a single API call and its expected outcome.
type TestStep struct {
	Name          string       `json:"name,omitempty"`
	Player        string       `json:"player"`
	Action        string       `json:"action"`
	Message       string       `json:"message,omitempty"`        // queue
	SystemContext string       `json:"system_context,omitempty"` // resolve
	Stats         *state.Stats `json:"stats,omitempty"`          // resolve
	Expectations  Expectations `json:"expect"`
}

// Expectations are checked after a step. Room fields are read with a poll
// made as the same player, skipped when the step was expected to fail or
// took the player out of the room.
type Expectations struct {
	Status *int `json:"status,omitempty"` // defaults to 200

	HP         *int     `json:"hp,omitempty"`
	Floor      *int     `json:"floor,omitempty"`
	Inventory  []string `json:"inventory,omitempty"` // order independent
	HistoryLen *int     `json:"history_len,omitempty"`
	Pending    []string `json:"pending,omitempty"` // actions without the player prefix
	PendingLen *int     `json:"pending_len,omitempty"`
	IsCreator  *bool    `json:"is_creator,omitempty"`

	ResponseContains    []string `json:"response_contains,omitempty"`
	ResponseNotContains []string `json:"response_not_contains,omitempty"`
	ResponseRegex       string   `json:"response_regex,omitempty"`
}

// TestResult contains the outcome of running a test step
type TestResult struct {
	TestName     string
	StepName     string
	Success      bool
	Error        error
	Duration     time.Duration
	ResponseText string
}

// TestJob represents a test suite loaded from a case file
type TestJob struct {
	Name     string
	Suite    TestSuite
	CaseFile string
}

// TestRunResult contains the results of running an entire test suite
type TestRunResult struct {
	Job      TestJob
	Results  []TestResult
	Error    error
	Duration time.Duration
	RoomCode string
}
