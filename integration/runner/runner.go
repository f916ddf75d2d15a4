package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/party-engine/pkg/state"
)

type ErrorHandlingMode string

const ErrorHandlingExit ErrorHandlingMode = "exit"
const ErrorHandlingContinue ErrorHandlingMode = "continue"

// TestPassword is used for every scripted player.
const TestPassword = "integration-pass"

// Runner executes scripted party sessions against a running party-engine API
type Runner struct {
	BaseURL           string
	Client            *http.Client
	Timeout           time.Duration
	Logger            func(format string, args ...interface{})
	ErrorHandlingMode ErrorHandlingMode
}

// NewRunner creates a new test runner
func NewRunner(baseURL string) *Runner {
	return &Runner{
		BaseURL:           strings.TrimSuffix(baseURL, "/"),
		Client:            &http.Client{Timeout: 60 * time.Second},
		Timeout:           30 * time.Second,
		Logger:            func(string, ...interface{}) {},
		ErrorHandlingMode: ErrorHandlingContinue,
	}
}

// LoadTestSuite loads a test suite from a JSON file
func LoadTestSuite(filename string) (TestSuite, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return TestSuite{}, fmt.Errorf("failed to read test file %s: %w", filename, err)
	}

	var suite TestSuite
	if err := json.Unmarshal(content, &suite); err != nil {
		return TestSuite{}, fmt.Errorf("failed to parse JSON in %s: %w", filename, err)
	}
	if len(suite.Players) == 0 {
		return TestSuite{}, fmt.Errorf("test file %s lists no players", filename)
	}
	for i, step := range suite.Steps {
		if !slices.Contains(suite.Players, step.Player) {
			return TestSuite{}, fmt.Errorf("step %d in %s uses unknown player %q", i, filename, step.Player)
		}
	}
	return suite, nil
}

// session is one run of a suite: a token per player and the room the
// suite created.
type session struct {
	suffix string
	tokens map[string]string
	roomID string
	code   string
}

// username makes player names unique per run so suites can share a server.
func (s *session) username(player string) string {
	return player + "_" + s.suffix
}

// RunSuite registers the suite's players and executes its steps in order.
func (r *Runner) RunSuite(ctx context.Context, suite TestSuite) (TestRunResult, error) {
	start := time.Now()
	result := TestRunResult{
		Job: TestJob{
			Name:  suite.Name,
			Suite: suite,
		},
		Results: make([]TestResult, 0, len(suite.Steps)),
	}

	sess := &session{
		suffix: uuid.NewString()[:8],
		tokens: make(map[string]string, len(suite.Players)),
	}
	for _, player := range suite.Players {
		token, err := r.register(ctx, sess.username(player))
		if err != nil {
			result.Error = fmt.Errorf("failed to register %s: %w", player, err)
			result.Duration = time.Since(start)
			return result, result.Error
		}
		sess.tokens[player] = token
	}

	for i, step := range suite.Steps {
		r.Logger("    [%d/%d] Running step: %s", i+1, len(suite.Steps), step.Name)
		stepResult := r.executeStep(ctx, sess, step)
		stepResult.TestName = suite.Name
		result.Results = append(result.Results, stepResult)

		if stepResult.Error != nil {
			r.Logger("    [%d/%d] ✗ %s: %v", i+1, len(suite.Steps), step.Name, stepResult.Error)
			if result.Error == nil {
				result.Error = fmt.Errorf("step %d (%s) failed: %w", i, step.Name, stepResult.Error)
			}
			if r.ErrorHandlingMode == ErrorHandlingExit {
				break
			}
			continue
		}

		r.Logger("    [%d/%d] ✓ %s (%v)", i+1, len(suite.Steps), step.Name, stepResult.Duration)
	}

	result.RoomCode = sess.code
	result.Duration = time.Since(start)
	return result, result.Error
}

// executeStep performs one API call and checks its expectations
func (r *Runner) executeStep(ctx context.Context, sess *session, step TestStep) TestResult {
	start := time.Now()
	result := TestResult{StepName: step.Name}

	stepCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	token := sess.tokens[step.Player]
	var (
		status int
		body   []byte
		err    error
	)
	switch step.Action {
	case ActionCreate:
		status, body, err = r.call(stepCtx, http.MethodPost, "/lobby", token, map[string]string{"action": "create"})
	case ActionJoin:
		status, body, err = r.call(stepCtx, http.MethodPost, "/lobby", token, map[string]string{"action": "join", "code": sess.code})
	case ActionRejoin:
		status, body, err = r.call(stepCtx, http.MethodPost, "/lobby", token, map[string]string{"action": "rejoin", "room_id": sess.roomID})
	case ActionQueue:
		status, body, err = r.call(stepCtx, http.MethodPost, "/queue_action", token, map[string]string{"message": step.Message})
	case ActionResolve:
		req := map[string]any{"system_context": step.SystemContext}
		if step.Stats != nil {
			req["stats"] = step.Stats
		}
		status, body, err = r.call(stepCtx, http.MethodPost, "/resolve_turn", token, req)
	case ActionStart:
		status, body, err = r.call(stepCtx, http.MethodPost, "/start_campaign", token, struct{}{})
	case ActionReset:
		status, body, err = r.call(stepCtx, http.MethodPost, "/reset", token, struct{}{})
	case ActionPoll:
		status, body, err = r.call(stepCtx, http.MethodGet, "/poll", token, nil)
	case ActionLeave:
		status, body, err = r.call(stepCtx, http.MethodPost, "/leave_room", token, struct{}{})
	case ActionDelete:
		status, body, err = r.call(stepCtx, http.MethodPost, "/delete_room", token, struct{}{})
	default:
		err = fmt.Errorf("unknown action %q", step.Action)
	}
	if err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}

	wantStatus := http.StatusOK
	if step.Expectations.Status != nil {
		wantStatus = *step.Expectations.Status
	}
	if status != wantStatus {
		result.Error = fmt.Errorf("expected status %d, got %d: %s", wantStatus, status, strings.TrimSpace(string(body)))
		result.Duration = time.Since(start)
		return result
	}

	if status == http.StatusOK && step.Action == ActionCreate {
		var room state.RoomSummary
		if err := json.Unmarshal(body, &room); err != nil {
			result.Error = fmt.Errorf("failed to decode room summary: %w", err)
			result.Duration = time.Since(start)
			return result
		}
		sess.roomID, sess.code = room.ID, room.Code
	}

	var narration struct {
		Content string `json:"content"`
	}
	if step.Action == ActionResolve || step.Action == ActionStart {
		_ = json.Unmarshal(body, &narration)
	}
	result.ResponseText = narration.Content

	if err := checkResponse(step.Expectations, result.ResponseText); err != nil {
		result.Error = fmt.Errorf("expectation failed: %w", err)
		result.Duration = time.Since(start)
		return result
	}

	leftRoom := step.Action == ActionLeave || step.Action == ActionDelete
	if status == http.StatusOK && !leftRoom && step.Expectations.wantsRoom() {
		snap, err := r.poll(stepCtx, token)
		if err != nil {
			result.Error = fmt.Errorf("failed to poll after step: %w", err)
			result.Duration = time.Since(start)
			return result
		}
		if err := checkRoom(step.Expectations, snap); err != nil {
			result.Error = fmt.Errorf("expectation failed: %w", err)
			result.Duration = time.Since(start)
			return result
		}
	}

	result.Success = true
	result.Duration = time.Since(start)
	return result
}

func (r *Runner) register(ctx context.Context, username string) (string, error) {
	status, body, err := r.call(ctx, http.MethodPost, "/register", "", map[string]string{
		"username": username,
		"password": TestPassword,
	})
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated {
		return "", fmt.Errorf("register returned %d: %s", status, strings.TrimSpace(string(body)))
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to decode session: %w", err)
	}
	return resp.Token, nil
}

func (r *Runner) poll(ctx context.Context, token string) (*state.Snapshot, error) {
	status, body, err := r.call(ctx, http.MethodGet, "/poll", token, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("poll returned %d: %s", status, strings.TrimSpace(string(body)))
	}
	var snap state.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// call sends a JSON request with the player's Bearer token and returns
// the status and raw body.
func (r *Runner) call(ctx context.Context, method, path, token string, in any) (int, []byte, error) {
	var reader io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.BaseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func (e Expectations) wantsRoom() bool {
	return e.HP != nil || e.Floor != nil || e.Inventory != nil || e.HistoryLen != nil ||
		e.Pending != nil || e.PendingLen != nil || e.IsCreator != nil
}

func checkResponse(exp Expectations, responseText string) error {
	lowerResponse := strings.ToLower(responseText)
	for _, expectedText := range exp.ResponseContains {
		if !strings.Contains(lowerResponse, strings.ToLower(expectedText)) {
			return fmt.Errorf("expected response to contain '%s', got %q", expectedText, responseText)
		}
	}
	for _, unexpectedText := range exp.ResponseNotContains {
		if strings.Contains(lowerResponse, strings.ToLower(unexpectedText)) {
			return fmt.Errorf("expected response to NOT contain '%s', but it did", unexpectedText)
		}
	}

	if exp.ResponseRegex != "" {
		matched, err := regexp.MatchString(exp.ResponseRegex, responseText)
		if err != nil {
			return fmt.Errorf("invalid regex pattern: %w", err)
		}
		if !matched {
			return fmt.Errorf("response didn't match regex pattern: %s", exp.ResponseRegex)
		}
	}
	return nil
}

// checkRoom validates the room expectations against a snapshot
func checkRoom(exp Expectations, snap *state.Snapshot) error {
	if exp.HP != nil && snap.HP != *exp.HP {
		return fmt.Errorf("expected hp %d, got %d", *exp.HP, snap.HP)
	}
	if exp.Floor != nil && snap.Floor != *exp.Floor {
		return fmt.Errorf("expected floor %d, got %d", *exp.Floor, snap.Floor)
	}
	if exp.IsCreator != nil && snap.IsCreator != *exp.IsCreator {
		return fmt.Errorf("expected is_creator %t, got %t", *exp.IsCreator, snap.IsCreator)
	}
	if exp.HistoryLen != nil && len(snap.History) != *exp.HistoryLen {
		return fmt.Errorf("expected %d history entries, got %d", *exp.HistoryLen, len(snap.History))
	}

	// Full inventory check (order independent)
	if exp.Inventory != nil {
		want := slices.Sorted(slices.Values(exp.Inventory))
		got := slices.Sorted(slices.Values(snap.Inventory))
		if !slices.Equal(want, got) {
			return fmt.Errorf("expected inventory %v, got %v", exp.Inventory, snap.Inventory)
		}
	}

	if exp.PendingLen != nil && len(snap.PendingActions) != *exp.PendingLen {
		return fmt.Errorf("expected %d pending actions, got %d", *exp.PendingLen, len(snap.PendingActions))
	}
	if exp.Pending != nil {
		got := make([]string, 0, len(snap.PendingActions))
		for _, entry := range snap.PendingActions {
			_, action, _ := strings.Cut(entry, ": ")
			got = append(got, action)
		}
		if !slices.Equal(exp.Pending, got) {
			return fmt.Errorf("expected pending actions %v, got %v", exp.Pending, got)
		}
	}
	return nil
}
