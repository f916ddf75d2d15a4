package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jwebster45206/party-engine/integration/runner"
	"github.com/jwebster45206/party-engine/internal/auth"
	"github.com/jwebster45206/party-engine/internal/game"
	"github.com/jwebster45206/party-engine/internal/handlers"
	"github.com/jwebster45206/party-engine/internal/narrator"
	"github.com/jwebster45206/party-engine/internal/services"
	"github.com/jwebster45206/party-engine/internal/storage"
	"github.com/jwebster45206/party-engine/pkg/lore"
	"github.com/jwebster45206/party-engine/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var caseFlag = flag.String("case", "", "Name of test case to run (from integration/cases/)")
var errFlag = flag.String("err", "continue", "Error handling mode: 'continue' (run all steps) or 'exit' (stop on first failure)")

const narration = "The door creaks open."

func TestMain(m *testing.M) {
	if apiBaseURL := os.Getenv("API_BASE_URL"); apiBaseURL != "" {
		fmt.Printf("Running Party Engine Integration Tests\n")
		fmt.Printf("   API Base URL: %s\n", apiBaseURL)
	}
	os.Exit(m.Run())
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// startServer runs the full stack in process: Redis storage on miniredis,
// the real narrator over a mock backend, and the HTTP router.
func startServer(t *testing.T, backend *services.MockBackend) string {
	t.Helper()
	logger := testLogger()

	mr := miniredis.RunT(t)
	store, err := storage.NewRedisStorage("redis://"+mr.Addr(), 30*time.Second, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	model := narrator.SelectModel(context.Background(), backend, narrator.OllamaPolicy(), logger)
	generator := narrator.NewGenerator(backend, model, lore.Load("../data/lore.yaml", logger), narrator.DefaultOptions(), logger)
	engine := game.NewEngine(store, generator, game.DefaultOptions(), logger)

	svc, err := auth.NewService(store, auth.Config{
		Secret:   []byte("integration-secret"),
		TTL:      time.Hour,
		HashCost: bcrypt.MinCost,
	}, logger)
	require.NoError(t, err)

	srv := httptest.NewServer(handlers.NewRouter(handlers.RouterConfig{
		Auth:    svc,
		Engine:  engine,
		Storage: store,
		Backend: backend.Name(),
		Model:   model,
		Logger:  logger,
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

// apiBaseURL targets API_BASE_URL when set, otherwise an in-process server.
func apiBaseURL(t *testing.T) string {
	if url := os.Getenv("API_BASE_URL"); url != "" {
		return url
	}
	return startServer(t, services.NewMockBackend(narration))
}

func newRunner(t *testing.T) *runner.Runner {
	r := runner.NewRunner(apiBaseURL(t))
	r.Timeout = time.Duration(getIntEnv("TEST_TIMEOUT_SECONDS", 30)) * time.Second
	r.ErrorHandlingMode = runner.ErrorHandlingMode(*errFlag)
	r.Logger = t.Logf
	return r
}

func TestIntegrationSuites(t *testing.T) {
	testRunner := newRunner(t)

	testFiles, err := discoverTestFiles("cases")
	require.NoError(t, err)
	require.NotEmpty(t, testFiles, "No test files found in cases directory")

	for _, file := range testFiles {
		suite, err := runner.LoadTestSuite(file)
		require.NoError(t, err)

		t.Run(suite.Name, func(t *testing.T) {
			result, err := testRunner.RunSuite(context.Background(), suite)
			for _, step := range result.Results {
				if step.Error != nil {
					t.Errorf("step %q: %v", step.StepName, step.Error)
				}
			}
			if err != nil && len(result.Results) == 0 {
				t.Fatalf("suite failed before any step: %v", err)
			}
		})
	}
}

func TestSingleSuite(t *testing.T) {
	if *caseFlag == "" {
		t.Skip("No -case given")
	}
	name := *caseFlag
	if !strings.HasSuffix(name, ".json") {
		name += ".json"
	}
	suite, err := runner.LoadTestSuite(filepath.Join("cases", name))
	require.NoError(t, err)

	result, err := newRunner(t).RunSuite(context.Background(), suite)
	for _, step := range result.Results {
		t.Logf("%s: success=%t duration=%v", step.StepName, step.Success, step.Duration)
	}
	require.NoError(t, err)
}

// player is a minimal API client for tests that need precise timing.
type player struct {
	t     *testing.T
	base  string
	token string
	name  string
}

func signUp(t *testing.T, base, name string) *player {
	t.Helper()
	p := &player{t: t, base: base, name: name}
	var resp struct {
		Token string `json:"token"`
	}
	status := p.do(http.MethodPost, "/register", map[string]string{"username": name, "password": runner.TestPassword}, &resp)
	require.Equal(t, http.StatusCreated, status)
	p.token = resp.Token
	return p
}

func (p *player) do(method, path string, in, out any) int {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		require.NoError(p.t, err)
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, p.base+path, body)
	require.NoError(p.t, err)
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(p.t, err)
	defer func() { _ = resp.Body.Close() }()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(p.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// Actions queued while the game master is still narrating must survive
// the commit of the turn being resolved.
func TestActionsQueuedDuringResolveSurvive(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	backend := services.NewMockBackend(narration)
	backend.CompleteFunc = func(ctx context.Context, model string, req services.CompletionRequest) (string, error) {
		once.Do(func() { close(started) })
		<-release
		return narration, nil
	}
	base := startServer(t, backend)

	lead := signUp(t, base, "lead")
	late := signUp(t, base, "late")

	var room state.RoomSummary
	require.Equal(t, http.StatusOK, lead.do(http.MethodPost, "/lobby", map[string]string{"action": "create"}, &room))
	require.Equal(t, http.StatusOK, late.do(http.MethodPost, "/lobby", map[string]string{"action": "join", "code": room.Code}, nil))
	require.Equal(t, http.StatusOK, late.do(http.MethodPost, "/queue_action", map[string]string{"message": "search the altar"}, nil))

	resolved := make(chan int, 1)
	go func() {
		var resp struct {
			Content string `json:"content"`
		}
		status := lead.do(http.MethodPost, "/resolve_turn", map[string]string{"system_context": ""}, &resp)
		assert.Equal(t, narration, resp.Content)
		resolved <- status
	}()

	select {
	case <-started:
	case <-time.After(10 * time.Second):
		t.Fatal("resolve never reached the backend")
	}

	require.Equal(t, http.StatusOK, late.do(http.MethodPost, "/queue_action", map[string]string{"message": "run for the exit"}, nil))
	close(release)

	select {
	case status := <-resolved:
		require.Equal(t, http.StatusOK, status)
	case <-time.After(10 * time.Second):
		t.Fatal("resolve never returned")
	}

	var snap state.Snapshot
	require.Equal(t, http.StatusOK, late.do(http.MethodGet, "/poll", nil, &snap))
	assert.Equal(t, []string{"late: run for the exit"}, snap.PendingActions)
	require.Len(t, snap.History, 2)
	assert.Equal(t, "TURN GROUP:\nlate: search the altar", snap.History[0].Content)
	assert.Equal(t, narration, snap.History[1].Content)
}

func discoverTestFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func getIntEnv(name string, defaultValue int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}
