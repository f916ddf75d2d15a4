package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/jwebster45206/party-engine/pkg/state"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type SessionResponse struct {
	User  state.Profile `json:"user"`
	Token string        `json:"token"`
}

type LobbyRequest struct {
	Action string `json:"action"`
	Code   string `json:"code,omitempty"`
	RoomID string `json:"room_id,omitempty"`
}

type QueueActionResponse struct {
	Status  string `json:"status"`
	Pending int    `json:"pending"`
}

type ResolveTurnRequest struct {
	SystemContext string       `json:"system_context"`
	Stats         *state.Stats `json:"stats,omitempty"`
}

type NarrationResponse struct {
	Content string `json:"content"`
}

// apiError is a non-2xx answer from the API.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API returned status %d", e.Status)
	}
	return e.Message
}

// apiClient talks to the party engine with a Bearer session token.
type apiClient struct {
	http    *http.Client
	baseURL string
	token   string
}

func newAPIClient(baseURL string, client *http.Client) *apiClient {
	return &apiClient{http: client, baseURL: baseURL}
}

func (c *apiClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errorResp ErrorResponse
		if err := json.Unmarshal(data, &errorResp); err != nil {
			return &apiError{Status: resp.StatusCode, Message: string(bytes.TrimSpace(data))}
		}
		return &apiError{Status: resp.StatusCode, Message: errorResp.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *apiClient) testConnection(ctx context.Context) bool {
	return c.do(ctx, http.MethodGet, "/health", nil, nil) == nil
}

func (c *apiClient) register(ctx context.Context, username, password string) (*SessionResponse, error) {
	return c.session(ctx, "/register", username, password)
}

func (c *apiClient) login(ctx context.Context, username, password string) (*SessionResponse, error) {
	return c.session(ctx, "/login", username, password)
}

func (c *apiClient) session(ctx context.Context, path, username, password string) (*SessionResponse, error) {
	var resp SessionResponse
	if err := c.do(ctx, http.MethodPost, path, CredentialsRequest{Username: username, Password: password}, &resp); err != nil {
		return nil, err
	}
	c.token = resp.Token
	return &resp, nil
}

func (c *apiClient) rooms(ctx context.Context) ([]state.RoomSummary, error) {
	var rooms []state.RoomSummary
	if err := c.do(ctx, http.MethodGet, "/rooms", nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (c *apiClient) lobby(ctx context.Context, req LobbyRequest) (state.RoomSummary, error) {
	var room state.RoomSummary
	err := c.do(ctx, http.MethodPost, "/lobby", req, &room)
	return room, err
}

func (c *apiClient) leaveRoom(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/leave_room", struct{}{}, nil)
}

// deleteRoom deletes the caller's current room.
func (c *apiClient) deleteRoom(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/delete_room", struct{}{}, nil)
}

func (c *apiClient) queueAction(ctx context.Context, message string) (int, error) {
	var resp QueueActionResponse
	if err := c.do(ctx, http.MethodPost, "/queue_action", map[string]string{"message": message}, &resp); err != nil {
		return 0, err
	}
	return resp.Pending, nil
}

func (c *apiClient) resolveTurn(ctx context.Context, req ResolveTurnRequest) (string, error) {
	var resp NarrationResponse
	err := c.do(ctx, http.MethodPost, "/resolve_turn", req, &resp)
	return resp.Content, err
}

func (c *apiClient) startCampaign(ctx context.Context) (string, error) {
	var resp NarrationResponse
	err := c.do(ctx, http.MethodPost, "/start_campaign", struct{}{}, &resp)
	return resp.Content, err
}

func (c *apiClient) poll(ctx context.Context) (*state.Snapshot, error) {
	var snap state.Snapshot
	if err := c.do(ctx, http.MethodGet, "/poll", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *apiClient) reset(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/reset", struct{}{}, nil)
}
