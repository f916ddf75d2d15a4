package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/jwebster45206/party-engine/pkg/state"
)

type ConsoleConfig struct {
	APIBaseURL string        `env:"API_BASE_URL" envDefault:"http://localhost:8080"`
	Timeout    time.Duration `env:"CONSOLE_TIMEOUT" envDefault:"120s"`
}

func main() {
	_ = godotenv.Load()

	cfg := &ConsoleConfig{}
	if err := env.Parse(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	api := newAPIClient(cfg.APIBaseURL, &http.Client{Timeout: cfg.Timeout})

	ctx := context.Background()
	if !api.testConnection(ctx) {
		fmt.Fprintf(os.Stderr, "Could not connect to API. Please ensure the API is running.\nTry: docker-compose up -d\n")
		os.Exit(1)
	}

	in := bufio.NewReader(os.Stdin)
	profile, err := signIn(ctx, in, api)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Sign in failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nWelcome, %s.\n", profile.Username)

	for {
		room, err := chooseRoom(ctx, in, api, profile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Lobby failed: %v\n", err)
			os.Exit(1)
		}

		p := tea.NewProgram(NewConsoleUI(cfg, api, profile, room),
			tea.WithAltScreen(),
			tea.WithMouseCellMotion())
		final, err := p.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
			os.Exit(1)
		}
		ui, ok := final.(ConsoleUI)
		if !ok || !ui.backToLobby {
			return
		}
		if ui.notice != "" {
			fmt.Println(ui.notice)
		}
		profile.RoomID = ""
	}
}

// signIn asks for credentials until login or registration succeeds.
func signIn(ctx context.Context, in *bufio.Reader, api *apiClient) (state.Profile, error) {
	for {
		choice, err := prompt(in, "(l)ogin or (r)egister? ")
		if err != nil {
			return state.Profile{}, err
		}
		register := strings.HasPrefix(strings.ToLower(choice), "r")
		if !register && !strings.HasPrefix(strings.ToLower(choice), "l") {
			continue
		}

		username, err := prompt(in, "Username: ")
		if err != nil {
			return state.Profile{}, err
		}
		password, err := prompt(in, "Password: ")
		if err != nil {
			return state.Profile{}, err
		}

		var session *SessionResponse
		if register {
			session, err = api.register(ctx, username, password)
		} else {
			session, err = api.login(ctx, username, password)
		}
		if err == nil {
			return session.User, nil
		}
		fmt.Fprintf(os.Stderr, "%v\n\n", err)
	}
}

// chooseRoom runs the lobby: resume the current room, rejoin one the user
// leads, create a new one or join with a code.
func chooseRoom(ctx context.Context, in *bufio.Reader, api *apiClient, profile state.Profile) (state.RoomSummary, error) {
	for {
		rooms, err := api.rooms(ctx)
		if err != nil {
			return state.RoomSummary{}, err
		}

		fmt.Println("\nLobby:")
		if profile.RoomID != "" {
			fmt.Println("  0 - Resume your current room")
		}
		for i, r := range rooms {
			fmt.Printf("  %d - Rejoin %s (floor %d, HP %d)\n", i+1, r.Code, r.Floor, r.HP)
		}
		fmt.Println("  c - Create a new room")
		fmt.Println("  j - Join a room with a code")

		choice, err := prompt(in, "\nSelect an option: ")
		if err != nil {
			return state.RoomSummary{}, err
		}

		var (
			room state.RoomSummary
			req  LobbyRequest
		)
		switch strings.ToLower(choice) {
		case "c":
			req = LobbyRequest{Action: "create"}
		case "j":
			code, err := prompt(in, "Room code: ")
			if err != nil {
				return state.RoomSummary{}, err
			}
			req = LobbyRequest{Action: "join", Code: code}
		default:
			n, convErr := strconv.Atoi(choice)
			switch {
			case convErr == nil && n == 0 && profile.RoomID != "":
				snap, err := api.poll(ctx)
				if err != nil {
					fmt.Fprintf(os.Stderr, "%v\n", err)
					continue
				}
				return state.RoomSummary{ID: snap.RoomID, Code: snap.Code, Floor: snap.Floor, HP: snap.HP}, nil
			case convErr == nil && n >= 1 && n <= len(rooms):
				req = LobbyRequest{Action: "rejoin", RoomID: rooms[n-1].ID}
			default:
				fmt.Fprintln(os.Stderr, "Invalid selection")
				continue
			}
		}

		room, err = api.lobby(ctx, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			continue
		}
		return room, nil
	}
}

func prompt(in *bufio.Reader, label string) (string, error) {
	fmt.Print(label)
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
