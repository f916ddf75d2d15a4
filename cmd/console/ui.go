package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/jwebster45206/party-engine/pkg/chat"
	"github.com/jwebster45206/party-engine/pkg/state"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	AgentName       = "Game Master"
	PlaceHolderText = "Describe your action, or /help..."
	pollInterval    = 2 * time.Second
)

// ConsoleUI is the BubbleTea model for a room.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config       *ConsoleConfig
	api          *apiClient
	profile      state.Profile
	room         state.RoomSummary
	snapshot     *state.Snapshot
	stats        partyStats
	chatViewport viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	ready        bool
	width        int
	height       int
	err          error
	notice       string
	loading      bool

	// Quit confirmation state
	showQuitModal bool

	// Set when the player left or deleted the room and wants the lobby.
	backToLobby bool

	// Progress bar state
	progressTick int
}

type pollTickMsg struct{}

type snapshotMsg struct {
	snapshot *state.Snapshot
	err      error
}

type queuedMsg struct {
	pending int
	err     error
}

type narrationMsg struct {
	content string
	err     error
}

type resetMsg struct {
	err error
}

type leftRoomMsg struct {
	notice string
	err    error
}

type progressTickMsg struct{}

var (
	chatPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	speakerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	narratorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)
)

var separatorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("240")) // dark grey

var itemCaser = cases.Title(language.English)

func NewConsoleUI(cfg *ConsoleConfig, api *apiClient, profile state.Profile, room state.RoomSummary) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 1000
	ta.SetWidth(50)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	chatVp := viewport.New(50, 20)
	chatVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	return ConsoleUI{
		config:       cfg,
		api:          api,
		profile:      profile,
		room:         room,
		textarea:     ta,
		chatViewport: chatVp,
		metaViewport: metaVp,
	}
}

func (m ConsoleUI) isLeader() bool {
	return m.snapshot != nil && m.snapshot.IsCreator
}

func writeMetadata(m *ConsoleUI) string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("PARTY") + "\n\n")

	content.WriteString("Player:\n")
	content.WriteString(m.profile.Username)
	if m.isLeader() {
		content.WriteString(" (leader)")
	}
	content.WriteString("\n\n")

	content.WriteString("Room code:\n")
	content.WriteString(m.room.Code + "\n\n")

	if m.snapshot == nil {
		content.WriteString(loadingStyle.Render("Waiting for the room...") + "\n")
		return content.String()
	}

	s := m.stats
	content.WriteString(fmt.Sprintf("HP: %d/%d\n", s.HP, s.HPMax))
	content.WriteString(fmt.Sprintf("Floor: %d\n", s.Floor))
	if s.dirty {
		content.WriteString(loadingStyle.Render("(sent on /resolve)") + "\n")
	}
	content.WriteString("\nInventory:\n")
	if len(s.Inventory) == 0 {
		content.WriteString("Empty\n")
	}
	for _, item := range s.Inventory {
		content.WriteString("• " + itemCaser.String(item) + "\n")
	}

	content.WriteString("\nPending actions:\n")
	if len(m.snapshot.PendingActions) == 0 {
		content.WriteString("None\n")
	}
	for _, a := range m.snapshot.PendingActions {
		content.WriteString("• " + wordwrap.String(a, max(m.metaViewport.Width-2, 10)) + "\n")
	}

	content.WriteString("\n")
	content.WriteString("Commands:\n")
	content.WriteString("• Enter: Act\n")
	if m.isLeader() {
		content.WriteString("• /resolve: Resolve turn\n")
		content.WriteString("• /start: New campaign\n")
	}
	content.WriteString("• /help: Help\n")
	content.WriteString("• Ctrl+C: Quit\n")

	return content.String()
}

// writeChatContent rebuilds the chat from the room history for the current
// viewport width.
func (m *ConsoleUI) writeChatContent() {
	chatWidth := m.chatViewport.Width - 6 // Account for left(3) + right(3) padding

	var content strings.Builder
	content.WriteString(titleStyle.Render("PARTY ENGINE") + "\n\n")
	content.WriteString(fmt.Sprintf("Room %s. Share the code so friends can join.\n\n", m.room.Code))
	content.WriteString(separatorStyle.Render(strings.Repeat("─", max(chatWidth-6, 1))) + "\n\n")

	if m.snapshot == nil || len(m.snapshot.History) == 0 {
		if m.isLeader() {
			content.WriteString("Type /start to begin the campaign.\n\n")
		} else {
			content.WriteString("Waiting for the leader to start the campaign.\n\n")
		}
	} else {
		for _, msg := range m.snapshot.History {
			switch msg.Role {
			case chat.ChatRoleAgent, chat.ChatRoleSystem:
				content.WriteString(formatNarratorResponse(msg.Content, chatWidth) + "\n\n")
			case chat.ChatRoleUser:
				content.WriteString(formatTurnGroup(msg.Content, chatWidth) + "\n\n")
			}
		}
	}

	if m.notice != "" {
		content.WriteString(promptStyle.Render(wordwrap.String(m.notice, max(chatWidth, 10))) + "\n\n")
	}
	if m.err != nil {
		content.WriteString(errorStyle.Render("Error: "+m.err.Error()) + "\n\n")
	}

	// If currently loading, add the progress bar
	if m.loading {
		content.WriteString(m.renderProgressBar())
	}

	m.chatViewport.SetContent(content.String())
	m.chatViewport.GotoBottom()
}

// formatTurnGroup renders a resolved turn's actions one player per line.
func formatTurnGroup(content string, width int) string {
	lines := strings.Split(strings.TrimPrefix(content, chat.TurnGroupPrefix), "\n")
	var out []string
	for _, line := range lines {
		name, action, ok := strings.Cut(line, ": ")
		if !ok {
			out = append(out, wordwrap.String(line, width))
			continue
		}
		out = append(out, userStyle.Render(name+": ")+wordwrap.String(action, max(width-len(name)-2, 10)))
	}
	return strings.Join(out, "\n")
}

func (m ConsoleUI) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.poll(), pollTick())
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.chatViewport, vpCmd = m.chatViewport.Update(msg)
		m.metaViewport, mvCmd = m.metaViewport.Update(msg)
		return m, tea.Batch(vpCmd, mvCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		chatWidth := int(float64(m.width)*0.7) - 4
		metaWidth := m.width - chatWidth - 6

		m.chatViewport.Width = chatWidth - 2
		m.chatViewport.Height = m.height - 7
		m.metaViewport.Width = metaWidth - 2
		m.metaViewport.Height = m.height - 4
		m.textarea.SetWidth(chatWidth - 4)

		m.ready = true
		m.writeChatContent()
		m.metaViewport.SetContent(writeMetadata(&m))

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyEnter:
			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}
			m.textarea.Reset()
			m.err = nil
			m.notice = ""

			if strings.HasPrefix(input, "/") {
				return m.handleCommand(input)
			}

			action := annotateAction(input, rollD20())
			m.writeChatContent()
			return m, m.queueAction(action)
		}

	case pollTickMsg:
		return m, tea.Batch(m.poll(), pollTick())

	case snapshotMsg:
		if msg.err != nil {
			var apiErr *apiError
			if errors.As(msg.err, &apiErr) && apiErr.Status == http.StatusNotFound {
				m.notice = "The room is gone. Back to the lobby."
				m.backToLobby = true
				return m, tea.Quit
			}
			// Poll failures are transient; keep the last snapshot.
			return m, nil
		}
		m.applySnapshot(msg.snapshot)

	case queuedMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.notice = fmt.Sprintf("Action queued (%d pending).", msg.pending)
		}
		m.writeChatContent()
		return m, m.poll()

	case narrationMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.stats.dirty = false
		}
		m.writeChatContent()
		return m, m.poll()

	case resetMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.stats.dirty = false
			m.notice = "The room was reset."
		}
		m.writeChatContent()
		return m, m.poll()

	case leftRoomMsg:
		if msg.err != nil {
			m.err = msg.err
			m.writeChatContent()
			return m, nil
		}
		m.notice = msg.notice
		m.backToLobby = true
		return m, tea.Quit

	case progressTickMsg:
		if m.loading {
			m.progressTick++
			m.writeChatContent()
			return m, progressTick()
		}
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.chatViewport, vpCmd = m.chatViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, mvCmd)
}

// applySnapshot takes the server's view of the room. The leader's
// unsent stat edits survive polls.
func (m *ConsoleUI) applySnapshot(snap *state.Snapshot) {
	m.snapshot = snap
	m.room.Code = snap.Code
	if !m.stats.dirty {
		m.stats = statsFromSnapshot(snap)
	}
	if m.ready {
		m.writeChatContent()
		m.metaViewport.SetContent(writeMetadata(m))
	}
}

func formatNarratorResponse(response string, width int) string {
	wrapWidth := width - len(AgentName) - 2
	if wrapWidth < 10 {
		wrapWidth = 10
	}
	wrapped := wordwrap.String(response, wrapWidth)

	lines := strings.Split(wrapped, "\n")
	for i, line := range lines {
		// Numbered options stand out from the prose.
		trimmed := strings.TrimSpace(line)
		if len(trimmed) > 2 && trimmed[0] >= '1' && trimmed[0] <= '9' && trimmed[1] == '.' {
			lines[i] = speakerStyle.Render(trimmed[:2]) + trimmed[2:]
		}
	}
	return narratorStyle.Render(AgentName+": ") + strings.Join(lines, "\n")
}

func (m ConsoleUI) handleCommand(input string) (tea.Model, tea.Cmd) {
	command, arg, _ := strings.Cut(input, " ")
	command = strings.ToLower(command)

	switch command {
	case "/help":
		m.notice = `Commands:
• /help - Show this help
• /copy - Copy the room code
• /leave - Leave the room
• /quit - Quit
Leader only:
• /start - Start (or restart) the campaign
• /resolve - Send the queued actions to the game master
• /hp, /floor [+|-]N - Adjust the party counters
• /take, /drop ITEM - Change the inventory
• /reset - Reset the room
• /delete - Delete the room

Each action you send is rolled on a d20 and queued until the leader resolves the turn.`

	case "/copy":
		if err := clipboard.WriteAll(m.room.Code); err != nil {
			m.err = fmt.Errorf("could not copy the room code: %w", err)
		} else {
			m.notice = fmt.Sprintf("Copied room code %s.", m.room.Code)
		}

	case "/quit":
		m.showQuitModal = true
		return m, nil

	case "/leave":
		return m, m.leaveRoom()

	case "/resolve", "/start", "/reset", "/delete", "/hp", "/floor", "/take", "/drop":
		if !m.isLeader() {
			m.err = errors.New("only the room leader can do that")
			break
		}
		switch command {
		case "/resolve", "/start", "/reset":
			if m.loading {
				m.notice = "The game master is still speaking."
				break
			}
			m.loading = true
			m.progressTick = 0
			m.writeChatContent()
			var cmd tea.Cmd
			switch command {
			case "/resolve":
				cmd = m.resolveTurn()
			case "/start":
				cmd = m.startCampaign()
			default:
				cmd = m.resetRoom()
			}
			return m, tea.Batch(cmd, progressTick())
		case "/delete":
			return m, m.deleteRoom()
		default:
			stats, err := m.stats.edit(command, arg)
			if err != nil {
				m.err = err
				break
			}
			m.stats = stats
			m.metaViewport.SetContent(writeMetadata(&m))
		}

	default:
		m.err = fmt.Errorf("unknown command %s, try /help", command)
	}

	m.writeChatContent()
	return m, nil
}

func (m ConsoleUI) poll() tea.Cmd {
	return func() tea.Msg {
		snap, err := m.api.poll(context.Background())
		return snapshotMsg{snap, err}
	}
}

func (m ConsoleUI) queueAction(action string) tea.Cmd {
	return func() tea.Msg {
		n, err := m.api.queueAction(context.Background(), action)
		return queuedMsg{n, err}
	}
}

func (m ConsoleUI) resolveTurn() tea.Cmd {
	req := ResolveTurnRequest{
		SystemContext: m.stats.systemContext(),
		Stats:         m.stats.payload(),
	}
	return func() tea.Msg {
		content, err := m.api.resolveTurn(context.Background(), req)
		return narrationMsg{content, err}
	}
}

func (m ConsoleUI) startCampaign() tea.Cmd {
	return func() tea.Msg {
		content, err := m.api.startCampaign(context.Background())
		return narrationMsg{content, err}
	}
}

func (m ConsoleUI) resetRoom() tea.Cmd {
	return func() tea.Msg {
		return resetMsg{m.api.reset(context.Background())}
	}
}

func (m ConsoleUI) leaveRoom() tea.Cmd {
	code := m.room.Code
	return func() tea.Msg {
		err := m.api.leaveRoom(context.Background())
		return leftRoomMsg{fmt.Sprintf("You left room %s.", code), err}
	}
}

func (m ConsoleUI) deleteRoom() tea.Cmd {
	code := m.room.Code
	return func() tea.Msg {
		err := m.api.deleteRoom(context.Background())
		return leftRoomMsg{fmt.Sprintf("Room %s was deleted.", code), err}
	}
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case snapshotMsg:
		if msg.err == nil {
			m.applySnapshot(msg.snapshot)
		}

	case pollTickMsg:
		return m, tea.Batch(m.poll(), pollTick())

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m, tea.Quit
		default:
			switch msg.String() {
			case "y", "Y":
				return m, tea.Quit
			case "n", "N":
				m.showQuitModal = false
				m.textarea.Focus()
				return m, textarea.Blink
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Quit Game?"))
	content.WriteString("\n\n")
	content.WriteString("The room stays open; log in again to resume.")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(50).Render(content.String())

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	chatWidth := int(float64(m.width)*0.7) - 4
	metaWidth := m.width - chatWidth - 6

	chatPanel := chatPanelStyle.Width(chatWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.chatViewport.View(),
			"",
			separatorStyle.Render(strings.Repeat("─", max(chatWidth-4, 1))),
			m.textarea.View(),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, chatPanel, metaPanel)
}

// renderProgressBar creates an animated progress bar for loading states
func (m ConsoleUI) renderProgressBar() string {
	usable := m.chatViewport.Width - 6
	if usable <= 0 {
		usable = 30 // fallback before sizing
	}

	if usable > 80 {
		usable = 80
	} else if usable < 10 {
		usable = 10
	}

	const totalFrames = 40
	frame := m.progressTick % totalFrames
	filled := (frame * usable) / totalFrames

	var bar strings.Builder
	for i := 0; i < usable; i++ {
		if i < filled {
			bar.WriteString("█")
		} else if i == filled && frame%4 < 2 {
			bar.WriteString("▓") // Blinking effect at the progress point
		} else {
			bar.WriteString("░")
		}
	}
	return loadingStyle.Render(AgentName+" is thinking...") + "\n" + separatorStyle.Render(bar.String())
}

func progressTick() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}

func pollTick() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg {
		return pollTickMsg{}
	})
}
