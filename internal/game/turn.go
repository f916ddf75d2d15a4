package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jwebster45206/party-engine/internal/logger"
	"github.com/jwebster45206/party-engine/internal/storage"
	"github.com/jwebster45206/party-engine/pkg/chat"
	"github.com/jwebster45206/party-engine/pkg/prompts"
	"github.com/jwebster45206/party-engine/pkg/state"
)

// QueueAction appends "{username}: {message}" to the room's pending
// actions and returns the queue length. It never waits on a turn in
// progress.
func (e *Engine) QueueAction(ctx context.Context, userID, message string) (int, error) {
	u, room, err := e.CurrentRoom(ctx, userID)
	if err != nil {
		return 0, err
	}

	n, err := e.store.AppendPendingAction(ctx, room.ID, chat.PendingEntry(u.Username, message))
	if errors.Is(err, storage.ErrNotFound) {
		e.clearStaleReference(ctx, u)
		return 0, ErrNoRoom
	}
	if err != nil {
		return 0, fmt.Errorf("failed to queue action: %w", err)
	}
	logger.WithRoom(e.logger, room.ID, u.ID).Debug("Action queued", "pending", n)
	return n, nil
}

// ResolveTurn merges every pending action into one turn group, asks the
// narrator for the outcome and commits both to the history. Actions
// queued while the narrator runs stay pending for the next turn.
func (e *Engine) ResolveTurn(ctx context.Context, userID, systemContext string, stats *state.Stats) (string, error) {
	u, room, err := e.creatorRoom(ctx, userID)
	if err != nil {
		return "", err
	}

	unlock, err := e.lockRoom(ctx, room.ID)
	if err != nil {
		return "", err
	}
	defer unlock()

	room, err = e.reload(ctx, room.ID)
	if err != nil {
		return "", err
	}
	pending := room.PendingActions
	if len(pending) == 0 {
		return "", ErrNoPendingActions
	}

	if stats != nil && e.opts.TrustClientStats {
		room.ApplyStats(*stats)
	}
	if strings.TrimSpace(systemContext) == "" {
		systemContext = prompts.GameMaster(room.HP, room.HPMax, room.Floor, room.Inventory)
	}

	log := logger.WithRoom(e.logger, room.ID, u.ID)
	group := strings.Join(pending, "\n")
	room.History = append(room.History, chat.TurnGroup(pending))

	// A client hanging up must not abandon a turn the party is waiting on.
	genCtx := context.WithoutCancel(ctx)
	start := time.Now()
	text := e.narrator.Generate(genCtx, systemContext, room.History, group)
	room.History = append(room.History, chat.Narration(text))

	if err := e.save(genCtx, room, len(pending)); err != nil {
		return "", err
	}
	log.Info("Turn resolved", "actions", len(pending), "duration", time.Since(start))
	return text, nil
}

// StartCampaign wipes the story and asks the narrator for the opening
// scene. The inventory is kept. Actions queued while the scene is
// generated stay pending.
func (e *Engine) StartCampaign(ctx context.Context, userID string) (string, error) {
	u, room, err := e.creatorRoom(ctx, userID)
	if err != nil {
		return "", err
	}

	unlock, err := e.lockRoom(ctx, room.ID)
	if err != nil {
		return "", err
	}
	defer unlock()

	room, err = e.reload(ctx, room.ID)
	if err != nil {
		return "", err
	}
	consumed := len(room.PendingActions)
	room.ResetCounters(e.opts.Defaults)
	room.PendingActions = nil

	genCtx := context.WithoutCancel(ctx)
	text := e.narrator.Generate(genCtx, prompts.OpeningScenePrompt, nil, prompts.StartAction)
	room.History = []chat.ChatMessage{chat.Narration(text)}

	if err := e.save(genCtx, room, consumed); err != nil {
		return "", err
	}
	logger.WithRoom(e.logger, room.ID, u.ID).Info("Campaign started")
	return text, nil
}

// ResetGame returns the room to its starting state.
func (e *Engine) ResetGame(ctx context.Context, userID string) error {
	u, room, err := e.creatorRoom(ctx, userID)
	if err != nil {
		return err
	}

	unlock, err := e.lockRoom(ctx, room.ID)
	if err != nil {
		return err
	}
	defer unlock()

	room, err = e.reload(ctx, room.ID)
	if err != nil {
		return err
	}
	consumed := len(room.PendingActions)
	room.Reset(e.opts.Defaults)

	if err := e.save(ctx, room, consumed); err != nil {
		return err
	}
	logger.WithRoom(e.logger, room.ID, u.ID).Info("Game reset")
	return nil
}

// Poll returns the room as the user sees it.
func (e *Engine) Poll(ctx context.Context, userID string) (*state.Snapshot, error) {
	u, room, err := e.CurrentRoom(ctx, userID)
	if err != nil {
		return nil, err
	}
	snap := room.Snapshot(u.ID)
	return &snap, nil
}
