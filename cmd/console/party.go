package main

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"

	"github.com/jwebster45206/party-engine/pkg/prompts"
	"github.com/jwebster45206/party-engine/pkg/state"
)

func rollD20() int {
	return rand.IntN(20) + 1
}

func rollLabel(roll int) string {
	switch {
	case roll == 20:
		return "Critical! (20)"
	case roll == 1:
		return "Critical failure! (1)"
	case roll >= 15:
		return fmt.Sprintf("Success (%d)", roll)
	case roll >= 10:
		return fmt.Sprintf("Normal (%d)", roll)
	default:
		return fmt.Sprintf("Failure (%d)", roll)
	}
}

// annotateAction tags a player's action with a die roll for the game master.
func annotateAction(action string, roll int) string {
	return fmt.Sprintf("%s [%s]", action, rollLabel(roll))
}

// partyStats is the leader's working copy of the room counters. Edits stay
// local until the next resolve sends them.
type partyStats struct {
	HP        int
	HPMax     int
	Floor     int
	Inventory []string
	dirty     bool
}

func statsFromSnapshot(s *state.Snapshot) partyStats {
	return partyStats{
		HP:        s.HP,
		HPMax:     s.HPMax,
		Floor:     s.Floor,
		Inventory: slices.Clone(s.Inventory),
	}
}

// payload returns the stats sent with a resolve. Inventory is never nil so
// an emptied inventory is sent as [].
func (p partyStats) payload() *state.Stats {
	hp, hpMax, floor := p.HP, p.HPMax, p.Floor
	inv := slices.Clone(p.Inventory)
	if inv == nil {
		inv = []string{}
	}
	return &state.Stats{HP: &hp, HPMax: &hpMax, Floor: &floor, Inventory: inv}
}

func (p partyStats) systemContext() string {
	return prompts.GameMaster(p.HP, p.HPMax, p.Floor, p.Inventory)
}

var errUsage = errors.New("usage: /hp [+|-]N, /floor [+|-]N, /take ITEM, /drop ITEM")

// edit applies a stat command such as "/hp -3" or "/take rope".
func (p partyStats) edit(command, arg string) (partyStats, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return p, errUsage
	}
	switch command {
	case "/hp":
		hp, err := adjust(p.HP, arg)
		if err != nil {
			return p, err
		}
		p.HP = min(max(hp, 0), p.HPMax)
	case "/floor":
		floor, err := adjust(p.Floor, arg)
		if err != nil {
			return p, err
		}
		p.Floor = max(floor, 1)
	case "/take":
		if slices.Contains(p.Inventory, arg) {
			return p, nil
		}
		p.Inventory = append(slices.Clone(p.Inventory), arg)
	case "/drop":
		i := slices.Index(p.Inventory, arg)
		if i < 0 {
			return p, fmt.Errorf("%q is not in the inventory", arg)
		}
		p.Inventory = slices.Delete(slices.Clone(p.Inventory), i, i+1)
	default:
		return p, errUsage
	}
	p.dirty = true
	return p, nil
}

// adjust reads "N" as an absolute value and "+N" or "-N" as a delta.
func adjust(current int, arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return current, errUsage
	}
	if strings.HasPrefix(arg, "+") || strings.HasPrefix(arg, "-") {
		return current + n, nil
	}
	return n, nil
}
