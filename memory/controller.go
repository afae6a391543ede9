/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package memory implements the sequencing engine for the memory game.
//
// A round lays out n numbered tiles, shuffles them around the viewport n+1
// times, hides their numbers and then waits for the player to click them back
// in ascending order. One wrong click ends the round and reveals every number.
//
// A Controller is not safe for concurrent use. Drive it, and run its
// Scheduler's callbacks, from a single goroutine.
package memory

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	MinTiles = 3
	MaxTiles = 7

	DefaultSettleDelay     = time.Second
	DefaultShuffleInterval = 2 * time.Second
	DefaultMargin          = 250
)

var (
	ErrOutOfRange     = errors.New("round size out of range")
	ErrOutOfOrder     = errors.New("tile clicked out of order")
	ErrNotInteractive = errors.New("round is not accepting clicks")
	ErrUnknownTile    = errors.New("no such tile")
)

// Options tunes a Controller. Zero fields fall back to the defaults.
type Options struct {
	// SettleDelay is waited once per tile before the first shuffle.
	SettleDelay     time.Duration
	ShuffleInterval time.Duration
	// Margin is subtracted from each viewport dimension to keep tiles on screen.
	Margin float64
	Width  float64
	Height float64
	Rand   Random
}

type Controller struct {
	display   Display
	scheduler Scheduler
	rng       Random

	settleDelay     time.Duration
	shuffleInterval time.Duration
	margin          float64
	width, height   float64

	round    uint64
	stage    Stage
	outcome  Outcome
	size     int
	tiles    []*Tile
	accepted []int
	passes   int

	settle  Timer
	shuffle Timer
}

func NewController(display Display, scheduler Scheduler, opts Options) *Controller {
	c := &Controller{
		display:         display,
		scheduler:       scheduler,
		rng:             opts.Rand,
		settleDelay:     opts.SettleDelay,
		shuffleInterval: opts.ShuffleInterval,
		margin:          opts.Margin,
		width:           opts.Width,
		height:          opts.Height,
	}

	if c.rng == nil {
		c.rng = globalRand{}
	}
	if c.settleDelay <= 0 {
		c.settleDelay = DefaultSettleDelay
	}
	if c.shuffleInterval <= 0 {
		c.shuffleInterval = DefaultShuffleInterval
	}
	if c.margin <= 0 {
		c.margin = DefaultMargin
	}

	return c
}

// ParseRoundSize accepts only whole numbers between MinTiles and MaxTiles.
func ParseRoundSize(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a whole number", ErrOutOfRange, raw)
	}

	if n < MinTiles || n > MaxTiles {
		return 0, fmt.Errorf("%w: %d (must be between %d-%d inclusive)", ErrOutOfRange, n, MinTiles, MaxTiles)
	}

	return n, nil
}

// StartRound begins a new round from raw user input. Invalid input notifies
// the player and leaves the current round untouched.
func (c *Controller) StartRound(raw string) error {
	n, err := ParseRoundSize(raw)
	if err != nil {
		c.display.Notify(newNotice(NoticeOutOfRange))

		return err
	}

	c.begin(n)

	return nil
}

// StartRoundN is StartRound for an already-parsed size.
func (c *Controller) StartRoundN(n int) error {
	return c.StartRound(strconv.Itoa(n))
}

func (c *Controller) begin(n int) {
	c.clear()

	c.round++
	c.size = n
	c.tiles = make([]*Tile, 0, n)
	for i := 1; i <= n; i++ {
		c.tiles = append(c.tiles, NewTile(i, c.rng))
	}
	c.stage = Populated
	c.render()

	round := c.round
	c.settle = c.scheduler.After(c.settleDelay*time.Duration(n), func() {
		if c.round != round {
			return
		}
		c.startShuffle()
	})
}

func (c *Controller) startShuffle() {
	c.settle = nil
	c.stage = Shuffling
	c.shuffleTiles()

	round := c.round
	count := 0
	c.shuffle = c.scheduler.Every(c.shuffleInterval, func() {
		if c.round != round || c.stage != Shuffling {
			return
		}

		if count < c.size {
			c.shuffleTiles()
			count++

			return
		}

		c.stopTimers()
		c.makeInteractive()
	})
}

func (c *Controller) shuffleTiles() {
	w := max(c.width-c.margin, 0)
	h := max(c.height-c.margin, 0)

	for _, t := range c.tiles {
		t.SetPosition(c.rng.Float64()*w, c.rng.Float64()*h)
	}
	c.passes++
	c.render()
}

func (c *Controller) makeInteractive() {
	for _, t := range c.tiles {
		t.HideLabel()

		ordinal := t.Ordinal()
		t.OnClick(func() {
			c.checkOrder(ordinal)
		})
	}

	c.stage = Interactive
	c.render()
}

// Click routes a player's click on the tile with the given ordinal.
func (c *Controller) Click(ordinal int) error {
	if c.stage != Interactive {
		return fmt.Errorf("%w: round is %s", ErrNotInteractive, c.stage)
	}

	t := c.tile(ordinal)
	if t == nil {
		return fmt.Errorf("%w: %d", ErrUnknownTile, ordinal)
	}

	t.Click()

	if c.stage == Resolved && c.outcome == Failure {
		return fmt.Errorf("%w: got %d, expected %d", ErrOutOfOrder, ordinal, len(c.accepted)+1)
	}

	return nil
}

func (c *Controller) checkOrder(ordinal int) {
	expected := len(c.accepted) + 1

	if ordinal != expected {
		c.fail()

		return
	}

	c.tile(ordinal).ShowLabel(ordinal)
	c.accepted = append(c.accepted, ordinal)

	if len(c.accepted) < c.size {
		c.render()

		return
	}

	c.stage = Resolved
	c.outcome = Success
	c.disarm()
	c.render()
	c.display.Notify(newNotice(NoticeSuccess))

	c.clear()
	c.render()
}

func (c *Controller) fail() {
	c.stage = Resolved
	c.outcome = Failure
	c.disarm()

	for _, t := range c.tiles {
		t.ShowLabel(t.Ordinal())
	}

	c.display.Notify(newNotice(NoticeOutOfOrder))
	c.render()
}

// Reset abandons the current round, cancelling any pending shuffle.
func (c *Controller) Reset() {
	c.clear()
	c.render()
}

// SetViewport updates the area tiles are scattered over. It takes effect on
// the next shuffle pass.
func (c *Controller) SetViewport(width, height float64) {
	if width > 0 {
		c.width = width
	}
	if height > 0 {
		c.height = height
	}
}

func (c *Controller) clear() {
	c.stopTimers()
	c.disarm()

	c.tiles = nil
	c.accepted = nil
	c.size = 0
	c.passes = 0
	c.stage = Idle
	c.outcome = Pending
}

func (c *Controller) disarm() {
	for _, t := range c.tiles {
		t.OnClick(nil)
	}
}

func (c *Controller) stopTimers() {
	if c.settle != nil {
		c.settle.Stop()
		c.settle = nil
	}
	if c.shuffle != nil {
		c.shuffle.Stop()
		c.shuffle = nil
	}
}

func (c *Controller) tile(ordinal int) *Tile {
	if ordinal < 1 || ordinal > len(c.tiles) {
		return nil
	}
	return c.tiles[ordinal-1]
}

func (c *Controller) render() {
	c.display.Render(c.Frame())
}

func (c *Controller) Stage() Stage { return c.stage }

func (c *Controller) Outcome() Outcome { return c.outcome }

func (c *Controller) RoundSize() int { return c.size }

// Round is incremented by every accepted StartRound.
func (c *Controller) Round() uint64 { return c.round }

// Passes is the number of shuffle passes made in the current round.
func (c *Controller) Passes() int { return c.passes }

func (c *Controller) Accepted() []int { return slices.Clone(c.accepted) }

// Tiles returns the current tiles in ordinal order.
func (c *Controller) Tiles() []*Tile { return slices.Clone(c.tiles) }

func (c *Controller) Frame() Frame {
	views := make([]TileView, 0, len(c.tiles))
	for _, t := range c.tiles {
		views = append(views, t.View())
	}

	return Frame{
		Round:    c.round,
		Stage:    c.stage,
		Outcome:  c.outcome,
		Size:     c.size,
		Accepted: append(make([]int, 0, len(c.accepted)), c.accepted...),
		Tiles:    views,
	}
}
