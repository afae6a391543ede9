/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package memory

import (
	"fmt"
	"strconv"
)

// Tile is a single numbered button on the board.
type Tile struct {
	ordinal int
	label   string
	color   string
	x, y    float64
	handler func()
}

// TileView is the render-ready state of a tile.
type TileView struct {
	Ordinal   int     `json:"ordinal"`
	Label     string  `json:"label"`
	Color     string  `json:"color"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Clickable bool    `json:"clickable"`
}

// NewTile creates a tile labelled with its ordinal and a random background color.
func NewTile(ordinal int, rng Random) *Tile {
	return &Tile{
		ordinal: ordinal,
		label:   strconv.Itoa(ordinal),
		color:   randomColor(rng),
	}
}

func randomColor(rng Random) string {
	return fmt.Sprintf("#%06X", rng.IntN(1<<24))
}

func (t *Tile) Ordinal() int { return t.ordinal }

func (t *Tile) Label() string { return t.label }

func (t *Tile) Color() string { return t.color }

func (t *Tile) Position() (float64, float64) { return t.x, t.y }

func (t *Tile) Clickable() bool { return t.handler != nil }

// SetPosition moves the tile to absolute screen coordinates.
func (t *Tile) SetPosition(x, y float64) {
	t.x, t.y = x, y
}

func (t *Tile) HideLabel() {
	t.label = ""
}

func (t *Tile) ShowLabel(value int) {
	t.label = strconv.Itoa(value)
}

// OnClick replaces the click handler. A nil handler makes the tile inert.
func (t *Tile) OnClick(handler func()) {
	t.handler = handler
}

// Click runs the installed handler, if any, and reports whether one ran.
func (t *Tile) Click() bool {
	if t.handler == nil {
		return false
	}

	t.handler()

	return true
}

func (t *Tile) View() TileView {
	return TileView{
		Ordinal:   t.ordinal,
		Label:     t.label,
		Color:     t.color,
		X:         t.x,
		Y:         t.y,
		Clickable: t.handler != nil,
	}
}
