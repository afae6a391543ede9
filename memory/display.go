/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package memory

import (
	"math/rand/v2"
)

// NoticeKind identifies a user-facing notification.
type NoticeKind string

const (
	NoticeOutOfRange NoticeKind = "out_of_range"
	NoticeSuccess    NoticeKind = "success"
	NoticeOutOfOrder NoticeKind = "out_of_order"
)

var noticeText = map[NoticeKind]string{
	NoticeOutOfRange: "Please choose a number between 3 and 7.",
	NoticeSuccess:    "Excellent memory!",
	NoticeOutOfOrder: "Wrong order!",
}

// Notice is a modal message for the player.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
}

func newNotice(kind NoticeKind) Notice {
	return Notice{Kind: kind, Message: noticeText[kind]}
}

// Frame is a complete snapshot of the board.
type Frame struct {
	Round    uint64     `json:"round"`
	Stage    Stage      `json:"stage"`
	Outcome  Outcome    `json:"outcome"`
	Size     int        `json:"size"`
	Accepted []int      `json:"accepted"`
	Tiles    []TileView `json:"tiles"`
}

// Display receives everything the controller wants shown to the player.
// Calls are made from whichever goroutine drives the controller.
type Display interface {
	Render(f Frame)
	Notify(n Notice)
}

// Random is the source used for tile colors and positions.
// *rand.Rand from math/rand/v2 satisfies it.
type Random interface {
	Float64() float64
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

func (globalRand) IntN(n int) int { return rand.IntN(n) }
