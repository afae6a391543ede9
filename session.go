// Recall sessions
//
// Every game ID gets its own hub. The hub owns one memory.Controller and the
// memory.Loop that schedules its shuffle, and runs a single goroutine that
// executes client input and fired timers in arrival order. The hub is also the
// controller's Display: frames and notices are broadcast as JSON to every
// websocket attached to the session.
//
// Features:
// - WebSockets per game ID: /memory/:gameid and /memory/:gameid/ws
// - Additional tabs on the same game ID mirror the board
// - Players identified by cookie (playerID)
// - Sessions auto-reaped after configurable idle timeout
// - Random 8-char game IDs via crypto/rand, with server-side collision check

package main

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/Seednode/recall/memory"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

const (
	defaultViewportWidth  = 1280
	defaultViewportHeight = 720

	sendBuffer = 32
	writeWait  = 10 * time.Second
)

// RoundCount is the raw contents of the tile count field. Clients may send it
// as a JSON string or a bare number; either way the text reaches
// memory.ParseRoundSize unchanged.
type RoundCount string

func (rc *RoundCount) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*rc = RoundCount(s)

		return nil
	}

	if bytes.Equal(data, []byte("null")) {
		*rc = ""

		return nil
	}

	*rc = RoundCount(data)

	return nil
}

// Messages coming from clients
type ClientMessage struct {
	Type    string     `json:"type"`              // "start", "click", "resize"
	Count   RoundCount `json:"count,omitempty"`   // start: raw contents of the tile count field
	Ordinal int        `json:"ordinal,omitempty"` // click
	Width   float64    `json:"width,omitempty"`   // start / resize
	Height  float64    `json:"height,omitempty"`  // start / resize
}

// SessionInfoMessage is sent immediately on connect.
type SessionInfoMessage struct {
	Type       string `json:"type"` // "session_info"
	GameID     string `json:"game_id"`
	IsExisting bool   `json:"is_existing"` // true if this cookie has connected to this game before
	MinTiles   int    `json:"min_tiles"`
	MaxTiles   int    `json:"max_tiles"`
}

// BoardMessage carries a full frame of the board.
type BoardMessage struct {
	Type string `json:"type"` // "board"
	memory.Frame
}

// NoticeMessage is a modal notification for the player.
type NoticeMessage struct {
	Type string `json:"type"` // "notice"
	memory.Notice
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
}

type inputRequest struct {
	client *Client
	msg    ClientMessage
}

type Hub struct {
	id      string
	clients map[*Client]bool
	seen    map[string]bool

	register chan *Client
	unreg    chan *Client
	inputs   chan inputRequest
	quit     chan struct{}
	stop     sync.Once

	mu sync.RWMutex

	createdAt  time.Time
	lastActive time.Time

	loop *memory.Loop
	game *memory.Controller
}

func newHub(cfg *Config, gameID string) *Hub {
	now := time.Now()

	h := &Hub{
		id:         gameID,
		clients:    make(map[*Client]bool),
		seen:       make(map[string]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		inputs:     make(chan inputRequest),
		quit:       make(chan struct{}),
		createdAt:  now,
		lastActive: now,
		loop:       memory.NewLoop(8),
	}
	h.game = memory.NewController(h, h.loop, cfg.gameOptions())

	return h
}

func (h *Hub) run(cfg *Config) {
	defer h.loop.Close()

	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.lastActive = time.Now()

			isExisting := h.seen[c.playerID]
			h.seen[c.playerID] = true
			h.clients[c] = true

			c.send <- SessionInfoMessage{
				Type:       "session_info",
				GameID:     h.id,
				IsExisting: isExisting,
				MinTiles:   memory.MinTiles,
				MaxTiles:   memory.MaxTiles,
			}
			c.send <- BoardMessage{
				Type:  "board",
				Frame: h.game.Frame(),
			}

			h.mu.Unlock()

			logf(cfg, "GAMES: Player %s connected to %s", c.playerID, h.id)

		case c := <-h.unreg:
			h.mu.Lock()
			h.lastActive = time.Now()

			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case in := <-h.inputs:
			h.handleInput(cfg, in)

		case task := <-h.loop.Tasks():
			h.mu.Lock()
			task()
			h.mu.Unlock()

		case <-h.quit:
			h.mu.Lock()
			h.game.Reset()
			// register can still win the select after closeAll has run.
			h.closeClientsLocked()
			h.mu.Unlock()

			return
		}
	}
}

// handleInput applies one client message to the controller.
func (h *Hub) handleInput(cfg *Config, in inputRequest) {
	msg := in.msg

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	switch msg.Type {
	case "start":
		h.game.SetViewport(msg.Width, msg.Height)

		if err := h.game.StartRound(string(msg.Count)); err != nil {
			logf(cfg, "GAMES: Rejected round size %q in %s: %v", msg.Count, h.id, err)

			return
		}

		logf(cfg, "GAMES: Started round %d with %d tiles in %s", h.game.Round(), h.game.RoundSize(), h.id)

	case "click":
		round := h.game.Round()
		err := h.game.Click(msg.Ordinal)

		switch {
		case err == nil && h.game.Stage() == memory.Idle:
			logf(cfg, "GAMES: Round %d won in %s", round, h.id)
		case errors.Is(err, memory.ErrOutOfOrder):
			logf(cfg, "GAMES: Round %d lost in %s: %v", round, h.id, err)
		case err != nil:
			logf(cfg, "GAMES: Ignored click from %s in %s: %v", in.client.playerID, h.id, err)
		}

	case "resize":
		h.game.SetViewport(msg.Width, msg.Height)
	}
}

// Render implements memory.Display. Callers must hold h.mu.
func (h *Hub) Render(f memory.Frame) {
	h.broadcastLocked(BoardMessage{
		Type:  "board",
		Frame: f,
	})
}

// Notify implements memory.Display. Callers must hold h.mu.
func (h *Hub) Notify(n memory.Notice) {
	h.broadcastLocked(NoticeMessage{
		Type:   "notice",
		Notice: n,
	})
}

func (h *Hub) broadcastLocked(msg any) {
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			delete(h.clients, client)
			close(client.send)
		}
	}
}

// closeAll disconnects all clients of this hub and stops its run loop.
func (h *Hub) closeAll() {
	h.mu.Lock()
	h.closeClientsLocked()
	h.mu.Unlock()

	h.stop.Do(func() {
		close(h.quit)
	})
}

func (h *Hub) closeClientsLocked() {
	for c := range h.clients {
		close(c.send)
		_ = c.conn.Close()
		delete(h.clients, c)
	}
}

func (h *Hub) idleSince() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.lastActive
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const playerCookieName = "recall_id"

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	id, err := uuid.NewRandom()
	if err != nil {
		log.Println("uuid error:", err)
		return ""
	}

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id.String(),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id.String()
}

// GameManager holds a set of hubs keyed by game ID, so each $path/$gameid
// is its own isolated session.
type GameManager struct {
	mu          sync.Mutex
	hubs        map[string]*Hub
	idleTimeout time.Duration
	done        chan struct{}
	once        sync.Once
}

func newGameManager(idleTimeout time.Duration) *GameManager {
	gm := &GameManager{
		hubs:        make(map[string]*Hub),
		idleTimeout: idleTimeout,
		done:        make(chan struct{}),
	}
	if idleTimeout > 0 {
		go gm.reaperLoop()
	}
	return gm
}

func (gm *GameManager) getHub(cfg *Config, gameID string) *Hub {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if hub, ok := gm.hubs[gameID]; ok {
		return hub
	}

	hub := newHub(cfg, gameID)
	gm.hubs[gameID] = hub
	go hub.run(cfg)

	logf(cfg, "GAMES: Opened session %s", gameID)

	return hub
}

// newGameID generates a crypto-random game ID and ensures it doesn't
// collide with existing games.
func (gm *GameManager) newGameID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	const max = byte(255 - (256 % len(letters)))

	for {
		out := make([]byte, 0, 8)
		buf := make([]byte, 16)

		for len(out) < 8 {
			if _, err := rand.Read(buf); err != nil {
				panic("crypto/rand failure: " + err.Error())
			}

			for _, b := range buf {
				if b <= max && len(out) < 8 {
					out = append(out, letters[int(b)%len(letters)])
				}
			}
		}
		id := string(out)

		gm.mu.Lock()
		_, exists := gm.hubs[id]
		gm.mu.Unlock()

		if !exists {
			return id
		}
	}
}

// reap closes every hub idle since before cutoff and reports how many it closed.
func (gm *GameManager) reap(cutoff time.Time) int {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	reaped := 0
	for id, hub := range gm.hubs {
		if hub.idleSince().Before(cutoff) {
			delete(gm.hubs, id)
			go hub.closeAll()
			reaped++
		}
	}

	return reaped
}

// reaperLoop periodically removes hubs that have been idle longer than idleTimeout.
func (gm *GameManager) reaperLoop() {
	ticker := time.NewTicker(gm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			gm.reap(time.Now().Add(-gm.idleTimeout))
		case <-gm.done:
			return
		}
	}
}

// Close stops the reaper and shuts down every session.
func (gm *GameManager) Close() {
	gm.once.Do(func() {
		close(gm.done)
	})

	gm.reap(time.Now().Add(time.Hour))
}

func (gm *GameManager) sessions() int {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	return len(gm.hubs)
}

// WebSocket handler that picks the hub based on :gameid
func serveWSForManager(cfg *Config, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if gameID == "" {
			http.Error(w, "missing game id", http.StatusBadRequest)
			return
		}

		playerID := getOrSetPlayerID(w, r)
		if playerID == "" {
			http.Error(w, "unable to assign player id", http.StatusInternalServerError)
			return
		}

		hub := gm.getHub(cfg, gameID)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, sendBuffer),
			playerID: playerID,
		}

		select {
		case hub.register <- client:
		case <-hub.quit:
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.quit:
		}
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Time{})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) {
				continue
			}

			return
		}

		switch msg.Type {
		case "start", "click", "resize":
			select {
			case h.inputs <- inputRequest{
				client: c,
				msg:    msg,
			}:
			case <-h.quit:
				return
			}
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}
