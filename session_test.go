package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Seednode/recall/memory"
	"github.com/gorilla/websocket"
)

type serverMessage struct {
	Type       string            `json:"type"`
	GameID     string            `json:"game_id"`
	IsExisting bool              `json:"is_existing"`
	Kind       string            `json:"kind"`
	Message    string            `json:"message"`
	Round      uint64            `json:"round"`
	Stage      string            `json:"stage"`
	Outcome    string            `json:"outcome"`
	Tiles      []memory.TileView `json:"tiles"`
}

func dial(t *testing.T, srv *httptest.Server, gameID, playerID string) *websocket.Conn {
	t.Helper()

	header := http.Header{}
	if playerID != "" {
		header.Set("Cookie", playerCookieName+"="+playerID)
	}

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + gamePath + "/" + gameID + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(serverMessage) bool) serverMessage {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	for {
		var msg serverMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("reading from websocket: %v", err)
		}
		if match(msg) {
			return msg
		}
	}
}

func isBoard(stage string) func(serverMessage) bool {
	return func(m serverMessage) bool {
		return m.Type == "board" && m.Stage == stage
	}
}

func isNotice(kind memory.NoticeKind) func(serverMessage) bool {
	return func(m serverMessage) bool {
		return m.Type == "notice" && m.Kind == string(kind)
	}
}

func send(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()

	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("writing %s: %v", msg.Type, err)
	}
}

func start(t *testing.T, conn *websocket.Conn, count string) {
	send(t, conn, ClientMessage{Type: "start", Count: RoundCount(count), Width: 800, Height: 600})
}

func click(t *testing.T, conn *websocket.Conn, ordinal int) {
	send(t, conn, ClientMessage{Type: "click", Ordinal: ordinal})
}

func TestSessionPlaysWinningRound(t *testing.T) {
	srv, gm := newTestServer(t, testConfig())
	conn := dial(t, srv, "WinGame1", "")

	info := readUntil(t, conn, func(m serverMessage) bool { return m.Type == "session_info" })
	if info.GameID != "WinGame1" || info.IsExisting {
		t.Errorf("unexpected session info: %+v", info)
	}

	readUntil(t, conn, isBoard("idle"))

	if gm.sessions() != 1 {
		t.Errorf("expected one session, got %d", gm.sessions())
	}

	start(t, conn, "3")

	board := readUntil(t, conn, isBoard("interactive"))
	if len(board.Tiles) != 3 {
		t.Fatalf("expected 3 tiles, got %d", len(board.Tiles))
	}

	for _, tile := range board.Tiles {
		if tile.Label != "" || !tile.Clickable {
			t.Errorf("tile %d not ready for play: %+v", tile.Ordinal, tile)
		}
		if tile.X < 0 || tile.X >= 550 || tile.Y < 0 || tile.Y >= 350 {
			t.Errorf("tile %d outside the reported viewport: (%f, %f)", tile.Ordinal, tile.X, tile.Y)
		}
	}

	for i := 1; i <= 3; i++ {
		click(t, conn, i)
	}

	notice := readUntil(t, conn, func(m serverMessage) bool { return m.Type == "notice" })
	if notice.Kind != string(memory.NoticeSuccess) || notice.Message == "" {
		t.Fatalf("expected success notice, got %+v", notice)
	}

	cleared := readUntil(t, conn, isBoard("idle"))
	if len(cleared.Tiles) != 0 {
		t.Errorf("expected board to be cleared, got %d tiles", len(cleared.Tiles))
	}
}

func TestSessionRejectsOutOfRange(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	conn := dial(t, srv, "RangeGm1", "")

	readUntil(t, conn, isBoard("idle"))

	for _, count := range []string{"2", "8", "seven"} {
		start(t, conn, count)

		notice := readUntil(t, conn, func(m serverMessage) bool { return m.Type == "notice" })
		if notice.Kind != string(memory.NoticeOutOfRange) {
			t.Errorf("count %q: expected out_of_range, got %+v", count, notice)
		}
	}

	start(t, conn, "3")
	board := readUntil(t, conn, func(m serverMessage) bool { return m.Type == "board" })
	if board.Stage != "populated" || len(board.Tiles) != 3 {
		t.Errorf("expected the first frame after a valid start to be the populated board, got %s with %d tiles", board.Stage, len(board.Tiles))
	}
}

func TestRoundCountDecoding(t *testing.T) {
	tests := map[string]RoundCount{
		`{"count":"5"}`:   "5",
		`{"count":" 4 "}`: " 4 ",
		`{"count":5}`:     "5",
		`{"count":4.5}`:   "4.5",
		`{"count":true}`:  "true",
		`{"count":null}`:  "",
		`{}`:              "",
	}

	for in, want := range tests {
		var msg ClientMessage
		if err := json.Unmarshal([]byte(in), &msg); err != nil {
			t.Errorf("%s: unexpected error: %v", in, err)
			continue
		}
		if msg.Count != want {
			t.Errorf("%s: got count %q, want %q", in, msg.Count, want)
		}
	}
}

func TestSessionAcceptsNumericCount(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	conn := dial(t, srv, "NumCount", "")

	readUntil(t, conn, isBoard("idle"))

	raw := func(body string) {
		t.Helper()

		if err := conn.WriteMessage(websocket.TextMessage, []byte(body)); err != nil {
			t.Fatalf("writing %s: %v", body, err)
		}
	}

	raw(`{"type":"start","count":5,"width":800,"height":600}`)
	board := readUntil(t, conn, isBoard("populated"))
	if len(board.Tiles) != 5 {
		t.Fatalf("expected 5 tiles from a numeric count, got %d", len(board.Tiles))
	}

	// A mistyped field is skipped without dropping the connection.
	raw(`{"type":"click","ordinal":"one"}`)

	raw(`{"type":"start","count":4.5}`)
	readUntil(t, conn, isNotice(memory.NoticeOutOfRange))
}

func TestSessionPlaysLosingRound(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	conn := dial(t, srv, "LoseGam1", "")

	start(t, conn, "4")
	readUntil(t, conn, isBoard("interactive"))

	click(t, conn, 1)
	click(t, conn, 3)

	readUntil(t, conn, isNotice(memory.NoticeOutOfOrder))

	board := readUntil(t, conn, isBoard("resolved"))
	if board.Outcome != "failure" || len(board.Tiles) != 4 {
		t.Fatalf("expected failed board with 4 tiles, got %s with %d", board.Outcome, len(board.Tiles))
	}

	for _, tile := range board.Tiles {
		if tile.Label != strconv.Itoa(tile.Ordinal) {
			t.Errorf("tile %d not revealed: %q", tile.Ordinal, tile.Label)
		}
		if tile.Clickable {
			t.Errorf("tile %d still clickable", tile.Ordinal)
		}
	}

	start(t, conn, "3")
	next := readUntil(t, conn, isBoard("populated"))
	if next.Round <= board.Round {
		t.Errorf("expected a new round after restarting, got %d after %d", next.Round, board.Round)
	}
}

func TestSessionMirrorsAcrossTabs(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	first := dial(t, srv, "MirrorG1", "player-one")
	readUntil(t, first, isBoard("idle"))

	second := dial(t, srv, "MirrorG1", "player-one")
	info := readUntil(t, second, func(m serverMessage) bool { return m.Type == "session_info" })
	if !info.IsExisting {
		t.Error("expected returning cookie to be recognised")
	}
	readUntil(t, second, isBoard("idle"))

	start(t, first, "5")

	board := readUntil(t, second, isBoard("populated"))
	if len(board.Tiles) != 5 {
		t.Errorf("expected mirrored board with 5 tiles, got %d", len(board.Tiles))
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	a := dial(t, srv, "IsolateA", "")
	b := dial(t, srv, "IsolateB", "")

	readUntil(t, a, isBoard("idle"))
	readUntil(t, b, isBoard("idle"))

	start(t, a, "7")
	readUntil(t, a, isBoard("populated"))

	start(t, b, "3")
	board := readUntil(t, b, func(m serverMessage) bool { return m.Type == "board" })
	if len(board.Tiles) != 3 || board.Round != 1 {
		t.Errorf("session B saw session A's state: round %d with %d tiles", board.Round, len(board.Tiles))
	}
}

func TestClosedHubReleasesLateClients(t *testing.T) {
	cfg := testConfig()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	registered := 0
	for range 50 {
		hub := newHub(cfg, "LateJoin")
		hub.closeAll()
		go hub.run(cfg)

		client := &Client{
			conn:     conn,
			send:     make(chan any, sendBuffer),
			playerID: "late",
		}

		select {
		case hub.register <- client:
			registered++
		case <-hub.quit:
			continue
		}

		timeout := time.After(5 * time.Second)
	drain:
		for {
			select {
			case _, ok := <-client.send:
				if !ok {
					break drain
				}
			case <-timeout:
				t.Fatal("send channel of a client registered after closeAll was never closed")
			}
		}
	}

	if registered == 0 {
		t.Log("register never won the race against quit")
	}
}

func TestReapIdleSessions(t *testing.T) {
	cfg := testConfig()
	gm := newGameManager(0)

	hub := gm.getHub(cfg, "ReapMe01")
	if gm.getHub(cfg, "ReapMe01") != hub {
		t.Fatal("expected the same hub for the same game id")
	}

	if reaped := gm.reap(time.Now().Add(-time.Minute)); reaped != 0 {
		t.Errorf("fresh session reaped: %d", reaped)
	}

	if reaped := gm.reap(time.Now().Add(time.Minute)); reaped != 1 {
		t.Errorf("expected one reaped session, got %d", reaped)
	}

	if gm.sessions() != 0 {
		t.Errorf("expected no sessions after reaping, got %d", gm.sessions())
	}

	select {
	case <-hub.quit:
	case <-time.After(5 * time.Second):
		t.Fatal("reaped hub was not stopped")
	}

	if gm.getHub(cfg, "ReapMe01") == hub {
		t.Error("expected a fresh hub after reaping")
	}

	gm.Close()
}

func TestNewGameIDs(t *testing.T) {
	gm := newGameManager(0)
	defer gm.Close()

	seen := make(map[string]bool)
	for range 200 {
		id := gm.newGameID()
		if len(id) != 8 {
			t.Fatalf("expected 8-character id, got %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
