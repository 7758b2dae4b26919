package server

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emittr/connectfour/internal/game"
	"emittr/connectfour/internal/storage"
)

func newTestServer(t *testing.T, snapshots storage.SnapshotCache) *Server {
	t.Helper()
	return New(Config{
		Bot:       game.NewBot(rand.NewPCG(3, 4)),
		Store:     storage.NewMemoryStore(),
		Snapshots: snapshots,
	})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeSnapshot(t *testing.T, rec *httptest.ResponseRecorder) game.Snapshot {
	t.Helper()
	var snap game.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap), rec.Body.String())
	return snap
}

func create(t *testing.T, h http.Handler, difficulty string) game.Snapshot {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/games", `{"difficulty":"`+difficulty+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeSnapshot(t, rec)
}

func drop(t *testing.T, h http.Handler, id string, col int) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(map[string]any{"command": "drop", "column": col})
	require.NoError(t, err)
	return do(t, h, http.MethodPost, "/games/"+id+"/commands", string(body))
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(t, nil).Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCreateWithoutBody(t *testing.T) {
	rec := do(t, newTestServer(t, nil).Handler(), http.MethodPost, "/games", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	snap := decodeSnapshot(t, rec)
	assert.Equal(t, game.Off, snap.Difficulty)
	assert.Equal(t, game.PlayerOne, snap.Turn)
	assert.Len(t, snap.Cells, game.DefaultColumns*game.DefaultRows)
}

func TestCreateRejectsUnknownDifficulty(t *testing.T) {
	rec := do(t, newTestServer(t, nil).Handler(), http.MethodPost, "/games", `{"difficulty":"godlike"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTwoPlayerGameIsRecorded(t *testing.T) {
	h := newTestServer(t, nil).Handler()
	snap := create(t, h, "off")

	for _, col := range []int{0, 1, 0, 1, 0, 1} {
		rec := drop(t, h, snap.ID, col)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	rec := drop(t, h, snap.ID, 0)
	require.Equal(t, http.StatusOK, rec.Code)
	final := decodeSnapshot(t, rec)
	assert.Equal(t, game.StatusFinished, final.Status)
	require.NotNil(t, final.Outcome)
	assert.Equal(t, game.Winner(game.PlayerOne), *final.Outcome)
	assert.Equal(t, []int{14, 21, 28, 35}, final.WinningLine)

	rec = drop(t, h, snap.ID, 2)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats []storage.DifficultyStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, []storage.DifficultyStats{{Difficulty: "off", Games: 1, PlayerOneWins: 1}}, stats)
}

func TestStatsEmpty(t *testing.T) {
	rec := do(t, newTestServer(t, nil).Handler(), http.MethodGet, "/stats", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCommandErrors(t *testing.T) {
	h := newTestServer(t, nil).Handler()
	snap := create(t, h, "off")

	assert.Equal(t, http.StatusNotFound, drop(t, h, "missing", 0).Code)
	assert.Equal(t, http.StatusBadRequest, drop(t, h, snap.ID, 7).Code)
	assert.Equal(t, http.StatusBadRequest, drop(t, h, snap.ID, -1).Code)
	assert.Equal(t, http.StatusBadRequest,
		do(t, h, http.MethodPost, "/games/"+snap.ID+"/commands", `{"command":"undo"}`).Code)
	assert.Equal(t, http.StatusBadRequest,
		do(t, h, http.MethodPost, "/games/"+snap.ID+"/commands", `{"key":"x"}`).Code)
	rec := do(t, h, http.MethodPost, "/games/"+snap.ID+"/commands", `{"command":"drop"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing column")
	assert.Equal(t, http.StatusBadRequest,
		do(t, h, http.MethodPost, "/games/"+snap.ID+"/commands", `not json`).Code)

	for range game.DefaultRows {
		require.Equal(t, http.StatusOK, drop(t, h, snap.ID, 4).Code)
	}
	assert.Equal(t, http.StatusConflict, drop(t, h, snap.ID, 4).Code)

	got := decodeSnapshot(t, do(t, h, http.MethodGet, "/games/"+snap.ID, ""))
	assert.Len(t, got.Moves, game.DefaultRows)
}

func TestBotReplies(t *testing.T) {
	h := newTestServer(t, nil).Handler()
	snap := create(t, h, "expert")

	rec := drop(t, h, snap.ID, 3)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeSnapshot(t, rec)
	assert.Equal(t, 38, got.LastMove)
	assert.Equal(t, 31, got.BotMove)
	assert.Equal(t, game.PlayerOne, got.Turn)
	assert.Equal(t, []int{38, 31}, got.Moves)
}

func TestKeyCommands(t *testing.T) {
	h := newTestServer(t, nil).Handler()
	snap := create(t, h, "off")
	path := "/games/" + snap.ID + "/commands"

	rec := do(t, h, http.MethodPost, path, `{"key":"4"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 38, decodeSnapshot(t, rec).LastMove)

	rec = do(t, h, http.MethodPost, path, `{"key":"B"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, game.Easy, decodeSnapshot(t, rec).Difficulty)

	rec = do(t, h, http.MethodPost, path, `{"key":"r"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeSnapshot(t, rec)
	assert.Empty(t, got.Moves)
	assert.Equal(t, game.Easy, got.Difficulty)
}

func TestQuitForgetsGame(t *testing.T) {
	snapshots := storage.NewMemorySnapshots()
	h := newTestServer(t, snapshots).Handler()
	snap := create(t, h, "off")

	rec := do(t, h, http.MethodPost, "/games/"+snap.ID+"/commands", `{"command":"quit"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, game.StatusAbandoned, decodeSnapshot(t, rec).Status)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/games/"+snap.ID, "").Code)
	_, err := snapshots.Load(context.Background(), snap.ID)
	assert.ErrorIs(t, err, storage.ErrSnapshotNotFound)
}

func TestGameSurvivesRestartThroughCache(t *testing.T) {
	snapshots := storage.NewMemorySnapshots()
	first := newTestServer(t, snapshots).Handler()
	snap := create(t, first, "off")
	require.Equal(t, http.StatusOK, drop(t, first, snap.ID, 2).Code)
	require.Equal(t, http.StatusOK, drop(t, first, snap.ID, 2).Code)

	second := newTestServer(t, snapshots).Handler()
	rec := do(t, second, http.MethodGet, "/games/"+snap.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeSnapshot(t, rec)
	assert.Equal(t, []int{37, 30}, got.Moves)
	assert.Equal(t, game.PlayerOne, got.Turn)

	rec = drop(t, second, snap.ID, 2)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 23, decodeSnapshot(t, rec).LastMove)
}

func TestWebsocketPlaysCommands(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t, nil).Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?difficulty=off"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var hello frame
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "state", hello.Type)
	require.NotNil(t, hello.Game)
	assert.Equal(t, game.StatusActive, hello.Game.Status)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "command", "command": "drop", "column": 3}))
	var state frame
	require.NoError(t, conn.ReadJSON(&state))
	assert.Equal(t, "state", state.Type)
	require.NotNil(t, state.Game)
	assert.Equal(t, 38, state.Game.LastMove)
	assert.Equal(t, game.PlayerTwo, state.Game.Turn)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "command", "command": "drop", "column": 9}))
	var failure frame
	require.NoError(t, conn.ReadJSON(&failure))
	assert.Equal(t, "error", failure.Type)
	assert.Contains(t, failure.Message, "invalid column")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "command", "command": "drop"}))
	require.NoError(t, conn.ReadJSON(&failure))
	assert.Equal(t, "error", failure.Type)
	assert.Contains(t, failure.Message, "missing column")
}

func TestWebsocketFailedUpgradeCreatesNoGame(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/ws?difficulty=easy", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, s.manager.Len())
}

func TestCorruptCachedSnapshotIsNotFound(t *testing.T) {
	snapshots := storage.NewMemorySnapshots()
	h := newTestServer(t, snapshots).Handler()
	snap := create(t, h, "off")

	broken := snap
	broken.ID = "corrupt"
	broken.Turn = game.Empty
	require.NoError(t, snapshots.Save(context.Background(), broken))

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/games/corrupt", "").Code)
	assert.Equal(t, http.StatusNotFound, drop(t, h, "corrupt", 0).Code)
}

func TestWebsocketUnknownGame(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t, nil).Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?gameId=missing"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
