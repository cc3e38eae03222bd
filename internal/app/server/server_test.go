package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/chess-vn/slbaduk/internal/aws/auth"
	"github.com/chess-vn/slbaduk/internal/aws/storage"
	"github.com/chess-vn/slbaduk/internal/domains/dtos"
	"github.com/chess-vn/slbaduk/internal/domains/entities"
	"github.com/chess-vn/slbaduk/internal/game"
	"github.com/chess-vn/slbaduk/pkg/logging"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

var t0 = time.Date(2026, time.February, 1, 9, 0, 0, 0, time.UTC)

type fakeOracle struct {
	est game.ScoreEstimate
	err error
}

func (f fakeOracle) Analyze(context.Context, *entities.MatchSession) (game.ScoreEstimate, error) {
	return f.est, f.err
}

type fakeArchiver struct {
	mu       sync.Mutex
	archived []*entities.MatchSession
}

func (f *fakeArchiver) Archive(_ context.Context, s *entities.MatchSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived = append(f.archived, s)
	return nil
}

func (f *fakeArchiver) sessions() []*entities.MatchSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*entities.MatchSession(nil), f.archived...)
}

type testEnv struct {
	srv      *server
	http     *httptest.Server
	clock    *clock.Mock
	store    *storage.Memory
	archiver *fakeArchiver
}

func testConfig() Config {
	return Config{
		Port:              "0",
		TickInterval:      100 * time.Millisecond,
		WriteTimeout:      time.Second,
		SnapshotChunkSize: 256,
		JwtSecret:         testSecret,
		JwtIssuer:         "slbaduk",
		Match: entities.MatchConfig{
			BoardSize:     5,
			TurnTimeLimit: 45 * time.Second,
			ItemUses:      2,
			CancelTimeout: 30 * time.Second,
		},
		Game: game.DefaultOptions(),
		Rewards: Rewards{
			WinExperience:      30,
			LossExperience:     10,
			WinGold:            20,
			ExperiencePerLevel: 100,
		},
	}
}

func newTestEnv(t *testing.T, cfg Config, opts ...Option) *testEnv {
	t.Helper()
	// Runtime goroutines may log after the test body returns.
	logging.UseLogger(zap.NewNop())

	mock := clock.NewMock()
	mock.Set(t0)
	store := storage.NewMemory()
	archiver := &fakeArchiver{}
	opts = append([]Option{WithClock(mock), WithArchiver(archiver)}, opts...)
	srv := NewServer(cfg, store, opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.stopMatches()
		ts.Close()
	})
	return &testEnv{srv: srv, http: ts, clock: mock, store: store, archiver: archiver}
}

func token(t *testing.T, userId string) string {
	t.Helper()
	tok, err := auth.NewJwt(userId, []byte(testSecret), "slbaduk", time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func (e *testEnv) do(t *testing.T, method, path, userId string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.http.URL+path, &buf)
	require.NoError(t, err)
	if userId != "" {
		req.Header.Set("Authorization", token(t, userId))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) createMatch(t *testing.T) *entities.MatchSession {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/matches", "alice", dtos.MatchCreateRequest{BlackId: "alice", WhiteId: "bob"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var s entities.MatchSession
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&s))
	return &s
}

func (e *testEnv) act(t *testing.T, matchId, userId string, actionType game.ActionType, payload any) dtos.ActionResponse {
	t.Helper()
	req := dtos.ActionRequest{RequestId: "r-" + string(actionType), ActionType: string(actionType)}
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		req.Payload = data
	}
	resp := e.do(t, http.MethodPost, "/matches/"+matchId+"/actions", userId, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out dtos.ActionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (e *testEnv) getMatch(t *testing.T, matchId string) (*entities.MatchSession, int) {
	t.Helper()
	resp := e.do(t, http.MethodGet, "/matches/"+matchId, "alice", nil)
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode
	}
	var s entities.MatchSession
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&s))
	return &s, resp.StatusCode
}

// liveState reads the committed state of a running match without going
// through HTTP, so it is safe inside Eventually conditions.
func (e *testEnv) liveState(matchId string) *entities.MatchSession {
	value, ok := e.srv.matches.Load(matchId)
	if !ok {
		return nil
	}
	return value.(*Match).state()
}

func place(x, y int) map[string]any {
	return map[string]any{"point": entities.Point{X: x, Y: y}}
}

func fragmentSession(t *testing.T, resp dtos.ActionResponse) *entities.MatchSession {
	t.Helper()
	require.NotNil(t, resp.StateFragment)
	var s entities.MatchSession
	require.NoError(t, json.Unmarshal(resp.StateFragment.Fragment, &s))
	return &s
}

func (e *testEnv) dial(t *testing.T, matchId, userId string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(e.http.URL, "http") + "/matches/" + matchId + "/stream"
	header := http.Header{}
	header.Set("Authorization", token(t, userId))
	conn, resp, err := websocket.DefaultDialer.Dial(u, header)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readPush(t *testing.T, conn *websocket.Conn) dtos.Push {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var push dtos.Push
	require.NoError(t, conn.ReadJSON(&push))
	return push
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(dtos.Push) bool) dtos.Push {
	t.Helper()
	for {
		push := readPush(t, conn)
		if match(push) {
			return push
		}
	}
}

// readSnapshot consumes the greeting and a full snapshot transfer.
func readSnapshot(t *testing.T, conn *websocket.Conn) dtos.Snapshot {
	t.Helper()
	hello := readPush(t, conn)
	require.Equal(t, dtos.PushConnectionEstablished, hello.Type)
	assert.NotEmpty(t, hello.ConnectionId)

	start := readUntil(t, conn, func(p dtos.Push) bool { return p.Type == dtos.PushSnapshotStart })
	var sb strings.Builder
	for i := 0; i < start.TotalChunks; i++ {
		chunk := readUntil(t, conn, func(p dtos.Push) bool { return p.Type == dtos.PushSnapshotChunk })
		require.Equal(t, start.TransferId, chunk.TransferId)
		require.Equal(t, i, chunk.Index)
		sb.WriteString(chunk.Content)
		if chunk.IsLast {
			require.Equal(t, start.TotalChunks-1, i)
		}
	}
	var snapshot dtos.Snapshot
	require.NoError(t, json.Unmarshal([]byte(sb.String()), &snapshot))
	return snapshot
}

func TestUnauthorizedRequests(t *testing.T) {
	env := newTestEnv(t, testConfig())

	resp := env.do(t, http.MethodPost, "/matches", "", dtos.MatchCreateRequest{BlackId: "alice", WhiteId: "bob"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/matches/m1/actions", "", dtos.ActionRequest{ActionType: "pass"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/matches", "mallory", dtos.MatchCreateRequest{BlackId: "alice", WhiteId: "bob"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestUnknownMatch(t *testing.T) {
	env := newTestEnv(t, testConfig())
	_, status := env.getMatch(t, "missing")
	assert.Equal(t, http.StatusNotFound, status)

	resp := env.do(t, http.MethodPost, "/matches/missing/actions", "alice", dtos.ActionRequest{ActionType: "pass"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSyncChannelActions(t *testing.T) {
	env := newTestEnv(t, testConfig())
	created := env.createMatch(t)
	assert.Equal(t, entities.StatusWaiting, created.Status)

	resp := env.act(t, created.Id, "alice", game.ActionPlace, place(2, 2))
	require.True(t, resp.Accepted, resp.Detail)
	assert.Equal(t, "r-place", resp.RequestId)
	assert.Equal(t, dtos.MatchEntityId(created.Id), resp.StateFragment.EntityId)
	s := fragmentSession(t, resp)
	assert.Equal(t, entities.StatusPlaying, s.Status)
	assert.Equal(t, created.Version+1, s.Version)
	assert.Equal(t, entities.White, s.CurrentPlayer)

	resp = env.act(t, created.Id, "bob", game.ActionPlace, place(2, 2))
	assert.False(t, resp.Accepted)
	assert.Equal(t, string(game.ReasonInvalidTarget), resp.RejectionReason)
	assert.Equal(t, s.Version, fragmentSession(t, resp).Version)

	resp = env.act(t, created.Id, "alice", game.ActionPlace, place(1, 1))
	assert.False(t, resp.Accepted)
	assert.Equal(t, string(game.ReasonWrongTurn), resp.RejectionReason)

	resp = env.act(t, created.Id, "mallory", game.ActionPass, nil)
	assert.False(t, resp.Accepted)
	assert.Equal(t, string(game.ReasonInvalidPlayerId), resp.RejectionReason)

	resp = env.act(t, created.Id, "bob", "castle", nil)
	assert.False(t, resp.Accepted)
	assert.Equal(t, string(game.ReasonUnknownAction), resp.RejectionReason)

	stored, err := env.store.GetMatchSession(context.Background(), created.Id)
	require.NoError(t, err)
	assert.Equal(t, s.Version, stored.Version)
}

func TestStreamSnapshotThenUpdates(t *testing.T) {
	env := newTestEnv(t, testConfig())
	created := env.createMatch(t)

	conn := env.dial(t, created.Id, "bob")
	snapshot := readSnapshot(t, conn)
	require.NotNil(t, snapshot.Account)
	assert.Equal(t, "bob", snapshot.Account.Id)
	assert.Equal(t, 1, snapshot.Account.Level)
	require.Len(t, snapshot.Matches, 1)
	assert.Equal(t, created.Id, snapshot.Matches[0].Id)

	resp := env.act(t, created.Id, "alice", game.ActionPlace, place(0, 0))
	require.True(t, resp.Accepted)

	push := readUntil(t, conn, func(p dtos.Push) bool { return p.Type == dtos.PushEntityUpdated })
	assert.Equal(t, dtos.MatchEntityId(created.Id), push.EntityId)
	var s entities.MatchSession
	require.NoError(t, json.Unmarshal(push.Fragment, &s))
	assert.Equal(t, fragmentSession(t, resp).Version, s.Version)
	assert.Equal(t, entities.Black, s.Board.At(entities.Point{X: 0, Y: 0}))
}

// stagePosition leaves Black to move with a stone on (2,4) that slides up
// to (2,2), where White on (2,1) stops it.
func stagePosition(t *testing.T, env *testEnv, matchId string) {
	t.Helper()
	moves := []struct {
		user string
		x, y int
	}{
		{"alice", 2, 4},
		{"bob", 2, 1},
		{"alice", 4, 4},
		{"bob", 1, 2},
		{"alice", 4, 3},
		{"bob", 3, 2},
	}
	for _, mv := range moves {
		resp := env.act(t, matchId, mv.user, game.ActionPlace, place(mv.x, mv.y))
		require.True(t, resp.Accepted, "%s %d,%d: %s", mv.user, mv.x, mv.y, resp.Detail)
	}
}

func TestItemAnimationCompletesOnRuntimeTick(t *testing.T) {
	env := newTestEnv(t, testConfig())
	created := env.createMatch(t)
	stagePosition(t, env, created.Id)

	resp := env.act(t, created.Id, "alice", game.ActionBeginItem, nil)
	require.True(t, resp.Accepted, resp.Detail)
	assert.Equal(t, entities.StatusItemSelecting, fragmentSession(t, resp).Status)

	resp = env.act(t, created.Id, "alice", game.ActionResolveItem, map[string]any{
		"from":      entities.Point{X: 2, Y: 4},
		"direction": "up",
	})
	require.True(t, resp.Accepted, resp.Detail)
	require.NotNil(t, resp.SideEffectPayloads)
	anim := resp.SideEffectPayloads.Animation
	require.NotNil(t, anim)
	assert.Equal(t, entities.Point{X: 2, Y: 2}, anim.To)
	s := fragmentSession(t, resp)
	assert.Equal(t, entities.StatusItemAnimating, s.Status)
	assert.Equal(t, entities.Black, s.Board.At(entities.Point{X: 2, Y: 4}))

	resp = env.act(t, created.Id, "alice", game.ActionResolveItem, map[string]any{
		"from":      entities.Point{X: 4, Y: 4},
		"direction": "up",
	})
	assert.False(t, resp.Accepted)
	assert.Equal(t, string(game.ReasonWrongStatus), resp.RejectionReason)

	require.Eventually(t, func() bool {
		env.clock.Add(250 * time.Millisecond)
		s := env.liveState(created.Id)
		return s != nil && s.Status == entities.StatusPlaying
	}, 5*time.Second, 10*time.Millisecond)

	s, _ = env.getMatch(t, created.Id)
	assert.Nil(t, s.Animation)
	assert.Equal(t, entities.Empty, s.Board.At(entities.Point{X: 2, Y: 4}))
	assert.Equal(t, entities.Black, s.Board.At(entities.Point{X: 2, Y: 2}))
	require.NotNil(t, s.AppliedAnimationMarker)
	assert.True(t, s.AppliedAnimationMarker.Equal(anim.StartTime))
	assert.Equal(t, entities.Black, s.CurrentPlayer)
	assert.Equal(t, 1, s.Player(entities.Black).ItemUses)
}

func TestScoringFallsBackWhenOracleFails(t *testing.T) {
	env := newTestEnv(t, testConfig(), WithOracle(fakeOracle{err: errors.New("analysis down")}))
	created := env.createMatch(t)

	conn := env.dial(t, created.Id, "alice")
	readSnapshot(t, conn)

	require.True(t, env.act(t, created.Id, "alice", game.ActionPlace, place(0, 0)).Accepted)
	require.True(t, env.act(t, created.Id, "bob", game.ActionPass, nil).Accepted)
	require.True(t, env.act(t, created.Id, "alice", game.ActionPass, nil).Accepted)

	ended := readUntil(t, conn, func(p dtos.Push) bool {
		if p.Type != dtos.PushEntityUpdated || p.EntityId != dtos.MatchEntityId(created.Id) {
			return false
		}
		var s entities.MatchSession
		require.NoError(t, json.Unmarshal(p.Fragment, &s))
		return s.Status == entities.StatusEnded
	})
	var s entities.MatchSession
	require.NoError(t, json.Unmarshal(ended.Fragment, &s))
	require.NotNil(t, s.Result)
	assert.Equal(t, entities.Black, s.Result.Winner)
	assert.Equal(t, "score", s.Result.Method)
	assert.Equal(t, 1.0, s.Result.Score)

	accountPush := readUntil(t, conn, func(p dtos.Push) bool {
		return p.EntityId == dtos.AccountEntityId("alice")
	})
	var fragment dtos.AccountFragment
	require.NoError(t, json.Unmarshal(accountPush.Fragment, &fragment))
	require.NotNil(t, fragment.Gold)
	assert.Equal(t, int64(20), *fragment.Gold)
	assert.Greater(t, *fragment.Rating, 1500.0)

	deleted := readUntil(t, conn, func(p dtos.Push) bool { return p.Type == dtos.PushEntityDeleted })
	assert.Equal(t, dtos.MatchEntityId(created.Id), deleted.EntityId)

	require.Eventually(t, func() bool {
		return len(env.archiver.sessions()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	_, err := env.store.GetMatchSession(context.Background(), created.Id)
	assert.ErrorIs(t, err, storage.ErrMatchSessionNotFound)
	bob, err := env.store.GetAccount(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(10), bob.Experience)
	assert.Equal(t, int64(0), bob.Gold)
}

func TestScoringUsesOracle(t *testing.T) {
	env := newTestEnv(t, testConfig(), WithOracle(fakeOracle{est: game.ScoreEstimate{BlackLead: -4.5}}))
	created := env.createMatch(t)

	require.True(t, env.act(t, created.Id, "alice", game.ActionPlace, place(0, 0)).Accepted)
	require.True(t, env.act(t, created.Id, "bob", game.ActionPass, nil).Accepted)
	require.True(t, env.act(t, created.Id, "alice", game.ActionPass, nil).Accepted)

	require.Eventually(t, func() bool {
		return len(env.archiver.sessions()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	archived := env.archiver.sessions()[0]
	assert.Equal(t, entities.White, archived.Result.Winner)
	assert.Equal(t, -4.5, archived.Result.Score)
}

func TestResignEndsMatchForWatchers(t *testing.T) {
	env := newTestEnv(t, testConfig())
	created := env.createMatch(t)
	require.True(t, env.act(t, created.Id, "alice", game.ActionPlace, place(1, 1)).Accepted)

	conn := env.dial(t, created.Id, "bob")
	readSnapshot(t, conn)

	require.True(t, env.act(t, created.Id, "alice", game.ActionResign, nil).Accepted)
	bobAccount := readUntil(t, conn, func(p dtos.Push) bool {
		return p.EntityId == dtos.AccountEntityId("bob")
	})
	var fragment dtos.AccountFragment
	require.NoError(t, json.Unmarshal(bobAccount.Fragment, &fragment))
	assert.Equal(t, int64(30), *fragment.Experience)

	readUntil(t, conn, func(p dtos.Push) bool { return p.Type == dtos.PushEntityDeleted })

	_, status := env.getMatch(t, created.Id)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestTurnTimeoutEndsMatch(t *testing.T) {
	env := newTestEnv(t, testConfig())
	created := env.createMatch(t)
	require.True(t, env.act(t, created.Id, "alice", game.ActionPlace, place(1, 1)).Accepted)

	require.Eventually(t, func() bool {
		env.clock.Add(5 * time.Second)
		return len(env.archiver.sessions()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	archived := env.archiver.sessions()[0]
	assert.Equal(t, "timeout", archived.Result.Method)
	assert.Equal(t, entities.Black, archived.Result.Winner)
}

func TestIdleMatchUnloadsAndReloads(t *testing.T) {
	cfg := testConfig()
	cfg.IdleTimeout = time.Second
	cfg.Match.TurnTimeLimit = time.Hour
	env := newTestEnv(t, cfg)
	created := env.createMatch(t)
	require.True(t, env.act(t, created.Id, "alice", game.ActionPlace, place(1, 1)).Accepted)

	require.Eventually(t, func() bool {
		env.clock.Add(500 * time.Millisecond)
		_, loaded := env.srv.matches.Load(created.Id)
		return !loaded
	}, 5*time.Second, 10*time.Millisecond)

	resp := env.act(t, created.Id, "bob", game.ActionPlace, place(3, 3))
	require.True(t, resp.Accepted, resp.Detail)
	assert.Equal(t, entities.Black, fragmentSession(t, resp).CurrentPlayer)
}

func TestRecoveryOnLoadSettlesStaleAnimation(t *testing.T) {
	env := newTestEnv(t, testConfig())

	s := game.NewSession("m-stale", "alice", "bob", testConfig().Match, t0.Add(-time.Minute))
	s.Board.Set(entities.Point{X: 0, Y: 4}, entities.Black)
	left := 20 * time.Second
	s.Status = entities.StatusItemAnimating
	s.PausedTurnTimeLeft = &left
	s.ItemUsedThisTurn = true
	s.Animation = &entities.AnimationDescriptor{
		Item:      game.SlideItemKind,
		Kind:      game.AnimationSlide,
		From:      entities.Point{X: 0, Y: 4},
		To:        entities.Point{X: 0, Y: 0},
		Player:    entities.Black,
		StartTime: t0.Add(-30 * time.Second),
		Duration:  2000,
	}
	require.NoError(t, env.store.PutMatchSession(context.Background(), s, 0))

	got, status := env.getMatch(t, "m-stale")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, entities.StatusPlaying, got.Status)
	assert.Equal(t, entities.Black, got.Board.At(entities.Point{X: 0, Y: 0}))
	assert.Equal(t, entities.Empty, got.Board.At(entities.Point{X: 0, Y: 4}))
	require.NotNil(t, got.TurnDeadline)
	assert.True(t, t0.Add(left).Equal(*got.TurnDeadline))

	stored, err := env.store.GetMatchSession(context.Background(), "m-stale")
	require.NoError(t, err)
	assert.Equal(t, s.Version+1, stored.Version)
}

func TestRuntimeSavesOverItsLastPersistedVersion(t *testing.T) {
	env := newTestEnv(t, testConfig())
	created := env.createMatch(t)
	ctx := context.Background()

	resp := env.act(t, created.Id, "alice", game.ActionPlace, place(2, 2))
	require.True(t, resp.Accepted, resp.Detail)
	resp = env.act(t, created.Id, "bob", game.ActionPlace, place(0, 0))
	require.True(t, resp.Accepted, resp.Detail)

	stored, err := env.store.GetMatchSession(ctx, created.Id)
	require.NoError(t, err)
	require.Equal(t, int64(3), stored.Version)

	// Another writer moves the stored session on behind the runtime.
	stored.Version++
	require.NoError(t, env.store.PutMatchSession(ctx, stored, 3))

	resp = env.act(t, created.Id, "alice", game.ActionPlace, place(4, 4))
	require.True(t, resp.Accepted, resp.Detail)
	assert.Equal(t, int64(4), fragmentSession(t, resp).Version)

	after, err := env.store.GetMatchSession(ctx, created.Id)
	require.NoError(t, err)
	assert.Equal(t, int64(4), after.Version)
	assert.Equal(t, entities.Empty, after.Board.At(entities.Point{X: 4, Y: 4}))
}
