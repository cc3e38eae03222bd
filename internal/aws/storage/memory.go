package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/chess-vn/slbaduk/internal/domains/dtos"
	"github.com/chess-vn/slbaduk/internal/domains/entities"
)

// Memory keeps match sessions, accounts, connections and match records in
// process. It has the same method set and version semantics as Client and
// backs local runs and tests.
type Memory struct {
	mu          sync.RWMutex
	sessions    map[string]*entities.MatchSession
	accounts    map[string]entities.Account
	connections map[string]entities.Connection
	records     map[string]dtos.MatchRecord
}

func NewMemory() *Memory {
	return &Memory{
		sessions:    make(map[string]*entities.MatchSession),
		accounts:    make(map[string]entities.Account),
		connections: make(map[string]entities.Connection),
		records:     make(map[string]dtos.MatchRecord),
	}
}

func (m *Memory) GetMatchSession(_ context.Context, matchId string) (*entities.MatchSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[matchId]
	if !ok {
		return nil, ErrMatchSessionNotFound
	}
	return s.Clone(), nil
}

func (m *Memory) PutMatchSession(_ context.Context, session *entities.MatchSession, loadedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.sessions[session.Id]
	switch {
	case loadedVersion == 0 && ok:
		return ErrStaleWrite
	case loadedVersion > 0 && (!ok || stored.Version != loadedVersion):
		return ErrStaleWrite
	}
	m.sessions[session.Id] = session.Clone()
	return nil
}

func (m *Memory) DeleteMatchSession(_ context.Context, matchId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, matchId)
	return nil
}

// MatchSessionIds lists every stored session id in lexical order.
func (m *Memory) MatchSessionIds() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Memory) GetAccount(_ context.Context, userId string) (entities.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[userId]
	if !ok {
		return entities.Account{}, ErrAccountNotFound
	}
	return a.Clone(), nil
}

func (m *Memory) PutAccount(_ context.Context, account entities.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.Id] = account.Clone()
	return nil
}

func (m *Memory) GetConnection(_ context.Context, connectionId string) (entities.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.connections[connectionId]
	if !ok {
		return entities.Connection{}, ErrConnectionNotFound
	}
	return c, nil
}

func (m *Memory) PutConnection(_ context.Context, conn entities.Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[conn.Id] = conn
	return nil
}

func (m *Memory) DeleteConnection(_ context.Context, connectionId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.connections, connectionId)
	return nil
}

func (m *Memory) FetchConnections(_ context.Context, matchId string) ([]entities.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var conns []entities.Connection
	for _, c := range m.connections {
		if c.MatchId == matchId {
			conns = append(conns, c)
		}
	}
	sort.Slice(conns, func(i, j int) bool {
		return conns[i].Id < conns[j].Id
	})
	return conns, nil
}

func (m *Memory) PutMatchRecord(_ context.Context, record dtos.MatchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[record.MatchId]; ok {
		return ErrMatchRecordExists
	}
	m.records[record.MatchId] = record
	return nil
}

func (m *Memory) MatchRecord(matchId string) (dtos.MatchRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[matchId]
	return r, ok
}
