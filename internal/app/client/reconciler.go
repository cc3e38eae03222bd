package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/chess-vn/slbaduk/internal/domains/dtos"
	"github.com/chess-vn/slbaduk/internal/domains/entities"
	"github.com/chess-vn/slbaduk/pkg/logging"
	"go.uber.org/zap"
)

var (
	ErrEntityMismatch = errors.New("fragment does not match entity")
	ErrClosed         = errors.New("reconciler closed")
)

type Options struct {
	// DebounceWindow is how long pushes for an entity are distrusted after a
	// synchronous result for it was merged.
	DebounceWindow time.Duration
	// SnapshotTimeout bounds a snapshot transfer before it is completed with
	// whatever chunks arrived.
	SnapshotTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		DebounceWindow:  2 * time.Second,
		SnapshotTimeout: 5 * time.Second,
	}
}

// Change is reported once for every entity whose local copy moved.
type Change struct {
	EntityId string
	Deleted  bool
}

/*
Reconciler owns the local copy of the account and of every match mirror. It
merges three inputs into them: synchronous action results, push channel
messages and local optimistic writes. All of its methods are safe for
concurrent use; change callbacks run outside the lock.
*/
type Reconciler struct {
	mu    sync.Mutex
	clock clock.Clock
	opts  Options

	connectionId string
	account      *entities.Account
	matches      map[string]*entities.MatchSession
	debounce     map[string]time.Time

	transfer *transfer
	pending  []dtos.Push
	watchdog *clock.Timer

	onChange func(Change)
	// closed drops every input between Reset and the next Open.
	closed bool
}

func NewReconciler(c clock.Clock, opts Options, onChange func(Change)) *Reconciler {
	return &Reconciler{
		clock:    c,
		opts:     opts,
		matches:  make(map[string]*entities.MatchSession),
		debounce: make(map[string]time.Time),
		onChange: onChange,
	}
}

// HandleMessage decodes one push channel frame. Malformed frames are logged
// and dropped.
func (r *Reconciler) HandleMessage(data []byte) {
	var push dtos.Push
	if err := json.Unmarshal(data, &push); err != nil {
		logging.Warn("malformed push dropped", zap.Int("size", len(data)), zap.Error(err))
		return
	}
	r.HandlePush(push)
}

func (r *Reconciler) HandlePush(push dtos.Push) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		logging.Debug("push after reset dropped", zap.String("type", string(push.Type)))
		return
	}
	changes := r.handlePush(push)
	r.mu.Unlock()
	r.notify(changes)
}

func (r *Reconciler) handlePush(push dtos.Push) []Change {
	switch push.Type {
	case dtos.PushConnectionEstablished:
		r.connectionId = push.ConnectionId
		logging.Info("connection established", zap.String("connection_id", push.ConnectionId))
	case dtos.PushSnapshotStart:
		r.beginTransfer(push)
	case dtos.PushSnapshotChunk:
		if r.transfer == nil || r.transfer.id != push.TransferId {
			logging.Warn("chunk outside transfer dropped",
				zap.String("transfer_id", push.TransferId),
				zap.Int("index", push.Index),
			)
			return nil
		}
		r.transfer.add(push)
		if r.transfer.ready() {
			return r.completeTransfer()
		}
	case dtos.PushEntityUpdated, dtos.PushEntityDeleted:
		if r.transfer != nil {
			r.pending = append(r.pending, push)
			return nil
		}
		return r.applyPush(push)
	case dtos.PushError:
		logging.Warn("server error", zap.String("message", push.Message))
	default:
		logging.Warn("unknown push dropped", zap.String("type", string(push.Type)))
	}
	return nil
}

func (r *Reconciler) beginTransfer(start dtos.Push) {
	if r.transfer != nil {
		logging.Warn("snapshot transfer superseded",
			zap.String("transfer_id", r.transfer.id),
			zap.String("next_transfer_id", start.TransferId),
		)
	}
	r.stopWatchdog()
	r.transfer = newTransfer(start)
	id := start.TransferId
	r.watchdog = r.clock.AfterFunc(r.opts.SnapshotTimeout, func() {
		r.expireTransfer(id)
	})
}

func (r *Reconciler) expireTransfer(transferId string) {
	r.mu.Lock()
	if r.transfer == nil || r.transfer.id != transferId {
		r.mu.Unlock()
		return
	}
	logging.Warn("snapshot transfer stalled, forcing completion",
		zap.String("transfer_id", transferId),
		zap.Int("received", len(r.transfer.chunks)),
		zap.Int("total", r.transfer.total),
	)
	changes := r.completeTransfer()
	r.mu.Unlock()
	r.notify(changes)
}

// completeTransfer applies the assembled snapshot, then replays the pushes
// buffered meanwhile in arrival order. A snapshot that cannot be decoded
// leaves the previous state in place.
func (r *Reconciler) completeTransfer() []Change {
	t := r.transfer
	r.transfer = nil
	r.stopWatchdog()

	var changes []Change
	var snapshot dtos.Snapshot
	if err := json.Unmarshal([]byte(t.assemble()), &snapshot); err != nil {
		logging.Warn("incomplete snapshot discarded",
			zap.String("transfer_id", t.id),
			zap.Int("received", len(t.chunks)),
			zap.Error(err),
		)
	} else {
		changes = r.applySnapshot(snapshot)
	}

	pending := r.pending
	r.pending = nil
	for _, push := range pending {
		changes = append(changes, r.applyPush(push)...)
	}
	return changes
}

func (r *Reconciler) applySnapshot(snapshot dtos.Snapshot) []Change {
	var changes []Change
	if a := snapshot.Account; a != nil {
		if r.account != nil && r.account.Id != "" && r.account.Id != a.Id {
			logging.Warn("snapshot for another account rejected",
				zap.String("account_id", r.account.Id),
				zap.String("snapshot_account_id", a.Id),
			)
		} else {
			account := a.Clone()
			r.account = &account
			changes = append(changes, Change{EntityId: dtos.AccountEntityId(account.Id)})
		}
	}

	seen := make(map[string]bool, len(snapshot.Matches))
	for i := range snapshot.Matches {
		s := snapshot.Matches[i]
		seen[s.Id] = true
		if cur, ok := r.matches[s.Id]; ok && cur.Version > s.Version {
			continue
		}
		r.matches[s.Id] = &s
		changes = append(changes, Change{EntityId: dtos.MatchEntityId(s.Id)})
	}
	for id := range r.matches {
		if !seen[id] {
			delete(r.matches, id)
			changes = append(changes, Change{EntityId: dtos.MatchEntityId(id), Deleted: true})
		}
	}
	return changes
}

func (r *Reconciler) applyPush(push dtos.Push) []Change {
	kind, id, ok := dtos.ParseEntityId(push.EntityId)
	if !ok {
		logging.Warn("push for malformed entity dropped", zap.String("entity_id", push.EntityId))
		return nil
	}

	if push.Type == dtos.PushEntityDeleted {
		if kind != dtos.EntityMatch {
			logging.Warn("unsupported entity deletion", zap.String("entity_id", push.EntityId))
			return nil
		}
		delete(r.debounce, push.EntityId)
		if _, ok := r.matches[id]; !ok {
			return nil
		}
		delete(r.matches, id)
		return []Change{{EntityId: push.EntityId, Deleted: true}}
	}

	switch kind {
	case dtos.EntityAccount:
		if r.debounced(push.EntityId) {
			logging.Debug("account push inside debounce window dropped", zap.String("entity_id", push.EntityId))
			return nil
		}
		var f dtos.AccountFragment
		if err := json.Unmarshal(push.Fragment, &f); err != nil {
			logging.Warn("malformed account fragment dropped", zap.Error(err))
			return nil
		}
		if f.Id == nil {
			f.Id = &id
		}
		return r.mergeAccount(f)
	case dtos.EntityMatch:
		var s entities.MatchSession
		if err := json.Unmarshal(push.Fragment, &s); err != nil {
			logging.Warn("malformed match fragment dropped", zap.Error(err))
			return nil
		}
		if s.Id != id {
			logging.Warn("match fragment for another match dropped",
				zap.String("entity_id", push.EntityId),
				zap.String("match_id", s.Id),
			)
			return nil
		}
		// Inside the window only a strictly newer version gets through, so a
		// push already covered by the sync result is not applied twice.
		if r.debounced(push.EntityId) && !r.newer(&s) {
			logging.Debug("match push inside debounce window dropped",
				zap.String("match_id", id),
				zap.Int64("version", s.Version),
			)
			return nil
		}
		return r.mergeMatch(&s)
	default:
		logging.Warn("push for unknown entity kind dropped", zap.String("entity_id", push.EntityId))
		return nil
	}
}

func (r *Reconciler) mergeAccount(f dtos.AccountFragment) []Change {
	if r.account == nil {
		r.account = &entities.Account{}
	}
	res, err := MergeAccount(r.account, f)
	if err != nil {
		logging.Warn("account update rejected", zap.Error(err))
		return nil
	}
	if !res.Changed {
		return nil
	}
	return []Change{{EntityId: dtos.AccountEntityId(r.account.Id)}}
}

func (r *Reconciler) newer(s *entities.MatchSession) bool {
	cur, ok := r.matches[s.Id]
	return !ok || s.Version > cur.Version
}

func (r *Reconciler) mergeMatch(s *entities.MatchSession) []Change {
	if !r.newer(s) {
		return nil
	}
	r.matches[s.Id] = s
	return []Change{{EntityId: dtos.MatchEntityId(s.Id)}}
}

// debounced reports whether pushes for entityId are still inside the window
// opened by a synchronous result, forgetting expired windows.
func (r *Reconciler) debounced(entityId string) bool {
	deadline, ok := r.debounce[entityId]
	if !ok {
		return false
	}
	if !r.clock.Now().Before(deadline) {
		delete(r.debounce, entityId)
		return false
	}
	return true
}

/*
ApplySyncResult merges the state fragment of a synchronous action result for
entityId. With a fragment, it is merged immediately and pushes for the entity
are distrusted for the debounce window. Without one, any open window is
closed so the next push is trusted.
*/
func (r *Reconciler) ApplySyncResult(entityId string, fragment *dtos.EntityFragment) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	changes, err := r.applySyncResult(entityId, fragment)
	r.mu.Unlock()
	r.notify(changes)
	return err
}

func (r *Reconciler) applySyncResult(entityId string, fragment *dtos.EntityFragment) ([]Change, error) {
	if fragment == nil || len(fragment.Fragment) == 0 {
		delete(r.debounce, entityId)
		return nil, nil
	}
	if fragment.EntityId != entityId {
		return nil, fmt.Errorf("%w: fragment for %s - want %s", ErrEntityMismatch, fragment.EntityId, entityId)
	}
	kind, id, ok := dtos.ParseEntityId(entityId)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrEntityMismatch, entityId)
	}

	var changes []Change
	switch kind {
	case dtos.EntityAccount:
		var f dtos.AccountFragment
		if err := json.Unmarshal(fragment.Fragment, &f); err != nil {
			return nil, fmt.Errorf("failed to decode account fragment: %w", err)
		}
		if f.Id == nil {
			f.Id = &id
		}
		if r.account == nil {
			r.account = &entities.Account{}
		}
		res, err := MergeAccount(r.account, f)
		if err != nil {
			return nil, err
		}
		if res.Changed {
			changes = append(changes, Change{EntityId: entityId})
		}
	case dtos.EntityMatch:
		var s entities.MatchSession
		if err := json.Unmarshal(fragment.Fragment, &s); err != nil {
			return nil, fmt.Errorf("failed to decode match fragment: %w", err)
		}
		if s.Id != id {
			return nil, fmt.Errorf("%w: match %s - want %s", ErrEntityMismatch, s.Id, id)
		}
		changes = r.mergeMatch(&s)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrEntityMismatch, kind)
	}
	r.debounce[entityId] = r.clock.Now().Add(r.opts.DebounceWindow)
	return changes, nil
}

// ApplyLocalAccount merges an optimistic local write. It opens no debounce
// window; the server's next word on the account wins.
func (r *Reconciler) ApplyLocalAccount(f dtos.AccountFragment) (MergeResult, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return MergeResult{}, ErrClosed
	}
	if r.account == nil {
		r.account = &entities.Account{}
	}
	res, err := MergeAccount(r.account, f)
	var changes []Change
	if err == nil && res.Changed {
		changes = []Change{{EntityId: dtos.AccountEntityId(r.account.Id)}}
	}
	r.mu.Unlock()
	r.notify(changes)
	return res, err
}

// Reset discards all local state and pending timers, as on logout. Inputs
// arriving afterwards are dropped until Open is called.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.stopWatchdog()
	r.transfer = nil
	r.pending = nil
	r.connectionId = ""
	r.account = nil
	r.matches = make(map[string]*entities.MatchSession)
	r.debounce = make(map[string]time.Time)
}

// Open accepts inputs again after a Reset.
func (r *Reconciler) Open() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = false
}

func (r *Reconciler) Account() (entities.Account, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.account == nil {
		return entities.Account{}, false
	}
	return r.account.Clone(), true
}

func (r *Reconciler) Match(matchId string) (*entities.MatchSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.matches[matchId]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

func (r *Reconciler) ConnectionId() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connectionId
}

// Assembling reports whether a snapshot transfer is in progress.
func (r *Reconciler) Assembling() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transfer != nil
}

func (r *Reconciler) stopWatchdog() {
	if r.watchdog != nil {
		r.watchdog.Stop()
		r.watchdog = nil
	}
}

func (r *Reconciler) notify(changes []Change) {
	if r.onChange == nil {
		return
	}
	for _, c := range changes {
		r.onChange(c)
	}
}
