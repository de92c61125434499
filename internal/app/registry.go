package app

import (
	"context"
	"sync"

	"github.com/dkeye/classroom/internal/core"
	"github.com/dkeye/classroom/internal/domain"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var errNotJoined = errors.Wrap(domain.ErrNotFound, "connection has not joined a session")

// connEntry is the state of one live signaling channel. Guarded by mu.
// Lock order is always connection then session.
type connEntry struct {
	mu        sync.Mutex
	id        domain.ConnectionID
	cancel    context.CancelFunc
	sessionID domain.SessionID
	member    domain.Member
	bound     bool
	closing   bool

	producerTransport domain.TransportID
	consumerTransport domain.TransportID
	producers         map[domain.ProducerID]domain.ProducerRecord
	consumers         map[domain.ConsumerID]domain.ConsumerRecord
}

func (e *connEntry) snapshotLocked() ConnSnapshot {
	snap := ConnSnapshot{
		ConnectionID:      e.id,
		SessionID:         e.sessionID,
		Member:            e.member,
		Bound:             e.bound,
		ProducerTransport: e.producerTransport,
		ConsumerTransport: e.consumerTransport,
		Producers:         make([]domain.ProducerRecord, 0, len(e.producers)),
		Consumers:         make([]domain.ConsumerRecord, 0, len(e.consumers)),
	}
	for _, p := range e.producers {
		snap.Producers = append(snap.Producers, p)
	}
	for _, c := range e.consumers {
		snap.Consumers = append(snap.Consumers, c)
	}
	return snap
}

// ConnSnapshot is a consistent point-in-time copy of a connection.
type ConnSnapshot struct {
	ConnectionID      domain.ConnectionID
	SessionID         domain.SessionID
	Member            domain.Member
	Bound             bool
	ProducerTransport domain.TransportID
	ConsumerTransport domain.TransportID
	Producers         []domain.ProducerRecord
	Consumers         []domain.ConsumerRecord
}

func (s ConnSnapshot) UserID() domain.UserID { return s.Member.User.ID }

func (s ConnSnapshot) Transports() []domain.TransportID {
	out := make([]domain.TransportID, 0, 2)
	if s.ProducerTransport != "" {
		out = append(out, s.ProducerTransport)
	}
	if s.ConsumerTransport != "" {
		out = append(out, s.ConsumerTransport)
	}
	return out
}

// Binding is what a joined connection is scoped to.
type Binding struct {
	SessionID domain.SessionID
	Member    domain.Member
}

// Registry is the Connection State Table. It validates session membership
// through the Session Registry and keeps producer ownership in step with it.
type Registry struct {
	mu       sync.RWMutex
	conns    map[domain.ConnectionID]*connEntry
	sessions *Sessions
}

func NewRegistry(sessions *Sessions) *Registry {
	return &Registry{
		conns:    make(map[domain.ConnectionID]*connEntry),
		sessions: sessions,
	}
}

// Open creates the entry for a freshly accepted channel. cancel is invoked by Cancel.
func (r *Registry) Open(cid domain.ConnectionID, cancel context.CancelFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[cid]; ok {
		return errors.Wrapf(domain.ErrAlreadyExists, "connection %s", cid)
	}
	r.conns[cid] = &connEntry{
		id:        cid,
		cancel:    cancel,
		producers: make(map[domain.ProducerID]domain.ProducerRecord),
		consumers: make(map[domain.ConsumerID]domain.ConsumerRecord),
	}
	log.Debug().Str("module", "app.conns").Str("conn", string(cid)).Msg("connection opened")
	return nil
}

// lock returns the entry locked, or NotFound for unknown and closing connections.
func (r *Registry) lock(cid domain.ConnectionID) (*connEntry, error) {
	r.mu.RLock()
	e, ok := r.conns[cid]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "connection %s", cid)
	}
	e.mu.Lock()
	if e.closing {
		e.mu.Unlock()
		return nil, errors.Wrapf(domain.ErrNotFound, "connection %s is closing", cid)
	}
	return e, nil
}

func (r *Registry) lockBound(cid domain.ConnectionID) (*connEntry, error) {
	e, err := r.lock(cid)
	if err != nil {
		return nil, err
	}
	if !e.bound {
		e.mu.Unlock()
		return nil, errNotJoined
	}
	return e, nil
}

// Bind associates the connection with a session member exactly once.
func (r *Registry) Bind(cid domain.ConnectionID, sid domain.SessionID, uid domain.UserID) (domain.Member, error) {
	e, err := r.lock(cid)
	if err != nil {
		return domain.Member{}, err
	}
	defer e.mu.Unlock()
	if e.bound {
		return domain.Member{}, errors.Wrapf(domain.ErrAlreadyBound, "connection %s bound to session %s", cid, e.sessionID)
	}
	m, err := r.sessions.Attach(sid, uid)
	if err != nil {
		return domain.Member{}, err
	}
	e.sessionID, e.member, e.bound = sid, m, true
	log.Info().Str("module", "app.conns").Str("conn", string(cid)).Str("session", string(sid)).Str("user", string(uid)).Msg("connection bound")
	return m, nil
}

func (r *Registry) Binding(cid domain.ConnectionID) (Binding, error) {
	e, err := r.lockBound(cid)
	if err != nil {
		return Binding{}, err
	}
	defer e.mu.Unlock()
	return Binding{SessionID: e.sessionID, Member: e.member}, nil
}

// Transport returns the connection's transport of the given direction.
func (r *Registry) Transport(cid domain.ConnectionID, dir core.Direction) (domain.TransportID, error) {
	e, err := r.lockBound(cid)
	if err != nil {
		return "", err
	}
	defer e.mu.Unlock()
	id := e.transportLocked(dir)
	if id == "" {
		return "", errors.Wrapf(domain.ErrNotFound, "no %s transport on connection %s", dir, cid)
	}
	return id, nil
}

func (e *connEntry) transportLocked(dir core.Direction) domain.TransportID {
	if dir == core.DirectionSend {
		return e.producerTransport
	}
	return e.consumerTransport
}

// HasTransport reports whether a transport of the given direction is already set.
func (r *Registry) HasTransport(cid domain.ConnectionID, dir core.Direction) (bool, error) {
	e, err := r.lockBound(cid)
	if err != nil {
		return false, err
	}
	defer e.mu.Unlock()
	return e.transportLocked(dir) != "", nil
}

// SetTransport stores the transport handle. A second transport of the same
// direction is rejected with AlreadyExists.
func (r *Registry) SetTransport(cid domain.ConnectionID, dir core.Direction, id domain.TransportID) error {
	e, err := r.lockBound(cid)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()
	if e.transportLocked(dir) != "" {
		return errors.Wrapf(domain.ErrAlreadyExists, "%s transport on connection %s", dir, cid)
	}
	if dir == core.DirectionSend {
		e.producerTransport = id
	} else {
		e.consumerTransport = id
	}
	return nil
}

// SetProducerTransport and SetConsumerTransport are shorthands for SetTransport.
func (r *Registry) SetProducerTransport(cid domain.ConnectionID, id domain.TransportID) error {
	return r.SetTransport(cid, core.DirectionSend, id)
}

func (r *Registry) SetConsumerTransport(cid domain.ConnectionID, id domain.TransportID) error {
	return r.SetTransport(cid, core.DirectionRecv, id)
}

// OwnsTransport resolves a transport id to its direction if this connection owns it.
func (r *Registry) OwnsTransport(cid domain.ConnectionID, id domain.TransportID) (core.Direction, error) {
	e, err := r.lockBound(cid)
	if err != nil {
		return "", err
	}
	defer e.mu.Unlock()
	switch {
	case id == "":
	case id == e.producerTransport:
		return core.DirectionSend, nil
	case id == e.consumerTransport:
		return core.DirectionRecv, nil
	}
	return "", errors.Wrapf(domain.ErrNotFound, "transport %s on connection %s", id, cid)
}

// AddOwnedProducer commits a producer into the connection and its session in
// one step. It fails if the connection started tearing down in the meantime.
func (r *Registry) AddOwnedProducer(cid domain.ConnectionID, id domain.ProducerID, kind domain.MediaKind) (domain.ProducerRecord, error) {
	e, err := r.lockBound(cid)
	if err != nil {
		return domain.ProducerRecord{}, err
	}
	defer e.mu.Unlock()
	rec := domain.ProducerRecord{ID: id, Kind: kind, ConnectionID: cid, SessionID: e.sessionID}
	info := domain.ProducerInfo{ID: id, Kind: kind, UserID: e.member.User.ID}
	if err := r.sessions.RecordProducer(e.sessionID, info); err != nil {
		return domain.ProducerRecord{}, err
	}
	e.producers[id] = rec
	return rec, nil
}

// RemoveOwnedProducer drops the producer from the connection and its session.
// It reports false when the connection does not own it.
func (r *Registry) RemoveOwnedProducer(cid domain.ConnectionID, id domain.ProducerID) (domain.ProducerRecord, bool) {
	e, err := r.lockBound(cid)
	if err != nil {
		return domain.ProducerRecord{}, false
	}
	defer e.mu.Unlock()
	rec, ok := e.producers[id]
	if !ok {
		return domain.ProducerRecord{}, false
	}
	delete(e.producers, id)
	r.sessions.RemoveProducer(e.sessionID, id)
	return rec, true
}

// OwnsProducer reports whether the connection owns the producer.
func (r *Registry) OwnsProducer(cid domain.ConnectionID, id domain.ProducerID) bool {
	e, err := r.lockBound(cid)
	if err != nil {
		return false
	}
	defer e.mu.Unlock()
	_, ok := e.producers[id]
	return ok
}

// ProducerCount returns how many producers the connection owns.
func (r *Registry) ProducerCount(cid domain.ConnectionID) int {
	e, err := r.lockBound(cid)
	if err != nil {
		return 0
	}
	defer e.mu.Unlock()
	return len(e.producers)
}

// AddOwnedConsumer commits a consumer. The tracked producer must still be live
// in the connection's session, so a consumer never outlives a closed producer.
func (r *Registry) AddOwnedConsumer(cid domain.ConnectionID, c domain.ConsumerRecord) error {
	e, err := r.lockBound(cid)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()
	if _, err := r.sessions.Producer(e.sessionID, c.ProducerID); err != nil {
		return err
	}
	c.ConnectionID = cid
	e.consumers[c.ID] = c
	return nil
}

func (r *Registry) RemoveOwnedConsumer(cid domain.ConnectionID, id domain.ConsumerID) bool {
	e, err := r.lockBound(cid)
	if err != nil {
		return false
	}
	defer e.mu.Unlock()
	if _, ok := e.consumers[id]; !ok {
		return false
	}
	delete(e.consumers, id)
	return true
}

// ConsumersOf lists the consumers of cid that track producer pid.
func (r *Registry) ConsumersOf(cid domain.ConnectionID, pid domain.ProducerID) []domain.ConsumerID {
	e, err := r.lockBound(cid)
	if err != nil {
		return nil
	}
	defer e.mu.Unlock()
	var out []domain.ConsumerID
	for id, c := range e.consumers {
		if c.ProducerID == pid {
			out = append(out, id)
		}
	}
	return out
}

func (r *Registry) entries() []*connEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*connEntry, 0, len(r.conns))
	for _, e := range r.conns {
		out = append(out, e)
	}
	return out
}

// DropConsumersOf removes every consumer in the session that tracks pid and
// returns what was removed. Closing connections are skipped; their own
// teardown handles them.
func (r *Registry) DropConsumersOf(sid domain.SessionID, pid domain.ProducerID) []domain.ConsumerRecord {
	var dropped []domain.ConsumerRecord
	for _, e := range r.entries() {
		e.mu.Lock()
		if e.bound && !e.closing && e.sessionID == sid {
			for id, c := range e.consumers {
				if c.ProducerID == pid {
					delete(e.consumers, id)
					dropped = append(dropped, c)
				}
			}
		}
		e.mu.Unlock()
	}
	return dropped
}

// ConnectionsOf lists live connections bound to the user in the session.
func (r *Registry) ConnectionsOf(sid domain.SessionID, uid domain.UserID) []domain.ConnectionID {
	var out []domain.ConnectionID
	for _, e := range r.entries() {
		e.mu.Lock()
		if e.bound && !e.closing && e.sessionID == sid && e.member.User.ID == uid {
			out = append(out, e.id)
		}
		e.mu.Unlock()
	}
	return out
}

// Snapshot returns a consistent view of the connection.
func (r *Registry) Snapshot(cid domain.ConnectionID) (ConnSnapshot, error) {
	e, err := r.lock(cid)
	if err != nil {
		return ConnSnapshot{}, err
	}
	defer e.mu.Unlock()
	return e.snapshotLocked(), nil
}

// BeginTeardown marks the connection as closing, withdraws its producers from
// the session and returns the final snapshot. It reports false if the
// connection is unknown or already tearing down, so teardown runs at most once.
func (r *Registry) BeginTeardown(cid domain.ConnectionID) (ConnSnapshot, bool) {
	r.mu.RLock()
	e, ok := r.conns[cid]
	r.mu.RUnlock()
	if !ok {
		return ConnSnapshot{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closing {
		return ConnSnapshot{}, false
	}
	e.closing = true
	snap := e.snapshotLocked()
	if e.bound {
		for pid := range e.producers {
			r.sessions.RemoveProducer(e.sessionID, pid)
		}
	}
	return snap, true
}

// Forget removes all state for the connection. Called once cleanup is done.
func (r *Registry) Forget(cid domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, cid)
	log.Debug().Str("module", "app.conns").Str("conn", string(cid)).Msg("connection forgotten")
}

// Cancel fires the connection's cancel func, which makes its adapter close the channel.
func (r *Registry) Cancel(cid domain.ConnectionID) bool {
	r.mu.RLock()
	e, ok := r.conns[cid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.cancel != nil {
		e.cancel()
	}
	log.Info().Str("module", "app.conns").Str("conn", string(cid)).Msg("canceled connection")
	return true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
