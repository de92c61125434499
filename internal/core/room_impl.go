package core

import (
	"sync"

	"github.com/dkeye/classroom/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory notification group.
// It never closes adapter-owned resources.
type roomImpl struct {
	sessionID domain.SessionID
	mu        sync.RWMutex
	byConn    map[domain.ConnectionID]Peer
}

func NewRoomService(id domain.SessionID) RoomService {
	return &roomImpl{
		sessionID: id,
		byConn:    make(map[domain.ConnectionID]Peer),
	}
}

func (r *roomImpl) SessionID() domain.SessionID { return r.sessionID }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

func (r *roomImpl) AddMember(cid domain.ConnectionID, p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byConn[cid] = p
	log.Debug().Str("module", "core.room").Str("session", string(r.sessionID)).Str("conn", string(cid)).Str("user", string(p.Meta().User.ID)).Msg("member added")
}

func (r *roomImpl) RemoveMember(cid domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byConn, cid)
	log.Debug().Str("module", "core.room").Str("session", string(r.sessionID)).Str("conn", string(cid)).Msg("member removed")
}

func (r *roomImpl) Broadcast(from domain.ConnectionID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for cid, p := range r.byConn {
		if from != "" && cid == from {
			continue
		}
		if err := p.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, p)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomImpl) MembersSnapshot() []domain.MemberDTO {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.MemberDTO, 0, len(r.byConn))
	for _, p := range r.byConn {
		out = append(out, p.Meta().DTO())
	}
	return out
}
