package app

import (
	"sort"
	"sync"
	"time"

	"github.com/dkeye/classroom/internal/domain"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// session is one classroom. All fields are guarded by mu.
type session struct {
	mu        sync.Mutex
	id        domain.SessionID
	name      string
	teacher   domain.User
	students  []domain.User
	producers map[domain.ProducerID]domain.ProducerInfo
	order     []domain.ProducerID
	live      bool
	createdAt time.Time

	// joined connections per user
	online map[domain.UserID]int
	// question message ids; true once answered
	questions map[string]bool
	sharing   domain.UserID
}

func (s *session) infoLocked() domain.SessionInfo {
	info := domain.SessionInfo{
		ID:        s.id,
		Name:      s.name,
		Teacher:   s.teacher,
		Students:  append([]domain.User(nil), s.students...),
		Producers: make([]domain.ProducerInfo, 0, len(s.order)),
		Live:      s.live,
		Sharing:   s.sharing,
		CreatedAt: s.createdAt,
	}
	for _, pid := range s.order {
		info.Producers = append(info.Producers, s.producers[pid])
	}
	return info
}

func (s *session) memberLocked(uid domain.UserID) (domain.Member, bool) {
	if s.teacher.ID == uid {
		return domain.NewMember(s.teacher, domain.RoleTeacher), true
	}
	for _, st := range s.students {
		if st.ID == uid {
			return domain.NewMember(st, domain.RoleStudent), true
		}
	}
	return domain.Member{}, false
}

// Sessions is the Session Registry. The map is guarded by mu; each session
// carries its own lock so unrelated sessions never contend.
type Sessions struct {
	mu   sync.RWMutex
	byID map[domain.SessionID]*session
}

func NewSessions() *Sessions {
	return &Sessions{byID: make(map[domain.SessionID]*session)}
}

func (r *Sessions) get(id domain.SessionID) (*session, error) {
	r.mu.RLock()
	s, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "session %s", id)
	}
	return s, nil
}

// CreateSession registers a new session led by a fresh teacher user.
func (r *Sessions) CreateSession(teacherName, sessionName string) (domain.SessionID, domain.User, error) {
	name, err := domain.NormalizeSessionName(sessionName)
	if err != nil {
		return "", domain.User{}, err
	}
	teacher, err := domain.NewUser(teacherName)
	if err != nil {
		return "", domain.User{}, err
	}
	s := &session{
		id:        domain.SessionID(uuid.NewString()),
		name:      name,
		teacher:   *teacher,
		producers: make(map[domain.ProducerID]domain.ProducerInfo),
		online:    make(map[domain.UserID]int),
		questions: make(map[string]bool),
		createdAt: time.Now(),
	}

	r.mu.Lock()
	r.byID[s.id] = s
	r.mu.Unlock()

	log.Info().Str("module", "app.sessions").Str("session", string(s.id)).Str("name", name).Str("teacher", string(teacher.ID)).Msg("session created")
	return s.id, *teacher, nil
}

// JoinSession adds a new student and returns it with the student list as of
// the join, the new student included.
func (r *Sessions) JoinSession(id domain.SessionID, userName string) (domain.User, []domain.User, error) {
	s, err := r.get(id)
	if err != nil {
		return domain.User{}, nil, err
	}
	u, err := domain.NewUser(userName)
	if err != nil {
		return domain.User{}, nil, err
	}

	s.mu.Lock()
	s.students = append(s.students, *u)
	students := append([]domain.User(nil), s.students...)
	s.mu.Unlock()

	log.Info().Str("module", "app.sessions").Str("session", string(id)).Str("user", string(u.ID)).Str("name", u.Username).Msg("student joined")
	return *u, students, nil
}

// FindSession returns a point-in-time copy of the session.
func (r *Sessions) FindSession(id domain.SessionID) (domain.SessionInfo, error) {
	s, err := r.get(id)
	if err != nil {
		return domain.SessionInfo{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.infoLocked(), nil
}

// RecordProducer is idempotent: recording a known producer id again is a no-op.
func (r *Sessions) RecordProducer(id domain.SessionID, p domain.ProducerInfo) error {
	s, err := r.get(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.producers[p.ID]; ok {
		return nil
	}
	s.producers[p.ID] = p
	s.order = append(s.order, p.ID)
	log.Debug().Str("module", "app.sessions").Str("session", string(id)).Str("producer", string(p.ID)).Str("kind", string(p.Kind)).Msg("producer recorded")
	return nil
}

// RemoveProducer reports whether the producer was present. Unknown sessions
// and producers are a no-op.
func (r *Sessions) RemoveProducer(id domain.SessionID, pid domain.ProducerID) bool {
	s, err := r.get(id)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.producers[pid]; !ok {
		return false
	}
	delete(s.producers, pid)
	for i, have := range s.order {
		if have == pid {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	log.Debug().Str("module", "app.sessions").Str("session", string(id)).Str("producer", string(pid)).Msg("producer removed")
	return true
}

// Producer looks up a live producer of the session.
func (r *Sessions) Producer(id domain.SessionID, pid domain.ProducerID) (domain.ProducerInfo, error) {
	s, err := r.get(id)
	if err != nil {
		return domain.ProducerInfo{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.producers[pid]
	if !ok {
		return domain.ProducerInfo{}, errors.Wrapf(domain.ErrNotFound, "producer %s in session %s", pid, id)
	}
	return p, nil
}

// RemoveUser drops a student. Teachers and unknown users are left untouched;
// the session itself always persists.
func (r *Sessions) RemoveUser(id domain.SessionID, uid domain.UserID) {
	s, err := r.get(id)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeStudentLocked(uid)
}

func (s *session) removeStudentLocked(uid domain.UserID) {
	for i, st := range s.students {
		if st.ID == uid {
			s.students = append(s.students[:i], s.students[i+1:]...)
			log.Info().Str("module", "app.sessions").Str("session", string(s.id)).Str("user", string(uid)).Msg("student removed")
			return
		}
	}
}

// Attach resolves uid and counts one more joined connection for it. Lookup
// and count share the session lock, so a concurrent Detach of the user's last
// connection either sees this one or removes the student before it binds.
func (r *Sessions) Attach(id domain.SessionID, uid domain.UserID) (domain.Member, error) {
	s, err := r.get(id)
	if err != nil {
		return domain.Member{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberLocked(uid)
	if !ok {
		return domain.Member{}, errors.Wrapf(domain.ErrNotFound, "user %s in session %s", uid, id)
	}
	s.online[uid]++
	return m, nil
}

// Departure is what Detach changed.
type Departure struct {
	// Remaining joined connections of the user.
	Remaining int
	// StoppedSharing is set when the user's screen share ended with them.
	StoppedSharing bool
}

// Detach releases one joined connection of uid. With the last one gone a
// student is removed and any screen share of theirs ends.
func (r *Sessions) Detach(id domain.SessionID, uid domain.UserID) Departure {
	s, err := r.get(id)
	if err != nil {
		return Departure{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.online[uid] > 1 {
		s.online[uid]--
		return Departure{Remaining: s.online[uid]}
	}
	delete(s.online, uid)
	var d Departure
	if s.sharing == uid {
		s.sharing = ""
		d.StoppedSharing = true
	}
	if s.teacher.ID != uid {
		s.removeStudentLocked(uid)
	}
	return d
}

// SetLive updates the live flag and reports whether it changed.
func (r *Sessions) SetLive(id domain.SessionID, live bool) (bool, error) {
	s, err := r.get(id)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live == live {
		return false, nil
	}
	s.live = live
	return true, nil
}

func (r *Sessions) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// LiveSessions returns the sessions currently streaming, oldest first.
func (r *Sessions) LiveSessions() []domain.SessionInfo {
	r.mu.RLock()
	all := make([]*session, 0, len(r.byID))
	for _, s := range r.byID {
		all = append(all, s)
	}
	r.mu.RUnlock()

	var out []domain.SessionInfo
	for _, s := range all {
		s.mu.Lock()
		if s.live {
			out = append(out, s.infoLocked())
		}
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// StartSharing makes uid the session's screen sharer. It reports false when
// uid already is; another sharer is a conflict.
func (r *Sessions) StartSharing(id domain.SessionID, uid domain.UserID) (bool, error) {
	s, err := r.get(id)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.sharing {
	case uid:
		return false, nil
	case "":
		s.sharing = uid
		return true, nil
	default:
		return false, errors.Wrapf(domain.ErrAlreadyExists, "screen already shared by %s", s.sharing)
	}
}

// StopSharing ends uid's screen share. It reports false when uid was not sharing.
func (r *Sessions) StopSharing(id domain.SessionID, uid domain.UserID) (bool, error) {
	s, err := r.get(id)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sharing != uid {
		return false, nil
	}
	s.sharing = ""
	return true, nil
}

func (r *Sessions) RecordQuestion(id domain.SessionID, msgID string) error {
	s, err := r.get(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.questions[msgID] = false
	s.mu.Unlock()
	return nil
}

// AnswerQuestion marks a recorded question answered and reports whether it
// was still open.
func (r *Sessions) AnswerQuestion(id domain.SessionID, msgID string) (bool, error) {
	s, err := r.get(id)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	answered, ok := s.questions[msgID]
	if !ok {
		return false, errors.Wrapf(domain.ErrNotFound, "question %s in session %s", msgID, id)
	}
	s.questions[msgID] = true
	return !answered, nil
}
