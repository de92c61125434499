package app

import (
	"sync"
	"testing"

	"github.com/dkeye/classroom/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSessionValidates(t *testing.T) {
	reg := NewSessions()

	_, _, err := reg.CreateSession("", "Math")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, _, err = reg.CreateSession("Teacher", "  ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, 0, reg.Count())

	sid, teacher, err := reg.CreateSession("Teacher", "Math")
	require.NoError(t, err)
	assert.NotEmpty(t, sid)
	assert.Equal(t, "Teacher", teacher.Username)

	info, err := reg.FindSession(sid)
	require.NoError(t, err)
	assert.Equal(t, "Math", info.Name)
	assert.Equal(t, teacher, info.Teacher)
	assert.Empty(t, info.Students)
	assert.False(t, info.Live)
}

func TestCreateSessionUniqueIDs(t *testing.T) {
	reg := NewSessions()
	seen := map[domain.SessionID]bool{}
	for i := 0; i < 100; i++ {
		sid, _, err := reg.CreateSession("T", "S")
		require.NoError(t, err)
		require.False(t, seen[sid])
		seen[sid] = true
	}
}

func TestJoinSession(t *testing.T) {
	reg := NewSessions()
	_, _, err := reg.JoinSession("missing", "Alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	sid, teacher, err := reg.CreateSession("T", "Math")
	require.NoError(t, err)

	alice, students, err := reg.JoinSession(sid, "Alice")
	require.NoError(t, err)
	assert.Equal(t, []domain.User{alice}, students)
	assert.NotEqual(t, teacher.ID, alice.ID)

	bob, students, err := reg.JoinSession(sid, "Bob")
	require.NoError(t, err)
	assert.Equal(t, []domain.User{alice, bob}, students)

	m, err := reg.Attach(sid, bob.ID)
	require.NoError(t, err)
	assert.False(t, m.IsTeacher())
	m, err = reg.Attach(sid, teacher.ID)
	require.NoError(t, err)
	assert.True(t, m.IsTeacher())
	_, err = reg.Attach(sid, "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = reg.Attach("missing", bob.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDetachRemovesStudentWithLastConnection(t *testing.T) {
	reg := NewSessions()
	sid, teacher, _ := reg.CreateSession("T", "Math")
	alice, _, _ := reg.JoinSession(sid, "Alice")

	for i := 0; i < 2; i++ {
		_, err := reg.Attach(sid, alice.ID)
		require.NoError(t, err)
	}
	_, err := reg.Attach(sid, teacher.ID)
	require.NoError(t, err)

	assert.Equal(t, Departure{Remaining: 1}, reg.Detach(sid, alice.ID))
	info, _ := reg.FindSession(sid)
	assert.Equal(t, []domain.User{alice}, info.Students)

	assert.Equal(t, Departure{}, reg.Detach(sid, alice.ID))
	info, _ = reg.FindSession(sid)
	assert.Empty(t, info.Students)

	// a student gone with their last connection cannot bind again
	_, err = reg.Attach(sid, alice.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Equal(t, Departure{}, reg.Detach(sid, teacher.ID))
	info, _ = reg.FindSession(sid)
	assert.Equal(t, teacher, info.Teacher)
	assert.Equal(t, Departure{}, reg.Detach("missing", teacher.ID))
}

func TestScreenShareSlot(t *testing.T) {
	reg := NewSessions()
	sid, teacher, _ := reg.CreateSession("T", "Math")
	alice, _, _ := reg.JoinSession(sid, "Alice")
	_, err := reg.Attach(sid, alice.ID)
	require.NoError(t, err)

	started, err := reg.StartSharing(sid, alice.ID)
	require.NoError(t, err)
	assert.True(t, started)
	started, err = reg.StartSharing(sid, alice.ID)
	require.NoError(t, err)
	assert.False(t, started)
	_, err = reg.StartSharing(sid, teacher.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	info, _ := reg.FindSession(sid)
	assert.Equal(t, alice.ID, info.Sharing)

	stopped, err := reg.StopSharing(sid, teacher.ID)
	require.NoError(t, err)
	assert.False(t, stopped)

	assert.Equal(t, Departure{StoppedSharing: true}, reg.Detach(sid, alice.ID))
	info, _ = reg.FindSession(sid)
	assert.Empty(t, info.Sharing)

	started, err = reg.StartSharing(sid, teacher.ID)
	require.NoError(t, err)
	assert.True(t, started)
	stopped, err = reg.StopSharing(sid, teacher.ID)
	require.NoError(t, err)
	assert.True(t, stopped)

	_, err = reg.StartSharing("missing", teacher.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestQuestionsAnsweredOnce(t *testing.T) {
	reg := NewSessions()
	sid, _, _ := reg.CreateSession("T", "Math")

	require.NoError(t, reg.RecordQuestion(sid, "m1"))
	assert.ErrorIs(t, reg.RecordQuestion("missing", "m1"), domain.ErrNotFound)

	open, err := reg.AnswerQuestion(sid, "m1")
	require.NoError(t, err)
	assert.True(t, open)
	open, err = reg.AnswerQuestion(sid, "m1")
	require.NoError(t, err)
	assert.False(t, open)

	_, err = reg.AnswerQuestion(sid, "m2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLiveSessions(t *testing.T) {
	reg := NewSessions()
	first, _, _ := reg.CreateSession("T", "Math")
	_, _, _ = reg.CreateSession("T", "Idle")
	second, _, _ := reg.CreateSession("T", "Art")
	assert.Empty(t, reg.LiveSessions())

	_, err := reg.SetLive(second, true)
	require.NoError(t, err)
	_, err = reg.SetLive(first, true)
	require.NoError(t, err)

	live := reg.LiveSessions()
	require.Len(t, live, 2)
	assert.Equal(t, first, live[0].ID)
	assert.Equal(t, second, live[1].ID)
}

func TestRemoveUserKeepsTeacherAndSession(t *testing.T) {
	reg := NewSessions()
	sid, teacher, _ := reg.CreateSession("T", "Math")
	alice, _, _ := reg.JoinSession(sid, "Alice")

	reg.RemoveUser(sid, teacher.ID)
	reg.RemoveUser(sid, "ghost")
	reg.RemoveUser("missing", alice.ID)
	reg.RemoveUser(sid, alice.ID)
	reg.RemoveUser(sid, alice.ID)

	info, err := reg.FindSession(sid)
	require.NoError(t, err)
	assert.Empty(t, info.Students)
	assert.Equal(t, teacher, info.Teacher)
}

func TestProducersIdempotent(t *testing.T) {
	reg := NewSessions()
	sid, teacher, _ := reg.CreateSession("T", "Math")
	p := domain.ProducerInfo{ID: "p1", Kind: domain.KindVideo, UserID: teacher.ID}

	require.NoError(t, reg.RecordProducer(sid, p))
	require.NoError(t, reg.RecordProducer(sid, p))
	assert.ErrorIs(t, reg.RecordProducer("missing", p), domain.ErrNotFound)

	info, _ := reg.FindSession(sid)
	assert.Equal(t, []domain.ProducerInfo{p}, info.Producers)

	got, err := reg.Producer(sid, "p1")
	require.NoError(t, err)
	assert.Equal(t, p, got)

	assert.True(t, reg.RemoveProducer(sid, "p1"))
	assert.False(t, reg.RemoveProducer(sid, "p1"))
	assert.False(t, reg.RemoveProducer("missing", "p1"))
	_, err = reg.Producer(sid, "p1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSetLive(t *testing.T) {
	reg := NewSessions()
	sid, _, _ := reg.CreateSession("T", "Math")

	changed, err := reg.SetLive(sid, true)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, _ = reg.SetLive(sid, true)
	assert.False(t, changed)

	info, _ := reg.FindSession(sid)
	assert.True(t, info.Live)

	_, err = reg.SetLive("missing", true)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStudentSetMatchesJoinsMinusLeaves(t *testing.T) {
	reg := NewSessions()
	sid, _, _ := reg.CreateSession("T", "Math")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		kept = map[domain.UserID]bool{}
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, _, err := reg.JoinSession(sid, "student")
			if !assert.NoError(t, err) {
				return
			}
			if i%3 == 0 {
				reg.RemoveUser(sid, u.ID)
				return
			}
			mu.Lock()
			kept[u.ID] = true
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	info, _ := reg.FindSession(sid)
	got := map[domain.UserID]bool{}
	for _, s := range info.Students {
		got[s.ID] = true
	}
	assert.Equal(t, kept, got)
}
