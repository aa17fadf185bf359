package compose_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-admin/core"
	"github.com/trezcool/masomo-admin/core/compose"
	"github.com/trezcool/masomo-admin/core/course"
	"github.com/trezcool/masomo-admin/core/message"
	"github.com/trezcool/masomo-admin/core/recipient"
	"github.com/trezcool/masomo-admin/tests"
)

type managerFixture struct {
	mgr        *compose.Manager
	dir        *testutil.StubDirectory
	dispatcher *testutil.Dispatcher
	caches     *message.Caches
}

func newManager(opts compose.Options) managerFixture {
	logger, _ := testutil.NewLogger()
	f := managerFixture{
		dir:        &testutil.StubDirectory{Classes: testutil.Classes()},
		dispatcher: &testutil.Dispatcher{},
		caches:     message.NewCaches(),
	}
	f.mgr = compose.NewManager(f.dir, f.dir, f.dispatcher, f.caches, testutil.NewValidator(), logger, opts)
	return f
}

func open(t *testing.T, f managerFixture) *compose.Session {
	sess, err := f.mgr.Open(context.Background(), testutil.CourseID, testutil.Professor())
	require.NoError(t, err)
	return sess
}

func waitSession(t *testing.T, sess *compose.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sess.Wait(ctx))
}

func TestManager_Open(t *testing.T) {
	t.Run("roster failure", func(t *testing.T) {
		f := newManager(compose.Options{})
		f.dir.ClassesErr = errors.New("directory unavailable")

		_, err := f.mgr.Open(context.Background(), testutil.CourseID, testutil.Professor())
		assert.True(t, core.IsNetworkError(err))
		assert.Equal(t, 0, f.mgr.Len())
	})

	t.Run("too many sessions", func(t *testing.T) {
		f := newManager(compose.Options{MaxSessions: 1})
		sess := open(t, f)

		_, err := f.mgr.Open(context.Background(), testutil.CourseID, testutil.Professor())
		assert.Equal(t, compose.ErrTooManySessions, err)

		sess.Close()
		open(t, f)
	})

	t.Run("initial snapshot", func(t *testing.T) {
		f := newManager(compose.Options{})
		snap := open(t, f).Snapshot()

		assert.NotEmpty(t, snap.ID)
		assert.Equal(t, testutil.CourseID, snap.CourseID)
		assert.Equal(t, compose.Idle, snap.State)
		assert.True(t, snap.Mode.AllStudents, "a composition starts addressed to every student")
		assert.Equal(t, []course.Student{testutil.Alice, testutil.Bob, testutil.Carol, testutil.Dave}, snap.Recipients)
		assert.Equal(t, []compose.ClassInfo{
			{ID: 10, Name: "Class A", Students: 2},
			{ID: 20, Name: "Class B", Students: 3},
		}, snap.Classes)
		assert.False(t, snap.Closed)
	})
}

func TestManager_Get(t *testing.T) {
	f := newManager(compose.Options{})
	sess := open(t, f)

	got, err := f.mgr.Get(sess.ID(), testutil.Professor())
	require.NoError(t, err)
	assert.Same(t, sess, got)

	_, err = f.mgr.Get(sess.ID(), message.Professor{ID: "someone-else"})
	assert.Equal(t, compose.ErrNotSessionAuthor, err)

	_, err = f.mgr.Get("unknown", testutil.Professor())
	assert.Equal(t, compose.ErrSessionNotFound, err)

	f.mgr.Close(sess.ID())
	f.mgr.Close(sess.ID())
	_, err = f.mgr.Get(sess.ID(), testutil.Professor())
	assert.Equal(t, compose.ErrSessionNotFound, err)
}

func TestSession_recipients(t *testing.T) {
	f := newManager(compose.Options{})
	sess := open(t, f)

	recipientIDs := func() []int {
		ids := make([]int, 0)
		for _, st := range sess.Snapshot().Recipients {
			ids = append(ids, st.ID)
		}
		return ids
	}

	require.NoError(t, sess.SetMode(recipient.Mode{Classes: []int{20}}))
	assert.Equal(t, []int{2, 3, 4}, recipientIDs())

	added, err := sess.AddIndividual(testutil.Eve)
	require.NoError(t, err)
	assert.True(t, added)
	added, err = sess.AddIndividual(testutil.Eve)
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, []int{2, 3, 4, 5}, recipientIDs())

	removed, err := sess.RemoveByID(3)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, []int{2, 4, 5}, recipientIDs())

	require.NoError(t, sess.SetMode(recipient.Mode{Classes: []int{20, 10}, Individual: true}))
	assert.Equal(t, []int{2, 3, 4, 1, 5}, recipientIDs())

	st, ok := sess.Student(4)
	assert.True(t, ok)
	assert.Equal(t, testutil.Dave, st)
	_, ok = sess.Student(5)
	assert.False(t, ok, "students outside every class are not in the roster")
}

func TestSession_Submit(t *testing.T) {
	f := newManager(compose.Options{})
	sess := open(t, f)

	require.NoError(t, sess.SetDraft("Exam", "<p>Tomorrow</p>"))
	require.NoError(t, sess.SetMode(recipient.Mode{AllStudents: true}))

	vr, err := sess.Submit()
	require.NoError(t, err)
	require.True(t, vr.Valid())
	waitSession(t, sess)

	sent, ok := sess.Controller().Sent()
	require.True(t, ok)
	assert.Equal(t, []int{1, 2, 3, 4}, sent.RecipientIDs())
	assert.Equal(t, 1, f.caches.Get(testutil.CourseID).Len())

	// a sent message closes its session
	snap := sess.Snapshot()
	assert.True(t, snap.Closed)
	assert.Equal(t, compose.Succeeded, snap.State)
	assert.Empty(t, snap.Subject)
	assert.Empty(t, snap.Recipients)
	assert.Equal(t, 0, f.mgr.Len())
	assert.Equal(t, compose.ErrSessionClosed, sess.SetDraft("Again", "Again"))
}

func TestSession_Submit_invalid(t *testing.T) {
	f := newManager(compose.Options{})
	sess := open(t, f)

	vr, err := sess.Submit()
	require.NoError(t, err)
	assert.Equal(t, []message.Fault{message.MissingSubject, message.MissingBody}, vr.Faults)

	snap := sess.Snapshot()
	assert.Equal(t, compose.Idle, snap.State)
	assert.Equal(t, vr.Faults, snap.Faults)
	assert.False(t, snap.Closed)
	assert.Empty(t, f.dispatcher.Calls())
}

func TestSession_Submit_failureKeepsDraft(t *testing.T) {
	f := newManager(compose.Options{})
	f.dispatcher.Err = errors.New("connection reset")
	sess := open(t, f)

	require.NoError(t, sess.SetDraft("Exam", "<p>Tomorrow</p>"))
	_, err := sess.Submit()
	require.NoError(t, err)
	waitSession(t, sess)

	snap := sess.Snapshot()
	assert.Equal(t, compose.Failed, snap.State)
	assert.Equal(t, compose.FailureNetwork, snap.FailedBy)
	assert.NotEmpty(t, snap.Failure)
	assert.Equal(t, "Exam", snap.Subject)
	assert.False(t, snap.Closed)

	require.NoError(t, sess.SetDraft("Exam", "<p>Tomorrow at 8</p>"))
	assert.Equal(t, compose.Idle, sess.Snapshot().State)
}

func TestSession_Close_whileSending(t *testing.T) {
	f := newManager(compose.Options{})
	f.dispatcher.Release = make(chan struct{})
	sess := open(t, f)

	require.NoError(t, sess.SetDraft("Exam", "<p>Tomorrow</p>"))
	_, err := sess.Submit()
	require.NoError(t, err)

	sess.Close()
	assert.Equal(t, 0, f.mgr.Len())
	_, err = sess.Submit()
	assert.Equal(t, compose.ErrSessionClosed, err)

	// the send goes on without its session
	close(f.dispatcher.Release)
	waitSession(t, sess)
	assert.Equal(t, compose.Succeeded, sess.Controller().State())
	assert.Equal(t, 1, f.caches.Get(testutil.CourseID).Len())
}

func TestSession_Search(t *testing.T) {
	f := newManager(compose.Options{})
	f.dir.Students = []course.Student{testutil.Eve}
	sess := open(t, f)

	assert.Equal(t, []course.Student{testutil.Eve}, sess.Search(context.Background(), "ev"))
	assert.Empty(t, sess.Search(context.Background(), "   "))
	assert.Equal(t, []string{"ev"}, f.dir.Searches())

	f.dir.SearchErr = errors.New("timeout")
	assert.Empty(t, sess.Search(context.Background(), "ev"))
}
