package compose

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-admin/core"
	"github.com/trezcool/masomo-admin/core/course"
	"github.com/trezcool/masomo-admin/core/message"
	"github.com/trezcool/masomo-admin/core/recipient"
)

var (
	// errors
	ErrSessionNotFound  = errors.New("composition session not found")
	ErrSessionClosed    = errors.New("composition session is closed")
	ErrTooManySessions  = errors.New("too many open composition sessions")
	ErrNotSessionAuthor = errors.New("composition session belongs to another professor")

	NowFunc = time.Now // mockable
)

type (
	// ClassInfo describes a class of the roster a session can select.
	ClassInfo struct {
		ID       int    `json:"id"`
		Name     string `json:"name"`
		Students int    `json:"students"`
	}

	// Snapshot is the queryable state of a composition session.
	Snapshot struct {
		ID         string           `json:"id"`
		CourseID   int              `json:"course"`
		OpenedAt   time.Time        `json:"opened_at"`
		Subject    string           `json:"subject"`
		Body       string           `json:"message"`
		Mode       recipient.Mode   `json:"mode"`
		Recipients []course.Student `json:"recipients"`
		Individual []course.Student `json:"individual"`
		Classes    []ClassInfo      `json:"classes"`
		State      State            `json:"state"`
		Progress   int              `json:"progress"`
		Faults     []message.Fault  `json:"faults"`
		Failure    string           `json:"failure,omitempty"`
		FailedBy   FailureKind      `json:"failure_kind,omitempty"`
		Closed     bool             `json:"closed"`
	}
)

// Session is one composition of a message, from open to close or successful send.
// It owns the draft, the recipient resolver and the submission controller.
type Session struct {
	id        string
	professor message.Professor
	roster    *course.Roster
	typeahead *course.Typeahead
	ctrl      *Controller
	openedAt  time.Time
	onClose   func(id string)

	mu       sync.Mutex
	draft    *message.Draft
	resolver *recipient.Resolver
	closed   bool
}

func (s *Session) ID() string                   { return s.id }
func (s *Session) CourseID() int                { return s.roster.CourseID() }
func (s *Session) Professor() message.Professor { return s.professor }
func (s *Session) Controller() *Controller      { return s.ctrl }

// Student looks a student of the course roster up.
func (s *Session) Student(id int) (course.Student, bool) { return s.roster.Student(id) }

// SetDraft replaces the subject and body of the draft.
func (s *Session) SetDraft(subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.draft.Subject = subject
	s.draft.Body = body
	s.ctrl.Touch()
	return nil
}

// SetMode replaces the active selection and re-resolves the recipients.
func (s *Session) SetMode(mode recipient.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.resolver.SetMode(mode)
	s.draft.Recipients = s.resolver.Resolve()
	s.ctrl.Touch()
	return nil
}

// AddIndividual adds a searched student; adding a student twice is a no-op.
func (s *Session) AddIndividual(st course.Student) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrSessionClosed
	}
	added := s.resolver.AddIndividual(st)
	s.draft.Recipients = s.resolver.Resolve()
	s.ctrl.Touch()
	return added, nil
}

// RemoveByID drops a student from the recipients. It comes back if the selection is changed
// while a strategy still covers it.
func (s *Session) RemoveByID(id int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrSessionClosed
	}
	removed := s.resolver.RemoveByID(id)
	s.draft.Recipients = s.resolver.Current()
	s.ctrl.Touch()
	return removed, nil
}

// Search looks students of the course up by name. It never fails: failed lookups return nothing.
func (s *Session) Search(ctx context.Context, text string) []course.Student {
	return s.typeahead.Search(ctx, text, s.CourseID())
}

// Submit validates the draft and starts sending it. See Controller.Submit.
func (s *Session) Submit() (message.ValidationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return message.ValidationResult{}, ErrSessionClosed
	}
	return s.ctrl.Submit(s.draft, s.professor)
}

// Wait blocks until the dispatch in progress settles.
func (s *Session) Wait(ctx context.Context) error { return s.ctrl.Wait(ctx) }

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:         s.id,
		CourseID:   s.CourseID(),
		OpenedAt:   s.openedAt,
		Subject:    s.draft.Subject,
		Body:       s.draft.Body,
		Mode:       s.resolver.Mode(),
		Recipients: s.draft.Recipients.Students(),
		Individual: s.resolver.Individual(),
		Classes:    make([]ClassInfo, 0, len(s.roster.Classes())),
		State:      s.ctrl.State(),
		Progress:   s.ctrl.Progress(),
		Faults:     s.ctrl.Faults(),
		Closed:     s.closed,
	}
	for _, cls := range s.roster.Classes() {
		snap.Classes = append(snap.Classes, ClassInfo{ID: cls.ID, Name: cls.Name, Students: len(cls.Students)})
	}
	if f := s.ctrl.Failure(); f != nil {
		snap.Failure = f.Error()
		snap.FailedBy = f.Kind
	}
	return snap
}

// Close discards the session and its draft. A dispatch in progress is not cancelled.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.draft.Clear()
	onClose := s.onClose
	s.mu.Unlock()

	if onClose != nil {
		onClose(s.id)
	}
}

// sent ends the session once its message is sent; Close clears the draft.
func (s *Session) sent(message.Message) { s.Close() }

type Options struct {
	Controller  ControllerOptions
	Typeahead   course.TypeaheadOptions
	MaxSessions int // 0: unlimited
}

// Manager opens and tracks the composition sessions of the process.
type Manager struct {
	dir        course.Directory
	searcher   course.Searcher
	dispatcher Dispatcher
	caches     *message.Caches
	validate   *validator.Validate
	logger     core.Logger
	opts       Options

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(
	dir course.Directory,
	searcher course.Searcher,
	dispatcher Dispatcher,
	caches *message.Caches,
	validate *validator.Validate,
	logger core.Logger,
	opts Options,
) *Manager {
	return &Manager{
		dir:        dir,
		searcher:   searcher,
		dispatcher: dispatcher,
		caches:     caches,
		validate:   validate,
		logger:     logger,
		opts:       opts,
		sessions:   make(map[string]*Session),
	}
}

// Open loads the course roster and starts a composition session addressed to every student of the course.
// A roster that fails to load aborts the opening with a core.NetworkError.
func (m *Manager) Open(ctx context.Context, courseID int, prof message.Professor) (*Session, error) {
	if m.opts.MaxSessions > 0 && m.Len() >= m.opts.MaxSessions {
		return nil, ErrTooManySessions
	}

	roster, err := course.LoadRoster(ctx, m.dir, courseID)
	if err != nil {
		return nil, err
	}

	sess := &Session{
		id:        uuid.NewString(),
		professor: prof,
		roster:    roster,
		typeahead: course.NewTypeahead(m.searcher, m.logger, m.opts.Typeahead),
		ctrl:      NewController(m.dispatcher, m.validate, m.caches.Get(courseID), m.logger, m.opts.Controller),
		openedAt:  NowFunc().UTC(),
		onClose:   m.forget,
		draft:     message.NewDraft(courseID),
		resolver:  recipient.NewResolver(roster),
	}
	sess.ctrl.OnSuccess(sess.sent)
	sess.resolver.SetMode(recipient.DefaultMode())
	sess.draft.Recipients = sess.resolver.Resolve()

	m.mu.Lock()
	m.sessions[sess.id] = sess
	m.mu.Unlock()

	m.logger.Debug(fmt.Sprintf("composition session %s opened for course %d", sess.id, courseID))
	return sess, nil
}

// Get returns an open session of the professor.
func (m *Manager) Get(id string, prof message.Professor) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if sess.professor.ID != prof.ID {
		return nil, ErrNotSessionAuthor
	}
	return sess, nil
}

// Close closes the session; closing an unknown session is a no-op.
func (m *Manager) Close(id string) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		sess.Close()
	}
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) forget(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	m.logger.Debug(fmt.Sprintf("composition session %s closed", id))
}

// NewOptions builds the session options from the app config. `cache` may be nil.
func NewOptions(conf *core.Config, cache course.SearchCache) Options {
	return Options{
		Controller: ControllerOptions{
			Tick:        conf.Compose.ProgressTick,
			ProgressMin: conf.Compose.ProgressMin,
			ProgressMax: conf.Compose.ProgressMax,
			Timeout:     conf.Compose.DispatchTimeout,
		},
		Typeahead: course.TypeaheadOptions{
			Debounce: conf.Compose.SearchDebounce,
			Cache:    cache,
			CacheTTL: conf.Compose.SearchCacheTTL,
		},
		MaxSessions: conf.Compose.MaxSessions,
	}
}
