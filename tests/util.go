package testutil

import (
	"context"
	"net/mail"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/trezcool/masomo-admin/core"
	"github.com/trezcool/masomo-admin/core/course"
	"github.com/trezcool/masomo-admin/core/message"
	logsvc "github.com/trezcool/masomo-admin/services/logger"
	inmemdb "github.com/trezcool/masomo-admin/storage/database/inmem"
)

const CourseID = 1

// NewConfig returns a config fit for tests; it does not read the environment.
func NewConfig() *core.Config {
	return &core.Config{
		AppName:          "Masomo",
		Env:              "TEST",
		TestMode:         true,
		SecretKey:        "test-secret",
		DefaultFromEmail: mail.Address{Name: "Masomo", Address: "noreply@masomo.test"},
		Compose: core.ComposeConfig{
			ProgressTick: time.Millisecond,
			ProgressMin:  20,
			ProgressMax:  100,
		},
	}
}

// NewLogger returns a logger recording every entry, at every level.
func NewLogger() (*logsvc.ZapLogger, *observer.ObservedLogs) {
	zcore, logs := observer.New(zapcore.DebugLevel)
	return logsvc.NewZapLogger(zap.New(zcore)), logs
}

func NewValidator() *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())
	return validate
}

func Professor() message.Professor {
	return message.Professor{ID: "prof-1", Name: "Prof. Kabila", Email: "kabila@masomo.test"}
}

// Students of the seeded course.
var (
	Alice = course.Student{ID: 1, Name: "Alice", Email: "alice@masomo.test"}
	Bob   = course.Student{ID: 2, Name: "Bob", Email: "bob@masomo.test"}
	Carol = course.Student{ID: 3, Name: "Carol", Email: "carol@masomo.test"}
	Dave  = course.Student{ID: 4, Name: "Dave"}
	Eve   = course.Student{ID: 5, Name: "Eve", Email: "eve@masomo.test"} // enrolled, in no class
)

// Classes of the seeded course, in directory order. Bob is in both classes.
func Classes() []course.ClassGroup {
	return []course.ClassGroup{
		{ID: 10, Name: "Class A", Students: []course.Student{Alice, Bob}},
		{ID: 20, Name: "Class B", Students: []course.Student{Bob, Carol, Dave}},
	}
}

// SeedCourse opens an in-memory database holding the test course.
func SeedCourse(t *testing.T) *inmemdb.DB {
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open() failed: %v", err)
	}
	for _, cls := range Classes() {
		db.AddClass(CourseID, cls)
	}
	db.Enroll(CourseID, Eve)
	return db
}

// StubDirectory is a course.Directory and course.Searcher with canned answers.
type StubDirectory struct {
	Classes     []course.ClassGroup
	ClassesErr  error
	Students    []course.Student
	SearchErr   error
	SearchDelay time.Duration

	mu       sync.Mutex
	searches []string
}

func (d *StubDirectory) ListClasses(ctx context.Context, courseID int) ([]course.ClassGroup, error) {
	if d.ClassesErr != nil {
		return nil, d.ClassesErr
	}
	return d.Classes, nil
}

func (d *StubDirectory) SearchStudents(ctx context.Context, text string, courseID int) ([]course.Student, error) {
	d.mu.Lock()
	d.searches = append(d.searches, text)
	d.mu.Unlock()

	if d.SearchDelay > 0 {
		time.Sleep(d.SearchDelay)
	}
	if d.SearchErr != nil {
		return nil, d.SearchErr
	}
	return d.Students, nil
}

// Searches returns the texts searched so far.
func (d *StubDirectory) Searches() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.searches...)
}

// Dispatcher is a compose.Dispatcher whose calls block until released.
type Dispatcher struct {
	Err     error
	Release chan struct{} // nil: calls return at once

	mu     sync.Mutex
	nextID int
	calls  []message.NewMessage
}

func (d *Dispatcher) Create(ctx context.Context, nm message.NewMessage) (message.Message, error) {
	d.mu.Lock()
	d.calls = append(d.calls, nm)
	d.nextID++
	id := d.nextID
	release := d.Release
	d.mu.Unlock()

	if release != nil {
		<-release
	}
	if d.Err != nil {
		return message.Message{}, d.Err
	}
	return message.Message{
		ID:         id,
		CourseID:   nm.CourseID,
		Professor:  nm.Professor,
		Subject:    nm.Subject,
		Body:       nm.Body,
		Date:       time.Now().UTC(),
		Recipients: nm.Recipients,
		ReadBy:     []int{},
	}, nil
}

func (d *Dispatcher) Calls() []message.NewMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]message.NewMessage(nil), d.calls...)
}
