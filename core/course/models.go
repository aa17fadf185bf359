package course

import "context"

type Student struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// ClassGroup is a class of a course, with its students in roster order.
type ClassGroup struct {
	ID       int       `json:"id"`
	Name     string    `json:"name"`
	Students []Student `json:"students"`
}

type (
	// Directory lists the classes of a course, each with its embedded students.
	Directory interface {
		ListClasses(ctx context.Context, courseID int) ([]ClassGroup, error)
	}

	// Searcher looks up the students of a course by partial name.
	Searcher interface {
		SearchStudents(ctx context.Context, text string, courseID int) ([]Student, error)
	}
)
