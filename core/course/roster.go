package course

import (
	"context"

	"github.com/trezcool/masomo-admin/core"
)

// Roster is the read-only class -> students membership of a course, loaded once per composition session.
type Roster struct {
	courseID int
	classes  []ClassGroup
	byID     map[int]int // {class ID: index in classes}
}

// LoadRoster loads the full roster of a course. Either every class loads or a core.NetworkError is returned.
func LoadRoster(ctx context.Context, dir Directory, courseID int) (*Roster, error) {
	classes, err := dir.ListClasses(ctx, courseID)
	if err != nil {
		return nil, core.NewNetworkError("loading class roster", err)
	}
	return NewRoster(courseID, classes), nil
}

// NewRoster builds a Roster from already loaded classes.
func NewRoster(courseID int, classes []ClassGroup) *Roster {
	r := &Roster{
		courseID: courseID,
		classes:  make([]ClassGroup, 0, len(classes)),
		byID:     make(map[int]int, len(classes)),
	}
	for _, cls := range classes {
		students := make([]Student, len(cls.Students))
		copy(students, cls.Students)
		cls.Students = students

		if _, dup := r.byID[cls.ID]; dup {
			continue
		}
		r.byID[cls.ID] = len(r.classes)
		r.classes = append(r.classes, cls)
	}
	return r
}

func (r *Roster) CourseID() int { return r.courseID }

// Classes returns the classes in directory order. The result must not be modified.
func (r *Roster) Classes() []ClassGroup { return r.classes }

func (r *Roster) Class(id int) (ClassGroup, bool) {
	idx, ok := r.byID[id]
	if !ok {
		return ClassGroup{}, false
	}
	return r.classes[idx], true
}

func (r *Roster) IsEmpty() bool { return len(r.classes) == 0 }

// Student looks a student up in every class of the roster.
func (r *Roster) Student(id int) (Student, bool) {
	for _, cls := range r.classes {
		for _, st := range cls.Students {
			if st.ID == id {
				return st, true
			}
		}
	}
	return Student{}, false
}
