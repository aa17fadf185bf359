package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/masomo-admin/core/course"
)

type courseDirectory struct {
	db *courseTable
}

// NewCourseDirectory returns the class directory and student search of the in-memory database.
func NewCourseDirectory(db *DB) *courseDirectory {
	return &courseDirectory{db: db.course}
}

var (
	_ course.Directory = (*courseDirectory)(nil)
	_ course.Searcher  = (*courseDirectory)(nil)
)

func (dir *courseDirectory) ListClasses(ctx context.Context, courseID int) ([]course.ClassGroup, error) {
	dir.db.RLock()
	defer dir.db.RUnlock()

	classes := make([]course.ClassGroup, 0, len(dir.db.classes[courseID]))
	for _, cls := range dir.db.classes[courseID] {
		students := make([]course.Student, len(cls.Students))
		copy(students, cls.Students)
		cls.Students = students
		classes = append(classes, cls)
	}
	return classes, nil
}

func (dir *courseDirectory) SearchStudents(ctx context.Context, text string, courseID int) ([]course.Student, error) {
	dir.db.RLock()
	defer dir.db.RUnlock()

	text = strings.ToLower(text)
	students := make([]course.Student, 0)
	for _, st := range dir.db.enrolled[courseID] {
		if strings.Contains(strings.ToLower(st.Name), text) {
			students = append(students, st)
		}
	}
	sort.SliceStable(students, func(i, j int) bool { return students[i].Name < students[j].Name })
	return students, nil
}
