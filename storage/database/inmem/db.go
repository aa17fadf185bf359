package inmemdb

import (
	"sync"

	"github.com/trezcool/masomo-admin/core/course"
	"github.com/trezcool/masomo-admin/core/message"
)

type (
	DB struct {
		course  *courseTable
		message *messageTable
	}

	courseTable struct {
		sync.RWMutex
		classes  map[int][]course.ClassGroup // {course ID: classes}, directory order
		enrolled map[int][]course.Student    // {course ID: students}, enrollment order
	}

	messageTable struct {
		sync.RWMutex
		pkCount int
		table   map[int]*message.Message
	}
)

func Open() (*DB, error) {
	db := &DB{
		course: &courseTable{
			classes:  make(map[int][]course.ClassGroup),
			enrolled: make(map[int][]course.Student),
		},
		message: &messageTable{table: make(map[int]*message.Message)},
	}
	return db, nil
}

// AddClass appends a class to the roster of a course and enrolls its students.
func (db *DB) AddClass(courseID int, cls course.ClassGroup) {
	db.course.Lock()
	defer db.course.Unlock()

	students := make([]course.Student, len(cls.Students))
	copy(students, cls.Students)
	cls.Students = students
	db.course.classes[courseID] = append(db.course.classes[courseID], cls)
	db.course.enroll(courseID, students...)
}

// Enroll adds students to a course without putting them in a class.
func (db *DB) Enroll(courseID int, students ...course.Student) {
	db.course.Lock()
	defer db.course.Unlock()
	db.course.enroll(courseID, students...)
}

func (t *courseTable) enroll(courseID int, students ...course.Student) {
	for _, st := range students {
		if !t.isEnrolled(courseID, st.ID) {
			t.enrolled[courseID] = append(t.enrolled[courseID], st)
		}
	}
}

func (t *courseTable) isEnrolled(courseID, studentID int) bool {
	for _, st := range t.enrolled[courseID] {
		if st.ID == studentID {
			return true
		}
	}
	return false
}
