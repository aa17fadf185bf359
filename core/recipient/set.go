// Package recipient turns roster selections into a canonical, deduplicated list of recipients.
//
// Nothing in this package is safe for concurrent use; callers serialize access.
package recipient

import "github.com/trezcool/masomo-admin/core/course"

// Set is a deduplicated collection of students.
// The id set and the display sequence always hold the same students. The zero value is an empty Set.
type Set struct {
	ids      map[int]struct{}
	students []course.Student // display order
}

func NewSet() *Set {
	return &Set{ids: make(map[int]struct{})}
}

func (s *Set) Len() int { return len(s.students) }

func (s *Set) Has(id int) bool {
	_, ok := s.ids[id]
	return ok
}

// Add appends the student to the display sequence, unless its id is already in the set.
func (s *Set) Add(st course.Student) bool {
	if s.Has(st.ID) {
		return false
	}
	s.track(st.ID)
	s.students = append(s.students, st)
	return true
}

// Prepend inserts the student at the front of the display sequence, unless its id is already in the set.
func (s *Set) Prepend(st course.Student) bool {
	if s.Has(st.ID) {
		return false
	}
	s.track(st.ID)
	s.students = append(s.students, course.Student{})
	copy(s.students[1:], s.students)
	s.students[0] = st
	return true
}

// Remove drops the id and its display entry.
func (s *Set) Remove(id int) bool {
	if !s.Has(id) {
		return false
	}
	delete(s.ids, id)
	for i, st := range s.students {
		if st.ID == id {
			s.students = append(s.students[:i], s.students[i+1:]...)
			break
		}
	}
	return true
}

func (s *Set) track(id int) {
	if s.ids == nil {
		s.ids = make(map[int]struct{})
	}
	s.ids[id] = struct{}{}
}

// IDs returns the ids in display order.
func (s *Set) IDs() []int {
	ids := make([]int, 0, len(s.students))
	for _, st := range s.students {
		ids = append(ids, st.ID)
	}
	return ids
}

// Students returns a copy of the display sequence.
func (s *Set) Students() []course.Student {
	students := make([]course.Student, len(s.students))
	copy(students, s.students)
	return students
}

func (s *Set) Clone() *Set {
	c := &Set{
		ids:      make(map[int]struct{}, len(s.ids)),
		students: s.Students(),
	}
	for id := range s.ids {
		c.ids[id] = struct{}{}
	}
	return c
}

// Union adds the students of `other` that are not in `s` yet, keeping their relative order.
func (s *Set) Union(other *Set) {
	for _, st := range other.students {
		s.Add(st)
	}
}
