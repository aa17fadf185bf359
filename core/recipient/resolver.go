package recipient

import "github.com/trezcool/masomo-admin/core/course"

// Mode is the set of active selection strategies. Strategies are additive:
// the resolved recipients are the union of every active one.
type Mode struct {
	AllStudents bool  `json:"all_students"`
	Classes     []int `json:"classes"` // specific classes, in activation order; empty: inactive
	Individual  bool  `json:"individual"`
}

// DefaultMode selects every student of the course: the selection a new composition starts with.
func DefaultMode() Mode { return Mode{AllStudents: true} }

func (m Mode) normalized() Mode {
	seen := make(map[int]struct{}, len(m.Classes))
	classes := make([]int, 0, len(m.Classes))
	for _, id := range m.Classes {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		classes = append(classes, id)
	}
	m.Classes = classes
	return m
}

// Resolver computes the recipients of a message from the roster and the active Mode.
type Resolver struct {
	roster     *course.Roster
	mode       Mode
	individual *Set // most recently added first
	current    *Set
}

func NewResolver(roster *course.Roster) *Resolver {
	r := &Resolver{
		roster:     roster,
		individual: NewSet(),
	}
	r.current = r.compute()
	return r
}

// Mode returns the active selection.
func (r *Resolver) Mode() Mode {
	m := r.mode
	m.Classes = append([]int(nil), r.mode.Classes...)
	return m
}

// SetMode replaces the active selection and recomputes the recipients.
// Individual additions are kept even while their strategy is inactive.
func (r *Resolver) SetMode(mode Mode) {
	r.mode = mode.normalized()
	r.current = r.compute()
}

// Resolve recomputes and returns the recipients: every student of the roster (AllStudents),
// then the students of the selected classes in activation order, then the individual additions.
// A student keeps the position of its first occurrence.
func (r *Resolver) Resolve() *Set {
	r.current = r.compute()
	return r.current.Clone()
}

// Current returns the recipients as last resolved, minus the students removed since.
func (r *Resolver) Current() *Set { return r.current.Clone() }

// AddIndividual adds a searched student in front of the individual additions and activates
// the Individual strategy. Adding a student twice is a no-op.
func (r *Resolver) AddIndividual(st course.Student) bool {
	if !r.individual.Prepend(st) {
		return false
	}
	r.mode.Individual = true
	r.current = r.compute()
	return true
}

// RemoveByID removes the student from the individual additions and from the current recipients.
// A strategy that still covers the student adds it back on the next Resolve.
func (r *Resolver) RemoveByID(id int) bool {
	removedIndividual := r.individual.Remove(id)
	removedCurrent := r.current.Remove(id)
	return removedIndividual || removedCurrent
}

// Individual returns the individually added students, most recent first.
func (r *Resolver) Individual() []course.Student {
	return r.individual.Students()
}

func (r *Resolver) compute() *Set {
	set := NewSet()
	if r.mode.AllStudents {
		for _, cls := range r.roster.Classes() {
			addAll(set, cls.Students)
		}
	}
	for _, id := range r.mode.Classes {
		if cls, ok := r.roster.Class(id); ok {
			addAll(set, cls.Students)
		}
	}
	if r.mode.Individual {
		set.Union(r.individual)
	}
	return set
}

func addAll(set *Set, students []course.Student) {
	for _, st := range students {
		set.Add(st)
	}
}
