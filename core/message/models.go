package message

import (
	"time"

	"github.com/trezcool/masomo-admin/core"
	"github.com/trezcool/masomo-admin/core/course"
	"github.com/trezcool/masomo-admin/core/recipient"
)

// inboxSubjectLen is the subject length shown in a student's inbox.
const inboxSubjectLen = 45

// Professor is the author of a message, as identified by the platform's auth token.
type Professor struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type Message struct {
	ID         int              `json:"id"`
	CourseID   int              `json:"course"`
	Professor  Professor        `json:"professor"`
	Subject    string           `json:"subject"`
	Body       string           `json:"message"`
	Date       time.Time        `json:"date"` // UTC
	Recipients []course.Student `json:"users_details"`
	ReadBy     []int            `json:"users_that_read"`
}

func (m Message) RecipientIDs() []int {
	ids := make([]int, 0, len(m.Recipients))
	for _, st := range m.Recipients {
		ids = append(ids, st.ID)
	}
	return ids
}

func (m Message) IsReadBy(studentID int) bool {
	for _, id := range m.ReadBy {
		if id == studentID {
			return true
		}
	}
	return false
}

// Detail splits the recipients of a message between those who read it and those who did not.
func (m Message) Detail() Detail {
	d := Detail{
		Message: m,
		Read:    make([]course.Student, 0, len(m.ReadBy)),
		NotRead: make([]course.Student, 0, len(m.Recipients)),
	}
	for _, st := range m.Recipients {
		if m.IsReadBy(st.ID) {
			d.Read = append(d.Read, st)
		} else {
			d.NotRead = append(d.NotRead, st)
		}
	}
	return d
}

type Detail struct {
	Message
	Read    []course.Student `json:"users_that_read_details"`
	NotRead []course.Student `json:"users_that_not_read_details"`
}

// InboxItem is a message as listed to one of its recipients.
type InboxItem struct {
	ID            int       `json:"id"`
	CourseID      int       `json:"course"`
	Subject       string    `json:"subject"`
	Date          time.Time `json:"date"`
	ProfessorName string    `json:"professor"`
	IsRead        bool      `json:"is_read"`
}

func NewInboxItem(m Message, studentID int) InboxItem {
	return InboxItem{
		ID:            m.ID,
		CourseID:      m.CourseID,
		Subject:       core.Truncate(m.Subject, inboxSubjectLen),
		Date:          m.Date,
		ProfessorName: m.Professor.Name,
		IsRead:        m.IsReadBy(studentID),
	}
}

// NewMessage contains the information needed to dispatch a Message.
type NewMessage struct {
	CourseID   int
	Professor  Professor
	Subject    string
	Body       string
	Recipients []course.Student
}

// Draft is the message being composed in a composition session.
type Draft struct {
	Subject    string         `json:"subject" validate:"notblank"`
	Body       string         `json:"message" validate:"notblank"`
	CourseID   int            `json:"course"`
	Recipients *recipient.Set `json:"-" validate:"-"`
}

func NewDraft(courseID int) *Draft {
	return &Draft{
		CourseID:   courseID,
		Recipients: recipient.NewSet(),
	}
}

// Clear empties the draft's content and recipients.
func (d *Draft) Clear() {
	d.Subject = ""
	d.Body = ""
	d.Recipients = recipient.NewSet()
}

// NewMessage builds the dispatch request of the draft.
func (d *Draft) NewMessage(prof Professor) NewMessage {
	var students []course.Student
	if d.Recipients != nil {
		students = d.Recipients.Students()
	}
	return NewMessage{
		CourseID:   d.CourseID,
		Professor:  prof,
		Subject:    core.CleanString(d.Subject),
		Body:       d.Body,
		Recipients: students,
	}
}
