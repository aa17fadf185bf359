package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/masomo-admin/core/course"
	"github.com/trezcool/masomo-admin/core/message"
)

type messageRepository struct {
	db *messageTable
}

func NewMessageRepository(db *DB) message.Repository {
	return &messageRepository{db: db.message}
}

func copyMessage(m *message.Message) message.Message {
	msg := *m
	msg.Recipients = append([]course.Student(nil), m.Recipients...)
	msg.ReadBy = append([]int{}, m.ReadBy...)
	return msg
}

// query returns the messages matching `filter`, newest first.
func (repo *messageRepository) query(filter func(m *message.Message) bool) []message.Message {
	msgs := make([]message.Message, 0)
	for _, m := range repo.db.table {
		if filter(m) {
			msgs = append(msgs, copyMessage(m))
		}
	}
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].Date.Equal(msgs[j].Date) {
			return msgs[i].ID > msgs[j].ID
		}
		return msgs[i].Date.After(msgs[j].Date)
	})
	return msgs
}

func (repo *messageRepository) CreateMessage(ctx context.Context, msg message.Message) (message.Message, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.pkCount++
	msg.ID = repo.db.pkCount
	msg.Recipients = append([]course.Student(nil), msg.Recipients...)
	msg.ReadBy = append([]int{}, msg.ReadBy...)
	repo.db.table[msg.ID] = &msg
	return copyMessage(&msg), nil
}

func (repo *messageRepository) QueryMessages(ctx context.Context, courseID int) ([]message.Message, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.query(func(m *message.Message) bool { return m.CourseID == courseID }), nil
}

func (repo *messageRepository) GetMessage(ctx context.Context, id int) (message.Message, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if m, ok := repo.db.table[id]; ok {
		return copyMessage(m), nil
	}
	return message.Message{}, message.ErrNotFound
}

func (repo *messageRepository) QueryStudentMessages(ctx context.Context, studentID int) ([]message.Message, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.query(func(m *message.Message) bool { return isRecipient(m, studentID) }), nil
}

func (repo *messageRepository) MarkRead(ctx context.Context, messageID, studentID int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	m, ok := repo.db.table[messageID]
	if !ok {
		return message.ErrNotFound
	}
	if !isRecipient(m, studentID) {
		return message.ErrNotRecipient
	}
	if !m.IsReadBy(studentID) {
		m.ReadBy = append(m.ReadBy, studentID)
	}
	return nil
}

func isRecipient(m *message.Message, studentID int) bool {
	for _, st := range m.Recipients {
		if st.ID == studentID {
			return true
		}
	}
	return false
}
