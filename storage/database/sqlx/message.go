package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-admin/core"
	"github.com/trezcool/masomo-admin/core/course"
	"github.com/trezcool/masomo-admin/core/message"
)

const messageColumns = `m.id, m.course_id, m.professor_id, m.professor_name, m.professor_email, m.subject, m.body, m.date`

var (
	messageOrdering = []core.DBOrdering{{Field: "m.date"}, {Field: "m.id"}}

	NowFunc = time.Now // mockable
)

type (
	messageRepository struct {
		db *sqlx.DB
	}

	messageRow struct {
		ID             int         `db:"id"`
		CourseID       int         `db:"course_id"`
		ProfessorID    string      `db:"professor_id"`
		ProfessorName  null.String `db:"professor_name"`
		ProfessorEmail null.String `db:"professor_email"`
		Subject        string      `db:"subject"`
		Body           string      `db:"body"`
		Date           time.Time   `db:"date"`
	}

	recipientRow struct {
		MessageID int         `db:"message_id"`
		StudentID int         `db:"student_id"`
		Name      string      `db:"name"`
		Email     null.String `db:"email"`
		ReadAt    null.Time   `db:"read_at"`
	}
)

var _ message.Repository = (*messageRepository)(nil) // interface compliance check

func NewMessageRepository(db *sqlx.DB) *messageRepository {
	return &messageRepository{db: db}
}

func (row messageRow) message() message.Message {
	return message.Message{
		ID:       row.ID,
		CourseID: row.CourseID,
		Professor: message.Professor{
			ID:    row.ProfessorID,
			Name:  row.ProfessorName.String,
			Email: row.ProfessorEmail.String,
		},
		Subject:    row.Subject,
		Body:       row.Body,
		Date:       row.Date.UTC(),
		Recipients: []course.Student{},
		ReadBy:     []int{},
	}
}

func (repo *messageRepository) CreateMessage(ctx context.Context, msg message.Message) (message.Message, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return message.Message{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	q := `
		INSERT INTO messages (course_id, professor_id, professor_name, professor_email, subject, body, date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	err = tx.QueryRowxContext(ctx, q,
		msg.CourseID,
		msg.Professor.ID,
		null.NewString(msg.Professor.Name, msg.Professor.Name != ""),
		null.NewString(msg.Professor.Email, msg.Professor.Email != ""),
		msg.Subject,
		msg.Body,
		msg.Date.UTC(),
	).Scan(&msg.ID)
	if err != nil {
		return message.Message{}, errors.Wrap(err, "inserting message")
	}

	for pos, st := range msg.Recipients {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO message_recipients (message_id, student_id, position) VALUES ($1, $2, $3)`,
			msg.ID, st.ID, pos,
		)
		if err != nil {
			return message.Message{}, errors.Wrapf(err, "inserting recipient %d", st.ID)
		}
	}

	if err = tx.Commit(); err != nil {
		return message.Message{}, errors.Wrap(err, "committing message")
	}
	if msg.ReadBy == nil {
		msg.ReadBy = []int{}
	}
	return msg, nil
}

func (repo *messageRepository) QueryMessages(ctx context.Context, courseID int) ([]message.Message, error) {
	q := `SELECT ` + messageColumns + ` FROM messages m WHERE m.course_id = $1 ORDER BY ` + orderBy(messageOrdering)
	return repo.selectMessages(ctx, q, courseID)
}

func (repo *messageRepository) QueryStudentMessages(ctx context.Context, studentID int) ([]message.Message, error) {
	q := `SELECT ` + messageColumns + ` FROM messages m
		JOIN message_recipients mr ON mr.message_id = m.id
		WHERE mr.student_id = $1
		ORDER BY ` + orderBy(messageOrdering)
	return repo.selectMessages(ctx, q, studentID)
}

func (repo *messageRepository) GetMessage(ctx context.Context, id int) (message.Message, error) {
	var row messageRow
	q := `SELECT ` + messageColumns + ` FROM messages m WHERE m.id = $1`
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return message.Message{}, message.ErrNotFound
		}
		return message.Message{}, errors.Wrap(err, "selecting message")
	}

	msgs := []message.Message{row.message()}
	if err := repo.loadRecipients(ctx, msgs); err != nil {
		return message.Message{}, err
	}
	return msgs[0], nil
}

func (repo *messageRepository) MarkRead(ctx context.Context, messageID, studentID int) error {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE message_recipients SET read_at = COALESCE(read_at, $3) WHERE message_id = $1 AND student_id = $2`,
		messageID, studentID, NowFunc().UTC(),
	)
	if err != nil {
		return errors.Wrap(err, "marking message read")
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	var exists bool
	if err = repo.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM messages WHERE id = $1)`, messageID); err != nil {
		return errors.Wrap(err, "checking message")
	}
	if !exists {
		return message.ErrNotFound
	}
	return message.ErrNotRecipient
}

func (repo *messageRepository) selectMessages(ctx context.Context, q string, args ...interface{}) ([]message.Message, error) {
	var rows []messageRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting messages")
	}

	msgs := make([]message.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, row.message())
	}
	if err := repo.loadRecipients(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// loadRecipients fills the recipients and readers of `msgs` in place.
func (repo *messageRepository) loadRecipients(ctx context.Context, msgs []message.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]int, 0, len(msgs))
	idx := make(map[int]int, len(msgs)) // {message ID: index in msgs}
	for i, m := range msgs {
		ids = append(ids, m.ID)
		idx[m.ID] = i
	}

	q, args, err := sqlx.In(`
		SELECT mr.message_id, mr.student_id, s.name, s.email, mr.read_at
		FROM message_recipients mr
		JOIN students s ON s.id = mr.student_id
		WHERE mr.message_id IN (?)
		ORDER BY mr.message_id, mr.position`, ids)
	if err != nil {
		return errors.Wrap(err, "building recipients query")
	}

	var rows []recipientRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "selecting recipients")
	}
	for _, row := range rows {
		m := &msgs[idx[row.MessageID]]
		m.Recipients = append(m.Recipients, course.Student{ID: row.StudentID, Name: row.Name, Email: row.Email.String})
		if row.ReadAt.Valid {
			m.ReadBy = append(m.ReadBy, row.StudentID)
		}
	}
	return nil
}

func orderBy(ordering []core.DBOrdering) string {
	clauses := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		clauses = append(clauses, ord.String())
	}
	return strings.Join(clauses, ", ")
}
