package message

import (
	"context"
	"fmt"
	htmltmpl "html/template"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-admin/core"
)

const emailTemplateName = "professor_message"

var (
	// errors
	ErrNotFound     = errors.New("message not found")
	ErrNotRecipient = errors.New("student is not a recipient of this message")

	NowFunc = time.Now // mockable

	tagRegex = regexp.MustCompile(`<[^>]*>`)
)

type (
	Repository interface {
		CreateMessage(ctx context.Context, msg Message) (Message, error)
		// QueryMessages lists the messages of a course, newest first.
		QueryMessages(ctx context.Context, courseID int) ([]Message, error)
		GetMessage(ctx context.Context, id int) (Message, error)
		// QueryStudentMessages lists the messages a student received, newest first.
		QueryStudentMessages(ctx context.Context, studentID int) ([]Message, error)
		// MarkRead fails with ErrNotRecipient when the student did not receive the message.
		MarkRead(ctx context.Context, messageID, studentID int) error
	}

	// EventPublisher announces created messages to other systems.
	EventPublisher interface {
		PublishCreated(ctx context.Context, msg Message) error
	}

	// Lister lists the messages of a course.
	Lister interface {
		List(ctx context.Context, courseID int) ([]Message, error)
	}

	Service struct {
		repo      Repository
		mailSvc   core.EmailService
		publisher EventPublisher // optional
		logger    core.Logger
	}
)

var _ Lister = (*Service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, publisher EventPublisher, logger core.Logger) *Service {
	return &Service{
		repo:      repo,
		mailSvc:   mailSvc,
		publisher: publisher,
		logger:    logger,
	}
}

// Create stores the message, then emails its recipients and publishes a "created" event.
// Only the storage step can fail the call.
func (svc *Service) Create(ctx context.Context, nm NewMessage) (Message, error) {
	msg := Message{
		CourseID:   nm.CourseID,
		Professor:  nm.Professor,
		Subject:    nm.Subject,
		Body:       nm.Body,
		Date:       NowFunc().UTC(),
		Recipients: nm.Recipients,
		ReadBy:     []int{},
	}
	msg, err := svc.repo.CreateMessage(ctx, msg)
	if err != nil {
		return Message{}, errors.Wrap(err, "creating message")
	}

	svc.sendMail(msg)
	if svc.publisher != nil {
		if err := svc.publisher.PublishCreated(ctx, msg); err != nil {
			svc.logger.Error(fmt.Sprintf("publishing message %d: %v", msg.ID, err), err)
		}
	}
	return msg, nil
}

func (svc *Service) List(ctx context.Context, courseID int) ([]Message, error) {
	msgs, err := svc.repo.QueryMessages(ctx, courseID)
	return msgs, errors.Wrap(err, "querying messages")
}

func (svc *Service) Get(ctx context.Context, id int) (Message, error) {
	return svc.repo.GetMessage(ctx, id)
}

func (svc *Service) Inbox(ctx context.Context, studentID int) ([]InboxItem, error) {
	msgs, err := svc.repo.QueryStudentMessages(ctx, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying student messages")
	}
	items := make([]InboxItem, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, NewInboxItem(m, studentID))
	}
	return items, nil
}

func (svc *Service) MarkRead(ctx context.Context, messageID, studentID int) error {
	return svc.repo.MarkRead(ctx, messageID, studentID)
}

// sendMail emails the message to its recipients, in blind copy.
func (svc *Service) sendMail(msg Message) {
	bcc := make([]mail.Address, 0, len(msg.Recipients))
	for _, st := range msg.Recipients {
		if st.Email != "" {
			bcc = append(bcc, mail.Address{Name: st.Name, Address: st.Email})
		}
	}
	if len(bcc) == 0 {
		return
	}

	var to []mail.Address
	if msg.Professor.Email != "" {
		to = append(to, mail.Address{Name: msg.Professor.Name, Address: msg.Professor.Email})
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           to,
		Bcc:          bcc,
		Subject:      msg.Subject,
		TemplateName: emailTemplateName,
		TemplateData: map[string]interface{}{
			"Subject":       msg.Subject,
			"Text":          plainText(msg.Body),
			"HTML":          htmltmpl.HTML(msg.Body), // authored by course staff
			"ProfessorName": msg.Professor.Name,
		},
	})
}

func plainText(html string) string {
	return strings.TrimSpace(tagRegex.ReplaceAllString(html, ""))
}
