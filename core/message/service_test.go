package message_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-admin/core"
	"github.com/trezcool/masomo-admin/core/course"
	"github.com/trezcool/masomo-admin/core/message"
	appfs "github.com/trezcool/masomo-admin/fs"
	emailsvc "github.com/trezcool/masomo-admin/services/email"
	inmemdb "github.com/trezcool/masomo-admin/storage/database/inmem"
	"github.com/trezcool/masomo-admin/tests"
)

type publisherFunc func(ctx context.Context, msg message.Message) error

func (f publisherFunc) PublishCreated(ctx context.Context, msg message.Message) error { return f(ctx, msg) }

func newService(t *testing.T, publisher message.EventPublisher) (*message.Service, *emailsvc.ConsoleService) {
	logger, _ := testutil.NewLogger()
	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, true, logger)

	db := testutil.SeedCourse(t)
	mail := emailsvc.NewConsoleServiceMock(testutil.NewConfig(), logger)
	return message.NewService(inmemdb.NewMessageRepository(db), mail, publisher, logger), mail
}

func newMessage(subject string, recipients ...course.Student) message.NewMessage {
	return message.NewMessage{
		CourseID:   testutil.CourseID,
		Professor:  testutil.Professor(),
		Subject:    subject,
		Body:       "<p>See you <b>tomorrow</b></p>",
		Recipients: recipients,
	}
}

func TestService_Create(t *testing.T) {
	now := time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC)
	message.NowFunc = func() time.Time { return now }
	defer func() { message.NowFunc = time.Now }()

	var published []message.Message
	svc, mail := newService(t, publisherFunc(func(ctx context.Context, msg message.Message) error {
		published = append(published, msg)
		return nil
	}))

	msg, err := svc.Create(context.Background(), newMessage("Exam", testutil.Alice, testutil.Dave))
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)
	assert.Equal(t, now, msg.Date)
	assert.Equal(t, []int{1, 4}, msg.RecipientIDs())
	assert.NotNil(t, msg.ReadBy)
	assert.Empty(t, msg.ReadBy)

	require.Len(t, published, 1)
	assert.Equal(t, msg.ID, published[0].ID)

	sent := mail.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "Exam", sent[0].Subject)
	require.Len(t, sent[0].Bcc, 1, "students without email are skipped")
	assert.Equal(t, testutil.Alice.Email, sent[0].Bcc[0].Address)
	require.Len(t, sent[0].To, 1)
	assert.Equal(t, testutil.Professor().Email, sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "See you tomorrow")
	assert.Contains(t, sent[0].HTMLContent, "<b>tomorrow</b>")

	listed, err := svc.List(context.Background(), testutil.CourseID)
	require.NoError(t, err)
	assert.Equal(t, []int{msg.ID}, ids(listed))
}

func TestService_Create_noRecipients(t *testing.T) {
	svc, mail := newService(t, nil)

	msg, err := svc.Create(context.Background(), newMessage("Nobody"))
	require.NoError(t, err)
	assert.Empty(t, msg.Recipients)
	assert.Empty(t, mail.SentMessages())
}

func TestService_Create_publishFailure(t *testing.T) {
	logger, logs := testutil.NewLogger()
	db := testutil.SeedCourse(t)
	svc := message.NewService(
		inmemdb.NewMessageRepository(db),
		emailsvc.NewConsoleServiceMock(testutil.NewConfig(), logger),
		publisherFunc(func(ctx context.Context, msg message.Message) error { return errors.New("broker down") }),
		logger,
	)

	msg, err := svc.Create(context.Background(), newMessage("Exam", testutil.Alice))
	require.NoError(t, err, "publishing does not fail the creation")
	assert.NotZero(t, msg.ID)
	assert.Equal(t, 1, logs.FilterMessageSnippet("broker down").Len())
}

func TestService_Inbox(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	long := strings.Repeat("x", 60)
	first, err := svc.Create(ctx, newMessage(long, testutil.Alice, testutil.Bob))
	require.NoError(t, err)
	second, err := svc.Create(ctx, newMessage("Short", testutil.Bob))
	require.NoError(t, err)

	require.NoError(t, svc.MarkRead(ctx, first.ID, testutil.Bob.ID))
	assert.ErrorIs(t, svc.MarkRead(ctx, second.ID, testutil.Alice.ID), message.ErrNotRecipient)
	assert.ErrorIs(t, svc.MarkRead(ctx, 999, testutil.Alice.ID), message.ErrNotFound)

	items, err := svc.Inbox(ctx, testutil.Bob.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	byID := map[int]message.InboxItem{items[0].ID: items[0], items[1].ID: items[1]}
	assert.True(t, byID[first.ID].IsRead)
	assert.False(t, byID[second.ID].IsRead)
	assert.Equal(t, strings.Repeat("x", 42)+"...", byID[first.ID].Subject)
	assert.Equal(t, testutil.Professor().Name, byID[first.ID].ProfessorName)

	items, err = svc.Inbox(ctx, testutil.Carol.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestMessage_Detail(t *testing.T) {
	msg := message.Message{
		Recipients: []course.Student{testutil.Alice, testutil.Bob, testutil.Carol},
		ReadBy:     []int{testutil.Bob.ID},
	}
	d := msg.Detail()
	assert.Equal(t, []course.Student{testutil.Bob}, d.Read)
	assert.Equal(t, []course.Student{testutil.Alice, testutil.Carol}, d.NotRead)
}
