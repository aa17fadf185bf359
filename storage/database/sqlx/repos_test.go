package sqlxrepos

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-admin/core"
	"github.com/trezcool/masomo-admin/core/course"
	"github.com/trezcool/masomo-admin/core/message"
	"github.com/trezcool/masomo-admin/storage/database"
	"github.com/trezcool/masomo-admin/tests"
)

// prepareDB migrates a fresh Postgres database at TEST_DB_HOST and seeds the test course.
func prepareDB(t *testing.T) *sqlx.DB {
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set")
	}
	conf := testutil.NewConfig()
	conf.Database = core.DatabaseConfig{
		Engine:        "postgres",
		Host:          host,
		Port:          5432,
		Name:          "masomo_admin_test",
		User:          "masomo",
		Password:      os.Getenv("TEST_DB_PASSWORD"),
		AdminUser:     "postgres",
		AdminPassword: os.Getenv("TEST_DB_ADMIN_PASSWORD"),
		DisableTLS:    true,
	}

	ctx := context.Background()
	require.NoError(t, database.CreateIfNotExist(ctx, conf))
	db, err := database.Open(ctx, conf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(db.DB, "reset"))
	require.NoError(t, database.Migrate(db.DB, "up"))

	tx := db.MustBegin()
	for _, st := range []course.Student{testutil.Alice, testutil.Bob, testutil.Carol, testutil.Dave, testutil.Eve} {
		tx.MustExec(`INSERT INTO students (id, name, email) VALUES ($1, $2, NULLIF($3, ''))`, st.ID, st.Name, st.Email)
		tx.MustExec(`INSERT INTO course_students (course_id, student_id) VALUES ($1, $2)`, testutil.CourseID, st.ID)
	}
	for _, cls := range testutil.Classes() {
		tx.MustExec(`INSERT INTO classes (id, course_id, name) VALUES ($1, $2, $3)`, cls.ID, testutil.CourseID, cls.Name)
		for pos, st := range cls.Students {
			tx.MustExec(`INSERT INTO class_students (class_id, student_id, position) VALUES ($1, $2, $3)`, cls.ID, st.ID, pos)
		}
	}
	require.NoError(t, tx.Commit())
	return db
}

func TestCourseDirectory(t *testing.T) {
	db := prepareDB(t)
	dir := NewCourseDirectory(db)
	ctx := context.Background()

	classes, err := dir.ListClasses(ctx, testutil.CourseID)
	require.NoError(t, err)
	assert.Equal(t, testutil.Classes(), classes)

	students, err := dir.SearchStudents(ctx, "E", testutil.CourseID)
	require.NoError(t, err)
	assert.Equal(t, []course.Student{testutil.Alice, testutil.Dave, testutil.Eve}, students)

	students, err = dir.SearchStudents(ctx, "%", testutil.CourseID)
	require.NoError(t, err)
	assert.Empty(t, students, "wildcards are matched literally")
}

func TestMessageRepository(t *testing.T) {
	db := prepareDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	date := time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC)
	msg, err := repo.CreateMessage(ctx, message.Message{
		CourseID:   testutil.CourseID,
		Professor:  testutil.Professor(),
		Subject:    "Exam",
		Body:       "<p>Tomorrow</p>",
		Date:       date,
		Recipients: []course.Student{testutil.Carol, testutil.Alice},
	})
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)

	require.NoError(t, repo.MarkRead(ctx, msg.ID, testutil.Alice.ID))
	assert.Equal(t, message.ErrNotRecipient, repo.MarkRead(ctx, msg.ID, testutil.Bob.ID))
	assert.Equal(t, message.ErrNotFound, repo.MarkRead(ctx, msg.ID+1, testutil.Bob.ID))

	got, err := repo.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{testutil.Carol.ID, testutil.Alice.ID}, got.RecipientIDs(), "recipients keep their order")
	assert.Equal(t, []int{testutil.Alice.ID}, got.ReadBy)
	assert.True(t, got.Date.Equal(date))

	msgs, err := repo.QueryStudentMessages(ctx, testutil.Carol.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, msg.ID, msgs[0].ID)

	_, err = repo.GetMessage(ctx, msg.ID+1)
	assert.Equal(t, message.ErrNotFound, err)
}
