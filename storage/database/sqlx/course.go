package sqlxrepos

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-admin/core/course"
)

const searchLimit = 20

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

type (
	courseDirectory struct {
		db *sqlx.DB
	}

	classStudentRow struct {
		ClassID      int         `db:"class_id"`
		ClassName    string      `db:"class_name"`
		StudentID    null.Int    `db:"student_id"`
		StudentName  null.String `db:"student_name"`
		StudentEmail null.String `db:"student_email"`
	}

	studentRow struct {
		ID    int         `db:"id"`
		Name  string      `db:"name"`
		Email null.String `db:"email"`
	}
)

var (
	_ course.Directory = (*courseDirectory)(nil)
	_ course.Searcher  = (*courseDirectory)(nil)
)

// NewCourseDirectory returns the class directory and student search backed by Postgres.
func NewCourseDirectory(db *sqlx.DB) *courseDirectory {
	return &courseDirectory{db: db}
}

func (row studentRow) student() course.Student {
	return course.Student{ID: row.ID, Name: row.Name, Email: row.Email.String}
}

func (dir *courseDirectory) ListClasses(ctx context.Context, courseID int) ([]course.ClassGroup, error) {
	q := `
		SELECT c.id AS class_id, c.name AS class_name,
		       s.id AS student_id, s.name AS student_name, s.email AS student_email
		FROM classes c
		LEFT JOIN class_students cs ON cs.class_id = c.id
		LEFT JOIN students s ON s.id = cs.student_id
		WHERE c.course_id = $1
		ORDER BY c.id, cs.position, s.id`

	var rows []classStudentRow
	if err := dir.db.SelectContext(ctx, &rows, q, courseID); err != nil {
		return nil, errors.Wrap(err, "selecting classes")
	}

	classes := make([]course.ClassGroup, 0)
	for _, row := range rows {
		if n := len(classes); n == 0 || classes[n-1].ID != row.ClassID {
			classes = append(classes, course.ClassGroup{ID: row.ClassID, Name: row.ClassName, Students: []course.Student{}})
		}
		if !row.StudentID.Valid {
			continue // empty class
		}
		cls := &classes[len(classes)-1]
		cls.Students = append(cls.Students, course.Student{
			ID:    row.StudentID.Int,
			Name:  row.StudentName.String,
			Email: row.StudentEmail.String,
		})
	}
	return classes, nil
}

func (dir *courseDirectory) SearchStudents(ctx context.Context, text string, courseID int) ([]course.Student, error) {
	q := `
		SELECT s.id, s.name, s.email
		FROM students s
		JOIN course_students cs ON cs.student_id = s.id
		WHERE cs.course_id = $1 AND s.name ILIKE $2
		ORDER BY s.name, s.id
		LIMIT $3`

	var rows []studentRow
	pattern := "%" + likeEscaper.Replace(text) + "%"
	if err := dir.db.SelectContext(ctx, &rows, q, courseID, pattern, searchLimit); err != nil {
		return nil, errors.Wrap(err, "searching students")
	}

	students := make([]course.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, row.student())
	}
	return students, nil
}
