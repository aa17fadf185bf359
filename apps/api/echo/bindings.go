package echoapi

import (
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/trezcool/masomo-admin/core"
	"github.com/trezcool/masomo-admin/core/compose"
	"github.com/trezcool/masomo-admin/core/course"
	"github.com/trezcool/masomo-admin/core/message"
)

type (
	DraftRequest struct {
		Subject string `json:"subject"`
		Message string `json:"message"`
	}

	// path params are bound too: `param:"-"` keeps the session :id out of the student ID
	RecipientRequest struct {
		ID    int    `json:"id" param:"-" validate:"required,gt=0"`
		Name  string `json:"name" param:"-" validate:"notblank"`
		Email string `json:"email" param:"-" validate:"omitempty,email"`
	}

	SendResponse struct {
		Session compose.Snapshot `json:"session"`
		Message *message.Message `json:"created,omitempty"`
	}
)

func (r RecipientRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

func (r RecipientRequest) Student() course.Student {
	return course.Student{ID: r.ID, Name: core.CleanString(r.Name), Email: core.CleanString(r.Email, true)}
}

// intParam reads a positive integer path parameter.
func intParam(ctx echo.Context, name string) (int, error) {
	id, err := strconv.Atoi(ctx.Param(name))
	if err != nil || id <= 0 {
		return 0, core.NewValidationError(nil, core.FieldError{Field: name, Error: "must be a positive integer"})
	}
	return id, nil
}
