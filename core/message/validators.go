package message

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-admin/core"
)

type Fault string

const (
	MissingSubject Fault = "missing_subject"
	MissingBody    Fault = "missing_body"
)

var (
	errInvalidDraft = errors.New("invalid message")

	faultFields = map[string]Fault{ // {Draft struct field: Fault}
		"Subject": MissingSubject,
		"Body":    MissingBody,
	}
)

// ValidationResult is Valid (no faults) or Invalid with every fault found.
type ValidationResult struct {
	Faults []Fault `json:"faults,omitempty"`

	fields validator.ValidationErrors
}

func (vr ValidationResult) Valid() bool { return len(vr.Faults) == 0 }

func (vr ValidationResult) Has(f Fault) bool {
	for _, fault := range vr.Faults {
		if fault == f {
			return true
		}
	}
	return false
}

// Err returns nil for a valid draft, a core.ValidationError with translated field errors otherwise.
func (vr ValidationResult) Err(translator ut.Translator) error {
	if vr.Valid() {
		return nil
	}
	return core.NewValidationError(errInvalidDraft, core.TranslateErrors(vr.fields, translator)...)
}

// ValidateDraft checks that the draft has a subject and a body; both are reported independently.
// Recipients are not checked: a message to nobody is valid.
func ValidateDraft(validate *validator.Validate, d *Draft) ValidationResult {
	err := validate.Struct(d)
	if err == nil {
		return ValidationResult{}
	}

	var vr ValidationResult
	vErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		// only returned for invalid input to the validator itself
		panic(errors.Wrap(err, "validating draft"))
	}
	vr.fields = vErrs
	for _, fe := range vErrs {
		if fault, ok := faultFields[fe.StructField()]; ok && !vr.Has(fault) {
			vr.Faults = append(vr.Faults, fault)
		}
	}
	return vr
}
