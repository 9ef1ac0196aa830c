package v0

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// ErrorModel is the error envelope every endpoint renders. Validation
// failures report "Invalid request" with per-field issues; all other errors
// carry their message alone.
type ErrorModel struct {
	status int

	Message string            `json:"error" doc:"Human readable error message" example:"Server not found"`
	Issues  map[string]string `json:"issues,omitempty" doc:"Validation issues keyed by parameter location"`
}

func (e *ErrorModel) Error() string {
	return e.Message
}

func (e *ErrorModel) GetStatus() int {
	return e.status
}

// init swaps huma's problem+json error model for the flat envelope above and
// downgrades request validation failures from 422 to 400.
func init() {
	huma.NewError = func(status int, message string, errs ...error) huma.StatusError {
		model := &ErrorModel{status: status, Message: message}

		for _, err := range errs {
			detailer, ok := err.(huma.ErrorDetailer)
			if !ok {
				continue
			}
			detail := detailer.ErrorDetail()
			if model.Issues == nil {
				model.Issues = make(map[string]string, len(errs))
			}
			model.Issues[detail.Location] = detail.Message
		}

		if status == http.StatusUnprocessableEntity {
			model.status = http.StatusBadRequest
			model.Message = "Invalid request"
		}
		return model
	}
}
