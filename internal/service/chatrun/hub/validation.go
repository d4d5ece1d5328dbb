package hub

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"chatrun/internal/domain"
)

// submitRequest is validated with go-ozzo/ozzo-validation before it
// reaches the queue/run state machine.
type submitRequest struct {
	SessionID string
	Text      string
}

func validateSubmit(sessionID, text string) error {
	req := submitRequest{SessionID: sessionID, Text: text}
	err := validation.ValidateStruct(&req,
		validation.Field(&req.SessionID, validation.Required),
		validation.Field(&req.Text, validation.Required.Error("Text input must not be empty")),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}
