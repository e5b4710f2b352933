package gateway

import (
	"github.com/mcoot/chessrelay/internal/api/apierr"
	"github.com/mcoot/chessrelay/internal/model"
)

const internalCode = apierr.CodeInternalError

// ErrorNotice converts a failure into the notice sent to the user. Codes
// and messages match the HTTP API.
func ErrorNotice(err error) model.ErrorNotice {
	_, apiErr := apierr.Classify(err)
	return model.ErrorNotice{Code: apiErr.Code, Message: apiErr.Message}
}
