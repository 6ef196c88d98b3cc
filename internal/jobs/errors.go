package jobs

import "fmt"

// エラーコード一覧。HTTPレスポンスとワーカーのログの両方で使います。
const (
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodePublishError      = "PUBLISH_ERROR"
	CodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	CodeMissingInput      = "MISSING_INPUT"
	CodeInvalidPageNumber = "INVALID_PAGE_NUMBER"
	CodeHandlerFault      = "HANDLER_FAULT"
)

// Error はコード付きのAPIエラーです。
type Error struct {
	Code    string
	Message string
	Err     error
}

// NewError は Error を作成します。
func NewError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}
