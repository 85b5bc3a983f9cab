package usecase

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError は HTTP ステータスが契約の一部になっているエラー。
// Err に sentinel を入れておくと errors.Is で判定できる。
type HTTPError struct {
	Status  int
	Message string
	Err     error
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
	}
}

// sentinel 付き
func WrapHTTPError(status int, message string, err error) error {
	return &HTTPError{
		Status:  status,
		Message: message,
		Err:     err,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

func badRequest(err error) error {
	return WrapHTTPError(http.StatusBadRequest, err.Error(), err)
}

func dbError(err error) error {
	return WrapHTTPError(http.StatusInternalServerError, "db error", err)
}
