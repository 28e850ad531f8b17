package errx

import (
	"errors"
	"net/http"

	"gorm.io/gorm"
)

// WrapDatabase maps gorm errors to AppError with appropriate status codes.
func WrapDatabase(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return New(err, http.StatusNotFound, NotFoundMessage)
	}

	return New(err, http.StatusBadGateway, DatabaseErrorMessage)
}
