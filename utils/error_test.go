package utils

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestAppErrorMatchesByCode(t *testing.T) {
	err := fmt.Errorf("run: %w", Conflict("report %d is in progress", 7))
	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Equal(t, CodeConflict, ErrorCodeOf(err))
	assert.Equal(t, http.StatusConflict, HTTPStatus(err))
}

func TestDBError(t *testing.T) {
	assert.Nil(t, DBError(nil, "finding"))
	assert.True(t, errors.Is(DBError(gorm.ErrRecordNotFound, "finding"), ErrorRecordNotFound))

	cause := errors.New("connection reset")
	err := DBError(cause, "finding")
	assert.True(t, errors.Is(err, ErrDependencyFailure))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(err))

	orig := ValidationError("bad")
	assert.Same(t, orig, DBError(orig, "finding"))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NotFound("x")))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(ValidationError("x")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}
