package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestConstraintViolations(t *testing.T) {
	unique := fmt.Errorf("insert patient: %w", &pq.Error{Code: "23505"})
	foreign := fmt.Errorf("insert visit: %w", &pq.Error{Code: "23503"})

	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsUniqueViolation(foreign))
	assert.True(t, IsForeignKeyViolation(foreign))
	assert.False(t, IsForeignKeyViolation(unique))
	assert.False(t, IsForeignKeyViolation(errors.New("connection reset")))
}

func TestNullString(t *testing.T) {
	assert.Nil(t, NullString(""))
	if got := NullString("x"); assert.NotNil(t, got) {
		assert.Equal(t, "x", *got)
	}
}
