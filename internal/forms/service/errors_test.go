package service

import (
	"fmt"
	"go/format"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		err  error
		code ErrorCode
	}{
		{NewInvalidError("bad"), ErrorInvalid},
		{NewNotFoundError("bad"), ErrorNotFound},
		{NewUnauthorizedError("bad"), ErrorUnauthorized},
		{NewForbiddenError("bad"), ErrorForbidden},
		{NewUnavailableError("bad"), ErrorUnavailable},
	}
	for _, tt := range tests {
		wrapped := fmt.Errorf("wrapped: %w", tt.err)
		se, ok := AsServiceError(wrapped)
		require.True(t, ok)
		assert.Equal(t, tt.code, se.Code)
		assert.Equal(t, "bad", se.Error())
	}

	_, ok := AsServiceError(fmt.Errorf("plain"))
	assert.False(t, ok)
}

func TestErrorsFileIsGofmtClean(t *testing.T) {
	src, err := os.ReadFile("errors.go")
	require.NoError(t, err)
	formatted, err := format.Source(src)
	require.NoError(t, err)
	assert.Equal(t, string(formatted), string(src))
}
