package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	root := errors.New("boom")

	tests := []struct {
		name string
		err  error
		code Code
		want bool
	}{
		{name: "nil error", err: nil, code: CodeInternal, want: false},
		{name: "plain error", err: root, code: CodeInternal, want: false},
		{name: "direct code", err: New(CodeSchemaViolation, "bad"), code: CodeSchemaViolation, want: true},
		{name: "different code", err: New(CodeInvalidInput, "bad"), code: CodeSchemaViolation, want: false},
		{name: "wrapped with fmt", err: fmt.Errorf("decide: %w", New(CodeSchemaViolation, "bad")), code: CodeSchemaViolation, want: true},
		{name: "nested domain errors", err: Wrap(New(CodeSchemaViolation, "inner"), CodeInternal, "outer"), code: CodeSchemaViolation, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasCode(tt.err, tt.code))
		})
	}
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap(nil, CodeInternal, "ignored"))

	root := errors.New("connection reset")
	err := Wrap(root, CodeInternal, "load snapshot")
	assert.ErrorIs(t, err, root)
	assert.True(t, Is(err))
	assert.Equal(t, "internal: load snapshot: connection reset", err.Error())
}
