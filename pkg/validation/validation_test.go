package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBadInput = errors.New("bad_input")

type item struct {
	Kind string `json:"kind" validate:"required,oneof=a b"`
}

type payload struct {
	Name  string `json:"name" validate:"required"`
	Items []item `json:"items" validate:"min=1,max=2,unique=Kind,dive"`
}

func TestStructWrapsSentinel(t *testing.T) {
	err := Struct(payload{Items: []item{{Kind: "a"}}}, errBadInput)
	require.Error(t, err)
	assert.ErrorIs(t, err, errBadInput)

	fields := FieldErrors(err)
	require.Len(t, fields, 1)
	assert.Equal(t, "name", fields[0].Field)
	assert.Equal(t, "required", fields[0].Code)
}

func TestStructChecksUniqueAndDive(t *testing.T) {
	err := Struct(payload{Name: "x", Items: []item{{Kind: "a"}, {Kind: "a"}}}, nil)
	require.Error(t, err)
	fields := FieldErrors(err)
	require.NotEmpty(t, fields)
	assert.Equal(t, "unique", fields[0].Code)

	err = Struct(payload{Name: "x", Items: []item{{Kind: "z"}}}, nil)
	fields = FieldErrors(err)
	require.Len(t, fields, 1)
	assert.Equal(t, "items[0].kind", fields[0].Field)
}

func TestStructValid(t *testing.T) {
	assert.NoError(t, Struct(payload{Name: "x", Items: []item{{Kind: "b"}}}, errBadInput))
	assert.Nil(t, FieldErrors(errors.New("plain")))
}
