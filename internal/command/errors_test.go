package command

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToCommandError_Dispatch(t *testing.T) {
	ce := ToCommandError("e1", validatorErr(ErrBelowMinimum, "too low"))
	assert.Equal(t, ErrBelowMinimum, ce.Code)

	ce = ToCommandError("e2", encoderErr("no mapping"))
	assert.Equal(t, ErrNoRVCMapping, ce.Code)

	ce = ToCommandError("e3", &TxError{FrameIndex: 1, Underlying: errors.New("boom")})
	assert.Equal(t, ErrTransmit, ce.Code)

	ce = ToCommandError("e4", errors.New("unexpected"))
	assert.Equal(t, ErrTransmit, ce.Code)
}
