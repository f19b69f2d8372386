package errors

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategory(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{UnknownExperiment("hero"), "UnknownExperiment"},
		{MissingMark("app_start"), "MissingMark"},
		{WeightSumMismatch("hero", 60), "WeightSumMismatch"},
		{Wrap(ErrRenderFault, "landing"), "RenderFault"},
		{StorageUnavailable("read", io.ErrUnexpectedEOF), "StorageUnavailable"},
		{InvalidInput("bad body"), "InvalidInput"},
		{NotFound("client"), "NotFound"},
		{errors.New("boom"), "Unknown"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, Category(tc.err))
	}
}

func TestStorageUnavailableKeepsCause(t *testing.T) {
	err := StorageUnavailable("write ab_hero", io.ErrShortWrite)
	assert.True(t, IsCategory(err, ErrStorageUnavailable))
	assert.True(t, errors.Is(err, io.ErrShortWrite))
	assert.False(t, IsCategory(nil, ErrStorageUnavailable))
}

func TestWeightSumMismatchMessage(t *testing.T) {
	err := WeightSumMismatch("hero", 60)
	assert.Contains(t, err.Error(), "60.00")
	assert.Nil(t, Wrap(nil, "ignored"))
}
