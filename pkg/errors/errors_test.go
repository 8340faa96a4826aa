package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("latitude", "out of range"), http.StatusBadRequest},
		{"conflict", Conflict("user already has an open emergency"), http.StatusConflict},
		{"illegal transition", IllegalTransition("resolved", "active"), http.StatusBadRequest},
		{"illegal state", IllegalState("emergency is closed"), http.StatusBadRequest},
		{"not found", NotFound("emergency"), http.StatusNotFound},
		{"plain error", stderrors.New("boom"), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("outer: %w", Conflict("dup")), http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HTTPStatus(tc.err))
		})
	}
}

func TestIsAndCode(t *testing.T) {
	cause := stderrors.New("socket closed")
	err := Wrap(cause, KindTransientProvider, "send failed")

	assert.True(t, Is(err, KindTransientProvider))
	assert.False(t, Is(err, KindPermanentProvider))
	assert.False(t, Is(nil, KindValidation))
	assert.Equal(t, CodeTransientProvider, CodeOf(err))
	assert.Equal(t, CodeInternal, CodeOf(cause))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "send failed: socket closed", err.Error())
	assert.Nil(t, Wrap(nil, KindInternal, "nothing"))
}
