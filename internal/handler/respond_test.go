package handler

import (
	"net/http"
	"testing"

	apperrors "stokvel/pkg/errors"

	"github.com/stretchr/testify/assert"
)

func TestStatusForError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"unauthorized maps to forbidden", apperrors.ErrUnauthorized, http.StatusForbidden},
		{"bad credentials map to unauthorized", apperrors.ErrInvalidCredentials, http.StatusUnauthorized},
		{"missing account maps to not found", apperrors.ErrAccountNotFound, http.StatusNotFound},
		{"missing round maps to not found", apperrors.ErrRoundNotFound, http.StatusNotFound},
		{"double request maps to conflict", apperrors.ErrAlreadyRequested, http.StatusConflict},
		{"zero amount maps to bad request", apperrors.ErrZeroAmount, http.StatusBadRequest},
		{"capacity maps to bad request", apperrors.ErrCapacityExceeded, http.StatusBadRequest},
		{"wrapped sentinel keeps its status", apperrors.Wrap(apperrors.ErrInsufficientBalance, "failed to debit"), http.StatusBadRequest},
		{"unknown errors stay internal", apperrors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, statusForError(tc.err))
		})
	}
}
