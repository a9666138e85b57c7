package fail_test

import (
	"errors"
	"fmt"
	"github.com/cirruslabs/tensorcraft/internal/cache"
	"github.com/cirruslabs/tensorcraft/internal/model"
	"github.com/cirruslabs/tensorcraft/internal/server/fail"
	"github.com/stretchr/testify/require"
	"net/http"
	"testing"
)

func TestStatusCode(t *testing.T) {
	testCases := []struct {
		err    error
		status int
	}{
		{model.ErrNotFound, http.StatusNotFound},
		{model.ErrValidation, http.StatusBadRequest},
		{model.ErrModelFormat, http.StatusUnprocessableEntity},
		{model.ErrLoadTimeout, http.StatusGatewayTimeout},
		{model.ErrResourceExhausted, http.StatusServiceUnavailable},
		{model.ErrInference, http.StatusInternalServerError},
		{model.ErrStorageIO, http.StatusInternalServerError},
		{cache.ErrClosed, http.StatusServiceUnavailable},
		{errors.New("something else"), http.StatusInternalServerError},
	}

	for _, testCase := range testCases {
		wrapped := fmt.Errorf("failed to do something: %w", testCase.err)

		require.Equal(t, testCase.status, fail.StatusCode(wrapped), testCase.err.Error())
	}
}
