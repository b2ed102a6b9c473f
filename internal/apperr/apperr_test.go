package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Is_matches_kind(t *testing.T) {
	err := fmt.Errorf("capture: %w", New(KindNoLiveRoom, "alice is offline"))

	assert.True(t, errors.Is(err, ErrNoLiveRoom))
	assert.False(t, errors.Is(err, ErrManifestUnavailable))
	assert.Equal(t, KindNoLiveRoom, KindOf(err))
}

func TestError_Unwrap_exposes_cause(t *testing.T) {
	cause := errors.New("exit status 1")
	err := Wrap(cause, KindProcessFailure, "download failed")

	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "download failed")
	assert.Contains(t, err.Error(), "exit status 1")
}

func TestUpstream_carries_status(t *testing.T) {
	err := Upstream(http.StatusForbidden, nil)

	assert.Equal(t, http.StatusForbidden, err.Status)
	assert.Contains(t, err.Error(), "status 403")
	assert.True(t, errors.Is(err, ErrUpstreamUnavailable))
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrInvalidInput, http.StatusBadRequest},
		{ErrUpstreamUnavailable, http.StatusBadGateway},
		{ErrNoLiveRoom, http.StatusNotFound},
		{ErrManifestUnavailable, http.StatusUnprocessableEntity},
		{ErrNoStreamVariant, http.StatusUnprocessableEntity},
		{ErrProcessFailure, http.StatusInternalServerError},
		{ErrProcessTimeout, http.StatusGatewayTimeout},
		{ErrFilesystemFailure, http.StatusInternalServerError},
		{ErrNotFound, http.StatusNotFound},
		{errors.New("unclassified"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatus(tc.err), tc.err.Error())
	}
}
