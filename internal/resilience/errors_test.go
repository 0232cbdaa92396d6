package resilience

import (
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", eris.New("bad request"), false},
		{"transient wrapper", NewTransientError(eris.New("rate limited"), 429), true},
		{"wrapped transient", eris.Wrap(NewTransientError(eris.New("busy"), 503), "ocr"), true},
		{"connection reset syscall", syscall.ECONNRESET, true},
		{"connection refused syscall", syscall.ECONNREFUSED, true},
		{"reset by peer string", eris.New("read tcp: connection reset by peer"), true},
		{"io timeout string", eris.New("dial tcp: i/o timeout"), true},
		{"no such host string", eris.New("lookup api.mistral.ai: no such host"), true},
		{"permanent auth failure", eris.New("401 unauthorized"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := eris.New("too many requests")
	te := NewTransientError(inner, 429)

	assert.Equal(t, "too many requests", te.Error())
	assert.ErrorIs(t, te, inner)
	assert.Equal(t, 429, te.StatusCode)
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 201, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}
