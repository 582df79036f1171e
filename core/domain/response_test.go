package domain

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponse_AnswerIdempotent(t *testing.T) {
	r := NewResponse()
	assert.False(t, r.Answered())

	ok := r.Answer(200, []byte("hello"))
	assert.True(t, ok)
	assert.True(t, r.Answered())
	assert.Equal(t, 200, r.Status)
	assert.Equal(t, []byte("hello"), r.Body)

	ok = r.Answer(500, []byte("too late"))
	assert.False(t, ok)
	assert.Equal(t, 200, r.Status)
	assert.Equal(t, []byte("hello"), r.Body)
}

func TestResponse_SetHeaderAndCookie(t *testing.T) {
	r := NewResponse()
	r.SetHeader("X-Test", "1")
	assert.Equal(t, "1", r.Headers.Get("X-Test"))

	r.AddCookie(&Cookie{Name: "sid", Value: "abc", Secure: true})
	assert.Len(t, r.Cookies, 1)
	assert.Equal(t, "sid", r.Cookies[0].Name)
}

func TestNewResponse_Defaults(t *testing.T) {
	r := NewResponse()
	assert.Equal(t, http.StatusOK, r.Status)
	assert.NotNil(t, r.Headers)
}
