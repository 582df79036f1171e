package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseVerb(t *testing.T) {
	tests := []struct {
		method string
		want   Verb
	}{
		{"GET", GET},
		{"POST", POST},
		{"DELETE", DELETE},
		{"PROPFIND", PROPFIND},
		{"merge", MERGE},
		{"patch", PATCH},
		{"Patch", PATCH},
		{"FROB", VerbUnknown},
		{"", VerbUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseVerb(tt.method))
		})
	}
}

func TestTunnelableVerbs(t *testing.T) {
	assert.True(t, TunnelableVerbs[PUT])
	assert.True(t, TunnelableVerbs[DELETE])
	assert.True(t, TunnelableVerbs[MERGE])
	assert.True(t, TunnelableVerbs[PATCH])
	assert.False(t, TunnelableVerbs[GET])
	assert.False(t, TunnelableVerbs[POST])
}
