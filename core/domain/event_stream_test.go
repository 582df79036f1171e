package domain

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventStream_WriteRefreshesPulseAndCount(t *testing.T) {
	rec := httptest.NewRecorder()
	es := NewEventStream("req-1", "http://h", "/events", &Site{}, 8080, "", rec, rec)

	require.NoError(t, es.Write([]byte("data: hi\n\n")))
	assert.Equal(t, uint64(1), es.ChunksSent)
	assert.True(t, es.Alive())
}

func TestEventStream_MarkDeadOnlyFirstCallerWins(t *testing.T) {
	rec := httptest.NewRecorder()
	es := NewEventStream("req-1", "http://h", "/events", &Site{}, 8080, "", rec, rec)

	assert.True(t, es.MarkDead())
	assert.False(t, es.MarkDead())
	assert.False(t, es.Alive())
}

func TestEventStream_WriteAfterDeadFails(t *testing.T) {
	rec := httptest.NewRecorder()
	es := NewEventStream("req-1", "http://h", "/events", &Site{}, 8080, "", rec, rec)
	es.MarkDead()

	assert.Error(t, es.Write([]byte("x")))
}
