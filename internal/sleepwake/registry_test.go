package sleepwake

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_SleepThenWake(t *testing.T) {
	r := NewRegistry()
	done := make(chan struct{})
	var got any
	var err error

	go func() {
		got, err = r.Sleep(1, "parked")
		close(done)
	}()

	require.Eventually(t, func() bool { return r.Len() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, r.Wake(1, "woken"))
	<-done

	assert.NoError(t, err)
	assert.Equal(t, "woken", got)
}

func TestRegistry_WakeWithoutSleeperIsNoop(t *testing.T) {
	r := NewRegistry()
	assert.ErrorIs(t, r.Wake(42, nil), ErrNoSleeper)
}

func TestRegistry_DuplicateSleepRejected(t *testing.T) {
	r := NewRegistry()
	done := make(chan struct{})
	go func() {
		r.Sleep(7, nil)
		close(done)
	}()
	require.Eventually(t, func() bool { return r.Len() == 1 }, time.Second, time.Millisecond)

	_, err := r.Sleep(7, nil)
	assert.ErrorIs(t, err, ErrAlreadySleeping)

	require.NoError(t, r.Wake(7, nil))
	<-done
}

func TestRegistry_Abort(t *testing.T) {
	r := NewRegistry()
	done := make(chan struct{})
	var err error
	go func() {
		_, err = r.Sleep(3, nil)
		close(done)
	}()
	require.Eventually(t, func() bool { return r.Len() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, r.Abort(3))
	<-done
	assert.ErrorIs(t, err, ErrAborted)
}

func TestRegistry_WakeAll(t *testing.T) {
	r := NewRegistry()
	const n = 5
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(id uint64) {
			_, err := r.Sleep(id, nil)
			errs <- err
		}(uint64(i))
	}
	require.Eventually(t, func() bool { return r.Len() == n }, time.Second, time.Millisecond)

	r.WakeAll()

	for i := 0; i < n; i++ {
		assert.ErrorIs(t, <-errs, ErrAborted)
	}
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_Peek(t *testing.T) {
	r := NewRegistry()
	done := make(chan struct{})
	go func() {
		r.Sleep(9, "payload-value")
		close(done)
	}()
	require.Eventually(t, func() bool { return r.Len() == 1 }, time.Second, time.Millisecond)

	got, err := r.Peek(9)
	require.NoError(t, err)
	assert.Equal(t, "payload-value", got)

	require.NoError(t, r.Wake(9, nil))
	<-done
}
