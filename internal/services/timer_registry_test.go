package services

import (
	"sync/atomic"
	"testing"
	"time"

	"sosalert/pkg/logger"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestTimerRegistry_FiresOnce(t *testing.T) {
	r := NewTimerRegistry(nil)
	defer r.Stop()

	var fired int32
	assert.True(t, r.Schedule("e1", TimerCountdown, 10*time.Millisecond, func() { atomic.AddInt32(&fired, 1) }))
	assert.True(t, r.Active("e1", TimerCountdown))

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&fired) == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, r.Active("e1", TimerCountdown))
	assert.False(t, r.Cancel("e1", TimerCountdown), "cancelling a fired timer is a no-op")
}

func TestTimerRegistry_RescheduleReplaces(t *testing.T) {
	r := NewTimerRegistry(nil)
	defer r.Stop()

	var first, second int32
	r.Schedule("e1", TimerEscalation, 20*time.Millisecond, func() { atomic.AddInt32(&first, 1) })
	r.Schedule("e1", TimerEscalation, 30*time.Millisecond, func() { atomic.AddInt32(&second, 1) })
	assert.Equal(t, 1, r.Count(TimerEscalation))

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&second) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&first))
}

func TestTimerRegistry_KindsAreIndependent(t *testing.T) {
	r := NewTimerRegistry(nil)
	defer r.Stop()

	r.Schedule("e1", TimerEscalation, time.Hour, func() {})
	r.Schedule("e1", TimerFollowUp, time.Hour, func() {})
	r.Schedule("e2", TimerEscalation, time.Hour, func() {})

	assert.True(t, r.Cancel("e1", TimerEscalation))
	assert.True(t, r.Active("e1", TimerFollowUp))
	assert.Equal(t, 1, r.CancelAll("e1"))
	assert.True(t, r.Active("e2", TimerEscalation))
}

func TestTimerRegistry_StopRejectsNewTimers(t *testing.T) {
	r := NewTimerRegistry(nil)

	var fired int32
	r.Schedule("e1", TimerRetry, 10*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	r.Stop()

	assert.False(t, r.Schedule("e2", TimerRetry, time.Millisecond, func() {}))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}

func TestCountdownController(t *testing.T) {
	r := NewTimerRegistry(nil)
	defer r.Stop()
	c := NewCountdownController(r, logger.NewNop())

	t.Run("cancel before expiry prevents the action", func(t *testing.T) {
		id := primitive.NewObjectID()
		var fired int32
		c.Start(id, 30*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
		assert.True(t, c.IsActive(id))
		assert.True(t, c.Cancel(id))

		time.Sleep(60 * time.Millisecond)
		assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
	})

	t.Run("cancel after expiry is a no-op", func(t *testing.T) {
		id := primitive.NewObjectID()
		var fired int32
		c.Start(id, 5*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })

		assert.Eventually(t, func() bool { return atomic.LoadInt32(&fired) == 1 }, time.Second, 5*time.Millisecond)
		assert.False(t, c.Cancel(id))
	})

	t.Run("zero delay runs synchronously", func(t *testing.T) {
		id := primitive.NewObjectID()
		ran := false
		c.Start(id, 0, func() { ran = true })
		assert.True(t, ran)
		assert.False(t, c.IsActive(id))
	})

	t.Run("re-arming replaces the previous countdown", func(t *testing.T) {
		id := primitive.NewObjectID()
		var first, second int32
		c.Start(id, 20*time.Millisecond, func() { atomic.AddInt32(&first, 1) })
		c.Start(id, 40*time.Millisecond, func() { atomic.AddInt32(&second, 1) })

		assert.Eventually(t, func() bool { return atomic.LoadInt32(&second) == 1 }, time.Second, 5*time.Millisecond)
		assert.Equal(t, int32(0), atomic.LoadInt32(&first))
	})
}
