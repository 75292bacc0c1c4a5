package expiry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Chatter/pkg/clock"
	"Chatter/pkg/metrics"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type deletion struct {
	conversationID, messageID string
	at                        time.Time
}

type recorder struct {
	clock   *clock.Manual
	deleted []deletion
	during  func(messageID string)
}

func (r *recorder) DeleteMessage(conversationID, messageID string) {
	r.deleted = append(r.deleted, deletion{conversationID, messageID, r.clock.Now()})
	if r.during != nil {
		r.during(messageID)
	}
}

func newScheduler(t *testing.T) (*Scheduler, *clock.Manual, *recorder, *metrics.Metrics) {
	t.Helper()
	c := clock.NewManual(epoch)
	m := metrics.New()
	s := New(c, WithMetrics(m))
	r := &recorder{clock: c}
	s.Bind(r)
	return s, c, r, m
}

func TestScheduleFiresOnce(t *testing.T) {
	s, c, r, m := newScheduler(t)
	s.Schedule("m1", "c1", 100*time.Millisecond)
	assert.Equal(t, StatusPending, s.Status("m1"))

	c.Advance(99 * time.Millisecond)
	assert.Empty(t, r.deleted)

	c.Advance(51 * time.Millisecond)
	require.Len(t, r.deleted, 1)
	assert.Equal(t, deletion{"c1", "m1", epoch.Add(100 * time.Millisecond)}, r.deleted[0])
	assert.Equal(t, StatusNone, s.Status("m1"))
	assert.Zero(t, s.Len())

	c.Advance(time.Hour)
	assert.Len(t, r.deleted, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExpiryFired))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ExpiryPending))
}

func TestCancelBeforeFire(t *testing.T) {
	s, c, r, m := newScheduler(t)
	s.Schedule("m1", "c1", 100*time.Millisecond)

	c.Advance(10 * time.Millisecond)
	assert.True(t, s.Cancel("m1"))
	assert.False(t, s.Cancel("m1"))
	assert.False(t, s.Pending("m1"))

	c.Advance(time.Second)
	assert.Empty(t, r.deleted)
	assert.Zero(t, c.Pending())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExpiryCancelled))
}

func TestCancelUnknownID(t *testing.T) {
	s, _, _, _ := newScheduler(t)
	assert.False(t, s.Cancel("ghost"))
}

func TestRescheduleReplacesTimer(t *testing.T) {
	s, c, r, m := newScheduler(t)
	s.Schedule("m1", "c1", 100*time.Millisecond)
	c.Advance(50 * time.Millisecond)
	s.Schedule("m1", "c1", 200*time.Millisecond)

	c.Advance(100 * time.Millisecond) // original deadline passed
	assert.Empty(t, r.deleted)
	assert.True(t, s.Pending("m1"))

	c.Advance(100 * time.Millisecond)
	require.Len(t, r.deleted, 1)
	assert.Equal(t, epoch.Add(250*time.Millisecond), r.deleted[0].at)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ExpiryScheduled))
}

func TestCancelWhileFiringIsNoop(t *testing.T) {
	s, c, r, _ := newScheduler(t)
	var statusInside Status
	var cancelled bool
	r.during = func(id string) {
		statusInside = s.Status(id)
		cancelled = s.Cancel(id)
	}

	s.Schedule("m1", "c1", 10*time.Millisecond)
	c.Advance(10 * time.Millisecond)

	assert.Equal(t, StatusFiring, statusInside)
	assert.False(t, cancelled)
	assert.Len(t, r.deleted, 1)
	assert.Equal(t, StatusNone, s.Status("m1"))
}

func TestScheduleWhileFiringIsIgnored(t *testing.T) {
	s, c, r, _ := newScheduler(t)
	r.during = func(id string) { s.Schedule(id, "c1", 10*time.Millisecond) }

	s.Schedule("m1", "c1", 10*time.Millisecond)
	c.Advance(time.Second)

	assert.Len(t, r.deleted, 1)
	assert.Zero(t, s.Len())
}

func TestIndependentIDs(t *testing.T) {
	s, c, r, _ := newScheduler(t)
	s.Schedule("a", "c1", 30*time.Millisecond)
	s.Schedule("b", "c1", 10*time.Millisecond)
	s.Schedule("c", "c2", 20*time.Millisecond)
	s.Cancel("c")

	c.Advance(time.Second)
	require.Len(t, r.deleted, 2)
	assert.Equal(t, "b", r.deleted[0].messageID)
	assert.Equal(t, "a", r.deleted[1].messageID)
}

func TestStop(t *testing.T) {
	s, c, r, m := newScheduler(t)
	s.Schedule("a", "c1", 10*time.Millisecond)
	s.Schedule("b", "c1", 20*time.Millisecond)

	s.Stop()
	s.Schedule("c", "c1", 10*time.Millisecond)
	c.Advance(time.Second)

	assert.Empty(t, r.deleted)
	assert.Zero(t, s.Len())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ExpiryPending))
}

func TestDeleterFunc(t *testing.T) {
	c := clock.NewManual(epoch)
	s := New(c)
	var got []string
	s.Bind(DeleterFunc(func(conv, msg string) { got = append(got, conv+"/"+msg) }))

	s.Schedule("m1", "c1", time.Millisecond)
	c.Advance(time.Millisecond)
	assert.Equal(t, []string{"c1/m1"}, got)
}

func TestRealClockFires(t *testing.T) {
	s := New(clock.Real())
	done := make(chan string, 1)
	s.Bind(DeleterFunc(func(_, msg string) { done <- msg }))

	s.Schedule("m1", "c1", 5*time.Millisecond)
	select {
	case id := <-done:
		assert.Equal(t, "m1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
}
