package governor

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockClock allows controlling time in tests
type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMockClock(now time.Time) *mockClock {
	return &mockClock{now: now}
}

func (m *mockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *mockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func testPolicies() Policies {
	return Policies{
		DefaultTarget: {MinSpacing: 0, MaxSpacing: 0, HourlyLimit: 2, DailyLimit: 5},
		"spaced":      {MinSpacing: 30 * time.Second, MaxSpacing: 60 * time.Second},
	}
}

func mustNew(t *testing.T, p Policies, opts ...Option) *Governor {
	t.Helper()
	g, err := New(p, opts...)
	require.NoError(t, err)
	return g
}

func TestNewValidatesTable(t *testing.T) {
	_, err := New(Policies{"acme": {HourlyLimit: 1}})
	assert.Error(t, err, "table without default entry is rejected")

	_, err = New(Policies{DefaultTarget: {MinSpacing: time.Minute, MaxSpacing: time.Second}})
	assert.Error(t, err)

	g, err := New(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicies()["linkedin"], g.Policy("linkedin"))
}

func TestCanSubmit_FirstCheckAllowed(t *testing.T) {
	clock := newMockClock(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	g := mustNew(t, testPolicies(), WithClock(clock.Now))

	d := g.CanSubmit("acme")
	assert.True(t, d.Allowed)
	assert.Zero(t, d.Wait)
	assert.Equal(t, ReasonNone, d.Reason)
}

// Scenario: hourlyLimit=2, minSpacing=0 -> first two allowed, third denied citing hourly limit.
func TestCanSubmit_HourlyLimit(t *testing.T) {
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	clock := newMockClock(start)
	g := mustNew(t, testPolicies(), WithClock(clock.Now))

	for i := 0; i < 2; i++ {
		require.True(t, g.CanSubmit("acme").Allowed, "submission %d", i+1)
		g.RecordSubmission("acme")
		clock.Advance(time.Minute)
	}

	d := g.CanSubmit("acme")
	require.False(t, d.Allowed)
	assert.Equal(t, ReasonHourlyLimit, d.Reason)
	assert.Contains(t, d.Message, "hourly limit")

	// window opened at start, so wait = start+1h - now
	u := g.Usage("acme")
	assert.Equal(t, u.HourlyWindowEnd.Sub(clock.Now()), d.Wait)
	assert.Equal(t, 58*time.Minute, d.Wait)
}

func TestCanSubmit_HourlyWindowRollsOver(t *testing.T) {
	clock := newMockClock(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	g := mustNew(t, testPolicies(), WithClock(clock.Now))

	g.CanSubmit("acme")
	g.RecordSubmission("acme")
	g.RecordSubmission("acme")
	require.False(t, g.CanSubmit("acme").Allowed)

	clock.Advance(59*time.Minute + 59*time.Second)
	require.False(t, g.CanSubmit("acme").Allowed)

	clock.Advance(time.Second)
	d := g.CanSubmit("acme")
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, g.Usage("acme").HourlyCount)
	assert.Equal(t, 2, g.Usage("acme").DailyCount)
}

func TestCanSubmit_DailyLimitCheckedFirst(t *testing.T) {
	clock := newMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	g := mustNew(t, Policies{
		DefaultTarget: {HourlyLimit: 1, DailyLimit: 1},
	}, WithClock(clock.Now))

	g.CanSubmit("acme")
	g.RecordSubmission("acme")

	d := g.CanSubmit("acme")
	require.False(t, d.Allowed)
	assert.Equal(t, ReasonDailyLimit, d.Reason)
	assert.Equal(t, 24*time.Hour, d.Wait)
}

func TestCanSubmit_MinSpacing(t *testing.T) {
	clock := newMockClock(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	g := mustNew(t, testPolicies(), WithClock(clock.Now))

	g.RecordSubmission("spaced")
	clock.Advance(10 * time.Second)

	d := g.CanSubmit("spaced")
	require.False(t, d.Allowed)
	assert.Equal(t, ReasonSpacing, d.Reason)
	assert.Equal(t, 20*time.Second, d.Wait)

	clock.Advance(20 * time.Second)
	assert.True(t, g.CanSubmit("spaced").Allowed)
}

func TestCanSubmit_ZeroLimitIsUnlimited(t *testing.T) {
	clock := newMockClock(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	g := mustNew(t, Policies{DefaultTarget: {}}, WithClock(clock.Now))

	for i := 0; i < 100; i++ {
		g.RecordSubmission("acme")
	}
	assert.True(t, g.CanSubmit("acme").Allowed)
}

func TestUnknownTargetUsesDefault(t *testing.T) {
	g := mustNew(t, testPolicies())
	assert.Equal(t, testPolicies()[DefaultTarget], g.Policy("never-configured"))
	assert.Equal(t, 30*time.Second, g.Policy("spaced").MinSpacing)
}

func TestTargetsAreIndependent(t *testing.T) {
	clock := newMockClock(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	g := mustNew(t, testPolicies(), WithClock(clock.Now))

	g.RecordSubmission("a")
	g.RecordSubmission("a")
	assert.False(t, g.CanSubmit("a").Allowed)
	assert.True(t, g.CanSubmit("b").Allowed)
}

func TestRandomSpacing(t *testing.T) {
	g := mustNew(t, testPolicies(), WithRand(rand.New(rand.NewSource(7))))

	for i := 0; i < 200; i++ {
		d := g.RandomSpacing("spaced")
		assert.GreaterOrEqual(t, d, 30*time.Second)
		assert.LessOrEqual(t, d, 60*time.Second)
	}
	assert.Equal(t, time.Duration(0), g.RandomSpacing("acme"))
}

func TestReset(t *testing.T) {
	g := mustNew(t, testPolicies())
	g.RecordSubmission("acme")
	g.RecordSubmission("acme")
	require.False(t, g.CanSubmit("acme").Allowed)

	g.Reset("acme")
	assert.True(t, g.CanSubmit("acme").Allowed)

	g.RecordSubmission("x")
	g.ResetAll()
	assert.Empty(t, g.Targets())
}

func TestSetPolicies(t *testing.T) {
	g := mustNew(t, testPolicies())
	g.RecordSubmission("acme")
	g.RecordSubmission("acme")
	require.False(t, g.CanSubmit("acme").Allowed)

	err := g.SetPolicies(Policies{DefaultTarget: {HourlyLimit: 10}})
	require.NoError(t, err)
	assert.True(t, g.CanSubmit("acme").Allowed, "usage is kept, limit raised")

	err = g.SetPolicies(Policies{"acme": {}})
	assert.Error(t, err, "table without default entry is rejected")
}

func TestPoliciesValidate(t *testing.T) {
	require.NoError(t, DefaultPolicies().Validate())

	bad := Policies{
		DefaultTarget: {MinSpacing: time.Minute, MaxSpacing: time.Second},
	}
	assert.Error(t, bad.Validate())

	negative := Policies{
		DefaultTarget: {HourlyLimit: -1},
	}
	assert.Error(t, negative.Validate())
}
