package interrupt

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumanthpn07/lazyApply/internal/session/sessiontest"
	"github.com/sumanthpn07/lazyApply/pkg/types"
)

func frozen(t *testing.T) (*Coordinator, *sessiontest.Page) {
	t.Helper()
	c := New()
	c.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	page := &sessiontest.Page{}
	c.Freeze(types.WorkItem{Ref: "j7", RetryCount: 1}, "linkedin", "https://linkedin.test/login", "sign in", page)
	return c, page
}

func TestFreezeRecordsState(t *testing.T) {
	c, _ := frozen(t)

	assert.True(t, c.Frozen())
	assert.True(t, c.HasPage())
	st := c.State()
	assert.Equal(t, types.InterruptState{
		Active:  true,
		Target:  "linkedin",
		AuthURL: "https://linkedin.test/login",
		Message: "sign in",
		Ref:     "j7",
		Since:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}, st)

	item, ok := c.Item()
	require.True(t, ok)
	assert.Equal(t, types.WorkItem{Ref: "j7", RetryCount: 1}, item)
}

func TestBeginResumeHandsPageOverOnce(t *testing.T) {
	c, page := frozen(t)

	cp, err := c.BeginResume()
	require.NoError(t, err)
	assert.Same(t, page, cp.Page)
	assert.Equal(t, "linkedin", cp.Target)
	assert.Equal(t, types.JobRef("j7"), cp.Item.Ref)
	assert.Equal(t, PhaseResuming, c.Phase())
	assert.False(t, c.State().Active)
	assert.False(t, c.HasPage())

	_, err = c.BeginResume()
	assert.True(t, errors.Is(err, ErrNothingToResume))

	c.Finish()
	assert.Equal(t, PhaseClear, c.Phase())
}

func TestBeginResumeWhenClear(t *testing.T) {
	_, err := New().BeginResume()
	assert.True(t, errors.Is(err, ErrNothingToResume))
}

func TestConcurrentResumeOnlyOneWins(t *testing.T) {
	c, _ := frozen(t)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.BeginResume(); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestDropPageKeepsFrozen(t *testing.T) {
	c, page := frozen(t)

	assert.Same(t, page, c.DropPage())
	assert.True(t, c.Frozen())
	assert.False(t, c.HasPage())

	cp, err := c.BeginResume()
	require.NoError(t, err)
	assert.Nil(t, cp.Page)
}

func TestResetClearsEverything(t *testing.T) {
	c, _ := frozen(t)
	c.Reset()

	assert.Equal(t, PhaseClear, c.Phase())
	assert.Equal(t, types.InterruptState{}, c.State())
	_, ok := c.Item()
	assert.False(t, ok)
}

func TestFinishOutsideResumingIsNoop(t *testing.T) {
	c, _ := frozen(t)
	c.Finish()
	assert.True(t, c.Frozen())
}
