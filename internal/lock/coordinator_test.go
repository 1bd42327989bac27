package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dyluth/wikibot/internal/fault"
	"github.com/dyluth/wikibot/pkg/lockcell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSleeper records requested waits instead of sleeping.
type recordingSleeper struct {
	mu     sync.Mutex
	waits  []time.Duration
	onWait func(n int)
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	n := len(s.waits)
	hook := s.onWait
	s.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return ctx.Err()
}

func (s *recordingSleeper) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

func testPolicy() Policy {
	return Policy{
		SettlePeriod: 10 * time.Second,
		Wait:         10 * time.Second,
		MaxJitter:    10 * time.Second,
	}
}

func fixedJitter(ms int64) func(int64) int64 {
	return func(int64) int64 { return ms }
}

func TestAcquire_Uncontended(t *testing.T) {
	cell := lockcell.NewMemory()
	sleeper := &recordingSleeper{}
	c := NewCoordinator(cell, testPolicy(), WithSleep(sleeper.sleep), WithRandom(fixedJitter(0)))

	err := c.Acquire(context.Background(), 42)
	require.NoError(t, err)

	holder, held, err := cell.Read(context.Background())
	require.NoError(t, err)
	assert.True(t, held)
	assert.Equal(t, lockcell.Token(42), holder)

	// claim, then read-own + settle + recheck
	assert.Equal(t, 1, cell.Claims())
	assert.Equal(t, 4, cell.Reads()) // three protocol reads plus the one above
	assert.Equal(t, []time.Duration{10 * time.Second}, sleeper.recorded())
	assert.Equal(t, 0, cell.Releases())
}

func TestAcquire_AlreadyHeldByUs(t *testing.T) {
	cell := lockcell.NewMemoryHeldBy(7)
	sleeper := &recordingSleeper{}
	c := NewCoordinator(cell, testPolicy(), WithSleep(sleeper.sleep))

	require.NoError(t, c.Acquire(context.Background(), 7))
	assert.Equal(t, 0, cell.Claims())
	assert.Equal(t, []time.Duration{10 * time.Second}, sleeper.recorded())
}

func TestAcquire_WaitsForForeignHolder(t *testing.T) {
	cell := lockcell.NewMemoryHeldBy(1)
	sleeper := &recordingSleeper{}
	// The external unlock action clears the cell during the second wait.
	sleeper.onWait = func(n int) {
		if n == 2 {
			require.NoError(t, cell.Release(context.Background()))
		}
	}
	c := NewCoordinator(cell, testPolicy(), WithSleep(sleeper.sleep), WithRandom(fixedJitter(2500)))

	require.NoError(t, c.Acquire(context.Background(), 2))

	waits := sleeper.recorded()
	require.Len(t, waits, 3)
	assert.Equal(t, 12500*time.Millisecond, waits[0])
	assert.Equal(t, 12500*time.Millisecond, waits[1])
	assert.Equal(t, 10*time.Second, waits[2]) // settle period
}

func TestAcquire_BoundedByMaxAttempts(t *testing.T) {
	cell := lockcell.NewMemoryHeldBy(1)
	sleeper := &recordingSleeper{}
	policy := testPolicy()
	policy.MaxAttempts = 2
	c := NewCoordinator(cell, policy, WithSleep(sleeper.sleep), WithRandom(fixedJitter(0)))

	err := c.Acquire(context.Background(), 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGaveUp)
	assert.Equal(t, fault.KindLock, fault.KindOf(err))
	assert.Len(t, sleeper.recorded(), 2)
	assert.Equal(t, 3, cell.Reads())
	assert.Equal(t, 0, cell.Claims())
}

func TestAcquire_BoundedByDeadline(t *testing.T) {
	cell := lockcell.NewMemoryHeldBy(1)
	policy := Policy{
		SettlePeriod: 10 * time.Millisecond,
		Wait:         5 * time.Millisecond,
		MaxJitter:    5 * time.Millisecond,
		Deadline:     50 * time.Millisecond,
	}
	c := NewCoordinator(cell, policy)

	start := time.Now()
	err := c.Acquire(context.Background(), 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGaveUp)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

// scriptedCell returns a fixed sequence of holders on successive reads.
type scriptedCell struct {
	mu      sync.Mutex
	reads   []lockcell.Token // 0 = empty
	claims  []lockcell.Token
	readErr error
	claimFn func(n int) error
}

func (s *scriptedCell) Read(ctx context.Context) (lockcell.Token, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return 0, false, s.readErr
	}
	if len(s.reads) == 0 {
		panic("scriptedCell: unexpected read")
	}
	next := s.reads[0]
	s.reads = s.reads[1:]
	return next, next != 0, nil
}

func (s *scriptedCell) TryClaim(ctx context.Context, token lockcell.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims = append(s.claims, token)
	if s.claimFn != nil {
		return s.claimFn(len(s.claims))
	}
	return nil
}

func TestAcquire_LostRaceRetries(t *testing.T) {
	// empty -> claim; own -> settle -> overwritten by 9; blocked by 9; empty -> claim; own -> settle -> own
	cell := &scriptedCell{reads: []lockcell.Token{0, 5, 9, 9, 0, 5, 5}}
	sleeper := &recordingSleeper{}
	c := NewCoordinator(cell, testPolicy(), WithSleep(sleeper.sleep), WithRandom(fixedJitter(0)))

	require.NoError(t, c.Acquire(context.Background(), 5))
	assert.Equal(t, []lockcell.Token{5, 5}, cell.claims)
	assert.Equal(t, []time.Duration{
		10 * time.Second, // settle, lost
		10 * time.Second, // blocked by 9
		10 * time.Second, // settle, confirmed
	}, sleeper.recorded())
}

func TestAcquire_ClaimWriteFailureIsRetried(t *testing.T) {
	cell := &scriptedCell{
		reads: []lockcell.Token{0, 0, 3, 3},
		claimFn: func(n int) error {
			if n == 1 {
				return errors.New("secondary rate limit")
			}
			return nil
		},
	}
	sleeper := &recordingSleeper{}
	c := NewCoordinator(cell, testPolicy(), WithSleep(sleeper.sleep), WithRandom(fixedJitter(1500)))

	require.NoError(t, c.Acquire(context.Background(), 3))
	assert.Len(t, cell.claims, 2)
	assert.Equal(t, []time.Duration{
		11500 * time.Millisecond, // wait after the failed claim
		10 * time.Second,         // settle, confirmed
	}, sleeper.recorded())
}

// contextBlindCell never fails reads and rejects every claim without looking
// at the context.
type contextBlindCell struct {
	mu     sync.Mutex
	reads  int
	claims int
}

func (c *contextBlindCell) Read(context.Context) (lockcell.Token, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	return 0, false, nil
}

func (c *contextBlindCell) TryClaim(context.Context, lockcell.Token) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claims++
	return errors.New("403 resource not accessible by integration")
}

func TestAcquire_PersistentClaimFailureWaitsBetweenAttempts(t *testing.T) {
	cell := &contextBlindCell{}
	policy := Policy{
		SettlePeriod: time.Millisecond,
		Wait:         20 * time.Millisecond,
		Deadline:     100 * time.Millisecond,
	}
	c := NewCoordinator(cell, policy)

	start := time.Now()
	err := c.Acquire(context.Background(), 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGaveUp)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)

	cell.mu.Lock()
	defer cell.mu.Unlock()
	assert.LessOrEqual(t, cell.claims, 6)
	assert.Equal(t, cell.reads, cell.claims)
}

func TestAcquire_CancelledContextStopsBeforeReading(t *testing.T) {
	cell := &contextBlindCell{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewCoordinator(cell, testPolicy()).Acquire(ctx, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, fault.KindLock, fault.KindOf(err))
	assert.Zero(t, cell.reads)
}

func TestAcquire_ReadFailureIsFatal(t *testing.T) {
	cell := &scriptedCell{readErr: errors.New("502 bad gateway")}
	c := NewCoordinator(cell, testPolicy(), WithSleep((&recordingSleeper{}).sleep))

	err := c.Acquire(context.Background(), 3)
	require.Error(t, err)
	assert.Equal(t, fault.KindIO, fault.KindOf(err))
	assert.Contains(t, err.Error(), "502 bad gateway")
}

// rendezvousCell makes two claimants read the empty cell before either
// writes, and finish both writes before either rechecks.
type rendezvousCell struct {
	*lockcell.Memory
	mu        sync.Mutex
	readGate  sync.WaitGroup
	claimGate sync.WaitGroup
	lastClaim lockcell.Token
}

func newRendezvousCell() *rendezvousCell {
	c := &rendezvousCell{Memory: lockcell.NewMemory()}
	c.readGate.Add(2)
	c.claimGate.Add(2)
	return c
}

// gatedView is one claimant's handle on a rendezvousCell. It blocks on the
// gates the first time it reads and claims.
type gatedView struct {
	cell      *rendezvousCell
	readDone  bool
	claimDone bool
}

func (v *gatedView) Read(ctx context.Context) (lockcell.Token, bool, error) {
	holder, held, err := v.cell.Memory.Read(ctx)
	if !v.readDone {
		v.readDone = true
		v.cell.readGate.Done()
		v.cell.readGate.Wait()
	}
	return holder, held, err
}

func (v *gatedView) TryClaim(ctx context.Context, token lockcell.Token) error {
	v.cell.mu.Lock()
	err := v.cell.Memory.TryClaim(ctx, token)
	v.cell.lastClaim = token
	v.cell.mu.Unlock()
	if !v.claimDone {
		v.claimDone = true
		v.cell.claimGate.Done()
		v.cell.claimGate.Wait()
	}
	return err
}

func TestAcquire_ContendedExactlyOneWinner(t *testing.T) {
	cell := newRendezvousCell()
	policy := Policy{
		SettlePeriod: 20 * time.Millisecond,
		Wait:         5 * time.Millisecond,
		MaxJitter:    5 * time.Millisecond,
		MaxAttempts:  3,
	}

	results := make(map[lockcell.Token]error)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, token := range []lockcell.Token{100, 200} {
		wg.Add(1)
		go func(token lockcell.Token) {
			defer wg.Done()
			c := NewCoordinator(&gatedView{cell: cell}, policy)
			err := c.Acquire(context.Background(), token)
			mu.Lock()
			results[token] = err
			mu.Unlock()
		}(token)
	}
	wg.Wait()

	winner, held, err := cell.Memory.Read(context.Background())
	require.NoError(t, err)
	require.True(t, held)
	assert.Equal(t, cell.lastClaim, winner, "the last writer wins")

	var succeeded, gaveUp int
	for token, err := range results {
		if err == nil {
			succeeded++
			assert.Equal(t, winner, token)
			continue
		}
		gaveUp++
		assert.ErrorIs(t, err, ErrGaveUp)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, gaveUp)
	assert.Equal(t, 2, cell.Claims())
	assert.Equal(t, 0, cell.Releases())
}

// staleFirstRead simulates a claimant whose first read of the cell predates
// another claimant's confirmed acquisition.
type staleFirstRead struct {
	lockcell.Cell
	served bool
}

func (s *staleFirstRead) Read(ctx context.Context) (lockcell.Token, bool, error) {
	if !s.served {
		s.served = true
		return 0, false, nil
	}
	return s.Cell.Read(ctx)
}

// The settle-and-recheck protocol cannot detect a claim that lands after the
// recheck. Both claimants then believe they hold the lock.
func TestAcquire_RaceWindowAfterRecheck(t *testing.T) {
	ctx := context.Background()
	cell := lockcell.NewMemory()
	sleeper := &recordingSleeper{}

	first := NewCoordinator(cell, testPolicy(), WithSleep(sleeper.sleep))
	require.NoError(t, first.Acquire(ctx, 1))

	late := NewCoordinator(&staleFirstRead{Cell: cell}, testPolicy(), WithSleep(sleeper.sleep))
	require.NoError(t, late.Acquire(ctx, 2))

	holder, _, err := cell.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, lockcell.Token(2), holder)
}
