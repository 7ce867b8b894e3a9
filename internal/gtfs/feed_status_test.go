package gtfs

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedStatusTracker_SuccessResetsFailures(t *testing.T) {
	tracker := NewFeedStatusTracker(3)
	at := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

	tracker.RecordFailure("ACE", "http://ace", at, time.Second, errors.New("timeout"))
	tracker.RecordFailure("ACE", "http://ace", at.Add(30*time.Second), time.Second, errors.New("timeout"))
	tracker.RecordSuccess("ACE", "http://ace", at.Add(time.Minute), 200*time.Millisecond, 150)

	s := tracker.Snapshot()
	require.Len(t, s, 1)
	assert.Equal(t, "ACE", s[0].FeedID)
	assert.Equal(t, "http://ace", s[0].URL)
	assert.Equal(t, 0, s[0].ConsecutiveFailures)
	assert.Equal(t, "", s[0].LastError)
	assert.Equal(t, 150, s[0].EntityCount)
	assert.Equal(t, at.Add(time.Minute), s[0].LastSuccess)
	assert.Equal(t, at.Add(time.Minute), s[0].LastAttempt)
	assert.InDelta(t, 0.2, s[0].LastDuration, 1e-9)
	assert.Len(t, s[0].RecentErrors, 2, "history survives a success")
}

func TestFeedStatusTracker_BoundedHistory(t *testing.T) {
	tracker := NewFeedStatusTracker(3)
	at := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		tracker.RecordFailure("L", "http://l", at.Add(time.Duration(i)*time.Second), 0, fmt.Errorf("failure %d", i))
	}

	s := tracker.Snapshot()
	require.Len(t, s, 1)
	assert.Equal(t, 5, s[0].ConsecutiveFailures)
	assert.Equal(t, "failure 4", s[0].LastError)
	require.Len(t, s[0].RecentErrors, 3)
	assert.Equal(t, "failure 2", s[0].RecentErrors[0].Message)
	assert.Equal(t, "failure 3", s[0].RecentErrors[1].Message)
	assert.Equal(t, "failure 4", s[0].RecentErrors[2].Message)
}

func TestFeedStatusTracker_SnapshotIsCopyAndSorted(t *testing.T) {
	tracker := NewFeedStatusTracker(0)
	now := time.Now()
	tracker.RecordSuccess("NQRW", "u", now, 0, 1)
	tracker.RecordSuccess("ACE", "u", now, 0, 1)
	tracker.RecordFailure("G", "u", now, 0, errors.New("x"))

	s := tracker.Snapshot()
	require.Len(t, s, 3)
	assert.Equal(t, []string{"ACE", "G", "NQRW"}, []string{s[0].FeedID, s[1].FeedID, s[2].FeedID})

	s[1].RecentErrors[0].Message = "mutated"
	assert.Equal(t, "x", tracker.Snapshot()[1].RecentErrors[0].Message)
}

func TestFeedStatusTracker_Concurrent(t *testing.T) {
	tracker := NewFeedStatusTracker(DefaultStatusHistory)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				tracker.RecordSuccess("feed", "u", time.Now(), 0, i)
			} else {
				tracker.RecordFailure("feed", "u", time.Now(), 0, errors.New("boom"))
			}
			_ = tracker.Snapshot()
		}(i)
	}
	wg.Wait()

	s := tracker.Snapshot()
	require.Len(t, s, 1)
	assert.LessOrEqual(t, len(s[0].RecentErrors), DefaultStatusHistory)
}
