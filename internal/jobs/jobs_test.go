package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestGateRejectsSecondJob(t *testing.T) {
	g := NewGate()

	started := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := g.Run(context.Background(), KindScrape, func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
		require.NoError(t, err)
	}()

	<-started
	err := g.Run(context.Background(), KindExport, func(ctx context.Context) error {
		t.Fatal("second job must not run")
		return nil
	})
	require.ErrorIs(t, err, ErrBusy)
	require.Contains(t, err.Error(), "scrape", "busy error names the holder")

	close(release)
	wg.Wait()
}

func TestGateReleasesSlotOnCompletion(t *testing.T) {
	g := NewGate()

	require.NoError(t, g.Run(context.Background(), KindScrape, func(ctx context.Context) error {
		return nil
	}))
	require.NoError(t, g.Run(context.Background(), KindExport, func(ctx context.Context) error {
		return nil
	}))
}

func TestGateReleasesSlotOnError(t *testing.T) {
	g := NewGate()
	boom := errors.New("scrape exploded")

	err := g.Run(context.Background(), KindScrape, func(ctx context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)

	// Slot must be free again.
	require.NoError(t, g.Run(context.Background(), KindAnalysis, func(ctx context.Context) error {
		return nil
	}))
	require.Nil(t, g.Current())
}

func TestGateCurrentIntrospection(t *testing.T) {
	g := NewGate()
	require.Nil(t, g.Current())

	err := g.Run(context.Background(), KindHydrate, func(ctx context.Context) error {
		job := g.Current()
		require.NotNil(t, job)
		require.Equal(t, KindHydrate, job.Kind)
		require.NotEmpty(t, job.ID)
		require.False(t, job.StartedAt.IsZero())
		return nil
	})
	require.NoError(t, err)
	require.Nil(t, g.Current())
}
