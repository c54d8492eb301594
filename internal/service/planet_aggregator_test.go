package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"storyteller-server/internal/mocks"
	"storyteller-server/internal/models"
	"storyteller-server/internal/projection"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testStories(n int) []models.StoryRecord {
	stories := make([]models.StoryRecord, n)
	for i := range stories {
		stories[i] = models.StoryRecord{
			ID:           fmt.Sprintf("-N%03d", i),
			Title:        fmt.Sprintf("小兔子 %d", i),
			CreatedAt:    "2024-03-05T10:00:00Z",
			ColorPalette: []models.ColorSwatch{{Hex: "#3366ff", Name: "blue"}},
			Pages: models.Pages{
				"1": {ImageURL: "/img/1.png", Text: "第一頁", PageNumber: 1},
				"0": {ImageURL: "https://evil.example.com/x.png", Text: "封面", PageNumber: 0},
			},
		}
	}
	return stories
}

func newTestAggregator(store *mocks.StoryStore, concurrency int) *PlanetAggregator {
	projector := projection.New(projection.Options{Location: time.UTC})
	return NewPlanetAggregator(store, projector, concurrency, zap.NewNop())
}

func expectDiaries(store *mocks.StoryStore, stories []models.StoryRecord) {
	for i := range stories {
		story := stories[i]
		store.On("GetStoryByID", mock.Anything, story.ID).Return(&story, nil)
	}
}

func TestPlanetAggregator_InitialState(t *testing.T) {
	agg := newTestAggregator(new(mocks.StoryStore), 2)
	defer agg.Close()

	state := agg.State()
	assert.False(t, state.Loading)
	assert.Empty(t, state.Error)
	assert.NotNil(t, state.Planets)
	assert.NotNil(t, state.Books)
	assert.Zero(t, state.Generation)
}

func TestPlanetAggregator_RefreshPublishesPlanetsWithDiaries(t *testing.T) {
	store := new(mocks.StoryStore)
	stories := testStories(3)
	store.On("GetAllStories", mock.Anything).Return(stories, nil).Once()
	expectDiaries(store, stories)

	agg := newTestAggregator(store, 2)
	defer agg.Close()

	snap, err := agg.Refresh(context.Background())
	require.NoError(t, err)

	assert.False(t, snap.Loading)
	assert.Empty(t, snap.Error)
	assert.Equal(t, uint64(1), snap.Generation)
	require.Len(t, snap.Planets, 3)
	require.Len(t, snap.Books, 3)
	for i, planet := range snap.Planets {
		assert.Equal(t, "planet_"+stories[i].ID, planet.ID)
		require.NotNil(t, planet.DiaryContent, planet.ID)
		assert.Equal(t, "2024/03/05", planet.DiaryContent.Date)
		assert.Equal(t, snap.Books[i].ID, planet.ID)
	}
	// Страница с pageNumber 0 идет первой и получает заглушку
	assert.Equal(t, projection.PlaceholderImage, snap.Books[0].Pages[0].ImageURL)

	assert.Empty(t, cmp.Diff(snap, agg.State()))
	store.AssertExpectations(t)
}

func TestPlanetAggregator_DiaryFailuresAreIsolated(t *testing.T) {
	store := new(mocks.StoryStore)
	stories := testStories(3)
	store.On("GetAllStories", mock.Anything).Return(stories, nil).Once()
	store.On("GetStoryByID", mock.Anything, stories[0].ID).Return(&stories[0], nil)
	store.On("GetStoryByID", mock.Anything, stories[1].ID).Return(nil, models.ErrStoryNotFound)
	store.On("GetStoryByID", mock.Anything, stories[2].ID).Return(nil, errors.New("connection reset"))

	agg := newTestAggregator(store, 3)
	defer agg.Close()

	snap, err := agg.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Planets, 3)

	assert.NotNil(t, snap.Planets[0].DiaryContent)
	assert.Nil(t, snap.Planets[1].DiaryContent)
	assert.Nil(t, snap.Planets[2].DiaryContent)
	assert.Empty(t, snap.Error)
	assert.Len(t, snap.Books, 3)
}

func TestPlanetAggregator_RefreshIsIdempotent(t *testing.T) {
	store := new(mocks.StoryStore)
	stories := testStories(4)
	store.On("GetAllStories", mock.Anything).Return(stories, nil)
	expectDiaries(store, stories)

	agg := newTestAggregator(store, 2)
	defer agg.Close()

	first, err := agg.Refresh(context.Background())
	require.NoError(t, err)
	second, err := agg.Refresh(context.Background())
	require.NoError(t, err)

	assert.Empty(t, cmp.Diff(first.Planets, second.Planets))
	assert.Empty(t, cmp.Diff(first.Books, second.Books))
	assert.Equal(t, uint64(2), second.Generation)
}

func TestPlanetAggregator_StoreFailureKeepsLastData(t *testing.T) {
	store := new(mocks.StoryStore)
	stories := testStories(2)
	store.On("GetAllStories", mock.Anything).Return(stories, nil).Once()
	store.On("GetAllStories", mock.Anything).Return(nil, fmt.Errorf("%w: timeout", models.ErrStoriesUnavailable)).Once()
	expectDiaries(store, stories)

	agg := newTestAggregator(store, 2)
	defer agg.Close()

	good, err := agg.Refresh(context.Background())
	require.NoError(t, err)

	failed, err := agg.Refresh(context.Background())
	require.ErrorIs(t, err, models.ErrStoriesUnavailable)
	assert.False(t, failed.Loading)
	assert.Contains(t, failed.Error, "timeout")
	assert.Empty(t, cmp.Diff(good.Planets, failed.Planets))
	assert.Empty(t, cmp.Diff(failed, agg.State()))
}

func TestPlanetAggregator_StoreFailureWithoutSentinelIsWrapped(t *testing.T) {
	store := new(mocks.StoryStore)
	store.On("GetAllStories", mock.Anything).Return(nil, errors.New("boom")).Once()

	agg := newTestAggregator(store, 2)
	defer agg.Close()

	snap, err := agg.Refresh(context.Background())
	require.ErrorIs(t, err, models.ErrStoriesUnavailable)
	assert.NotEmpty(t, snap.Error)
	assert.Empty(t, snap.Planets)
	store.AssertNotCalled(t, "GetStoryByID", mock.Anything, mock.Anything)
}

func TestPlanetAggregator_SupersededCycleIsDiscarded(t *testing.T) {
	store := new(mocks.StoryStore)
	oldStories := testStories(1)
	newStories := testStories(2)

	started := make(chan struct{})
	store.On("GetAllStories", mock.Anything).Run(func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		close(started)
		<-ctx.Done()
	}).Return(oldStories, nil).Once()
	store.On("GetAllStories", mock.Anything).Return(newStories, nil).Once()
	expectDiaries(store, newStories)

	agg := newTestAggregator(store, 2)
	defer agg.Close()

	var (
		wg     sync.WaitGroup
		oldErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, oldErr = agg.Refresh(context.Background())
	}()
	<-started

	snap, err := agg.Refresh(context.Background())
	require.NoError(t, err)
	wg.Wait()

	assert.ErrorIs(t, oldErr, models.ErrCycleSuperseded)
	assert.Equal(t, uint64(2), snap.Generation)

	state := agg.State()
	assert.Equal(t, uint64(2), state.Generation)
	assert.Len(t, state.Planets, 2)
	assert.False(t, state.Loading)
}

func TestPlanetAggregator_CallerCancellationLeavesStateUnchanged(t *testing.T) {
	store := new(mocks.StoryStore)
	stories := testStories(2)
	store.On("GetAllStories", mock.Anything).Return(stories, nil).Once()
	expectDiaries(store, stories)

	started := make(chan struct{})
	store.On("GetAllStories", mock.Anything).Run(func(args mock.Arguments) {
		close(started)
		<-args.Get(0).(context.Context).Done()
	}).Return(nil, context.Canceled).Once()

	agg := newTestAggregator(store, 2)
	defer agg.Close()

	before, err := agg.Refresh(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	_, err = agg.Refresh(ctx)
	require.ErrorIs(t, err, context.Canceled)

	after := agg.State()
	assert.False(t, after.Loading)
	assert.Empty(t, after.Error)
	assert.Empty(t, cmp.Diff(before.Planets, after.Planets))
}

func TestPlanetAggregator_DiaryConcurrencyIsBounded(t *testing.T) {
	store := new(mocks.StoryStore)
	stories := testStories(8)
	store.On("GetAllStories", mock.Anything).Return(stories, nil).Once()

	var inFlight, peak atomic.Int32
	for i := range stories {
		story := stories[i]
		store.On("GetStoryByID", mock.Anything, story.ID).Run(func(mock.Arguments) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
		}).Return(&story, nil)
	}

	agg := newTestAggregator(store, 2)
	defer agg.Close()

	snap, err := agg.Refresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Planets, 8)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPlanetAggregator_Lookups(t *testing.T) {
	store := new(mocks.StoryStore)
	stories := testStories(2)
	store.On("GetAllStories", mock.Anything).Return(stories, nil).Once()
	expectDiaries(store, stories)

	agg := newTestAggregator(store, 2)
	defer agg.Close()
	_, err := agg.Refresh(context.Background())
	require.NoError(t, err)

	planet, err := agg.GetPlanetByID("planet_" + stories[1].ID)
	require.NoError(t, err)
	assert.Equal(t, stories[1].ID, planet.StoryID)

	planet, err = agg.GetPlanetByStoryID(stories[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "planet_"+stories[0].ID, planet.ID)

	_, err = agg.GetPlanetByID("planet_missing")
	assert.ErrorIs(t, err, models.ErrPlanetNotFound)
	_, err = agg.GetPlanetByStoryID("missing")
	assert.ErrorIs(t, err, models.ErrPlanetNotFound)
}

func TestPlanetAggregator_SubscribeReceivesLatestSnapshot(t *testing.T) {
	store := new(mocks.StoryStore)
	stories := testStories(2)
	store.On("GetAllStories", mock.Anything).Return(stories, nil).Once()
	expectDiaries(store, stories)

	agg := newTestAggregator(store, 2)
	defer agg.Close()

	ch, unsubscribe := agg.Subscribe()
	_, err := agg.Refresh(context.Background())
	require.NoError(t, err)

	snap := <-ch
	assert.Equal(t, uint64(1), snap.Generation)
	assert.False(t, snap.Loading)
	assert.Len(t, snap.Planets, 2)

	unsubscribe()
	_, ok := <-ch
	assert.False(t, ok)
	unsubscribe()
}

func TestPlanetAggregator_StartPublishesInBackground(t *testing.T) {
	store := new(mocks.StoryStore)
	stories := testStories(3)
	store.On("GetAllStories", mock.Anything).Return(stories, nil).Once()
	expectDiaries(store, stories)

	agg := newTestAggregator(store, 2)
	agg.Start()

	assert.Eventually(t, func() bool {
		s := agg.State()
		return s.Generation == 1 && !s.Loading
	}, time.Second, 5*time.Millisecond)
	agg.Close()
	assert.Len(t, agg.State().Planets, 3)
}

func TestPlanetAggregator_ClosedNeverPublishes(t *testing.T) {
	store := new(mocks.StoryStore)
	started := make(chan struct{})
	store.On("GetAllStories", mock.Anything).Run(func(args mock.Arguments) {
		close(started)
		<-args.Get(0).(context.Context).Done()
	}).Return(nil, context.Canceled).Once()

	agg := newTestAggregator(store, 2)
	ch, _ := agg.Subscribe()
	<-ch

	done := make(chan error, 1)
	go func() {
		_, err := agg.Refresh(context.Background())
		done <- err
	}()
	<-started
	agg.Close()

	assert.ErrorIs(t, <-done, models.ErrAggregatorClosed)
	assert.Empty(t, agg.State().Planets)

	_, err := agg.Refresh(context.Background())
	assert.ErrorIs(t, err, models.ErrAggregatorClosed)

	agg.TriggerRefresh()
	agg.Close()

	// Канал подписчика закрыт при Close
	for range ch {
	}
	closedCh, unsubscribe := agg.Subscribe()
	_, ok := <-closedCh
	assert.False(t, ok)
	unsubscribe()
	store.AssertNumberOfCalls(t, "GetAllStories", 1)
}
