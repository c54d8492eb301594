package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storyteller-server/internal/interfaces"
	"storyteller-server/internal/models"
	"storyteller-server/internal/projection"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultDiaryConcurrency = 8

// PlanetAggregator выполняет циклы обновления: истории, планеты, дневники, публикация снимка.
//
// Каждый цикл получает новый номер поколения и отменяет предыдущий незавершенный цикл.
// Результат устаревшего цикла не публикуется. После Close ни один цикл ничего не публикует.
type PlanetAggregator struct {
	store       interfaces.StoryStore
	projector   *projection.Projector
	logger      *zap.Logger
	concurrency int
	now         func() time.Time

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	mu           sync.Mutex
	generation   uint64
	cancelCycle  context.CancelFunc
	closed       bool
	current      models.Snapshot
	subscribers  map[int]*subscriber
	nextSubIndex int
}

type subscriber struct {
	ch   chan models.Snapshot
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// NewPlanetAggregator создает агрегатор. concurrency ограничивает параллельные запросы дневников.
func NewPlanetAggregator(store interfaces.StoryStore, projector *projection.Projector, concurrency int, logger *zap.Logger) *PlanetAggregator {
	if concurrency <= 0 {
		concurrency = defaultDiaryConcurrency
	}
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &PlanetAggregator{
		store:       store,
		projector:   projector,
		logger:      logger.Named("PlanetAggregator"),
		concurrency: concurrency,
		now:         time.Now,
		baseCtx:     baseCtx,
		baseCancel:  baseCancel,
		current: models.Snapshot{
			Planets: []models.PlanetView{},
			Books:   []models.Book{},
		},
		subscribers: make(map[int]*subscriber),
	}
}

// Start запускает первый цикл в фоне.
func (a *PlanetAggregator) Start() {
	a.logger.Info("Starting initial fetch cycle")
	a.TriggerRefresh()
}

// TriggerRefresh запускает цикл в фоне и не ждет его завершения.
func (a *PlanetAggregator) TriggerRefresh() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.wg.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.wg.Done()
		if _, err := a.Refresh(a.baseCtx); err != nil && !isQuietCycleError(err) {
			a.logger.Warn("Background fetch cycle failed", zap.Error(err))
		}
	}()
}

func isQuietCycleError(err error) bool {
	return errors.Is(err, models.ErrCycleSuperseded) ||
		errors.Is(err, models.ErrAggregatorClosed) ||
		errors.Is(err, context.Canceled)
}

// Refresh выполняет один цикл синхронно и возвращает опубликованный снимок.
//
// Ошибки: models.ErrStoriesUnavailable (снимок с Error возвращается вместе с ней),
// models.ErrCycleSuperseded, models.ErrAggregatorClosed, ошибка ctx.
func (a *PlanetAggregator) Refresh(ctx context.Context) (models.Snapshot, error) {
	start := a.now()

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		fetchCyclesTotal.WithLabelValues(cycleResultClosed).Inc()
		return models.Snapshot{}, models.ErrAggregatorClosed
	}
	if a.cancelCycle != nil {
		a.cancelCycle()
	}
	a.generation++
	gen := a.generation
	cycleCtx, cancel := context.WithCancel(ctx)
	stopOnClose := context.AfterFunc(a.baseCtx, cancel)
	a.cancelCycle = cancel

	loading := a.current
	loading.Loading = true
	a.publishLocked(loading)
	a.mu.Unlock()

	defer func() {
		stopOnClose()
		cancel()
	}()

	log := a.logger.With(zap.Uint64("generation", gen))
	log.Debug("Fetch cycle started")

	stories, err := a.store.GetAllStories(cycleCtx)
	if err != nil {
		return a.finishFailed(ctx, gen, err, start)
	}

	planets := a.projector.Planets(stories)
	books := make([]models.Book, len(planets))
	for i := range planets {
		books[i] = a.projector.Book(planets[i], stories[i])
	}
	if cycleCtx.Err() == nil {
		a.attachDiaries(cycleCtx, log, planets)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkCurrentLocked(gen); err != nil {
		return models.Snapshot{}, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		a.abandonLocked()
		fetchCyclesTotal.WithLabelValues(cycleResultCanceled).Inc()
		return models.Snapshot{}, ctxErr
	}

	snap := models.Snapshot{
		Loading:    false,
		Planets:    planets,
		Books:      books,
		Generation: gen,
		UpdatedAt:  a.now(),
	}
	a.cancelCycle = nil
	a.publishLocked(snap)

	duration := a.now().Sub(start)
	fetchCyclesTotal.WithLabelValues(cycleResultSuccess).Inc()
	fetchCycleDuration.Observe(duration.Seconds())
	publishedPlanets.Set(float64(len(planets)))
	log.Info("Fetch cycle published", zap.Int("planets", len(planets)), zap.Duration("duration", duration))
	return snap, nil
}

// finishFailed обрабатывает ошибку загрузки всех историй.
func (a *PlanetAggregator) finishFailed(ctx context.Context, gen uint64, err error, start time.Time) (models.Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if checkErr := a.checkCurrentLocked(gen); checkErr != nil {
		return models.Snapshot{}, checkErr
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		a.abandonLocked()
		fetchCyclesTotal.WithLabelValues(cycleResultCanceled).Inc()
		return models.Snapshot{}, ctxErr
	}

	if !errors.Is(err, models.ErrStoriesUnavailable) {
		err = fmt.Errorf("%w: %v", models.ErrStoriesUnavailable, err)
	}

	// Данные прошлого успешного цикла сохраняются
	snap := a.current
	snap.Loading = false
	snap.Error = err.Error()
	snap.Generation = gen
	a.cancelCycle = nil
	a.publishLocked(snap)

	fetchCyclesTotal.WithLabelValues(cycleResultFailed).Inc()
	fetchCycleDuration.Observe(a.now().Sub(start).Seconds())
	a.logger.Error("Fetch cycle failed", zap.Uint64("generation", gen), zap.Error(err))
	return snap, err
}

// checkCurrentLocked отбрасывает результат закрытого агрегатора или устаревшего цикла.
func (a *PlanetAggregator) checkCurrentLocked(gen uint64) error {
	if a.closed {
		fetchCyclesTotal.WithLabelValues(cycleResultClosed).Inc()
		return models.ErrAggregatorClosed
	}
	if gen != a.generation {
		fetchCyclesTotal.WithLabelValues(cycleResultSuperseded).Inc()
		a.logger.Debug("Discarding superseded fetch cycle",
			zap.Uint64("generation", gen), zap.Uint64("current", a.generation))
		return models.ErrCycleSuperseded
	}
	return nil
}

// abandonLocked снимает флаг загрузки, если вызывающий ушел до конца цикла.
func (a *PlanetAggregator) abandonLocked() {
	a.cancelCycle = nil
	snap := a.current
	snap.Loading = false
	a.publishLocked(snap)
}

// attachDiaries загружает истории планет параллельно и ждет все запросы.
// Ошибка одной планеты оставляет ее без дневника.
func (a *PlanetAggregator) attachDiaries(ctx context.Context, log *zap.Logger, planets []models.PlanetView) {
	var g errgroup.Group
	g.SetLimit(a.concurrency)

	for i := range planets {
		g.Go(func() error {
			planet := &planets[i]
			story, err := a.store.GetStoryByID(ctx, planet.StoryID)
			switch {
			case errors.Is(err, models.ErrStoryNotFound):
				diaryFailuresTotal.WithLabelValues("not_found").Inc()
				log.Warn("Story for planet not found, publishing without diary", zap.String("planetID", planet.ID))
				return nil
			case err != nil:
				diaryFailuresTotal.WithLabelValues("error").Inc()
				log.Warn("Failed to fetch story for planet diary", zap.String("planetID", planet.ID), zap.Error(err))
				return nil
			}
			planet.DiaryContent = a.projector.Diary(*planet, *story)
			return nil
		})
	}
	_ = g.Wait()
}

// State возвращает текущий снимок. Снимок нельзя изменять.
func (a *PlanetAggregator) State() models.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// GetPlanetByID ищет планету в текущем снимке.
func (a *PlanetAggregator) GetPlanetByID(planetID string) (models.PlanetView, error) {
	planet, ok := a.State().FindPlanet(planetID)
	if !ok {
		return models.PlanetView{}, models.ErrPlanetNotFound
	}
	return planet, nil
}

// GetPlanetByStoryID ищет планету по ID исходной истории.
func (a *PlanetAggregator) GetPlanetByStoryID(storyID string) (models.PlanetView, error) {
	planet, ok := a.State().FindPlanetByStory(storyID)
	if !ok {
		return models.PlanetView{}, models.ErrPlanetNotFound
	}
	return planet, nil
}

// Subscribe возвращает канал снимков, начиная с текущего.
// Медленный подписчик получает только последний снимок. unsubscribe закрывает канал.
func (a *PlanetAggregator) Subscribe() (<-chan models.Snapshot, func()) {
	sub := &subscriber{ch: make(chan models.Snapshot, 1)}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		sub.close()
		return sub.ch, func() {}
	}
	id := a.nextSubIndex
	a.nextSubIndex++
	a.subscribers[id] = sub
	sub.ch <- a.current
	snapshotSubscribers.Inc()

	return sub.ch, func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if _, ok := a.subscribers[id]; ok {
			delete(a.subscribers, id)
			snapshotSubscribers.Dec()
		}
		sub.close()
	}
}

// publishLocked заменяет текущий снимок и раздает его подписчикам без блокировки.
func (a *PlanetAggregator) publishLocked(snap models.Snapshot) {
	a.current = snap
	for _, sub := range a.subscribers {
		select {
		case <-sub.ch: // выбрасываем непрочитанный старый снимок
		default:
		}
		select {
		case sub.ch <- snap:
		default:
		}
	}
}

// Close отменяет текущий цикл, закрывает подписки и ждет фоновые циклы.
func (a *PlanetAggregator) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	if a.cancelCycle != nil {
		a.cancelCycle()
		a.cancelCycle = nil
	}
	for id, sub := range a.subscribers {
		sub.close()
		delete(a.subscribers, id)
		snapshotSubscribers.Dec()
	}
	a.mu.Unlock()

	a.baseCancel()
	a.wg.Wait()
	a.logger.Info("Planet aggregator closed")
}
