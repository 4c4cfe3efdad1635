// ShelfRank - Catalog Recommendation and Caching Service
// Copyright 2026 ShelfRank Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfrank/shelfrank

package scheduler

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shelfrank/shelfrank/internal/cache"
	"github.com/shelfrank/shelfrank/internal/config"
	"github.com/shelfrank/shelfrank/internal/logging"
	"github.com/shelfrank/shelfrank/internal/models"
	"github.com/shelfrank/shelfrank/internal/recommend"
)

type fakeJobStore struct {
	users     []models.User
	prefs     map[int64][]models.Preference
	counts    []models.ActivityCounts
	itemIDs   []int64
	failUsers error

	mu         sync.Mutex
	popularity map[int64]float64
}

func (f *fakeJobStore) ListActiveUsers(ctx context.Context) ([]models.User, error) {
	if f.failUsers != nil {
		return nil, f.failUsers
	}
	return f.users, nil
}

func (f *fakeJobStore) GetUserPreferences(ctx context.Context, userID int64) ([]models.Preference, error) {
	return f.prefs[userID], nil
}

func (f *fakeJobStore) GetActivityCounts(ctx context.Context, since time.Time) ([]models.ActivityCounts, error) {
	return f.counts, nil
}

func (f *fakeJobStore) ListItemIDs(ctx context.Context) ([]int64, error) {
	return f.itemIDs, nil
}

func (f *fakeJobStore) UpdateItemPopularity(ctx context.Context, itemID int64, value float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.popularity == nil {
		f.popularity = make(map[int64]float64)
	}
	f.popularity[itemID] = value
	return nil
}

// fakeEngine counts computations and tracks peak concurrency.
type fakeEngine struct {
	mu         sync.Mutex
	calls      int
	inFlight   int
	peak       int
	perUser    map[int64]int
	emptyFor   map[int64]bool
	failFor    map[int64]error
	trendCalls int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		perUser:  make(map[int64]int),
		emptyFor: make(map[int64]bool),
		failFor:  make(map[int64]error),
	}
}

func (f *fakeEngine) Precompute(ctx context.Context, userID int64, category models.Category) (*recommend.ResultPage, error) {
	f.mu.Lock()
	f.calls++
	f.perUser[userID]++
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	fail := f.failFor[userID]
	empty := f.emptyFor[userID]
	f.mu.Unlock()

	// Hold the slot briefly so overlapping goroutines are observable.
	time.Sleep(time.Millisecond)

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if fail != nil {
		return nil, fail
	}
	if empty {
		return &recommend.ResultPage{Items: []recommend.ScoredItem{}}, nil
	}
	return &recommend.ResultPage{
		Items: []recommend.ScoredItem{
			{Item: models.CatalogItem{ID: 1, Category: category}, Score: 1},
		},
		TotalCount: 1,
		Page:       1,
		PageSize:   20,
	}, nil
}

func (f *fakeEngine) Trending(ctx context.Context, req recommend.TrendingRequest) (*recommend.ResultPage, error) {
	f.mu.Lock()
	f.trendCalls++
	f.mu.Unlock()
	return &recommend.ResultPage{}, nil
}

// recordingDispatcher counts notifications per user.
type recordingDispatcher struct {
	mu    sync.Mutex
	calls map[int64]int
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{calls: make(map[int64]int)}
}

func (d *recordingDispatcher) NotifyNewRecommendations(ctx context.Context, userID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls[userID]++
	return nil
}

func newTestCache(t *testing.T) *cache.Store {
	t.Helper()
	cs, err := cache.New(config.CacheConfig{Path: "", DefaultTTL: time.Minute}, logging.NewTestLogger(io.Discard))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Scheduler.BatchSize = 50
	return cfg
}

func TestRefreshBatchesBoundConcurrency(t *testing.T) {
	store := &fakeJobStore{prefs: make(map[int64][]models.Preference)}
	for i := int64(1); i <= 120; i++ {
		store.users = append(store.users, models.User{ID: i})
	}
	engine := newFakeEngine()
	dispatcher := newRecordingDispatcher()

	jobs := NewJobs(store, engine, newTestCache(t), dispatcher, testConfig(), logging.NewTestLogger(io.Discard))
	if err := jobs.RefreshRecommendations(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	// 120 users, no preferences: every user gets all 3 categories.
	if engine.calls != 120*len(models.AllCategories()) {
		t.Errorf("computations = %d, want %d", engine.calls, 120*len(models.AllCategories()))
	}
	if len(engine.perUser) != 120 {
		t.Errorf("users computed = %d, want 120", len(engine.perUser))
	}
	if engine.peak > 50 {
		t.Errorf("peak concurrent users = %d, want <= 50", engine.peak)
	}

	// Exactly one notification per user per run.
	for id, n := range dispatcher.calls {
		if n != 1 {
			t.Errorf("user %d notified %d times, want 1", id, n)
		}
	}
	if len(dispatcher.calls) != 120 {
		t.Errorf("notified %d users, want 120", len(dispatcher.calls))
	}
}

func TestRefreshHonorsCategoryOptIn(t *testing.T) {
	game := models.CategoryGame
	store := &fakeJobStore{
		users: []models.User{{ID: 1}},
		prefs: map[int64][]models.Preference{
			1: {{UserID: 1, Category: &game, Strength: 1.0}},
		},
	}
	engine := newFakeEngine()
	dispatcher := newRecordingDispatcher()
	cs := newTestCache(t)

	jobs := NewJobs(store, engine, cs, dispatcher, testConfig(), logging.NewTestLogger(io.Discard))
	if err := jobs.RefreshRecommendations(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	// A GAME-only opt-in gets exactly one computation and no cache
	// entries or notifications for the other categories.
	if engine.calls != 1 {
		t.Errorf("computations = %d, want 1", engine.calls)
	}
	ctx := context.Background()
	if _, ok, _ := cs.Get(ctx, cache.RecommendationsKey(1, models.CategoryGame)); !ok {
		t.Error("game entry missing")
	}
	for _, c := range []models.Category{models.CategoryFilm, models.CategoryBook} {
		if _, ok, _ := cs.Get(ctx, cache.RecommendationsKey(1, c)); ok {
			t.Errorf("unexpected %s entry for opted-out category", c)
		}
	}
	if dispatcher.calls[1] != 1 {
		t.Errorf("notifications = %d, want 1", dispatcher.calls[1])
	}
}

func TestRefreshGenreOnlyUserGetsAllCategories(t *testing.T) {
	gid := int64(7)
	store := &fakeJobStore{
		users: []models.User{{ID: 1}},
		prefs: map[int64][]models.Preference{
			1: {{UserID: 1, GenreID: &gid, Strength: 1.0}},
		},
	}
	engine := newFakeEngine()

	jobs := NewJobs(store, engine, newTestCache(t), newRecordingDispatcher(), testConfig(), logging.NewTestLogger(io.Discard))
	if err := jobs.RefreshRecommendations(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	// Genre rows are not category opt-ins.
	if engine.calls != len(models.AllCategories()) {
		t.Errorf("computations = %d, want %d", engine.calls, len(models.AllCategories()))
	}
}

func TestRefreshEmptyResultsSkipNotification(t *testing.T) {
	store := &fakeJobStore{
		users: []models.User{{ID: 1}},
		prefs: make(map[int64][]models.Preference),
	}
	engine := newFakeEngine()
	engine.emptyFor[1] = true
	dispatcher := newRecordingDispatcher()

	jobs := NewJobs(store, engine, newTestCache(t), dispatcher, testConfig(), logging.NewTestLogger(io.Discard))
	if err := jobs.RefreshRecommendations(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if dispatcher.calls[1] != 0 {
		t.Errorf("user with empty results was notified %d times", dispatcher.calls[1])
	}
}

func TestRefreshUserFailureDoesNotAbortRun(t *testing.T) {
	store := &fakeJobStore{
		users: []models.User{{ID: 1}, {ID: 2}, {ID: 3}},
		prefs: make(map[int64][]models.Preference),
	}
	engine := newFakeEngine()
	engine.failFor[2] = errors.New("store hiccup")
	dispatcher := newRecordingDispatcher()

	jobs := NewJobs(store, engine, newTestCache(t), dispatcher, testConfig(), logging.NewTestLogger(io.Discard))
	if err := jobs.RefreshRecommendations(context.Background()); err != nil {
		t.Fatalf("run failed on per-user error: %v", err)
	}

	if dispatcher.calls[1] != 1 || dispatcher.calls[3] != 1 {
		t.Error("healthy users not processed after a peer failure")
	}
	if dispatcher.calls[2] != 0 {
		t.Error("failed user was notified")
	}
}

func TestRefreshListFailureFailsRun(t *testing.T) {
	store := &fakeJobStore{failUsers: errors.New("store down")}

	jobs := NewJobs(store, newFakeEngine(), newTestCache(t), newRecordingDispatcher(), testConfig(), logging.NewTestLogger(io.Discard))
	if err := jobs.RefreshRecommendations(context.Background()); err == nil {
		t.Fatal("want run failure when listing users fails")
	}
}

func TestRecomputePopularityFormula(t *testing.T) {
	store := &fakeJobStore{
		itemIDs: []int64{1, 2},
		counts: []models.ActivityCounts{
			{ItemID: 1, Ratings: 4, Reviews: 3, ListAdds: 2},
		},
	}

	jobs := NewJobs(store, newFakeEngine(), newTestCache(t), newRecordingDispatcher(), testConfig(), logging.NewTestLogger(io.Discard))
	if err := jobs.RecomputePopularity(context.Background()); err != nil {
		t.Fatalf("recompute: %v", err)
	}

	// 4*1.0 + 3*2.0 + 2*0.5 = 11.
	if got := store.popularity[1]; got != 11 {
		t.Errorf("item 1 popularity = %f, want 11", got)
	}
	// Items without recent activity are rewritten to zero.
	if got, ok := store.popularity[2]; !ok || got != 0 {
		t.Errorf("item 2 popularity = (%f, %v), want (0, true)", got, ok)
	}
}

func TestWarmTrendingCoversAllCategories(t *testing.T) {
	engine := newFakeEngine()

	jobs := NewJobs(&fakeJobStore{}, engine, newTestCache(t), newRecordingDispatcher(), testConfig(), logging.NewTestLogger(io.Discard))
	if err := jobs.WarmTrending(context.Background()); err != nil {
		t.Fatalf("warm: %v", err)
	}

	// One call per category plus the cross-category page.
	if engine.trendCalls != len(models.AllCategories())+1 {
		t.Errorf("trending calls = %d, want %d", engine.trendCalls, len(models.AllCategories())+1)
	}
}

func TestExpireTrendingOnlyDropsTrendingKeys(t *testing.T) {
	cs := newTestCache(t)
	ctx := context.Background()

	keys := []string{
		cache.TrendingKey(models.CategoryFilm, 1, 20),
		cache.TrendingKey(models.CategoryGame, 1, 20),
		cache.RecommendationsKey(1, models.CategoryFilm),
	}
	for _, k := range keys {
		if err := cs.Set(ctx, k, []byte("x"), time.Minute); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	jobs := NewJobs(&fakeJobStore{}, newFakeEngine(), cs, newRecordingDispatcher(), testConfig(), logging.NewTestLogger(io.Discard))
	if err := jobs.ExpireTrending(ctx); err != nil {
		t.Fatalf("expire: %v", err)
	}

	for _, k := range keys {
		_, ok, _ := cs.Get(ctx, k)
		if strings.HasPrefix(k, "trending:") && ok {
			t.Errorf("trending key %s survived", k)
		}
		if strings.HasPrefix(k, "recs:") && !ok {
			t.Errorf("recommendation key %s was dropped", k)
		}
	}
}
