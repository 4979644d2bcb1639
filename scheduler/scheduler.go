package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog/log"

	"yamato/config"
	"yamato/metrics"
	"yamato/units"
)

// Scheduler は単位マスタ (TANI.CSV) の定期再読込を行います。
type Scheduler struct {
	store  *units.Store
	domain *metrics.Domain
	path   func() string
	cron   *gocron.Scheduler

	mu      sync.Mutex
	lastRun time.Time
	lastErr error
}

type Option func(*Scheduler)

// WithPath は TANI.CSV の場所の取得方法を差し替えます。既定は設定ファイルの taniPath です。
func WithPath(fn func() string) Option {
	return func(s *Scheduler) { s.path = fn }
}

func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.cron = gocron.NewScheduler(loc) }
}

func New(store *units.Store, domain *metrics.Domain, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:  store,
		domain: domain,
		path:   func() string { return config.GetSettings().TaniPath },
		cron:   gocron.NewScheduler(time.Local),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start は毎日 at (HH:MM) に再読込するジョブを登録して開始します。
func (s *Scheduler) Start(at string) error {
	_, err := s.cron.Every(1).Days().At(at).Do(func() {
		if err := s.ReloadUnits(); err != nil {
			log.Error().Err(err).Msg("scheduled unit reload failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule unit reload at %q: %w", at, err)
	}
	s.cron.StartAsync()
	log.Info().Str("at", at).Msg("unit reload scheduled")
	return nil
}

// ReloadUnits は今すぐ再読込します。失敗しても現在の対応表はそのまま残ります。
func (s *Scheduler) ReloadUnits() error {
	err := s.store.Reload(s.path())
	s.domain.UnitReload(err)

	s.mu.Lock()
	s.lastRun = time.Now()
	s.lastErr = err
	s.mu.Unlock()
	return err
}

// LastRun は最後の再読込の時刻と結果です。
func (s *Scheduler) LastRun() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastErr
}

func (s *Scheduler) Jobs() int {
	return len(s.cron.Jobs())
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}
