package devserver

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Sweeper periodically drops presigned upload slots that expired
// without ever being claimed. Only meaningful for the memory backend;
// a real bucket enforces signature expiry itself.
type Sweeper struct {
	cron    *cron.Cron
	backend *MemoryBackend
	log     zerolog.Logger
}

func NewSweeper(backend *MemoryBackend, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		cron:    cron.New(cron.WithSeconds()),
		backend: backend,
		log:     log.With().Str("component", "sweeper").Logger(),
	}
}

func (s *Sweeper) Start() error {
	if s.backend == nil {
		return nil
	}

	if _, err := s.cron.AddFunc("0 * * * * *", s.sweep); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

func (s *Sweeper) Stop() {
	if s.backend == nil {
		return
	}
	<-s.cron.Stop().Done()
}

func (s *Sweeper) sweep() {
	if removed := s.backend.SweepExpiredSlots(); removed > 0 {
		s.log.Info().Int("removed", removed).Msg("expired upload slots swept")
	}
}
