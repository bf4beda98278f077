package rowsync

import (
	"github.com/go-kit/log"
	"github.com/pkg/errors"

	"github.com/agentworkforce/rowsync/internal/db"
	"github.com/agentworkforce/rowsync/internal/monitor"
	"github.com/agentworkforce/rowsync/internal/poke"
)

// DefaultResetThreshold is the changed-key count at which pull abandons
// the incremental diff and emits a full clear-and-repopulate patch.
const DefaultResetThreshold = 1000

type Options struct {
	DB             db.Transactor
	Poker          poke.Poker
	Logger         log.Logger
	Monitor        *monitor.Monitor
	CVRCacheSize   int
	ResetThreshold int
}

// Service is the sync core: Push applies ordered client mutations, Pull
// computes per-client patches.
type Service struct {
	db             db.Transactor
	poker          poke.Poker
	lg             log.Logger
	mon            *monitor.Monitor
	cache          *CVRCache
	resetThreshold int
}

func NewService(opts Options) (*Service, error) {
	if opts.DB == nil {
		return nil, errors.New("service requires a transactor")
	}
	poker := opts.Poker
	if poker == nil {
		poker = poke.NopPoker{}
	}
	lg := opts.Logger
	if lg == nil {
		lg = log.NewNopLogger()
	}
	resetThreshold := opts.ResetThreshold
	if resetThreshold <= 0 {
		resetThreshold = DefaultResetThreshold
	}
	cache, err := NewCVRCache(opts.CVRCacheSize)
	if err != nil {
		return nil, err
	}
	return &Service{
		db:             opts.DB,
		poker:          poker,
		lg:             lg,
		mon:            opts.Monitor,
		cache:          cache,
		resetThreshold: resetThreshold,
	}, nil
}
