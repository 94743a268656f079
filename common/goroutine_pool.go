package common

import (
	"fmt"
	"runtime"

	"github.com/panjf2000/ants/v2"
	log "github.com/sirupsen/logrus"
)

type PoolConfig struct {
	MaxWorkers int // <= 0 means one worker per CPU
}

// NewPool creates the shared goroutine pool used for per-root path computation.
func NewPool(config PoolConfig) (*ants.Pool, error) {
	workers := config.MaxWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(p any) {
		log.Errorf("goroutine pool worker panic: %v", p)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create ants goroutine pool: %w", err)
	}

	log.Infof("goroutine pool created, workers: %d", workers)
	return pool, nil
}
