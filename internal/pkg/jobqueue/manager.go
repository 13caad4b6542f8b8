package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// Manager runs the worker on a schedule plus the stuck-job and dedup-marker
// housekeeping loops.
type Manager struct {
	worker *Worker
	store  *Store
	cfg    ManagerConfig

	batchTicker *time.Ticker
	stuckTicker *time.Ticker
	purgeTicker *time.Ticker
	triggerCh   chan struct{}
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
}

var (
	globalManager *Manager
	managerMu     sync.Mutex
)

func NewManager(worker *Worker, store *Store, cfg ManagerConfig) *Manager {
	return &Manager{
		worker:    worker,
		store:     store,
		cfg:       cfg,
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

// InitializeManager installs the process-wide manager
func InitializeManager(m *Manager) {
	managerMu.Lock()
	defer managerMu.Unlock()
	globalManager = m
}

// GetManager returns the process-wide manager or nil before initialization
func GetManager() *Manager {
	managerMu.Lock()
	defer managerMu.Unlock()
	return globalManager
}

// Start starts the background loops
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting worker and housekeeping tasks")

	m.batchTicker = time.NewTicker(m.cfg.Interval)
	m.wg.Add(1)
	go m.batchWorker(m.stopCh)

	m.stuckTicker = time.NewTicker(m.cfg.StuckScanInterval)
	m.wg.Add(1)
	go m.stuckWorker(m.stopCh)

	m.purgeTicker = time.NewTicker(m.cfg.PurgeInterval)
	m.wg.Add(1)
	go m.purgeWorker(m.stopCh)

	log.Infof("[JobQueue Manager] Started (batch every %s, stuck after %s)", m.cfg.Interval, m.cfg.StuckAfter)
}

// Stop stops the loops and waits for a running batch to finish
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping...")
	m.batchTicker.Stop()
	m.stuckTicker.Stop()
	m.purgeTicker.Stop()

	close(m.stopCh)
	m.running = false
	m.wg.Wait()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Trigger asks the batch loop to run now. Extra triggers while one is
// pending are dropped.
func (m *Manager) Trigger() {
	select {
	case m.triggerCh <- struct{}{}:
	default:
	}
}

// RunNow runs one batch synchronously
func (m *Manager) RunNow(ctx context.Context) (BatchResult, error) {
	return m.worker.RunBatch(ctx)
}

func (m *Manager) batchWorker(stop <-chan struct{}) {
	defer m.wg.Done()
	for {
		select {
		case <-stop:
			log.Info("[JobQueue Manager] Batch worker stopping")
			return
		case <-m.batchTicker.C:
		case <-m.triggerCh:
		}
		if _, err := m.worker.RunBatch(context.Background()); err != nil {
			log.Errorf("[JobQueue Manager] Batch error: %v", err)
		}
	}
}

func (m *Manager) stuckWorker(stop <-chan struct{}) {
	defer m.wg.Done()
	for {
		select {
		case <-stop:
			return
		case <-m.stuckTicker.C:
			if _, _, err := m.store.RecoverStuck(context.Background(), m.cfg.StuckAfter); err != nil {
				log.Errorf("[JobQueue Manager] Stuck job recovery error: %v", err)
			}
		}
	}
}

func (m *Manager) purgeWorker(stop <-chan struct{}) {
	defer m.wg.Done()
	for {
		select {
		case <-stop:
			return
		case <-m.purgeTicker.C:
			cutoff := time.Now().Add(-m.cfg.Retention)
			n, err := m.store.PurgeProcessedBefore(context.Background(), cutoff)
			if err != nil {
				log.Errorf("[JobQueue Manager] Purge error: %v", err)
				continue
			}
			if n > 0 {
				log.Infof("[JobQueue Manager] Purged %d processed event markers", n)
			}
		}
	}
}
