package jobqueue

import (
	"context"
	"fmt"
	"sync"

	"github.com/gofiber/fiber/v2/log"
	"github.com/robfig/cron/v3"
)

// Manager runs the job queue together with the periodic maintenance tasks.
type Manager struct {
	queue   *Queue
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	running bool
}

func NewManager(queue *Queue) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		queue:  queue,
		cron:   cron.New(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// AddSchedule registers task to run on spec (standard cron syntax or
// descriptors such as "@every 15m"). An empty spec disables the task.
func (m *Manager) AddSchedule(name, spec string, task func(ctx context.Context) error) error {
	if spec == "" {
		log.Infof("[JobQueue Manager] Schedule %s disabled", name)
		return nil
	}
	_, err := m.cron.AddFunc(spec, func() {
		if err := task(m.ctx); err != nil {
			log.Errorf("[JobQueue Manager] Scheduled task %s failed: %v", name, err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}
	log.Infof("[JobQueue Manager] Scheduled %s (%s)", name, spec)
	return nil
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()
	m.cron.Start()

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	// Wait for running scheduled tasks before stopping the workers.
	<-m.cron.Stop().Done()
	m.cancel()
	m.running = false

	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
