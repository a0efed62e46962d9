package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stream-pipeline/internal/broker"
	"stream-pipeline/internal/logging"
	"stream-pipeline/internal/metrics"
)

// AdaptiveConfig tunes an AdaptiveManager.
type AdaptiveConfig struct {
	Topic         string
	GroupID       string
	MinConsumers  int
	MaxConsumers  int
	ScaleUpLag    int64 // add a consumer when lag exceeds this
	ScaleDownLag  int64 // remove one when lag falls below this
	CheckInterval time.Duration
}

// poolMember is one running consumer with its own stop handle.
type poolMember struct {
	consumer *broker.Consumer
	cancel   context.CancelFunc
	done     chan struct{}
}

// AdaptiveManager maintains between MinConsumers and MaxConsumers
// homogeneous consumers on one topic, adding or removing at most one
// per check interval based on estimated lag.
type AdaptiveManager struct {
	client  *broker.Client
	handler broker.Handler
	cfg     AdaptiveConfig

	mu      sync.Mutex
	members []*poolMember

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewAdaptive builds a manager; Start launches it.
func NewAdaptive(client *broker.Client, handler broker.Handler, cfg AdaptiveConfig) *AdaptiveManager {
	return &AdaptiveManager{client: client, handler: handler, cfg: cfg, stop: make(chan struct{})}
}

// Start launches the minimum consumer count and the load-check loop.
func (m *AdaptiveManager) Start(ctx context.Context) error {
	for i := 0; i < m.cfg.MinConsumers; i++ {
		if err := m.addConsumer(ctx); err != nil {
			return err
		}
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.CheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.checkLoad(ctx)
			case <-m.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// checkLoad estimates group lag and scales the pool by one when a
// threshold is crossed.
func (m *AdaptiveManager) checkLoad(ctx context.Context) {
	stats, err := m.client.GroupLag(ctx, m.cfg.Topic, m.cfg.GroupID)
	if err != nil {
		logging.Error("Adaptive pool: lag check failed: %v", err)
		return
	}
	metrics.ConsumerLag.WithLabelValues(m.cfg.Topic).Set(float64(stats.TotalLag))
	logging.Debug("Adaptive pool: lag=%d consumers=%d", stats.TotalLag, m.Size())

	switch {
	case stats.TotalLag > m.cfg.ScaleUpLag && m.Size() < m.cfg.MaxConsumers:
		logging.Info("Adaptive pool: high lag (%d), scaling up", stats.TotalLag)
		if err := m.addConsumer(ctx); err != nil {
			logging.Error("Adaptive pool: scale up failed: %v", err)
		}
	case stats.TotalLag < m.cfg.ScaleDownLag && m.Size() > m.cfg.MinConsumers:
		logging.Info("Adaptive pool: low lag (%d), scaling down", stats.TotalLag)
		m.removeConsumer()
	}
}

func (m *AdaptiveManager) addConsumer(ctx context.Context) error {
	consumer, err := m.client.NewGroupConsumer(m.cfg.GroupID, broker.ConsumerOptions{})
	if err != nil {
		return fmt.Errorf("adaptive pool: %w", err)
	}
	if err := consumer.Subscribe(m.cfg.Topic); err != nil {
		consumer.Close()
		return fmt.Errorf("adaptive pool: %w", err)
	}

	memberCtx, cancel := context.WithCancel(ctx)
	member := &poolMember{consumer: consumer, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(member.done)
		consumer.Run(memberCtx, m.handler)
		consumer.Close()
	}()

	m.mu.Lock()
	m.members = append(m.members, member)
	size := len(m.members)
	m.mu.Unlock()

	metrics.ActiveConsumers.WithLabelValues("adaptive").Set(float64(size))
	logging.Info("Adaptive pool: consumer added, total %d", size)
	return nil
}

func (m *AdaptiveManager) removeConsumer() {
	m.mu.Lock()
	if len(m.members) == 0 {
		m.mu.Unlock()
		return
	}
	member := m.members[len(m.members)-1]
	m.members = m.members[:len(m.members)-1]
	size := len(m.members)
	m.mu.Unlock()

	member.cancel()
	<-member.done

	metrics.ActiveConsumers.WithLabelValues("adaptive").Set(float64(size))
	logging.Info("Adaptive pool: consumer removed, total %d", size)
}

// Size returns the current consumer count.
func (m *AdaptiveManager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.members)
}

// Stats returns the pool size plus per-partition offsets and lag for
// the pool's group.
func (m *AdaptiveManager) Stats(ctx context.Context) (*broker.GroupStats, error) {
	stats, err := m.client.GroupLag(ctx, m.cfg.Topic, m.cfg.GroupID)
	if err != nil {
		return nil, err
	}
	// The broker reports members per group; the pool's own count is
	// authoritative for this process.
	stats.ActiveConsumers = m.Size()
	return stats, nil
}

// Stop winds the pool down and waits for every member to exit.
func (m *AdaptiveManager) Stop() {
	close(m.stop)
	m.mu.Lock()
	members := m.members
	m.members = nil
	m.mu.Unlock()

	for _, member := range members {
		member.cancel()
		<-member.done
	}
	m.wg.Wait()
	metrics.ActiveConsumers.WithLabelValues("adaptive").Set(0)
	logging.Info("Adaptive pool stopped")
}
