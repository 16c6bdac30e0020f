package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// State 流水线初始化状态
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateFailed        State = "failed"
)

// DefaultInitTimeout 单次初始化的默认超时时间
const DefaultInitTimeout = 30 * time.Second

// ErrNotReady 流水线尚未就绪
var ErrNotReady = errors.New("pipeline is not ready")

// Status 流水线状态快照
type Status struct {
	State      State  `json:"state"`
	StoreReady bool   `json:"vectorStore"`
	ChainReady bool   `json:"qaChain"`
	Attempts   int    `json:"initAttempts"`
	LastError  string `json:"lastError,omitempty"`
}

// Manager 管理流水线的惰性初始化
// 并发的首次调用共享同一次初始化，失败后的下一次调用会重新尝试
type Manager struct {
	build   Builder
	timeout time.Duration
	logger  *logrus.Logger

	group singleflight.Group

	mu       sync.RWMutex
	state    State
	pipeline *Pipeline
	attempts int
	lastErr  error
}

// ManagerOption 管理器配置选项
type ManagerOption func(*Manager)

// WithInitTimeout 设置单次初始化超时时间
func WithInitTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager 创建流水线管理器
func NewManager(build Builder, opts ...ManagerOption) *Manager {
	m := &Manager{
		build:   build,
		timeout: DefaultInitTimeout,
		logger:  logrus.StandardLogger(),
		state:   StateUninitialized,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get 返回已就绪的流水线，必要时发起或等待初始化
// 调用方的取消只影响自身的等待，不会中断正在进行的初始化
func (m *Manager) Get(ctx context.Context) (*Pipeline, error) {
	if p := m.readyPipeline(); p != nil {
		return p, nil
	}

	ch := m.group.DoChan("pipeline", func() (interface{}, error) {
		return m.initialize()
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Pipeline), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrNotReady, ctx.Err())
	}
}

// Warmup 在后台发起初始化
func (m *Manager) Warmup(ctx context.Context) {
	go func() {
		if _, err := m.Get(ctx); err != nil {
			m.logger.WithError(err).Warn("Pipeline warmup failed, will retry on next request")
		}
	}()
}

// Status 返回当前状态快照
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := Status{
		State:    m.state,
		Attempts: m.attempts,
	}
	// 上一次尝试失败且尚未重试
	if m.state == StateUninitialized && m.lastErr != nil {
		status.State = StateFailed
	}
	if m.pipeline != nil {
		status.StoreReady = m.pipeline.Store != nil
		status.ChainReady = m.pipeline.Chain != nil
	}
	if m.lastErr != nil {
		status.LastError = m.lastErr.Error()
	}
	return status
}

// Close 释放已构建的流水线
func (m *Manager) Close() error {
	m.mu.Lock()
	p := m.pipeline
	m.pipeline = nil
	m.state = StateUninitialized
	m.mu.Unlock()
	return p.Close()
}

// readyPipeline 就绪时返回流水线，否则返回nil
func (m *Manager) readyPipeline() *Pipeline {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == StateReady {
		return m.pipeline
	}
	return nil
}

// initialize 执行一次初始化，只在singleflight中调用
func (m *Manager) initialize() (p *Pipeline, err error) {
	m.mu.Lock()
	if m.state == StateReady {
		p = m.pipeline
		m.mu.Unlock()
		return p, nil
	}
	m.state = StateInitializing
	m.attempts++
	attempt := m.attempts
	m.mu.Unlock()

	entry := m.logger.WithField("attempt", attempt)
	entry.Info("Initializing pipeline")
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("pipeline builder panicked: %v", r)
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		if err != nil {
			// 失败后回到未初始化，保留错误供状态查询
			m.state = StateUninitialized
			m.lastErr = err
			entry.WithError(err).Error("Pipeline initialization failed")
			return
		}
		m.state = StateReady
		m.pipeline = p
		m.lastErr = nil
		entry.WithFields(logrus.Fields{
			"mock":     p.Mock,
			"model":    p.Model,
			"duration": time.Since(start).String(),
		}).Info("Pipeline ready")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	p, err = m.build(ctx)
	if err == nil && p == nil {
		err = errors.New("pipeline builder returned nil")
	}
	if err != nil {
		return nil, fmt.Errorf("initialization failed: %w", err)
	}
	return p, nil
}
