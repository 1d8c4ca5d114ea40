package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"media-client-bridge/internal/api"
	"media-client-bridge/internal/authgate"
	"media-client-bridge/internal/capability"
	"media-client-bridge/internal/config"
	"media-client-bridge/internal/keystore"
	"media-client-bridge/internal/keystore/keyring"
	"media-client-bridge/internal/logging"
	"media-client-bridge/internal/storage"
	"media-client-bridge/internal/telemetry"
	"media-client-bridge/internal/types"
)

// pruneAge is how long published decision events stay in the local queue
const pruneAge = 7 * 24 * time.Hour

// Manager coordinates all bridge components: storage, the credential
// keystore, the capability analyzer, the biometric gate, telemetry, and the
// local API server.
type Manager struct {
	mu     sync.RWMutex
	config *config.Config
	logger *logrus.Logger

	store     *storage.Store
	keystore  *keystore.Store
	analyzer  *capability.Analyzer
	gate      authgate.Gate
	recorder  *telemetry.Recorder
	publisher *telemetry.Publisher
	apiServer *api.Server

	isRunning bool
	startTime time.Time
	version   string

	ctx    context.Context
	cancel context.CancelFunc
}

// ManagerOption is a functional option for configuring the Manager
type ManagerOption func(*Manager)

// WithVersion sets the version reported by the manager
func WithVersion(version string) ManagerOption {
	return func(m *Manager) {
		m.version = version
	}
}

// NewManager creates a bridge manager and initializes every component
func NewManager(cfg *config.Config, opts ...ManagerOption) (*Manager, error) {
	logger := logging.Initialize(cfg.LogLevel)
	if err := logging.SetupFileLogging(logger, cfg.LogFile); err != nil {
		return nil, fmt.Errorf("failed to set up file logging: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		config:  cfg,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		version: "unknown",
	}

	for _, opt := range opts {
		opt(m)
	}

	if err := m.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return m, nil
}

// initializeComponents wires the component graph bottom-up
func (m *Manager) initializeComponents() error {
	m.logger.Info("Initializing bridge components")

	store, err := storage.Open(m.config.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	m.store = store

	provider, err := keyring.NewProvider(m.config.Keystore.Provider, m.config.Keystore.KeyDir)
	if err != nil {
		return fmt.Errorf("failed to initialize keyring provider: %w", err)
	}

	analyzer, err := capability.NewAnalyzerFromConfig(m.config.Capability, m.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize capability analyzer: %w", err)
	}
	m.analyzer = analyzer

	if m.config.Gate.Enabled {
		gate, err := authgate.NewGate(m.config.Gate, m.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize biometric gate: %w", err)
		}
		m.gate = gate
	}

	if m.config.Telemetry.Enabled {
		m.recorder = telemetry.NewRecorder(store, m.logger)

		publisher, err := telemetry.NewPublisher(store, m.config.Telemetry, m.logger)
		if err != nil {
			// Telemetry is best effort: a dead Redis must not block startup.
			// Decisions still queue locally and publish once it recovers.
			m.logger.WithError(err).Warn("Decision publisher unavailable, events will queue locally")
		} else {
			m.publisher = publisher
		}
	}

	// Credential events fan out to connected UI clients
	m.keystore = keystore.New(store, provider, m.config.Keystore, m.logger,
		keystore.WithEventCallback(m.onCredentialEvent))

	handlers := api.NewHandlers(m.config, m.logger, m.keystore, m.analyzer, m.gate, m.recorder, m.version)
	m.apiServer = api.NewServer(m.config, m.logger, handlers)

	if m.recorder != nil {
		m.recorder.SetCallback(m.onDecisionEvent)
	}

	m.logger.Info("Bridge components initialized")
	return nil
}

// Start runs the bridge until the context is canceled or Stop is called
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return fmt.Errorf("bridge is already running")
	}
	m.isRunning = true
	m.startTime = time.Now()
	m.mu.Unlock()

	m.logger.WithField("version", m.version).Info("Starting media client bridge")

	if m.publisher != nil {
		m.publisher.Start(m.ctx)
		go m.pruneLoop()
	}

	go func() {
		select {
		case <-ctx.Done():
			m.cancel()
		case <-m.ctx.Done():
		}
	}()

	return m.apiServer.Start(m.ctx)
}

// Stop shuts the bridge down gracefully
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return nil
	}
	m.isRunning = false
	m.mu.Unlock()

	m.logger.Info("Stopping media client bridge")
	m.cancel()

	if m.publisher != nil {
		if err := m.publisher.Stop(); err != nil {
			m.logger.WithError(err).Warn("Error stopping decision publisher")
		}
	}

	if err := m.store.Close(); err != nil {
		m.logger.WithError(err).Warn("Error closing storage")
	}

	m.logger.Info("Media client bridge stopped")
	return nil
}

// IsRunning reports whether the bridge is running
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isRunning
}

// Uptime returns how long the bridge has been running
func (m *Manager) Uptime() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.isRunning {
		return 0
	}
	return time.Since(m.startTime)
}

// Keystore exposes the credential store for CLI commands
func (m *Manager) Keystore() *keystore.Store {
	return m.keystore
}

// Analyzer exposes the capability analyzer for CLI commands
func (m *Manager) Analyzer() *capability.Analyzer {
	return m.analyzer
}

// pruneLoop periodically removes old published decision events
func (m *Manager) pruneLoop() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			pruned, err := m.publisher.Prune(pruneAge)
			if err != nil {
				m.logger.WithError(err).Warn("Failed to prune published decisions")
				continue
			}
			if pruned > 0 {
				m.logger.WithField("pruned", pruned).Debug("Old decision events pruned")
			}
		}
	}
}

// onDecisionEvent forwards recorded decisions to WebSocket clients
func (m *Manager) onDecisionEvent(event types.DecisionEvent) {
	m.apiServer.Handlers().WebSocketManager().BroadcastDecision(event)
}

// onCredentialEvent forwards credential lifecycle events to WebSocket clients
func (m *Manager) onCredentialEvent(event types.CredentialEvent) {
	if m.apiServer == nil {
		return
	}
	m.apiServer.Handlers().WebSocketManager().BroadcastCredential(event)
}
