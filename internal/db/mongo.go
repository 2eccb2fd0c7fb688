package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/singleflight"

	"github.com/vetle/clinicd/internal/config"
	"github.com/vetle/clinicd/internal/model"
)

const (
	serverSelectionTimeout = 5 * time.Second
	socketTimeout          = 45 * time.Second

	// monitorStartDelay lets the fresh connection settle before the
	// storage monitor begins polling.
	monitorStartDelay = 5 * time.Second
)

// Manager owns the shared Mongo client. Connection attempts retry with
// exponential backoff; concurrent callers during an in-flight attempt share
// it instead of dialing twice. The first successful connection arms the
// storage monitor (after a short delay) and runs a one-time super-admin
// existence check.
type Manager struct {
	logger zerolog.Logger
	cfg    *config.Config

	group singleflight.Group

	mu               sync.Mutex
	client           *mongo.Client
	firstConnectDone bool
	superAdminExists bool

	onFirstConnect func()
	startDelay     time.Duration

	// dialFn is swapped in tests.
	dialFn func(ctx context.Context) (*mongo.Client, error)
}

func NewManager(logger zerolog.Logger, cfg *config.Config) *Manager {
	m := &Manager{
		logger:     logger.With().Str("component", "mongo").Logger(),
		cfg:        cfg,
		startDelay: monitorStartDelay,
	}
	m.dialFn = m.dial
	return m
}

// OnFirstConnect registers a hook run once, shortly after the first
// successful connection. Must be set before Connect is first called.
func (m *Manager) OnFirstConnect(fn func()) {
	m.onFirstConnect = fn
}

// Connect returns the shared database handle, establishing the connection
// if needed. After the configured retries are exhausted the last error is
// returned and the clinic application must be treated as unavailable.
func (m *Manager) Connect(ctx context.Context) (*mongo.Database, error) {
	m.mu.Lock()
	if m.client != nil {
		client := m.client
		m.mu.Unlock()
		return client.Database(m.cfg.DatabaseName), nil
	}
	m.mu.Unlock()

	v, err, _ := m.group.Do("connect", func() (interface{}, error) {
		return m.connectWithRetry(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*mongo.Client).Database(m.cfg.DatabaseName), nil
}

func (m *Manager) connectWithRetry(ctx context.Context) (*mongo.Client, error) {
	var lastErr error

	for attempt := 1; attempt <= m.cfg.ConnectRetries; attempt++ {
		client, err := m.dialFn(ctx)
		if err == nil {
			m.logger.Info().Int("attempt", attempt).Msg("mongodb connected")
			m.adopt(ctx, client)
			return client, nil
		}

		lastErr = err
		m.logger.Error().Err(err).Int("attempt", attempt).Msg("mongodb connection attempt failed")

		if attempt < m.cfg.ConnectRetries {
			backoff := backoffDelay(m.cfg.ConnectBaseDelay, attempt)
			m.logger.Info().Dur("backoff", backoff).Msg("retrying mongodb connection")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return nil, fmt.Errorf("all mongodb connection attempts failed: %w", lastErr)
}

func (m *Manager) dial(ctx context.Context) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(m.cfg.MongoURI).
		SetServerSelectionTimeout(serverSelectionTimeout).
		SetSocketTimeout(socketTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, serverSelectionTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping: %w", err)
	}
	return client, nil
}

// adopt stores the live client and, on the first connection of the process
// lifetime, runs the super-admin check and schedules the monitor hook.
func (m *Manager) adopt(ctx context.Context, client *mongo.Client) {
	m.mu.Lock()
	m.client = client
	first := !m.firstConnectDone
	m.firstConnectDone = true
	m.mu.Unlock()

	if !first {
		return
	}

	exists, err := m.checkSuperAdmin(ctx, client)
	if err != nil {
		m.logger.Error().Err(err).Msg("super-admin existence check failed")
	} else {
		m.mu.Lock()
		m.superAdminExists = exists
		m.mu.Unlock()
	}

	if m.onFirstConnect != nil {
		time.AfterFunc(m.startDelay, m.onFirstConnect)
	}
}

func (m *Manager) checkSuperAdmin(ctx context.Context, client *mongo.Client) (bool, error) {
	col := client.Database(m.cfg.DatabaseName).Collection(model.CollectionUsers)
	n, err := col.CountDocuments(ctx, bson.M{"role": model.RoleSuperAdmin})
	if err != nil {
		return false, fmt.Errorf("count super admins: %w", err)
	}
	return n > 0, nil
}

// SuperAdminExists reports the cached result of the one-time check.
func (m *Manager) SuperAdminExists() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.superAdminExists
}

// Ping verifies the shared connection is usable, connecting first if
// needed.
func (m *Manager) Ping(ctx context.Context) error {
	db, err := m.Connect(ctx)
	if err != nil {
		return err
	}
	if err := db.RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// StorageStats returns the database's storage size in bytes via dbStats.
func (m *Manager) StorageStats(ctx context.Context) (int64, error) {
	db, err := m.Connect(ctx)
	if err != nil {
		return 0, err
	}

	var out struct {
		StorageSize float64 `bson:"storageSize"`
	}
	if err := db.RunCommand(ctx, bson.D{{Key: "dbStats", Value: 1}}).Decode(&out); err != nil {
		return 0, fmt.Errorf("dbStats: %w", err)
	}
	return int64(out.StorageSize), nil
}

// Disconnect tears down the shared client, if any.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	client := m.client
	m.client = nil
	m.mu.Unlock()

	if client == nil {
		return nil
	}
	return client.Disconnect(ctx)
}

// backoffDelay is base doubled per prior attempt: base, 2*base, 4*base, ...
func backoffDelay(base time.Duration, attempt int) time.Duration {
	return base << (attempt - 1)
}
