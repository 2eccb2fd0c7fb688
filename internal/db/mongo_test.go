package db

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vetle/clinicd/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		MongoURI:         "mongodb://localhost:27017",
		DatabaseName:     "clinic",
		ConnectRetries:   3,
		ConnectBaseDelay: time.Millisecond,
	}
}

// offlineClient builds a client handle without any I/O; the driver dials
// lazily, so this is safe in tests that never run commands.
func offlineClient(t *testing.T) *mongo.Client {
	t.Helper()
	opts := options.Client().
		ApplyURI("mongodb://localhost:27017").
		SetServerSelectionTimeout(100 * time.Millisecond).
		SetConnectTimeout(100 * time.Millisecond)
	client, err := mongo.Connect(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { client.Disconnect(context.Background()) })
	return client
}

func TestBackoffDelay(t *testing.T) {
	base := 500 * time.Millisecond
	assert.Equal(t, 500*time.Millisecond, backoffDelay(base, 1))
	assert.Equal(t, time.Second, backoffDelay(base, 2))
	assert.Equal(t, 2*time.Second, backoffDelay(base, 3))
}

func TestConnect_RetriesThenFails(t *testing.T) {
	m := NewManager(zerolog.Nop(), testConfig())

	var attempts atomic.Int32
	m.dialFn = func(ctx context.Context) (*mongo.Client, error) {
		attempts.Add(1)
		return nil, errors.New("connection refused")
	}

	_, err := m.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all mongodb connection attempts failed")
	assert.Equal(t, int32(3), attempts.Load())
}

func TestConnect_SucceedsAfterRetry(t *testing.T) {
	m := NewManager(zerolog.Nop(), testConfig())
	m.startDelay = time.Millisecond
	client := offlineClient(t)

	var attempts atomic.Int32
	m.dialFn = func(ctx context.Context) (*mongo.Client, error) {
		if attempts.Add(1) < 3 {
			return nil, errors.New("transient")
		}
		return client, nil
	}

	db, err := m.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "clinic", db.Name())
	assert.Equal(t, int32(3), attempts.Load())
}

func TestConnect_ReusesEstablishedClient(t *testing.T) {
	m := NewManager(zerolog.Nop(), testConfig())
	client := offlineClient(t)

	var attempts atomic.Int32
	m.dialFn = func(ctx context.Context) (*mongo.Client, error) {
		attempts.Add(1)
		return client, nil
	}

	_, err := m.Connect(context.Background())
	require.NoError(t, err)
	_, err = m.Connect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), attempts.Load())
}

func TestConnect_ConcurrentCallersShareAttempt(t *testing.T) {
	m := NewManager(zerolog.Nop(), testConfig())
	client := offlineClient(t)

	var attempts atomic.Int32
	release := make(chan struct{})
	m.dialFn = func(ctx context.Context) (*mongo.Client, error) {
		attempts.Add(1)
		<-release
		return client, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Connect(context.Background())
			assert.NoError(t, err)
		}()
	}

	// Let the goroutines pile onto the in-flight attempt.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), attempts.Load(), "concurrent callers must share one dial")
}

func TestConnect_FirstConnectHookFiresOnce(t *testing.T) {
	m := NewManager(zerolog.Nop(), testConfig())
	m.startDelay = time.Millisecond
	client := offlineClient(t)
	m.dialFn = func(ctx context.Context) (*mongo.Client, error) { return client, nil }

	var fired atomic.Int32
	m.OnFirstConnect(func() { fired.Add(1) })

	_, err := m.Connect(context.Background())
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)

	// A reconnect after disconnect must not re-arm the hook.
	require.NoError(t, m.Disconnect(context.Background()))
	_, err = m.Connect(context.Background())
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestConnect_ContextCancelledDuringBackoff(t *testing.T) {
	cfg := testConfig()
	cfg.ConnectBaseDelay = time.Hour
	m := NewManager(zerolog.Nop(), cfg)
	m.dialFn = func(ctx context.Context) (*mongo.Client, error) {
		return nil, errors.New("down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.Connect(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
