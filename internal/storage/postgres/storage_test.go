package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/groupflight/flightgroup/internal/storage"
	"github.com/groupflight/flightgroup/internal/storage/storagetest"
)

var integrationCounter uint64

func TestNewRequiresDSN(t *testing.T) {
	_, err := New(Config{DSN: "   "})
	assert.ErrorIs(t, err, ErrMissingDSN)
}

func TestNewFillsDefaults(t *testing.T) {
	s, err := New(Config{DSN: "postgres://localhost/flightgroup"})
	require.NoError(t, err)
	assert.Equal(t, "flightgroup_items", s.cfg.TableName)
	assert.Equal(t, 5*time.Second, s.cfg.OperationTimeout)
}

func TestOpenErrorIsReturnedByEveryCall(t *testing.T) {
	s, err := New(Config{DSN: "postgres://localhost/flightgroup"})
	require.NoError(t, err)
	opens := 0
	s.openDB = func(string, string) (*sql.DB, error) {
		opens++
		return nil, errors.New("dial refused")
	}

	_, err = s.Get(t.Context(), storage.TablePilots, "p1")
	assert.EqualError(t, err, "dial refused")
	err = s.Put(t.Context(), storage.TablePilots, "p1", []byte("x"), 0)
	assert.EqualError(t, err, "dial refused")
	assert.Equal(t, 1, opens)
	assert.NoError(t, s.Close())
}

func TestCloseBeforeFirstUseNeverOpens(t *testing.T) {
	s, err := New(Config{DSN: "postgres://localhost/flightgroup"})
	require.NoError(t, err)
	var opens atomic.Int32
	s.openDB = func(string, string) (*sql.DB, error) {
		opens.Add(1)
		return nil, errors.New("dial refused")
	}

	require.NoError(t, s.Close())
	_, err = s.Get(t.Context(), storage.TablePilots, "p1")
	assert.ErrorIs(t, err, ErrClosed)
	assert.Zero(t, opens.Load())
}

func TestCloseWaitsForFirstOpen(t *testing.T) {
	s, err := New(Config{DSN: "postgres://localhost/flightgroup"})
	require.NoError(t, err)
	opening := make(chan struct{})
	s.openDB = func(string, string) (*sql.DB, error) {
		close(opening)
		time.Sleep(20 * time.Millisecond)
		return nil, errors.New("dial refused")
	}

	var wg sync.WaitGroup
	var getErr error
	wg.Go(func() {
		_, getErr = s.Get(context.Background(), storage.TablePilots, "p1")
	})
	<-opening
	assert.NoError(t, s.Close())
	wg.Wait()
	assert.EqualError(t, getErr, "dial refused")
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, `"items"`, quoteIdentifier(" items "))
	assert.Equal(t, `"we""ird"`, quoteIdentifier(`we"ird`))
	assert.Equal(t, `""`, quoteIdentifier(""))
}

func TestLockKeySeparatesTablesAndKeys(t *testing.T) {
	a := lockKey("items", storage.TablePilots, "k")
	assert.Equal(t, a, lockKey("items", storage.TablePilots, "k"))
	assert.NotEqual(t, a, lockKey("items", storage.TableGroups, "k"))
	assert.NotEqual(t, a, lockKey("items", storage.TablePilots, "k2"))
}

type IntegrationSuite struct {
	storagetest.StoreSuite
	dsn   string
	table string
}

func TestPostgresIntegration(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("FLIGHTGROUP_TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("set FLIGHTGROUP_TEST_POSTGRES_DSN to run Postgres integration tests")
	}
	suite.Run(t, &IntegrationSuite{dsn: dsn})
}

func (s *IntegrationSuite) SetupTest() {
	n := atomic.AddUint64(&integrationCounter, 1)
	s.table = fmt.Sprintf("flightgroup_it_%d_%d", time.Now().UnixNano(), n)

	store, err := New(Config{DSN: s.dsn, TableName: s.table})
	s.Require().NoError(err)
	s.Store = store
	s.Ctx = context.Background()
}

func (s *IntegrationSuite) TearDownTest() {
	_ = s.Store.Close()
	db, err := sql.Open("postgres", s.dsn)
	s.Require().NoError(err)
	defer db.Close()
	_, err = db.Exec("DROP TABLE IF EXISTS " + quoteIdentifier(s.table))
	s.NoError(err)
}

func (s *IntegrationSuite) TestShortTTLExpires() {
	s.Require().NoError(s.Store.Put(s.Ctx, storage.TableSessions, "c1", []byte("1"), 50*time.Millisecond))
	time.Sleep(150 * time.Millisecond)

	_, err := s.Store.Get(s.Ctx, storage.TableSessions, "c1")
	s.ErrorIs(err, storage.ErrNotFound)

	purged, err := s.Store.(*Storage).PurgeExpired(s.Ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), purged)
}
