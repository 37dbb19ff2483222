package factory

import (
	"time"

	"github.com/groupflight/flightgroup/internal/dependencies/mocks"
	"github.com/groupflight/flightgroup/internal/services/auth"
	"github.com/groupflight/flightgroup/internal/services/tier"
	"github.com/groupflight/flightgroup/internal/storage/memory"
	"github.com/groupflight/flightgroup/internal/testutil"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom

	// Memory is the backing store, for direct inspection
	Memory *memory.Storage
}

// NewTestApp creates an App configured for testing with mocked dependencies
func NewTestApp() *TestApp {
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()
	store := memory.NewWithClock(mockClock)
	logger := testutil.NopLogger()

	cfg := Config{AuthConfig: auth.DefaultConfig()}
	cfg.AuthConfig.BcryptCost = 4

	app := newWithDependencies(store, mockClock, mockRandom, tier.New(logger), nil, cfg, logger)

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
		Memory:     store,
	}
}
