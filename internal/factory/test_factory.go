package factory

import (
	"time"

	"github.com/mcoot/chessrelay/internal/dependencies/mocks"
	"github.com/mcoot/chessrelay/internal/pubsub"
	"github.com/mcoot/chessrelay/internal/services/identity"
	"github.com/mcoot/chessrelay/internal/services/invitation"
	"github.com/mcoot/chessrelay/internal/services/presence"
	"github.com/mcoot/chessrelay/internal/storage/memory"
	"github.com/mcoot/chessrelay/internal/testutil"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
}

// TestOption adjusts a TestApp before it is wired
type TestOption func(*dependencies)

// WithColorPolicy sets the invitation colour policy
func WithColorPolicy(policy invitation.ColorPolicy) TestOption {
	return func(d *dependencies) {
		d.policy = policy
	}
}

// NewTestApp creates an App configured for testing with mocked
// dependencies, in-memory backends and header identity
func NewTestApp(opts ...TestOption) *TestApp {
	store := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()
	logger := testutil.NopLogger()
	router := pubsub.NewMemoryRouter(mockClock, logger)

	deps := dependencies{
		store:    store,
		clock:    mockClock,
		random:   mockRandom,
		registry: presence.NewMemoryRegistry(mockClock),
		router:   router,
		verifier: identity.NewHeaderVerifier(""),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	app := newWithDependencies(deps)
	app.closers = []func() error{router.Close, store.Close}

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
	}
}
