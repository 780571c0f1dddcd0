package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/workorder-scheduler/internal/application"
	"github.com/example/workorder-scheduler/internal/batch"
)

// ServiceFactory builds application services on a shared deterministic
// clock and identifier sequence.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Location    *time.Location
}

// ServiceFactoryOption configures a ServiceFactory.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		Location:    time.UTC,
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	if factory.Location == nil {
		factory.Location = time.UTC
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithLocation sets the zone used for calendar days.
func WithLocation(loc *time.Location) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Location = loc
	}
}

// NewWorkOrderService builds a work-order service that persists without
// pacing delays or retries.
func (f *ServiceFactory) NewWorkOrderService(store application.WorkOrderStore, logger *slog.Logger) *application.WorkOrderService {
	return application.NewWorkOrderService(store, application.WorkOrderServiceConfig{
		Location: f.Location,
		Batch:    batch.Policy{Concurrency: 1},
	}, f.Clock.NowFunc(), logger)
}

// NewUserService builds a user service. A nil hasher keeps argon2id.
func (f *ServiceFactory) NewUserService(users application.UserRepository, hash application.PasswordHasher, logger *slog.Logger) *application.UserService {
	return application.NewUserService(users, hash, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), logger)
}

// AuthServiceDeps captures dependencies for constructing an auth service.
type AuthServiceDeps struct {
	Credentials    application.CredentialStore
	Sessions       application.SessionRepository
	PasswordVerify application.PasswordVerifier
	TokenGenerator func() string
	SessionTTL     time.Duration
	Logger         *slog.Logger
}

// NewAuthService builds an auth service using the supplied dependencies.
func (f *ServiceFactory) NewAuthService(deps AuthServiceDeps) *application.AuthService {
	token := deps.TokenGenerator
	if token == nil {
		token = f.IDGenerator.NextFunc()
	}
	return application.NewAuthServiceWithLogger(
		deps.Credentials,
		deps.Sessions,
		deps.PasswordVerify,
		token,
		f.Clock.NowFunc(),
		deps.SessionTTL,
		deps.Logger,
	)
}
