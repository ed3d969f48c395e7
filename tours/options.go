package tours

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// deps are the collaborators shared by the services.
type deps struct {
	log      *zap.Logger
	clock    Clock
	metrics  Recorder
	notifier Notifier
	gateway  Gateway
	routes   RouteCache
	newID    func() string
}

type Option func(*deps)

func WithLogger(l *zap.Logger) Option { return func(d *deps) { d.log = l } }
func WithClock(c Clock) Option        { return func(d *deps) { d.clock = c } }
func WithRecorder(r Recorder) Option  { return func(d *deps) { d.metrics = r } }
func WithNotifier(n Notifier) Option  { return func(d *deps) { d.notifier = n } }
func WithGateway(g Gateway) Option    { return func(d *deps) { d.gateway = g } }
func WithRouteCache(c RouteCache) Option {
	return func(d *deps) { d.routes = c }
}

// WithIDs replaces the uuid generator. Tests use it for stable ids.
func WithIDs(next func() string) Option { return func(d *deps) { d.newID = next } }

func newDeps(opts []Option) deps {
	d := deps{
		log:     zap.NewNop(),
		clock:   systemClock{},
		metrics: nopRecorder{},
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

func (d deps) now() time.Time { return d.clock.Now() }

// maxAttempts bounds retries of a unit of work that lost a serialization race.
const maxAttempts = 3

func (d deps) retry(op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(); !IsRetryable(err) {
			return err
		}
		d.log.Warn("retrying after concurrent modification",
			zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
	}
	return err
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
