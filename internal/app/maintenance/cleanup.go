package maintenance

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/evalforge/evalforge/internal/services"
	"github.com/evalforge/evalforge/pkg/logger"
)

const defaultInvitationSpec = "@daily"

// Cleaner runs background maintenance, currently purging invitations that
// expired without being accepted.
type Cleaner struct {
	invitations *services.InvitationService
	cron        *cron.Cron
	log         *zap.Logger

	invitationSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithInvitationSchedule overrides the cron specification for invitation purging.
func WithInvitationSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.invitationSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner. A nil invitation service disables the job.
func NewCleaner(invitations *services.InvitationService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		invitations:        invitations,
		invitationSchedule: defaultInvitationSpec,
		log:                logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers the purge job and launches the scheduler.
func (c *Cleaner) Start() error {
	if c.invitations == nil {
		return nil
	}

	if _, err := c.cron.AddFunc(c.invitationSchedule, func() {
		ctx := context.Background()
		purged, err := c.invitations.PurgeExpired(ctx)
		if err != nil {
			c.log.Warn("invitation purge failed", zap.Error(err))
			return
		}
		if purged > 0 {
			c.log.Info("expired invitations purged", zap.Int64("count", purged))
		}
	}); err != nil {
		return err
	}

	c.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured maintenance routines sequentially, used in
// tests and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	if c.invitations != nil {
		if _, err := c.invitations.PurgeExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}
