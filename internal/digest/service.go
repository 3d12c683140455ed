// Package digest posts scheduled channel summaries. Each configured job
// carries a cron expression (with a seconds field), a channel, and a
// window; on fire the window's messages are gathered and summarized the
// same way a $summary command would be, then posted to the channel.
package digest

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Nanomace/Nyx/internal/bus"
	"github.com/Nanomace/Nyx/internal/config"
	"github.com/Nanomace/Nyx/internal/platform"
	"github.com/Nanomace/Nyx/internal/summary"
)

type Service struct {
	jobs       []config.DigestJob
	dispatcher *summary.Dispatcher
	bus        *bus.MessageBus
	platform   string
	cron       *cron.Cron
}

func NewService(jobs []config.DigestJob, dispatcher *summary.Dispatcher, b *bus.MessageBus, platformName string) *Service {
	return &Service{
		jobs:       jobs,
		dispatcher: dispatcher,
		bus:        b,
		platform:   platformName,
		cron:       cron.New(cron.WithSeconds()),
	}
}

// Start registers every job and begins the scheduler. Jobs with a bad
// expression or window are skipped with a log line; one bad entry never
// blocks the rest.
func (s *Service) Start(ctx context.Context) error {
	active := 0
	for _, job := range s.jobs {
		job := job
		span, limit, err := windowSpan(job.Window)
		if err != nil {
			log.Printf("[digest] skipping job %q: %v", job.Name, err)
			continue
		}
		if _, err := s.cron.AddFunc(job.Expr, func() {
			s.run(ctx, job, span, limit)
		}); err != nil {
			log.Printf("[digest] skipping job %q: bad schedule %q: %v", job.Name, job.Expr, err)
			continue
		}
		active++
	}

	if active == 0 {
		log.Printf("[digest] no jobs scheduled")
		return nil
	}
	s.cron.Start()
	log.Printf("[digest] scheduler started with %d job(s)", active)
	return nil
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *Service) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	log.Printf("[digest] stopped")
}

func (s *Service) run(ctx context.Context, job config.DigestJob, span time.Duration, limit int) {
	history := s.dispatcher.Gather(job.ChannelID, span, limit)
	if len(history) == 0 {
		log.Printf("[digest] job %q: nothing to summarize", job.Name)
		return
	}

	text := s.dispatcher.Summarize(ctx, history)
	title := job.Name
	if title == "" {
		title = strings.ToLower(job.Window) + " digest"
	}

	s.bus.Outbound <- bus.OutboundMessage{
		Platform:  s.platform,
		ChannelID: job.ChannelID,
		Embed: &platform.Embed{
			Title:       title,
			Description: text,
			Color:       platform.ColorBlue,
			Footer:      fmt.Sprintf("Scheduled digest over %d messages", len(history)),
		},
	}
	log.Printf("[digest] job %q posted (%d messages)", job.Name, len(history))
}

func windowSpan(window string) (time.Duration, int, error) {
	switch strings.ToLower(window) {
	case "daily":
		return 24 * time.Hour, 1000, nil
	case "weekly":
		return 7 * 24 * time.Hour, 3000, nil
	default:
		return 0, 0, fmt.Errorf("unknown window %q", window)
	}
}
