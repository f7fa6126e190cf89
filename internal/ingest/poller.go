package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cmclass/inbound-mail/internal/config"
	"github.com/cmclass/inbound-mail/internal/mailsource"
	"github.com/cmclass/inbound-mail/internal/metrics"
)

// State is the poller's scheduler state.
type State int

const (
	// StateIdle means the poller has not been started or was stopped.
	StateIdle State = iota
	// StateScheduled means the recurring timer is armed and no tick is
	// in flight.
	StateScheduled
	// StatePolling means a tick's protocol session is in flight. A
	// timer firing in this state is a no-op (skipped, not queued).
	StatePolling
)

// initialTickDelay is the short delay before the first tick, so a fresh
// process does not wait a full interval for its first ingestion.
const initialTickDelay = 2 * time.Second

// Poller periodically drives ingestion without overlapping runs.
type Poller struct {
	source   mailsource.Source
	pipeline *Pipeline
	cfg      config.MailReceiverConfig
	logger   *slog.Logger

	initialDelay time.Duration

	mu    sync.Mutex
	state State

	stopCh chan struct{}
	doneCh chan struct{}
}

// PollerConfig contains the poller's collaborators.
type PollerConfig struct {
	Source   mailsource.Source
	Pipeline *Pipeline
	Config   config.MailReceiverConfig
	Logger   *slog.Logger
}

// NewPoller creates a Poller. Call Start to begin polling.
func NewPoller(cfg PollerConfig) *Poller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		source:       cfg.Source,
		pipeline:     cfg.Pipeline,
		cfg:          cfg.Config,
		logger:       logger,
		initialDelay: initialTickDelay,
		state:        StateIdle,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Start arms the recurring timer. When the subsystem is disabled or the
// configuration is incomplete the poller deliberately does not start;
// that is a fail-safe default, not an error. Returns whether polling
// was started.
func (p *Poller) Start() bool {
	if !p.cfg.Complete() {
		p.logger.Info("mail receiver not started",
			"enabled", p.cfg.Enabled,
			"host_set", p.cfg.Host != "",
			"user_set", p.cfg.User != "")
		return false
	}

	p.mu.Lock()
	if p.state != StateIdle {
		p.mu.Unlock()
		return false
	}
	p.state = StateScheduled
	p.mu.Unlock()

	p.logger.Info("mail receiver started",
		"protocol", string(p.cfg.Protocol),
		"host", p.cfg.Host,
		"mailbox", p.cfg.Mailbox,
		"poll_interval", p.cfg.PollInterval.String(),
		"max_per_poll", p.cfg.MaxPerPoll)

	go p.run()
	return true
}

// Stop cancels the recurring timer and waits for an in-flight tick to
// finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.state == StateIdle {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	close(p.stopCh)
	<-p.doneCh

	p.mu.Lock()
	p.state = StateIdle
	p.mu.Unlock()
}

// Running reports whether the recurring timer is armed.
func (p *Poller) Running() bool {
	return p.CurrentState() != StateIdle
}

// CurrentState returns the scheduler state.
func (p *Poller) CurrentState() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Poller) run() {
	defer close(p.doneCh)

	initial := time.NewTimer(p.initialDelay)
	defer initial.Stop()

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-initial.C:
			p.Tick(context.Background())
		case <-ticker.C:
			p.Tick(context.Background())
		}
	}
}

// Tick runs one poll. A tick that fires while a previous tick's session
// is still in flight is skipped, which keeps at most one session open
// against the mailbox. Returns whether the tick actually ran.
func (p *Poller) Tick(ctx context.Context) bool {
	p.mu.Lock()
	if p.state == StatePolling {
		p.mu.Unlock()
		metrics.PollTicksSkipped.Inc()
		p.logger.Debug("poll tick skipped, previous tick still running")
		return false
	}
	p.state = StatePolling
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if p.state == StatePolling {
			p.state = StateScheduled
		}
		p.mu.Unlock()
	}()

	metrics.PollTicks.Inc()
	p.poll(ctx)
	return true
}

// poll opens one protocol session and processes up to MaxPerPoll
// messages. Session-level failures end the tick; per-message failures
// are logged and do not abort the rest of the batch. There is no retry
// or backoff: the next scheduled tick simply tries again.
func (p *Poller) poll(ctx context.Context) {
	protocol := string(p.source.Protocol())
	mailbox := p.source.Mailbox()

	sess, err := p.source.Connect(ctx)
	if err != nil {
		metrics.PollFailures.Inc()
		p.logger.Error("mail poll failed to connect", "protocol", protocol, "error", err)
		return
	}
	defer func() {
		if err := sess.Close(); err != nil {
			p.logger.Warn("closing mail session", "protocol", protocol, "error", err)
		}
	}()

	cands, err := sess.ListCandidates(ctx, p.cfg.MaxPerPoll)
	if err != nil {
		metrics.PollFailures.Inc()
		p.logger.Error("mail poll failed to list messages", "protocol", protocol, "error", err)
		return
	}
	if len(cands) == 0 {
		return
	}

	var stored []mailsource.Candidate
	for _, cand := range cands {
		// POP3 has no unseen search, so known UIDLs are skipped here
		// before paying for a full retrieve and parse.
		if p.source.Protocol() == config.ProtocolPOP3 {
			seen, err := p.pipeline.SeenBefore(ctx, protocol, mailbox, cand.SourceID)
			if err != nil {
				p.logger.Warn("dedup pre-check failed", "source_id", cand.SourceID, "error", err)
				continue
			}
			if seen {
				continue
			}
		}

		raw, err := sess.Fetch(ctx, cand)
		if err != nil {
			metrics.MessageFailures.Inc()
			p.logger.Warn("failed to fetch message", "source_id", cand.SourceID, "error", err)
			continue
		}

		ok, err := p.pipeline.StoreMessage(ctx, raw, protocol, mailbox)
		if err != nil {
			metrics.MessageFailures.Inc()
			p.logger.Warn("failed to store message", "source_id", cand.SourceID, "error", err)
			continue
		}
		if ok {
			stored = append(stored, cand)
		}
	}

	// Only messages that were actually stored are acknowledged, so a
	// failed store leaves the message unseen for the next tick.
	if err := sess.Acknowledge(ctx, stored); err != nil {
		p.logger.Error("failed to acknowledge messages",
			"protocol", protocol, "count", len(stored), "error", err)
	}

	p.logger.Info("poll tick complete",
		"protocol", protocol,
		"candidates", len(cands),
		"stored", len(stored))
}
