// ABOUTME: Sign-then-fan-out publisher with full settlement semantics
// ABOUTME: Only a signing failure rejects the job; targets fail individually

package publish

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/relaypress/relaypress/internal/event"
	"github.com/relaypress/relaypress/internal/relay"
	"github.com/relaypress/relaypress/internal/signer"
)

// DefaultTargetTimeout bounds each relay's acknowledgment wait.
const DefaultTargetTimeout = 5 * time.Second

// Signer produces the signed event for a draft.
type Signer interface {
	Sign(draft signer.Draft) (*event.Event, error)
}

// TargetSource supplies the default target list when a publish names
// none explicitly.
type TargetSource interface {
	PublishTargets() []string
}

// Outcome is one target's settlement.
type Outcome struct {
	URL       string `json:"url"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	ElapsedMs int64  `json:"elapsedMs"`
}

// Report is the settled publish job: the signed event plus one outcome
// per target, in target order. The event is identical regardless of how
// many targets succeeded.
type Report struct {
	JobID    string       `json:"jobId"`
	Event    *event.Event `json:"event"`
	Outcomes []Outcome    `json:"outcomes"`
}

// Succeeded counts targets that acknowledged the event.
func (r *Report) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.OK {
			n++
		}
	}
	return n
}

// Failed counts targets that errored or timed out.
func (r *Report) Failed() int {
	return len(r.Outcomes) - r.Succeeded()
}

// Publisher signs drafts and delivers them redundantly.
type Publisher struct {
	logger  *slog.Logger
	dialer  relay.Dialer
	signer  Signer
	targets TargetSource

	// clientTag, when non-empty, is appended to drafts lacking one as a
	// provenance marker.
	clientTag string
	timeout   time.Duration
}

// Option tweaks publisher construction.
type Option func(*Publisher)

// WithClientTag enables the provenance tag appended before signing.
func WithClientTag(tag string) Option {
	return func(p *Publisher) { p.clientTag = tag }
}

// WithTargetTimeout overrides the per-target acknowledgment ceiling.
func WithTargetTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// New creates a publisher. The target source may be nil when every
// caller passes explicit targets.
func New(logger *slog.Logger, dialer relay.Dialer, s Signer, targets TargetSource, opts ...Option) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		logger:  logger.With("component", "publish"),
		dialer:  dialer,
		signer:  s,
		targets: targets,
		timeout: DefaultTargetTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish signs the draft and dispatches it to every target
// concurrently. With no explicit targets the default set is used. The
// job settles once every target has acknowledged, errored, or timed
// out; per-target failures never reject the job. The returned error is
// non-nil only when signing itself failed.
func (p *Publisher) Publish(ctx context.Context, draft signer.Draft, targets []string) (*Report, error) {
	if p.clientTag != "" {
		if _, has := draft.Tags.First(event.TagClient); !has {
			tags := make(event.Tags, len(draft.Tags), len(draft.Tags)+1)
			copy(tags, draft.Tags)
			draft.Tags = append(tags, event.Tag{event.TagClient, p.clientTag})
		}
	}

	ev, err := p.signer.Sign(draft)
	if err != nil {
		return nil, err
	}

	if len(targets) == 0 && p.targets != nil {
		targets = p.targets.PublishTargets()
	}
	targets = relay.DedupeURLs(targets)

	report := &Report{
		JobID:    uuid.NewString(),
		Event:    ev,
		Outcomes: make([]Outcome, len(targets)),
	}
	if len(targets) == 0 {
		p.logger.Warn("publish has no targets", "job", report.JobID, "event", ev.ID)
		return report, nil
	}

	p.logger.Info("publishing event",
		"job", report.JobID,
		"event", ev.ID,
		"kind", ev.Kind,
		"targets", len(targets))

	type settled struct {
		idx     int
		outcome Outcome
	}
	results := make(chan settled, len(targets))

	// Dispatched publishes run to completion or timeout on their own
	// schedule; caller cancellation does not chase them.
	base := context.WithoutCancel(ctx)
	for i, url := range targets {
		go func(idx int, url string) {
			start := time.Now()
			tctx, cancel := context.WithTimeout(base, p.timeout)
			defer cancel()

			err := p.deliver(tctx, url, ev)
			out := Outcome{URL: url, OK: err == nil, ElapsedMs: time.Since(start).Milliseconds()}
			if err != nil {
				out.Error = err.Error()
			}
			results <- settled{idx: idx, outcome: out}
		}(i, url)
	}

	for range targets {
		res := <-results
		report.Outcomes[res.idx] = res.outcome
		if !res.outcome.OK {
			p.logger.Warn("relay publish failed",
				"job", report.JobID,
				"relay", res.outcome.URL,
				"error", res.outcome.Error)
		}
	}

	p.logger.Info("publish settled",
		"job", report.JobID,
		"event", ev.ID,
		"succeeded", report.Succeeded(),
		"failed", report.Failed())
	return report, nil
}

func (p *Publisher) deliver(ctx context.Context, url string, ev *event.Event) error {
	ep, err := p.dialer.Endpoint(ctx, url)
	if err != nil {
		return err
	}
	return ep.Publish(ctx, ev)
}
