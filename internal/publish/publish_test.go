// ABOUTME: Tests for fan-out publishing, settlement reports, and client tagging

package publish

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaypress/relaypress/internal/event"
	"github.com/relaypress/relaypress/internal/identity"
	"github.com/relaypress/relaypress/internal/relay"
	"github.com/relaypress/relaypress/internal/signer"
)

type fakeEndpoint struct {
	url   string
	err   error
	stall time.Duration

	mu        sync.Mutex
	published []*event.Event
}

func (f *fakeEndpoint) URL() string { return f.url }

func (f *fakeEndpoint) Query(ctx context.Context, filters []event.Filter) ([]*event.Event, error) {
	return nil, nil
}

func (f *fakeEndpoint) Publish(ctx context.Context, ev *event.Event) error {
	if f.stall > 0 {
		select {
		case <-time.After(f.stall):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.published = append(f.published, ev)
	f.mu.Unlock()
	return nil
}

func (f *fakeEndpoint) publishedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

type fakeDialer struct {
	mu        sync.Mutex
	endpoints map[string]*fakeEndpoint
	dialErrs  map[string]error
	dials     []string
}

func newFakeDialer(eps ...*fakeEndpoint) *fakeDialer {
	d := &fakeDialer{endpoints: make(map[string]*fakeEndpoint)}
	for _, ep := range eps {
		d.endpoints[ep.url] = ep
	}
	return d
}

func (d *fakeDialer) Endpoint(ctx context.Context, url string) (relay.Endpoint, error) {
	d.mu.Lock()
	d.dials = append(d.dials, url)
	d.mu.Unlock()

	if err := d.dialErrs[url]; err != nil {
		return nil, err
	}
	if ep, ok := d.endpoints[url]; ok {
		return ep, nil
	}
	ep := &fakeEndpoint{url: url}
	d.mu.Lock()
	d.endpoints[url] = ep
	d.mu.Unlock()
	return ep, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

type staticTargets []string

func (s staticTargets) PublishTargets() []string { return s }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newGateway(t *testing.T) *signer.Gateway {
	t.Helper()
	ls, err := identity.Generate()
	require.NoError(t, err)
	g := signer.New()
	g.SetIdentity(ls)
	return g
}

func outcomeByURL(t *testing.T, r *Report, url string) Outcome {
	t.Helper()
	for _, o := range r.Outcomes {
		if o.URL == url {
			return o
		}
	}
	t.Fatalf("no outcome for %s", url)
	return Outcome{}
}

func TestPublisher_Publish_SettlesDespitePartialFailure(t *testing.T) {
	healthy := &fakeEndpoint{url: "wss://healthy"}
	broken := &fakeEndpoint{url: "wss://broken", err: errors.New("write: broken pipe")}
	slow := &fakeEndpoint{url: "wss://slow", stall: time.Second}

	p := New(discardLogger(), newFakeDialer(healthy, broken, slow), newGateway(t), nil,
		WithTargetTimeout(50*time.Millisecond))

	report, err := p.Publish(context.Background(),
		signer.Draft{Kind: event.KindNote, Content: "hello"},
		[]string{"wss://healthy", "wss://broken", "wss://slow"})
	require.NoError(t, err, "partial failure must not reject the job")

	require.NotNil(t, report.Event)
	assert.NoError(t, identity.VerifyEvent(report.Event))
	assert.NotEmpty(t, report.JobID)

	require.Len(t, report.Outcomes, 3)
	assert.Equal(t, 1, report.Succeeded())
	assert.Equal(t, 2, report.Failed())

	assert.True(t, outcomeByURL(t, report, "wss://healthy").OK)
	assert.Contains(t, outcomeByURL(t, report, "wss://broken").Error, "broken pipe")
	assert.NotEmpty(t, outcomeByURL(t, report, "wss://slow").Error)

	assert.Equal(t, 1, healthy.publishedCount())
}

func TestPublisher_Publish_OutcomesKeepTargetOrder(t *testing.T) {
	p := New(discardLogger(), newFakeDialer(), newGateway(t), nil)

	report, err := p.Publish(context.Background(),
		signer.Draft{Kind: event.KindNote, Content: "x"},
		[]string{"wss://one", "wss://two", "wss://three"})
	require.NoError(t, err)

	urls := make([]string, len(report.Outcomes))
	for i, o := range report.Outcomes {
		urls[i] = o.URL
	}
	assert.Equal(t, []string{"wss://one", "wss://two", "wss://three"}, urls)
}

func TestPublisher_Publish_SigningFailureRejectsJob(t *testing.T) {
	dialer := newFakeDialer()
	p := New(discardLogger(), dialer, signer.New(), nil)

	_, err := p.Publish(context.Background(),
		signer.Draft{Kind: event.KindNote, Content: "x"}, []string{"wss://one"})
	assert.ErrorIs(t, err, signer.ErrNotAuthenticated)
	assert.Zero(t, dialer.dialCount(), "nothing should be dialed when signing fails")
}

func TestPublisher_Publish_DialFailureIsPerTarget(t *testing.T) {
	dialer := newFakeDialer(&fakeEndpoint{url: "wss://up"})
	dialer.dialErrs = map[string]error{"wss://down": errors.New("dial tcp: connection refused")}

	p := New(discardLogger(), dialer, newGateway(t), nil)

	report, err := p.Publish(context.Background(),
		signer.Draft{Kind: event.KindNote, Content: "x"},
		[]string{"wss://down", "wss://up"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded())
	assert.Contains(t, outcomeByURL(t, report, "wss://down").Error, "connection refused")
}

func TestPublisher_Publish_AppendsClientTag(t *testing.T) {
	p := New(discardLogger(), newFakeDialer(), newGateway(t), nil, WithClientTag("relaypress"))

	report, err := p.Publish(context.Background(),
		signer.Draft{Kind: event.KindNote, Content: "x"}, []string{"wss://one"})
	require.NoError(t, err)

	tag, ok := report.Event.Tags.First(event.TagClient)
	require.True(t, ok)
	assert.Equal(t, "relaypress", tag)
	assert.True(t, report.Event.CheckID(), "tag must be appended before signing")
}

func TestPublisher_Publish_KeepsExistingClientTag(t *testing.T) {
	p := New(discardLogger(), newFakeDialer(), newGateway(t), nil, WithClientTag("relaypress"))

	report, err := p.Publish(context.Background(), signer.Draft{
		Kind:    event.KindNote,
		Tags:    event.Tags{{"client", "someone-else"}},
		Content: "x",
	}, []string{"wss://one"})
	require.NoError(t, err)

	assert.Equal(t, []string{"someone-else"}, report.Event.Tags.All(event.TagClient))
}

func TestPublisher_Publish_NoClientTagWhenDisabled(t *testing.T) {
	p := New(discardLogger(), newFakeDialer(), newGateway(t), nil)

	report, err := p.Publish(context.Background(),
		signer.Draft{Kind: event.KindNote, Content: "x"}, []string{"wss://one"})
	require.NoError(t, err)

	_, ok := report.Event.Tags.First(event.TagClient)
	assert.False(t, ok)
}

func TestPublisher_Publish_UsesDefaultTargetsWhenNoneGiven(t *testing.T) {
	one := &fakeEndpoint{url: "wss://one"}
	two := &fakeEndpoint{url: "wss://two"}
	p := New(discardLogger(), newFakeDialer(one, two), newGateway(t),
		staticTargets{"wss://one", "wss://two"})

	report, err := p.Publish(context.Background(),
		signer.Draft{Kind: event.KindNote, Content: "x"}, nil)
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, 1, one.publishedCount())
	assert.Equal(t, 1, two.publishedCount())
}

func TestPublisher_Publish_ExplicitTargetsOverrideDefaults(t *testing.T) {
	chosen := &fakeEndpoint{url: "wss://chosen"}
	p := New(discardLogger(), newFakeDialer(chosen), newGateway(t),
		staticTargets{"wss://default"})

	report, err := p.Publish(context.Background(),
		signer.Draft{Kind: event.KindNote, Content: "x"}, []string{"wss://chosen"})
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, "wss://chosen", report.Outcomes[0].URL)
}

func TestPublisher_Publish_DedupesTargets(t *testing.T) {
	one := &fakeEndpoint{url: "wss://one"}
	p := New(discardLogger(), newFakeDialer(one), newGateway(t), nil)

	report, err := p.Publish(context.Background(),
		signer.Draft{Kind: event.KindNote, Content: "x"},
		[]string{"wss://one", "wss://two", "wss://one"})
	require.NoError(t, err)

	assert.Len(t, report.Outcomes, 2)
	assert.Equal(t, 1, one.publishedCount(), "duplicate target must not double-deliver")
}

func TestPublisher_Publish_NoTargetsSettlesEmpty(t *testing.T) {
	p := New(discardLogger(), newFakeDialer(), newGateway(t), nil)

	report, err := p.Publish(context.Background(),
		signer.Draft{Kind: event.KindNote, Content: "x"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, report.Event)
	assert.Empty(t, report.Outcomes)
}

func TestPublisher_Publish_DispatchesConcurrently(t *testing.T) {
	eps := []*fakeEndpoint{
		{url: "wss://one", stall: 80 * time.Millisecond},
		{url: "wss://two", stall: 80 * time.Millisecond},
		{url: "wss://three", stall: 80 * time.Millisecond},
	}
	p := New(discardLogger(), newFakeDialer(eps...), newGateway(t), nil)

	start := time.Now()
	report, err := p.Publish(context.Background(),
		signer.Draft{Kind: event.KindNote, Content: "x"},
		[]string{"wss://one", "wss://two", "wss://three"})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Succeeded())
	assert.Less(t, time.Since(start), 240*time.Millisecond,
		"targets must be dispatched concurrently, not awaited in sequence")
}

func TestPublisher_Publish_SurvivesCallerCancellation(t *testing.T) {
	ep := &fakeEndpoint{url: "wss://one", stall: 50 * time.Millisecond}
	p := New(discardLogger(), newFakeDialer(ep), newGateway(t), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := p.Publish(ctx,
		signer.Draft{Kind: event.KindNote, Content: "x"}, []string{"wss://one"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded(),
		"a dispatched publish completes on its own schedule")
}
