// ABOUTME: Engine assembling signer, publisher, aggregator, and reconciler
// ABOUTME: Resolves relay sets from config and runs the periodic sync loop

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/relaypress/relaypress/internal/aggregate"
	"github.com/relaypress/relaypress/internal/config"
	"github.com/relaypress/relaypress/internal/configstore"
	"github.com/relaypress/relaypress/internal/event"
	"github.com/relaypress/relaypress/internal/identity"
	"github.com/relaypress/relaypress/internal/publish"
	"github.com/relaypress/relaypress/internal/reconcile"
	"github.com/relaypress/relaypress/internal/relay"
	"github.com/relaypress/relaypress/internal/signer"
)

// clientTag is the provenance marker appended to outgoing events unless
// disabled in config.
const clientTag = "relaypress"

// passphraseEnv names the environment variable holding the keystore
// passphrase.
const passphraseEnv = "RELAYPRESS_PASSPHRASE"

// Pool is the relay connection surface the engine borrows. The pool
// owns dialing and teardown; the engine never closes endpoints.
type Pool interface {
	relay.Dialer

	// Endpoints resolves reachable endpoints for the given URLs,
	// skipping ones that fail to dial.
	Endpoints(ctx context.Context, urls []string) []relay.Endpoint
}

// Engine binds the core components to a config store and relay pool.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger
	store  configstore.Store
	pool   Pool

	gateway    *signer.Gateway
	aggregator *aggregate.Aggregator
	publisher  *publish.Publisher
	reconciler *reconcile.Reconciler
}

// New assembles an engine. The store and pool are borrowed; the caller
// closes them after Run returns.
func New(cfg *config.Config, store configstore.Store, pool Pool, logger *slog.Logger) *Engine {
	e := &Engine{
		cfg:     cfg,
		logger:  logger.With("component", "engine"),
		store:   store,
		pool:    pool,
		gateway: signer.New(),
	}

	e.aggregator = aggregate.New(logger, cfg.Sync.EndpointTimeout)

	var pubOpts []publish.Option
	if !cfg.Publish.DisableClientTag {
		pubOpts = append(pubOpts, publish.WithClientTag(clientTag))
	}
	if cfg.Publish.TargetTimeout > 0 {
		pubOpts = append(pubOpts, publish.WithTargetTimeout(cfg.Publish.TargetTimeout))
	}
	e.publisher = publish.New(logger, pool, e.gateway, e, pubOpts...)

	var recOpts []reconcile.Option
	if cfg.Site.PreferredRelay != "" {
		recOpts = append(recOpts, reconcile.WithPreferredRelay(cfg.Site.PreferredRelay))
	}
	e.reconciler = reconcile.New(logger, store, e.aggregator, e, cfg.Site.ControllerPubkey, recOpts...)

	return e
}

// LoadIdentity attaches the signing identity named by the configuration
// and reports whether one was loaded. A configuration without identity
// is valid; the engine then serves reads and config sync only.
func (e *Engine) LoadIdentity() (bool, error) {
	secHex, err := resolveSecretKey(e.cfg.Identity)
	if err != nil {
		return false, err
	}
	if secHex == "" {
		e.logger.Warn("no signing identity configured - publishing disabled")
		return false, nil
	}

	ls, err := identity.NewLocalSigner(secHex)
	if err != nil {
		return false, fmt.Errorf("loading identity: %w", err)
	}

	e.gateway.SetIdentity(ls)
	e.reconciler.SetIdentity(ls.PublicKeyHex())

	npub, _ := ls.Npub()
	e.logger.Info("signing identity loaded", "npub", npub)
	return true, nil
}

// resolveSecretKey extracts the hex secret key from config: a literal
// (hex or nsec) wins over the keystore, whose passphrase comes from the
// environment.
func resolveSecretKey(cfg config.IdentityConfig) (string, error) {
	if cfg.SecretKey != "" {
		if strings.HasPrefix(cfg.SecretKey, "nsec1") {
			return identity.DecodeNsec(cfg.SecretKey)
		}
		return cfg.SecretKey, nil
	}

	if cfg.KeystorePath != "" {
		passphrase := os.Getenv(passphraseEnv)
		if passphrase == "" {
			return "", fmt.Errorf("keystore passphrase required: set %s", passphraseEnv)
		}
		return identity.LoadKey(cfg.KeystorePath, passphrase)
	}

	return "", nil
}

// Signer exposes the signer gateway, the token source for scheduler
// calls.
func (e *Engine) Signer() *signer.Gateway {
	return e.gateway
}

// Config returns the effective configuration snapshot: defaults
// overlaid by local and reconciled remote state.
func (e *Engine) Config() configstore.Snapshot {
	return e.reconciler.Effective()
}

// UpdateConfig applies fn through the config store and returns the
// committed snapshot.
func (e *Engine) UpdateConfig(ctx context.Context, fn configstore.Updater) (configstore.Snapshot, error) {
	return e.store.Update(ctx, fn)
}

// Publish signs the draft and fans it out. An empty target list selects
// the resolved default set.
func (e *Engine) Publish(ctx context.Context, draft signer.Draft, targets []string) (*publish.Report, error) {
	return e.publisher.Publish(ctx, draft, targets)
}

// QueryAggregate merges query results across the given relays.
func (e *Engine) QueryAggregate(ctx context.Context, filters []event.Filter, urls []string) ([]*event.Event, error) {
	endpoints := e.pool.Endpoints(ctx, urls)
	if len(endpoints) == 0 {
		return nil, errors.New("no relay reachable")
	}
	return e.aggregator.Query(ctx, endpoints, filters)
}

// Responses collects replies and comments for a published address from
// the relays the content was fanned out to.
func (e *Engine) Responses(ctx context.Context, parentAddr string) ([]*event.Event, error) {
	endpoints, err := e.responseEndpoints(ctx)
	if err != nil {
		return nil, err
	}
	return e.aggregator.CollectResponses(ctx, endpoints, parentAddr)
}

// ResponseCount tallies distinct responses and authors for a published
// address.
func (e *Engine) ResponseCount(ctx context.Context, parentAddr string) (aggregate.Count, error) {
	endpoints, err := e.responseEndpoints(ctx)
	if err != nil {
		return aggregate.Count{}, err
	}
	return e.aggregator.CountResponses(ctx, endpoints, parentAddr)
}

func (e *Engine) responseEndpoints(ctx context.Context) ([]relay.Endpoint, error) {
	endpoints := e.pool.Endpoints(ctx, e.PublishTargets())
	if len(endpoints) == 0 {
		return nil, errors.New("no relay reachable")
	}
	return endpoints, nil
}

// PublishTargets resolves the default fan-out set from the effective
// configuration: the primary relay, the configured or built-in
// fallbacks, then the relays declared writable by the site config and
// the identity's relay list.
func (e *Engine) PublishTargets() []string {
	snap := e.reconciler.Effective()

	fallbacks := e.cfg.Relays.PublishFallback
	if len(fallbacks) == 0 {
		fallbacks = publish.DefaultFallbackRelays
	}

	write := append(snap.PublishRelays(), snap.RelayMetadata.WriteRelays()...)

	return publish.ResolveTargets(snap.DefaultRelay(), fallbacks, write)
}

// ReadEndpoints supplies the relays sync passes read from: the declared
// read relays once a relay list is known, the bootstrap set until then,
// with the primary relay always included first.
func (e *Engine) ReadEndpoints(ctx context.Context) []relay.Endpoint {
	snap := e.reconciler.Effective()

	urls := snap.RelayMetadata.ReadRelays()
	if len(urls) == 0 {
		urls = e.cfg.Relays.Bootstrap
	}
	if primary := snap.DefaultRelay(); primary != "" {
		urls = append([]string{primary}, urls...)
	}

	return e.pool.Endpoints(ctx, relay.DedupeURLs(urls))
}

// SyncNow runs one reconciliation pass outside the ticker.
func (e *Engine) SyncNow(ctx context.Context) {
	e.reconciler.Sync(ctx)
}

// Run reconciles immediately, then on every interval tick, until the
// context is canceled. Always returns nil; sync failures are absorbed
// and retried on the next tick.
func (e *Engine) Run(ctx context.Context) error {
	interval := e.cfg.Sync.Interval
	if interval <= 0 {
		interval = config.DefaultSyncInterval
	}

	e.logger.Info("sync loop started", "interval", interval)
	e.reconciler.Sync(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("sync loop stopped")
			return nil
		case <-ticker.C:
			e.reconciler.Sync(ctx)
		}
	}
}
