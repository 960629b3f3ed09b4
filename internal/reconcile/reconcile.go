// ABOUTME: Reconciler syncing relay metadata and controller config into the store
// ABOUTME: Strictly-newer merges, per-session guard, operator override precedence

package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/relaypress/relaypress/internal/configstore"
	"github.com/relaypress/relaypress/internal/event"
	"github.com/relaypress/relaypress/internal/identity"
	"github.com/relaypress/relaypress/internal/relay"
)

// Querier is the aggregated read capability the reconciler pulls remote
// state through.
type Querier interface {
	QueryNewest(ctx context.Context, endpoints []relay.Endpoint, filters []event.Filter) (*event.Event, error)
}

// EndpointSource supplies the relays a sync reads from.
type EndpointSource interface {
	ReadEndpoints(ctx context.Context) []relay.Endpoint
}

// Reconciler merges remote authoritative state into the config store.
type Reconciler struct {
	logger *slog.Logger
	store  configstore.Store
	agg    Querier
	source EndpointSource

	controller     string // hex pubkey authoritative for site config
	preferredRelay string // operator override for default_relay, "" when unset
	now            func() time.Time

	mu          sync.Mutex
	currentUser string // hex pubkey, "" when anonymous
	siteSynced  bool
}

// Option tweaks reconciler construction.
type Option func(*Reconciler)

// WithPreferredRelay installs the operator override for the default
// relay. While set, no cached or remote default_relay value can shadow
// it.
func WithPreferredRelay(url string) Option {
	return func(r *Reconciler) { r.preferredRelay = url }
}

// New creates a reconciler trusting the given controller public key.
func New(logger *slog.Logger, store configstore.Store, agg Querier, source EndpointSource, controllerPub string, opts ...Option) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reconciler{
		logger:     logger.With("component", "reconcile"),
		store:      store,
		agg:        agg,
		source:     source,
		controller: controllerPub,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetIdentity switches the current user. A changed identity starts a new
// session: the controller-config guard resets so the next sync runs
// again. Empty means anonymous.
func (r *Reconciler) SetIdentity(pubHex string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.currentUser == pubHex {
		return
	}
	r.currentUser = pubHex
	r.siteSynced = false
	r.logger.Info("identity changed", "anonymous", pubHex == "")
}

// SiteConfigSynced reports whether the controller config sync has
// succeeded this session.
func (r *Reconciler) SiteConfigSynced() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.siteSynced
}

// Effective returns the snapshot the rest of the application consumes:
// built-in defaults overlaid by the current local state.
func (r *Reconciler) Effective() configstore.Snapshot {
	return r.store.Get().Overlay(configstore.Defaults())
}

// Sync runs one full reconciliation pass: operator override first, then
// the user's relay list, then the controller's site config. Each step
// absorbs its own failures; Sync never returns an error.
func (r *Reconciler) Sync(ctx context.Context) {
	r.applyPreferredRelay(ctx)
	r.SyncRelayList(ctx)
	r.SyncSiteConfig(ctx)
}

// applyPreferredRelay writes the operator override into the cache when
// it differs, stamping a fresh timestamp so distributed state cannot
// shadow it. The remote-event comparison is bypassed entirely.
func (r *Reconciler) applyPreferredRelay(ctx context.Context) {
	if r.preferredRelay == "" {
		return
	}
	if r.store.Get().DefaultRelay() == r.preferredRelay {
		return
	}

	stamp := r.now().Unix()
	_, err := r.store.Update(ctx, func(cur configstore.Snapshot) configstore.Snapshot {
		if cur.DefaultRelay() == r.preferredRelay {
			return cur
		}
		return cur.WithSiteField(configstore.FieldDefaultRelay, r.preferredRelay, stamp)
	})
	if err != nil {
		r.logger.Warn("failed to persist preferred relay override", "error", err)
		return
	}
	r.logger.Info("applied preferred relay override", "relay", r.preferredRelay)
}

// SyncRelayList refreshes relay metadata from the current user's own
// relay-list event. Anonymous sessions have no relay list; the sync is
// a no-op. Safe to re-run any time: the event only applies when
// strictly newer than the cached metadata.
func (r *Reconciler) SyncRelayList(ctx context.Context) {
	r.mu.Lock()
	user := r.currentUser
	r.mu.Unlock()
	if user == "" {
		r.logger.Debug("skipping relay list sync, anonymous session")
		return
	}

	ev, err := r.agg.QueryNewest(ctx, r.source.ReadEndpoints(ctx), []event.Filter{{
		Authors: []string{user},
		Kinds:   []int{event.KindRelayList},
		Limit:   1,
	}})
	if err != nil {
		r.logger.Warn("relay list query failed", "error", err)
		return
	}
	if ev == nil {
		r.logger.Debug("no relay list event found", "user", user)
		return
	}
	if ev.PubKey != user {
		r.logger.Warn("ignoring relay list from wrong author", "author", ev.PubKey)
		return
	}
	if err := identity.VerifyEvent(ev); err != nil {
		r.logger.Warn("ignoring relay list with invalid signature",
			"event", ev.ID, "error", err)
		return
	}

	md := decodeRelayList(ev, r.logger)
	local := r.store.Get().RelayMetadata
	if !newerThan(md.UpdatedAt, local.UpdatedAt) {
		r.logger.Debug("relay list not newer than cache",
			"remote", md.UpdatedAt, "local", local.UpdatedAt)
		return
	}

	_, err = r.store.Update(ctx, func(cur configstore.Snapshot) configstore.Snapshot {
		if !newerThan(md.UpdatedAt, cur.RelayMetadata.UpdatedAt) {
			return cur
		}
		return cur.WithRelayMetadata(md)
	})
	if err != nil {
		r.logger.Warn("failed to persist relay metadata", "error", err)
		return
	}
	r.logger.Info("relay metadata updated",
		"relays", len(md.Relays), "updated_at", md.UpdatedAt)
}

// SyncSiteConfig refreshes site config and navigation from the
// controller's addressable configuration event. Runs at most once per
// session after it first succeeds; a failed or empty query leaves the
// guard unset so a later pass retries.
func (r *Reconciler) SyncSiteConfig(ctx context.Context) {
	r.mu.Lock()
	synced := r.siteSynced
	r.mu.Unlock()
	if synced {
		r.logger.Debug("site config already synced this session")
		return
	}
	if r.controller == "" {
		r.logger.Debug("no controller configured, skipping site config sync")
		return
	}

	ev, err := r.agg.QueryNewest(ctx, r.source.ReadEndpoints(ctx), []event.Filter{{
		Authors: []string{r.controller},
		Kinds:   []int{event.KindAppData},
		Tags:    map[string][]string{event.TagIdentifier: {event.SiteConfigIdentifier}},
		Limit:   1,
	}})
	if err != nil {
		r.logger.Warn("site config query failed", "error", err)
		return
	}
	if ev == nil {
		r.logger.Debug("no site config event found", "controller", r.controller)
		return
	}
	if ev.PubKey != r.controller {
		r.logger.Warn("ignoring site config from non-controller author",
			"author", ev.PubKey)
		return
	}
	if err := identity.VerifyEvent(ev); err != nil {
		r.logger.Warn("ignoring site config with invalid signature",
			"event", ev.ID, "error", err)
		return
	}

	rc, derrs := decodeControllerEvent(ev)
	for _, derr := range derrs {
		r.logger.Warn("skipping undecodable config field", "error", derr)
	}

	// The operator override owns default_relay; the controller cannot
	// shadow it regardless of timestamps.
	if r.preferredRelay != "" {
		delete(rc.fields, configstore.FieldDefaultRelay)
	}

	_, err = r.store.Update(ctx, func(cur configstore.Snapshot) configstore.Snapshot {
		if !newerThan(rc.updatedAt, cur.SiteConfig.UpdatedAt) {
			return cur
		}
		next := cur.WithSiteFields(rc.fields, rc.updatedAt)
		if rc.hasNav {
			next = next.WithNavigation(rc.navigation)
		}
		return next
	})
	if err != nil {
		r.logger.Warn("failed to persist site config", "error", err)
		return
	}

	r.mu.Lock()
	r.siteSynced = true
	r.mu.Unlock()
	r.logger.Info("site config synced",
		"event", ev.ID, "updated_at", rc.updatedAt, "fields", len(rc.fields))
}
