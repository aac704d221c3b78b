// Package service implements the workspace operations on top of a
// CollectionStore. Every operation resolves the caller's ownership chain
// inside the same transaction as the data it touches and authorizes it
// before reading or mutating anything else.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/collection-service/internal/config"
	"github.com/chirino/collection-service/internal/model"
	"github.com/chirino/collection-service/internal/plugin/cache/noop"
	graphnoop "github.com/chirino/collection-service/internal/plugin/graph/noop"
	"github.com/chirino/collection-service/internal/policy"
	registrycache "github.com/chirino/collection-service/internal/registry/cache"
	registrygraph "github.com/chirino/collection-service/internal/registry/graph"
	registrystore "github.com/chirino/collection-service/internal/registry/store"
	"github.com/chirino/collection-service/internal/security"
	"github.com/chirino/collection-service/internal/tracing"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Options configures the services. Zero values fall back to DefaultConfig.
type Options struct {
	Owners                 registrycache.OwnerCache
	OwnerTTL               time.Duration
	Mirror                 registrygraph.Mirror
	HistoryDefaultPageSize int
	HistoryMaxPageSize     int
	// Now overrides the clock, mostly for tests.
	Now func() time.Time
}

// OptionsFromConfig maps the relevant config fields onto Options.
func OptionsFromConfig(cfg *config.Config, owners registrycache.OwnerCache, mirror registrygraph.Mirror) Options {
	return Options{
		Owners:                 owners,
		OwnerTTL:               cfg.CacheOwnerTTL,
		Mirror:                 mirror,
		HistoryDefaultPageSize: cfg.HistoryDefaultPageSize,
		HistoryMaxPageSize:     cfg.HistoryMaxPageSize,
	}
}

// Services bundles every service sharing one store.
type Services struct {
	Collections *CollectionService
	Chats       *ChatService
	History     *HistoryManager
	Permissions *PermissionService
	Relations   *RelationService
}

// New wires the services around store.
func New(store registrystore.CollectionStore, opts Options) *Services {
	defaults := config.DefaultConfig()
	if opts.Owners == nil {
		opts.Owners = noop.New()
	}
	if opts.Mirror == nil {
		opts.Mirror = graphnoop.New()
	}
	if opts.OwnerTTL <= 0 {
		opts.OwnerTTL = defaults.CacheOwnerTTL
	}
	if opts.HistoryDefaultPageSize <= 0 {
		opts.HistoryDefaultPageSize = defaults.HistoryDefaultPageSize
	}
	if opts.HistoryMaxPageSize <= 0 {
		opts.HistoryMaxPageSize = defaults.HistoryMaxPageSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	b := &base{
		store:    store,
		owners:   opts.Owners,
		ownerTTL: opts.OwnerTTL,
		mirror:   opts.Mirror,
		clock:    opts.Now,
	}
	return &Services{
		Collections: &CollectionService{base: b},
		Chats:       &ChatService{base: b},
		History: &HistoryManager{
			base:        b,
			defaultPage: opts.HistoryDefaultPageSize,
			maxPage:     opts.HistoryMaxPageSize,
		},
		Permissions: &PermissionService{base: b},
		Relations:   &RelationService{base: b},
	}
}

// base holds what every service shares.
type base struct {
	store    registrystore.CollectionStore
	owners   registrycache.OwnerCache
	ownerTTL time.Duration
	mirror   registrygraph.Mirror
	clock    func() time.Time
}

func (b *base) now() time.Time {
	return model.Timestamp(b.clock())
}

// collectionChain loads the collection itself and the caller's explicit grant.
func (b *base) collectionChain(ctx context.Context, tx registrystore.Tx, id uuid.UUID, user string) (*model.Collection, policy.Ancestry, error) {
	c, err := tx.GetCollection(ctx, id)
	if err != nil {
		return nil, policy.Ancestry{}, err
	}
	b.rememberOwner(ctx, c)
	a, err := b.withDelegated(ctx, tx, policy.ForCollection(c.ID, c.CreatedBy), user)
	return c, a, err
}

// rootChain starts the chain of an existing child resource. The collection's
// creator may come from the owner cache since it never changes while a child
// still references it.
func (b *base) rootChain(ctx context.Context, tx registrystore.Tx, collectionID uuid.UUID, user string) (policy.Ancestry, error) {
	owner, err := b.collectionOwner(ctx, tx, collectionID)
	if err != nil {
		return policy.Ancestry{}, err
	}
	return b.withDelegated(ctx, tx, policy.ForCollection(collectionID, owner), user)
}

func (b *base) chatChain(ctx context.Context, tx registrystore.Tx, chat *model.CollectionChat, user string) (policy.Ancestry, error) {
	a, err := b.rootChain(ctx, tx, chat.CollectionID, user)
	if err != nil {
		return policy.Ancestry{}, err
	}
	return a.Child(policy.KindChat, chat.ID, chat.CreatedBy), nil
}

func (b *base) relationChain(ctx context.Context, tx registrystore.Tx, rel *model.Relation, user string) (policy.Ancestry, error) {
	a, err := b.rootChain(ctx, tx, rel.CollectionID, user)
	if err != nil {
		return policy.Ancestry{}, err
	}
	return a.Child(policy.KindRelation, rel.ID, rel.CreatedBy), nil
}

func (b *base) withDelegated(ctx context.Context, tx registrystore.Tx, a policy.Ancestry, user string) (policy.Ancestry, error) {
	if user == "" || a.Root().CreatedBy == user {
		return a, nil
	}
	p, err := tx.GetPermission(ctx, a.Root().ID, user)
	switch {
	case err == nil:
		return a.WithDelegated(p.Level), nil
	case isNotFound(err):
		return a, nil
	default:
		return policy.Ancestry{}, err
	}
}

func (b *base) collectionOwner(ctx context.Context, tx registrystore.Tx, id uuid.UUID) (string, error) {
	if b.owners.Available() {
		owner, err := b.owners.Get(ctx, id)
		if err != nil {
			log.Warn("Owner cache lookup failed", "collection", id, "err", err)
		} else if owner != "" {
			if security.CacheHitsTotal != nil {
				security.CacheHitsTotal.Inc()
			}
			return owner, nil
		}
		if security.CacheMissesTotal != nil {
			security.CacheMissesTotal.Inc()
		}
	}
	c, err := tx.GetCollection(ctx, id)
	if err != nil {
		return "", err
	}
	b.rememberOwner(ctx, c)
	return c.CreatedBy, nil
}

func (b *base) rememberOwner(ctx context.Context, c *model.Collection) {
	if !b.owners.Available() {
		return
	}
	if err := b.owners.Set(ctx, c.ID, c.CreatedBy, b.ownerTTL); err != nil {
		log.Warn("Owner cache update failed", "collection", c.ID, "err", err)
	}
}

func (b *base) forgetOwner(ctx context.Context, id uuid.UUID) {
	if !b.owners.Available() {
		return
	}
	if err := b.owners.Remove(ctx, id); err != nil {
		log.Warn("Owner cache eviction failed", "collection", id, "err", err)
	}
}

// project writes to the graph mirror after a commit. Failures are logged and
// counted but never returned.
func (b *base) project(ctx context.Context, op string, id uuid.UUID, fn func(ctx context.Context) error) {
	if !b.mirror.Available() {
		return
	}
	if err := fn(context.WithoutCancel(ctx)); err != nil {
		log.Warn("Graph mirror write failed", "op", op, "id", id, "err", err)
		if security.GraphMirrorFailuresTotal != nil {
			security.GraphMirrorFailuresTotal.Inc()
		}
	}
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracing.Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func isNotFound(err error) bool {
	var nf *registrystore.NotFoundError
	return errors.As(err, &nf)
}

func isConflict(err error) bool {
	var c *registrystore.ConflictError
	return errors.As(err, &c)
}
