// Package registry implements the name registry operations on top of a store.
// Each operation is one atomic store transaction on a single record; the
// registry holds no locks of its own.
package registry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/MrSnakeDoc/ans/internal/cache"
	"github.com/MrSnakeDoc/ans/internal/domain"
	"github.com/MrSnakeDoc/ans/internal/events"
	"github.com/MrSnakeDoc/ans/internal/logger"
	"github.com/MrSnakeDoc/ans/internal/store"
)

// DefaultResolveTTL is how long a resolved record is served from cache.
const DefaultResolveTTL = 60 * time.Second

// Options configures a Registry. Zero values get defaults.
type Options struct {
	Now        func() time.Time // time source, time.Now by default
	Events     *events.Bus      // nil disables publishing
	Tracer     trace.Tracer     // noop by default
	Logger     logger.Logger    // nop by default
	ResolveTTL time.Duration    // <0 disables the resolve cache, 0 means DefaultResolveTTL
}

type Registry struct {
	store    store.Store
	clock    *Clock
	bus      *events.Bus
	tracer   trace.Tracer
	log      logger.Logger
	resolved *cache.ReadThrough[domain.Record]
}

func New(s store.Store, opts Options) *Registry {
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("ans")
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	switch {
	case opts.ResolveTTL == 0:
		opts.ResolveTTL = DefaultResolveTTL
	case opts.ResolveTTL < 0:
		opts.ResolveTTL = 0
	}

	r := &Registry{
		store:  s,
		clock:  NewClock(opts.Now),
		bus:    opts.Events,
		tracer: opts.Tracer,
		log:    opts.Logger.Named("registry"),
	}
	r.resolved = cache.NewReadThrough[domain.Record](opts.ResolveTTL, r.store.Get)
	return r
}

// Now returns the registry clock.
func (r *Registry) Now() time.Time {
	return r.clock.Now()
}

// Register binds a new name to caller for one validity period.
func (r *Registry) Register(ctx context.Context, caller domain.Principal, name, endpoint, category string) (rec domain.Record, err error) {
	ctx, end := r.span(ctx, "register", name)
	defer func() { end(err) }()

	now := r.clock.Now()
	rec, err = domain.NewRecord(name, endpoint, category, caller, now)
	if err != nil {
		return domain.Record{}, err
	}
	if err = r.store.Create(ctx, rec); err != nil {
		return domain.Record{}, err
	}

	r.resolved.Invalidate(name)
	r.bus.Publish(ctx, events.New(events.KindRegistered, name, caller, now))
	return rec, nil
}

// Transfer hands name to newOwner and cancels any listing.
func (r *Registry) Transfer(ctx context.Context, caller domain.Principal, name string, newOwner domain.Principal) (domain.Record, error) {
	now := r.clock.Now()
	rec, err := r.mutate(ctx, "transfer", name, func(rec *domain.Record, _ store.Txn) error {
		return rec.Transfer(caller, newOwner)
	})
	if err == nil {
		r.bus.Publish(ctx, events.New(events.KindTransferred, name, caller, now).With(newOwner, 0))
	}
	return rec, err
}

// UpdateEndpoint replaces the endpoint of name.
func (r *Registry) UpdateEndpoint(ctx context.Context, caller domain.Principal, name, endpoint string) (domain.Record, error) {
	now := r.clock.Now()
	rec, err := r.mutate(ctx, "update_endpoint", name, func(rec *domain.Record, _ store.Txn) error {
		return rec.UpdateEndpoint(caller, endpoint)
	})
	if err == nil {
		r.bus.Publish(ctx, events.New(events.KindEndpointUpdated, name, caller, now))
	}
	return rec, err
}

// ListForSale offers name at price. Listing an already listed name reprices it.
func (r *Registry) ListForSale(ctx context.Context, caller domain.Principal, name string, price int64) (domain.Record, error) {
	now := r.clock.Now()
	rec, err := r.mutate(ctx, "list_for_sale", name, func(rec *domain.Record, _ store.Txn) error {
		return rec.ListForSale(caller, price)
	})
	if err == nil {
		r.bus.Publish(ctx, events.New(events.KindListed, name, caller, now).With("", price))
	}
	return rec, err
}

// Unlist withdraws name from sale.
func (r *Registry) Unlist(ctx context.Context, caller domain.Principal, name string) (domain.Record, error) {
	now := r.clock.Now()
	rec, err := r.mutate(ctx, "unlist", name, func(rec *domain.Record, _ store.Txn) error {
		return rec.Unlist(caller)
	})
	if err == nil {
		r.bus.Publish(ctx, events.New(events.KindUnlisted, name, caller, now))
	}
	return rec, err
}

// Buy purchases a listed, unexpired name from seller at its list price.
// expectedPrice > 0 guards against the price changing under the buyer.
// Payment and ownership change commit together or not at all.
func (r *Registry) Buy(ctx context.Context, buyer domain.Principal, name string, seller domain.Principal, expectedPrice int64) (domain.Record, error) {
	now := r.clock.Now()
	var paid int64
	rec, err := r.mutate(ctx, "buy", name, func(rec *domain.Record, tx store.Txn) error {
		if err := rec.CheckPurchase(buyer, seller, expectedPrice, now); err != nil {
			return err
		}
		paid = rec.ListPrice
		if err := tx.Pay(paid, buyer, rec.Owner); err != nil {
			return err
		}
		rec.CompleteSale(buyer)
		return nil
	})
	if err == nil {
		r.bus.Publish(ctx, events.New(events.KindSold, name, buyer, now).With(seller, paid))
	}
	return rec, err
}

// Renew extends name by one validity period from max(expiry, now).
func (r *Registry) Renew(ctx context.Context, caller domain.Principal, name string) (domain.Record, error) {
	now := r.clock.Now()
	rec, err := r.mutate(ctx, "renew", name, func(rec *domain.Record, _ store.Txn) error {
		return rec.Renew(caller, now)
	})
	if err == nil {
		r.bus.Publish(ctx, events.New(events.KindRenewed, name, caller, now))
	}
	return rec, err
}

// Resolve looks up a name, with or without the agent:// scheme.
func (r *Registry) Resolve(ctx context.Context, raw string) (rec domain.Record, err error) {
	name := domain.NormalizeName(raw)
	ctx, end := r.span(ctx, "resolve", name)
	defer func() { end(err) }()

	return r.resolved.Get(ctx, name)
}

// Balance returns the ledger balance of p.
func (r *Registry) Balance(ctx context.Context, p domain.Principal) (int64, error) {
	if !p.Valid() {
		return 0, domain.ErrInvalidPrincipal
	}
	return r.store.Balance(ctx, p)
}

// mutate runs fn on the current record inside one store transaction and
// stages the result. fn must return an error without side effects to abort.
func (r *Registry) mutate(ctx context.Context, op, name string, fn func(*domain.Record, store.Txn) error) (out domain.Record, err error) {
	ctx, end := r.span(ctx, op, name)
	defer func() { end(err) }()

	err = r.store.Update(ctx, name, func(tx store.Txn) error {
		rec := tx.Record()
		if err := fn(&rec, tx); err != nil {
			return err
		}
		tx.Put(rec)
		out = rec
		return nil
	})
	if err != nil {
		return domain.Record{}, err
	}

	r.resolved.Invalidate(name)
	return out, nil
}

// span starts an operation span; the returned func ends it with the outcome.
func (r *Registry) span(ctx context.Context, op, name string) (context.Context, func(error)) {
	ctx, span := r.tracer.Start(ctx, "registry."+op,
		trace.WithAttributes(
			attribute.String("ans.op", op),
			attribute.String("ans.name", name),
		))

	return ctx, func(err error) {
		switch {
		case err == nil:
			span.SetStatus(codes.Ok, "")
		case domain.IsRegistryError(err):
			// Rejections are expected outcomes, not faults
			span.SetAttributes(attribute.String("ans.rejected", err.Error()))
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.log.Error("registry operation failed",
				logger.String("op", op),
				logger.String("name", name),
				logger.Error(err))
		}
		span.End()
	}
}
