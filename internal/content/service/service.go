// Package service runs the content edit workflow: reconcile a submitted
// payload against the stored aggregate, stamp it and persist it in one step.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/contentd/contentd/internal/authz"
	"github.com/contentd/contentd/internal/content"
	"github.com/contentd/contentd/internal/content/payload"
	"github.com/contentd/contentd/internal/content/reconcile"
	"github.com/contentd/contentd/internal/content/repository"
	"github.com/contentd/contentd/internal/lock"
	"github.com/contentd/contentd/internal/query"
	"github.com/contentd/contentd/internal/schema"
	"github.com/contentd/contentd/pkg/logger"
)

var (
	ErrForbidden = errors.New("content is outside the principal's scope")
)

// Service is safe for concurrent use. Writes to one aggregate are serialized
// through the locker.
type Service struct {
	registry *schema.Registry
	store    repository.Store
	engine   *reconcile.Engine
	locker   lock.Locker
	now      func() time.Time
}

// NewService wires the engine to the store. A nil locker disables locking.
func NewService(registry *schema.Registry, store repository.Store, locker lock.Locker) *Service {
	if locker == nil {
		locker = lock.Noop{}
	}
	return &Service{
		registry: registry,
		store:    store,
		engine:   reconcile.NewEngine(store, store),
		locker:   locker,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// EditLocale returns requested when the content type declares it, otherwise
// the type's default locale.
func (s *Service) EditLocale(ct *schema.ContentType, requested string) string {
	if requested != "" && ct.HasLocale(requested) {
		return requested
	}
	return ct.DefaultLocale()
}

func (s *Service) Get(ctx context.Context, id int64, principal authz.Principal) (*content.Content, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(principal, c); err != nil {
		return nil, err
	}
	return c, nil
}

// New creates and persists an item of contentType from p, authored by the
// principal. The result must fall inside the principal's scope.
func (s *Service) New(ctx context.Context, contentType string, principal authz.Principal, p *payload.Payload) (*reconcile.Result, error) {
	ct, err := s.registry.Get(contentType)
	if err != nil {
		return nil, err
	}
	c := content.New(ct.Slug, authorOf(principal), content.StatusDraft)
	c.SetStatus(ct.DefaultStatus)
	return s.create(ctx, ct, c, principal, p)
}

// Save reconciles p against the stored item and persists the result. The
// aggregate stays locked from load to flush.
func (s *Service) Save(ctx context.Context, id int64, principal authz.Principal, p *payload.Payload) (*reconcile.Result, error) {
	lease, err := s.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer s.release(lease)

	existing, ct, err := s.load(ctx, id, principal)
	if err != nil {
		return nil, err
	}
	res, err := s.engine.Reconcile(ctx, existing, ct, p, s.EditLocale(ct, p.EditLocale), reconcile.Options{})
	if err != nil {
		return nil, err
	}
	// relations may move the item out of scope
	if err := s.authorize(principal, res.Content); err != nil {
		return nil, err
	}
	s.stamp(res.Content)
	if err := s.store.Save(ctx, res.Content); err != nil {
		return nil, fmt.Errorf("save content %d: %w", id, err)
	}
	s.logSaved(subject(principal), res)
	return res, nil
}

// Preview reconciles p against the stored item without persisting anything.
func (s *Service) Preview(ctx context.Context, id int64, principal authz.Principal, p *payload.Payload) (*reconcile.Result, error) {
	existing, ct, err := s.load(ctx, id, principal)
	if err != nil {
		return nil, err
	}
	return s.engine.Reconcile(ctx, existing, ct, p, s.EditLocale(ct, p.EditLocale), reconcile.Options{})
}

// SetStatus changes only the status. Values outside the status enum leave
// the item unchanged and nothing is written.
func (s *Service) SetStatus(ctx context.Context, id int64, principal authz.Principal, status string) (*content.Content, error) {
	lease, err := s.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer s.release(lease)

	c, _, err := s.load(ctx, id, principal)
	if err != nil {
		return nil, err
	}
	if !c.SetStatus(status) {
		logger.Debugf("content: ignoring status %q for %d", status, id)
		return c, nil
	}
	s.stamp(c)
	if err := s.store.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("save content %d: %w", id, err)
	}
	logger.Infof("content: %d status set to %s by %s", id, c.Status, subject(principal))
	return c, nil
}

// Duplicate returns an unsaved copy of the item owned by author.
func (s *Service) Duplicate(ctx context.Context, id int64, principal authz.Principal) (*content.Content, error) {
	c, _, err := s.load(ctx, id, principal)
	if err != nil {
		return nil, err
	}
	return c.Duplicate(authorOf(principal)), nil
}

// DuplicateSave persists a copy of the item reconciled with p.
func (s *Service) DuplicateSave(ctx context.Context, id int64, principal authz.Principal, p *payload.Payload) (*reconcile.Result, error) {
	c, ct, err := s.load(ctx, id, principal)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, ct, c.Duplicate(authorOf(principal)), principal, p)
}

// Delete removes the item with its fields, taxonomy links and relations.
func (s *Service) Delete(ctx context.Context, id int64, principal authz.Principal) error {
	lease, err := s.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer s.release(lease)

	if _, _, err := s.load(ctx, id, principal); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	logger.Infof("content: %d deleted by %s", id, subject(principal))
	return nil
}

func (s *Service) create(ctx context.Context, ct *schema.ContentType, c *content.Content, principal authz.Principal, p *payload.Payload) (*reconcile.Result, error) {
	res, err := s.engine.Reconcile(ctx, c, ct, p, s.EditLocale(ct, p.EditLocale), reconcile.Options{})
	if err != nil {
		return nil, err
	}
	if err := s.authorize(principal, res.Content); err != nil {
		return nil, err
	}
	s.stamp(res.Content)
	if err := s.store.Save(ctx, res.Content); err != nil {
		return nil, fmt.Errorf("create %s: %w", ct.Slug, err)
	}
	s.logSaved(subject(principal), res)
	return res, nil
}

func (s *Service) load(ctx context.Context, id int64, principal authz.Principal) (*content.Content, *schema.ContentType, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := s.authorize(principal, c); err != nil {
		return nil, nil, err
	}
	ct, err := s.registry.Get(c.ContentType)
	if err != nil {
		return nil, nil, err
	}
	return c, ct, nil
}

// authorize applies the read scoping rules to a single item, so restricted
// principals can only touch rows they could also query.
func (s *Service) authorize(principal authz.Principal, c *content.Content) error {
	plan := query.NewPlan(c.ContentType)
	query.Restrict(s.registry.Scoping, plan, principal, false)
	if !query.Match(plan, c) {
		return ErrForbidden
	}
	return nil
}

func (s *Service) stamp(c *content.Content) {
	now := s.now()
	if c.CreatedAt == nil {
		created := now
		c.CreatedAt = &created
	}
	c.ModifiedAt = &now
}

func (s *Service) acquire(ctx context.Context, id int64) (*lock.Lease, error) {
	lease, err := s.locker.Acquire(ctx, "content:"+strconv.FormatInt(id, 10))
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			logger.Infof("content: %d is locked by another writer", id)
		}
		return nil, err
	}
	return lease, nil
}

func (s *Service) release(lease *lock.Lease) {
	if err := lease.Release(context.Background()); err != nil {
		logger.Warnf("content: release %s: %v", lease.Key, err)
	}
}

func (s *Service) logSaved(who string, res *reconcile.Result) {
	logger.Infof("content: saved %s %d by %s (%d field change(s))", res.Content.ContentType, res.Content.ID, who, len(res.Changes))
	for _, d := range res.Dropped {
		logger.Debugf("content: %d: %v", res.Content.ID, d)
	}
}

func subject(principal authz.Principal) string {
	if principal == nil {
		return "anonymous"
	}
	return principal.Subject()
}

// authorOf is the author recorded on new items; anonymous callers leave it empty.
func authorOf(principal authz.Principal) string {
	if principal == nil || principal.Subject() == authz.Anonymous().Subject() {
		return ""
	}
	return principal.Subject()
}
