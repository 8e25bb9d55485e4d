package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/attribute"

	"github.com/terraconstructs/gatekeeper/internal/auth"
	"github.com/terraconstructs/gatekeeper/internal/db/models"
	"github.com/terraconstructs/gatekeeper/internal/repository"
	"github.com/terraconstructs/gatekeeper/internal/telemetry"
)

// DefaultMaxAttempts bounds how often a bootstrap transaction is retried
// after losing a uniqueness race.
const DefaultMaxAttempts = 3

// BootstrapResult reports what a bootstrap run changed.
type BootstrapResult struct {
	Resource           string
	ContentTypeCreated bool
	Created            []string
	Existing           []string
	Attempts           int
}

// TeardownResult reports what a teardown run removed.
type TeardownResult struct {
	Resource           string
	PermissionsDeleted int64
	ContentTypeDeleted bool
}

// Bootstrapper creates and removes the permission catalog of registered resources.
type Bootstrapper struct {
	db          *bun.DB
	log         logrus.FieldLogger
	maxAttempts int
}

// NewBootstrapper returns a bootstrapper over db. A nil logger discards output.
func NewBootstrapper(db *bun.DB, log logrus.FieldLogger) *Bootstrapper {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Bootstrapper{db: db, log: log, maxAttempts: DefaultMaxAttempts}
}

// WithMaxAttempts overrides the retry bound.
func (b *Bootstrapper) WithMaxAttempts(n int) *Bootstrapper {
	if n > 0 {
		b.maxAttempts = n
	}
	return b
}

// Bootstrap ensures the resource's content type and one permission per
// declared action exist. Lookup and insert share one transaction. When a
// concurrent bootstrap wins a uniqueness race the transaction is retried and
// the winner's rows are adopted.
func (b *Bootstrapper) Bootstrap(ctx context.Context, res Resource) (*BootstrapResult, error) {
	if err := res.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrBadRequest, err)
	}

	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerCatalog, "catalog.Bootstrap",
		attribute.String(telemetry.AttrResource, res.Name))
	defer span.End()

	var (
		result *BootstrapResult
		err    error
	)
	for attempt := 1; attempt <= b.maxAttempts; attempt++ {
		result, err = b.bootstrapOnce(ctx, res)
		if err == nil {
			result.Attempts = attempt
			break
		}
		if !errors.Is(err, auth.ErrConflict) {
			break
		}
		b.log.WithFields(logrus.Fields{
			"resource": res.Name,
			"attempt":  attempt,
		}).Warn("catalog bootstrap lost a uniqueness race, retrying")
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("bootstrap %s: %w", res.Name, err)
	}

	b.log.WithFields(logrus.Fields{
		"resource":             res.Name,
		"content_type_created": result.ContentTypeCreated,
		"created":              len(result.Created),
		"existing":             len(result.Existing),
	}).Info("catalog bootstrapped")
	return result, nil
}

func (b *Bootstrapper) bootstrapOnce(ctx context.Context, res Resource) (*BootstrapResult, error) {
	result := &BootstrapResult{Resource: res.Name}

	err := b.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		perms := repository.NewBunPermissionRepository(tx)

		ct, err := perms.GetContentTypeByName(ctx, res.Name)
		switch {
		case errors.Is(err, auth.ErrNotFound):
			ct = &models.ContentType{Name: res.Name}
			if err := perms.CreateContentType(ctx, ct); err != nil {
				return err
			}
			result.ContentTypeCreated = true
		case err != nil:
			return err
		}

		for _, name := range res.PermissionNames() {
			_, err := perms.GetByName(ctx, name)
			if err == nil {
				result.Existing = append(result.Existing, name)
				continue
			}
			if !errors.Is(err, auth.ErrNotFound) {
				return err
			}
			if err := perms.Create(ctx, &models.Permission{Name: name, ContentTypeID: ct.ID}); err != nil {
				return err
			}
			result.Created = append(result.Created, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// BootstrapAll bootstraps every resource in the registry, in order.
func (b *Bootstrapper) BootstrapAll(ctx context.Context, reg *Registry) ([]*BootstrapResult, error) {
	results := make([]*BootstrapResult, 0, len(reg.resources))
	for _, res := range reg.Resources() {
		r, err := b.Bootstrap(ctx, res)
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}
	return results, nil
}

// Teardown deletes exactly the permissions named by the resource's declared
// actions, then the content type once it owns no permissions. Role and user
// grants of the deleted permissions cascade.
func (b *Bootstrapper) Teardown(ctx context.Context, res Resource) (*TeardownResult, error) {
	if err := res.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrBadRequest, err)
	}

	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerCatalog, "catalog.Teardown",
		attribute.String(telemetry.AttrResource, res.Name))
	defer span.End()

	result := &TeardownResult{Resource: res.Name}
	err := b.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		perms := repository.NewBunPermissionRepository(tx)

		n, err := perms.DeleteByNames(ctx, res.PermissionNames())
		if err != nil {
			return err
		}
		result.PermissionsDeleted = n

		ct, err := perms.GetContentTypeByName(ctx, res.Name)
		if errors.Is(err, auth.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		remaining, err := perms.CountByContentType(ctx, ct.ID)
		if err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}
		if err := perms.DeleteContentType(ctx, ct.ID); err != nil {
			return err
		}
		result.ContentTypeDeleted = true
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("teardown %s: %w", res.Name, err)
	}

	b.log.WithFields(logrus.Fields{
		"resource":             res.Name,
		"permissions_deleted":  result.PermissionsDeleted,
		"content_type_deleted": result.ContentTypeDeleted,
	}).Info("catalog torn down")
	return result, nil
}

// TeardownAll tears down every resource in the registry in reverse order.
func (b *Bootstrapper) TeardownAll(ctx context.Context, reg *Registry) error {
	resources := reg.Resources()
	for i := len(resources) - 1; i >= 0; i-- {
		if _, err := b.Teardown(ctx, resources[i]); err != nil {
			return err
		}
	}
	return nil
}
