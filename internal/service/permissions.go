package service

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/collection-service/internal/model"
	"github.com/chirino/collection-service/internal/policy"
	registrystore "github.com/chirino/collection-service/internal/registry/store"
	"github.com/chirino/collection-service/internal/security"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// PermissionService manages explicit grants on collections. Every change is
// written to the audit log in the transaction that makes it.
type PermissionService struct {
	*base
}

// manage runs fn after checking that user owns the collection.
func (s *PermissionService) manage(ctx context.Context, collectionID uuid.UUID, user string, fn func(ctx context.Context, tx registrystore.Tx) error) error {
	return s.store.InTx(ctx, func(ctx context.Context, tx registrystore.Tx) error {
		_, a, err := s.collectionChain(ctx, tx, collectionID, user)
		if err != nil {
			return err
		}
		if err := policy.Authorize(a, user, policy.Manage); err != nil {
			return err
		}
		return fn(ctx, tx)
	})
}

// GrantPermissions upserts every grant and logs each one, in request order.
// The batch is applied atomically.
func (s *PermissionService) GrantPermissions(ctx context.Context, collectionID uuid.UUID, grants []Grant, actingUser string) (out []model.CollectionPermission, err error) {
	ctx, span := startSpan(ctx, "PermissionService.GrantPermissions",
		attribute.String("collection.id", collectionID.String()),
		attribute.Int("grants", len(grants)))
	defer func() { endSpan(span, err) }()

	if len(grants) == 0 {
		return nil, &registrystore.ValidationError{Field: "permissions", Message: "at least one grant is required"}
	}
	for i, g := range grants {
		if err := validateInput(g); err != nil {
			if ve, ok := err.(*registrystore.ValidationError); ok {
				ve.Field = fmt.Sprintf("permissions[%d].%s", i, ve.Field)
			}
			return nil, err
		}
	}

	err = s.manage(ctx, collectionID, actingUser, func(ctx context.Context, tx registrystore.Tx) error {
		out = make([]model.CollectionPermission, 0, len(grants))
		for _, g := range grants {
			p, err := tx.UpsertPermission(ctx, &model.CollectionPermission{
				CollectionID: collectionID,
				UserID:       g.UserID,
				Level:        g.Level,
				GrantedBy:    actingUser,
			})
			if err != nil {
				return err
			}
			level := g.Level
			if err := tx.AppendLog(ctx, &model.PermissionLogEntry{
				CollectionID: collectionID,
				UserID:       g.UserID,
				Action:       model.ActionGrant,
				Level:        &level,
				PerformedBy:  actingUser,
			}); err != nil {
				return err
			}
			out = append(out, *p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	countChanges(model.ActionGrant, len(grants))
	log.Info("Permissions granted", "collection", collectionID, "count", len(grants), "by", actingUser)
	return out, nil
}

// RevokePermission removes userID's grant. A REVOKE entry is logged even when
// no grant existed, with the removed level when there was one.
func (s *PermissionService) RevokePermission(ctx context.Context, collectionID uuid.UUID, userID, actingUser string) (err error) {
	ctx, span := startSpan(ctx, "PermissionService.RevokePermission", attribute.String("collection.id", collectionID.String()))
	defer func() { endSpan(span, err) }()

	err = s.manage(ctx, collectionID, actingUser, func(ctx context.Context, tx registrystore.Tx) error {
		var level *model.PermissionLevel
		existing, err := tx.GetPermission(ctx, collectionID, userID)
		switch {
		case err == nil:
			level = &existing.Level
		case !isNotFound(err):
			return err
		}
		if _, err := tx.RemovePermission(ctx, collectionID, userID); err != nil {
			return err
		}
		return tx.AppendLog(ctx, &model.PermissionLogEntry{
			CollectionID: collectionID,
			UserID:       userID,
			Action:       model.ActionRevoke,
			Level:        level,
			PerformedBy:  actingUser,
		})
	})
	if err != nil {
		return err
	}
	countChanges(model.ActionRevoke, 1)
	log.Info("Permission revoked", "collection", collectionID, "user", userID, "by", actingUser)
	return nil
}

// GetUserPermission returns the level userID holds on the collection. The
// creator always holds OWNER. ok is false when the user has no level.
func (s *PermissionService) GetUserPermission(ctx context.Context, collectionID uuid.UUID, userID string) (level model.PermissionLevel, ok bool, err error) {
	ctx, span := startSpan(ctx, "PermissionService.GetUserPermission", attribute.String("collection.id", collectionID.String()))
	defer func() { endSpan(span, err) }()

	err = s.store.InTx(ctx, func(ctx context.Context, tx registrystore.Tx) error {
		c, err := tx.GetCollection(ctx, collectionID)
		if err != nil {
			return err
		}
		if c.CreatedBy == userID {
			level, ok = model.PermissionOwner, true
			return nil
		}
		p, err := tx.GetPermission(ctx, collectionID, userID)
		switch {
		case err == nil:
			level, ok = p.Level, true
			return nil
		case isNotFound(err):
			return nil
		default:
			return err
		}
	})
	return level, ok, err
}

// ListPermissions returns every explicit grant, oldest first.
func (s *PermissionService) ListPermissions(ctx context.Context, collectionID uuid.UUID, actingUser string) (out []model.CollectionPermission, err error) {
	ctx, span := startSpan(ctx, "PermissionService.ListPermissions", attribute.String("collection.id", collectionID.String()))
	defer func() { endSpan(span, err) }()

	err = s.manage(ctx, collectionID, actingUser, func(ctx context.Context, tx registrystore.Tx) error {
		out, err = tx.ListPermissions(ctx, collectionID)
		return err
	})
	return nonNil(out), err
}

// GetAuditLog returns the permission log of the collection, oldest first.
func (s *PermissionService) GetAuditLog(ctx context.Context, collectionID uuid.UUID, actingUser string) (out []model.PermissionLogEntry, err error) {
	ctx, span := startSpan(ctx, "PermissionService.GetAuditLog", attribute.String("collection.id", collectionID.String()))
	defer func() { endSpan(span, err) }()

	err = s.manage(ctx, collectionID, actingUser, func(ctx context.Context, tx registrystore.Tx) error {
		out, err = tx.ListLogs(ctx, collectionID)
		return err
	})
	return nonNil(out), err
}

func countChanges(action model.PermissionAction, n int) {
	if security.PermissionChangesTotal == nil {
		return
	}
	security.PermissionChangesTotal.WithLabelValues(string(action)).Add(float64(n))
}
