package service

import (
	"context"

	"pollster/internal/respondent/models"
	id "pollster/pkg/domain"
	dErrors "pollster/pkg/domain-errors"
)

// RootStore is the read side Resolver needs.
type RootStore interface {
	FindByID(ctx context.Context, respondentID id.RespondentID) (*models.Respondent, error)
}

// Resolver maps any respondent id to its live root. Modules that only need
// resolution (consent, participation, answers) depend on it instead of the
// full Service, which in turn depends on the consent gate.
type Resolver struct {
	store RootStore
}

func NewResolver(store RootStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the live root respondent for respondentID, following a merge
// pointer. Deleted respondents are NotFound.
func (r *Resolver) Resolve(ctx context.Context, respondentID id.RespondentID) (*models.Respondent, error) {
	if respondentID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "respondent id is required")
	}
	found, err := r.store.FindByID(ctx, respondentID)
	if err != nil {
		return nil, wrapStoreErr(err, "respondent not found")
	}
	root, err := r.root(ctx, found)
	if err != nil {
		return nil, err
	}
	if root.IsDeleted() {
		return nil, dErrors.New(dErrors.CodeNotFound, "respondent not found")
	}
	return root, nil
}

// root follows the forwarding pointer of a merged respondent. Pointers are one
// hop deep because merges always resolve to a root.
func (r *Resolver) root(ctx context.Context, found *models.Respondent) (*models.Respondent, error) {
	if !found.IsMerged || found.MergedIntoID == nil {
		return found, nil
	}
	target, err := r.store.FindByID(ctx, *found.MergedIntoID)
	if err != nil {
		return nil, wrapStoreErr(err, "merge target not found")
	}
	return target, nil
}
