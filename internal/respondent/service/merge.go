package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	eventmodels "pollster/internal/events/models"
	"pollster/internal/respondent/models"
	id "pollster/pkg/domain"
	dErrors "pollster/pkg/domain-errors"
	"pollster/pkg/platform/sentinel"
	"pollster/pkg/requestcontext"
)

// ConsentReassigner moves consent records to a merge target. When both
// respondents hold an active record for the same key, the most recently
// granted one survives and the other is revoked at now.
type ConsentReassigner interface {
	ReassignRespondent(ctx context.Context, from, to id.RespondentID, now time.Time) (int, error)
}

// ParticipationReassigner moves participation records to a merge target.
// Records for surveys the target already has stay on the source and are
// reported as retained.
type ParticipationReassigner interface {
	ReassignRespondent(ctx context.Context, from, to id.RespondentID) (moved int, retained []id.SurveyID, err error)
}

// AnswerReassigner moves domain answers to a merge target.
type AnswerReassigner interface {
	ReassignRespondent(ctx context.Context, from, to id.RespondentID) (int, error)
}

// AutoMerge folds every respondent that probably belongs to userID into the
// user's primary respondent and returns the ids merged by this call.
//
// Candidates are the user's other respondents plus anonymous, unlinked
// respondents sharing a fingerprint or IP address with any of the user's
// respondents. Candidates that are already merged are skipped, so calling
// AutoMerge again is a no-op.
func (s *Service) AutoMerge(ctx context.Context, userID id.UserID) ([]id.RespondentID, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "user id is required")
	}
	ctx, span := s.tracer.Start(ctx, "respondent.AutoMerge",
		trace.WithAttributes(attribute.String("user_id", userID.String())))
	defer span.End()

	owned, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to list user respondents")
	}
	primary := PickPrimary(owned)
	if primary == nil {
		return nil, nil
	}

	var fingerprints, ips []string
	for _, r := range owned {
		if r.Fingerprint != "" {
			fingerprints = append(fingerprints, r.Fingerprint)
		}
		if r.IPAddress != "" {
			ips = append(ips, r.IPAddress)
		}
	}
	anonymous, err := s.store.FindAnonymousBySignals(ctx, fingerprints, ips)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to find merge candidates")
	}

	seen := map[id.RespondentID]bool{primary.ID: true}
	var candidates []*models.Respondent
	for _, r := range append(owned, anonymous...) {
		if seen[r.ID] || r.IsMerged || r.IsDeleted() {
			continue
		}
		seen[r.ID] = true
		candidates = append(candidates, r)
	}

	var merged []id.RespondentID
	for _, c := range candidates {
		if _, err := s.Merge(ctx, c.ID, primary.ID); err != nil {
			if dErrors.HasCode(err, dErrors.CodeConflict) || dErrors.HasCode(err, dErrors.CodeNotFound) {
				// merged or erased concurrently
				s.logger.InfoContext(ctx, "merge candidate skipped",
					"source_id", c.ID,
					"target_id", primary.ID,
					"reason", err.Error(),
				)
				continue
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "auto merge failed")
			return merged, err
		}
		merged = append(merged, c.ID)
	}
	span.SetAttributes(attribute.Int("merged_count", len(merged)))
	return merged, nil
}

// PickPrimary chooses the respondent other identities are merged into: the
// most recently active authenticated respondent that is neither merged nor
// deleted, lowest id on ties. Returns nil when there is none.
func PickPrimary(respondents []*models.Respondent) *models.Respondent {
	var primary *models.Respondent
	for _, r := range respondents {
		if r.IsAnonymous || r.UserID == nil || r.IsMerged || r.IsDeleted() {
			continue
		}
		switch {
		case primary == nil:
			primary = r
		case r.LastActivityAt.After(primary.LastActivityAt):
			primary = r
		case r.LastActivityAt.Equal(primary.LastActivityAt) && r.ID.Less(primary.ID):
			primary = r
		}
	}
	return primary
}

// Merge irreversibly folds source into target in one transaction: dependent
// rows move to target, source becomes an inactive forwarding pointer and one
// merged event is recorded on source. Either everything commits or nothing
// does.
func (s *Service) Merge(ctx context.Context, source, target id.RespondentID) (*models.MergeResult, error) {
	if source.IsNil() || target.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "source and target are required")
	}
	if source == target {
		return nil, dErrors.New(dErrors.CodeConflict, "respondent cannot be merged into itself")
	}
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "respondent.Merge", trace.WithAttributes(
		attribute.String("source_id", source.String()),
		attribute.String("target_id", target.String()),
	))
	defer span.End()

	var result *models.MergeResult
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		now := requestcontext.Now(txCtx)

		locked, err := s.store.LockForUpdate(txCtx, source, target)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "respondent not found")
			}
			return wrapStoreErr(err, "failed to lock respondents")
		}
		src, dst := locked[source], locked[target]
		if err := src.CanMergeInto(dst); err != nil {
			if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
				return dErrors.New(dErrors.CodeConflict, err.Error())
			}
			return err
		}

		res, err := s.reassignDependents(txCtx, source, target, now)
		if err != nil {
			return err
		}

		src.ApplyMergeInto(dst, now)
		if err := s.store.Update(txCtx, src); err != nil {
			return wrapStoreErr(err, "failed to mark source merged")
		}
		if err := s.store.Update(txCtx, dst); err != nil {
			return wrapStoreErr(err, "failed to update merge target")
		}

		res.SourceID = source
		res.TargetID = target
		res.MergedAt = now
		if err := s.events.Emit(txCtx, source, eventmodels.TypeMerged, eventmodels.Payload{
			"target_id":        target.String(),
			"events":           res.Events,
			"consents":         res.Consents,
			"participations":   res.Participations,
			"answers":          res.Answers,
			"retained_surveys": res.RetainedSurveys,
		}); err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "merge failed")
		return nil, err
	}

	s.metrics.ObserveMerge(start)
	s.logger.InfoContext(ctx, "respondents merged",
		"source_id", source,
		"target_id", target,
		"events", result.Events,
		"consents", result.Consents,
		"participations", result.Participations,
		"request_id", requestcontext.RequestID(ctx),
	)
	return result, nil
}

func (s *Service) reassignDependents(ctx context.Context, source, target id.RespondentID, now time.Time) (*models.MergeResult, error) {
	res := &models.MergeResult{}
	var err error

	if res.Events, err = s.events.Reassign(ctx, source, target); err != nil {
		return nil, err
	}
	if s.consents != nil {
		if res.Consents, err = s.consents.ReassignRespondent(ctx, source, target, now); err != nil {
			return nil, wrapStoreErr(err, "failed to reassign consents")
		}
	}
	if s.participations != nil {
		if res.Participations, res.RetainedSurveys, err = s.participations.ReassignRespondent(ctx, source, target); err != nil {
			return nil, wrapStoreErr(err, "failed to reassign participations")
		}
	}
	if s.answers != nil {
		if res.Answers, err = s.answers.ReassignRespondent(ctx, source, target); err != nil {
			return nil, wrapStoreErr(err, "failed to reassign answers")
		}
	}
	if _, err := s.store.ReassignSessions(ctx, source, target); err != nil {
		return nil, wrapStoreErr(err, "failed to reassign sessions")
	}
	if _, err := s.store.RepointMerged(ctx, source, target); err != nil {
		return nil, wrapStoreErr(err, "failed to repoint merged respondents")
	}
	return res, nil
}
