// Package service resolves visitors to respondents and consolidates duplicate
// identities once a visitor authenticates.
package service

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	eventmodels "pollster/internal/events/models"
	"pollster/internal/platform/metrics"
	"pollster/internal/respondent/fingerprint"
	"pollster/internal/respondent/models"
	id "pollster/pkg/domain"
	dErrors "pollster/pkg/domain-errors"
	"pollster/pkg/email"
	"pollster/pkg/platform/sentinel"
	txcontext "pollster/pkg/platform/tx"
	"pollster/pkg/requestcontext"
)

// Store is the persistence port for respondents and their session aliases.
type Store interface {
	Create(ctx context.Context, r *models.Respondent) error
	FindByID(ctx context.Context, respondentID id.RespondentID) (*models.Respondent, error)
	FindSession(ctx context.Context, token string) (*models.Session, error)
	AddSession(ctx context.Context, sess models.Session) error
	DropSession(ctx context.Context, token string) error
	ReassignSessions(ctx context.Context, from, to id.RespondentID) (int, error)
	DeleteSessions(ctx context.Context, respondentID id.RespondentID) (int, error)
	Touch(ctx context.Context, respondentID id.RespondentID, now time.Time) error
	Execute(ctx context.Context, respondentID id.RespondentID, validate func(*models.Respondent) error, mutate func(*models.Respondent)) (*models.Respondent, error)
	LockForUpdate(ctx context.Context, ids ...id.RespondentID) (map[id.RespondentID]*models.Respondent, error)
	Update(ctx context.Context, r *models.Respondent) error
	RepointMerged(ctx context.Context, from, to id.RespondentID) (int, error)
	FindByFingerprint(ctx context.Context, fp string, limit int) ([]*models.Respondent, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]*models.Respondent, error)
	FindAnonymousBySignals(ctx context.Context, fingerprints, ips []string) ([]*models.Respondent, error)
	ListMergedInto(ctx context.Context, root id.RespondentID) ([]*models.Respondent, error)
	List(ctx context.Context, page models.Page) ([]*models.Respondent, int, error)
}

// EventLog records lifecycle events inside the caller's transaction.
type EventLog interface {
	Emit(ctx context.Context, respondentID id.RespondentID, eventType eventmodels.Type, payload eventmodels.Payload) error
	Reassign(ctx context.Context, from, to id.RespondentID) (int, error)
}

// ConsentGate guards regulated writes.
type ConsentGate interface {
	RequireCategory(ctx context.Context, respondentID id.RespondentID, category id.ConsentCategory, survey id.SurveyRef) error
}

// Service owns the respondent aggregate.
type Service struct {
	store          Store
	resolver       *Resolver
	tx             txcontext.Runner
	events         EventLog
	matcher        fingerprint.Matcher
	gate           ConsentGate
	consents       ConsentReassigner
	participations ParticipationReassigner
	answers        AnswerReassigner
	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithMatcher swaps the fingerprint matching rule.
func WithMatcher(m fingerprint.Matcher) Option {
	return func(s *Service) {
		s.matcher = m
	}
}

func WithConsentGate(gate ConsentGate) Option {
	return func(s *Service) {
		s.gate = gate
	}
}

// WithDependents wires the stores whose rows follow a respondent on merge.
func WithDependents(consents ConsentReassigner, participations ParticipationReassigner, answers AnswerReassigner) Option {
	return func(s *Service) {
		s.consents = consents
		s.participations = participations
		s.answers = answers
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

func New(store Store, tx txcontext.Runner, events EventLog, opts ...Option) *Service {
	s := &Service{
		store:    store,
		resolver: NewResolver(store),
		tx:       tx,
		events:   events,
		logger:   slog.Default(),
		tracer:   otel.Tracer("pollster/respondent"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.matcher == nil {
		s.matcher = fingerprint.NewRecentMatcher(store)
	}
	return s
}

// errCreationRace marks a lost race on the session token guard.
var errCreationRace = errors.New("respondent creation race")

// GetOrCreate resolves the visitor behind a request to one respondent: by
// session token, then by fingerprint, else by creating a new one. A creation
// race is retried once; the second attempt finds the winner's row.
func (s *Service) GetOrCreate(ctx context.Context, req models.GetOrCreateRequest) (*models.Resolution, error) {
	if req.SessionToken == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "session token is required")
	}
	if req.UserID != nil && req.UserID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "user id cannot be nil")
	}
	if req.Fingerprint == "" {
		req.Fingerprint = fingerprint.Compute(fingerprint.Signals{
			UserAgent:      req.UserAgent,
			AcceptLanguage: req.AcceptLanguage,
			AcceptEncoding: req.AcceptEncoding,
			ClientIP:       req.ClientIP,
		})
	}

	res, err := s.resolveOnce(ctx, req)
	if errors.Is(err, errCreationRace) {
		s.logger.InfoContext(ctx, "respondent creation race lost, retrying",
			"request_id", requestcontext.RequestID(ctx),
		)
		res, err = s.resolveOnce(ctx, req)
	}
	if err != nil {
		if errors.Is(err, errCreationRace) {
			return nil, dErrors.Wrap(err, dErrors.CodeStorage, "could not resolve respondent")
		}
		return nil, err
	}

	s.metrics.IncrementResolved(string(res.Outcome))
	return res, nil
}

func (s *Service) resolveOnce(ctx context.Context, req models.GetOrCreateRequest) (*models.Resolution, error) {
	var res *models.Resolution
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		now := requestcontext.Now(txCtx)

		hit, err := s.lookup(txCtx, req, now)
		if err != nil {
			return err
		}
		switch {
		case hit != nil && req.UserID != nil && !hit.claimableBy(*req.UserID):
			if hit, err = s.attachUser(txCtx, req, hit.respondent.ID, now); err != nil {
				return err
			}
		case hit == nil:
			r, err := s.create(txCtx, req, now)
			if err != nil {
				return err
			}
			hit = &lookupHit{respondent: r, outcome: models.OutcomeCreated}
		}
		found := hit.respondent

		linked := false
		if req.UserID != nil && !found.IsLinkedTo(*req.UserID) {
			if found, err = s.linkUser(txCtx, found.ID, *req.UserID, now); err != nil {
				return err
			}
			linked = true
		}

		verified := (!hit.adopted && found.IsUnlinked()) ||
			(req.UserID != nil && found.IsLinkedTo(*req.UserID))

		if req.Anonymous != nil && verified {
			updated, err := s.applyAnonymousProfile(txCtx, found.ID, *req.Anonymous, nil, now)
			switch {
			case err == nil:
				found = updated
			case dErrors.HasCode(err, dErrors.CodeComplianceDenied), dErrors.HasCode(err, dErrors.CodeValidation):
				// the hint is optional; without personal_data consent it is not stored
			default:
				return err
			}
		}

		res = &models.Resolution{Respondent: found, Outcome: hit.outcome, Linked: linked, Verified: verified}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// lookupHit is a respondent found for the request's session token.
type lookupHit struct {
	respondent *models.Respondent
	outcome    models.ResolveOutcome
	// adopted marks an alias attached by fingerprint rather than issued.
	adopted bool
}

// claimableBy reports whether a signed-in user may act as the respondent:
// it is already theirs, or it is anonymous and the token was issued to it.
func (h *lookupHit) claimableBy(userID id.UserID) bool {
	if h.respondent.IsLinkedTo(userID) {
		return true
	}
	return h.respondent.IsUnlinked() && !h.adopted
}

// lookup tries the session token, then the fingerprint. A nil hit with nil
// error means nothing matched.
func (s *Service) lookup(ctx context.Context, req models.GetOrCreateRequest, now time.Time) (*lookupHit, error) {
	sess, err := s.store.FindSession(ctx, req.SessionToken)
	switch {
	case err == nil:
		r, err := s.store.FindByID(ctx, sess.RespondentID)
		if err != nil {
			return nil, wrapStoreErr(err, "failed to load session respondent")
		}
		root, err := s.root(ctx, r)
		if err != nil {
			return nil, err
		}
		if err := s.store.Touch(ctx, root.ID, now); err != nil {
			return nil, wrapStoreErr(err, "failed to refresh respondent")
		}
		root.Touch(now)
		return &lookupHit{respondent: root, outcome: models.OutcomeSession, adopted: sess.Adopted}, nil
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, wrapStoreErr(err, "failed to look up session")
	}

	if req.Fingerprint == "" {
		return nil, nil
	}
	match, err := s.matcher.Match(ctx, req.Fingerprint, req.UserID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, wrapStoreErr(err, "failed to match fingerprint")
	}
	// a signed-in owner proves the match; an anonymous one does not
	adopted := req.UserID == nil || !match.IsLinkedTo(*req.UserID)
	if err := s.store.AddSession(ctx, models.Session{
		Token:        req.SessionToken,
		RespondentID: match.ID,
		Adopted:      adopted,
		CreatedAt:    now,
	}); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, errCreationRace
		}
		return nil, wrapStoreErr(err, "failed to adopt respondent")
	}
	if err := s.store.Touch(ctx, match.ID, now); err != nil {
		return nil, wrapStoreErr(err, "failed to refresh respondent")
	}
	match.Touch(now)
	if err := s.events.Emit(ctx, match.ID, eventmodels.TypeResumed, eventmodels.Payload{
		"matched_by": "fingerprint",
	}); err != nil {
		return nil, err
	}
	return &lookupHit{respondent: match, outcome: models.OutcomeFingerprint, adopted: adopted}, nil
}

// attachUser re-points a session that resolved to a respondent the signed-in
// user cannot claim. The user's most recently active respondent takes the
// token; without one a new respondent is created for them.
func (s *Service) attachUser(ctx context.Context, req models.GetOrCreateRequest, previous id.RespondentID, now time.Time) (*lookupHit, error) {
	if err := s.store.DropSession(ctx, req.SessionToken); err != nil {
		return nil, wrapStoreErr(err, "failed to release session")
	}
	owned, err := s.store.ListByUser(ctx, *req.UserID)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to list user respondents")
	}

	hit := &lookupHit{outcome: models.OutcomeUser}
	for _, r := range owned {
		if r.IsLive() {
			hit.respondent = r
			break
		}
	}
	if hit.respondent == nil {
		created, err := s.create(ctx, req, now)
		if err != nil {
			return nil, err
		}
		hit.respondent = created
		hit.outcome = models.OutcomeCreated
	} else {
		if err := s.store.AddSession(ctx, models.Session{
			Token:        req.SessionToken,
			RespondentID: hit.respondent.ID,
			CreatedAt:    now,
		}); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return nil, errCreationRace
			}
			return nil, wrapStoreErr(err, "failed to attach session")
		}
		if err := s.store.Touch(ctx, hit.respondent.ID, now); err != nil {
			return nil, wrapStoreErr(err, "failed to refresh respondent")
		}
		hit.respondent.Touch(now)
		if err := s.events.Emit(ctx, hit.respondent.ID, eventmodels.TypeResumed, eventmodels.Payload{
			"matched_by": "user",
		}); err != nil {
			return nil, err
		}
	}

	s.logger.InfoContext(ctx, "session moved to signed-in user",
		"previous_respondent_id", previous,
		"respondent_id", hit.respondent.ID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return hit, nil
}

func (s *Service) create(ctx context.Context, req models.GetOrCreateRequest, now time.Time) (*models.Respondent, error) {
	browser, device := fingerprint.Describe(req.UserAgent)
	r, err := models.NewRespondent(id.NewRespondentID(), models.NewParams{
		SessionToken: req.SessionToken,
		UserID:       req.UserID,
		Fingerprint:  req.Fingerprint,
		IPAddress:    req.ClientIP,
		UserAgent:    req.UserAgent,
		BrowserInfo:  browser,
		DeviceInfo:   device,
		ReferrerInfo: referrerInfo(req.Referrer),
		TelegramData: req.External,
		EntryPoint:   req.EntryPoint,
	}, now)
	if err != nil {
		return nil, toValidation(err)
	}

	if err := s.store.Create(ctx, r); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, errCreationRace
		}
		return nil, wrapStoreErr(err, "failed to create respondent")
	}
	if err := s.events.Emit(ctx, r.ID, eventmodels.TypeCreated, eventmodels.Payload{
		"entry_point":     r.EntryPoint,
		"is_anonymous":    r.IsAnonymous,
		"has_fingerprint": r.Fingerprint != "",
		"device_type":     device["type"],
		"browser":         browser["name"],
	}); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "respondent created",
		"respondent_id", r.ID,
		"entry_point", r.EntryPoint,
		"request_id", requestcontext.RequestID(ctx),
	)
	return r, nil
}

func (s *Service) linkUser(ctx context.Context, respondentID id.RespondentID, userID id.UserID, now time.Time) (*models.Respondent, error) {
	r, err := s.store.Execute(ctx, respondentID,
		func(r *models.Respondent) error {
			if err := r.CanLinkUser(userID); err != nil {
				if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
					return dErrors.New(dErrors.CodeConflict, "respondent belongs to another user")
				}
				return err
			}
			return nil
		},
		func(r *models.Respondent) {
			r.ApplyLinkUser(userID, now)
		},
	)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to link respondent")
	}
	if err := s.events.Emit(ctx, r.ID, eventmodels.TypeUserLinked, eventmodels.Payload{
		"user_id": userID.String(),
	}); err != nil {
		return nil, err
	}
	return r, nil
}

// root follows the forwarding pointer of a merged respondent.
func (s *Service) root(ctx context.Context, r *models.Respondent) (*models.Respondent, error) {
	return s.resolver.root(ctx, r)
}

// Resolve returns the live root respondent for respondentID, following a merge
// pointer. Deleted respondents are NotFound.
func (s *Service) Resolve(ctx context.Context, respondentID id.RespondentID) (*models.Respondent, error) {
	return s.resolver.Resolve(ctx, respondentID)
}

// Get returns the stored respondent as is, merged or deleted.
func (s *Service) Get(ctx context.Context, respondentID id.RespondentID) (*models.Respondent, error) {
	r, err := s.store.FindByID(ctx, respondentID)
	if err != nil {
		return nil, wrapStoreErr(err, "respondent not found")
	}
	return r, nil
}

// List pages through respondents for administrators.
func (s *Service) List(ctx context.Context, page models.Page) (*models.ListResult, error) {
	page = page.Normalize()
	items, total, err := s.store.List(ctx, page)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to list respondents")
	}
	return &models.ListResult{
		Respondents: items,
		Total:       total,
		Limit:       page.Limit,
		Offset:      page.Offset,
	}, nil
}

// UpdateLocation stores coarse geo attributes and, with location consent, the
// precise position. Without consent a precise fix is rejected, never dropped.
func (s *Service) UpdateLocation(ctx context.Context, respondentID id.RespondentID, update models.LocationUpdate, survey id.SurveyRef) (*models.Respondent, error) {
	root, err := s.Resolve(ctx, respondentID)
	if err != nil {
		return nil, err
	}
	if update.Precise != nil {
		if err := validateLocation(*update.Precise); err != nil {
			return nil, err
		}
		if err := s.requireConsent(ctx, root.ID, id.ConsentLocation, survey); err != nil {
			return nil, err
		}
	}

	geo := update.Geo()
	if len(geo) == 0 && update.Precise == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "location update is empty")
	}

	var updated *models.Respondent
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		now := requestcontext.Now(txCtx)
		if update.Precise != nil && update.Precise.CapturedAt.IsZero() {
			update.Precise.CapturedAt = now
		}
		r, err := s.store.Execute(txCtx, root.ID, canUpdate, func(r *models.Respondent) {
			r.ApplyLocation(geo, update.Precise, now)
		})
		if err != nil {
			return wrapStoreErr(err, "failed to update location")
		}
		if err := s.events.Emit(txCtx, r.ID, eventmodels.TypeLocationUpdated, eventmodels.Payload{
			"precise": update.Precise != nil,
			"country": update.Country,
			"city":    update.City,
		}); err != nil {
			return err
		}
		updated = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateAnonymousProfile stores a self-reported name and email. It requires
// personal_data consent.
func (s *Service) UpdateAnonymousProfile(ctx context.Context, respondentID id.RespondentID, profile models.AnonymousProfile, survey id.SurveyRef) (*models.Respondent, error) {
	root, err := s.Resolve(ctx, respondentID)
	if err != nil {
		return nil, err
	}
	var updated *models.Respondent
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		r, err := s.applyAnonymousProfile(txCtx, root.ID, profile, survey, requestcontext.Now(txCtx))
		if err != nil {
			return err
		}
		updated = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) applyAnonymousProfile(ctx context.Context, respondentID id.RespondentID, profile models.AnonymousProfile, survey id.SurveyRef, now time.Time) (*models.Respondent, error) {
	name := profile.Name
	addr := ""
	if profile.Email != "" {
		normalized, ok := email.Normalize(profile.Email)
		if !ok {
			return nil, dErrors.New(dErrors.CodeValidation, "invalid email address")
		}
		addr = normalized
		if name == "" {
			name = email.DisplayName(addr)
		}
	}
	if name == "" && addr == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "profile is empty")
	}
	if err := s.requireConsent(ctx, respondentID, id.ConsentPersonalData, survey); err != nil {
		return nil, err
	}

	r, err := s.store.Execute(ctx, respondentID, canUpdate, func(r *models.Respondent) {
		r.ApplyAnonymousProfile(name, addr, now)
	})
	if err != nil {
		return nil, wrapStoreErr(err, "failed to update profile")
	}
	fields := []string{}
	if name != "" {
		fields = append(fields, "name")
	}
	if addr != "" {
		fields = append(fields, "email")
	}
	if err := s.events.Emit(ctx, r.ID, eventmodels.TypeProfileUpdated, eventmodels.Payload{
		"fields": fields,
	}); err != nil {
		return nil, err
	}
	return r, nil
}

// requireConsent fails closed: without a gate no regulated write proceeds.
func (s *Service) requireConsent(ctx context.Context, respondentID id.RespondentID, category id.ConsentCategory, survey id.SurveyRef) error {
	if s.gate == nil {
		return dErrors.NewWithDetails(dErrors.CodeComplianceDenied, "consent required", string(category))
	}
	return s.gate.RequireCategory(ctx, respondentID, category, survey)
}

func canUpdate(r *models.Respondent) error {
	if err := r.CanUpdate(); err != nil {
		return dErrors.New(dErrors.CodeConflict, err.Error())
	}
	return nil
}

func validateLocation(loc models.Location) error {
	if loc.Latitude < -90 || loc.Latitude > 90 {
		return dErrors.New(dErrors.CodeValidation, "latitude out of range")
	}
	if loc.Longitude < -180 || loc.Longitude > 180 {
		return dErrors.New(dErrors.CodeValidation, "longitude out of range")
	}
	if loc.Accuracy < 0 {
		return dErrors.New(dErrors.CodeValidation, "accuracy cannot be negative")
	}
	return nil
}

func referrerInfo(raw string) models.Blob {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return models.Blob{"raw": raw}
	}
	info := models.Blob{"host": u.Host, "path": u.Path}
	q := u.Query()
	for _, key := range []string{"utm_source", "utm_medium", "utm_campaign"} {
		if v := q.Get(key); v != "" {
			info[key] = v
		}
	}
	return info
}
