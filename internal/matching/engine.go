package matching

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bidscoutlabs/matchd/internal/responsecache"
	"github.com/bidscoutlabs/matchd/internal/vectorstore"
)

// Embedder converts text into a vector. Satisfied by
// embeddings.Service.
type Embedder interface {
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Notification is the payload handed to the notification sink, one per
// alert. Delivery (push, email, in-app) is the sink's concern.
type Notification struct {
	Title string
	Body  string
}

// Notifier receives notifications for new alerts.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// LogNotifier is the default Notifier; it logs each notification.
type LogNotifier struct {
	Logger *zap.Logger
}

// Notify logs the notification payload.
func (n LogNotifier) Notify(ctx context.Context, notification Notification) {
	n.Logger.Info("match alert",
		zap.String("title", notification.Title),
		zap.String("body", notification.Body),
	)
}

// Config tunes the matching engine.
type Config struct {
	// MinMatchScore is the blended-score threshold below which no alert
	// fires. Default: 70.
	MinMatchScore float64

	// CheckInterval is the matching cycle period. Default: 5m.
	CheckInterval time.Duration

	// MaxAlertsPerProfile bounds the per-profile alert store. Default: 10.
	MaxAlertsPerProfile int

	// MaxCandidates caps the corpus slice fetched per cycle. Default: 500.
	MaxCandidates int

	// OpportunityCollection is the corpus collection.
	// Default: "opportunities".
	OpportunityCollection string

	// ProfileCollection holds profile vectors keyed profile_<id>.
	// Default: "profiles".
	ProfileCollection string
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.MinMatchScore == 0 {
		c.MinMatchScore = 70
	}
	if c.CheckInterval == 0 {
		c.CheckInterval = 5 * time.Minute
	}
	if c.MaxAlertsPerProfile == 0 {
		c.MaxAlertsPerProfile = 10
	}
	if c.MaxCandidates == 0 {
		c.MaxCandidates = 500
	}
	if c.OpportunityCollection == "" {
		c.OpportunityCollection = "opportunities"
	}
	if c.ProfileCollection == "" {
		c.ProfileCollection = "profiles"
	}
}

// Engine runs one matching loop per actively-matched profile.
//
// Each profile's cycles execute sequentially on its own goroutine; loops
// for different profiles run independently. A cycle queries the corpus via
// the vector port, scores every candidate against the profile, and turns
// qualifying candidates into deduplicated alerts. Stopping a profile
// prevents further cycles but never interrupts one in flight.
//
// No failure inside a cycle propagates: a vector query error yields an
// empty candidate set, and a candidate that fails to decode or score is
// skipped. The profile simply produces zero new alerts that cycle and
// resumes on the next tick.
type Engine struct {
	config    Config
	store     vectorstore.Store
	embedder  Embedder
	responses *responsecache.Cache
	alerts    *AlertStore
	notifier  Notifier
	clock     Clock
	logger    *zap.Logger
	metrics   *Metrics

	mu      sync.Mutex
	runners map[string]*runner
}

type runner struct {
	profile Profile
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine clock. Tests use this to drive cycles
// deterministically.
func WithClock(clock Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithNotifier overrides the notification sink.
func WithNotifier(notifier Notifier) Option {
	return func(e *Engine) { e.notifier = notifier }
}

// WithResponseCache enables memoization of embeddings and corpus queries.
func WithResponseCache(responses *responsecache.Cache) Option {
	return func(e *Engine) { e.responses = responses }
}

// NewEngine creates a matching engine.
func NewEngine(config Config, store vectorstore.Store, embedder Embedder, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()

	e := &Engine{
		config:   config,
		store:    store,
		embedder: embedder,
		alerts:   NewAlertStore(config.MaxAlertsPerProfile),
		clock:    NewRealClock(),
		logger:   logger,
		metrics:  NewMetrics(logger),
		runners:  make(map[string]*runner),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.notifier == nil {
		e.notifier = LogNotifier{Logger: logger}
	}
	return e
}

// Alerts exposes the engine's alert store.
func (e *Engine) Alerts() *AlertStore {
	return e.alerts
}

// StartMatching begins periodic matching for a profile. Starting a profile
// that is already running is a no-op with a warning.
//
// The profile's vector is (re)stored under profile_<id> so external
// consumers of the profile collection see the current representation.
func (e *Engine) StartMatching(ctx context.Context, profile Profile) error {
	if profile.ID == "" {
		return fmt.Errorf("profile has no ID")
	}

	e.mu.Lock()
	if _, running := e.runners[profile.ID]; running {
		e.mu.Unlock()
		e.logger.Warn("matching already running for profile",
			zap.String("profile_id", profile.ID))
		return nil
	}
	r := &runner{
		profile: profile,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	e.runners[profile.ID] = r
	e.mu.Unlock()

	e.storeProfileVector(ctx, profile)

	e.logger.Info("matching started",
		zap.String("profile_id", profile.ID),
		zap.Duration("interval", e.config.CheckInterval),
	)

	go e.run(ctx, r)
	return nil
}

// StopMatching stops a profile's loop and waits for any in-flight cycle to
// complete. The profile's alerts live only as long as its matching does, so
// they are dropped once the loop has drained. Stopping a profile that is not
// running is a no-op.
func (e *Engine) StopMatching(profileID string) {
	e.mu.Lock()
	r, ok := e.runners[profileID]
	if ok {
		delete(e.runners, profileID)
	}
	e.mu.Unlock()
	if !ok {
		return
	}

	close(r.stopCh)
	<-r.doneCh
	e.alerts.Clear(profileID)
	e.logger.Info("matching stopped", zap.String("profile_id", profileID))
}

// Running returns the IDs of actively-matched profiles.
func (e *Engine) Running() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, 0, len(e.runners))
	for id := range e.runners {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ProfileStatus describes one actively-matched profile.
type ProfileStatus struct {
	ProfileID    string `json:"profileId"`
	AlertCount   int    `json:"alertCount"`
	UnreadAlerts int    `json:"unreadAlerts"`
}

// Status reports the engine's running profiles and their alert counts.
func (e *Engine) Status() []ProfileStatus {
	ids := e.Running()
	statuses := make([]ProfileStatus, 0, len(ids))
	for _, id := range ids {
		statuses = append(statuses, ProfileStatus{
			ProfileID:    id,
			AlertCount:   len(e.alerts.Alerts(id)),
			UnreadAlerts: e.alerts.UnreadCount(id),
		})
	}
	return statuses
}

// Close stops every profile's loop.
func (e *Engine) Close() error {
	for _, id := range e.Running() {
		e.StopMatching(id)
	}
	return nil
}

func (e *Engine) run(ctx context.Context, r *runner) {
	defer close(r.doneCh)

	// First cycle immediately; the ticker drives the rest.
	e.runCycle(ctx, r.profile)

	ticker := e.clock.NewTicker(e.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C():
			e.runCycle(ctx, r.profile)
		}
	}
}

// runCycle executes one matching cycle for a profile.
func (e *Engine) runCycle(ctx context.Context, profile Profile) {
	start := e.clock.Now()
	now := start

	candidates := e.fetchCandidates(ctx, profile)

	type scored struct {
		opp     Opportunity
		factors Factors
		score   float64
	}
	qualifying := make([]scored, 0, len(candidates))

	for _, candidate := range candidates {
		opp, err := OpportunityFromResult(candidate)
		if err != nil {
			// One bad corpus entry must not sink the cycle.
			e.logger.Warn("skipping unscorable opportunity",
				zap.String("profile_id", profile.ID),
				zap.String("opportunity_id", candidate.ID),
				zap.Error(err),
			)
			e.metrics.RecordSkip(ctx)
			continue
		}
		if !opp.Active {
			continue
		}

		factors, factorScore := Score(opp, profile, now)
		score := BlendVectorScore(float64(candidate.Score)*100, factorScore)
		if score < e.config.MinMatchScore {
			continue
		}
		qualifying = append(qualifying, scored{opp: opp, factors: factors, score: score})
	}

	sort.SliceStable(qualifying, func(i, j int) bool {
		return qualifying[i].score > qualifying[j].score
	})

	created := 0
	for _, q := range qualifying {
		if e.alerts.Has(profile.ID, q.opp.ID) {
			continue
		}

		alertType, priority := Classify(q.score, q.factors)
		alert := Alert{
			ID:            uuid.NewString(),
			ProfileID:     profile.ID,
			OpportunityID: q.opp.ID,
			Opportunity:   q.opp,
			MatchScore:    q.score,
			Factors:       q.factors,
			Type:          alertType,
			Priority:      priority,
			CreatedAt:     now,
		}
		if !e.alerts.Add(alert) {
			continue
		}
		created++
		e.notifier.Notify(ctx, notificationFor(alert))
	}

	e.metrics.RecordCycle(ctx, time.Since(start), len(candidates), created)
	e.logger.Debug("matching cycle complete",
		zap.String("profile_id", profile.ID),
		zap.Int("candidates", len(candidates)),
		zap.Int("qualifying", len(qualifying)),
		zap.Int("alerts_created", created),
	)
}

// fetchCandidates queries the corpus with the profile's vector. Errors
// degrade to an empty candidate set: no matches this cycle.
func (e *Engine) fetchCandidates(ctx context.Context, profile Profile) []vectorstore.QueryResult {
	text := profile.SearchText()
	if text == "" {
		e.logger.Warn("profile has no searchable content",
			zap.String("profile_id", profile.ID))
		return nil
	}

	var searchKey string
	if e.responses != nil {
		searchKey = responsecache.SearchKey(text, profile.ID, e.config.MaxCandidates)
		if cached, ok := e.responses.GetSearch(ctx, searchKey); ok {
			return cached
		}
	}

	vector, err := e.embed(ctx, text)
	if err != nil {
		e.logger.Warn("profile embedding failed",
			zap.String("profile_id", profile.ID),
			zap.Error(err),
		)
		return nil
	}

	results, err := e.store.Query(ctx, e.config.OpportunityCollection, vector, e.config.MaxCandidates, nil)
	if err != nil {
		e.logger.Warn("corpus query failed",
			zap.String("profile_id", profile.ID),
			zap.Error(err),
		)
		return nil
	}

	if e.responses != nil {
		e.responses.SetSearch(ctx, searchKey, results)
	}
	return results
}

// embed runs text through the response cache and the embedding gateway.
func (e *Engine) embed(ctx context.Context, text string) ([]float32, error) {
	var key string
	if e.responses != nil {
		key = responsecache.EmbeddingKey(text)
		if vector, ok := e.responses.GetEmbedding(ctx, key); ok {
			return vector, nil
		}
	}

	vector, err := e.embedder.GetEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}

	if e.responses != nil {
		e.responses.SetEmbedding(ctx, key, vector)
	}
	return vector, nil
}

// storeProfileVector upserts the profile's vector under profile_<id>.
// Failures are logged; matching still works because cycles re-embed the
// profile text on demand.
func (e *Engine) storeProfileVector(ctx context.Context, profile Profile) {
	text := profile.SearchText()
	if text == "" {
		return
	}
	vector, err := e.embed(ctx, text)
	if err != nil {
		e.logger.Warn("profile vector embedding failed",
			zap.String("profile_id", profile.ID), zap.Error(err))
		return
	}
	err = e.store.Upsert(ctx, e.config.ProfileCollection, []vectorstore.Vector{{
		ID:     profile.VectorID(),
		Values: vector,
		Metadata: map[string]any{
			"profileId": profile.ID,
			"state":     profile.State,
		},
	}})
	if err != nil {
		e.logger.Warn("profile vector upsert failed",
			zap.String("profile_id", profile.ID), zap.Error(err))
	}
}

// IndexOpportunity embeds and upserts a newly discovered opportunity into
// the corpus collection.
func (e *Engine) IndexOpportunity(ctx context.Context, opp Opportunity) error {
	if opp.ID == "" {
		return fmt.Errorf("opportunity has no ID")
	}
	text := opp.SearchText()
	if text == "" {
		return fmt.Errorf("opportunity %s has no searchable content", opp.ID)
	}

	vector, err := e.embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embedding opportunity %s: %w", opp.ID, err)
	}

	err = e.store.Upsert(ctx, e.config.OpportunityCollection, []vectorstore.Vector{{
		ID:       opp.ID,
		Values:   vector,
		Metadata: opp.Metadata(),
	}})
	if err != nil {
		return fmt.Errorf("upserting opportunity %s: %w", opp.ID, err)
	}
	return nil
}

func notificationFor(alert Alert) Notification {
	return Notification{
		Title: fmt.Sprintf("%s: %s", alertTitle(alert.Type), alert.Opportunity.Title),
		Body: fmt.Sprintf("Match score %.0f/100 (%s priority). %s",
			alert.MatchScore, alert.Priority, alert.Opportunity.SourceLink),
	}
}

func alertTitle(t AlertType) string {
	switch t {
	case AlertHighMatch:
		return "High match"
	case AlertSetAsideMatch:
		return "Set-aside match"
	case AlertDeadlineApproaching:
		return "Deadline approaching"
	default:
		return "New opportunity"
	}
}
