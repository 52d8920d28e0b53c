package engine

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gitlab.com/leadpilot/api/lead-status-engine/internal/apperrors"
	"gitlab.com/leadpilot/api/lead-status-engine/internal/events"
	"gitlab.com/leadpilot/api/lead-status-engine/internal/model"
	"gitlab.com/leadpilot/api/lead-status-engine/internal/storage"
	"gitlab.com/leadpilot/api/lead-status-engine/pkg/logger"
)

// fakeStore is an in-memory LeadRepo and AuditLogRepo with transactional
// rollback, used to exercise the engine without a database.
type fakeStore struct {
	mu        sync.Mutex
	leads     map[string]*model.Lead
	audits    []*model.AuditLogEntry
	updateErr error
	auditErr  error
}

func newFakeStore(leads ...*model.Lead) *fakeStore {
	s := &fakeStore{leads: map[string]*model.Lead{}}
	for _, l := range leads {
		clone := *l
		s.leads[l.ID] = &clone
	}
	return s
}

func (s *fakeStore) Save(_ context.Context, lead *model.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *lead
	s.leads[lead.ID] = &clone
	return nil
}

func (s *fakeStore) FindByID(_ context.Context, id string) (*model.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	clone := *lead
	return &clone, nil
}

func (s *fakeStore) FindDue(_ context.Context, organizationID string, now time.Time) ([]model.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []model.Lead
	for _, lead := range s.leads {
		if lead.Status != model.StatusWaitingD2 && lead.Status != model.StatusWaitingD1 {
			continue
		}
		if lead.NextActionDueAt == nil || lead.NextActionDueAt.After(now) {
			continue
		}
		if organizationID != "" && lead.OrganizationID != organizationID {
			continue
		}
		due = append(due, *lead)
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextActionDueAt.Before(*due[j].NextActionDueAt)
	})
	return due, nil
}

func (s *fakeStore) Transact(_ context.Context, fn func(tx storage.LeadTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Snapshot for rollback
	savedLeads := map[string]*model.Lead{}
	for id, lead := range s.leads {
		clone := *lead
		savedLeads[id] = &clone
	}
	savedAudits := append([]*model.AuditLogEntry(nil), s.audits...)

	if err := fn(&fakeTx{s: s}); err != nil {
		s.leads = savedLeads
		s.audits = savedAudits
		return err
	}
	return nil
}

func (s *fakeStore) Close(context.Context) error { return nil }

func (s *fakeStore) Append(_ context.Context, entry *model.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, entry)
	return nil
}

func (s *fakeStore) FindByLeadID(_ context.Context, leadID string) ([]model.AuditLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var entries []model.AuditLogEntry
	for _, e := range s.audits {
		if e.LeadID == leadID {
			entries = append(entries, *e)
		}
	}
	return entries, nil
}

func (s *fakeStore) CountByLeadID(_ context.Context, leadID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, e := range s.audits {
		if e.LeadID == leadID {
			n++
		}
	}
	return n, nil
}

type fakeTx struct {
	s *fakeStore
}

func (t *fakeTx) FindByIDForUpdate(_ context.Context, id string) (*model.Lead, error) {
	lead, ok := t.s.leads[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	clone := *lead
	return &clone, nil
}

func (t *fakeTx) UpdateFields(_ context.Context, id string, fields model.FieldSet) error {
	if t.s.updateErr != nil {
		return t.s.updateErr
	}
	lead, ok := t.s.leads[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	lead.Apply(fields)
	return nil
}

func (t *fakeTx) AppendAuditLog(_ context.Context, entry *model.AuditLogEntry) error {
	if t.s.auditErr != nil {
		return t.s.auditErr
	}
	t.s.audits = append(t.s.audits, entry)
	return nil
}

// fakePublisher records published events.
type fakePublisher struct {
	mu     sync.Mutex
	events []events.StatusChangedEvent
	err    error
}

func (p *fakePublisher) PublishStatusChanged(_ context.Context, event events.StatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) Close() {}

func newTestEngine(t *testing.T, store *fakeStore, publisher events.Publisher) *Engine {
	logger.Log = zaptest.NewLogger(t).Named("test")
	return NewEngine(store, store, publisher)
}

func TestAdvanceLead_AutoChainFromNew(t *testing.T) {
	lead := model.NewLead(func(l *model.Lead) {
		l.Status = model.StatusNew
		l.EmailSent1 = true
	})
	store := newFakeStore(lead)
	publisher := &fakePublisher{}
	eng := newTestEngine(t, store, publisher)

	res, err := eng.AdvanceLead(context.Background(), lead.ID, model.StatusContacted1, "tester", model.SourceAPI)
	require.NoError(t, err)
	require.True(t, res.Success)

	require.Len(t, res.Transitions, 2)
	assert.Equal(t, TransitionStep{From: model.StatusNew, To: model.StatusContacted1}, res.Transitions[0])
	assert.Equal(t, TransitionStep{From: model.StatusContacted1, To: model.StatusWaitingD2}, res.Transitions[1])

	assert.Equal(t, model.StatusWaitingD2, res.Lead.Status)
	require.NotNil(t, res.Lead.NextAction)
	assert.Equal(t, model.NextActionCall, *res.Lead.NextAction)
	require.NotNil(t, res.Lead.NextActionDueAt)
	assert.WithinDuration(t, time.Now().UTC().Add(48*time.Hour), *res.Lead.NextActionDueAt, time.Minute)

	// One audit entry per applied hop, committed with the lead update
	count, err := store.CountByLeadID(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	entries, err := store.FindByLeadID(context.Background(), lead.ID)
	require.NoError(t, err)
	for _, e := range entries {
		assert.Equal(t, model.AuditActionStatusChange, e.Action)
		assert.Equal(t, "tester", e.Actor)
		assert.Equal(t, string(model.SourceAPI), e.Source)
	}

	// Event published after commit with the full hop list
	require.Len(t, publisher.events, 1)
	assert.Equal(t, model.StatusWaitingD2, publisher.events[0].FinalStatus)
	assert.Len(t, publisher.events[0].Transitions, 2)
}

func TestAdvanceLead_Contacted2Branches(t *testing.T) {
	cases := []struct {
		name        string
		mobileValid bool
		wantStatus  model.LeadStatus
		wantOutcome *string
	}{
		{"valid mobile chains to wa voice", true, model.StatusWaVoiceDue, nil},
		{"invalid mobile completes", false, model.StatusCompleted, strPtr(model.OutcomePipelineCompleteNoMobile)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lead := model.NewLead(func(l *model.Lead) {
				l.Status = model.StatusWaitingD1
				l.LastActionAt = time.Now().UTC().Add(-25 * time.Hour)
				l.EmailSent2 = true
				l.MobileValid = tc.mobileValid
			})
			store := newFakeStore(lead)
			eng := newTestEngine(t, store, &fakePublisher{})

			res, err := eng.AdvanceLead(context.Background(), lead.ID, model.StatusContacted2, "tester", model.SourceScheduler)
			require.NoError(t, err)
			require.True(t, res.Success)

			require.Len(t, res.Transitions, 2)
			assert.Equal(t, model.StatusContacted2, res.Transitions[1].From)
			assert.Equal(t, tc.wantStatus, res.Lead.Status)
			if tc.wantOutcome != nil {
				require.NotNil(t, res.Lead.Outcome)
				assert.Equal(t, *tc.wantOutcome, *res.Lead.Outcome)
			} else {
				require.NotNil(t, res.Lead.NextAction)
				assert.Equal(t, model.NextActionSendWaVoice, *res.Lead.NextAction)
				assert.Nil(t, res.Lead.NextActionDueAt)
			}
		})
	}
}

func TestAdvanceLead_NotAllowed(t *testing.T) {
	lead := model.NewLead(func(l *model.Lead) {
		l.Status = model.StatusNew
		l.EmailSent1 = true
	})
	store := newFakeStore(lead)
	eng := newTestEngine(t, store, &fakePublisher{})

	res, err := eng.AdvanceLead(context.Background(), lead.ID, model.StatusCompleted, "tester", model.SourceAPI)
	require.NoError(t, err)
	require.False(t, res.Success)
	assert.Equal(t, "Transition NEW → COMPLETED is not allowed", res.Error)

	// No change, no audit entry
	unchanged, err := store.FindByID(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusNew, unchanged.Status)
	count, _ := store.CountByLeadID(context.Background(), lead.ID)
	assert.Zero(t, count)
}

func TestAdvanceLead_PreconditionDenied(t *testing.T) {
	lead := model.NewLead(func(l *model.Lead) { l.Status = model.StatusNew })
	store := newFakeStore(lead)
	eng := newTestEngine(t, store, &fakePublisher{})

	res, err := eng.AdvanceLead(context.Background(), lead.ID, model.StatusContacted1, "tester", model.SourceAPI)
	require.NoError(t, err)
	require.False(t, res.Success)
	assert.Contains(t, res.Error, "no first outreach action recorded")

	unchanged, err := store.FindByID(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusNew, unchanged.Status)
}

func TestAdvanceLead_LeadNotFound(t *testing.T) {
	store := newFakeStore()
	eng := newTestEngine(t, store, &fakePublisher{})

	res, err := eng.AdvanceLead(context.Background(), "missing-lead", model.StatusContacted1, "tester", model.SourceAPI)
	require.NoError(t, err)
	require.False(t, res.Success)
	assert.Equal(t, "Lead not found", res.Error)
}

func TestAdvanceLead_InvalidSource(t *testing.T) {
	store := newFakeStore()
	eng := newTestEngine(t, store, &fakePublisher{})

	_, err := eng.AdvanceLead(context.Background(), "lead-1", model.StatusContacted1, "tester", model.AuditSource("cron"))
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
}

func TestAdvanceLead_RollbackOnAuditFailure(t *testing.T) {
	lead := model.NewLead(func(l *model.Lead) {
		l.Status = model.StatusNew
		l.EmailSent1 = true
	})
	store := newFakeStore(lead)
	store.auditErr = apperrors.ErrDatabase
	publisher := &fakePublisher{}
	eng := newTestEngine(t, store, publisher)

	res, err := eng.AdvanceLead(context.Background(), lead.ID, model.StatusContacted1, "tester", model.SourceAPI)
	require.Error(t, err)
	assert.Nil(t, res)

	// Every partial write rolled back, nothing published
	unchanged, findErr := store.FindByID(context.Background(), lead.ID)
	require.NoError(t, findErr)
	assert.Equal(t, model.StatusNew, unchanged.Status)
	count, _ := store.CountByLeadID(context.Background(), lead.ID)
	assert.Zero(t, count)
	assert.Empty(t, publisher.events)
}

func TestAdvanceLead_PublishFailureDoesNotFail(t *testing.T) {
	lead := model.NewLead(func(l *model.Lead) {
		l.Status = model.StatusQualified
	})
	store := newFakeStore(lead)
	publisher := &fakePublisher{err: apperrors.ErrNATS}
	eng := newTestEngine(t, store, publisher)

	res, err := eng.AdvanceLead(context.Background(), lead.ID, model.StatusCompleted, "tester", model.SourceSync)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, model.StatusCompleted, res.Lead.Status)
}

func TestAdvanceLead_ConcurrentAdvancesExactlyOneWins(t *testing.T) {
	lead := model.NewLead(func(l *model.Lead) {
		l.Status = model.StatusNew
		l.EmailSent1 = true
	})
	store := newFakeStore(lead)
	eng := newTestEngine(t, store, &fakePublisher{})

	// Both callers target the same edge; the transaction serializes them, so
	// the loser re-evaluates against the advanced status and is denied.
	type outcome struct {
		res *AdvanceResult
		err error
	}
	results := make(chan outcome, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := eng.AdvanceLead(context.Background(), lead.ID, model.StatusContacted1, "tester", model.SourceAPI)
			results <- outcome{res: res, err: err}
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, denied int
	for out := range results {
		require.NoError(t, out.err)
		res := out.res
		if res.Success {
			succeeded++
		} else {
			denied++
			assert.Equal(t, "Transition WAITING_D2 → CONTACTED_1 is not allowed", res.Error)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, denied)

	// Only the winner's hops are recorded: the first hop plus its auto-chain
	count, err := store.CountByLeadID(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	final, err := store.FindByID(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusWaitingD2, final.Status)
}

func TestCanTransition_Idempotent(t *testing.T) {
	lead := model.NewLead(func(l *model.Lead) {
		l.Status = model.StatusCallDue
		l.CallDone = true
	})
	store := newFakeStore(lead)
	eng := newTestEngine(t, store, &fakePublisher{})

	first := eng.CanTransition(lead, model.StatusCalled)
	second := eng.CanTransition(lead, model.StatusCalled)
	assert.Equal(t, first, second)
	assert.True(t, first.Allowed)

	// The check mutated nothing
	stored, err := store.FindByID(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCallDue, stored.Status)
}

func TestGetNextSteps(t *testing.T) {
	lead := model.NewLead(func(l *model.Lead) {
		l.Status = model.StatusCallDue
		l.CallDone = true
	})
	eng := newTestEngine(t, newFakeStore(lead), &fakePublisher{})

	steps := eng.GetNextSteps(lead)
	assert.Equal(t, model.StatusCallDue, steps.CurrentStatus)
	require.Len(t, steps.PossibleTransitions, 3)

	byTarget := map[model.LeadStatus]PossibleTransition{}
	for _, p := range steps.PossibleTransitions {
		byTarget[p.To] = p
	}
	assert.True(t, byTarget[model.StatusCalled].Allowed)
	assert.False(t, byTarget[model.StatusReplied].Allowed)
	assert.NotEmpty(t, byTarget[model.StatusReplied].Reason)
	assert.True(t, byTarget[model.StatusNotInterested].Allowed)
}

func TestGetDueLeads_OrderAndTenantScope(t *testing.T) {
	now := time.Now().UTC()
	later := now.Add(-time.Hour)
	earlier := now.Add(-3 * time.Hour)
	future := now.Add(time.Hour)

	dueLate := model.NewLead(func(l *model.Lead) {
		l.OrganizationID = "org_a"
		l.Status = model.StatusWaitingD2
		l.NextActionDueAt = &later
	})
	dueEarly := model.NewLead(func(l *model.Lead) {
		l.OrganizationID = "org_a"
		l.Status = model.StatusWaitingD1
		l.NextActionDueAt = &earlier
	})
	notDue := model.NewLead(func(l *model.Lead) {
		l.OrganizationID = "org_a"
		l.Status = model.StatusWaitingD2
		l.NextActionDueAt = &future
	})
	otherTenant := model.NewLead(func(l *model.Lead) {
		l.OrganizationID = "org_b"
		l.Status = model.StatusWaitingD2
		l.NextActionDueAt = &earlier
	})
	eng := newTestEngine(t, newFakeStore(dueLate, dueEarly, notDue, otherTenant), &fakePublisher{})

	due, err := eng.GetDueLeads(context.Background(), "org_a")
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, dueEarly.ID, due[0].ID)
	assert.Equal(t, dueLate.ID, due[1].ID)
}

func strPtr(s string) *string { return &s }
