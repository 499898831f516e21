package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/spice-cascade/internal/common"
	"github.com/Veraticus/spice-cascade/internal/model"
	"github.com/Veraticus/spice-cascade/internal/service"
	"github.com/google/uuid"
)

// MemoryStore is an in-memory implementation of the store contracts used by
// unit tests that do not need SQL.
type MemoryStore struct {
	categories   map[int64]model.Category
	subjects     map[int64]model.Subject
	details      map[int64]model.Detail
	transactions map[string]model.ClassifiedTransaction
	// Err, when set, is returned by every read.
	Err      error
	Rules    []model.ClassificationRule
	Feedback []model.Feedback
	Metrics  []model.ClassificationMetric
	nextID   int64
	mu       sync.Mutex
}

var (
	_ service.ClassificationStore = (*MemoryStore)(nil)
	_ service.TransactionStore    = (*MemoryStore)(nil)
	_ service.MetricsStore        = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		categories:   make(map[int64]model.Category),
		subjects:     make(map[int64]model.Subject),
		details:      make(map[int64]model.Detail),
		transactions: make(map[string]model.ClassifiedTransaction),
	}
}

// Taxonomy returns the triple for the given names, creating missing levels.
// Pass an empty detail for a subject-level triple.
func (s *MemoryStore) Taxonomy(tenant, category, subject, detail string) model.Triple {
	s.mu.Lock()
	defer s.mu.Unlock()

	var triple model.Triple
	for id, c := range s.categories {
		if c.Tenant == tenant && c.Name == category {
			triple.CategoryID = id
		}
	}
	if triple.CategoryID == 0 {
		s.nextID++
		triple.CategoryID = s.nextID
		s.categories[s.nextID] = model.Category{ID: s.nextID, Tenant: tenant, Name: category}
	}

	for id, sub := range s.subjects {
		if sub.CategoryID == triple.CategoryID && sub.Name == subject {
			triple.SubjectID = id
		}
	}
	if triple.SubjectID == 0 {
		s.nextID++
		triple.SubjectID = s.nextID
		s.subjects[s.nextID] = model.Subject{ID: s.nextID, CategoryID: triple.CategoryID, Name: subject}
	}

	if detail == "" {
		return triple
	}
	for id, d := range s.details {
		if d.SubjectID == triple.SubjectID && d.Name == detail {
			triple.DetailID = model.Int64Ptr(id)
		}
	}
	if triple.DetailID == nil {
		s.nextID++
		triple.DetailID = model.Int64Ptr(s.nextID)
		s.details[s.nextID] = model.Detail{ID: s.nextID, SubjectID: triple.SubjectID, Name: detail}
	}
	return triple
}

// DeleteSubject removes a subject so that triples pointing at it stop resolving.
func (s *MemoryStore) DeleteSubject(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subjects, id)
}

// AddRule appends a rule, assigning an id.
func (s *MemoryStore) AddRule(rule model.ClassificationRule) model.ClassificationRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rule.ID = s.nextID
	s.Rules = append(s.Rules, rule)
	return rule
}

// AddFeedback appends feedback without the information-gain check.
func (s *MemoryStore) AddFeedback(fb ...model.Feedback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range fb {
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		s.Feedback = append(s.Feedback, f)
	}
}

// AddClassifiedTransaction stores a transaction with its classification.
func (s *MemoryStore) AddClassifiedTransaction(txn model.Transaction, target model.Triple, status model.TransactionStatus) {
	resolved, err := s.ResolveTriple(context.Background(), txn.Tenant, target)
	if err != nil {
		panic(fmt.Sprintf("unresolvable triple %s: %v", target.Key(), err))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[txn.ID] = model.ClassifiedTransaction{
		Transaction: txn,
		Target:      *resolved,
		Status:      status,
	}
}

// GetEnabledRules returns enabled rules for tenant by descending priority.
func (s *MemoryStore) GetEnabledRules(_ context.Context, tenant string) ([]model.ClassificationRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var rules []model.ClassificationRule
	for _, r := range s.Rules {
		if r.Tenant == tenant && r.Enabled {
			rules = append(rules, r)
		}
	}
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority > rules[j].Priority })
	return rules, nil
}

// ResolveTriple resolves names or returns common.ErrNotFound.
func (s *MemoryStore) ResolveTriple(_ context.Context, tenant string, triple model.Triple) (*model.ResolvedTriple, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	cat, ok := s.categories[triple.CategoryID]
	if !ok || cat.Tenant != tenant {
		return nil, fmt.Errorf("category %d: %w", triple.CategoryID, common.ErrNotFound)
	}
	sub, ok := s.subjects[triple.SubjectID]
	if !ok || sub.CategoryID != cat.ID {
		return nil, fmt.Errorf("subject %d: %w", triple.SubjectID, common.ErrNotFound)
	}
	resolved := &model.ResolvedTriple{Triple: triple, CategoryName: cat.Name, SubjectName: sub.Name}
	if triple.DetailID != nil {
		det, ok := s.details[*triple.DetailID]
		if !ok || det.SubjectID != sub.ID {
			return nil, fmt.Errorf("detail %d: %w", *triple.DetailID, common.ErrNotFound)
		}
		name := det.Name
		resolved.DetailName = &name
	}
	return resolved, nil
}

// ListFeedback applies the filter in memory, newest first.
func (s *MemoryStore) ListFeedback(_ context.Context, filter service.FeedbackFilter) ([]model.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []model.Feedback
	for _, fb := range s.Feedback {
		if filter.Tenant != "" && fb.Tenant != filter.Tenant {
			continue
		}
		if filter.Since != nil && fb.CreatedAt.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && fb.CreatedAt.After(*filter.Until) {
			continue
		}
		if filter.CorrectedTo != nil && !fb.CorrectedTriple.Equal(*filter.CorrectedTo) {
			continue
		}
		if len(filter.Contains) > 0 && !containsAny(fb.OriginalDescription, filter.Contains) {
			continue
		}
		out = append(out, fb)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// CountCorrections counts feedback per corrected triple key since the given time.
func (s *MemoryStore) CountCorrections(_ context.Context, tenant string, since time.Time) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	counts := make(map[string]int)
	for _, fb := range s.Feedback {
		if fb.Tenant == tenant && !fb.CreatedAt.Before(since) {
			counts[fb.CorrectedTriple.Key()]++
		}
	}
	return counts, nil
}

// GetEntityUsage aggregates feedback per corrected triple.
func (s *MemoryStore) GetEntityUsage(ctx context.Context, tenant string, since time.Time) ([]model.EntityUsage, error) {
	s.mu.Lock()
	if s.Err != nil {
		s.mu.Unlock()
		return nil, s.Err
	}
	type agg struct {
		triple model.Triple
		count  int
		sum    float64
	}
	byKey := make(map[string]*agg)
	var order []string
	for _, fb := range s.Feedback {
		if fb.Tenant != tenant || fb.CreatedAt.Before(since) {
			continue
		}
		k := fb.CorrectedTriple.Key()
		a, ok := byKey[k]
		if !ok {
			a = &agg{triple: fb.CorrectedTriple}
			byKey[k] = a
			order = append(order, k)
		}
		a.count++
		a.sum += fb.Amount
	}
	s.mu.Unlock()

	var usage []model.EntityUsage
	for _, k := range order {
		a := byKey[k]
		resolved, err := s.ResolveTriple(ctx, tenant, a.triple)
		if err != nil {
			continue
		}
		usage = append(usage, model.EntityUsage{
			Target:        *resolved,
			UsageCount:    a.count,
			AverageAmount: a.sum / float64(a.count),
		})
	}
	return usage, nil
}

// SaveFeedback stores feedback that carries information.
func (s *MemoryStore) SaveFeedback(_ context.Context, fb *model.Feedback) (bool, error) {
	if !fb.CarriesInformation() {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now()
	}
	s.Feedback = append(s.Feedback, *fb)
	return true, nil
}

// GetClassifiedTransaction returns a stored transaction or common.ErrNotFound.
func (s *MemoryStore) GetClassifiedTransaction(_ context.Context, tenant, id string) (*model.ClassifiedTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	txn, ok := s.transactions[id]
	if !ok || txn.Tenant != tenant {
		return nil, fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	txn.ClassificationFrequency = s.frequencyLocked(tenant, txn.Target.Triple)
	return &txn, nil
}

// ListClassifiedTransactions returns completed transactions ordered by id.
func (s *MemoryStore) ListClassifiedTransactions(_ context.Context, filter service.TransactionFilter) ([]model.ClassifiedTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var wanted map[string]bool
	if len(filter.IDs) > 0 {
		wanted = make(map[string]bool, len(filter.IDs))
		for _, id := range filter.IDs {
			wanted[id] = true
		}
	}
	var out []model.ClassifiedTransaction
	for _, txn := range s.transactions {
		if txn.Tenant != filter.Tenant || txn.Status != model.StatusCompleted {
			continue
		}
		if wanted != nil && !wanted[txn.ID] {
			continue
		}
		txn.ClassificationFrequency = s.frequencyLocked(filter.Tenant, txn.Target.Triple)
		out = append(out, txn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) frequencyLocked(tenant string, triple model.Triple) int {
	n := 0
	for _, txn := range s.transactions {
		if txn.Tenant == tenant && txn.Status == model.StatusCompleted && txn.Target.Triple.Equal(triple) {
			n++
		}
	}
	return n
}

// SaveMetric records a metric.
func (s *MemoryStore) SaveMetric(_ context.Context, metric *model.ClassificationMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Metrics = append(s.Metrics, *metric)
	return nil
}

// GetAnalytics is not aggregated in memory; it only reports totals.
func (s *MemoryStore) GetAnalytics(_ context.Context, tenant string, since time.Time) (*model.Analytics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	a := &model.Analytics{Since: since}
	for _, m := range s.Metrics {
		if m.Tenant == tenant && !m.CreatedAt.Before(since) {
			a.Total++
		}
	}
	return a, nil
}

func containsAny(s string, needles []string) bool {
	upper := strings.ToUpper(s)
	for _, n := range needles {
		if strings.Contains(upper, strings.ToUpper(n)) {
			return true
		}
	}
	return false
}
