package match

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/andeanpay/go-recon-backend/internal/domain"
)

var testNow = time.Date(2025, time.November, 22, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	sales       map[string]*domain.Sale
	candidates  []domain.Notification
	transitions map[string]domain.Status

	createErr error
	findSince time.Time
	findCode  string

	// hideSaleOnce makes the first GetSaleByOperation miss, simulating a
	// rival writer landing between the duplicate check and the insert.
	hideSaleOnce bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sales:       map[string]*domain.Sale{},
		transitions: map[string]domain.Status{},
	}
}

func (s *fakeStore) GetSaleByOperation(_ context.Context, op string) (*domain.Sale, error) {
	if s.hideSaleOnce {
		s.hideSaleOnce = false
		return nil, nil
	}
	return s.sales[op], nil
}

func (s *fakeStore) FindCandidates(_ context.Context, code string, since time.Time) ([]domain.Notification, error) {
	s.findCode, s.findSince = code, since
	return s.candidates, nil
}

func (s *fakeStore) CreateSale(_ context.Context, sale *domain.Sale) error {
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.sales[sale.OperationID]; ok {
		return ErrDuplicateOperation
	}
	s.sales[sale.OperationID] = sale
	return nil
}

func (s *fakeStore) TransitionNotification(_ context.Context, id string, to domain.Status) error {
	s.transitions[id] = to
	return nil
}

func newEngine(store Store) *Engine {
	return &Engine{
		Store: store,
		Policy: Policy{
			AutoApproveThreshold: 95,
			ReviewThreshold:      60,
			NameSimilarity:       95,
			CandidateWindow:      24 * time.Hour,
		},
		Now: func() time.Time { return testNow },
	}
}

func baseClaim() Claim {
	return Claim{
		Amount:        decimal.RequireFromString("100"),
		SecurityCode:  "502",
		OperationID:   "03443217",
		PaidAt:        testNow.Add(-10 * time.Minute),
		CustomerName:  "Maria Q. Flores",
		CustomerPhone: "+51999888777",
		DeviceCode:    "D1",
		SubmitterID:   "51999888777",
	}
}

func pendingNotification(id, device string) domain.Notification {
	return domain.Notification{
		ID:           id,
		Method:       domain.MethodWalletA,
		DeviceCode:   device,
		Amount:       decimal.RequireFromString("100"),
		SecurityCode: "502",
		OperationID:  "03443217",
		PayerName:    "Maria Q. Flores",
		PaidAt:       testNow.Add(-10 * time.Minute),
		Status:       domain.StatusPending,
		CreatedAt:    testNow.Add(-9 * time.Minute),
	}
}

func TestValidateFullMatchApproves(t *testing.T) {
	store := newFakeStore()
	store.candidates = []domain.Notification{pendingNotification("n1", "D1")}
	eng := newEngine(store)

	res, err := eng.Validate(context.Background(), baseClaim())
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !res.Valid || res.Confidence != 100 || res.Outcome != domain.StatusValidated {
		t.Fatalf("result = %+v, want valid at 100%% confidence", res)
	}
	if len(res.MatchedFields) != 5 {
		t.Errorf("matched fields = %v, want all five", res.MatchedFields)
	}

	sale := store.sales["03443217"]
	if sale == nil {
		t.Fatal("no sale persisted")
	}
	if !sale.MatchSuccessful || sale.Status != domain.StatusValidated || sale.DecidedBy != domain.DecidedAutomatic {
		t.Errorf("sale = %+v, want successful automatic validation", sale)
	}
	if sale.ObservedDeviceCode != "D1" || sale.ClaimedDeviceCode != "D1" {
		t.Errorf("device codes = %q/%q", sale.ClaimedDeviceCode, sale.ObservedDeviceCode)
	}
	if got := store.transitions["n1"]; got != domain.StatusValidated {
		t.Errorf("notification transition = %q, want VALIDATED", got)
	}
}

func TestValidateCandidateWindow(t *testing.T) {
	store := newFakeStore()
	eng := newEngine(store)
	if _, err := eng.Validate(context.Background(), baseClaim()); err != nil {
		t.Fatal(err)
	}
	if store.findCode != "502" {
		t.Errorf("candidate query code = %q, want the claim's security code", store.findCode)
	}
	if want := testNow.Add(-24 * time.Hour); !store.findSince.Equal(want) {
		t.Errorf("candidate window since = %v, want %v", store.findSince, want)
	}
}

func TestValidateChannelMismatch(t *testing.T) {
	store := newFakeStore()
	store.candidates = []domain.Notification{pendingNotification("n1", "D2")}
	eng := newEngine(store)

	res, err := eng.Validate(context.Background(), baseClaim())
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid || res.Reason != ReasonChannelMismatch {
		t.Fatalf("result = %+v, want CHANNEL_MISMATCH", res)
	}
	if !strings.Contains(res.Message, "D2") || !strings.Contains(res.Message, "D1") {
		t.Errorf("message must name both devices: %q", res.Message)
	}
	if len(store.sales) != 0 || len(store.transitions) != 0 {
		t.Error("a channel mismatch must not persist anything")
	}
}

func TestValidateNameMismatchDefersToReview(t *testing.T) {
	store := newFakeStore()
	n := pendingNotification("n1", "D1")
	n.PayerName = "Rosa Paz Delgado"
	store.candidates = []domain.Notification{n}
	eng := newEngine(store)

	res, err := eng.Validate(context.Background(), baseClaim())
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid {
		t.Fatal("a name mismatch must not auto-approve")
	}
	if res.Confidence != 80 || res.Outcome != domain.StatusManualReview || res.Reason != ReasonFieldMismatch {
		t.Fatalf("result = %+v, want 80%% confidence routed to review", res)
	}

	sale := store.sales["03443217"]
	if sale == nil {
		t.Fatal("review path must persist the partial evidence")
	}
	if sale.MatchSuccessful || sale.Status != domain.StatusManualReview {
		t.Errorf("sale = %+v, want unsuccessful MANUAL_REVIEW record", sale)
	}
	if got := store.transitions["n1"]; got != domain.StatusManualReview {
		t.Errorf("notification transition = %q, want MANUAL_REVIEW", got)
	}
}

func TestValidateLowConfidenceRejects(t *testing.T) {
	store := newFakeStore()
	n := pendingNotification("n1", "D1")
	n.SecurityCode = "999"
	n.PayerName = "Rosa Paz Delgado"
	n.OperationID = "111"
	store.candidates = []domain.Notification{n}
	eng := newEngine(store)

	res, err := eng.Validate(context.Background(), baseClaim())
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid || res.Outcome != domain.StatusRejected || res.Confidence != 40 {
		t.Fatalf("result = %+v, want rejection at 40%% confidence", res)
	}
	if len(store.sales) != 0 {
		t.Error("a rejection must not persist a sale")
	}
}

func TestValidateDuplicateOperation(t *testing.T) {
	store := newFakeStore()
	store.sales["03443217"] = &domain.Sale{
		OperationID: "03443217",
		SubmitterID: "51911111111",
		DecidedAt:   testNow.Add(-time.Hour),
	}
	eng := newEngine(store)

	res, err := eng.Validate(context.Background(), baseClaim())
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid || res.Reason != ReasonDuplicateOperation {
		t.Fatalf("result = %+v, want DUPLICATE_OPERATION", res)
	}
	if !strings.Contains(res.Message, "51911111111") {
		t.Errorf("message must identify the prior submitter: %q", res.Message)
	}
}

func TestValidateIsIdempotent(t *testing.T) {
	store := newFakeStore()
	store.candidates = []domain.Notification{pendingNotification("n1", "D1")}
	eng := newEngine(store)
	ctx := context.Background()

	first, err := eng.Validate(ctx, baseClaim())
	if err != nil || !first.Valid {
		t.Fatalf("first attempt = %+v, %v", first, err)
	}
	second, err := eng.Validate(ctx, baseClaim())
	if err != nil {
		t.Fatal(err)
	}
	if second.Valid || second.Reason != ReasonDuplicateOperation {
		t.Fatalf("second attempt = %+v, want DUPLICATE_OPERATION", second)
	}
	if len(store.sales) != 1 {
		t.Errorf("sales = %d, want exactly one", len(store.sales))
	}
}

func TestValidateLostInsertRaceReportsDuplicate(t *testing.T) {
	store := newFakeStore()
	store.candidates = []domain.Notification{pendingNotification("n1", "D1")}
	store.createErr = ErrDuplicateOperation
	store.sales["03443217"] = &domain.Sale{OperationID: "03443217", SubmitterID: "rival", DecidedAt: testNow}
	store.hideSaleOnce = true
	eng := newEngine(store)

	res, err := eng.Validate(context.Background(), baseClaim())
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid || res.Reason != ReasonDuplicateOperation {
		t.Fatalf("result = %+v, want the race surfaced as a duplicate", res)
	}
	if got := store.transitions["n1"]; got != "" {
		t.Errorf("losing attempt must not transition the notification, got %q", got)
	}
}

func TestValidateNoCandidate(t *testing.T) {
	store := newFakeStore()
	eng := newEngine(store)

	res, err := eng.Validate(context.Background(), baseClaim())
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid || res.Reason != ReasonNoCandidateFound {
		t.Fatalf("result = %+v, want NO_CANDIDATE_FOUND", res)
	}
	if !strings.Contains(res.Message, "security code") {
		t.Errorf("empty-store guidance missing: %q", res.Message)
	}
}

func TestValidateAmountNearMissIsNotAMatch(t *testing.T) {
	store := newFakeStore()
	n := pendingNotification("n1", "D1")
	n.Amount = decimal.RequireFromString("50.01")
	store.candidates = []domain.Notification{n}
	eng := newEngine(store)

	claim := baseClaim()
	claim.Amount = decimal.RequireFromString("50.00")
	res, err := eng.Validate(context.Background(), claim)
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid || res.Reason != ReasonNoCandidateFound {
		t.Fatalf("result = %+v, want one-cent difference treated as no candidate", res)
	}
	if !strings.Contains(res.Message, "S/50.01") || !strings.Contains(res.Message, "S/50.00") {
		t.Errorf("message must show both amounts: %q", res.Message)
	}
	if len(store.sales) != 0 {
		t.Error("no sale may be persisted")
	}
}

func TestValidatePicksEarliestExactCandidate(t *testing.T) {
	store := newFakeStore()
	later := pendingNotification("n-late", "D1")
	later.CreatedAt = testNow.Add(-time.Minute)
	earlier := pendingNotification("n-early", "D1")
	earlier.CreatedAt = testNow.Add(-time.Hour)
	store.candidates = []domain.Notification{later, earlier}
	eng := newEngine(store)

	res, err := eng.Validate(context.Background(), baseClaim())
	if err != nil || !res.Valid {
		t.Fatalf("result = %+v, %v", res, err)
	}
	if got := store.transitions["n-early"]; got != domain.StatusValidated {
		t.Errorf("earliest candidate must be consumed, transitions = %v", store.transitions)
	}
	if _, touched := store.transitions["n-late"]; touched {
		t.Error("later candidate must be left PENDING")
	}
}

func TestValidateIncompleteNotification(t *testing.T) {
	store := newFakeStore()
	n := pendingNotification("n1", "")
	n.Method = domain.MethodBank1
	n.SecurityCode = ""
	store.candidates = []domain.Notification{n}
	eng := newEngine(store)

	claim := baseClaim()
	claim.SecurityCode = ""
	res, err := eng.Validate(context.Background(), claim)
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid || res.Reason != ReasonIncompleteNotification {
		t.Fatalf("result = %+v, want INCOMPLETE_NOTIFICATION", res)
	}
	if len(store.sales) != 0 || len(store.transitions) != 0 {
		t.Error("incomplete candidates must not be consumed")
	}
}

// Confidence only counts passing checks, so adding a mismatch can never
// raise it.
func TestConfidenceMonotonicity(t *testing.T) {
	run := func(mutate func(*domain.Notification)) int {
		store := newFakeStore()
		n := pendingNotification("n1", "D1")
		mutate(&n)
		store.candidates = []domain.Notification{n}
		res, err := newEngine(store).Validate(context.Background(), baseClaim())
		if err != nil {
			t.Fatal(err)
		}
		return res.Confidence
	}

	full := run(func(*domain.Notification) {})
	oneOff := run(func(n *domain.Notification) { n.PayerName = "Rosa Paz" })
	twoOff := run(func(n *domain.Notification) { n.PayerName = "Rosa Paz"; n.OperationID = "x" })

	if !(full > oneOff && oneOff > twoOff) {
		t.Errorf("confidence not monotone: %d, %d, %d", full, oneOff, twoOff)
	}
}
