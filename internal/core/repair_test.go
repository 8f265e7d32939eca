package core

import (
	"context"
	"errors"
	"labcore/pkg/domain"
	"slices"
	"testing"
	"time"
)

// brokenAssociation leaves A listing B in products while B lacks the origin,
// with the journal record of the interrupted operation still present.
func brokenAssociation(t *testing.T) (*Service, domain.Entity, domain.Entity) {
	t.Helper()
	svc, store := newFaultService(t)
	a := mustEntity(t, svc, domain.NewEntity{Name: "A"})
	b := mustEntity(t, svc, domain.NewEntity{Name: "B"})
	store.entities.breakUpdate(b.ID, true)
	if err := svc.AddAssociation(context.Background(), domain.RelationOrigins, b.ID, a.Reference()); !errors.Is(err, errInjected) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	store.entities.breakUpdate(b.ID, false)
	return svc, a, b
}

func TestReconcileReplaysJournal(t *testing.T) {
	svc, a, b := brokenAssociation(t)

	report, err := svc.Reconcile(context.Background(), RepairOptions{})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Journal != 1 || report.Skipped != 0 {
		t.Fatalf("expected one replayed record, got journal=%d skipped=%d", report.Journal, report.Skipped)
	}
	if len(report.Actions) != 1 || report.Actions[0].Action != RepairReplay+"_"+RepairUnlink || !report.Actions[0].Applied {
		t.Fatalf("unexpected actions %+v", report.Actions)
	}
	if len(report.Remaining) != 0 || report.FailedCount != 0 {
		t.Fatalf("expected clean report, got remaining=%+v failed=%d", report.Remaining, report.FailedCount)
	}
	if got := reload(t, svc, a.ID).Associations.Products; len(got) != 0 {
		t.Fatalf("expected A products rolled back to match B, got %v", got)
	}
	if got := reload(t, svc, b.ID).Associations.Origins; len(got) != 0 {
		t.Fatalf("expected B untouched, got %v", got)
	}
	if n := pendingCount(t, svc); n != 0 {
		t.Fatalf("expected journal drained, got %d", n)
	}
	assertSymmetric(t, svc)
}

func TestReconcileDryRunAndMinAge(t *testing.T) {
	svc, a, _ := brokenAssociation(t)
	ctx := context.Background()

	report, err := svc.Reconcile(ctx, RepairOptions{MinAge: time.Minute})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Skipped != 1 || report.Journal != 0 {
		t.Fatalf("expected fresh record skipped, got journal=%d skipped=%d", report.Journal, report.Skipped)
	}
	// Without the journal the asymmetry is healed from the rules: B exists,
	// so the missing origin is added.
	if len(report.Actions) != 1 || report.Actions[0].Action != RepairLink {
		t.Fatalf("expected link heal, got %+v", report.Actions)
	}
	if n := pendingCount(t, svc); n != 1 {
		t.Fatalf("skipped record must stay, got %d", n)
	}
	assertSymmetric(t, svc)

	desired := reload(t, svc, a.ID)
	if len(desired.Associations.Products) != 1 {
		t.Fatalf("expected product kept, got %v", desired.Associations.Products)
	}

	dry, err := svc.Reconcile(ctx, RepairOptions{DryRun: true})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !dry.DryRun || dry.Journal != 1 {
		t.Fatalf("unexpected dry run report %+v", dry)
	}
	for _, action := range dry.Actions {
		if action.Applied {
			t.Fatalf("dry run must not apply %+v", action)
		}
	}
	if n := pendingCount(t, svc); n != 1 {
		t.Fatalf("dry run must keep journal, got %d", n)
	}
}

func TestReconcileHealsAsymmetricDocuments(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	seed := []domain.Entity{
		{ID: "e-x", Name: "X", Associations: domain.Associations{Origins: []domain.Reference{{ID: "e-y", Name: "Y"}, {ID: "e-gone"}}}},
		{ID: "e-y", Name: "Y"},
		{ID: "e-z", Name: "Z", Collections: []string{"c-1", "c-gone"}},
	}
	for _, e := range seed {
		if err := svc.Store().Entities().InsertOne(ctx, e); err != nil {
			t.Fatalf("seed entity: %v", err)
		}
	}
	if err := svc.Store().Collections().InsertOne(ctx, domain.Collection{ID: "c-1", Name: "Rack", Entities: []string{"e-y"}}); err != nil {
		t.Fatalf("seed collection: %v", err)
	}

	audit, err := svc.Audit(ctx)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if len(audit.Violations) != 5 {
		t.Fatalf("expected 5 findings, got %+v", audit.Violations)
	}

	report, err := svc.Reconcile(ctx, RepairOptions{})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(report.Findings) != 5 || len(report.Actions) != 5 {
		t.Fatalf("expected 5 findings and actions, got %d/%d", len(report.Findings), len(report.Actions))
	}
	if len(report.Remaining) != 0 {
		t.Fatalf("expected everything healed, got %+v", report.Remaining)
	}
	x := reload(t, svc, "e-x")
	if got := ids(x.Associations.Origins); !sameIDs(got, []string{"e-y"}) {
		t.Fatalf("expected dangling origin unlinked, got %v", got)
	}
	y := reload(t, svc, "e-y")
	if got := ids(y.Associations.Products); !sameIDs(got, []string{"e-x"}) || y.Associations.Products[0].Name != "X" {
		t.Fatalf("expected missing product linked, got %+v", y.Associations.Products)
	}
	if !slices.Contains(y.Collections, "c-1") {
		t.Fatalf("expected membership mirrored on e-y, got %v", y.Collections)
	}
	if !sameIDs(reload(t, svc, "e-z").Collections, []string{"c-1"}) {
		t.Fatalf("expected e-z membership repaired")
	}
	if !slices.Contains(reloadCollection(t, svc, "c-1").Entities, "e-z") {
		t.Fatalf("expected c-1 to list e-z")
	}
	assertSymmetric(t, svc)
}

func TestReconcileReportsBlockingFindings(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	if err := svc.Store().Entities().InsertOne(ctx, domain.Entity{
		ID:           "e-self",
		Name:         "Loop",
		Associations: domain.Associations{Origins: []domain.Reference{{ID: "e-self"}}},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	report, err := svc.Reconcile(ctx, RepairOptions{})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(report.Actions) != 0 || len(report.Remaining) != 1 || report.Remaining[0].Severity != domain.SeverityBlock {
		t.Fatalf("expected unhealed blocking finding, got %+v", report)
	}
}

func TestRepairScheduler(t *testing.T) {
	svc, _, _ := brokenAssociation(t)
	if _, err := NewRepairScheduler(svc, "not a schedule", RepairOptions{}, 0); err == nil {
		t.Fatalf("expected invalid schedule error")
	}
	rs, err := NewRepairScheduler(svc, "@every 1h", RepairOptions{}, time.Second)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	if _, runs, ok := rs.Last(); ok || runs != 0 {
		t.Fatalf("expected no runs yet")
	}
	rs.Start()
	if rs.Next().IsZero() {
		t.Fatalf("expected next run after start")
	}
	rs.RunOnce()
	report, runs, ok := rs.Last()
	if !ok || runs != 1 || report.Journal != 1 {
		t.Fatalf("unexpected last run ok=%v runs=%d report=%+v", ok, runs, report)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rs.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	assertSymmetric(t, svc)
}
