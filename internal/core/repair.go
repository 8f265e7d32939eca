package core

import (
	"context"
	"errors"
	"fmt"
	"labcore/pkg/domain"
	"slices"
	"time"
)

// RepairOptions controls Reconcile.
type RepairOptions struct {
	// DryRun reports what would change without writing.
	DryRun bool
	// MinAge skips journal records younger than this so that operations still
	// in flight are not replayed underneath them. Zero replays every record.
	MinAge time.Duration
}

// Repair action kinds.
const (
	RepairReplay = "replay"
	RepairLink   = "link"
	RepairUnlink = "unlink"
)

// RepairAction is one write Reconcile made or, in a dry run, would make.
type RepairAction struct {
	Action   string          `json:"action"`
	Kind     domain.Kind     `json:"kind"`
	HolderID string          `json:"holder_id"`
	Relation domain.Relation `json:"relation"`
	TargetID string          `json:"target_id"`
	Applied  bool            `json:"applied"`
	Error    string          `json:"error,omitempty"`
}

// RepairReport summarises a Reconcile run.
type RepairReport struct {
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at"`
	DryRun      bool               `json:"dry_run"`
	Journal     int                `json:"journal_records"`
	Skipped     int                `json:"journal_skipped"`
	Findings    []domain.Violation `json:"findings"`
	Actions     []RepairAction     `json:"actions"`
	Remaining   []domain.Violation `json:"remaining"`
	FailedCount int                `json:"failed"`
}

// Reconcile restores reference symmetry. It first replays the reciprocal write
// journal so that each journalled target agrees with its source document,
// then evaluates the integrity rules and heals asymmetric references: the
// missing reciprocal is added when the referenced document exists, otherwise
// the dangling reference is removed. Violations it cannot heal are listed in
// Remaining.
func (s *Service) Reconcile(ctx context.Context, opts RepairOptions) (RepairReport, error) {
	report := RepairReport{StartedAt: s.now(), DryRun: opts.DryRun}
	err := s.observe(ctx, "reconcile", func(ctx context.Context) error {
		if err := s.replayJournal(ctx, opts, &report); err != nil {
			return err
		}
		view, err := s.loadView(ctx)
		if err != nil {
			return err
		}
		findings, err := s.rules.Evaluate(ctx, view)
		if err != nil {
			return err
		}
		report.Findings = findings.Violations
		for _, v := range findings.Violations {
			if !healable(v) {
				continue
			}
			report.Actions = append(report.Actions, s.heal(ctx, view, v, opts.DryRun))
		}
		if opts.DryRun {
			report.Remaining = findings.Violations
			return nil
		}
		view, err = s.loadView(ctx)
		if err != nil {
			return err
		}
		remaining, err := s.rules.Evaluate(ctx, view)
		if err != nil {
			return err
		}
		report.Remaining = remaining.Violations
		return nil
	})
	report.FinishedAt = s.now()
	for _, a := range report.Actions {
		if a.Error != "" {
			report.FailedCount++
		}
	}
	return report, err
}

func (s *Service) replayJournal(ctx context.Context, opts RepairOptions, report *RepairReport) error {
	records, err := s.store.PendingWrites().Find(ctx, domain.Filter{})
	if err != nil {
		return fmt.Errorf("load journal: %w", err)
	}
	cutoff := s.now().Add(-opts.MinAge)
	for _, pw := range records {
		if opts.MinAge > 0 && pw.Created.After(cutoff) {
			report.Skipped++
			continue
		}
		report.Journal++
		action, err := s.replay(ctx, pw, opts.DryRun)
		if err != nil {
			return err
		}
		if action != nil {
			report.Actions = append(report.Actions, *action)
		}
	}
	return nil
}

// replay makes the target of pw reflect the source: the target lists Ref iff
// the source document still lists the target. The record is then deleted. It
// returns the write made, or nil when the target already agreed.
func (s *Service) replay(ctx context.Context, pw domain.PendingWrite, dryRun bool) (*RepairAction, error) {
	if !pw.Relation.Valid() {
		s.logger.Warn("journal record with unknown relation", "pending_write_id", pw.ID, "relation", pw.Relation)
		return nil, s.dropRecord(ctx, pw, dryRun)
	}
	want, _, err := s.lists(ctx, pw.Relation.Inverse(), pw.Ref.ID, pw.TargetID)
	if err != nil {
		return nil, err
	}
	has, targetExists, err := s.lists(ctx, pw.Relation, pw.TargetID, pw.Ref.ID)
	if err != nil {
		return nil, err
	}
	var action *RepairAction
	if targetExists && has != want {
		name := RepairUnlink
		if want {
			name = RepairLink
		}
		action = &RepairAction{Action: RepairReplay + "_" + name, Kind: pw.Relation.Holder(), HolderID: pw.TargetID, Relation: pw.Relation, TargetID: pw.Ref.ID}
		if !dryRun {
			if _, err := s.setLink(ctx, pw.Relation, pw.TargetID, pw.Ref, want); err != nil && !isTolerable(err) {
				action.Error = err.Error()
				return action, nil
			}
			action.Applied = true
		}
	}
	return action, s.dropRecord(ctx, pw, dryRun)
}

func (s *Service) dropRecord(ctx context.Context, pw domain.PendingWrite, dryRun bool) error {
	if dryRun {
		return nil
	}
	if _, err := s.store.PendingWrites().DeleteOne(ctx, pw.ID); err != nil {
		return fmt.Errorf("delete journal record %s: %w", pw.ID, err)
	}
	return nil
}

func isTolerable(err error) bool {
	return errors.Is(err, domain.ErrWriteConflict) || errors.Is(err, domain.ErrNotFound)
}

// lists reports whether the rel list of document holderID contains targetID,
// and whether the holder exists.
func (s *Service) lists(ctx context.Context, rel domain.Relation, holderID, targetID string) (bool, bool, error) {
	switch rel.Holder() {
	case domain.KindCollection:
		c, ok, err := s.store.Collections().FindOne(ctx, holderID)
		if err != nil || !ok {
			return false, ok, err
		}
		return slices.Contains(c.Entities, targetID), true, nil
	default:
		e, ok, err := s.store.Entities().FindOne(ctx, holderID)
		if err != nil || !ok {
			return false, ok, err
		}
		if rel == domain.RelationCollections {
			return slices.Contains(e.Collections, targetID), true, nil
		}
		return containsRef(e.Associations.References(rel), targetID), true, nil
	}
}

// healable reports whether v is a one-sided reference Reconcile can fix.
func healable(v domain.Violation) bool {
	return v.Severity == domain.SeverityWarn && v.Relation.Valid() && v.TargetID != ""
}

// heal fixes the one-sided reference v: holder v.ID lists v.TargetID in
// v.Relation. When the target exists the inverse reference is added to it,
// otherwise the reference is removed from the holder.
func (s *Service) heal(ctx context.Context, view *snapshotView, v domain.Violation, dryRun bool) RepairAction {
	_, targetExists := view.FindEntity(v.TargetID)
	if v.Relation.Inverse().Holder() == domain.KindCollection {
		_, targetExists = view.FindCollection(v.TargetID)
	}
	action := RepairAction{Action: RepairUnlink, Kind: v.Kind, HolderID: v.ID, Relation: v.Relation, TargetID: v.TargetID}
	if targetExists {
		action = RepairAction{Action: RepairLink, Kind: v.Relation.Inverse().Holder(), HolderID: v.TargetID, Relation: v.Relation.Inverse(), TargetID: v.ID}
	}
	if dryRun {
		return action
	}
	var err error
	if targetExists {
		_, err = s.setLink(ctx, v.Relation.Inverse(), v.TargetID, s.referenceTo(view, v.Kind, v.ID), true)
	} else {
		_, err = s.setLink(ctx, v.Relation, v.ID, domain.Reference{ID: v.TargetID}, false)
	}
	if err != nil && !isTolerable(err) {
		action.Error = err.Error()
		s.logger.Warn("repair write failed", "holder_id", action.HolderID, "relation", action.Relation, "target_id", action.TargetID, "error", err)
		return action
	}
	action.Applied = true
	return action
}

func (s *Service) referenceTo(view *snapshotView, kind domain.Kind, id string) domain.Reference {
	if kind == domain.KindCollection {
		c, _ := view.FindCollection(id)
		return domain.Reference{ID: id, Name: c.Name}
	}
	e, _ := view.FindEntity(id)
	return domain.Reference{ID: id, Name: e.Name}
}
