package dialysis

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carecenter/dashboard/internal/domain/machine"
	"github.com/carecenter/dashboard/internal/platform/auth"
	"github.com/carecenter/dashboard/internal/platform/crud"
	"github.com/carecenter/dashboard/internal/platform/db"
	"github.com/carecenter/dashboard/internal/platform/formschema"
)

// MachinePool hands machines to running sessions.
type MachinePool interface {
	Reserve(ctx context.Context, id uuid.UUID) (*machine.Machine, error)
	Release(ctx context.Context, id uuid.UUID, hours float64) (*machine.Machine, error)
}

// Deps are the records a session refers to.
type Deps struct {
	Patients PatientReader
	Machines MachineReader
	Pool     MachinePool
	Staff    StaffReader
	Tx       db.TxRunner
}

type Service struct {
	*crud.Resource[Session]
	repo Repository
	deps Deps
	now  func() time.Time
	log  zerolog.Logger
}

func NewService(repo Repository, deps Deps, log zerolog.Logger) *Service {
	s := &Service{
		Resource: crud.NewResource[Session](Definition, repo, log),
		repo:     repo,
		deps:     deps,
		now:      func() time.Time { return time.Now().UTC() },
		log:      log.With().Str("component", "dialysis").Logger(),
	}
	s.Resource.BeforeSave = s.beforeSave
	s.Resource.BeforeDelete = s.beforeDelete
	return s
}

func (s *Service) beforeSave(ctx context.Context, row, prev *Session) error {
	if prev == nil {
		row.Status = StatusScheduled
		if err := s.checkPatient(ctx, row.PatientID); err != nil {
			return err
		}
	} else {
		if !prev.Open() {
			return crud.Conflictf("session is %s", prev.Status)
		}
		if prev.Status == StatusInProgress && row.MachineID != prev.MachineID {
			return formschema.FieldError("machine_id", "cannot change while the session is running")
		}
	}

	if prev == nil || row.MachineID != prev.MachineID {
		m, err := s.deps.Machines.GetByID(ctx, row.MachineID)
		if errors.Is(err, crud.ErrNotFound) {
			return formschema.FieldError("machine_id", "unknown machine")
		}
		if err != nil {
			return err
		}
		if m.Status == machine.StatusRetired {
			return formschema.FieldError("machine_id", "machine "+m.Serial+" is retired")
		}
	}

	if row.NurseID != nil && (prev == nil || prev.NurseID == nil || *prev.NurseID != *row.NurseID) {
		u, err := s.deps.Staff.GetByID(ctx, *row.NurseID)
		if errors.Is(err, crud.ErrNotFound) {
			return formschema.FieldError("nurse_id", "unknown user")
		}
		if err != nil {
			return err
		}
		if !u.Active || !u.HasRole(auth.RoleNurse) {
			return formschema.FieldError("nurse_id", "must be an active nurse")
		}
	}
	return nil
}

func (s *Service) checkPatient(ctx context.Context, id uuid.UUID) error {
	p, err := s.deps.Patients.GetByID(ctx, id)
	if errors.Is(err, crud.ErrNotFound) {
		return formschema.FieldError("patient_id", "unknown patient")
	}
	if err != nil {
		return err
	}
	if !p.Admittable() {
		return formschema.FieldError("patient_id", "patient "+p.MRN+" is "+p.Status)
	}
	return nil
}

func (s *Service) beforeDelete(_ context.Context, row *Session) error {
	if row.Status == StatusInProgress || row.Status == StatusCompleted {
		return crud.Conflictf("a %s session cannot be deleted", strings.ReplaceAll(row.Status, "_", " "))
	}
	return nil
}

// transition loads a session, applies fn and stores the result in one
// transaction.
func (s *Service) transition(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, sess *Session) error) (*Session, error) {
	var out *Session
	err := s.deps.Tx.InTx(ctx, func(ctx context.Context) error {
		if err := crud.Lock(ctx, s.repo, id); err != nil {
			return err
		}
		sess, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(ctx, sess); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, sess); err != nil {
			return err
		}
		out = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Start puts a scheduled session on its machine. The machine must be
// available and becomes in use.
func (s *Service) Start(ctx context.Context, id uuid.UUID, v Vitals) (*Session, error) {
	sess, err := s.transition(ctx, id, func(ctx context.Context, sess *Session) error {
		if sess.Status != StatusScheduled {
			return crud.Conflictf("only a scheduled session can start, this one is %s", sess.Status)
		}
		if err := s.checkPatient(ctx, sess.PatientID); err != nil {
			return err
		}
		if _, err := s.deps.Pool.Reserve(ctx, sess.MachineID); err != nil {
			return err
		}
		now := s.now()
		sess.Status = StatusInProgress
		sess.StartedAt = &now
		sess.PreWeightKg = v.WeightKg
		sess.BloodPressurePre = v.BloodPressure
		appendNotes(sess, v.Notes)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("session_id", id.String()).Str("machine", sess.MachineSerial).Msg("session started")
	return sess, nil
}

// Complete ends a running session, records the fluid removed and returns
// the machine to service with the hours it ran.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, v Vitals) (*Session, error) {
	sess, err := s.transition(ctx, id, func(ctx context.Context, sess *Session) error {
		if sess.Status != StatusInProgress {
			return crud.Conflictf("only a running session can complete, this one is %s", sess.Status)
		}
		now := s.now()
		sess.Status = StatusCompleted
		sess.EndedAt = &now
		sess.PostWeightKg = v.WeightKg
		sess.BloodPressurePost = v.BloodPressure
		sess.FluidRemovedKg = FluidRemoved(sess.PreWeightKg, sess.PostWeightKg)
		appendNotes(sess, v.Notes)
		if _, err := s.deps.Pool.Release(ctx, sess.MachineID, sess.Hours()); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	ev := s.log.Info().Str("session_id", id.String()).Float64("hours", sess.Hours())
	if sess.FluidRemovedKg != nil {
		ev = ev.Float64("fluid_removed_kg", *sess.FluidRemovedKg)
	}
	ev.Msg("session completed")
	return sess, nil
}

// Cancel stops a scheduled or running session. A running session frees
// its machine.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Session, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, formschema.FieldError("reason", "is required")
	}
	sess, err := s.transition(ctx, id, func(ctx context.Context, sess *Session) error {
		if !sess.Open() {
			return crud.Conflictf("a %s session cannot be cancelled", sess.Status)
		}
		running := sess.Status == StatusInProgress
		now := s.now()
		sess.Status = StatusCancelled
		sess.CancelReason = &reason
		if running {
			sess.EndedAt = &now
			if _, err := s.deps.Pool.Release(ctx, sess.MachineID, sess.Hours()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("session_id", id.String()).Str("reason", reason).Msg("session cancelled")
	return sess, nil
}

// FluidRemoved is pre minus post weight rounded to grams, or nil when a
// weight is missing.
func FluidRemoved(pre, post *float64) *float64 {
	if pre == nil || post == nil {
		return nil
	}
	d := math.Round((*pre-*post)*1000) / 1000
	return &d
}

func appendNotes(sess *Session, notes *string) {
	if notes == nil || strings.TrimSpace(*notes) == "" {
		return
	}
	n := strings.TrimSpace(*notes)
	if sess.Notes != nil && *sess.Notes != "" {
		n = *sess.Notes + "\n" + n
	}
	sess.Notes = &n
}

// PatientGuard vetoes deleting a patient with dialysis history.
func (s *Service) PatientGuard(ctx context.Context, patientID uuid.UUID) error {
	return s.guard(ctx, "patient_id", patientID, "patient")
}

// MachineGuard vetoes deleting a machine with dialysis history.
func (s *Service) MachineGuard(ctx context.Context, machineID uuid.UUID) error {
	return s.guard(ctx, "machine_id", machineID, "machine")
}

func (s *Service) guard(ctx context.Context, col string, id uuid.UUID, what string) error {
	n, err := s.repo.Count(ctx, crud.ListParams{Where: map[string]any{col: id}})
	if err != nil {
		return err
	}
	if n > 0 {
		return crud.Conflictf("%s has %d dialysis sessions", what, n)
	}
	return nil
}
