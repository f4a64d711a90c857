// Package editsession verwaltet den einen aktiven Anlege- oder Bearbeitungsvorgang:
// Formularwerte, Validierung und den laufenden Schreibvorgang.
package editsession

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"paper-registry/models"
)

// State ist der Zustand der Session.
type State string

const (
	StateIdle       State = "idle"
	StateEditing    State = "editing"
	StateSubmitting State = "submitting"
	StateError      State = "error"
)

var (
	// ErrNotEditing: es gibt keinen Draft, auf den sich der Intent beziehen könnte.
	ErrNotEditing = errors.New("no edit in progress")
	// ErrSubmitInFlight: während eines laufenden Schreibvorgangs ist nur Cancel erlaubt.
	ErrSubmitInFlight = errors.New("submit in flight")
)

// Pending ist ein freigegebener Schreibvorgang. Seq identifiziert ihn bei Resolve.
type Pending struct {
	Seq        uint64
	OriginalID string
	Draft      models.Draft
}

// IsCreate meldet, ob ein neuer Record angelegt wird.
func (p Pending) IsCreate() bool { return p.OriginalID == "" }

// View ist eine Momentaufnahme der Session für die Darstellung.
type View struct {
	State      State         `json:"state"`
	Draft      *models.Draft `json:"draft,omitempty"`
	OriginalID string        `json:"original_id,omitempty"`
	Message    string        `json:"message,omitempty"`
	Field      string        `json:"field,omitempty"`
}

// Session ist nicht threadsafe; sie gehört der Event-Loop.
type Session struct {
	policy Policy
	logger *zap.Logger

	state      State
	draft      models.Draft
	originalID string
	message    string
	field      string
	err        error

	seq      uint64
	inflight uint64
}

// New erstellt eine Session im Zustand Idle.
func New(policy Policy, logger *zap.Logger) *Session {
	return &Session{policy: policy, logger: logger, state: StateIdle}
}

// State gibt den aktuellen Zustand zurück.
func (s *Session) State() State { return s.state }

// Draft gibt den aktuellen Draft zurück; ok ist false im Zustand Idle.
func (s *Session) Draft() (models.Draft, bool) {
	return s.draft, s.state != StateIdle
}

// Err ist der Fehler hinter dem letzten Error-Zustand oder der letzten Validierung.
func (s *Session) Err() error { return s.err }

// BeginCreate startet einen leeren Draft. Ein offener Draft wird verworfen.
func (s *Session) BeginCreate() error {
	if s.state == StateSubmitting {
		return ErrSubmitInFlight
	}
	s.start(models.BlankDraft(), "")
	return nil
}

// BeginEdit startet einen Draft als Kopie von r. Ein offener Draft wird verworfen.
func (s *Session) BeginEdit(r models.Record) error {
	if s.state == StateSubmitting {
		return ErrSubmitInFlight
	}
	s.start(models.DraftFromRecord(r), r.ID)
	return nil
}

func (s *Session) start(d models.Draft, originalID string) {
	if s.state == StateEditing || s.state == StateError {
		s.logger.Debug("Discarding open draft", zap.String("original_id", s.originalID))
	}
	s.state = StateEditing
	s.draft = d
	s.originalID = originalID
	s.clearError()
}

// SetField ändert ein Feld des Drafts. Aus Error geht es zurück nach Editing.
func (s *Session) SetField(name, value string) error {
	switch s.state {
	case StateIdle:
		return ErrNotEditing
	case StateSubmitting:
		return ErrSubmitInFlight
	}
	if err := s.draft.Set(name, value); err != nil {
		return err
	}
	s.state = StateEditing
	s.clearError()
	return nil
}

// Submit validiert den Draft. Bei Erfolg wechselt die Session nach Submitting
// und der Aufrufer führt Pending aus. Bei einem Validierungsfehler bleibt sie in
// Editing, der Fehler wird annotiert und zurückgegeben.
func (s *Session) Submit() (Pending, error) {
	switch s.state {
	case StateIdle:
		return Pending{}, ErrNotEditing
	case StateSubmitting:
		return Pending{}, ErrSubmitInFlight
	}
	if err := s.policy.Validate(s.draft); err != nil {
		s.state = StateEditing
		s.err = err
		s.message = err.Error()
		var verr *ValidationError
		if errors.As(err, &verr) {
			s.field = verr.Field
		}
		return Pending{}, err
	}
	s.seq++
	s.inflight = s.seq
	s.state = StateSubmitting
	s.clearError()
	return Pending{Seq: s.seq, OriginalID: s.originalID, Draft: s.draft}, nil
}

// Resolve meldet das Ergebnis eines Schreibvorgangs. Ergebnisse, die nicht zum
// laufenden Vorgang gehören (z.B. nach Cancel), werden ignoriert; dann ist das
// Ergebnis false.
func (s *Session) Resolve(seq uint64, err error) bool {
	if s.state != StateSubmitting || seq != s.inflight {
		s.logger.Debug("Ignoring stale submit result", zap.Uint64("seq", seq))
		return false
	}
	s.inflight = 0
	if err != nil {
		s.state = StateError
		s.err = err
		s.message = err.Error()
		s.logger.Info("Submit failed, draft retained",
			zap.String("original_id", s.originalID), zap.Error(err))
		return true
	}
	s.reset()
	return true
}

// Cancel kehrt aus jedem Zustand nach Idle zurück.
func (s *Session) Cancel() {
	s.inflight = 0
	s.reset()
}

func (s *Session) reset() {
	s.state = StateIdle
	s.draft = models.Draft{}
	s.originalID = ""
	s.clearError()
}

func (s *Session) clearError() {
	s.err = nil
	s.message = ""
	s.field = ""
}

// View liefert eine Kopie des Zustands.
func (s *Session) View() View {
	v := View{State: s.state, OriginalID: s.originalID, Message: s.message, Field: s.field}
	if s.state != StateIdle {
		d := s.draft
		v.Draft = &d
	}
	return v
}

func (s *Session) String() string {
	return fmt.Sprintf("editsession(%s, original=%q)", s.state, s.originalID)
}
