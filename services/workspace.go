package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"paper-registry/auth"
	"paper-registry/editsession"
	"paper-registry/feed"
	"paper-registry/mirror"
	"paper-registry/models"
	"paper-registry/projector"
	"paper-registry/storage"
)

var (
	workspacesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "workspaces_active",
		Help: "Laufende Client-Workspaces.",
	})
	workspaceDisconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "workspace_disconnects_total",
		Help: "Workspaces, deren Feed nicht aufgebaut werden konnte.",
	})
)

// ErrWorkspaceClosed: Run ist beendet, Intents werden nicht mehr angenommen.
var ErrWorkspaceClosed = errors.New("workspace closed")

// IdentitySource liefert Identitätswechsel zu einem Session-Token.
type IdentitySource interface {
	OnIdentityChanged(token string, cb func(*auth.Identity)) auth.Unsubscribe
}

// IntentType benennt eine Benutzeraktion.
type IntentType string

const (
	IntentBeginCreate   IntentType = "beginCreate"
	IntentBeginEdit     IntentType = "beginEdit"
	IntentSetField      IntentType = "setField"
	IntentSubmit        IntentType = "submit"
	IntentCancel        IntentType = "cancel"
	IntentDeleteRecord  IntentType = "deleteRecord"
	IntentSetViewConfig IntentType = "setViewConfig"
)

// Intent ist eine Benutzeraktion aus der Darstellungsschicht.
type Intent struct {
	Type   IntentType       `json:"type"`
	ID     string           `json:"id,omitempty"`
	Field  string           `json:"field,omitempty"`
	Value  string           `json:"value,omitempty"`
	Config *projector.Patch `json:"config,omitempty"`
}

// Row ist ein Record in der projizierten Liste.
type Row struct {
	Ordinal int `json:"ordinal"`
	models.Record
	IndexingDisplay string `json:"indexing_display"`
}

// NewRows nummeriert projizierte Records ab 1.
func NewRows(records []models.Record) []Row {
	rows := make([]Row, 0, len(records))
	for i, r := range records {
		rows = append(rows, Row{Ordinal: i + 1, Record: r, IndexingDisplay: r.IndexingLabel()})
	}
	return rows
}

// ViewState ist alles, was die Darstellungsschicht zu einem Zeitpunkt sieht.
type ViewState struct {
	SignedIn     bool              `json:"signed_in"`
	Identity     *auth.Identity    `json:"identity,omitempty"`
	Role         auth.Role         `json:"role,omitempty"`
	Disconnected bool              `json:"disconnected"`
	Error        string            `json:"error,omitempty"`
	Config       projector.Config  `json:"config"`
	Rows         []Row             `json:"rows"`
	Choices      projector.Choices `json:"choices"`
	Edit         editsession.View  `json:"edit"`
	Generation   uint64            `json:"generation"`
}

// WorkspaceOptions sind die Abhängigkeiten eines Workspace.
type WorkspaceOptions struct {
	Source     feed.Source
	Executor   *CommandExecutor
	Identities IdentitySource
	Roles      auth.RoleResolver
	Policy     editsession.Policy
	Collection string
	// Memo ist optional und darf zwischen Workspaces geteilt werden.
	Memo   *projector.Memo
	Logger *zap.Logger
}

type commandResult struct {
	op  string
	seq uint64
	id  string
	err error
}

// Workspace verbindet Feed, Mirror, Projektion, EditSession und Executor eines
// Clients auf einer Event-Loop. Alle Zustandsänderungen passieren in Run.
type Workspace struct {
	token string
	opts  WorkspaceOptions
	log   *zap.Logger

	// gehören der Event-Loop
	identity     *IdentitySession
	edit         *editsession.Session
	mirror       *mirror.Mirror
	sub          *feed.Subscription
	view         projector.Config
	disconnected bool
	lastErr      error

	intents    chan Intent
	identityCh chan *auth.Identity
	results    chan commandResult
	updates    chan ViewState
	done       chan struct{}

	mu    sync.Mutex
	state ViewState
}

// NewWorkspace erstellt einen Workspace für das Session-Token token.
func NewWorkspace(token string, opts WorkspaceOptions) *Workspace {
	logger := opts.Logger.With(zap.String("collection", opts.Collection))
	return &Workspace{
		token:      token,
		opts:       opts,
		log:        logger,
		identity:   NewIdentitySession(opts.Roles),
		edit:       editsession.New(opts.Policy, logger),
		mirror:     mirror.New(logger),
		intents:    make(chan Intent),
		identityCh: make(chan *auth.Identity, 4),
		results:    make(chan commandResult, 4),
		updates:    make(chan ViewState, 1),
		done:       make(chan struct{}),
		state:      ViewState{Rows: []Row{}},
	}
}

// Run betreibt die Event-Loop bis ctx endet. Danach ist die Subscription
// geschlossen und Dispatch liefert ErrWorkspaceClosed.
func (w *Workspace) Run(ctx context.Context) error {
	workspacesActive.Inc()
	defer workspacesActive.Dec()
	defer close(w.done)

	unsub := w.opts.Identities.OnIdentityChanged(w.token, func(id *auth.Identity) {
		select {
		case w.identityCh <- id:
		case <-w.done:
		}
	})
	defer unsub()
	defer w.teardown()

	w.publish()
	for {
		var snapshots <-chan []models.RawRecord
		if w.sub != nil {
			snapshots = w.sub.Snapshots()
		}
		select {
		case <-ctx.Done():
			w.log.Debug("Workspace stopped")
			return nil
		case id := <-w.identityCh:
			w.handleIdentity(id)
		case docs, ok := <-snapshots:
			if !ok {
				w.sub = nil
				continue
			}
			w.mirror.ApplySnapshot(docs)
		case in := <-w.intents:
			w.lastErr = w.handleIntent(ctx, in)
			if w.lastErr != nil {
				w.log.Info("Intent rejected", zap.String("intent", string(in.Type)), zap.Error(w.lastErr))
			}
		case res := <-w.results:
			w.handleResult(res)
		}
		w.publish()
	}
}

// Dispatch übergibt einen Intent an die Event-Loop.
func (w *Workspace) Dispatch(ctx context.Context, in Intent) error {
	select {
	case w.intents <- in:
		return nil
	case <-w.done:
		return ErrWorkspaceClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Updates liefert neue ViewStates. Ein ungelesener Zustand wird durch den
// nächsten ersetzt.
func (w *Workspace) Updates() <-chan ViewState { return w.updates }

// State gibt den zuletzt berechneten ViewState zurück.
func (w *Workspace) State() ViewState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Done ist geschlossen, sobald Run beendet ist.
func (w *Workspace) Done() <-chan struct{} { return w.done }

func (w *Workspace) handleIdentity(id *auth.Identity) {
	if !w.identity.SetIdentity(id) {
		return
	}
	w.teardown()
	if id == nil {
		w.log.Info("Identity signed out, feed torn down")
		return
	}
	w.log.Info("Identity signed in", zap.String("identity", id.ID), zap.String("role", string(w.identity.Role())))
	w.view = w.identity.DefaultView()

	sub, err := feed.Subscribe(w.opts.Source, w.opts.Collection, w.log)
	if err != nil {
		workspaceDisconnects.Inc()
		w.disconnected = true
		w.lastErr = fmt.Errorf("%w: %v", ErrDisconnected, err)
		w.log.Error("Failed to subscribe to papers", zap.Error(err))
		return
	}
	w.sub = sub
}

// teardown verwirft Subscription, Mirror und offenen Draft.
func (w *Workspace) teardown() {
	if w.sub != nil {
		w.sub.Close()
		w.sub = nil
	}
	w.mirror = mirror.New(w.log)
	w.edit.Cancel()
	w.view = projector.Config{}
	w.disconnected = false
	w.lastErr = nil
}

func (w *Workspace) handleIntent(ctx context.Context, in Intent) error {
	if !w.identity.SignedIn() {
		return ErrSignedOut
	}
	if w.disconnected {
		return ErrDisconnected
	}
	switch in.Type {
	case IntentBeginCreate:
		return w.edit.BeginCreate()
	case IntentBeginEdit:
		r, ok := w.mirror.Get(in.ID)
		if !ok {
			return fmt.Errorf("begin edit %s: %w", in.ID, storage.ErrNotFound)
		}
		if !w.identity.CanModify(r) {
			return ErrForbidden
		}
		return w.edit.BeginEdit(r)
	case IntentSetField:
		return w.edit.SetField(in.Field, in.Value)
	case IntentSubmit:
		pending, err := w.edit.Submit()
		if err != nil {
			var verr *editsession.ValidationError
			if errors.As(err, &verr) {
				// steht bereits in der Edit-Ansicht
				return nil
			}
			return err
		}
		w.submit(ctx, pending)
		return nil
	case IntentCancel:
		w.edit.Cancel()
		return nil
	case IntentDeleteRecord:
		r, ok := w.mirror.Get(in.ID)
		if ok && !w.identity.CanModify(r) {
			return ErrForbidden
		}
		if !ok && !w.identity.IsAdmin() {
			return nil
		}
		id := in.ID
		w.exec(ctx, func(ctx context.Context) commandResult {
			return commandResult{op: "delete", id: id, err: w.opts.Executor.Delete(ctx, id)}
		})
		return nil
	case IntentSetViewConfig:
		if in.Config == nil {
			return nil
		}
		cfg, err := w.view.Apply(*in.Config)
		if err != nil {
			return err
		}
		w.view = w.identity.Constrain(cfg)
		return nil
	}
	return fmt.Errorf("unknown intent %q", in.Type)
}

func (w *Workspace) submit(ctx context.Context, p editsession.Pending) {
	actor, _ := w.identity.Identity()
	w.exec(ctx, func(ctx context.Context) commandResult {
		if p.IsCreate() {
			id, err := w.opts.Executor.Create(ctx, actor.ID, p.Draft)
			return commandResult{op: "create", seq: p.Seq, id: id, err: err}
		}
		err := w.opts.Executor.Update(ctx, p.OriginalID, p.Draft)
		return commandResult{op: "update", seq: p.Seq, id: p.OriginalID, err: err}
	})
}

// exec führt einen Schreibbefehl außerhalb der Event-Loop aus; das Ergebnis
// kommt über results zurück.
func (w *Workspace) exec(ctx context.Context, cmd func(context.Context) commandResult) {
	go func() {
		res := cmd(ctx)
		select {
		case w.results <- res:
		case <-w.done:
		}
	}()
}

func (w *Workspace) handleResult(res commandResult) {
	if res.op == "delete" {
		if res.err != nil {
			w.lastErr = res.err
		}
		return
	}
	w.edit.Resolve(res.seq, res.err)
}

func (w *Workspace) project(records []models.Record) []models.Record {
	if w.opts.Memo != nil {
		return w.opts.Memo.Project(w.mirror.Generation(), records, w.view)
	}
	return projector.Project(records, w.view)
}

func (w *Workspace) publish() {
	st := ViewState{
		SignedIn:     w.identity.SignedIn(),
		Role:         w.identity.Role(),
		Disconnected: w.disconnected,
		Config:       w.view,
		Rows:         []Row{},
		Edit:         w.edit.View(),
		Generation:   w.mirror.Generation(),
	}
	if id, ok := w.identity.Identity(); ok {
		st.Identity = &id
	}
	if w.lastErr != nil {
		st.Error = w.lastErr.Error()
	}
	if st.SignedIn && !w.disconnected {
		all := w.mirror.All()
		st.Rows = NewRows(w.project(all))
		st.Choices = projector.FilterChoices(all, w.view)
	}

	w.mu.Lock()
	w.state = st
	w.mu.Unlock()

	select {
	case w.updates <- st:
		return
	default:
	}
	select {
	case <-w.updates:
	default:
	}
	select {
	case w.updates <- st:
	default:
	}
}
