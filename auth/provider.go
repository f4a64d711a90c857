// Package auth ist der Identity-Provider: Registrierung, Anmeldung,
// Passwort-Reset, Session-Tokens mit Rollen-Claim und Benachrichtigung bei
// Identitätswechseln.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"paper-registry/models"
)

// Unsubscribe beendet eine Identitäts-Subscription.
type Unsubscribe func()

// ResetSender stellt ein Reset-Token zu.
type ResetSender interface {
	SendReset(ctx context.Context, email, token string) error
}

// LogResetSender schreibt Reset-Tokens ins Log. Für Deployments ohne Mailversand.
type LogResetSender struct {
	Logger *zap.Logger
}

func (s LogResetSender) SendReset(_ context.Context, email, token string) error {
	s.Logger.Info("Password reset requested", zap.String("email", email), zap.String("token", token))
	return nil
}

// SignUpRequest sind die Formulardaten einer Registrierung.
type SignUpRequest struct {
	Email           string `json:"email" binding:"required"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
	FullName        string `json:"full_name"`
}

// Session ist das Ergebnis einer erfolgreichen Anmeldung.
type Session struct {
	Token    string   `json:"token"`
	Identity Identity `json:"identity"`
}

// ProviderConfig enthält die Passwort- und Reset-Regeln.
type ProviderConfig struct {
	MinPasswordLength int
	ResetTTL          time.Duration
}

type listener struct {
	cb    func(*Identity)
	timer *time.Timer
}

// Provider implementiert den Identity-Provider.
type Provider struct {
	accounts AccountStore
	tokens   *TokenIssuer
	roles    RoleLookup
	resets   ResetSender
	cfg      ProviderConfig
	logger   *zap.Logger
	cost     int
	now      func() time.Time

	mu        sync.Mutex
	revoked   map[string]time.Time
	listeners map[string]map[uint64]*listener
	nextID    uint64
}

// NewProvider erstellt einen Provider.
func NewProvider(accounts AccountStore, tokens *TokenIssuer, roles RoleLookup, resets ResetSender, cfg ProviderConfig, logger *zap.Logger) *Provider {
	return &Provider{
		accounts:  accounts,
		tokens:    tokens,
		roles:     roles,
		resets:    resets,
		cfg:       cfg,
		logger:    logger,
		cost:      bcrypt.DefaultCost,
		now:       time.Now,
		revoked:   map[string]time.Time{},
		listeners: map[string]map[uint64]*listener{},
	}
}

func (p *Provider) checkPassword(password, confirm string) error {
	if len([]rune(password)) < p.cfg.MinPasswordLength {
		return fmt.Errorf("%w: at least %d characters", ErrWeakPassword, p.cfg.MinPasswordLength)
	}
	if password != confirm {
		return ErrPasswordMismatch
	}
	return nil
}

func parseEmail(email string) (string, error) {
	addr, err := mail.ParseAddress(normalizeEmail(email))
	if err != nil {
		return "", ErrInvalidEmail
	}
	return addr.Address, nil
}

// SignUp legt einen Account an und meldet ihn direkt an.
func (p *Provider) SignUp(ctx context.Context, req SignUpRequest) (Session, error) {
	email, err := parseEmail(req.Email)
	if err != nil {
		return Session{}, err
	}
	if err := p.checkPassword(req.Password, req.ConfirmPassword); err != nil {
		return Session{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), p.cost)
	if err != nil {
		return Session{}, fmt.Errorf("hashing password: %w", err)
	}
	account := &models.Account{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     req.FullName,
		PasswordHash: string(hash),
	}
	if err := p.accounts.CreateAccount(ctx, account); err != nil {
		return Session{}, err
	}
	p.logger.Info("Account created", zap.String("account_id", account.ID))
	return p.issue(account)
}

// SignIn prüft E-Mail und Passwort.
func (p *Provider) SignIn(ctx context.Context, email, password string) (Session, error) {
	email, err := parseEmail(email)
	if err != nil {
		return Session{}, err
	}
	account, err := p.accounts.AccountByEmail(ctx, email)
	if err != nil {
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	return p.issue(account)
}

func (p *Provider) issue(a *models.Account) (Session, error) {
	token, id, err := p.tokens.Issue(a.ID, a.Email, p.roles.RolesFor(a.Email))
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, Identity: id}, nil
}

// SendPasswordReset erzeugt ein einmaliges Reset-Token und stellt es zu.
func (p *Provider) SendPasswordReset(ctx context.Context, email string) error {
	email, err := parseEmail(email)
	if err != nil {
		return err
	}
	account, err := p.accounts.AccountByEmail(ctx, email)
	if err != nil {
		return err
	}
	reset := &models.PasswordReset{
		Token:     uuid.NewString(),
		AccountID: account.ID,
		ExpiresAt: p.now().Add(p.cfg.ResetTTL),
	}
	if err := p.accounts.CreateReset(ctx, reset); err != nil {
		return fmt.Errorf("storing reset token: %w", err)
	}
	return p.resets.SendReset(ctx, account.Email, reset.Token)
}

// ResetPassword setzt mit einem gültigen Reset-Token ein neues Passwort.
func (p *Provider) ResetPassword(ctx context.Context, token, password, confirm string) error {
	if err := p.checkPassword(password, confirm); err != nil {
		return err
	}
	reset, err := p.accounts.ConsumeReset(ctx, token, p.now())
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := p.accounts.UpdatePasswordHash(ctx, reset.AccountID, string(hash)); err != nil {
		return err
	}
	p.logger.Info("Password reset", zap.String("account_id", reset.AccountID))
	return nil
}

// Verify prüft ein Session-Token und ob es abgemeldet wurde.
func (p *Provider) Verify(token string) (Identity, error) {
	id, err := p.tokens.Parse(token)
	if err != nil {
		return Identity{}, err
	}
	p.mu.Lock()
	_, revoked := p.revoked[id.TokenID]
	p.mu.Unlock()
	if revoked {
		return Identity{}, ErrInvalidToken
	}
	return id, nil
}

// SignOut widerruft das Token. Listener des Tokens erhalten nil.
func (p *Provider) SignOut(token string) {
	id, err := p.tokens.Parse(token)
	if err != nil {
		return
	}
	p.mu.Lock()
	now := p.now()
	for jti, exp := range p.revoked {
		if now.After(exp) {
			delete(p.revoked, jti)
		}
	}
	p.revoked[id.TokenID] = id.ExpiresAt
	p.mu.Unlock()
	p.logger.Info("Signed out", zap.String("account_id", id.ID))
	p.fire(id.TokenID)
}

// OnIdentityChanged ruft cb sofort mit der Identität des Tokens auf (nil, wenn
// ungültig) und erneut mit nil, sobald das Token abgemeldet wird oder abläuft.
func (p *Provider) OnIdentityChanged(token string, cb func(*Identity)) Unsubscribe {
	id, err := p.Verify(token)
	if err != nil {
		cb(nil)
		return func() {}
	}

	p.mu.Lock()
	p.nextID++
	key := p.nextID
	l := &listener{cb: cb}
	if p.listeners[id.TokenID] == nil {
		p.listeners[id.TokenID] = map[uint64]*listener{}
	}
	p.listeners[id.TokenID][key] = l
	if !id.ExpiresAt.IsZero() {
		jti := id.TokenID
		l.timer = time.AfterFunc(id.ExpiresAt.Sub(p.now()), func() { p.fire(jti) })
	}
	p.mu.Unlock()

	cb(&id)
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if ls, ok := p.listeners[id.TokenID]; ok {
			if l, ok := ls[key]; ok {
				if l.timer != nil {
					l.timer.Stop()
				}
				delete(ls, key)
			}
			if len(ls) == 0 {
				delete(p.listeners, id.TokenID)
			}
		}
	}
}

func (p *Provider) fire(jti string) {
	p.mu.Lock()
	ls := p.listeners[jti]
	delete(p.listeners, jti)
	p.mu.Unlock()
	for _, l := range ls {
		if l.timer != nil {
			l.timer.Stop()
		}
		l.cb(nil)
	}
}

// IsAuthError meldet, ob err ein Anmeldefehler ist.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuth)
}
