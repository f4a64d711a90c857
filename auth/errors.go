package auth

import "errors"

// ErrAuth ist die Oberkategorie aller Fehler des Identity-Providers.
// Sie betreffen nur die Anmeldung, nie eine laufende Sitzung.
var ErrAuth = errors.New("auth error")

var (
	ErrInvalidCredentials = authError("invalid credentials")
	ErrWeakPassword       = authError("password too weak")
	ErrPasswordMismatch   = authError("passwords do not match")
	ErrAccountExists      = authError("account already exists")
	ErrUnknownAccount     = authError("unknown account")
	ErrInvalidToken       = authError("invalid or expired token")
	ErrInvalidEmail       = authError("invalid email address")
)

type authErr struct{ msg string }

func authError(msg string) error { return &authErr{msg: msg} }

func (e *authErr) Error() string { return e.msg }

func (e *authErr) Is(target error) bool { return target == ErrAuth }
