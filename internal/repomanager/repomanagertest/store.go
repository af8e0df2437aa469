// Package repomanagertest provides an in-memory repomanager.Manager for
// service and handler tests. Transactions are not modelled: writes made
// inside a rolled back transaction stay visible.
package repomanagertest

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	accountentity "github.com/ovaphlow/pitchfork/service-board-auth/internal/account/entity"
	accountrepo "github.com/ovaphlow/pitchfork/service-board-auth/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/repomanager"
	resetentity "github.com/ovaphlow/pitchfork/service-board-auth/internal/reset/entity"
	resetrepo "github.com/ovaphlow/pitchfork/service-board-auth/internal/reset/repo"
	sessionentity "github.com/ovaphlow/pitchfork/service-board-auth/internal/session/entity"
	sessionrepo "github.com/ovaphlow/pitchfork/service-board-auth/internal/session/repo"
	signupentity "github.com/ovaphlow/pitchfork/service-board-auth/internal/signup/entity"
	signuprepo "github.com/ovaphlow/pitchfork/service-board-auth/internal/signup/repo"
	"github.com/ovaphlow/pitchfork/service-board-auth/pkg/database"
)

// SendEntry is one OTP send log row.
type SendEntry struct {
	Email string
	IP    string
	At    time.Time
}

// Store holds every table in memory. Fields are exported so tests can seed
// and inspect state directly.
type Store struct {
	mu sync.Mutex

	Accounts    map[int64]*accountentity.User
	SignupRows  map[string]*signupentity.Verification
	SendLog     []SendEntry
	ResetRows   []*resetentity.Request
	SessionRows []*sessionentity.LoginSession

	fail map[string]error
}

func New() *Store {
	return &Store{
		Accounts:   map[int64]*accountentity.User{},
		SignupRows: map[string]*signupentity.Verification{},
		fail:       map[string]error{},
	}
}

// FailOn makes every call of method (e.g. "Users.Create") return err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[method] = err
}

func (s *Store) injected(method string) error {
	return s.fail[method]
}

// Account returns a copy of the account with the given email.
func (s *Store) Account(email string) (accountentity.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.Accounts {
		if strings.EqualFold(u.Email, email) {
			return *u, true
		}
	}
	return accountentity.User{}, false
}

// ActiveSessions counts the active sessions of userID.
func (s *Store) ActiveSessions(userID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, row := range s.SessionRows {
		if row.UserID == userID && row.IsActive {
			n++
		}
	}
	return n
}

var _ repomanager.Manager = (*Store)(nil)

func (s *Store) RunMigrations(context.Context, *sql.DB) error { return nil }

func (s *Store) Users(database.DBTX) accountrepo.Repository    { return (*users)(s) }
func (s *Store) Signups(database.DBTX) signuprepo.Repository   { return (*signups)(s) }
func (s *Store) Resets(database.DBTX) resetrepo.Repository     { return (*resets)(s) }
func (s *Store) Sessions(database.DBTX) sessionrepo.Repository { return (*sessions)(s) }

type users Store

func (u *users) Create(_ context.Context, in *accountentity.User) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := (*Store)(u).injected("Users.Create"); err != nil {
		return err
	}
	for _, existing := range u.Accounts {
		if strings.EqualFold(existing.Email, in.Email) {
			return apperr.ErrAlreadyRegistered
		}
	}
	row := *in
	u.Accounts[in.ID] = &row
	return nil
}

func (u *users) GetByID(_ context.Context, id int64) (*accountentity.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := (*Store)(u).injected("Users.GetByID"); err != nil {
		return nil, err
	}
	row, ok := u.Accounts[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	out := *row
	return &out, nil
}

func (u *users) GetByEmail(_ context.Context, email string) (*accountentity.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := (*Store)(u).injected("Users.GetByEmail"); err != nil {
		return nil, err
	}
	for _, row := range u.Accounts {
		if strings.EqualFold(row.Email, email) {
			out := *row
			return &out, nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (u *users) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := u.GetByEmail(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (u *users) update(id int64, fn func(*accountentity.User)) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	row, ok := u.Accounts[id]
	if !ok {
		return apperr.ErrNotFound
	}
	fn(row)
	return nil
}

func (u *users) UpdatePassword(_ context.Context, id int64, hash string, at time.Time) error {
	if err := (*Store)(u).injected("Users.UpdatePassword"); err != nil {
		return err
	}
	return u.update(id, func(row *accountentity.User) {
		row.PasswordHash = hash
		row.UpdatedAt = at
	})
}

func (u *users) UpdateProfile(_ context.Context, id int64, name string, phone, bio *string, at time.Time) error {
	return u.update(id, func(row *accountentity.User) {
		row.Name = name
		row.Phone = phone
		row.Bio = bio
		row.UpdatedAt = at
	})
}

func (u *users) SetTwoFactor(_ context.Context, id int64, enabled bool, secret *string, at time.Time) error {
	return u.update(id, func(row *accountentity.User) {
		row.TwoFactorEnabled = enabled
		row.TwoFactorSecret = secret
		row.UpdatedAt = at
	})
}

func (u *users) Stats(context.Context) (*accountentity.Stats, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	var st accountentity.Stats
	for _, row := range u.Accounts {
		st.TotalUsers++
		switch row.Role {
		case accountentity.RoleAdmin:
			st.Admins++
		case accountentity.RoleUser:
			st.Users++
		}
	}
	return &st, nil
}

type signups Store

func (r *signups) LockEmail(context.Context, string) error {
	return (*Store)(r).injected("Signups.LockEmail")
}

func (r *signups) CountSendsSince(_ context.Context, email string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.SendLog {
		if strings.EqualFold(e.Email, email) && !e.At.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *signups) LogSend(_ context.Context, email, ip string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.SendLog = append(r.SendLog, SendEntry{Email: email, IP: ip, At: at})
	return nil
}

func (r *signups) Create(_ context.Context, v *signupentity.Verification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := (*Store)(r).injected("Signups.Create"); err != nil {
		return err
	}
	if _, ok := r.SignupRows[v.Email]; ok {
		return errors.New("duplicate signup verification")
	}
	row := *v
	r.SignupRows[v.Email] = &row
	return nil
}

func (r *signups) GetForUpdate(_ context.Context, email string) (*signupentity.Verification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.SignupRows[email]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	out := *row
	return &out, nil
}

func (r *signups) RecordFailure(_ context.Context, email string, attempts int, lockedUntil *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.SignupRows[email]; ok {
		row.Attempts = attempts
		row.LockedUntil = lockedUntil
	}
	return nil
}

func (r *signups) MarkVerified(_ context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.SignupRows[email]; ok {
		row.Verified = true
		row.Attempts = 0
		row.LockedUntil = nil
	}
	return nil
}

func (r *signups) Delete(_ context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.SignupRows, email)
	return nil
}

type resets Store

func (r *resets) InvalidateUnused(_ context.Context, email string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, row := range r.ResetRows {
		if strings.EqualFold(row.Email, email) && !row.Used {
			row.Used = true
			n++
		}
	}
	return n, nil
}

func (r *resets) Create(_ context.Context, req *resetentity.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := (*Store)(r).injected("Resets.Create"); err != nil {
		return err
	}
	row := *req
	r.ResetRows = append(r.ResetRows, &row)
	return nil
}

func (r *resets) GetUsable(_ context.Context, email, tokenHash string) (*resetentity.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.ResetRows {
		if strings.EqualFold(row.Email, email) && row.TokenHash == tokenHash && !row.Used {
			out := *row
			return &out, nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (r *resets) MarkUsed(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.ResetRows {
		if row.ID == id {
			row.Used = true
		}
	}
	return nil
}

type sessions Store

func (r *sessions) Create(_ context.Context, in *sessionentity.LoginSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := (*Store)(r).injected("Sessions.Create"); err != nil {
		return err
	}
	for _, row := range r.SessionRows {
		if row.SessionToken == in.SessionToken {
			return errors.New("duplicate session token")
		}
	}
	row := *in
	r.SessionRows = append(r.SessionRows, &row)
	return nil
}

func (r *sessions) GetByToken(_ context.Context, token string) (*sessionentity.LoginSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := (*Store)(r).injected("Sessions.GetByToken"); err != nil {
		return nil, err
	}
	for _, row := range r.SessionRows {
		if row.SessionToken == token {
			out := *row
			return &out, nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (r *sessions) list(userID int64, activeOnly bool, limit int) []sessionentity.LoginSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []sessionentity.LoginSession{}
	for _, row := range r.SessionRows {
		if row.UserID == userID && (!activeOnly || row.IsActive) {
			out = append(out, *row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LoginTime.After(out[j].LoginTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *sessions) ListActive(_ context.Context, userID int64) ([]sessionentity.LoginSession, error) {
	return r.list(userID, true, 0), nil
}

func (r *sessions) ListRecent(_ context.Context, userID int64, limit int) ([]sessionentity.LoginSession, error) {
	return r.list(userID, false, limit), nil
}

func (r *sessions) Revoke(_ context.Context, userID int64, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.SessionRows {
		if row.ID == id && row.UserID == userID {
			row.IsActive = false
			if row.LogoutTime == nil {
				t := at
				row.LogoutTime = &t
			}
			return nil
		}
	}
	return apperr.ErrNotFound
}

func (r *sessions) revokeWhere(userID int64, at time.Time, keep func(*sessionentity.LoginSession) bool) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, row := range r.SessionRows {
		if row.UserID != userID || !row.IsActive || keep(row) {
			continue
		}
		t := at
		row.IsActive = false
		row.LogoutTime = &t
		n++
	}
	return n
}

func (r *sessions) RevokeAllExcept(_ context.Context, userID int64, keepToken string, at time.Time) (int64, error) {
	if err := (*Store)(r).injected("Sessions.RevokeAllExcept"); err != nil {
		return 0, err
	}
	return r.revokeWhere(userID, at, func(row *sessionentity.LoginSession) bool {
		return row.SessionToken == keepToken
	}), nil
}

func (r *sessions) RevokeAll(_ context.Context, userID int64, at time.Time) (int64, error) {
	if err := (*Store)(r).injected("Sessions.RevokeAll"); err != nil {
		return 0, err
	}
	return r.revokeWhere(userID, at, func(*sessionentity.LoginSession) bool { return false }), nil
}
