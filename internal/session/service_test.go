package session

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accountentity "github.com/ovaphlow/pitchfork/service-board-auth/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/geo"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/repomanager/repomanagertest"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/session/entity"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/token"
)

const chromeOnLinux = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

type plainHasher struct{}

func (plainHasher) Hash(s string) (string, error) { return "hashed:" + s, nil }
func (plainHasher) Verify(hash, s string) bool    { return hash == "hashed:"+s }
func (plainHasher) NeedsRehash(hash string) bool  { return false }

type seqSecrets struct{ n int }

func (g *seqSecrets) OTP() (string, error) { return "482913", nil }
func (g *seqSecrets) Token() (string, error) {
	g.n++
	return fmt.Sprintf("session-token-%d", g.n), nil
}

type fixedLocator struct{ loc geo.Location }

func (l fixedLocator) Lookup(context.Context, string) geo.Location { return l.loc }

type fixture struct {
	svc    *Service
	store  *repomanagertest.Store
	clock  *clockwork.FakeClock
	issuer *token.Issuer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	issuer, err := token.NewIssuer(token.Config{Secret: "0123456789abcdef0123456789abcdef", Issuer: "board-auth"}, clock)
	require.NoError(t, err)
	store := repomanagertest.New()
	svc := NewService(Deps{
		Repos:   store,
		Hasher:  plainHasher{},
		Secrets: &seqSecrets{},
		Issuer:  issuer,
		Locator: fixedLocator{loc: geo.Location{City: "Lisbon", Country: "Portugal"}},
		Clock:   clock,
	})
	return &fixture{svc: svc, store: store, clock: clock, issuer: issuer}
}

func (f *fixture) seedAccount(id int64, email, password string) *accountentity.User {
	u := &accountentity.User{
		ID: id, Name: "Alice", Email: email, PasswordHash: "hashed:" + password,
		Role: accountentity.RoleUser, Verified: true,
	}
	f.store.Accounts[id] = u
	return u
}

func TestLogin_Success(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(7, "alice@example.com", "Abcdef1!")

	g, err := f.svc.Login(context.Background(), "  Alice@Example.com ", "Abcdef1!",
		entity.Client{UserAgent: chromeOnLinux, IP: "203.0.113.5"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), g.User.ID)
	assert.Equal(t, f.clock.Now().Add(24*time.Hour), g.ExpiresAt)

	claims, err := f.issuer.Verify(g.Token)
	require.NoError(t, err)
	assert.Equal(t, "7", claims.Subject)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "user", claims.Role)
	assert.Equal(t, "session-token-1", claims.Session)

	require.Len(t, f.store.SessionRows, 1)
	row := f.store.SessionRows[0]
	assert.Equal(t, g.SessionID, row.ID)
	assert.Equal(t, "session-token-1", row.SessionToken)
	assert.Equal(t, "Chrome", row.Browser)
	assert.Equal(t, "Linux", row.OperatingSystem)
	assert.Equal(t, "Desktop", row.DeviceModel)
	assert.Equal(t, "Lisbon", row.City)
	assert.Equal(t, "203.0.113.5", row.IPAddress)
	assert.True(t, row.IsActive)
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(7, "alice@example.com", "Abcdef1!")

	_, wrongPw := f.svc.Login(context.Background(), "alice@example.com", "nope", entity.Client{})
	_, unknown := f.svc.Login(context.Background(), "ghost@example.com", "nope", entity.Client{})

	require.ErrorIs(t, wrongPw, apperr.ErrInvalidCredentials)
	require.ErrorIs(t, unknown, apperr.ErrInvalidCredentials)
	assert.Equal(t, wrongPw.Error(), unknown.Error())
	assert.Empty(t, f.store.SessionRows)
}

// legacyHasher accepts hashes with a "legacy:" prefix and asks for them to be upgraded.
type legacyHasher struct{ plainHasher }

func (legacyHasher) Verify(hash, s string) bool {
	return hash == "hashed:"+s || hash == "legacy:"+s
}

func (legacyHasher) NeedsRehash(hash string) bool { return strings.HasPrefix(hash, "legacy:") }

func TestLogin_UpgradesOutdatedHash(t *testing.T) {
	f := newFixture(t)
	f.svc.hasher = legacyHasher{}
	u := f.seedAccount(7, "alice@example.com", "Abcdef1!")
	u.PasswordHash = "legacy:Abcdef1!"

	_, err := f.svc.Login(context.Background(), "alice@example.com", "Abcdef1!", entity.Client{})
	require.NoError(t, err)
	assert.Equal(t, "hashed:Abcdef1!", f.store.Accounts[7].PasswordHash)
}

func TestLogin_MissingFields(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Login(context.Background(), "", "x", entity.Client{})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestLogin_SessionWriteFails(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(7, "alice@example.com", "Abcdef1!")
	f.store.FailOn("Sessions.Create", fmt.Errorf("db down"))

	_, err := f.svc.Login(context.Background(), "alice@example.com", "Abcdef1!", entity.Client{})
	require.Error(t, err)
	assert.Equal(t, 500, apperr.HTTPStatus(err))
}

// login three times, one minute apart
func (f *fixture) loginThree(t *testing.T, u *accountentity.User) []*Grant {
	t.Helper()
	var out []*Grant
	for i := 0; i < 3; i++ {
		g, err := f.svc.Start(context.Background(), u, entity.Client{UserAgent: chromeOnLinux})
		require.NoError(t, err)
		out = append(out, g)
		f.clock.Advance(time.Minute)
	}
	return out
}

func TestRevokeAllExceptCurrent_KeepsCaller(t *testing.T) {
	f := newFixture(t)
	u := f.seedAccount(7, "alice@example.com", "Abcdef1!")
	f.loginThree(t, u)

	n, err := f.svc.RevokeAllExceptCurrent(context.Background(), 7, "session-token-2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for _, row := range f.store.SessionRows {
		if row.SessionToken == "session-token-2" {
			assert.True(t, row.IsActive)
			assert.Nil(t, row.LogoutTime)
			continue
		}
		assert.False(t, row.IsActive)
		require.NotNil(t, row.LogoutTime)
		assert.Equal(t, f.clock.Now(), *row.LogoutTime)
	}
}

func TestRevokeAll_WithoutCurrentRevokesEverything(t *testing.T) {
	f := newFixture(t)
	u := f.seedAccount(7, "alice@example.com", "Abcdef1!")
	f.loginThree(t, u)

	n, err := f.svc.RevokeAll(context.Background(), 7, "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Zero(t, f.store.ActiveSessions(7))
}

func TestRevokeAll_WithCurrentKeepsCaller(t *testing.T) {
	f := newFixture(t)
	u := f.seedAccount(7, "alice@example.com", "Abcdef1!")
	f.loginThree(t, u)

	n, err := f.svc.RevokeAll(context.Background(), 7, "session-token-3")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 1, f.store.ActiveSessions(7))
}

func TestRevoke_OtherAccountIsNotFound(t *testing.T) {
	f := newFixture(t)
	u := f.seedAccount(7, "alice@example.com", "Abcdef1!")
	f.seedAccount(8, "bob@example.com", "Abcdef1!")
	gs := f.loginThree(t, u)

	err := f.svc.Revoke(context.Background(), 8, gs[0].SessionID)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, "Session not found", err.Error())

	require.NoError(t, f.svc.Revoke(context.Background(), 7, gs[0].SessionID))
	active, err := f.svc.IsActive(context.Background(), "session-token-1")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestListActive_NewestFirstWithCurrent(t *testing.T) {
	f := newFixture(t)
	u := f.seedAccount(7, "alice@example.com", "Abcdef1!")
	gs := f.loginThree(t, u)
	require.NoError(t, f.svc.Revoke(context.Background(), 7, gs[0].SessionID))

	list, err := f.svc.ListActive(context.Background(), 7, "session-token-2")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, gs[2].SessionID, list[0].ID)
	assert.False(t, list[0].IsCurrent)
	assert.True(t, list[1].IsCurrent)
}

func TestLoginActivity_LastTen(t *testing.T) {
	f := newFixture(t)
	u := f.seedAccount(7, "alice@example.com", "Abcdef1!")
	for i := 0; i < 12; i++ {
		_, err := f.svc.Start(context.Background(), u, entity.Client{})
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}

	list, err := f.svc.LoginActivity(context.Background(), 7, "")
	require.NoError(t, err)
	assert.Len(t, list, ActivityLimit)
	assert.True(t, list[0].LoginTime.After(list[9].LoginTime))
}

func TestIsActive_UnknownToken(t *testing.T) {
	f := newFixture(t)
	active, err := f.svc.IsActive(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestStart_UnknownDevice(t *testing.T) {
	f := newFixture(t)
	u := f.seedAccount(7, "alice@example.com", "Abcdef1!")
	_, err := f.svc.Start(context.Background(), u, entity.Client{})
	require.NoError(t, err)
	assert.Equal(t, "Unknown", f.store.SessionRows[0].Browser)
	assert.Equal(t, "Unknown", f.store.SessionRows[0].DeviceModel)
}
