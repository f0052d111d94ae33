package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/avdeyev/authcore/internal/apperr"
	"github.com/avdeyev/authcore/internal/dbx"
	"github.com/avdeyev/authcore/internal/server/models"
	"github.com/avdeyev/authcore/internal/server/repositories/sessions"
	"github.com/avdeyev/authcore/internal/server/repositories/users"
	"github.com/avdeyev/authcore/internal/server/repositories/verifications"
)

// --- shared test fakes ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

type fakeUsersRepo struct {
	byEmail    map[string]*models.User
	byProvider map[string]*models.User // key: provider + "/" + oauthID

	created        []*models.User
	linkedProvider []string // user ids
	lastLoginFor   []string // user ids
	statusUpdates  []string // "id:status"

	findErr error
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{
		byEmail:    map[string]*models.User{},
		byProvider: map[string]*models.User{},
	}
}

func (f *fakeUsersRepo) add(u *models.User) {
	f.byEmail[u.Email] = u
	if u.OAuthProvider != "" {
		f.byProvider[u.OAuthProvider+"/"+u.OAuthID] = u
	}
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	u.ID = "generated-id"
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	f.created = append(f.created, u)
	f.add(u)
	return u, nil
}

func (f *fakeUsersRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, apperr.New(apperr.KindNotFound, "user not found")
}

func (f *fakeUsersRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, apperr.New(apperr.KindNotFound, "user not found")
}

func (f *fakeUsersRepo) FindByProvider(ctx context.Context, provider, oauthID string) (*models.User, error) {
	if u, ok := f.byProvider[provider+"/"+oauthID]; ok {
		return u, nil
	}
	return nil, apperr.New(apperr.KindNotFound, "user not found")
}

func (f *fakeUsersRepo) UpdateStatus(ctx context.Context, id string, status models.UserStatus) error {
	f.statusUpdates = append(f.statusUpdates, id+":"+string(status))
	return nil
}

func (f *fakeUsersRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	f.lastLoginFor = append(f.lastLoginFor, id)
	return nil
}

func (f *fakeUsersRepo) LinkProvider(ctx context.Context, id, provider, oauthID string) error {
	f.linkedProvider = append(f.linkedProvider, id)
	return nil
}

type createdVerification struct {
	UserID    string
	OTPHash   string
	ExpiresAt time.Time
}

type fakeVerificationsRepo struct {
	count      int
	countErr   error
	countCalls int

	oldest    time.Time
	oldestErr error

	superseded []string // user ids, in call order
	created    []createdVerification
	createErr  error

	pending      *models.EmailVerification
	verifiedIDs  []string
	attemptBumps []string // verification ids
}

func (f *fakeVerificationsRepo) Create(ctx context.Context, userID, otpHash string, expiresAt time.Time) (*models.EmailVerification, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, createdVerification{UserID: userID, OTPHash: otpHash, ExpiresAt: expiresAt})
	return &models.EmailVerification{ID: "v1", UserID: userID, OTPHash: otpHash, ExpiresAt: expiresAt}, nil
}

func (f *fakeVerificationsRepo) SupersedeAllUnverified(ctx context.Context, userID string) error {
	f.superseded = append(f.superseded, userID)
	return nil
}

func (f *fakeVerificationsRepo) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	f.countCalls++
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.count, nil
}

func (f *fakeVerificationsRepo) OldestSince(ctx context.Context, userID string, since time.Time) (time.Time, error) {
	if f.oldestErr != nil {
		return time.Time{}, f.oldestErr
	}
	return f.oldest, nil
}

func (f *fakeVerificationsRepo) FindLatestPending(ctx context.Context, userID string) (*models.EmailVerification, error) {
	if f.pending == nil {
		return nil, apperr.New(apperr.KindNotFound, "no pending verification")
	}
	return f.pending, nil
}

func (f *fakeVerificationsRepo) MarkVerified(ctx context.Context, id string) error {
	f.verifiedIDs = append(f.verifiedIDs, id)
	return nil
}

func (f *fakeVerificationsRepo) IncrementAttempts(ctx context.Context, id string) (int, error) {
	f.attemptBumps = append(f.attemptBumps, id)
	f.pending.Attempts++
	return f.pending.Attempts, nil
}

type fakeSessionsRepo struct {
	byHash map[string]*models.Session

	created []string // token hashes
	deleted []string // token hashes
}

func newFakeSessionsRepo() *fakeSessionsRepo {
	return &fakeSessionsRepo{byHash: map[string]*models.Session{}}
}

func (f *fakeSessionsRepo) Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*models.Session, error) {
	s := &models.Session{ID: "s1", UserID: userID, RefreshTokenHash: tokenHash, ExpiresAt: expiresAt}
	f.byHash[tokenHash] = s
	f.created = append(f.created, tokenHash)
	return s, nil
}

func (f *fakeSessionsRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	if s, ok := f.byHash[tokenHash]; ok {
		return s, nil
	}
	return nil, apperr.New(apperr.KindNotFound, "session not found")
}

func (f *fakeSessionsRepo) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	delete(f.byHash, tokenHash)
	f.deleted = append(f.deleted, tokenHash)
	return nil
}

func (f *fakeSessionsRepo) DeleteExpired(ctx context.Context) (int64, error) { return 0, nil }

type fakeRepoManager struct {
	users         *fakeUsersRepo
	verifications *fakeVerificationsRepo
	sessions      *fakeSessionsRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		users:         newFakeUsersRepo(),
		verifications: &fakeVerificationsRepo{},
		sessions:      newFakeSessionsRepo(),
	}
}

func (m *fakeRepoManager) Users(db dbx.DBTX) users.Repository { return m.users }

func (m *fakeRepoManager) Verifications(db dbx.DBTX) verifications.Repository {
	return m.verifications
}

func (m *fakeRepoManager) Sessions(db dbx.DBTX) sessions.Repository { return m.sessions }

func (m *fakeRepoManager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }
