package auth

import (
	"context"
	"crypto/rand"
	"path/filepath"
	"testing"
	"time"

	"aidanwoods.dev/go-paseto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toollender/toollender/internal/domain"
	domainerrors "github.com/toollender/toollender/internal/errors"
	"github.com/toollender/toollender/internal/localstore"
	"github.com/toollender/toollender/internal/refresh"
	"github.com/toollender/toollender/internal/remote"
	"github.com/toollender/toollender/internal/remote/remotetest"
	"github.com/toollender/toollender/internal/repository"
	"github.com/toollender/toollender/internal/validation"
)

var testParams = Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

type testEnv struct {
	backend *remotetest.Memory
	svc     *Service
	users   *repository.UserRepository
}

func setupService(t *testing.T) *testEnv {
	t.Helper()

	backend := remotetest.New()
	client := remote.NewClient(backend, remote.Options{})
	local, err := localstore.NewInMemory(nil)
	require.NoError(t, err)
	sync := refresh.New(refresh.Options{})
	t.Cleanup(func() {
		_ = sync.Shutdown(context.Background())
		_ = local.Close()
	})

	users := repository.NewUserRepository(repository.Deps{
		Remote:    client,
		Local:     local,
		Sync:      sync,
		Validator: validation.New(),
	})
	svc := NewService(Config{
		Remote:    client,
		Local:     local,
		Profiles:  users,
		Tokens:    NewTokenService(paseto.NewV4SymmetricKey(), time.Hour),
		Validator: validation.New(),
		Params:    testParams,
	})
	return &testEnv{backend: backend, svc: svc, users: users}
}

func signUp(t *testing.T, env *testEnv, email string) *Result {
	t.Helper()
	res, err := env.svc.SignUp(context.Background(), SignUpRequest{
		Email:    email,
		Password: "hammer-time",
		Name:     "Mette",
	})
	require.NoError(t, err)
	return res
}

func TestPassword_HashAndCheck(t *testing.T) {
	hash, err := HashPassword("correct horse", testParams)
	require.NoError(t, err)

	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "correct horse "))
	assert.False(t, CheckPassword("$argon2id$garbage", "correct horse"))

	other, err := HashPassword("correct horse", testParams)
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "salted")

	_, err = HashPassword("", testParams)
	assert.Error(t, err)
}

func TestTokens_RoundTrip(t *testing.T) {
	ts := NewTokenService(paseto.NewV4SymmetricKey(), time.Hour)
	now := time.Now()
	session := domain.Session{ID: "sess-1", AccountID: "acct-1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}

	token, err := ts.Issue(domain.Account{ID: "acct-1", Email: "ida@example.dk"}, session)
	require.NoError(t, err)

	claims, err := ts.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", claims.AccountID)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, "ida@example.dk", claims.Email)

	other := NewTokenService(paseto.NewV4SymmetricKey(), time.Hour)
	_, err = other.Verify(token)
	assert.Error(t, err, "wrong key")

	ts.now = func() time.Time { return now.Add(2 * time.Hour) }
	_, err = ts.Verify(token)
	assert.Error(t, err, "expired")
}

func TestLoadOrGenerateKey_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "auth.key")

	first, err := LoadOrGenerateKey(path)
	require.NoError(t, err)
	second, err := LoadOrGenerateKey(path)
	require.NoError(t, err)
	assert.FileExists(t, path)

	assert.Equal(t, first.ExportHex(), second.ExportHex())
}

func TestKeyFromHex(t *testing.T) {
	raw := make([]byte, 32)
	_, _ = rand.Read(raw)
	key, err := paseto.V4SymmetricKeyFromBytes(raw)
	require.NoError(t, err)

	parsed, err := KeyFromHex(" " + key.ExportHex() + "\n")
	require.NoError(t, err)
	assert.Equal(t, key.ExportHex(), parsed.ExportHex())

	_, err = KeyFromHex("abc")
	assert.Error(t, err)
}

func TestSignUp_CreatesAccountAndProfile(t *testing.T) {
	env := setupService(t)

	res := signUp(t, env, "  Mette@Example.dk ")

	assert.NotEmpty(t, res.Token)
	assert.Equal(t, "mette@example.dk", res.Subject.Email)
	assert.Equal(t, "Mette", res.Profile.Name)
	assert.Equal(t, domain.AllAssociations, res.Profile.AssociationID)
	assert.Equal(t, 1, env.backend.Count(CollectionAccounts))

	doc, ok := env.backend.Doc(CollectionAccounts, res.Subject.ID)
	require.True(t, ok)
	assert.NotContains(t, doc.Fields[fieldPasswordHash], "hammer-time")

	subject, err := env.svc.Authenticate(context.Background(), res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.Subject, subject)
}

func TestSignUp_DuplicateEmail(t *testing.T) {
	env := setupService(t)
	signUp(t, env, "ole@example.dk")

	_, err := env.svc.SignUp(context.Background(), SignUpRequest{Email: "OLE@example.dk", Password: "long enough", Name: "Ole"})

	assert.ErrorIs(t, err, domainerrors.ErrAlreadyExists)
	assert.Equal(t, 1, env.backend.Count(CollectionAccounts))
}

func TestSignUp_Validation(t *testing.T) {
	env := setupService(t)

	tests := []struct {
		name string
		req  SignUpRequest
	}{
		{"bad email", SignUpRequest{Email: "nope", Password: "long enough", Name: "A"}},
		{"short password", SignUpRequest{Email: "a@example.dk", Password: "short", Name: "A"}},
		{"blank name", SignUpRequest{Email: "a@example.dk", Password: "long enough", Name: "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.SignUp(context.Background(), tt.req)
			assert.ErrorIs(t, err, domainerrors.ErrValidation)
		})
	}
	assert.Equal(t, 0, env.backend.Writes())
}

func TestSignUp_RemoteUnavailable(t *testing.T) {
	env := setupService(t)
	env.backend.SetUnavailable(true)

	_, err := env.svc.SignUp(context.Background(), SignUpRequest{Email: "a@example.dk", Password: "long enough", Name: "A"})

	assert.ErrorIs(t, err, domainerrors.ErrRemoteUnavailable)
}

func TestSignIn(t *testing.T) {
	env := setupService(t)
	created := signUp(t, env, "ida@example.dk")
	ctx := context.Background()

	res, err := env.svc.SignIn(ctx, SignInRequest{Email: "IDA@example.dk", Password: "hammer-time"})
	require.NoError(t, err)
	assert.Equal(t, created.Subject.ID, res.Subject.ID)
	assert.NotEqual(t, created.Subject.SessionID, res.Subject.SessionID)
	assert.Equal(t, "Mette", res.Profile.Name)

	_, err = env.svc.SignIn(ctx, SignInRequest{Email: "ida@example.dk", Password: "wrong-password"})
	assert.ErrorIs(t, err, domainerrors.ErrInvalidCredentials)

	_, err = env.svc.SignIn(ctx, SignInRequest{Email: "nobody@example.dk", Password: "hammer-time"})
	assert.ErrorIs(t, err, domainerrors.ErrInvalidCredentials)
}

func TestSignOut_RevokesToken(t *testing.T) {
	env := setupService(t)
	res := signUp(t, env, "ida@example.dk")
	ctx := context.Background()

	require.NoError(t, env.svc.SignOut(ctx, res.Subject))

	_, err := env.svc.Authenticate(ctx, res.Token)
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)
}

func TestAuthenticate_Rejects(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	_, err := env.svc.Authenticate(ctx, "v4.local.garbage")
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)

	res := signUp(t, env, "ida@example.dk")
	env.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = env.svc.Authenticate(ctx, res.Token)
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)
}

func TestDeleteCurrent(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	res := signUp(t, env, "ida@example.dk")
	second, err := env.svc.SignIn(ctx, SignInRequest{Email: "ida@example.dk", Password: "hammer-time"})
	require.NoError(t, err)
	other := signUp(t, env, "ole@example.dk")

	require.NoError(t, env.svc.DeleteCurrent(ctx, res.Subject))

	assert.Equal(t, 1, env.backend.Count(CollectionAccounts))
	_, ok := env.backend.Doc(repository.CollectionUsers, res.Subject.ID)
	assert.False(t, ok)

	for _, token := range []string{res.Token, second.Token} {
		_, err := env.svc.Authenticate(ctx, token)
		assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)
	}
	_, err = env.svc.Authenticate(ctx, other.Token)
	assert.NoError(t, err)

	// The email can be reused once the account is gone.
	signUp(t, env, "ida@example.dk")
}

func TestPruneSessions(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	signUp(t, env, "ida@example.dk")

	n, err := env.svc.PruneSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	env.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	n, err = env.svc.PruneSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
