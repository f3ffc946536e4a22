package sso_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-sso"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

// 1x1 transparent png
const pixelPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

// newTestRepo returns a repository manager over a private in memory database
func newTestRepo(t *testing.T) sso.RepositoryManager {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	repo := sso.NewRepositoryManager(db)
	require.NoError(t, repo.Validate())
	require.NoError(t, repo.CreateSchema(context.Background()))
	return repo
}

type sentCode struct {
	To       string
	FullName string
	Code     string
}

// captureMailer records every verification code, optionally failing
type captureMailer struct {
	mu   sync.Mutex
	sent []sentCode
	err  error
}

func (m *captureMailer) SendVerificationCode(ctx context.Context, to, fullName, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentCode{To: to, FullName: fullName, Code: code})
	return m.err
}

func (m *captureMailer) last() sentCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sentCode{}
	}
	return m.sent[len(m.sent)-1]
}

// memoryImages is an in memory sso.ImageStore
type memoryImages struct {
	mu      sync.Mutex
	files   map[string][]byte
	saveErr error
	// beforeSave runs once, ahead of the next Save
	beforeSave func()
}

func newMemoryImages() *memoryImages {
	return &memoryImages{files: map[string][]byte{}}
}

func (m *memoryImages) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	if hook := m.beforeSave; hook != nil {
		m.beforeSave = nil
		hook()
	}
	if m.saveErr != nil {
		return "", m.saveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	filename := name + ".png"
	m.files[filename] = data
	return filename, nil
}

func (m *memoryImages) Delete(ctx context.Context, filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[filename]; !ok {
		return errors.New("not found")
	}
	delete(m.files, filename)
	return nil
}

func (m *memoryImages) URL(filename string) string {
	return "https://sso.example.com/static/uploads/" + filename
}

func (m *memoryImages) has(filename string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[filename]
	return ok
}

func fixedCode(code string) sso.CodeGenerator {
	return func() (string, error) { return code, nil }
}

type testConfig struct {
	allowedHosts []string
	issuer       string
}

func (c testConfig) GetSigningKey() string { return testSigningKey }
func (c testConfig) GetSigningMethod() string { return "HS256" }
func (c testConfig) GetContextKey() string { return "sso_token" }
func (c testConfig) GetTokenExpiration() int { return 3 }
func (c testConfig) GetTokenLookup() string { return "header:Authorization" }
func (c testConfig) GetAuthScheme() string { return "Bearer" }
func (c testConfig) GetIssuer() string { return c.issuer }
func (c testConfig) GetRedirectAllowedHosts() []string { return c.allowedHosts }
func (c testConfig) GetPublicBaseURL() string { return "https://sso.example.com" }
func (c testConfig) GetPhoneRegion() string { return "" }
func (c testConfig) GetSecureCookies() bool { return false }

func exampleRegistration() sso.RegisterUserMessage {
	return sso.RegisterUserMessage{
		FullName:      "Ada Lovelace",
		NationalID:    "100",
		BirthDate:     "1990-05-17",
		Nationality:   "GB",
		Gender:        "female",
		Qualification: "Mathematics",
		BirthCity:     "London",
		BirthCountry:  "GB",
		MaritalStatus: "married",
		BloodType:     "O+",
		PhoneNumber:   "555",
		Email:         "a@x.com",
	}
}

// registerUser runs the registration command and returns the new user
func registerUser(t *testing.T, repo sso.RepositoryManager, msg sso.RegisterUserMessage, code string) *sso.User {
	t.Helper()

	handler := sso.NewRegisterUserHandler(repo, &captureMailer{}, newMemoryImages(), sso.WithCodeGenerator(fixedCode(code)))

	var resp *sso.RegisterUserResponse
	msg.OnResponse = func(r *sso.RegisterUserResponse) { resp = r }

	require.NoError(t, handler.Execute(context.Background(), msg))
	require.NotNil(t, resp)
	return resp.User
}

// activeUser registers, verifies and sets a password for msg
func activeUser(t *testing.T, repo sso.RepositoryManager, msg sso.RegisterUserMessage, password string) *sso.User {
	t.Helper()
	ctx := context.Background()

	user := registerUser(t, repo, msg, "482193")

	require.NoError(t, sso.NewVerifyEmailHandler(repo, nil).Execute(ctx, sso.VerifyEmailMessage{
		UserID: user.ID,
		Code:   "482193",
	}))

	require.NoError(t, sso.NewCreatePasswordHandler(repo, nil).Execute(ctx, sso.CreatePasswordMessage{
		UserID:          user.ID,
		Password:        password,
		ConfirmPassword: password,
		BirthDate:       msg.BirthDate,
	}))

	stored, err := repo.Users().GetByUUID(ctx, user.ID)
	require.NoError(t, err)
	return stored
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
