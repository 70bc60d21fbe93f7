package service

import (
	"context"
	"testing"
	"time"

	"orderflow_backend/internal/auth/repository"
	"orderflow_backend/platform/apperr"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret-0123456789"

type fakeUsers struct {
	byEmail map[string]repository.User
}

func (f *fakeUsers) Create(_ context.Context, p repository.CreateUserParams) (repository.User, error) {
	if _, exists := f.byEmail[p.Email]; exists {
		return repository.User{}, apperr.Conflict("an account with this email already exists")
	}
	u := repository.User{
		ID:           uuid.New(),
		Email:        p.Email,
		Name:         p.Name,
		PasswordHash: p.PasswordHash,
		Role:         p.Role,
		Firms:        p.Firms,
		CreatedAt:    time.Now(),
	}
	f.byEmail[p.Email] = u
	return u, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (repository.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return repository.User{}, apperr.NotFound("user not found")
	}
	return u, nil
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (repository.User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return repository.User{}, apperr.NotFound("user not found")
}

type testCfg struct{}

func (testCfg) GetJWTAccessSecret() string       { return testSecret }
func (testCfg) GetAccessTokenTTL() time.Duration { return 15 * time.Minute }

func newTestService(t *testing.T) (*Service, *fakeUsers) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	users := &fakeUsers{byEmail: map[string]repository.User{
		"ops@apex.test": {
			ID:           uuid.New(),
			Email:        "ops@apex.test",
			Name:         "Ops",
			PasswordHash: string(hash),
			Role:         "operator",
			Firms:        []string{"Apex Steels", "Borg Alloys"},
		},
	}}
	return NewService(users, testCfg{}), users
}

func TestLoginIssuesTokenWithIdentityClaims(t *testing.T) {
	svc, users := newTestService(t)

	result, err := svc.Login(context.Background(), "ops@apex.test", "correct horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	token, err := jwt.Parse(result.AccessToken, func(*jwt.Token) (interface{}, error) {
		return []byte(testSecret), nil
	})
	if err != nil || !token.Valid {
		t.Fatalf("token must verify with the access secret: %v", err)
	}

	claims := token.Claims.(jwt.MapClaims)
	if claims["sub"] != users.byEmail["ops@apex.test"].ID.String() {
		t.Fatalf("sub claim = %v", claims["sub"])
	}
	if claims["role"] != "operator" {
		t.Fatalf("role claim = %v", claims["role"])
	}
	firms, ok := claims["firms"].([]interface{})
	if !ok || len(firms) != 2 {
		t.Fatalf("firms claim = %v", claims["firms"])
	}
}

func TestLoginRejectsWrongPasswordAndUnknownEmailAlike(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, errWrong := svc.Login(ctx, "ops@apex.test", "wrong")
	_, errUnknown := svc.Login(ctx, "nobody@apex.test", "whatever")

	if !apperr.Is(errWrong, apperr.KindUnauthorized) {
		t.Fatalf("wrong password: %v", errWrong)
	}
	if !apperr.Is(errUnknown, apperr.KindUnauthorized) {
		t.Fatalf("unknown email: %v", errUnknown)
	}
	if errWrong.Error() != errUnknown.Error() {
		t.Fatalf("error messages must not reveal whether the account exists: %q vs %q", errWrong, errUnknown)
	}
}

func TestCreateUserRequiresMasterRole(t *testing.T) {
	svc, _ := newTestService(t)

	input := CreateUserInput{
		Email: "new@apex.test", Name: "New", Password: "long enough", Role: "operator",
		Firms: []string{"Apex Steels"},
	}

	if _, err := svc.CreateUser(context.Background(), "operator", input); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("non-master account creation must be forbidden, got %v", err)
	}
	if _, err := svc.CreateUser(context.Background(), "master", input); err != nil {
		t.Fatalf("master account creation: %v", err)
	}
}
