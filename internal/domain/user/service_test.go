package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/carecenter/dashboard/internal/platform/auth"
	"github.com/carecenter/dashboard/internal/platform/crud"
	"github.com/carecenter/dashboard/internal/platform/formschema"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func newTestService(t *testing.T) (*Service, *auth.TokenRevocationStore) {
	t.Helper()
	iss, err := auth.NewIssuer(testKey, "care-center", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	rev := auth.NewTokenRevocationStore(0)
	t.Cleanup(rev.Close)
	svc := NewService(NewMemRepo(), iss, rev, zerolog.Nop())
	svc.cost = bcrypt.MinCost
	return svc, rev
}

func createUser(t *testing.T, svc *Service, username string, roles ...string) *User {
	t.Helper()
	u, err := svc.Create(context.Background(), formschema.Values{
		"username":  username,
		"full_name": "Test " + username,
		"roles":     roles,
		"active":    true,
		"password":  "correct horse",
	})
	if err != nil {
		t.Fatalf("create %s: %v", username, err)
	}
	return u
}

func parseClaims(t *testing.T, token string) *auth.Claims {
	t.Helper()
	claims := &auth.Claims{}
	if _, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) { return testKey, nil }); err != nil {
		t.Fatalf("parse token: %v", err)
	}
	return claims
}

func TestCreate_HashesPassword(t *testing.T) {
	svc, _ := newTestService(t)
	u := createUser(t, svc, "ana.admin", auth.RoleAdmin, auth.RoleAdmin)

	if u.Password != "" || u.PasswordHash == "" || u.PasswordHash == "correct horse" {
		t.Errorf("password must be hashed and cleared: %+v", u)
	}
	if len(u.Roles) != 1 {
		t.Errorf("roles must be deduplicated, got %v", u.Roles)
	}

	_, err := svc.Create(context.Background(), formschema.Values{
		"username": "bo", "full_name": "Bo", "roles": []string{auth.RoleNurse}, "password": "short",
	})
	ve, ok := formschema.AsValidationError(err)
	if !ok || len(ve.Fields["username"]) == 0 || len(ve.Fields["password"]) == 0 {
		t.Errorf("expected username and password errors, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	u := createUser(t, svc, "nurse.joy", auth.RoleNurse)

	tok, got, err := svc.Login(ctx, " Nurse.Joy ", "correct horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got.ID != u.ID || got.LastLoginAt == nil {
		t.Errorf("login must record the last login: %+v", got)
	}
	claims := parseClaims(t, tok.AccessToken)
	if claims.Subject != u.ID.String() || claims.Roles[0] != auth.RoleNurse {
		t.Errorf("unexpected claims %+v", claims)
	}

	for name, creds := range map[string][2]string{
		"wrong password": {"nurse.joy", "wrong horse"},
		"unknown user":   {"nobody", "correct horse"},
	} {
		if _, _, err := svc.Login(ctx, creds[0], creds[1]); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("%s: err = %v", name, err)
		}
	}

	if _, err := svc.Update(ctx, u.ID, formschema.Values{"active": false}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := svc.Login(ctx, "nurse.joy", "correct horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("inactive user login err = %v", err)
	}
}

func TestUpdate_RevokesSessions(t *testing.T) {
	svc, rev := newTestService(t)
	ctx := context.Background()
	createUser(t, svc, "admin", auth.RoleAdmin)
	u := createUser(t, svc, "tech", auth.RoleTechnician)

	tok, _, err := svc.Login(ctx, "tech", "correct horse")
	if err != nil {
		t.Fatal(err)
	}
	claims := parseClaims(t, tok.AccessToken)

	if _, err := svc.Update(ctx, u.ID, formschema.Values{"full_name": "Renamed"}); err != nil {
		t.Fatal(err)
	}
	if rev.Rejects(claims) {
		t.Error("a profile edit must not revoke sessions")
	}

	// revocation works on whole seconds
	svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Second) }
	if _, err := svc.Update(ctx, u.ID, formschema.Values{"roles": []string{auth.RoleClerk}}); err != nil {
		t.Fatal(err)
	}
	if !rev.Rejects(claims) {
		t.Error("a role change must revoke earlier tokens")
	}
}

func TestLastAdminIsProtected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	admin := createUser(t, svc, "root", auth.RoleAdmin)

	if _, err := svc.Update(ctx, admin.ID, formschema.Values{"roles": []string{auth.RoleClerk}}); !errors.Is(err, crud.ErrConflict) {
		t.Errorf("demoting the last admin: err = %v", err)
	}
	if err := svc.Delete(ctx, admin.ID); !errors.Is(err, crud.ErrConflict) {
		t.Errorf("deleting the last admin: err = %v", err)
	}

	second := createUser(t, svc, "root2", auth.RoleAdmin)
	if _, err := svc.Update(ctx, admin.ID, formschema.Values{"active": false}); err != nil {
		t.Errorf("deactivating one of two admins: %v", err)
	}

	self := auth.WithUser(ctx, second.ID.String(), "root2", []string{auth.RoleAdmin})
	if err := svc.Delete(self, second.ID); !errors.Is(err, crud.ErrConflict) {
		t.Errorf("deleting yourself: err = %v", err)
	}
	if err := svc.Delete(self, admin.ID); err != nil {
		t.Errorf("Delete: %v", err)
	}
}

func TestLogoutAndChangePassword(t *testing.T) {
	svc, rev := newTestService(t)
	ctx := context.Background()
	u := createUser(t, svc, "doc", auth.RoleDoctor)

	tok, _, err := svc.Login(ctx, "doc", "correct horse")
	if err != nil {
		t.Fatal(err)
	}
	claims := parseClaims(t, tok.AccessToken)
	svc.Logout(claims)
	if !rev.IsRevoked(claims.ID) {
		t.Error("logout must revoke the token")
	}

	me := auth.WithUser(ctx, u.ID.String(), "doc", u.Roles)
	if _, err := svc.ChangePassword(me, "wrong", "a new password"); err == nil {
		t.Error("wrong current password must fail")
	}
	if _, err := svc.ChangePassword(me, "correct horse", "short"); err == nil {
		t.Error("short new password must fail")
	}
	fresh, err := svc.ChangePassword(me, "correct horse", "a new password")
	if err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if rev.Rejects(parseClaims(t, fresh.AccessToken)) {
		t.Error("the token returned by ChangePassword must stay valid")
	}
	if _, _, err := svc.Login(ctx, "doc", "a new password"); err != nil {
		t.Errorf("login with new password: %v", err)
	}
}

func TestBootstrap(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	created, err := svc.Bootstrap(ctx, "admin", "change-me-now")
	if err != nil || !created {
		t.Fatalf("Bootstrap = %v, %v", created, err)
	}
	created, err = svc.Bootstrap(ctx, "admin2", "change-me-now")
	if err != nil || created {
		t.Errorf("second Bootstrap = %v, %v", created, err)
	}
	if _, _, err := svc.Login(ctx, "admin", "change-me-now"); err != nil {
		t.Errorf("login as bootstrap admin: %v", err)
	}
}
