package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/timegarden/backend/internal/memstore"
	"github.com/timegarden/backend/internal/middleware"
	"github.com/timegarden/backend/internal/models"
)

func newTestService(t *testing.T) (*service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	repo := NewRepository(store, store.Users(), store.Wallets(), store.Transactions())
	svc := NewService(repo, Options{Secret: "test-secret", TokenTTL: time.Hour, StartingBalance: decimal.NewFromInt(50)})
	return svc, store
}

func TestRegister_SeedsWallet(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	acc, err := svc.Register(ctx, "  Ana@Example.com ", "hunter22", "Ana")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if acc.User.Email != "ana@example.com" {
		t.Errorf("email = %q", acc.User.Email)
	}
	w, err := store.Wallets().GetByUserID(ctx, acc.User.ID)
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	if !w.Available.Equal(decimal.NewFromInt(50)) || !w.Escrow.IsZero() {
		t.Errorf("wallet = %s/%s", w.Available, w.Escrow)
	}
	txs, _ := store.Transactions().ListByWallet(ctx, acc.User.ID)
	if len(txs) != 1 || txs[0].Type != models.TxTypeCredit || !txs[0].Amount.Equal(w.Available) {
		t.Errorf("opening credit = %+v", txs)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	first, err := svc.Register(ctx, "bo@example.com", "pw123456", "Bo")
	if err != nil {
		t.Fatal(err)
	}
	_, err = svc.Register(ctx, "BO@example.com", "other", "Bo 2")
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("err = %v, want ErrDuplicateEmail", err)
	}
	u, err := store.Users().GetByEmail(ctx, "bo@example.com")
	if err != nil || u.ID != first.User.ID || u.DisplayName != "Bo" {
		t.Errorf("stored user = %+v, %v", u, err)
	}
}

func TestLoginAndValidate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	acc, err := svc.Register(ctx, "cy@example.com", "correct horse", "Cy")
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := svc.Login(ctx, "cy@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@example.com", "x"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user: %v", err)
	}

	tok, u, err := svc.Login(ctx, "CY@example.com", "correct horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if u.ID != acc.User.ID {
		t.Errorf("user = %s", u.ID)
	}
	id, err := svc.ValidateToken(ctx, tok)
	if err != nil || id != acc.User.ID {
		t.Fatalf("ValidateToken = %s, %v", id, err)
	}

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := svc.ValidateToken(ctx, tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token: %v", err)
	}
}

func TestValidateToken_Rejects(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	foreign, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("another-secret"))
	badSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "not-a-uuid",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("test-secret"))

	for name, tok := range map[string]string{
		"garbage":      "abc.def.ghi",
		"wrong secret": foreign,
		"bad subject":  badSubject,
		"empty":        "",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.ValidateToken(ctx, tok); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("err = %v", err)
			}
		})
	}
}

func TestHandler_RegisterLogin(t *testing.T) {
	svc, _ := newTestService(t)
	h := NewHandler(svc, nil)

	post := func(fn http.HandlerFunc, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		fn(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
		return rec
	}

	rec := post(h.Register, `{"email":"di@example.com","password":"pw-pw-pw","display_name":"Di"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", rec.Code, rec.Body.String())
	}
	var reg RegisterResponse
	json.Unmarshal(rec.Body.Bytes(), &reg)
	if reg.Balance != "50.00" {
		t.Errorf("balance = %s", reg.Balance)
	}

	if rec := post(h.Register, `{"email":"di@example.com","password":"x","display_name":"Di"}`); rec.Code != http.StatusConflict {
		t.Errorf("duplicate: %d", rec.Code)
	}
	if rec := post(h.Register, `{"email":"x@example.com"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing fields: %d", rec.Code)
	}
	if rec := post(h.Login, `{"email":"di@example.com","password":"nope"}`); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad login: %d", rec.Code)
	}

	rec = post(h.Login, `{"email":"di@example.com","password":"pw-pw-pw"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d", rec.Code)
	}
	var lr LoginResponse
	json.Unmarshal(rec.Body.Bytes(), &lr)
	if lr.Token == "" || lr.User.ID != reg.User.ID {
		t.Errorf("login response = %+v", lr)
	}
}

func TestHandler_Me(t *testing.T) {
	svc, _ := newTestService(t)
	h := NewHandler(svc, nil)
	acc, err := svc.Register(context.Background(), "el@example.com", "pw-pw-pw", "El")
	if err != nil {
		t.Fatal(err)
	}

	get := func(caller *uuid.UUID) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
		if caller != nil {
			req = req.WithContext(middleware.WithCaller(req.Context(), *caller))
		}
		rec := httptest.NewRecorder()
		h.Me(rec, req)
		return rec
	}

	rec := get(&acc.User.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: %d %s", rec.Code, rec.Body.String())
	}
	var me UserResponse
	json.Unmarshal(rec.Body.Bytes(), &me)
	if me.ID != acc.User.ID.String() || me.Email != "el@example.com" || me.DisplayName != "El" {
		t.Errorf("me = %+v", me)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Errorf("response leaks the password hash: %s", rec.Body.String())
	}

	ghost := uuid.New()
	if rec := get(&ghost); rec.Code != http.StatusNotFound {
		t.Errorf("deleted account: %d", rec.Code)
	}
	if rec := get(nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous: %d", rec.Code)
	}
}
