package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/flickpick/pkg/flickpick/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testSecret = "test-secret"

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	models.AutoMigrate(db)
	return db
}

func setupTestRouter(db *gorm.DB) (*gin.Engine, *Resolver) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	resolver := NewResolver(db, NewTokenService(testSecret, time.Hour))
	handler := NewHandler(db, resolver)
	handler.RegisterRoutes(r.Group("/auth"))
	handler.RegisterIdentityRoutes(r.Group(""))
	return r, resolver
}

func postJSON(router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	jsonBody, _ := json.Marshal(body)
	req, _ := http.NewRequest("POST", path, bytes.NewBuffer(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func getWithToken(router *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("GET", path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestPasswordHashing(t *testing.T) {
	password := "testpassword123"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if hash == password {
		t.Error("Hash should not equal plain password")
	}

	if !CheckPassword(password, hash) {
		t.Error("CheckPassword should return true for correct password")
	}

	if CheckPassword("wrongpassword", hash) {
		t.Error("CheckPassword should return false for incorrect password")
	}
}

func TestParseSubject(t *testing.T) {
	tests := []struct {
		sub  string
		want Subject
	}{
		{"5", Subject{Kind: SubjectAccount, ID: 5}},
		{"participant:12", Subject{Kind: SubjectParticipant, ID: 12}},
		{"participant:", Subject{Kind: SubjectUnknown}},
		{"participant:abc", Subject{Kind: SubjectUnknown}},
		{"robot:3", Subject{Kind: SubjectUnknown}},
		{"", Subject{Kind: SubjectUnknown}},
		{"0", Subject{Kind: SubjectUnknown}},
	}
	for _, tt := range tests {
		if got := ParseSubject(tt.sub); got != tt.want {
			t.Errorf("ParseSubject(%q) = %+v, want %+v", tt.sub, got, tt.want)
		}
	}

	if s := (Subject{Kind: SubjectParticipant, ID: 12}).String(); s != "participant:12" {
		t.Errorf("Expected participant:12, got %s", s)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	tokens := NewTokenService(testSecret, time.Hour)

	token, err := tokens.IssueAccountToken(models.User{ID: 1, Email: "test@example.com", SystemRole: models.SystemRoleUser})
	if err != nil {
		t.Fatalf("IssueAccountToken failed: %v", err)
	}
	claims, subject, err := tokens.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if subject != (Subject{Kind: SubjectAccount, ID: 1}) {
		t.Errorf("Unexpected subject %+v", subject)
	}
	if claims.Email != "test@example.com" {
		t.Errorf("Expected email test@example.com, got %s", claims.Email)
	}

	token, _ = tokens.IssueParticipantToken(models.Participant{ID: 7, GroupID: 3})
	claims, subject, err = tokens.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if subject != (Subject{Kind: SubjectParticipant, ID: 7}) || claims.GroupID != 3 {
		t.Errorf("Unexpected participant claims %+v %+v", subject, claims)
	}
}

func TestInvalidAndExpiredToken(t *testing.T) {
	tokens := NewTokenService(testSecret, time.Hour)
	if _, _, err := tokens.Verify("invalid-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken, got %v", err)
	}

	other := NewTokenService("another-secret", time.Hour)
	token, _ := other.IssueAccountToken(models.User{ID: 1})
	if _, _, err := tokens.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken for foreign signature, got %v", err)
	}

	expired := &TokenService{secret: []byte(testSecret), ttl: -time.Minute}
	token, _ = expired.IssueAccountToken(models.User{ID: 1})
	if _, _, err := tokens.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Expected ErrExpiredToken, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	db := setupTestDB(t)
	tokens := NewTokenService(testSecret, time.Hour)
	resolver := NewResolver(db, tokens)

	user := models.User{Email: "a@example.com"}
	db.Create(&user)
	participant := models.Participant{GroupID: 1, DisplayName: "guest"}
	db.Create(&participant)

	principal, err := resolver.Resolve("")
	if principal != nil || err != nil {
		t.Errorf("Expected anonymous principal, got %v %v", principal, err)
	}

	token, _ := tokens.IssueAccountToken(user)
	principal, err = resolver.Resolve(token)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if account, ok := principal.(AccountPrincipal); !ok || account.User.ID != user.ID {
		t.Errorf("Expected account principal, got %#v", principal)
	}

	token, _ = tokens.IssueParticipantToken(participant)
	principal, err = resolver.Resolve(token)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if principal.Kind() != SubjectParticipant {
		t.Errorf("Expected participant principal, got %s", principal.Kind())
	}

	// subject that no longer exists
	db.Delete(&participant)
	if _, err := resolver.Resolve(token); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("Expected ErrInvalidCredential for deleted participant, got %v", err)
	}
}

func TestRequireMember(t *testing.T) {
	db := setupTestDB(t)

	group := models.Group{Code: "AAAAAA", Phase: models.PhaseGenreNomination}
	other := models.Group{Code: "BBBBBB", Phase: models.PhaseGenreNomination}
	db.Create(&group)
	db.Create(&other)
	user := models.User{Email: "a@example.com"}
	db.Create(&user)
	outsider := models.User{Email: "b@example.com"}
	db.Create(&outsider)

	member := models.Participant{GroupID: group.ID, AccountID: &user.ID, DisplayName: "a"}
	db.Create(&member)
	guest := models.Participant{GroupID: other.ID, DisplayName: "guest"}
	db.Create(&guest)

	if p, err := RequireMember(db, &group, AccountPrincipal{User: user}); err != nil || p.ID != member.ID {
		t.Errorf("Expected member row, got %v %v", p, err)
	}
	if _, err := RequireMember(db, &group, AccountPrincipal{User: outsider}); !errors.Is(err, ErrNotAMember) {
		t.Errorf("Expected ErrNotAMember, got %v", err)
	}
	if _, err := RequireMember(db, &group, ParticipantPrincipal{Participant: guest}); !errors.Is(err, ErrWrongGroup) {
		t.Errorf("Expected ErrWrongGroup, got %v", err)
	}
	if p, err := RequireMember(db, &other, ParticipantPrincipal{Participant: guest}); err != nil || p.ID != guest.ID {
		t.Errorf("Expected guest row, got %v %v", p, err)
	}
	if _, err := RequireMember(db, &group, nil); !errors.Is(err, ErrAuthRequired) {
		t.Errorf("Expected ErrAuthRequired, got %v", err)
	}
}

func TestRegister(t *testing.T) {
	db := setupTestDB(t)
	router, _ := setupTestRouter(db)

	resp := postJSON(router, "/auth/register", RegisterRequest{Email: "Test@Example.com", Password: "password123"})

	if resp.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var response UserResponse
	json.Unmarshal(resp.Body.Bytes(), &response)

	if response.ID == 0 {
		t.Error("Expected id in response")
	}
	if response.Email != "test@example.com" {
		t.Errorf("Expected email test@example.com, got %s", response.Email)
	}
}

func TestRegisterPasswordLength(t *testing.T) {
	db := setupTestDB(t)
	router, _ := setupTestRouter(db)

	for _, password := range []string{"short", "this-password-is-way-too-long-for-us"} {
		resp := postJSON(router, "/auth/register", RegisterRequest{Email: "test@example.com", Password: password})
		if resp.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400 for password of length %d, got %d", len(password), resp.Code)
		}
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	db := setupTestDB(t)
	router, _ := setupTestRouter(db)

	body := RegisterRequest{Email: "test@example.com", Password: "password123"}
	postJSON(router, "/auth/register", body)
	resp := postJSON(router, "/auth/register", body)

	if resp.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", resp.Code)
	}
}

func TestLogin(t *testing.T) {
	db := setupTestDB(t)
	router, _ := setupTestRouter(db)

	postJSON(router, "/auth/register", RegisterRequest{Email: "test@example.com", Password: "password123"})
	resp := postJSON(router, "/auth/login", LoginRequest{Email: "test@example.com", Password: "password123"})

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var response TokenResponse
	json.Unmarshal(resp.Body.Bytes(), &response)

	if response.AccessToken == "" {
		t.Error("Expected token in response")
	}
	if response.TokenType != "bearer" {
		t.Errorf("Expected token_type bearer, got %s", response.TokenType)
	}

	me := getWithToken(router, "/auth/me", response.AccessToken)
	if me.Code != http.StatusOK {
		t.Errorf("Expected status 200 from /auth/me, got %d: %s", me.Code, me.Body.String())
	}
}

func TestLoginWrongPassword(t *testing.T) {
	db := setupTestDB(t)
	router, _ := setupTestRouter(db)

	postJSON(router, "/auth/register", RegisterRequest{Email: "test@example.com", Password: "password123"})
	resp := postJSON(router, "/auth/login", LoginRequest{Email: "test@example.com", Password: "wrongpassword"})

	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.Code)
	}
}

func TestMeWithoutAuth(t *testing.T) {
	db := setupTestDB(t)
	router, _ := setupTestRouter(db)

	resp := getWithToken(router, "/auth/me", "")
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.Code)
	}

	resp = getWithToken(router, "/auth/me", "garbage")
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 for garbage token, got %d", resp.Code)
	}
}

func TestWhoAmI(t *testing.T) {
	db := setupTestDB(t)
	router, resolver := setupTestRouter(db)

	user := models.User{Email: "who@example.com"}
	db.Create(&user)
	participant := models.Participant{GroupID: 4, DisplayName: "Guest", IsHost: true}
	db.Create(&participant)

	token, _ := resolver.Tokens().IssueAccountToken(user)
	resp := getWithToken(router, "/whoami", token)
	var account WhoAmIResponse
	json.Unmarshal(resp.Body.Bytes(), &account)
	if account.Kind != SubjectAccount || account.Email != "who@example.com" {
		t.Errorf("Unexpected whoami for account: %s", resp.Body.String())
	}

	token, _ = resolver.Tokens().IssueParticipantToken(participant)
	resp = getWithToken(router, "/whoami", token)
	var guest WhoAmIResponse
	json.Unmarshal(resp.Body.Bytes(), &guest)
	if guest.Kind != SubjectParticipant || guest.GroupID != 4 || guest.DisplayName != "Guest" {
		t.Errorf("Unexpected whoami for participant: %s", resp.Body.String())
	}
	if guest.IsHost == nil || !*guest.IsHost {
		t.Error("Expected is_host true")
	}
}
