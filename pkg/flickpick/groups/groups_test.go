package groups

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/flickpick/pkg/flickpick/auth"
	"github.com/mikepea/flickpick/pkg/flickpick/models"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	models.AutoMigrate(db)
	return db
}

func setupTestRouter(db *gorm.DB) (*gin.Engine, *auth.Resolver) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	resolver := auth.NewResolver(db, auth.NewTokenService("test-secret", time.Hour))
	handler := NewHandler(db, resolver)
	groups := r.Group("/groups")
	groups.Use(resolver.Middleware())
	handler.RegisterRoutes(groups)
	return r, resolver
}

func createTestUser(t *testing.T, db *gorm.DB, email string) models.User {
	hash, _ := auth.HashPassword("password123")
	user := models.User{Email: email, PasswordHash: hash, SystemRole: models.SystemRoleUser}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

func accountToken(t *testing.T, resolver *auth.Resolver, user models.User) string {
	token, err := resolver.Tokens().IssueAccountToken(user)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	return token
}

func doJSON(router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf *bytes.Buffer
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		buf = bytes.NewBuffer(jsonBody)
	} else {
		buf = &bytes.Buffer{}
	}
	req, _ := http.NewRequest(method, path, buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	var v T
	if err := json.Unmarshal(resp.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to decode response %s: %v", resp.Body.String(), err)
	}
	return v
}

func createGuestGroup(t *testing.T, router *gin.Engine, name string) MembershipResponse {
	resp := doJSON(router, "POST", "/groups", "", GuestRequest{DisplayName: name})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	return decode[MembershipResponse](t, resp)
}

func joinGuest(t *testing.T, router *gin.Engine, code, name string) MembershipResponse {
	resp := doJSON(router, "POST", "/groups/"+code+"/join", "", GuestRequest{DisplayName: name})
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	return decode[MembershipResponse](t, resp)
}

func TestCreateGuestGroup(t *testing.T) {
	db := setupTestDB(t)
	router, _ := setupTestRouter(db)

	body := GuestRequest{DisplayName: "Host", StreamingServices: []string{"Netflix", "Prime Video", "Peacock"}}
	resp := doJSON(router, "POST", "/groups", "", body)
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	created := decode[MembershipResponse](t, resp)
	if created.AccessToken == "" || created.TokenType != "bearer" {
		t.Error("Expected a participant token for a guest host")
	}
	if len(created.Group.Code) != 6 {
		t.Errorf("Expected 6 character code, got %q", created.Group.Code)
	}
	if created.Group.Phase != models.PhaseGenreNomination {
		t.Errorf("Expected phase genre_nomination, got %s", created.Group.Phase)
	}
	if len(created.Group.Participants) != 1 || !created.Group.Participants[0].IsHost {
		t.Fatalf("Expected a single host participant, got %+v", created.Group.Participants)
	}
	services := created.Group.Participants[0].StreamingServices
	if len(services) != 2 || services[0] != "netflix" || services[1] != "amazon" {
		t.Errorf("Expected normalized services [netflix amazon], got %v", services)
	}
}

func TestCreateGuestRequiresDisplayName(t *testing.T) {
	db := setupTestDB(t)
	router, _ := setupTestRouter(db)

	resp := doJSON(router, "POST", "/groups", "", GuestRequest{})
	if resp.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected status 422, got %d", resp.Code)
	}
	resp = doJSON(router, "POST", "/groups", "", nil)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected status 422 without body, got %d", resp.Code)
	}
}

func TestCreateAccountSingleActiveGroup(t *testing.T) {
	db := setupTestDB(t)
	router, resolver := setupTestRouter(db)
	user := createTestUser(t, db, "host@example.com")
	token := accountToken(t, resolver, user)

	resp := doJSON(router, "POST", "/groups", token, nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	created := decode[MembershipResponse](t, resp)
	if created.AccessToken != "" {
		t.Error("Expected no participant token for an account")
	}
	if created.Group.Participants[0].DisplayName != "host" {
		t.Errorf("Expected display name from email, got %s", created.Group.Participants[0].DisplayName)
	}

	resp = doJSON(router, "POST", "/groups", token, nil)
	if resp.Code != http.StatusConflict {
		t.Fatalf("Expected status 409, got %d", resp.Code)
	}
	body := decode[map[string]any](t, resp)
	if body["code"] != "already_in_active_group" || body["group_code"] != created.Group.Code {
		t.Errorf("Expected already_in_active_group with code %s, got %v", created.Group.Code, body)
	}

	// a finalized group no longer counts
	db.Model(&models.Group{}).Where("code = ?", created.Group.Code).Update("phase", models.PhaseFinalized)
	resp = doJSON(router, "POST", "/groups", token, nil)
	if resp.Code != http.StatusCreated {
		t.Errorf("Expected status 201 after finalization, got %d", resp.Code)
	}
}

func TestCreateWithParticipantToken(t *testing.T) {
	db := setupTestDB(t)
	router, _ := setupTestRouter(db)
	created := createGuestGroup(t, router, "Host")

	resp := doJSON(router, "POST", "/groups", created.AccessToken, GuestRequest{DisplayName: "Again"})
	if resp.Code != http.StatusConflict {
		t.Fatalf("Expected status 409, got %d", resp.Code)
	}
	body := decode[map[string]any](t, resp)
	if body["code"] != "participant_in_active_group" || body["role"] != "host" || body["group_code"] != created.Group.Code {
		t.Errorf("Unexpected conflict body %v", body)
	}
}

func TestJoinGroup(t *testing.T) {
	db := setupTestDB(t)
	router, resolver := setupTestRouter(db)
	created := createGuestGroup(t, router, "Host")
	code := created.Group.Code

	joined := joinGuest(t, router, code, "Guest")
	if joined.AccessToken == "" {
		t.Error("Expected a participant token for a guest")
	}
	if len(joined.Group.Participants) != 2 {
		t.Errorf("Expected 2 participants, got %d", len(joined.Group.Participants))
	}

	// participant token rejoining its own group is a no-op
	resp := doJSON(router, "POST", "/groups/"+code+"/join", joined.AccessToken, nil)
	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.Code)
	}

	user := createTestUser(t, db, "member@example.com")
	token := accountToken(t, resolver, user)
	for i := 0; i < 2; i++ {
		resp = doJSON(router, "POST", "/groups/"+code+"/join", token, nil)
		if resp.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
		}
	}
	count, _ := CountParticipants(db, created.Group.ID)
	if count != 3 {
		t.Errorf("Expected account join to be idempotent, got %d participants", count)
	}
}

func TestJoinErrors(t *testing.T) {
	db := setupTestDB(t)
	router, resolver := setupTestRouter(db)
	first := createGuestGroup(t, router, "Host A")
	second := createGuestGroup(t, router, "Host B")

	resp := doJSON(router, "POST", "/groups/NOPE00/join", "", GuestRequest{DisplayName: "x"})
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.Code)
	}

	resp = doJSON(router, "POST", "/groups/"+second.Group.Code+"/join", first.AccessToken, nil)
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for cross-group participant token, got %d", resp.Code)
	}

	resp = doJSON(router, "POST", "/groups/"+first.Group.Code+"/join", "", GuestRequest{})
	if resp.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected status 422, got %d", resp.Code)
	}

	user := createTestUser(t, db, "busy@example.com")
	token := accountToken(t, resolver, user)
	doJSON(router, "POST", "/groups/"+first.Group.Code+"/join", token, nil)
	resp = doJSON(router, "POST", "/groups/"+second.Group.Code+"/join", token, nil)
	if resp.Code != http.StatusConflict {
		t.Errorf("Expected status 409 when active elsewhere, got %d", resp.Code)
	}
}

func TestLeaveAndDisband(t *testing.T) {
	db := setupTestDB(t)
	router, _ := setupTestRouter(db)
	created := createGuestGroup(t, router, "Host")
	code := created.Group.Code
	guest := joinGuest(t, router, code, "Guest")

	resp := doJSON(router, "POST", "/groups/leave", guest.AccessToken, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	left := decode[LeaveResponse](t, resp)
	if left.Action != "left" || left.GroupCode != code {
		t.Errorf("Expected left from %s, got %+v", code, left)
	}

	// token of a removed participant no longer resolves
	resp = doJSON(router, "POST", "/groups/leave", guest.AccessToken, nil)
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 for removed participant, got %d", resp.Code)
	}

	resp = doJSON(router, "POST", "/groups/leave", created.AccessToken, nil)
	disbanded := decode[LeaveResponse](t, resp)
	if disbanded.Action != "disbanded" {
		t.Errorf("Expected disbanded, got %+v", disbanded)
	}
	if _, err := Find(db, code); err != ErrGroupNotFound {
		t.Errorf("Expected group to be deleted, got %v", err)
	}
}

func TestLeaveWithoutGroup(t *testing.T) {
	db := setupTestDB(t)
	router, resolver := setupTestRouter(db)
	user := createTestUser(t, db, "lonely@example.com")

	resp := doJSON(router, "POST", "/groups/leave", accountToken(t, resolver, user), nil)
	if resp.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", resp.Code)
	}
	resp = doJSON(router, "POST", "/groups/leave", "", nil)
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.Code)
	}
}

func TestDisbandRemovesChildren(t *testing.T) {
	db := setupTestDB(t)
	group := models.Group{Code: "DISB01", Phase: models.PhaseMovieSelection}
	db.Create(&group)
	p := models.Participant{GroupID: group.ID, DisplayName: "host", IsHost: true}
	db.Create(&p)
	db.Create(&models.GenreNomination{GroupID: group.ID, ParticipantID: p.ID, Genre: "Drama"})
	db.Create(&models.GenreVote{GroupID: group.ID, ParticipantID: p.ID, Genre: "Drama", Value: 1})
	db.Create(&models.GenreFinalized{GroupID: group.ID, Genre: "Drama"})
	candidate := models.MovieCandidate{GroupID: group.ID, Title: "Heat", Source: "tmdb"}
	db.Create(&candidate)
	db.Create(&models.MovieVote{GroupID: group.ID, ParticipantID: p.ID, CandidateID: candidate.ID, Value: 1})
	db.Create(&models.SettingVote{GroupID: group.ID, ParticipantID: p.ID, Key: models.SettingKeyVetoMode, Value: true})
	db.Model(&group).Update("current_candidate_id", candidate.ID)

	err := db.Transaction(func(tx *gorm.DB) error {
		return Disband(tx, &group)
	})
	if err != nil {
		t.Fatalf("Disband failed: %v", err)
	}

	for _, model := range []any{&models.Group{}, &models.Participant{}, &models.GenreNomination{}, &models.GenreVote{},
		&models.GenreFinalized{}, &models.MovieCandidate{}, &models.MovieVote{}, &models.SettingVote{}} {
		var count int64
		db.Model(model).Count(&count)
		if count != 0 {
			t.Errorf("Expected no %T rows after disband, got %d", model, count)
		}
	}
}

func TestSharedProviders(t *testing.T) {
	tests := []struct {
		name   string
		lists  [][]string
		expect []string
	}{
		{"common provider", [][]string{{"netflix", "hulu"}, {"hulu", "netflix", "hbo"}}, []string{"netflix", "hulu"}},
		{"someone declared none", [][]string{{"netflix"}, nil}, nil},
		{"nothing shared", [][]string{{"netflix"}, {"hbo"}}, nil},
		{"single participant", [][]string{{"amazon"}}, []string{"amazon"}},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := setupTestDB(t)
			group := models.Group{Code: "SHARE" + string(rune('A'+i)), Phase: models.PhaseGenreNomination}
			db.Create(&group)
			for _, list := range tt.lists {
				db.Create(&models.Participant{GroupID: group.ID, DisplayName: "p", Providers: datatypes.JSONSlice[string](list)})
			}

			got, err := SharedProviders(db, group.ID)
			if err != nil {
				t.Fatalf("SharedProviders failed: %v", err)
			}
			if len(got) != len(tt.expect) {
				t.Fatalf("Expected %v, got %v", tt.expect, got)
			}
			for j := range got {
				if got[j] != tt.expect[j] {
					t.Errorf("Expected %v, got %v", tt.expect, got)
				}
			}
		})
	}
}

func TestProgress(t *testing.T) {
	db := setupTestDB(t)
	router, _ := setupTestRouter(db)
	created := createGuestGroup(t, router, "Host")
	joinGuest(t, router, created.Group.Code, "Guest")

	db.Create(&models.GenreNomination{GroupID: created.Group.ID, ParticipantID: created.Group.Participants[0].ID, Genre: "Comedy"})

	resp := doJSON(router, "GET", "/groups/"+created.Group.Code+"/progress", created.AccessToken, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	progress := decode[ProgressResponse](t, resp)
	if progress.TotalParticipants != 2 || progress.NominatedCount != 1 || progress.AllNominated {
		t.Errorf("Unexpected progress %+v", progress)
	}
	if !progress.IsHost {
		t.Error("Expected host flag for the creator")
	}
	if progress.WinnerCandidate != nil {
		t.Error("Expected no winner yet")
	}

	resp = doJSON(router, "GET", "/groups/"+created.Group.Code+"/progress", "", nil)
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 without a token, got %d", resp.Code)
	}
}

func TestGetGroupRequiresMembership(t *testing.T) {
	db := setupTestDB(t)
	router, resolver := setupTestRouter(db)
	created := createGuestGroup(t, router, "Host")
	outsider := createTestUser(t, db, "outsider@example.com")

	resp := doJSON(router, "GET", "/groups/"+created.Group.Code, created.AccessToken, nil)
	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.Code)
	}
	resp = doJSON(router, "GET", "/groups/"+created.Group.Code, accountToken(t, resolver, outsider), nil)
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for non-member, got %d", resp.Code)
	}
}

func TestVetoModeVote(t *testing.T) {
	db := setupTestDB(t)
	router, _ := setupTestRouter(db)
	created := createGuestGroup(t, router, "Host")
	code := created.Group.Code
	guest := joinGuest(t, router, code, "Guest")

	resp := doJSON(router, "POST", "/groups/"+code+"/veto/vote", created.AccessToken, map[string]bool{"enable": true})
	first := decode[VetoModeResponse](t, resp)
	if first.Decided || first.Votes != 1 || first.Total != 2 {
		t.Errorf("Expected undecided after one vote, got %+v", first)
	}

	// changing a vote replaces it
	doJSON(router, "POST", "/groups/"+code+"/veto/vote", created.AccessToken, map[string]bool{"enable": false})
	doJSON(router, "POST", "/groups/"+code+"/veto/vote", created.AccessToken, map[string]bool{"enable": true})

	resp = doJSON(router, "POST", "/groups/"+code+"/veto/vote", guest.AccessToken, map[string]bool{"enable": true})
	second := decode[VetoModeResponse](t, resp)
	if !second.Decided || second.VetoEnabled == nil || !*second.VetoEnabled {
		t.Fatalf("Expected veto enabled, got %+v", second)
	}

	var participants []models.Participant
	db.Where("group_id = ?", created.Group.ID).Find(&participants)
	for _, p := range participants {
		if !p.HasVeto {
			t.Errorf("Expected participant %d to hold a veto", p.ID)
		}
	}

	resp = doJSON(router, "POST", "/groups/"+code+"/veto/vote", guest.AccessToken, map[string]bool{"enable": false})
	if resp.Code != http.StatusConflict {
		t.Errorf("Expected status 409 once decided, got %d", resp.Code)
	}

	resp = doJSON(router, "POST", "/groups/"+code+"/veto/vote", guest.AccessToken, map[string]string{})
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 without enable, got %d", resp.Code)
	}
}

func TestVetoModeTieStaysDisabled(t *testing.T) {
	db := setupTestDB(t)
	router, _ := setupTestRouter(db)
	created := createGuestGroup(t, router, "Host")
	guest := joinGuest(t, router, created.Group.Code, "Guest")

	doJSON(router, "POST", "/groups/"+created.Group.Code+"/veto/vote", created.AccessToken, map[string]bool{"enable": true})
	resp := doJSON(router, "POST", "/groups/"+created.Group.Code+"/veto/vote", guest.AccessToken, map[string]bool{"enable": false})
	result := decode[VetoModeResponse](t, resp)
	if !result.Decided || result.VetoEnabled == nil || *result.VetoEnabled {
		t.Errorf("Expected a 1-1 tie to disable vetoes, got %+v", result)
	}
}
