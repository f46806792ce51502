package groups

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sitekeeper/sitekeeper/pkg/sitekeeper/auth"
	"github.com/sitekeeper/sitekeeper/pkg/sitekeeper/models"
	"github.com/sitekeeper/sitekeeper/pkg/sitekeeper/permissions"
	"github.com/sitekeeper/sitekeeper/pkg/sitekeeper/scope"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := db.Use(scope.New(scope.Config{})); err != nil {
		t.Fatalf("Failed to install scope plugin: %v", err)
	}
	models.AutoMigrate(db)
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, email string, role models.SystemRole) models.User {
	hash, _ := auth.HashPassword("password123")
	user := models.User{
		Email:        email,
		PasswordHash: hash,
		Name:         "Test User",
		SystemRole:   role,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

func createTestSubsite(t *testing.T, db *gorm.DB, name, slug string) models.Subsite {
	subsite := models.Subsite{Name: name, Slug: slug}
	if err := db.Create(&subsite).Error; err != nil {
		t.Fatalf("Failed to create test subsite: %v", err)
	}
	return subsite
}

// createLinkedGroup creates a group with the flag off and explicit links.
func createLinkedGroup(t *testing.T, db *gorm.DB, name string, subsiteIDs ...uint) models.SecurityGroup {
	group := models.SecurityGroup{Name: name}
	if err := db.Create(&group).Error; err != nil {
		t.Fatalf("Failed to create group: %v", err)
	}
	if err := db.Model(&group).Update("access_all_subsites", false).Error; err != nil {
		t.Fatalf("Failed to update group: %v", err)
	}
	for _, id := range subsiteIDs {
		if err := db.Create(&models.GroupSubsite{GroupID: group.ID, SubsiteID: id}).Error; err != nil {
			t.Fatalf("Failed to link group: %v", err)
		}
	}
	return group
}

func setupTestRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewHandler(db)

	groups := r.Group("/groups")
	groups.Use(auth.AuthMiddleware())
	groups.Use(auth.SubsiteMiddleware(db))
	handler.RegisterRoutes(groups)
	handler.RegisterSubsiteRoutes(groups)

	return r
}

func getAuthHeader(user models.User) string {
	token, _ := auth.GenerateToken(user.ID, user.Email, string(user.SystemRole))
	return "Bearer " + token
}

func TestCreateGroup(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "test@example.com", models.SystemRoleUser)

	body := CreateGroupRequest{
		Name:        "Test Group",
		Description: "A test group",
	}
	jsonBody, _ := json.Marshal(body)

	req, _ := http.NewRequest("POST", "/groups", bytes.NewBuffer(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(user))
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var response GroupResponse
	json.Unmarshal(resp.Body.Bytes(), &response)

	if response.Name != "Test Group" {
		t.Errorf("Expected name 'Test Group', got %s", response.Name)
	}
	if !response.AccessAllSubsites {
		t.Errorf("Group created without a subsite must default to global access")
	}
}

func TestCreateGroupOutsideSubsiteIgnoresFalseFlag(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "test@example.com", models.SystemRoleUser)

	falseFlag := false
	body := CreateGroupRequest{Name: "Test Group", AccessAllSubsites: &falseFlag}
	jsonBody, _ := json.Marshal(body)

	req, _ := http.NewRequest("POST", "/groups", bytes.NewBuffer(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(user))
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	var response GroupResponse
	json.Unmarshal(resp.Body.Bytes(), &response)

	if !response.AccessAllSubsites {
		t.Errorf("A group visible in no subsite must not be creatable from the global UI")
	}
}

func TestCreateGroupUnderSubsite(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "test@example.com", models.SystemRoleUser)
	subsite := createTestSubsite(t, db, "Store", "store")

	falseFlag := false
	body := CreateGroupRequest{Name: "Store Editors", AccessAllSubsites: &falseFlag}
	jsonBody, _ := json.Marshal(body)

	req, _ := http.NewRequest("POST", "/groups", bytes.NewBuffer(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(user))
	req.Header.Set("X-Subsite-ID", fmt.Sprintf("%d", subsite.ID))
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var response GroupResponse
	json.Unmarshal(resp.Body.Bytes(), &response)

	if response.AccessAllSubsites {
		t.Errorf("Expected the requested flag value to survive")
	}
	if len(response.SubsiteIDs) != 1 || response.SubsiteIDs[0] != subsite.ID {
		t.Errorf("Expected the group linked to subsite %d, got %v", subsite.ID, response.SubsiteIDs)
	}
}

func TestListGroupsScopedBySubsiteHeader(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "test@example.com", models.SystemRoleUser)
	one := createTestSubsite(t, db, "One", "one")
	two := createTestSubsite(t, db, "Two", "two")

	db.Create(&models.SecurityGroup{Name: "Everywhere", AccessAllSubsites: true})
	createLinkedGroup(t, db, "One Only", one.ID)
	createLinkedGroup(t, db, "Two Only", two.ID)

	req, _ := http.NewRequest("GET", "/groups", nil)
	req.Header.Set("Authorization", getAuthHeader(user))
	req.Header.Set("X-Subsite-ID", fmt.Sprintf("%d", one.ID))
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var groups []GroupResponse
	json.Unmarshal(resp.Body.Bytes(), &groups)

	if len(groups) != 2 {
		t.Errorf("Expected 2 groups visible in subsite %d, got %d", one.ID, len(groups))
	}
	for _, g := range groups {
		if g.Name == "Two Only" {
			t.Errorf("Group from another subsite leaked into the listing")
		}
	}
}

func TestListGroupsWithoutHeaderUnfiltered(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "test@example.com", models.SystemRoleUser)
	one := createTestSubsite(t, db, "One", "one")

	db.Create(&models.SecurityGroup{Name: "Everywhere", AccessAllSubsites: true})
	createLinkedGroup(t, db, "One Only", one.ID)

	req, _ := http.NewRequest("GET", "/groups", nil)
	req.Header.Set("Authorization", getAuthHeader(user))
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	var groups []GroupResponse
	json.Unmarshal(resp.Body.Bytes(), &groups)

	if len(groups) != 2 {
		t.Errorf("Expected all groups without a subsite header, got %d", len(groups))
	}
}

func TestListGroupsGlobalContext(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "test@example.com", models.SystemRoleUser)
	one := createTestSubsite(t, db, "One", "one")

	db.Create(&models.SecurityGroup{Name: "Everywhere", AccessAllSubsites: true})
	createLinkedGroup(t, db, "One Only", one.ID)

	req, _ := http.NewRequest("GET", "/groups", nil)
	req.Header.Set("Authorization", getAuthHeader(user))
	req.Header.Set("X-Subsite-ID", "0")
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	var groups []GroupResponse
	json.Unmarshal(resp.Body.Bytes(), &groups)

	if len(groups) != 1 || groups[0].Name != "Everywhere" {
		t.Errorf("Expected only the global group in the global context, got %d", len(groups))
	}
}

func TestListGroupsUnknownSubsite(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "test@example.com", models.SystemRoleUser)

	req, _ := http.NewRequest("GET", "/groups", nil)
	req.Header.Set("Authorization", getAuthHeader(user))
	req.Header.Set("X-Subsite-ID", "99")
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for an unknown subsite, got %d", resp.Code)
	}
}

func TestGetGroupFromOtherSubsite(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "test@example.com", models.SystemRoleUser)
	one := createTestSubsite(t, db, "One", "one")
	two := createTestSubsite(t, db, "Two", "two")
	group := createLinkedGroup(t, db, "Two Only", two.ID)

	// Direct lookup by ID is trusted even under another subsite's context.
	req, _ := http.NewRequest("GET", fmt.Sprintf("/groups/%d", group.ID), nil)
	req.Header.Set("Authorization", getAuthHeader(user))
	req.Header.Set("X-Subsite-ID", fmt.Sprintf("%d", one.ID))
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestUpdateGroupWithoutGrant(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "test@example.com", models.SystemRoleUser)
	one := createTestSubsite(t, db, "One", "one")
	group := createLinkedGroup(t, db, "One Only", one.ID)

	body := UpdateGroupRequest{Name: "Renamed"}
	jsonBody, _ := json.Marshal(body)

	req, _ := http.NewRequest("PUT", fmt.Sprintf("/groups/%d", group.ID), bytes.NewBuffer(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(user))
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestUpdateGroupWithGrant(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "test@example.com", models.SystemRoleUser)
	one := createTestSubsite(t, db, "One", "one")
	group := createLinkedGroup(t, db, "One Only", one.ID)
	db.Create(&models.SubsiteGrant{UserID: user.ID, SubsiteID: one.ID, Permission: permissions.ManageGroupSubsites})

	body := UpdateGroupRequest{Name: "Renamed"}
	jsonBody, _ := json.Marshal(body)

	req, _ := http.NewRequest("PUT", fmt.Sprintf("/groups/%d", group.ID), bytes.NewBuffer(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(user))
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var response GroupResponse
	json.Unmarshal(resp.Body.Bytes(), &response)
	if response.Name != "Renamed" {
		t.Errorf("Expected name 'Renamed', got %s", response.Name)
	}
}

func TestUpdateGlobalGroupWithGrantForbidden(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "test@example.com", models.SystemRoleUser)
	one := createTestSubsite(t, db, "One", "one")
	db.Create(&models.SubsiteGrant{UserID: user.ID, SubsiteID: one.ID, Permission: permissions.ManageGroupSubsites})

	// Visible everywhere, linked nowhere: only system admins may touch it.
	group := models.SecurityGroup{Name: "Everywhere", AccessAllSubsites: true}
	db.Create(&group)

	body := UpdateGroupRequest{Name: "Renamed"}
	jsonBody, _ := json.Marshal(body)

	req, _ := http.NewRequest("PUT", fmt.Sprintf("/groups/%d", group.ID), bytes.NewBuffer(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(user))
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestUpdateGroupAsSystemAdmin(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com", models.SystemRoleAdmin)

	group := models.SecurityGroup{Name: "Everywhere", AccessAllSubsites: true}
	db.Create(&group)

	body := UpdateGroupRequest{Name: "Renamed"}
	jsonBody, _ := json.Marshal(body)

	req, _ := http.NewRequest("PUT", fmt.Sprintf("/groups/%d", group.ID), bytes.NewBuffer(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(admin))
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestDeleteGroupRemovesLinks(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com", models.SystemRoleAdmin)
	one := createTestSubsite(t, db, "One", "one")
	group := createLinkedGroup(t, db, "One Only", one.ID)

	req, _ := http.NewRequest("DELETE", fmt.Sprintf("/groups/%d", group.ID), nil)
	req.Header.Set("Authorization", getAuthHeader(admin))
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var count int64
	db.Model(&models.GroupSubsite{}).Where("group_id = ?", group.ID).Count(&count)
	if count != 0 {
		t.Errorf("Expected membership rows removed with the group, got %d", count)
	}
}

func TestSetSubsitesReplacesLinks(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com", models.SystemRoleAdmin)
	one := createTestSubsite(t, db, "One", "one")
	two := createTestSubsite(t, db, "Two", "two")
	group := createLinkedGroup(t, db, "Editors", one.ID)

	body := SetSubsitesRequest{AccessAllSubsites: false, SubsiteIDs: []uint{two.ID}}
	jsonBody, _ := json.Marshal(body)

	req, _ := http.NewRequest("PUT", fmt.Sprintf("/groups/%d/subsites", group.ID), bytes.NewBuffer(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(admin))
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var response GroupResponse
	json.Unmarshal(resp.Body.Bytes(), &response)
	if len(response.SubsiteIDs) != 1 || response.SubsiteIDs[0] != two.ID {
		t.Errorf("Expected subsite set replaced with [%d], got %v", two.ID, response.SubsiteIDs)
	}
}

func TestSetSubsitesRejectsUnknownSubsite(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com", models.SystemRoleAdmin)
	group := models.SecurityGroup{Name: "Editors", AccessAllSubsites: true}
	db.Create(&group)

	body := SetSubsitesRequest{AccessAllSubsites: false, SubsiteIDs: []uint{99}}
	jsonBody, _ := json.Marshal(body)

	req, _ := http.NewRequest("PUT", fmt.Sprintf("/groups/%d/subsites", group.ID), bytes.NewBuffer(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(admin))
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestSetSubsitesRejectsZero(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com", models.SystemRoleAdmin)
	group := models.SecurityGroup{Name: "Editors", AccessAllSubsites: true}
	db.Create(&group)

	body := SetSubsitesRequest{AccessAllSubsites: false, SubsiteIDs: []uint{0}}
	jsonBody, _ := json.Marshal(body)

	req, _ := http.NewRequest("PUT", fmt.Sprintf("/groups/%d/subsites", group.ID), bytes.NewBuffer(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(admin))
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestListSubsitesForGroup(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "test@example.com", models.SystemRoleUser)
	one := createTestSubsite(t, db, "One", "one")
	group := createLinkedGroup(t, db, "Editors", one.ID)

	req, _ := http.NewRequest("GET", fmt.Sprintf("/groups/%d/subsites", group.ID), nil)
	req.Header.Set("Authorization", getAuthHeader(user))
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var links []SubsiteLinkResponse
	json.Unmarshal(resp.Body.Bytes(), &links)
	if len(links) != 1 || links[0].Slug != "one" {
		t.Errorf("Expected one link to subsite 'one', got %v", links)
	}
}
