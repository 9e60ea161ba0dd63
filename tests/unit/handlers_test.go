package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/localnerve/featherdb/internal/config"
	"github.com/localnerve/featherdb/internal/events"
	"github.com/localnerve/featherdb/internal/handlers"
	"github.com/localnerve/featherdb/internal/models"
	"github.com/localnerve/featherdb/internal/pipeline"
)

// setupTestDB creates an in-memory SQLite database for testing. Only the
// system models this package's handlers reach through GORM's query builder
// are migrated here — feather object tables need Postgres DDL synthesis
// (internal/catalog) and are exercised by the testcontainers-Postgres
// integration suite instead.
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	if err := db.AutoMigrate(&models.Feather{}, &models.Settings{}, &models.Workbook{}); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return db
}

func newHandler(db *gorm.DB) *handlers.Handler {
	return &handlers.Handler{
		DB:       db,
		Registry: pipeline.NewRegistry(),
		Hub:      events.NewHub("test-node", 8),
		Config:   &config.Config{SessionCookieName: "cookie_session"},
	}
}

func TestListModules(t *testing.T) {
	db := setupTestDB(t)

	db.Create(&models.Feather{Name: "Contact", Plural: "Contacts"})
	db.Create(&models.Feather{Name: "OrderLine", Plural: "OrderLines", IsChild: true})
	db.Create(&models.Feather{Name: "$feather", IsSystem: true})

	app := fiber.New()
	h := newHandler(db)
	app.Get("/module", h.ListModules)

	req := httptest.NewRequest("GET", "/module", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var result []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("Expected exactly one top-level module, got %d: %+v", len(result), result)
	}
	if result[0]["name"] != "Contact" {
		t.Errorf("Expected Contact, got %v", result[0]["name"])
	}
}

func TestSaveAndGetSettings(t *testing.T) {
	db := setupTestDB(t)

	app := fiber.New()
	h := newHandler(db)
	app.Put("/settings/:name", h.SaveSettings)
	app.Get("/settings/:name", h.GetSettings)

	payload, _ := json.Marshal(map[string]interface{}{"baseCurrency": "USD"})
	req := httptest.NewRequest("PUT", "/settings/general", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Failed to execute PUT: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200 on save, got %d", resp.StatusCode)
	}

	getReq := httptest.NewRequest("GET", "/settings/general", nil)
	getResp, err := app.Test(getReq)
	if err != nil {
		t.Fatalf("Failed to execute GET: %v", err)
	}
	if getResp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200 on get, got %d", getResp.StatusCode)
	}

	var got map[string]interface{}
	if err := json.NewDecoder(getResp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode settings: %v", err)
	}
	if got["baseCurrency"] != "USD" {
		t.Errorf("Expected baseCurrency USD, got %v", got["baseCurrency"])
	}
}

func TestSaveSettingsUpsertOverwritesEtag(t *testing.T) {
	db := setupTestDB(t)

	app := fiber.New()
	h := newHandler(db)
	app.Put("/settings/:name", h.SaveSettings)

	first, _ := json.Marshal(map[string]interface{}{"v": 1})
	req1 := httptest.NewRequest("PUT", "/settings/general", bytes.NewReader(first))
	req1.Header.Set("Content-Type", "application/json")
	resp1, _ := app.Test(req1)
	var r1 models.Settings
	json.NewDecoder(resp1.Body).Decode(&r1)

	second, _ := json.Marshal(map[string]interface{}{"v": 2})
	req2 := httptest.NewRequest("PUT", "/settings/general", bytes.NewReader(second))
	req2.Header.Set("Content-Type", "application/json")
	resp2, _ := app.Test(req2)
	var r2 models.Settings
	json.NewDecoder(resp2.Body).Decode(&r2)

	if r1.Etag == r2.Etag {
		t.Error("Expected a new etag on each save")
	}

	var count int64
	db.Model(&models.Settings{}).Where("name = ?", "general").Count(&count)
	if count != 1 {
		t.Errorf("Expected upsert to leave exactly one row, got %d", count)
	}
}

func TestSettingsNotFound(t *testing.T) {
	db := setupTestDB(t)

	app := fiber.New()
	h := newHandler(db)
	app.Get("/settings/:name", h.GetSettings)

	req := httptest.NewRequest("GET", "/settings/missing", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestWorkbookLifecycle(t *testing.T) {
	db := setupTestDB(t)

	app := fiber.New()
	h := newHandler(db)
	app.Put("/workbook/:name", h.SaveWorkbook)
	app.Get("/workbook/:name", h.ListOrGetWorkbook)
	app.Get("/workbooks", h.ListOrGetWorkbook)
	app.Delete("/workbook/:name", h.DeleteWorkbook)

	body, _ := json.Marshal(map[string]interface{}{"layout": "grid"})
	putReq := httptest.NewRequest("PUT", "/workbook/dashboard", bytes.NewReader(body))
	putReq.Header.Set("Content-Type", "application/json")
	if resp, err := app.Test(putReq); err != nil || resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Failed to save workbook: err=%v status=%v", err, resp)
	}

	listReq := httptest.NewRequest("GET", "/workbooks", nil)
	listResp, err := app.Test(listReq)
	if err != nil || listResp.StatusCode != fiber.StatusOK {
		t.Fatalf("Failed to list workbooks: err=%v status=%v", err, listResp)
	}
	var rows []models.Workbook
	json.NewDecoder(listResp.Body).Decode(&rows)
	if len(rows) != 1 {
		t.Fatalf("Expected 1 workbook, got %d", len(rows))
	}

	delReq := httptest.NewRequest("DELETE", "/workbook/dashboard", nil)
	delResp, err := app.Test(delReq)
	if err != nil || delResp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("Failed to delete workbook: err=%v status=%v", err, delResp)
	}

	getReq := httptest.NewRequest("GET", "/workbook/dashboard", nil)
	getResp, _ := app.Test(getReq)
	if getResp.StatusCode != fiber.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", getResp.StatusCode)
	}
}
