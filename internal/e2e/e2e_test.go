package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/computeledger/internal/billingrecord"
	"github.com/smallbiznis/computeledger/internal/clock"
	"github.com/smallbiznis/computeledger/internal/config"
	"github.com/smallbiznis/computeledger/internal/deployment"
	deploymentdomain "github.com/smallbiznis/computeledger/internal/deployment/domain"
	"github.com/smallbiznis/computeledger/internal/lease"
	"github.com/smallbiznis/computeledger/internal/ledger"
	"github.com/smallbiznis/computeledger/internal/migration"
	"github.com/smallbiznis/computeledger/internal/observability"
	"github.com/smallbiznis/computeledger/internal/onboarding"
	"github.com/smallbiznis/computeledger/internal/payment"
	"github.com/smallbiznis/computeledger/internal/pricing"
	"github.com/smallbiznis/computeledger/internal/scheduler"
	"github.com/smallbiznis/computeledger/internal/server"
	"github.com/smallbiznis/computeledger/internal/snapshot"
	"github.com/smallbiznis/computeledger/internal/suspension"
	suspensiondomain "github.com/smallbiznis/computeledger/internal/suspension/domain"
	"github.com/smallbiznis/computeledger/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const adminToken = "e2e-admin-token"

type testEnv struct {
	app     *fx.App
	db      *gorm.DB
	baseURL string
	httpSrv *httptest.Server
}

var env *testEnv

// The suite needs a postgres reachable through the DATABASE_* variables.
func TestMain(m *testing.M) {
	if os.Getenv("COMPUTELEDGER_E2E") != "1" {
		fmt.Fprintln(os.Stderr, "skipping e2e tests: set COMPUTELEDGER_E2E=1")
		os.Exit(0)
	}
	gin.SetMode(gin.TestMode)
	setDefaultEnv()

	var err error
	env, err = startEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start test environment:", err)
		os.Exit(1)
	}

	code := m.Run()
	env.shutdown()
	os.Exit(code)
}

func TestE2E_HealthCheck(t *testing.T) {
	resp, _ := doJSON(t, http.MethodGet, "/health", nil, false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
}

func TestE2E_UsageChargeSuspendAndRecover(t *testing.T) {
	resetDatabase(t, env.db)

	resp, body := doJSON(t, http.MethodPost, "/admin/presets", map[string]any{
		"name":           "e2e-small",
		"cpu_millicores": 500,
		"memory_mb":      512,
		"currency":       "UZS",
		"monthly_price":  "72000",
	}, true)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create preset: %d: %s", resp.StatusCode, string(body))
	}
	presetID := mustParseID(t, dataField(t, body, "id"))

	resp, body = doJSON(t, http.MethodPost, "/admin/tenants", map[string]any{"tenant_id": "tenant-e2e"}, true)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create tenant: %d: %s", resp.StatusCode, string(body))
	}

	now := time.Now().UTC()
	if err := env.db.Create(&deploymentdomain.Deployment{
		ID:              "dep-e2e",
		TenantID:        "tenant-e2e",
		PresetID:        presetID,
		DesiredReplicas: 1,
		Status:          deploymentdomain.StatusRunning,
		CreatedAt:       now.Add(-10 * time.Hour),
	}).Error; err != nil {
		t.Fatalf("insert deployment: %v", err)
	}

	runJob(t, scheduler.JobSnapshot)
	if n := countRows(t, "billing_records", "deployment_id = ?", "dep-e2e"); n != 3 {
		t.Fatalf("expected 3 billing records, got %d", n)
	}
	// A second run finds every period already billed.
	runJob(t, scheduler.JobSnapshot)
	if n := countRows(t, "transactions", "tenant_id = ? AND type = ?", "tenant-e2e", "usage_charge"); n != 3 {
		t.Fatalf("expected 3 usage charges, got %d", n)
	}
	assertBalance(t, "tenant-e2e", decimal.NewFromInt(-300))

	runJob(t, scheduler.JobSuspensionSweep)
	assertSuspension(t, "tenant-e2e", suspensiondomain.StatusSuspended)

	resp, body = doJSON(t, http.MethodPost, "/admin/payments/events", map[string]any{
		"provider":    "click",
		"external_id": "pay_e2e_1",
		"tenant_id":   "tenant-e2e",
		"amount":      "1000",
		"currency":    "UZS",
		"occurred_at": now.Format(time.RFC3339),
	}, true)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("payment event: %d: %s", resp.StatusCode, string(body))
	}
	assertBalance(t, "tenant-e2e", decimal.NewFromInt(700))

	runJob(t, scheduler.JobSuspensionSweep)
	assertSuspension(t, "tenant-e2e", suspensiondomain.StatusActive)

	resp, body = doJSON(t, http.MethodGet, "/admin/balances/tenant-e2e/verify", nil, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify balance: %d: %s", resp.StatusCode, string(body))
	}
	if dataField(t, body, "consistent") != "true" {
		t.Fatalf("expected consistent balance: %s", string(body))
	}
}

func startEnv() (*testEnv, error) {
	var (
		srv    *server.Server
		dbConn *gorm.DB
		cfg    config.Config
	)

	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(func(cfg config.Config) (*snowflake.Node, error) {
			return snowflake.NewNode(cfg.NodeID)
		}),
		db.Module,
		migration.Module,
		clock.Module,
		lease.Module,
		pricing.Module,
		deployment.Module,
		billingrecord.Module,
		ledger.Module,
		snapshot.Module,
		suspension.Module,
		onboarding.Module,
		payment.Module,
		scheduler.Module,
		server.Module,
		fx.Populate(&srv, &dbConn, &cfg),
		fx.NopLogger,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return nil, err
	}

	if !strings.EqualFold(strings.TrimSpace(cfg.DBType), db.DialectPostgres) {
		_ = app.Stop(context.Background())
		return nil, fmt.Errorf("expected postgres db, got %s", cfg.DBType)
	}

	httpSrv := httptest.NewServer(srv.Engine())
	return &testEnv{
		app:     app,
		db:      dbConn,
		baseURL: httpSrv.URL,
		httpSrv: httpSrv,
	}, nil
}

func (e *testEnv) shutdown() {
	if e == nil {
		return
	}
	if e.httpSrv != nil {
		e.httpSrv.Close()
	}
	if e.app != nil {
		_ = e.app.Stop(context.Background())
	}
}

func setDefaultEnv() {
	setEnvIfEmpty("ENVIRONMENT", "test")
	setEnvIfEmpty("LOG_LEVEL", "error")
	setEnvIfEmpty("HTTP_ADDR", "127.0.0.1:0")
	setEnvIfEmpty("ADMIN_API_TOKEN", adminToken)
	setEnvIfEmpty("DEFAULT_CURRENCY", "UZS")
	setEnvIfEmpty("BILLING_SNAPSHOT_SCHEDULE", "@every 24h")
	setEnvIfEmpty("SUSPENSION_SWEEP_SCHEDULE", "@every 24h")
	setEnvIfEmpty("ONBOARDING_POLL_SCHEDULE", "@every 24h")
}

func setEnvIfEmpty(key, value string) {
	if strings.TrimSpace(os.Getenv(key)) != "" {
		return
	}
	_ = os.Setenv(key, value)
}

func resetDatabase(t *testing.T, dbConn *gorm.DB) {
	t.Helper()
	type tableRow struct {
		Name string `gorm:"column:tablename"`
	}
	var rows []tableRow
	if err := dbConn.Raw(
		`SELECT tablename FROM pg_tables WHERE schemaname = 'public' AND tablename <> 'schema_migrations'`,
	).Scan(&rows).Error; err != nil {
		t.Fatalf("list tables: %v", err)
	}

	tables := make([]string, 0, len(rows))
	for _, row := range rows {
		if strings.TrimSpace(row.Name) != "" {
			tables = append(tables, `"`+row.Name+`"`)
		}
	}
	if len(tables) == 0 {
		return
	}
	if err := dbConn.Exec("TRUNCATE TABLE " + strings.Join(tables, ", ") + " CASCADE").Error; err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func runJob(t *testing.T, name string) {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, "/admin/jobs/"+name+"/run", nil, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("run job %s: %d: %s", name, resp.StatusCode, string(body))
	}
}

func assertBalance(t *testing.T, tenantID string, want decimal.Decimal) {
	t.Helper()
	resp, body := doJSON(t, http.MethodGet, "/api/balances/"+tenantID, nil, false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get balance: %d: %s", resp.StatusCode, string(body))
	}
	got, err := decimal.NewFromString(dataField(t, body, "amount"))
	if err != nil {
		t.Fatalf("parse amount: %v", err)
	}
	if !got.Equal(want) {
		t.Fatalf("expected balance %s, got %s", want, got)
	}
}

func assertSuspension(t *testing.T, tenantID string, want suspensiondomain.Status) {
	t.Helper()
	var row suspensiondomain.TenantSuspension
	if err := env.db.Where("tenant_id = ?", tenantID).First(&row).Error; err != nil {
		t.Fatalf("load suspension: %v", err)
	}
	if row.Status != want {
		t.Fatalf("expected suspension status %s, got %s", want, row.Status)
	}
}

func countRows(t *testing.T, table, where string, args ...any) int64 {
	t.Helper()
	var count int64
	if err := env.db.Table(table).Where(where, args...).Count(&count).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}

func mustParseID(t *testing.T, value string) snowflake.ID {
	t.Helper()
	id, err := snowflake.ParseString(value)
	if err != nil {
		t.Fatalf("parse id %q: %v", value, err)
	}
	return id
}

// dataField returns data.<key> of a response envelope as a string.
func dataField(t *testing.T, body []byte, key string) string {
	t.Helper()
	var envelope struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decode response: %v: %s", err, string(body))
	}
	raw, ok := envelope.Data[key]
	if !ok {
		t.Fatalf("missing data.%s: %s", key, string(body))
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func doJSON(t *testing.T, method, path string, payload any, admin bool) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("encode json: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, env.baseURL+path, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin {
		req.Header.Set("Authorization", "Bearer "+adminToken)
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, data
}
