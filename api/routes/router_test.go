package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/rechargecodes-backend/internal/allocator"
	"github.com/angelmondragon/rechargecodes-backend/internal/stats"
	pkgAuth "github.com/angelmondragon/rechargecodes-backend/pkg/auth"
	"github.com/angelmondragon/rechargecodes-backend/pkg/config"
	"github.com/angelmondragon/rechargecodes-backend/pkg/db/models"
	"github.com/angelmondragon/rechargecodes-backend/pkg/enums"
	"github.com/angelmondragon/rechargecodes-backend/pkg/logger"
	"github.com/angelmondragon/rechargecodes-backend/pkg/metrics"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

type stubStats struct{}

func (stubStats) Snapshot(context.Context) (*stats.Snapshot, error) {
	return &stats.Snapshot{TotalRevenue: decimal.NewFromInt(10), Day: "2026-10-18"}, nil
}

type stubAllocator struct {
	sold bool
}

func (s stubAllocator) Sell(_ context.Context, input allocator.SellInput) (*allocator.AllocationResult, error) {
	purchase := &models.Purchase{ID: uuid.New(), PlanID: input.PlanID}
	if !s.sold {
		return &allocator.AllocationResult{Reason: allocator.ReasonCodeUnavailable, Purchase: purchase}, nil
	}
	return &allocator.AllocationResult{Success: true, Purchase: purchase, Code: &models.RechargeCode{ID: uuid.New()}}, nil
}

func (stubAllocator) AssignCodeToPending(context.Context, allocator.AssignInput) (*allocator.AssignmentResult, error) {
	return &allocator.AssignmentResult{}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "rechargecodes", ExpirationMinutes: 10},
	}
}

func newTestRouter(t *testing.T, deps Dependencies) (http.Handler, *config.Config) {
	t.Helper()
	cfg := testConfig()
	if deps.Gatherer == nil {
		reg := prometheus.NewRegistry()
		metrics.NewRechargeMetrics(reg).IncSale("sold")
		deps.Gatherer = reg
	}
	return NewRouter(cfg, logger.Nop(), deps), cfg
}

func bearer(t *testing.T, cfg *config.Config, role enums.MemberRole) string {
	t.Helper()
	payload := pkgAuth.AccessTokenPayload{UserID: uuid.New(), Role: role, JTI: uuid.NewString()}
	if role != enums.MemberRoleAdmin {
		rid := uuid.New()
		payload.ResellerID = &rid
	}
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), payload)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return "Bearer " + token
}

func TestHealthRoutes(t *testing.T) {
	router, _ := newTestRouter(t, Dependencies{DB: stubPinger{}, Redis: stubPinger{}})

	for _, path := range []string{"/health/live", "/health/ready"} {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
		if resp.Header().Get("X-Recharge-Env") != "test" {
			t.Fatalf("%s: missing env header", path)
		}
	}
}

func TestHealthReadyFailsWhenDependencyDown(t *testing.T) {
	router, _ := newTestRouter(t, Dependencies{DB: stubPinger{}, Redis: stubPinger{err: context.DeadlineExceeded}})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, Dependencies{})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "recharge_sales_total") {
		t.Fatalf("expected recharge metrics in exposition, got %s", resp.Body.String())
	}
}

func TestAPIRequiresToken(t *testing.T) {
	router, _ := newTestRouter(t, Dependencies{Stats: stubStats{}})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestStatsIsAdminOnly(t *testing.T) {
	router, cfg := newTestRouter(t, Dependencies{Stats: stubStats{}})

	cases := map[enums.MemberRole]int{
		enums.MemberRoleAdmin:    http.StatusOK,
		enums.MemberRoleReseller: http.StatusForbidden,
	}
	for role, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
		req.Header.Set("Authorization", bearer(t, cfg, role))
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != want {
			t.Fatalf("role %s: expected %d got %d", role, want, resp.Code)
		}
	}
}

func TestSalesRouteStatusReflectsAllocation(t *testing.T) {
	body := `{"buyer":{"customer_id":"` + uuid.NewString() + `","payment_method":"pix","customer":{"name":"Ana"}}}`

	cases := []struct {
		name string
		sold bool
		want int
	}{
		{"sold", true, http.StatusCreated},
		{"parked", false, http.StatusAccepted},
	}
	for _, tc := range cases {
		router, cfg := newTestRouter(t, Dependencies{Allocator: stubAllocator{sold: tc.sold}})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/plans/"+uuid.NewString()+"/sales", strings.NewReader(body))
		req.Header.Set("Authorization", bearer(t, cfg, enums.MemberRoleReseller))
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != tc.want {
			t.Fatalf("%s: expected %d got %d: %s", tc.name, tc.want, resp.Code, resp.Body.String())
		}
	}
}

func TestCustomersCannotSell(t *testing.T) {
	router, cfg := newTestRouter(t, Dependencies{Allocator: stubAllocator{sold: true}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/plans/"+uuid.NewString()+"/sales", strings.NewReader(`{}`))
	req.Header.Set("Authorization", bearer(t, cfg, enums.MemberRoleCustomer))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}
