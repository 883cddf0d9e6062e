package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/rechargecodes-backend/api/middleware"
	"github.com/angelmondragon/rechargecodes-backend/internal/allocator"
	"github.com/angelmondragon/rechargecodes-backend/internal/codes"
	"github.com/angelmondragon/rechargecodes-backend/internal/purchases"
	"github.com/angelmondragon/rechargecodes-backend/pkg/config"
	"github.com/angelmondragon/rechargecodes-backend/pkg/db/models"
	"github.com/angelmondragon/rechargecodes-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rechargecodes-backend/pkg/errors"
	"github.com/angelmondragon/rechargecodes-backend/pkg/pagination"
)

func requestWithParams(method, target string, body io.Reader, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, body)
	rc := chi.NewRouteContext()
	for k, v := range params {
		rc.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return payload.Error.Code
}

type stubCodes struct {
	importFn func(ctx context.Context, input codes.ImportInput) (*codes.ImportResult, error)
	counts   codes.StatusCounts
}

func (s stubCodes) ImportCodes(ctx context.Context, input codes.ImportInput) (*codes.ImportResult, error) {
	if s.importFn != nil {
		return s.importFn(ctx, input)
	}
	return &codes.ImportResult{}, nil
}

func (stubCodes) FindAvailable(context.Context, uuid.UUID) (*models.RechargeCode, error) {
	return nil, nil
}

func (stubCodes) CountByStatus(context.Context, uuid.UUID, enums.RechargeCodeStatus) (int, error) {
	return 0, nil
}

func (s stubCodes) Counts(_ context.Context, planID uuid.UUID) (codes.StatusCounts, error) {
	out := s.counts
	out.PlanID = planID
	return out, nil
}

func (stubCodes) ExpireStale(context.Context, int) (int64, error) {
	return 0, nil
}

type stubPurchases struct {
	rejectFn func(ctx context.Context, input purchases.RejectInput) (*models.Purchase, error)
	pageFn   func(ctx context.Context, params pagination.Params) (*purchases.ApprovedList, error)
	pending  []models.Purchase
}

func (stubPurchases) OpenCheckout(_ context.Context, input purchases.CheckoutInput) (*models.Purchase, error) {
	return &models.Purchase{ID: uuid.New(), PlanID: input.PlanID, ResellerID: input.Buyer.ResellerID}, nil
}

func (s stubPurchases) RejectPayment(ctx context.Context, input purchases.RejectInput) (*models.Purchase, error) {
	if s.rejectFn != nil {
		return s.rejectFn(ctx, input)
	}
	return &models.Purchase{ID: input.PurchaseID}, nil
}

func (stubPurchases) Get(context.Context, uuid.UUID) (*models.Purchase, error) {
	return nil, nil
}

func (s stubPurchases) ListPendingDeliveries(context.Context) ([]models.Purchase, error) {
	return s.pending, nil
}

func (stubPurchases) ListApproved(context.Context) ([]models.Purchase, error) {
	return nil, nil
}

func (stubPurchases) ListApprovedActive(context.Context, time.Time) ([]models.Purchase, error) {
	return nil, nil
}

func (s stubPurchases) ListApprovedPage(ctx context.Context, params pagination.Params) (*purchases.ApprovedList, error) {
	if s.pageFn != nil {
		return s.pageFn(ctx, params)
	}
	return &purchases.ApprovedList{}, nil
}

func (stubPurchases) MarkReminderSent(context.Context, purchases.ReminderSentInput) (bool, error) {
	return false, nil
}

type stubAllocator struct {
	assignFn func(ctx context.Context, input allocator.AssignInput) (*allocator.AssignmentResult, error)
	sellFn   func(ctx context.Context, input allocator.SellInput) (*allocator.AllocationResult, error)
}

func (s stubAllocator) Sell(ctx context.Context, input allocator.SellInput) (*allocator.AllocationResult, error) {
	return s.sellFn(ctx, input)
}

func (s stubAllocator) AssignCodeToPending(ctx context.Context, input allocator.AssignInput) (*allocator.AssignmentResult, error) {
	return s.assignFn(ctx, input)
}

func TestImportCodesPassesBatchAndActor(t *testing.T) {
	planID := uuid.New()
	userID := uuid.New()
	svc := stubCodes{importFn: func(_ context.Context, input codes.ImportInput) (*codes.ImportResult, error) {
		if input.PlanID != planID {
			t.Fatalf("unexpected plan %s", input.PlanID)
		}
		if len(input.Codes) != 2 {
			t.Fatalf("unexpected codes %v", input.Codes)
		}
		if input.Actor == nil || input.Actor.UserID != userID {
			t.Fatalf("expected actor from context, got %+v", input.Actor)
		}
		return &codes.ImportResult{Duplicates: []string{"B"}}, nil
	}}

	req := requestWithParams(http.MethodPost, "/", strings.NewReader(`{"codes":["A","B"]}`), map[string]string{"planId": planID.String()})
	req = req.WithContext(middleware.WithIdentity(req.Context(), userID.String(), enums.MemberRoleAdmin, ""))
	resp := httptest.NewRecorder()
	ImportCodes(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
	var envelope struct {
		Data codes.ImportResult `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Duplicates) != 1 || envelope.Data.Duplicates[0] != "B" {
		t.Fatalf("unexpected duplicates %v", envelope.Data.Duplicates)
	}
}

func TestImportCodesRejectsBadInput(t *testing.T) {
	cases := []struct {
		name   string
		planID string
		body   string
	}{
		{"invalid plan id", "nope", `{"codes":["A"]}`},
		{"empty batch", uuid.NewString(), `{"codes":[]}`},
		{"unknown field", uuid.NewString(), `{"codes":["A"],"extra":true}`},
	}
	for _, tc := range cases {
		req := requestWithParams(http.MethodPost, "/", strings.NewReader(tc.body), map[string]string{"planId": tc.planID})
		resp := httptest.NewRecorder()
		ImportCodes(stubCodes{}, nil).ServeHTTP(resp, req)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", tc.name, resp.Code)
		}
	}
}

func TestCodeCounts(t *testing.T) {
	planID := uuid.New()
	svc := stubCodes{counts: codes.StatusCounts{Available: 3, Sold: 2, Expired: 1}}

	req := requestWithParams(http.MethodGet, "/", nil, map[string]string{"planId": planID.String()})
	resp := httptest.NewRecorder()
	CodeCounts(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data codes.StatusCounts `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.PlanID != planID || envelope.Data.Available != 3 || envelope.Data.Expired != 1 {
		t.Fatalf("unexpected counts %+v", envelope.Data)
	}
}

func TestSellPinsResellerFromToken(t *testing.T) {
	tokenReseller := uuid.New()
	svc := stubAllocator{sellFn: func(_ context.Context, input allocator.SellInput) (*allocator.AllocationResult, error) {
		if input.Buyer.ResellerID == nil || *input.Buyer.ResellerID != tokenReseller {
			t.Fatalf("expected reseller %s, got %v", tokenReseller, input.Buyer.ResellerID)
		}
		return &allocator.AllocationResult{Success: true, Purchase: &models.Purchase{ID: uuid.New()}}, nil
	}}

	body := `{"buyer":{"customer_id":"` + uuid.NewString() + `","reseller_id":"` + uuid.NewString() + `","payment_method":"pix","customer":{"name":"Ana"}}}`
	req := requestWithParams(http.MethodPost, "/", strings.NewReader(body), map[string]string{"planId": uuid.NewString()})
	req = req.WithContext(middleware.WithIdentity(req.Context(), uuid.NewString(), enums.MemberRoleReseller, tokenReseller.String()))
	resp := httptest.NewRecorder()
	Sell(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestSellScopesOpenCheckoutToTokenReseller(t *testing.T) {
	tokenReseller := uuid.New()
	purchaseID := uuid.New()
	var got allocator.SellInput
	svc := stubAllocator{sellFn: func(_ context.Context, input allocator.SellInput) (*allocator.AllocationResult, error) {
		got = input
		return &allocator.AllocationResult{Success: true, Purchase: &models.Purchase{ID: purchaseID}}, nil
	}}

	body := `{"purchase_id":"` + purchaseID.String() + `"}`
	req := requestWithParams(http.MethodPost, "/", strings.NewReader(body), map[string]string{"planId": uuid.NewString()})
	req = req.WithContext(middleware.WithIdentity(req.Context(), uuid.NewString(), enums.MemberRoleMasterReseller, tokenReseller.String()))
	resp := httptest.NewRecorder()
	Sell(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if got.ResellerScope == nil || *got.ResellerScope != tokenReseller {
		t.Fatalf("expected scope %s, got %v", tokenReseller, got.ResellerScope)
	}
	if got.PurchaseID == nil || *got.PurchaseID != purchaseID {
		t.Fatalf("expected purchase %s, got %v", purchaseID, got.PurchaseID)
	}
}

func TestSellWithoutResellerClaimDropsBodyReseller(t *testing.T) {
	var got allocator.SellInput
	svc := stubAllocator{sellFn: func(_ context.Context, input allocator.SellInput) (*allocator.AllocationResult, error) {
		got = input
		return &allocator.AllocationResult{Success: true, Purchase: &models.Purchase{ID: uuid.New()}}, nil
	}}

	body := `{"buyer":{"customer_id":"` + uuid.NewString() + `","reseller_id":"` + uuid.NewString() + `","payment_method":"pix","customer":{"name":"Ana"}}}`
	req := requestWithParams(http.MethodPost, "/", strings.NewReader(body), map[string]string{"planId": uuid.NewString()})
	req = req.WithContext(middleware.WithIdentity(req.Context(), uuid.NewString(), enums.MemberRoleReseller, ""))
	resp := httptest.NewRecorder()
	Sell(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
	if got.Buyer.ResellerID != nil {
		t.Fatalf("expected body reseller to be dropped, got %v", got.Buyer.ResellerID)
	}
	if got.ResellerScope == nil || *got.ResellerScope != uuid.Nil {
		t.Fatalf("expected nil-uuid scope, got %v", got.ResellerScope)
	}
}

func TestSellRequiresBuyerWithoutPurchase(t *testing.T) {
	svc := stubAllocator{sellFn: func(context.Context, allocator.SellInput) (*allocator.AllocationResult, error) {
		t.Fatal("service must not be called")
		return nil, nil
	}}
	req := requestWithParams(http.MethodPost, "/", strings.NewReader(`{}`), map[string]string{"planId": uuid.NewString()})
	resp := httptest.NewRecorder()
	Sell(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"buyer"`) {
		t.Fatalf("expected buyer field in details, got %s", resp.Body.String())
	}
}

func TestSellSurfacesServiceErrors(t *testing.T) {
	svc := stubAllocator{sellFn: func(context.Context, allocator.SellInput) (*allocator.AllocationResult, error) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, allocator.ErrPlanNotFound, "plan not found")
	}}

	body := `{"buyer":{"customer_id":"` + uuid.NewString() + `","payment_method":"pix","customer":{"name":"Ana"}}}`
	req := requestWithParams(http.MethodPost, "/", strings.NewReader(body), map[string]string{"planId": uuid.NewString()})
	resp := httptest.NewRecorder()
	Sell(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
	if code := decodeError(t, resp); code != string(pkgerrors.CodeNotFound) {
		t.Fatalf("unexpected error code %s", code)
	}
}

func TestOpenCheckoutAdminKeepsBuyerReseller(t *testing.T) {
	bodyReseller := uuid.New()
	body := `{"buyer":{"customer_id":"` + uuid.NewString() + `","reseller_id":"` + bodyReseller.String() + `","payment_method":"credit_card","customer":{"name":"Ana"}}}`
	req := requestWithParams(http.MethodPost, "/", strings.NewReader(body), map[string]string{"planId": uuid.NewString()})
	req = req.WithContext(middleware.WithIdentity(req.Context(), uuid.NewString(), enums.MemberRoleAdmin, ""))
	resp := httptest.NewRecorder()
	OpenCheckout(stubPurchases{}, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
	var envelope struct {
		Data models.Purchase `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.ResellerID == nil || *envelope.Data.ResellerID != bodyReseller {
		t.Fatalf("expected body reseller to be kept, got %v", envelope.Data.ResellerID)
	}
}

func TestRejectPaymentRequiresReason(t *testing.T) {
	req := requestWithParams(http.MethodPost, "/", strings.NewReader(`{}`), map[string]string{"purchaseId": uuid.NewString()})
	resp := httptest.NewRecorder()
	RejectPayment(stubPurchases{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestRejectPaymentMapsStateConflict(t *testing.T) {
	svc := stubPurchases{rejectFn: func(context.Context, purchases.RejectInput) (*models.Purchase, error) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "purchase is not pending")
	}}
	req := requestWithParams(http.MethodPost, "/", strings.NewReader(`{"reason":"card declined"}`), map[string]string{"purchaseId": uuid.NewString()})
	resp := httptest.NewRecorder()
	RejectPayment(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}

func TestRejectPaymentScopes(t *testing.T) {
	tokenReseller := uuid.New()
	cases := []struct {
		name string
		role enums.MemberRole
		want *uuid.UUID
	}{
		{name: "admin is unrestricted", role: enums.MemberRoleAdmin},
		{name: "reseller is pinned", role: enums.MemberRoleReseller, want: &tokenReseller},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got purchases.RejectInput
			svc := stubPurchases{rejectFn: func(_ context.Context, input purchases.RejectInput) (*models.Purchase, error) {
				got = input
				return &models.Purchase{ID: input.PurchaseID}, nil
			}}
			req := requestWithParams(http.MethodPost, "/", strings.NewReader(`{"reason":"card declined"}`), map[string]string{"purchaseId": uuid.NewString()})
			req = req.WithContext(middleware.WithIdentity(req.Context(), uuid.NewString(), tc.role, tokenReseller.String()))
			resp := httptest.NewRecorder()
			RejectPayment(svc, nil).ServeHTTP(resp, req)

			if resp.Code != http.StatusOK {
				t.Fatalf("expected 200 got %d", resp.Code)
			}
			switch {
			case tc.want == nil && got.ResellerScope != nil:
				t.Fatalf("expected no scope, got %v", *got.ResellerScope)
			case tc.want != nil && (got.ResellerScope == nil || *got.ResellerScope != *tc.want):
				t.Fatalf("expected scope %s, got %v", *tc.want, got.ResellerScope)
			}
		})
	}
}

func TestPendingDeliveries(t *testing.T) {
	svc := stubPurchases{pending: []models.Purchase{{ID: uuid.New()}, {ID: uuid.New()}}}
	resp := httptest.NewRecorder()
	PendingDeliveries(svc, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data struct {
			Purchases []models.Purchase `json:"purchases"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Purchases) != 2 {
		t.Fatalf("expected 2 purchases, got %d", len(envelope.Data.Purchases))
	}
}

func TestApprovedPurchasesPassesPagination(t *testing.T) {
	svc := stubPurchases{pageFn: func(_ context.Context, params pagination.Params) (*purchases.ApprovedList, error) {
		if params.Limit != 5 || params.Cursor != "abc" {
			t.Fatalf("unexpected params %+v", params)
		}
		return &purchases.ApprovedList{NextCursor: "next"}, nil
	}}
	resp := httptest.NewRecorder()
	ApprovedPurchases(svc, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/?limit=5&cursor=abc", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	ApprovedPurchases(svc, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/?limit=1000", nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized limit got %d", resp.Code)
	}
}

func TestAssignCode(t *testing.T) {
	purchaseID := uuid.New()
	codeID := uuid.New()
	svc := stubAllocator{assignFn: func(_ context.Context, input allocator.AssignInput) (*allocator.AssignmentResult, error) {
		if input.PurchaseID != purchaseID || input.CodeID != codeID {
			t.Fatalf("unexpected input %+v", input)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStateConflict, allocator.ErrCodeNotAvailable, "recharge code not available")
	}}

	req := requestWithParams(http.MethodPost, "/", strings.NewReader(`{"code_id":"`+codeID.String()+`"}`), map[string]string{"purchaseId": purchaseID.String()})
	resp := httptest.NewRecorder()
	AssignCode(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}

	req = requestWithParams(http.MethodPost, "/", strings.NewReader(`{}`), map[string]string{"purchaseId": purchaseID.String()})
	resp = httptest.NewRecorder()
	AssignCode(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing code id got %d", resp.Code)
	}
}

func TestHealthReadyReportsDependencyFailure(t *testing.T) {
	cfg := testConfig()
	handler := HealthReady(cfg, map[string]Pinger{"database": failingPinger{}}, nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error {
	return errors.New("connection refused")
}

func testConfig() *config.Config {
	return &config.Config{App: config.AppConfig{Env: "test"}}
}
