package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v4"
	"github.com/shorelabs/textgate/internal/admission"
	apikeydomain "github.com/shorelabs/textgate/internal/apikey/domain"
	"github.com/shorelabs/textgate/internal/config"
	coupondomain "github.com/shorelabs/textgate/internal/coupon/domain"
	"github.com/shorelabs/textgate/internal/observability"
	"github.com/shorelabs/textgate/internal/sms"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testJWTSecret = "test-secret"

type fakeKeyService struct {
	key       *apikeydomain.APIKey
	withinCap bool

	created   []apikeydomain.CreateRequest
	logged    []apikeydomain.LogUsageRequest
	stats     []apikeydomain.UsageStat
	ownerKeys []apikeydomain.APIKey

	nextEntryID snowflake.ID
}

func (f *fakeKeyService) Create(ctx context.Context, req apikeydomain.CreateRequest) (*apikeydomain.APIKey, error) {
	if req.UserID == "" {
		return nil, apikeydomain.ErrInvalidOwner
	}
	if req.KeyName == "" {
		return nil, apikeydomain.ErrInvalidName
	}
	f.created = append(f.created, req)
	token, err := apikeydomain.GenerateToken()
	if err != nil {
		return nil, err
	}
	limit := req.RateLimit
	if limit <= 0 {
		limit = 100
	}
	return &apikeydomain.APIKey{
		ID:        snowflake.ID(42),
		UserID:    req.UserID,
		KeyName:   req.KeyName,
		Key:       token,
		IsActive:  true,
		RateLimit: limit,
	}, nil
}

func (f *fakeKeyService) Validate(ctx context.Context, token string) *apikeydomain.APIKey {
	if f.key == nil || !f.key.IsActive || f.key.Key != token {
		return nil
	}
	return f.key
}

func (f *fakeKeyService) Lookup(ctx context.Context, token string) *apikeydomain.APIKey {
	if f.key == nil || f.key.Key != token {
		return nil
	}
	return f.key
}

func (f *fakeKeyService) CheckRateLimit(ctx context.Context, keyID snowflake.ID, limit int) bool {
	return f.withinCap
}

func (f *fakeKeyService) LogUsage(ctx context.Context, req apikeydomain.LogUsageRequest) (*apikeydomain.SMSLog, error) {
	f.logged = append(f.logged, req)
	entry := &apikeydomain.SMSLog{
		APIKeyID:    req.KeyID,
		PhoneNumber: req.PhoneNumber,
		Message:     req.Message,
		Status:      req.Status,
	}
	if req.EntryID == 0 {
		f.nextEntryID++
		entry.ID = f.nextEntryID
	} else {
		entry.ID = req.EntryID
	}
	return entry, nil
}

func (f *fakeKeyService) ListByOwner(ctx context.Context, userID string) ([]apikeydomain.APIKey, error) {
	return f.ownerKeys, nil
}

func (f *fakeKeyService) Deactivate(ctx context.Context, id snowflake.ID, userID string) (bool, error) {
	return true, nil
}

func (f *fakeKeyService) Delete(ctx context.Context, id snowflake.ID, userID string) (bool, error) {
	return true, nil
}

func (f *fakeKeyService) UsageStats(ctx context.Context, keyID snowflake.ID, days int) ([]apikeydomain.UsageStat, error) {
	return f.stats, nil
}

type fakeCouponService struct {
	applyValue float64
	applyErr   error
	created    []coupondomain.CreateRequest
}

func (f *fakeCouponService) Create(ctx context.Context, req coupondomain.CreateRequest) (*coupondomain.Coupon, error) {
	f.created = append(f.created, req)
	return &coupondomain.Coupon{
		ID:         snowflake.ID(7),
		Code:       req.Code,
		Value:      req.Value,
		UsageLimit: req.UsageLimit,
		IsActive:   true,
	}, nil
}

func (f *fakeCouponService) Apply(ctx context.Context, code string) (float64, error) {
	if f.applyErr != nil {
		return 0, f.applyErr
	}
	return f.applyValue, nil
}

func (f *fakeCouponService) List(ctx context.Context) ([]coupondomain.Coupon, error) {
	return nil, nil
}

func (f *fakeCouponService) Activate(ctx context.Context, id snowflake.ID) (bool, error) {
	return true, nil
}

func (f *fakeCouponService) Deactivate(ctx context.Context, id snowflake.ID) (bool, error) {
	return true, nil
}

func (f *fakeCouponService) Delete(ctx context.Context, id snowflake.ID) (bool, error) {
	return true, nil
}

type fakeSender struct {
	result *sms.Result
	err    error
	calls  int
}

func (f *fakeSender) Send(ctx context.Context, phoneNumber, message string) (*sms.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTestServer(t *testing.T, keys *fakeKeyService, coupons *fakeCouponService, sender *fakeSender) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := openServerTestDB(t)
	log := zap.NewNop()
	metrics := observability.New()
	engine := NewEngine(log, metrics)

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	return NewServer(ServerParams{
		Gin:          engine,
		Cfg:          config.Config{AuthJWTSecret: testJWTSecret},
		Log:          log,
		DB:           db,
		GenID:        node,
		KeySvc:       keys,
		CouponSvc:    coupons,
		AdmissionSvc: admission.New(admission.Params{Log: log, Keys: keys}),
		Sender:       sender,
		Metrics:      metrics,
	})
}

func openServerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := db.Exec(`CREATE TABLE users (
		id TEXT PRIMARY KEY,
		email TEXT,
		role TEXT NOT NULL DEFAULT 'user'
	)`).Error; err != nil {
		t.Fatalf("create users: %v", err)
	}

	return db
}

func seedUser(t *testing.T, s *Server, id, role string) {
	t.Helper()
	if err := s.db.Exec(
		`INSERT INTO users (id, email, role) VALUES (?, ?, ?)`,
		id,
		id+"@example.com",
		role,
	).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func signToken(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func doJSON(s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	return rec
}

func decodeErrorType(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v (%s)", err, rec.Body.String())
	}
	return resp.Error.Type
}

func activeKey() *apikeydomain.APIKey {
	return &apikeydomain.APIKey{
		ID:        snowflake.ID(42),
		UserID:    "user-1",
		KeyName:   "test",
		Key:       "sms_testkey",
		IsActive:  true,
		RateLimit: 100,
	}
}

func TestSendSMSDelivered(t *testing.T) {
	keys := &fakeKeyService{key: activeKey(), withinCap: true}
	sender := &fakeSender{result: &sms.Result{Delivered: true, MessageID: "gw-1"}}
	s := newTestServer(t, keys, &fakeCouponService{}, sender)

	req := httptest.NewRequest(http.MethodPost, "/api/sms/send", bytes.NewReader([]byte(
		`{"phone_number":"+15551230001","message":"hello"}`,
	)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", "sms_testkey")

	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp sendSMSResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "sent" {
		t.Fatalf("expected status sent, got %q", resp.Status)
	}
	if resp.MessageID != "gw-1" {
		t.Fatalf("expected gateway message id, got %q", resp.MessageID)
	}

	// Pending insert followed by terminal finalize.
	if len(keys.logged) != 2 {
		t.Fatalf("expected 2 log calls, got %d", len(keys.logged))
	}
	if keys.logged[0].Status != apikeydomain.SMSStatusPending || keys.logged[0].EntryID != 0 {
		t.Fatalf("first log call should insert pending, got %+v", keys.logged[0])
	}
	if keys.logged[1].Status != apikeydomain.SMSStatusSent || keys.logged[1].EntryID == 0 {
		t.Fatalf("second log call should finalize sent, got %+v", keys.logged[1])
	}
}

func TestSendSMSCompatQueryForm(t *testing.T) {
	keys := &fakeKeyService{key: activeKey(), withinCap: true}
	sender := &fakeSender{result: &sms.Result{Delivered: true}}
	s := newTestServer(t, keys, &fakeCouponService{}, sender)

	req := httptest.NewRequest(http.MethodGet,
		"/api/sms/send?api_key=sms_testkey&phone_number=%2B15551230001&message=hi", nil)
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if sender.calls != 1 {
		t.Fatalf("expected 1 gateway call, got %d", sender.calls)
	}
}

func TestSendSMSAdmissionDenials(t *testing.T) {
	cases := []struct {
		name       string
		keys       *fakeKeyService
		token      string
		wantStatus int
		wantType   string
	}{
		{
			name:       "unknown key",
			keys:       &fakeKeyService{},
			token:      "sms_missing",
			wantStatus: http.StatusUnauthorized,
			wantType:   "invalid_key",
		},
		{
			name: "inactive key",
			keys: &fakeKeyService{key: &apikeydomain.APIKey{
				ID: 1, Key: "sms_testkey", IsActive: false,
			}},
			token:      "sms_testkey",
			wantStatus: http.StatusForbidden,
			wantType:   "inactive_key",
		},
		{
			name:       "rate limited",
			keys:       &fakeKeyService{key: activeKey(), withinCap: false},
			token:      "sms_testkey",
			wantStatus: http.StatusTooManyRequests,
			wantType:   "rate_limited",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sender := &fakeSender{result: &sms.Result{Delivered: true}}
			s := newTestServer(t, tc.keys, &fakeCouponService{}, sender)

			req := httptest.NewRequest(http.MethodPost, "/api/sms/send", bytes.NewReader([]byte(
				`{"phone_number":"+15551230001","message":"hello"}`,
			)))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("x-api-key", tc.token)

			rec := httptest.NewRecorder()
			s.Engine().ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
			if got := decodeErrorType(t, rec); got != tc.wantType {
				t.Fatalf("expected error type %q, got %q", tc.wantType, got)
			}
			if sender.calls != 0 {
				t.Fatalf("denied request must not reach the gateway, got %d calls", sender.calls)
			}
		})
	}
}

func TestSendSMSGatewayRejection(t *testing.T) {
	keys := &fakeKeyService{key: activeKey(), withinCap: true}
	sender := &fakeSender{result: &sms.Result{Delivered: false, Metadata: map[string]any{"error": "bad number"}}}
	s := newTestServer(t, keys, &fakeCouponService{}, sender)

	req := httptest.NewRequest(http.MethodPost, "/api/sms/send", bytes.NewReader([]byte(
		`{"phone_number":"+15551230001","message":"hello"}`,
	)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", "sms_testkey")

	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", rec.Code, rec.Body.String())
	}
	if keys.logged[1].Status != apikeydomain.SMSStatusFailed {
		t.Fatalf("expected failed finalize, got %+v", keys.logged[1])
	}
}

func TestSendSMSGatewayUnavailable(t *testing.T) {
	keys := &fakeKeyService{key: activeKey(), withinCap: true}
	sender := &fakeSender{err: sms.ErrGatewayUnavailable}
	s := newTestServer(t, keys, &fakeCouponService{}, sender)

	req := httptest.NewRequest(http.MethodPost, "/api/sms/send", bytes.NewReader([]byte(
		`{"phone_number":"+15551230001","message":"hello"}`,
	)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", "sms_testkey")

	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", rec.Code, rec.Body.String())
	}
	if keys.logged[1].Status != apikeydomain.SMSStatusFailed {
		t.Fatalf("expected failed finalize, got %+v", keys.logged[1])
	}
}

func TestSendSMSValidation(t *testing.T) {
	keys := &fakeKeyService{key: activeKey(), withinCap: true}
	s := newTestServer(t, keys, &fakeCouponService{}, &fakeSender{})

	req := httptest.NewRequest(http.MethodPost, "/api/sms/send", bytes.NewReader([]byte(
		`{"message":"hello"}`,
	)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", "sms_testkey")

	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(keys.logged) != 0 {
		t.Fatal("validation failures must not write log entries")
	}
}

func TestCreateAPIKeyRequiresAuth(t *testing.T) {
	s := newTestServer(t, &fakeKeyService{}, &fakeCouponService{}, &fakeSender{})

	rec := doJSON(s, http.MethodPost, "/api/keys", "", gin.H{"key_name": "x"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	// A signed token without a subject carries no identity.
	noSub := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := noSub.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	rec = doJSON(s, http.MethodPost, "/api/keys", signed, gin.H{"key_name": "x"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for token without subject, got %d", rec.Code)
	}
}

func TestCreateAPIKeyReturnsRawTokenOnce(t *testing.T) {
	keys := &fakeKeyService{}
	s := newTestServer(t, keys, &fakeCouponService{}, &fakeSender{})
	seedUser(t, s, "user-1", "user")

	rec := doJSON(s, http.MethodPost, "/api/keys", signToken(t, "user-1"), gin.H{
		"key_name":   "production",
		"rate_limit": 50,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp createAPIKeyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Key) != len(apikeydomain.KeyPrefix)+48 {
		t.Fatalf("expected full raw token in create response, got %q", resp.Key)
	}
	if resp.RateLimit != 50 {
		t.Fatalf("expected rate limit 50, got %d", resp.RateLimit)
	}
	if len(keys.created) != 1 || keys.created[0].UserID != "user-1" {
		t.Fatalf("expected create scoped to caller, got %+v", keys.created)
	}
}

func TestListAPIKeysMasksTokens(t *testing.T) {
	keys := &fakeKeyService{
		ownerKeys: []apikeydomain.APIKey{{
			ID:        snowflake.ID(42),
			KeyName:   "prod",
			Key:       "sms_0123456789abcdef0123456789abcdef0123456789abcdef",
			IsActive:  true,
			RateLimit: 100,
		}},
	}
	s := newTestServer(t, keys, &fakeCouponService{}, &fakeSender{})

	rec := doJSON(s, http.MethodGet, "/api/keys", signToken(t, "user-1"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Keys []apiKeyView `json:"keys"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Keys) != 1 {
		t.Fatalf("expected one key, got %d", len(resp.Keys))
	}
	if resp.Keys[0].KeyHint != "sms_...cdef" {
		t.Fatalf("unexpected key hint %q", resp.Keys[0].KeyHint)
	}
}

func TestGetUsageStatsOwnershipScoped(t *testing.T) {
	keys := &fakeKeyService{
		ownerKeys: []apikeydomain.APIKey{{ID: snowflake.ID(42)}},
		stats: []apikeydomain.UsageStat{
			{Date: "2026-08-30", SMSCount: 5, SuccessCount: 4, FailedCount: 1},
		},
	}
	s := newTestServer(t, keys, &fakeCouponService{}, &fakeSender{})

	rec := doJSON(s, http.MethodGet, "/api/stats?api_key_id=42&days=7", signToken(t, "user-1"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Totals struct {
			SMSCount     int64 `json:"sms_count"`
			SuccessCount int64 `json:"success_count"`
			FailedCount  int64 `json:"failed_count"`
		} `json:"totals"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Totals.SMSCount != 5 || resp.Totals.SuccessCount != 4 || resp.Totals.FailedCount != 1 {
		t.Fatalf("unexpected totals %+v", resp.Totals)
	}

	rec = doJSON(s, http.MethodGet, "/api/stats?api_key_id=99", signToken(t, "user-1"), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a foreign key id, got %d", rec.Code)
	}
}

func TestApplyCoupon(t *testing.T) {
	coupons := &fakeCouponService{applyValue: 12.5}
	s := newTestServer(t, &fakeKeyService{}, coupons, &fakeSender{})

	rec := doJSON(s, http.MethodPost, "/api/coupons/apply", "", gin.H{"code": "save10"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Code  string  `json:"code"`
		Value float64 `json:"value"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Code != "save10" || resp.Value != 12.5 {
		t.Fatalf("unexpected apply response %+v", resp)
	}
}

func TestApplyCouponErrors(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantType string
	}{
		{"invalid", coupondomain.ErrInvalidCoupon, "invalid_coupon"},
		{"expired", coupondomain.ErrCouponExpired, "coupon_expired"},
		{"exhausted", coupondomain.ErrUsageLimitReached, "usage_limit_reached"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			coupons := &fakeCouponService{applyErr: tc.err}
			s := newTestServer(t, &fakeKeyService{}, coupons, &fakeSender{})

			rec := doJSON(s, http.MethodPost, "/api/coupons/apply", "", gin.H{"code": "X"})
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if got := decodeErrorType(t, rec); got != tc.wantType {
				t.Fatalf("expected error type %q, got %q", tc.wantType, got)
			}
		})
	}
}

func TestAdminCouponsRequireElevatedRole(t *testing.T) {
	s := newTestServer(t, &fakeKeyService{}, &fakeCouponService{}, &fakeSender{})
	seedUser(t, s, "user-1", "user")
	seedUser(t, s, "owner-1", "owner")
	seedUser(t, s, "admin-1", "admin")

	rec := doJSON(s, http.MethodPost, "/admin/coupons", signToken(t, "user-1"), gin.H{
		"code": "NEW", "value": 5, "usage_limit": 1,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for plain user, got %d: %s", rec.Code, rec.Body.String())
	}

	// Both elevated roles manage coupons.
	for _, caller := range []string{"owner-1", "admin-1"} {
		rec = doJSON(s, http.MethodPost, "/admin/coupons", signToken(t, caller), gin.H{
			"code": "NEW-" + caller, "value": 5, "usage_limit": 1,
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 for %s, got %d: %s", caller, rec.Code, rec.Body.String())
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeKeyService{}, &fakeCouponService{}, &fakeSender{})

	rec := doJSON(s, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeKeyService{}, &fakeCouponService{}, &fakeSender{})

	rec := doJSON(s, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
