package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"goalplay-engagement/pkg/config"
	"goalplay-engagement/pkg/health"
	"goalplay-engagement/pkg/middleware"
	"goalplay-engagement/services/badge"
	"goalplay-engagement/services/credits"
	"goalplay-engagement/services/daily"
	"goalplay-engagement/services/ledger"
	"goalplay-engagement/services/notification"
	"goalplay-engagement/services/provisioning"
	"goalplay-engagement/services/referral"
	"goalplay-engagement/services/task"
	"goalplay-engagement/services/testutil"
	"goalplay-engagement/services/xp"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

const casbinModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && (r.act == p.act || p.act == "*")
`

type api struct {
	t       *testing.T
	handler http.Handler
	clock   *testutil.Clock
}

func newAPI(t *testing.T) *api {
	t.Helper()
	models := append(ledger.Models(), badge.Models()...)
	models = append(models, daily.Models()...)
	models = append(models, referral.Models()...)
	models = append(models, task.Models()...)
	db := testutil.NewTestDB(t, models...)
	node := testutil.NewNode(t)
	clock := testutil.NewClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	cfg := config.Default()

	cs := credits.NewService(credits.ServiceParams{DB: db, Node: node, Logger: log, Now: clock.Now})
	xs := xp.NewService(xp.ServiceParams{DB: db, Node: node, Credits: cs, Notifier: notification.Nop{}, Logger: log, Now: clock.Now})
	bs := badge.NewService(badge.ServiceParams{DB: db, Node: node, XP: xs, Credits: cs, Notifier: notification.Nop{}, Config: cfg, Logger: log, Now: clock.Now})
	ds := daily.NewService(daily.ServiceParams{DB: db, Node: node, XP: xs, Credits: cs, Badges: bs, Notifier: notification.Nop{}, Logger: log, Now: clock.Now})
	rs := referral.NewService(referral.ServiceParams{DB: db, Node: node, XP: xs, Credits: cs, Badges: bs, Notifier: notification.Nop{}, Config: cfg, Logger: log, Now: clock.Now})
	ps := provisioning.NewService(provisioning.ServiceParams{DB: db, XP: xs, Credits: cs, Codes: rs, Logger: log})
	ts := task.NewService(task.Params{DB: db, Node: node, Logger: log, Now: clock.Now})

	m, err := model.NewModelFromString(casbinModel)
	require.NoError(t, err)
	e, err := casbin.NewEnforcer(m)
	require.NoError(t, err)
	_, err = e.AddPolicy("admin", "/v1/admin/*", "*")
	require.NoError(t, err)

	handler := NewRouter(RouterParams{
		Config: cfg,
		Health: health.ProvideHealth(health.HealthParams{DB: db}),
		Handler: NewHandler(HandlerParams{
			XP:           xs,
			Credits:      cs,
			Badges:       bs,
			Daily:        ds,
			Referrals:    rs,
			Provisioning: ps,
			Tasks:        ts,
		}),
		Enforcer: e,
	})

	_, err = bs.Seed(context.Background(), badge.DefaultCatalog())
	require.NoError(t, err)
	return &api{t: t, handler: handler, clock: clock}
}

func (a *api) do(method, path, userID, role string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(middleware.HeaderUserID, userID)
	}
	if role != "" {
		req.Header.Set(middleware.HeaderUserRole, role)
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func (a *api) provision(userID string) {
	a.t.Helper()
	w := a.do(http.MethodPost, "/v1/admin/users/"+userID+"/provision", "ops", "admin", nil)
	require.Equal(a.t, http.StatusOK, w.Code, w.Body.String())
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestHealthAndIdentity(t *testing.T) {
	a := newAPI(t)

	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/healthz", "", "", nil).Code)
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/readyz", "", "", nil).Code)
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/metrics", "", "", nil).Code)
	require.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/v1/me/profile", "", "", nil).Code)
}

func TestProfileAndSpend(t *testing.T) {
	a := newAPI(t)
	a.provision("u1")

	w := a.do(http.MethodPost, "/v1/admin/users/u1/credits", "ops", "admin", map[string]any{"amount": 40})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = a.do(http.MethodPost, "/v1/me/credits/spend", "u1", "", map[string]any{"amount": 100})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "INSUFFICIENT_BALANCE")

	w = a.do(http.MethodPost, "/v1/me/credits/spend", "u1", "", map[string]any{"amount": 15, "reference_id": "order-1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[ledger.Result](t, w)
	require.Equal(t, int64(25), res.NewBalance)

	w = a.do(http.MethodGet, "/v1/me/profile", "u1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"balance":25`)

	w = a.do(http.MethodGet, "/v1/me/transactions/credits?limit=1", "u1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[listResponse[ledger.Transaction]](t, w)
	require.Len(t, page.Data, 1)
	require.Equal(t, int64(-15), page.Data[0].Amount)
	require.True(t, page.PageInfo.HasMore)

	require.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/v1/me/transactions/gold", "u1", "", nil).Code)

	w = a.do(http.MethodGet, "/v1/admin/users/u1/verify/credits", "ops", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, decode[ledger.Verification](t, w).Valid)
}

func TestDailyRewardClaimTwice(t *testing.T) {
	a := newAPI(t)
	a.provision("u1")

	w := a.do(http.MethodGet, "/v1/me/daily-reward", "u1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"can_claim":true`)

	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/v1/me/daily-reward/claim", "u1", "", nil).Code)

	w = a.do(http.MethodPost, "/v1/me/daily-reward/claim", "u1", "", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "ALREADY_CLAIMED")
}

func TestReferralFlow(t *testing.T) {
	a := newAPI(t)
	a.provision("alice")
	a.provision("bob")

	w := a.do(http.MethodGet, "/v1/me/referral", "alice", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[referral.Stats](t, w)
	require.NotEmpty(t, stats.Code)

	w = a.do(http.MethodPost, "/v1/me/referral/apply", "alice", "", map[string]string{"code": stats.Code})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "SELF_REFERENCE_NOT_ALLOWED")

	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/v1/me/referral/apply", "bob", "", map[string]string{"code": stats.Code}).Code)

	w = a.do(http.MethodPost, "/v1/me/referral/apply", "bob", "", map[string]string{"code": stats.Code})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "DUPLICATE_REFERRAL")

	w = a.do(http.MethodPost, "/v1/admin/referrals/login/bob", "ops", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"advanced":true}`, w.Body.String())

	// alice earned the recruiter badge with her first successful referral
	w = a.do(http.MethodGet, "/v1/me/badges", "alice", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "recruiter")
}

func TestAdminRoutesRequireRole(t *testing.T) {
	a := newAPI(t)

	w := a.do(http.MethodPost, "/v1/admin/badges", "u1", "", map[string]any{"name": "Night Owl", "unlock_condition": map[string]any{"type": "manual"}})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(http.MethodPost, "/v1/admin/badges", "ops", "admin", map[string]any{"name": "Night Owl", "unlock_condition": map[string]any{"type": "manual"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[badge.Badge](t, w)
	require.Equal(t, "night-owl", created.Slug)

	w = a.do(http.MethodPost, "/v1/admin/badges", "ops", "admin", map[string]any{"name": "Broken", "unlock_condition": map[string]any{"type": "telepathy"}})
	require.Equal(t, http.StatusBadRequest, w.Code)

	a.provision("u1")
	w = a.do(http.MethodPost, "/v1/admin/users/u1/badges/night-owl", "ops", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.Equal(t, http.StatusNotFound, a.do(http.MethodPut, "/v1/admin/tasks/unknown/active", "ops", "admin", map[string]bool{"active": false}).Code)
}

func TestBadgeChecksFromActivityServices(t *testing.T) {
	a := newAPI(t)
	a.provision("u1")

	type checkResponse struct {
		Unlocked []badge.UnlockResult `json:"unlocked"`
	}
	slugs := func(r checkResponse) []string {
		var out []string
		for _, u := range r.Unlocked {
			out = append(out, u.Badge.Slug)
		}
		return out
	}
	check := func(role string, body map[string]any) *httptest.ResponseRecorder {
		return a.do(http.MethodPost, "/v1/admin/users/u1/badge-checks", "predictions-svc", role, body)
	}

	w := check("", map[string]any{"condition_type": "predictions", "correct_count": 1, "total_count": 1})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = check("admin", map[string]any{"condition_type": "predictions", "correct_count": 13, "total_count": 19})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, []string{"lucky_guess"}, slugs(decode[checkResponse](t, w)))

	w = check("admin", map[string]any{"condition_type": "predictions", "correct_count": 14, "total_count": 20})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, []string{"sharp_shooter"}, slugs(decode[checkResponse](t, w)))

	w = check("admin", map[string]any{"condition_type": "comments", "value": 10})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, []string{"commentator"}, slugs(decode[checkResponse](t, w)))

	w = check("admin", map[string]any{"condition_type": "comments", "value": 10})
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, decode[checkResponse](t, w).Unlocked)

	require.Equal(t, http.StatusBadRequest, check("admin", map[string]any{"condition_type": "manual"}).Code)
	require.Equal(t, http.StatusBadRequest, check("admin", map[string]any{"condition_type": "predictions", "correct_count": 5, "total_count": 2}).Code)
}
