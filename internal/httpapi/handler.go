package httpapi

import (
	"net/http"
	"strconv"

	"goalplay-engagement/pkg/db/pagination"
	"goalplay-engagement/pkg/errutil"
	"goalplay-engagement/pkg/middleware"
	"goalplay-engagement/services/badge"
	"goalplay-engagement/services/credits"
	"goalplay-engagement/services/daily"
	"goalplay-engagement/services/ledger"
	"goalplay-engagement/services/provisioning"
	"goalplay-engagement/services/referral"
	"goalplay-engagement/services/task"
	"goalplay-engagement/services/xp"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

type Handler struct {
	xp           *xp.Service
	credits      *credits.Service
	badges       *badge.Service
	daily        *daily.Service
	referrals    *referral.Service
	provisioning *provisioning.Service
	tasks        *task.Service
}

type HandlerParams struct {
	fx.In
	XP           *xp.Service
	Credits      *credits.Service
	Badges       *badge.Service
	Daily        *daily.Service
	Referrals    *referral.Service
	Provisioning *provisioning.Service
	Tasks        *task.Service
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		xp:           p.XP,
		credits:      p.Credits,
		badges:       p.Badges,
		daily:        p.Daily,
		referrals:    p.Referrals,
		provisioning: p.Provisioning,
		tasks:        p.Tasks,
	}
}

var errInvalidCurrency = errutil.BadRequest("currency must be xp or credits", nil, errutil.WithReason(errutil.ReasonInvalidArgument))

func fail(c *gin.Context, err error) {
	_ = c.Error(err)
}

func badRequest(c *gin.Context, err error) {
	fail(c, errutil.BadRequest("invalid request body", err, errutil.WithReason(errutil.ReasonInvalidArgument)))
}

func currencyParam(c *gin.Context) (ledger.Currency, bool) {
	cur := ledger.Currency(c.Param("currency"))
	if !cur.Valid() {
		fail(c, errInvalidCurrency)
		return "", false
	}
	return cur, true
}

func pageQuery(c *gin.Context) (pagination.Pagination, bool) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		badRequest(c, err)
		return page, false
	}
	return page, true
}

func limitQuery(c *gin.Context, def int) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

type listResponse[T any] struct {
	Data     []T                  `json:"data"`
	PageInfo *pagination.PageInfo `json:"page_info,omitempty"`
}

func ok(c *gin.Context, v any) {
	c.JSON(http.StatusOK, v)
}

// GET /v1/me/profile
func (h *Handler) GetProfile(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.UserID(c)

	profile, err := h.xp.Profile(ctx, userID)
	if err != nil {
		fail(c, err)
		return
	}
	bal, err := h.credits.Balance(ctx, userID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{
		"profile": profile,
		"credits": gin.H{
			"balance":         bal.Balance,
			"lifetime_earned": bal.LifetimeEarned,
			"lifetime_spent":  bal.LifetimeSpent,
		},
	})
}

// GET /v1/me/transactions/:currency?cursor=&limit=
func (h *Handler) ListTransactions(c *gin.Context) {
	cur, valid := currencyParam(c)
	if !valid {
		return
	}
	page, valid := pageQuery(c)
	if !valid {
		return
	}

	history := h.credits.History
	if cur == ledger.CurrencyXP {
		history = h.xp.History
	}
	rows, info, err := history(c.Request.Context(), middleware.UserID(c), page)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, listResponse[*ledger.Transaction]{Data: rows, PageInfo: info})
}

type spendRequest struct {
	Amount        int64          `json:"amount" binding:"required"`
	Kind          ledger.Kind    `json:"kind"`
	Description   string         `json:"description"`
	ReferenceID   string         `json:"reference_id"`
	ReferenceType string         `json:"reference_type"`
	Metadata      map[string]any `json:"metadata"`
}

// POST /v1/me/credits/spend
func (h *Handler) SpendCredits(c *gin.Context) {
	var req spendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Kind == "" {
		req.Kind = ledger.KindPurchase
	}
	res, err := h.credits.Spend(c.Request.Context(), ledger.Request{
		UserID:        middleware.UserID(c),
		Amount:        req.Amount,
		Kind:          req.Kind,
		Description:   req.Description,
		ReferenceID:   req.ReferenceID,
		ReferenceType: req.ReferenceType,
		Metadata:      req.Metadata,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}
