package httpapi

import (
	"goalplay-engagement/pkg/middleware"
	"goalplay-engagement/services/badge"
	"goalplay-engagement/services/daily"
	"goalplay-engagement/services/referral"

	"github.com/gin-gonic/gin"
)

// GET /v1/me/daily-reward
func (h *Handler) GetDailyStatus(c *gin.Context) {
	status, err := h.daily.Status(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, status)
}

// POST /v1/me/daily-reward/claim
func (h *Handler) ClaimDailyReward(c *gin.Context) {
	res, err := h.daily.Claim(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}

// GET /v1/me/daily-reward/history?limit=
func (h *Handler) ListDailyClaims(c *gin.Context) {
	rows, err := h.daily.History(c.Request.Context(), middleware.UserID(c), limitQuery(c, 30))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, listResponse[*daily.Claim]{Data: rows})
}

// GET /v1/badges
func (h *Handler) ListCatalog(c *gin.Context) {
	rows, err := h.badges.ActiveCatalog(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, listResponse[*badge.Badge]{Data: rows})
}

// GET /v1/me/badges
func (h *Handler) ListUserBadges(c *gin.Context) {
	rows, err := h.badges.ListUserBadges(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, listResponse[*badge.UserBadge]{Data: rows})
}

// POST /v1/me/badges/:badgeID/claim
func (h *Handler) ClaimBadge(c *gin.Context) {
	ub, err := h.badges.Claim(c.Request.Context(), middleware.UserID(c), c.Param("badgeID"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, ub)
}

type displayRequest struct {
	Displayed *bool `json:"displayed" binding:"required"`
}

// PUT /v1/me/badges/:badgeID/display
func (h *Handler) DisplayBadge(c *gin.Context) {
	var req displayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ub, err := h.badges.SetDisplayed(c.Request.Context(), middleware.UserID(c), c.Param("badgeID"), *req.Displayed)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, ub)
}

// GET /v1/me/referral
func (h *Handler) GetReferral(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.UserID(c)

	code, err := h.referrals.EnsureCode(ctx, userID)
	if err != nil {
		fail(c, err)
		return
	}
	stats, err := h.referrals.Stats(ctx, userID)
	if err != nil {
		fail(c, err)
		return
	}
	stats.Code = code.Code
	ok(c, stats)
}

// GET /v1/me/referral/referrals?cursor=&limit=
func (h *Handler) ListReferrals(c *gin.Context) {
	page, valid := pageQuery(c)
	if !valid {
		return
	}
	rows, info, err := h.referrals.List(c.Request.Context(), middleware.UserID(c), page)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, listResponse[*referral.Referral]{Data: rows, PageInfo: info})
}

type applyCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

// POST /v1/me/referral/apply
func (h *Handler) ApplyReferralCode(c *gin.Context) {
	var req applyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ref, err := h.referrals.ApplyCode(c.Request.Context(), middleware.UserID(c), req.Code)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, ref)
}
