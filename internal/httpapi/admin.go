package httpapi

import (
	"net/http"

	"goalplay-engagement/services/badge"
	"goalplay-engagement/services/ledger"
	"goalplay-engagement/services/task"

	"github.com/gin-gonic/gin"
)

// POST /v1/admin/users/:userID/provision
func (h *Handler) ProvisionUser(c *gin.Context) {
	acc, err := h.provisioning.Provision(c.Request.Context(), c.Param("userID"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, acc)
}

type adjustRequest struct {
	Amount      int64          `json:"amount" binding:"required"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata"`
}

func (r adjustRequest) ledgerRequest(userID string) ledger.Request {
	return ledger.Request{
		UserID:        userID,
		Amount:        r.Amount,
		Kind:          ledger.KindAdminAdjustment,
		Description:   r.Description,
		ReferenceType: "admin",
		Metadata:      r.Metadata,
	}
}

// POST /v1/admin/users/:userID/xp
// A negative amount deducts XP.
func (h *Handler) AdjustXP(c *gin.Context) {
	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.xp.Grant(c.Request.Context(), req.ledgerRequest(c.Param("userID")))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}

// POST /v1/admin/users/:userID/credits
// A negative amount is debited like a spend and cannot overdraw.
func (h *Handler) AdjustCredits(c *gin.Context) {
	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	lr := req.ledgerRequest(c.Param("userID"))

	var (
		res *ledger.Result
		err error
	)
	if lr.Amount < 0 {
		lr.Amount = -lr.Amount
		res, err = h.credits.Spend(c.Request.Context(), lr)
	} else {
		res, err = h.credits.Grant(c.Request.Context(), lr)
	}
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}

// GET /v1/admin/users/:userID/verify/:currency
func (h *Handler) VerifyLedger(c *gin.Context) {
	cur, valid := currencyParam(c)
	if !valid {
		return
	}
	verify := h.credits.Verify
	if cur == ledger.CurrencyXP {
		verify = h.xp.Verify
	}
	v, err := verify(c.Request.Context(), c.Param("userID"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, v)
}

// POST /v1/admin/users/:userID/badges/:slug
func (h *Handler) ManualUnlock(c *gin.Context) {
	res, err := h.badges.ManualUnlock(c.Request.Context(), c.Param("userID"), c.Param("slug"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}

type badgeCheckRequest struct {
	ConditionType badge.ConditionType `json:"condition_type" binding:"required"`
	Value         int64               `json:"value"`
	CorrectCount  int64               `json:"correct_count"`
	TotalCount    int64               `json:"total_count"`
}

// POST /v1/admin/users/:userID/badge-checks
// Called by the prediction and comment services with the user's current
// counters.
func (h *Handler) CheckBadges(c *gin.Context) {
	var req badgeCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	unlocked, err := h.badges.Check(c.Request.Context(), badge.CheckRequest{
		UserID:        c.Param("userID"),
		ConditionType: req.ConditionType,
		Value:         req.Value,
		CorrectCount:  req.CorrectCount,
		TotalCount:    req.TotalCount,
	})
	if err != nil {
		fail(c, err)
		return
	}
	if unlocked == nil {
		unlocked = []*badge.UnlockResult{}
	}
	ok(c, gin.H{"unlocked": unlocked})
}

// GET /v1/admin/badges
func (h *Handler) ListAllBadges(c *gin.Context) {
	rows, err := h.badges.ListCatalog(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, listResponse[*badge.Badge]{Data: rows})
}

// POST /v1/admin/badges
func (h *Handler) CreateBadge(c *gin.Context) {
	var req badge.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	b, err := h.badges.Create(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

// PATCH /v1/admin/badges/:badgeID
func (h *Handler) UpdateBadge(c *gin.Context) {
	var req badge.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	b, err := h.badges.Update(c.Request.Context(), c.Param("badgeID"), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, b)
}

// POST /v1/admin/referrals/login/:userID
func (h *Handler) ReferralFirstLogin(c *gin.Context) {
	advanced, err := h.referrals.OnFirstLogin(c.Request.Context(), c.Param("userID"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"advanced": advanced})
}

// POST /v1/admin/referrals/subscription/:userID
func (h *Handler) ReferralSubscription(c *gin.Context) {
	advanced, err := h.referrals.OnSubscription(c.Request.Context(), c.Param("userID"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"advanced": advanced})
}

// GET /v1/admin/jobs?task=&limit=
func (h *Handler) ListJobs(c *gin.Context) {
	jobs, err := h.tasks.ListJobs(c.Request.Context(), c.Query("task"), limitQuery(c, 20))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, listResponse[task.Job]{Data: jobs})
}

type taskActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// PUT /v1/admin/tasks/:name/active
func (h *Handler) SetTaskActive(c *gin.Context) {
	var req taskActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.tasks.SetActive(c.Request.Context(), c.Param("name"), *req.Active); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"name": c.Param("name"), "active": *req.Active})
}
