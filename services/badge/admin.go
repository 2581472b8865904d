package badge

import (
	"context"
	"encoding/json"

	pkgdb "goalplay-engagement/pkg/db"
	"goalplay-engagement/pkg/errutil"

	"github.com/gosimple/slug"
	"gorm.io/datatypes"
)

func (r Rarity) Valid() bool {
	switch r {
	case RarityCommon, RarityRare, RarityEpic, RarityLegendary:
		return true
	}
	return false
}

type CreateRequest struct {
	Slug            string          `json:"slug"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Rarity          Rarity          `json:"rarity"`
	Category        string          `json:"category"`
	UnlockCondition json.RawMessage `json:"unlock_condition"`
	RewardXP        int64           `json:"reward_xp"`
	RewardCredits   int64           `json:"reward_credits"`
	RewardVIPDays   int             `json:"reward_vip_days"`
	Inactive        bool            `json:"inactive"`
}

// Create adds a badge to the catalog. The slug is derived from the name when empty.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Badge, error) {
	if req.Name == "" {
		return nil, ErrNameRequired
	}
	if req.RewardXP < 0 || req.RewardCredits < 0 || req.RewardVIPDays < 0 {
		return nil, ErrNegativeReward
	}
	if req.Rarity == "" {
		req.Rarity = RarityCommon
	}
	if !req.Rarity.Valid() {
		return nil, ErrInvalidRarity
	}
	cond, err := DecodeCondition(req.UnlockCondition)
	if err != nil {
		return nil, err
	}
	stored, err := EncodeCondition(cond)
	if err != nil {
		return nil, errutil.Internal("failed to encode condition", err)
	}

	sl := req.Slug
	if sl == "" {
		sl = slug.Make(req.Name)
	}
	sl = slug.Make(sl)
	if sl == "" {
		return nil, errutil.BadRequest("badge slug is empty", nil, errutil.WithReason(errutil.ReasonInvalidArgument))
	}

	now := s.now().UTC()
	b := &Badge{
		ID:              s.node.Generate().String(),
		Slug:            sl,
		Name:            req.Name,
		Description:     req.Description,
		Rarity:          req.Rarity,
		Category:        req.Category,
		ConditionType:   cond.Type(),
		UnlockCondition: datatypes.JSON(stored),
		RewardXP:        req.RewardXP,
		RewardCredits:   req.RewardCredits,
		RewardVIPDays:   req.RewardVIPDays,
		IsActive:        !req.Inactive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.badges.Create(ctx, b); err != nil {
		if pkgdb.IsDuplicateKey(err) {
			return nil, ErrSlugTaken
		}
		return nil, errutil.Internal("failed to create badge", err)
	}
	s.cache.Invalidate()
	return b, nil
}

type UpdateRequest struct {
	Name            *string         `json:"name,omitempty"`
	Description     *string         `json:"description,omitempty"`
	Rarity          *Rarity         `json:"rarity,omitempty"`
	Category        *string         `json:"category,omitempty"`
	UnlockCondition json.RawMessage `json:"unlock_condition,omitempty"`
	RewardXP        *int64          `json:"reward_xp,omitempty"`
	RewardCredits   *int64          `json:"reward_credits,omitempty"`
	RewardVIPDays   *int            `json:"reward_vip_days,omitempty"`
	IsActive        *bool           `json:"is_active,omitempty"`
}

// Update changes the given fields of a catalog entry.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*Badge, error) {
	b, err := s.badges.FindOne(ctx, &Badge{ID: id})
	if err != nil {
		return nil, errutil.Internal("failed to load badge", err)
	}
	if b == nil {
		return nil, ErrBadgeNotFound
	}

	updates := map[string]any{"updated_at": s.now().UTC()}
	if req.Name != nil {
		if *req.Name == "" {
			return nil, ErrNameRequired
		}
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Rarity != nil {
		if !req.Rarity.Valid() {
			return nil, ErrInvalidRarity
		}
		updates["rarity"] = *req.Rarity
	}
	if req.Category != nil {
		updates["category"] = *req.Category
	}
	if len(req.UnlockCondition) > 0 {
		cond, err := DecodeCondition(req.UnlockCondition)
		if err != nil {
			return nil, err
		}
		stored, err := EncodeCondition(cond)
		if err != nil {
			return nil, errutil.Internal("failed to encode condition", err)
		}
		updates["condition_type"] = cond.Type()
		updates["unlock_condition"] = datatypes.JSON(stored)
	}
	for col, v := range map[string]*int64{"reward_xp": req.RewardXP, "reward_credits": req.RewardCredits} {
		if v == nil {
			continue
		}
		if *v < 0 {
			return nil, ErrNegativeReward
		}
		updates[col] = *v
	}
	if req.RewardVIPDays != nil {
		if *req.RewardVIPDays < 0 {
			return nil, ErrNegativeReward
		}
		updates["reward_vip_days"] = *req.RewardVIPDays
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}

	if err := s.badges.Update(ctx, id, updates); err != nil {
		return nil, errutil.Internal("failed to update badge", err)
	}
	s.cache.Invalidate()

	b, err = s.badges.FindOne(ctx, &Badge{ID: id})
	if err != nil {
		return nil, errutil.Internal("failed to load badge", err)
	}
	return b, nil
}

func (s *Service) SetActive(ctx context.Context, id string, active bool) (*Badge, error) {
	return s.Update(ctx, id, UpdateRequest{IsActive: &active})
}

// Seed creates any badge of catalog whose slug is missing. Existing badges are
// left untouched.
func (s *Service) Seed(ctx context.Context, catalog []CreateRequest) (int, error) {
	created := 0
	for _, req := range catalog {
		_, err := s.Create(ctx, req)
		switch {
		case err == nil:
			created++
		case errutil.StatusOf(err) == errutil.StatusConflict:
		default:
			return created, err
		}
	}
	return created, nil
}

// DefaultCatalog is the launch badge set.
func DefaultCatalog() []CreateRequest {
	cond := func(v string) json.RawMessage { return json.RawMessage(v) }
	return []CreateRequest{
		{Slug: "lucky_guess", Name: "Lucky Guess", Description: "Get your first prediction right.", Rarity: RarityCommon, Category: "predictions", UnlockCondition: cond(`{"type":"predictions","correct_count":1}`), RewardXP: 25, RewardCredits: 5},
		{Slug: "sharp_shooter", Name: "Sharp Shooter", Description: "70% accuracy over at least 20 predictions.", Rarity: RarityEpic, Category: "predictions", UnlockCondition: cond(`{"type":"predictions","accuracy":70,"min_count":20}`), RewardXP: 200, RewardCredits: 50},
		{Slug: "recruiter", Name: "Recruiter", Description: "Refer your first friend.", Rarity: RarityCommon, Category: "social", UnlockCondition: cond(`{"type":"referrals","count":1}`), RewardXP: 50, RewardCredits: 10},
		{Slug: "influencer", Name: "Influencer", Description: "Refer ten friends.", Rarity: RarityRare, Category: "social", UnlockCondition: cond(`{"type":"referrals","count":10}`), RewardXP: 300, RewardCredits: 100},
		{Slug: "week_warrior", Name: "Week Warrior", Description: "Claim the daily reward seven days in a row.", Rarity: RarityRare, Category: "loyalty", UnlockCondition: cond(`{"type":"login_streak","days":7}`), RewardXP: 100, RewardCredits: 25},
		{Slug: "monthly_devotee", Name: "Monthly Devotee", Description: "A thirty day daily reward streak.", Rarity: RarityLegendary, Category: "loyalty", UnlockCondition: cond(`{"type":"login_streak","days":30}`), RewardXP: 500, RewardCredits: 150, RewardVIPDays: 7},
		{Slug: "commentator", Name: "Commentator", Description: "Post ten comments.", Rarity: RarityCommon, Category: "community", UnlockCondition: cond(`{"type":"comments","count":10}`), RewardXP: 30},
		{Slug: "golden_touch", Name: "Golden Touch", Description: "Reach the gold level.", Rarity: RarityRare, Category: "progression", UnlockCondition: cond(`{"type":"xp_level","level":"gold"}`), RewardCredits: 50},
		{Slug: "big_earner", Name: "Big Earner", Description: "Earn 1000 credits in total.", Rarity: RarityEpic, Category: "progression", UnlockCondition: cond(`{"type":"credits_earned","amount":1000}`), RewardXP: 150},
		{Slug: "founding_member", Name: "Founding Member", Description: "Awarded by the GoalPlay team.", Rarity: RarityLegendary, Category: "special", UnlockCondition: cond(`{"type":"manual"}`), RewardXP: 100, RewardCredits: 100},
	}
}
