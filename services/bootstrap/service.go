// Package bootstrap creates the engagement schema and seeds the default badge
// catalog.
package bootstrap

import (
	"context"
	"fmt"

	"goalplay-engagement/services/badge"
	"goalplay-engagement/services/daily"
	"goalplay-engagement/services/ledger"
	"goalplay-engagement/services/referral"
	"goalplay-engagement/services/task"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CatalogSeeder interface {
	Seed(ctx context.Context, catalog []badge.CreateRequest) (int, error)
}

type Service struct {
	db     *gorm.DB
	badges CatalogSeeder
	log    *zap.Logger
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Badges CatalogSeeder
	Logger *zap.Logger `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	log := p.Logger
	if log == nil {
		log = zap.L()
	}
	return &Service{db: p.DB, badges: p.Badges, log: log}
}

// Models lists every table owned by the engagement service.
func Models() []any {
	var models []any
	for _, m := range [][]any{
		ledger.Models(),
		badge.Models(),
		daily.Models(),
		referral.Models(),
		task.Models(),
	} {
		models = append(models, m...)
	}
	return models
}

func (s *Service) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	s.log.Info("[Bootstrap] schema up to date")
	return nil
}

// SeedCatalog inserts the default badges that are not in the catalog yet.
func (s *Service) SeedCatalog(ctx context.Context) (int, error) {
	n, err := s.badges.Seed(ctx, badge.DefaultCatalog())
	if err != nil {
		return n, err
	}
	s.log.Info("[Bootstrap] badge catalog seeded", zap.Int("created", n))
	return n, nil
}

// Run migrates and seeds.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Migrate(ctx); err != nil {
		return err
	}
	_, err := s.SeedCatalog(ctx)
	return err
}
