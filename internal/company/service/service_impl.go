package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	companydomain "github.com/smallbiznis/atelier/internal/company/domain"
	"github.com/smallbiznis/atelier/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node

	profilerepo repository.Repository[companydomain.Profile]
}

func NewService(p ServiceParam) companydomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("company.service"),
		genID: p.GenID,

		profilerepo: repository.ProvideStore[companydomain.Profile](p.DB),
	}
}

func (s *Service) Get(ctx context.Context) (companydomain.Profile, error) {
	var profile companydomain.Profile
	err := s.db.WithContext(ctx).Order("created_at ASC").First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return companydomain.Profile{}, companydomain.ErrNoProfileConfigured
		}
		return companydomain.Profile{}, err
	}
	return profile, nil
}

func (s *Service) Upsert(ctx context.Context, profile companydomain.Profile) (companydomain.Profile, error) {
	if err := profile.Validate(); err != nil {
		return companydomain.Profile{}, err
	}

	existing, err := s.Get(ctx)
	switch {
	case err == nil:
		profile.ID = existing.ID
		profile.CreatedAt = existing.CreatedAt
		if err := s.profilerepo.Save(ctx, &profile); err != nil {
			return companydomain.Profile{}, err
		}
	case errors.Is(err, companydomain.ErrNoProfileConfigured):
		profile.ID = s.genID.Generate()
		if err := s.profilerepo.Create(ctx, &profile); err != nil {
			return companydomain.Profile{}, err
		}
	default:
		return companydomain.Profile{}, err
	}

	s.log.Info("company profile updated",
		zap.Bool("tax_registered", profile.IsTaxRegistered),
		zap.Int("fiscal_year_end_month", profile.FiscalYearEndMonth),
		zap.Int("fiscal_year_end_day", profile.FiscalYearEndDay),
	)
	return profile, nil
}
