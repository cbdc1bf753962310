package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	clientdomain "github.com/smallbiznis/atelier/internal/client/domain"
	"github.com/smallbiznis/atelier/internal/tax"
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

	clientrepo repository.Repository[clientdomain.Client]
}

func NewService(p ServiceParam) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("client.service"),
		genID: p.GenID,

		clientrepo: repository.ProvideStore[clientdomain.Client](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, client clientdomain.Client) (clientdomain.Client, error) {
	if !tax.ValidDiscountPercentage(client.DefaultDiscountPercentage) {
		return clientdomain.Client{}, clientdomain.ErrInvalidDefaultDiscount
	}

	client.ID = s.genID.Generate()
	if err := s.clientrepo.Create(ctx, &client); err != nil {
		return clientdomain.Client{}, err
	}
	return client, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (clientdomain.Client, error) {
	client, err := s.clientrepo.FindOne(ctx, &clientdomain.Client{ID: id})
	if err != nil {
		return clientdomain.Client{}, err
	}
	if client == nil {
		return clientdomain.Client{}, clientdomain.ErrClientNotFound
	}
	return *client, nil
}

func (s *Service) List(ctx context.Context) ([]clientdomain.Client, error) {
	var clients []clientdomain.Client
	err := s.db.WithContext(ctx).
		Order("last_name ASC, first_name ASC").
		Find(&clients).Error
	return clients, err
}

// SetDefaultDiscount changes what future documents adopt; documents that
// already adopted the old value keep it.
func (s *Service) SetDefaultDiscount(ctx context.Context, id snowflake.ID, discount decimal.Decimal) (clientdomain.Client, error) {
	if !tax.ValidDiscountPercentage(discount) {
		return clientdomain.Client{}, clientdomain.ErrInvalidDefaultDiscount
	}

	client, err := s.Get(ctx, id)
	if err != nil {
		return clientdomain.Client{}, err
	}
	client.DefaultDiscountPercentage = discount
	if err := s.clientrepo.Save(ctx, &client); err != nil {
		return clientdomain.Client{}, err
	}
	return client, nil
}
