package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	expensedomain "github.com/smallbiznis/atelier/internal/expense/domain"
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

	expenserepo repository.Repository[expensedomain.Expense]
}

func NewService(p ServiceParam) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("expense.service"),
		genID: p.GenID,

		expenserepo: repository.ProvideStore[expensedomain.Expense](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, expense expensedomain.Expense) (expensedomain.Expense, error) {
	if err := expense.Validate(); err != nil {
		return expensedomain.Expense{}, err
	}
	if expense.Category == "" {
		expense.Category = expensedomain.CategoryOther
	}

	expense.ID = s.genID.Generate()
	if err := s.expenserepo.Create(ctx, &expense); err != nil {
		return expensedomain.Expense{}, err
	}
	return expense, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (expensedomain.Expense, error) {
	expense, err := s.expenserepo.FindOne(ctx, &expensedomain.Expense{ID: id})
	if err != nil {
		return expensedomain.Expense{}, err
	}
	if expense == nil {
		return expensedomain.Expense{}, expensedomain.ErrExpenseNotFound
	}
	return *expense, nil
}

// List returns expenses dated within [from, to], newest first.
func (s *Service) List(ctx context.Context, from, to time.Time) ([]expensedomain.Expense, error) {
	var expenses []expensedomain.Expense
	stmt := s.db.WithContext(ctx).Model(&expensedomain.Expense{})
	if !from.IsZero() {
		stmt = stmt.Where("expense_date >= ?", from)
	}
	if !to.IsZero() {
		stmt = stmt.Where("expense_date <= ?", to)
	}
	err := stmt.Order("expense_date DESC").Find(&expenses).Error
	return expenses, err
}
