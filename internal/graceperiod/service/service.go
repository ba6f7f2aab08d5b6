// Package service resolves grace periods for overdue billings.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	billing "github.com/smallbiznis/premia/internal/billing/domain"
	"github.com/smallbiznis/premia/internal/graceperiod/domain"
)

type service struct {
	repo domain.Repository
	log  *zap.Logger
}

func New(repo domain.Repository, log *zap.Logger) domain.Service {
	return &service{repo: repo, log: log.Named("graceperiod")}
}

// Days walks the rule hierarchy from most to least specific: policy type +
// frequency + tier, then policy type + frequency, then the DEFAULT policy
// type. No matching rule means FallbackDays, not an error.
func (s *service) Days(ctx context.Context, policyType string, freq billing.PaymentFrequency, tier *string) (int, error) {
	type lookup struct {
		policyType string
		tier       *string
	}
	var lookups []lookup
	if tier != nil {
		lookups = append(lookups, lookup{policyType, tier})
	}
	lookups = append(lookups,
		lookup{policyType, nil},
		lookup{domain.DefaultPolicyType, nil},
	)

	for _, l := range lookups {
		cfg, err := s.repo.FindExact(ctx, l.policyType, freq, l.tier)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("%w: %v", domain.ErrConfigLookup, err)
		}
		return cfg.GraceDays, nil
	}

	s.log.Debug("no grace rule matched, using fallback",
		zap.String("policy_type", policyType),
		zap.String("frequency", string(freq)),
	)
	return domain.FallbackDays, nil
}

func (s *service) Upsert(ctx context.Context, cfg *domain.Config) (*domain.Config, error) {
	if cfg.GraceDays <= 0 {
		return nil, domain.ErrInvalidDays
	}
	if cfg.PolicyType == "" || !billing.ValidFrequency(cfg.Frequency) {
		return nil, domain.ErrInvalidDays
	}
	if err := s.repo.Upsert(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *service) List(ctx context.Context) ([]domain.Config, error) {
	return s.repo.List(ctx)
}
