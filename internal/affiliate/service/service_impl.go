package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/stagepass/internal/affiliate/domain"
	"github.com/smallbiznis/stagepass/internal/clock"
	"github.com/smallbiznis/stagepass/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const codeAttempts = 5

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("affiliate.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: p.Clock,
	}
}

func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (domain.Affiliate, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return domain.Affiliate{}, domain.ErrInvalidUser
	}

	existing, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return domain.Affiliate{}, err
	}
	if existing != nil {
		return domain.Affiliate{}, domain.ErrAlreadyAffiliate
	}

	affiliate := domain.Affiliate{
		ID:        s.genID.Generate(),
		UserID:    userID,
		Level:     1,
		IsActive:  true,
		CreatedAt: s.clock.Now(),
	}

	if code := normalizeCode(req.ParentCode); code != "" {
		parent, err := s.repo.FindByReferralCode(ctx, s.db, code)
		if err != nil {
			return domain.Affiliate{}, err
		}
		if parent == nil {
			return domain.Affiliate{}, domain.ErrParentNotFound
		}
		if !parent.IsActive {
			return domain.Affiliate{}, domain.ErrParentInactive
		}
		parentID := parent.ID
		affiliate.ParentAffiliateID = &parentID
		affiliate.GrandparentAffiliateID = parent.ParentAffiliateID
		affiliate.Level = min(parent.Level+1, domain.MaxLevel)
	}

	for attempt := 0; attempt < codeAttempts; attempt++ {
		affiliate.ReferralCode = newReferralCode()
		err = s.repo.Insert(ctx, s.db, &affiliate)
		if err == nil {
			s.log.Info("affiliate.registered",
				zap.String("affiliate_id", affiliate.ID.String()),
				zap.Int("level", affiliate.Level),
			)
			return affiliate, nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return domain.Affiliate{}, err
		}
		// A concurrent registration for the same user also lands here.
		if again, findErr := s.repo.FindByUserID(ctx, s.db, userID); findErr == nil && again != nil {
			return domain.Affiliate{}, domain.ErrAlreadyAffiliate
		}
	}
	return domain.Affiliate{}, domain.ErrCodeExhausted
}

func (s *Service) FindActiveByCode(ctx context.Context, code string) (*domain.Affiliate, error) {
	code = normalizeCode(code)
	if code == "" {
		return nil, nil
	}
	affiliate, err := s.repo.FindByReferralCode(ctx, s.db, code)
	if err != nil || affiliate == nil {
		return nil, err
	}
	if !affiliate.IsActive {
		return nil, nil
	}
	return affiliate, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func newReferralCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:8])
}
