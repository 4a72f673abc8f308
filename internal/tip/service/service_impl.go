package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	artistdomain "github.com/smallbiznis/stagepass/internal/artist/domain"
	"github.com/smallbiznis/stagepass/internal/clock"
	paymentdomain "github.com/smallbiznis/stagepass/internal/payment/domain"
	"github.com/smallbiznis/stagepass/internal/tip/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	ArtistRepo artistdomain.Repository
	Processor  paymentdomain.Processor
	Clock      clock.Clock
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	artistRepo artistdomain.Repository
	processor  paymentdomain.Processor
	clock      clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("tip.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		artistRepo: p.ArtistRepo,
		processor:  p.Processor,
		clock:      p.Clock,
	}
}

// Create authorizes a tip paid straight to the artist's connected account.
// The platform takes no fee on tips.
func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (domain.CreateResult, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return domain.CreateResult{}, domain.ErrInvalidUser
	}
	if req.ArtistID == 0 {
		return domain.CreateResult{}, domain.ErrInvalidArtist
	}
	if req.Amount < domain.MinAmount {
		return domain.CreateResult{}, domain.ErrAmountTooSmall
	}

	artist, err := s.artistRepo.FindByID(ctx, s.db, req.ArtistID)
	if err != nil {
		return domain.CreateResult{}, err
	}
	if artist == nil {
		return domain.CreateResult{}, artistdomain.ErrNotFound
	}
	if !artist.Payable() {
		return domain.CreateResult{}, domain.ErrArtistNotPayable
	}

	tipID := s.genID.Generate()
	auth, err := s.processor.CreateAuthorization(ctx, paymentdomain.AuthorizationRequest{
		Amount:             req.Amount,
		Currency:           paymentdomain.CurrencyEUR,
		DestinationAccount: artist.PayoutAccount(),
		Metadata: map[string]string{
			paymentdomain.MetadataKind:     paymentdomain.KindTip,
			paymentdomain.MetadataTipID:    tipID.String(),
			paymentdomain.MetadataUserID:   userID,
			paymentdomain.MetadataArtistID: artist.ID.String(),
		},
		IdempotencyKey: "tip:" + tipID.String(),
	})
	if err != nil {
		return domain.CreateResult{}, fmt.Errorf("create authorization: %w", err)
	}

	now := s.clock.Now()
	tip := domain.Tip{
		ID:               tipID,
		ArtistID:         artist.ID,
		UserID:           userID,
		Amount:           req.Amount,
		PaymentIntentRef: auth.ID,
		Status:           domain.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Insert(ctx, s.db, &tip); err != nil {
		cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if cancelErr := s.processor.CancelAuthorization(cancelCtx, auth.ID); cancelErr != nil {
			s.log.Error("tip.authorization.cancel_failed", zap.String("tip_id", tipID.String()), zap.Error(cancelErr))
		}
		return domain.CreateResult{}, err
	}

	s.log.Info("tip.pending",
		zap.String("tip_id", tipID.String()),
		zap.String("artist_id", artist.ID.String()),
		zap.Int64("amount", req.Amount),
	)
	return domain.CreateResult{ClientToken: auth.ClientToken, TipID: tipID, Amount: req.Amount}, nil
}
