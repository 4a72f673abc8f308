package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	affiliatedomain "github.com/smallbiznis/stagepass/internal/affiliate/domain"
	artistdomain "github.com/smallbiznis/stagepass/internal/artist/domain"
	"github.com/smallbiznis/stagepass/internal/clock"
	"github.com/smallbiznis/stagepass/internal/commission"
	eventdomain "github.com/smallbiznis/stagepass/internal/event/domain"
	obsmetrics "github.com/smallbiznis/stagepass/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/stagepass/internal/payment/domain"
	"github.com/smallbiznis/stagepass/internal/pricing"
	"github.com/smallbiznis/stagepass/internal/ticket/domain"
	"github.com/smallbiznis/stagepass/pkg/db"
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
	EventRepo  eventdomain.Repository
	ArtistRepo artistdomain.Repository
	Affiliates affiliatedomain.Service
	Pricing    *pricing.Resolver
	Processor  paymentdomain.Processor
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	eventRepo  eventdomain.Repository
	artistRepo artistdomain.Repository
	affiliates affiliatedomain.Service
	pricing    *pricing.Resolver
	processor  paymentdomain.Processor
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ticket.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		eventRepo:  p.EventRepo,
		artistRepo: p.ArtistRepo,
		affiliates: p.Affiliates,
		pricing:    p.Pricing,
		processor:  p.Processor,
		clock:      p.Clock,
		obsMetrics: p.ObsMetrics,
	}
}

// Purchase prices a ticket, authorizes payment for it and records the
// pending ticket with its commission intents. Confirmation happens later,
// when the processor reports the payment outcome.
func (s *Service) Purchase(ctx context.Context, req domain.PurchaseRequest) (domain.PurchaseResult, error) {
	result, err := s.purchase(ctx, req)
	s.obsMetrics.RecordPurchase(ctx, purchaseOutcome(err), result.IsPromo)
	return result, err
}

func (s *Service) purchase(ctx context.Context, req domain.PurchaseRequest) (domain.PurchaseResult, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return domain.PurchaseResult{}, domain.ErrInvalidUser
	}
	if req.EventID == 0 {
		return domain.PurchaseResult{}, domain.ErrInvalidEvent
	}

	event, artist, err := s.checkPreconditions(ctx, req.EventID, userID)
	if err != nil {
		return domain.PurchaseResult{}, err
	}

	quote, err := s.pricing.Resolve(pricing.Request{
		BasePrice: event.TicketPrice,
		HappyHour: event.IsHappyHour(),
		Tier:      string(artist.SubscriptionTier),
		Slot:      event.ScheduledAt,
	})
	if err != nil {
		return domain.PurchaseResult{}, err
	}

	shares, referrer, err := s.planCommissions(ctx, req.ReferralCode, quote.Price)
	if err != nil {
		return domain.PurchaseResult{}, err
	}

	ticketID := s.genID.Generate()
	log := s.log.With(
		zap.String("ticket_id", ticketID.String()),
		zap.String("event_id", event.ID.String()),
	)

	auth, err := s.processor.CreateAuthorization(ctx, paymentdomain.AuthorizationRequest{
		Amount:             quote.Price,
		Currency:           paymentdomain.CurrencyEUR,
		DestinationAccount: artist.PayoutAccount(),
		ApplicationFee:     commission.Sum(shares),
		Metadata: map[string]string{
			paymentdomain.MetadataKind:     paymentdomain.KindTicket,
			paymentdomain.MetadataTicketID: ticketID.String(),
			paymentdomain.MetadataEventID:  event.ID.String(),
			paymentdomain.MetadataUserID:   userID,
			paymentdomain.MetadataArtistID: artist.ID.String(),
		},
		IdempotencyKey: "ticket:" + ticketID.String(),
	})
	if err != nil {
		log.Warn("purchase.authorization.failed", zap.Error(err))
		return domain.PurchaseResult{}, fmt.Errorf("create authorization: %w", err)
	}

	now := s.clock.Now()
	ticket := domain.Ticket{
		ID:               ticketID,
		EventID:          event.ID,
		UserID:           userID,
		PurchasePrice:    quote.Price,
		IsHappyHour:      quote.IsPromo,
		PaymentIntentRef: auth.ID,
		AffiliateID:      referrer,
		Status:           domain.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	commissions := make([]domain.Commission, 0, len(shares))
	for _, share := range shares {
		commissions = append(commissions, domain.Commission{
			ID:               s.genID.Generate(),
			TicketID:         ticketID,
			AffiliateID:      share.AffiliateID,
			CommissionLevel:  share.Level,
			CommissionRate:   share.Rate,
			CommissionAmount: share.Amount,
			Status:           domain.CommissionPending,
			CreatedAt:        now,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &ticket); err != nil {
			return err
		}
		return s.repo.InsertCommissions(ctx, tx, commissions)
	})
	if err != nil {
		s.releaseAuthorization(auth.ID, log)
		if db.IsDuplicateKeyErr(err) && s.lostLiveTicketRace(ctx, req.EventID, userID) {
			return domain.PurchaseResult{}, domain.ErrDuplicateTicket
		}
		return domain.PurchaseResult{}, fmt.Errorf("insert ticket: %w", err)
	}

	log.Info("purchase.pending",
		zap.Int64("price", quote.Price),
		zap.Bool("promo", quote.IsPromo),
		zap.Int("commission_levels", len(commissions)),
	)

	return domain.PurchaseResult{
		ClientToken: auth.ClientToken,
		TicketID:    ticketID,
		Price:       quote.Price,
		IsPromo:     quote.IsPromo,
	}, nil
}

// lostLiveTicketRace reports whether a concurrent purchase took the live
// ticket slot for (event, user). Other unique violations are internal errors.
func (s *Service) lostLiveTicketRace(ctx context.Context, eventID snowflake.ID, userID string) bool {
	existing, err := s.repo.FindLive(ctx, s.db, eventID, userID)
	return err == nil && existing != nil
}

// checkPreconditions applies the purchase guards in order; the first failing
// guard decides the error.
func (s *Service) checkPreconditions(ctx context.Context, eventID snowflake.ID, userID string) (*eventdomain.Event, *artistdomain.Artist, error) {
	event, err := s.eventRepo.FindByID(ctx, s.db, eventID)
	if err != nil {
		return nil, nil, err
	}
	if event == nil {
		return nil, nil, eventdomain.ErrNotFound
	}
	if !event.OnSale() {
		return nil, nil, domain.ErrEventNotOnSale
	}
	if event.SoldOut() {
		return nil, nil, domain.ErrSoldOut
	}

	existing, err := s.repo.FindLive(ctx, s.db, event.ID, userID)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil {
		return nil, nil, domain.ErrDuplicateTicket
	}

	artist, err := s.artistRepo.FindByID(ctx, s.db, event.ArtistID)
	if err != nil {
		return nil, nil, err
	}
	if artist == nil || !artist.Payable() {
		return nil, nil, domain.ErrArtistNotPayable
	}
	return event, artist, nil
}

// planCommissions resolves the referral chain for code. Unknown or inactive
// codes earn nothing and do not block the purchase.
func (s *Service) planCommissions(ctx context.Context, code string, price int64) ([]commission.Share, *snowflake.ID, error) {
	if strings.TrimSpace(code) == "" {
		return nil, nil, nil
	}
	affiliate, err := s.affiliates.FindActiveByCode(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	if affiliate == nil {
		s.log.Debug("purchase.referral.ignored")
		return nil, nil, nil
	}
	shares := commission.Plan(commission.ResolveHierarchy(*affiliate), commission.Compute(price))
	referrer := affiliate.ID
	return shares, &referrer, nil
}

// releaseAuthorization cancels an authorization whose ticket could not be
// stored. The request context may already be gone, so it runs detached.
func (s *Service) releaseAuthorization(authorizationID string, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.processor.CancelAuthorization(ctx, authorizationID); err != nil {
		log.Error("purchase.authorization.cancel_failed",
			zap.String("payment_intent_ref", authorizationID),
			zap.Error(err),
		)
	}
}

func purchaseOutcome(err error) string {
	switch {
	case err == nil:
		return "pending"
	case errors.Is(err, domain.ErrSoldOut):
		return "sold_out"
	case errors.Is(err, domain.ErrDuplicateTicket):
		return "duplicate"
	case errors.Is(err, domain.ErrArtistNotPayable):
		return "artist_not_payable"
	case errors.Is(err, paymentdomain.ErrUpstream):
		return "upstream_error"
	}
	return "rejected"
}
