package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	artistdomain "github.com/smallbiznis/stagepass/internal/artist/domain"
	"github.com/smallbiznis/stagepass/internal/clock"
	"github.com/smallbiznis/stagepass/internal/config"
	eventdomain "github.com/smallbiznis/stagepass/internal/event/domain"
	obsmetrics "github.com/smallbiznis/stagepass/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/stagepass/internal/payment/domain"
	"github.com/smallbiznis/stagepass/internal/payout/domain"
	"github.com/smallbiznis/stagepass/internal/payout/guard"
	"github.com/smallbiznis/stagepass/internal/ratelimit"
	"github.com/smallbiznis/stagepass/pkg/db"
	"github.com/smallbiznis/stagepass/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	dayLayout = "2006-01-02"
	lockTTL   = 15 * time.Minute
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Cfg        config.Config
	Rules      *config.SettlementConfigHolder
	GenID      *snowflake.Node
	Repo       domain.Repository
	EventRepo  eventdomain.Repository
	ArtistRepo artistdomain.Repository
	Processor  paymentdomain.Processor
	Clock      clock.Clock
	Locker     *ratelimit.Locker   `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	loc        *time.Location
	rules      *config.SettlementConfigHolder
	genID      *snowflake.Node
	repo       domain.Repository
	eventRepo  eventdomain.Repository
	artistRepo artistdomain.Repository
	processor  paymentdomain.Processor
	clock      clock.Clock
	locker     *ratelimit.Locker
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payout.service"),
		loc:        p.Cfg.Location(),
		rules:      p.Rules,
		genID:      p.GenID,
		repo:       p.Repo,
		eventRepo:  p.EventRepo,
		artistRepo: p.ArtistRepo,
		processor:  p.Processor,
		clock:      p.Clock,
		locker:     p.Locker,
		obsMetrics: p.ObsMetrics,
	}
}

// DayBucket returns the platform-time calendar day lying delayDays before
// now, as a half-open [start, end) interval.
func DayBucket(now time.Time, delayDays int, loc *time.Location) (time.Time, time.Time) {
	target := now.In(loc).AddDate(0, 0, -delayDays)
	start := time.Date(target.Year(), target.Month(), target.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// RunSettlement pays out every event that ended in the day bucket. Events
// are settled one at a time; a failure on one event is recorded in the
// report and never stops the rest of the batch.
func (s *Service) RunSettlement(ctx context.Context, now time.Time) (domain.Report, error) {
	rules := s.rules.Get()
	start, end := DayBucket(now, rules.Payout.DelayDays, s.loc)
	report := domain.Report{Day: start.Format(dayLayout)}
	log := s.log.With(zap.String("day", report.Day))

	err := s.locker.WithLock(ctx, "payout:settlement:"+report.Day, lockTTL, func(ctx context.Context) error {
		events, err := s.eventRepo.ListEndedBetween(ctx, s.db, start.UTC(), end.UTC())
		if err != nil {
			return fmt.Errorf("list ended events: %w", err)
		}
		report.EventsScanned = len(events)

		var batchErr error
		for _, event := range events {
			if err := ctx.Err(); err != nil {
				return errors.Join(batchErr, err)
			}
			result, err := s.settleEvent(ctx, event, rules)
			report.Add(result)
			s.obsMetrics.RecordPayout(ctx, result.Outcome, transferredAmount(result))
			if err != nil {
				batchErr = errors.Join(batchErr, fmt.Errorf("event %s: %w", event.ID, err))
			}
		}
		if batchErr != nil {
			log.Warn("payout.settlement.partial", zap.Int("failed", report.Failed), zap.Error(batchErr))
		}
		return nil
	})
	if err != nil {
		return report, err
	}

	log.Info("payout.settlement.finished",
		zap.Int("events", report.EventsScanned),
		zap.Int("transferred", report.Transferred),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Int64("amount", report.AmountTransferred),
	)
	return report, nil
}

func (s *Service) settleEvent(ctx context.Context, event eventdomain.Event, rules config.SettlementConfig) (domain.EventResult, error) {
	result := domain.EventResult{EventID: event.ID, ArtistID: event.ArtistID}
	log := s.log.With(zap.String("event_id", event.ID.String()), zap.String("artist_id", event.ArtistID.String()))
	skip := func(reason string) (domain.EventResult, error) {
		result.Outcome = domain.OutcomeSkipped
		result.Reason = reason
		log.Info("payout.event.skipped", zap.String("reason", reason))
		return result, nil
	}

	if err := guard.EnsureEventSettleable(event); err != nil {
		return skip(domain.SkipNotSettleable)
	}
	existing, err := s.repo.FindByArtistEvent(ctx, s.db, event.ArtistID, event.ID)
	if err != nil {
		return s.fail(result, err)
	}
	if err := guard.EnsureNotSettled(existing); err != nil {
		return skip(domain.SkipAlreadySettled)
	}

	revenue, err := s.repo.SumConfirmedRevenue(ctx, s.db, event.ID)
	if err != nil {
		return s.fail(result, err)
	}
	if revenue == 0 {
		return skip(domain.SkipNoRevenue)
	}

	artist, err := s.artistRepo.FindByID(ctx, s.db, event.ArtistID)
	if err != nil {
		return s.fail(result, err)
	}
	if artist == nil {
		return skip(domain.SkipArtistMissing)
	}
	shareBP, ok := rules.Payout.ShareBasisPoints[string(artist.SubscriptionTier)]
	if !ok {
		return s.fail(result, fmt.Errorf("%w: %s", domain.ErrUnknownTier, artist.SubscriptionTier))
	}
	artistRevenue := ArtistShare(revenue, shareBP)

	commissions, err := s.repo.ListPendingCommissions(ctx, s.db, event.ID)
	if err != nil {
		return s.fail(result, err)
	}
	var totalCommissions int64
	commissionIDs := make([]snowflake.ID, 0, len(commissions))
	for _, c := range commissions {
		totalCommissions += c.CommissionAmount
		commissionIDs = append(commissionIDs, c.ID)
	}

	amount := artistRevenue - totalCommissions
	if err := guard.EnsurePositiveAmount(amount); err != nil {
		return skip(domain.SkipNonPositive)
	}
	if err := guard.EnsureArtistPayable(*artist); err != nil {
		return skip(domain.SkipNoPayoutAccount)
	}

	payout, err := s.claim(ctx, existing, domain.Payout{
		ArtistID:         event.ArtistID,
		EventID:          event.ID,
		Amount:           amount,
		TotalRevenue:     revenue,
		ArtistRevenue:    artistRevenue,
		TotalCommissions: totalCommissions,
	})
	if err != nil {
		return s.fail(result, err)
	}
	if payout == nil {
		return skip(domain.SkipAlreadySettled)
	}
	result.PayoutID = &payout.ID
	result.Amount = amount
	log = log.With(zap.String("payout_id", payout.ID.String()), zap.Int("attempt", payout.Attempts))

	transfer, err := s.processor.CreateTransfer(ctx, paymentdomain.TransferRequest{
		Amount:             amount,
		Currency:           paymentdomain.CurrencyEUR,
		DestinationAccount: artist.PayoutAccount(),
		CorrelationID:      payout.ID.String(),
		IdempotencyKey:     "payout:" + payout.ID.String(),
	})
	if err != nil {
		if markErr := s.repo.MarkFailed(ctx, s.db, payout.ID, err.Error(), s.clock.Now()); markErr != nil {
			err = errors.Join(err, markErr)
		}
		log.Error("payout.transfer.failed",
			zap.String("error_type", transferErrorType(err)),
			zap.Error(err),
		)
		result.Outcome = domain.OutcomeFailed
		result.Reason = err.Error()
		return result, err
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.MarkTransferred(ctx, tx, payout.ID, transfer.ID, now); err != nil {
			return err
		}
		_, err := s.repo.MarkCommissionsPaid(ctx, tx, commissionIDs, payout.ID, now)
		return err
	})
	if err != nil {
		// The transfer went through, so the payout stays processing.
		log.Error("payout.record.failed", zap.String("transfer_ref", transfer.ID), zap.Error(err))
		result.Outcome = domain.OutcomeTransferred
		return result, err
	}

	log.Info("payout.transferred",
		zap.Int64("amount", amount),
		zap.Int64("revenue", revenue),
		zap.Int64("commissions", totalCommissions),
		zap.String("transfer_ref", transfer.ID),
	)
	result.Outcome = domain.OutcomeTransferred
	return result, nil
}

// claim records the payout as processing before any money moves. It returns
// nil when another run claimed the row first.
func (s *Service) claim(ctx context.Context, existing *domain.Payout, payout domain.Payout) (*domain.Payout, error) {
	now := s.clock.Now()
	if existing != nil {
		payout.ID = existing.ID
		payout.CreatedAt = existing.CreatedAt
		payout.Attempts = existing.Attempts + 1
		ok, err := s.repo.Retry(ctx, s.db, &payout, now)
		if err != nil || !ok {
			return nil, err
		}
	} else {
		payout.ID = s.genID.Generate()
		payout.Attempts = 1
		payout.CreatedAt = now
		payout.Status = domain.StatusProcessing
		payout.UpdatedAt = now
		if err := s.repo.Insert(ctx, s.db, &payout); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return nil, nil
			}
			return nil, err
		}
	}
	payout.Status = domain.StatusProcessing
	payout.UpdatedAt = now
	return &payout, nil
}

func (s *Service) fail(result domain.EventResult, err error) (domain.EventResult, error) {
	result.Outcome = domain.OutcomeFailed
	result.Reason = err.Error()
	s.log.Error("payout.event.failed",
		zap.String("event_id", result.EventID.String()),
		zap.String("error_type", obsmetrics.ClassifySchedulerErrorType(err)),
		zap.Error(err),
	)
	return result, err
}

// ArtistShare applies a basis-point share to revenue, rounding half away
// from zero to the cent.
func ArtistShare(revenue, shareBP int64) int64 {
	return decimal.NewFromInt(revenue).
		Mul(decimal.NewFromInt(shareBP)).
		Div(decimal.NewFromInt(10000)).
		Round(0).
		IntPart()
}

// transferErrorType labels a failed transfer. A timeout may still have moved
// money, so the retry reuses the payout's idempotency key.
func transferErrorType(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.Is(err, paymentdomain.ErrUpstream):
		return "upstream"
	default:
		return "internal"
	}
}

func transferredAmount(result domain.EventResult) int64 {
	if result.Outcome != domain.OutcomeTransferred {
		return 0
	}
	return result.Amount
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	page := req.Pagination.Normalize()
	filter := domain.ListFilter{Limit: page.PageSize + 1}

	switch domain.Status(req.Status) {
	case "":
	case domain.StatusProcessing, domain.StatusFailed:
		filter.Status = domain.Status(req.Status)
	default:
		return domain.ListResponse{}, domain.ErrInvalidStatus
	}

	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return domain.ListResponse{}, err
		}
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return domain.ListResponse{}, pagination.ErrInvalidPageToken
		}
		filter.BeforeID = id
	}

	payouts, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListResponse{}, err
	}
	pageInfo := pagination.BuildCursorPageInfo(payouts, page.PageSize, func(p *domain.Payout) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: p.ID.String()})
		if err != nil {
			return ""
		}
		return token
	})
	if len(payouts) > page.PageSize {
		payouts = payouts[:page.PageSize]
	}
	return domain.ListResponse{Payouts: payouts, PageInfo: *pageInfo}, nil
}
