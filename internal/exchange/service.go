// Package exchange orchestrates the ledger, matching engine, and
// market-data fan-out behind one place_order pipeline: reserve, match,
// settle each trade, then market-data intake (spec.md §2, §5). Neither
// the teacher nor any single pack repo had all three components to
// wire together, so this orchestration layer is new.
package exchange

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"exchangecore/internal/ledger"
	"exchangecore/internal/marketdata"
	"exchangecore/internal/matching"
	"exchangecore/internal/metrics"
	"exchangecore/internal/models"
	"exchangecore/internal/xerrors"
)

// Service is the single entry point client code drives; it owns no
// state of its own beyond references to the three components.
type Service struct {
	ledger   *ledger.Ledger
	engine   *matching.Engine
	fanout   *marketdata.Fanout
	log      zerolog.Logger
	metrics  *metrics.Collector
	depth    int // depth snapshot size published to market data on every match
}

// New builds a Service over already-constructed components.
func New(l *ledger.Ledger, e *matching.Engine, f *marketdata.Fanout, log zerolog.Logger, collector *metrics.Collector) *Service {
	return &Service{
		ledger:  l,
		engine:  e,
		fanout:  f,
		log:     log.With().Str("component", "exchange").Logger(),
		metrics: collector,
		depth:   20,
	}
}

// RegisterMarket registers a market with the matching engine so orders
// against it can be placed (spec.md §4.1 register_market).
func (s *Service) RegisterMarket(market models.Market) error {
	return s.engine.RegisterMarket(market)
}

// PlaceOrder runs the full reserve → match → settle → market-data
// intake pipeline for one order (spec.md §2, §5). market must be the
// same spec the order was validated against at RegisterMarket time.
func (s *Service) PlaceOrder(ctx context.Context, order *models.Order, market models.Market) (*matching.MatchResult, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.MatchingLatency.WithLabelValues(market.ID).Observe(time.Since(start).Seconds())
		}
	}()

	if err := s.ledger.ReserveForOrder(ctx, order, market); err != nil {
		s.recordRejection(market.ID, err)
		return nil, err
	}

	result, err := s.engine.PlaceOrder(order)
	if err != nil {
		// Matching never touched the book; undo the reservation.
		if releaseErr := s.ledger.ReleaseReserved(ctx, order, market); releaseErr != nil {
			s.log.Error().Err(releaseErr).Str("order_id", order.ID.String()).Msg("failed to release reservation after rejected order")
		}
		s.recordRejection(market.ID, err)
		return nil, err
	}

	if err := s.settleAndPublish(ctx, result, market); err != nil {
		// Settlement failed partway: cancel the taker's resting residual,
		// release the reservation behind whatever of the taker is now
		// canceled, and surface the settlement error.
		if order.IsResting() {
			if _, cancelErr := s.engine.CancelOrder(market.ID, order.ID); cancelErr != nil {
				s.log.Error().Err(cancelErr).Str("order_id", order.ID.String()).Msg("failed to cancel order after settlement failure")
			}
		}
		if order.Status == models.Canceled {
			if releaseErr := s.ledger.ReleaseReserved(ctx, order, market); releaseErr != nil {
				s.log.Error().Err(releaseErr).Str("order_id", order.ID.String()).Msg("failed to release reservation after settlement failure")
			}
		}
		return nil, err
	}

	// IOC and Market orders that did not fully fill are auto-canceled by
	// the matching loop itself (never routed through CancelOrder), so
	// their residual reservation must be released here.
	if order.Status == models.Canceled {
		if err := s.ledger.ReleaseReserved(ctx, order, market); err != nil {
			s.log.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to release reservation after auto-cancel")
		}
	}

	s.publishDepth(market.ID)
	if s.metrics != nil {
		s.metrics.OrdersTotal.WithLabelValues(market.ID, order.Side.String(), order.Type.String()).Inc()
	}
	return result, nil
}

// settleAndPublish applies every trade's balance deltas through the
// ledger and then feeds the trade into market data, in matching-loop
// order (spec.md §4.1 step 5).
func (s *Service) settleAndPublish(ctx context.Context, result *matching.MatchResult, market models.Market) error {
	for _, trade := range result.Trades {
		if err := s.ledger.SettleTrade(ctx, trade, market); err != nil {
			if s.metrics != nil {
				s.metrics.LedgerErrors.WithLabelValues(string(xerrors.KindOf(err))).Inc()
			}
			return err
		}
		s.fanout.OnTrade(marketdata.TradeEvent{
			ID:       trade.ID.String(),
			Market:   trade.Market,
			Price:    trade.Price,
			Quantity: trade.Quantity,
			Side:     trade.TakerSide.String(),
			At:       trade.ExecutedAt,
		})
	}
	return nil
}

// publishDepth pushes the book's current top-N depth into market data
// (spec.md §4.1 step 5 "the updated book top are handed to the
// market-data fan-out").
func (s *Service) publishDepth(marketID string) {
	bids, asks, err := s.engine.GetMarketDepth(marketID, s.depth)
	if err != nil {
		return
	}
	s.fanout.OnDepth(marketdata.DepthEvent{
		Market: marketID,
		Bids:   toFanoutLevels(bids),
		Asks:   toFanoutLevels(asks),
		At:     time.Now().UTC(),
	})
}

func toFanoutLevels(levels []matching.DepthLevel) []marketdata.DepthLevel {
	out := make([]marketdata.DepthLevel, len(levels))
	for i, l := range levels {
		out[i] = marketdata.DepthLevel{Price: l.Price, Quantity: l.Quantity}
	}
	return out
}

func (s *Service) recordRejection(marketID string, err error) {
	if s.metrics != nil {
		s.metrics.OrdersRejected.WithLabelValues(marketID, string(xerrors.KindOf(err))).Inc()
	}
}

// CancelOrder cancels a resting order and releases its reservation
// (spec.md §4.1 cancel_order).
func (s *Service) CancelOrder(ctx context.Context, marketID string, id uuid.UUID, market models.Market) (models.Order, error) {
	order, err := s.engine.CancelOrder(marketID, id)
	if err != nil {
		return models.Order{}, err
	}
	if err := s.ledger.ReleaseReserved(ctx, &order, market); err != nil {
		s.log.Error().Err(err).Str("order_id", id.String()).Msg("failed to release reservation on cancel")
		return order, err
	}
	s.publishDepth(marketID)
	return order, nil
}
