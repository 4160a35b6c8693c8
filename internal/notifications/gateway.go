package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"storefront/internal/types"
)

// AdminDirectory resolves administrator accounts.
type AdminDirectory interface {
	GetAdmins(ctx context.Context) ([]types.User, error)
}

// Gateway renders lifecycle events and publishes one envelope per direct
// recipient, or a single envelope with audience "all" for broadcasts.
type Gateway struct {
	publisher Publisher
	admins    AdminDirectory
	logger    *slog.Logger
	now       func() time.Time
}

// NewGateway creates a Gateway.
func NewGateway(publisher Publisher, admins AdminDirectory, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		publisher: publisher,
		admins:    admins,
		logger:    logger,
		now:       time.Now,
	}
}

// SendToUser publishes msg to one user.
func (g *Gateway) SendToUser(ctx context.Context, user types.User, msg types.Message) error {
	return g.publisher.Publish(ctx, directEnvelope(user, msg, g.now()))
}

// SendOrderStatusChanged tells the order's owner about its new status.
func (g *Gateway) SendOrderStatusChanged(ctx context.Context, user types.User, order types.Order, status types.OrderStatus) error {
	return g.SendToUser(ctx, user, OrderStatusMessage(order, status))
}

// SendSaleStartingBroadcast announces a sale to all users.
func (g *Gateway) SendSaleStartingBroadcast(ctx context.Context, saleName string, isToday bool) error {
	return g.publisher.Publish(ctx, newEnvelope(types.AudienceAll, SaleStartingMessage(saleName, isToday), g.now()))
}

// SendSaleEndingBroadcast sends the last-chance notice to all users.
func (g *Gateway) SendSaleEndingBroadcast(ctx context.Context, saleName string, discountPercent float64) error {
	return g.publisher.Publish(ctx, newEnvelope(types.AudienceAll, SaleEndingMessage(saleName, discountPercent), g.now()))
}

// SendLowStockAlert alerts every admin about product and returns how many
// were reached. It fails when the admin list cannot be loaded or when no
// admin could be reached; a partial delivery counts as success.
func (g *Gateway) SendLowStockAlert(ctx context.Context, product types.Product) (int, error) {
	admins, err := g.admins.GetAdmins(ctx)
	if err != nil {
		return 0, fmt.Errorf("low stock alert for product %d: %w", product.ID, err)
	}

	msg := LowStockAdminMessage(product)
	var (
		sent int
		errs []error
	)
	for _, admin := range admins {
		if err := g.SendToUser(ctx, admin, msg); err != nil {
			g.logger.WarnContext(ctx, "failed to deliver low stock alert",
				"product_id", product.ID,
				"user_id", admin.ID,
				"error", err,
			)
			errs = append(errs, err)
			continue
		}
		sent++
	}

	if sent == 0 && len(errs) > 0 {
		return 0, fmt.Errorf("low stock alert for product %d: %w", product.ID, errors.Join(errs...))
	}
	return sent, nil
}
