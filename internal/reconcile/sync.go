package reconcile

import (
	"context"
	"errors"

	"github.com/tecnogrow/paybridge/internal/buyorder"
	"github.com/tecnogrow/paybridge/internal/odoo"
	"github.com/tecnogrow/paybridge/internal/tenants"
	"github.com/tecnogrow/paybridge/internal/webpay"
	"github.com/tecnogrow/paybridge/pkg/logger"
)

// ErrOrderNotFound means no ERP order matched the paid transaction. The
// payment stays captured; the mismatch is an operational follow-up, not a
// transaction failure.
var ErrOrderNotFound = errors.New("no erp order matched the transaction")

// OrderStore is the ERP surface the syncer drives. odoo.SalesService is the
// production implementation.
type OrderStore interface {
	OrderByName(ctx context.Context, name string) (*odoo.Order, error)
	FindOrder(ctx context.Context, customerHint string, amount *int64, orderDate string) (*odoo.Order, error)
	ConfirmOrder(ctx context.Context, orderID int) error
	ForceSaleState(ctx context.Context, orderID int) error
	AppendNote(ctx context.Context, orderID int, buyOrder string) error
	UpsertPaymentTransaction(ctx context.Context, order *odoo.Order, record odoo.PaymentRecord) error
}

// StoreFactory opens the ERP connection for one tenant. Implementations may
// cache connections; the syncer does not.
type StoreFactory func(tenant *tenants.Tenant) (OrderStore, error)

// Syncer reconciles a gateway-approved payment into the tenant's ERP.
type Syncer struct {
	stores StoreFactory
	logger *logger.Logger
}

func NewSyncer(stores StoreFactory, logg *logger.Logger) *Syncer {
	return &Syncer{stores: stores, logger: logg}
}

// Sync locates the ERP order behind a paid transaction and confirms it. The
// returned error reports that reconciliation is incomplete; the caller never
// treats it as a payment failure.
func (s *Syncer) Sync(ctx context.Context, tenant *tenants.Tenant, result *webpay.TransactionResult) error {
	lctx := s.logger.WithTenantID(ctx, tenant.ID)
	lctx = s.logger.WithBuyOrder(lctx, result.BuyOrder)

	store, err := s.stores(tenant)
	if err != nil {
		return err
	}

	order, err := s.locateOrder(lctx, store, result.BuyOrder)
	if err != nil {
		return err
	}
	if order == nil {
		s.logger.Warn(lctx, "payment captured but no erp order matched")
		return ErrOrderNotFound
	}
	lctx = s.logger.WithField(lctx, "order_name", order.Name)

	if err := store.ConfirmOrder(lctx, order.ID); err != nil {
		if !odoo.IsStockBlock(err) {
			s.logger.Error(lctx, "erp confirm failed, order left unconfirmed", err)
			return err
		}
		// Payment capture must not be blocked by inventory policy: write the
		// confirmed state directly.
		s.logger.Warn(lctx, "erp confirm blocked by stock rules, forcing sale state")
		if err := store.ForceSaleState(lctx, order.ID); err != nil {
			s.logger.Error(lctx, "forcing sale state failed", err)
			return err
		}
	}

	if err := store.AppendNote(lctx, order.ID, result.BuyOrder); err != nil {
		s.logger.Error(lctx, "writing payment note failed", err)
	}

	record := odoo.PaymentRecord{
		Reference:         result.BuyOrder,
		Amount:            result.Amount,
		AuthorizationCode: result.AuthorizationCode,
	}
	if tenant.Webpay != nil {
		record.ProviderRef = tenant.Webpay.ProviderRef
		record.PaymentMethodRef = tenant.Webpay.PaymentMethodRef
	}
	if err := store.UpsertPaymentTransaction(lctx, order, record); err != nil {
		s.logger.Error(lctx, "payment transaction upsert failed", err)
	}

	s.logger.Info(lctx, "erp order reconciled")
	return nil
}

// locateOrder prefers the unambiguous exact-name match; the fuzzy criteria
// exist for identifiers that degraded while being built.
func (s *Syncer) locateOrder(ctx context.Context, store OrderStore, buyOrder string) (*odoo.Order, error) {
	order, err := store.OrderByName(ctx, buyOrder)
	if err != nil {
		return nil, err
	}
	if order != nil {
		return order, nil
	}

	parsed := buyorder.Parse(buyOrder)
	return store.FindOrder(ctx, parsed.CustomerHint, parsed.Amount, parsed.OrderDate)
}
