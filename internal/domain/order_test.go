package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// helper для создания базового заказа с двумя позициями.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:               "order-1",
		UserID:           "user-1",
		OrderNumber:      "ORD-1",
		Status:           domain.OrderStatusPending,
		TotalAmountMinor: 500,
		TaxMinor:         50,
		ShippingFeeMinor: 100,
		GrandTotalMinor:  650,
		ShippingAddress:  []byte(`{"city":"Moscow"}`),
		PaymentMethod:    "card",
		PaymentStatus:    domain.PaymentStatePending,
		Items: []domain.OrderItem{
			{
				ID:              "item-1",
				ProductID:       "product-1",
				ProductName:     "Widget",
				ProductSKU:      "sku-1",
				Qty:             3,
				PriceMinor:      100,
				TotalPriceMinor: 300,
				CreatedAt:       now,
			},
			{
				ID:              "item-2",
				ProductID:       "product-2",
				ProductName:     "Gadget",
				ProductSKU:      "sku-2",
				Qty:             2,
				PriceMinor:      100,
				TotalPriceMinor: 200,
				CreatedAt:       now,
			},
		},
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	require.Empty(t, order.ValidateInvariants())
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
	}{
		{
			name: "no user",
			mut: func(o *domain.Order) {
				o.UserID = ""
			},
		},
		{
			name: "no shipping address",
			mut: func(o *domain.Order) {
				o.ShippingAddress = nil
			},
		},
		{
			name: "no items",
			mut: func(o *domain.Order) {
				o.Items = nil
			},
		},
		{
			name: "negative amount",
			mut: func(o *domain.Order) {
				o.TotalAmountMinor = -1
			},
		},
		{
			name: "qty invalid",
			mut: func(o *domain.Order) {
				o.Items[0].Qty = 0
			},
		},
		{
			name: "price invalid",
			mut: func(o *domain.Order) {
				o.Items[0].PriceMinor = -5
			},
		},
		{
			name: "discount above price",
			mut: func(o *domain.Order) {
				o.Items[0].DiscountMinor = o.Items[0].PriceMinor + 1
			},
		},
		{
			name: "grand total mismatch",
			mut: func(o *domain.Order) {
				o.GrandTotalMinor = 999999
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			tc.mut(&order)
			require.NotEmpty(t, order.ValidateInvariants())
		})
	}
}

func TestOrderRecalcGrandTotal(t *testing.T) {
	order := makeOrder()
	order.TaxMinor = 75
	order.RecalcGrandTotal()
	require.Equal(t, int64(675), order.GrandTotalMinor)
}

func TestOrderItemsTotal(t *testing.T) {
	order := makeOrder()
	require.Equal(t, order.TotalAmountMinor, order.ItemsTotal())
}

func TestOrderStatusCanTransition(t *testing.T) {
	cases := []struct {
		from    domain.OrderStatus
		to      domain.OrderStatus
		allowed bool
	}{
		{domain.OrderStatusPending, domain.OrderStatusProcessing, true},
		{domain.OrderStatusPending, domain.OrderStatusCancelled, true},
		{domain.OrderStatusPending, domain.OrderStatusRefunded, true},
		{domain.OrderStatusPending, domain.OrderStatusShipped, false},
		{domain.OrderStatusPending, domain.OrderStatusDelivered, false},
		{domain.OrderStatusProcessing, domain.OrderStatusShipped, true},
		{domain.OrderStatusProcessing, domain.OrderStatusDelivered, true},
		{domain.OrderStatusProcessing, domain.OrderStatusCancelled, true},
		{domain.OrderStatusProcessing, domain.OrderStatusRefunded, true},
		{domain.OrderStatusShipped, domain.OrderStatusDelivered, true},
		{domain.OrderStatusShipped, domain.OrderStatusCancelled, false},
		{domain.OrderStatusDelivered, domain.OrderStatusCancelled, false},
		{domain.OrderStatusCancelled, domain.OrderStatusProcessing, false},
		{domain.OrderStatusCancelled, domain.OrderStatusPending, false},
		{domain.OrderStatusRefunded, domain.OrderStatusProcessing, false},
	}

	for _, tc := range cases {
		require.Equalf(t, tc.allowed, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	terminal := []domain.OrderStatus{
		domain.OrderStatusDelivered,
		domain.OrderStatusCancelled,
		domain.OrderStatusRefunded,
	}
	for _, s := range terminal {
		require.Truef(t, s.Terminal(), "%s must be terminal", s)
		require.Falsef(t, s.Cancellable(), "%s must not be cancellable", s)
	}

	require.True(t, domain.OrderStatusPending.Cancellable())
	require.True(t, domain.OrderStatusProcessing.Cancellable())
	require.False(t, domain.OrderStatusShipped.Cancellable())
}

func TestOrderItemLineTotal(t *testing.T) {
	item := domain.OrderItem{Qty: 4, PriceMinor: 250, DiscountMinor: 50}
	require.Equal(t, int64(800), item.LineTotal())
}
