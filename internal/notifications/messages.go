package notifications

import (
	"fmt"
	"strconv"

	"storefront/internal/types"
)

func formatID(id int64) string { return strconv.FormatInt(id, 10) }

func formatPercent(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64) + "%"
}

// OrderStatusMessage tells a customer their order moved to status.
func OrderStatusMessage(order types.Order, status types.OrderStatus) types.Message {
	body := fmt.Sprintf("Your order #%d is now %s.", order.ID, status.Label())
	if order.DeliveryEstimate != nil && !status.IsTerminal() {
		body += fmt.Sprintf(" Estimated delivery: %s.", order.DeliveryEstimate.Format("Jan 2, 2006"))
	}
	return types.Message{
		Kind:  types.KindOrderStatusChanged,
		Title: fmt.Sprintf("Order #%d: %s", order.ID, status.Label()),
		Body:  body,
	}
}

// SaleStartingMessage announces a sale starting today or tomorrow.
func SaleStartingMessage(saleName string, isToday bool) types.Message {
	when := "tomorrow"
	if isToday {
		when = "today"
	}
	return types.Message{
		Kind:  types.KindSaleStarting,
		Title: fmt.Sprintf("%s starts %s", saleName, when),
		Body:  fmt.Sprintf("Our %s sale starts %s. Don't miss it!", saleName, when),
	}
}

// SaleEndingMessage is the last-chance broadcast sent the day before a sale
// ends.
func SaleEndingMessage(saleName string, discountPercent float64) types.Message {
	return types.Message{
		Kind:  types.KindSaleEnding,
		Title: fmt.Sprintf("Last chance: %s ends tomorrow", saleName),
		Body:  fmt.Sprintf("Save %s with %s before it ends tomorrow.", formatPercent(discountPercent), saleName),
	}
}

// SaleEndingAdminMessage alerts an administrator that a sale ends tomorrow.
func SaleEndingAdminMessage(saleName string, discountPercent float64) types.Message {
	return types.Message{
		Kind:  types.KindSaleEndingAdmin,
		Title: fmt.Sprintf("Sale ending tomorrow: %s", saleName),
		Body:  fmt.Sprintf("The %s sale (%s off) ends tomorrow.", saleName, formatPercent(discountPercent)),
	}
}

// LowStockAdminMessage alerts an administrator about a low-stock product.
func LowStockAdminMessage(product types.Product) types.Message {
	return types.Message{
		Kind:  types.KindLowStockAdmin,
		Title: fmt.Sprintf("Low stock: %s", product.Name),
		Body:  fmt.Sprintf("%s (#%d) has %d left in stock.", product.Name, product.ID, product.Stock),
	}
}

// WishlistLowStockMessage tells a shopper a wishlisted product is running
// out.
func WishlistLowStockMessage(product types.Product) types.Message {
	return types.Message{
		Kind:  types.KindWishlistLowStock,
		Title: fmt.Sprintf("%s is almost gone", product.Name),
		Body:  fmt.Sprintf("Only %d left of %s from your wishlist.", product.Stock, product.Name),
	}
}
