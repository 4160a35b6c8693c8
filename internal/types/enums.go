package types

// OrderStatus represents the delivery lifecycle state of an order.
// The empty value means the status column was NULL.
type OrderStatus string

const (
	OrderPending        OrderStatus = "PENDING"
	OrderConfirmed      OrderStatus = "CONFIRMED"
	OrderShipped        OrderStatus = "SHIPPED"
	OrderOutForDelivery OrderStatus = "OUT_FOR_DELIVERY"
	OrderDelivered      OrderStatus = "DELIVERED"
	OrderCancelled      OrderStatus = "CANCELLED"
)

// IsTerminal reports whether no further transitions may occur from s.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

// Label returns the customer-facing wording for the status.
func (s OrderStatus) Label() string {
	switch s {
	case OrderPending:
		return "Pending"
	case OrderConfirmed:
		return "Confirmed"
	case OrderShipped:
		return "Shipped"
	case OrderOutForDelivery:
		return "Out for delivery"
	case OrderDelivered:
		return "Delivered"
	case OrderCancelled:
		return "Cancelled"
	default:
		return string(s)
	}
}

// SaleStatus represents the lifecycle state of a promotional sale.
type SaleStatus string

const (
	SaleScheduled SaleStatus = "SCHEDULED"
	SaleActive    SaleStatus = "ACTIVE"
	SaleCompleted SaleStatus = "COMPLETED"
)

// Audience identifies who a published notification envelope is addressed to.
type Audience string

const (
	AudienceUser   Audience = "user"
	AudienceAdmins Audience = "admins"
	AudienceAll    Audience = "all"
)

// MessageKind classifies a notification for downstream routing and templating.
type MessageKind string

const (
	KindOrderStatusChanged MessageKind = "order_status_changed"
	KindSaleStarting       MessageKind = "sale_starting"
	KindSaleEnding         MessageKind = "sale_ending"
	KindSaleEndingAdmin    MessageKind = "sale_ending_admin"
	KindLowStockAdmin      MessageKind = "low_stock_admin"
	KindWishlistLowStock   MessageKind = "wishlist_low_stock"
	KindGeneric            MessageKind = "generic"
)
