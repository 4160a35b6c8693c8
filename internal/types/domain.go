package types

import "time"

// Order is a customer order as stored by the order repository.
// OrderDate and Status may be missing on legacy rows.
type Order struct {
	ID               int64       `json:"id" db:"id"`
	UserID           int64       `json:"user_id" db:"user_id"`
	OrderDate        *time.Time  `json:"order_date,omitempty" db:"order_date"`
	DeliveryEstimate *time.Time  `json:"delivery_estimate,omitempty" db:"delivery_estimate"`
	Status           OrderStatus `json:"status" db:"status"`
	TotalAmount      float64     `json:"total_amount" db:"total_amount"`
	AddressID        int64       `json:"address_id" db:"address_id"`
}

// Sale is a promotional sale window. StartDate and EndDate are calendar
// dates and the range is inclusive on both ends.
type Sale struct {
	ID              int64      `json:"id" db:"id"`
	Name            string     `json:"name" db:"name"`
	DiscountPercent float64    `json:"discount_percent" db:"discount_percent"`
	StartDate       *time.Time `json:"start_date,omitempty" db:"start_date"`
	EndDate         *time.Time `json:"end_date,omitempty" db:"end_date"`
	Status          SaleStatus `json:"status" db:"status"`
	IsActive        bool       `json:"is_active" db:"is_active"`
}

// Product carries the fields the stock monitor needs.
type Product struct {
	ID    int64  `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Stock int    `json:"stock" db:"stock"`
}

// User is a storefront account. Admins receive operational alerts.
type User struct {
	ID      int64  `json:"id" db:"id"`
	Email   string `json:"email" db:"email"`
	Name    string `json:"name" db:"name"`
	IsAdmin bool   `json:"is_admin" db:"is_admin"`
}

// Message is a rendered, channel-agnostic notification.
type Message struct {
	Kind  MessageKind `json:"kind"`
	Title string      `json:"title"`
	Body  string      `json:"body"`
}
