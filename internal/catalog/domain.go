// Package catalog holds master data: green coffees and the roasted coffee
// products made from them. Products are never deleted, only deactivated,
// because roast batches keep pointing at them.
package catalog

import "time"

// GreenCoffee is one purchasable raw bean.
type GreenCoffee struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Origin    string    `json:"origin,omitempty"`
	Organic   bool      `json:"organic"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// CoffeeProduct is one sellable roasted coffee. Its roast level fixes the
// level segment of every LOT roasted for it.
type CoffeeProduct struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	GreenCoffeeID int64     `json:"green_coffee_id,omitempty"`
	Level         string    `json:"roast_level"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}
