package models

import "github.com/alovak/csob-gateway/internal/canonical"

// CartItem is one line of the shopping cart shown on the payment page.
// The gateway accepts one or two items.
type CartItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	// Amount is the line total in the smallest currency unit
	Amount int64 `json:"amount"`
	// Description is optional; an empty description is not sent
	Description string `json:"description,omitempty"`
}

// Fields returns the item in signing order.
func (c CartItem) Fields() *canonical.FieldSet {
	f := canonical.NewFieldSet().
		Set("name", c.Name).
		Set("quantity", c.Quantity).
		Set("amount", c.Amount)
	if c.Description != "" {
		f.Set("description", c.Description)
	}
	return f
}

// Cart converts items into the value stored under the cart key.
func Cart(items []CartItem) []*canonical.FieldSet {
	if len(items) == 0 {
		return nil
	}
	out := make([]*canonical.FieldSet, 0, len(items))
	for _, it := range items {
		out = append(out, it.Fields())
	}
	return out
}
