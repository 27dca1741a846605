package cart

import (
	"slices"

	"github.com/abdotop/cartpay/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	freeShippingOver = decimal.NewFromInt(200)
	flatShipping     = decimal.NewFromInt(25)
	taxRate          = decimal.RequireFromString("0.05")
)

// Price computes the order info shown on the confirm step and charged on the
// payment page. Shipping is free above 200, tax is 5% of the items.
func Price(items []domain.CartItem) domain.OrderInfo {
	itemsPrice := decimal.Zero
	for _, it := range items {
		line := decimal.NewFromFloat(it.Price).Mul(decimal.NewFromInt(int64(it.Quantity)))
		itemsPrice = itemsPrice.Add(line)
	}
	itemsPrice = itemsPrice.Round(2)

	shipping := flatShipping
	if itemsPrice.GreaterThan(freeShippingOver) {
		shipping = decimal.Zero
	}
	tax := itemsPrice.Mul(taxRate).Round(2)
	total := itemsPrice.Add(shipping).Add(tax).Round(2)

	return domain.OrderInfo{
		ItemsPrice:    itemsPrice.InexactFloat64(),
		ShippingPrice: shipping.InexactFloat64(),
		TaxPrice:      tax.InexactFloat64(),
		TotalPrice:    total.InexactFloat64(),
	}
}

// Add returns a copy of items with item merged in. An existing line for the
// same product takes the new quantity, mirroring how the cart page re-adds a
// product. items is never modified.
func Add(items []domain.CartItem, item domain.CartItem) []domain.CartItem {
	out := slices.Clone(items)
	for i := range out {
		if out[i].Product == item.Product {
			out[i] = item
			return out
		}
	}
	return append(out, item)
}

// Remove returns a copy of items without the line for product.
func Remove(items []domain.CartItem, product string) []domain.CartItem {
	out := make([]domain.CartItem, 0, len(items))
	for _, it := range items {
		if it.Product != product {
			out = append(out, it)
		}
	}
	return out
}
