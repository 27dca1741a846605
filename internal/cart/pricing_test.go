package cart

import (
	"testing"

	"github.com/abdotop/cartpay/internal/domain"
)

func TestPrice(t *testing.T) {
	tests := []struct {
		name  string
		items []domain.CartItem
		want  domain.OrderInfo
	}{
		{
			name: "empty cart pays flat shipping",
			want: domain.OrderInfo{ShippingPrice: 25, TotalPrice: 25},
		},
		{
			name:  "small cart",
			items: []domain.CartItem{{Product: "p1", Price: 19.99, Quantity: 2}},
			want:  domain.OrderInfo{ItemsPrice: 39.98, ShippingPrice: 25, TaxPrice: 2, TotalPrice: 66.98},
		},
		{
			name:  "exactly 200 still pays shipping",
			items: []domain.CartItem{{Product: "p1", Price: 100, Quantity: 2}},
			want:  domain.OrderInfo{ItemsPrice: 200, ShippingPrice: 25, TaxPrice: 10, TotalPrice: 235},
		},
		{
			name: "free shipping over 200",
			items: []domain.CartItem{
				{Product: "p1", Price: 150.5, Quantity: 1},
				{Product: "p2", Price: 60, Quantity: 1},
			},
			want: domain.OrderInfo{ItemsPrice: 210.5, ShippingPrice: 0, TaxPrice: 10.53, TotalPrice: 221.03},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Price(tt.items); got != tt.want {
				t.Fatalf("Price() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestAddRemove(t *testing.T) {
	var items []domain.CartItem
	items = Add(items, domain.CartItem{Product: "p1", Quantity: 1})
	items = Add(items, domain.CartItem{Product: "p2", Quantity: 1})
	items = Add(items, domain.CartItem{Product: "p1", Quantity: 3})

	if len(items) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(items))
	}
	if items[0].Quantity != 3 {
		t.Fatalf("expected p1 quantity to be replaced, got %d", items[0].Quantity)
	}

	items = Remove(items, "p1")
	if len(items) != 1 || items[0].Product != "p2" {
		t.Fatalf("unexpected items after remove: %+v", items)
	}
	items = Remove(items, "missing")
	if len(items) != 1 {
		t.Fatalf("removing unknown product changed cart: %+v", items)
	}
}

func TestAddRemoveLeaveInputUntouched(t *testing.T) {
	items := make([]domain.CartItem, 2, 4)
	items[0] = domain.CartItem{Product: "p1", Quantity: 1}
	items[1] = domain.CartItem{Product: "p2", Quantity: 1}

	added := Add(items, domain.CartItem{Product: "p1", Quantity: 5})
	if items[0].Quantity != 1 {
		t.Fatalf("Add modified the input: %+v", items)
	}
	if added[0].Quantity != 5 {
		t.Fatalf("expected merged quantity 5, got %d", added[0].Quantity)
	}

	appended := Add(items, domain.CartItem{Product: "p3", Quantity: 1})
	appended[0].Quantity = 9
	if items[0].Quantity != 1 {
		t.Fatalf("Add result shares storage with the input: %+v", items)
	}

	removed := Remove(items, "p1")
	if len(removed) != 1 || removed[0].Product != "p2" {
		t.Fatalf("unexpected items after remove: %+v", removed)
	}
	if items[0].Product != "p1" || items[1].Product != "p2" {
		t.Fatalf("Remove modified the input: %+v", items)
	}
}

func BenchmarkPrice(b *testing.B) {
	items := []domain.CartItem{
		{Product: "p1", Price: 19.99, Quantity: 2},
		{Product: "p2", Price: 5.25, Quantity: 7},
	}
	for i := 0; i < b.N; i++ {
		Price(items)
	}
}
