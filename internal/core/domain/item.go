package domain

import "time"

const DefaultStock = 1

type Item struct {
	Name      string
	Price     int
	Stock     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ItemPatch holds the fields of a partial update. Nil fields are left untouched.
type ItemPatch struct {
	Price *int
	Stock *int
}

func (p ItemPatch) Empty() bool {
	return p.Price == nil && p.Stock == nil
}

// NewItem builds an item for creation, applying the default stock when none is given.
func NewItem(name string, price int, stock *int) Item {
	s := DefaultStock
	if stock != nil {
		s = *stock
	}
	now := time.Now().UTC()
	return Item{
		Name:      name,
		Price:     price,
		Stock:     s,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Apply returns a copy of the item with the patch applied.
func (i Item) Apply(p ItemPatch) Item {
	if p.Price != nil {
		i.Price = *p.Price
	}
	if p.Stock != nil {
		i.Stock = *p.Stock
	}
	i.UpdatedAt = time.Now().UTC()
	return i
}
