package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewItem_DefaultStock(t *testing.T) {
	item := NewItem("Pikachu", 20, nil)
	assert.Equal(t, DefaultStock, item.Stock)
	assert.False(t, item.CreatedAt.IsZero())

	zero := 0
	item = NewItem("Pikachu", 20, &zero)
	assert.Equal(t, 0, item.Stock)
}

func TestItem_Apply(t *testing.T) {
	price := 35
	item := Item{Name: "Pikachu", Price: 20, Stock: 4}

	patched := item.Apply(ItemPatch{Price: &price})
	assert.Equal(t, 35, patched.Price)
	assert.Equal(t, 4, patched.Stock)
	assert.Equal(t, 20, item.Price, "apply must not modify the receiver")

	assert.True(t, ItemPatch{}.Empty())
	assert.False(t, ItemPatch{Price: &price}.Empty())
}
