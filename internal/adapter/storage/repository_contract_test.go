package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/pokestore/internal/core/domain"
	"github.com/rl1809/pokestore/internal/port"
)

// runItemRepositoryContract checks the behaviour every ItemRepository backend must share.
func runItemRepositoryContract(t *testing.T, repo port.ItemRepository) {
	ctx := context.Background()
	unique := func(prefix string) string { return prefix + "-" + uuid.NewString()[:8] }
	stock := func(v int) *int { return &v }

	t.Run("CreateAndFind", func(t *testing.T) {
		name := unique("pikachu")
		_, err := repo.Create(ctx, domain.NewItem(name, 20, stock(4)))
		require.NoError(t, err)

		got, err := repo.FindByName(ctx, name)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, name, got.Name)
		assert.Equal(t, 20, got.Price)
		assert.Equal(t, 4, got.Stock)
	})

	t.Run("FindMissing", func(t *testing.T) {
		got, err := repo.FindByName(ctx, unique("missingno"))
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("DuplicateName", func(t *testing.T) {
		name := unique("eevee")
		_, err := repo.Create(ctx, domain.NewItem(name, 10, nil))
		require.NoError(t, err)

		_, err = repo.Create(ctx, domain.NewItem(name, 99, nil))
		assert.ErrorIs(t, err, domain.ErrDuplicateName)
	})

	t.Run("FindAll", func(t *testing.T) {
		name := unique("bulbasaur")
		_, err := repo.Create(ctx, domain.NewItem(name, 5, nil))
		require.NoError(t, err)

		items, err := repo.FindAll(ctx)
		require.NoError(t, err)

		var found bool
		for _, it := range items {
			if it.Name == name {
				found = true
			}
		}
		assert.True(t, found)
	})

	t.Run("UpdatePartial", func(t *testing.T) {
		name := unique("charmander")
		_, err := repo.Create(ctx, domain.NewItem(name, 30, stock(2)))
		require.NoError(t, err)

		updated, err := repo.Update(ctx, name, domain.ItemPatch{Stock: stock(7)})
		require.NoError(t, err)
		assert.Equal(t, 30, updated.Price)
		assert.Equal(t, 7, updated.Stock)

		_, err = repo.Update(ctx, unique("missingno"), domain.ItemPatch{Stock: stock(1)})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		name := unique("squirtle")
		_, err := repo.Create(ctx, domain.NewItem(name, 25, nil))
		require.NoError(t, err)

		n, err := repo.DeleteByName(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = repo.DeleteByName(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})

	t.Run("DecrementStock", func(t *testing.T) {
		name := unique("mew")
		_, err := repo.Create(ctx, domain.NewItem(name, 20, stock(4)))
		require.NoError(t, err)

		item, err := repo.DecrementStock(ctx, name, 3)
		require.NoError(t, err)
		assert.Equal(t, 1, item.Stock)

		_, err = repo.DecrementStock(ctx, name, 2)
		assert.ErrorIs(t, err, domain.ErrStockConflict)

		_, err = repo.DecrementStock(ctx, unique("missingno"), 1)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("DecrementStockConcurrent", func(t *testing.T) {
		name := unique("snorlax")
		_, err := repo.Create(ctx, domain.NewItem(name, 1, stock(20)))
		require.NoError(t, err)

		var successCount atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := repo.DecrementStock(ctx, name, 1); err == nil {
					successCount.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(20), successCount.Load())
		got, err := repo.FindByName(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, 0, got.Stock)
	})
}
