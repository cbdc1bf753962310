package sequence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	// Serialize transactions on one connection; postgres serializes on
	// the counter row lock instead.
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, conn.AutoMigrate(&DocumentSequence{}))
	return conn
}

func TestNextFormatsAndIncrements(t *testing.T) {
	conn := newTestDB(t)
	alloc := NewAllocator(zap.NewNop())
	ctx := context.Background()

	var first, second string
	err := conn.Transaction(func(tx *gorm.DB) error {
		var err error
		first, err = alloc.Next(ctx, tx, PrefixInvoice, 2025)
		return err
	})
	require.NoError(t, err)
	err = conn.Transaction(func(tx *gorm.DB) error {
		var err error
		second, err = alloc.Next(ctx, tx, PrefixInvoice, 2025)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, "INV-2025-0001", first)
	assert.Equal(t, "INV-2025-0002", second)
	assert.Regexp(t, NumberPattern, first)
}

func TestCountersAreIndependentPerPrefixAndYear(t *testing.T) {
	conn := newTestDB(t)
	alloc := NewAllocator(zap.NewNop())
	ctx := context.Background()

	for _, want := range []struct {
		prefix string
		year   int
		number string
	}{
		{PrefixInvoice, 2025, "INV-2025-0001"},
		{PrefixQuote, 2025, "QUO-2025-0001"},
		{PrefixStockReceipt, 2025, "BR-2025-0001"},
		{PrefixInvoice, 2026, "INV-2026-0001"},
		{PrefixInvoice, 2025, "INV-2025-0002"},
	} {
		var got string
		err := conn.Transaction(func(tx *gorm.DB) error {
			var err error
			got, err = alloc.Next(ctx, tx, want.prefix, want.year)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, want.number, got)
	}
}

func TestRolledBackAllocationLeavesNoGap(t *testing.T) {
	conn := newTestDB(t)
	alloc := NewAllocator(zap.NewNop())
	ctx := context.Background()

	sentinel := fmt.Errorf("creation failed")
	err := conn.Transaction(func(tx *gorm.DB) error {
		if _, err := alloc.Next(ctx, tx, PrefixInvoice, 2025); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	var got string
	err = conn.Transaction(func(tx *gorm.DB) error {
		var err error
		got, err = alloc.Next(ctx, tx, PrefixInvoice, 2025)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "INV-2025-0001", got)
}

func TestConcurrentAllocationIsContiguous(t *testing.T) {
	conn := newTestDB(t)
	alloc := NewAllocator(zap.NewNop())
	ctx := context.Background()

	const n = 20
	var (
		mu      sync.Mutex
		numbers []string
		wg      sync.WaitGroup
	)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			err := conn.Transaction(func(tx *gorm.DB) error {
				number, err := alloc.Next(ctx, tx, PrefixInvoice, 2025)
				if err != nil {
					return err
				}
				mu.Lock()
				numbers = append(numbers, number)
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, numbers, n)
	sort.Strings(numbers)
	for i, number := range numbers {
		assert.Equal(t, Format(PrefixInvoice, 2025, int64(i+1)), number)
	}
}
