package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/timothylidede/vendai-credit/internal/domain"
	"github.com/timothylidede/vendai-credit/internal/testutil"
)

func TestEventRepository_Admit(t *testing.T) {
	pool := testutil.NewTestPool(t)
	repo := NewEventRepository(pool)
	testutil.ApplyMigrations(t, context.Background(), pool)

	now := time.Now().UTC()

	t.Run("first delivery wins, repeats lose", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		admitted, err := repo.Admit(ctx, domain.SourceLendingPartner, "lending:evt-1", now)
		if err != nil {
			t.Fatalf("admit: %v", err)
		}
		if !admitted {
			t.Fatalf("expected first delivery admitted")
		}

		admitted, err = repo.Admit(ctx, domain.SourceLendingPartner, "lending:evt-1", now)
		if err != nil {
			t.Fatalf("repeat admit: %v", err)
		}
		if admitted {
			t.Fatalf("expected repeat delivery refused")
		}

		admitted, err = repo.Admit(ctx, domain.SourceMobileMoney, "mpesa:evt-1", now)
		if err != nil {
			t.Fatalf("other source admit: %v", err)
		}
		if !admitted {
			t.Fatalf("expected other source key admitted")
		}
	})

	t.Run("concurrent deliveries admit exactly one", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		const workers = 8
		results := make([]bool, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				admitted, err := repo.Admit(ctx, domain.SourceMobileMoney, "mpesa:evt-race", now)
				if err != nil {
					t.Errorf("admit: %v", err)
					return
				}
				results[i] = admitted
			}(i)
		}
		wg.Wait()

		var winners int
		for _, admitted := range results {
			if admitted {
				winners++
			}
		}
		if winners != 1 {
			t.Fatalf("expected exactly one admission, got %d", winners)
		}
	})
}
