package postgres_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapflow/nfse-api/internal/infrastructure/postgres"
)

// Integração: roda com NFSE_TEST_DATABASE_URL (job "postgres" do CI). A migration é aplicada aqui.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("NFSE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("NFSE_TEST_DATABASE_URL não definido")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	migration, err := os.ReadFile(filepath.Join("..", "..", "..", "migrations", "001_nfse.sql"))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(migration))
	require.NoError(t, err, "aplicar migration")
	return pool
}

func TestSequenceRepo_MonotonicAndRollover(t *testing.T) {
	pool := testPool(t)
	repo := postgres.NewSequenceRepository(pool)
	ctx := context.Background()
	issuer := "test-" + uuid.NewString()
	t.Cleanup(func() { _, _ = pool.Exec(ctx, `DELETE FROM nfse_sequences WHERE issuer_id = $1`, issuer) })

	for want := int64(1); want <= 3; want++ {
		got, err := repo.Reserve(ctx, issuer, 2025)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	// virada de ano reinicia
	got, err := repo.Reserve(ctx, issuer, 2026)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)

	// ano atrasado não regride
	got, err = repo.Reserve(ctx, issuer, 2025)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)
}

func TestSequenceRepo_ConcurrentReservationsAreUnique(t *testing.T) {
	pool := testPool(t)
	repo := postgres.NewSequenceRepository(pool)
	ctx := context.Background()
	issuer := "test-" + uuid.NewString()
	t.Cleanup(func() { _, _ = pool.Exec(ctx, `DELETE FROM nfse_sequences WHERE issuer_id = $1`, issuer) })

	const workers = 20
	var (
		mu   sync.Mutex
		seen = make(map[int64]bool)
		wg   sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := repo.Reserve(ctx, issuer, 2026)
			assert.NoError(t, err)
			mu.Lock()
			seen[n] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers)
	for n := int64(1); n <= workers; n++ {
		assert.True(t, seen[n], "número %d não reservado", n)
	}
}
