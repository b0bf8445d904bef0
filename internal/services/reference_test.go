package services

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentwheel/api/internal/repositories"
)

func TestCodeGeneratorsFormat(t *testing.T) {
	stamp := strings.ToUpper(strconv.FormatInt(testNow.UnixMilli(), 36))

	ref, err := NewBookingReferenceGenerator()(testNow)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^BK`+stamp+`[0-9A-Z]{4}$`), ref)

	txn, err := NewTransactionIDGenerator()(testNow)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^TXN`+stamp+`[0-9A-Z]{6}$`), txn)
}

func TestWithUniqueCode(t *testing.T) {
	ctx := context.Background()
	clock := func() time.Time { return testNow }
	taken := repositories.NewError("insert", repositories.ErrorReferenceTaken, "reference taken", nil)

	t.Run("retries taken codes", func(t *testing.T) {
		var tried []string
		err := withUniqueCode(ctx, 3, clock, fixedCodes("A", "B", "C"), repositories.ErrorReferenceTaken, func(_ context.Context, code string) error {
			tried = append(tried, code)
			if code != "C" {
				return taken
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B", "C"}, tried)
	})

	t.Run("gives up after attempts", func(t *testing.T) {
		calls := 0
		err := withUniqueCode(ctx, 2, clock, fixedCodes("A"), repositories.ErrorReferenceTaken, func(context.Context, string) error {
			calls++
			return taken
		})
		require.ErrorIs(t, err, ErrDependency)
		require.ErrorIs(t, err, errCodeAttemptsExhausted)
		assert.Equal(t, 2, calls)
	})

	t.Run("other errors stop the loop", func(t *testing.T) {
		boom := errors.New("boom")
		calls := 0
		err := withUniqueCode(ctx, 5, clock, fixedCodes("A"), repositories.ErrorReferenceTaken, func(context.Context, string) error {
			calls++
			return boom
		})
		require.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("different code is not retried", func(t *testing.T) {
		other := repositories.NewError("insert", repositories.ErrorTransactionIDTaken, "txn taken", nil)
		err := withUniqueCode(ctx, 5, clock, fixedCodes("A"), repositories.ErrorReferenceTaken, func(context.Context, string) error {
			return other
		})
		require.ErrorIs(t, err, other)
	})
}
