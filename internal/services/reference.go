package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/rentwheel/api/internal/repositories"
)

const (
	bookingReferencePrefix = "BK"
	bookingReferenceRandom = 4
	transactionIDPrefix    = "TXN"
	transactionIDRandom    = 6
	defaultCodeAttempts    = 5

	codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

var errCodeAttemptsExhausted = errors.New("unique code attempts exhausted")

// CodeGenerator produces a human-facing identifier for the given instant.
type CodeGenerator func(now time.Time) (string, error)

// NewBookingReferenceGenerator yields "BK" + base36 milliseconds + 4 random characters.
func NewBookingReferenceGenerator() CodeGenerator {
	return timestampCode(bookingReferencePrefix, bookingReferenceRandom)
}

// NewTransactionIDGenerator yields "TXN" + base36 milliseconds + 6 random characters.
func NewTransactionIDGenerator() CodeGenerator {
	return timestampCode(transactionIDPrefix, transactionIDRandom)
}

func timestampCode(prefix string, randomLen int) CodeGenerator {
	return func(now time.Time) (string, error) {
		suffix, err := randomCode(randomLen)
		if err != nil {
			return "", err
		}
		stamp := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
		return prefix + stamp + suffix, nil
	}
}

func randomCode(n int) (string, error) {
	limit := big.NewInt(int64(len(codeAlphabet)))
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate random code: %w", err)
		}
		b.WriteByte(codeAlphabet[idx.Int64()])
	}
	return b.String(), nil
}

// withUniqueCode runs attempt with freshly generated codes until one is not already taken.
// Errors other than a taken code stop the loop immediately.
func withUniqueCode(ctx context.Context, attempts int, now func() time.Time, generate CodeGenerator, taken repositories.ErrorCode, attempt func(ctx context.Context, code string) error) error {
	if attempts <= 0 {
		attempts = defaultCodeAttempts
	}
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		code, err := generate(now())
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDependency, err)
		}
		err = attempt(ctx, code)
		if err == nil {
			return nil
		}
		if !isCodeTaken(err, taken) {
			return err
		}
	}
	return fmt.Errorf("%w: %w after %d attempts", ErrDependency, errCodeAttemptsExhausted, attempts)
}

func isCodeTaken(err error, code repositories.ErrorCode) bool {
	var repoErr *repositories.Error
	return errors.As(err, &repoErr) && repoErr.Code == code
}
