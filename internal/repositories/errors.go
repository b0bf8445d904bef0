package repositories

import "fmt"

// ErrorCode enumerates machine readable causes for booking and payment persistence failures.
type ErrorCode string

const (
	// ErrorUnknown represents an unspecified failure.
	ErrorUnknown ErrorCode = "unknown"
	// ErrorReferenceTaken indicates another booking already holds the reference.
	ErrorReferenceTaken ErrorCode = "booking_reference_taken"
	// ErrorTransactionIDTaken indicates another payment already holds the transaction id.
	ErrorTransactionIDTaken ErrorCode = "payment_transaction_id_taken"
	// ErrorBookingAlreadyPaid indicates the booking already has a successful payment.
	ErrorBookingAlreadyPaid ErrorCode = "payment_booking_already_paid"
)

// Error carries a persistence failure with a code services can branch on.
type Error struct {
	Op      string
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound implements RepositoryError.
func (e *Error) IsNotFound() bool { return false }

// IsConflict implements RepositoryError. Every coded error is a uniqueness conflict.
func (e *Error) IsConflict() bool { return e != nil && e.Code != ErrorUnknown }

// IsUnavailable implements RepositoryError.
func (e *Error) IsUnavailable() bool { return false }

// NewError constructs a coded repository error.
func NewError(op string, code ErrorCode, message string, err error) *Error {
	if message == "" {
		message = string(code)
	}
	return &Error{Op: op, Code: code, Message: message, Err: err}
}
