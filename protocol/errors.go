package protocol

import (
	"errors"

	"fleetkernel/order"
)

// ErrorCode maps a kernel error onto the code carried by order.error.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, order.ErrUnknownObject):
		return ErrCodeUnknownObject
	case errors.Is(err, order.ErrObjectExists):
		return ErrCodeObjectExists
	case errors.Is(err, order.ErrIllegalArgument):
		return ErrCodeIllegalArgument
	default:
		return ErrCodeInternal
	}
}
