package binder

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/sys/unix"
)

// Status хранит транспортный код результата транзакции (status_t).
type Status int32

const (
	OK                 Status = 0
	UnknownError       Status = math.MinInt32
	NoMemory           Status = -Status(unix.ENOMEM)
	InvalidOperation   Status = -Status(unix.ENOSYS)
	BadValue           Status = -Status(unix.EINVAL)
	BadType            Status = UnknownError + 1
	NameNotFound       Status = -Status(unix.ENOENT)
	PermissionDenied   Status = -Status(unix.EPERM)
	NoInit             Status = -Status(unix.ENODEV)
	DeadObject         Status = -Status(unix.EPIPE)
	FailedTransaction  Status = UnknownError + 2
	UnknownTransaction Status = UnknownError + 6
	TimedOut           Status = -Status(unix.ETIMEDOUT)
)

var statusNames = map[Status]string{
	OK:                 "OK",
	UnknownError:       "UNKNOWN_ERROR",
	NoMemory:           "NO_MEMORY",
	InvalidOperation:   "INVALID_OPERATION",
	BadValue:           "BAD_VALUE",
	BadType:            "BAD_TYPE",
	NameNotFound:       "NAME_NOT_FOUND",
	PermissionDenied:   "PERMISSION_DENIED",
	NoInit:             "NO_INIT",
	DeadObject:         "DEAD_OBJECT",
	FailedTransaction:  "FAILED_TRANSACTION",
	UnknownTransaction: "UNKNOWN_TRANSACTION",
	TimedOut:           "TIMED_OUT",
}

func (s Status) Error() string {
	if name, ok := statusNames[s]; ok {
		return fmt.Sprintf("binder status %s (%d)", name, int32(s))
	}
	return fmt.Sprintf("binder status %d", int32(s))
}

// StatusOf извлекает Status из ошибки; nil дает OK, прочие ошибки дают UnknownError.
func StatusOf(err error) Status {
	if err == nil {
		return OK
	}
	var st Status
	if errors.As(err, &st) {
		return st
	}
	return UnknownError
}

// Коды исключений, передаваемые в начале ответа.
const (
	ExNone                 int32 = 0
	ExSecurity             int32 = -1
	ExBadParcelable        int32 = -2
	ExIllegalArgument      int32 = -3
	ExNullPointer          int32 = -4
	ExIllegalState         int32 = -5
	ExNetworkMainThread    int32 = -6
	ExUnsupportedOperation int32 = -7
	ExServiceSpecific      int32 = -8
)
