package scheduler

import (
	"fmt"
	"strconv"
	"strings"
)

// WorkOrderNumberPrefix precedes the numeric part of a work order number.
const WorkOrderNumberPrefix = "N"

// SequenceKey is the ordering key derived from a work order number such as
// "N42". It is a tie-break ordering value, never a time.
type SequenceKey int64

// ParseSequenceKey extracts the trailing digits of number. Numbers without a
// numeric suffix, or whose suffix overflows, yield zero.
func ParseSequenceKey(number string) SequenceKey {
	key, _ := parseSuffix(number)
	return key
}

// ParseSequenceKeyStrict is ParseSequenceKey but reports whether a suffix was
// actually found.
func ParseSequenceKeyStrict(number string) (SequenceKey, bool) {
	return parseSuffix(number)
}

func parseSuffix(number string) (SequenceKey, bool) {
	trimmed := strings.TrimSpace(number)
	i := len(trimmed)
	for i > 0 && trimmed[i-1] >= '0' && trimmed[i-1] <= '9' {
		i--
	}
	digits := trimmed[i:]
	if digits == "" {
		return 0, false
	}
	value, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return SequenceKey(value), true
}

// String formats the key as a work order number.
func (k SequenceKey) String() string {
	return fmt.Sprintf("%s%d", WorkOrderNumberPrefix, int64(k))
}

// Next returns the key that follows k.
func (k SequenceKey) Next() SequenceKey {
	return k + 1
}
