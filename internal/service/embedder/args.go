package embedder

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrArgConversion indicates an argument the runtime cannot represent.
var ErrArgConversion = errors.New("argument cannot be converted to a runtime string")

// NativeArgs is the runtime's string array built from the process arguments.
// Index i always holds argument i.
type NativeArgs struct {
	// values are the converted arguments in input order.
	values []string
}

// Marshal converts args into a NativeArgs of the same length and order.
// Runtime strings cross the process boundary as C strings, so an argument
// with a NUL byte cannot be converted.
func Marshal(args []string) (NativeArgs, error) {
	values := make([]string, len(args))

	for i, arg := range args {
		if strings.IndexByte(arg, 0) >= 0 {
			return NativeArgs{}, fmt.Errorf("%w: argument %d contains a NUL byte", ErrArgConversion, i)
		}

		values[i] = arg
	}

	return NativeArgs{values: values}, nil
}

// Len returns the number of elements.
func (a NativeArgs) Len() int {
	return len(a.values)
}

// At returns element i.
func (a NativeArgs) At(i int) string {
	return a.values[i]
}

// Strings returns a copy of the elements.
func (a NativeArgs) Strings() []string {
	return slices.Clone(a.values)
}
