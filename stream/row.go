package stream

import (
	"fmt"
	"io"
	"strings"
)

// WriteRow formats one output line: the timestamp with seven decimal
// places, then each channel value with six, single space separated.  The
// line is assembled first and written with a single Write so rows stay
// atomic on shared streams.
func WriteRow(w io.Writer, stamp float64, row Row) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%.7f ", stamp)
	for _, v := range row {
		fmt.Fprintf(&b, "%8.6f ", v)
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}
