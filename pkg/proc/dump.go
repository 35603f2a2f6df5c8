package proc

import (
	"fmt"
	"io"
	"strings"
)

const dumpRowSize = 16

// FormatDump writes data, read from addr, as rows of 16 bytes: the address,
// the bytes in hexadecimal and their printable ASCII rendering. A trailing
// partial row leaves the missing byte slots blank.
func FormatDump(w io.Writer, addr uint64, data []byte) {
	var b strings.Builder
	for len(data) > 0 {
		n := dumpRowSize
		if len(data) < n {
			n = len(data)
		}
		row := data[:n]
		fmt.Fprintf(&b, "%12x:", addr)
		for i := 0; i < dumpRowSize; i++ {
			if i < len(row) {
				fmt.Fprintf(&b, " %02x", row[i])
			} else {
				b.WriteString("   ")
			}
		}
		b.WriteString("  |")
		for _, c := range row {
			if c >= 0x20 && c <= 0x7e {
				b.WriteByte(c)
			} else {
				b.WriteByte('.')
			}
		}
		b.WriteString("|\n")
		data = data[n:]
		addr += uint64(n)
	}
	io.WriteString(w, b.String())
}

// MaxReadLength is the largest number of bytes a single memory read
// returns.
const MaxReadLength = 1 << 20

// readMemory reads n bytes starting at addr one word at a time.
func readMemory(mem WordAccessor, addr uint64, n int) ([]byte, error) {
	if n < 0 || n > MaxReadLength {
		return nil, fmt.Errorf("read of %d bytes exceeds the limit of %d", n, MaxReadLength)
	}
	out := make([]byte, 0, n+8)
	for cur := addr; len(out) < n; cur += 8 {
		word, err := mem.PeekWord(cur)
		if err != nil {
			return nil, traceError("read memory", err)
		}
		for i := 0; i < 8; i++ {
			out = append(out, byte(word>>(8*i)))
		}
	}
	return out[:n], nil
}
