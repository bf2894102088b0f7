// Package conv appends decimal integers to byte slices without fmt or
// strconv, for MCU log lines.
package conv

// AppendUint appends the base-10 form of u to dst.
func AppendUint(dst []byte, u uint64) []byte {
	var buf [20]byte
	i := len(buf)
	for {
		i--
		buf[i] = byte('0' + u%10)
		u /= 10
		if u == 0 {
			break
		}
	}
	return append(dst, buf[i:]...)
}

// AppendInt appends the base-10 form of n to dst.
func AppendInt(dst []byte, n int64) []byte {
	if n < 0 {
		dst = append(dst, '-')
		// Two's complement keeps MinInt64 correct.
		return AppendUint(dst, uint64(^n)+1)
	}
	return AppendUint(dst, uint64(n))
}

// AppendBool appends "true" or "false".
func AppendBool(dst []byte, b bool) []byte {
	if b {
		return append(dst, "true"...)
	}
	return append(dst, "false"...)
}
