package signals

import "fmt"

// EncodeSnapshot renders channel A then channel B as ASCII '0'/'1' bytes, with no
// delimiter and no length prefix.
func EncodeSnapshot(a, b []Sample) []byte {
	out := make([]byte, 0, len(a)+len(b))
	for _, s := range a {
		out = append(out, '0'+byte(s&1))
	}
	for _, s := range b {
		out = append(out, '0'+byte(s&1))
	}
	return out
}

// DecodeSnapshot splits a snapshot produced by EncodeSnapshot back into its two channels.
// The first half of data is channel A, the second half channel B.
func DecodeSnapshot(data []byte) (a, b []Sample, err error) {
	if len(data)%2 != 0 {
		return nil, nil, fmt.Errorf("snapshot length %d is odd, want 2 equal channel blocks", len(data))
	}
	n := len(data) / 2
	all := make([]Sample, len(data))
	for i, c := range data {
		switch c {
		case '0':
			all[i] = 0
		case '1':
			all[i] = 1
		default:
			return nil, nil, fmt.Errorf("snapshot byte %d is %q, want '0' or '1'", i, c)
		}
	}
	return all[:n], all[n:], nil
}
