package ledger

import (
	"strconv"
	"strings"
)

// NextSequence computes the next same-day sequence number from the LOT
// strings already stored under one prefix. It parses the trailing segment
// of each and returns max+1, or 1 when the prefix is unused. When no
// trailing segment parses as an integer it falls back to count+1, which is
// how drip/cold-brew/advent sequences behaved historically.
//
// An explicit caller-supplied sequence bypasses this function entirely and
// is not collision-checked here; the same-day merge rule is what keeps
// retroactive entries from colliding.
func NextSequence(lots []string) int {
	if len(lots) == 0 {
		return 1
	}
	maxSeq := 0
	parsed := false
	for _, l := range lots {
		idx := strings.LastIndexByte(l, '/')
		if idx < 0 || idx == len(l)-1 {
			continue
		}
		seq, err := strconv.Atoi(l[idx+1:])
		if err != nil {
			continue
		}
		parsed = true
		if seq > maxSeq {
			maxSeq = seq
		}
	}
	if !parsed {
		return len(lots) + 1
	}
	return maxSeq + 1
}
