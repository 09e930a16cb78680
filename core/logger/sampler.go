package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// debugSampling lets n out of every m high-volume debug events through.
// A zero ratio disables sampling and every event passes.
type debugSampling struct {
	ratio atomic.Uint64 // n<<32 | m
	seq   atomic.Uint64
}

func (s *debugSampling) Set(n, m int) {
	if n <= 0 || m <= 0 {
		s.ratio.Store(0)
		return
	}
	n = min(n, m)
	s.ratio.Store(uint64(n)<<32 | uint64(m))
	s.seq.Store(0)
}

func (s *debugSampling) Allow() bool {
	r := s.ratio.Load()
	if r == 0 {
		return true
	}
	n, m := r>>32, r&0xffffffff
	return (s.seq.Add(1)-1)%m < n
}

// parseSampleSpec reads "n/m", "m" (meaning 1/m) or "off". Anything it
// cannot read yields def.
func parseSampleSpec(spec string, def [2]int) (int, int) {
	spec = strings.ToLower(strings.TrimSpace(spec))
	switch spec {
	case "":
		return def[0], def[1]
	case "off", "all", "0":
		return 0, 0
	}
	num, den, ok := strings.Cut(spec, "/")
	if !ok {
		num, den = "1", spec
	}
	n, err1 := strconv.Atoi(strings.TrimSpace(num))
	m, err2 := strconv.Atoi(strings.TrimSpace(den))
	if err1 != nil || err2 != nil || n <= 0 || m <= 0 {
		return def[0], def[1]
	}
	return n, m
}
