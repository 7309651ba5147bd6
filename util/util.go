package util

import (
	"log"

	"golang.org/x/exp/constraints"
)

// Debug is the verbosity threshold for DPrintf. The programs set it from
// their -debug flag.
var Debug uint64 = 0

func DPrintf(level uint64, format string, a ...interface{}) {
	if level <= Debug {
		log.Printf(format, a...)
	}
}

// RoundUp is the number of sz-sized chunks needed to cover n.
func RoundUp[T constraints.Unsigned](n T, sz T) T {
	return (n + sz - 1) / sz
}

func Min[T constraints.Ordered](n T, m T) T {
	if n < m {
		return n
	} else {
		return m
	}
}

func Max[T constraints.Ordered](n T, m T) T {
	if n > m {
		return n
	} else {
		return m
	}
}

// SumOverflows reports whether a+b wraps around 2^64.
func SumOverflows(a uint64, b uint64) bool {
	return a+b < a
}

// IsPow2 reports whether n is a power of two.
func IsPow2(n uint64) bool {
	return n != 0 && n&(n-1) == 0
}
