package util

import (
	"log"
	"os"
)

// Debug is the highest DPrintf level that is printed. Level 0 messages
// (warnings) are always printed.
var Debug uint64 = 0

func SetDebug(level uint64) {
	Debug = level
}

func DPrintf(level uint64, format string, a ...interface{}) {
	if level <= Debug {
		log.Printf(format, a...)
	}
}

// SetLogFile appends DPrintf output to the file at path instead of stderr.
// The caller closes the returned file.
func SetLogFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	log.SetOutput(f)
	return f, nil
}

func RoundUp(n uint64, sz uint64) uint64 {
	return (n + sz - 1) / sz
}

func Min(n uint64, m uint64) uint64 {
	if n < m {
		return n
	} else {
		return m
	}
}

// SumOverflows reports whether a + b wraps around.
func SumOverflows(a uint64, b uint64) bool {
	return a+b < a
}

// MulOverflows reports whether a * b wraps around.
func MulOverflows(a uint64, b uint64) bool {
	if a == 0 || b == 0 {
		return false
	}
	return a*b/b != a
}
