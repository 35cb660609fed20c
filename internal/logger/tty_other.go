//go:build !linux

package logger

import "io"

func isTerminal(_ io.Writer) bool {
	return false
}
