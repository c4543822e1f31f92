//go:build mortalitydebug

package mortality

import "fmt"

// assertf panics when cond is false. Only compiled with -tags mortalitydebug.
func assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("mortality: "+format, args...))
	}
}
