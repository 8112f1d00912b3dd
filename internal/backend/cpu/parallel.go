package cpu

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// parallelFor runs fn(0..n-1) on at most GOMAXPROCS goroutines.
// Callers must ensure each index writes a disjoint region of the output.
func parallelFor(n int, fn func(i int)) {
	if n <= 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < n; i++ {
		g.Go(func() error {
			fn(i)
			return nil
		})
	}
	_ = g.Wait() // fn never fails
}
