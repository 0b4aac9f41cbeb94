package comm

import (
	"golang.org/x/sync/errgroup"
)

// RunSPMD runs fn once per rank on its own goroutine over a fresh World and
// waits for all ranks to finish. The first non-nil error is returned; note
// that an erroring rank that stops calling collectives will block the
// others, so fn should only return an error when every rank does (the
// engine's parallel error aggregation guarantees this).
func RunSPMD(size int, fn func(m Machine) error) error {
	w := NewWorld(size)
	var g errgroup.Group
	for r := 0; r < size; r++ {
		m := w.At(r)
		g.Go(func() error {
			return fn(m)
		})
	}
	return g.Wait()
}
