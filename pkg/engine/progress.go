package engine

import (
	"github.com/cheggaaa/pb/v3"
)

// batches returns the iterator for one epoch, wrapped with a progress bar when
// one is configured. The returned function must be called once iteration stops.
func (e *Engine) batches() (Iterator, func()) {
	it := e.source.Batches()
	if !e.progress.Enabled || e.progressOut == nil {
		return it, func() {}
	}

	bar, ok := e.startProgressBar()
	if !ok {
		return it, func() {}
	}

	return &progressIterator{it: it, bar: bar}, func() { bar.Finish() }
}

// startProgressBar creates the bar. Failing to draw it is never an error: the
// epoch simply runs without one.
func (e *Engine) startProgressBar() (bar *pb.ProgressBar, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Debug().Interface("panic", r).Msg("A progress bar cannot be shown")
			bar, ok = nil, false
		}
	}()

	total := 0
	if s, sized := e.source.(Sized); sized {
		total = s.Len()
	}

	bar = pb.New(total)
	bar.SetWriter(e.progressOut)
	if e.progress.Label != "" {
		bar.Set("prefix", e.progress.Label+" ")
	}
	bar.Start()
	return bar, true
}

// progressIterator advances the bar after each batch has been read.
// It never alters the order, count or values of the batches.
type progressIterator struct {
	it  Iterator
	bar *pb.ProgressBar
}

func (p *progressIterator) Next() (interface{}, bool, error) {
	batch, ok, err := p.it.Next()
	if ok && err == nil {
		p.bar.Increment()
	}
	return batch, ok, err
}
