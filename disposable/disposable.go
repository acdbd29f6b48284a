// Package disposable gives signals.Signal and mediator.MediatorImp a single
// return value for "undo this subscription" without each caller having to
// hand back a closure directly.
package disposable

// Disposable releases a resource acquired by some prior call (typically a
// Signal.Attach or a mediator registration). Dispose is idempotent.
type Disposable interface {
	Dispose()
}

type funcDisposable struct {
	dispose func()
}

func (d *funcDisposable) Dispose() {
	if d.dispose != nil {
		dispose := d.dispose
		d.dispose = nil
		dispose()
	}
}

// NewDisposable wraps a plain func() as a Disposable.
func NewDisposable(dispose func()) Disposable {
	return &funcDisposable{dispose: dispose}
}

type compositeDisposable struct {
	disposables []Disposable
}

func (d *compositeDisposable) Dispose() {
	for _, inner := range d.disposables {
		inner.Dispose()
	}
}

// NewCompositeDisposable disposes every member when disposed itself, in
// order.
func NewCompositeDisposable(disposables ...Disposable) Disposable {
	return &compositeDisposable{disposables: disposables}
}
