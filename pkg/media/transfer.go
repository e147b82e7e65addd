package media

import (
	"context"
	"sync"
)

// Transfer is an in-flight cancellable upload.
type Transfer struct {
	provider Provider
	cancel   context.CancelFunc
	once     sync.Once
	done     chan struct{}
	result   *Result
	err      error
}

func startTransfer(ctx context.Context, provider Provider, run func(context.Context) (*Result, error)) *Transfer {
	ctx, cancel := context.WithCancel(ctx)
	t := &Transfer{provider: provider, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer cancel()
		res, err := run(ctx)
		if err != nil {
			err = Normalize(provider, err)
		}
		t.settle(res, err)
	}()
	return t
}

func (t *Transfer) settle(res *Result, err error) {
	t.once.Do(func() {
		t.result, t.err = res, err
		close(t.done)
	})
}

// Cancel stops the transfer. The transfer settles immediately with a
// KindCanceled error unless it already completed, in which case Cancel is a no-op.
// Calling Cancel more than once is safe.
func (t *Transfer) Cancel() {
	t.settle(nil, &Error{Kind: KindCanceled, Provider: t.provider, Message: "upload canceled"})
	t.cancel()
}

// Done is closed once the transfer has settled.
func (t *Transfer) Done() <-chan struct{} { return t.done }

// Wait blocks until the transfer settles.
func (t *Transfer) Wait() (*Result, error) {
	<-t.done
	return t.result, t.err
}
