package transport

import "github.com/reglet-dev/sdf-http/domain/ports"

// notifier holds a readiness pollable that is acquired on first use and kept for
// every later wait.
type notifier struct {
	subscribe func() ports.Pollable
	pollable  ports.Pollable
}

func newNotifier(subscribe func() ports.Pollable) *notifier {
	return &notifier{subscribe: subscribe}
}

func (n *notifier) wait() {
	if n.pollable == nil {
		n.pollable = n.subscribe()
	}
	n.pollable.Block()
}

func (n *notifier) release() {
	if n.pollable != nil {
		n.pollable.Drop()
		n.pollable = nil
	}
}

// await polls once without blocking. If nothing is ready it blocks on the
// notifier and polls exactly once more; the caller decides what a second miss means.
func await[T any](poll func() (T, bool, error), n *notifier) (T, bool, error) {
	v, ready, err := poll()
	if ready || err != nil {
		return v, ready, err
	}
	n.wait()
	return poll()
}
