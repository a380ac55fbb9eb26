// Package reliability provides retry policies for best-effort side-effect
// delivery.
//
// The engine commits state transitions synchronously; everything downstream
// of a commit (event publishing, notification delivery) is best-effort and
// retried with one of these policies instead of failing the transition.
//
// Example:
//
//	policy := reliability.NewExponentialBackoff(100*time.Millisecond, 5*time.Second, 2.0, 3)
//	err := reliability.Retry(ctx, policy, func() error {
//	    return publisher.PublishEvent(ctx, event)
//	})
package reliability
