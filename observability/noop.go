package observability

// NoOpObserver ignores every operation.
type NoOpObserver struct{}

// ObserveOperation does nothing.
func (n *NoOpObserver) ObserveOperation(ctx OperationContext) {}

// NewNoOpObserver returns an Observer that ignores every operation.
func NewNoOpObserver() Observer {
	return &NoOpObserver{}
}

// Multi fans a single operation out to several observers. Nil entries are skipped.
type Multi []Observer

// ObserveOperation forwards ctx to every observer in order.
func (m Multi) ObserveOperation(ctx OperationContext) {
	for _, o := range m {
		if o != nil {
			o.ObserveOperation(ctx)
		}
	}
}
