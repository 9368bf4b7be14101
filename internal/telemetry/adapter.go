package telemetry

// DispatchMetrics adapts the package-level Prometheus collectors to the
// small Metrics interface internal/dispatch.Dispatcher expects. It
// satisfies that interface structurally, so this package needs no
// import of internal/dispatch (keeping telemetry dependency-free of the
// components it instruments).
type DispatchMetrics struct{}

func (DispatchMetrics) DispatchedTotal()     { EventsDispatchedTotal.Inc() }
func (DispatchMetrics) DeliveredLocalTotal() { EventsDeliveredLocalTotal.Inc() }
func (DispatchMetrics) RetriedTotal()        { EventsRetriedTotal.Inc() }

func (DispatchMetrics) QueueDepth(out, in int) {
	OutQueueDepth.Set(float64(out))
	InQueueDepth.Set(float64(in))
}
