// Package wifi owns the radio at runtime.
//
// It contains two cooperating components:
//
//   - Manager keeps the radio in the state the rest of the system asked for.
//     Its goroutine is the only writer of the connection state. In station
//     mode it reassociates forever after failures and link loss, and parks in
//     Stopped only when asked to with Stop.
//   - Broker serializes use of the single network stack between independent
//     tasks (time sync, weather fetch) and powers the radio down when nobody
//     has used it for a while.
//
// # Acquiring the Network
//
// Code that needs the network wraps the work in WithNetwork so the handle is
// released on every path:
//
//	err := broker.WithNetwork(ctx, 10*time.Second, func(h *wifi.Handle) error {
//	    return fetchWeather(ctx, h.LocalAddr)
//	})
//	if wifi.IsTimedOut(err) {
//	    // show "Wi-Fi busy" and try again on the next tick
//	}
//
// # Signals
//
// Stop and RequestReconnect are one-shot signals. Sending one while another
// is pending coalesces into a single delivery. When a stop and a link-loss
// event are both pending the stop is honored and the radio parks in Stopped
// instead of reconnecting.
package wifi
