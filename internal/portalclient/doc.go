// Package portalclient submits Wi-Fi credentials to a clock in setup mode.
//
// A clock without stored credentials runs an access point and serves its
// setup page on the gateway address. This package drives that page from a
// laptop instead of a phone browser: it posts the same multipart form the
// page would.
//
// # Usage Example
//
//	client := portalclient.NewClient("192.168.2.1", 8080)
//	if err := client.Configure(ctx, "HomeNet", "hunter22"); err != nil {
//	    fmt.Println(portalclient.GetShortErrorMessage(err))
//	    fmt.Println(portalclient.GetTroubleshootingHint(err))
//	}
//
// After a successful Configure the clock restarts and leaves the setup
// network, so the laptop loses its connection to it.
//
// # Retries
//
// Requests that fail for transient reasons (timeouts, refused connections,
// 5xx responses) are retried with exponential backoff. A 400 response means
// the clock rejected the form and is not retried.
package portalclient
