// Package provision implements the setup web page served on the access point.
//
// A phone joined to the clock's setup network is steered here by the captive
// portal responders. The page collects a network name and password and posts
// them back as multipart/form-data:
//
//	GET  /config          setup form
//	GET  /                redirect to /config (captive portal landing)
//	POST /configure_wifi  store credentials, confirm, reset the device
//
// The server handles one connection at a time. It reads each request straight
// off the socket with net/http's request parser and writes HTTP/1.0 responses
// that always close the connection, which is all the captive portal browsers
// on phones need.
//
// Credentials are written with the provisioned flag set. Only after the write
// succeeds and the confirmation page has been sent does the server call its
// Reset hook; the next boot then comes up in station mode. A form that fails
// to parse is answered with 400, a failed write with 500, and in both cases
// the server keeps accepting.
package provision
