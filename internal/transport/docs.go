// package transport puts prepared requests on the wire and turns what
// comes back into a stream of events.
//
// as of 2022.06, RFCs that were to define HTTP/1.1 (RFC723x) are obsoleted by:
//
//	HTTP Semantics (RFC9110)
//	HTTP Caching (RFC9111) and
//	HTTP/1.1 (RFC9112)
//
// only the message syntax of RFC9112 lives here. an exchange reports, in
// order, that a connection was established, that the status line and
// headers arrived, every chunk of the payload, and either the end of the
// payload or the error that cut it short.
package transport
