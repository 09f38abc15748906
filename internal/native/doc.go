// Package native defines the call boundary to the DriftFS native client
// library. The native client implements the distributed metadata protocol,
// caching and storage backends; this package only describes the fixed call
// surface it exposes and the wire formats it populates into caller-supplied
// buffers. Everything behind the Library interface is an opaque external
// service.
package native
