// Package httpclienttest serves fasthttp handlers over an in-memory listener.
package httpclienttest

import (
	"net"
	"testing"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

// NewServer starts h on an in-memory listener and returns a dialer for it.
// Any host in the request URL reaches h.
func NewServer(tb testing.TB, h fasthttp.RequestHandler) fasthttp.DialFunc {
	tb.Helper()

	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = fasthttp.Serve(ln, h) }()
	tb.Cleanup(func() { _ = ln.Close() })

	return func(string) (net.Conn, error) { return ln.Dial() }
}
