package httpd

import (
	"fmt"
	"runtime"
	"time"
)

// ServerName is the product token reported in the Server header,
// composed with Version and the Go runtime version into a two-token
// "product/version platform-version" shape.
const ServerName = "reactord"

// Version is the server's own release identifier.
const Version = "1.0"

// responseProtocol is the protocol version this server speaks in its
// status line, independent of what the client requested.
const responseProtocol = "HTTP/1.1"

func serverHeaderValue() string {
	return fmt.Sprintf("%s/%s Go/%s", ServerName, Version, runtime.Version())
}

// rfc1123Date renders t in the "Wkd, DD Mon YYYY HH:MM:SS GMT" form
// RFC 7231's Date header requires, computed from UTC.
func rfc1123Date(t time.Time) string {
	return t.UTC().Format("Mon, 02 Jan 2006 15:04:05") + " GMT"
}

// statusEntry is the (short, long) reason-phrase pair for one status
// code.
type statusEntry struct {
	short string
	long  string
}

var statusTable = map[int]statusEntry{
	200: {"OK", "Request fulfilled, document follows"},
	400: {"Bad Request", "Bad request syntax or unsupported method"},
	403: {"Forbidden", "Request forbidden -- authorization will not help"},
	404: {"Not Found", "Nothing matches the given URI"},
	405: {"Method Not Allowed", "Specified method is invalid for this resource"},
	500: {"Internal Server Error", "Server got itself in trouble"},
	505: {"HTTP Version Not Supported", "Cannot fulfill request"},
}

// statusMessages returns the short/long reason for code, or "???" for
// any code outside the table.
func statusMessages(code int) (short, long string) {
	if e, ok := statusTable[code]; ok {
		return e.short, e.long
	}
	return "???", "???"
}

const errorPageTemplate = `<!DOCTYPE HTML>
<html>
  <head>
    <title>Error response</title>
  </head>
  <body>
    <h1>Error response</h1>
    <p>Error code: %d</p>
    <p>Message: %s.</p>
    <p>Error code explanation: %d - %s.</p>
  </body>
</html>
`

// renderErrorBody fills the single HTML error template with {code},
// {message}, {explain}.
func renderErrorBody(code int) []byte {
	short, long := statusMessages(code)
	return []byte(fmt.Sprintf(errorPageTemplate, code, short, code, long))
}
