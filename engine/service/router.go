package service

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hostops/hops/sdk/hopsclient"
	hopslog "github.com/hostops/hops/sdk/log"
	"github.com/hostops/hops/sdk/telemetry"
)

var headers = []string{
	http.CanonicalHeaderKey(telemetry.TraceIDHeader),
	http.CanonicalHeaderKey(telemetry.SpanIDHeader),
	http.CanonicalHeaderKey(telemetry.SampledHeader),
	http.CanonicalHeaderKey(hopslog.HeaderRequestID),
}

// DefaultHeaders is a set of default header for the router
func DefaultHeaders() map[string]string {
	now := time.Now()
	return map[string]string{
		"Access-Control-Allow-Origin":               "*",
		"Access-Control-Allow-Methods":              "GET,OPTIONS,POST",
		"Access-Control-Allow-Headers":              "Accept, Origin, Referer, User-Agent, Content-Type, Authorization, " + strings.Join(headers, ", "),
		"Access-Control-Expose-Headers":             "Accept, Origin, Referer, User-Agent, Content-Type, Authorization, ETag, " + strings.Join(headers, ", "),
		hopsclient.ResponseAPINanosecondsTimeHeader: fmt.Sprintf("%d", now.UnixNano()),
		hopsclient.ResponseAPITimeHeader:            now.Format(time.RFC3339),
		hopsclient.ResponseEtagHeader:               fmt.Sprintf("%d", now.Unix()),
	}
}
