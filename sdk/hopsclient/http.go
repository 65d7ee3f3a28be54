package hopsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httputil"
	"strings"

	"go.opencensus.io/trace"

	"github.com/hostops/hops/sdk"
	"github.com/hostops/hops/sdk/telemetry"
)

const (
	// RequestedWithHeader is used as HTTP header
	RequestedWithHeader = "X-Requested-With"
	// RequestedWithValue is used as HTTP header
	RequestedWithValue = "X-HOPS-SDK"

	ResponseAPITimeHeader            = "X-Api-Time"
	ResponseAPINanosecondsTimeHeader = "X-Api-Nanoseconds-Time"
	ResponseProcessTimeHeader        = "X-Api-Process-Time"
	ResponseEtagHeader               = "Etag"
)

// RequestModifier is used to modify behavior of Request functions
type RequestModifier func(req *http.Request)

// SetHeader modify headers of http.Request
func SetHeader(key, value string) RequestModifier {
	return func(req *http.Request) {
		req.Header.Set(key, value)
	}
}

// PostJSON post the *in* struct as json. If set, it unmarshalls the response to *out*
func (c *client) PostJSON(ctx context.Context, path string, in interface{}, out interface{}, mods ...RequestModifier) (int, error) {
	_, _, code, err := c.RequestJSON(ctx, http.MethodPost, path, in, out, mods...)
	return code, err
}

// GetJSON get the requested path If set, it unmarshalls the response to *out*
func (c *client) GetJSON(ctx context.Context, path string, out interface{}, mods ...RequestModifier) (int, error) {
	_, _, code, err := c.RequestJSON(ctx, http.MethodGet, path, nil, out, mods...)
	return code, err
}

// RequestJSON does a request with the *in* struct as json. If set, it unmarshalls the response to *out*
func (c *client) RequestJSON(ctx context.Context, method, path string, in interface{}, out interface{}, mods ...RequestModifier) ([]byte, http.Header, int, error) {
	var b []byte
	if in != nil {
		var err error
		b, err = json.Marshal(in)
		if err != nil {
			return nil, nil, 0, sdk.WithStack(err)
		}
	}

	res, header, code, err := c.Request(ctx, method, path, b, mods...)
	if err != nil {
		return res, header, code, err
	}

	if out != nil && len(res) > 0 {
		if err := json.Unmarshal(res, out); err != nil {
			return res, header, code, sdk.WrapError(err, "unable to unmarshal response of %s %s", method, path)
		}
	}
	return res, header, code, nil
}

// Request executes an HTTP request on $path given $method and $body. Server
// errors and transport errors are retried config.Retry times.
func (c *client) Request(ctx context.Context, method string, path string, body []byte, mods ...RequestModifier) ([]byte, http.Header, int, error) {
	url := c.config.Host + path
	if strings.HasPrefix(path, "http") {
		url = path
	}

	var savederror error
	for i := 0; i <= c.config.Retry; i++ {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return nil, nil, 0, sdk.WithStack(err)
		}
		if span := trace.FromContext(ctx); span != nil {
			sc := span.SpanContext()
			req.Header.Set(telemetry.TraceIDHeader, sc.TraceID.String())
			req.Header.Set(telemetry.SpanIDHeader, sc.SpanID.String())
		}
		for i := range mods {
			if mods[i] != nil {
				mods[i](req)
			}
		}
		if req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("User-Agent", c.config.userAgent)
		req.Header.Add(RequestedWithHeader, RequestedWithValue)

		if c.config.Verbose {
			dmp, _ := httputil.DumpRequestOut(req, true)
			log.Printf("********REQUEST**********\n%s", string(dmp))
		}

		resp, errDo := c.httpClient.Do(req)
		if errDo != nil {
			savederror = errDo
			if ctx.Err() != nil {
				break
			}
			continue
		}

		respBody, errRead := io.ReadAll(resp.Body)
		resp.Body.Close()
		if errRead != nil {
			savederror = errRead
			continue
		}

		if c.config.Verbose {
			log.Printf("********RESPONSE**********\n%d %s", resp.StatusCode, string(respBody))
		}

		if resp.StatusCode >= 400 {
			if e := sdk.DecodeError(respBody, resp.StatusCode); e != nil {
				return respBody, resp.Header, resp.StatusCode, e
			}
			savederror = fmt.Errorf("HTTP %d", resp.StatusCode)
			if resp.StatusCode >= 500 {
				continue
			}
			return respBody, resp.Header, resp.StatusCode, savederror
		}
		return respBody, resp.Header, resp.StatusCode, nil
	}

	return nil, nil, 0, fmt.Errorf("x%d: %v", c.config.Retry, savederror)
}
