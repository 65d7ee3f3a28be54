package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rockbears/log"

	"github.com/hostops/hops/sdk"
	"github.com/hostops/hops/sdk/hopsclient"
	hopslog "github.com/hostops/hops/sdk/log"
)

const maxBodySize = 1 << 20

// Handler defines the HTTP handler used in hops engine
type Handler func(ctx context.Context, w http.ResponseWriter, r *http.Request) error

// Middleware defines the HTTP Middleware used in hops engine
type Middleware func(ctx context.Context, w http.ResponseWriter, req *http.Request, rc *HandlerConfig) (context.Context, error)

// HandlerFunc defines the way to instanciate a handler
type HandlerFunc func() Handler

// RouterConfigParam is the type of anonymous function returned by POST, GET and PUT functions
type RouterConfigParam func(rc *RouterConfig)

// RouterConfig contains a map of handler configuration. Key is the method of the http route
type RouterConfig struct {
	Config map[string]*HandlerConfig
}

// HandlerConfig is the configuration for one handler
type HandlerConfig struct {
	Name    string
	Method  string
	Handler Handler
	Options map[string]string
}

// HandlerConfigParam is a type used in handler configuration, to set specific config on a route given a method
type HandlerConfigParam func(*HandlerConfig)

// Accepted is a helper function used by asynchronous handlers
func Accepted(w http.ResponseWriter) error {
	const msg = "request accepted"
	w.Header().Add("Content-Type", "text/plain")
	w.Header().Add("Content-Length", fmt.Sprintf("%d", len(msg)))
	w.WriteHeader(http.StatusAccepted)
	_, err := w.Write([]byte(msg))
	return err
}

// Write is a helper function
func Write(w http.ResponseWriter, btes []byte, status int, contentType string) error {
	w.Header().Add("Content-Type", contentType)
	w.Header().Add("Content-Length", fmt.Sprintf("%d", len(btes)))
	WriteProcessTime(w)
	w.WriteHeader(status)
	_, err := w.Write(btes)
	return err
}

// WriteJSON is a helper function to marshal json, handle errors and set Content-Type for the best
func WriteJSON(w http.ResponseWriter, data interface{}, status int) error {
	b, err := json.Marshal(data)
	if err != nil {
		return sdk.WrapError(err, "unable to marshal %T", data)
	}
	return Write(w, b, status, "application/json")
}

// WriteProcessTime writes the duration of the call in the responsewriter
func WriteProcessTime(w http.ResponseWriter) {
	if h := w.Header().Get(hopsclient.ResponseAPINanosecondsTimeHeader); h != "" {
		start, err := strconv.ParseInt(h, 10, 64)
		if err != nil {
			return
		}
		w.Header().Set(hopsclient.ResponseProcessTimeHeader, fmt.Sprintf("%d", time.Now().UnixNano()-start))
	}
}

// WriteError is a helper function to return error in a language the called understand
func WriteError(ctx context.Context, w http.ResponseWriter, r *http.Request, err error) {
	httpErr := sdk.ExtractHTTPError(err)
	httpErr.RequestID = hopslog.ContextValue(ctx, hopslog.RequestID)

	ctx = context.WithValue(ctx, hopslog.StatusNum, httpErr.Status)
	if httpErr.Status >= http.StatusInternalServerError {
		log.ErrorWithStackTrace(ctx, sdk.WrapError(err, "%s %s", r.Method, r.RequestURI))
	} else {
		log.Info(ctx, "%-7s | %-4d | %s \t %v", r.Method, httpErr.Status, r.RequestURI, err)
	}

	_ = WriteJSON(w, httpErr, httpErr.Status)
}

// UnmarshalBody read the request body and tries to json.unmarshal it. It returns sdk.ErrWrongRequest in case of error.
func UnmarshalBody(r *http.Request, i interface{}) error {
	if r == nil || r.Body == nil {
		return sdk.NewErrorFrom(sdk.ErrWrongRequest, "request body is empty")
	}
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return sdk.NewErrorFrom(sdk.ErrWrongRequest, "unable to read body: %v", err)
	}
	if err := json.Unmarshal(data, i); err != nil {
		return sdk.NewErrorFrom(sdk.ErrWrongRequest, "unable to unmarshal body: %v", err)
	}
	return nil
}

// FormInt return a int from the query string, or the default value. A value
// outside [min, max] is a wrong request.
func FormInt(r *http.Request, name string, def, minValue, maxValue int) (int, error) {
	s := r.FormValue(name)
	if s == "" {
		return def, nil
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, sdk.NewErrorFrom(sdk.ErrWrongRequest, "invalid given %s value %q", name, s)
	}
	if i < minValue || i > maxValue {
		return 0, sdk.NewErrorFrom(sdk.ErrWrongRequest, "%s must be between %d and %d", name, minValue, maxValue)
	}
	return i, nil
}
