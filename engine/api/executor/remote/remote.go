// Package remote delegates server steps to an out-of-band management endpoint.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/eapache/go-resiliency/breaker"
	"github.com/rockbears/log"

	"github.com/hostops/hops/engine/api/executor"
	"github.com/hostops/hops/sdk"
	"github.com/hostops/hops/sdk/hopsclient"
)

// Configuration of the management endpoint.
type Configuration struct {
	URL                   string `toml:"url" default:"" comment:"Out-of-band management endpoint, ex: https://oob.local/api" json:"url"`
	Token                 string `toml:"token" default:"" comment:"Bearer token sent to the management endpoint" json:"-"`
	RequestTimeout        int    `toml:"requestTimeout" default:"30" comment:"Request timeout, in seconds" json:"requestTimeout"`
	InsecureSkipVerifyTLS bool   `toml:"insecureSkipVerifyTLS" default:"false" json:"insecureSkipVerifyTLS"`
	BreakerErrors         int    `toml:"breakerErrors" default:"5" comment:"Consecutive transport errors opening the circuit to the endpoint" json:"breakerErrors"`
	BreakerTimeout        int    `toml:"breakerTimeout" default:"30" comment:"Seconds before a request is tried again on an open circuit" json:"breakerTimeout"`
}

const (
	ActionStatePending   = "pending"
	ActionStateRunning   = "running"
	ActionStateSucceeded = "succeeded"
	ActionStateFailed    = "failed"
	ActionStateBlocked   = "waiting_operator"
)

// ActionRequest is sent to POST /actions.
type ActionRequest struct {
	JobID        string      `json:"jobId"`
	StepID       string      `json:"stepId"`
	Type         sdk.JobType `json:"type"`
	TargetID     string      `json:"targetId"`
	HardPowerOff bool        `json:"hardPowerOff"`
}

// Action is the state of an action on the management endpoint.
type Action struct {
	ID      string `json:"id"`
	State   string `json:"state"`
	Message string `json:"message,omitempty"`
}

// Executor carries out server steps.
type Executor struct {
	config  Configuration
	client  *http.Client
	breaker *breaker.Breaker
}

var (
	_ executor.Executor  = new(Executor)
	_ executor.Canceller = new(Executor)
)

func New(cfg Configuration) *Executor {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30
	}
	if cfg.BreakerErrors <= 0 {
		cfg.BreakerErrors = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30
	}
	cfg.URL = strings.TrimSuffix(cfg.URL, "/")
	return &Executor{
		config:  cfg,
		client:  hopsclient.NewHTTPClient(time.Duration(cfg.RequestTimeout)*time.Second, cfg.InsecureSkipVerifyTLS),
		breaker: breaker.New(cfg.BreakerErrors, 1, time.Duration(cfg.BreakerTimeout)*time.Second),
	}
}

// HTTPClient returns the underlying http client.
func (e *Executor) HTTPClient() *http.Client {
	return e.client
}

func (e *Executor) Execute(ctx context.Context, req executor.Request) (executor.Outcome, error) {
	switch req.Job.Type {
	case sdk.JobTypePowerCycle, sdk.JobTypeFirmwareUpdate:
	default:
		return executor.Outcome{}, sdk.NewErrorFrom(sdk.ErrPolicyRejectedByTarget, "%s is not supported on %s targets", req.Job.Type, req.Target.Type)
	}
	if req.Facts.PowerState == sdk.PowerStateOn && !req.Facts.SupportsGracefulShutdown && !req.Job.Policy.AllowHardPoweroff {
		return executor.Outcome{}, sdk.NewErrorFrom(sdk.ErrPolicyRejectedByTarget, "server %s requires a hard power-off", req.Target.ID)
	}

	in := ActionRequest{
		JobID:        req.Job.ID,
		StepID:       req.Step.ID,
		Type:         req.Job.Type,
		TargetID:     req.Target.ID,
		HardPowerOff: req.Job.Policy.AllowHardPoweroff,
	}
	var a Action
	if err := e.do(ctx, http.MethodPost, "/actions", in, &a); err != nil {
		return executor.Outcome{}, err
	}
	log.Info(ctx, "remote action %s started on %s", a.ID, req.Target.ID)
	return e.outcome(a)
}

func (e *Executor) Poll(ctx context.Context, req executor.Request) (executor.Outcome, error) {
	id := req.ExternalTaskID()
	if id == "" {
		return executor.Outcome{}, sdk.NewErrorFrom(sdk.ErrWrongRequest, "step %d has no external task", req.Step.Sequence)
	}
	var a Action
	if err := e.do(ctx, http.MethodGet, "/actions/"+url.PathEscape(id), nil, &a); err != nil {
		if sdk.ErrorIs(err, sdk.ErrNotFound) {
			return executor.Outcome{}, sdk.NewErrorFrom(sdk.ErrExternalTaskFailed, "action %s is unknown to the management endpoint", id)
		}
		return executor.Outcome{}, err
	}
	if a.ID == "" {
		a.ID = id
	}
	return e.outcome(a)
}

func (e *Executor) Cancel(ctx context.Context, req executor.Request) error {
	id := req.ExternalTaskID()
	if id == "" {
		return nil
	}
	err := e.do(ctx, http.MethodDelete, "/actions/"+url.PathEscape(id), nil, nil)
	if sdk.ErrorIs(err, sdk.ErrNotFound) {
		return nil
	}
	return err
}

func (e *Executor) outcome(a Action) (executor.Outcome, error) {
	switch a.State {
	case ActionStateSucceeded:
		if a.Message != "" {
			return executor.Succeeded("action %s succeeded: %s", a.ID, a.Message), nil
		}
		return executor.Succeeded("action %s succeeded", a.ID), nil
	case ActionStateFailed:
		return executor.Outcome{}, sdk.NewErrorFrom(sdk.ErrExternalTaskFailed, "action %s failed: %s", a.ID, a.Message)
	case ActionStateBlocked:
		return executor.Outcome{State: executor.StateBlocked, ExternalTaskID: a.ID, Output: a.Message}, nil
	case ActionStatePending, ActionStateRunning:
		if a.ID == "" {
			return executor.Outcome{}, sdk.NewErrorFrom(sdk.ErrExternalTaskFailed, "management endpoint returned no action id")
		}
		return executor.InProgress(a.ID, "action %s is %s", a.ID, a.State), nil
	}
	return executor.Outcome{}, sdk.NewErrorFrom(sdk.ErrExternalTaskFailed, "action %s has unknown state %q", a.ID, a.State)
}

// do sends the request through the circuit breaker. Only transport errors
// count against the endpoint.
func (e *Executor) do(ctx context.Context, method, path string, in interface{}, out interface{}) error {
	if e.config.URL == "" {
		return sdk.NewErrorFrom(sdk.ErrTargetUnreachable, "no management endpoint configured")
	}
	var res error
	err := e.breaker.Run(func() error {
		res = e.send(ctx, method, path, in, out)
		if sdk.ErrorIs(res, sdk.ErrTargetUnreachable) || sdk.ErrorIs(res, sdk.ErrTimeout) {
			return res
		}
		return nil
	})
	if errors.Is(err, breaker.ErrBreakerOpen) {
		log.Warn(ctx, "remote> circuit open on %s, %s %s not sent", e.config.URL, method, path)
		return sdk.NewErrorFrom(sdk.ErrTargetUnreachable, "management endpoint %s is unavailable", e.config.URL)
	}
	return res
}

func (e *Executor) send(ctx context.Context, method, path string, in interface{}, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return sdk.WithStack(err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, e.config.URL+path, body)
	if err != nil {
		return sdk.WithStack(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+e.config.Token)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return wrapTransportError(err, method, path)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return sdk.NewError(sdk.ErrTargetUnreachable, sdk.WrapError(err, "unable to read response of %s %s", method, path))
	}

	if resp.StatusCode >= 400 {
		return statusError(resp.StatusCode, method, path, b)
	}
	if out != nil && len(b) > 0 {
		if err := sdk.JSONUnmarshal(b, out); err != nil {
			return sdk.NewError(sdk.ErrExternalTaskFailed, sdk.WrapError(err, "invalid response of %s %s", method, path))
		}
	}
	return nil
}

func wrapTransportError(err error, method, path string) error {
	err = sdk.WrapError(err, "%s %s", method, path)
	if errors.Is(err, context.DeadlineExceeded) {
		return sdk.NewError(sdk.ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return sdk.NewError(sdk.ErrTimeout, err)
	}
	return sdk.NewError(sdk.ErrTargetUnreachable, err)
}

func statusError(code int, method, path string, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	from := fmt.Sprintf("%s %s: HTTP %d %s", method, path, code, msg)
	switch code {
	case http.StatusNotFound:
		return sdk.NewErrorFrom(sdk.ErrNotFound, from)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return sdk.NewErrorFrom(sdk.ErrTimeout, from)
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return sdk.NewErrorFrom(sdk.ErrPolicyRejectedByTarget, from)
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return sdk.NewErrorFrom(sdk.ErrTargetUnreachable, from)
	}
	return sdk.NewErrorFrom(sdk.ErrExternalTaskFailed, from)
}
