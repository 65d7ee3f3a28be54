package sdk

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIs(t *testing.T) {
	type args struct {
		err error
		t   Error
	}
	tests := []struct {
		name string
		args args
		want bool
	}{
		{
			"Check Error is true",
			args{
				err: WithStack(ErrPolicyDenied),
				t:   ErrPolicyDenied,
			},
			true,
		},
		{
			"Check wrapped Error is true",
			args{
				err: WrapError(NewErrorFrom(ErrTimeout, "step %d", 2), "cannot execute"),
				t:   ErrTimeout,
			},
			true,
		},
		{
			"Check Error is false",
			args{
				err: fmt.Errorf("FOO"),
				t:   ErrPolicyDenied,
			},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorIs(tt.args.err, tt.args.t); got != tt.want {
				t.Errorf("ErrorIs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewError(t *testing.T) {
	err := NewError(ErrWrongRequest, fmt.Errorf("this is an error generated from vendor"))
	// print the error call stack
	fmt.Println(err)
	// print the error stack trace
	fmt.Printf("%+v\n", err)

	httpErr := ExtractHTTPError(err)
	assert.Equal(t, http.StatusBadRequest, httpErr.Status)
	assert.Equal(t, "wrong request", httpErr.Message)
	assert.Equal(t, "this is an error generated from vendor", Cause(err).Error())
}

func TestExtractHTTPErrorUnknown(t *testing.T) {
	httpErr := ExtractHTTPError(fmt.Errorf("boom"))
	assert.Equal(t, ErrUnknownError.ID, httpErr.ID)
	assert.Equal(t, http.StatusInternalServerError, httpErr.Status)
	assert.True(t, ErrorIsUnknown(fmt.Errorf("boom")))
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "policy_denied", ErrorCode(NewErrorFrom(ErrPolicyDenied, "vm limit exceeded")))
	assert.Equal(t, "invariant_violation", ErrorCode(WrapError(ErrInvariantViolation, "steps")))
	assert.Equal(t, "unknown", ErrorCode(fmt.Errorf("boom")))
}

func TestDecodeError(t *testing.T) {
	err := DecodeError([]byte(`{"id":8,"message":"job requires an approval before it can run"}`), http.StatusForbidden)
	require.Error(t, err)
	assert.True(t, ErrorIs(err, ErrJobNotApproved))
	assert.NoError(t, DecodeError([]byte(`{}`), http.StatusOK))
}

func TestWrapError(t *testing.T) {
	err := oneForStackTest()
	// print the error call stack
	fmt.Println(err)
	// print the error stack trace
	fmt.Printf("%+v\n", err)
	assert.Contains(t, err.Error(), "five")
}

func oneForStackTest() error   { return WrapError(twoForStackTest(), "one") }
func twoForStackTest() error   { return WrapError(threeForStackTest(), "two") }
func threeForStackTest() error { return WrapError(fourForStackTest(), "three") }
func fourForStackTest() error  { return WrapError(fiveForStackTest(), "four") }
func fiveForStackTest() error {
	return WrapError(fmt.Errorf("this is an error generated from vendor"), "five")
}
