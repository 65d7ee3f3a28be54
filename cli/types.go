package cli

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// FlagType is the kind of value of a flag.
type FlagType int

const (
	FlagString FlagType = iota
	FlagBool
	FlagSlice
)

type Flag struct {
	Name      string
	ShortHand string
	Usage     string
	Default   string
	Type      FlagType
	IsValid   func(string) bool
}

// Values are the args and flags given to a command, by name.
type Values map[string][]string

// GetString returns the first value of the given key.
func (v Values) GetString(s string) string {
	if len(v[s]) == 0 {
		return ""
	}
	return v[s][0]
}

// GetBool returns the value of the given key as a boolean.
func (v Values) GetBool(s string) bool {
	b, _ := strconv.ParseBool(v.GetString(s))
	return b
}

// GetInt returns the value of the given key as an int, 0 if not set.
func (v Values) GetInt(s string) (int, error) {
	if v.GetString(s) == "" {
		return 0, nil
	}
	i, err := strconv.Atoi(v.GetString(s))
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", s, v.GetString(s))
	}
	return i, nil
}

// GetStringSlice returns the values of a slice flag.
func (v Values) GetStringSlice(s string) []string {
	if v.GetString(s) == "" {
		return nil
	}
	return strings.Split(v.GetString(s), "||")
}

type Arg struct {
	Name    string
	IsValid func(string) bool
}

type Command struct {
	Name         string
	Args         []Arg
	OptionalArgs []Arg
	Aliases      []string
	Short        string
	Long         string
	Example      string
	Flags        []Flag
}

type CommandModifier func(*Command, interface{})

func CommandWithoutExtraFlags(c *Command, run interface{}) {}

func CommandWithExtraFlags(c *Command, run interface{}) {
	var extraFlags = []Flag{}
	switch run.(type) {
	case RunGetFunc:
		extraFlags = []Flag{
			{
				Name:    "format",
				Default: "plain",
				Usage:   "Output format: plain|json|yaml",
			},
		}
	case RunListFunc:
		extraFlags = []Flag{
			{
				Name:    "filter",
				Default: "",
				Usage:   "Filter output based on conditions provided, example: status=running",
			},
			{
				Name:    "format",
				Default: "table",
				Usage:   "Output format: table|json|yaml",
			},
			{
				Name:      "quiet",
				ShortHand: "q",
				Type:      FlagBool,
				Usage:     "Only display object's key",
			},
			{
				Name:    "fields",
				Default: "",
				Usage:   "Only display specified object fields, example: 'id,status'",
			},
		}
	}
	c.Flags = append(c.Flags, extraFlags...)
}

var ErrWrongUsage = &Error{1, fmt.Errorf("Wrong usage")}

type Error struct {
	Code int
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

type GetResult interface{}
type ListResult []interface{}

type RunFunc func(Values) error
type RunGetFunc func(Values) (GetResult, error)
type RunListFunc func(Values) (ListResult, error)

func AsListResult(i interface{}) ListResult {
	s := reflect.ValueOf(i)
	if s.Kind() != reflect.Slice {
		panic("AsListResult() given a non-slice type")
	}

	res := ListResult{}
	for i := 0; i < s.Len(); i++ {
		res = append(res, s.Index(i).Interface())
	}
	return res
}
