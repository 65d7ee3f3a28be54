package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fsamin/go-dump"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/hostops/hops/sdk"
)

// ShellMode will os.Exit if false, display only exit code if true
var ShellMode bool

// ExitOnError if the error is not nil; exit the process with printing help functions and the error
func ExitOnError(err error, helpFunc ...func() error) {
	if err == nil {
		return
	}

	code := 50 // default error code

	switch e := err.(type) {
	case sdk.Error:
		fmt.Printf("Error(request_id:%s): %s\n", e.RequestID, e.Message)
		code = e.ID
	case *Error:
		code = e.Code
		fmt.Println("Error:", e.Error())
	default:
		fmt.Println("Error:", err.Error())
	}

	for _, f := range helpFunc {
		f() // nolint
	}

	OSExit(code)
}

// OSExit will os.Exit if ShellMode is false, display only exit code if true
func OSExit(code int) {
	if ShellMode {
		if code != 0 {
			fmt.Printf("Command exit with code %d\n", code)
		}
	} else {
		os.Exit(code)
	}
}

// SubCommands represents an array of cobra.Command
type SubCommands []*cobra.Command

// NewCommand creates a new cobra command with or without a RunFunc and eventually subCommands
func NewCommand(c Command, run RunFunc, subCommands SubCommands, mod ...CommandModifier) *cobra.Command {
	return newCommand(c, run, subCommands, mod...)
}

// NewGetCommand creates a new cobra command with a RunGetFunc and eventually subCommands
func NewGetCommand(c Command, run RunGetFunc, subCommands SubCommands, mod ...CommandModifier) *cobra.Command {
	return newCommand(c, run, subCommands, mod...)
}

// NewListCommand creates a new cobra command with a RunListFunc and eventually subCommands
func NewListCommand(c Command, run RunListFunc, subCommands SubCommands, mod ...CommandModifier) *cobra.Command {
	return newCommand(c, run, subCommands, mod...)
}

func newCommand(c Command, run interface{}, subCommands SubCommands, mods ...CommandModifier) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetOut(os.Stdout)
	cmd.Use = c.Name

	for _, a := range c.Args {
		cmd.Use = cmd.Use + " " + strings.ToUpper(a.Name)
	}
	for _, a := range c.OptionalArgs {
		cmd.Use = cmd.Use + " [" + strings.ToUpper(a.Name) + "]"
	}

	if len(mods) == 0 {
		mods = []CommandModifier{CommandWithExtraFlags}
	}

	if run != nil {
		for _, mod := range mods {
			mod(&c, run)
		}
	}
	cmd.Aliases = c.Aliases
	for _, f := range c.Flags {
		switch f.Type {
		case FlagBool:
			b, _ := strconv.ParseBool(f.Default)
			_ = cmd.Flags().BoolP(f.Name, f.ShortHand, b, f.Usage)
		case FlagSlice:
			_ = cmd.Flags().StringSliceP(f.Name, f.ShortHand, nil, f.Usage)
		default:
			_ = cmd.Flags().StringP(f.Name, f.ShortHand, f.Default, f.Usage)
		}
	}

	definedArgs := append([]Arg{}, c.Args...)
	definedArgs = append(definedArgs, c.OptionalArgs...)

	cmd.Short = c.Short
	cmd.Long = c.Long
	cmd.Example = c.Example

	cmd.AddCommand(subCommands...)

	if run == nil || reflect.ValueOf(run).IsNil() {
		return cmd
	}

	var argsToVal = func(args []string) Values {
		vals := Values{}
		for i := range args {
			s := definedArgs[i].Name
			if definedArgs[i].IsValid != nil && !definedArgs[i].IsValid(args[i]) {
				fmt.Printf("%s is invalid\n", s)
				ExitOnError(ErrWrongUsage, cmd.Help)
			}
			vals[s] = append(vals[s], args[i])
		}

		for i := range c.Flags {
			s := c.Flags[i].Name
			switch c.Flags[i].Type {
			case FlagBool:
				b, err := cmd.Flags().GetBool(s)
				ExitOnError(err)
				vals[s] = append(vals[s], fmt.Sprintf("%v", b))
			case FlagSlice:
				slice, err := cmd.Flags().GetStringSlice(s)
				ExitOnError(err)
				vals[s] = append(vals[s], strings.Join(slice, "||"))
			default:
				val, err := cmd.Flags().GetString(s)
				ExitOnError(err)
				vals[s] = append(vals[s], val)
			}
			if c.Flags[i].IsValid != nil {
				for _, v := range vals[s] {
					if !c.Flags[i].IsValid(v) {
						fmt.Printf("%s is invalid\n", s)
						ExitOnError(ErrWrongUsage, cmd.Help)
					}
				}
			}
		}
		return vals
	}

	cmd.Run = func(cmd *cobra.Command, args []string) {
		// Command must receive as least mandatory args
		if len(c.Args) > len(args) || len(args) > len(definedArgs) {
			ExitOnError(ErrWrongUsage, cmd.Help)
			return
		}

		vals := argsToVal(args)
		format, _ := cmd.Flags().GetString("format")

		switch f := run.(type) {
		case RunFunc:
			ExitOnError(f(vals))
			OSExit(0)

		case RunGetFunc:
			i, err := f(vals)
			ExitOnError(err)
			ExitOnError(displayItem(cmd.OutOrStdout(), i, format))

		case RunListFunc:
			quiet, _ := cmd.Flags().GetBool("quiet")
			filter, _ := cmd.Flags().GetString("filter")
			fields, _ := cmd.Flags().GetString("fields")
			filters := make(map[string]string)
			if filter != "" {
				for _, t := range strings.Split(filter, " ") {
					s := strings.SplitN(t, "=", 2)
					if len(s) != 2 {
						ExitOnError(fmt.Errorf("Filter should be formatted like name=value"))
					}
					filters[s[0]] = s[1]
				}
			}
			var fs []string
			if fields != "" {
				fs = strings.Split(fields, ",")
			}

			s, err := f(vals)
			ExitOnError(err)
			ExitOnError(displayList(cmd.OutOrStdout(), s, format, quiet, filters, fs))

		default:
			panic(fmt.Errorf("Unknown function type: %T", f))
		}
	}

	return cmd
}

func displayItem(w io.Writer, i interface{}, format string) error {
	switch format {
	case "json":
		b, err := json.MarshalIndent(i, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(b))
	case "yaml":
		b, err := yaml.Marshal(i)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(b))
	default:
		item := listItem(i, nil, false, nil, map[string]string{})
		itemKeys := make([]string, 0, len(item))
		for k := range item {
			itemKeys = append(itemKeys, k)
		}
		sort.Strings(itemKeys)

		tw := tabwriter.NewWriter(w, 10, 0, 1, ' ', 0)
		for _, k := range itemKeys {
			fmt.Fprintln(tw, k+"\t"+item[k])
		}
		return tw.Flush()
	}
	return nil
}

func displayList(w io.Writer, s ListResult, format string, quiet bool, filters map[string]string, fields []string) error {
	var tableHeader []string
	var tableData [][]string
	allResult := []map[string]string{}

	for _, i := range s {
		item := listItem(i, filters, quiet, fields, map[string]string{})
		if len(item) == 0 {
			continue
		}
		if quiet {
			fmt.Fprintln(w, item["key"])
			continue
		}
		allResult = append(allResult, item)

		itemKeys := make([]string, 0, len(item))
		for k := range item {
			itemKeys = append(itemKeys, k)
		}
		sort.Strings(itemKeys)

		if tableHeader == nil {
			for _, k := range itemKeys {
				tableHeader = append(tableHeader, strings.ToTitle(k))
			}
		}
		itemData := make([]string, len(itemKeys))
		for idx, k := range itemKeys {
			itemData[idx] = item[k]
		}
		tableData = append(tableData, itemData)
	}

	if quiet {
		return nil
	}

	switch format {
	case "json":
		b, err := json.MarshalIndent(allResult, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(b))
	case "yaml":
		b, err := yaml.Marshal(allResult)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(b))
	default:
		if len(tableData) == 0 {
			fmt.Fprintln(w, "nothing to display...")
			return nil
		}
		table := tablewriter.NewWriter(w)
		table.SetHeader(tableHeader)
		table.AppendBulk(tableData)
		table.Render()
	}
	return nil
}

// listItem returns the fields tagged with cli of a struct. The field tagged
// with ",key" is the only one returned in quiet mode.
func listItem(i interface{}, filters map[string]string, quiet bool, fields []string, res map[string]string) map[string]string {
	var s reflect.Value
	if reflect.ValueOf(i).Kind() == reflect.Ptr {
		s = reflect.ValueOf(i).Elem()
	} else {
		s = reflect.ValueOf(i)
	}

	if m, ok := i.(map[string]string); ok {
		for k, v := range m {
			res[k] = v
		}
		return res
	}
	if s.Kind() == reflect.Map {
		m, _ := dump.ToStringMap(i)
		return m
	}

	if s.Kind() != reflect.Struct {
		return nil
	}

	t := s.Type()
	for i := 0; i < s.NumField(); i++ {
		f := s.Field(i)
		structField := t.Field(i)
		if f.Kind() == reflect.Ptr {
			f = f.Elem()
		}
		switch f.Kind() {
		case reflect.Array, reflect.Slice, reflect.Map:
			continue
		}
		if structField.Anonymous && f.Kind() == reflect.Struct {
			res = listItem(f.Interface(), filters, quiet, fields, res)
			continue
		}

		tag := structField.Tag.Get("cli")
		if tag == "" || tag == "-" {
			continue
		}
		var isKey bool
		if strings.HasSuffix(tag, ",key") {
			isKey = true
			tag = strings.TrimSuffix(tag, ",key")
		}

		var value string
		if f.IsValid() {
			value = fmt.Sprintf("%v", f.Interface())
		}

		// an item not matching a filter is not displayed
		for k, v := range filters {
			if !strings.EqualFold(k, tag) {
				continue
			}
			if !strings.HasPrefix(v, "^") {
				v = "^" + v
			}
			if !strings.HasSuffix(v, "$") {
				v = v + "$"
			}
			match, err := regexp.MatchString(v, value)
			if err != nil || !match {
				return nil
			}
		}

		if quiet {
			if isKey {
				res["key"] = value
			}
			continue
		}

		if len(fields) > 0 {
			var visible bool
			for _, ff := range fields {
				if strings.EqualFold(ff, tag) {
					visible = true
					break
				}
			}
			if !visible {
				continue
			}
		}
		res[tag] = value
	}
	return res
}
