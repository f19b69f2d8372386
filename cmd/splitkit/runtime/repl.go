package runtime

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/harunnryd/splitkit/internal/core"
	"github.com/harunnryd/splitkit/internal/experiment"
	"github.com/harunnryd/splitkit/internal/formatter"
	"github.com/harunnryd/splitkit/internal/logger"

	"github.com/google/shlex"
)

var errExit = errors.New("exit")

// REPL drives one scope of the core from slash commands read line by line.
type REPL struct {
	rt     *Runtime
	scope  *core.Scope
	reader *bufio.Reader
	out    io.Writer
	table  *formatter.TableFormatter
}

func NewREPL(rt *Runtime, scopeID string, in io.Reader, out io.Writer) *REPL {
	return &REPL{
		rt:     rt,
		scope:  rt.Core.Scope(scopeID),
		reader: bufio.NewReader(in),
		out:    out,
		table:  formatter.NewTableFormatter(),
	}
}

func (r *REPL) Start(ctx context.Context) error {
	session := r.scope.Analytics.Session().SessionID
	ctx = logger.WithSessionID(logger.WithClientID(ctx, r.scope.ID), session)
	logger.FromContext(ctx).Debug("REPL started")

	fmt.Fprintf(r.out, "splitkit session %s (scope %s)\n", session, r.scope.ID)
	fmt.Fprintln(r.out, "Type '/help' for commands, '/exit' to quit.")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fmt.Fprint(r.out, "> ")
		line, err := r.reader.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			if execErr := r.Execute(line); execErr != nil {
				if errors.Is(execErr, errExit) {
					return nil
				}
				logger.FromContext(ctx).Debug("REPL command failed", "input", line, "error", execErr)
				fmt.Fprintf(r.out, "error: %v\n", execErr)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// Execute runs a single slash command against the REPL's scope.
func (r *REPL) Execute(input string) error {
	parts, err := shlex.Split(input)
	if err != nil {
		parts = strings.Fields(input)
	}
	if len(parts) == 0 {
		return nil
	}
	cmd, args := parts[0], parts[1:]
	if !strings.HasPrefix(cmd, "/") {
		return fmt.Errorf("unknown input %q, commands start with '/'", cmd)
	}

	switch cmd {
	case "/exit", "/quit":
		return errExit
	case "/help":
		fmt.Fprint(r.out, replHelp)
	case "/variant":
		return r.variant(args)
	case "/convert":
		return r.convert(args)
	case "/track":
		return r.track(args)
	case "/interact":
		return r.interact(args)
	case "/mark":
		if len(args) != 1 {
			return fmt.Errorf("usage: /mark <name>")
		}
		r.scope.Recorder.Mark(args[0])
		fmt.Fprintf(r.out, "marked %s\n", args[0])
	case "/measure":
		return r.measure(args)
	case "/experiments":
		r.experiments()
	case "/session":
		return r.dumpJSON(r.scope.Analytics.SessionData())
	case "/metrics":
		return r.dumpJSON(r.scope.Recorder.Metrics())
	case "/clear":
		if err := r.rt.Core.ClearScope(r.scope.ID); err != nil {
			return err
		}
		fmt.Fprintln(r.out, "assignments cleared")
	default:
		return fmt.Errorf("unknown command %s", cmd)
	}
	return nil
}

func (r *REPL) variant(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: /variant <experiment> [user]")
	}
	user := ""
	if len(args) == 2 {
		user = args[1]
	}
	v := r.scope.Engine.GetVariant(args[0], user)
	if v == nil {
		fmt.Fprintf(r.out, "%s: no variant\n", args[0])
		return nil
	}
	fmt.Fprintf(r.out, "%s: %s (%s)\n", args[0], v.ID, v.Name)
	return nil
}

func (r *REPL) convert(args []string) error {
	if len(args) < 1 || len(args) > 3 {
		return fmt.Errorf("usage: /convert <experiment> [type] [value]")
	}
	conversionType := experiment.DefaultConversionType
	value := experiment.DefaultConversionValue
	if len(args) >= 2 {
		conversionType = args[1]
	}
	if len(args) == 3 {
		v, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fmt.Errorf("invalid value %q", args[2])
		}
		value = v
	}

	if !r.scope.Conversions.TrackConversion(args[0], conversionType, value) {
		fmt.Fprintf(r.out, "%s: no assignment, conversion ignored\n", args[0])
		return nil
	}
	fmt.Fprintf(r.out, "%s: conversion %s tracked\n", args[0], conversionType)
	return nil
}

func (r *REPL) track(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: /track <event> [key=value ...]")
	}
	evt := r.scope.Analytics.Track(args[0], parseProps(args[1:]))
	fmt.Fprintf(r.out, "tracked %s at %d\n", evt.Name, evt.Timestamp)
	return nil
}

func (r *REPL) interact(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: /interact <type> [key=value ...]")
	}
	r.scope.Analytics.TrackInteraction(args[0], parseProps(args[1:]))
	fmt.Fprintf(r.out, "interaction %s tracked\n", args[0])
	return nil
}

func (r *REPL) measure(args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf("usage: /measure <name> <startMark> [endMark]")
	}
	end := ""
	if len(args) == 3 {
		end = args[2]
	}
	m := r.scope.Recorder.Measure(args[0], args[1], end)
	if m == nil {
		fmt.Fprintf(r.out, "mark %s not found\n", args[1])
		return nil
	}
	fmt.Fprintf(r.out, "%s: %.2fms\n", m.Name, m.Duration)
	return nil
}

func (r *REPL) experiments() {
	assigned := make(map[string]string)
	for _, a := range r.scope.Engine.Assignments() {
		assigned[a.ExperimentID] = a.Variant.ID
	}

	rows := [][]string{}
	for _, exp := range r.rt.Core.Registry.Experiments() {
		weights := make([]string, 0, len(exp.Variants))
		for _, v := range exp.Variants {
			weights = append(weights, fmt.Sprintf("%s:%g", v.ID, v.Weight))
		}
		rows = append(rows, []string{exp.ID, strings.Join(weights, " "), assigned[exp.ID]})
	}
	if len(rows) == 0 {
		fmt.Fprintln(r.out, "no experiments defined")
		return
	}
	fmt.Fprintln(r.out, r.table.Table([]string{"Experiment", "Weights", "Assigned"}, rows))
}

func (r *REPL) dumpJSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseProps turns key=value arguments into event properties. Numeric and
// boolean values keep their type.
func parseProps(args []string) map[string]any {
	if len(args) == 0 {
		return nil
	}
	props := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			continue
		}
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			props[key] = f
		} else if b, err := strconv.ParseBool(value); err == nil {
			props[key] = b
		} else {
			props[key] = value
		}
	}
	return props
}

var replHelp = func() string {
	cmds := map[string]string{
		"/variant <experiment> [user]":        "resolve (and persist) a variant",
		"/convert <experiment> [type] [value]": "record a conversion for the assigned variant",
		"/track <event> [k=v ...]":             "record a custom event",
		"/interact <type> [k=v ...]":           "record a user interaction",
		"/mark <name>":                         "record a timing mark",
		"/measure <name> <start> [end]":        "measure between two marks",
		"/experiments":                         "list definitions and assignments",
		"/session":                             "dump the session event log",
		"/metrics":                             "dump timing marks and measures",
		"/clear":                               "forget this scope's assignments",
		"/exit":                                "quit",
	}
	keys := make([]string, 0, len(cmds))
	for k := range cmds {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "  %-38s %s\n", k, cmds[k])
	}
	return b.String()
}()
