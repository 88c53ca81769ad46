package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	log "github.com/sirupsen/logrus"

	"trigger-console/internal/auth"
	"trigger-console/internal/console"
	"trigger-console/internal/editor"
	"trigger-console/internal/listview"
	"trigger-console/internal/metadata"
	"trigger-console/internal/notify"
)

func listCommand(root *rootConfig) *ffcli.Command {
	fs := flag.NewFlagSet("triggerctl list", flag.ExitOnError)
	var (
		objectType = fs.String("object", "", "only records for this object type")
		event      = fs.String("event", "", "only records for this event, e.g. BEFORE_INSERT")
		query      = fs.String("query", "", "expression over record, e.g. 'record.order > 10 && record.active'")
	)
	return &ffcli.Command{
		Name:       "list",
		ShortUsage: "triggerctl list [-object X] [-event E] [-query EXPR]",
		ShortHelp:  "List registered trigger handlers.",
		FlagSet:    fs,
		Options:    []ff.Option{ff.WithEnvVarPrefix("TRIGGERCTL")},
		Exec: func(ctx context.Context, _ []string) error {
			client, err := root.client()
			if err != nil {
				return err
			}
			view := listview.New(client)
			if _, err := view.Load(ctx); err != nil {
				return err
			}
			if err := view.SetEventFilter(metadata.EventType(*event)); err != nil {
				return err
			}
			view.SetObjectFilter(*objectType)

			records := view.Visible()
			if *query != "" {
				matched, err := view.Query(*query)
				if err != nil {
					return err
				}
				records = listview.Filter(matched, *objectType, metadata.EventType(*event))
			}
			printRecords(os.Stdout, records)
			return nil
		},
	}
}

func printRecords(w io.Writer, records []metadata.Record) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tDEVELOPER NAME\tOBJECT\tEVENT\tCLASS\tACTIVE\tBUILT-IN")
	for _, r := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%t\t%t\n",
			r.Order, r.DeveloperName, r.ObjectType, r.EventLabel, r.HandlerClass, r.Active, r.BuiltIn)
	}
	tw.Flush()
}

// recordFlags collects editor field values from the command line.
type recordFlags struct {
	values   map[editor.Field]*string
	inactive bool
}

func (r *recordFlags) register(fs *flag.FlagSet) {
	r.values = map[editor.Field]*string{
		editor.FieldObjectType:    fs.String("object", "", "object type"),
		editor.FieldEvent:         fs.String("event", "", "trigger event, e.g. AFTER_UPDATE"),
		editor.FieldHandlerClass:  fs.String("class", "", "handler class name"),
		editor.FieldLabel:         fs.String("label", "", "label (derived from class and event when empty)"),
		editor.FieldDeveloperName: fs.String("name", "", "developer name (derived from the label when empty)"),
		editor.FieldDescription:   fs.String("description", "", "description"),
		editor.FieldOrder:         fs.String("order", "", "execution order"),
		editor.FieldParameters:    fs.String("params", "", "JSON parameters"),
	}
	fs.BoolVar(&r.inactive, "inactive", false, "register the handler inactive")
}

// fill opens a new editor on c, applies the flag values and validates every
// field.
func (r *recordFlags) fill(ctx context.Context, c *console.Console) (*editor.Session, error) {
	s, err := c.OpenEditor(ctx, editor.ModeNew, "")
	if err != nil {
		return nil, err
	}
	if r.inactive {
		if err := s.SetValue(editor.FieldActive, strconv.FormatBool(false)); err != nil {
			return nil, err
		}
	}
	for f, v := range r.values {
		if *v == "" {
			continue
		}
		if err := s.SetValue(f, *v); err != nil {
			return nil, err
		}
	}
	if err := s.ValidateAll(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func newConsole(ctx context.Context, root *rootConfig, interval time.Duration) (*console.Console, error) {
	client, err := root.client()
	if err != nil {
		return nil, err
	}
	c := console.New(console.Options{
		Service:      client,
		Sink:         logSink{},
		PollInterval: interval,
	})
	if err := c.Refresh(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func printEditor(w io.Writer, v editor.View) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, f := range editor.Fields {
		st := v.Fields[f]
		status := "ok"
		if st.Invalid {
			status = "INVALID"
			if st.Message != "" {
				status += ": " + st.Message
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", f, st.Value, status)
	}
	tw.Flush()
	if v.Warnings.JSONNotSupported {
		fmt.Fprintln(w, "warning: handler class does not accept JSON parameters")
	}
	if v.Warnings.DuplicateHandler {
		fmt.Fprintln(w, "warning: handler class is already registered for this event")
	}
	if v.Warnings.ParameterSchema != "" {
		fmt.Fprintf(w, "warning: parameters: %s\n", v.Warnings.ParameterSchema)
	}
}

func checkCommand(root *rootConfig) *ffcli.Command {
	fs := flag.NewFlagSet("triggerctl check", flag.ExitOnError)
	var rf recordFlags
	rf.register(fs)
	return &ffcli.Command{
		Name:       "check",
		ShortUsage: "triggerctl check -object X -event E -class C [flags]",
		ShortHelp:  "Validate a registration without creating it.",
		FlagSet:    fs,
		Exec: func(ctx context.Context, _ []string) error {
			c, err := newConsole(ctx, root, 0)
			if err != nil {
				return err
			}
			defer c.Close()

			s, err := rf.fill(ctx, c)
			if err != nil {
				return err
			}
			v := s.View()
			printEditor(os.Stdout, v)
			for _, st := range v.Fields {
				if st.Invalid {
					return errors.New("registration is invalid")
				}
			}
			return nil
		},
	}
}

func submitCommand(root *rootConfig) *ffcli.Command {
	fs := flag.NewFlagSet("triggerctl submit", flag.ExitOnError)
	var rf recordFlags
	rf.register(fs)
	var (
		wait     = fs.Bool("wait", false, "poll until the deployment is visible")
		interval = fs.Duration("poll-interval", 10*time.Second, "polling interval with -wait")
		deadline = fs.Duration("wait-timeout", 10*time.Minute, "give up waiting after this long")
	)
	return &ffcli.Command{
		Name:       "submit",
		ShortUsage: "triggerctl submit -object X -event E -class C [-wait] [flags]",
		ShortHelp:  "Create a registration and optionally wait for its deployment.",
		FlagSet:    fs,
		Exec: func(ctx context.Context, _ []string) error {
			c, err := newConsole(ctx, root, *interval)
			if err != nil {
				return err
			}
			defer c.Close()

			s, err := rf.fill(ctx, c)
			if err != nil {
				return err
			}
			rec, err := c.SubmitEditor(ctx, s.ID(), os.Getenv("USER"))
			if err != nil {
				var verr *editor.ValidationError
				if errors.As(err, &verr) {
					printEditor(os.Stdout, s.View())
				}
				return err
			}
			fmt.Printf("submitted %s (%s)\n", rec.DeveloperName, rec.ID)
			if !*wait {
				return nil
			}
			return waitDeployed(ctx, c, *deadline)
		},
	}
}

func waitDeployed(ctx context.Context, c *console.Console, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	check := time.NewTicker(500 * time.Millisecond)
	defer check.Stop()
	for {
		d := c.Deployments()
		if len(d.Pending) == 0 {
			fmt.Println("deployment confirmed")
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for deployment: %w", ctx.Err())
		case <-check.C:
		}
	}
}

func hashPasswordCommand() *ffcli.Command {
	fs := flag.NewFlagSet("triggerctl hash-password", flag.ExitOnError)
	return &ffcli.Command{
		Name:       "hash-password",
		ShortUsage: "triggerctl hash-password [password]",
		ShortHelp:  "Print a bcrypt hash for auth.admin_password_hash. Reads stdin without an argument.",
		FlagSet:    fs,
		Exec: func(_ context.Context, args []string) error {
			var password string
			if len(args) > 0 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return errors.New("password is empty")
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}
}

// logSink prints console toasts to the log.
type logSink struct{}

func (logSink) Notify(title, message string, severity notify.Severity) {
	switch severity {
	case notify.SeverityError:
		log.Errorf("%s: %s", title, message)
	case notify.SeverityWarning:
		log.Warnf("%s: %s", title, message)
	default:
		log.Infof("%s: %s", title, message)
	}
}
