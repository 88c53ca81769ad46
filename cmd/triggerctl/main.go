// Command triggerctl inspects and registers trigger handlers against the
// platform from the command line.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	log "github.com/sirupsen/logrus"

	"trigger-console/internal/platform"
)

type rootConfig struct {
	baseURL string
	token   string
	timeout time.Duration
	verbose bool
}

func (c *rootConfig) register(fs *flag.FlagSet) {
	fs.StringVar(&c.baseURL, "platform-url", "http://localhost:9000/api", "platform metadata API base URL")
	fs.StringVar(&c.token, "token", "", "platform bearer token")
	fs.DurationVar(&c.timeout, "timeout", 30*time.Second, "per-request timeout")
	fs.BoolVar(&c.verbose, "v", false, "debug logging")
}

func (c *rootConfig) client() (*platform.Client, error) {
	if c.verbose {
		log.SetLevel(log.DebugLevel)
	}
	return platform.NewClient(platform.ClientConfig{BaseURL: c.baseURL, Token: c.token, Timeout: c.timeout})
}

func main() {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})

	root := &rootConfig{}
	rootFS := flag.NewFlagSet("triggerctl", flag.ExitOnError)
	root.register(rootFS)

	cmd := &ffcli.Command{
		Name:       "triggerctl",
		ShortUsage: "triggerctl [flags] <subcommand> [flags]",
		ShortHelp:  "Manage trigger handler registrations.",
		FlagSet:    rootFS,
		Options:    []ff.Option{ff.WithEnvVarPrefix("TRIGGERCTL")},
		Subcommands: []*ffcli.Command{
			listCommand(root),
			checkCommand(root),
			submitCommand(root),
			hashPasswordCommand(),
		},
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cmd.ParseAndRun(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "triggerctl: %v\n", err)
		os.Exit(1)
	}
}
