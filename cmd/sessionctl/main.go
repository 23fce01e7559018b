package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/jrsteele09/go-auth-session/internal/logging"
	"github.com/rs/zerolog/log"
)

const usage = `Usage: sessionctl [-config file] <command> [arguments]

Commands:
  login -email <email> [-password <password>]
  logout
  refresh
  whoami
  info
  check <path>
  watch
  serve
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "sessionctl: %s\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	fs := flag.NewFlagSet("sessionctl", flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }
	configPath := fs.String("config", "", "YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("no command given")
	}

	c, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	log.Logger = logging.New(c.GetLogLevel(), c.GetEnv())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, c, out)
	if err != nil {
		return err
	}
	defer a.Close()

	cmd, cmdArgs := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "login":
		return a.login(ctx, cmdArgs)
	case "logout":
		return a.logout(ctx)
	case "refresh":
		return a.refresh(ctx)
	case "whoami":
		return a.whoami(ctx)
	case "info":
		return a.info(ctx)
	case "check":
		return a.check(ctx, cmdArgs)
	case "watch":
		displayAppname(c.GetAppName())
		return a.watch(ctx)
	case "serve":
		displayAppname(c.GetAppName())
		return a.serve(ctx)
	}
	fs.Usage()
	return fmt.Errorf("unknown command %q", cmd)
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
