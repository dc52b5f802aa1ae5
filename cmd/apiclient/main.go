package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-auth-client/app"
	"github.com/jrsteele09/go-auth-client/client"
	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/jrsteele09/go-auth-client/internal/fakeapi"
	"github.com/jrsteele09/go-auth-client/internal/logger"
	"github.com/rs/zerolog/log"
)

type flags struct {
	configPath string
	method     string
	path       string
	data       string
	login      string
	register   bool
	otp        string
	logout     bool
	fake       bool
	quiet      bool
}

func main() {
	f := parseFlags()
	if err := run(f); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "path to a YAML config file (defaults to $CONFIG_PATH)")
	flag.StringVar(&f.method, "method", "GET", "HTTP method")
	flag.StringVar(&f.path, "path", "", "API path relative to the base URL")
	flag.StringVar(&f.data, "data", "", "JSON request body")
	flag.StringVar(&f.login, "login", "", "sign in as this email; the password is read from $APICLIENT_PASSWORD")
	flag.BoolVar(&f.register, "register", false, "register -login instead of signing in")
	flag.StringVar(&f.otp, "otp", "", "one-time code for accounts that need one")
	flag.BoolVar(&f.logout, "logout", false, "end the stored session")
	flag.BoolVar(&f.fake, "fake", false, "run against an in-process fake API")
	flag.BoolVar(&f.quiet, "q", false, "skip the banner")
	flag.Parse()
	return f
}

func run(f flags) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	log.Logger = logger.New(cfg.GetEnv(), cfg.GetLogLevel())
	if !f.quiet {
		displayAppname(cfg.GetAppName())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if f.fake {
		baseURL, shutdown, err := startFake(f)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Fake API shutdown failed")
			}
		}()
		cfg = withBaseURL{Config: cfg, baseURL: baseURL}
	}

	a, err := app.New(cfg, app.WithSessionExpiredHandler(func() {
		fmt.Fprintln(os.Stderr, "Session expired, sign in again with -login")
	}))
	if err != nil {
		return err
	}

	if f.logout {
		return a.Auth.Logout(ctx)
	}
	if f.login != "" {
		if err := signIn(ctx, a, f); err != nil {
			return err
		}
	}
	if f.path == "" {
		return nil
	}
	return call(ctx, a, f)
}

func signIn(ctx context.Context, a *app.App, f flags) error {
	password := config.GetEnv("APICLIENT_PASSWORD", "")
	if password == "" {
		return errors.New("APICLIENT_PASSWORD is not set")
	}
	if f.register {
		return a.Auth.Register(ctx, f.login, password)
	}

	result, err := a.Auth.Login(ctx, f.login, password)
	if err != nil {
		return err
	}
	if !result.OTPRequired {
		return nil
	}
	if f.otp == "" {
		return errors.New("account needs a one-time code, pass it with -otp")
	}
	return a.Auth.VerifyOTP(ctx, f.login, f.otp)
}

func call(ctx context.Context, a *app.App, f flags) error {
	var body any
	if f.data != "" {
		if !json.Valid([]byte(f.data)) {
			return errors.New("-data is not valid JSON")
		}
		body = json.RawMessage(f.data)
	}

	resp, err := a.Client().Do(ctx, strings.ToUpper(f.method), f.path, body)
	if err != nil {
		return err
	}
	return printResponse(resp)
}

func printResponse(resp *client.Response) error {
	if len(resp.Body) == 0 {
		fmt.Printf("%d\n", resp.StatusCode)
		return nil
	}
	var out any
	if err := resp.Decode(&out); err != nil {
		fmt.Println(string(resp.Body))
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// startFake serves the fake API on a free local port, seeding the -login
// account so it can sign in straight away.
func startFake(f flags) (string, func(context.Context) error, error) {
	api := fakeapi.New(fakeapi.WithLogger(log.Logger))
	if f.login != "" && !f.register {
		password := config.GetEnv("APICLIENT_PASSWORD", "")
		if _, err := api.AddUser(f.login, password, f.otp != ""); err != nil {
			return "", nil, fmt.Errorf("seed fake user: %w", err)
		}
	}
	baseURL, shutdown, err := api.Listen("127.0.0.1:0")
	if err != nil {
		return "", nil, err
	}
	log.Info().Str("base_url", baseURL).Msg("Fake API listening")
	return baseURL, shutdown, nil
}

type withBaseURL struct {
	config.Config
	baseURL string
}

func (c withBaseURL) GetBaseURL() string {
	return c.baseURL
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
