package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/frankli0324/go-fetch"
	"github.com/frankli0324/go-fetch/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

type flags struct {
	configPath string
	envFiles   []string
	verbose    bool

	method     string
	headers    []string
	data       string
	redirect   string
	follow     int
	timeout    time.Duration
	maxSize    string
	noCompress bool
	proxy      string

	include bool
	convert bool
	output  string
	fail    bool
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "gofetch [flags] URL",
		Short: "Fetch a URL and print the response payload",
		Long: `gofetch sends a single request, follows redirects, undoes gzip and
deflate content codings and writes the payload to stdout.

Defaults come from an optional YAML config file, .env files and GOFETCH_*
environment variables, in that order of increasing precedence. Flags
override all of them.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0], &f)
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	pf := cmd.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "config file path")
	pf.StringSliceVar(&f.envFiles, "env-file", []string{".env"}, "dotenv files to load before reading GOFETCH_* variables")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "log every hop to stderr")

	fl := cmd.Flags()
	fl.StringVarP(&f.method, "request", "X", "", "request method")
	fl.StringArrayVarP(&f.headers, "header", "H", nil, `extra header, "Name: value"; repeatable`)
	fl.StringVarP(&f.data, "data", "d", "", "request payload, @file streams a file")
	fl.StringVar(&f.redirect, "redirect", "follow", "redirect mode: follow, error or manual")
	fl.IntVarP(&f.follow, "max-redirs", "L", -1, "maximum number of redirects to follow")
	fl.DurationVarP(&f.timeout, "timeout", "t", 0, "connection timeout, also bounds reading the payload")
	fl.StringVar(&f.maxSize, "max-size", "", `maximum payload size, e.g. "10MB"`)
	fl.BoolVar(&f.noCompress, "no-compress", false, "do not ask for or decode compressed payloads")
	fl.StringVarP(&f.proxy, "proxy", "x", "", "http(s) proxy URL")
	fl.BoolVarP(&f.include, "include", "i", false, "print the status line and headers")
	fl.BoolVar(&f.convert, "convert", false, "convert the payload to UTF-8 from its detected charset")
	fl.StringVarP(&f.output, "output", "o", "", "write the payload to a file")
	fl.BoolVarP(&f.fail, "fail", "f", false, "exit with an error on non-2xx statuses")
	return cmd
}

func loadConfig(f *flags) (*config.Config, error) {
	if err := config.LoadEnv(f.envFiles...); err != nil {
		return nil, err
	}
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.proxy != "" {
		cfg.Proxy = f.proxy
	}
	return cfg, nil
}

func requestOptions(cmd *cobra.Command, f *flags) ([]fetch.RequestOption, func(), error) {
	var opts []fetch.RequestOption
	cleanup := func() {}

	if f.method != "" {
		opts = append(opts, fetch.WithMethod(f.method))
	}
	if len(f.headers) > 0 {
		pairs := make([][2]string, 0, len(f.headers))
		for _, h := range f.headers {
			name, value, ok := strings.Cut(h, ":")
			if !ok {
				return nil, cleanup, fmt.Errorf("invalid header %q, want \"Name: value\"", h)
			}
			pairs = append(pairs, [2]string{strings.TrimSpace(name), value})
		}
		opts = append(opts, fetch.WithHeaders(pairs))
	}
	if f.data != "" {
		var payload interface{} = f.data
		if path, ok := strings.CutPrefix(f.data, "@"); ok {
			file, err := os.Open(path)
			if err != nil {
				return nil, cleanup, err
			}
			cleanup = func() { file.Close() }
			payload = file
		}
		opts = append(opts, fetch.WithBody(payload))
		if f.method == "" {
			opts = append(opts, fetch.WithMethod("POST"))
		}
	}
	opts = append(opts, fetch.WithRedirect(fetch.RedirectMode(f.redirect)))
	if cmd.Flags().Changed("max-redirs") {
		opts = append(opts, fetch.WithFollow(f.follow))
	}
	if f.timeout > 0 {
		opts = append(opts, fetch.WithTimeout(f.timeout))
	}
	if f.maxSize != "" {
		n, err := config.ParseSize(f.maxSize)
		if err != nil {
			return nil, cleanup, err
		}
		opts = append(opts, fetch.WithMaxSize(int64(n)))
	}
	if f.noCompress {
		opts = append(opts, fetch.WithCompress(false))
	}
	return opts, cleanup, nil
}

func run(cmd *cobra.Command, target string, f *flags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if f.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	client, err := fetch.New(fetch.WithConfig(cfg), fetch.WithLogger(logger))
	if err != nil {
		return err
	}
	opts, cleanup, err := requestOptions(cmd, f)
	defer cleanup()
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := client.Fetch(ctx, target, opts...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if f.output != "" {
		file, err := os.Create(f.output)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}

	if f.include {
		fmt.Fprintf(cmd.OutOrStdout(), "HTTP/1.1 %d %s\n", resp.Status(), resp.StatusText())
		for name, value := range resp.Headers().Entries() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", name, value)
		}
		fmt.Fprintln(cmd.OutOrStdout())
	}

	var n int
	if f.convert {
		text, err := resp.TextConverted(ctx)
		if err != nil {
			return err
		}
		n, err = io.WriteString(out, text)
		if err != nil {
			return err
		}
	} else {
		payload, err := resp.Bytes(ctx)
		if err != nil {
			return err
		}
		if n, err = out.Write(payload); err != nil {
			return err
		}
	}

	if f.verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "%d %s, %s in %s from %s\n",
			resp.Status(), resp.StatusText(), humanize.Bytes(uint64(n)),
			time.Since(start).Round(time.Millisecond), resp.URL())
	}
	if f.fail && !resp.OK() {
		return fmt.Errorf("server returned %d %s", resp.Status(), resp.StatusText())
	}
	return nil
}
