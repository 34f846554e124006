package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	slogcontext "github.com/veqryn/slog-context"

	pyresolve "github.com/albertocavalcante/go-pyresolve"
	"github.com/albertocavalcante/go-pyresolve/index"
	"github.com/albertocavalcante/go-pyresolve/wheel"
)

const envPrefix = "PYRESOLVE"

const (
	flagConfig         = "config"
	flagVerbose        = "verbose"
	flagIndex          = "index"
	flagExtraIndex     = "extra-index"
	flagConstraint     = "constraint"
	flagMock           = "mock"
	flagInstalled      = "installed"
	flagForceReinstall = "force-reinstall"
	flagNoDeps         = "no-deps"
	flagPre            = "pre"
	flagCollectAll     = "collect-all"
	flagPython         = "python"
	flagArch           = "arch"
	flagPlatform       = "platform"
	flagBuiltinLock    = "builtin-lock"
	flagAllowHost      = "allow-host"
	flagTimeout        = "timeout"
	flagRetries        = "retries"
	flagConcurrency    = "concurrency"
	flagOutput         = "output"
)

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "pyresolve",
		Short: "Resolve Python requirements into an installation plan",
		Long: `pyresolve resolves Python requirement strings against one or more package
indexes and prints the ordered set of wheels that would be installed.

Every flag can also be set through a PYRESOLVE_* environment variable
(PYRESOLVE_EXTRA_INDEX for --extra-index) or a config file passed with --config.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadConfig(cmd, v); err != nil {
				return err
			}
			cmd.SetContext(slogcontext.NewCtx(cmd.Context(), newLogger(cmd.ErrOrStderr(), v.GetInt(flagVerbose))))
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.String(flagConfig, "", "config file (yaml, toml or json)")
	pf.CountP(flagVerbose, "v", "increase log verbosity (-v info, -vv debug)")
	pf.StringSlice(flagIndex, nil, "index base URL, in priority order (default "+pyresolve.DefaultIndexURL+")")
	pf.StringSlice(flagExtraIndex, nil, "additional index URL queried after --index")
	pf.StringSliceP(flagConstraint, "c", nil, "constraint applied to every resolution (name[spec] or name @ url)")
	pf.StringSlice(flagMock, nil, "mock package as name==version")
	pf.StringSlice(flagInstalled, nil, "already installed package as name==version")
	pf.StringSlice(flagForceReinstall, nil, "resolve these packages even if installed")
	pf.Bool(flagNoDeps, false, "do not resolve dependencies")
	pf.Bool(flagPre, false, "allow pre-release versions")
	pf.Bool(flagCollectAll, false, "keep resolving after a failure and report every failing requirement")
	pf.String(flagPython, wheel.DefaultPythonVersion, "target interpreter version")
	pf.String(flagArch, "wasm32", "target architecture")
	pf.StringSlice(flagPlatform, wheel.DefaultPlatforms, "target platform tags, most specific first")
	pf.String(flagBuiltinLock, "", "lock file listing the packages bundled with the runtime")
	pf.StringSlice(flagAllowHost, nil, "glob of hosts the index client may contact")
	pf.Duration(flagTimeout, 0, "per-request timeout (0 keeps the default)")
	pf.Int(flagRetries, -1, "retries per request (-1 keeps the default)")
	pf.Int(flagConcurrency, 0, "maximum concurrent index queries (0 keeps the default)")

	cmd.AddCommand(newResolveCmd(v), newWhyCmd(v))
	return cmd
}

// loadConfig binds flags, environment and the optional config file into v.
// Explicit flags take precedence over the environment, which takes
// precedence over the config file.
func loadConfig(cmd *cobra.Command, v *viper.Viper) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	if path := v.GetString(flagConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config %s: %w", path, err)
		}
	}
	return nil
}

func newLogger(w io.Writer, verbosity int) *slog.Logger {
	level := charmlog.WarnLevel
	switch {
	case verbosity >= 2:
		level = charmlog.DebugLevel
	case verbosity == 1:
		level = charmlog.InfoLevel
	}
	return slog.New(charmlog.NewWithOptions(w, charmlog.Options{
		Prefix:          "pyresolve",
		Level:           level,
		ReportTimestamp: verbosity >= 2,
	}))
}

// newSession builds a session carrying the configured mocks and default
// constraints.
func newSession(v *viper.Viper) (*pyresolve.Session, error) {
	s := pyresolve.NewSession()
	s.SetDefaultConstraints(v.GetStringSlice(flagConstraint))
	for _, m := range v.GetStringSlice(flagMock) {
		name, version, err := splitPin(m)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", flagMock, err)
		}
		if err := s.MockAdd(name, version); err != nil {
			return nil, fmt.Errorf("--%s: %w", flagMock, err)
		}
	}
	return s, nil
}

// resolveOptions maps the configuration onto resolver options.
func resolveOptions(v *viper.Viper) ([]pyresolve.Option, error) {
	var opts []pyresolve.Option

	if idx := v.GetStringSlice(flagIndex); len(idx) > 0 {
		opts = append(opts, pyresolve.WithIndexURLs(idx...))
	}
	if extra := v.GetStringSlice(flagExtraIndex); len(extra) > 0 {
		opts = append(opts, pyresolve.WithExtraIndexes(extra...))
	}
	if names := v.GetStringSlice(flagForceReinstall); len(names) > 0 {
		opts = append(opts, pyresolve.WithForceReinstall(names...))
	}
	if v.GetBool(flagNoDeps) {
		opts = append(opts, pyresolve.WithNoDeps())
	}
	if v.GetBool(flagPre) {
		opts = append(opts, pyresolve.WithPrereleases())
	}
	if v.GetBool(flagCollectAll) {
		opts = append(opts, pyresolve.WithCollectAllFailures())
	}
	if hosts := v.GetStringSlice(flagAllowHost); len(hosts) > 0 {
		opts = append(opts, pyresolve.WithAllowedHosts(hosts...))
	}
	if d := v.GetDuration(flagTimeout); d > 0 {
		opts = append(opts, pyresolve.WithTimeout(d))
	}
	if n := v.GetInt(flagRetries); n >= 0 {
		opts = append(opts, pyresolve.WithRetries(n, index.DefaultMinRetryWait, index.DefaultMaxRetryWait))
	}
	if n := v.GetInt(flagConcurrency); n > 0 {
		opts = append(opts, pyresolve.WithMaxConcurrency(n))
	}

	installed := pyresolve.InstalledMap{}
	for _, p := range v.GetStringSlice(flagInstalled) {
		name, version, err := splitPin(p)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", flagInstalled, err)
		}
		installed[name] = version
	}
	if len(installed) > 0 {
		opts = append(opts, pyresolve.WithInstalled(installed))
	}

	rt, err := wheel.NewRuntime(v.GetString(flagPython), v.GetString(flagArch), v.GetStringSlice(flagPlatform))
	if err != nil {
		return nil, fmt.Errorf("target runtime: %w", err)
	}
	opts = append(opts, pyresolve.WithRuntime(rt))

	if path := v.GetString(flagBuiltinLock); path != "" {
		b, err := pyresolve.LoadBuiltinReleases(path)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pyresolve.WithBuiltinReleases(b))
	}
	return opts, nil
}

// resolve runs one resolution with the configured session and options.
func resolve(ctx context.Context, v *viper.Viper, reqs []string, extra ...pyresolve.Option) (*pyresolve.Plan, error) {
	s, err := newSession(v)
	if err != nil {
		return nil, err
	}
	opts, err := resolveOptions(v)
	if err != nil {
		return nil, err
	}
	return s.Resolve(ctx, reqs, append(opts, extra...)...)
}

func splitPin(s string) (name, version string, err error) {
	name, version, ok := strings.Cut(s, "==")
	name, version = strings.TrimSpace(name), strings.TrimSpace(version)
	if !ok || name == "" || version == "" {
		return "", "", fmt.Errorf("expected name==version, got %q", s)
	}
	return name, version, nil
}
