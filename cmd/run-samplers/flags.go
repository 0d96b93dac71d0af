package main

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/SindhuVenna/catalyst/internal/logging"
)

const defaultSeed int64 = 42

type launchOptions struct {
	configs   []string
	sets      []string
	expdir    string
	logdir    string
	resume    string
	seed      int64
	vis       int
	infer     int
	train     int
	check     bool
	redis     bool
	stopGrace time.Duration
	logLevel  string
	logFormat string
}

func bindLaunchFlags(cmd *cobra.Command, opts *launchOptions) {
	fs := cmd.Flags()
	fs.StringArrayVarP(&opts.configs, "config", "C", nil, "config file (json, yaml or toml; repeatable, later files win)")
	fs.StringArrayVar(&opts.sets, "set", nil, "config override key.path=value (repeatable)")
	fs.StringVar(&opts.expdir, "expdir", "", "experiment directory; workers run with it as working directory")
	fs.StringVar(&opts.logdir, "logdir", "", "log directory for the fleet event log, worker logs and config dump")
	fs.StringVar(&opts.resume, "resume", "", "checkpoint to resume sampler policies from")
	fs.Int64Var(&opts.seed, "seed", defaultSeed, "base seed; worker i uses seed+i")
	fs.IntVar(&opts.vis, "vis", 0, "number of visualize workers")
	fs.IntVar(&opts.infer, "infer", 0, "number of infer workers")
	fs.IntVar(&opts.train, "train", 0, "number of train workers")
	addSwitch(fs, &opts.check, "check", false, "run a check worker to completion before the fleet")
	addSwitch(fs, &opts.redis, "redis", true, "connect workers to the coordination backend")
	fs.DurationVar(&opts.stopGrace, "stop-grace", 0, "SIGTERM grace before SIGKILL when stopping workers")
	fs.StringVar(&opts.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	fs.StringVar(&opts.logFormat, "log-format", logging.FormatAuto, "log format: auto|text|json")
	_ = cmd.MarkFlagRequired("config")
}

// switchValue backs a --name/--no-name pair writing one bool; the flag
// given last on the command line wins.
type switchValue struct {
	target *bool
	negate bool
}

func addSwitch(fs *pflag.FlagSet, target *bool, name string, def bool, usage string) {
	*target = def
	fs.Var(switchValue{target: target}, name, usage)
	fs.Lookup(name).NoOptDefVal = "true"
	fs.Var(switchValue{target: target, negate: true}, "no-"+name, "disable --"+name)
	fs.Lookup("no-" + name).NoOptDefVal = "true"
}

func (v switchValue) Set(raw string) error {
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return err
	}
	*v.target = b != v.negate
	return nil
}

func (v switchValue) String() string {
	if v.target == nil {
		return "false"
	}
	return strconv.FormatBool(*v.target != v.negate)
}

func (v switchValue) Type() string { return "bool" }
