// Package config provides functionality for managing configuration options
// for the client using a config file, a .env file, environment variables and
// command-line flags, in increasing order of precedence.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Commands accepted as the first positional argument.
const (
	CommandQuery   = "query"
	CommandLogin   = "login"
	CommandLogout  = "logout"
	CommandHistory = "history"
)

// Output formats.
const (
	OutputPlain = "plain"
	OutputJSON  = "json"
)

// DefaultRedirectHost answers 204 on an open network.
const DefaultRedirectHost = "http://www.google.cn/generate_204"

// Options holds the configuration values for the client.
type Options struct {
	// Server is the portal base URL, e.g. "http://10.0.0.1".
	Server string `json:"server" yaml:"server"`

	// Username and Password are the portal account.
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`

	// Redirect probes RedirectHost before login.
	Redirect     bool   `json:"redirect" yaml:"redirect"`
	RedirectHost string `json:"redirect_host" yaml:"redirect_host"`

	// Interface and LocalAddr bind outgoing connections. LocalAddr wins.
	Interface string `json:"interface" yaml:"interface"`
	LocalAddr string `json:"local_addr" yaml:"local_addr"`

	// Output is "plain" or "json".
	Output string `json:"output" yaml:"output"`

	Timeout         Duration `json:"timeout" yaml:"timeout"`
	Insecure        bool     `json:"insecure" yaml:"insecure"`
	CAFile          string   `json:"ca_file" yaml:"ca_file"`
	FollowRedirects bool     `json:"follow_redirects" yaml:"follow_redirects"`
	TrimAuthBlob    bool     `json:"trim_auth_blob" yaml:"trim_auth_blob"`

	// HistoryDSN enables the attempt history store when set.
	HistoryDSN       string   `json:"history_dsn" yaml:"history_dsn"`
	HistoryRetention Duration `json:"history_retention" yaml:"history_retention"`
	HistoryLimit     int      `json:"history_limit" yaml:"history_limit"`

	LogLevel string `json:"log_level" yaml:"log_level"`

	// Config is the path to the config file.
	Config string `json:"-" yaml:"-"`
	// EnvFile is the path to an optional .env file.
	EnvFile string `json:"-" yaml:"-"`
	// Command is the positional command.
	Command string `json:"-" yaml:"-"`
	// ShowVersion prints build metadata and exits.
	ShowVersion bool `json:"-" yaml:"-"`
}

// Defaults returns the options used when nothing else is configured.
func Defaults() *Options {
	return &Options{
		RedirectHost:     DefaultRedirectHost,
		Output:           OutputPlain,
		Timeout:          Duration(10 * time.Second),
		HistoryRetention: Duration(30 * 24 * time.Hour),
		HistoryLimit:     20,
		LogLevel:         "warn",
		Config:           "srun.json",
		EnvFile:          ".env",
	}
}

// shorthand flags and the option they set
var aliases = map[string]string{
	"c": "config",
	"s": "server",
	"p": "password",
	"r": "redirect",
	"u": "username",
	"i": "interface",
	"o": "output",
}

// Parse parses args (without the program name) together with the config
// file and the environment. Flags may appear before or after the command.
func Parse(args []string) (*Options, error) {
	return parse(args, os.LookupEnv, io.Discard)
}

func parse(args []string, lookupEnv func(string) (string, bool), usage io.Writer) (*Options, error) {
	fromFlags := Defaults()
	fset := newFlagSet(fromFlags, usage)

	if err := fset.Parse(args); err != nil {
		return nil, err
	}
	var command string
	if fset.NArg() > 0 {
		command = fset.Arg(0)
		if err := fset.Parse(fset.Args()[1:]); err != nil {
			return nil, err
		}
		if fset.NArg() > 0 {
			return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fset.Args(), " "))
		}
	}

	set := map[string]bool{}
	fset.Visit(func(f *flag.Flag) {
		name := f.Name
		if canonical, ok := aliases[name]; ok {
			name = canonical
		}
		set[name] = true
	})

	options := Defaults()
	options.Command = command
	options.ShowVersion = fromFlags.ShowVersion
	if set["env-file"] {
		options.EnvFile = fromFlags.EnvFile
	}

	dotenv, err := readDotenv(options.EnvFile, set["env-file"])
	if err != nil {
		return nil, err
	}
	lookup := func(key string) (string, bool) {
		if v, ok := lookupEnv(key); ok && v != "" {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok && v != ""
	}

	// explicit config path: flag, then CONFIG
	explicit := false
	if configPath, ok := lookup("CONFIG"); ok {
		options.Config = configPath
		explicit = true
	}
	if set["config"] {
		options.Config = fromFlags.Config
		explicit = true
	}
	if err := loadFile(options, explicit); err != nil {
		return nil, err
	}

	applyEnv(options, lookup)
	applyFlags(options, fromFlags, set)
	options.Output = strings.ToLower(strings.TrimSpace(options.Output))

	if err := options.Validate(); err != nil {
		return nil, err
	}
	return options, nil
}

// Usage writes the command synopsis and the flag summary to w.
func Usage(w io.Writer) {
	fmt.Fprintln(w, "usage: srun [flags] query|login|logout|history")
	newFlagSet(Defaults(), w).PrintDefaults()
}

func newFlagSet(o *Options, usage io.Writer) *flag.FlagSet {
	fset := flag.NewFlagSet("srun", flag.ContinueOnError)
	fset.SetOutput(usage)

	fset.StringVar(&o.Server, "server", o.Server, "portal base URL, e.g. http://10.0.0.1")
	fset.StringVar(&o.Server, "s", o.Server, "portal base URL (shorthand)")
	fset.StringVar(&o.Username, "username", o.Username, "portal username")
	fset.StringVar(&o.Username, "u", o.Username, "portal username (shorthand)")
	fset.StringVar(&o.Password, "password", o.Password, "portal password (prompted when empty)")
	fset.StringVar(&o.Password, "p", o.Password, "portal password (shorthand)")
	fset.BoolVar(&o.Redirect, "redirect", o.Redirect, "probe the redirect host before login")
	fset.BoolVar(&o.Redirect, "r", o.Redirect, "probe the redirect host before login (shorthand)")
	fset.StringVar(&o.RedirectHost, "redirect-host", o.RedirectHost, "URL probed before login")
	fset.StringVar(&o.Interface, "interface", o.Interface, "bind to the address of this network interface")
	fset.StringVar(&o.Interface, "i", o.Interface, "bind to the address of this network interface (shorthand)")
	fset.StringVar(&o.LocalAddr, "local-addr", o.LocalAddr, "bind to this local IP address")
	fset.StringVar(&o.Output, "output", o.Output, "output format: plain | json")
	fset.StringVar(&o.Output, "o", o.Output, "output format (shorthand)")
	fset.Var(&o.Timeout, "timeout", "per-request timeout")
	fset.BoolVar(&o.Insecure, "insecure", o.Insecure, "skip portal certificate verification")
	fset.StringVar(&o.CAFile, "ca-file", o.CAFile, "extra PEM CA bundle for the portal")
	fset.BoolVar(&o.FollowRedirects, "follow-redirects", o.FollowRedirects, "follow redirects on status and portal requests")
	fset.BoolVar(&o.TrimAuthBlob, "trim-auth-blob", o.TrimAuthBlob, "trim decoded words to the embedded length")
	fset.StringVar(&o.HistoryDSN, "history-dsn", o.HistoryDSN, "postgres DSN for attempt history")
	fset.Var(&o.HistoryRetention, "history-retention", "how long attempt history is kept")
	fset.IntVar(&o.HistoryLimit, "history-limit", o.HistoryLimit, "number of attempts listed by history")
	fset.StringVar(&o.LogLevel, "log-level", o.LogLevel, "log level: debug | info | warn | error")
	fset.StringVar(&o.Config, "config", o.Config, "path to config file")
	fset.StringVar(&o.Config, "c", o.Config, "path to config file (shorthand)")
	fset.StringVar(&o.EnvFile, "env-file", o.EnvFile, "path to .env file")
	fset.BoolVar(&o.ShowVersion, "version", false, "show build version and date")
	return fset
}

func readDotenv(path string, explicit bool) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("error while reading env file: %w", err)
	}
	return values, nil
}

// loadFile overlays the config file on o. A missing default file is not an error.
func loadFile(o *Options, explicit bool) error {
	if o.Config == "" {
		return nil
	}
	data, err := os.ReadFile(o.Config)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("error while reading config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(o.Config)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, o)
	default:
		err = json.Unmarshal(data, o)
	}
	if err != nil {
		return fmt.Errorf("error while parsing config file: %w", err)
	}
	return nil
}

func applyEnv(o *Options, lookup func(string) (string, bool)) {
	if v, ok := lookup("SRUN_SERVER"); ok {
		o.Server = v
	}
	if v, ok := lookup("SRUN_USERNAME"); ok {
		o.Username = v
	}
	if v, ok := lookup("SRUN_PASSWORD"); ok {
		o.Password = v
	}
	if v, ok := lookup("SRUN_INTERFACE"); ok {
		o.Interface = v
	}
	if v, ok := lookup("SRUN_HISTORY_DSN"); ok {
		o.HistoryDSN = v
	}
}

func applyFlags(o, f *Options, set map[string]bool) {
	for name := range set {
		switch name {
		case "server":
			o.Server = f.Server
		case "username":
			o.Username = f.Username
		case "password":
			o.Password = f.Password
		case "redirect":
			o.Redirect = f.Redirect
		case "redirect-host":
			o.RedirectHost = f.RedirectHost
		case "interface":
			o.Interface = f.Interface
		case "local-addr":
			o.LocalAddr = f.LocalAddr
		case "output":
			o.Output = f.Output
		case "timeout":
			o.Timeout = f.Timeout
		case "insecure":
			o.Insecure = f.Insecure
		case "ca-file":
			o.CAFile = f.CAFile
		case "follow-redirects":
			o.FollowRedirects = f.FollowRedirects
		case "trim-auth-blob":
			o.TrimAuthBlob = f.TrimAuthBlob
		case "history-dsn":
			o.HistoryDSN = f.HistoryDSN
		case "history-retention":
			o.HistoryRetention = f.HistoryRetention
		case "history-limit":
			o.HistoryLimit = f.HistoryLimit
		case "log-level":
			o.LogLevel = f.LogLevel
		}
	}
}

// Validate checks the combined options. It does not require credentials;
// the login command prompts for a missing password.
func (o *Options) Validate() error {
	if o.ShowVersion {
		return nil
	}
	switch o.Command {
	case CommandQuery, CommandLogin, CommandLogout:
		if o.Server == "" {
			return errors.New("server is required (-server, SRUN_SERVER or config file)")
		}
	case CommandHistory:
	case "":
		return errors.New("missing command: query | login | logout | history")
	default:
		return fmt.Errorf("unknown command: %s", o.Command)
	}
	switch strings.ToLower(o.Output) {
	case OutputPlain, OutputJSON:
	default:
		return fmt.Errorf("unknown output format: %s", o.Output)
	}
	if o.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	if o.HistoryLimit <= 0 {
		return errors.New("history limit must be positive")
	}
	return nil
}

// Duration is a time.Duration read from strings like "10s" in config files
// and flags. JSON numbers are taken as seconds.
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// Set implements flag.Value.
func (d *Duration) Set(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalJSON renders the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts "10s" or a number of seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return d.Set(s)
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("invalid duration %s", b)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// UnmarshalYAML accepts "10s" or a number of seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if v, err := time.ParseDuration(s); err == nil {
		*d = Duration(v)
		return nil
	}
	var secs float64
	if err := value.Decode(&secs); err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}
