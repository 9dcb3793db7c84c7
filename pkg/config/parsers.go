package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr    string
	Archive string
	Data    string
	Config  string
	Set     map[string]bool
}

// EnvResult reports whether environment variables contributed values.
type EnvResult struct {
	EnvUsed bool
}

// EffectiveConfigResult is the single resolved configuration the rest of
// the process runs from.
type EffectiveConfigResult struct {
	Config      *Config
	Addr        string
	ArchivePath string
	DataPath    string
	Source      string // "flags", "config", or "env"
}

// ParseConfigFlags parses command-line flags and returns them as a Flags struct.
func ParseConfigFlags() Flags {
	addrPtr := flag.String("addr", "127.0.0.1:8090", "HTTP listen address")
	archivePtr := flag.String("archive", defaultChatDBPath(), "Path to the Messages chat.db")
	dataPtr := flag.String("data", "./.retrospect", "Data path for cache and state")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return Flags{Addr: *addrPtr, Archive: *archivePtr, Data: *dataPtr, Config: *cfgPtr, Set: setFlags}
}

// ParseConfigFile resolves the config path and loads the YAML file. It
// returns the parsed config, a boolean indicating whether the file was
// present, and an error for fatal parsing problems.
func ParseConfigFile(flags Flags) (*Config, bool, error) {
	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	if _, err := os.Stat(cfgPath); err != nil {
		if os.IsNotExist(err) {
			return &Config{}, false, nil
		}
		return nil, false, err
	}
	cfg, err := Load(cfgPath)
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

// ParseConfigEnvs reads environment variables into a fresh Config and
// returns that env-only config plus an EnvResult describing whether envs
// were used. This function does not mutate any caller provided config.
func ParseConfigEnvs() (*Config, EnvResult) {
	envCfg := &Config{}
	envUsed := false
	parseList := func(v string) []string {
		if v == "" {
			return nil
		}
		parts := []string{}
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				parts = append(parts, s)
			}
		}
		return parts
	}

	// Server address/port
	if v := os.Getenv("RETROSPECT_SERVER_ADDR"); v != "" {
		envUsed = true
		applyAddr(envCfg, v)
	} else if v := os.Getenv("RETROSPECT_ADDR"); v != "" {
		envUsed = true
		applyAddr(envCfg, v)
	} else {
		if host := os.Getenv("RETROSPECT_SERVER_ADDRESS"); host != "" {
			envUsed = true
			envCfg.Server.Address = host
		}
		if port := os.Getenv("RETROSPECT_SERVER_PORT"); port != "" {
			envUsed = true
			if pi, err := strconv.Atoi(port); err == nil {
				envCfg.Server.Port = pi
			}
		}
	}

	if v := os.Getenv("RETROSPECT_ARCHIVE_PATH"); v != "" {
		envUsed = true
		envCfg.Archive.ChatDBPath = v
	} else if v := os.Getenv("RETROSPECT_CHAT_DB"); v != "" {
		envUsed = true
		envCfg.Archive.ChatDBPath = v
	}
	if v := os.Getenv("RETROSPECT_CONTACTS_DIR"); v != "" {
		envUsed = true
		envCfg.Archive.ContactsDir = v
	}
	if v := os.Getenv("RETROSPECT_DATA_PATH"); v != "" {
		envUsed = true
		envCfg.Server.DataPath = v
	}

	if v := os.Getenv("RETROSPECT_CORS_ORIGINS"); v != "" {
		envUsed = true
		envCfg.Security.CORS.AllowedOrigins = parseList(v)
	}
	if v := os.Getenv("RETROSPECT_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			envUsed = true
			envCfg.Security.RateLimit.RPS = f
		}
	}
	if v := os.Getenv("RETROSPECT_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			envCfg.Security.RateLimit.Burst = n
		}
	}
	if v := os.Getenv("RETROSPECT_IP_WHITELIST"); v != "" {
		envUsed = true
		envCfg.Security.IPWhitelist = parseList(v)
	}
	if v := os.Getenv("RETROSPECT_API_KEYS"); v != "" {
		envUsed = true
		envCfg.Security.APIKeys = parseList(v)
	}

	if v := os.Getenv("RETROSPECT_CACHE_MAX_SIZE"); v != "" {
		if n, err := humanize.ParseBytes(strings.TrimSpace(v)); err == nil {
			envUsed = true
			envCfg.Cache.MaxSize = SizeBytes(n)
		}
	}
	if v := os.Getenv("RETROSPECT_CACHE_PRUNE_CRON"); v != "" {
		envUsed = true
		envCfg.Cache.PruneCron = v
	}

	// TLS cert/key
	if c := os.Getenv("RETROSPECT_TLS_CERT"); c != "" {
		envUsed = true
		envCfg.Server.TLS.CertFile = c
	}
	if k := os.Getenv("RETROSPECT_TLS_KEY"); k != "" {
		envUsed = true
		envCfg.Server.TLS.KeyFile = k
	}

	return envCfg, EnvResult{EnvUsed: envUsed}
}

// LoadEffectiveConfig decides which single source to use (flags, config
// file, or env) and returns the effective config plus resolved addr,
// archive and data paths. It honors an explicit flags.Config (user
// provided --config) by using the config file only; otherwise it uses
// flags if any are set; else a present config file; otherwise env.
func LoadEffectiveConfig(flags Flags, fileCfg *Config, fileExists bool, envCfg *Config, envRes EnvResult) (EffectiveConfigResult, error) {
	var res EffectiveConfigResult

	// If user explicitly passed --config, require the file to exist and use it.
	if flags.Set["config"] {
		if !fileExists {
			return res, fmt.Errorf("config file %s not found", flags.Config)
		}
		res.Config = fileCfg
		res.Addr = fileCfg.Addr()
		res.ArchivePath = fileCfg.Archive.ChatDBPath
		res.DataPath = fileCfg.Server.DataPath
		res.Source = "config"
		return res, nil
	}

	// If user passed any non-config flags, use flags exclusively, filling
	// unset values from env then file.
	if flags.Set["addr"] || flags.Set["archive"] || flags.Set["data"] {
		addr := flags.Addr
		if !flags.Set["addr"] {
			// Addr() fills in listen defaults, so probe the raw fields to
			// tell "env set an address" apart from "env set nothing".
			if envRes.EnvUsed && (envCfg.Server.Address != "" || envCfg.Server.Port != 0) {
				addr = envCfg.Addr()
			} else if fileCfg.Server.Address != "" || fileCfg.Server.Port != 0 {
				addr = fileCfg.Addr()
			}
		}
		archivePath := flags.Archive
		if !flags.Set["archive"] {
			if p := strings.TrimSpace(envCfg.Archive.ChatDBPath); p != "" {
				archivePath = p
			} else if p := strings.TrimSpace(fileCfg.Archive.ChatDBPath); p != "" {
				archivePath = p
			}
		}
		dataPath := flags.Data
		if !flags.Set["data"] {
			if p := strings.TrimSpace(envCfg.Server.DataPath); p != "" {
				dataPath = p
			} else if p := strings.TrimSpace(fileCfg.Server.DataPath); p != "" {
				dataPath = p
			}
		}
		out := &Config{}
		out.Server.Address, out.Server.Port = splitAddr(addr)
		out.Server.DataPath = dataPath
		out.Archive.ChatDBPath = archivePath
		out.Archive.ContactsDir = firstNonEmpty(envCfg.Archive.ContactsDir, fileCfg.Archive.ContactsDir)
		res.Config = out
		res.Addr = addr
		res.ArchivePath = archivePath
		res.DataPath = dataPath
		res.Source = "flags"
		return res, nil
	}

	// No explicit flags: prefer file config if present, otherwise env.
	if fileExists {
		res.Config = fileCfg
		res.Addr = fileCfg.Addr()
		res.ArchivePath = fileCfg.Archive.ChatDBPath
		res.DataPath = fileCfg.Server.DataPath
		res.Source = "config"
		return res, nil
	}
	res.Config = envCfg
	res.Addr = envCfg.Addr()
	res.ArchivePath = envCfg.Archive.ChatDBPath
	res.DataPath = envCfg.Server.DataPath
	res.Source = "env"
	return res, nil
}

func applyAddr(cfg *Config, v string) {
	if h, p, err := net.SplitHostPort(v); err == nil {
		cfg.Server.Address = h
		if pi, err := strconv.Atoi(p); err == nil {
			cfg.Server.Port = pi
		}
	} else {
		cfg.Server.Address = v
	}
}

func splitAddr(a string) (string, int) {
	if h, p, err := net.SplitHostPort(a); err == nil {
		if pi, err := strconv.Atoi(p); err == nil {
			return h, pi
		}
		return h, 0
	}
	return a, 0
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// defaultChatDBPath is the live Messages archive location for the current
// user.
func defaultChatDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./chat.db"
	}
	return home + "/Library/Messages/chat.db"
}
