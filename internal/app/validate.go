package app

import (
	"fmt"
	"os"

	"github.com/adhocore/gronx"

	"retrospect/pkg/config"
)

// validateConfig performs quick, fail-fast validation of the effective
// configuration before starting long-running services. Keep checks light
// and focused so callers can surface user-friendly errors.
func validateConfig(eff config.EffectiveConfigResult) error {
	// archive path must be present and readable
	if eff.ArchivePath == "" {
		return fmt.Errorf("archive path is empty: set --archive flag, RETROSPECT_ARCHIVE_PATH env, or archive.chat_db_path in config")
	}
	if _, err := os.Stat(eff.ArchivePath); err != nil {
		return fmt.Errorf("archive not accessible at %s: %w", eff.ArchivePath, err)
	}

	if eff.DataPath == "" {
		return fmt.Errorf("data path is empty: set --data flag, RETROSPECT_DATA_PATH env, or server.data_path in config")
	}

	// TLS cert/key presence check if one is set
	cert := eff.Config.Server.TLS.CertFile
	key := eff.Config.Server.TLS.KeyFile
	if (cert != "" && key == "") || (cert == "" && key != "") {
		return fmt.Errorf("incomplete TLS configuration: both server.tls.cert_file and server.tls.key_file must be set")
	}
	if cert != "" {
		if _, err := os.Stat(cert); err != nil {
			return fmt.Errorf("tls cert file not accessible: %w", err)
		}
		if _, err := os.Stat(key); err != nil {
			return fmt.Errorf("tls key file not accessible: %w", err)
		}
	}

	if cron := eff.Config.Cache.PruneCron; cron != "" && !gronx.IsValid(cron) {
		return fmt.Errorf("invalid cache.prune_cron expression: %s", cron)
	}

	rl := eff.Config.Security.RateLimit
	if rl.RPS < 0 || rl.Burst < 0 {
		return fmt.Errorf("rate limit values must be non-negative")
	}

	return nil
}
