package setup

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

// checkAndInstallForDebian checks if pg_dump is installed and installs the
// postgresql client tools on Debian-based systems if missing.
func checkAndInstallForDebian() error {
	if _, err := exec.LookPath("pg_dump"); err == nil {
		log.Info().Msg("pg_dump is already installed")
		return nil
	}

	log.Info().Msg("pg_dump not found, installing postgresql-client on Debian-based system")

	if err := runAptInstall([]string{"postgresql-client"}); err != nil {
		return fmt.Errorf("failed to install postgresql-client: %w", err)
	}

	log.Info().Msg("postgresql-client installed successfully")
	return nil
}

func runAptInstall(packages []string) error {
	log.Info().Str("packages", strings.Join(packages, ", ")).Msg("running apt-get update and install")

	updateCmd := exec.Command("apt-get", "update")
	updateCmd.Stdout = os.Stdout
	updateCmd.Stderr = os.Stderr
	if err := updateCmd.Run(); err != nil {
		return fmt.Errorf("apt-get update failed: %w", err)
	}

	args := append([]string{"install", "-y"}, packages...)
	installCmd := exec.Command("apt-get", args...)
	installCmd.Stdout = os.Stdout
	installCmd.Stderr = os.Stderr
	return installCmd.Run()
}

func isDebian() bool {
	// Check /etc/os-release
	data, err := os.ReadFile("/etc/os-release")
	if err != nil {
		return false
	}
	content := string(data)
	// Look for ID=debian or ID_LIKE=debian
	return strings.Contains(content, "ID=debian") ||
		strings.Contains(content, "ID_LIKE=debian") ||
		strings.Contains(content, "ID=ubuntu") ||
		strings.Contains(content, "ID_LIKE=ubuntu")
}
