package socupdate

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/uptime-industries/ota-agent/pkg/log"
	"go.uber.org/zap"
)

var (
	ErrInstallFailed   = errors.New("package installation failed")
	ErrUnsupportedKind = errors.New("unsupported package kind")
)

// Installer installs SOC packages.
type Installer interface {
	Install(ctx context.Context, pkg Package) error
}

type Config struct {
	// DebCommand is invoked with the package path appended.
	DebCommand []string `mapstructure:"deb_command"`
	// ImageCommand is invoked with the archive path appended.
	// An empty command disables system image installation.
	ImageCommand []string `mapstructure:"image_command"`
}

func DefaultConfig() Config {
	return Config{
		DebCommand: []string{"dpkg", "-i"},
	}
}

type execInstaller struct {
	cfg Config
}

// NewExecInstaller returns an Installer that shells out to the configured commands.
func NewExecInstaller(cfg Config) Installer {
	return &execInstaller{cfg: cfg}
}

func (i *execInstaller) Install(ctx context.Context, pkg Package) error {
	var argv []string
	switch pkg.Kind {
	case KindDeb:
		argv = i.cfg.DebCommand
	case KindSystemImage:
		argv = i.cfg.ImageCommand
	}
	if len(argv) == 0 {
		return fmt.Errorf("%w: %s", ErrUnsupportedKind, pkg.Kind)
	}

	args := append(append([]string{}, argv[1:]...), pkg.Path)
	log.FromContext(ctx).Info("Installing SOC package",
		zap.String("path", pkg.Path),
		zap.String("kind", string(pkg.Kind)),
		zap.String("command", argv[0]),
	)

	out, err := exec.CommandContext(ctx, argv[0], args...).CombinedOutput()
	if err != nil {
		installCount.WithLabelValues(string(pkg.Kind), "failed").Inc()
		return fmt.Errorf("%w: %s: %v: %s", ErrInstallFailed, pkg.Path, err, strings.TrimSpace(string(out)))
	}
	installCount.WithLabelValues(string(pkg.Kind), "ok").Inc()
	return nil
}

// InstallAll installs packages in order and stops at the first failure.
// progress, if set, is called before each installation.
func InstallAll(ctx context.Context, installer Installer, pkgs []Package, progress func(done, total int)) error {
	for i, pkg := range pkgs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if progress != nil {
			progress(i, len(pkgs))
		}
		if err := installer.Install(ctx, pkg); err != nil {
			return err
		}
	}
	return nil
}
