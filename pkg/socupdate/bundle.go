package socupdate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

var ErrEmptyBundle = errors.New("update bundle contains no known package")

var (
	debPackageRegex     = regexp.MustCompile(`^(app|robot|navi|mc|rte).*\.deb$`)
	systemImageRegex    = regexp.MustCompile(`^SOC.*\.tar\.gz$`)
	mcuFlashDriverRegex = regexp.MustCompile(`^MCU_FLASH_DRIVER.*\.bin$`)
	mcuAppRegex         = regexp.MustCompile(`^MCU_APP.*\.bin$`)
)

// Kind classifies a SOC package.
type Kind string

const (
	KindDeb         Kind = "deb"
	KindSystemImage Kind = "system_image"
)

// Package is a single SOC package of an update bundle.
type Package struct {
	Path string
	Kind Kind
}

// Bundle lists the packages of an extracted update directory.
type Bundle struct {
	SocPackages []Package
	// McuFlashDriver and McuApp are empty if the bundle carries no such image.
	McuFlashDriver string
	McuApp         string
}

// HasMcu reports whether the bundle updates the MCU.
func (b Bundle) HasMcu() bool {
	return b.McuApp != ""
}

// Scan classifies the files of an extracted update directory by name.
func Scan(dir string) (Bundle, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Bundle{}, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var bundle Bundle
	for _, name := range names {
		path := filepath.Join(dir, name)
		switch {
		case debPackageRegex.MatchString(name):
			bundle.SocPackages = append(bundle.SocPackages, Package{Path: path, Kind: KindDeb})
		case systemImageRegex.MatchString(name):
			bundle.SocPackages = append(bundle.SocPackages, Package{Path: path, Kind: KindSystemImage})
		case mcuFlashDriverRegex.MatchString(name):
			if bundle.McuFlashDriver != "" {
				return Bundle{}, fmt.Errorf("duplicate flash driver image %s", name)
			}
			bundle.McuFlashDriver = path
		case mcuAppRegex.MatchString(name):
			if bundle.McuApp != "" {
				return Bundle{}, fmt.Errorf("duplicate app image %s", name)
			}
			bundle.McuApp = path
		}
	}

	if len(bundle.SocPackages) == 0 && bundle.McuApp == "" {
		return Bundle{}, fmt.Errorf("%w: %s", ErrEmptyBundle, dir)
	}
	if bundle.McuFlashDriver != "" && bundle.McuApp == "" {
		return Bundle{}, fmt.Errorf("flash driver %s without app image", filepath.Base(bundle.McuFlashDriver))
	}
	return bundle, nil
}
