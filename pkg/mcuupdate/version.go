package mcuupdate

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	filenameVersionRegex = regexp.MustCompile(`-V(\d+)\.(\d+)\.(\d+)(?:-(\d+))?`)
	versionRegex         = regexp.MustCompile(`^[vV]?(\d+)\.(\d+)\.(\d+)(?:[-.](\d+))?$`)
)

// Version is a firmware version. Build is only significant if both sides of a
// comparison carry one.
type Version struct {
	Major    int
	Minor    int
	Patch    int
	Build    int
	HasBuild bool
}

// VersionFromFilename extracts the version from names like MCU_APP-V1.2.3-4.bin.
func VersionFromFilename(name string) (Version, error) {
	m := filenameVersionRegex.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return Version{}, fmt.Errorf("%w: no version in file name %q", ErrFile, name)
	}
	return fromMatch(m)
}

// ParseVersion parses a version string as reported by the MCU. Trailing NUL
// padding and whitespace are ignored.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(strings.Trim(s, "\x00"))
	m := versionRegex.FindStringSubmatch(s)
	if m == nil {
		return Version{}, fmt.Errorf("malformed version %q", s)
	}
	return fromMatch(m)
}

func fromMatch(m []string) (Version, error) {
	var v Version
	var err error
	if v.Major, err = strconv.Atoi(m[1]); err != nil {
		return Version{}, err
	}
	if v.Minor, err = strconv.Atoi(m[2]); err != nil {
		return Version{}, err
	}
	if v.Patch, err = strconv.Atoi(m[3]); err != nil {
		return Version{}, err
	}
	if m[4] != "" {
		if v.Build, err = strconv.Atoi(m[4]); err != nil {
			return Version{}, err
		}
		v.HasBuild = true
	}
	return v, nil
}

// Compare returns -1, 0 or 1.
func (v Version) Compare(o Version) int {
	pairs := [][2]int{{v.Major, o.Major}, {v.Minor, o.Minor}, {v.Patch, o.Patch}}
	if v.HasBuild && o.HasBuild {
		pairs = append(pairs, [2]int{v.Build, o.Build})
	}
	for _, p := range pairs {
		switch {
		case p[0] < p[1]:
			return -1
		case p[0] > p[1]:
			return 1
		}
	}
	return 0
}

func (v Version) String() string {
	if v.HasBuild {
		return fmt.Sprintf("%d.%d.%d-%d", v.Major, v.Minor, v.Patch, v.Build)
	}
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}
