package mcuupdate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptime-industries/ota-agent/pkg/mcuupdate"
)

func TestVersionCompare(t *testing.T) {
	t.Parallel()

	testcases := []struct {
		name     string
		a, b     mcuupdate.Version
		expected int
	}{
		{name: "minor wins over patch", a: mcuupdate.Version{Major: 1, Minor: 2, Patch: 3}, b: mcuupdate.Version{Major: 1, Minor: 3}, expected: -1},
		{name: "major wins", a: mcuupdate.Version{Major: 2}, b: mcuupdate.Version{Major: 1, Minor: 9, Patch: 9}, expected: 1},
		{name: "equal", a: mcuupdate.Version{Major: 1}, b: mcuupdate.Version{Major: 1}, expected: 0},
		{
			name:     "build compared when both present",
			a:        mcuupdate.Version{Major: 1, Build: 3, HasBuild: true},
			b:        mcuupdate.Version{Major: 1, Build: 4, HasBuild: true},
			expected: -1,
		},
		{
			name:     "build ignored when one side lacks it",
			a:        mcuupdate.Version{Major: 1, Build: 3, HasBuild: true},
			b:        mcuupdate.Version{Major: 1},
			expected: 0,
		},
	}

	for _, tcl := range testcases {
		tc := tcl
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, tc.a.Compare(tc.b))
			assert.Equal(t, -tc.expected, tc.b.Compare(tc.a))
		})
	}
}

func TestVersionFromFilename(t *testing.T) {
	t.Parallel()

	testcases := []struct {
		name     string
		filename string
		expected string
		wantErr  bool
	}{
		{name: "plain", filename: "MCU_APP-V1.2.0.bin", expected: "1.2.0"},
		{name: "with build", filename: "/tmp/update/MCU_APP-V1.2.0-17.bin", expected: "1.2.0-17"},
		{name: "driver", filename: "MCU_FLASH_DRIVER-V0.0.12.bin", expected: "0.0.12"},
		{name: "no version", filename: "MCU_APP.bin", wantErr: true},
	}

	for _, tcl := range testcases {
		tc := tcl
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			v, err := mcuupdate.VersionFromFilename(tc.filename)
			if tc.wantErr {
				assert.ErrorIs(t, err, mcuupdate.ErrFile)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, v.String())
		})
	}
}

func TestParseVersion(t *testing.T) {
	t.Parallel()

	v, err := mcuupdate.ParseVersion("V1.1.0\x00\x00\x00")
	require.NoError(t, err)
	assert.Equal(t, mcuupdate.Version{Major: 1, Minor: 1}, v)

	v, err = mcuupdate.ParseVersion("2.0.1.5")
	require.NoError(t, err)
	assert.Equal(t, mcuupdate.Version{Major: 2, Patch: 1, Build: 5, HasBuild: true}, v)

	_, err = mcuupdate.ParseVersion("garbage")
	assert.Error(t, err)
}
