package socupdate

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// fails if InstallerMock does not implement Installer
var _ Installer = &InstallerMock{}

// InstallerMock implements a mock for the Installer interface
type InstallerMock struct {
	mock.Mock
}

func (m *InstallerMock) Install(ctx context.Context, pkg Package) error {
	args := m.Called(ctx, pkg)
	return args.Error(0)
}
