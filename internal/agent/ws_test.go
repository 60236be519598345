package agent_test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptime-industries/ota-agent/internal/agent"
	"github.com/uptime-industries/ota-agent/internal/mcusim"
	"github.com/uptime-industries/ota-agent/pkg/checkpoint"
	"github.com/uptime-industries/ota-agent/pkg/socupdate"
)

func TestStatusStreamHandler(t *testing.T) {
	t.Parallel()

	dir := bundleDir(t, map[string][]byte{"navi_3.1.deb": []byte("deb")})
	installer := &socupdate.InstallerMock{}
	installer.On("Install", mock.Anything, socupdate.Package{Path: filepath.Join(dir, "navi_3.1.deb"), Kind: socupdate.KindDeb}).Return(nil)

	h := newRunningAgent(t, mcusim.New(mcusim.Options{Version: "1.0.0"}), otaMode(), installer)

	srv := httptest.NewServer(agent.StatusStreamHandler(h.agent))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var st agent.Status
	require.NoError(t, conn.ReadJSON(&st))
	assert.Equal(t, agent.Status{Stage: checkpoint.StageSuccess}, st)

	h.startUpdate(t, dir)
	for st.Stage != checkpoint.StageSuccess || st.Progress != 100 {
		st = agent.Status{}
		require.NoError(t, conn.ReadJSON(&st))
		require.NotEqual(t, checkpoint.StageFailed, st.Stage)
	}
}
