package debug

import (
	"fmt"
	"net/http"
	_ "net/http/pprof"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"

	"github.com/dcrodman/netmanager/internal/network"
	"github.com/dcrodman/netmanager/internal/protocol"
)

// StartUtilities spins off the services associated with debug mode.
func StartUtilities(logger logrus.FieldLogger, pprofPort int) {
	startPprofServer(logger, pprofPort)
}

// This function starts the default pprof HTTP server that can be accessed via localhost
// to get runtime information about the session. See https://golang.org/pkg/net/http/pprof/
func startPprofServer(logger logrus.FieldLogger, port int) {
	listenerAddr := fmt.Sprintf("localhost:%d", port)
	logger.Infof("starting pprof server on %s", listenerAddr)

	go func() {
		if err := http.ListenAndServe(listenerAddr, nil); err != nil {
			logger.Infof("error starting pprof server: %s", err)
		}
	}()
}

// FrameLogger dumps every frame crossing a connection at debug level.
type FrameLogger struct {
	Logger logrus.FieldLogger
	// GameplayFrames includes frames with gameplay tags. Off by default since
	// they usually dwarf the control plane.
	GameplayFrames bool
}

func (f *FrameLogger) TraceFrame(direction string, conn network.Connection, frame []byte) {
	msgType, _, err := protocol.Decode(frame)
	if err == nil && !msgType.IsSystem() && !f.GameplayFrames {
		return
	}
	f.Logger.WithFields(logrus.Fields{
		"direction": direction,
		"conn_id":   conn.ID(),
		"address":   conn.Address(),
	}).Debugf("%v (%d bytes)\n%s", msgType, len(frame), spew.Sdump(frame))
}
