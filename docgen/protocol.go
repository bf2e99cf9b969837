package docgen

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quay/zlog"
)

// frame wraps whichever direction of the protocol a message carries;
// exactly one field is ever populated per spec §4.6's framed duplex
// stream.
type frame struct {
	Descriptor *WorkerDescriptor        `json:"descriptor,omitempty"`
	Externals  []ExternalRegistryConfig `json:"externals,omitempty"`
	Spec       *JobSpecification        `json:"spec,omitempty"`
	Update     *JobUpdate               `json:"update,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const heartbeatInterval = 100 * time.Millisecond

// ServeWorkerSocket upgrades r to a websocket and drives one worker
// connection for its lifetime: handshake, then steady-state job
// dispatch/update relay, until the socket closes.
func (o *Orchestrator) ServeWorkerSocket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zlog.Error(ctx).Err(err).Msg("docgen: websocket upgrade failed")
		return
	}
	defer conn.Close()

	var hello frame
	if err := conn.ReadJSON(&hello); err != nil || hello.Descriptor == nil {
		zlog.Error(ctx).Err(err).Msg("docgen: worker handshake failed")
		return
	}
	if err := conn.WriteJSON(frame{Externals: o.ExternalRegistries()}); err != nil {
		zlog.Error(ctx).Err(err).Msg("docgen: worker handshake reply failed")
		return
	}

	toWorker, fromWorker, remove := o.RegisterWorker(*hello.Descriptor)
	defer remove()
	zlog.Info(ctx).Str("worker", hello.Descriptor.ID).Msg("docgen: worker connected")

	readErrs := make(chan error, 1)
	go func() {
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				readErrs <- err
				return
			}
			if f.Update != nil {
				select {
				case fromWorker <- *f.Update:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	var beat byte

	for {
		select {
		case spec, ok := <-toWorker:
			if !ok {
				return
			}
			if err := conn.WriteJSON(frame{Spec: &spec}); err != nil {
				zlog.Error(ctx).Err(err).Msg("docgen: failed to send job to worker")
				return
			}
		case <-heartbeat.C:
			beat++
			if err := conn.WriteMessage(websocket.PongMessage, []byte{beat}); err != nil {
				return
			}
		case err := <-readErrs:
			if err != nil {
				zlog.Info(ctx).Err(err).Str("worker", hello.Descriptor.ID).Msg("docgen: worker disconnected")
			}
			return
		case <-ctx.Done():
			return
		}
	}
}
