package dispatch

import (
	"encoding/json"
	"net/http"

	"github.com/loomhq/loom/internal/logging"
)

// StatusFunc supplies the extra detail /status reports alongside queue
// depths; callers typically wire this to store.State.Owners and
// similar replicated-state accessors.
type StatusFunc func() map[string]interface{}

// SetStatusFunc installs the callback used to enrich GET /status
// responses. Optional: if unset, /status reports only queue depths.
func (d *Dispatcher) SetStatusFunc(f StatusFunc) {
	d.status = f
}

// RPCHandler implements POST /rpc: accept an Event from a peer node and
// hand it to in_queue for local delivery.
func (d *Dispatcher) RPCHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var ev Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			logging.WithComponent("dispatch").Warn().Err(err).Msg("malformed /rpc body")
			http.Error(w, "malformed event", http.StatusBadRequest)
			return
		}
		d.in <- ev
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]bool{"Success": true})
	}
}

// StatusHandler implements GET /status: queue depths plus whatever the
// installed StatusFunc contributes.
func (d *Dispatcher) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{
			"self":          d.self.Name,
			"out_queue_len": len(d.out),
			"in_queue_len":  len(d.in),
		}
		if d.status != nil {
			for k, v := range d.status() {
				body[k] = v
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}
}

// Mux builds the HTTP handler serving /rpc and /status, ready to pass to
// http.Server.Handler.
func (d *Dispatcher) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/rpc", d.RPCHandler())
	mux.HandleFunc("/status", d.StatusHandler())
	return mux
}
