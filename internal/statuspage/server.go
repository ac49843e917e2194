// Package statuspage serves a single headless status page over HTTP plus a
// websocket push of live snapshots, and exposes a POST route for saving the
// current ROI frame into the template store. It replaces the original
// detector's OpenCV debug overlay/bar-chart/toast rendering (explicitly out
// of scope; see SPEC_FULL.md) with a plain browser-facing view suitable for
// watching the agent run headless.
package statuspage

import (
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"

	"msagent/internal/control"
	"msagent/internal/metrics"
)

// ScoreView is the JSON-friendly shape of one classifier score.
type ScoreView struct {
	Scene string  `json:"scene"`
	Value float64 `json:"value"`
}

// Update is the payload pushed over the websocket feed and rendered into the
// initial page load. All connected clients read from one shared feed, so
// each Update is delivered to exactly one of them; with several clients
// connected, each sees only a share of the updates.
type Update struct {
	State         string      `json:"state"`
	Transitioned  bool        `json:"transitioned"`
	PendingState  string      `json:"pendingState,omitempty"`
	PendingCount  int         `json:"pendingCount"`
	HasPending    bool        `json:"hasPending"`
	Scores        []ScoreView `json:"scores"`
	DispatchQueue int         `json:"dispatchQueue"`
	DispatchIdle  bool        `json:"dispatchIdle"`
	FPS           float64     `json:"fps"`
	ClassifyMS    float64     `json:"classifyMs"`
}

// SnapshotSaver persists the current ROI frame under a scene label; backed
// by templates.Store.SaveSnapshot in cmd/scene's wiring.
type SnapshotSaver interface {
	SaveSnapshot(scene string, encode func(*os.File) error) (string, error)
}

// FrameSupplier returns the most recently classified canonical frame, for
// the /snapshot route to persist.
type FrameSupplier func() (jpegEncode func(*os.File) error, ok bool)

// Server serves the status page, its websocket feed, and the snapshot route.
type Server struct {
	addr    string
	gauges  *metrics.Gauges
	updates chan Update
	last    Update

	saver     SnapshotSaver
	lastFrame FrameSupplier
}

// New returns a Server bound to addr. Feed it live snapshots by passing its
// Observer method to the control loop as the loop's Observer.
func New(addr string, gauges *metrics.Gauges, saver SnapshotSaver, lastFrame FrameSupplier) *Server {
	return &Server{
		addr:      addr,
		gauges:    gauges,
		updates:   make(chan Update, 1),
		saver:     saver,
		lastFrame: lastFrame,
	}
}

// Observer adapts control.Observer to push an Update onto the server's feed.
func (s *Server) Observer(snap control.Snapshot) {
	views := make([]ScoreView, len(snap.Scores))
	for i, sc := range snap.Scores {
		views[i] = ScoreView{Scene: sc.Scene, Value: sc.Value}
	}
	u := Update{
		State:         string(snap.State),
		Transitioned:  snap.Transitioned,
		PendingState:  string(snap.PendingState),
		PendingCount:  snap.PendingCount,
		HasPending:    snap.HasPending,
		Scores:        views,
		DispatchQueue: snap.DispatchQueue,
		DispatchIdle:  snap.DispatchIdle,
		FPS:           s.gauges.FPS(),
		ClassifyMS:    s.gauges.ClassifyLatencyMS(),
	}
	s.last = u
	select {
	case s.updates <- u:
	default:
		// Drop: a client slow enough to miss this tick will get the next one.
	}
}

// Serve starts the HTTP server and blocks until the server stops with an
// error. It does not watch for context cancellation.
func (s *Server) Serve() error {
	r := mux.NewRouter()
	r.HandleFunc("/", s.serveIndex).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.serveWebsocket).Methods(http.MethodGet)
	r.HandleFunc("/snapshot", s.serveSnapshot).Methods(http.MethodPost)

	srv := &http.Server{
		Addr:         s.addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	log.Printf("[statuspage] listening on %s", s.addr)
	if err := srv.ListenAndServe(); err != nil {
		return fmt.Errorf("statuspage: serve: %w", err)
	}
	return nil
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if err := pageTemplate.Execute(w, s.last); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	cli, err := newWSClient(s.updates, w, r)
	if err != nil {
		return
	}
	if err := cli.sync(); err != nil {
		log.Printf("[statuspage] websocket closed: %v", err)
	}
}

// serveSnapshot saves the most recently classified frame as a new template
// under the scene name given by the "scene" query parameter (supplemented
// feature; SPEC_FULL.md).
func (s *Server) serveSnapshot(w http.ResponseWriter, r *http.Request) {
	scene := r.URL.Query().Get("scene")
	if scene == "" {
		http.Error(w, "missing scene query parameter", http.StatusBadRequest)
		return
	}
	if s.saver == nil || s.lastFrame == nil {
		http.Error(w, "snapshot unavailable", http.StatusServiceUnavailable)
		return
	}
	encode, ok := s.lastFrame()
	if !ok {
		http.Error(w, "no frame available yet", http.StatusServiceUnavailable)
		return
	}
	path, err := s.saver.SaveSnapshot(scene, encode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"saved": path})
}

var pageTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>msagent status</title>
<style>
body { font-family: monospace; background: #111; color: #ddd; padding: 1em; }
table { border-collapse: collapse; }
td, th { padding: 2px 8px; text-align: left; }
.state { font-size: 1.4em; color: #6f6; }
</style>
</head>
<body>
<div class="state">state: <span id="state">{{.State}}</span></div>
<div>pending: <span id="pending">{{if .HasPending}}{{.PendingState}} ({{.PendingCount}}){{else}}-{{end}}</span></div>
<div>dispatch: queue=<span id="queue">{{.DispatchQueue}}</span> idle=<span id="idle">{{.DispatchIdle}}</span></div>
<div>fps: <span id="fps">{{printf "%.1f" .FPS}}</span> classify_ms: <span id="classify">{{printf "%.1f" .ClassifyMS}}</span></div>
<table id="scores">
<tr><th>scene</th><th>score</th></tr>
{{range .Scores}}<tr><td>{{.Scene}}</td><td>{{printf "%.3f" .Value}}</td></tr>{{end}}
</table>
<script>
const ws = new WebSocket("ws://" + location.host + "/ws");
ws.onmessage = (ev) => {
  const u = JSON.parse(ev.data);
  document.getElementById("state").textContent = u.state;
  document.getElementById("pending").textContent = u.hasPending ? (u.pendingState + " (" + u.pendingCount + ")") : "-";
  document.getElementById("queue").textContent = u.dispatchQueue;
  document.getElementById("idle").textContent = u.dispatchIdle;
  document.getElementById("fps").textContent = u.fps.toFixed(1);
  document.getElementById("classify").textContent = u.classifyMs.toFixed(1);
  const rows = ["<tr><th>scene</th><th>score</th></tr>"];
  for (const s of u.scores) {
    rows.push("<tr><td>" + s.scene + "</td><td>" + s.value.toFixed(3) + "</td></tr>");
  }
  document.getElementById("scores").innerHTML = rows.join("");
};
</script>
</body>
</html>
`))
