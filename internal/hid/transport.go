// Package hid implements the relative-cursor HID dispatch engine
// (spec.md §4.1): a tracked virtual cursor, chunked+batched delta reports
// POSTed to a remote input injector, and the move/click/drag/long-press
// primitives the action library composes.
package hid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"time"

	"msagent/internal/scenecfg"
)

// Op is the HID report opcode: 0 for move/pointer-up, 1 for pointer-down/drag.
type Op int

const (
	OpMove Op = 0
	OpDrag Op = 1
)

// report is a single relative-motion command, "op dx dy" on the wire.
type report struct {
	op Op
	dx int
	dy int
}

func (r report) command() string {
	return fmt.Sprintf("%d %d %d", r.op, r.dx, r.dy)
}

// Doer is the subset of *http.Client the transport needs; tests substitute
// a fake to avoid real network calls.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Transport owns the tracked cursor position and screen size and is the
// sole path to mutating either (spec.md §3 Ownership, §5 Concurrency). It
// is intended to be owned by a single goroutine (the dispatcher worker);
// nothing here is safe to call concurrently from two goroutines.
type Transport struct {
	client   Doer
	apiBase  string
	deviceID string
	tuning   scenecfg.Tuning
	rng      *rand.Rand

	cx, cy  int
	screenW int
	screenH int
	seq     int
}

// New returns a Transport posting to apiBase/deviceID/00/00, per spec.md §6.
func New(client Doer, apiBase, deviceID string, tuning scenecfg.Tuning) *Transport {
	return &Transport{
		client:   client,
		apiBase:  apiBase,
		deviceID: deviceID,
		tuning:   tuning,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetScreenSize assigns the active screen dimensions in HID units (set by
// the Calibrator; spec.md §4.4).
func (t *Transport) SetScreenSize(w, h int) {
	t.screenW = w
	t.screenH = h
}

// ScreenSize returns the currently calibrated screen size in HID units.
func (t *Transport) ScreenSize() (w, h int) { return t.screenW, t.screenH }

// Position returns the tracked cursor position in HID units.
func (t *Transport) Position() (x, y int) { return t.cx, t.cy }

func (t *Transport) endpoint() string {
	return fmt.Sprintf("%s/%s/00/00", t.apiBase, t.deviceID)
}

// postSingle sends one unbatched report with a stringified sequence number,
// per spec.md §6's single-report body shape.
func (t *Transport) postSingle(r report) {
	t.seq++
	body := map[string]string{
		"type":    "mouse",
		"command": r.command(),
		"seq":     fmt.Sprintf("%d", t.seq),
	}
	t.post(body)
}

// postBatch sends a batch of reports plus random padding, per spec.md §6's
// batch body shape (IPS/IDS-evasion padding).
func (t *Transport) postBatch(reports []report) {
	commands := make([]string, len(reports))
	for i, r := range reports {
		commands[i] = r.command()
	}
	body := map[string]interface{}{
		"type":     "mouse",
		"commands": commands,
		"p":        t.padding(),
	}
	t.post(body)
}

func (t *Transport) padding() string {
	padMin, padMax := t.tuning.PadMin, t.tuning.PadMax
	n := padMin
	if padMax > padMin {
		n += t.rng.Intn(padMax - padMin + 1)
	}
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = 'x'
	}
	return string(buf)
}

// post fires the HTTP request and swallows any error: the classifier is the
// source of truth and a lost packet is corrected on the next confirmed
// transition (spec.md §4.1 Failure semantics, §7 Transport error).
func (t *Transport) post(body interface{}) {
	data, err := json.Marshal(body)
	if err != nil {
		log.Printf("[hid] marshal error: %v", err)
		return
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, t.endpoint(), bytes.NewReader(data))
	if err != nil {
		log.Printf("[hid] request build error: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		log.Printf("[hid] post error: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Printf("[hid] post non-2xx: %d", resp.StatusCode)
	}
}

// clamp restricts a delta to [-maxDelta, maxDelta].
func clamp(v, maxDelta int) int {
	if v > maxDelta {
		return maxDelta
	}
	if v < -maxDelta {
		return -maxDelta
	}
	return v
}

// chunk decomposes a requested motion (dx, dy) into the minimum number of
// per-axis-clamped steps summing exactly to (dx, dy), per spec.md §4.1
// Chunking and §8 "Chunk exactness".
func chunk(dx, dy, maxDelta int) [][2]int {
	var steps [][2]int
	for dx != 0 || dy != 0 {
		sx := clamp(dx, maxDelta)
		sy := clamp(dy, maxDelta)
		steps = append(steps, [2]int{sx, sy})
		dx -= sx
		dy -= sy
	}
	return steps
}

// send emits a single non-batched report with op, sleeps delay seconds
// after, and tracks cursor movement when op carries motion (spec.md §4.1
// send primitive).
func (t *Transport) send(op Op, dx, dy int, delay time.Duration) {
	t.cx += dx
	t.cy += dy
	t.postSingle(report{op: op, dx: dx, dy: dy})
	if delay > 0 {
		time.Sleep(delay)
	}
}

// batchedMove emits the chunked decomposition of (dx, dy) as op-tagged
// steps, grouped into randomly-sized batches with inter-batch sleeps
// (spec.md §4.1 Chunking, Batching). Cursor position is updated by the
// accumulated chunk sums, not by the nominal target, so actually-traveled
// deltas are tracked exactly (spec.md "move_to" contract).
func (t *Transport) batchedMove(op Op, dx, dy int) {
	steps := chunk(dx, dy, t.tuning.MaxDelta)
	t.emitBatched(op, steps)
}

// emitBatched groups steps into random-size batches, updates the tracked
// cursor for every step, and sleeps MOVE_DELAY*batchSize between batches.
func (t *Transport) emitBatched(op Op, steps [][2]int) {
	batchMin, batchMax := t.tuning.BatchMin, t.tuning.BatchMax
	i := 0
	for i < len(steps) {
		n := batchMin
		if batchMax > batchMin {
			n += t.rng.Intn(batchMax - batchMin + 1)
		}
		end := i + n
		if end > len(steps) {
			end = len(steps)
		}
		batch := steps[i:end]

		reports := make([]report, len(batch))
		for j, s := range batch {
			t.cx += s[0]
			t.cy += s[1]
			reports[j] = report{op: op, dx: s[0], dy: s[1]}
		}
		t.postBatch(reports)
		time.Sleep(time.Duration(float64(len(batch))*t.tuning.MoveDelay) * time.Second)

		i = end
	}
}

// MoveTo moves the cursor to the absolute HID position (x, y).
func (t *Transport) MoveTo(x, y int) {
	dx := x - t.cx
	dy := y - t.cy
	t.batchedMove(OpMove, dx, dy)
}

// Click moves to (x, y) then emits repeat click-down/click-up pairs,
// sleeping interval seconds between repetitions (spec.md §4.1 click).
func (t *Transport) Click(x, y int, repeat int, interval time.Duration) {
	t.MoveTo(x, y)
	clickHold := time.Duration(t.tuning.ClickHold * float64(time.Second))
	for i := 0; i < repeat; i++ {
		t.send(OpDrag, 0, 0, clickHold)
		t.send(OpMove, 0, 0, 100*time.Millisecond)
		if i < repeat-1 && interval > 0 {
			time.Sleep(interval)
		}
	}
}

// ClickPct clicks at a position expressed as a fraction of the calibrated
// screen size (spec.md §4.1 click_pct).
func (t *Transport) ClickPct(rx, ry float64, repeat int, interval time.Duration) {
	x := int(rx * float64(t.screenW))
	y := int(ry * float64(t.screenH))
	t.Click(x, y, repeat, interval)
}

// LongPress moves to (x, y), holds the button down for duration, then releases.
func (t *Transport) LongPress(x, y int, duration time.Duration) {
	t.MoveTo(x, y)
	t.send(OpDrag, 0, 0, duration)
	t.send(OpMove, 0, 0, 100*time.Millisecond)
}

// Drag moves to (x1,y1), presses down, interpolates to (x2,y2) over steps
// increments using the integer-cumulative method so the final position is
// exact regardless of rounding (spec.md §4.1 drag, §8 "Drag interpolation
// exactness"), then releases.
func (t *Transport) Drag(x1, y1, x2, y2, steps int) {
	t.MoveTo(x1, y1)
	t.send(OpDrag, 0, 0, 100*time.Millisecond)

	dx := x2 - x1
	dy := y2 - y1
	interpSteps := interpolate(dx, dy, steps)
	t.emitBatched(OpDrag, interpSteps)

	t.send(OpMove, 0, 0, 100*time.Millisecond)
}

// interpolate returns `steps` deltas whose cumulative sum is exactly
// (dx, dy), using s_i = floor(d*i/steps) - floor(d*(i-1)/steps) for each
// axis independently (spec.md §4.1 drag, §8 scenario 2).
func interpolate(dx, dy, steps int) [][2]int {
	if steps < 1 {
		steps = 1
	}
	out := make([][2]int, steps)
	prevX, prevY := 0, 0
	for i := 1; i <= steps; i++ {
		cumX := floorDiv(dx*i, steps)
		cumY := floorDiv(dy*i, steps)
		out[i-1] = [2]int{cumX - prevX, cumY - prevY}
		prevX, prevY = cumX, cumY
	}
	return out
}

// floorDiv is integer division rounding toward negative infinity, matching
// Python's `//` used by the source's cumulative interpolation formula.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Flick presses down at the current position, chunk-moves by (dx, dy)
// while held, sleeps duration, then releases — the `play_turn` gesture's
// primitive (spec.md §4.2 play_turn).
func (t *Transport) Flick(dx, dy int, duration time.Duration) {
	t.send(OpDrag, 0, 0, 100*time.Millisecond)
	t.batchedMove(OpDrag, dx, dy)
	time.Sleep(duration)
	t.send(OpMove, 0, 0, 100*time.Millisecond)
}

// ResetOrigin unconditionally sweeps the cursor toward the top-left corner
// and resets the tracked position to (0, 0) (spec.md §4.1 reset_origin).
func (t *Transport) ResetOrigin() {
	n := t.tuning.ResetSweep/100 + 1
	reports := make([]report, n)
	for i := range reports {
		reports[i] = report{op: OpMove, dx: -100, dy: -100}
	}
	t.postBatch(reports)
	t.cx, t.cy = 0, 0
}
