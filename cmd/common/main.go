// Command common is a direct HID-action runner for manual testing: it
// resolves one named action from the library and runs it once against a
// device, bypassing the classifier and FSM entirely (spec.md §6 CLI
// surface).
package main

import (
	"fmt"
	"net/http"
	"os"
	"strconv"

	"msagent/internal/actions"
	"msagent/internal/hid"
	"msagent/internal/scenecfg"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: common <device_id> <action_name> [hid_w hid_h]")
		os.Exit(1)
	}

	deviceID := os.Args[1]
	actionName := os.Args[2]

	library := actions.New()
	fn, ok := library[actionName]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown action: %s\n", actionName)
		os.Exit(1)
	}

	apiBase := os.Getenv("SFU_API_BASE")
	if apiBase == "" {
		apiBase = "http://192.168.124.45:8888/api/message"
	}

	tuning := scenecfg.DefaultTuning()
	transport := hid.New(http.DefaultClient, apiBase, deviceID, tuning)

	var args actions.Args
	if len(os.Args) >= 5 {
		w, errW := strconv.Atoi(os.Args[3])
		h, errH := strconv.Atoi(os.Args[4])
		if errW != nil || errH != nil {
			fmt.Fprintln(os.Stderr, "hid_w and hid_h must be integers")
			os.Exit(1)
		}
		transport.SetScreenSize(w, h)
		args = actions.Args{HIDW: w, HIDH: h}
	}

	fn(transport, args)
}
