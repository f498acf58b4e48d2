// cmd/sitetrace/console.go
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang/geo/r3"

	"github.com/sitetrace/extension/internal/dispatcher"
	"github.com/sitetrace/extension/internal/recorder"
	"github.com/sitetrace/extension/internal/runtime"
	"github.com/sitetrace/extension/pkg/spatial"
)

const consoleHelp = `commands:
  tap <ox> <oy> <oz> <dx> <dy> <dz>  confirm a calibration point or place a pin
  clutch on|off                      engage or release the clutch
  recal                              restart the calibration flow
  pause | resume                     pause or resume the tracking service
  status                             print session state
  quit                               end the session and exit`

// runConsole reads control commands from stdin until EOF or quit. Taps and
// pause/resume go through the dispatcher like any engine event would.
func runConsole(disp *dispatcher.Dispatcher, svc *recorder.Service, rt *runtime.Context, quit chan struct{}) {
	defer close(quit)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch strings.ToLower(fields[0]) {
		case "tap":
			ray, err := parseRay(fields[1:])
			if err != nil {
				fmt.Println(err)
				continue
			}
			if err := disp.Tap(dispatcher.TapEvent{Ray: ray, Timestamp: time.Now()}); err != nil {
				fmt.Println("tap failed:", err)
			}

		case "clutch":
			if len(fields) != 2 || (fields[1] != "on" && fields[1] != "off") {
				fmt.Println("usage: clutch on|off")
				continue
			}
			svc.SetClutch(fields[1] == "on")

		case "recal":
			svc.Recalibrate()
			fmt.Println("calibration restarted")

		case "pause":
			if err := disp.Lifecycle(dispatcher.LifecycleEvent{Kind: dispatcher.Paused, Timestamp: time.Now()}); err != nil {
				fmt.Println("pause failed:", err)
			}

		case "resume":
			if err := disp.Lifecycle(dispatcher.LifecycleEvent{Kind: dispatcher.Resumed, Timestamp: time.Now()}); err != nil {
				fmt.Println("resume failed:", err)
			}

		case "status":
			printStatus(svc, rt)

		case "quit", "exit":
			return

		case "help":
			fmt.Println(consoleHelp)

		default:
			fmt.Printf("unknown command %q, try help\n", fields[0])
		}
	}
}

func parseRay(args []string) (spatial.Ray, error) {
	if len(args) != 6 {
		return spatial.Ray{}, fmt.Errorf("usage: tap <ox> <oy> <oz> <dx> <dy> <dz>")
	}
	var v [6]float64
	for i, arg := range args {
		f, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return spatial.Ray{}, fmt.Errorf("bad coordinate %q: %v", arg, err)
		}
		v[i] = f
	}
	return spatial.Ray{
		Origin:    r3.Vector{X: v[0], Y: v[1], Z: v[2]},
		Direction: r3.Vector{X: v[3], Y: v[4], Z: v[5]},
	}, nil
}

func printStatus(svc *recorder.Service, rt *runtime.Context) {
	sess := rt.SessionCtx.GetSession()
	site := rt.SessionCtx.GetSite()
	fmt.Printf("active: %v\n", svc.Active())
	if sess != nil && sess.SessionKey != "" {
		fmt.Printf("session: %s (id %d)\n", sess.SessionKey, sess.ID)
	}
	if site != nil {
		fmt.Printf("site: %s\n", site.Name)
	}
}
