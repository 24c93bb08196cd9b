/*
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package dmctl is the coordinator's administrative control surface: a
// small set of text commands reachable both over DM_COMMAND RPCs and an
// interactive console, forwarded to the platform's power/trace/ACPI/debug
// primitives or to the device tree dumper.
package dmctl

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rcornwell/devcoord/dcstatus"
	"github.com/rcornwell/devcoord/device"
	"github.com/rcornwell/devcoord/platform"
)

// HelpText is the multi-line response to the "help" command, matching the
// upstream coordinator's dmctl help text.
const HelpText = "" +
	"dump        - dump device tree\n" +
	"poweroff    - power off the system\n" +
	"shutdown    - power off the system\n" +
	"reboot      - reboot the system\n" +
	"kerneldebug - send a command to the kernel\n" +
	"ktraceoff   - stop kernel tracing\n" +
	"ktraceon    - start kernel tracing\n" +
	"acpi-ps0    - invoke the _PS0 method on an acpi object\n"

// Handler dispatches dmctl commands. Commands are matched exactly on
// length and bytes: no trimming, no case folding.
type Handler struct {
	Platform platform.Platform
	Tree     *device.Tree
}

// Handle processes one command. Output destined for a console (dump,
// help) is printed to stdout directly, mirroring the upstream dmctl
// driver's behavior of writing straight to the console device.
func (h *Handler) Handle(cmd string) error {
	switch {
	case cmd == "dump":
		var buf bytes.Buffer
		h.Tree.Dump(&buf)
		fmt.Print(buf.String())
		return nil

	case cmd == "help":
		fmt.Print(HelpText)
		return nil

	case cmd == "reboot":
		return h.Platform.Reboot()

	case cmd == "poweroff" || cmd == "shutdown":
		return h.Platform.PowerOff()

	case cmd == "ktraceon":
		return h.Platform.KTraceStart()

	case cmd == "ktraceoff":
		return h.Platform.KTraceStop()

	case len(cmd) > len("acpi-ps0:") && strings.HasPrefix(cmd, "acpi-ps0:"):
		return h.Platform.ACPIPS0(strings.TrimPrefix(cmd, "acpi-ps0:"))

	case len(cmd) > len("kerneldebug ") && strings.HasPrefix(cmd, "kerneldebug "):
		return h.Platform.KernelDebug(strings.TrimPrefix(cmd, "kerneldebug "))

	case len(cmd) > len("@") && strings.HasPrefix(cmd, "@"):
		return h.Platform.LaunchApp(cmd)

	default:
		slog.Error("dmctl: unknown command", "cmd", cmd)
		return dcstatus.ErrNotSupported
	}
}
