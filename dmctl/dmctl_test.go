package dmctl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcornwell/devcoord/devfs"
	"github.com/rcornwell/devcoord/device"
	"github.com/rcornwell/devcoord/platform"
)

type fakePlatform struct {
	platform.Platform
	calls []string
	arg   string
}

func (f *fakePlatform) Reboot() error      { f.calls = append(f.calls, "reboot"); return nil }
func (f *fakePlatform) PowerOff() error    { f.calls = append(f.calls, "poweroff"); return nil }
func (f *fakePlatform) KTraceStart() error { f.calls = append(f.calls, "ktraceon"); return nil }
func (f *fakePlatform) KTraceStop() error  { f.calls = append(f.calls, "ktraceoff"); return nil }
func (f *fakePlatform) ACPIPS0(arg string) error {
	f.calls = append(f.calls, "acpi-ps0")
	f.arg = arg
	return nil
}
func (f *fakePlatform) KernelDebug(cmd string) error {
	f.calls = append(f.calls, "kerneldebug")
	f.arg = cmd
	return nil
}
func (f *fakePlatform) LaunchApp(text string) error {
	f.calls = append(f.calls, "launch")
	f.arg = text
	return nil
}

func newHandler(p *fakePlatform) *Handler {
	return &Handler{Platform: p, Tree: device.NewTree(devfs.New(), nil)}
}

func TestHandleReboot(t *testing.T) {
	p := &fakePlatform{}
	h := newHandler(p)
	require.NoError(t, h.Handle("reboot"))
	assert.Equal(t, []string{"reboot"}, p.calls)
}

func TestHandlePoweroffAndShutdownAlias(t *testing.T) {
	p := &fakePlatform{}
	h := newHandler(p)
	require.NoError(t, h.Handle("poweroff"))
	require.NoError(t, h.Handle("shutdown"))
	assert.Equal(t, []string{"poweroff", "poweroff"}, p.calls)
}

func TestHandleKTrace(t *testing.T) {
	p := &fakePlatform{}
	h := newHandler(p)
	require.NoError(t, h.Handle("ktraceon"))
	require.NoError(t, h.Handle("ktraceoff"))
	assert.Equal(t, []string{"ktraceon", "ktraceoff"}, p.calls)
}

func TestHandleAcpiPs0Prefix(t *testing.T) {
	p := &fakePlatform{}
	h := newHandler(p)
	require.NoError(t, h.Handle("acpi-ps0:\\_SB.PCI0"))
	assert.Equal(t, `\_SB.PCI0`, p.arg)
}

func TestHandleKernelDebugPrefix(t *testing.T) {
	p := &fakePlatform{}
	h := newHandler(p)
	require.NoError(t, h.Handle("kerneldebug kill 1"))
	assert.Equal(t, "kill 1", p.arg)
}

func TestHandleLaunchApp(t *testing.T) {
	p := &fakePlatform{}
	h := newHandler(p)
	require.NoError(t, h.Handle("@app"))
	assert.Equal(t, "@app", p.arg)
}

func TestHandleUnknownCommand(t *testing.T) {
	p := &fakePlatform{}
	h := newHandler(p)
	err := h.Handle("frobnicate")
	assert.Error(t, err)
}

func TestHandleBareAcpiPs0PrefixIsUnsupported(t *testing.T) {
	p := &fakePlatform{}
	h := newHandler(p)
	err := h.Handle("acpi-ps0:")
	assert.Error(t, err)
	assert.Empty(t, p.calls)
}

func TestHandleBareKernelDebugPrefixIsUnsupported(t *testing.T) {
	p := &fakePlatform{}
	h := newHandler(p)
	err := h.Handle("kerneldebug ")
	assert.Error(t, err)
	assert.Empty(t, p.calls)
}

func TestHandleBareAtPrefixIsUnsupported(t *testing.T) {
	p := &fakePlatform{}
	h := newHandler(p)
	err := h.Handle("@")
	assert.Error(t, err)
	assert.Empty(t, p.calls)
}

func TestHandleDumpAndHelpDoNotError(t *testing.T) {
	p := &fakePlatform{}
	h := newHandler(p)
	assert.NoError(t, h.Handle("dump"))
	assert.NoError(t, h.Handle("help"))
}
