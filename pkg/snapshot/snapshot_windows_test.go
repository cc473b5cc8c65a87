//go:build windows

package snapshot

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeID = "{12345678-1234-1234-1234-123456789ABC}"

// TestHelperProcess impersonates powershell.exe for the provider tests.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	script := os.Args[len(os.Args)-1]
	switch {
	case strings.Contains(script, "MethodName Create"):
		fmt.Println(fakeID)
	case strings.Contains(script, "DeviceObject"):
		if os.Getenv("FAIL_DEVICE") == "1" {
			fmt.Fprintln(os.Stderr, "query failed")
			os.Exit(1)
		}
		fmt.Println(`\\?\GLOBALROOT\Device\HarddiskVolumeShadowCopy7`)
	case strings.Contains(script, "Remove-CimInstance"):
	default:
		os.Exit(2)
	}
	os.Exit(0)
}

type recordingRunner struct {
	mu         sync.Mutex
	scripts    []string
	failDevice bool
}

func (r *recordingRunner) commandContext(ctx context.Context, name string, arg ...string) *exec.Cmd {
	r.mu.Lock()
	r.scripts = append(r.scripts, arg[len(arg)-1])
	r.mu.Unlock()
	cs := append([]string{"-test.run=TestHelperProcess", "--"}, arg...)
	cmd := exec.CommandContext(ctx, os.Args[0], cs...)
	cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")
	if r.failDevice {
		cmd.Env = append(cmd.Env, "FAIL_DEVICE=1")
	}
	return cmd
}

func (r *recordingRunner) count(substr string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.scripts {
		if strings.Contains(s, substr) {
			n++
		}
	}
	return n
}

func TestShadowCopyAcquireAndRelease(t *testing.T) {
	r := &recordingRunner{}
	p := newPlatformProvider(r.commandContext)

	h, err := p.Acquire(context.Background(), `C:\Users\me`)
	require.NoError(t, err)
	assert.Equal(t, `\\?\GLOBALROOT\Device\HarddiskVolumeShadowCopy7\Users\me`, h.Root())

	require.NoError(t, h.Release())
	require.NoError(t, h.Release())
	assert.Equal(t, 1, r.count("Remove-CimInstance"), "release must run exactly once")
}

func TestShadowCopyReleasedOnPartialAcquisition(t *testing.T) {
	r := &recordingRunner{failDevice: true}
	p := newPlatformProvider(r.commandContext)

	h, err := p.Acquire(context.Background(), `C:\Users\me`)
	require.Error(t, err)
	assert.Nil(t, h)
	assert.Equal(t, 1, r.count("Remove-CimInstance"), "created snapshot must be released")
}

func TestShadowCopyRejectsUNCPaths(t *testing.T) {
	r := &recordingRunner{}
	_, err := newPlatformProvider(r.commandContext).Acquire(context.Background(), `\\server\share\dir`)
	require.Error(t, err)
	assert.Equal(t, 0, r.count(""))
}
