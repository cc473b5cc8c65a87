//go:build windows

package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/paulschiretz/recall/pkg/plog"
	"golang.org/x/sys/windows"
)

var shadowIDPattern = regexp.MustCompile(`^\{[0-9A-Fa-f-]{36}\}$`)

// shadowCopyProvider drives the Win32_ShadowCopy CIM class via PowerShell.
type shadowCopyProvider struct {
	commandContext CommandContext
}

func newPlatformProvider(cc CommandContext) Provider {
	return &shadowCopyProvider{commandContext: cc}
}

func (p *shadowCopyProvider) Acquire(ctx context.Context, source string) (Handle, error) {
	vol := filepath.VolumeName(source)
	if len(vol) != 2 || vol[1] != ':' {
		return nil, fmt.Errorf("shadow copies need a drive letter path, got %q", source)
	}

	createScript := fmt.Sprintf(
		`$r = Invoke-CimMethod -ClassName Win32_ShadowCopy -MethodName Create -Arguments @{Volume='%s\'; Context='ClientAccessible'}; `+
			`if ($r.ReturnValue -ne 0) { Write-Error "Create returned $($r.ReturnValue)"; exit 1 }; $r.ShadowID`, vol)
	out, err := p.powershell(ctx, createScript)
	if err != nil {
		return nil, fmt.Errorf("failed to create shadow copy of %s: %w", vol, err)
	}
	id := strings.TrimSpace(out)
	if !shadowIDPattern.MatchString(id) {
		return nil, fmt.Errorf("unexpected shadow copy id %q", id)
	}

	h := &shadowHandle{provider: p, id: id}
	device, err := p.powershell(ctx, fmt.Sprintf(
		`(Get-CimInstance Win32_ShadowCopy -Filter "ID='%s'").DeviceObject`, id))
	device = strings.TrimSpace(device)
	if err == nil && device == "" {
		err = fmt.Errorf("shadow copy %s has no device object", id)
	}
	if err != nil {
		if relErr := h.Release(); relErr != nil {
			plog.Warn("Failed to release shadow copy after failed acquisition", "id", id, "error", relErr)
		}
		return nil, fmt.Errorf("failed to query shadow copy %s: %w", id, err)
	}

	h.root = Remap(source, device)
	plog.Info("Shadow copy created", "id", id, "device", device)
	return h, nil
}

func (p *shadowCopyProvider) powershell(ctx context.Context, script string) (string, error) {
	cmd := p.commandContext(ctx, "powershell.exe", "-NoProfile", "-NonInteractive", "-Command", script)
	cmd.SysProcAttr = &windows.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%w: %s", err, msg)
		}
		return "", err
	}
	return stdout.String(), nil
}

type shadowHandle struct {
	provider *shadowCopyProvider
	id       string
	root     string

	once sync.Once
	err  error
}

func (h *shadowHandle) Root() string { return h.root }

func (h *shadowHandle) Release() error {
	h.once.Do(func() {
		_, h.err = h.provider.powershell(context.Background(), fmt.Sprintf(
			`Get-CimInstance Win32_ShadowCopy -Filter "ID='%s'" | Remove-CimInstance`, h.id))
		if h.err == nil {
			plog.Info("Shadow copy released", "id", h.id)
		}
	})
	return h.err
}
