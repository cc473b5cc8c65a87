//go:build !windows

package ignorefile

const platformSection = "# --- Linux/macOS ---\n/proc\n/sys\n/dev\n"
