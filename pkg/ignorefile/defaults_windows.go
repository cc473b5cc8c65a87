//go:build windows

package ignorefile

const platformSection = "# --- Windows ---\nSystem Volume Information\n$RECYCLE.BIN\nRecovery\npagefile.sys\nhiberfil.sys\nswapfile.sys\nDumpStack.log.tmp\n"
