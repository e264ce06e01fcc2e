package tui

import (
	"math/big"
	"os/exec"
	"runtime"

	"stakedash/pkg/utils"
)

// displayUnits renders base units with the configured number of places.
func (m model) displayUnits(v *big.Int, decimals uint8) string {
	if m.privacyMode {
		return "****"
	}
	places := m.config.Global.TokenDecimals
	if places <= 0 {
		places = 4
	}
	return utils.FormatUnits(v, decimals, places)
}

func (m model) maskAddress(addr string) string {
	if m.privacyMode {
		return "0x**...**"
	}
	return utils.ShortenAddress(addr)
}

// openBrowser opens the specified URL in the default browser.
func openBrowser(url string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start"}
	case "darwin":
		cmd = "open"
	default: // "linux", "freebsd", "openbsd", "netbsd"
		cmd = "xdg-open"
	}
	args = append(args, url)
	return exec.Command(cmd, args...).Start()
}
