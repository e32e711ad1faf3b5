package render

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/anicoll/ato-dashboard/internal/pkg/model"
)

// FormatUptime renders seconds as "{d}d {h}h {m}m", omitting zero days and
// hours. Minutes are always shown.
func FormatUptime(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	days := seconds / 86400
	hours := (seconds % 86400) / 3600
	minutes := (seconds % 3600) / 60

	var b strings.Builder
	if days > 0 {
		fmt.Fprintf(&b, "%dd ", days)
	}
	if hours > 0 {
		fmt.Fprintf(&b, "%dh ", hours)
	}
	fmt.Fprintf(&b, "%dm", minutes)
	return b.String()
}

// SignalStrength buckets an RSSI reading. Thresholds are inclusive.
func SignalStrength(dbm int) string {
	switch {
	case dbm >= -50:
		return "Excellent"
	case dbm >= -60:
		return "Good"
	case dbm >= -70:
		return "Fair"
	default:
		return "Poor"
	}
}

func FormatSignal(dbm int) string {
	return fmt.Sprintf("%d dBm (%s)", dbm, SignalStrength(dbm))
}

func FormatTemperature(celsius float64) string {
	return fmt.Sprintf("%.1f°C", celsius)
}

// FormatRange prints the safe range with no trailing zeros.
func FormatRange(th model.Thresholds) string {
	return formatNumber(th.Min) + " - " + formatNumber(th.Max) + "°C"
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatCountdown renders the maintenance timer as MM:SS.
func FormatCountdown(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("Maintenance ends in: %02d:%02d", seconds/60, seconds%60)
}

const lastRunLayout = "1/2/2006, 3:04:05 PM"

func FormatLastRun(epoch int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return "Last run: " + time.Unix(epoch, 0).In(loc).Format(lastRunLayout)
}
