package app

import (
	"fmt"
	"io"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/leo-telemetry/internal/session"
	"github.com/roman-kulish/leo-telemetry/internal/telemetry"
)

const clearScreen = "\033[H\033[2J"

// View prints the header stats and the log of the windowed readings.
type View struct {
	w      io.Writer
	window int
	clear  bool
	now    func() time.Time
}

func NewView(w io.Writer, window int, clear bool) *View {
	return &View{w: w, window: window, clear: clear, now: time.Now}
}

func (v *View) Render(st session.State) error {
	tw := tabwriter.NewWriter(v.w, 0, 0, 2, ' ', 0)

	if v.clear {
		fmt.Fprint(tw, clearScreen)
	}

	fmt.Fprintln(tw, "CubeSat Monitoring Dashboard")
	v.renderHeader(tw, st.Latest)
	fmt.Fprintln(tw)
	v.renderLog(tw, st.Window)

	return tw.Flush()
}

func (v *View) renderHeader(w io.Writer, latest *telemetry.Reading) {
	if latest == nil {
		fmt.Fprintln(w, "Waiting for data...")
		fmt.Fprintln(w, "Temperature\t--\tHumidity\t--\tCurrent\t--\tLocation\t--")
		return
	}

	fmt.Fprintf(w, "Last updated: %s (%s)\n",
		latest.Timestamp.Local().Format(time.DateTime),
		humanize.RelTime(latest.Timestamp, v.now(), "ago", "from now"))
	fmt.Fprintf(w, "Temperature\t%.1f°C\tHumidity\t%.1f%%\tCurrent\t%.2fmA\tLocation\t%s\n",
		latest.Temp, latest.Hum, latest.Current, location(latest))
	fmt.Fprintf(w, "Orientation\tacc=(%.2f, %.2f, %.2f)\tgyro=(%.2f, %.2f, %.2f)\n",
		latest.AccX, latest.AccY, latest.AccZ, latest.GyroX, latest.GyroY, latest.GyroZ)
}

// renderLog prints the window newest first.
func (v *View) renderLog(w io.Writer, window []telemetry.Reading) {
	fmt.Fprintf(w, "Sensor Data Log (%s of %s)\n", humanize.Comma(int64(len(window))), humanize.Comma(int64(v.window)))
	fmt.Fprintln(w, "AccX\tAccY\tAccZ\tGyroX\tGyroY\tGyroZ\tTemp\tHumidity\tLocation\tCurrent\tTimestamp\t")

	if len(window) == 0 {
		fmt.Fprintln(w, "No data available")
		return
	}

	rows := slices.Clone(window)
	slices.Reverse(rows)

	for _, r := range rows {
		fmt.Fprintf(w, "%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.1f°C\t%.1f%%\t%s\t%.2fmA\t%s\t\n",
			r.AccX, r.AccY, r.AccZ, r.GyroX, r.GyroY, r.GyroZ,
			r.Temp, r.Hum, location(&r), r.Current,
			r.Timestamp.Local().Format(time.DateTime))
	}
}

// location formats the GPS fix, a device without a fix reports 0, 0.
func location(r *telemetry.Reading) string {
	if r.Lat == 0 && r.Lon == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.4f, %.4f", r.Lat, r.Lon)
}
