// Package report is the single sink for human-readable pipeline progress.
// Components receive a Reporter instead of logging on their own, which keeps
// output consistent and lets tests run silently.
package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
)

// Reporter wraps a logrus logger with the small event vocabulary the
// pipeline uses: start/succeed for phases, info/warn/fail for everything
// else, and tabular summaries.
type Reporter struct {
	log *logrus.Logger
}

// New builds a Reporter writing to out. Level is one of debug/info/warn/error
// (defaulting to info); format "json" switches to the JSON formatter.
func New(out io.Writer, level, format string) *Reporter {
	log := logrus.New()
	log.SetOutput(out)
	if strings.EqualFold(format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}
	return &Reporter{log: log}
}

// Discard returns a Reporter that swallows all output.
func Discard() *Reporter {
	return New(io.Discard, "error", "")
}

// Startf announces the beginning of a phase.
func (r *Reporter) Startf(format string, args ...any) {
	r.log.WithField("event", "start").Infof(format, args...)
}

// Succeedf announces the successful end of a phase.
func (r *Reporter) Succeedf(format string, args ...any) {
	r.log.WithField("event", "succeed").Infof(format, args...)
}

// Infof reports routine progress.
func (r *Reporter) Infof(format string, args ...any) {
	r.log.Infof(format, args...)
}

// Debugf reports detail that only matters in verbose runs.
func (r *Reporter) Debugf(format string, args ...any) {
	r.log.Debugf(format, args...)
}

// Warnf reports a non-fatal problem the operator should follow up on.
func (r *Reporter) Warnf(format string, args ...any) {
	r.log.Warnf(format, args...)
}

// Failf reports a failure. It does not terminate anything; control flow stays
// with the caller.
func (r *Reporter) Failf(format string, args ...any) {
	r.log.WithField("event", "fail").Errorf(format, args...)
}

// Table renders an aligned table of rows under header to the log output,
// bypassing the formatter so columns line up.
func (r *Reporter) Table(header []string, rows [][]string) {
	if len(rows) == 0 {
		return
	}
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(header, "\t"))
	fmt.Fprintln(w, strings.Join(underlines(header), "\t"))
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()
	fmt.Fprint(r.log.Out, b.String())
}

func underlines(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = strings.Repeat("-", len(h))
	}
	return out
}
