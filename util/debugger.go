// Package util holds debugging helpers for the client.
package util

import (
	"os"
	"regexp"

	"github.com/fatih/color"
)

const consoleWidth = 79

// tokenField matches the token value inside login and resume frames.
var tokenField = regexp.MustCompile(`("token"\s*:\s*")[^"]*(")`)

// StderrDebugger prints gateway traffic on the console. Account tokens are
// scrubbed from outgoing frames before printing.
type StderrDebugger struct{}

func (s StderrDebugger) writeOut(prefix, str string, width int) {
	indent := "    "
	width -= len(indent)

	os.Stderr.WriteString(prefix + " ")
	var i int
	for i = 1; i*width < len(str); i++ {
		os.Stderr.WriteString(str[(i-1)*width:i*width] + "\n" + indent)
	}
	os.Stderr.WriteString(str[(i-1)*width:] + "\n")
}

// scrub blanks credential material inside a raw frame.
func scrub(b []byte) string {
	return tokenField.ReplaceAllString(string(b), `$1********$2`)
}

// Incoming implements Debugger.Incoming
func (s StderrDebugger) Incoming(b []byte) {
	s.writeOut(color.CyanString("<<<"), scrub(b), consoleWidth)
}

// Outgoing implements Debugger.Outgoing
func (s StderrDebugger) Outgoing(b []byte) {
	s.writeOut(color.GreenString(">>>"), scrub(b), consoleWidth)
}

// Error implements Debugger.Error
func (s StderrDebugger) Error(e error) {
	col := color.New(color.FgBlack, color.BgRed)
	s.writeOut(col.SprintfFunc()("ERR"), e.Error(), consoleWidth)
}
