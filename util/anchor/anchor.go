package anchor

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"atomicgo.dev/cursor"
	"github.com/fatih/color"
)

const (
	Red    = color.FgRed
	Green  = color.FgGreen
	Yellow = color.FgYellow
	Cyan   = color.FgCyan
)

// Window prints log lines on top of a set of anchored lots,
// each one being a status line that keeps being rewritten in place
type Window struct {
	mu     sync.Mutex
	color  *color.Color
	out    io.Writer
	in     *bufio.Reader
	plain  bool
	lots   []*Lot
	drawn  int
	colors bool
}

type Lot struct {
	window  *Window
	name    string
	message string
}

func New(attribute color.Attribute) *Window {
	return &Window{
		color:  color.New(attribute, color.Bold),
		out:    os.Stdout,
		in:     bufio.NewReader(os.Stdin),
		plain:  color.NoColor,
		colors: !color.NoColor,
	}
}

// NewPlain returns a window which never moves the cursor,
// writing to out and reading from in
func NewPlain(out io.Writer, in io.Reader) *Window {
	return &Window{
		color: color.New(color.Reset),
		out:   out,
		in:    bufio.NewReader(in),
		plain: true,
	}
}

// Printf prints a line above the lots
func (window *Window) Printf(format string, args ...interface{}) {
	window.mu.Lock()
	defer window.mu.Unlock()
	window.clear()
	fmt.Fprintln(window.out, fmt.Sprintf(format, args...))
	window.draw()
}

// Reads prompts for a line of input
func (window *Window) Reads(prompt string) string {
	window.mu.Lock()
	defer window.mu.Unlock()
	window.clear()
	fmt.Fprint(window.out, window.paint(prompt)+" ")
	line, _ := window.in.ReadString('\n')
	window.draw()
	return strings.TrimSpace(line)
}

// Lot returns the lot with the given name, anchoring it if new
func (window *Window) Lot(name string) *Lot {
	window.mu.Lock()
	defer window.mu.Unlock()
	for _, lot := range window.lots {
		if lot.name == name {
			return lot
		}
	}
	lot := &Lot{window: window, name: name}
	window.lots = append(window.lots, lot)
	return lot
}

// Printf rewrites the lot status
func (lot *Lot) Printf(format string, args ...interface{}) {
	window := lot.window
	window.mu.Lock()
	defer window.mu.Unlock()
	window.clear()
	lot.message = fmt.Sprintf(format, args...)
	window.draw()
}

// Close unanchors the lot, printing its final status
func (lot *Lot) Close(messages ...string) {
	window := lot.window
	window.mu.Lock()
	defer window.mu.Unlock()
	window.clear()
	window.drop(lot)
	message := "done"
	if len(messages) > 0 {
		message = strings.Join(messages, " ")
	}
	fmt.Fprintf(window.out, "%s %s\n", window.paint(lot.name), message)
	window.draw()
}

// Wipe unanchors the lot without leaving any trace
func (lot *Lot) Wipe() {
	window := lot.window
	window.mu.Lock()
	defer window.mu.Unlock()
	window.clear()
	window.drop(lot)
	window.draw()
}

func (window *Window) drop(lot *Lot) {
	for index, anchored := range window.lots {
		if anchored == lot {
			window.lots = append(window.lots[:index], window.lots[index+1:]...)
			return
		}
	}
}

func (window *Window) paint(text string) string {
	if !window.colors {
		return text
	}
	return window.color.Sprint(text)
}

// lock must be held
func (window *Window) clear() {
	if window.plain || window.drawn == 0 {
		return
	}
	cursor.ClearLinesUp(window.drawn)
	window.drawn = 0
}

// lock must be held
func (window *Window) draw() {
	if window.plain {
		return
	}
	for _, lot := range window.lots {
		fmt.Fprintf(window.out, "%s %s\n", window.paint(lot.name), lot.message)
		window.drawn++
	}
}
