// Package tui renders hops command output on the terminal.
// Rich output is turned off automatically when piping or redirecting.
//
//   - Progress spinners only appear when stderr is a TTY
//   - Colors are disabled when piping or when NO_COLOR is set
//   - Definition descriptions are rendered as markdown
//
// Environment Variables:
//   - NO_COLOR or HOPS_NO_COLOR: Disable colors (respects https://no-color.org/)
//   - TERM=dumb: Disable colors
//   - HOPS_QUIET: Disable all UI output (progress and informational messages)
package tui

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/dorcha-inc/hops/internal/host"
)

var (
	colorRed    = lipgloss.ANSIColor(1)
	colorGreen  = lipgloss.ANSIColor(2)
	colorYellow = lipgloss.ANSIColor(3)
	colorBlue   = lipgloss.ANSIColor(4)
	colorGray   = lipgloss.ANSIColor(8)
)

// UI provides terminal output with automatic TTY detection
type UI struct {
	stdoutIsTTY bool
	stderrIsTTY bool
	// enabled is true when stderr and stdin are terminals and HOPS_QUIET is unset
	enabled      bool
	colorEnabled bool
	// showProgress gates spinners; the CLI turns it on for interactive commands
	showProgress     bool
	width            int
	currentSpinner   *spinnerState
	markdownRenderer *glamour.TermRenderer
}

type spinnerState struct {
	started time.Time
	ticker  clockwork.Ticker
	message string
	done    chan struct{}
}

var (
	defaultUI    *UI
	spinnerClock clockwork.Clock = clockwork.NewRealClock()

	// stderrRenderer detects color support on stderr, so progress stays
	// colored when stdout is piped
	stderrRenderer = lipgloss.NewRenderer(os.Stderr)

	successStyle = lipgloss.NewStyle().Renderer(stderrRenderer).Foreground(colorGreen).Bold(true)
	failureStyle = lipgloss.NewStyle().Renderer(stderrRenderer).Foreground(colorRed).Bold(true)
	spinnerStyle = lipgloss.NewStyle().Renderer(stderrRenderer).Foreground(colorBlue)

	messageStyles = map[host.MessageLevel]lipgloss.Style{
		host.LevelRemark:  lipgloss.NewStyle().Renderer(stderrRenderer).Foreground(colorGray),
		host.LevelWarning: lipgloss.NewStyle().Renderer(stderrRenderer).Foreground(colorYellow),
		host.LevelError:   lipgloss.NewStyle().Renderer(stderrRenderer).Foreground(colorRed).Bold(true),
	}

	messageSymbols = map[host.MessageLevel]string{
		host.LevelRemark:  "·",
		host.LevelWarning: "!",
		host.LevelError:   "✗",
	}
)

func init() {
	defaultUI = New()
}

// New creates a UI for the current process's standard streams
func New() *UI {
	stdoutIsTTY := IsTerminal(os.Stdout)
	stderrIsTTY := IsTerminal(os.Stderr)
	stdinIsTTY := IsTerminal(os.Stdin)

	// piped input usually means a script, so keep the output clean
	enabled := stderrIsTTY && stdinIsTTY && !isDisabled()
	colorEnabled := stderrIsTTY && !isColorDisabled()

	width := 80
	if stdoutIsTTY {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
			width = w
		}
	}

	ui := &UI{
		stdoutIsTTY:  stdoutIsTTY,
		stderrIsTTY:  stderrIsTTY,
		enabled:      enabled,
		colorEnabled: colorEnabled,
		width:        width,
	}

	if colorEnabled && stdoutIsTTY {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err == nil {
			ui.markdownRenderer = renderer
		}
	}

	return ui
}

// IsTerminal checks if a file is connected to a terminal
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func isDisabled() bool {
	if val := os.Getenv("HOPS_QUIET"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
		return true
	}
	return false
}

func isColorDisabled() bool {
	return os.Getenv("NO_COLOR") != "" ||
		os.Getenv("HOPS_NO_COLOR") != "" ||
		os.Getenv("TERM") == "dumb"
}

func (u *UI) Enabled() bool {
	return u.enabled
}

func (u *UI) ColorEnabled() bool {
	return u.colorEnabled
}

func (u *UI) StdoutIsTTY() bool {
	return u.stdoutIsTTY
}

func (u *UI) StderrIsTTY() bool {
	return u.stderrIsTTY
}

// Width is the terminal width used to truncate values
func (u *UI) Width() int {
	return u.width
}

// SetShowProgress turns progress spinners on or off
func (u *UI) SetShowProgress(show bool) {
	u.showProgress = show
}

func (u *UI) progressVisible() bool {
	return u.showProgress && u.enabled
}

func (u *UI) printSpinnerFrame(state *spinnerState) {
	elapsed := spinnerClock.Since(state.started)
	frame := int(elapsed/spinner.Dot.FPS) % len(spinner.Dot.Frames)
	spinnerChar := spinner.Dot.Frames[frame]

	if !u.colorEnabled {
		fmt.Fprintf(os.Stderr, "\r... %s", state.message)
		return
	}
	fmt.Fprintf(os.Stderr, "\r%s %s", spinnerStyle.Render(spinnerChar), state.message)
}

// stopSpinner stops the animation and clears its line
func (u *UI) stopSpinner() {
	if u.currentSpinner == nil {
		return
	}
	if u.currentSpinner.ticker != nil {
		u.currentSpinner.ticker.Stop()
	}
	if u.currentSpinner.done != nil {
		close(u.currentSpinner.done)
	}
	// let the animation goroutine observe done before the line is cleared
	time.Sleep(10 * time.Millisecond)
	fmt.Fprint(os.Stderr, "\r", ansi.EraseLine(2))
	u.currentSpinner = nil
}

// Progress shows message next to an animated spinner on stderr.
// Calling it again with the same message only redraws the frame.
func (u *UI) Progress(message string) {
	if !u.progressVisible() {
		return
	}

	if u.currentSpinner != nil && u.currentSpinner.message == message {
		u.printSpinnerFrame(u.currentSpinner)
		return
	}

	u.stopSpinner()

	state := &spinnerState{
		started: spinnerClock.Now(),
		message: message,
		done:    make(chan struct{}),
		ticker:  spinnerClock.NewTicker(100 * time.Millisecond),
	}
	u.currentSpinner = state

	u.printSpinnerFrame(state)

	go func() {
		for {
			select {
			case <-state.ticker.Chan():
				u.printSpinnerFrame(state)
			case <-state.done:
				return
			}
		}
	}()
}

func (u *UI) finishProgress(caller, symbol string, style lipgloss.Style, message string) {
	if !u.progressVisible() {
		return
	}

	if u.currentSpinner == nil {
		zap.L().Error(caller + " called without a spinner")
		return
	}

	displayMessage := message
	if displayMessage == "" {
		displayMessage = u.currentSpinner.message
	}

	u.stopSpinner()

	if displayMessage == "" {
		return
	}
	if u.colorEnabled {
		symbol = style.Render(symbol)
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", symbol, displayMessage)
}

// ProgressSuccess stops the spinner and prints message with a checkmark.
// An empty message repeats the spinner's message.
func (u *UI) ProgressSuccess(message string) {
	u.finishProgress("ProgressSuccess", "✓", successStyle, message)
}

// ProgressFailure stops the spinner and prints message with a cross
func (u *UI) ProgressFailure(message string) {
	u.finishProgress("ProgressFailure", "✗", failureStyle, message)
}

// Info prints an informational message to stderr unless HOPS_QUIET is set.
// It writes even when stderr is not a terminal.
func (u *UI) Info(format string, args ...any) {
	if isDisabled() {
		return
	}
	fmt.Fprintf(os.Stderr, format, args...)
}

// Messages prints runtime messages to stderr, one per line, prefixed by a
// symbol for their level. Errors are printed even when HOPS_QUIET is set.
func (u *UI) Messages(messages []host.Message) {
	for _, message := range messages {
		if message.Level != host.LevelError && isDisabled() {
			continue
		}
		fmt.Fprintln(os.Stderr, u.formatMessage(message))
	}
}

func (u *UI) formatMessage(message host.Message) string {
	symbol, ok := messageSymbols[message.Level]
	if !ok {
		symbol = "-"
	}
	line := fmt.Sprintf("%s %s: %s", symbol, message.Level, message.Text)
	if style, ok := messageStyles[message.Level]; ok && u.colorEnabled {
		return style.Render(line)
	}
	return line
}

// RenderMarkdown renders markdown with glamour when stdout is a color
// terminal and returns it unchanged otherwise
func (u *UI) RenderMarkdown(content string, width int) (string, error) {
	if width <= 0 {
		return "", fmt.Errorf("width must be greater than 0")
	}

	if !u.stdoutIsTTY || !u.colorEnabled {
		return content, nil
	}

	renderer := u.markdownRenderer
	if renderer == nil {
		var err error
		renderer, err = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return content, err
		}
	}

	return renderer.Render(content)
}

// Default returns the default UI instance
func Default() *UI {
	return defaultUI
}

// Reset recreates the default UI, picking up environment changes
func Reset() {
	defaultUI = New()
}

func Info(format string, args ...any) {
	defaultUI.Info(format, args...)
}

func SetShowProgress(show bool) {
	defaultUI.SetShowProgress(show)
}

func Progress(message string) {
	defaultUI.Progress(message)
}

func ProgressSuccess(message string) {
	defaultUI.ProgressSuccess(message)
}

func ProgressFailure(message string) {
	defaultUI.ProgressFailure(message)
}

func Messages(messages []host.Message) {
	defaultUI.Messages(messages)
}

func RenderMarkdown(content string, width int) (string, error) {
	return defaultUI.RenderMarkdown(content, width)
}
