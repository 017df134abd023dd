package utils

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

// Progress is an mpb progress bar on stderr. It does nothing when stderr
// is not a terminal or when it was created disabled.
type Progress struct {
	container *mpb.Progress
	bar       *mpb.Bar
	enabled   bool

	mu          sync.Mutex
	description string
}

var descLength = 24

// NewProgress creates a progress bar with the given total count and a
// leading label such as "Extracting".
func NewProgress(total int, label string, enabled bool) *Progress {
	p := &Progress{enabled: enabled && isTerminal()}
	if !p.enabled {
		return p
	}

	fmt.Fprintln(os.Stderr)

	p.container = mpb.New(
		mpb.WithOutput(os.Stderr),
		mpb.WithWidth(64),
		mpb.WithRefreshRate(100*time.Millisecond),
	)
	p.bar = p.container.New(int64(total),
		mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
		mpb.PrependDecorators(
			decor.Name(label, decor.WC{C: decor.DindentRight}),
			decor.Any(func(decor.Statistics) string {
				return p.currentDescription()
			}, decor.WC{W: descLength, C: decor.DindentRight}),
			decor.CountersNoUnit("%d/%d", decor.WC{C: decor.DindentRight}),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.Name(" "),
			decor.Elapsed(decor.ET_STYLE_GO),
		),
	)
	return p
}

func (p *Progress) currentDescription() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Truncate(p.description, descLength)
}

// Update sets the bar to current and shows description next to it.
func (p *Progress) Update(current int, description string) {
	if !p.enabled || p.bar == nil {
		return
	}
	p.mu.Lock()
	p.description = description
	p.mu.Unlock()
	p.bar.SetCurrent(int64(current))
}

// Callback adapts Update to the batch progress signature.
func (p *Progress) Callback() func(current, total int, description string) {
	return func(current, _ int, description string) {
		p.Update(current, description)
	}
}

// Finish completes the bar. A bar that stopped short of its total, such
// as after a failed batch, is aborted so Wait returns.
func (p *Progress) Finish() {
	if !p.enabled || p.container == nil {
		return
	}
	if !p.bar.Completed() {
		p.bar.Abort(false)
	}
	p.container.Wait()
	fmt.Fprintln(os.Stderr)
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}
