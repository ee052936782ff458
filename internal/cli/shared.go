package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/dashdock/dashdock/internal/domain"
	"github.com/dashdock/dashdock/internal/pipeline"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
	dim    = color.New(color.Faint).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
)

func withSpinner(ctx context.Context, desc string) (stop func()) {
	spinner := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				spinner.Finish()
				return
			default:
				spinner.Add(1)
				time.Sleep(100 * time.Millisecond)
			}
		}
	}()
	return func() {
		close(done)
		spinner.Finish()
	}
}

// printOutcomes renders terminal pipeline events the way every command
// reports them. Cancellations show as a quiet note, never as failures.
func (a *app) printOutcomes() {
	a.subscribe(func(e pipeline.Event) {
		switch e.Kind {
		case pipeline.EventStateChanged:
			switch e.State {
			case domain.StateInstalled:
				fmt.Printf("%s %s installed\n", green("✓"), bold(e.Docset))
			case domain.StateCancelled:
				fmt.Printf("%s %s cancelled\n", dim("○"), e.Docset)
			}
		case pipeline.EventUpToDate:
			fmt.Printf("%s %s already up-to-date\n", dim("○"), e.Docset)
		case pipeline.EventError:
			name := e.Docset
			if name == "" {
				name = "catalog"
			}
			fmt.Printf("%s %s: %v\n", red("✗"), name, e.Err)
		case pipeline.EventDeleteDone:
			if e.Err != nil {
				fmt.Printf("%s %s: %v\n", red("✗"), e.Docset, e.Err)
			} else {
				fmt.Printf("%s %s removed\n", green("✓"), bold(e.Docset))
			}
		}
	})
}

// attachProgressBar renders the aggregate download percentage.
func (a *app) attachProgressBar(desc string) {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionClearOnFinish(),
	)
	a.subscribe(func(e pipeline.Event) {
		if e.Kind == pipeline.EventAggregate {
			bar.Set(e.Percent)
			if e.Active == 0 {
				bar.Finish()
			}
		}
	})
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
