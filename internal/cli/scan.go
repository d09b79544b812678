package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"peekraw/internal/fileref"
	"peekraw/internal/memory"
	"peekraw/internal/pipeline"
)

var scanCmd = &cobra.Command{
	Use:   "scan <path>...",
	Short: "Produce thumbnails for folders and files",
	Long: `Scan enumerates the given folders recursively, adds the given files as
they are, and fills the thumbnail cache. Files that cannot be decoded are
listed at the end.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().Bool("list", false, "print the state of every item when done")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) (err error) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	memory.ConfigureFromEnv()

	out := cmd.OutOrStdout()
	prog := newProgress(out)

	a, err := newApp(ctx, config, prog.handle)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	prog.describe = a.source.Bookmarks().Describe

	listing, err := a.source.Pick(ctx, args)
	if err != nil {
		return err
	}
	prog.total = len(listing.Refs)

	if _, err := a.gallery.Open(ctx, listing.Refs); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		a.gallery.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.gallery.Close()
		<-done
	}
	prog.finish()

	snap := a.gallery.Snapshot()
	if list, _ := cmd.Flags().GetBool("list"); list {
		for _, ref := range snap.Items() {
			fmt.Fprintf(out, "%-12s %s\n", a.gallery.State(ref.ID()), ref)
		}
	}

	pending, ready, unsupported := snap.Counts()
	fmt.Fprintf(out, "%d ready, %d unsupported, %d pending\n", ready, unsupported, pending)
	for _, id := range snap.Unsupported() {
		if ref, ok := snap.Item(id); ok {
			fmt.Fprintf(out, "unsupported: %s\n", ref)
		}
	}
	for _, s := range listing.Skipped {
		fmt.Fprintf(out, "skipped: %s: %v\n", s.Path, s.Err)
	}

	return ctx.Err()
}

// progress reports pipeline events. On a terminal it redraws a single
// status line; otherwise only failures are printed.
type progress struct {
	out      io.Writer
	tty      bool
	describe func(fileref.ID) string

	total  int
	done   int
	cached int
	failed int
}

func newProgress(out io.Writer) *progress {
	p := &progress{out: out}
	if f, ok := out.(*os.File); ok {
		p.tty = term.IsTerminal(int(f.Fd()))
	}
	return p
}

// handle runs on the main loop.
func (p *progress) handle(ev pipeline.Event) {
	switch ev.Kind {
	case pipeline.ItemReady:
		p.done++
		if ev.FromCache {
			p.cached++
		}
	case pipeline.ItemFailed:
		p.done++
		p.failed++
		p.clear()
		fmt.Fprintf(p.out, "failed: %s: %v\n", p.name(ev.ID), ev.Err)
	default:
		return
	}
	p.redraw()
}

func (p *progress) name(id fileref.ID) string {
	if p.describe == nil {
		return id.Hex()
	}
	return p.describe(id)
}

func (p *progress) clear() {
	if p.tty {
		fmt.Fprint(p.out, "\r\033[K")
	}
}

func (p *progress) redraw() {
	if !p.tty {
		return
	}
	fmt.Fprintf(p.out, "\r%d/%d thumbnails (%d cached, %d failed)", p.done, p.total, p.cached, p.failed)
}

func (p *progress) finish() {
	if p.tty && p.done > 0 {
		fmt.Fprintln(p.out)
	}
}
