package system

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"idedisk/ata"
	"idedisk/buf"
	"idedisk/ide"
)

// Workload describes demo traffic: Workers goroutines each writing and
// reading back Blocks filesystem blocks of their own, while a pager writes
// and reads back Pages swap pages.
type Workload struct {
	Workers int
	Blocks  int
	Pages   int
}

// ErrMismatch is returned when data read back differs from what was written
var ErrMismatch = errors.New("system: read back differs from written data")

// RunWorkload runs w until it is done, ctx is cancelled or some transfer
// fails. Drive faults end the run with their error, a halt in any worker
// with a *Halt.
func (sys *System) RunWorkload(ctx context.Context, w Workload) error {
	if w.Workers > 0 && w.Workers*w.Blocks > int(sys.Driver.FSSize()) {
		// workers must not share blocks
		w.Blocks = int(sys.Driver.FSSize()) / w.Workers
	}
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < w.Workers; i++ {
		g.Go(func() error {
			return sys.Run(func() error {
				return sys.fsWorker(ctx, i, w.Blocks)
			})
		})
	}

	if w.Pages > 0 {
		g.Go(func() error {
			return sys.Run(func() error {
				return sys.pager(ctx, w.Pages)
			})
		})
	}
	return g.Wait()
}

// fsWorker writes and reads back blocks i*blocks up to (i+1)*blocks
func (sys *System) fsWorker(ctx context.Context, i, blocks int) error {
	for j := 0; j < blocks; j++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		blockno := uint32(i*blocks + j)
		if err := sys.roundTrip(blockno, byte(i+j)); err != nil {
			return err
		}
	}
	sys.WriteConsole(fmt.Sprintf("worker %d: %d blocks verified", i, blocks))
	return nil
}

// pager writes and reads back pages swap pages, wrapping around the disk
func (sys *System) pager(ctx context.Context, pages int) error {
	src := make([]byte, ide.SwapSpan)
	dst := make([]byte, ide.SwapSpan)
	for p := 0; p < pages; p++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		secno := uint32(p%(SwapSectors/ide.SwapSectors)) * ide.SwapSectors
		pattern(src, byte(p))
		if err := sys.WriteSwap(secno, src); err != nil {
			return err
		}
		if err := sys.ReadSwap(secno, dst); err != nil {
			return err
		}
		if !bytes.Equal(src, dst) {
			return fmt.Errorf("swap sector %d: %w", secno, ErrMismatch)
		}
	}
	sys.WriteConsole(fmt.Sprintf("pager: %d pages verified", pages))
	return nil
}

// roundTrip writes a patterned block and reads it back into a fresh buffer
func (sys *System) roundTrip(blockno uint32, seed byte) error {
	w := buf.New(ide.FSDev, blockno)
	pattern(w.Data[:], seed)
	w.Flags.SetDirty(true)
	if err := sys.Rw(w); err != nil {
		return err
	}

	r := buf.New(ide.FSDev, blockno)
	if err := sys.Rw(r); err != nil {
		return err
	}
	if !bytes.Equal(w.Data[:], r.Data[:]) {
		return fmt.Errorf("block %d: %w", blockno, ErrMismatch)
	}
	return nil
}

// pattern fills p with bytes that differ from sector to sector
func pattern(p []byte, seed byte) {
	for i := range p {
		p[i] = seed ^ byte(i) ^ byte(i/ata.SectorSize)
	}
}
