package system

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"idedisk/ata"
	"idedisk/buf"
	"idedisk/console"
	"idedisk/disk"
	"idedisk/ide"
)

const testFSSize = 64

func boot(t *testing.T, cfg Config) *System {
	t.Helper()
	if cfg.FSSize == 0 {
		cfg.FSSize = testFSSize
	}
	sys, err := InitializeSystem(cfg, nil, nil)
	if err != nil {
		t.Fatalf("InitializeSystem() error = %v", err)
	}
	sys.Boot()
	return sys
}

func shutdown(t *testing.T, sys *System) {
	t.Helper()
	if err := sys.Shutdown(); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestSystem_Workload(t *testing.T) {
	tests := []struct {
		name string
		w    Workload
	}{
		{"fs only", Workload{Workers: 4, Blocks: 8}},
		{"swap only", Workload{Pages: 6}},
		{"mixed", Workload{Workers: 3, Blocks: 5, Pages: 4}},
		{"more blocks than the fs holds", Workload{Workers: 4, Blocks: testFSSize}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys := boot(t, Config{})
			defer shutdown(t, sys)

			if err := sys.RunWorkload(context.Background(), tt.w); err != nil {
				t.Fatalf("RunWorkload() error = %v", err)
			}

			st := sys.Status()
			if st.Queue != 0 {
				t.Errorf("queue holds %d requests after the workload", st.Queue)
			}
			if st.Driver.Requests != st.Driver.Completed {
				t.Errorf("driver stats = %+v, want every request completed", st.Driver)
			}
			if st.Driver.SwapReads != tt.w.Pages || st.Driver.SwapWrites != tt.w.Pages {
				t.Errorf("driver stats = %+v, want %d swap pages each way", st.Driver, tt.w.Pages)
			}
			if st.Primary.Overlaps != 0 {
				t.Errorf("primary channel saw %d overlapping commands", st.Primary.Overlaps)
			}
		})
	}
}

func TestSystem_SwapInterruptsDropped(t *testing.T) {
	sys := boot(t, Config{})
	defer shutdown(t, sys)

	if err := sys.RunWorkload(context.Background(), Workload{Pages: 3}); err != nil {
		t.Fatalf("RunWorkload() error = %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		st := sys.Status()
		if st.Secondary.Interrupts > 0 && st.SwapIntrs == st.Secondary.Interrupts {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("router acked %d of %d swap interrupts", st.SwapIntrs, st.Secondary.Interrupts)
		}
		time.Sleep(time.Millisecond)
	}
	if st := sys.Status(); st.Driver.Spurious != 0 {
		t.Errorf("swap interrupts reached the driver: %d spurious", st.Driver.Spurious)
	}
}

func TestSystem_Halt(t *testing.T) {
	tests := []struct {
		name string
		op   func(sys *System) error
	}{
		{"buffer not busy", func(sys *System) error {
			return sys.Rw(&buf.Buf{Dev: ide.FSDev})
		}},
		{"block past fs end", func(sys *System) error {
			return sys.Rw(buf.New(ide.FSDev, testFSSize))
		}},
		{"short swap buffer", func(sys *System) error {
			return sys.ReadSwap(0, make([]byte, ata.SectorSize))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys := boot(t, Config{})
			defer shutdown(t, sys)

			defer func() {
				if recover() == nil {
					t.Errorf("system did not halt")
				}
			}()
			tt.op(sys)
		})
	}
}

func TestSystem_Run(t *testing.T) {
	sys := boot(t, Config{})
	defer shutdown(t, sys)

	err := sys.Run(func() error {
		return sys.Rw(&buf.Buf{Dev: ide.FSDev})
	})
	var h *Halt
	if !errors.As(err, &h) || !ide.IsFatal(err) {
		t.Fatalf("Run() error = %v, want a *Halt wrapping the fatal error", err)
	}

	if err := sys.Run(func() error { return nil }); err != nil {
		t.Errorf("Run() error = %v, want nil", err)
	}

	defer func() {
		if r := recover(); r != "not a halt" {
			t.Errorf("Run() recovered %v, want other panics passed through", r)
		}
	}()
	sys.Run(func() error { panic("not a halt") })
}

func TestSystem_ShutdownTwice(t *testing.T) {
	sys := boot(t, Config{})
	shutdown(t, sys)
	shutdown(t, sys)
}

func TestSystem_InjectCorruption(t *testing.T) {
	sys := boot(t, Config{})
	defer shutdown(t, sys)

	if err := sys.roundTrip(6, 4); err != nil {
		t.Fatalf("roundTrip() error = %v", err)
	}
	if err := sys.InjectCorruption(false, 6*buf.SectorsPerBlock+1); err != nil {
		t.Fatalf("InjectCorruption() error = %v", err)
	}
	if err := sys.Rw(buf.New(ide.FSDev, 6)); !errors.Is(err, ata.ErrIOFault) {
		t.Errorf("Rw() of a corrupted block error = %v, want an I/O fault", err)
	}
	// rewriting the block through the controller repairs it
	if err := sys.roundTrip(6, 5); err != nil {
		t.Errorf("roundTrip() after rewrite error = %v", err)
	}

	if err := sys.InjectCorruption(true, SwapSectors); err == nil {
		t.Errorf("InjectCorruption() past the swap disk end succeeded")
	}
}

func TestSystem_WorkloadConsole(t *testing.T) {
	var out syncBuffer
	sys, err := InitializeSystem(Config{FSSize: testFSSize}, console.NewSimple(&out), nil)
	if err != nil {
		t.Fatalf("InitializeSystem() error = %v", err)
	}
	defer shutdown(t, sys)
	sys.Boot()

	w := Workload{Workers: 6, Blocks: 4, Pages: 2}
	if err := sys.RunWorkload(context.Background(), w); err != nil {
		t.Fatalf("RunWorkload() error = %v", err)
	}

	// boot lines, one line per worker and one for the pager
	want := 2 + w.Workers + 1
	deadline := time.Now().Add(5 * time.Second)
	for out.lines() < want {
		if time.Now().After(deadline) {
			t.Fatalf("console got %d lines, want %d:\n%s", out.lines(), want, out.String())
		}
		time.Sleep(time.Millisecond)
	}
}

// syncBuffer is a bytes.Buffer safe for the console goroutine and the test
type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func (s *syncBuffer) lines() int {
	return strings.Count(s.String(), "\n")
}

func TestSystem_FaultsDoNotHalt(t *testing.T) {
	sys := boot(t, Config{})
	defer shutdown(t, sys)

	sys.InjectBadSector(false, 5*buf.SectorsPerBlock)
	sys.InjectBadSector(true, 3)

	if err := sys.Rw(buf.New(ide.FSDev, 5)); !errors.Is(err, ata.ErrIOFault) {
		t.Errorf("Rw() error = %v, want an I/O fault", err)
	}
	if err := sys.ReadSwap(0, make([]byte, ide.SwapSpan)); !errors.Is(err, ata.ErrIOFault) {
		t.Errorf("ReadSwap() error = %v, want an I/O fault", err)
	}
	err := sys.RunWorkload(context.Background(), Workload{Workers: 2, Blocks: 8})
	if !errors.Is(err, ata.ErrIOFault) {
		t.Errorf("RunWorkload() error = %v, want the fault on block 5", err)
	}
}

func TestSystem_Images(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		FSImage:   filepath.Join(dir, "fs.img"),
		SwapImage: filepath.Join(dir, "swap.img"),
		BootImage: filepath.Join(dir, "boot.img"),
		FSSize:    testFSSize,
	}
	for path, sectors := range map[string]uint32{
		cfg.FSImage:   testFSSize * buf.SectorsPerBlock,
		cfg.SwapImage: SwapSectors,
		cfg.BootImage: BootSectors,
	} {
		if err := disk.CreateImage(path, sectors); err != nil {
			t.Fatalf("CreateImage(%s) error = %v", path, err)
		}
	}

	sys := boot(t, cfg)
	b := buf.New(ide.FSDev, 7)
	pattern(b.Data[:], 0x3C)
	b.Flags.SetDirty(true)
	if err := sys.Rw(b); err != nil {
		t.Fatalf("Rw() error = %v", err)
	}
	shutdown(t, sys)

	d, err := disk.OpenImage(cfg.FSImage)
	if err != nil {
		t.Fatalf("OpenImage() error = %v", err)
	}
	defer d.Close()
	got := make([]byte, buf.BlockSize)
	if _, err := d.ReadAt(got, 7*buf.BlockSize); err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if !bytes.Equal(got, b.Data[:]) {
		t.Errorf("block 7 did not reach the image file")
	}
}

func TestSystem_ImageTooSmall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fs.img")
	if err := disk.CreateImage(path, 16); err != nil {
		t.Fatalf("CreateImage() error = %v", err)
	}
	if _, err := InitializeSystem(Config{FSImage: path, FSSize: testFSSize}, nil, nil); err == nil {
		t.Errorf("InitializeSystem() with a 16 sector fs image succeeded, want an error")
	}
}

func TestStatus_Dump(t *testing.T) {
	sys := boot(t, Config{})
	defer shutdown(t, sys)

	if err := sys.roundTrip(1, 1); err != nil {
		t.Fatalf("roundTrip() error = %v", err)
	}
	var out bytes.Buffer
	sys.Status().Dump(&out)
	for _, want := range []string{"requests      2", "completed      2", "ata0", "ata1"} {
		if !bytes.Contains(out.Bytes(), []byte(want)) {
			t.Errorf("Dump() = %q, want it to contain %q", out.String(), want)
		}
	}
}
