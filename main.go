package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jroimartin/gocui"
	"github.com/spf13/cobra"

	"idedisk/buf"
	"idedisk/console"
	"idedisk/disk"
	"idedisk/ide"
	"idedisk/logger"
	"idedisk/system"
)

func main() {
	root := &cobra.Command{
		Use:   "idedisk",
		Short: "PIO IDE disk driver on an emulated two-channel controller",
	}

	var (
		cfg      system.Config
		workload system.Workload
		inj      faults
	)
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Boot the emulated controller and drive a workload through the driver",
		RunE: func(_ *cobra.Command, _ []string) error {
			if cfg.Headless {
				return runHeadless(cfg, workload, inj)
			}
			return runGui(cfg, workload, inj)
		},
	}
	runCmd.Flags().StringVar(&cfg.FSImage, "fs", "", "filesystem disk image (in memory if empty)")
	runCmd.Flags().StringVar(&cfg.SwapImage, "swap", "", "swap disk image (in memory if empty)")
	runCmd.Flags().StringVar(&cfg.BootImage, "boot", "", "boot disk image (in memory if empty)")
	runCmd.Flags().Uint32Var(&cfg.FSSize, "fs-size", ide.DefaultFSSize, "filesystem size in blocks")
	runCmd.Flags().StringVar(&cfg.LogPath, "log", "", "log file (stdout if empty)")
	runCmd.Flags().BoolVar(&cfg.Headless, "headless", false, "no terminal UI, console on stdout")
	runCmd.Flags().IntVar(&workload.Workers, "workers", 4, "concurrent filesystem submitters")
	runCmd.Flags().IntVar(&workload.Blocks, "blocks", 64, "blocks written and read back per submitter")
	runCmd.Flags().IntVar(&workload.Pages, "pages", 32, "swap pages written and read back")
	runCmd.Flags().UintSliceVar(&inj.bad, "bad-sector", nil, "fs disk sectors to mark unusable")
	runCmd.Flags().UintSliceVar(&inj.corrupt, "corrupt", nil, "fs disk sectors to damage behind the controller")
	root.AddCommand(runCmd)

	var (
		out     string
		kind    string
		sectors uint32
	)
	mkimageCmd := &cobra.Command{
		Use:   "mkimage --out <image>",
		Short: "Create a zero filled raw disk image",
		RunE: func(_ *cobra.Command, _ []string) error {
			if sectors == 0 {
				switch kind {
				case "fs":
					sectors = ide.DefaultFSSize * buf.SectorsPerBlock
				case "swap":
					sectors = system.SwapSectors
				case "boot":
					sectors = system.BootSectors
				default:
					return fmt.Errorf("unknown image kind %q, want fs, swap or boot", kind)
				}
			}
			if err := disk.CreateImage(out, sectors); err != nil {
				return err
			}
			fmt.Printf("%s: %d sectors\n", out, sectors)
			return nil
		},
	}
	mkimageCmd.Flags().StringVar(&out, "out", "", "output image file")
	mkimageCmd.Flags().StringVar(&kind, "kind", "fs", "fs|swap|boot, sizes the image when --sectors is 0")
	mkimageCmd.Flags().Uint32Var(&sectors, "sectors", 0, "image size in sectors")
	_ = mkimageCmd.MarkFlagRequired("out")
	root.AddCommand(mkimageCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// faults to inject into the fs disk before booting
type faults struct {
	bad     []uint
	corrupt []uint
}

func (f faults) inject(sys *system.System) error {
	for _, lba := range f.bad {
		sys.InjectBadSector(false, uint32(lba))
	}
	for _, lba := range f.corrupt {
		if err := sys.InjectCorruption(false, uint32(lba)); err != nil {
			return fmt.Errorf("corrupting sector %d: %w", lba, err)
		}
	}
	return nil
}

func runHeadless(cfg system.Config, w system.Workload, f faults) error {
	l := logger.New(cfg.LogPath)
	sys, err := system.InitializeSystem(cfg, console.NewSimple(os.Stdout), l)
	if err != nil {
		return err
	}
	defer sys.Shutdown()

	if err := f.inject(sys); err != nil {
		return err
	}
	err = sys.Run(func() error {
		sys.Boot()
		return sys.RunWorkload(context.Background(), w)
	})
	sys.Status().Dump(os.Stdout)
	return err
}

func runGui(cfg system.Config, w system.Workload, f faults) error {
	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		log.Panicln("Couldn't create gui!")
	}
	defer g.Close()

	g.SetManagerFunc(layout)

	if err := g.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, quit); err != nil {
		log.Panicln(err)
	}

	if cfg.LogPath == "" {
		// stdout belongs to the UI
		cfg.LogPath = "idedisk.log"
	}
	sys, err := system.InitializeSystem(cfg, console.NewGui(g, "console"), logger.New(cfg.LogPath))
	if err != nil {
		return err
	}
	defer sys.Shutdown()

	if err := f.inject(sys); err != nil {
		return err
	}

	// set from the main loop only
	var halted error

	// start the machine once the views exist
	g.Update(func(g *gocui.Gui) error {
		go func() {
			var h *system.Halt
			if err := startWorkload(sys, w); errors.As(err, &h) {
				// leave the UI so the terminal is restored
				g.Update(func(*gocui.Gui) error {
					halted = h
					return gocui.ErrQuit
				})
			}
		}()
		updateStatus(sys, g)
		return nil
	})

	if err := g.MainLoop(); err != nil && err != gocui.ErrQuit {
		log.Panicln(err)
	}
	return halted
}

// startWorkload boots the system and runs w, reporting on the console view
func startWorkload(sys *system.System, w system.Workload) error {
	return sys.Run(func() error {
		sys.Boot()
		start := time.Now()
		if err := sys.RunWorkload(context.Background(), w); err != nil {
			sys.WriteConsole(fmt.Sprintf("workload: %v", err))
			return err
		}
		sys.WriteConsole(fmt.Sprintf("workload done in %v", time.Since(start)))
		return nil
	})
}

// update status and request views
// has to be run in go routine -> gocui allows updating the view only through Update function
func updateStatus(sys *system.System, g *gocui.Gui) {
	ticker := time.NewTicker(time.Second / 4)

	go func() {
		i := 0
		for range ticker.C {
			st := sys.Status()
			g.Update(func(g *gocui.Gui) error {
				v, err := g.View("status")
				if err != nil {
					return err
				}
				v.Clear()
				st.Dump(v)
				fmt.Fprintf(v, " <t : 0x%x>", i)

				v, err = g.View("trace")
				if err != nil {
					return err
				}
				v.Clear()
				_, rows := v.Size()
				rows = max(rows, 0)
				lines := sys.History()
				if len(lines) > rows {
					lines = lines[len(lines)-rows:]
				}
				for _, line := range lines {
					fmt.Fprintln(v, line)
				}
				return nil
			})
			i++
		}
	}()
}

// gocui layout
func layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()
	// up left -> console
	if v, err := g.SetView("console", 0, 0, maxX/2-1, maxY-8); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Console"
		v.Autoscroll = true
	}

	// up right -> recent request transitions
	if v, err := g.SetView("trace", maxX/2, 0, maxX-1, maxY-8); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Requests"
	}

	// down -> controller and driver counters
	if v, err := g.SetView("status", 0, maxY-7, maxX-1, maxY-1); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Status"
	}
	return nil
}

func quit(g *gocui.Gui, v *gocui.View) error {
	return gocui.ErrQuit
}
