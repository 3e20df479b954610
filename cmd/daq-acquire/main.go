package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	yml "gopkg.in/yaml.v2"

	"github.com/daqio/acquire/calib"
	"github.com/daqio/acquire/comedi"
	"github.com/daqio/acquire/daq"
	"github.com/daqio/acquire/monitor"
	"github.com/daqio/acquire/ringbuf"
	"github.com/daqio/acquire/simdaq"
	"github.com/daqio/acquire/stream"
	"github.com/daqio/acquire/util"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "daq-acquire.yml"
	k              = koanf.New(".")
)

func setupconfig() {
	k.Load(structs.Provider(daq.DefaultConfig(), "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `daq-acquire streams calibrated, timestamped samples from a DAQ card to stdout,
one line per scan (or per averaged group of scans), suitable for piping into
downstream analysis tools.

Usage:
	daq-acquire <command> [options]

Commands:
	run
	info
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `daq-acquire reads its defaults from ` + ConfigFileName + ` when present; flags on the
run command override the file.

Options of run:
  -d <dev>     device file ("sim" for the simulated card)   default: /dev/comedi0
  -s <id>      subdevice id                                 default: 0
  -c <list>    channel list (by commas)                     default: 0
  -a <id>      aref id                                      default: 0 -> ground
  -r <id>      range id                                     default: 0
  -f <freq>    scan frequency in Hz                         default: 10000
  -n <num>     number of scans (0 = infinity)               default: 0
  -I <num>     integrate (average) this many scans per row  default: 1
  -T           absolute (wall clock) timestamps
  -v           verbose cursor diagnostics on stderr
  -cal <path>  software calibration file (YAML)
  -diag <addr> serve /status and /metrics on this address

Output is one line per row: the timestamp followed by one value per channel.
The timestamp is seconds since the start of the acquisition, or seconds since
the epoch with -T.  The scan period used for timestamps is the one the board
actually accepted, which may differ from the requested frequency; run with -v
to see it.

The info command prints the board name, driver, and a table of subdevices
with their buffer sizes, channel counts and ranges.`
	fmt.Println(str)
}

func mkconf() {
	c := daq.Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := daq.Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("daq-acquire version %v\n", Version)
}

func parseChannels(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		ch, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("bad channel %q: %w", p, err)
		}
		out = append(out, ch)
	}
	return out, nil
}

// runFlags is the run configuration beyond daq.Config: things that belong
// to this process, not to the acquisition itself.
type runFlags struct {
	calPath  string
	diagAddr string
}

func parseRunFlags(args []string) (daq.Config, runFlags, error) {
	cfg := daq.Config{}
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, runFlags{}, err
	}
	var (
		extra    runFlags
		channels string
	)
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.StringVar(&cfg.Device, "d", cfg.Device, "device file")
	fs.IntVar(&cfg.Subdevice, "s", cfg.Subdevice, "subdevice id")
	fs.StringVar(&channels, "c", util.IntSliceToCSV(cfg.Channels), "channel list (by commas)")
	fs.IntVar(&cfg.ARef, "a", cfg.ARef, "aref id")
	fs.IntVar(&cfg.Range, "r", cfg.Range, "range id")
	fs.Float64Var(&cfg.Frequency, "f", cfg.Frequency, "scan frequency, Hz")
	fs.IntVar(&cfg.NScan, "n", cfg.NScan, "number of scans, 0 = infinity")
	fs.IntVar(&cfg.Integrate, "I", cfg.Integrate, "scans to integrate per row")
	fs.BoolVar(&cfg.FullTime, "T", cfg.FullTime, "absolute timestamps")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "verbose diagnostics")
	fs.StringVar(&extra.calPath, "cal", "", "software calibration file")
	fs.StringVar(&extra.diagAddr, "diag", "", "diagnostics HTTP address")
	if err := fs.Parse(args); err != nil {
		return cfg, extra, err
	}
	chans, err := parseChannels(channels)
	if err != nil {
		return cfg, extra, err
	}
	cfg.Channels = chans
	return cfg, extra, nil
}

func openDevice(path string) (daq.Device, error) {
	if path == "sim" {
		return daq.OpenWithRetry(simdaq.Open(simdaq.Options{NChannels: 16}))
	}
	return daq.OpenWithRetry(comedi.Opener(path))
}

// bufferSource fetches the ring buffer capability for the subdevice from
// whichever device implementation we opened.
func bufferSource(dev daq.Device, subdevice int) (ringbuf.Source, error) {
	switch d := dev.(type) {
	case *simdaq.Device:
		return d.Buffer(subdevice)
	case *comedi.Device:
		return d.MapBuffer(subdevice)
	}
	return nil, fmt.Errorf("device %T does not expose a streaming buffer", dev)
}

func run(args []string) {
	cfg, extra, err := parseRunFlags(args)
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration: ", err)
	}

	dev, err := openDevice(cfg.Device)
	if err != nil {
		log.Fatalf("open %s: %v", cfg.Device, err)
	}
	defer dev.Close()

	flags, err := dev.SubdeviceFlags(cfg.Subdevice)
	if err != nil {
		log.Fatal(err)
	}

	soft := flags&daq.FlagSoftCalibrated != 0
	if soft && extra.calPath == "" {
		log.Fatal("board is software calibrated; pass the calibration file with -cal")
	}
	hw, _ := dev.(calib.HardwareCalibrator)
	conv, err := calib.Resolve(soft, hw, extra.calPath, cfg.Subdevice, cfg.Channels[0], cfg.Range)
	if err != nil {
		log.Fatal(err)
	}

	cmd, err := daq.PrepareTimedCommand(dev, cfg)
	if err != nil {
		log.Fatal(err)
	}
	period, err := daq.DoubleCheck(dev, cmd)
	if err != nil {
		log.Fatal(err)
	}
	if cfg.Verbose {
		log.Printf("command tested: channels %s, scan period %d ns",
			util.IntSliceToCSV(cfg.Channels), period)
	}

	src, err := bufferSource(dev, cfg.Subdevice)
	if err != nil {
		log.Fatal(err)
	}

	sess := &stream.Session{
		Source:    src,
		Converter: conv,
		Width:     daq.BytesPerSample(flags),
		Channels:  len(cfg.Channels),
		Integrate: cfg.Integrate,
		NScan:     cfg.NScan,
		PeriodNS:  period,
		Absolute:  cfg.FullTime,
		Out:       os.Stdout,
		Verbose:   cfg.Verbose,
		Start:     func() error { return dev.RunCommand(cmd) },
	}

	if extra.diagAddr != "" {
		go func() {
			if err := monitor.Serve(extra.diagAddr, sess); err != nil {
				log.Println("diagnostics server:", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	err = sess.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return // cooperative stop; partial accumulator is discarded
	}
	if err != nil {
		log.Fatal(err)
	}
}

func info(args []string) {
	cfg, _, err := parseRunFlags(args)
	if err != nil {
		log.Fatal(err)
	}
	dev, err := openDevice(cfg.Device)
	if err != nil {
		log.Fatalf("open %s: %v", cfg.Device, err)
	}
	defer dev.Close()

	in, ok := dev.(daq.Introspector)
	if !ok {
		log.Fatalf("device %T does not support introspection", dev)
	}
	fmt.Fprintf(os.Stderr, "Selected device: %s | Driver: %s\n\n", in.BoardName(), in.DriverName())
	fmt.Fprintf(os.Stderr, "Selected subdevice: %d\n", cfg.Subdevice)
	if flags, err := dev.SubdeviceFlags(cfg.Subdevice); err == nil {
		arefs := []string{}
		if flags&daq.FlagGround != 0 {
			arefs = append(arefs, fmt.Sprintf("ground(%d)", daq.ARefGround))
		}
		if flags&daq.FlagCommon != 0 {
			arefs = append(arefs, fmt.Sprintf("common(%d)", daq.ARefCommon))
		}
		if flags&daq.FlagDiff != 0 {
			arefs = append(arefs, fmt.Sprintf("diff(%d)", daq.ARefDiff))
		}
		if flags&daq.FlagOther != 0 {
			arefs = append(arefs, fmt.Sprintf("other(%d)", daq.ARefOther))
		}
		fmt.Fprintf(os.Stderr, "  - ARef(id): %s\n", strings.Join(arefs, " "))
	}
	if n, err := in.NRanges(cfg.Subdevice, 0); err == nil {
		fmt.Fprintf(os.Stderr, "  - Range(id): ")
		for i := 0; i < n; i++ {
			if r, err := in.RangeInfo(cfg.Subdevice, 0, i); err == nil {
				fmt.Fprintf(os.Stderr, "[%g, %g](%d) ", r.Min, r.Max, i)
			}
		}
		fmt.Fprintln(os.Stderr)
	}
	fmt.Fprintf(os.Stderr, "Selected channels: %s\n\n", util.IntSliceToCSV(cfg.Channels))

	types := []string{
		"(unused)", "AI", "AO", "DI", "DO", "DIO", "Counter",
		"Timer", "Memory", "Calibration", "Processor", "Serial IO", "PulseWidthM",
	}
	fmt.Fprintf(os.Stderr, "Subdev | Type        | Buffer   | Channels | Ranges   \n")
	fmt.Fprintf(os.Stderr, "------------------------------------------------------\n")
	for i := 0; i < in.NSubdevices(); i++ {
		name := "(unknown)"
		if t, err := in.SubdeviceType(i); err == nil && t >= 0 && t < len(types) {
			name = types[t]
		}
		size, _ := dev.BufferSize(i)
		nchan, _ := in.NChannels(i)
		nrng, _ := in.NRanges(i, 0)
		fmt.Fprintf(os.Stderr, "%6d | %-11s | %8d | %8d | %8d\n", i, name, size, nchan, nrng)
	}
	fmt.Fprintln(os.Stderr)
}

func main() {
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd := strings.ToLower(args[1])
	rest := args[2:]
	switch cmd {
	case "help":
		help()
	case "info":
		info(rest)
	case "mkconf":
		mkconf()
	case "conf":
		printconf()
	case "run":
		run(rest)
	case "version":
		pversion()
	default:
		log.Fatal("unknown command")
	}
}
