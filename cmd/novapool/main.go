// Command novapool drives a buffer pool from the command line: a concurrent
// fetch/unpin benchmark, page inspection and config inspection.
package main

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"sync/atomic"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"
	"github.com/sourcegraph/conc"
	"github.com/zeebo/blake3"

	"github.com/tuannm99/novapool/internal"
	"github.com/tuannm99/novapool/internal/engine"
	"github.com/tuannm99/novapool/internal/logging"
	"github.com/tuannm99/novapool/internal/storage"
)

const version = "0.1.0"

// Globals are flags shared by every command.
type Globals struct {
	Config string `name:"config" short:"c" help:"Path to YAML config file" type:"path"`
}

var CLI struct {
	Globals

	Bench      BenchCmd      `cmd:"" help:"Run a concurrent fetch/unpin workload against the pool"`
	Inspect    InspectCmd    `cmd:"" help:"Fetch pages and print their digests"`
	ShowConfig ShowConfigCmd `cmd:"" name:"config" help:"Print the effective configuration"`
	Version    VersionCmd    `cmd:"" help:"Print version information"`
}

func loadConfig(g *Globals) (*internal.NovaPoolConfig, *slog.Logger, error) {
	cfg, err := internal.LoadConfig(g.Config)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.Setup(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func openEngine(g *Globals) (*engine.Engine, error) {
	cfg, logger, err := loadConfig(g)
	if err != nil {
		return nil, err
	}
	return engine.Open(cfg, logger)
}

// BenchCmd hammers the pool with random fetches from several goroutines.
type BenchCmd struct {
	Workers    int           `default:"4" help:"Concurrent workers"`
	Ops        int           `default:"10000" help:"Fetches per worker"`
	Pages      int           `default:"256" help:"Working set size in pages"`
	WriteRatio float64       `name:"write-ratio" default:"0.2" help:"Fraction of fetches that modify the page"`
	Seed       uint64        `default:"1" help:"Random seed"`
	Wait       time.Duration `default:"5s" help:"Max wait for a free frame per fetch"`
}

// Each worker writes only its own 8-byte slot after the page header.
const benchSlotBase = 8

func (c *BenchCmd) Run(g *Globals) (err error) {
	maxWorkers := (storage.PageSize - benchSlotBase) / 8
	if c.Workers <= 0 || c.Workers > maxWorkers {
		return fmt.Errorf("workers must be in [1, %d]", maxWorkers)
	}
	if c.Pages <= 0 || c.Ops < 0 {
		return fmt.Errorf("pages must be positive and ops non-negative")
	}

	eng, err := openEngine(g)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, eng.Close())
	}()

	ids := make([]storage.PageID, 0, c.Pages)
	for range c.Pages {
		page, err := eng.Pool.NewPage()
		if err != nil {
			return fmt.Errorf("seed pages: %w", err)
		}
		binary.LittleEndian.PutUint32(page.Data(), uint32(page.ID()))
		ids = append(ids, page.ID())
		if err := page.Unpin(true); err != nil {
			return err
		}
	}

	var (
		wg       conc.WaitGroup
		failures atomic.Int64
		writes   atomic.Int64
	)
	start := time.Now()
	for w := range c.Workers {
		wg.Go(func() {
			rng := rand.New(rand.NewPCG(c.Seed, uint64(w)))
			off := benchSlotBase + w*8
			for range c.Ops {
				id := ids[rng.IntN(len(ids))]

				ctx, cancel := context.WithTimeout(context.Background(), c.Wait)
				page, err := eng.Pool.FetchPageWait(ctx, id)
				cancel()
				if err != nil {
					failures.Add(1)
					continue
				}

				dirty := rng.Float64() < c.WriteRatio
				if dirty {
					slot := page.Data()[off : off+8]
					binary.LittleEndian.PutUint64(slot, binary.LittleEndian.Uint64(slot)+1)
					writes.Add(1)
				}
				if err := page.Unpin(dirty); err != nil {
					failures.Add(1)
				}
			}
		})
	}
	wg.Wait()
	elapsed := time.Since(start)

	failed, flushErr := eng.Pool.FlushAll()
	st := eng.Pool.Stats()

	total := int64(c.Workers * c.Ops)
	fmt.Println("Benchmark")
	fmt.Println("---------")
	fmt.Printf("  Storage:        %s (%s)\n", eng.Config.Storage.Mode, eng.Config.Storage.Workdir)
	fmt.Printf("  Pool:           %d frames, %s, policy %s\n",
		st.Capacity, humanize.IBytes(uint64(st.Capacity)*storage.PageSize), eng.Config.Pool.Policy)
	fmt.Printf("  Working set:    %d pages (%s)\n", c.Pages, humanize.IBytes(uint64(c.Pages)*storage.PageSize))
	fmt.Printf("  Fetches:        %s in %s (%s/s)\n",
		humanize.Comma(total), elapsed.Round(time.Millisecond), humanize.Comma(int64(float64(total)/elapsed.Seconds())))
	fmt.Printf("  Modified:       %s\n", humanize.Comma(writes.Load()))
	fmt.Printf("  Failures:       %s\n", humanize.Comma(failures.Load()))
	if hm := st.Hits + st.Misses; hm > 0 {
		fmt.Printf("  Hit ratio:      %.2f%%\n", 100*float64(st.Hits)/float64(hm))
	}
	fmt.Printf("  Evictions:      %s\n", humanize.Comma(int64(st.Evictions)))
	fmt.Printf("  Write-backs:    %s\n", humanize.Comma(int64(st.WriteBacks)))

	if flushErr != nil {
		return fmt.Errorf("flush %d pages %v: %w", len(failed), failed, flushErr)
	}
	return nil
}

// InspectCmd prints a digest and the leading bytes of each page.
type InspectCmd struct {
	Pages []uint32 `arg:"" help:"Page ids to inspect"`
	Bytes int      `default:"16" help:"Leading bytes to dump"`
}

func (c *InspectCmd) Run(g *Globals) (err error) {
	eng, err := openEngine(g)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, eng.Close())
	}()

	n := min(max(c.Bytes, 0), storage.PageSize)
	for _, raw := range c.Pages {
		id := storage.PageID(raw)
		page, err := eng.Pool.FetchPage(id)
		if err != nil {
			return fmt.Errorf("page %d: %w", id, err)
		}
		sum := blake3.Sum256(page.Data())
		fmt.Printf("page %-8d frame %-4d blake3 %s\n", id, page.FrameID(), hex.EncodeToString(sum[:]))
		if n > 0 {
			fmt.Printf("  %s\n", hex.EncodeToString(page.Data()[:n]))
		}
		if err := page.Unpin(false); err != nil {
			return err
		}
	}
	return nil
}

// ShowConfigCmd prints the configuration after defaults and env overrides.
type ShowConfigCmd struct{}

func (c *ShowConfigCmd) Run(g *Globals) error {
	cfg, _, err := loadConfig(g)
	if err != nil {
		return err
	}
	fmt.Printf("app_name:            %s\n", cfg.AppName)
	fmt.Printf("storage.mode:        %s\n", cfg.Storage.Mode)
	fmt.Printf("storage.workdir:     %s\n", cfg.Storage.Workdir)
	fmt.Printf("storage.base:        %s\n", cfg.Storage.Base)
	fmt.Printf("pool.capacity:       %d (%s)\n", cfg.Pool.Capacity,
		humanize.IBytes(uint64(cfg.Pool.Capacity)*storage.PageSize))
	fmt.Printf("pool.policy:         %s\n", cfg.Pool.Policy)
	fmt.Printf("pool.fetch_timeout:  %s\n", cfg.Pool.FetchTimeout)
	fmt.Printf("log.level:           %s\n", cfg.Log.Level)
	fmt.Printf("log.format:          %s\n", cfg.Log.Format)
	return nil
}

type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("novapool %s (page size %s)\n", version, humanize.IBytes(storage.PageSize))
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("novapool"),
		kong.Description("Fixed-capacity page buffer pool"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run(&CLI.Globals)
	ctx.FatalIfErrorf(err)
}
