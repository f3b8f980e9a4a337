package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/gophersatwork/unicache"
)

var errUsage = errors.New("usage error")

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: false,
	})

	err := run(context.Background(), logger, os.Args[1:])
	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		usage()
		os.Exit(2)
	default:
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: unicache <command> [flags] [args]

Commands:
  store <path>           store a local file in the cache
  retrieve <id> <dest>   reconstruct a cached file at dest
  remove <id>            remove a file from the cache
  download <url>         download a URL and store it in the cache
  list                   list cached file ids
  stats                  show cache statistics

Common flags:
  -dir <path>            cache directory (default ~/.unicache)
  -block-size <bytes>    block size for fresh caches (default %d)
  -verify                re-hash blocks on retrieval
`, unicache.DefaultBlockSize)
}

// commonFlags registers the flags shared by every subcommand.
func commonFlags(fs *flag.FlagSet) (dir *string, blockSize *int, verify *bool) {
	dir = fs.String("dir", defaultCacheDir(), "cache directory")
	blockSize = fs.Int("block-size", unicache.DefaultBlockSize, "block size in bytes for fresh caches")
	verify = fs.Bool("verify", false, "re-hash blocks on retrieval")
	return dir, blockSize, verify
}

func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".unicache"
	}
	return filepath.Join(home, ".unicache")
}

func openCache(dir string, blockSize int, verify bool) (*unicache.Cache, error) {
	opts := []unicache.Option{unicache.WithBlockSize(blockSize)}
	if verify {
		opts = append(opts, unicache.WithVerifyOnRetrieve())
	}
	return unicache.Open(dir, opts...)
}

func run(ctx context.Context, logger *log.Logger, args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "store":
		return runStore(logger, rest)
	case "retrieve":
		return runRetrieve(logger, rest)
	case "remove":
		return runRemove(logger, rest)
	case "download":
		return runDownload(ctx, logger, rest)
	case "list":
		return runList(rest)
	case "stats":
		return runStats(rest)
	case "-h", "--help", "help":
		usage()
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func runStore(logger *log.Logger, args []string) error {
	fs := flag.NewFlagSet("store", flag.ContinueOnError)
	dir, blockSize, verify := commonFlags(fs)
	id := fs.String("id", "", "explicit file id (derived from content when empty)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: store takes exactly one path", errUsage)
	}
	path := fs.Arg(0)

	cache, err := openCache(*dir, *blockSize, *verify)
	if err != nil {
		return err
	}
	defer cache.Close()

	start := time.Now()
	fileID, err := cache.StoreFile(path, *id)
	if err != nil {
		return err
	}
	logger.Info("stored", "id", fileID, "path", path, "took", time.Since(start).Round(time.Millisecond))
	printStats(cache)
	return nil
}

func runRetrieve(logger *log.Logger, args []string) error {
	fs := flag.NewFlagSet("retrieve", flag.ContinueOnError)
	dir, blockSize, verify := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("%w: retrieve takes an id and a destination", errUsage)
	}
	id, dest := fs.Arg(0), fs.Arg(1)

	cache, err := openCache(*dir, *blockSize, *verify)
	if err != nil {
		return err
	}
	defer cache.Close()

	start := time.Now()
	if err := cache.RetrieveFile(id, dest); err != nil {
		return err
	}
	logger.Info("retrieved", "id", id, "dest", dest, "took", time.Since(start).Round(time.Millisecond))
	return nil
}

func runRemove(logger *log.Logger, args []string) error {
	fs := flag.NewFlagSet("remove", flag.ContinueOnError)
	dir, blockSize, verify := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: remove takes exactly one id", errUsage)
	}
	id := fs.Arg(0)

	cache, err := openCache(*dir, *blockSize, *verify)
	if err != nil {
		return err
	}
	defer cache.Close()

	if err := cache.RemoveFile(id); err != nil {
		return err
	}
	logger.Info("removed", "id", id)
	printStats(cache)
	return nil
}

func runDownload(ctx context.Context, logger *log.Logger, args []string) error {
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	dir, blockSize, verify := commonFlags(fs)
	id := fs.String("id", "", "explicit file id (derived from the URL when empty)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: download takes exactly one url", errUsage)
	}
	rawURL := fs.Arg(0)

	cache, err := openCache(*dir, *blockSize, *verify)
	if err != nil {
		return err
	}
	defer cache.Close()

	logger.Info("downloading", "url", rawURL)
	start := time.Now()
	fileID, err := cache.DownloadFile(ctx, rawURL, *id)
	if err != nil {
		return err
	}
	logger.Info("stored", "id", fileID, "took", time.Since(start).Round(time.Millisecond))
	printStats(cache)
	return nil
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	dir, blockSize, verify := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	cache, err := openCache(*dir, *blockSize, *verify)
	if err != nil {
		return err
	}
	defer cache.Close()

	for _, id := range cache.ListFiles() {
		fmt.Println(id)
	}
	return nil
}

func runStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	dir, blockSize, verify := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	cache, err := openCache(*dir, *blockSize, *verify)
	if err != nil {
		return err
	}
	defer cache.Close()

	fmt.Printf("Cache directory: %s\n", *dir)
	fmt.Printf("Block size: %s\n", humanize.IBytes(uint64(cache.BlockSize())))
	printStats(cache)
	return nil
}

func printStats(cache *unicache.Cache) {
	st := cache.Stats()
	fmt.Printf("Total blocks: %d\n", st.Blocks)
	fmt.Printf("Total files: %d\n", st.Files)
	fmt.Printf("Physical storage used: %s\n", humanize.IBytes(st.PhysicalBytes))
	fmt.Printf("Logical storage: %s\n", humanize.IBytes(st.LogicalBytes))
	fmt.Printf("Deduplication ratio: %.2fx\n", st.DedupRatio())
	if st.LogicalBytes > st.PhysicalBytes {
		fmt.Printf("Space saved: %s\n", humanize.IBytes(st.LogicalBytes-st.PhysicalBytes))
	}
}
