// Command poissongrid reconstructs an implicit surface from an ASCII oriented
// point cloud and writes the sampled grid as raw little endian float32 values
// in (i*res+j)*res+k order. Files named with a .zst suffix are zstd
// compressed.
package main

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/docker/go-units"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/soypat/poisson"
	"github.com/soypat/poisson/grid"
	"github.com/soypat/poisson/sample"
)

const (
	flagInput       = "input"
	flagOutput      = "output"
	flagConfig      = "config"
	flagDepth       = "depth"
	flagPointWeight = "point-weight"
	flagDegree      = "degree"
	flagSolver      = "solver"
	flagPrimal      = "primal"
	flagGridDepth   = "grid-depth"
	flagThreads     = "threads"
	flagMaxMemory   = "max-memory"
	flagVerbose     = "verbose"
)

func main() {
	if err := newApp(run).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "poissongrid:", err)
		os.Exit(1)
	}
}

func newApp(action cli.ActionFunc) *cli.App {
	return &cli.App{
		Name:  "poissongrid",
		Usage: "screened Poisson reconstruction of oriented points onto a dense grid",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     flagInput,
				Aliases:  []string{"i"},
				Required: true,
				Usage:    "read `FILE` of \"x y z nx ny nz\" lines, - for stdin",
			},
			&cli.StringFlag{
				Name:     flagOutput,
				Aliases:  []string{"o"},
				Required: true,
				Usage:    "write raw float32 grid to `FILE`, - for stdout",
			},
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load YAML parameters from `FILE`; flags override its values",
			},
			&cli.IntFlag{Name: flagDepth, Aliases: []string{"d"}, Value: 8, Usage: "maximum octree depth"},
			&cli.Float64Flag{Name: flagPointWeight, Value: 4, Usage: "screening weight of the samples"},
			&cli.IntFlag{Name: flagDegree, Value: 2, Usage: "B-spline degree, 2 or 4"},
			&cli.StringFlag{Name: flagSolver, Value: string(poisson.SolverCG), Usage: "linear solver, cg or gauss-seidel"},
			&cli.BoolFlag{Name: flagPrimal, Usage: "sample cell corners instead of cell centers"},
			&cli.IntFlag{Name: flagGridDepth, Value: grid.AutoDepth, Usage: "grid depth, -1 uses the octree depth"},
			&cli.IntFlag{Name: flagThreads, Aliases: []string{"t"}, Usage: "worker count, 0 uses all CPUs"},
			&cli.StringFlag{Name: flagMaxMemory, Value: "8GiB", Usage: "fail instead of allocating more than this"},
			&cli.BoolFlag{Name: flagVerbose, Aliases: []string{"v"}, Usage: "log progress to stderr"},
		},
		Action: action,
	}
}

func run(c *cli.Context) error {
	params, err := parameters(c)
	if err != nil {
		return err
	}
	logger := zap.NewNop()
	if params.Verbose {
		logger, err = zap.NewDevelopment()
		if err != nil {
			return err
		}
	}
	defer logger.Sync() //nolint:errcheck
	params.Logger = logger

	stream, err := openInput(c.String(flagInput))
	if err != nil {
		return err
	}
	im, err := poisson.Reconstruct(stream, params)
	if err != nil {
		return err
	}
	g, err := im.Grid(grid.Options{Depth: c.Int(flagGridDepth), Primal: c.Bool(flagPrimal)})
	if err != nil {
		return err
	}
	if err := writeGrid(c.String(flagOutput), g); err != nil {
		return err
	}
	logger.Info("grid written",
		zap.Int("res", g.Res),
		zap.Float32s("origin", []float32{g.Origin.X, g.Origin.Y, g.Origin.Z}),
		zap.Float32("spacing", g.Spacing),
		zap.String("size", units.BytesSize(float64(4*len(g.Values)))),
	)
	return nil
}

// parameters merges the YAML configuration with explicitly set flags.
func parameters(c *cli.Context) (poisson.SolutionParameters, error) {
	params := poisson.DefaultParameters(c.Int(flagDepth))
	if path := c.String(flagConfig); path != "" {
		fp, err := os.Open(path)
		if err != nil {
			return params, err
		}
		defer fp.Close()
		params, err = poisson.LoadParameters(fp)
		if err != nil {
			return params, errors.Wrapf(err, "config %s", path)
		}
		if params.Depth == 0 || c.IsSet(flagDepth) {
			params.Depth = c.Int(flagDepth)
		}
	}
	if c.IsSet(flagPointWeight) || c.String(flagConfig) == "" {
		params.PointWeight = c.Float64(flagPointWeight)
	}
	if c.IsSet(flagDegree) {
		params.Degree = c.Int(flagDegree)
	}
	if c.IsSet(flagSolver) {
		params.Solver = poisson.SolverKind(c.String(flagSolver))
	}
	if c.IsSet(flagThreads) {
		params.Threads = c.Int(flagThreads)
	}
	if c.IsSet(flagMaxMemory) || c.String(flagConfig) == "" {
		n, err := units.RAMInBytes(c.String(flagMaxMemory))
		if err != nil {
			return params, errors.Wrapf(err, "flag %s", flagMaxMemory)
		}
		params.MaxMemory = poisson.ByteSize(n)
	}
	if c.IsSet(flagVerbose) {
		params.Verbose = c.Bool(flagVerbose)
	}
	return params, nil
}

const zstdSuffix = ".zst"

// openInput returns a rewindable stream over the named file. Standard input
// and compressed files are buffered in memory since the reconstruction reads
// its samples twice.
func openInput(name string) (sample.Stream, error) {
	if name == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, err
		}
		return sample.NewReaderStream(bytes.NewReader(data)), nil
	}
	if strings.HasSuffix(name, zstdSuffix) {
		compressed, err := os.ReadFile(name)
		if err != nil {
			return nil, err
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		data, err := dec.DecodeAll(compressed, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "decompressing %s", name)
		}
		return sample.NewReaderStream(bytes.NewReader(data)), nil
	}
	fp, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	// The file stays open until the process exits.
	return sample.NewReaderStream(fp), nil
}

func writeGrid(name string, g *poisson.Grid) (err error) {
	var w io.Writer = os.Stdout
	if name != "-" {
		fp, cerr := os.Create(name)
		if cerr != nil {
			return cerr
		}
		defer func() {
			if cerr := fp.Close(); err == nil {
				err = cerr
			}
		}()
		w = fp
	}
	var enc *zstd.Encoder
	if strings.HasSuffix(name, zstdSuffix) {
		enc, err = zstd.NewWriter(w)
		if err != nil {
			return err
		}
		w = enc
	}
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, g.Values); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if enc != nil {
		return enc.Close()
	}
	return nil
}
