package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/banshee-data/retarget/internal/alignment"
	"github.com/banshee-data/retarget/internal/backend"
	"github.com/banshee-data/retarget/internal/config"
	"github.com/banshee-data/retarget/internal/mapping"
	"github.com/banshee-data/retarget/internal/monitor"
	"github.com/banshee-data/retarget/internal/retarget"
	"github.com/banshee-data/retarget/internal/skeleton"
	"github.com/banshee-data/retarget/internal/store"
	"github.com/banshee-data/retarget/internal/stream"
)

func loadConfig(path string) (*config.RetargetConfig, error) {
	if path == "" {
		return config.DefaultRetargetConfig(), nil
	}
	return config.LoadRetargetConfig(path)
}

func loadSkeleton(path string, typ skeleton.Type) (*skeleton.Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var d skeleton.Description
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if d.Type() != typ {
		return nil, fmt.Errorf("%s: %s skeleton, want %s", path, d.Type(), typ)
	}
	return &d, nil
}

// alignTarget fits the min and max T-poses of tgt onto the source T-pose.
func alignTarget(src, tgt *skeleton.Description, s alignment.Settings, out io.Writer) error {
	for _, t := range []skeleton.TPoseType{skeleton.TPoseMin, skeleton.TPoseMax} {
		rig := alignment.NewRig(tgt, t)
		a := alignment.New(src, src.WorldTPose(t), rig, s)
		if scale, ok := a.DesiredScale(); ok {
			fmt.Fprintf(out, "%s T-pose: desired scale %.3f\n", t, scale)
		}
		a.AutoAlign()
		if err := rig.Commit(t); err != nil {
			return fmt.Errorf("commit %s T-pose: %w", t, err)
		}
	}
	return nil
}

func runMap(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("map", flag.ContinueOnError)
	sourcePath := fs.String("source", "", "Source skeleton description JSON (required)")
	targetPath := fs.String("target", "", "Target skeleton description JSON (required)")
	dbPath := fs.String("db", "retarget.db", "SQLite database path")
	cfgPath := fs.String("config", "", "Tuning configuration JSON")
	name := fs.String("name", "", "Config name (defaults to the target file name)")
	align := fs.Bool("align", false, "Auto-align the target min/max T-poses to the source first")
	outPath := fs.String("out", "", "Also write the config JSON to this file")
	verbose := fs.Bool("v", false, "Log mapping and alignment diagnostics to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *verbose {
		mapping.SetLogWriters(os.Stderr, os.Stderr)
		alignment.SetDebugLogger(os.Stderr)
		defer mapping.SetLogWriters(nil, nil)
		defer alignment.SetDebugLogger(nil)
	}
	if *sourcePath == "" || *targetPath == "" {
		return errors.New("--source and --target are required")
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	src, err := loadSkeleton(*sourcePath, skeleton.Source)
	if err != nil {
		return err
	}
	tgt, err := loadSkeleton(*targetPath, skeleton.Target)
	if err != nil {
		return err
	}
	if *align {
		if err := alignTarget(src, tgt, cfg.AlignmentSettings(), out); err != nil {
			return err
		}
	}

	params, err := backend.NewConfigInitParams(src, tgt, cfg.MappingOptions())
	if err != nil {
		return err
	}
	if *outPath != "" {
		data, err := params.Marshal()
		if err != nil {
			return err
		}
		if err := os.WriteFile(*outPath, data, 0644); err != nil {
			return err
		}
	}

	db, err := store.Open(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if *name == "" {
		*name = filepath.Base(*targetPath)
	}
	id, err := db.SaveConfig(*name, params)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "stored config %s (%d source joints, %d target joints, %d/%d mappings)\n",
		id, src.JointCount(), tgt.JointCount(), len(params.MinMappings.Mappings), len(params.MaxMappings.Mappings))
	return nil
}

func runReplay(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	dbPath := fs.String("db", "retarget.db", "SQLite database path")
	id := fs.String("id", "", "Config id to replay (required)")
	cfgPath := fs.String("config", "", "Tuning configuration JSON")
	frames := fs.Int("frames", 120, "Number of frames to run")
	scale := fs.Float64("scale", 1, "Synthetic source body scale")
	swing := fs.Float64("swing", 30, "Arm swing amplitude in degrees")
	walk := fs.Float64("walk", 0.01, "Root travel per frame")
	halfBody := fs.Int("halfbody-every", 0, "Alternate full/half body every N frames (0 disables)")
	calibrateAt := fs.Int("calibrate-at", -1, "Lock calibration after this frame (-1 disables)")
	streamPath := fs.String("out", "", "Write the frame stream to this file")
	plotDir := fs.String("plots", "", "Write scales.png to this directory")
	chartPath := fs.String("chart", "", "Write an HTML scale chart to this file")
	diag := fs.Bool("diag", false, "Log retargeter diagnostics to stderr")
	trace := fs.Bool("trace", false, "Log per-frame trace to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("--id is required")
	}

	logs := retarget.LogWriters{Ops: os.Stderr}
	if *diag {
		logs.Diag = os.Stderr
	}
	if *trace {
		logs.Trace = os.Stderr
	}
	retarget.SetLogWriters(logs)
	defer retarget.SetLogWriters(retarget.LogWriters{})

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	db, err := store.Open(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	rec, err := db.LoadConfig(*id)
	if err != nil {
		return err
	}
	data, err := rec.Params.Marshal()
	if err != nil {
		return err
	}

	r, err := retarget.New(backend.NewReference(), cfg.Settings(), retarget.Pipeline{})
	if err != nil {
		return err
	}
	if err := r.Setup(data); err != nil {
		return err
	}
	defer r.Dispose()

	var sw *stream.Writer
	if *streamPath != "" {
		f, err := os.Create(*streamPath)
		if err != nil {
			return err
		}
		defer f.Close()
		sw = stream.NewWriter(f)
	}

	src := retarget.NewSynthetic(rec.Params.Source, retarget.SyntheticOptions{
		Scale:         *scale,
		SwingDegrees:  *swing,
		WalkSpeed:     *walk,
		HalfBodyEvery: *halfBody,
	})
	plotter := monitor.NewScalePlotter()
	for i := 0; i < *frames; i++ {
		res, ok := r.Update(src)
		if ok {
			res, ok = r.LateUpdate(nil)
		}
		plotter.Sample(res, r.CurrentScale(), ok)
		if ok && sw != nil {
			if err := sw.Write(stream.FromResult(res)); err != nil {
				return err
			}
		}
		if i == *calibrateAt {
			if err := r.Calibrate(); err != nil {
				return err
			}
		}
		src.Advance()
	}

	if *plotDir != "" {
		file, err := plotter.GeneratePlot(*plotDir, strings.TrimSuffix(rec.Name, filepath.Ext(rec.Name)))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %s\n", file)
	}
	if *chartPath != "" {
		f, err := os.Create(*chartPath)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := monitor.WriteScaleChart(f, "Replay "+rec.Name, plotter.Samples()); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %s\n", *chartPath)
	}

	written := uint64(0)
	if sw != nil {
		written = sw.Count()
	}
	fmt.Fprintf(out, "replayed %d frames (%d dropped, %d streamed), scale %.3f\n",
		*frames, plotter.Dropped(), written, r.CurrentScale())
	return nil
}

func runList(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	dbPath := fs.String("db", "retarget.db", "SQLite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	db, err := store.Open(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	configs, err := db.ListConfigs()
	if err != nil {
		return err
	}
	for _, c := range configs {
		fmt.Fprintf(out, "%s\t%s\t%d\t%d\t%s\n", c.ID, c.Name, c.SourceJoints, c.TargetJoints, c.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func runDebug(args []string) error {
	fs := flag.NewFlagSet("debug", flag.ContinueOnError)
	dbPath := fs.String("db", "retarget.db", "SQLite database path")
	listen := fs.String("listen", "localhost:8090", "Listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := store.Open(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	mux := http.NewServeMux()
	if err := db.AttachDebugRoutes(mux); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{Addr: *listen, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()
	log.Printf("serving debug pages on http://%s/debug/", *listen)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
