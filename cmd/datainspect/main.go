package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"datainspect/internal/app"
	"datainspect/pkg/config"
	"datainspect/pkg/inspecterr"
	"datainspect/pkg/visualization"
)

// loadConfig reads the config file and, when --project is given, replaces
// its project section with the standalone project document
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if p := cmd.String("project"); p != "" {
		project, err := config.LoadProject(p)
		if err != nil {
			return nil, err
		}
		cfg.Project = *project
	}

	if w := cmd.Int("workers"); w > 0 {
		cfg.Prefetch.MaxWorkers = int(w)
	}

	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := app.Run(ctx, app.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

// walk steps through every index like holding the "next" key, waiting for
// prefetch after each step, and reports how many files had to be decoded
func walk(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := app.NewLogger(os.Stderr, cfg.App.LogLevel, false)
	session, err := app.NewSession(cfg, logger, nil)
	if err != nil {
		return fmt.Errorf("open project: %w", err)
	}
	defer session.Close()

	nav := session.Navigator
	snapshots := cmd.String("snapshots")
	axis := cmd.String("axis")
	showStats := cmd.Bool("stats")

	fmt.Println("================================")
	fmt.Printf("WALKING PROJECT %q\n", cfg.Project.Name)
	fmt.Println("================================")
	if st := nav.Status(); st.Warning != "" {
		fmt.Printf("Warning: %s\n", st.Warning)
	}
	fmt.Printf("Sources: %d, navigable length: %d\n", len(nav.Sources()), nav.Length())
	fmt.Printf("Prefetch: next=%v previous=%v\n\n", cfg.Project.PrefetchNext, cfg.Project.PrefetchPrevious)

	startTime := time.Now()
	failures := 0

	for i := 0; i < nav.Length(); i++ {
		before := session.Decoder.Total()

		var stepErr error
		if i == 0 {
			stepErr = nav.Refresh(ctx)
		} else {
			_, stepErr = nav.SetIndex(ctx, i)
			if stderrors.Is(stepErr, inspecterr.ErrCacheBusy) {
				_ = nav.Wait()
				_, stepErr = nav.SetIndex(ctx, i)
			}
		}
		if stepErr != nil {
			failures++
			fmt.Printf("[%4d] error: %v\n", i, stepErr)
		}

		syncDecodes := session.Decoder.Total() - before
		_ = nav.Wait()
		prefetched := session.Decoder.Total() - before - syncDecodes

		st := nav.Status()
		fmt.Printf("[%4d] decoded on step: %d, prefetched: %d, cached: %d\n",
			i, syncDecodes, prefetched, len(st.Cached))
		if showStats {
			fmt.Printf("       cache memory: %.1f MiB\n", float64(st.CacheBytes)/(1<<20))
		}

		for _, layer := range session.Layers.Layers() {
			if showStats {
				mean, std := layer.Data.Stats()
				lo, hi := layer.Data.Range()
				fmt.Printf("       %-30s shape=%v min=%.3f max=%.3f mean=%.3f std=%.3f\n",
					layer.Name, layer.Data.Shape, lo, hi, mean, std)
			}
			if snapshots != "" {
				if err := saveSnapshot(session.Layers, layer.Key.Source, axis, snapshots, i); err != nil {
					slog.Warn("snapshot failed",
						slog.String("source", layer.Key.Source),
						slog.Int("index", i),
						slog.String("error", err.Error()))
				}
			}
		}
	}

	elapsed := time.Since(startTime)
	fmt.Printf("\nWalk completed in %.2f seconds\n", elapsed.Seconds())
	fmt.Printf("- Total decodes: %d\n", session.Decoder.Total())
	fmt.Printf("- Steps with errors: %d\n", failures)
	if snapshots != "" {
		fmt.Printf("- Snapshots saved to: %s\n", snapshots)
	}

	return nil
}

func saveSnapshot(layers *visualization.LayerList, source, axis, dir string, index int) error {
	img, err := layers.Preview(source, axis, -1)
	if err != nil {
		return err
	}
	filename := filepath.Join(dir, source, fmt.Sprintf("%04d_%s.png", index, axis))
	return visualization.SaveSlice(img, filename)
}

func listSources(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	set, err := app.BuildSources(osfs.New("/"), cfg.Project, app.ResolvePath)
	if err != nil {
		return err
	}

	for _, src := range set.All() {
		fmt.Printf("%-20s %-8s %-14s %5d files  %s\n", src.Name, src.Kind, src.TypeTag, src.Len(), src.Path)
	}

	length, err := set.Bounds()
	fmt.Printf("\nNavigable length: %d\n", length)
	if err != nil {
		fmt.Printf("Warning: %v\n", err)
	}
	return nil
}

func initConfig(_ context.Context, cmd *cli.Command) error {
	path := cmd.String("config")
	if _, err := os.Stat(path); err == nil && !cmd.Bool("force") {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.CreateDefaultConfigFile(path); err != nil {
		return err
	}
	fmt.Printf("Default configuration written to: %s\n", path)
	return nil
}

func exportProject(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	out := cmd.String("out")
	if err := config.SaveProject(&cfg.Project, out); err != nil {
		return err
	}
	fmt.Printf("Project %q saved to: %s\n", cfg.Project.Name, out)
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:   "datainspect",
		Usage:  "Step through folders of volumetric images in lockstep with background prefetch",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "project",
				Aliases: []string{"p"},
				Usage:   "Project file (YAML or JSON) replacing the project section of the config",
				Sources: cli.EnvVars("APP_PROJECT_FILE"),
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Maximum concurrent prefetch decodes (default: config, then all CPU cores)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the navigation API",
				Action: serve,
			},
			{
				Name:   "walk",
				Usage:  "Step through every index and report decoder activity",
				Action: walk,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "stats",
						Usage: "Print value statistics of every displayed layer",
					},
					&cli.StringFlag{
						Name:  "snapshots",
						Usage: "Directory to save a PNG of the middle plane of every layer at every index",
					},
					&cli.StringFlag{
						Name:  "axis",
						Usage: "Axis of the snapshot planes (x, y or z)",
						Value: "z",
					},
				},
			},
			{
				Name:   "sources",
				Usage:  "List the project's sources and the navigable length",
				Action: listSources,
			},
			{
				Name:   "init-config",
				Usage:  "Write a default configuration file",
				Action: initConfig,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing file",
					},
				},
			},
			{
				Name:   "export-project",
				Usage:  "Write the project section of the config as a standalone project file",
				Action: exportProject,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "out",
						Aliases:  []string{"o"},
						Usage:    "Output file (.json for JSON, YAML otherwise)",
						Required: true,
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
