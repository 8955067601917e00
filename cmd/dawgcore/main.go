// Command dawgcore is the CLI entry point for the scheduling core:
// "play" opens a project file and runs it through realtime output with
// the terminal inspector, "render" renders it offline to a WAV file.
// Adapted from the teacher tracker's cmd/tracker/main.go flag-parsing
// shape.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/alperkosan/dawg-sub005/pkg/config"
	"github.com/alperkosan/dawg-sub005/pkg/engine"
	"github.com/alperkosan/dawg-sub005/pkg/project"
	"github.com/alperkosan/dawg-sub005/pkg/tui"
)

func main() {
	configPath := flag.String("config", "", "path to a dawgcore.toml config file")
	flag.Parse()

	if flag.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "usage: dawgcore <play|render> <project.json> [render-duration-seconds] [out.wav]")
		os.Exit(1)
	}

	command := flag.Arg(0)
	projectPath := flag.Arg(1)

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	raw, err := os.ReadFile(projectPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading project: %v\n", err)
		os.Exit(1)
	}
	doc, err := project.Parse(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error parsing project: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	eng := engine.New(cfg, logger)
	eng.LoadProject(doc)

	switch command {
	case "play":
		runInteractive(eng)
	case "render":
		runRender(eng, flag.Args())
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		os.Exit(1)
	}
}

func runInteractive(eng *engine.Engine) {
	if err := eng.StartRealtime(); err != nil {
		fmt.Fprintf(os.Stderr, "error starting realtime output: %v\n", err)
		os.Exit(1)
	}
	eng.Transport.Start(0)

	model := tui.NewModel(eng)
	p := tea.NewProgram(model)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runRender(eng *engine.Engine, args []string) {
	duration := 30.0
	outputPath := "_export/dawgcore-render.wav"
	if len(args) > 2 {
		fmt.Sscanf(args[2], "%f", &duration)
	}
	if len(args) > 3 {
		outputPath = args[3]
	}

	if err := os.MkdirAll("_export", 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating export dir: %v\n", err)
		os.Exit(1)
	}
	f, err := os.Create(outputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating output file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	fmt.Printf("rendering %.1fs to %s...\n", duration, outputPath)
	if err := eng.RenderOffline(duration, f); err != nil {
		fmt.Fprintf(os.Stderr, "error rendering: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("done: %s\n", outputPath)
}
