package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/picturebook/bookcompiler"
	"github.com/opd-ai/picturebook/fetch"
	"github.com/opd-ai/picturebook/inspect"
	"github.com/opd-ai/picturebook/pagestore"
	"github.com/opd-ai/picturebook/srv"
)

var (
	pagesFile   = flag.String("pages", "pages.json", "page collection JSON file")
	styleFile   = flag.String("style", "", "optional style JSON file; overrides the font flags")
	output      = flag.String("out", bookcompiler.DefaultFilename, "output PDF path")
	preview     = flag.Bool("preview", false, "compile for inline preview instead of export")
	verify      = flag.Bool("verify", false, "re-read the written PDF and check page count and size")
	serve       = flag.Bool("serve", false, "run the HTTP server instead of compiling a file")
	addr        = flag.String("addr", "", "listen address for -serve (default from PICTUREBOOK_ADDR or :8080)")
	fontSize    = flag.Float64("font-size", 20, "font size in points")
	fontColor   = flag.String("font-color", "#000000", "text color as #RRGGBB")
	position    = flag.String("position", "bottom", "text position: top, center or bottom")
	trimWidth   = flag.Float64("trim-width", bookcompiler.DefaultTrimWidth, "trim width in inches")
	trimHeight  = flag.Float64("trim-height", bookcompiler.DefaultTrimHeight, "trim height in inches")
	bleed       = flag.Float64("bleed", bookcompiler.DefaultBleed, "bleed in inches")
	margin      = flag.Float64("margin", bookcompiler.DefaultMargin, "text margin in points")
	concurrency = flag.Int("concurrency", 4, "concurrent image fetches")
	crop        = flag.Bool("crop", false, "crop images to fill the page instead of stretching")
	clamp       = flag.Bool("clamp", false, "shrink an oversize font instead of failing")
	title       = flag.String("title", "", "document title")
	author      = flag.String("author", "", "document author")
	logLevel    = flag.String("log-level", "info", "log level")
)

func main() {
	flag.Parse()

	log := logrus.New()
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		fmt.Printf("Invalid log level %q\n", *logLevel)
		os.Exit(1)
	}
	log.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log); err != nil {
		log.WithError(err).Error("picturebook failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logrus.Logger) error {
	root, err := filepath.Abs(filepath.Dir(*pagesFile))
	if err != nil {
		return fmt.Errorf("resolving page directory: %w", err)
	}
	source := fetch.Mux{
		Remote: fetch.NewCachedSource(fetch.NewHTTPSource(fetch.WithLogger(log)), 0, 0),
		Local:  fetch.FileSource{Root: root},
	}

	opts := []bookcompiler.Option{
		bookcompiler.WithLogger(log),
		bookcompiler.WithTrimSize(*trimWidth, *trimHeight),
		bookcompiler.WithBleed(*bleed),
		bookcompiler.WithMargin(*margin),
		bookcompiler.WithFetchConcurrency(*concurrency),
		bookcompiler.WithClampFontSize(*clamp),
		bookcompiler.WithTitle(*title),
		bookcompiler.WithAuthor(*author),
	}
	if *crop {
		opts = append(opts, bookcompiler.WithFillMode(bookcompiler.FillCrop))
	}
	compiler := bookcompiler.NewCompiler(source, opts...)

	if *serve {
		cfg, err := srv.ConfigFromEnv()
		if err != nil {
			return err
		}
		if *addr != "" {
			cfg.Addr = *addr
		}
		// the server only accepts remote references
		server := srv.NewServer(bookcompiler.NewCompiler(source.Remote, opts...), cfg, log)
		return server.ListenAndServe(ctx)
	}

	store, err := pagestore.LoadFile(*pagesFile)
	if err != nil {
		return err
	}
	style, err := loadStyle()
	if err != nil {
		return err
	}

	var res *bookcompiler.Result
	if *preview {
		res, err = compiler.Preview(ctx, store.Pages(), style)
	} else {
		res, err = compiler.Export(ctx, store.Pages(), style)
	}
	if err != nil {
		return fmt.Errorf("compiling %s: %w", *pagesFile, err)
	}
	for _, d := range res.Diagnostics {
		fmt.Printf("warning: %s: %s (%v)\n", d.Label, d.Kind(), d.Err)
	}

	if err := os.WriteFile(*output, res.Bytes, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", *output, err)
	}

	if *verify {
		data, err := os.ReadFile(*output)
		if err != nil {
			return fmt.Errorf("reading back %s: %w", *output, err)
		}
		w, h := compiler.Config().Geometry.PageBoxSize()
		if err := inspect.Check(data, len(res.Document.Pages), w, h, 0.01); err != nil {
			return fmt.Errorf("verifying %s: %w", *output, err)
		}
	}

	log.WithFields(logrus.Fields{
		"out":         *output,
		"pages":       len(res.Document.Pages),
		"diagnostics": len(res.Diagnostics),
		"disposition": res.Disposition.String(),
	}).Info("book compiled")
	return nil
}

func loadStyle() (bookcompiler.Style, error) {
	if *styleFile != "" {
		data, err := os.ReadFile(*styleFile)
		if err != nil {
			return bookcompiler.Style{}, fmt.Errorf("reading style: %w", err)
		}
		style := bookcompiler.DefaultStyle()
		if err := json.Unmarshal(data, &style); err != nil {
			return bookcompiler.Style{}, fmt.Errorf("decoding style: %w", err)
		}
		return style, nil
	}

	style := bookcompiler.Style{FontSize: *fontSize, FontColor: *fontColor}
	if err := style.TextPosition.UnmarshalText([]byte(*position)); err != nil {
		return bookcompiler.Style{}, err
	}
	return style, nil
}
