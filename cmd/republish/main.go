package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/simp-lee/republish/epub"
	"github.com/simp-lee/republish/hyphen"
	"github.com/simp-lee/republish/internal/config"
	"github.com/simp-lee/republish/internal/server"
	"github.com/simp-lee/republish/internal/tui"
	"github.com/simp-lee/republish/layout"
	"github.com/simp-lee/republish/reader"
	"github.com/simp-lee/republish/sched"
)

func usage() {
	fmt.Fprint(flag.CommandLine.Output(), `republish - page through an ePub or a directory of Markdown files

USAGE:
    republish [OPTIONS] BOOK

BOOK is an .epub file or a directory of .md files.

OPTIONS:
`)
	flag.PrintDefaults()
}

func main() {
	cfg := config.Load()

	flag.Usage = usage
	flag.IntVar(&cfg.Slots, "slots", cfg.Slots, "pages shown side by side")
	flag.StringVar(&cfg.Listen, "listen", cfg.Listen, "serve the HTTP API on this address instead of the terminal reader")
	flag.StringVar(&cfg.Lang, "lang", cfg.Lang, `hyphenation language; "none" disables it`)
	flag.StringVar(&cfg.FontPath, "font", cfg.FontPath, "TrueType font used to measure pages in HTTP mode")
	flag.Float64Var(&cfg.FontSize, "font-size", cfg.FontSize, "font size in points")
	flag.IntVar(&cfg.Width, "width", cfg.Width, "page width in pixels (HTTP mode)")
	flag.IntVar(&cfg.Height, "height", cfg.Height, "page height in pixels (HTTP mode)")
	flag.BoolVar(&cfg.InlineImages, "inline-images", cfg.InlineImages, "embed images in pages as data: URIs")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	logFile := flag.String("log-file", "", "write logs to this file (terminal mode logs nowhere otherwise)")
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	log, closeLog, err := newLogger(cfg, *logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(cfg, flag.Arg(0), log); err != nil {
		log.Error("republish failed", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		closeLog()
		os.Exit(1)
	}
}

func newLogger(cfg config.Config, path string) (*slog.Logger, func(), error) {
	level, _ := cfg.Level()
	var w io.Writer = os.Stderr
	closeFn := func() {}
	switch {
	case path != "":
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, err
		}
		w = f
		closeFn = func() { _ = f.Close() }
	case cfg.Listen == "":
		// The terminal belongs to tcell.
		w = io.Discard
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), closeFn, nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), closeFn, nil
}

func run(cfg config.Config, path string, log *slog.Logger) error {
	book, closeBook, err := openBook(path, log)
	if err != nil {
		return err
	}
	defer closeBook()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := reader.Options{
		Slots:           cfg.Slots,
		Prefetch:        cfg.Prefetch,
		PrefetchStagger: cfg.PrefetchStagger,
		LoadPacing:      cfg.LoadPacing,
		BusyDelay:       cfg.BusyDelay,
		PageDelay:       cfg.PageDelay,
		Hyphenator:      newHyphenator(cfg.Lang, book.Language, log),
		InlineImages:    cfg.InlineImages,
		Logger:          log,
	}
	if cfg.Prefetch == 0 {
		opts.Prefetch = -1
	}

	loop := sched.New()
	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(ctx) }()
	defer func() {
		loop.Close()
		<-loopDone
	}()

	if cfg.Listen != "" {
		return serve(ctx, cfg, book, loop, opts, log)
	}
	return read(ctx, book, loop, opts)
}

func openBook(path string, log *slog.Logger) (*reader.Book, func(), error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, err
	}
	if info.IsDir() {
		book, err := reader.OpenMarkdownDir(path)
		if err != nil {
			return nil, nil, err
		}
		return book, func() {}, nil
	}

	eb, err := epub.Open(path)
	if err != nil {
		return nil, nil, err
	}
	for _, w := range eb.Warnings() {
		log.Warn("epub warning", "warning", w)
	}
	book := reader.FromEPub(eb)
	log.Info("book opened", "title", book.Title, "author", book.Author, "chapters", len(book.Chapters))
	return book, func() { _ = eb.Close() }, nil
}

// newHyphenator picks the configured language, falling back to the book's.
func newHyphenator(lang, bookLang string, log *slog.Logger) *hyphen.Hyphenator {
	if strings.EqualFold(lang, "none") {
		return nil
	}
	if lang == "" {
		lang = bookLang
	}
	if lang == "" {
		lang = "en"
	}
	h, err := hyphen.New(lang)
	if err != nil {
		log.Warn("hyphenation disabled", "lang", lang, "error", err)
		return nil
	}
	return h
}

func read(ctx context.Context, book *reader.Book, loop *sched.Loop, opts reader.Options) error {
	tcell.SetEncodingFallback(tcell.EncodingFallbackUTF8)
	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	defer screen.Fini()

	err = tui.New(screen, loop, book, opts).Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func serve(ctx context.Context, cfg config.Config, book *reader.Book, loop *sched.Loop, opts reader.Options, log *slog.Logger) error {
	metrics, err := layout.NewFontMetrics(cfg.FontPath, cfg.FontSize, 0)
	if err != nil {
		return err
	}
	width, height := cfg.Width, cfg.Height
	if width == 0 {
		width = 600
	}
	if height == 0 {
		height = 800
	}
	surface := layout.NewSurface(metrics, float64(width), float64(height), layout.Options{
		ParagraphGap: 0.5 * metrics.LineHeight(),
		Indent:       2 * metrics.Width("m"),
	})

	h := reader.NewHandler(ctx, book, surface, loop, opts)
	if err := loop.Do(ctx, h.Display); err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         cfg.Listen,
		Handler:      server.New(h, loop, log),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("starting republish", "addr", cfg.Listen, "width", width, "height", height)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
