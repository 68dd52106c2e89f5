package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"convertly/internal/cli"
	"convertly/internal/converter"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	inv, err := cli.ParseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n%s", err, cli.Usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := run(ctx, converter.New(inv.OutputDir), inv)
	if err != nil {
		var vErr *converter.ValidationError
		if errors.As(err, &vErr) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error converting: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ %s (%d bytes)\n", out.Path, out.Size)
	if out.PageCount > 0 {
		fmt.Printf("  pages: %d\n", out.PageCount)
	}
	fmt.Printf("  options: %s\n", inv.OptionsJSON())
}

func run(ctx context.Context, c *converter.Converter, inv *cli.Invocation) (*converter.Output, error) {
	switch opts := inv.Options.(type) {
	case converter.MergeOptions:
		return c.MergePDFs(ctx, inv.Inputs, opts)
	case converter.ImageToPDFOptions:
		return c.ImagesToPDF(ctx, inv.Inputs, opts)
	case converter.PDFToImageOptions:
		return c.PDFToImages(ctx, inv.Inputs[0], opts)
	case converter.ImageConvertOptions:
		return c.ConvertImages(ctx, inv.Inputs, opts)
	default:
		return nil, fmt.Errorf("unsupported command %q", inv.Command)
	}
}
