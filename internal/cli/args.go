package cli

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"convertly/internal/converter"
)

type ValidationError struct {
	Arg   string
	Cause string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Cause)
}

// Command names accepted as the first argument.
const (
	CmdMerge   = "merge"
	CmdImg2PDF = "img2pdf"
	CmdPDF2Img = "pdf2img"
	CmdConvert = "convert"
)

// Invocation is a parsed command line. Options holds the typed options
// struct for Command, already validated.
type Invocation struct {
	Command   string
	OutputDir string
	Inputs    []string
	Options   any
}

// Usage describes the accepted command lines.
const Usage = `usage: convertly <command> [flags] <files...>

commands:
  merge    -o name [-page-size size] <a.pdf> <b.pdf> ...
  img2pdf  -o name [-page-size size] [-orientation portrait|landscape] <images...>
  pdf2img  -format jpg|png|webp [-quality n] <file.pdf>
  convert  -format jpg|png|webp|gif [-quality n] [-width n] [-height n] [-keep-ratio] <images...>

every command accepts -dir to choose the output directory (default ".")
`

// ParseArgs parses args (without the program name) into an Invocation.
func ParseArgs(args []string, stderr io.Writer) (*Invocation, error) {
	if len(args) == 0 {
		return nil, &ValidationError{Arg: "<command>", Cause: "no command provided"}
	}

	cmd := args[0]
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.String("dir", ".", "output directory")

	var build func() any
	switch cmd {
	case CmdMerge:
		opts := &converter.MergeOptions{}
		fs.StringVar(&opts.OutputFilename, "o", "merged.pdf", "output filename")
		pageSize := fs.String("page-size", "", "informational page size")
		fs.BoolVar(&opts.AddBookmarks, "bookmarks", false, "add bookmarks (inert)")
		build = func() any {
			opts.PageSize = converter.PageSize(*pageSize)
			return *opts
		}
	case CmdImg2PDF:
		opts := &converter.ImageToPDFOptions{}
		fs.StringVar(&opts.OutputFilename, "o", "images.pdf", "output filename")
		pageSize := fs.String("page-size", "a4", "page size: a4, letter, legal")
		orientation := fs.String("orientation", "portrait", "page orientation")
		build = func() any {
			opts.PageSize = converter.PageSize(*pageSize)
			opts.PageOrientation = converter.Orientation(*orientation)
			return *opts
		}
	case CmdPDF2Img:
		opts := &converter.PDFToImageOptions{}
		format := fs.String("format", "png", "output format")
		fs.IntVar(&opts.ImageQuality, "quality", converter.DefaultQuality, "image quality 1-100")
		fs.IntVar(&opts.DPI, "dpi", 0, "dots per inch (inert)")
		build = func() any {
			opts.OutputFormat = converter.Format(*format)
			return *opts
		}
	case CmdConvert:
		opts := &converter.ImageConvertOptions{}
		format := fs.String("format", "png", "output format")
		fs.IntVar(&opts.Quality, "quality", converter.DefaultQuality, "image quality 1-100")
		fs.IntVar(&opts.Width, "width", 0, "target width")
		fs.IntVar(&opts.Height, "height", 0, "target height")
		fs.BoolVar(&opts.MaintainAspectRatio, "keep-ratio", false, "fit inside width x height")
		build = func() any {
			opts.OutputFormat = converter.Format(*format)
			return *opts
		}
	default:
		return nil, &ValidationError{Arg: cmd, Cause: "unknown command"}
	}

	if err := fs.Parse(args[1:]); err != nil {
		return nil, &ValidationError{Arg: cmd, Cause: err.Error()}
	}

	inputs, err := parseInputs(fs.Args())
	if err != nil {
		return nil, err
	}

	switch {
	case cmd == CmdMerge && len(inputs) < 2:
		return nil, &ValidationError{Arg: "<files>", Cause: "merge needs at least 2 PDF files"}
	case cmd == CmdPDF2Img && len(inputs) != 1:
		return nil, &ValidationError{Arg: "<files>", Cause: "pdf2img takes exactly one PDF file"}
	}

	opts := build()
	if err := converter.ValidateOptions(opts); err != nil {
		return nil, &ValidationError{Arg: "options", Cause: err.Error()}
	}

	outDir := filepath.Clean(*dir)
	info, err := os.Stat(outDir)
	if err != nil || !info.IsDir() {
		return nil, &ValidationError{Arg: *dir, Cause: "output directory not found"}
	}

	return &Invocation{
		Command:   cmd,
		OutputDir: outDir,
		Inputs:    inputs,
		Options:   opts,
	}, nil
}

func parseInputs(args []string) ([]string, error) {
	if len(args) == 0 {
		return nil, &ValidationError{Arg: "<files>", Cause: "no files provided"}
	}

	out := make([]string, 0, len(args))
	for _, raw := range args {
		p := filepath.Clean(raw)
		info, err := os.Stat(p)
		if err != nil {
			return nil, &ValidationError{Arg: raw, Cause: "not found or not accessible"}
		}
		if info.IsDir() {
			return nil, &ValidationError{Arg: raw, Cause: "is a directory"}
		}
		out = append(out, p)
	}

	return out, nil
}

// OptionsJSON renders the invocation's options the way they are recorded
// in conversion metadata.
func (inv *Invocation) OptionsJSON() string {
	data, err := json.Marshal(inv.Options)
	if err != nil {
		return "{}"
	}
	return string(data)
}
