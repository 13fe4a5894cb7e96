package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jo-hoe/ocrdesk/internal/backend"
	"github.com/jo-hoe/ocrdesk/internal/capture"
	"github.com/jo-hoe/ocrdesk/internal/common"
	"github.com/jo-hoe/ocrdesk/internal/core"
	"github.com/jo-hoe/ocrdesk/internal/logging"
	"github.com/jo-hoe/ocrdesk/internal/markdown"
	"github.com/jo-hoe/ocrdesk/internal/ocrapi"
	"github.com/ridge/must/v2"
)

type options struct {
	configPath string
	input      string
	screenshot bool
	region     *capture.Region
	outDir     string
	htmlPath   string
	copy       bool
	jsonOut    bool

	templatePath string
	targetPath   string
	mapping      map[string]string
	findText     string

	flags map[string]*string
}

var flagNames = []string{
	"useDocOrientationClassify",
	"useDocUnwarping",
	"useChartRecognition",
	"prettifyMarkdown",
	"visualize",
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "recognize: %v\n", err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "recognize: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	fs := flag.NewFlagSet("recognize", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n")
		fmt.Fprintf(fs.Output(), "  recognize [flags] <image-or-pdf>\n")
		fmt.Fprintf(fs.Output(), "  recognize -screenshot [-region left,top,width,height] [flags]\n")
		fmt.Fprintf(fs.Output(), "  recognize -template <docx> -target <docx> [-mapping target=template,...]\n")
		fmt.Fprintf(fs.Output(), "  recognize -target <docx> -find <text>\n")
		fs.PrintDefaults()
	}

	var opts options
	fs.StringVar(&opts.configPath, "config", defaultConfigPath(), "Path to config.yaml")
	fs.BoolVar(&opts.screenshot, "screenshot", false, "Capture the screen instead of reading a file")
	region := fs.String("region", "", "Screenshot region as left,top,width,height")
	fs.StringVar(&opts.outDir, "out", "", "Save markdown pages and images to this directory")
	fs.StringVar(&opts.htmlPath, "html", "", "Write the rendered HTML page to this file")
	fs.BoolVar(&opts.copy, "copy", false, "Copy the markdown to the clipboard")
	fs.BoolVar(&opts.jsonOut, "json", false, "Print the full recognition as JSON")
	fs.StringVar(&opts.templatePath, "template", "", "Template .docx for style transfer")
	fs.StringVar(&opts.targetPath, "target", "", "Target .docx for style transfer or search")
	mapping := fs.String("mapping", "", "Manual style mapping target=template, comma separated, or a JSON object")
	fs.StringVar(&opts.findText, "find", "", "Print the styles of paragraphs containing this text")
	version := fs.Bool("version", false, "Print the version and exit")

	opts.flags = make(map[string]*string, len(flagNames))
	for _, name := range flagNames {
		opts.flags[name] = fs.String(name, "", "Override the configured "+name+" flag (true/false)")
	}

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if *version {
		fmt.Println(core.Version)
		os.Exit(0)
	}

	var err error
	if opts.mapping, err = backend.ParseMapping(*mapping); err != nil {
		return options{}, err
	}
	if *region != "" {
		if opts.region, err = parseRegion(*region); err != nil {
			return options{}, err
		}
	}

	switch {
	case opts.templatePath != "" || opts.findText != "":
		if opts.targetPath == "" {
			return options{}, fmt.Errorf("-target is required with -template and -find")
		}
	case opts.screenshot:
		if fs.NArg() != 0 {
			return options{}, fmt.Errorf("no input file expected with -screenshot")
		}
	default:
		if fs.NArg() != 1 {
			fs.Usage()
			return options{}, fmt.Errorf("missing input file")
		}
		opts.input = fs.Arg(0)
	}
	return opts, nil
}

func run(opts options) error {
	common.LoadDotEnv()

	config, err := core.LoadConfigOrDefault(opts.configPath)
	if err != nil {
		return err
	}
	logOpts := must.OK1(config.LoggingOptions())
	logOpts.Console = os.Stderr
	_, logFile, err := logging.Setup(logOpts)
	if err != nil {
		return err
	}
	defer func() { _ = logFile.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	coreService, err := core.NewCoreService(ctx, config)
	if err != nil {
		return err
	}
	defer func() { _ = coreService.Close() }()

	switch {
	case opts.findText != "":
		return findStyles(coreService, opts)
	case opts.templatePath != "":
		return transferStyles(ctx, coreService, opts)
	default:
		return recognize(ctx, coreService, opts)
	}
}

func recognize(ctx context.Context, coreService *core.CoreService, opts options) error {
	ocrOpts := ocrOptions(opts.flags, coreService.DefaultOptions())

	var (
		recognition *core.Recognition
		err         error
	)
	if opts.screenshot {
		recognition, err = coreService.RecognizeScreenshot(ctx, opts.region, ocrOpts)
	} else {
		data, readErr := os.ReadFile(opts.input)
		if readErr != nil {
			return fmt.Errorf("failed to read %s: %w", opts.input, readErr)
		}
		recognition, err = coreService.RecognizeUpload(ctx, filepath.Base(opts.input), data, ocrOpts)
	}
	if err != nil {
		return err
	}

	if opts.outDir != "" {
		files, err := coreService.SaveResult(ctx, recognition.ID, opts.outDir)
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Fprintf(os.Stderr, "saved %s\n", f)
		}
	}
	if opts.htmlPath != "" {
		page, err := markdown.RenderHTML(recognition.LocalMarkdown, pageImageBase(opts.htmlPath, coreService.Config().Paths.Images))
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.htmlPath, []byte(page), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", opts.htmlPath, err)
		}
	}
	if opts.copy {
		if _, err := coreService.CopyResult(ctx, recognition.ID); err != nil {
			return err
		}
	}

	if opts.jsonOut {
		return printJSON(recognition)
	}
	fmt.Println(recognition.Markdown)
	return nil
}

// pageImageBase points the working-directory relative image references of
// the localized markdown at their files from the directory of htmlPath.
func pageImageBase(htmlPath, imagesDir string) string {
	if filepath.IsAbs(imagesDir) {
		return ""
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	htmlDir, err := filepath.Abs(filepath.Dir(htmlPath))
	if err != nil {
		return ""
	}
	rel, err := filepath.Rel(htmlDir, cwd)
	if err != nil || rel == "." {
		return ""
	}
	return filepath.ToSlash(rel)
}

func transferStyles(ctx context.Context, coreService *core.CoreService, opts options) error {
	transfer, err := coreService.TransferStyles(ctx, opts.templatePath, opts.targetPath, opts.mapping)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", transfer.OutputPath)
	return printJSON(transfer.Stats)
}

func findStyles(coreService *core.CoreService, opts options) error {
	matches, err := coreService.FindStyles(opts.targetPath, opts.findText)
	if err != nil {
		return err
	}
	return printJSON(matches)
}

func ocrOptions(flags map[string]*string, defaults ocrapi.Options) ocrapi.Options {
	return backend.OptionsFromValues(func(name string) string {
		if value, ok := flags[name]; ok {
			return *value
		}
		return ""
	}, defaults)
}

func parseRegion(raw string) (*capture.Region, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("region must be left,top,width,height, got %q", raw)
	}
	values := make([]int, 4)
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid region value %q: %w", part, err)
		}
		values[i] = n
	}
	region := &capture.Region{Left: values[0], Top: values[1], Width: values[2], Height: values[3]}
	if err := region.Validate(); err != nil {
		return nil, err
	}
	return region, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func defaultConfigPath() string {
	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		return configPath
	}
	return "config.yaml"
}
