package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cwygoda/shotgrab/internal/adapter/filestore"
	"github.com/cwygoda/shotgrab/internal/config"
	"github.com/cwygoda/shotgrab/internal/domain"
	"github.com/spf13/cobra"
)

func newCaptureCommand(a *app) *cobra.Command {
	var (
		outDir      string
		tempURL     bool
		sets        []string
		optionsFile string
		maxPolls    int
		interval    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "capture <url>",
		Short: "Capture a screenshot of url",
		Long: `Submit a capture job for url and wait for it to finish.

By default the PNG is saved as <out>/<job key>.png and its path is printed.
With --temp-url the temporary image URL is printed instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxPolls < 0 {
				return fmt.Errorf("--max-polls must not be negative")
			}
			if interval < 0 {
				return fmt.Errorf("--interval must not be negative")
			}

			req, err := buildRequest(args[0], optionsFile, sets)
			if err != nil {
				return err
			}
			credential, err := a.credential()
			if err != nil {
				return err
			}

			svc, err := a.buildServices(interval, maxPolls)
			if err != nil {
				return err
			}
			defer svc.Close()

			var delivery domain.Delivery = domain.URLDelivery{}
			if !tempURL {
				dir := a.cfg.OutputDir
				if outDir != "" {
					if dir, err = config.ExpandPath(outDir); err != nil {
						return fmt.Errorf("--out: %w", err)
					}
				}
				if err := filestore.EnsureDir(dir); err != nil {
					return domain.NewError(domain.ErrDownload, "create output directory", err)
				}
				delivery = svc.capture.FileDelivery(dir)
			}

			res, err := svc.capture.Capture(cmd.Context(), credential, req, delivery)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, res.Location)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&outDir, "out", "o", "", "output directory (default from config)")
	flags.BoolVar(&tempURL, "temp-url", false, "print the temporary image URL instead of downloading")
	flags.StringArrayVar(&sets, "set", nil, "capture option as key=value (repeatable)")
	flags.StringVar(&optionsFile, "options", "", "JSON file with capture options")
	flags.IntVar(&maxPolls, "max-polls", 0, "give up after this many status queries (0 = no limit)")
	flags.DurationVar(&interval, "interval", 0, "delay between status queries (default from config)")
	return cmd
}

// buildRequest merges the options file, --set pairs and the target URL, in
// that order of increasing precedence.
func buildRequest(target, optionsFile string, sets []string) (domain.CaptureRequest, error) {
	req := domain.CaptureRequest{}

	if optionsFile != "" {
		data, err := os.ReadFile(optionsFile)
		if err != nil {
			return nil, fmt.Errorf("read options: %w", err)
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("parse options %s: %w", optionsFile, err)
		}
	}

	for _, kv := range sets {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q: want key=value", kv)
		}
		req[key] = parseValue(value)
	}

	if strings.TrimSpace(target) == "" {
		return nil, fmt.Errorf("url is required")
	}
	req["url"] = target
	return req, nil
}

// parseValue reads v as a JSON scalar so that true or 1280 keep their
// type. Anything else is a plain string.
func parseValue(v string) any {
	var out any
	if err := json.Unmarshal([]byte(v), &out); err == nil {
		switch out.(type) {
		case bool, float64, nil:
			return out
		}
	}
	return v
}
