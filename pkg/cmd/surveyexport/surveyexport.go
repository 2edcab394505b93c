package surveyexport

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/igolaizola/goatmusic/pkg/storage"
	"github.com/igolaizola/goatmusic/pkg/survey"
)

type Config struct {
	Debug  bool
	DBType string
	DBConn string
	// Output is a csv file or a folder. Empty writes to stdout.
	Output   string
	Timezone string
}

// Run writes every stored survey as CSV.
func Run(ctx context.Context, cfg *Config) error {
	loc := time.Local
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return fmt.Errorf("surveyexport: invalid timezone %q: %w", cfg.Timezone, err)
		}
		loc = l
	}

	store, err := storage.New(cfg.DBType, cfg.DBConn, cfg.Debug)
	if err != nil {
		return fmt.Errorf("surveyexport: couldn't create orm store: %w", err)
	}
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("surveyexport: couldn't start orm store: %w", err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("surveyexport: couldn't migrate orm store: %w", err)
	}

	svc := survey.New(store, nil, loc)

	var w io.Writer = os.Stdout
	var output string
	if cfg.Output != "" {
		output = cfg.Output
		if info, err := os.Stat(output); err == nil && info.IsDir() {
			output = filepath.Join(output, survey.Filename(time.Now().In(loc)))
		}
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("surveyexport: couldn't create %s: %w", output, err)
		}
		defer f.Close()
		w = f
	}
	if err := svc.Export(ctx, w); err != nil {
		return fmt.Errorf("surveyexport: %w", err)
	}
	if output != "" {
		log.Printf("surveyexport: surveys written to %s\n", output)
	}
	return nil
}
