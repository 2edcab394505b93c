package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/igolaizola/goatmusic"
	"github.com/igolaizola/goatmusic/pkg/cmd/migrate"
	"github.com/igolaizola/goatmusic/pkg/cmd/surveyexport"
	"github.com/igolaizola/goatmusic/pkg/cmd/web"
	"github.com/igolaizola/goatmusic/pkg/musicapi"
	"github.com/igolaizola/goatmusic/pkg/song"
	"github.com/peterbourgon/ff/ffyaml"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
)

const envPrefix = "MUSIC"

func New(version, commit, date string) *ffcli.Command {
	fs := flag.NewFlagSet("goatmusic", flag.ExitOnError)

	return &ffcli.Command{
		ShortUsage: "goatmusic [flags] <subcommand>",
		FlagSet:    fs,
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
		Subcommands: []*ffcli.Command{
			newVersionCommand(version, commit, date),
			newServeCommand(),
			newSongCommand(),
			newMigrateCommand(),
			newSurveyExportCommand(),
		},
	}
}

func newVersionCommand(version, commit, date string) *ffcli.Command {
	return &ffcli.Command{
		Name:       "version",
		ShortUsage: "goatmusic version",
		ShortHelp:  "print version",
		Exec: func(ctx context.Context, args []string) error {
			v := version
			if v == "" {
				if buildInfo, ok := debug.ReadBuildInfo(); ok {
					v = buildInfo.Main.Version
				}
			}
			if v == "" {
				v = "dev"
			}
			versionFields := []string{v}
			if commit != "" {
				versionFields = append(versionFields, commit)
			}
			if date != "" {
				versionFields = append(versionFields, date)
			}
			fmt.Println(strings.Join(versionFields, " "))
			return nil
		},
	}
}

func options() []ff.Option {
	return []ff.Option{
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ffyaml.Parser),
		ff.WithEnvVarPrefix(envPrefix),
	}
}

func newServeCommand() *ffcli.Command {
	cmd := "serve"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &web.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.Addr, "addr", ":3000", "address to listen on")

	fs.StringVar(&cfg.APIKey, "api-key", "", "music generation api key")
	fs.StringVar(&cfg.APIBase, "api-base", musicapi.DefaultBaseURL, "music generation api base url")
	fs.StringVar(&cfg.DefaultModel, "default-model", string(musicapi.ModelV4), "default model (V3_5, V4, V4_5, V4_5PLUS)")
	fs.StringVar(&cfg.CallbackURL, "callback-url", musicapi.DefaultCallbackURL, "callback url sent to the music api")

	fs.StringVar(&cfg.LyricsSource, "lyrics-source", "upstream", "lyrics source (upstream, openai)")
	fs.StringVar(&cfg.OpenAIKey, "openai-key", "", "openai key, required for the openai lyrics source")
	fs.StringVar(&cfg.OpenAIModel, "openai-model", "", "openai model")

	fs.StringVar(&cfg.DBType, "db-type", "sqlite", "db type (sqlite, mysql, postgres)")
	fs.StringVar(&cfg.DBConn, "db-conn", "goatmusic.db", "path for sqlite, dsn for mysql or postgres")
	fs.StringVar(&cfg.FSType, "fs-type", "", "fs type to archive final tracks (local, s3), empty disables it")
	fs.StringVar(&cfg.FSConn, "fs-conn", "", "path for local, key:secret@bucket.region for s3")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", "", "redis address or url to cache finished tasks, empty uses memory")
	fs.DurationVar(&cfg.CacheTTL, "cache-ttl", 24*time.Hour, "time to keep finished tasks cached")

	fs.StringVar(&cfg.PublicURL, "public-url", "", "public base url used in qr codes")
	fs.BoolVar(&cfg.Ngrok, "ngrok", false, "expose the server with ngrok and use its url in qr codes")
	fs.StringVar(&cfg.Static, "static", "", "folder with the kiosk frontend to serve")
	fsMapVar(fs, &cfg.Credentials, "creds", nil, "survey admin credentials (semicolon separated) Example: user1:pass1;user2:pass2")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("goatmusic %s [flags]", cmd),
		Options:    options(),
		ShortHelp:  fmt.Sprintf("goatmusic %s kiosk api", cmd),
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return web.Serve(ctx, cfg)
		},
	}
}

func newSongCommand() *ffcli.Command {
	cmd := "song"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &goatmusic.Config{}
	fs.StringVar(&cfg.APIKey, "api-key", "", "music generation api key")
	fs.StringVar(&cfg.APIBase, "api-base", musicapi.DefaultBaseURL, "music generation api base url")
	fs.StringVar(&cfg.Proxy, "proxy", "", "proxy")
	fs.DurationVar(&cfg.Wait, "wait", 2*time.Second, "wait time between status checks")
	fs.DurationVar(&cfg.Timeout, "timeout", 10*time.Minute, "maximum time to wait for the song")
	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")

	req := &song.Request{}
	var mode, model string
	fs.StringVar(&mode, "mode", string(song.ModeAutoLyrics), "mode (autoLyrics, lyrics)")
	fs.StringVar(&model, "model", "", "model (V3_5, V4, V4_5, V4_5PLUS)")
	fs.StringVar(&req.ThemePrompt, "prompt", "", "theme to write the lyrics in autoLyrics mode")
	fs.StringVar(&req.Lyrics, "lyrics", "", "lyrics to sing in lyrics mode")
	fs.StringVar(&req.Style, "style", "", "style of the song")
	fs.StringVar(&req.Title, "title", "", "title for the song")
	fs.StringVar(&req.NegativeTags, "negative-tags", "", "extra tags to avoid (comma separated)")
	var output string
	fs.StringVar(&output, "output", "", "output file or folder")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("goatmusic %s [flags]", cmd),
		Options:    options(),
		ShortHelp:  fmt.Sprintf("goatmusic %s generates one song", cmd),
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			req.Mode = song.Mode(mode)
			req.Model = musicapi.Model(model)
			return goatmusic.GenerateSong(ctx, cfg, req, output)
		},
	}
}

func newMigrateCommand() *ffcli.Command {
	cmd := "migrate"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &migrate.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.DBType, "db-type", "sqlite", "db type (sqlite, mysql, postgres)")
	fs.StringVar(&cfg.DBConn, "db-conn", "goatmusic.db", "path for sqlite, dsn for mysql or postgres")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("goatmusic %s [flags]", cmd),
		Options:    options(),
		ShortHelp:  fmt.Sprintf("goatmusic %s database", cmd),
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return migrate.Run(ctx, cfg)
		},
	}
}

func newSurveyExportCommand() *ffcli.Command {
	cmd := "survey-export"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &surveyexport.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.DBType, "db-type", "sqlite", "db type (sqlite, mysql, postgres)")
	fs.StringVar(&cfg.DBConn, "db-conn", "goatmusic.db", "path for sqlite, dsn for mysql or postgres")
	fs.StringVar(&cfg.Output, "output", "", "output csv file or folder, empty writes to stdout")
	fs.StringVar(&cfg.Timezone, "timezone", "", "timezone for the Fecha column (default local)")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("goatmusic %s [flags]", cmd),
		Options:    options(),
		ShortHelp:  fmt.Sprintf("goatmusic %s to csv", cmd),
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return surveyexport.Run(ctx, cfg)
		},
	}
}

type mapValue struct {
	v *map[string]string
}

func (m *mapValue) String() string {
	if m.v == nil {
		return ""
	}
	return fmt.Sprintf("%v", map[string]string(*m.v))
}

func (m *mapValue) Set(value string) error {
	if m.v == nil {
		return errors.New("nil map reference")
	}
	pairs := strings.Split(value, ";")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid map entry: %s", pair)
		}
		(*m.v)[parts[0]] = parts[1]
	}
	return nil
}

func fsMapVar(fs *flag.FlagSet, p *map[string]string, name string, value map[string]string, usage string) {
	if value == nil {
		value = make(map[string]string)
	}
	*p = value
	fs.Var(&mapValue{p}, name, usage)
}
