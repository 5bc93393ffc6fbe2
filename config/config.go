package config

import "github.com/namsral/flag"

type Config struct {
	Debug            bool
	LogLevel         string
	CPUProfile       string
	MemProfile       string
	TTableMegabytes  int
	DefaultEvaluator string
	DefaultDepth     int
	DefaultMoveTime  int
	GameArchivePath  string
	PGNDirectory     string
}

func (c *Config) Load(args []string) error {
	fs := flag.NewFlagSet("luzhin", flag.ContinueOnError)
	fs.BoolVar(&c.Debug, "debug", false, "verbose debug logging")
	fs.StringVar(&c.LogLevel, "log-level", "info", "log level. debug, info, or disabled")
	fs.StringVar(&c.CPUProfile, "cpu-profile", "", "write a CPU profile to this path")
	fs.StringVar(&c.MemProfile, "mem-profile", "", "write a memory profile to this path on exit")
	fs.IntVar(&c.TTableMegabytes, "ttable-megabytes", 0, "transposition table size in MiB; 0 sizes it from system memory")
	fs.StringVar(&c.DefaultEvaluator, "default-evaluator", "psqt", "the default evaluator to use. psqt or material")
	fs.IntVar(&c.DefaultDepth, "default-depth", 8, "default search depth for analysis commands")
	fs.IntVar(&c.DefaultMoveTime, "default-movetime", 5000, "default per-move think time in milliseconds")
	fs.StringVar(&c.GameArchivePath, "game-archive-path", "./data/games.db", "sqlite database holding finished games")
	fs.StringVar(&c.PGNDirectory, "pgn-directory", "./data/pgn", "directory for PGN output")
	err := fs.Parse(args)
	return err
}
