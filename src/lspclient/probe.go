package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/spf13/cobra"
	"github.com/uber/lsp-session/src/lspclient/controller/event"
	"github.com/uber/lsp-session/src/lspclient/controller/servers"
	"github.com/uber/lsp-session/src/lspclient/entity"
	"github.com/uber/lsp-session/src/lspclient/internal/fs"
	"go.lsp.dev/protocol"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"
)

const (
	_defaultWait  = 30 * time.Second
	_probeHandle  = entity.EditorHandle("probe")
	_stopDeadline = 10 * time.Second
)

var _languages = map[string]protocol.LanguageIdentifier{
	".go":    "go",
	".py":    "python",
	".java":  "java",
	".kt":    "kotlin",
	".scala": "scala",
	".rs":    "rust",
	".ts":    "typescript",
	".tsx":   "typescriptreact",
	".js":    "javascript",
	".c":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
}

type probeFlags struct {
	file     string
	language string
	wait     time.Duration
}

// probe is the part of the app a command talks to.
type probe struct {
	fs      fs.FS
	events  event.Manager
	servers servers.Pool
}

// hoverOutput and codeActionsOutput are printed as YAML.
type hoverOutput struct {
	File    string             `yaml:"file"`
	Offset  int                `yaml:"offset"`
	Session entity.SessionInfo `yaml:"session"`
	Hover   string             `yaml:"hover"`
}

type codeActionsOutput struct {
	File    string             `yaml:"file"`
	Range   entity.EditorRange `yaml:"range"`
	Session entity.SessionInfo `yaml:"session"`
	Actions []entity.Action    `yaml:"actions"`
}

type sessionsOutput struct {
	Sessions []entity.SessionInfo `yaml:"sessions"`
}

func newRootCmd() *cobra.Command {
	flags := &probeFlags{}
	root := &cobra.Command{
		Use:   "lsp-probe",
		Short: "Query a configured language server about one file",
		Long: `lsp-probe starts the language server configured for a file, opens the file and
prints the answer to a single request as YAML.

Examples:
  lsp-probe hover --file main.go --offset 42
  lsp-probe codeactions --file main.go --range 3:0-3:12
  lsp-probe sessions --file main.go`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.file, "file", "", "file to open")
	root.PersistentFlags().StringVar(&flags.language, "language", "", "language identifier, guessed from the extension when empty")
	root.PersistentFlags().DurationVar(&flags.wait, "wait", _defaultWait, "upper bound for the whole probe")
	_ = root.MarkPersistentFlagRequired("file")

	root.AddCommand(newHoverCmd(flags), newCodeActionsCmd(flags), newSessionsCmd(flags))
	return root
}

func newHoverCmd(flags *probeFlags) *cobra.Command {
	var offset int
	cmd := &cobra.Command{
		Use:   "hover",
		Short: "Print the hover text at a code point offset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), flags, func(ctx context.Context, p probe, id uuid.UUID) error {
				text, err := p.events.RequestHover(ctx, _probeHandle, offset).Get(ctx, flags.wait)
				if err != nil {
					return err
				}
				info, err := p.servers.Session(ctx, id)
				if err != nil {
					return err
				}
				return printYAML(cmd.OutOrStdout(), hoverOutput{File: flags.file, Offset: offset, Session: info, Hover: text})
			})
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "code point offset in the file")
	return cmd
}

func newCodeActionsCmd(flags *probeFlags) *cobra.Command {
	var rangeFlag string
	cmd := &cobra.Command{
		Use:   "codeactions",
		Short: "Print the code actions of a range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rng, err := parseRange(rangeFlag)
			if err != nil {
				return err
			}
			return run(cmd.Context(), flags, func(ctx context.Context, p probe, id uuid.UUID) error {
				actions, err := p.events.RequestCodeActions(ctx, _probeHandle, rng).Get(ctx, flags.wait)
				if err != nil {
					return err
				}
				info, err := p.servers.Session(ctx, id)
				if err != nil {
					return err
				}
				return printYAML(cmd.OutOrStdout(), codeActionsOutput{File: flags.file, Range: rng, Session: info, Actions: actions})
			})
		},
	}
	cmd.Flags().StringVar(&rangeFlag, "range", "", "range as line:column-line:column, 0-based")
	_ = cmd.MarkFlagRequired("range")
	return cmd
}

func newSessionsCmd(flags *probeFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "Print the status of every session after opening the file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), flags, func(ctx context.Context, p probe, _ uuid.UUID) error {
				return p.printSessions(ctx, cmd.OutOrStdout())
			})
		},
	}
}

// run starts the app, opens the file on its server and calls fn with the session serving it.
func run(ctx context.Context, flags *probeFlags, fn func(context.Context, probe, uuid.UUID) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, flags.wait)
	defer cancel()

	language := protocol.LanguageIdentifier(flags.language)
	if language == "" {
		var err error
		if language, err = languageFor(flags.file); err != nil {
			return err
		}
	}

	var p probe
	fxApp := fx.New(opts(), fx.NopLogger, fx.Populate(&p.fs, &p.events, &p.servers))
	if err := fxApp.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), _stopDeadline)
		defer stopCancel()
		_ = fxApp.Stop(stopCtx)
	}()

	id, err := p.open(ctx, flags.file, language)
	if err != nil {
		return err
	}
	return fn(ctx, p, id)
}

// open reads the file, starts its server and opens the file there.
func (p probe) open(ctx context.Context, file string, language protocol.LanguageIdentifier) (uuid.UUID, error) {
	text, err := p.fs.ReadFile(file)
	if err != nil {
		return uuid.Nil, err
	}

	name, ok := p.servers.ServerFor(language)
	if !ok {
		return uuid.Nil, fmt.Errorf("no language server configured for %q", language)
	}
	s, err := p.servers.Ensure(ctx, name)
	if err != nil {
		return uuid.Nil, err
	}
	editor := entity.Editor{Path: file, LanguageID: language, Text: string(text)}
	if err := p.events.EditorOpened(ctx, _probeHandle, editor); err != nil {
		return uuid.Nil, err
	}
	return s.ID(), nil
}

func (p probe) printSessions(ctx context.Context, w io.Writer) error {
	infos, err := p.servers.Sessions(ctx)
	if err != nil {
		return err
	}
	return printYAML(w, sessionsOutput{Sessions: infos})
}

func languageFor(file string) (protocol.LanguageIdentifier, error) {
	ext := strings.ToLower(filepath.Ext(file))
	if l, ok := _languages[ext]; ok {
		return l, nil
	}
	return "", fmt.Errorf("can't guess the language of %q, use --language", file)
}

// parseRange parses "line:column-line:column".
func parseRange(s string) (entity.EditorRange, error) {
	start, end, ok := strings.Cut(s, "-")
	if !ok {
		return entity.EditorRange{}, fmt.Errorf("invalid range %q, want line:column-line:column", s)
	}
	from, err := parsePosition(start)
	if err != nil {
		return entity.EditorRange{}, err
	}
	to, err := parsePosition(end)
	if err != nil {
		return entity.EditorRange{}, err
	}
	return entity.EditorRange{Start: from, End: to}, nil
}

func parsePosition(s string) (entity.EditorPosition, error) {
	lineStr, colStr, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return entity.EditorPosition{}, fmt.Errorf("invalid position %q, want line:column", s)
	}
	line, err := strconv.Atoi(lineStr)
	if err != nil {
		return entity.EditorPosition{}, fmt.Errorf("invalid line in %q: %w", s, err)
	}
	col, err := strconv.Atoi(colStr)
	if err != nil {
		return entity.EditorPosition{}, fmt.Errorf("invalid column in %q: %w", s, err)
	}
	return entity.EditorPosition{Line: line, Column: col}, nil
}

func printYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
