package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/darbyjahn/smallphot0-backend/internal/catalog"
	"github.com/darbyjahn/smallphot0-backend/internal/directory"
	"github.com/darbyjahn/smallphot0-backend/internal/mediastore"
	"github.com/darbyjahn/smallphot0-backend/internal/startup"
)

const (
	// Default timeout for journal queries
	defaultTimeout = 30 * time.Second
	// Default data directory path
	defaultDataDir = "/data"
)

// cli carries state shared by all subcommands.
type cli struct {
	dataDir string

	// readPIN prompts for a secret. Replaced in tests.
	readPIN func(cmd *cobra.Command, prompt string) (string, error)

	lines *bufio.Reader
}

func newCLI() *cli {
	c := &cli{}
	c.readPIN = c.promptPIN
	return c
}

func newRootCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "galleryctl",
		Short: "Administer SmallPhotos galleries on disk",
		Long: `galleryctl works directly on a SmallPhotos data directory.

It lists galleries, sets or clears gallery PINs and shows the transcode job
journal. Run it on the host that owns the data directory. The read-only
commands are safe while the server runs; stop the server before set-pin or
clear-pin, or use PUT /api/galleries/{id}/pin on the running server.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return startup.LoadDotEnv()
		},
	}

	cmd.PersistentFlags().StringVar(&c.dataDir, "data-dir", envOr("DATA_DIR", defaultDataDir), "Path to the data directory (env DATA_DIR)")

	cmd.AddCommand(newListCmd(c))
	cmd.AddCommand(newSetPINCmd(c))
	cmd.AddCommand(newClearPINCmd(c))
	cmd.AddCommand(newJobsCmd(c))

	return cmd
}

// open returns the catalog repository and directory for the data directory.
func (c *cli) open() (*catalog.Repository, *directory.Directory, error) {
	info, err := os.Stat(c.dataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("data directory %s: %w", c.dataDir, err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("data directory %s is not a directory", c.dataDir)
	}

	repo := catalog.NewRepository(mediastore.New(c.dataDir))
	// No template: galleryctl never creates galleries.
	return repo, directory.New(repo, ""), nil
}

// promptPIN reads a PIN without echo from a terminal, or one line from a
// pipe so the command can be scripted.
func (c *cli) promptPIN(cmd *cobra.Command, prompt string) (string, error) {
	out := cmd.ErrOrStderr()
	if _, err := fmt.Fprint(out, prompt); err != nil {
		return "", err
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		pin, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("read pin: %w", err)
		}
		return string(pin), nil
	}

	if c.lines == nil {
		c.lines = bufio.NewReader(in)
	}
	line, err := c.lines.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read pin: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
