package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/darbyjahn/smallphot0-backend/internal/access"
	"github.com/darbyjahn/smallphot0-backend/internal/catalog"
	"github.com/darbyjahn/smallphot0-backend/internal/directory"
	"github.com/darbyjahn/smallphot0-backend/internal/journal"
	"github.com/darbyjahn/smallphot0-backend/internal/mediastore"
	"github.com/darbyjahn/smallphot0-backend/internal/mediatypes"
)

// newDataDir creates a data directory holding the given galleries.
func newDataDir(t *testing.T, ids ...string) (string, *catalog.Repository) {
	t.Helper()

	dataDir := t.TempDir()
	repo := catalog.NewRepository(mediastore.New(dataDir))
	dir := directory.New(repo, "")
	for _, id := range ids {
		if err := dir.Create(directory.Entry{ID: id, Title: "Gallery " + id}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	return dataDir, repo
}

// run executes galleryctl with the given stdin and returns stdout.
func run(t *testing.T, c *cli, stdin string, args ...string) (string, error) {
	t.Helper()

	root := newRootCmd(c)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)

	err := root.Execute()
	return out.String(), err
}

func fixedPINs(pins ...string) func(*cobra.Command, string) (string, error) {
	return func(*cobra.Command, string) (string, error) {
		if len(pins) == 0 {
			return "", errors.New("no more input")
		}
		p := pins[0]
		pins = pins[1:]
		return p, nil
	}
}

// =============================================================================
// list
// =============================================================================

func TestListShowsCounts(t *testing.T) {
	dataDir, repo := newDataDir(t, "alice", "bob")

	if err := repo.AppendItem("alice", catalog.Item{Stored: "1_a.jpg", Type: mediatypes.KindImage}); err != nil {
		t.Fatal(err)
	}
	if err := repo.AppendItem("alice", catalog.Item{Stored: "2_b.mov", Type: mediatypes.KindVideo, Status: catalog.StatusPending}); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, newCLI(), "", "list", "--data-dir", dataDir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %q", out)
	}
	if fields := strings.Fields(lines[1]); fields[0] != "alice" || fields[len(fields)-5] != "1" || fields[len(fields)-3] != "1" {
		t.Errorf("alice row = %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "bob") || !strings.HasSuffix(lines[2], "no") {
		t.Errorf("bob row = %q", lines[2])
	}
}

func TestListMarksCorruptCatalog(t *testing.T) {
	dataDir, _ := newDataDir(t, "alice")
	store := mediastore.New(dataDir)
	if err := os.WriteFile(store.CatalogPath("alice"), []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, newCLI(), "", "list", "--data-dir", dataDir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "corrupt") {
		t.Errorf("expected corrupt marker, got %q", out)
	}
}

func TestMissingDataDir(t *testing.T) {
	_, err := run(t, newCLI(), "", "list", "--data-dir", "/nonexistent/smallphotos")
	if err == nil {
		t.Fatal("expected error for missing data directory")
	}
}

func TestDataDirFromEnvironment(t *testing.T) {
	dataDir, _ := newDataDir(t, "carol")
	t.Setenv("DATA_DIR", dataDir)

	out, err := run(t, newCLI(), "", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "carol") {
		t.Errorf("expected gallery from DATA_DIR, got %q", out)
	}
}

// =============================================================================
// set-pin / clear-pin
// =============================================================================

func TestSetPIN(t *testing.T) {
	dataDir, repo := newDataDir(t, "alice")

	c := newCLI()
	c.readPIN = fixedPINs("4321", "4321")

	out, err := run(t, c, "", "set-pin", "alice", "--data-dir", dataDir)
	if err != nil {
		t.Fatalf("set-pin: %v", err)
	}
	if !strings.Contains(out, "PIN set for gallery alice") {
		t.Errorf("output = %q", out)
	}

	cat, err := repo.Load("alice")
	if err != nil {
		t.Fatal(err)
	}
	if err := access.VerifyPIN(cat.PIN, "4321"); err != nil {
		t.Errorf("stored PIN does not verify: %v", err)
	}
	if cat.PIN == "4321" {
		t.Error("PIN should be stored hashed")
	}
}

func TestSetPINFromPipe(t *testing.T) {
	dataDir, repo := newDataDir(t, "alice")

	if _, err := run(t, newCLI(), "abcd\nabcd\n", "set-pin", "alice", "--data-dir", dataDir); err != nil {
		t.Fatalf("set-pin: %v", err)
	}

	cat, _ := repo.Load("alice")
	if err := access.VerifyPIN(cat.PIN, "abcd"); err != nil {
		t.Errorf("stored PIN does not verify: %v", err)
	}
}

func TestSetPINRejections(t *testing.T) {
	tests := []struct {
		name    string
		gallery string
		pins    []string
	}{
		{"mismatch", "alice", []string{"1234", "4321"}},
		{"too short", "alice", []string{"12", "12"}},
		{"missing gallery", "nobody", []string{"1234", "1234"}},
		{"no input", "alice", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dataDir, repo := newDataDir(t, "alice")

			c := newCLI()
			c.readPIN = fixedPINs(tt.pins...)
			if _, err := run(t, c, "", "set-pin", tt.gallery, "--data-dir", dataDir); err == nil {
				t.Fatal("expected error")
			}

			cat, _ := repo.Load("alice")
			if cat.Locked() {
				t.Error("gallery should remain unlocked")
			}
		})
	}
}

func TestClearPIN(t *testing.T) {
	dataDir, repo := newDataDir(t, "alice")

	hashed, err := access.HashPIN("9999")
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.SetPIN("alice", hashed); err != nil {
		t.Fatal(err)
	}

	if _, err := run(t, newCLI(), "", "clear-pin", "alice", "--data-dir", dataDir); err != nil {
		t.Fatalf("clear-pin: %v", err)
	}

	cat, _ := repo.Load("alice")
	if cat.Locked() {
		t.Error("PIN should be cleared")
	}

	if _, err := run(t, newCLI(), "", "clear-pin", "nobody", "--data-dir", dataDir); err == nil {
		t.Error("expected error for missing gallery")
	}
}

func TestPINCommandsRequireOneArgument(t *testing.T) {
	dataDir, _ := newDataDir(t)

	for _, name := range []string{"set-pin", "clear-pin"} {
		if _, err := run(t, newCLI(), "", name, "--data-dir", dataDir); err == nil {
			t.Errorf("%s without gallery should fail", name)
		}
	}
}

func TestPINCommandsHelpRequiresStoppedServer(t *testing.T) {
	for _, name := range []string{"set-pin", "clear-pin"} {
		out, err := run(t, newCLI(), "", name, "--help")
		if err != nil {
			t.Fatalf("%s --help: %v", name, err)
		}
		if !strings.Contains(out, "Stop the server") {
			t.Errorf("%s help does not say to stop the server:\n%s", name, out)
		}
		if !strings.Contains(out, "PUT /api/galleries/{id}/pin") {
			t.Errorf("%s help does not point at the pin endpoint:\n%s", name, out)
		}
	}
}

// =============================================================================
// jobs
// =============================================================================

func TestJobsWithoutJournal(t *testing.T) {
	dataDir, _ := newDataDir(t)

	out, err := run(t, newCLI(), "", "jobs", "--data-dir", dataDir)
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	if !strings.Contains(out, "No transcode journal") {
		t.Errorf("output = %q", out)
	}
	if _, err := os.Stat(mediastore.New(dataDir).JournalPath()); !os.IsNotExist(err) {
		t.Error("jobs must not create the journal")
	}
}

func TestJobsListsRecent(t *testing.T) {
	dataDir, _ := newDataDir(t)
	ctx := context.Background()

	j, err := journal.Open(ctx, mediastore.New(dataDir).JournalPath())
	if err != nil {
		t.Fatal(err)
	}
	done, _ := j.Queue(ctx, "alice", "1_a.mov")
	_ = j.Start(ctx, done)
	_ = j.Finish(ctx, done, "1_a.mp4", nil)
	failed, _ := j.Queue(ctx, "alice", "2_b.mov")
	_ = j.Finish(ctx, failed, "", errors.New("exit status 1"))
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, newCLI(), "", "jobs", "--data-dir", dataDir, "--limit", "1")
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	if !strings.Contains(out, "2_b.mov") || !strings.Contains(out, "exit status 1") {
		t.Errorf("expected newest failed job, got %q", out)
	}
	if strings.Contains(out, "1_a.mov") {
		t.Errorf("limit not applied: %q", out)
	}
}
