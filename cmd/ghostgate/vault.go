package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/mtzanidakis/ghostgate/internal/config"
	"github.com/mtzanidakis/ghostgate/internal/identity"
	"github.com/mtzanidakis/ghostgate/internal/store"
	"github.com/mtzanidakis/ghostgate/internal/transform"
	"github.com/mtzanidakis/ghostgate/internal/vault"
)

const vaultKeyEnv = "GHOSTGATE_VAULT_KEY"

func runVault(args []string) error {
	if len(args) < 1 {
		printVaultUsage()
		return fmt.Errorf("missing vault subcommand")
	}
	switch args[0] {
	case "help", "-h", "--help":
		printVaultUsage()
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	cmd := &vaultCmd{
		store:     vault.NewStore(db, cfg.Vault.StorageQuota),
		gen:       identity.New(nil),
		out:       os.Stdout,
		in:        os.Stdin,
		exportDir: exportDir(cfg),
		now:       time.Now,
	}

	sub, rest := args[0], args[1:]
	switch sub {
	case "list":
		return cmd.list()
	case "encrypt":
		return cmd.encrypt(rest)
	case "decrypt":
		return cmd.decrypt(rest)
	case "identity":
		return cmd.identity()
	case "export":
		return cmd.export(rest)
	case "wipe":
		return cmd.wipe(rest)
	case "usage":
		return cmd.usage()
	default:
		printVaultUsage()
		return fmt.Errorf("unknown vault subcommand: %s", sub)
	}
}

func printVaultUsage() {
	fmt.Fprintf(os.Stderr, `Usage: ghostgate vault <subcommand>

Subcommands:
  list                               List entries, ciphertext masked
  encrypt [-k key] [message...]      Encrypt a message (stdin if none) and store it
  decrypt <id> [-k key]              Decrypt an encryption entry
  identity                           Generate and store a synthetic identity
  export <id> [--dir path] [--stdout]  Write an entry to a .txt file
  wipe --yes                         Delete every entry
  usage                              Show storage usage

Entries are addressed by full id or by the short id shown in list.

Environment:
  %s                Key used when -k is not given
`, vaultKeyEnv)
}

// vaultCmd works on the persisted vault directly, without a session: the
// shell user already has access to the store file.
type vaultCmd struct {
	store     *vault.Store
	gen       *identity.Generator
	out       io.Writer
	in        io.Reader
	exportDir string
	now       func() time.Time
}

func (c *vaultCmd) list() error {
	entries := c.store.Load()
	if len(entries) == 0 {
		fmt.Fprintln(c.out, "Vault is empty.")
		return nil
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tCREATED\tCONTENT")
	for _, e := range entries {
		var content string
		switch e := e.(type) {
		case *vault.EncryptionEntry:
			content = vault.MaskCiphertext(e.EncryptedBase64)
		case *vault.IdentityEntry:
			content = e.Name + " <" + identity.MaskEmail(e.Email) + ">"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			vault.ShortID(e.EntryID()), e.Kind(), e.Created().Local().Format(time.DateTime), content)
	}
	return w.Flush()
}

func keyFlag(fs *pflag.FlagSet) *string {
	return fs.StringP("key", "k", "", "transform key (default $"+vaultKeyEnv+")")
}

func resolveKey(key string) string {
	if key == "" {
		return os.Getenv(vaultKeyEnv)
	}
	return key
}

func (c *vaultCmd) encrypt(args []string) error {
	fs := pflag.NewFlagSet("encrypt", pflag.ContinueOnError)
	key := keyFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	message := strings.Join(fs.Args(), " ")
	if message == "" {
		data, err := io.ReadAll(c.in)
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}
		message = strings.TrimRight(string(data), "\r\n")
	}
	if message == "" {
		return fmt.Errorf("usage: ghostgate vault encrypt [-k key] <message>")
	}

	out := transform.Encode(message, resolveKey(*key))
	if transform.IsSentinel(out) {
		return fmt.Errorf("encrypt: %s", out)
	}

	entry := &vault.EncryptionEntry{
		ID:              uuid.NewString(),
		CreatedAt:       time.UnixMilli(c.now().UnixMilli()),
		EncryptedBase64: out,
	}
	c.store.Append(entry)
	fmt.Fprintf(c.out, "%s\n", out)
	fmt.Fprintf(c.out, "Stored as %s\n", vault.ShortID(entry.ID))
	return nil
}

func (c *vaultCmd) decrypt(args []string) error {
	fs := pflag.NewFlagSet("decrypt", pflag.ContinueOnError)
	key := keyFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: ghostgate vault decrypt <id> [-k key]")
	}

	entry, err := vault.Lookup(c.store.Load(), fs.Arg(0))
	if err != nil {
		return fmt.Errorf("decrypt %s: %w", fs.Arg(0), err)
	}
	enc, ok := entry.(*vault.EncryptionEntry)
	if !ok {
		return fmt.Errorf("decrypt %s: %w", fs.Arg(0), vault.ErrNotDecryptable)
	}
	fmt.Fprintln(c.out, transform.Decode(enc.EncryptedBase64, resolveKey(*key)))
	return nil
}

func (c *vaultCmd) identity() error {
	id := c.gen.Generate()
	entry := &vault.IdentityEntry{
		ID:        uuid.NewString(),
		CreatedAt: time.UnixMilli(c.now().UnixMilli()),
		Name:      id.Name,
		Email:     id.Email,
		Location:  id.Location,
	}
	c.store.Append(entry)

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Name:\t%s\n", entry.Name)
	fmt.Fprintf(w, "Email:\t%s\n", entry.Email)
	fmt.Fprintf(w, "Location:\t%s\n", entry.Location)
	fmt.Fprintf(w, "Stored as:\t%s\n", vault.ShortID(entry.ID))
	return w.Flush()
}

func (c *vaultCmd) export(args []string) error {
	fs := pflag.NewFlagSet("export", pflag.ContinueOnError)
	dir := fs.String("dir", c.exportDir, "directory to write the export to")
	stdout := fs.Bool("stdout", false, "print the export instead of writing a file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: ghostgate vault export <id> [--dir path] [--stdout]")
	}

	entry, err := vault.Lookup(c.store.Load(), fs.Arg(0))
	if err != nil {
		return fmt.Errorf("export %s: %w", fs.Arg(0), err)
	}
	exp, err := vault.BuildExport(entry)
	if err != nil {
		return err
	}
	if *stdout {
		_, err := io.WriteString(c.out, exp.Content)
		return err
	}

	if err := os.MkdirAll(*dir, 0o700); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(*dir, exp.Filename)
	if err := os.WriteFile(path, []byte(exp.Content), 0o600); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	fmt.Fprintf(c.out, "Exported to %s\n", path)
	return nil
}

func (c *vaultCmd) wipe(args []string) error {
	fs := pflag.NewFlagSet("wipe", pflag.ContinueOnError)
	yes := fs.Bool("yes", false, "confirm deleting every entry")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*yes {
		return fmt.Errorf("refusing to wipe the vault without --yes")
	}

	n := len(c.store.Load())
	c.store.WipeAll()
	fmt.Fprintf(c.out, "Vault wiped (%d entries)\n", n)
	return nil
}

func (c *vaultCmd) usage() error {
	entries := c.store.Load()
	u := c.store.Usage(entries)
	fmt.Fprintf(c.out, "%d entries, %s of %s (%.1f%%)\n",
		len(entries), formatSize(int64(u.Bytes)), formatSize(int64(u.Quota)), u.Percent)
	return nil
}
