package terminal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mtzanidakis/ghostgate/internal/lockdown"
	"github.com/mtzanidakis/ghostgate/internal/transform"
	"github.com/mtzanidakis/ghostgate/internal/vault"
)

const helpText = `/scan                     open the vault and start the biometric scan
/vault                    list entries (unlocked only)
/decrypt <id> <key>       reveal an encrypted entry
/export <id>              write an entry to ./ghostgate-<type>-<id>.txt
/encrypt [-s] <key> <msg> encrypt into the vault, -s arms self-destruct
/decode <key> <text>      decode text without storing it
/identity                 generate a ghost identity
/close                    close the vault view
/wipe                     delete every entry
/zero PROTOCOL ZERO       irreversible wipe after a countdown
/panic                    switch to the decoy (esc)
/mute                     toggle sound cues
/status                   show component state
/clear                    clear the screen`

// Execute runs one command line and returns the lines to print.
func (m *Model) Execute(input string) []line {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/help":
		return infoLines(strings.Split(helpText, "\n")...)

	case "/scan":
		if !m.c.Session.IsOpen() {
			m.c.Session.Open()
		}
		if err := m.c.Session.Scan(); err != nil {
			return errLine(err)
		}
		switch m.c.Session.State() {
		case vault.StateUnlocked:
			return infoLines("vault already unlocked")
		case vault.StateLocked:
			return infoLines("scan already used for this view, /close and /scan again")
		}
		return infoLines("scanning fingerprint...")

	case "/vault":
		rows, err := m.c.Session.Rows()
		if err != nil {
			return errLine(err)
		}
		if len(rows) == 0 {
			return infoLines("vault is empty")
		}
		out := make([]line, 0, len(rows))
		for _, r := range rows {
			out = append(out, info(formatRow(r)))
		}
		return out

	case "/decrypt":
		if len(args) < 2 {
			return usage("/decrypt <id> <key>")
		}
		entry, err := vault.Lookup(m.c.Session.Entries(), args[0])
		if err != nil {
			return errLine(err)
		}
		text, err := m.c.Session.Decrypt(entry.EntryID(), strings.Join(args[1:], " "))
		if err != nil {
			return errLine(err)
		}
		if transform.IsSentinel(text) {
			return []line{warn(text)}
		}
		return []line{success(text)}

	case "/export":
		if len(args) != 1 {
			return usage("/export <id>")
		}
		entry, err := vault.Lookup(m.c.Session.Entries(), args[0])
		if err != nil {
			return errLine(err)
		}
		exp, err := m.c.Session.Export(entry.EntryID())
		if err != nil {
			return errLine(err)
		}
		path := filepath.Join(m.exportDir, exp.Filename)
		if err := os.WriteFile(path, []byte(exp.Content), 0o600); err != nil {
			return errLine(fmt.Errorf("write export: %w", err))
		}
		return []line{success("exported to " + path)}

	case "/encrypt":
		burn := false
		if len(args) > 0 && args[0] == "-s" {
			burn, args = true, args[1:]
		}
		if len(args) < 2 {
			return usage("/encrypt [-s] <key> <message>")
		}
		st, err := m.c.Scratchpad.Encrypt(strings.Join(args[1:], " "), args[0], burn)
		if err != nil {
			return errLine(err)
		}
		out := []line{success(st.Output)}
		if st.Countdown > 0 {
			out = append(out, warn(fmt.Sprintf("self-destruct in %ds", st.Countdown)))
		}
		return out

	case "/decode":
		if len(args) < 2 {
			return usage("/decode <key> <text>")
		}
		st := m.c.Scratchpad.Decrypt(strings.Join(args[1:], " "), args[0])
		return []line{success(st.Output)}

	case "/identity":
		e, err := m.c.Session.GenerateIdentity()
		if err != nil {
			return errLine(err)
		}
		return infoLines(
			"name:     "+e.Name,
			"email:    "+e.Email,
			"location: "+e.Location,
		)

	case "/close":
		m.c.Session.Close()
		return infoLines("vault closed")

	case "/wipe":
		if err := m.c.Session.WipeAll(); err != nil {
			return errLine(err)
		}
		return []line{warn("vault wiped")}

	case "/zero":
		if err := m.c.Lockdown.InitiateProtocolZero(strings.Join(args, " ")); err != nil {
			if errors.Is(err, lockdown.ErrConfirmationRequired) {
				return usage("/zero " + lockdown.ConfirmPhrase)
			}
			return errLine(err)
		}
		return []line{warn("PROTOCOL ZERO initiated")}

	case "/panic":
		m.c.Lockdown.Panic()
		return nil

	case "/mute":
		if m.c.Mixer.Toggle() {
			return infoLines("sound cues muted")
		}
		return infoLines("sound cues on")

	case "/status":
		return infoLines(m.statusLines()...)

	case "/clear":
		m.lines = nil
		return nil
	}

	return []line{warn(fmt.Sprintf("unknown command %s, try /help", cmd))}
}

func (m *Model) statusLines() []string {
	snap := m.c.Session.Snapshot()
	gs := m.c.Gate.Status()
	ls := m.c.Lockdown.Status()

	gateState := "pending"
	switch {
	case gs.Sealed:
		gateState = "sealed"
	case gs.Passed:
		gateState = "passed"
	}

	return []string{
		fmt.Sprintf("gate:     %s", gateState),
		fmt.Sprintf("vault:    %s, %d entries", snap.State, snap.Count),
		fmt.Sprintf("storage:  %d / %d bytes (%.1f%%)", snap.Usage.Bytes, snap.Usage.Quota, snap.Usage.Percent),
		fmt.Sprintf("zero:     %s", ls.ProtocolZero),
		fmt.Sprintf("muted:    %v", ls.Muted),
	}
}

func formatRow(r vault.Row) string {
	when := time.UnixMilli(r.CreatedAt).Local().Format("Jan 2 15:04")
	id := vault.ShortID(r.ID)
	switch r.Kind {
	case vault.KindIdentity:
		return fmt.Sprintf("%s  %s  identity    %s <%s> %s", id, when, r.Name, r.Email, r.Location)
	default:
		return fmt.Sprintf("%s  %s  encryption  %s", id, when, r.Display)
	}
}

func usage(s string) []line {
	return []line{warn("usage: " + s)}
}

func errLine(err error) []line {
	return []line{failure(err.Error())}
}
