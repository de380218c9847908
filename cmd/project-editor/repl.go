// cmd/project-editor/repl.go
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"project-desk/internal/models"
	"project-desk/internal/project"
)

const helpText = `commands:
  show                      print every field and both note lists
  set <field> <value>       edit a field (autosaved after a quiet period)
  status <value>            request a status change
  check on|off              toggle the completion checklist
  confirm                   apply a pending completion
  cancel                    drop a pending completion
  note add <list> <text>    add a note to customer or internal
  note rm <list> <id>       remove a note
  save                      save now
  quit                      exit`

// runCommands reads one command per line until quit, EOF or ctx is done.
func runCommands(ctx context.Context, s *project.Session, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	fmt.Fprintln(out, `type "help" for commands`)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if quit := execute(ctx, s, strings.TrimSpace(line), out); quit {
				return nil
			}
		}
	}
}

// execute runs one command and reports whether the loop should stop.
func execute(ctx context.Context, s *project.Session, line string, out io.Writer) bool {
	if line == "" {
		return false
	}
	cmd, rest := splitWord(line)
	var err error

	switch cmd {
	case "help":
		fmt.Fprintln(out, helpText)
	case "show":
		show(s, out)
	case "set":
		field, value := splitWord(rest)
		err = s.SetField(ctx, field, value)
	case "status":
		var awaiting bool
		awaiting, err = s.RequestStatus(ctx, rest)
		if err == nil && awaiting {
			fmt.Fprintln(out, `confirm the checklist with "check on", then "confirm"`)
		}
	case "check":
		switch rest {
		case "on":
			err = s.SetChecklistConfirmed(true)
		case "off":
			err = s.SetChecklistConfirmed(false)
		default:
			fmt.Fprintln(out, "usage: check on|off")
		}
	case "confirm":
		err = s.ConfirmStatus(ctx)
		if err == nil {
			fmt.Fprintln(out, "project completed, handed to QC")
		}
	case "cancel":
		s.CancelStatus()
	case "note":
		err = noteCommand(ctx, s, rest, out)
	case "save":
		err = s.Save(ctx)
		if err == nil {
			fmt.Fprintf(out, "saved at %s\n", s.LastSaved().Format("15:04:05"))
		}
	case "quit", "exit":
		return true
	default:
		fmt.Fprintf(out, "unknown command %q\n", cmd)
	}

	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
	}
	return false
}

func noteCommand(ctx context.Context, s *project.Session, args string, out io.Writer) error {
	action, rest := splitWord(args)
	listName, arg := splitWord(rest)
	list, err := models.ParseNoteList(listName)
	if err != nil {
		return err
	}

	switch action {
	case "add":
		note, err := s.AddNote(ctx, list, arg)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "added %s\n", note.ID)
	case "rm":
		if err := s.RemoveNote(ctx, list, arg); err != nil {
			return err
		}
		fmt.Fprintf(out, "removed %s\n", arg)
	default:
		fmt.Fprintln(out, "usage: note add|rm <list> <text|id>")
	}
	return nil
}

func show(s *project.Session, out io.Writer) {
	fields := s.Fields()
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"Field", "Value"})
	for _, f := range project.Fields {
		tw.AppendRow(table.Row{f, fields[f]})
	}
	if c := s.Customer(); c != nil {
		tw.AppendRow(table.Row{"customer", c.Name})
	}
	state, pending := s.StatusState()
	if state == project.GuardAwaitingConfirmation {
		tw.AppendRow(table.Row{"pending status", fmt.Sprintf("%s (checklist confirmed: %t)", pending.Target, pending.ChecklistConfirmed)})
	}
	if saved := s.LastSaved(); !saved.IsZero() {
		tw.AppendRow(table.Row{"last saved", saved.Format("15:04:05")})
	}
	tw.Render()

	for _, l := range models.NoteLists {
		nw := table.NewWriter()
		nw.SetOutputMirror(out)
		nw.SetTitle(fmt.Sprintf("%s notes", l))
		nw.AppendHeader(table.Row{"ID", "Created", "Text"})
		for _, n := range s.Notes(l) {
			nw.AppendRow(table.Row{n.ID, n.CreatedAt.Format("2006-01-02 15:04"), n.Text})
		}
		nw.Render()
	}
}

func splitWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i], strings.TrimSpace(s[i+1:])
	}
	return s, ""
}
