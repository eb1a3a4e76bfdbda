package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"family-admin/internal/cache"
	"family-admin/internal/domain"
	"family-admin/internal/export"
	"family-admin/internal/permission"
)

const (
	cmdShow   = "show"
	cmdGrant  = "grant"
	cmdRevoke = "revoke"
	cmdExport = "export"
)

type options struct {
	subject string
	kind    string
	cells   []string
	out     string
	cached  bool
}

type cellRef struct {
	entity domain.Entity
	action domain.Action
}

func (o options) validate(command string) error {
	if strings.TrimSpace(o.subject) == "" {
		return errors.New("--subject is required")
	}
	switch domain.SubjectKind(o.kind) {
	case domain.SubjectUser, domain.SubjectRole:
	default:
		return fmt.Errorf("invalid --kind %q: must be user or role", o.kind)
	}
	switch command {
	case cmdGrant, cmdRevoke:
		if len(o.cells) == 0 {
			return fmt.Errorf("%s: at least one --cell is required", command)
		}
	case cmdExport:
		if o.out == "" {
			return errors.New("export: --out is required")
		}
	}
	if o.cached && (command != cmdShow || len(o.cells) > 0) {
		return errors.New("--cached only applies to show")
	}
	return nil
}

// parseCells 解析 entity.action，例如 event.create 或 finance.R
func parseCells(cells []string) ([]cellRef, error) {
	refs := make([]cellRef, 0, len(cells))
	for _, c := range cells {
		e, a, ok := strings.Cut(c, ".")
		if !ok {
			return nil, fmt.Errorf("invalid cell %q: expected entity.action", c)
		}
		entity, err := domain.ParseEntity(e)
		if err != nil {
			return nil, fmt.Errorf("invalid cell %q: %w", c, err)
		}
		action, err := domain.ParseAction(a)
		if err != nil {
			return nil, fmt.Errorf("invalid cell %q: %w", c, err)
		}
		refs = append(refs, cellRef{entity: entity, action: action})
	}
	return refs, nil
}

func execute(ctx context.Context, command string, opts options, ed *permission.Editor, out io.Writer) error {
	refs, err := parseCells(opts.cells)
	if err != nil {
		return err
	}
	subject := domain.Subject{ID: strings.TrimSpace(opts.subject), Kind: domain.SubjectKind(opts.kind)}
	if err := ed.Load(ctx, subject); err != nil {
		return err
	}

	switch command {
	case cmdShow:
		working, err := ed.Working()
		if err != nil {
			return err
		}
		return printMatrix(out, subject, working)

	case cmdGrant, cmdRevoke:
		value := command == cmdGrant
		for _, r := range refs {
			if err := ed.Set(r.entity, r.action, value); err != nil {
				return err
			}
		}
		changes := ed.Changes()
		if len(changes) > 0 {
			if err := ed.Save(ctx); err != nil {
				return err
			}
		}
		fmt.Fprintf(out, "saved %d change(s) for %s\n", len(changes), subject)
		baseline, err := ed.Baseline()
		if err != nil {
			return err
		}
		return printMatrix(out, subject, baseline)

	case cmdExport:
		// --cell 作为待保存的授权写进 Changes 工作表，不提交
		for _, r := range refs {
			if err := ed.Set(r.entity, r.action, true); err != nil {
				return err
			}
		}
		baseline, err := ed.Baseline()
		if err != nil {
			return err
		}
		data, err := export.MatrixWorkbook(subject, baseline, ed.Changes())
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.out, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", opts.out, err)
		}
		fmt.Fprintf(out, "wrote %s\n", opts.out)
		return nil
	}
	return fmt.Errorf("unknown command %q", command)
}

// showCached 打印缓存中最近一次确认的 baseline，只读，不访问 API
func showCached(ctx context.Context, opts options, baselines *cache.BaselineCache, out io.Writer) error {
	if baselines == nil {
		return errors.New("--cached requires CACHE_ENABLED=true")
	}
	subject := domain.Subject{ID: strings.TrimSpace(opts.subject), Kind: domain.SubjectKind(opts.kind)}
	m, ok := baselines.Cached(ctx, subject.ID)
	if !ok {
		return fmt.Errorf("no cached baseline for %s", subject)
	}
	return printMatrix(out, subject, m)
}

func printMatrix(out io.Writer, subject domain.Subject, m domain.Matrix) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "SUBJECT %s\n", subject)
	fmt.Fprint(tw, "ENTITY")
	for _, a := range domain.Actions() {
		fmt.Fprintf(tw, "\t%s", strings.ToUpper(string(a)))
	}
	fmt.Fprintln(tw)
	for _, e := range domain.Entities() {
		fmt.Fprint(tw, string(e))
		for _, a := range domain.Actions() {
			mark := "-"
			if m.Get(e, a) {
				mark = "x"
			}
			fmt.Fprintf(tw, "\t%s", mark)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
