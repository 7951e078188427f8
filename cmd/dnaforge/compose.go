// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dnaforge/pkg/composer"
	"dnaforge/pkg/dnamod"

	"github.com/spf13/cobra"
)

type composeFlags struct {
	name      string
	framework string
	template  string
	modules   []string
	set       []string
	optimize  bool
	outDir    string
}

// newComposeCommand creates the `dnaforge compose` command.
func newComposeCommand(app *App) *cobra.Command {
	flags := &composeFlags{}

	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Validate and resolve a module composition",
		Long: `Validate and resolve a module composition.

Resolves the requested modules and their transitive dependencies,
checks framework support and declared conflicts, merges module
configuration, and reports the install order. With --out, module
file generation runs against the resolved set.`,
		Example: `  dnaforge compose -f react -m auth -m database
  dnaforge compose -f flutter -t app -m auth --set auth.provider=oauth
  dnaforge compose -f react -m auth --optimize`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompose(cmd, app, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.name, "name", "n", "composition", "composition name")
	cmd.Flags().StringVarP(&flags.framework, "framework", "f", "", "target framework id")
	cmd.Flags().StringVarP(&flags.template, "template", "t", "", "project template flavor")
	cmd.Flags().StringArrayVarP(&flags.modules, "module", "m", nil, "module id to include (repeatable)")
	cmd.Flags().StringArrayVar(&flags.set, "set", nil, "config override as [module.]key=value (repeatable)")
	cmd.Flags().BoolVar(&flags.optimize, "optimize", false, "suggest an optimized composition")
	cmd.Flags().StringVar(&flags.outDir, "out", "", "generate module files under this directory")

	return cmd
}

func runCompose(cmd *cobra.Command, app *App, flags *composeFlags) error {
	if len(flags.modules) == 0 {
		return fmt.Errorf("at least one --module is required")
	}

	svc, err := app.Services(cmd.Context())
	if err != nil {
		return err
	}
	app.reportDiagnostics(svc)

	comp := composer.Composition{
		Name:         flags.name,
		Framework:    flags.framework,
		TemplateType: flags.template,
		Modules:      flags.modules,
	}
	if err := applyConfigOverrides(&comp, flags.set); err != nil {
		return err
	}

	if flags.optimize {
		return printOptimization(app, svc.Engine.Optimize(comp))
	}

	result := svc.Engine.Compose(comp)
	printComposeResult(app, result)

	if !result.Valid {
		return &ExitError{Code: 1, Err: fmt.Errorf("composition is invalid")}
	}

	if flags.outDir != "" {
		return generateFiles(app, svc, result, comp, flags.outDir)
	}
	return nil
}

// applyConfigOverrides parses --set entries. A key with a module prefix
// ("auth.provider=oauth") targets that module; an unprefixed key applies to
// every module.
func applyConfigOverrides(comp *composer.Composition, entries []string) error {
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid --set %q: want [module.]key=value", entry)
		}
		moduleID, field, scoped := strings.Cut(key, ".")
		if scoped {
			if comp.ModuleConfig == nil {
				comp.ModuleConfig = make(map[string]map[string]any)
			}
			if comp.ModuleConfig[moduleID] == nil {
				comp.ModuleConfig[moduleID] = make(map[string]any)
			}
			comp.ModuleConfig[moduleID][field] = value
			continue
		}
		if comp.GlobalConfig == nil {
			comp.GlobalConfig = make(map[string]any)
		}
		comp.GlobalConfig[key] = value
	}
	return nil
}

func printComposeResult(app *App, result *composer.Result) {
	out := app.stdout

	if result.Valid {
		fmt.Fprintln(out, SuccessStyle.Render("✓ composition is valid"))
	} else {
		fmt.Fprintln(out, ErrorStyle.Render("✗ composition is invalid"))
	}

	if len(result.InstallOrder) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, TitleStyle.Render("Install order"))
		for i, id := range result.InstallOrder {
			m := findModule(result.Modules, id)
			if m != nil {
				fmt.Fprintf(out, "  %d. %s %s\n", i+1, ModuleStyle.Render(id), SubtitleStyle.Render(m.Version.String()))
			} else {
				fmt.Fprintf(out, "  %d. %s\n", i+1, ModuleStyle.Render(id))
			}
		}
	}

	for _, e := range result.Errors {
		fmt.Fprintf(app.stderr, "%s %s\n", ErrorStyle.Render("Error:"), e.Error())
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(app.stderr, "%s %s\n", WarningStyle.Render("Warning:"), w.Message)
	}

	if verbose {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "%s modules=%d complexity=%d duration=%s\n",
			VerboseStyle.Render("metrics:"),
			result.Metrics.ModuleCount, result.Metrics.Complexity, result.Metrics.Duration)
	}
}

func printOptimization(app *App, opt *composer.Optimization) error {
	out := app.stdout

	if len(opt.Suggestions) == 0 {
		fmt.Fprintln(out, SuccessStyle.Render("✓ no optimization suggestions"))
		return nil
	}

	fmt.Fprintln(out, TitleStyle.Render("Suggestions"))
	for _, s := range opt.Suggestions {
		marker := SubtitleStyle.Render("keep")
		if s.Remove {
			marker = WarningStyle.Render("remove")
		}
		fmt.Fprintf(out, "  [%s] %s: %s\n", s.Kind, marker, s.Message)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s %d -> %d\n", TitleStyle.Render("Complexity"), opt.OriginalComplexity, opt.OptimizedComplexity)
	fmt.Fprintf(out, "%s %s\n", TitleStyle.Render("Optimized modules:"), strings.Join(opt.Optimized.Modules, ", "))
	return nil
}

func generateFiles(app *App, svc *Services, result *composer.Result, comp composer.Composition, outDir string) error {
	files, err := svc.Engine.GenerateFiles(result, dnamod.GenerateContext{
		Framework:    comp.Framework,
		TemplateType: comp.TemplateType,
		OutputRoot:   outDir,
	})
	if err != nil {
		return err
	}
	for _, f := range files {
		path := filepath.Join(outDir, f.Path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(f.Content), 0o644); err != nil {
			return err
		}
	}
	fmt.Fprintf(app.stdout, "%s %d file(s) under %s\n", SuccessStyle.Render("Generated"), len(files), outDir)
	return nil
}

func findModule(modules []*dnamod.Module, id string) *dnamod.Module {
	for _, m := range modules {
		if m.ID == id {
			return m
		}
	}
	return nil
}
