// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"strings"

	"dnaforge/pkg/dnamod"

	"github.com/spf13/cobra"
)

// newModuleCommand creates the `dnaforge module` command tree.
func newModuleCommand(app *App) *cobra.Command {
	moduleCmd := &cobra.Command{
		Use:   "module",
		Short: "Inspect available DNA modules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var category, framework string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered modules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listModules(cmd, app, category, framework)
		},
	}
	listCmd.Flags().StringVar(&category, "category", "", "filter by category")
	listCmd.Flags().StringVar(&framework, "framework", "", "filter by supported framework")
	moduleCmd.AddCommand(listCmd)

	moduleCmd.AddCommand(&cobra.Command{
		Use:   "search <keyword>",
		Short: "Search modules by id, name, or description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return searchModules(cmd, app, args[0])
		},
	})

	moduleCmd.AddCommand(&cobra.Command{
		Use:   "show <module>",
		Short: "Show a module's manifest details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return showModule(cmd, app, args[0])
		},
	})

	return moduleCmd
}

func listModules(cmd *cobra.Command, app *App, category, framework string) error {
	svc, err := app.Services(cmd.Context())
	if err != nil {
		return err
	}
	app.reportDiagnostics(svc)

	var modules []*dnamod.Module
	switch {
	case category != "":
		modules = svc.Registry.ByCategory(category)
	case framework != "":
		modules = svc.Registry.ByFramework(framework)
	default:
		for _, id := range svc.Registry.IDs() {
			if m, cerr := svc.Registry.Current(id); cerr == nil {
				modules = append(modules, m)
			}
		}
	}

	if len(modules) == 0 {
		fmt.Fprintln(app.stdout, SubtitleStyle.Render("no modules found"))
		return nil
	}
	printModuleLines(app, svc, modules)
	return nil
}

func searchModules(cmd *cobra.Command, app *App, keyword string) error {
	svc, err := app.Services(cmd.Context())
	if err != nil {
		return err
	}
	app.reportDiagnostics(svc)

	modules := svc.Registry.Search(keyword)
	if len(modules) == 0 {
		fmt.Fprintf(app.stdout, "%s\n", SubtitleStyle.Render("no modules matching "+keyword))
		return nil
	}
	printModuleLines(app, svc, modules)
	return nil
}

func printModuleLines(app *App, svc *Services, modules []*dnamod.Module) {
	for _, m := range modules {
		flags := ""
		if m.Deprecated {
			flags += " " + WarningStyle.Render("[deprecated]")
		}
		if m.Experimental {
			flags += " " + WarningStyle.Render("[experimental]")
		}
		versions := svc.Registry.Versions(m.ID)
		fmt.Fprintf(app.stdout, "%s %s %s%s\n",
			ModuleStyle.Render(m.ID),
			SubtitleStyle.Render(m.Version.String()),
			SubtitleStyle.Render(fmt.Sprintf("(%s, %d version(s))", m.Category, len(versions))),
			flags)
		if m.Description != "" {
			fmt.Fprintf(app.stdout, "  %s\n", VerboseStyle.Render(m.Description))
		}
	}
}

func showModule(cmd *cobra.Command, app *App, id string) error {
	svc, err := app.Services(cmd.Context())
	if err != nil {
		return err
	}
	app.reportDiagnostics(svc)

	m, err := svc.Registry.Current(id)
	if err != nil {
		return err
	}
	out := app.stdout

	fmt.Fprintln(out, TitleStyle.Render(m.Key()))
	if m.Name != "" {
		fmt.Fprintf(out, "%s: %s\n", ModuleStyle.Render("name"), m.Name)
	}
	if m.Description != "" {
		fmt.Fprintf(out, "%s: %s\n", ModuleStyle.Render("description"), m.Description)
	}
	fmt.Fprintf(out, "%s: %s\n", ModuleStyle.Render("category"), m.Category)
	fmt.Fprintf(out, "%s: %s\n", ModuleStyle.Render("versions"), strings.Join(svc.Registry.Versions(id), ", "))
	if m.Deprecated {
		fmt.Fprintln(out, WarningStyle.Render("deprecated"))
	}
	if m.Experimental {
		fmt.Fprintln(out, WarningStyle.Render("experimental"))
	}

	if len(m.Dependencies) > 0 {
		fmt.Fprintf(out, "%s:\n", ModuleStyle.Render("dependencies"))
		for _, d := range m.Dependencies {
			optional := ""
			if d.Optional {
				optional = SubtitleStyle.Render(" (optional)")
			}
			fmt.Fprintf(out, "  - %s %s%s\n", d.ModuleID, d.Range, optional)
		}
	}
	if len(m.Conflicts) > 0 {
		fmt.Fprintf(out, "%s:\n", ModuleStyle.Render("conflicts"))
		for _, c := range m.Conflicts {
			fmt.Fprintf(out, "  - %s (%s): %s\n", c.ModuleID, c.Severity, c.Reason)
		}
	}
	if len(m.Frameworks) > 0 {
		fmt.Fprintf(out, "%s:\n", ModuleStyle.Render("frameworks"))
		for _, fs := range m.Frameworks {
			state := SuccessStyle.Render(string(fs.Level))
			if !fs.Supported {
				state = ErrorStyle.Render("unsupported")
			}
			fmt.Fprintf(out, "  - %s: %s\n", fs.Framework, state)
			for _, lim := range fs.Limitations {
				fmt.Fprintf(out, "      %s\n", VerboseStyle.Render(lim))
			}
		}
	}
	if len(m.Config.Schema) > 0 {
		fmt.Fprintf(out, "%s:\n", ModuleStyle.Render("config"))
		for field, kind := range m.Config.Schema {
			required := ""
			for _, r := range m.Config.Required {
				if r == field {
					required = WarningStyle.Render(" required")
				}
			}
			fmt.Fprintf(out, "  - %s: %s%s\n", field, kind, required)
		}
	}

	if verbose {
		if stats, ok := svc.Registry.StatsFor(id); ok {
			fmt.Fprintf(out, "%s registrations=%d lookups=%d\n",
				VerboseStyle.Render("stats:"), stats.Registrations, stats.Lookups)
		}
	}
	return nil
}
