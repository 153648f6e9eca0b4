package cli

import (
	"fmt"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"
)

// Custom help styles
var (
	helpTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Italic(true).
			MarginBottom(1)

	helpSectionStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(accentColor).
				MarginTop(1)

	helpFlagStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00AA00")).
			Bold(true)

	helpArgStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00AAAA")).
			Bold(true)

	helpDefaultStyle = lipgloss.NewStyle().
				Foreground(mutedColor).
				Italic(true)
)

// helpEntry is one line of the help: a flag or positional argument.
type helpEntry struct {
	name       string
	help       string
	defaultVal string
}

// helpSection is a titled block of entries. Flags without a kong group land
// in the untitled "Flags" section.
type helpSection struct {
	title   string
	entries []helpEntry
}

// StyledHelpPrinter creates a custom help printer with Lipgloss styling.
// Flags are shown under their kong group; presets, when given, are listed
// last.
func StyledHelpPrinter(_ kong.HelpOptions, presets ...string) kong.HelpPrinter {
	return func(_ kong.HelpOptions, ctx *kong.Context) error {
		fmt.Fprint(ctx.Stdout, renderHelp(ctx.Model.Name, ctx.Model.Node, presets))
		return nil
	}
}

func renderHelp(name string, node *kong.Node, presets []string) string {
	var sb strings.Builder

	sb.WriteString(helpTitleStyle.Render("Takemaster 🎬"))
	sb.WriteString("\n")
	sb.WriteString(helpDescStyle.Render("Voice take cleanup, assembly and mastering"))
	sb.WriteString("\n")

	sb.WriteString(helpSectionStyle.Render("Usage:"))
	sb.WriteString(fmt.Sprintf("\n  %s [flags] <takes> ...\n", name))

	if args := arguments(node); len(args) > 0 {
		writeSection(&sb, helpSection{title: "Arguments", entries: args}, helpArgStyle)
	}
	for _, s := range flagSections(node) {
		writeSection(&sb, s, helpFlagStyle)
	}

	if len(presets) > 0 {
		sb.WriteString("\n")
		sb.WriteString(helpSectionStyle.Render("Presets:"))
		sb.WriteString("\n  ")
		sb.WriteString(helpArgStyle.Render(strings.Join(presets, ", ")))
		sb.WriteString("\n  ")
		sb.WriteString(helpDefaultStyle.Render("or the path to a preset YAML file"))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	return sb.String()
}

// writeSection renders entries with their help text aligned in one column.
func writeSection(sb *strings.Builder, s helpSection, nameStyle lipgloss.Style) {
	width := 0
	for _, e := range s.entries {
		width = max(width, len(e.name))
	}

	sb.WriteString("\n")
	sb.WriteString(helpSectionStyle.Render(s.title + ":"))
	sb.WriteString("\n")
	for _, e := range s.entries {
		sb.WriteString("  ")
		sb.WriteString(nameStyle.Render(e.name))
		if e.help != "" {
			sb.WriteString(strings.Repeat(" ", width-len(e.name)+2))
			sb.WriteString(e.help)
		}
		if e.defaultVal != "" {
			sb.WriteString(" ")
			sb.WriteString(helpDefaultStyle.Render("(default: " + e.defaultVal + ")"))
		}
		sb.WriteString("\n")
	}
}

func arguments(node *kong.Node) []helpEntry {
	var args []helpEntry
	for _, arg := range node.Positional {
		args = append(args, helpEntry{name: arg.Summary(), help: arg.Help})
	}
	return args
}

// flagSections groups flags in declaration order, ungrouped flags first.
func flagSections(node *kong.Node) []helpSection {
	sections := []helpSection{{
		title:   "Flags",
		entries: []helpEntry{{name: "-h, --help", help: "Show context-sensitive help."}},
	}}
	index := map[string]int{}

	for _, f := range node.Flags {
		if f.Name == "help" || f.Hidden {
			continue
		}
		i := 0
		if f.Group != nil {
			var ok bool
			if i, ok = index[f.Group.Key]; !ok {
				i = len(sections)
				index[f.Group.Key] = i
				sections = append(sections, helpSection{title: f.Group.Title})
			}
		}
		sections[i].entries = append(sections[i].entries, flagEntry(f))
	}
	return sections
}

func flagEntry(f *kong.Flag) helpEntry {
	name := "--" + f.Name
	if f.Short != 0 {
		name = fmt.Sprintf("-%c, --%s", f.Short, f.Name)
	}
	if !f.IsBool() && f.PlaceHolder != "" {
		name += "=" + strings.ToUpper(f.PlaceHolder)
	}

	e := helpEntry{name: name, help: f.Help}
	if f.HasDefault && f.Default != "" {
		e.defaultVal = f.Default
	}
	return e
}
