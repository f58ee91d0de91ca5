// Package topics adds file-backed help topics to a cobra command tree.
// Topics are read from an fs.FS (usually an embed.FS) and shown through
// `help <topic>` and `--help <topic>`. A file named option-<flag>.md
// documents --<flag>.
package topics

import (
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

const optionPrefix = "option-"

var defaultExtensions = []string{".md", ".txt"}

// Topic is one help document
type Topic struct {
	Name     string
	FilePath string
	Content  string
	// Summary is the first line of prose, shown in the topic list
	Summary string
}

// Format is the file extension, which selects the rendering
func (t *Topic) Format() string {
	return path.Ext(t.FilePath)
}

// IsOption reports whether the topic documents a flag
func (t *Topic) IsOption() bool {
	return strings.HasPrefix(t.Name, optionPrefix)
}

// Options configures a TopicManager
type Options struct {
	// Extensions accepted as topics, default .md and .txt
	Extensions []string
	// Renderer formats topic content, default Plain
	Renderer Renderer
}

// TopicManager holds the loaded topics for one command tree
type TopicManager struct {
	fsys       fs.FS
	topics     map[string]*Topic
	extensions []string
	renderer   Renderer
	fallback   func(*cobra.Command, []string)
}

// New creates a TopicManager with default options
func New(fsys fs.FS) *TopicManager {
	return NewWithOptions(fsys, Options{})
}

// NewWithOptions creates a TopicManager. Topics are loaded by scanTopics.
func NewWithOptions(fsys fs.FS, opts Options) *TopicManager {
	tm := &TopicManager{
		fsys:       fsys,
		topics:     map[string]*Topic{},
		extensions: opts.Extensions,
		renderer:   opts.Renderer,
	}
	if len(tm.extensions) == 0 {
		tm.extensions = defaultExtensions
	}
	if tm.renderer == nil {
		tm.renderer = Plain
	}
	return tm
}

func (tm *TopicManager) scanTopics() error {
	if tm.fsys == nil {
		return nil
	}
	return fs.WalkDir(tm.fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		ext := path.Ext(p)
		if !contains(tm.extensions, ext) {
			return nil
		}
		data, err := fs.ReadFile(tm.fsys, p)
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(path.Base(p), ext)
		tm.topics[name] = &Topic{
			Name:     name,
			FilePath: p,
			Content:  string(data),
			Summary:  summarize(string(data)),
		}
		return nil
	})
}

// summarize returns the first non-empty line that is not a markdown heading
func summarize(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			return line
		}
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// GetTopic finds a topic by name. Flag spellings (--yes, -yes, yes) resolve
// to the option topic when no plain topic has that name.
func (tm *TopicManager) GetTopic(name string) (*Topic, bool) {
	name = strings.TrimLeft(name, "-")
	if t, ok := tm.topics[name]; ok {
		return t, true
	}
	t, ok := tm.topics[optionPrefix+name]
	return t, ok
}

// ListTopics returns the topic names in order
func (tm *TopicManager) ListTopics() []string {
	names := make([]string, 0, len(tm.topics))
	for name := range tm.topics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render formats a topic for output
func (tm *TopicManager) Render(t *Topic) string {
	return tm.renderer.Render(t.Content, t.Format())
}

// PrintList writes the topic index with one summary line per topic
func (tm *TopicManager) PrintList(w io.Writer, appName string) {
	if len(tm.topics) == 0 {
		fmt.Fprintln(w, "No help topics available.")
		return
	}

	var general, options []*Topic
	for _, name := range tm.ListTopics() {
		if t := tm.topics[name]; t.IsOption() {
			options = append(options, t)
		} else {
			general = append(general, t)
		}
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	section := func(title, prefix string, list []*Topic) {
		if len(list) == 0 {
			return
		}
		fmt.Fprintf(tw, "%s:\n", title)
		for _, t := range list {
			fmt.Fprintf(tw, "  %s%s\t%s\n", prefix, strings.TrimPrefix(t.Name, optionPrefix), t.Summary)
		}
		fmt.Fprintln(tw)
	}
	section("Help topics", "", general)
	section("Flag topics", "--", options)
	_ = tw.Flush()

	fmt.Fprintf(w, "Run '%s help <topic>' to read one.\n", appName)
}

// Initialize installs topic help on rootCmd with default options
func Initialize(rootCmd *cobra.Command, fsys fs.FS) (*TopicManager, error) {
	return InitializeWithOptions(rootCmd, fsys, Options{})
}

// InitializeWithOptions loads the topics and replaces the help command and
// help function of rootCmd. Unknown names fall back to cobra's help.
func InitializeWithOptions(rootCmd *cobra.Command, fsys fs.FS, opts Options) (*TopicManager, error) {
	tm := NewWithOptions(fsys, opts)
	if err := tm.scanTopics(); err != nil {
		return nil, fmt.Errorf("loading help topics: %w", err)
	}
	tm.fallback = rootCmd.HelpFunc()

	name := rootCmd.Name()
	rootCmd.SetHelpCommand(&cobra.Command{
		Use:   "help [command|topic]",
		Short: "Help about a command or topic",
		Long: fmt.Sprintf("Show help for a command or a help topic.\n\n"+
			"  %[1]s help <command>\n  %[1]s help <topic>\n  %[1]s help topics", name),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return tm.completions(rootCmd), cobra.ShellCompDirectiveNoFileComp
		},
		Run: func(cmd *cobra.Command, args []string) {
			tm.help(rootCmd, cmd.OutOrStdout(), args)
		},
	})

	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if len(args) > 0 {
			if t, ok := tm.GetTopic(args[0]); ok {
				fmt.Fprint(cmd.OutOrStdout(), tm.Render(t))
				return
			}
		}
		tm.fallback(cmd, args)
	})
	return tm, nil
}

func (tm *TopicManager) help(root *cobra.Command, out io.Writer, args []string) {
	if len(args) == 0 {
		tm.fallback(root, nil)
		return
	}
	if args[0] == "topics" {
		tm.PrintList(out, root.Name())
		return
	}
	if t, ok := tm.GetTopic(args[0]); ok {
		fmt.Fprint(out, tm.Render(t))
		return
	}
	if target, _, err := root.Find(args); err == nil && target != root {
		tm.fallback(target, nil)
		return
	}
	tm.fallback(root, args)
}

func (tm *TopicManager) completions(root *cobra.Command) []string {
	out := []string{"topics"}
	for _, c := range root.Commands() {
		if !c.Hidden && c.IsAvailableCommand() {
			out = append(out, c.Name())
		}
	}
	return append(out, tm.ListTopics()...)
}
