package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/datarest/internal/cli/ui"
	"github.com/conduit-lang/datarest/internal/config"
	"github.com/conduit-lang/datarest/internal/rest/mapping"
)

func newResourcesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resources [name]",
		Short: "List the configured resources",
		Long: `List every configured resource with its id type and supported methods.
With a name, show the full mapping of that resource.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}

			metas := make([]*mapping.Metadata, 0, len(cfg.Resources))
			for _, res := range cfg.Resources {
				// Load validated every declaration
				meta, _ := res.Metadata()
				metas = append(metas, meta)
			}

			if len(args) == 1 {
				return describeResource(cmd, opts, cfg, metas, args[0])
			}

			out := cmd.OutOrStdout()
			if len(metas) == 0 {
				fmt.Fprintln(out, ui.Format(ui.Message{
					Level:   ui.LevelWarning,
					Problem: "No resources configured.",
					Help:    []string{"Declare resources in datarest.yaml or run: datarest init"},
					NoColor: opts.noColor,
				}))
				return nil
			}

			table := ui.NewTable(out, opts.noColor, "PATH", "REL", "ID", "COLLECTION", "ITEM")
			for _, meta := range metas {
				table.AddRow(
					resourcePath(cfg, meta),
					meta.CollectionRel,
					string(meta.IDType),
					strings.Join(meta.SupportedMethods(mapping.Collection).Sorted(), ","),
					strings.Join(meta.SupportedMethods(mapping.Item).Sorted(), ","),
				)
			}
			table.Render()
			return nil
		},
	}
}

func describeResource(cmd *cobra.Command, opts *rootOptions, cfg *config.Config, metas []*mapping.Metadata, name string) error {
	known := make([]string, 0, len(metas))
	for _, meta := range metas {
		if meta.Path == name || meta.CollectionRel == name {
			kv := ui.NewKeyValueTable(cmd.OutOrStdout(), opts.noColor)
			kv.AddRow("Path", resourcePath(cfg, meta))
			kv.AddRow("Collection rel", meta.CollectionRel)
			kv.AddRow("Item rel", meta.ItemRel)
			kv.AddRow("ID type", string(meta.IDType))
			kv.AddRow("Collection methods", strings.Join(meta.SupportedMethods(mapping.Collection).Sorted(), ", "))
			kv.AddRow("Item methods", strings.Join(meta.SupportedMethods(mapping.Item).Sorted(), ", "))
			kv.AddRow("PUT creates", fmt.Sprint(meta.PutForCreation))
			if meta.Search.Exported {
				kv.AddRow("Search", resourcePath(cfg, meta)+"/"+meta.Search.Path+" ("+meta.Search.Rel+")")
			}
			kv.Render()
			return nil
		}
		known = append(known, meta.Path)
	}

	fmt.Fprint(cmd.ErrOrStderr(), ui.ResourceNotFound(name, known, opts.noColor))
	return errReported
}

func resourcePath(cfg *config.Config, meta *mapping.Metadata) string {
	return strings.TrimSuffix(cfg.Server.BasePath, "/") + "/" + meta.Path
}
