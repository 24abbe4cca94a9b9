package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/kagent-dev/pipohost/internal/collection"
)

func writeCatalog(w io.Writer, output string, infos []collection.PluginInfo) error {
	switch output {
	case "table":
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.AppendHeader(table.Row{"Name", "Source", "Description"})
		for _, info := range infos {
			t.AppendRow(table.Row{info.Name, info.Source, info.Description})
		}
		t.Render()
		return nil
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(infos); err != nil {
			return fmt.Errorf("encoding plugin catalog as yaml failed: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(infos); err != nil {
			return fmt.Errorf("encoding plugin catalog as json failed: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %q", output)
	}
}
