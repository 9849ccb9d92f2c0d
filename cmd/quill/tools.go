package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools available to the agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := buildRegistry()
		if err != nil {
			return err
		}
		for _, def := range registry.Definitions() {
			fmt.Printf("%-12s %s\n", def.Name, def.Description)
			fields := make([]string, 0, len(def.InputSchema))
			for field := range def.InputSchema {
				fields = append(fields, field)
			}
			sort.Strings(fields)
			for _, field := range fields {
				spec, _ := def.InputSchema[field].(map[string]interface{})
				typ, _ := spec["type"].(string)
				desc, _ := spec["description"].(string)
				marker := " "
				for _, req := range def.Required {
					if req == field {
						marker = "*"
					}
				}
				fmt.Printf("  %s %-12s %-8s %s\n", marker, field, typ, desc)
			}
		}
		return nil
	},
}
