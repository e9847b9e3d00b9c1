package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	watchPatch   bool
	watchFilters []string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream the object model in Subscribe mode",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(watchPatch, watchFilters, printDocument)
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchPatch, "patch", false, "receive structural patches instead of full resends")
	watchCmd.Flags().StringSliceVar(&watchFilters, "filter", nil, "object-model path filter, e.g. job.** or state")
}

// runWatch dials socketPath, negotiates Subscribe mode and feeds each
// decoded document (the initial snapshot, then one per wake) to emit
// until the connection ends or the process is interrupted.
func runWatch(patch bool, filters []string, emit func(json.RawMessage)) error {
	c, err := dial(socketPath)
	if err != nil {
		return err
	}
	defer c.Close()

	mode := "Full"
	if patch {
		mode = "Patch"
	}
	if err := c.handshake("Subscribe", func(ci *clientInit) {
		ci.SubscriptionMode = mode
		ci.Filters = filters
	}); err != nil {
		return err
	}

	for {
		var doc json.RawMessage
		if err := c.readLine(&doc); err != nil {
			return fmt.Errorf("sbcctl: watch connection ended: %w", err)
		}
		emit(doc)
		if err := c.acknowledge(); err != nil {
			return fmt.Errorf("sbcctl: acknowledging: %w", err)
		}
	}
}

func printDocument(doc json.RawMessage) {
	var pretty interface{}
	if err := json.Unmarshal(doc, &pretty); err != nil {
		fmt.Println(string(doc))
		return
	}
	out, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Println(strings.TrimSpace(string(out)))
	fmt.Println("---")
}
