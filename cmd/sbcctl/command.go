package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// dialCommand dials socketPath and negotiates Command mode, the
// request/reply envelope pkg/ipc/command.go serves Code, Flush and
// GetObjectModel over.
func dialCommand() (*client, error) {
	c, err := dial(socketPath)
	if err != nil {
		return nil, err
	}
	if err := c.handshake("Command", nil); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// runCommand sends a single length-prefixed JSON command frame and
// prints its reply, matching the exact envelope shapes declared by
// pkg/ipc/command.go's codeArgs/flushArgs/getObjectModelArgs.
func runCommand(frame interface{}) error {
	c, err := dialCommand()
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.writeFrame(frame); err != nil {
		return fmt.Errorf("sbcctl: sending command: %w", err)
	}

	raw, err := c.readFrame()
	if err != nil {
		return fmt.Errorf("sbcctl: reading reply: %w", err)
	}

	var probe struct {
		Success bool `json:"Success"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return fmt.Errorf("sbcctl: decoding reply: %w", err)
	}
	if !probe.Success {
		var errReply errorReply
		json.Unmarshal(raw, &errReply)
		return fmt.Errorf("sbcctl: %s: %s", errReply.Error.Type, errReply.Error.Message)
	}

	var ok successReply
	json.Unmarshal(raw, &ok)
	if len(ok.Result) == 0 {
		fmt.Println("OK")
		return nil
	}
	var pretty interface{}
	if err := json.Unmarshal(ok.Result, &pretty); err == nil {
		fmt.Println(formatResult(pretty))
		return nil
	}
	fmt.Println(string(ok.Result))
	return nil
}

// formatResult indents for an interactive terminal and emits compact
// JSON when stdout is piped, so scripted callers don't have to parse
// around pretty-printing whitespace.
func formatResult(v interface{}) string {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		out, _ := json.MarshalIndent(v, "", "  ")
		return string(out)
	}
	out, _ := json.Marshal(v)
	return string(out)
}

var codeChannel int

var codeCmd = &cobra.Command{
	Use:   "code <gcode>",
	Short: "Submit a single code and print its reply",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCommand(struct {
			Command string `json:"Command"`
			Code    string `json:"Code"`
			Channel int    `json:"Channel"`
		}{Command: "Code", Code: args[0], Channel: codeChannel})
	},
}

var flushChannel int

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Wait until everything queued on a channel has run",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCommand(struct {
			Command string `json:"Command"`
			Channel int    `json:"Channel"`
		}{Command: "Flush", Channel: flushChannel})
	},
}

var getCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Fetch a key (or the whole tree) from the object model",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := ""
		if len(args) == 1 {
			key = args[0]
		}
		return runCommand(struct {
			Command string `json:"Command"`
			Key     string `json:"Key"`
		}{Command: "GetObjectModel", Key: key})
	},
}

func init() {
	const channelSBC = 8 // gcode.ChannelSBC; sbcctl submits as the SBC channel by default
	codeCmd.Flags().IntVar(&codeChannel, "channel", channelSBC, "gcode.Channel to submit on")
	flushCmd.Flags().IntVar(&flushChannel, "channel", channelSBC, "gcode.Channel to flush")
}
