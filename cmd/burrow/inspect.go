package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/burrow/pkg/blob"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <blob-file>",
	Short: "Print a staged blob's header",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	h, err := blob.ReadHeader(f)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		return err
	}

	fmt.Printf("Kind:  %s\n", h.Kind)
	fmt.Printf("From:  %s\n", h.From)
	fmt.Printf("To:    %s\n", h.To)
	codec := "none"
	if h.Codec == blob.CodecSnappy {
		codec = "snappy"
	}
	fmt.Printf("Codec: %s\n", codec)
	fmt.Printf("Size:  %d bytes\n", info.Size())
	return nil
}
