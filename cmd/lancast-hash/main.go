// lancast-hash builds and checks the hashlist files the server uses to
// avoid rehashing its directory at startup.
package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lancast/internal/hashlist"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "lancast-hash",
		Short:         "Create and verify directory hashlists",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.AddCommand(newHashCmd(), newVerifyCmd())
	return cmd
}

func newHashCmd() *cobra.Command {
	var path, file string
	cmd := &cobra.Command{
		Use:   "hash",
		Short: "Hash a directory into a hashlist file",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("hashing directory %s\n", path)
			list, err := hashlist.Walk(path)
			if err != nil {
				return err
			}
			if err := hashlist.Save(file, list); err != nil {
				return err
			}
			fmt.Printf("wrote %d entries to %s\n", len(list.Files), file)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", ".", "directory to hash")
	cmd.Flags().StringVar(&file, "file", "", "hashlist file to write")
	cmd.MarkFlagRequired("file")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	var path, file string
	var ignoreNew, ignoreMissing bool
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a directory against a hashlist file",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := hashlist.Load(file)
			if err != nil {
				return err
			}
			fmt.Printf("verifying directory %s\n", path)
			discrepancies, err := hashlist.Verify(path, list, ignoreNew, ignoreMissing)
			if err != nil {
				return err
			}
			for _, d := range discrepancies {
				fmt.Printf("%s: %d-%s vs %d-%s\n",
					d.Path,
					d.Expected.Size, hex.EncodeToString(d.Expected.Hash),
					d.Actual.Size, hex.EncodeToString(d.Actual.Hash))
			}
			if len(discrepancies) == 0 {
				fmt.Println("no discrepancies found")
			} else {
				fmt.Printf("found %d discrepancies\n", len(discrepancies))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", ".", "directory to verify")
	cmd.Flags().StringVar(&file, "file", "", "hashlist file to read")
	cmd.Flags().BoolVar(&ignoreNew, "ignore-new", false, "files missing from the hashlist are not errors")
	cmd.Flags().BoolVar(&ignoreMissing, "ignore-missing", false, "files missing from the directory are not errors")
	cmd.MarkFlagRequired("file")
	return cmd
}
