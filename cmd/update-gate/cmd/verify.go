package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/opencontainers/go-digest"
	"github.com/spf13/cobra"

	"github.com/bianoble/update-gate/internal/integrity"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <file> <sha256> <size>",
	Short: "Check one artifact against its expected digest and size",
	Long: `Verifies that the file has exactly the given size and SHA-256 digest.
A file whose digest does not match is deleted, the same as when the
gate finds a corrupt artifact.
Exit 0 when the file verifies.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw := strings.ToLower(strings.TrimPrefix(args[1], "sha256:"))
		dig := digest.NewDigestFromEncoded(digest.SHA256, raw)
		if err := dig.Validate(); err != nil {
			return fmt.Errorf("sha256 %q: %w", args[1], err)
		}
		size, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil || size < 0 {
			return fmt.Errorf("size %q is not a non-negative integer", args[2])
		}

		if !integrity.Verify(args[0], dig, size) {
			return fmt.Errorf("%s failed verification", args[0])
		}
		info("%s verified (%s)", args[0], humanSize(size))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
