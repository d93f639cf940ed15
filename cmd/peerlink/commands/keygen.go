package commands

import (
	"encoding/hex"
	"fmt"

	"github.com/TheusHen/peerlink/peerlink/identity"
	"github.com/spf13/cobra"
)

func keygenCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an identity and print its peer id",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, kp, err := identity.Generate(name)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "name:    %s\n", id.Name)
			fmt.Fprintf(out, "peer id: %s\n", id.ID)
			fmt.Fprintf(out, "seed:    %s\n", hex.EncodeToString(kp.PrivateKey.Seed()))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}
