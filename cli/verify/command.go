package verify

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/andydunstall/nanoledger/pkg/merkle"
	"github.com/andydunstall/nanoledger/pkg/verifier"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "verify a packet was anchored",
		Long: `Verify a packet was anchored.

Checks offline that the packet is included in the batch with the given Merkle
root, using the inclusion proof from the node. Prints PASS and exits with
status 0 if the packet is included, otherwise prints FAIL and exits with
status 1.

The proof file contains a JSON list of entries, each with a 'position' of
'left' or 'right' and a hex 'hash'.

Examples:
  nanoledger verify --packet packet.bin --proof proof.json --root 9f86d08...
`,
	}

	var packetPath string
	cmd.Flags().StringVar(
		&packetPath,
		"packet",
		"",
		`
Path to the encoded packet.`,
	)

	var root string
	cmd.Flags().StringVar(
		&root,
		"root",
		"",
		`
Hex encoded Merkle root of the anchored batch.`,
	)

	var proofPath string
	cmd.Flags().StringVar(
		&proofPath,
		"proof",
		"",
		`
Path to the JSON inclusion proof.`,
	)

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if packetPath == "" || root == "" || proofPath == "" {
			fmt.Println("missing --packet, --root or --proof")
			os.Exit(1)
		}

		ok, err := verify(packetPath, proofPath, root)
		if err != nil {
			fmt.Printf("failed to verify: %s\n", err.Error())
			os.Exit(1)
		}
		if !ok {
			fmt.Println("FAIL")
			os.Exit(1)
		}
		fmt.Println("PASS")
	}

	return cmd
}

func verify(packetPath string, proofPath string, root string) (bool, error) {
	packetBytes, err := os.ReadFile(packetPath)
	if err != nil {
		return false, fmt.Errorf("read packet: %w", err)
	}

	b, err := os.ReadFile(proofPath)
	if err != nil {
		return false, fmt.Errorf("read proof: %w", err)
	}
	var proof []merkle.HexEntry
	if err := json.Unmarshal(b, &proof); err != nil {
		return false, fmt.Errorf("decode proof: %w", err)
	}

	return verifier.VerifyInclusion(packetBytes, proof, root), nil
}
