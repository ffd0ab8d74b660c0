package status

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	yaml "github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/andydunstall/nanoledger/pkg/anchor"
	"github.com/andydunstall/nanoledger/status/config"
)

func newAnchorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "anchor",
		Short: "inspect anchor records",
	}

	cmd.AddCommand(newAnchorRecordsCommand())
	cmd.AddCommand(newAnchorRecordCommand())
	cmd.AddCommand(newAnchorProofCommand())

	return cmd
}

func newAnchorRecordsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "inspect anchor records",
		Long: `Inspect anchor records.

Queries the node for the records of every anchored batch, oldest first.

Examples:
  nanoledger status anchor records
`,
	}

	var conf config.Config
	conf.RegisterFlags(cmd.Flags())

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if err := conf.Validate(); err != nil {
			fmt.Printf("invalid config: %s\n", err.Error())
			os.Exit(1)
		}

		showAnchorRecords(&conf)
	}

	return cmd
}

type anchorRecordsOutput struct {
	Records []anchor.Record `json:"records"`
}

func showAnchorRecords(conf *config.Config) {
	client := newClient(conf)
	defer client.Close()

	records, err := client.AnchorRecords()
	if err != nil {
		fmt.Printf("failed to get anchor records: %s\n", err.Error())
		os.Exit(1)
	}

	output := anchorRecordsOutput{
		Records: records,
	}
	b, _ := yaml.Marshal(output)
	fmt.Println(string(b))
}

func newAnchorRecordCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Args:  cobra.ExactArgs(1),
		Short: "inspect an anchor record",
		Long: `Inspect an anchor record.

Queries the node for the record with the given external ID.

Examples:
  nanoledger status anchor record local-0b4c6a1e-1d3f-5e2a-9c8b-7f6e5d4c3b2a
`,
	}

	var conf config.Config
	conf.RegisterFlags(cmd.Flags())

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if err := conf.Validate(); err != nil {
			fmt.Printf("invalid config: %s\n", err.Error())
			os.Exit(1)
		}

		showAnchorRecord(args[0], &conf)
	}

	return cmd
}

func showAnchorRecord(id string, conf *config.Config) {
	client := newClient(conf)
	defer client.Close()

	rec, err := client.AnchorRecord(id)
	if err != nil {
		fmt.Printf("failed to get anchor record: %s: %s\n", id, err.Error())
		os.Exit(1)
	}

	b, _ := yaml.Marshal(rec)
	fmt.Println(string(b))
}

func newAnchorProofCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proof",
		Args:  cobra.ExactArgs(2),
		Short: "inspect an inclusion proof",
		Long: `Inspect an inclusion proof.

Queries the node for the inclusion proof of the packet at the given index in
the batch with the given external ID.

The packet and proof can also be written to files in the format read by
'nanoledger verify'.

Examples:
  # Inspect the proof of the first packet in the batch.
  nanoledger status anchor proof local-0b4c6a1e-1d3f-5e2a-9c8b-7f6e5d4c3b2a 0

  # Write the packet and proof, then verify offline.
  nanoledger status anchor proof local-0b4c6a1e-1d3f-5e2a-9c8b-7f6e5d4c3b2a 0 \
    --packet-out packet.bin --proof-out proof.json
  nanoledger verify --packet packet.bin --proof proof.json --root <root>
`,
	}

	var conf config.Config
	conf.RegisterFlags(cmd.Flags())

	var packetOut string
	cmd.Flags().StringVar(
		&packetOut,
		"packet-out",
		"",
		`
Path to write the encoded packet to.`,
	)

	var proofOut string
	cmd.Flags().StringVar(
		&proofOut,
		"proof-out",
		"",
		`
Path to write the proof to as JSON.`,
	)

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if err := conf.Validate(); err != nil {
			fmt.Printf("invalid config: %s\n", err.Error())
			os.Exit(1)
		}

		index, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Printf("invalid index: %s\n", args[1])
			os.Exit(1)
		}

		showAnchorProof(args[0], index, packetOut, proofOut, &conf)
	}

	return cmd
}

func showAnchorProof(
	id string,
	index int,
	packetOut string,
	proofOut string,
	conf *config.Config,
) {
	client := newClient(conf)
	defer client.Close()

	proof, err := client.AnchorProof(id, index)
	if err != nil {
		fmt.Printf("failed to get anchor proof: %s: %s\n", id, err.Error())
		os.Exit(1)
	}

	if err := writeProof(proof, packetOut, proofOut); err != nil {
		fmt.Printf("failed to write proof: %s\n", err.Error())
		os.Exit(1)
	}

	b, _ := yaml.Marshal(proof)
	fmt.Println(string(b))
}

func writeProof(proof *anchor.ProofInfo, packetOut string, proofOut string) error {
	if packetOut != "" {
		leaf, err := hex.DecodeString(proof.Leaf)
		if err != nil {
			return fmt.Errorf("decode leaf: %w", err)
		}
		if err := os.WriteFile(packetOut, leaf, 0o644); err != nil {
			return fmt.Errorf("write packet: %w", err)
		}
	}
	if proofOut != "" {
		b, err := json.MarshalIndent(proof.Proof, "", "  ")
		if err != nil {
			return fmt.Errorf("encode proof: %w", err)
		}
		if err := os.WriteFile(proofOut, b, 0o644); err != nil {
			return fmt.Errorf("write proof: %w", err)
		}
	}
	return nil
}
