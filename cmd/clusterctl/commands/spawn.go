package commands

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/roasbeef/holon/internal/adminsvc"
	"github.com/spf13/cobra"
)

var (
	spawnBehavior string
	spawnNode     string
	spawnArgsJSON string
)

var spawnCmd = &cobra.Command{
	Use:   "spawn",
	Short: "Spawn a registered actor behavior on a node",
	Long: `Spawn starts a new instance of --behavior, a behavior name that must
already be registered with internal/remote on the target node (a name
printed in that node's own logs at startup, or named in its documentation).
--args, if given, is decoded as JSON and re-encoded as the behavior's spawn
argument.`,
	RunE: runSpawn,
}

func init() {
	spawnCmd.Flags().StringVar(&spawnBehavior, "behavior", "",
		"registered behavior name to spawn (required)")
	spawnCmd.Flags().StringVar(&spawnNode, "node", "",
		"node to spawn on (default: the target node)")
	spawnCmd.Flags().StringVar(&spawnArgsJSON, "args", "",
		"JSON-encoded spawn argument")

	spawnCmd.MarkFlagRequired("behavior")
}

func runSpawn(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	var rawArgs []byte
	if spawnArgsJSON != "" {
		var decoded any
		if err := jsonToCBOR(spawnArgsJSON, &decoded); err != nil {
			return fmt.Errorf("decoding --args: %w", err)
		}
		encoded, err := cbor.Marshal(decoded)
		if err != nil {
			return fmt.Errorf("encoding --args: %w", err)
		}
		rawArgs = encoded
	}

	client, err := dial(ctx)
	if err != nil {
		return err
	}
	defer client.close()

	out, err := client.admin(ctx, adminsvc.Msg{
		Op:           adminsvc.OpSpawn,
		BehaviorName: spawnBehavior,
		TargetNode:   spawnNode,
		Args:         rawArgs,
	})
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}
