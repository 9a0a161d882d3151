package commands

import (
	"context"
	"fmt"

	"github.com/roasbeef/holon/internal/adminsvc"
	"github.com/spf13/cobra"
)

var (
	stopActorID   string
	stopActorNode string
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running actor local to a node",
	RunE:  runStop,
}

func init() {
	stopCmd.Flags().StringVar(&stopActorID, "actor", "",
		"target actor ID (required)")
	stopCmd.Flags().StringVar(&stopActorNode, "actor-node", "",
		"node the actor lives on (default: the target node)")

	stopCmd.MarkFlagRequired("actor")
}

func runStop(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	client, err := dial(ctx)
	if err != nil {
		return err
	}
	defer client.close()

	out, err := client.admin(ctx, adminsvc.Msg{
		Op:        adminsvc.OpStop,
		ActorID:   stopActorID,
		ActorNode: stopActorNode,
	})
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}
