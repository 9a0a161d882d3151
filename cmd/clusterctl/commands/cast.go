package commands

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/roasbeef/holon/internal/adminsvc"
	"github.com/spf13/cobra"
)

var (
	castActorID   string
	castActorNode string
	castPayload   string
)

var castCmd = &cobra.Command{
	Use:   "cast",
	Short: "Send a fire-and-forget message to a running actor",
	RunE:  runCast,
}

func init() {
	castCmd.Flags().StringVar(&castActorID, "actor", "",
		"target actor ID (required)")
	castCmd.Flags().StringVar(&castActorNode, "actor-node", "",
		"node the actor lives on (default: the target node)")
	castCmd.Flags().StringVar(&castPayload, "payload", "",
		"JSON-encoded message payload")

	castCmd.MarkFlagRequired("actor")
}

func runCast(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	var rawPayload []byte
	if castPayload != "" {
		var decoded any
		if err := jsonToCBOR(castPayload, &decoded); err != nil {
			return fmt.Errorf("decoding --payload: %w", err)
		}
		encoded, err := cbor.Marshal(decoded)
		if err != nil {
			return fmt.Errorf("encoding --payload: %w", err)
		}
		rawPayload = encoded
	}

	client, err := dial(ctx)
	if err != nil {
		return err
	}
	defer client.close()

	out, err := client.admin(ctx, adminsvc.Msg{
		Op:        adminsvc.OpCast,
		ActorID:   castActorID,
		ActorNode: castActorNode,
		Payload:   rawPayload,
	})
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}
