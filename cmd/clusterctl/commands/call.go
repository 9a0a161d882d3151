package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/roasbeef/holon/internal/adminsvc"
	"github.com/spf13/cobra"
)

var (
	callActorID   string
	callActorNode string
	callPayload   string
	callTimeout   time.Duration
)

var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Call a running actor and print its reply",
	RunE:  runCall,
}

func init() {
	callCmd.Flags().StringVar(&callActorID, "actor", "",
		"target actor ID (required)")
	callCmd.Flags().StringVar(&callActorNode, "actor-node", "",
		"node the actor lives on (default: the target node)")
	callCmd.Flags().StringVar(&callPayload, "payload", "",
		"JSON-encoded request payload")
	callCmd.Flags().DurationVar(&callTimeout, "timeout", 5*time.Second,
		"call timeout")

	callCmd.MarkFlagRequired("actor")
}

func runCall(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	var rawPayload []byte
	if callPayload != "" {
		var decoded any
		if err := jsonToCBOR(callPayload, &decoded); err != nil {
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
		Op:        adminsvc.OpCall,
		ActorID:   callActorID,
		ActorNode: callActorNode,
		Payload:   rawPayload,
		TimeoutMs: callTimeout.Milliseconds(),
	})
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}
