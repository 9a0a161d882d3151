package commands

import (
	"context"
	"fmt"

	"github.com/roasbeef/holon/internal/adminsvc"
	"github.com/spf13/cobra"
)

var membersCmd = &cobra.Command{
	Use:   "members",
	Short: "List the target cluster's membership table",
	RunE:  runMembers,
}

func runMembers(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	client, err := dial(ctx)
	if err != nil {
		return err
	}
	defer client.close()

	out, err := client.admin(ctx, adminsvc.Msg{Op: adminsvc.OpMembers})
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}
